package types_test

import (
	"testing"

	"github.com/scrypster/p2p/pkg/types"
)

// TestDirection verifies validity and opposites of every direction.
func TestDirection(t *testing.T) {
	tests := []struct {
		dir      types.Direction
		valid    bool
		opposite types.Direction
	}{
		{types.DirectionFrom, true, types.DirectionTo},
		{types.DirectionTo, true, types.DirectionFrom},
		{types.DirectionAny, true, types.DirectionAny},
		{types.Direction("up"), false, types.Direction("up")},
		{types.Direction(""), false, types.Direction("")},
	}

	for _, tt := range tests {
		if got := tt.dir.Valid(); got != tt.valid {
			t.Errorf("Direction(%q).Valid() = %v, want %v", tt.dir, got, tt.valid)
		}
		if got := tt.dir.Opposite(); got != tt.opposite {
			t.Errorf("Direction(%q).Opposite() = %q, want %q", tt.dir, got, tt.opposite)
		}
	}
}

// TestParseCardinality verifies that only a literal "one" is kept.
func TestParseCardinality(t *testing.T) {
	tests := []struct {
		in       string
		from, to types.Cardinality
	}{
		{"one-to-one", types.CardinalityOne, types.CardinalityOne},
		{"one-to-many", types.CardinalityOne, types.CardinalityMany},
		{"many-to-one", types.CardinalityMany, types.CardinalityOne},
		{"many-to-many", types.CardinalityMany, types.CardinalityMany},
		{"", types.CardinalityMany, types.CardinalityMany},
		{"one", types.CardinalityOne, types.CardinalityMany},
		{"ONE-to-one", types.CardinalityMany, types.CardinalityOne},
	}

	for _, tt := range tests {
		from, to := types.ParseCardinality(tt.in)
		if from != tt.from || to != tt.to {
			t.Errorf("ParseCardinality(%q) = %q, %q; want %q, %q", tt.in, from, to, tt.from, tt.to)
		}
	}
}

func TestItemConnected(t *testing.T) {
	item := &types.Item{ID: 1}
	item.AppendConnected("pages", &types.Item{ID: 2})
	item.AppendConnected("pages", &types.Item{ID: 3})
	if len(item.Connected["pages"]) != 2 {
		t.Fatalf("expected 2 connected pages, got %d", len(item.Connected["pages"]))
	}

	item.ResetConnected("pages")
	if got := item.Connected["pages"]; got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil list after reset, got %#v", got)
	}

	item.P2P().P2PID = 7
	if item.Connection.P2PID != 7 {
		t.Errorf("P2P() should expose the embedded connection")
	}
}

func TestLabelsIsZero(t *testing.T) {
	if !(types.Labels{}).IsZero() {
		t.Error("empty labels should be zero")
	}
	if (types.Labels{NotFound: "No pages found."}).IsZero() {
		t.Error("labels with a value should not be zero")
	}
}
