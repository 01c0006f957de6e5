package types_test

import (
	"reflect"
	"testing"

	"github.com/scrypster/p2p/pkg/types"
)

func TestMergeQueryVars(t *testing.T) {
	a := types.QueryVars{"post_type": "post", "paged": 1}
	b := types.QueryVars{"paged": 2}

	got := types.MergeQueryVars(a, nil, b)
	want := types.QueryVars{"post_type": "post", "paged": 2}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("MergeQueryVars = %v, want %v", got, want)
	}
	if a["paged"] != 1 {
		t.Error("MergeQueryVars must not modify its inputs")
	}

	var empty types.QueryVars
	if clone := empty.Clone(); clone == nil {
		t.Error("Clone of a nil map should be an empty map")
	}
}

func TestQueryVarsAccessors(t *testing.T) {
	q := types.QueryVars{
		"s":        "hello",
		"paged":    "3",
		"limit":    float64(5),
		"nopaging": "true",
		"flag":     1,
		"off":      false,
		"types":    []interface{}{"post", "page"},
		"single":   "page",
		"empty":    "",
		"nil":      nil,
	}

	if got := q.String("s"); got != "hello" {
		t.Errorf("String(s) = %q", got)
	}
	if got := q.String("limit"); got != "5" {
		t.Errorf("String(limit) = %q", got)
	}
	if got := q.Int("paged"); got != 3 {
		t.Errorf("Int(paged) = %d", got)
	}
	if got := q.Int("limit"); got != 5 {
		t.Errorf("Int(limit) = %d", got)
	}
	if got := q.Int("s"); got != 0 {
		t.Errorf("Int(s) = %d, want 0 for non-numeric", got)
	}
	if !q.Bool("nopaging") || !q.Bool("flag") || q.Bool("off") || q.Bool("missing") {
		t.Error("Bool returned an unexpected value")
	}
	if got := q.Strings("types"); !reflect.DeepEqual(got, []string{"post", "page"}) {
		t.Errorf("Strings(types) = %v", got)
	}
	if got := q.Strings("single"); !reflect.DeepEqual(got, []string{"page"}) {
		t.Errorf("Strings(single) = %v", got)
	}
	if got := q.Strings("empty"); got != nil {
		t.Errorf("Strings(empty) = %v, want nil", got)
	}
	if !q.Has("nil") || q.Has("missing") {
		t.Error("Has should report keys present with nil values")
	}
}

func TestQueryVarsPluck(t *testing.T) {
	q := types.QueryVars{"connected_type": "posts_to_pages"}

	if got := q.Pluck("connected_type"); got != "posts_to_pages" {
		t.Errorf("Pluck = %v", got)
	}
	if q.Has("connected_type") {
		t.Error("Pluck should remove the key")
	}
	if got := q.Pluck("connected_type"); got != nil {
		t.Errorf("second Pluck = %v, want nil", got)
	}
}

func TestToIDs(t *testing.T) {
	tests := []struct {
		name string
		in   interface{}
		want []int64
	}{
		{"nil", nil, nil},
		{"int", 4, []int64{4}},
		{"numeric string", "12", []int64{12}},
		{"word", "any", nil},
		{"zero dropped", []int{0, 3}, []int64{3}},
		{"strings", []string{"1", "x", "2"}, []int64{1, 2}},
		{"item", &types.Item{ID: 9}, []int64{9}},
		{"users", []*types.User{{ID: 5}, {ID: 0}}, []int64{5}},
		{"nil items", []*types.Item{nil, {ID: 6}}, []int64{6}},
		{"nil user", []interface{}{(*types.User)(nil)}, nil},
		{"mixed", []interface{}{int64(1), &types.Item{ID: 2}, "3"}, []int64{1, 2, 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := types.ToIDs(tt.in); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ToIDs(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
