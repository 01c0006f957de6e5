// Package p2p lets content items and users be connected through named,
// many-to-many connection types, and makes "items connected to X" a first
// class filter of the host query engine.
//
// A ConnectionType pairs two Sides. Callers resolve which side a candidate
// item sits on with ResolveDirection and run connected-item queries on the
// returned Directed handle. QueryIntegration plugs into the host hook
// pipeline and rewrites queries carrying connected_* vars into joins against
// the p2p table.
package p2p

import (
	"context"
	"errors"
	"fmt"

	"github.com/scrypster/p2p/internal/storage"
	"github.com/scrypster/p2p/pkg/types"
)

var (
	// ErrUnknownObject is a configuration error: a side was declared with an
	// object kind that has no Side implementation.
	ErrUnknownObject = errors.New("unknown object kind")

	// ErrAmbiguousDirection means neither side recognised the candidate.
	ErrAmbiguousDirection = errors.New("can't determine direction")

	// ErrInvalidDirection means a direction other than from, to or any.
	ErrInvalidDirection = errors.New("invalid direction")

	// ErrUnknownConnectionType means no type is registered under the name.
	ErrUnknownConnectionType = errors.New("unknown connection type")

	// ErrDuplicateConnectionType means the name is already registered.
	ErrDuplicateConnectionType = errors.New("connection type already registered")

	// ErrObjectMismatch means a connected query was issued against a host
	// query flavour the resolved side doesn't live in.
	ErrObjectMismatch = errors.New("connected items live in another object kind")
)

// Side is one endpoint role of a connection type.
type Side interface {
	// Object returns the kind the side was declared with: post, attachment
	// or user.
	Object() string

	// QueryObject returns the host query flavour serving this side:
	// types.ObjectPost or types.ObjectUser.
	QueryObject() string

	// BaseQueryVars returns the configured vars plus the side's forced ones.
	BaseQueryVars() types.QueryVars

	// ConnectableQueryVars returns vars listing what this side can offer for
	// a new connection.
	ConnectableQueryVars(extra types.QueryVars) types.QueryVars

	// TranslateQueryVars maps the p2p:* vocabulary onto native vars.
	TranslateQueryVars(qv types.QueryVars) types.QueryVars

	// ItemRecognize reports whether candidate (an id, object, type name, or
	// a list of those, in which case the first element counts) belongs to
	// this side. It never mutates state.
	ItemRecognize(ctx context.Context, candidate interface{}) bool

	ItemExists(ctx context.Context, id int64) bool
	ItemID(ctx context.Context, candidate interface{}) (int64, bool)
	ItemTitle(obj types.Object) string

	Desc() string
	Title() string
	Labels() types.Labels
	CheckCapability(ctx context.Context) bool

	// Query runs qv through the host engine and normalizes the page.
	Query(ctx context.Context, qv types.QueryVars) (*List, error)
}

// List is a page of objects, independent of how the host pages results.
type List struct {
	Items       []types.Object `json:"items"`
	CurrentPage int            `json:"current_page"`
	TotalPages  int            `json:"total_pages"`
}

// IDs returns the IDs of the listed objects.
func (l *List) IDs() []int64 {
	if l == nil {
		return nil
	}
	ids := make([]int64, 0, len(l.Items))
	for _, obj := range l.Items {
		ids = append(ids, obj.ObjectID())
	}
	return ids
}

// Empty reports whether the page has no items.
func (l *List) Empty() bool {
	return l == nil || len(l.Items) == 0
}

// NewSide builds the Side for an object kind.
func NewSide(object string, qv types.QueryVars, host *storage.Host) (Side, error) {
	switch object {
	case types.ObjectPost:
		return NewPostSide(qv, host), nil
	case types.ObjectAttachment:
		return NewAttachmentSide(qv, host), nil
	case types.ObjectUser:
		return NewUserSide(qv, host), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownObject, object)
}

// firstCandidate unwraps lists: direction is decided by their first element.
func firstCandidate(candidate interface{}) interface{} {
	switch list := candidate.(type) {
	case []interface{}:
		if len(list) > 0 {
			return list[0]
		}
	case []int64:
		if len(list) > 0 {
			return list[0]
		}
	case []int:
		if len(list) > 0 {
			return list[0]
		}
	case []string:
		if len(list) > 0 {
			return list[0]
		}
	case []types.Object:
		if len(list) > 0 {
			return list[0]
		}
	case []*types.Item:
		if len(list) > 0 {
			return list[0]
		}
	case []*types.User:
		if len(list) > 0 {
			return list[0]
		}
	default:
		return candidate
	}
	return nil
}

// candidateID returns the id a scalar candidate stands for.
func candidateID(candidate interface{}) (int64, bool) {
	ids := types.ToIDs(candidate)
	if len(ids) != 1 {
		return 0, false
	}
	return ids[0], true
}
