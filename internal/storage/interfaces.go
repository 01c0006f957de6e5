// Package storage defines the host collaborators the connection layer
// consumes: query engines, item lookups, the item type registry, the
// capability check, the metadata cache and the query hook pipeline.
//
// The interfaces are deliberately small so the core can be exercised against
// any backend, including the reference SQL engine in sqlstore.
package storage

import (
	"context"

	"github.com/scrypster/p2p/pkg/types"
)

// ItemQuerier runs item queries (posts, pages, attachments, ...).
type ItemQuerier interface {
	// QueryItems executes qv through the hook pipeline and returns the
	// fetched page. Unknown vars are ignored.
	QueryItems(ctx context.Context, qv types.QueryVars) (*ItemQuery, error)
}

// UserQuerier runs user queries. It has no notion of pages: callers page
// with number/offset and get back a total count.
type UserQuerier interface {
	QueryUsers(ctx context.Context, qv types.QueryVars) (*UserQuery, error)
}

// Querier is the full host query surface.
type Querier interface {
	ItemQuerier
	UserQuerier
}

// ItemStore resolves single objects by ID.
type ItemStore interface {
	// GetItem returns ErrNotFound if the item doesn't exist.
	GetItem(ctx context.Context, id int64) (*types.Item, error)

	// GetUser returns ErrNotFound if the user doesn't exist.
	GetUser(ctx context.Context, id int64) (*types.User, error)
}

// TypeRegistry looks up registered item types.
type TypeRegistry interface {
	ItemType(name string) (*types.ItemType, bool)
}

// CapabilityChecker answers permission questions for the current user.
type CapabilityChecker interface {
	CurrentUserCan(ctx context.Context, capability string) bool
}

// MetaCache pre-loads metadata rows for a batch of IDs so later reads in the
// same request don't go back to the database.
type MetaCache interface {
	WarmMetaCache(ctx context.Context, namespace string, ids []int64) error
}

// Host bundles every collaborator of the connection layer.
type Host struct {
	Items    ItemQuerier
	Users    UserQuerier
	Store    ItemStore
	Types    TypeRegistry
	Caps     CapabilityChecker
	Meta     MetaCache
	Pipeline *Pipeline
}
