package storage

import (
	"context"
	"sync"

	"github.com/scrypster/p2p/pkg/types"
)

// TypeSet is an in-memory TypeRegistry.
type TypeSet struct {
	mu    sync.RWMutex
	types map[string]*types.ItemType
}

// NewTypeSet creates a registry holding the given types.
func NewTypeSet(itemTypes ...types.ItemType) *TypeSet {
	s := &TypeSet{types: make(map[string]*types.ItemType)}
	for _, t := range itemTypes {
		s.Register(t)
	}
	return s
}

// DefaultTypeSet registers the built-in post, page and attachment types.
func DefaultTypeSet() *TypeSet {
	return NewTypeSet(
		types.ItemType{
			Name:  "post",
			Label: "Posts",
			Labels: types.Labels{
				Name:         "Posts",
				SingularName: "Post",
				SearchItems:  "Search Posts",
				NotFound:     "No posts found.",
			},
			Caps: types.TypeCaps{EditPosts: "edit_posts"},
		},
		types.ItemType{
			Name:  "page",
			Label: "Pages",
			Labels: types.Labels{
				Name:         "Pages",
				SingularName: "Page",
				SearchItems:  "Search Pages",
				NotFound:     "No pages found.",
			},
			Caps: types.TypeCaps{EditPosts: "edit_pages"},
		},
		types.ItemType{
			Name:  "attachment",
			Label: "Media",
			Labels: types.Labels{
				Name:         "Media",
				SingularName: "Media",
				SearchItems:  "Search Media",
				NotFound:     "No media found.",
			},
			Caps: types.TypeCaps{EditPosts: "edit_posts"},
		},
	)
}

// Register adds or replaces a type. Missing labels fall back to the type
// label and name.
func (s *TypeSet) Register(t types.ItemType) {
	if t.Label == "" {
		t.Label = t.Name
	}
	if t.Labels.Name == "" {
		t.Labels.Name = t.Label
	}
	if t.Labels.SingularName == "" {
		t.Labels.SingularName = t.Labels.Name
	}
	if t.Caps.EditPosts == "" {
		t.Caps.EditPosts = "edit_posts"
	}

	s.mu.Lock()
	s.types[t.Name] = &t
	s.mu.Unlock()
}

// ItemType implements TypeRegistry.
func (s *TypeSet) ItemType(name string) (*types.ItemType, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.types[name]
	return t, ok
}

// CapabilitySet grants a fixed set of capabilities to the current user.
type CapabilitySet map[string]bool

// AllowAll is a CapabilityChecker that grants everything.
type AllowAll struct{}

// CurrentUserCan implements CapabilityChecker.
func (AllowAll) CurrentUserCan(context.Context, string) bool { return true }

// CurrentUserCan implements CapabilityChecker.
func (c CapabilitySet) CurrentUserCan(_ context.Context, capability string) bool {
	return c[capability]
}
