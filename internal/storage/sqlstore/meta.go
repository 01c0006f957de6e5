package sqlstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/scrypster/p2p/internal/storage"
)

// MetaNamespaceP2P is the only metadata namespace this engine stores.
const MetaNamespaceP2P = "p2p"

// metaCache maps connection ID -> key -> values. An entry exists, possibly
// empty, once the connection's rows were loaded.
type metaCache struct {
	mu      sync.RWMutex
	entries map[int64]map[string][]string
}

func newMetaCache() *metaCache {
	return &metaCache{entries: make(map[int64]map[string][]string)}
}

func (m *metaCache) get(id int64) (map[string][]string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[id]
	return e, ok
}

func (m *metaCache) missing(ids []int64) []int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []int64
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if id <= 0 || seen[id] {
			continue
		}
		seen[id] = true
		if _, ok := m.entries[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

func (m *metaCache) forget(id int64) {
	m.mu.Lock()
	delete(m.entries, id)
	m.mu.Unlock()
}

// WarmMetaCache implements storage.MetaCache. It loads the metadata of every
// uncached connection in ids with a single query.
func (s *Store) WarmMetaCache(ctx context.Context, namespace string, ids []int64) error {
	if namespace != MetaNamespaceP2P {
		return fmt.Errorf("%w: unknown meta namespace %q", storage.ErrInvalidInput, namespace)
	}

	missing := s.meta.missing(ids)
	if len(missing) == 0 {
		return nil
	}

	cond, args := inClause("p2p_id", missing)
	rows, err := s.query(ctx, "SELECT p2p_id, meta_key, meta_value FROM p2pmeta WHERE "+cond+" ORDER BY meta_id", args...)
	if err != nil {
		return fmt.Errorf("%s: WarmMetaCache: %w", s.dialect.Name, err)
	}
	defer rows.Close()

	loaded := make(map[int64]map[string][]string, len(missing))
	for _, id := range missing {
		loaded[id] = make(map[string][]string)
	}
	for rows.Next() {
		var (
			id         int64
			key, value string
		)
		if err := rows.Scan(&id, &key, &value); err != nil {
			return fmt.Errorf("%s: WarmMetaCache scan: %w", s.dialect.Name, err)
		}
		loaded[id][key] = append(loaded[id][key], value)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%s: WarmMetaCache: %w", s.dialect.Name, err)
	}

	s.meta.mu.Lock()
	for id, entry := range loaded {
		s.meta.entries[id] = entry
	}
	s.meta.mu.Unlock()
	return nil
}

// MetaCached reports whether the connection's metadata is in the cache.
func (s *Store) MetaCached(p2pID int64) bool {
	_, ok := s.meta.get(p2pID)
	return ok
}

// ConnectionMeta returns the values stored under key for a connection,
// loading them into the cache on a miss.
func (s *Store) ConnectionMeta(ctx context.Context, p2pID int64, key string) ([]string, error) {
	if entry, ok := s.meta.get(p2pID); ok {
		return entry[key], nil
	}
	if err := s.WarmMetaCache(ctx, MetaNamespaceP2P, []int64{p2pID}); err != nil {
		return nil, err
	}
	entry, _ := s.meta.get(p2pID)
	return entry[key], nil
}
