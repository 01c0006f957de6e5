package storage

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/scrypster/p2p/pkg/types"
)

// ParseHook runs before the engine reads the query vars. It may rewrite
// them, e.g. to expand shortcut parameters.
type ParseHook func(ctx context.Context, q Query)

// ClausesHook runs once the engine has assembled its SQL fragments and
// returns the fragments to execute.
type ClausesHook func(ctx context.Context, clauses Clauses, q Query) Clauses

// ResultsHook runs after rows were fetched.
type ResultsHook func(ctx context.Context, q Query, results []types.Object)

// HookID identifies a registration so it can be removed.
type HookID uuid.UUID

type hookEntry[H any] struct {
	id   HookID
	hook H
}

// Pipeline dispatches query hooks in registration order.
// Hooks are normally registered once at startup.
type Pipeline struct {
	mu      sync.RWMutex
	parse   []hookEntry[ParseHook]
	clauses []hookEntry[ClausesHook]
	results []hookEntry[ResultsHook]
}

// NewPipeline creates an empty pipeline.
func NewPipeline() *Pipeline {
	return &Pipeline{}
}

// OnParse registers a parse hook.
func (p *Pipeline) OnParse(h ParseHook) HookID {
	id := HookID(uuid.New())
	p.mu.Lock()
	p.parse = append(p.parse, hookEntry[ParseHook]{id: id, hook: h})
	p.mu.Unlock()
	return id
}

// OnClauses registers a clauses hook.
func (p *Pipeline) OnClauses(h ClausesHook) HookID {
	id := HookID(uuid.New())
	p.mu.Lock()
	p.clauses = append(p.clauses, hookEntry[ClausesHook]{id: id, hook: h})
	p.mu.Unlock()
	return id
}

// OnResults registers a results hook.
func (p *Pipeline) OnResults(h ResultsHook) HookID {
	id := HookID(uuid.New())
	p.mu.Lock()
	p.results = append(p.results, hookEntry[ResultsHook]{id: id, hook: h})
	p.mu.Unlock()
	return id
}

// Remove unregisters the hook with the given id. It reports whether a hook
// was removed.
func (p *Pipeline) Remove(id HookID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	var removed bool
	p.parse, removed = without(p.parse, id, removed)
	p.clauses, removed = without(p.clauses, id, removed)
	p.results, removed = without(p.results, id, removed)
	return removed
}

func without[H any](entries []hookEntry[H], id HookID, removed bool) ([]hookEntry[H], bool) {
	out := entries[:0]
	for _, e := range entries {
		if e.id == id {
			removed = true
			continue
		}
		out = append(out, e)
	}
	return out, removed
}

// RunParse dispatches parse hooks. A nil pipeline is a no-op.
func (p *Pipeline) RunParse(ctx context.Context, q Query) {
	if p == nil {
		return
	}
	p.mu.RLock()
	hooks := append([]hookEntry[ParseHook](nil), p.parse...)
	p.mu.RUnlock()

	for _, e := range hooks {
		e.hook(ctx, q)
	}
}

// RunClauses threads clauses through every clauses hook.
func (p *Pipeline) RunClauses(ctx context.Context, clauses Clauses, q Query) Clauses {
	if p == nil {
		return clauses
	}
	p.mu.RLock()
	hooks := append([]hookEntry[ClausesHook](nil), p.clauses...)
	p.mu.RUnlock()

	for _, e := range hooks {
		clauses = e.hook(ctx, clauses, q)
	}
	return clauses
}

// RunResults dispatches results hooks.
func (p *Pipeline) RunResults(ctx context.Context, q Query, results []types.Object) {
	if p == nil {
		return
	}
	p.mu.RLock()
	hooks := append([]hookEntry[ResultsHook](nil), p.results...)
	p.mu.RUnlock()

	for _, e := range hooks {
		e.hook(ctx, q, results)
	}
}
