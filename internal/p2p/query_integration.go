package p2p

import (
	"context"
	"fmt"

	"github.com/scrypster/p2p/internal/metrics"
	"github.com/scrypster/p2p/internal/storage"
	"github.com/scrypster/p2p/pkg/types"
)

const (
	stateRewritten = "p2p:rewritten"
)

// mainIDColumns are the ID columns connected queries join on.
var mainIDColumns = map[string]string{
	types.ObjectPost: "items.id",
	types.ObjectUser: "users.id",
}

// QueryIntegration teaches the host engine the connected_* vars. Install it
// on the pipeline the engine dispatches through.
type QueryIntegration struct {
	registry *Registry
	env      Env
	hooks    []storage.HookID
}

// NewQueryIntegration creates the integration for the types in registry.
func NewQueryIntegration(registry *Registry) *QueryIntegration {
	return &QueryIntegration{registry: registry, env: registry.env}
}

// Install registers the parse, clauses and results hooks.
func (qi *QueryIntegration) Install(p *storage.Pipeline) {
	qi.hooks = append(qi.hooks,
		p.OnParse(qi.parse),
		p.OnClauses(qi.clauses),
		p.OnResults(qi.results),
	)
}

// Uninstall removes the hooks registered by Install.
func (qi *QueryIntegration) Uninstall(p *storage.Pipeline) {
	for _, id := range qi.hooks {
		p.Remove(id)
	}
	qi.hooks = nil
}

// parse expands connected queries. A query that asks for connections but
// can't be expanded is replaced by one that matches nothing.
func (qi *QueryIntegration) parse(ctx context.Context, q storage.Query) {
	qv := q.Vars()
	if !expandShortcuts(qv) {
		return
	}

	expanded, err := qi.expandConnectedType(ctx, qv, q.Object())
	if err != nil {
		qi.env.logger().Warn("connected query dropped", "type", qv.String(QVConnectedType), "error", err)
		qi.env.Metrics.Warn(metrics.WarnInvalidQuery)
		q.SetVars(types.QueryVars{"year": impossibleYear})
		return
	}

	q.SetVars(expanded)
	if iq, ok := q.(*storage.ItemQuery); ok {
		iq.IsArchive = true
	}
}

// expandConnectedType turns the public connected_* vars into the opposite
// side's base vars plus the internal p2p:* vars.
func (qi *QueryIntegration) expandConnectedType(ctx context.Context, qv types.QueryVars, object string) (types.QueryVars, error) {
	name := qv.String(QVConnectedType)
	if name == "" {
		return nil, fmt.Errorf("%w: connected items given without connected_type", ErrUnknownConnectionType)
	}
	ct, ok := qi.registry.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownConnectionType, name)
	}

	items := qv[QVConnectedItems]
	anyItems := false
	if s, ok := items.(string); ok && s == ConnectedAny {
		anyItems = true
	}

	var (
		d   *Directed
		err error
	)
	switch {
	case qv.Has(QVConnectedDirection):
		d, err = ct.SetDirection(types.Direction(qv.String(QVConnectedDirection)))
	case anyItems:
		// The query's own objects are the results: they sit on the side
		// opposite the direction.
		d, err = ct.ResolveDirection(ctx, resultProbe(qv, object))
		if err == nil {
			d, err = ct.SetDirection(d.Direction().Opposite())
		}
	default:
		d, err = ct.ResolveDirection(ctx, items)
	}
	if err != nil {
		return nil, err
	}

	side := d.OppositeSide()
	if side.QueryObject() != object {
		return nil, fmt.Errorf("%w: %q lists %s, not %s", ErrObjectMismatch, name, side.QueryObject(), object)
	}

	out := types.MergeQueryVars(side.BaseQueryVars(), side.TranslateQueryVars(qv))
	if object == types.ObjectPost {
		out["suppress_filters"] = false
	}
	for _, key := range []string{QVConnectedType, QVConnectedItems, QVConnectedDirection, QVConnectedMeta} {
		delete(out, key)
	}

	out[qvP2PType] = ct.Name()
	out[qvP2PDirection] = string(d.Direction())
	if anyItems {
		out[qvP2PItems] = ConnectedAny
	} else {
		ids := types.ToIDs(items)
		if len(ids) == 0 {
			return nil, fmt.Errorf("%w: no connected items given", storage.ErrInvalidInput)
		}
		out[qvP2PItems] = ids
	}
	if qv.Has(QVConnectedMeta) {
		out[qvP2PMeta] = metaFilter(qv[QVConnectedMeta])
	}
	return out, nil
}

// resultProbe stands for "an object of this query" when recognizing sides.
func resultProbe(qv types.QueryVars, object string) interface{} {
	if object == types.ObjectUser {
		return &types.User{}
	}
	if postType := qv.Strings("post_type"); len(postType) > 0 {
		return postType
	}
	return "post"
}

func (qi *QueryIntegration) clauses(_ context.Context, c storage.Clauses, q storage.Query) storage.Clauses {
	cq, ok := readConnectedQuery(q.Vars())
	if !ok {
		return c
	}
	mainID, ok := mainIDColumns[q.Object()]
	if !ok {
		return c
	}

	q.State()[stateRewritten] = true
	qi.env.Metrics.Rewritten(q.Object())
	return alterClauses(c, cq, mainID)
}

// results loads the metadata of every fetched connection in one batch.
func (qi *QueryIntegration) results(ctx context.Context, q storage.Query, objects []types.Object) {
	if len(objects) == 0 || q.State()[stateRewritten] != true {
		return
	}
	if qi.env.Host == nil || qi.env.Host.Meta == nil {
		return
	}

	ids := make([]int64, 0, len(objects))
	for _, obj := range objects {
		if id := obj.P2P().P2PID; id > 0 {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return
	}

	qi.env.Metrics.MetaCacheWarm()
	if err := qi.env.Host.Meta.WarmMetaCache(ctx, "p2p", ids); err != nil {
		qi.env.logger().Warn("failed to warm connection meta cache", "error", err)
	}
}
