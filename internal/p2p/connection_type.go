package p2p

import (
	"context"
	"fmt"

	"github.com/scrypster/p2p/internal/metrics"
	"github.com/scrypster/p2p/internal/storage"
	"github.com/scrypster/p2p/pkg/types"
)

// pagingVars are dropped from EachConnected's extra vars: the batch query
// must return every connection.
var pagingVars = []string{
	"showposts", "posts_per_page", "posts_per_archive_page",
	"paged", "p2p:page", "p2p:per_page", "number", "offset",
}

// ConnectionType is a named relationship between two sides. It is immutable
// after construction and safe for concurrent use.
type ConnectionType struct {
	name            string
	object          map[types.Direction]string
	side            map[types.Direction]Side
	cardinality     map[types.Direction]types.Cardinality
	title           map[types.Direction]string
	labels          map[types.Direction]types.Labels
	indeterminate   bool
	selfConnections bool
	reciprocal      bool
	extra           map[string]interface{}

	env Env
}

// NewConnectionType builds a connection type from cfg. Name must be set;
// Registry.Register generates one when it isn't.
func NewConnectionType(cfg Config, env Env) (*ConnectionType, error) {
	cfg = cfg.normalize()
	if cfg.Name == "" {
		return nil, fmt.Errorf("p2p: connection type name is required")
	}

	ct := &ConnectionType{
		name:        cfg.Name,
		object:      map[types.Direction]string{types.DirectionFrom: cfg.FromObject, types.DirectionTo: cfg.ToObject},
		side:        make(map[types.Direction]Side, 2),
		cardinality: make(map[types.Direction]types.Cardinality, 2),
		title:       make(map[types.Direction]string, 2),
		labels:      make(map[types.Direction]types.Labels, 2),
		reciprocal:  cfg.Reciprocal,
		extra:       make(map[string]interface{}, len(cfg.Extra)),
		env:         env,
	}

	queryVars := map[types.Direction]types.QueryVars{
		types.DirectionFrom: cfg.FromQueryVars,
		types.DirectionTo:   cfg.ToQueryVars,
	}
	for _, dir := range types.Directions {
		side, err := NewSide(ct.object[dir], queryVars[dir], env.Host)
		if err != nil {
			return nil, fmt.Errorf("p2p: connection type %q, %s side: %w", cfg.Name, dir, err)
		}
		ct.side[dir] = side
	}

	if ct.object[types.DirectionFrom] == types.ObjectPost && ct.object[types.DirectionTo] == types.ObjectPost {
		from := ct.side[types.DirectionFrom].(*PostSide).postTypes
		to := ct.side[types.DirectionTo].(*PostSide).postTypes
		for _, t := range from {
			if containsString(to, t) {
				ct.indeterminate = true
				break
			}
		}
	}
	ct.selfConnections = ct.object[types.DirectionFrom] != ct.object[types.DirectionTo]

	ct.cardinality[types.DirectionFrom], ct.cardinality[types.DirectionTo] = types.ParseCardinality(cfg.Cardinality)

	ct.labels[types.DirectionFrom] = ct.side[types.DirectionFrom].Labels()
	ct.labels[types.DirectionTo] = ct.side[types.DirectionTo].Labels()
	if cfg.FromLabels != nil {
		ct.labels[types.DirectionFrom] = *cfg.FromLabels
	}
	if cfg.ToLabels != nil {
		ct.labels[types.DirectionTo] = *cfg.ToLabels
	}

	ct.title[types.DirectionFrom], ct.title[types.DirectionTo] = cfg.Title.From, cfg.Title.To
	if cfg.Title.Text != "" {
		ct.title[types.DirectionFrom], ct.title[types.DirectionTo] = cfg.Title.Text, cfg.Title.Text
	}
	for _, dir := range types.Directions {
		if ct.title[dir] == "" {
			ct.title[dir] = "Connected " + ct.side[dir.Opposite()].Title()
		}
	}

	for k, v := range cfg.Extra {
		ct.extra[k] = v
	}

	return ct, nil
}

// Name returns the registered name.
func (ct *ConnectionType) Name() string { return ct.name }

// Object returns the object kind of the side at dir.
func (ct *ConnectionType) Object(dir types.Direction) string { return ct.object[dir] }

// Side returns the side at dir (from or to).
func (ct *ConnectionType) Side(dir types.Direction) Side { return ct.side[dir] }

// Cardinality returns the cardinality of the side at dir.
func (ct *ConnectionType) Cardinality(dir types.Direction) types.Cardinality {
	return ct.cardinality[dir]
}

// Title returns the title shown on the side at dir.
func (ct *ConnectionType) Title(dir types.Direction) string { return ct.title[dir] }

// Labels returns the labels of the side at dir.
func (ct *ConnectionType) Labels(dir types.Direction) types.Labels { return ct.labels[dir] }

// Indeterminate reports whether both sides can hold the same item type, so
// an item's side can't be told from its type.
func (ct *ConnectionType) Indeterminate() bool { return ct.indeterminate }

// SelfConnections reports whether the two sides have different object kinds.
func (ct *ConnectionType) SelfConnections() bool { return ct.selfConnections }

// Reciprocal reports whether connections of an indeterminate type are
// symmetric.
func (ct *ConnectionType) Reciprocal() bool { return ct.reciprocal }

// Extra returns an attribute that isn't part of the core config.
func (ct *ConnectionType) Extra(key string) (interface{}, bool) {
	v, ok := ct.extra[key]
	return v, ok
}

// SetDirection returns a directed handle for dir.
func (ct *ConnectionType) SetDirection(dir types.Direction) (*Directed, error) {
	if !dir.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDirection, dir)
	}
	return &Directed{ct: ct, direction: dir}, nil
}

// FindDirection returns the direction whose side recognizes candidate. The
// from side is tried first. Indeterminate types resolve to any when
// reciprocal and to from otherwise.
func (ct *ConnectionType) FindDirection(ctx context.Context, candidate interface{}) (types.Direction, bool) {
	candidate = firstCandidate(candidate)
	for _, dir := range types.Directions {
		if !ct.side[dir].ItemRecognize(ctx, candidate) {
			continue
		}
		if ct.indeterminate {
			if ct.reciprocal {
				return types.DirectionAny, true
			}
			return types.DirectionFrom, true
		}
		return dir, true
	}
	return "", false
}

// ResolveDirection is FindDirection returning a directed handle. It fails
// with ErrAmbiguousDirection when no side recognizes candidate.
func (ct *ConnectionType) ResolveDirection(ctx context.Context, candidate interface{}) (*Directed, error) {
	dir, ok := ct.FindDirection(ctx, candidate)
	if !ok {
		ct.env.logger().Warn("can't determine direction", "type", ct.name, "item", fmt.Sprint(firstCandidate(candidate)))
		ct.env.Metrics.Warn(metrics.WarnAmbiguousDirection)
		return nil, fmt.Errorf("%w for %q type", ErrAmbiguousDirection, ct.name)
	}
	return &Directed{ct: ct, direction: dir}, nil
}

// GetConnected lists the items connected to items, resolving the direction
// from them.
func (ct *ConnectionType) GetConnected(ctx context.Context, items interface{}, extra types.QueryVars) (*List, error) {
	d, err := ct.ResolveDirection(ctx, items)
	if err != nil {
		return nil, err
	}
	return d.GetConnected(ctx, items, extra)
}

// GetRelated returns the items sharing a connection partner with items:
// their partners' partners, minus items themselves. It runs two queries.
func (ct *ConnectionType) GetRelated(ctx context.Context, items interface{}, extra types.QueryVars) (*List, error) {
	d, err := ct.ResolveDirection(ctx, items)
	if err != nil {
		return nil, err
	}
	ids := types.ToIDs(items)

	hop := extra.Clone()
	delete(hop, "p2p:page")
	delete(hop, "p2p:per_page")
	hop["fields"] = "ids"
	hop["nopaging"] = true
	partners, err := d.GetConnected(ctx, ids, hop)
	if err != nil {
		return nil, err
	}
	if partners.Empty() {
		return &List{Items: []types.Object{}, CurrentPage: 1}, nil
	}

	back, err := ct.ResolveDirection(ctx, partners.Items)
	if err != nil {
		return nil, err
	}

	related := extra.Clone()
	delete(related, "fields")
	related["p2p:exclude"] = append(types.ToIDs(related["p2p:exclude"]), ids...)
	return back.GetConnected(ctx, partners.IDs(), related)
}

// EachConnected attaches to every item of q the objects connected to it,
// under item.Connected[prop] ("connected" when prop is empty). The
// direction is resolved from the query's post type and all connections are
// fetched with a single query.
func (ct *ConnectionType) EachConnected(ctx context.Context, q *storage.ItemQuery, extra types.QueryVars, prop string) error {
	if q == nil || len(q.Items) == 0 {
		return nil
	}
	postType := q.QueryVars.Strings("post_type")
	if len(postType) == 0 {
		postType = []string{"post"}
	}
	d, err := ct.ResolveDirection(ctx, postType)
	if err != nil {
		return err
	}
	return ct.eachConnected(ctx, d, q.Items, extra, prop)
}

// EachConnectedItems is EachConnected for a plain list of items; the
// direction is resolved from the first one.
func (ct *ConnectionType) EachConnectedItems(ctx context.Context, items []*types.Item, extra types.QueryVars, prop string) error {
	if len(items) == 0 {
		return nil
	}
	d, err := ct.ResolveDirection(ctx, items)
	if err != nil {
		return err
	}
	return ct.eachConnected(ctx, d, items, extra, prop)
}

func (ct *ConnectionType) eachConnected(ctx context.Context, d *Directed, items []*types.Item, extra types.QueryVars, prop string) error {
	if prop == "" {
		prop = "connected"
	}

	owners := make(map[int64]*types.Item, len(items))
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		item.ResetConnected(prop)
		if _, seen := owners[item.ID]; !seen {
			ids = append(ids, item.ID)
		}
		owners[item.ID] = item
	}

	qv := extra.Clone()
	for _, key := range pagingVars {
		if qv.Has(key) {
			ct.env.logger().Warn("paging is not supported", "type", ct.name, "key", key)
			ct.env.Metrics.Warn(metrics.WarnIgnoredPaging)
			delete(qv, key)
		}
	}
	qv["nopaging"] = true
	qv[qvPerConnection] = true

	connected, err := d.GetConnected(ctx, ids, qv)
	if err != nil {
		return err
	}

	for _, obj := range connected.Items {
		c := obj.P2P()
		var outer int64
		switch obj.ObjectID() {
		case c.P2PFrom:
			outer = c.P2PTo
		case c.P2PTo:
			outer = c.P2PFrom
		default:
			ct.corrupted(obj)
			continue
		}
		owner, ok := owners[outer]
		if !ok {
			ct.corrupted(obj)
			continue
		}
		owner.AppendConnected(prop, obj)
	}
	return nil
}

func (ct *ConnectionType) corrupted(obj types.Object) {
	ct.env.logger().Warn("corrupted data", "type", ct.name, "item", obj.ObjectID(), "p2p_id", obj.P2P().P2PID)
	ct.env.Metrics.Warn(metrics.WarnCorruptedData)
}

// Desc is a one-line description such as "Posts → Pages (Connected Pages)".
func (ct *ConnectionType) Desc() string {
	arrow := "→"
	if ct.indeterminate {
		arrow = "↔"
	}
	desc := fmt.Sprintf("%s %s %s", ct.side[types.DirectionFrom].Desc(), arrow, ct.side[types.DirectionTo].Desc())
	if title := ct.title[types.DirectionFrom]; title != "" {
		desc += " (" + title + ")"
	}
	return desc
}
