package p2p

import (
	"context"

	"github.com/scrypster/p2p/pkg/types"
)

// Directed is a connection type bound to a direction. The direction names
// the side the given items sit on; results come from the opposite side.
type Directed struct {
	ct        *ConnectionType
	direction types.Direction
}

// Type returns the underlying connection type.
func (d *Directed) Type() *ConnectionType { return d.ct }

// Direction returns the bound direction.
func (d *Directed) Direction() types.Direction { return d.direction }

// Side returns the side the given items sit on. Any maps to the from side.
func (d *Directed) Side() Side {
	if d.direction == types.DirectionTo {
		return d.ct.side[types.DirectionTo]
	}
	return d.ct.side[types.DirectionFrom]
}

// OppositeSide returns the side results are listed from. Any maps to the to
// side.
func (d *Directed) OppositeSide() Side {
	if d.direction == types.DirectionTo {
		return d.ct.side[types.DirectionFrom]
	}
	return d.ct.side[types.DirectionTo]
}

// ConnectedQueryVars returns the query vars listing the objects connected
// to items. Items may be "any" to list every connected object.
func (d *Directed) ConnectedQueryVars(items interface{}, extra types.QueryVars) types.QueryVars {
	qv := d.OppositeSide().TranslateQueryVars(extra)
	qv[QVConnectedType] = d.ct.name
	qv[QVConnectedItems] = items
	qv[QVConnectedDirection] = d.direction
	return qv
}

// GetConnected lists the objects connected to items.
func (d *Directed) GetConnected(ctx context.Context, items interface{}, extra types.QueryVars) (*List, error) {
	d.ct.env.Metrics.ConnectedQuery(d.ct.name)
	return d.OppositeSide().Query(ctx, d.ConnectedQueryVars(items, extra))
}

// GetConnectable lists what could be connected to item: a page of objects
// from the opposite side, item itself excluded.
func (d *Directed) GetConnectable(ctx context.Context, item interface{}, extra types.QueryVars) (*List, error) {
	side := d.OppositeSide()
	qv := extra.Clone()
	if side.QueryObject() != d.Side().QueryObject() {
		return side.Query(ctx, side.ConnectableQueryVars(qv))
	}
	if id, ok := d.Side().ItemID(ctx, item); ok {
		qv["p2p:exclude"] = append(types.ToIDs(qv["p2p:exclude"]), id)
	}
	return side.Query(ctx, side.ConnectableQueryVars(qv))
}
