package p2p

import (
	"fmt"
	"sort"
	"strings"

	"github.com/scrypster/p2p/internal/storage"
	"github.com/scrypster/p2p/pkg/types"
)

// Public query vars understood by both item and user queries.
const (
	QVConnectedType      = "connected_type"
	QVConnectedItems     = "connected_items"
	QVConnectedDirection = "connected_direction"
	QVConnectedMeta      = "connected_meta"

	// ConnectedAny as connected_items lists everything with a connection.
	ConnectedAny = "any"
)

// Internal vars left behind by the parse step for the clauses step.
const (
	qvP2PType       = "p2p:type"
	qvP2PItems      = "p2p:items"
	qvP2PDirection  = "p2p:direction"
	qvP2PMeta       = "p2p:meta"
	qvPerConnection = "p2p:per_connection"
)

// impossibleYear redirects a query that can't be expanded to an empty result.
const impossibleYear = 2525

// shortcuts expand into connected_items plus connected_direction.
var shortcuts = []struct {
	key       string
	direction types.Direction
}{
	{"connected", types.DirectionAny},
	{"connected_to", types.DirectionTo},
	{"connected_from", types.DirectionFrom},
}

// expandShortcuts rewrites the shortcut vars in place and reports whether qv
// asks for a connected query at all. Items without a connected_type still
// count: the query can't be satisfied and must match nothing.
func expandShortcuts(qv types.QueryVars) bool {
	for _, s := range shortcuts {
		if qv.Has(s.key) {
			qv[QVConnectedItems] = qv.Pluck(s.key)
			qv[QVConnectedDirection] = s.direction
			break
		}
	}
	if qv.Has(QVConnectedType) && !qv.Has(QVConnectedItems) {
		qv[QVConnectedItems] = ConnectedAny
	}
	return qv.Has(QVConnectedItems)
}

// connectedQuery is the parsed form of the internal vars.
type connectedQuery struct {
	typeName      string
	direction     types.Direction
	anyItems      bool
	items         []int64
	meta          map[string]string
	perConnection bool
}

func readConnectedQuery(qv types.QueryVars) (connectedQuery, bool) {
	if qv.String(qvP2PType) == "" {
		return connectedQuery{}, false
	}
	cq := connectedQuery{
		typeName:      qv.String(qvP2PType),
		direction:     types.Direction(qv.String(qvP2PDirection)),
		perConnection: qv.Bool(qvPerConnection),
	}
	if s, ok := qv[qvP2PItems].(string); ok && s == ConnectedAny {
		cq.anyItems = true
	} else {
		cq.items = qv.IDs(qvP2PItems)
		if len(cq.items) == 0 {
			return connectedQuery{}, false
		}
	}
	if meta, ok := qv[qvP2PMeta].(map[string]string); ok {
		cq.meta = meta
	}
	return cq, true
}

// metaFilter normalizes connected_meta into key -> value.
func metaFilter(v interface{}) map[string]string {
	out := make(map[string]string)
	switch m := v.(type) {
	case map[string]string:
		for k, val := range m {
			out[k] = val
		}
	case map[string]interface{}:
		for k, val := range m {
			out[k] = fmt.Sprint(val)
		}
	case types.QueryVars:
		for k := range m {
			out[k] = m.String(k)
		}
	}
	return out
}

// alterClauses joins the relationship table onto the main query. mainID is
// the qualified ID column of the main table.
func alterClauses(c storage.Clauses, cq connectedQuery, mainID string) storage.Clauses {
	var on []string
	var args []interface{}

	side := func(match, other string) {
		cond := fmt.Sprintf("p2p.%s = %s", match, mainID)
		var condArgs []interface{}
		if !cq.anyItems {
			cond += fmt.Sprintf(" AND p2p.%s IN (%s)", other, placeholders(len(cq.items)))
			for _, id := range cq.items {
				condArgs = append(condArgs, id)
			}
		}
		on = append(on, "("+cond+")")
		args = append(args, condArgs...)
	}
	switch cq.direction {
	case types.DirectionFrom:
		side("p2p_to", "p2p_from")
	case types.DirectionTo:
		side("p2p_from", "p2p_to")
	default:
		side("p2p_to", "p2p_from")
		side("p2p_from", "p2p_to")
	}

	c.Join += " INNER JOIN p2p ON p2p.p2p_type = ? AND (" + strings.Join(on, " OR ") + ")"
	c.JoinArgs = append(c.JoinArgs, cq.typeName)
	c.JoinArgs = append(c.JoinArgs, args...)

	keys := make([]string, 0, len(cq.meta))
	for k := range cq.meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for i, k := range keys {
		alias := fmt.Sprintf("p2pm%d", i)
		c.Join += fmt.Sprintf(" INNER JOIN p2pmeta %[1]s ON %[1]s.p2p_id = p2p.p2p_id AND %[1]s.meta_key = ? AND %[1]s.meta_value = ?", alias)
		c.JoinArgs = append(c.JoinArgs, k, cq.meta[k])
	}

	if cq.perConnection {
		c.Fields += ", p2p.p2p_id, p2p.p2p_from, p2p.p2p_to, p2p.p2p_type"
		return c
	}

	// One row per result: an object connected to several of the given
	// items, or matched by both directions, is listed once.
	c.Fields += ", MIN(p2p.p2p_id) AS p2p_id"
	if c.GroupBy == "" {
		c.GroupBy = mainID
	} else {
		c.GroupBy += ", " + mainID
	}
	return c
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
