package storage

import (
	"errors"

	"github.com/scrypster/p2p/pkg/types"
)

var (
	// ErrNotFound indicates that the requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnavailable indicates the backend is refusing work, usually because
	// its circuit breaker is open.
	ErrUnavailable = errors.New("backend unavailable")
)

// Query is the view of an in-flight query handed to pipeline hooks.
type Query interface {
	// Object returns types.ObjectPost for item queries and types.ObjectUser
	// for user queries.
	Object() string

	// Vars returns the live query vars. Parse hooks may mutate them or
	// replace them with SetVars.
	Vars() types.QueryVars
	SetVars(qv types.QueryVars)

	// State is scratch space private to hooks, scoped to this query.
	State() map[string]interface{}
}

// ItemQuery is an executed item query.
type ItemQuery struct {
	QueryVars  types.QueryVars
	Items      []*types.Item
	FoundItems int // Rows matching before paging
	MaxPages   int // Pages at the requested page size (1 when unpaged)
	IsArchive  bool

	state map[string]interface{}
}

// NewItemQuery starts an item query with a copy of qv.
func NewItemQuery(qv types.QueryVars) *ItemQuery {
	return &ItemQuery{QueryVars: qv.Clone()}
}

func (q *ItemQuery) Object() string             { return types.ObjectPost }
func (q *ItemQuery) Vars() types.QueryVars      { return q.QueryVars }
func (q *ItemQuery) SetVars(qv types.QueryVars) { q.QueryVars = qv }

func (q *ItemQuery) State() map[string]interface{} {
	if q.state == nil {
		q.state = make(map[string]interface{})
	}
	return q.state
}

// Get returns a query var.
func (q *ItemQuery) Get(key string) interface{} {
	return q.QueryVars[key]
}

// Objects returns Items as a list of Objects.
func (q *ItemQuery) Objects() []types.Object {
	out := make([]types.Object, len(q.Items))
	for i, item := range q.Items {
		out[i] = item
	}
	return out
}

// UserQuery is an executed user query.
type UserQuery struct {
	QueryVars types.QueryVars
	Results   []*types.User
	Total     int // Users matching before number/offset

	state map[string]interface{}
}

// NewUserQuery starts a user query with a copy of qv.
func NewUserQuery(qv types.QueryVars) *UserQuery {
	return &UserQuery{QueryVars: qv.Clone()}
}

func (q *UserQuery) Object() string             { return types.ObjectUser }
func (q *UserQuery) Vars() types.QueryVars      { return q.QueryVars }
func (q *UserQuery) SetVars(qv types.QueryVars) { q.QueryVars = qv }

func (q *UserQuery) State() map[string]interface{} {
	if q.state == nil {
		q.state = make(map[string]interface{})
	}
	return q.state
}

// Objects returns Results as a list of Objects.
func (q *UserQuery) Objects() []types.Object {
	out := make([]types.Object, len(q.Results))
	for i, u := range q.Results {
		out[i] = u
	}
	return out
}

// Clauses are the SQL fragments of a SELECT assembled by the engine before
// execution. Placeholders are written as "?" and bound from JoinArgs then
// WhereArgs, in that order.
type Clauses struct {
	Fields  string // Select list, e.g. "items.*"
	Join    string // Appended after FROM
	Where   string // Appended after "WHERE 1=1", starts with " AND"
	GroupBy string // Without the GROUP BY keyword
	OrderBy string // Without the ORDER BY keyword
	Limits  string // "LIMIT n OFFSET m" or ""

	JoinArgs  []interface{}
	WhereArgs []interface{}
}

// Args returns the bind arguments in placeholder order.
func (c Clauses) Args() []interface{} {
	args := make([]interface{}, 0, len(c.JoinArgs)+len(c.WhereArgs))
	args = append(args, c.JoinArgs...)
	return append(args, c.WhereArgs...)
}
