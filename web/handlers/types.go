package handlers

import (
	"github.com/scrypster/p2p/internal/p2p"
	"github.com/scrypster/p2p/pkg/types"
)

// ErrorResponse is the standard error response format for the API.
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// HealthResponse is the response format for GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Types   int    `json:"types"`
	Breaker string `json:"breaker,omitempty"`
}

// SideResponse describes one end of a connection type.
type SideResponse struct {
	Object      string            `json:"object"`
	Desc        string            `json:"desc"`
	Title       string            `json:"title"`
	Labels      types.Labels      `json:"labels"`
	Cardinality types.Cardinality `json:"cardinality"`
}

// ConnectionTypeResponse is the response format for GET /api/types/{name}.
type ConnectionTypeResponse struct {
	Name            string       `json:"name"`
	Desc            string       `json:"desc"`
	From            SideResponse `json:"from"`
	To              SideResponse `json:"to"`
	Indeterminate   bool         `json:"indeterminate"`
	Reciprocal      bool         `json:"reciprocal"`
	SelfConnections bool         `json:"self_connections"`
}

// TypesResponse is the response format for GET /api/types.
type TypesResponse struct {
	Types []ConnectionTypeResponse `json:"types"`
	Total int                      `json:"total"`
}

// ListResponse is a page of connected, related or connectable objects.
type ListResponse struct {
	Type        string         `json:"type"`
	Direction   string         `json:"direction,omitempty"`
	Items       []types.Object `json:"items"`
	CurrentPage int            `json:"current_page"`
	TotalPages  int            `json:"total_pages"`
}

// ItemsResponse is the response format for GET /api/items.
type ItemsResponse struct {
	Items     []*types.Item `json:"items"`
	Found     int           `json:"found"`
	MaxPages  int           `json:"max_pages"`
	IsArchive bool          `json:"is_archive"`
}

// UsersResponse is the response format for GET /api/users.
type UsersResponse struct {
	Users []*types.User `json:"users"`
	Total int           `json:"total"`
}

func newConnectionTypeResponse(ct *p2p.ConnectionType) ConnectionTypeResponse {
	side := func(dir types.Direction) SideResponse {
		return SideResponse{
			Object:      ct.Object(dir),
			Desc:        ct.Side(dir).Desc(),
			Title:       ct.Title(dir),
			Labels:      ct.Labels(dir),
			Cardinality: ct.Cardinality(dir),
		}
	}
	return ConnectionTypeResponse{
		Name:            ct.Name(),
		Desc:            ct.Desc(),
		From:            side(types.DirectionFrom),
		To:              side(types.DirectionTo),
		Indeterminate:   ct.Indeterminate(),
		Reciprocal:      ct.Reciprocal(),
		SelfConnections: ct.SelfConnections(),
	}
}

func newListResponse(name string, dir types.Direction, list *p2p.List) ListResponse {
	resp := ListResponse{Type: name, Direction: string(dir), Items: []types.Object{}}
	if list == nil {
		return resp
	}
	if list.Items != nil {
		resp.Items = list.Items
	}
	resp.CurrentPage = list.CurrentPage
	resp.TotalPages = list.TotalPages
	return resp
}
