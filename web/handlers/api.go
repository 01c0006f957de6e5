package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/scrypster/p2p/internal/p2p"
	"github.com/scrypster/p2p/internal/storage"
	"github.com/scrypster/p2p/pkg/types"
)

// BreakerState reports the state of the circuit guarding the host engine.
type BreakerState interface {
	State() string
}

// API serves connection types and connected-object listings.
type API struct {
	registry *p2p.Registry
	host     *storage.Host
	logger   *slog.Logger
	breaker  BreakerState
}

// NewAPI creates the API handlers. logger may be nil.
func NewAPI(registry *p2p.Registry, host *storage.Host, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{registry: registry, host: host, logger: logger}
}

// SetBreaker exposes the breaker state on /health.
func (a *API) SetBreaker(b BreakerState) {
	a.breaker = b
}

// Health handles GET /health.
func (a *API) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Types: len(a.registry.All())}
	status := http.StatusOK
	if a.breaker != nil {
		resp.Breaker = a.breaker.State()
		if resp.Breaker == "open" {
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
		}
	}
	respondJSON(w, status, resp)
}

// ListTypes handles GET /api/types.
func (a *API) ListTypes(w http.ResponseWriter, r *http.Request) {
	all := a.registry.All()
	resp := TypesResponse{Types: make([]ConnectionTypeResponse, 0, len(all)), Total: len(all)}
	for _, ct := range all {
		resp.Types = append(resp.Types, newConnectionTypeResponse(ct))
	}
	respondJSON(w, http.StatusOK, resp)
}

// GetType handles GET /api/types/{name}.
func (a *API) GetType(w http.ResponseWriter, r *http.Request) {
	ct, ok := a.connectionType(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, newConnectionTypeResponse(ct))
}

// Connected handles GET /api/types/{name}/connected.
//
// Query parameters: item or user (repeatable, comma separated), direction,
// page, per_page, search.
func (a *API) Connected(w http.ResponseWriter, r *http.Request) {
	ct, ok := a.connectionType(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	candidates, err := a.candidates(ctx, r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	d, err := a.directed(ctx, r, ct, candidates)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	list, err := d.GetConnected(ctx, candidates, listVars(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, newListResponse(ct.Name(), d.Direction(), list))
}

// Related handles GET /api/types/{name}/related.
func (a *API) Related(w http.ResponseWriter, r *http.Request) {
	ct, ok := a.connectionType(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	candidates, err := a.candidates(ctx, r)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	list, err := ct.GetRelated(ctx, candidates, listVars(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, newListResponse(ct.Name(), "", list))
}

// Connectable handles GET /api/types/{name}/connectable. It lists the
// objects that could be attached to a single item or user.
func (a *API) Connectable(w http.ResponseWriter, r *http.Request) {
	ct, ok := a.connectionType(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	candidates, err := a.candidates(ctx, r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if len(candidates) != 1 {
		a.fail(w, r, fmt.Errorf("%w: connectable takes exactly one item or user", storage.ErrInvalidInput))
		return
	}
	d, err := a.directed(ctx, r, ct, candidates)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if !d.OppositeSide().CheckCapability(ctx) {
		respondError(w, http.StatusForbidden, "FORBIDDEN", "not allowed to edit "+d.OppositeSide().Title(), nil)
		return
	}

	list, err := d.GetConnectable(ctx, candidates[0], listVars(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, newListResponse(ct.Name(), d.Direction(), list))
}

// Items handles GET /api/items. Query parameters are passed to the host
// engine as query vars, so connected_type, connected_items and the
// connected/connected_to/connected_from shortcuts filter the listing.
// each=<type> attaches the objects connected through that type to every
// returned item under "connected".
func (a *API) Items(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	qv, err := a.queryVars(ctx, r, []string{"post_type", "post_status", "s", "orderby", "order"}, []string{"paged", "posts_per_page"})
	if err != nil {
		a.fail(w, r, err)
		return
	}

	q, err := a.host.Items.QueryItems(ctx, qv)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	if name := r.URL.Query().Get("each"); name != "" {
		ct, ok := a.registry.Get(name)
		if !ok {
			a.fail(w, r, fmt.Errorf("%w: %q", p2p.ErrUnknownConnectionType, name))
			return
		}
		if err := ct.EachConnected(ctx, q, nil, ""); err != nil {
			a.fail(w, r, err)
			return
		}
	}

	items := q.Items
	if items == nil {
		items = []*types.Item{}
	}
	respondJSON(w, http.StatusOK, ItemsResponse{
		Items:     items,
		Found:     q.FoundItems,
		MaxPages:  q.MaxPages,
		IsArchive: q.IsArchive,
	})
}

// Users handles GET /api/users with the same connected_* parameters as
// /api/items.
func (a *API) Users(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	qv, err := a.queryVars(ctx, r, []string{"search", "orderby", "order"}, []string{"number", "offset"})
	if err != nil {
		a.fail(w, r, err)
		return
	}

	q, err := a.host.Users.QueryUsers(ctx, qv)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	users := q.Results
	if users == nil {
		users = []*types.User{}
	}
	respondJSON(w, http.StatusOK, UsersResponse{Users: users, Total: q.Total})
}

func (a *API) connectionType(w http.ResponseWriter, r *http.Request) (*p2p.ConnectionType, bool) {
	name := chi.URLParam(r, "name")
	ct, ok := a.registry.Get(name)
	if !ok {
		respondError(w, http.StatusNotFound, "UNKNOWN_TYPE", "unknown connection type", map[string]interface{}{"name": name})
		return nil, false
	}
	return ct, true
}

// directed honours an explicit direction parameter and otherwise resolves
// the direction from the candidates.
func (a *API) directed(ctx context.Context, r *http.Request, ct *p2p.ConnectionType, candidates []types.Object) (*p2p.Directed, error) {
	if raw := r.URL.Query().Get("direction"); raw != "" {
		return ct.SetDirection(types.Direction(raw))
	}
	return ct.ResolveDirection(ctx, candidates)
}

// candidates loads the objects named by the item and user parameters.
func (a *API) candidates(ctx context.Context, r *http.Request) ([]types.Object, error) {
	q := r.URL.Query()
	var out []types.Object

	itemIDs, err := parseIDs(q["item"])
	if err != nil {
		return nil, err
	}
	for _, id := range itemIDs {
		item, err := a.host.Store.GetItem(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", id, err)
		}
		out = append(out, item)
	}

	userIDs, err := parseIDs(q["user"])
	if err != nil {
		return nil, err
	}
	for _, id := range userIDs {
		user, err := a.host.Store.GetUser(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("user %d: %w", id, err)
		}
		out = append(out, user)
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("%w: item or user is required", storage.ErrInvalidInput)
	}
	return out, nil
}

// queryVars turns request parameters into host query vars.
func (a *API) queryVars(ctx context.Context, r *http.Request, stringKeys, intKeys []string) (types.QueryVars, error) {
	q := r.URL.Query()
	qv := types.QueryVars{}

	for _, key := range append(stringKeys, p2p.QVConnectedType, p2p.QVConnectedDirection) {
		switch vals := splitValues(q[key]); len(vals) {
		case 0:
		case 1:
			qv[key] = vals[0]
		default:
			qv[key] = vals
		}
	}
	for _, key := range intKeys {
		if raw := q.Get(key); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				return nil, fmt.Errorf("%w: %s must be a number", storage.ErrInvalidInput, key)
			}
			qv[key] = n
		}
	}

	for _, key := range []string{p2p.QVConnectedItems, "connected", "connected_to", "connected_from"} {
		vals := splitValues(q[key])
		if len(vals) == 0 {
			continue
		}
		if len(vals) == 1 && vals[0] == p2p.ConnectedAny {
			qv[key] = p2p.ConnectedAny
			continue
		}
		ids, err := parseIDs(vals)
		if err != nil {
			return nil, err
		}
		qv[key] = ids
	}

	// Users are loaded up front: a bare id is always read as an item.
	if userIDs, err := parseIDs(q["connected_users"]); err != nil {
		return nil, err
	} else if len(userIDs) > 0 {
		users := make([]*types.User, 0, len(userIDs))
		for _, id := range userIDs {
			user, err := a.host.Store.GetUser(ctx, id)
			if err != nil {
				return nil, fmt.Errorf("user %d: %w", id, err)
			}
			users = append(users, user)
		}
		qv[p2p.QVConnectedItems] = users
	}

	meta := map[string]string{}
	for key, vals := range q {
		if strings.HasPrefix(key, "meta.") && len(vals) > 0 {
			meta[strings.TrimPrefix(key, "meta.")] = vals[0]
		}
	}
	if len(meta) > 0 {
		qv[p2p.QVConnectedMeta] = meta
	}
	return qv, nil
}

// listVars maps page, per_page and search onto the p2p: vocabulary.
func listVars(r *http.Request) types.QueryVars {
	q := r.URL.Query()
	extra := types.QueryVars{}
	if page := parseInt(q.Get("page"), 0); page > 0 {
		extra["p2p:page"] = page
	}
	if perPage := parseInt(q.Get("per_page"), 0); perPage > 0 {
		extra["p2p:per_page"] = perPage
	}
	if search := q.Get("search"); search != "" {
		extra["p2p:search"] = search
	}
	return extra
}

// fail maps err onto a status code and error code.
func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := errorStatus(err)
	if status >= http.StatusInternalServerError {
		a.logger.Warn("request failed", "path", r.URL.Path, "error", err)
	}
	respondError(w, status, code, err.Error(), nil)
}

func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, p2p.ErrUnknownConnectionType):
		return http.StatusNotFound, "UNKNOWN_TYPE"
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, p2p.ErrAmbiguousDirection):
		return http.StatusBadRequest, "AMBIGUOUS_DIRECTION"
	case errors.Is(err, p2p.ErrInvalidDirection):
		return http.StatusBadRequest, "INVALID_DIRECTION"
	case errors.Is(err, storage.ErrInvalidInput):
		return http.StatusBadRequest, "INVALID_INPUT"
	case errors.Is(err, storage.ErrUnavailable):
		return http.StatusServiceUnavailable, "UNAVAILABLE"
	}
	return http.StatusInternalServerError, "INTERNAL"
}

// Helper functions

// splitValues flattens repeated and comma separated parameter values.
func splitValues(vals []string) []string {
	var out []string
	for _, v := range vals {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// parseIDs parses positive ids from repeated or comma separated values.
func parseIDs(vals []string) ([]int64, error) {
	var ids []int64
	for _, raw := range splitValues(vals) {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("%w: bad id %q", storage.ErrInvalidInput, raw)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// parseInt parses an integer from a string, returning defaultValue if parsing fails.
func parseInt(s string, defaultValue int) int {
	if s == "" {
		return defaultValue
	}
	val, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return val
}

// respondJSON writes a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

// respondError writes an ErrorResponse.
func respondError(w http.ResponseWriter, statusCode int, code, message string, details map[string]interface{}) {
	respondJSON(w, statusCode, ErrorResponse{
		Error:   message,
		Code:    code,
		Details: details,
	})
}
