package p2p

import (
	"context"
	"errors"

	"github.com/scrypster/p2p/internal/storage"
	"github.com/scrypster/p2p/pkg/types"
)

// UserPageSize is the page size of user sides when p2p:per_page is unset.
const UserPageSize = 10

// UserSide is a side made of user accounts.
type UserSide struct {
	host      *storage.Host
	queryVars types.QueryVars
}

// NewUserSide builds a user side.
func NewUserSide(qv types.QueryVars, host *storage.Host) *UserSide {
	return &UserSide{host: host, queryVars: qv.Clone()}
}

func (s *UserSide) Object() string      { return types.ObjectUser }
func (s *UserSide) QueryObject() string { return types.ObjectUser }

func (s *UserSide) BaseQueryVars() types.QueryVars {
	return s.queryVars.Clone()
}

func (s *UserSide) ConnectableQueryVars(extra types.QueryVars) types.QueryVars {
	return types.MergeQueryVars(s.TranslateQueryVars(extra), s.BaseQueryVars())
}

// TranslateQueryVars wraps searches in "*" wildcards and turns pages into
// number/offset, since the user engine has no notion of pages.
func (s *UserSide) TranslateQueryVars(qv types.QueryVars) types.QueryVars {
	out := qv.Clone()

	if out.Has("p2p:exclude") {
		out["exclude"] = out.Pluck("p2p:exclude")
	}
	if out.Has("p2p:include") {
		out["include"] = out.Pluck("p2p:include")
	}

	if out.Has("p2p:search") {
		if term := out.String("p2p:search"); term != "" {
			out["search"] = "*" + term + "*"
		}
		delete(out, "p2p:search")
	}

	perPage := UserPageSize
	if out.Has("p2p:per_page") {
		if n := out.Int("p2p:per_page"); n > 0 {
			perPage = n
		}
		delete(out, "p2p:per_page")
	}
	if out.Has("p2p:page") {
		if page := out.Int("p2p:page"); page > 0 {
			out["number"] = perPage
			out["offset"] = perPage * (page - 1)
		}
		delete(out, "p2p:page")
	}

	return out
}

// ItemRecognize only accepts user objects: bare ids are ambiguous between
// items and users.
func (s *UserSide) ItemRecognize(_ context.Context, candidate interface{}) bool {
	u, ok := firstCandidate(candidate).(*types.User)
	return ok && u != nil
}

func (s *UserSide) ItemExists(ctx context.Context, id int64) bool {
	_, err := s.host.Store.GetUser(ctx, id)
	return err == nil
}

func (s *UserSide) ItemID(ctx context.Context, candidate interface{}) (int64, bool) {
	if u, ok := candidate.(*types.User); ok {
		if u == nil {
			return 0, false
		}
		return u.ID, true
	}
	id, ok := candidateID(candidate)
	if !ok {
		return 0, false
	}
	u, err := s.host.Store.GetUser(ctx, id)
	if err != nil {
		return 0, false
	}
	return u.ID, true
}

func (s *UserSide) ItemTitle(obj types.Object) string {
	if u, ok := obj.(*types.User); ok {
		return u.DisplayName
	}
	return ""
}

func (s *UserSide) Desc() string  { return "Users" }
func (s *UserSide) Title() string { return "Users" }

func (s *UserSide) Labels() types.Labels {
	return types.Labels{
		Name:         "Users",
		SingularName: "User",
		SearchItems:  "Search Users",
		NotFound:     "No users found.",
	}
}

func (s *UserSide) CheckCapability(ctx context.Context) bool {
	return s.host.Caps.CurrentUserCan(ctx, "list_users")
}

// DoQuery runs qv on the host user engine.
func (s *UserSide) DoQuery(ctx context.Context, qv types.QueryVars) (*storage.UserQuery, error) {
	if s.host.Users == nil {
		return nil, errors.New("p2p: no user querier configured")
	}
	return s.host.Users.QueryUsers(ctx, qv)
}

// AbstractQuery derives pages from the total and the number/offset the
// query ran with.
func (s *UserSide) AbstractQuery(q *storage.UserQuery) *List {
	pageSize := q.QueryVars.Int("number")
	if pageSize <= 0 {
		pageSize = UserPageSize
	}
	return &List{
		Items:       q.Objects(),
		CurrentPage: q.QueryVars.Int("offset")/pageSize + 1,
		TotalPages:  (q.Total + pageSize - 1) / pageSize,
	}
}

func (s *UserSide) Query(ctx context.Context, qv types.QueryVars) (*List, error) {
	q, err := s.DoQuery(ctx, qv)
	if err != nil {
		return nil, err
	}
	return s.AbstractQuery(q), nil
}
