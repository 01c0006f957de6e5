package sqlstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/p2p/internal/storage"
	"github.com/scrypster/p2p/internal/storage/sqlite"
	"github.com/scrypster/p2p/internal/storage/sqlstore"
	"github.com/scrypster/p2p/pkg/types"
)

// newTestStore creates an in-memory SQLite store for testing.
func newTestStore(t *testing.T) *sqlstore.Store {
	t.Helper()
	store, err := sqlite.Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func insertItem(t *testing.T, store *sqlstore.Store, item *types.Item) *types.Item {
	t.Helper()
	require.NoError(t, store.InsertItem(context.Background(), item))
	return item
}

func itemIDs(items []*types.Item) []int64 {
	out := make([]int64, len(items))
	for i, item := range items {
		out[i] = item.ID
	}
	return out
}

func TestNew_RequiresDB(t *testing.T) {
	_, err := sqlstore.New(nil, sqlite.Dialect, nil)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestInsert_Validation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	assert.ErrorIs(t, store.InsertItem(ctx, &types.Item{Title: "untyped"}), storage.ErrInvalidInput)
	assert.ErrorIs(t, store.InsertUser(ctx, &types.User{}), storage.ErrInvalidInput)

	_, err := store.CreateConnection(ctx, "", 1, 2)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
	_, err = store.CreateConnection(ctx, "t", 0, 2)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
	assert.ErrorIs(t, store.AddConnectionMeta(ctx, 0, "k", "v"), storage.ErrInvalidInput)
}

func TestGetItemAndUser(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	date := time.Date(2020, 5, 1, 12, 0, 0, 0, time.UTC)
	item := insertItem(t, store, &types.Item{Type: "page", Title: "About", Date: date})
	assert.Equal(t, "publish", item.Status)

	got, err := store.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "page", got.Type)
	assert.Equal(t, "About", got.Title)
	assert.True(t, date.Equal(got.Date), got.Date)

	_, err = store.GetItem(ctx, 9999)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	u := &types.User{Login: "alice", Email: "alice@example.com"}
	require.NoError(t, store.InsertUser(ctx, u))
	assert.Equal(t, "alice", u.DisplayName)

	gotUser, err := store.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", gotUser.Email)

	_, err = store.GetUser(ctx, 9999)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestQueryItems_Filters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	post := insertItem(t, store, &types.Item{Type: "post", Title: "Hello world", Date: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)})
	draft := insertItem(t, store, &types.Item{Type: "post", Title: "Draft", Status: "draft"})
	page := insertItem(t, store, &types.Item{Type: "page", Title: "About"})
	media := insertItem(t, store, &types.Item{Type: "attachment", Title: "Photo", Status: "inherit", ParentID: post.ID})

	tests := []struct {
		name string
		qv   types.QueryVars
		want []int64
	}{
		{"defaults to published posts", nil, []int64{post.ID}},
		{"any status", types.QueryVars{"post_status": "any"}, []int64{post.ID, draft.ID}},
		{"status list", types.QueryVars{"post_status": []string{"draft"}}, []int64{draft.ID}},
		{"type list", types.QueryVars{"post_type": []string{"post", "page"}}, []int64{post.ID, page.ID}},
		{"any type", types.QueryVars{"post_type": "any"}, []int64{post.ID, page.ID, media.ID}},
		{"attachments inherit", types.QueryVars{"post_type": "attachment"}, []int64{media.ID}},
		{"post__in", types.QueryVars{"post_type": "any", "post__in": []int64{page.ID}}, []int64{page.ID}},
		{"empty post__in", types.QueryVars{"post_type": "any", "post__in": []int64{}}, []int64{}},
		{"post__not_in", types.QueryVars{"post_type": "any", "post__not_in": []int64{page.ID}}, []int64{post.ID, media.ID}},
		{"post_parent", types.QueryVars{"post_type": "attachment", "post_parent": post.ID}, []int64{media.ID}},
		{"search", types.QueryVars{"post_type": "any", "s": "world"}, []int64{post.ID}},
		{"year", types.QueryVars{"year": 2020}, []int64{post.ID}},
		{"impossible year", types.QueryVars{"post_type": "any", "year": 2525}, []int64{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := store.QueryItems(ctx, tt.qv)
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.want, itemIDs(q.Items))
		})
	}
}

func TestQueryItems_PagingAndOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	c := insertItem(t, store, &types.Item{Type: "post", Title: "C"})
	a := insertItem(t, store, &types.Item{Type: "post", Title: "A"})
	b := insertItem(t, store, &types.Item{Type: "post", Title: "B"})

	q, err := store.QueryItems(ctx, types.QueryVars{"orderby": "title", "order": "ASC"})
	require.NoError(t, err)
	assert.Equal(t, []int64{a.ID, b.ID, c.ID}, itemIDs(q.Items))
	assert.Equal(t, 3, q.FoundItems)
	assert.Equal(t, 1, q.MaxPages)

	q, err = store.QueryItems(ctx, types.QueryVars{"orderby": "title", "order": "ASC", "posts_per_page": 2, "paged": 2})
	require.NoError(t, err)
	assert.Equal(t, []int64{c.ID}, itemIDs(q.Items))
	assert.Equal(t, 3, q.FoundItems)
	assert.Equal(t, 2, q.MaxPages)

	q, err = store.QueryItems(ctx, types.QueryVars{"nopaging": true, "orderby": "id", "order": "DESC"})
	require.NoError(t, err)
	assert.Equal(t, []int64{b.ID, a.ID, c.ID}, itemIDs(q.Items))
	assert.Equal(t, 1, q.MaxPages)

	q, err = store.QueryItems(ctx, types.QueryVars{"fields": "ids", "orderby": "id", "order": "ASC"})
	require.NoError(t, err)
	require.Len(t, q.Items, 3)
	assert.Equal(t, c.ID, q.Items[0].ID)
	assert.Empty(t, q.Items[0].Title)
	assert.Empty(t, q.Items[0].Type)
}

func TestQueryUsers(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	var ids []int64
	for _, login := range []string{"alice", "bob", "carol"} {
		u := &types.User{Login: login, Email: login + "@example.com"}
		require.NoError(t, store.InsertUser(ctx, u))
		ids = append(ids, u.ID)
	}

	userIDs := func(q *storage.UserQuery) []int64 {
		out := make([]int64, len(q.Results))
		for i, u := range q.Results {
			out[i] = u.ID
		}
		return out
	}

	tests := []struct {
		name  string
		qv    types.QueryVars
		want  []int64
		total int
	}{
		{"all, by login", nil, ids, 3},
		{"exact search", types.QueryVars{"search": "bob"}, ids[1:2], 1},
		{"exact search needs full match", types.QueryVars{"search": "bo"}, []int64{}, 0},
		{"wildcard search", types.QueryVars{"search": "*example*"}, ids, 3},
		{"include", types.QueryVars{"include": []int64{ids[2]}}, ids[2:], 1},
		{"empty include", types.QueryVars{"include": []int64{}}, []int64{}, 0},
		{"exclude", types.QueryVars{"exclude": []int64{ids[0]}}, ids[1:], 2},
		{"number and offset", types.QueryVars{"number": 1, "offset": 1}, ids[1:2], 3},
		{"descending", types.QueryVars{"orderby": "login", "order": "DESC", "number": 1}, ids[2:], 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := store.QueryUsers(ctx, tt.qv)
			require.NoError(t, err)
			assert.Equal(t, tt.want, append([]int64{}, userIDs(q)...))
			assert.Equal(t, tt.total, q.Total)
		})
	}
}

func TestQuery_Hooks(t *testing.T) {
	pipeline := storage.NewPipeline()
	store, err := sqlite.Open(":memory:", pipeline)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()

	insertItem(t, store, &types.Item{Type: "post", Title: "One"})
	two := insertItem(t, store, &types.Item{Type: "post", Title: "Two"})

	var seen []types.Object
	pipeline.OnParse(func(ctx context.Context, q storage.Query) {
		q.Vars()["s"] = "Tw"
	})
	pipeline.OnClauses(func(ctx context.Context, c storage.Clauses, q storage.Query) storage.Clauses {
		c.Where += " AND items.title <> ?"
		c.WhereArgs = append(c.WhereArgs, "nothing")
		return c
	})
	pipeline.OnResults(func(ctx context.Context, q storage.Query, results []types.Object) {
		seen = results
	})

	q, err := store.QueryItems(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []int64{two.ID}, itemIDs(q.Items))
	require.Len(t, seen, 1)
	assert.Equal(t, two.ID, seen[0].ObjectID())

	seen = nil
	q, err = store.QueryItems(ctx, types.QueryVars{"suppress_filters": true})
	require.NoError(t, err)
	assert.Len(t, q.Items, 1, "parse hooks still run")
	assert.Nil(t, seen, "results hooks are skipped")
}

func TestConnectionMeta(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := insertItem(t, store, &types.Item{Type: "post"})
	b := insertItem(t, store, &types.Item{Type: "page"})
	id, err := store.CreateConnection(ctx, "posts_to_pages", a.ID, b.ID)
	require.NoError(t, err)
	other, err := store.CreateConnection(ctx, "posts_to_pages", b.ID, a.ID)
	require.NoError(t, err)

	require.NoError(t, store.AddConnectionMeta(ctx, id, "role", "main"))
	require.NoError(t, store.AddConnectionMeta(ctx, id, "role", "aside"))

	err = store.WarmMetaCache(ctx, "users", []int64{id})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	require.NoError(t, store.WarmMetaCache(ctx, sqlstore.MetaNamespaceP2P, []int64{id, other, id, 0}))
	assert.True(t, store.MetaCached(id))
	assert.True(t, store.MetaCached(other), "connections without meta are cached empty")

	values, err := store.ConnectionMeta(ctx, id, "role")
	require.NoError(t, err)
	assert.Equal(t, []string{"main", "aside"}, values)

	require.NoError(t, store.AddConnectionMeta(ctx, id, "weight", "3"))
	assert.False(t, store.MetaCached(id), "writes invalidate the entry")

	values, err = store.ConnectionMeta(ctx, id, "weight")
	require.NoError(t, err)
	assert.Equal(t, []string{"3"}, values)
	assert.True(t, store.MetaCached(id))
}
