package p2p

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scrypster/p2p/internal/metrics"
	"github.com/scrypster/p2p/internal/storage"
	"github.com/scrypster/p2p/internal/storage/sqlite"
	"github.com/scrypster/p2p/internal/storage/sqlstore"
	"github.com/scrypster/p2p/pkg/types"
)

// countingQuerier counts the item queries reaching the engine.
type countingQuerier struct {
	next  storage.ItemQuerier
	calls atomic.Int32
}

func (c *countingQuerier) QueryItems(ctx context.Context, qv types.QueryVars) (*storage.ItemQuery, error) {
	c.calls.Add(1)
	return c.next.QueryItems(ctx, qv)
}

type fixture struct {
	store    *sqlstore.Store
	host     *storage.Host
	items    *countingQuerier
	registry *Registry
	metrics  *metrics.Metrics
	qi       *QueryIntegration
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	pipeline := storage.NewPipeline()
	store, err := sqlite.Open(":memory:", pipeline)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	items := &countingQuerier{next: store}
	host := &storage.Host{
		Items:    items,
		Users:    store,
		Store:    store,
		Types:    storage.DefaultTypeSet(),
		Caps:     storage.AllowAll{},
		Meta:     store,
		Pipeline: pipeline,
	}
	m := metrics.New()
	registry := NewRegistry(Env{
		Host:    host,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics: m,
	})
	qi := NewQueryIntegration(registry)
	qi.Install(pipeline)

	return &fixture{store: store, host: host, items: items, registry: registry, metrics: m, qi: qi}
}

func (f *fixture) register(t *testing.T, cfg Config) *ConnectionType {
	t.Helper()
	ct, err := f.registry.Register(cfg)
	require.NoError(t, err)
	return ct
}

func (f *fixture) item(t *testing.T, itemType, title string) *types.Item {
	t.Helper()
	item := &types.Item{Type: itemType, Title: title}
	require.NoError(t, f.store.InsertItem(context.Background(), item))
	return item
}

func (f *fixture) user(t *testing.T, login string) *types.User {
	t.Helper()
	u := &types.User{Login: login}
	require.NoError(t, f.store.InsertUser(context.Background(), u))
	return u
}

func (f *fixture) connect(t *testing.T, connectionType string, from, to types.Object) int64 {
	t.Helper()
	id, err := f.store.CreateConnection(context.Background(), connectionType, from.ObjectID(), to.ObjectID())
	require.NoError(t, err)
	return id
}

func ids(objects ...types.Object) []int64 {
	out := make([]int64, len(objects))
	for i, obj := range objects {
		out[i] = obj.ObjectID()
	}
	return out
}
