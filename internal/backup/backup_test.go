package backup_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/p2p/internal/backup"
	"github.com/scrypster/p2p/internal/storage"
	"github.com/scrypster/p2p/internal/storage/sqlite"
	"github.com/scrypster/p2p/pkg/types"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// seedDB creates a database file holding one item and returns its path.
func seedDB(t *testing.T, dir string) (string, int64) {
	t.Helper()
	path := filepath.Join(dir, "p2p.db")
	store, err := sqlite.Open(path, nil)
	require.NoError(t, err)
	defer store.Close()

	item := &types.Item{Type: "post", Title: "Kept"}
	require.NoError(t, store.InsertItem(context.Background(), item))
	return path, item.ID
}

func TestNew_Validation(t *testing.T) {
	_, err := backup.New("", t.TempDir(), backup.Policy{}, nil)
	assert.Error(t, err)
	_, err = backup.New("p2p.db", "", backup.Policy{}, nil)
	assert.Error(t, err)
}

func TestCreateListRestore(t *testing.T) {
	dir := t.TempDir()
	dbPath, keptID := seedDB(t, dir)
	ctx := context.Background()

	svc, err := backup.New(dbPath, filepath.Join(dir, "backups"), backup.Policy{}, quietLogger())
	require.NoError(t, err)

	snap, err := svc.Create(ctx)
	require.NoError(t, err)
	assert.FileExists(t, snap.Path)
	assert.Greater(t, snap.Size, int64(0))

	list, err := svc.List()
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, snap.Path, list[0].Path)

	// Add a row after the snapshot, then roll it back.
	store, err := sqlite.Open(dbPath, nil)
	require.NoError(t, err)
	extra := &types.Item{Type: "post", Title: "Dropped"}
	require.NoError(t, store.InsertItem(ctx, extra))
	require.NoError(t, store.Close())

	require.NoError(t, svc.Restore(ctx, snap.Path))

	store, err = sqlite.Open(dbPath, nil)
	require.NoError(t, err)
	defer store.Close()

	got, err := store.GetItem(ctx, keptID)
	require.NoError(t, err)
	assert.Equal(t, "Kept", got.Title)
	_, err = store.GetItem(ctx, extra.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCreate_MissingDatabase(t *testing.T) {
	dir := t.TempDir()
	svc, err := backup.New(filepath.Join(dir, "missing.db"), dir, backup.Policy{}, quietLogger())
	require.NoError(t, err)

	_, err = svc.Create(context.Background())
	assert.Error(t, err)
}

func TestRestore_RejectsCorruptSnapshot(t *testing.T) {
	dir := t.TempDir()
	dbPath, _ := seedDB(t, dir)
	svc, err := backup.New(dbPath, dir, backup.Policy{}, quietLogger())
	require.NoError(t, err)

	bad := filepath.Join(dir, "p2p-bad.db")
	require.NoError(t, os.WriteFile(bad, []byte("not a database"), 0o644))
	assert.Error(t, svc.Restore(context.Background(), bad))

	_, err = os.Stat(dbPath)
	assert.NoError(t, err, "database is left in place")
}

func TestPrune(t *testing.T) {
	dir := t.TempDir()
	svc, err := backup.New(filepath.Join(dir, "p2p.db"), dir,
		backup.Policy{Hourly: 2, Daily: 1, Weekly: 1, Monthly: 1}, quietLogger())
	require.NoError(t, err)

	now := time.Now()
	ages := map[string]time.Duration{
		"p2p-h1.db": 1 * time.Hour,
		"p2p-h2.db": 2 * time.Hour,
		"p2p-h3.db": 3 * time.Hour,
		"p2p-d1.db": 2 * 24 * time.Hour,
		"p2p-d2.db": 3 * 24 * time.Hour,
		"p2p-w1.db": 10 * 24 * time.Hour,
		"p2p-m1.db": 60 * 24 * time.Hour,
		"p2p-y1.db": 400 * 24 * time.Hour,
	}
	for name, age := range ages {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
		ts := now.Add(-age)
		require.NoError(t, os.Chtimes(path, ts, ts))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	removed, err := svc.Prune(now)
	require.NoError(t, err)

	var names []string
	for _, p := range removed {
		names = append(names, filepath.Base(p))
	}
	assert.ElementsMatch(t, []string{"p2p-h3.db", "p2p-d2.db", "p2p-y1.db"}, names)

	list, err := svc.List()
	require.NoError(t, err)
	assert.Len(t, list, 5)
	assert.FileExists(t, filepath.Join(dir, "notes.txt"))
}
