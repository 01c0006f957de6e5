package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/p2p/internal/config"
	"github.com/scrypster/p2p/internal/server"
	"github.com/scrypster/p2p/pkg/types"
)

const typesYAML = `
connection_types:
  - name: posts_to_pages
    from: post
    to: page
    cardinality: many-to-many
  - name: authors
    from: post
    to: user
`

type seeded struct {
	post1, post2, page1, page2 *types.Item
	alice                      *types.User
}

// setupEnv points the P2P_ environment at a temp dir and seeds its database.
func setupEnv(t *testing.T) seeded {
	t.Helper()
	dir := t.TempDir()
	typesPath := filepath.Join(dir, "types.yaml")
	require.NoError(t, os.WriteFile(typesPath, []byte(typesYAML), 0o644))

	t.Setenv("P2P_STORAGE_ENGINE", "sqlite")
	t.Setenv("P2P_DATA_PATH", filepath.Join(dir, "data"))
	t.Setenv("P2P_CONNECTION_TYPES", typesPath)
	t.Setenv("P2P_LOG_LEVEL", "error")
	t.Setenv("P2P_POSTGRES_DSN", "")
	t.Setenv("P2P_PORT", "")

	cfg, err := config.LoadConfig()
	require.NoError(t, err)
	app, err := server.OpenApp(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	defer app.Close()

	ctx := context.Background()
	var s seeded
	item := func(itemType, title string) *types.Item {
		it := &types.Item{Type: itemType, Title: title}
		require.NoError(t, app.Store.InsertItem(ctx, it))
		return it
	}
	s.post1 = item("post", "First post")
	s.post2 = item("post", "Second post")
	s.page1 = item("page", "About")
	s.page2 = item("page", "Contact")
	s.alice = &types.User{Login: "alice", DisplayName: "Alice"}
	require.NoError(t, app.Store.InsertUser(ctx, s.alice))

	for _, pair := range [][3]interface{}{
		{"posts_to_pages", s.post1.ID, s.page1.ID},
		{"posts_to_pages", s.post1.ID, s.page2.ID},
		{"posts_to_pages", s.post2.ID, s.page2.ID},
		{"authors", s.post1.ID, s.alice.ID},
	} {
		_, err := app.Store.CreateConnection(ctx, pair[0].(string), pair[1].(int64), pair[2].(int64))
		require.NoError(t, err)
	}
	return s
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "p2p version "+Version+"\n", out)
}

func TestTypesCommand(t *testing.T) {
	setupEnv(t)

	out, err := run(t, "types")
	require.NoError(t, err)
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "posts_to_pages")
	assert.Contains(t, out, "many-to-many")
	assert.Contains(t, out, "authors")
	assert.Contains(t, out, "user")
}

func TestConnectedCommand(t *testing.T) {
	s := setupEnv(t)

	out, err := run(t, "connected", "posts_to_pages", fmt.Sprint(s.post1.ID))
	require.NoError(t, err)
	assert.Contains(t, out, "About")
	assert.Contains(t, out, "Contact")
	assert.Contains(t, out, "page 1 of 1")

	out, err = run(t, "connected", "authors", fmt.Sprint(s.alice.ID), "--user")
	require.NoError(t, err)
	assert.Contains(t, out, "First post")
	assert.NotContains(t, out, "Second post")

	out, err = run(t, "connected", "posts_to_pages", fmt.Sprint(s.post2.ID), "--direction", "to")
	require.NoError(t, err)
	assert.Contains(t, out, "No posts found.")
}

func TestConnectedCommand_JSON(t *testing.T) {
	s := setupEnv(t)

	out, err := run(t, "connected", "posts_to_pages", fmt.Sprint(s.page2.ID), "--json")
	require.NoError(t, err)

	var list struct {
		Items []struct {
			ID int64 `json:"id"`
		}
		CurrentPage int
	}
	require.NoError(t, json.Unmarshal([]byte(out), &list), out)
	got := []int64{}
	for _, item := range list.Items {
		got = append(got, item.ID)
	}
	assert.ElementsMatch(t, []int64{s.post1.ID, s.post2.ID}, got)
	assert.Equal(t, 1, list.CurrentPage)
}

func TestRelatedCommand(t *testing.T) {
	s := setupEnv(t)

	out, err := run(t, "related", "posts_to_pages", fmt.Sprint(s.post1.ID))
	require.NoError(t, err)
	assert.Contains(t, out, "Second post")
	assert.NotContains(t, out, "First post")
}

func TestCommandErrors(t *testing.T) {
	s := setupEnv(t)

	_, err := run(t, "connected", "nope", "1")
	assert.ErrorContains(t, err, "unknown connection type")

	_, err = run(t, "connected", "posts_to_pages", "abc")
	assert.ErrorContains(t, err, "invalid id")

	_, err = run(t, "connected", "posts_to_pages", "9999")
	assert.Error(t, err)

	_, err = run(t, "connected", "posts_to_pages", fmt.Sprint(s.post1.ID), "--direction", "up")
	assert.Error(t, err)

	_, err = run(t, "connected", "posts_to_pages")
	assert.Error(t, err)
}

func TestBackupCommands(t *testing.T) {
	setupEnv(t)
	dir := t.TempDir()

	out, err := run(t, "backup", "list", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "No snapshots.")

	out, err = run(t, "backup", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Snapshot written to "+dir)

	out, err = run(t, "backup", "list", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "PATH")
	assert.Contains(t, out, filepath.Join(dir, "p2p-"))

	_, err = run(t, "backup", "restore", filepath.Join(dir, "missing.db"), "--dir", dir)
	assert.Error(t, err)
}
