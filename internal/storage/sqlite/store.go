// Package sqlite opens the reference host engine on an embedded SQLite
// database (modernc.org/sqlite, CGO-free).
package sqlite

import (
	"database/sql"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/exec"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/scrypster/p2p/internal/storage"
	"github.com/scrypster/p2p/internal/storage/sqlstore"
)

// Schema creates the items, users, p2p and p2pmeta tables.
const Schema = `
CREATE TABLE IF NOT EXISTS items (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    type TEXT NOT NULL,
    title TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'publish',
    parent_id INTEGER NOT NULL DEFAULT 0,
    date TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_items_type_status ON items(type, status);

CREATE TABLE IF NOT EXISTS users (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    login TEXT NOT NULL UNIQUE,
    display_name TEXT NOT NULL DEFAULT '',
    email TEXT NOT NULL DEFAULT '',
    registered TIMESTAMP NOT NULL
);

-- Relationship rows. Many-to-many: the same pair may appear under several types.
CREATE TABLE IF NOT EXISTS p2p (
    p2p_id INTEGER PRIMARY KEY AUTOINCREMENT,
    p2p_from INTEGER NOT NULL,
    p2p_to INTEGER NOT NULL,
    p2p_type TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_p2p_from ON p2p(p2p_from, p2p_type);
CREATE INDEX IF NOT EXISTS idx_p2p_to ON p2p(p2p_to, p2p_type);

CREATE TABLE IF NOT EXISTS p2pmeta (
    meta_id INTEGER PRIMARY KEY AUTOINCREMENT,
    p2p_id INTEGER NOT NULL REFERENCES p2p(p2p_id) ON DELETE CASCADE,
    meta_key TEXT NOT NULL,
    meta_value TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_p2pmeta_p2p ON p2pmeta(p2p_id, meta_key);
`

// Dialect is the SQLite flavour of the engine.
var Dialect = sqlstore.Dialect{
	Name:   "sqlite",
	Schema: Schema,
	YearExpr: func(col string) string {
		// Timestamps are stored as "YYYY-MM-DD HH:MM:SS..." text.
		return "CAST(substr(" + col + ", 1, 4) AS INTEGER)"
	},
	LikeOperator: "LIKE",
}

// Open opens dsn (a file path, "file:" URI or ":memory:") and returns an
// engine dispatching hooks through pipeline.
//
// If the initial open fails due to stale WAL files left behind by a crashed
// process, it verifies no other process holds them and retries once after
// removing the stale -shm/-wal files.
func Open(dsn string, pipeline *storage.Pipeline) (*sqlstore.Store, error) {
	store, err := open(dsn, pipeline)
	if err == nil {
		return store, nil
	}

	if !isRecoverableWALError(err) {
		return nil, err
	}

	dbPath := dbPathFromDSN(dsn)
	if dbPath == "" || !isWALStale(dbPath) {
		return nil, err
	}

	removeStaleWAL(dbPath)

	store, retryErr := open(dsn, pipeline)
	if retryErr != nil {
		return nil, fmt.Errorf("failed after WAL recovery: %w (original: %v)", retryErr, err)
	}

	log.Printf("sqlite: recovered from stale WAL files for %s", dbPath)
	return store, nil
}

func open(dsn string, pipeline *storage.Pipeline) (*sqlstore.Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection serialises writes and keeps ":memory:" databases
	// shared across calls.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	store, err := sqlstore.New(db, Dialect, pipeline)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// dbPathFromDSN extracts the file path from a DSN, or "" for in-memory
// databases.
func dbPathFromDSN(dsn string) string {
	if dsn == ":memory:" || dsn == "" {
		return ""
	}

	if strings.HasPrefix(dsn, "file:") {
		u, err := url.Parse(dsn)
		if err != nil {
			return ""
		}
		path := u.Path
		if path == "" {
			path = u.Opaque
		}
		if path == ":memory:" || path == "" {
			return ""
		}
		return path
	}

	return dsn
}

// isRecoverableWALError matches errors caused by stale WAL files left behind
// after a crash.
func isRecoverableWALError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "disk I/O error") ||
		strings.Contains(msg, "database is locked")
}

// isWALStale reports whether -shm/-wal files exist for dbPath and no process
// holds them open. Without lsof it conservatively returns false.
func isWALStale(dbPath string) bool {
	shmPath := dbPath + "-shm"
	walPath := dbPath + "-wal"

	if !fileExists(shmPath) && !fileExists(walPath) {
		return false
	}

	lsofPath, err := exec.LookPath("lsof")
	if err != nil {
		return false
	}

	output, err := exec.Command(lsofPath, "-t", dbPath, shmPath, walPath).Output()
	if err != nil {
		// lsof exits 1 when nothing has the files open.
		return true
	}
	return strings.TrimSpace(string(output)) == ""
}

func removeStaleWAL(dbPath string) {
	for _, suffix := range []string{"-shm", "-wal"} {
		path := dbPath + suffix
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Printf("sqlite: failed to remove stale %s: %v", path, err)
		}
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
