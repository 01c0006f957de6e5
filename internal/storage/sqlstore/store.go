// Package sqlstore is a reference host query engine over database/sql.
//
// It stores items, users, connections (p2p) and connection metadata
// (p2pmeta), understands the host query vocabulary and dispatches the
// storage.Pipeline hooks around every query, which is where the connection
// layer plugs in. Backends pick a Dialect; see the sqlite and postgres
// packages.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/scrypster/p2p/internal/storage"
	"github.com/scrypster/p2p/pkg/types"
)

// Store implements storage.Querier, storage.ItemStore and storage.MetaCache.
type Store struct {
	db       *sql.DB
	dialect  Dialect
	pipeline *storage.Pipeline
	meta     *metaCache
}

// New applies the dialect schema to db and returns a Store dispatching hooks
// through pipeline. A nil pipeline gets a fresh one.
func New(db *sql.DB, dialect Dialect, pipeline *storage.Pipeline) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("%w: database connection is required", storage.ErrInvalidInput)
	}
	if pipeline == nil {
		pipeline = storage.NewPipeline()
	}

	if _, err := db.Exec(dialect.Schema); err != nil {
		return nil, fmt.Errorf("%s: failed to create schema: %w", dialect.Name, err)
	}

	return &Store{
		db:       db,
		dialect:  dialect,
		pipeline: pipeline,
		meta:     newMetaCache(),
	}, nil
}

// DB returns the underlying connection pool.
func (s *Store) DB() *sql.DB { return s.db }

// Pipeline returns the hook pipeline queries are dispatched through.
func (s *Store) Pipeline() *storage.Pipeline { return s.pipeline }

// Dialect returns the SQL dialect in use.
func (s *Store) Dialect() Dialect { return s.dialect }

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) query(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.dialect.Rebind(query), args...)
}

func (s *Store) queryRow(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return s.db.QueryRowContext(ctx, s.dialect.Rebind(query), args...)
}

func (s *Store) exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.dialect.Rebind(query), args...)
}

// InsertItem stores item and sets its ID.
func (s *Store) InsertItem(ctx context.Context, item *types.Item) error {
	if item == nil || item.Type == "" {
		return fmt.Errorf("%w: item type is required", storage.ErrInvalidInput)
	}
	if item.Status == "" {
		item.Status = "publish"
	}
	if item.Date.IsZero() {
		item.Date = time.Now()
	}
	item.Date = item.Date.UTC()

	err := s.queryRow(ctx, `
		INSERT INTO items (type, title, status, parent_id, date)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id
	`, item.Type, item.Title, item.Status, item.ParentID, item.Date).Scan(&item.ID)
	if err != nil {
		return fmt.Errorf("%s: InsertItem: %w", s.dialect.Name, err)
	}
	return nil
}

// InsertUser stores user and sets its ID.
func (s *Store) InsertUser(ctx context.Context, user *types.User) error {
	if user == nil || user.Login == "" {
		return fmt.Errorf("%w: user login is required", storage.ErrInvalidInput)
	}
	if user.DisplayName == "" {
		user.DisplayName = user.Login
	}

	err := s.queryRow(ctx, `
		INSERT INTO users (login, display_name, email, registered)
		VALUES (?, ?, ?, ?)
		RETURNING id
	`, user.Login, user.DisplayName, user.Email, time.Now().UTC()).Scan(&user.ID)
	if err != nil {
		return fmt.Errorf("%s: InsertUser: %w", s.dialect.Name, err)
	}
	return nil
}

// CreateConnection stores a relationship row and returns its ID.
func (s *Store) CreateConnection(ctx context.Context, connectionType string, from, to int64) (int64, error) {
	if connectionType == "" || from <= 0 || to <= 0 {
		return 0, fmt.Errorf("%w: connection type and both ends are required", storage.ErrInvalidInput)
	}

	var id int64
	err := s.queryRow(ctx, `
		INSERT INTO p2p (p2p_from, p2p_to, p2p_type)
		VALUES (?, ?, ?)
		RETURNING p2p_id
	`, from, to, connectionType).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("%s: CreateConnection: %w", s.dialect.Name, err)
	}
	return id, nil
}

// AddConnectionMeta attaches a key/value pair to a connection.
func (s *Store) AddConnectionMeta(ctx context.Context, p2pID int64, key, value string) error {
	if p2pID <= 0 || key == "" {
		return fmt.Errorf("%w: connection id and meta key are required", storage.ErrInvalidInput)
	}

	if _, err := s.exec(ctx, `
		INSERT INTO p2pmeta (p2p_id, meta_key, meta_value)
		VALUES (?, ?, ?)
	`, p2pID, key, value); err != nil {
		return fmt.Errorf("%s: AddConnectionMeta: %w", s.dialect.Name, err)
	}

	s.meta.forget(p2pID)
	return nil
}

// GetItem implements storage.ItemStore.
func (s *Store) GetItem(ctx context.Context, id int64) (*types.Item, error) {
	rows, err := s.query(ctx, "SELECT "+itemColumns+" FROM items WHERE items.id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("%s: GetItem: %w", s.dialect.Name, err)
	}
	defer rows.Close()

	items, err := scanItems(rows)
	if err != nil {
		return nil, fmt.Errorf("%s: GetItem: %w", s.dialect.Name, err)
	}
	if len(items) == 0 {
		return nil, storage.ErrNotFound
	}
	return items[0], nil
}

// GetUser implements storage.ItemStore.
func (s *Store) GetUser(ctx context.Context, id int64) (*types.User, error) {
	rows, err := s.query(ctx, "SELECT "+userColumns+" FROM users WHERE users.id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("%s: GetUser: %w", s.dialect.Name, err)
	}
	defer rows.Close()

	users, err := scanUsers(rows)
	if err != nil {
		return nil, fmt.Errorf("%s: GetUser: %w", s.dialect.Name, err)
	}
	if len(users) == 0 {
		return nil, storage.ErrNotFound
	}
	return users[0], nil
}

// selectSQL renders clauses against table.
func selectSQL(table string, c storage.Clauses, withLimits bool) string {
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(c.Fields)
	b.WriteString(" FROM ")
	b.WriteString(table)
	b.WriteString(c.Join)
	b.WriteString(" WHERE 1=1")
	b.WriteString(c.Where)
	if c.GroupBy != "" {
		b.WriteString(" GROUP BY ")
		b.WriteString(c.GroupBy)
	}
	if withLimits {
		if c.OrderBy != "" {
			b.WriteString(" ORDER BY ")
			b.WriteString(c.OrderBy)
		}
		if c.Limits != "" {
			b.WriteString(" ")
			b.WriteString(c.Limits)
		}
	}
	return b.String()
}

// countRows counts the rows the clauses match, ignoring paging.
func (s *Store) countRows(ctx context.Context, table string, c storage.Clauses) (int, error) {
	var n int
	err := s.queryRow(ctx, "SELECT COUNT(*) FROM ("+selectSQL(table, c, false)+") found", c.Args()...).Scan(&n)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}
	return n, nil
}
