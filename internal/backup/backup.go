// Package backup snapshots the SQLite host database and prunes old
// snapshots with a tiered retention policy.
package backup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const (
	filePrefix = "p2p-"
	fileSuffix = ".db"
	timeFormat = "20060102-150405.000000"
)

// Policy is how many snapshots to keep in each age tier:
// - Hourly: less than 24 hours old
// - Daily: 1-7 days old
// - Weekly: 7-30 days old
// - Monthly: 30-365 days old
// Anything older is always removed.
type Policy struct {
	Hourly  int
	Daily   int
	Weekly  int
	Monthly int
}

// DefaultPolicy keeps a day of hourly snapshots, a week of dailies, a month
// of weeklies and a year of monthlies.
func DefaultPolicy() Policy {
	return Policy{Hourly: 24, Daily: 7, Weekly: 4, Monthly: 12}
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.Hourly <= 0 {
		p.Hourly = d.Hourly
	}
	if p.Daily <= 0 {
		p.Daily = d.Daily
	}
	if p.Weekly <= 0 {
		p.Weekly = d.Weekly
	}
	if p.Monthly <= 0 {
		p.Monthly = d.Monthly
	}
	return p
}

// Snapshot describes a backup file.
type Snapshot struct {
	Path string
	Time time.Time
	Size int64
}

// Service creates, lists and restores snapshots of one database file.
type Service struct {
	dbPath string
	dir    string
	policy Policy
	logger *slog.Logger
}

// New creates a service storing snapshots of dbPath in dir. Zero policy
// tiers take their DefaultPolicy value.
func New(dbPath, dir string, policy Policy, logger *slog.Logger) (*Service, error) {
	if dbPath == "" {
		return nil, errors.New("backup: database path is required")
	}
	if dir == "" {
		return nil, errors.New("backup: backup directory is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("backup: failed to create backup directory: %w", err)
	}

	return &Service{
		dbPath: dbPath,
		dir:    dir,
		policy: policy.withDefaults(),
		logger: logger,
	}, nil
}

// Create writes a verified snapshot and prunes old ones. Pruning failures are
// logged, not returned.
func (s *Service) Create(ctx context.Context) (*Snapshot, error) {
	if _, err := os.Stat(s.dbPath); err != nil {
		return nil, fmt.Errorf("backup: database not found: %w", err)
	}

	now := time.Now()
	path := filepath.Join(s.dir, filePrefix+now.Format(timeFormat)+fileSuffix)

	if err := vacuumInto(ctx, s.dbPath, path); err != nil {
		return nil, err
	}
	if err := verify(ctx, path); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("backup: verification failed: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("backup: failed to stat snapshot: %w", err)
	}

	if removed, err := s.Prune(now); err != nil {
		s.logger.Warn("failed to apply retention policy", "error", err)
	} else if len(removed) > 0 {
		s.logger.Info("pruned snapshots", "count", len(removed))
	}

	s.logger.Info("snapshot created", "path", path, "size", info.Size(), "duration", time.Since(now))
	return &Snapshot{Path: path, Time: now, Size: info.Size()}, nil
}

// List returns the snapshots in the backup directory, newest first.
func (s *Service) List() ([]Snapshot, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("backup: failed to read backup directory: %w", err)
	}

	var out []Snapshot
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		out = append(out, Snapshot{
			Path: filepath.Join(s.dir, name),
			Time: info.ModTime(),
			Size: info.Size(),
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Time.After(out[j].Time) })
	return out, nil
}

// Prune removes the snapshots the policy does not keep, measuring age from
// now, and returns their paths.
func (s *Service) Prune(now time.Time) ([]string, error) {
	snapshots, err := s.List()
	if err != nil {
		return nil, err
	}

	var tiers [4][]Snapshot
	var remove []string
	for _, snap := range snapshots {
		switch age := now.Sub(snap.Time); {
		case age < 24*time.Hour:
			tiers[0] = append(tiers[0], snap)
		case age < 7*24*time.Hour:
			tiers[1] = append(tiers[1], snap)
		case age < 30*24*time.Hour:
			tiers[2] = append(tiers[2], snap)
		case age < 365*24*time.Hour:
			tiers[3] = append(tiers[3], snap)
		default:
			remove = append(remove, snap.Path)
		}
	}

	keep := [4]int{s.policy.Hourly, s.policy.Daily, s.policy.Weekly, s.policy.Monthly}
	for i, tier := range tiers {
		if len(tier) > keep[i] {
			for _, snap := range tier[keep[i]:] {
				remove = append(remove, snap.Path)
			}
		}
	}

	var errs []error
	removed := make([]string, 0, len(remove))
	for _, path := range remove {
		if err := os.Remove(path); err != nil {
			errs = append(errs, err)
			continue
		}
		removed = append(removed, path)
	}
	if len(errs) > 0 {
		return removed, fmt.Errorf("backup: failed to delete some snapshots: %w", errors.Join(errs...))
	}
	return removed, nil
}

// Restore replaces the database with the snapshot at path. Nothing may have
// the database open.
func (s *Service) Restore(ctx context.Context, path string) error {
	if err := verify(ctx, path); err != nil {
		return fmt.Errorf("backup: snapshot verification failed: %w", err)
	}

	tmp := s.dbPath + ".restore"
	if err := copyFile(path, tmp); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, s.dbPath); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("backup: failed to replace database: %w", err)
	}
	for _, suffix := range []string{"-wal", "-shm"} {
		_ = os.Remove(s.dbPath + suffix)
	}

	s.logger.Info("database restored", "from", path)
	return nil
}

// vacuumInto writes a consistent copy of the database, WAL included.
func vacuumInto(ctx context.Context, src, dst string) error {
	db, err := sql.Open("sqlite", "file:"+src+"?mode=ro")
	if err != nil {
		return fmt.Errorf("backup: failed to open database: %w", err)
	}
	defer func() { _ = db.Close() }()

	quoted := strings.ReplaceAll(dst, "'", "''")
	if _, err := db.ExecContext(ctx, "VACUUM INTO '"+quoted+"'"); err != nil {
		return fmt.Errorf("backup: failed to snapshot database: %w", err)
	}
	return nil
}

// verify runs SQLite's integrity check on path.
func verify(ctx context.Context, path string) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}

	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	var result string
	if err := db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("failed to run integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("backup: failed to open snapshot: %w", err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("backup: failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("backup: failed to copy snapshot: %w", err)
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		return fmt.Errorf("backup: failed to sync %s: %w", dst, err)
	}
	return out.Close()
}
