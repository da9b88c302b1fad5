// Package sqlite stores model snapshots in a single SQLite table as JSON
// payloads.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"mdtcore/pkg/domain"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.SnapshotStore = (*Store)(nil)

// DefaultPath is used when no database path is configured.
const DefaultPath = "mdtcore.db"

const schema = `CREATE TABLE IF NOT EXISTS model_snapshots (
	name TEXT PRIMARY KEY,
	version INTEGER NOT NULL,
	saved_at TEXT NOT NULL,
	payload BLOB NOT NULL
)`

// Store is a snapshot store backed by a SQLite database file.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// NewStore opens (creating if needed) the database at path.
func NewStore(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection serialises writers.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create snapshot table: %w", err)
	}
	return &Store{db: db, path: path, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Save upserts snapshot under its name.
func (s *Store) Save(ctx context.Context, snapshot domain.ModelSnapshot) error {
	if snapshot.Name == "" {
		return fmt.Errorf("%w: snapshot name is empty", domain.ErrInvalidOption)
	}
	if snapshot.SavedAt.IsZero() {
		snapshot.SavedAt = s.now()
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", snapshot.Name, err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO model_snapshots(name, version, saved_at, payload) VALUES(?,?,?,?)
		ON CONFLICT(name) DO UPDATE SET version=excluded.version, saved_at=excluded.saved_at, payload=excluded.payload`,
		snapshot.Name, snapshot.Version, snapshot.SavedAt.Format(time.RFC3339Nano), payload)
	if err != nil {
		return fmt.Errorf("upsert snapshot %s: %w", snapshot.Name, err)
	}
	return nil
}

// Load returns the snapshot stored under name.
func (s *Store) Load(ctx context.Context, name string) (domain.ModelSnapshot, bool, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM model_snapshots WHERE name = ?`, name).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ModelSnapshot{}, false, nil
	}
	if err != nil {
		return domain.ModelSnapshot{}, false, fmt.Errorf("select snapshot %s: %w", name, err)
	}
	var snap domain.ModelSnapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return domain.ModelSnapshot{}, false, fmt.Errorf("decode snapshot %s: %w", name, err)
	}
	return snap, true, nil
}

// List returns the stored model names in order.
func (s *Store) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM model_snapshots ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("select names: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate names: %w", err)
	}
	return names, nil
}

// Driver reports the storage driver name.
func (s *Store) Driver() string { return "sqlite" }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
