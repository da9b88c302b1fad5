// Package postgres stores model snapshots in Postgres as JSONB payloads.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"mdtcore/pkg/domain"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.SnapshotStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	// DefaultDSN is used when no DSN is configured.
	DefaultDSN = "postgres://localhost/mdtcore?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store is a snapshot store backed by a Postgres database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore opens a store using dsn (falls back to DefaultDSN), checks the
// connection and ensures the snapshot table exists.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = DefaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := ensureTable(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

func ensureTable(ctx context.Context, db *sql.DB) error {
	ddl := `CREATE TABLE IF NOT EXISTS model_snapshots (
		name TEXT PRIMARY KEY,
		version INTEGER NOT NULL,
		saved_at TIMESTAMPTZ NOT NULL,
		payload JSONB NOT NULL
	)`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure snapshot table: %w", err)
	}
	return nil
}

// Save upserts snapshot under its name inside a transaction.
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
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if _, err := tx.ExecContext(ctx, `INSERT INTO model_snapshots(name,version,saved_at,payload) VALUES($1,$2,$3,$4)
		ON CONFLICT(name) DO UPDATE SET version=EXCLUDED.version, saved_at=EXCLUDED.saved_at, payload=EXCLUDED.payload`,
		snapshot.Name, snapshot.Version, snapshot.SavedAt, string(payload)); err != nil {
		return fmt.Errorf("upsert snapshot %s: %w", snapshot.Name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

// Load returns the snapshot stored under name.
func (s *Store) Load(ctx context.Context, name string) (domain.ModelSnapshot, bool, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM model_snapshots WHERE name = $1`, name).Scan(&payload)
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
func (s *Store) Driver() string { return "postgres" }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
