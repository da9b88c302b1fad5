// Package memory provides an in-process model snapshot store. Snapshots are
// kept encoded so callers never share state with the store.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"mdtcore/pkg/domain"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.SnapshotStore = (*Store)(nil)

// Store keeps snapshots in a map keyed by model name.
type Store struct {
	mu    sync.RWMutex
	items map[string][]byte
	now   func() time.Time
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{items: make(map[string][]byte), now: func() time.Time { return time.Now().UTC() }}
}

// Save stores snapshot under its name, replacing any previous copy.
func (s *Store) Save(ctx context.Context, snapshot domain.ModelSnapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if snapshot.Name == "" {
		return fmt.Errorf("%w: snapshot name is empty", domain.ErrInvalidOption)
	}
	if snapshot.SavedAt.IsZero() {
		snapshot.SavedAt = s.now()
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", snapshot.Name, err)
	}
	s.mu.Lock()
	s.items[snapshot.Name] = data
	s.mu.Unlock()
	return nil
}

// Load returns the snapshot stored under name.
func (s *Store) Load(ctx context.Context, name string) (domain.ModelSnapshot, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.ModelSnapshot{}, false, err
	}
	s.mu.RLock()
	data, ok := s.items[name]
	s.mu.RUnlock()
	if !ok {
		return domain.ModelSnapshot{}, false, nil
	}
	var snap domain.ModelSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.ModelSnapshot{}, false, fmt.Errorf("decode snapshot %s: %w", name, err)
	}
	return snap, true, nil
}

// List returns the stored model names in order.
func (s *Store) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	names := make([]string, 0, len(s.items))
	for name := range s.items {
		names = append(names, name)
	}
	s.mu.RUnlock()
	sort.Strings(names)
	return names, nil
}

// Driver reports the storage driver name.
func (s *Store) Driver() string { return "memory" }

// Close is a no-op.
func (s *Store) Close() error { return nil }
