package domain

import (
	"context"
	"encoding/json"
	"time"
)

// SnapshotVersion is the current model snapshot format.
const SnapshotVersion = 1

// Value is a typed, serialisable facet or argument value. References to
// other entities are stored by UID.
type Value struct {
	Ref string          `json:"ref,omitempty"`
	Raw json.RawMessage `json:"raw,omitempty"`
}

// IsRef reports whether the value points at another entity.
func (v Value) IsRef() bool { return v.Ref != "" }

// MemberRecord is one collection entry; Args keeps positional add arguments.
type MemberRecord struct {
	Args []Value `json:"args"`
}

// ObjectRecord is the persisted form of one entity.
type ObjectRecord struct {
	UID         string                      `json:"uid"`
	Kind        EntityType                  `json:"kind"`
	Name        string                      `json:"name"`
	Parent      string                      `json:"parent,omitempty"`
	Facets      map[string]Value            `json:"facets,omitempty"`
	Indexed     map[string]map[string]Value `json:"indexed,omitempty"`
	Collections map[string][]MemberRecord   `json:"collections,omitempty"`
}

// ModelSnapshot is a complete, self-contained copy of an engine model.
type ModelSnapshot struct {
	Version int            `json:"version"`
	Name    string         `json:"name"`
	Driver  string         `json:"driver"`
	Site    string         `json:"site"`
	SavedAt time.Time      `json:"saved_at"`
	Objects []ObjectRecord `json:"objects"`
}

// SnapshotStore persists model snapshots.
type SnapshotStore interface {
	Save(ctx context.Context, snapshot ModelSnapshot) error
	Load(ctx context.Context, name string) (ModelSnapshot, bool, error)
	List(ctx context.Context) ([]string, error)
	Driver() string
	Close() error
}
