package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"mdtcore/pkg/domain"
)

func snapshot(name string, objects ...string) domain.ModelSnapshot {
	snap := domain.ModelSnapshot{Version: domain.SnapshotVersion, Name: name, Driver: "d", Site: "s"}
	for _, uid := range objects {
		snap.Objects = append(snap.Objects, domain.ObjectRecord{UID: uid, Kind: domain.EntityBus, Name: uid,
			Facets: map[string]domain.Value{"Voltage": {Raw: json.RawMessage(`{"real":480,"imaginary":0}`)}}})
	}
	return snap
}

func TestSQLiteStorePersistAndReload(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "models.db")
	store, err := NewStore(ctx, path)
	if err != nil {
		t.Fatalf("new sqlite store: %v", err)
	}
	if err := store.Save(ctx, snapshot("camp", "b1")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Save(ctx, snapshot("camp", "b1", "b2")); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := store.Save(ctx, snapshot("annex")); err != nil {
		t.Fatalf("save annex: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("db file missing: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reloaded, err := NewStore(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = reloaded.Close() }()
	got, ok, err := reloaded.Load(ctx, "camp")
	if err != nil || !ok {
		t.Fatalf("load: %v %v", ok, err)
	}
	if len(got.Objects) != 2 || got.SavedAt.IsZero() {
		t.Fatalf("expected upserted snapshot, got %+v", got)
	}
	if string(got.Objects[0].Facets["Voltage"].Raw) != `{"real":480,"imaginary":0}` {
		t.Fatalf("raw facet value changed: %s", got.Objects[0].Facets["Voltage"].Raw)
	}
	names, err := reloaded.List(ctx)
	if err != nil || len(names) != 2 || names[0] != "annex" || names[1] != "camp" {
		t.Fatalf("unexpected names %v %v", names, err)
	}
	if _, ok, err := reloaded.Load(ctx, "missing"); ok || err != nil {
		t.Fatalf("expected miss, got %v %v", ok, err)
	}
	if reloaded.Driver() != "sqlite" || reloaded.Path() != path || reloaded.DB() == nil {
		t.Fatalf("unexpected accessors")
	}
}

func TestSQLiteStoreErrors(t *testing.T) {
	ctx := context.Background()
	store, err := NewStore(ctx, filepath.Join(t.TempDir(), "models.db"))
	if err != nil {
		t.Fatalf("new sqlite store: %v", err)
	}
	if err := store.Save(ctx, domain.ModelSnapshot{}); !errors.Is(err, domain.ErrInvalidOption) {
		t.Fatalf("expected ErrInvalidOption, got %v", err)
	}
	if _, err := store.DB().ExecContext(ctx, `INSERT INTO model_snapshots(name, version, saved_at, payload) VALUES('bad', 1, '', 'not json')`); err != nil {
		t.Fatalf("seed bad row: %v", err)
	}
	if _, _, err := store.Load(ctx, "bad"); err == nil {
		t.Fatalf("expected decode error")
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := store.Save(ctx, snapshot("late")); err == nil {
		t.Fatalf("expected error after close")
	}
	if _, err := store.List(ctx); err == nil {
		t.Fatalf("expected list error after close")
	}
}
