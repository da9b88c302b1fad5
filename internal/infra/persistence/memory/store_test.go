package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"mdtcore/pkg/domain"
)

func TestStoreRoundTripIsolatesCallers(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	fixed := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return fixed }

	snap := domain.ModelSnapshot{Version: domain.SnapshotVersion, Name: "camp", Driver: "d", Site: "s",
		Objects: []domain.ObjectRecord{{UID: "d", Kind: domain.EntityDriver, Name: "Driver"}}}
	if err := store.Save(ctx, snap); err != nil {
		t.Fatalf("save: %v", err)
	}
	snap.Objects[0].Name = "mutated"

	got, ok, err := store.Load(ctx, "camp")
	if err != nil || !ok {
		t.Fatalf("load: %v %v", ok, err)
	}
	if got.Objects[0].Name != "Driver" {
		t.Fatalf("store must not alias caller state, got %q", got.Objects[0].Name)
	}
	if !got.SavedAt.Equal(fixed) {
		t.Fatalf("expected saved_at stamped, got %v", got.SavedAt)
	}

	if _, ok, err := store.Load(ctx, "missing"); ok || err != nil {
		t.Fatalf("expected miss, got %v %v", ok, err)
	}
	if err := store.Save(ctx, domain.ModelSnapshot{Name: "alpha"}); err != nil {
		t.Fatalf("save alpha: %v", err)
	}
	names, err := store.List(ctx)
	if err != nil || len(names) != 2 || names[0] != "alpha" || names[1] != "camp" {
		t.Fatalf("unexpected names %v %v", names, err)
	}
	if store.Driver() != "memory" || store.Close() != nil {
		t.Fatalf("unexpected driver or close result")
	}
}

func TestStoreRejectsEmptyNameAndCancelledContext(t *testing.T) {
	store := NewStore()
	if err := store.Save(context.Background(), domain.ModelSnapshot{}); !errors.Is(err, domain.ErrInvalidOption) {
		t.Fatalf("expected ErrInvalidOption, got %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := store.Load(ctx, "x"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
