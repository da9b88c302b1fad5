// Package modelio reads and writes whole models through snapshot stores and
// JSON files. Every call reports what happened in a diagnostics Log; hard
// failures are logged as errors and returned as well.
package modelio

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"mdtcore/pkg/domain"
)

// Snapshotter is implemented by models that can export and import
// themselves.
type Snapshotter interface {
	Name() string
	Export() (domain.ModelSnapshot, error)
	Import(snap domain.ModelSnapshot) error
}

const (
	tagReadFailed  = "E0700"
	tagWriteFailed = "E0701"
	tagSaved       = "I0700"
	tagLoaded      = "I0701"
)

func fail(diag *domain.Log, tag string, err error) (*domain.Log, error) {
	diag.Add(domain.Entry{Category: domain.CategoryError, Tag: tag, Message: err.Error()})
	return diag, err
}

// WriteModel exports model and saves it in store under the model name.
func WriteModel(ctx context.Context, store domain.SnapshotStore, model Snapshotter) (*domain.Log, error) {
	diag := domain.NewLog()
	snap, err := model.Export()
	if err != nil {
		return fail(diag, tagWriteFailed, fmt.Errorf("export model %s: %w", model.Name(), err))
	}
	if err := store.Save(ctx, snap); err != nil {
		return fail(diag, tagWriteFailed, fmt.Errorf("save model %s to %s: %w", snap.Name, store.Driver(), err))
	}
	diag.Infof(tagSaved, "saved model %s (%d objects) to %s", snap.Name, len(snap.Objects), store.Driver())
	return diag, nil
}

// ReadModel replaces model with the snapshot stored under its name.
func ReadModel(ctx context.Context, store domain.SnapshotStore, model Snapshotter) (*domain.Log, error) {
	diag := domain.NewLog()
	snap, ok, err := store.Load(ctx, model.Name())
	if err != nil {
		return fail(diag, tagReadFailed, fmt.Errorf("load model %s from %s: %w", model.Name(), store.Driver(), err))
	}
	if !ok {
		return fail(diag, tagReadFailed, domain.NotFoundError{Name: model.Name(), Context: store.Driver() + " snapshots"})
	}
	if err := model.Import(snap); err != nil {
		return fail(diag, tagReadFailed, fmt.Errorf("import model %s: %w", snap.Name, err))
	}
	diag.Infof(tagLoaded, "loaded model %s (%d objects) from %s", snap.Name, len(snap.Objects), store.Driver())
	return diag, nil
}

// Encode writes model to w as indented JSON.
func Encode(w io.Writer, model Snapshotter) error {
	snap, err := model.Export()
	if err != nil {
		return fmt.Errorf("export model %s: %w", model.Name(), err)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		return fmt.Errorf("encode model %s: %w", snap.Name, err)
	}
	return nil
}

// Decode reads a JSON snapshot from r into model.
func Decode(r io.Reader, model Snapshotter) error {
	var snap domain.ModelSnapshot
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&snap); err != nil {
		return fmt.Errorf("decode model: %w", err)
	}
	if err := model.Import(snap); err != nil {
		return fmt.Errorf("import model %s: %w", snap.Name, err)
	}
	return nil
}

// WriteFile saves model to path. The file is replaced atomically.
func WriteFile(path string, model Snapshotter) (*domain.Log, error) {
	diag := domain.NewLog()
	tmp, err := os.CreateTemp(filepath.Dir(path), ".model-*")
	if err != nil {
		return fail(diag, tagWriteFailed, fmt.Errorf("create temp: %w", err))
	}
	cleanup := func() { _ = os.Remove(tmp.Name()) }
	if err := Encode(tmp, model); err != nil {
		_ = tmp.Close()
		cleanup()
		return fail(diag, tagWriteFailed, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fail(diag, tagWriteFailed, fmt.Errorf("close temp: %w", err))
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		cleanup()
		return fail(diag, tagWriteFailed, fmt.Errorf("rename: %w", err))
	}
	diag.Infof(tagSaved, "saved model %s to %s", model.Name(), path)
	return diag, nil
}

// ReadFile loads the model stored at path.
func ReadFile(path string, model Snapshotter) (*domain.Log, error) {
	diag := domain.NewLog()
	f, err := os.Open(path)
	if err != nil {
		return fail(diag, tagReadFailed, fmt.Errorf("open %s: %w", path, err))
	}
	defer func() { _ = f.Close() }()
	if err := Decode(f, model); err != nil {
		return fail(diag, tagReadFailed, fmt.Errorf("%s: %w", path, err))
	}
	diag.Infof(tagLoaded, "loaded model %s from %s", model.Name(), path)
	return diag, nil
}
