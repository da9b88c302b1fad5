package modelio_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"mdtcore/internal/core"
	"mdtcore/internal/engine"
	"mdtcore/internal/infra/persistence/memory"
	"mdtcore/internal/modelio"
	"mdtcore/pkg/domain"
)

func sampleModel(t *testing.T, name string) *engine.Model {
	t.Helper()
	model := engine.NewModel(engine.WithName(name))
	svc := core.NewService(model, core.WithDefaultSink(domain.NewLog()))
	ctx := context.Background()
	mg, _, err := svc.Make(ctx, domain.EntityMicrogrid, nil, "MG", nil)
	require.NoError(t, err)
	_, _, err = svc.Make(ctx, domain.EntityBus, mg, "B1", core.Options{"retrofit_cost": 12.5})
	require.NoError(t, err)
	return model
}

func microgridNames(t *testing.T, model *engine.Model) []string {
	t.Helper()
	members, err := model.Site().Members("Models")
	require.NoError(t, err)
	return domain.Names(members)
}

func tags(l *domain.Log) []string {
	var out []string
	for _, e := range l.Entries() {
		out = append(out, e.Tag)
	}
	return out
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	diag, err := modelio.WriteModel(ctx, store, sampleModel(t, "camp"))
	require.NoError(t, err)
	require.Equal(t, []string{"I0700"}, tags(diag))

	restored := engine.NewModel(engine.WithName("camp"))
	diag, err = modelio.ReadModel(ctx, store, restored)
	require.NoError(t, err)
	require.Equal(t, []string{"I0701"}, tags(diag))
	require.Equal(t, []string{"MG"}, microgridNames(t, restored))
}

func TestReadModelMissing(t *testing.T) {
	diag, err := modelio.ReadModel(context.Background(), memory.NewStore(), engine.NewModel(engine.WithName("ghost")))
	require.ErrorIs(t, err, domain.ErrNotFound)
	require.True(t, diag.HasErrors())
	require.Equal(t, []string{"E0700"}, tags(diag))
	require.Contains(t, diag.Entries()[0].Message, "ghost")
}

type brokenStore struct{ domain.SnapshotStore }

func (brokenStore) Save(context.Context, domain.ModelSnapshot) error { return errors.New("disk full") }
func (brokenStore) Driver() string                                   { return "broken" }

func TestWriteModelReportsStoreFailure(t *testing.T) {
	diag, err := modelio.WriteModel(context.Background(), brokenStore{}, sampleModel(t, "camp"))
	require.ErrorContains(t, err, "disk full")
	require.Equal(t, []string{"E0701"}, tags(diag))
}

func TestFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "camp.json")
	diag, err := modelio.WriteFile(path, sampleModel(t, "camp"))
	require.NoError(t, err)
	require.Equal(t, 1, diag.Len())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, strings.Contains(string(raw), `"name": "camp"`))

	restored := engine.NewModel()
	_, err = modelio.ReadFile(path, restored)
	require.NoError(t, err)
	require.Equal(t, "camp", restored.Name())
	require.Equal(t, []string{"MG"}, microgridNames(t, restored))
}

func TestReadFileErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := modelio.ReadFile(filepath.Join(dir, "missing.json"), engine.NewModel())
	require.ErrorIs(t, err, os.ErrNotExist)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"version": 99, "objects": []}`), 0o600))
	model := engine.NewModel()
	before := model.Driver().UID()
	diag, err := modelio.ReadFile(bad, model)
	require.ErrorIs(t, err, domain.ErrUnsupportedVersion)
	require.Equal(t, []string{"E0700"}, tags(diag))
	require.Equal(t, before, model.Driver().UID(), "a rejected file must leave the model untouched")

	_, err = modelio.WriteFile(filepath.Join(dir, "no", "such", "dir.json"), model)
	require.Error(t, err)
}
