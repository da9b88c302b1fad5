package solver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"mdtcore/internal/core"
	"mdtcore/internal/engine"
	"mdtcore/pkg/domain"
)

func buildCamp(t *testing.T) *engine.Model {
	t.Helper()
	model := engine.NewModel(engine.WithName("camp"))
	svc := core.NewService(model, core.WithDefaultSink(domain.NewLog()))
	ctx := context.Background()
	build := func(kind domain.EntityType, parent domain.Entity, name string, opts core.Options) domain.Entity {
		e, diag, err := svc.Make(ctx, kind, parent, name, opts)
		require.NoError(t, err)
		require.False(t, diag.HasErrors(), diag.String())
		return e
	}
	build(domain.EntitySpecification, nil, "Gen 500kW", core.Options{"component": "diesel_generator", "capacity": 500})
	build(domain.EntityLoadTier, nil, "Critical", core.Options{"priority": 1})

	main := build(domain.EntityMicrogrid, nil, "Main", nil)
	bus := build(domain.EntityBus, main, "B1", nil)
	build(domain.EntityDieselGenerator, bus, "G1", core.Options{"base_spec": "Gen 500kW"})
	build(domain.EntityDieselGenerator, bus, "G2", core.Options{"base_spec": "Gen 500kW"})
	build(domain.EntityDieselGenerator, bus, "G3", nil)
	build(domain.EntityBattery, bus, "Bat", nil)
	load := build(domain.EntityLoadSection, bus, "Barracks", nil)
	build(domain.EntityLoadDataTier, load, "Base", core.Options{"tier": "Critical"})
	build(domain.EntityLoadDataTier, load, "Extra", nil)

	build(domain.EntityMicrogrid, nil, "Empty", nil)
	return model
}

func tagSet(l *domain.Log) map[string]int {
	out := map[string]int{}
	for _, e := range l.Entries() {
		out[e.Tag]++
	}
	return out
}

func TestRunIslandedSummarisesMicrogrids(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	clock := func() time.Time { tick++; return start.Add(time.Duration(tick) * time.Minute) }
	coreLog, logs := observer.New(zapcore.DebugLevel)

	info, diag := RunIslanded(context.Background(), buildCamp(t), Options{Clock: clock, Logger: core.NewZapLogger(zap.New(coreLog))})

	require.Equal(t, "camp", info.Model)
	require.Equal(t, 10, info.SimulationYears)
	require.Equal(t, start.Add(time.Minute), info.StartedAt)
	require.Equal(t, start.Add(2*time.Minute), info.FinishedAt)
	require.Len(t, info.Microgrids, 2)

	main := info.Microgrids[0]
	require.Equal(t, "Main", main.Name)
	require.Equal(t, 1, main.Busses)
	require.Equal(t, 3, main.GeneratorCount())
	require.Equal(t, 3, main.Generators[domain.EntityDieselGenerator])
	require.Equal(t, 1000.0, main.Capacity)
	require.Equal(t, 1, main.Batteries)
	require.Equal(t, 1, main.LoadSections)
	require.Equal(t, 1000.0, info.TotalCapacity)

	require.False(t, info.Runnable)
	require.Equal(t, map[string]int{TagNoGeneration: 1, TagUntieredLoad: 1, TagUnspecifiedUnit: 1, TagSummary: 1}, tagSet(diag))
	require.Len(t, logs.FilterMessage("islanded check failed").All(), 1)
}

func TestRunIslandedHonoursYearsAndContext(t *testing.T) {
	model := engine.NewModel()
	info, diag := RunIslanded(context.Background(), model, Options{Years: 3})
	require.True(t, info.Runnable)
	require.Equal(t, 3, info.SimulationYears)
	require.Empty(t, info.Microgrids)
	require.Equal(t, 1, diag.Len())

	camp := buildCamp(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	info, diag = RunIslanded(ctx, camp, Options{})
	require.False(t, info.Runnable)
	require.Empty(t, info.Microgrids)
	require.Equal(t, 1, tagSet(diag)[TagAborted])
}
