package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-logr/logr/funcr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"mdtcore/pkg/domain"
)

type observedService struct {
	svc     *Service
	sink    *domain.Log
	audit   *captureAuditRecorder
	metrics *captureMetricsRecorder
	tracer  *captureTracer
	logger  *captureLogger
}

func newObservedService(t *testing.T, extra ...ServiceOption) observedService {
	t.Helper()
	o := observedService{
		audit:   &captureAuditRecorder{},
		metrics: &captureMetricsRecorder{},
		tracer:  &captureTracer{},
		logger:  &captureLogger{},
	}
	opts := append([]ServiceOption{
		WithAuditRecorder(o.audit),
		WithMetricsRecorder(o.metrics),
		WithTracer(o.tracer),
		WithLogger(o.logger),
	}, extra...)
	o.svc, _, o.sink = newTestService(t, opts...)
	return o
}

func TestMakeObservability(t *testing.T) {
	o := newObservedService(t)
	ctx := context.Background()

	mg, diag, err := o.svc.Make(ctx, domain.EntityMicrogrid, nil, "MG", nil)
	require.NoError(t, err)
	require.Equal(t, 0, diag.Len())
	require.True(t, o.audit.has("make_microgrid", AuditStatusSuccess, func(e AuditEntry) bool {
		return e.EntityID == mg.UID() && e.Entity == domain.EntityMicrogrid
	}))
	require.True(t, o.metrics.has("make_microgrid", true))
	require.True(t, o.tracer.has("make_microgrid", true))

	bus, diag, err := o.svc.Make(ctx, domain.EntityBus, mg, "B", Options{"retrofit_cost": -1})
	require.NoError(t, err)
	require.NotNil(t, bus)
	require.Equal(t, []string{"E0200"}, tags(diag))
	require.True(t, o.audit.has("make_bus", AuditStatusRejected, func(e AuditEntry) bool { return e.Diagnostics == 1 }))
	require.True(t, o.logger.has("warn", "operation completed with rejections"))
	require.Equal(t, 1, o.metrics.outcomes[domain.StatusRejected])

	none, _, err := o.svc.Make(ctx, domain.EntityBus, nil, "Orphan", nil)
	require.ErrorIs(t, err, domain.ErrMissingOption)
	require.Nil(t, none)
	require.True(t, o.audit.has("make_bus", AuditStatusError, func(e AuditEntry) bool { return e.Error != "" }))
	require.True(t, o.metrics.has("make_bus", false))
	require.True(t, o.tracer.has("make_bus", false))
	require.True(t, o.logger.has("error", "operation failed"))
}

func TestMakeStrictReturnsEntityAndRejection(t *testing.T) {
	o := newObservedService(t)
	ctx := context.Background()
	mg, _, err := o.svc.Make(ctx, domain.EntityMicrogrid, nil, "MG", nil)
	require.NoError(t, err)

	bus, diag, err := o.svc.Make(ctx, domain.EntityBus, mg, "B", Options{"retrofit_cost": -1}, Strict())
	require.ErrorIs(t, err, domain.ErrRejected)
	require.NotNil(t, bus)
	require.True(t, diag.HasErrors())
	require.Empty(t, memberNames(t, mg.(domain.Mutable), "Busses"))
	require.Equal(t, diag.Len(), o.sink.Len())
}

func TestMakeWithSinkBypassesDefault(t *testing.T) {
	o := newObservedService(t)
	ctx := context.Background()
	mine := domain.NewLog()
	mg, _, err := o.svc.Make(ctx, domain.EntityMicrogrid, nil, "MG", nil)
	require.NoError(t, err)

	_, _, err = o.svc.Make(ctx, domain.EntityBus, mg, "B", Options{"retrofit_cost": -1}, WithSink(mine))
	require.NoError(t, err)
	require.Equal(t, 1, mine.Len())
	require.Equal(t, 0, o.sink.Len())
}

func TestDefaultServiceOptions(t *testing.T) {
	cfg := defaultServiceOptions()
	require.IsType(t, noopLogger{}, cfg.logger)
	require.IsType(t, noopAudit{}, cfg.audit)
	require.IsType(t, noopMetrics{}, cfg.metrics)
	require.IsType(t, noopTracer{}, cfg.tracer)
	require.Equal(t, time.UTC, cfg.clock.Now().Location())

	svc := NewService(nil, nil, WithLogger(nil), WithTracer(nil), WithAuditRecorder(nil), WithMetricsRecorder(nil), WithClock(nil))
	require.Same(t, domain.DefaultLog(), svc.DefaultSink())
	require.NotNil(t, svc.Executor())
}

func TestServiceBlueprintRegistry(t *testing.T) {
	custom := &Blueprint{Kind: domain.EntityMicrogrid, Collection: "Models", AddChannel: "AddModelCanceled",
		Parent: siteParent, DefaultName: "Grid"}
	svc, _, _ := newTestService(t, WithBlueprints(custom, nil))

	bp, ok := svc.Blueprint(domain.EntityMicrogrid)
	require.True(t, ok)
	require.Same(t, custom, bp)
	require.Contains(t, svc.Kinds(), domain.EntityBus)
	require.Error(t, svc.RegisterBlueprint(nil))
	require.Error(t, svc.RegisterBlueprint(&Blueprint{}))

	mg, _, err := svc.Make(context.Background(), domain.EntityMicrogrid, nil, "", nil)
	require.NoError(t, err)
	require.Equal(t, "Grid", mg.Name())

	require.NoError(t, svc.RegisterBlueprint(&Blueprint{Kind: "widget"}))
	_, ok = svc.Blueprint("widget")
	require.True(t, ok)
}

func TestServiceClockDrivesAuditTimestamps(t *testing.T) {
	base := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	calls := 0
	clock := ClockFunc(func() time.Time {
		calls++
		return base.Add(time.Duration(calls) * time.Second)
	})
	o := newObservedService(t, WithClock(clock))

	_, _, err := o.svc.Make(context.Background(), domain.EntityMicrogrid, nil, "MG", nil)
	require.NoError(t, err)
	require.Len(t, o.audit.entries, 1)
	require.Equal(t, base.Add(time.Second), o.audit.entries[0].Timestamp)
	require.Equal(t, time.Second, o.audit.entries[0].Duration)
}

func TestExpvarMetricsRecorder(t *testing.T) {
	rec := NewExpvarMetricsRecorder("")
	require.NotEmpty(t, rec.Name())
	svc, _, _ := newTestService(t, WithMetricsRecorder(rec))
	ctx := context.Background()

	mg, _, err := svc.Make(ctx, domain.EntityMicrogrid, nil, "MG", nil)
	require.NoError(t, err)
	_, _, err = svc.Make(ctx, domain.EntityBus, mg, "B", Options{"retrofit_cost": -3})
	require.NoError(t, err)
	_, _, err = svc.Make(ctx, domain.EntityBus, nil, "B", nil)
	require.Error(t, err)

	snap := rec.Snapshot()
	require.Equal(t, int64(1), snap.Results["make_microgrid"]["success"])
	require.Equal(t, int64(1), snap.Results["make_bus"]["success"])
	require.Equal(t, int64(1), snap.Results["make_bus"]["error"])
	require.Equal(t, int64(1), snap.Outcomes[retrofitChannel][domain.StatusRejected])
	require.Equal(t, int64(1), snap.Outcomes["AddModelCanceled"][domain.StatusApplied])
}

func TestPrometheusMetricsRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusMetricsRecorder(reg)
	require.NoError(t, err)
	_, err = NewPrometheusMetricsRecorder(reg)
	require.Error(t, err, "duplicate registration must fail")

	svc, _, _ := newTestService(t, WithMetricsRecorder(rec))
	ctx := context.Background()
	mg, _, err := svc.Make(ctx, domain.EntityMicrogrid, nil, "MG", nil)
	require.NoError(t, err)
	_, _, err = svc.Make(ctx, domain.EntityBus, mg, "B", Options{"retrofit_cost": -3})
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)
	found := map[string]bool{}
	for _, mf := range families {
		found[mf.GetName()] = true
		if mf.GetName() != "mdtcore_mutations_total" {
			continue
		}
		var rejected float64
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["channel"] == retrofitChannel && labels["status"] == string(domain.StatusRejected) {
				rejected += m.GetCounter().GetValue()
			}
		}
		require.Equal(t, 1.0, rejected)
	}
	require.True(t, found["mdtcore_operation_duration_seconds"])
	require.True(t, found["mdtcore_mutations_total"])
}

func TestJSONTracer(t *testing.T) {
	var buf bytes.Buffer
	tracer := NewJSONTracer(&buf)
	svc, _, _ := newTestService(t, WithTracer(tracer))
	ctx := context.Background()

	_, _, err := svc.Make(ctx, domain.EntityMicrogrid, nil, "MG", nil)
	require.NoError(t, err)
	_, _, err = svc.Make(ctx, "nothing", nil, "", nil)
	require.Error(t, err)

	entries := tracer.Entries()
	require.Len(t, entries, 2)
	require.Equal(t, "make_microgrid", entries[0].Operation)
	require.Equal(t, "success", entries[0].Status)
	require.Equal(t, "error", entries[1].Status)
	require.NotEmpty(t, entries[1].Error)

	dec := json.NewDecoder(&buf)
	var first JSONTraceEntry
	require.NoError(t, dec.Decode(&first))
	require.Equal(t, "make_microgrid", first.Operation)

	quiet := NewJSONTracer(nil)
	_, span := quiet.Start(ctx, "op")
	span.End(errors.New("x"))
	require.Len(t, quiet.Entries(), 1)
}

func TestZapLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	svc, _, _ := newTestService(t, WithLogger(NewZapLogger(zap.New(core))))

	_, _, err := svc.Make(context.Background(), domain.EntityBus, nil, "B", nil)
	require.Error(t, err)
	failed := logs.FilterMessage("operation failed").All()
	require.Len(t, failed, 1)
	require.Equal(t, "make_bus", failed[0].ContextMap()["operation"])

	require.IsType(t, noopLogger{}, NewZapLogger(nil))
}

func TestLogrLogger(t *testing.T) {
	var lines []string
	l := NewLogrLogger(funcr.New(func(prefix, args string) {
		lines = append(lines, args)
	}, funcr.Options{Verbosity: 1}))

	l.Debug("debug", "k", 1)
	l.Info("info")
	l.Warn("warn")
	l.Error("error")
	require.Len(t, lines, 4)
	require.Contains(t, lines[2], `"level"="warn"`)
}

func TestApplyWrapsOperation(t *testing.T) {
	o := newObservedService(t)
	diag, err := o.svc.Apply(context.Background(), "configure_prm", func(tx *Transaction) error {
		_, err := tx.ConfigurePRM(Options{"simulation_years": 5})
		return err
	})
	require.NoError(t, err)
	require.Equal(t, 0, diag.Len())
	require.True(t, o.audit.has("configure_prm", AuditStatusSuccess, nil))
	require.Equal(t, 5, mustGet(t, o.svc.Engine().Driver(), "SimulationYears"))
}
