package core

import (
	"errors"
	"testing"

	"mdtcore/internal/engine"
	"mdtcore/pkg/domain"
)

const retrofitChannel = "ChangeRetrofitCostCanceled"

func newBus(t *testing.T, model *engine.Model, name string) *engine.Object {
	t.Helper()
	e, err := model.NewEntity(domain.EntityBus, name, nil)
	if err != nil {
		t.Fatalf("new bus: %v", err)
	}
	return e.(*engine.Object)
}

func TestExecuteDetachesListener(t *testing.T) {
	model := engine.NewModel()
	bus := newBus(t, model, "Bus")
	x := NewExecutor()

	cases := []struct {
		name    string
		value   any
		status  domain.Status
		wantErr error
	}{
		{name: "applied", value: 5.0, status: domain.StatusApplied},
		{name: "rejected", value: -1.0, status: domain.StatusRejected},
		{name: "failed", value: "abc", wantErr: domain.ErrTypeMismatch},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sink := domain.NewLog()
			out, err := x.SetProperty(bus, "RetrofitCost", tc.value, WithSink(sink))
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
			} else if err != nil {
				t.Fatalf("set: %v", err)
			}
			if tc.wantErr == nil && out.Status != tc.status {
				t.Fatalf("expected %s, got %s", tc.status, out.Status)
			}
			if n := bus.SubscriberCount(retrofitChannel); n != 0 {
				t.Fatalf("listener still attached: %d", n)
			}
		})
	}
}

func TestNestedRejectionStaysInInnerCall(t *testing.T) {
	model := engine.NewModel()
	bus := newBus(t, model, "Bus")
	x := NewExecutor()
	outer, inner := domain.NewLog(), domain.NewLog()

	var innerOut domain.Outcome
	nested := false
	unsub, err := bus.Subscribe(retrofitChannel, func(*domain.Log) {
		if nested {
			return
		}
		nested = true
		var err error
		innerOut, err = x.SetProperty(bus, "RetrofitCost", -7.0, WithSink(inner))
		if err != nil {
			t.Errorf("inner set: %v", err)
		}
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer unsub()

	out, err := x.SetProperty(bus, "RetrofitCost", -5.0, WithSink(outer))
	if err != nil {
		t.Fatalf("outer set: %v", err)
	}
	if !nested {
		t.Fatalf("handler did not run")
	}
	if out.Diagnostics.Len() != 1 || outer.Len() != 1 {
		t.Fatalf("outer call must keep only its own rejection, got outcome=%d sink=%d", out.Diagnostics.Len(), outer.Len())
	}
	if !innerOut.IsRejected() || innerOut.Diagnostics.Len() != 1 || inner.Len() != 1 {
		t.Fatalf("inner call must own its rejection, got outcome=%v sink=%d", innerOut.Diagnostics, inner.Len())
	}
	if len(x.active) != 0 {
		t.Fatalf("scopes left open: %v", x.active)
	}
	if n := bus.SubscriberCount(retrofitChannel); n != 1 {
		t.Fatalf("only the test handler should remain, got %d", n)
	}
}

func TestExecuteRejectionScope(t *testing.T) {
	model := engine.NewModel()
	bus := newBus(t, model, "Bus")
	x := NewExecutor()

	sink := domain.NewLog(domain.Entry{Category: domain.CategoryInfo, Message: "earlier"})
	out, err := x.SetProperty(bus, "RetrofitCost", -5.0, WithSink(sink))
	if err != nil {
		t.Fatalf("set: %v", err)
	}
	if !out.IsRejected() {
		t.Fatalf("expected rejection")
	}
	if got := tags(out.Diagnostics); len(got) != 1 || got[0] != "E0200" {
		t.Fatalf("outcome should carry only this call's entries, got %v", got)
	}
	if sink.Len() != 2 {
		t.Fatalf("expected rejection merged after existing entry, got %d entries", sink.Len())
	}
	if v := mustGet(t, bus, "RetrofitCost"); v != 0.0 {
		t.Fatalf("rejected value must not apply, got %v", v)
	}
}

func TestExecuteUnknownChannelIsHardError(t *testing.T) {
	model := engine.NewModel()
	bus := newBus(t, model, "Bus")
	x := NewExecutor()

	called := false
	_, err := x.Execute(bus, "ChangeNothingCanceled", func() error {
		called = true
		return nil
	}, domain.NewLog())
	if !errors.Is(err, domain.ErrUnknownChannel) {
		t.Fatalf("expected ErrUnknownChannel, got %v", err)
	}
	var chErr domain.ChannelError
	if !errors.As(err, &chErr) || chErr.Channel != "ChangeNothingCanceled" {
		t.Fatalf("expected channel error naming the channel, got %v", err)
	}
	if called {
		t.Fatalf("action must not run when the channel is unknown")
	}
}

func TestExecuteNilTargetAndAction(t *testing.T) {
	x := NewExecutor()
	if _, err := x.Execute(nil, retrofitChannel, func() error { return nil }, nil); !errors.Is(err, domain.ErrNilTarget) {
		t.Fatalf("expected ErrNilTarget, got %v", err)
	}
	var target *engine.Object
	if _, err := x.SetProperty(target, "RetrofitCost", 1.0); !errors.Is(err, domain.ErrNilTarget) {
		t.Fatalf("expected ErrNilTarget for typed nil, got %v", err)
	}
	bus := newBus(t, engine.NewModel(), "Bus")
	if _, err := x.Execute(bus, retrofitChannel, nil, nil); err == nil {
		t.Fatalf("expected error for nil action")
	}
}

func TestExecuteDefaultsToProcessLog(t *testing.T) {
	bus := newBus(t, engine.NewModel(), "Bus")
	before := domain.DefaultLog().Len()
	out, err := NewExecutor().SetProperty(bus, "RetrofitCost", -1.0)
	if err != nil {
		t.Fatalf("set: %v", err)
	}
	if !out.IsRejected() {
		t.Fatalf("expected rejection")
	}
	if got := domain.DefaultLog().Len() - before; got != 1 {
		t.Fatalf("expected one entry in the default log, got %d", got)
	}
}

func TestExecutorRecordsOutcomes(t *testing.T) {
	bus := newBus(t, engine.NewModel(), "Bus")
	rec := &captureMetricsRecorder{}
	logger := &captureLogger{}
	x := NewExecutor(WithOutcomeRecorder(rec), WithExecutorLogger(logger))

	if _, err := x.SetProperty(bus, "RetrofitCost", 3.0, WithSink(domain.NewLog())); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, err := x.SetProperty(bus, "RetrofitCost", -3.0, WithSink(domain.NewLog())); err != nil {
		t.Fatalf("set: %v", err)
	}
	if rec.outcomes[domain.StatusApplied] != 1 || rec.outcomes[domain.StatusRejected] != 1 {
		t.Fatalf("unexpected outcome counts: %+v", rec.outcomes)
	}
	if !logger.has("warn", "mutation rejected") {
		t.Fatalf("expected rejection to be logged, got %+v", logger.entries)
	}
}
