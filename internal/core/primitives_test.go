package core

import (
	"errors"
	"testing"

	"mdtcore/internal/engine"
	"mdtcore/pkg/domain"
)

func TestSetPropertyLedger(t *testing.T) {
	model := engine.NewModel()
	bus := newBus(t, model, "Bus")
	x := NewExecutor()
	sink := domain.NewLog()

	ledger := domain.NewLedger()
	if _, err := x.SetProperty(bus, "RetrofitCost", 12.5, WithSink(sink), WithLedger(ledger)); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, err := x.SetPropertyNoUndo(bus, "Notes", "kept", WithSink(sink), WithLedger(ledger)); err != nil {
		t.Fatalf("set no undo: %v", err)
	}
	if _, err := x.SetProperty(bus, "Location", domain.Point{X: 1, Y: 2}, WithSink(sink), WithLedger(ledger), WithoutUndo()); err != nil {
		t.Fatalf("set without undo: %v", err)
	}
	if ledger.Len() != 1 {
		t.Fatalf("expected one recorded delta, got %d", ledger.Len())
	}

	if err := model.Undo(ledger); err != nil {
		t.Fatalf("undo: %v", err)
	}
	if v := mustGet(t, bus, "RetrofitCost"); v != 0.0 {
		t.Fatalf("expected retrofit cost reverted, got %v", v)
	}
	if v := mustGet(t, bus, "Notes"); v != "kept" {
		t.Fatalf("no-undo change must survive undo, got %v", v)
	}
	if v := mustGet(t, bus, "Location"); v != (domain.Point{X: 1, Y: 2}) {
		t.Fatalf("no-undo change must survive undo, got %v", v)
	}
}

func TestSetIndexedUndo(t *testing.T) {
	model := engine.NewModel()
	spec, err := model.NewEntity(domain.EntitySpecification, "Spec", nil)
	if err != nil {
		t.Fatalf("new spec: %v", err)
	}
	x := NewExecutor()
	ledger := domain.NewLedger()

	if _, err := x.SetIndexed(spec, "Efficiencies", 2, 0.9, WithSink(domain.NewLog()), WithLedger(ledger)); err != nil {
		t.Fatalf("set indexed: %v", err)
	}
	if _, err := x.SetIndexedNoUndo(spec, "Efficiencies", 3, 0.8, WithSink(domain.NewLog()), WithLedger(ledger)); err != nil {
		t.Fatalf("set indexed no undo: %v", err)
	}
	if err := model.Undo(ledger); err != nil {
		t.Fatalf("undo: %v", err)
	}
	if v, _ := spec.GetIndexed("Efficiencies", 2); v != 0.0 {
		t.Fatalf("expected index 2 reverted, got %v", v)
	}
	if v, _ := spec.GetIndexed("Efficiencies", 3); v != 0.8 {
		t.Fatalf("expected index 3 kept, got %v", v)
	}
}

func TestAddVariants(t *testing.T) {
	model := engine.NewModel()
	x := NewExecutor()
	sink := domain.NewLog()

	bus := newBus(t, model, "Bus")
	hazard, _ := model.NewEntity(domain.EntityHazard, "Flood", nil)
	spec, _ := model.NewEntity(domain.EntitySpecification, "Spec", nil)
	mg, _ := model.NewEntity(domain.EntityMicrogrid, "MG", nil)

	ledger := domain.NewLedger()
	if out, err := x.Add(mg, "Busses", "AddBusCanceled", bus, WithSink(sink), WithLedger(ledger)); err != nil || !out.IsApplied() {
		t.Fatalf("add: %v %+v", err, out)
	}
	if out, err := x.Add2(bus, "FragilityCurves", "AddFragilityCurveCanceled", hazard,
		domain.FragilityCurve{Median: 1, Dispersion: 0.3}, WithSink(sink), WithLedger(ledger)); err != nil || !out.IsApplied() {
		t.Fatalf("add2: %v %+v", err, out)
	}
	if out, err := x.Add3NoUndo(spec, "OperatingPoints", "AddOperatingPointCanceled", 1.0, 0.5, 2, WithSink(sink)); err != nil || !out.IsApplied() {
		t.Fatalf("add3: %v %+v", err, out)
	}
	if ledger.Len() != 2 {
		t.Fatalf("expected two recorded adds, got %d", ledger.Len())
	}

	dup := newBus(t, model, "Bus")
	out, err := x.AddNoUndo(mg, "Busses", "AddBusCanceled", dup, WithSink(sink))
	if err != nil {
		t.Fatalf("add duplicate: %v", err)
	}
	if !out.IsRejected() || tags(out.Diagnostics)[0] != "E0100" {
		t.Fatalf("expected duplicate name rejection, got %+v", out)
	}

	if _, err := x.Add2NoUndo(mg, "Busses", "AddBusCanceled", bus, bus, WithSink(sink)); !errors.Is(err, domain.ErrArity) {
		t.Fatalf("expected ErrArity, got %v", err)
	}
	if _, err := x.Add3(bus, "Specifications", "AddSpecificationCanceled", spec, spec, spec, WithSink(sink)); !errors.Is(err, domain.ErrArity) {
		t.Fatalf("expected ErrArity, got %v", err)
	}

	if err := model.Undo(ledger); err != nil {
		t.Fatalf("undo: %v", err)
	}
	if names := memberNames(t, mg, "Busses"); len(names) != 0 {
		t.Fatalf("expected busses emptied by undo, got %v", names)
	}
}

func TestAddChannelOverride(t *testing.T) {
	model := engine.NewModel()
	mg, _ := model.NewEntity(domain.EntityMicrogrid, "MG", nil)
	bus := newBus(t, model, "Bus")

	_, err := NewExecutor().Add(mg, "Busses", "AddBusCanceled", bus, WithChannel("Bogus"), WithSink(domain.NewLog()))
	if !errors.Is(err, domain.ErrUnknownChannel) {
		t.Fatalf("expected overridden channel to be used, got %v", err)
	}
	if names := memberNames(t, mg, "Busses"); len(names) != 0 {
		t.Fatalf("add must not run on unknown channel, got %v", names)
	}
}
