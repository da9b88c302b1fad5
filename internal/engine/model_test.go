package engine

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"mdtcore/pkg/domain"
)

func newObj(t *testing.T, m *Model, kind domain.EntityType, name string, parent domain.Entity) *Object {
	t.Helper()
	e, err := m.NewEntity(kind, name, parent)
	if err != nil {
		t.Fatalf("new %s: %v", kind, err)
	}
	return e.(*Object)
}

func subscribe(t *testing.T, o *Object, channel string) *domain.Log {
	t.Helper()
	captured := domain.NewLog()
	unsubscribe, err := o.Subscribe(channel, func(diag *domain.Log) { captured.Merge(diag) })
	if err != nil {
		t.Fatalf("subscribe %s: %v", channel, err)
	}
	t.Cleanup(unsubscribe)
	return captured
}

func TestNewModelCreatesRootsAndChildren(t *testing.T) {
	m := NewModel(WithName("camp"))
	if m.Name() != "camp" {
		t.Fatalf("unexpected name %q", m.Name())
	}
	if m.Driver().Kind() != domain.EntityDriver || m.Site().Kind() != domain.EntitySite {
		t.Fatalf("unexpected roots")
	}
	pu, err := m.Site().Get("PowerUtility")
	if err != nil {
		t.Fatalf("get utility: %v", err)
	}
	if e, ok := pu.(domain.Entity); !ok || e.Kind() != domain.EntityPowerUtility {
		t.Fatalf("expected a power utility child, got %v", pu)
	}
	mg := newObj(t, m, domain.EntityMicrogrid, "MG", m.Site())
	for _, facet := range []string{"DieselRefueler", "PropaneRefueler"} {
		v, _ := mg.Get(facet)
		if e, ok := v.(domain.Entity); !ok || e.Kind() != domain.EntityRefueler {
			t.Fatalf("expected %s child, got %v", facet, v)
		}
	}
	if _, err := m.NewEntity("warp_core", "x", nil); !errors.Is(err, domain.ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
}

func TestObjectSetCoercesAndRejects(t *testing.T) {
	m := NewModel()
	bus := newObj(t, m, domain.EntityBus, "B", nil)
	captured := subscribe(t, bus, "ChangeRetrofitCostCanceled")

	if err := bus.Set("RetrofitCost", 3, nil); err != nil {
		t.Fatalf("set int into float facet: %v", err)
	}
	if v, _ := bus.Get("RetrofitCost"); v != 3.0 {
		t.Fatalf("expected coerced 3.0, got %v (%T)", v, v)
	}
	if err := bus.Set("RetrofitCost", -1.0, nil); err != nil {
		t.Fatalf("rejections are not errors: %v", err)
	}
	if captured.Len() != 1 || captured.Entries()[0].Tag != "E0200" || captured.Entries()[0].Facet != "RetrofitCost" {
		t.Fatalf("unexpected rejection %v", captured.Entries())
	}
	if v, _ := bus.Get("RetrofitCost"); v != 3.0 {
		t.Fatalf("rejected value must not apply, got %v", v)
	}
	if err := bus.Set("Voltage", "high", nil); !errors.Is(err, domain.ErrTypeMismatch) {
		t.Fatalf("expected ErrTypeMismatch, got %v", err)
	}
	if err := bus.Set("Warp", 1, nil); !errors.Is(err, domain.ErrUnknownFacet) {
		t.Fatalf("expected ErrUnknownFacet, got %v", err)
	}
	if err := bus.Set("BaselineSpecification", 3, nil); !errors.Is(err, domain.ErrTypeMismatch) {
		t.Fatalf("reference facets need entities, got %v", err)
	}
}

func TestIntFacetRejectsFractionalValues(t *testing.T) {
	m := NewModel()
	driver := m.Driver()
	for _, v := range []any{2.5, math.NaN(), math.Inf(1), float32(0.25)} {
		if err := driver.Set("SimulationYears", v, nil); !errors.Is(err, domain.ErrTypeMismatch) {
			t.Fatalf("Set(SimulationYears, %v): expected ErrTypeMismatch, got %v", v, err)
		}
	}
	if v, _ := driver.Get("SimulationYears"); v != 10 {
		t.Fatalf("rejected values must not apply, got %v", v)
	}
	if err := driver.Set("SimulationYears", 4.0, nil); err != nil {
		t.Fatalf("whole floats convert: %v", err)
	}
	if v, _ := driver.Get("SimulationYears"); v != 4 {
		t.Fatalf("expected 4, got %v (%T)", v, v)
	}
}

func TestSubscribeUnknownChannelAndUnsubscribeOnce(t *testing.T) {
	m := NewModel()
	bus := newObj(t, m, domain.EntityBus, "B", nil)
	if _, err := bus.Subscribe("Nope", func(*domain.Log) {}); !errors.Is(err, domain.ErrUnknownChannel) {
		t.Fatalf("expected ErrUnknownChannel, got %v", err)
	}
	if _, err := bus.Subscribe("ChangeNotesCanceled", nil); err == nil {
		t.Fatalf("expected error for nil handler")
	}
	unsub, err := bus.Subscribe("ChangeNotesCanceled", func(*domain.Log) {})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	other, _ := bus.Subscribe("ChangeNotesCanceled", func(*domain.Log) {})
	unsub()
	unsub()
	if n := bus.SubscriberCount("ChangeNotesCanceled"); n != 1 {
		t.Fatalf("double unsubscribe must remove one handler, got %d left", n)
	}
	other()
	if n := bus.SubscriberCount("ChangeNotesCanceled"); n != 0 {
		t.Fatalf("expected no handlers, got %d", n)
	}
}

func TestMembershipRules(t *testing.T) {
	m := NewModel()
	mg := newObj(t, m, domain.EntityMicrogrid, "MG", m.Site())
	other := newObj(t, m, domain.EntityMicrogrid, "Other", m.Site())
	bus := newObj(t, m, domain.EntityBus, "B", mg)
	captured := subscribe(t, mg, "AddBusCanceled")

	if err := mg.Add("Busses", nil, bus); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := mg.Add("Busses", nil, bus); err != nil {
		t.Fatalf("add again: %v", err)
	}
	twin := newObj(t, m, domain.EntityBus, "B", mg)
	if err := mg.Add("Busses", nil, twin); err != nil {
		t.Fatalf("add twin: %v", err)
	}
	if got := []string{captured.Entries()[0].Tag, captured.Entries()[1].Tag}; got[0] != "E0101" || got[1] != "E0100" {
		t.Fatalf("unexpected tags %v", got)
	}

	node := newObj(t, m, domain.EntityNode, "N", mg)
	if err := mg.Add("Busses", nil, node); err != nil {
		t.Fatalf("add node: %v", err)
	}
	if tag := captured.Entries()[2].Tag; tag != "E0301" {
		t.Fatalf("expected member kind rejection, got %s", tag)
	}

	gen := newObj(t, m, domain.EntityDieselGenerator, "G", bus)
	tank := newObj(t, m, domain.EntityDieselTank, "T", other)
	tanks := subscribe(t, gen, "AddTankCanceled")
	if err := gen.Add("Tanks", nil, tank); err != nil {
		t.Fatalf("add tank: %v", err)
	}
	if tanks.Len() != 1 || tanks.Entries()[0].Tag != "E0400" {
		t.Fatalf("expected cross-microgrid tank rejection, got %v", tanks.Entries())
	}

	members, _ := mg.Members("Busses")
	if len(members) != 1 {
		t.Fatalf("expected one bus, got %d", len(members))
	}
	if _, err := mg.Members("Warp"); !errors.Is(err, domain.ErrUnknownCollection) {
		t.Fatalf("expected ErrUnknownCollection, got %v", err)
	}
}

func TestRejectionHandlerMayReenterModel(t *testing.T) {
	m := NewModel()
	bus := newObj(t, m, domain.EntityBus, "B", nil)
	var seen any
	unsub, err := bus.Subscribe("ChangeRetrofitCostCanceled", func(*domain.Log) {
		seen, _ = bus.Get("RetrofitCost")
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer unsub()
	if err := bus.Set("RetrofitCost", -5.0, nil); err != nil {
		t.Fatalf("set: %v", err)
	}
	if seen != 0.0 {
		t.Fatalf("handler should observe the unchanged value, got %v", seen)
	}
}

func TestUndoRevertsNewestFirst(t *testing.T) {
	m := NewModel()
	mg := newObj(t, m, domain.EntityMicrogrid, "MG", m.Site())
	tank := newObj(t, m, domain.EntityDieselTank, "T", mg)
	spec := newObj(t, m, domain.EntitySpecification, "S", nil)
	ledger := domain.NewLedger()

	mustNoErr(t, mg.Set("Notes", "a", ledger))
	mustNoErr(t, mg.Set("Notes", "b", ledger))
	mustNoErr(t, mg.SetIndexed("UseInfiniteDieselFuel", tank, true, ledger))
	mustNoErr(t, spec.SetIndexed("Efficiencies", 1, 0.5, ledger))
	mustNoErr(t, mg.Add("DieselTanks", ledger, tank))
	if ledger.Len() != 5 {
		t.Fatalf("expected 5 deltas, got %d", ledger.Len())
	}

	mustNoErr(t, m.Undo(ledger))
	if v, _ := mg.Get("Notes"); v != "" {
		t.Fatalf("expected notes reverted to default, got %v", v)
	}
	if v, _ := mg.GetIndexed("UseInfiniteDieselFuel", tank); v != false {
		t.Fatalf("expected indexed value reverted, got %v", v)
	}
	if v, _ := spec.GetIndexed("Efficiencies", 1); v != 0.0 {
		t.Fatalf("expected efficiency reverted, got %v", v)
	}
	if members, _ := mg.Members("DieselTanks"); len(members) != 0 {
		t.Fatalf("expected tank removed, got %d", len(members))
	}
	if ledger.Len() != 0 {
		t.Fatalf("undo must reset the ledger")
	}
	if err := m.Undo(nil); err != nil {
		t.Fatalf("nil ledger is a no-op: %v", err)
	}
}

func TestUndoUnknownObject(t *testing.T) {
	m := NewModel()
	ledger := domain.NewLedger()
	ledger.Record(domain.Change{Entity: domain.EntityBus, EntityID: "missing", Action: domain.ActionSet, Facet: "Notes"})
	ledger.Record(domain.Change{Entity: domain.EntityDriver, EntityID: m.Driver().UID(), Action: domain.ActionCreate})
	err := m.Undo(ledger)
	if !errors.Is(err, domain.ErrNotFound) || !errors.Is(err, domain.ErrUndoNotSupported) {
		t.Fatalf("expected joined errors, got %v", err)
	}
}

func TestUndoCreateForgetsObjectAndChildren(t *testing.T) {
	m := NewModel()
	mg := newObj(t, m, domain.EntityMicrogrid, "MG", m.Site())
	refueler, _ := mg.Get("DieselRefueler")
	ledger := domain.NewLedger()
	ledger.Record(domain.Change{Entity: domain.EntityMicrogrid, EntityID: mg.UID(), Action: domain.ActionCreate, Args: []any{mg}})
	mustNoErr(t, mg.ResetUID("renamed"))

	mustNoErr(t, m.Undo(ledger))
	for _, uid := range []string{"renamed", refueler.(domain.Entity).UID()} {
		if _, ok := m.Lookup(uid); ok {
			t.Fatalf("expected %s forgotten", uid)
		}
	}
}

func TestResetUID(t *testing.T) {
	n := 0
	m := NewModel(WithIDGenerator(func() string { n++; return fmt.Sprintf("id-%d", n) }))
	bus := newObj(t, m, domain.EntityBus, "B", nil)
	old := bus.UID()
	if err := bus.ResetUID(m.Driver().UID()); err == nil {
		t.Fatalf("expected collision error")
	}
	mustNoErr(t, bus.ResetUID(old))
	mustNoErr(t, bus.ResetUID("fresh"))
	if _, ok := m.Lookup("fresh"); !ok {
		t.Fatalf("expected lookup by new uid")
	}
	if _, ok := m.Lookup(old); ok {
		t.Fatalf("old uid must be released")
	}
}

func TestMasterList(t *testing.T) {
	m := NewModel()
	tier := newObj(t, m, domain.EntityLoadTier, "Critical", m.Driver())
	mustNoErr(t, m.Driver().Add("LoadTiers", nil, tier))
	list, err := m.MasterList("LoadTiers")
	if err != nil || len(list) != 1 || list[0].Name() != "Critical" {
		t.Fatalf("unexpected master list %v %v", list, err)
	}
}

func mustNoErr(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
