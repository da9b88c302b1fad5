package engine

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"mdtcore/pkg/domain"
)

func buildSampleModel(t *testing.T) (*Model, map[string]*Object) {
	t.Helper()
	saved := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	m := NewModel(WithName("camp"), WithClock(func() time.Time { return saved }))
	site, driver := m.Site(), m.Driver()

	mg := newObj(t, m, domain.EntityMicrogrid, "MG", site)
	bus := newObj(t, m, domain.EntityBus, "B1", mg)
	tank := newObj(t, m, domain.EntityDieselTank, "T1", mg)
	gen := newObj(t, m, domain.EntityDieselGenerator, "G1", bus)
	spec := newObj(t, m, domain.EntitySpecification, "Spec", driver)
	hazard := newObj(t, m, domain.EntityHazard, "Flood", nil)
	newObj(t, m, domain.EntityBus, "Loose", nil)

	mustNoErr(t, site.Add("Models", nil, mg))
	mustNoErr(t, mg.Add("Busses", nil, bus))
	mustNoErr(t, mg.Add("DieselTanks", nil, tank))
	mustNoErr(t, bus.Add("DieselGenerators", nil, gen))
	mustNoErr(t, gen.Add("Tanks", nil, tank))
	mustNoErr(t, gen.Add("FragilityCurves", nil, hazard, domain.FragilityCurve{Median: 2, Dispersion: 0.4}))
	mustNoErr(t, gen.Set("BaselineSpecification", spec, nil))
	mustNoErr(t, driver.Add(domain.SpecificationList(domain.EntityDieselGenerator), nil, spec))
	mustNoErr(t, spec.SetIndexed("Efficiencies", 2, 0.9, nil))
	mustNoErr(t, spec.Add("OperatingPoints", nil, 1.0, 2.0, 3.0))
	mustNoErr(t, mg.SetIndexed("UseInfiniteDieselFuel", tank, true, nil))
	mustNoErr(t, mg.Set("ControllerType", domain.ControllerCycle, nil))
	mustNoErr(t, bus.Set("Voltage", domain.Complex{Real: 480}, nil))

	return m, map[string]*Object{"mg": mg, "bus": bus, "tank": tank, "gen": gen, "spec": spec}
}

func TestExportSkipsUnreachableEntities(t *testing.T) {
	m, _ := buildSampleModel(t)
	snap, err := m.Export()
	mustNoErr(t, err)

	if snap.Version != domain.SnapshotVersion || snap.Name != "camp" {
		t.Fatalf("unexpected header %+v", snap)
	}
	if !snap.SavedAt.Equal(time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)) {
		t.Fatalf("snapshot must be stamped by the model clock, got %v", snap.SavedAt)
	}
	names := map[string]bool{}
	for _, rec := range snap.Objects {
		names[rec.Name] = true
	}
	for _, want := range []string{"Driver", "Site", "PowerUtility", "MG", "B1", "T1", "G1", "Spec", "Flood", "DieselRefueler"} {
		if !names[want] {
			t.Fatalf("expected %s in snapshot, got %v", want, names)
		}
	}
	if names["Loose"] {
		t.Fatalf("unattached entities must be dropped")
	}
}

func TestSnapshotRoundTripThroughJSON(t *testing.T) {
	src, objs := buildSampleModel(t)
	snap, err := src.Export()
	mustNoErr(t, err)
	raw, err := json.Marshal(snap)
	mustNoErr(t, err)
	var decoded domain.ModelSnapshot
	mustNoErr(t, json.Unmarshal(raw, &decoded))

	dst := NewModel()
	mustNoErr(t, dst.Import(decoded))
	if dst.Name() != "camp" {
		t.Fatalf("expected imported name, got %q", dst.Name())
	}
	lookup := func(key string) *Object {
		t.Helper()
		o, ok := dst.Lookup(objs[key].UID())
		if !ok {
			t.Fatalf("missing %s after import", key)
		}
		return o.(*Object)
	}
	mg, bus, tank, gen, spec := lookup("mg"), lookup("bus"), lookup("tank"), lookup("gen"), lookup("spec")

	models, _ := dst.Site().Members("Models")
	if len(models) != 1 || models[0] != domain.Entity(mg) {
		t.Fatalf("unexpected models %v", models)
	}
	if v, _ := mg.Get("ControllerType"); v != domain.ControllerCycle {
		t.Fatalf("unexpected controller %v", v)
	}
	if v, _ := mg.GetIndexed("UseInfiniteDieselFuel", tank); v != true {
		t.Fatalf("entity-indexed value lost, got %v", v)
	}
	if v, _ := spec.GetIndexed("Efficiencies", 2); v != 0.9 {
		t.Fatalf("int-indexed value lost, got %v", v)
	}
	if v, _ := bus.Get("Voltage"); v != (domain.Complex{Real: 480}) {
		t.Fatalf("unexpected voltage %v", v)
	}
	if v, _ := gen.Get("BaselineSpecification"); v != domain.Entity(spec) {
		t.Fatalf("reference not rewired, got %v", v)
	}
	if gen.Parent() != domain.Entity(bus) {
		t.Fatalf("parent not rewired")
	}
	curves, _ := gen.Entries("FragilityCurves")
	if len(curves) != 1 {
		t.Fatalf("expected one fragility curve, got %d", len(curves))
	}
	if diff := cmp.Diff(domain.FragilityCurve{Median: 2, Dispersion: 0.4}, curves[0][1]); diff != "" {
		t.Fatalf("curve mismatch (-want +got):\n%s", diff)
	}
	points, _ := spec.Entries("OperatingPoints")
	if diff := cmp.Diff([][]any{{1.0, 2.0, 3.0}}, points); diff != "" {
		t.Fatalf("operating points mismatch (-want +got):\n%s", diff)
	}

	// Imported objects stay live: rules and undo keep working.
	twin := newObj(t, dst, domain.EntityBus, "B1", mg)
	rejected := subscribe(t, mg, "AddBusCanceled")
	mustNoErr(t, mg.Add("Busses", nil, twin))
	if rejected.Len() != 1 || rejected.Entries()[0].Tag != "E0100" {
		t.Fatalf("expected duplicate name rejection after import, got %v", rejected.Entries())
	}
}

func TestImportRejectsBadSnapshots(t *testing.T) {
	src, _ := buildSampleModel(t)
	good, err := src.Export()
	mustNoErr(t, err)

	cases := map[string]struct {
		mutate func(*domain.ModelSnapshot)
		want   error
	}{
		"version": {mutate: func(s *domain.ModelSnapshot) { s.Version = 99 }, want: domain.ErrUnsupportedVersion},
		"kind":    {mutate: func(s *domain.ModelSnapshot) { s.Objects[0].Kind = "warp_core" }, want: domain.ErrUnknownKind},
		"driver":  {mutate: func(s *domain.ModelSnapshot) { s.Driver = "nobody" }, want: domain.ErrNotFound},
		"facet": {mutate: func(s *domain.ModelSnapshot) {
			s.Objects[1].Facets = map[string]domain.Value{"Warp": {Raw: json.RawMessage(`1`)}}
		}, want: domain.ErrUnknownFacet},
		"parent": {mutate: func(s *domain.ModelSnapshot) { s.Objects[1].Parent = "ghost" }, want: domain.ErrNotFound},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			raw, _ := json.Marshal(good)
			var snap domain.ModelSnapshot
			mustNoErr(t, json.Unmarshal(raw, &snap))
			tc.mutate(&snap)

			dst := NewModel(WithName("kept"))
			site := dst.Site()
			if err := dst.Import(snap); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if dst.Name() != "kept" || dst.Site() != site {
				t.Fatalf("failed import must leave the model untouched")
			}
		})
	}
}
