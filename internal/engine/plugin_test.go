package engine

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"mdtcore/pkg/domain"
)

type nameLengthRule struct{ max int }

func (nameLengthRule) Name() string { return "name_length" }

func (r nameLengthRule) Evaluate(_ domain.RuleView, p domain.Proposal) (*domain.Log, error) {
	res := domain.NewLog()
	if p.Action != domain.ActionAdd || len(p.Args) == 0 {
		return res, nil
	}
	if e, ok := p.Args[len(p.Args)-1].(domain.Entity); ok && len(e.Name()) > r.max {
		res.Errorf("X0001", "name %q is longer than %d", e.Name(), r.max)
	}
	return res, nil
}

type failingRule struct{}

func (failingRule) Name() string { return "failing" }

func (failingRule) Evaluate(domain.RuleView, domain.Proposal) (*domain.Log, error) {
	return nil, errors.New("rule backend down")
}

type testPlugin struct {
	name  string
	rules []domain.Rule
	kinds []*KindSchema
	err   error
}

func (p testPlugin) Name() string    { return p.name }
func (p testPlugin) Version() string { return "1.0.0" }

func (p testPlugin) Register(r *PluginRegistry) error {
	if p.err != nil {
		return p.err
	}
	for _, rule := range p.rules {
		r.RegisterRule(rule)
	}
	for _, k := range p.kinds {
		if err := r.RegisterKind(k); err != nil {
			return err
		}
	}
	return nil
}

func TestDefaultRulesOrder(t *testing.T) {
	got := NewDefaultRulesEngine().Rules()
	want := []string{"unique_name", "non_negative", "member_kind", "tank_microgrid"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected rules (-want +got):\n%s", diff)
	}
}

func TestInstallPluginAddsRulesAndKinds(t *testing.T) {
	m := NewModel()
	const kiosk domain.EntityType = "kiosk"
	meta, err := m.InstallPlugin(testPlugin{
		name:  "shortnames",
		rules: []domain.Rule{nameLengthRule{max: 3}, nil},
		kinds: []*KindSchema{NewKindSchema(kiosk, Facet("Notes", ""))},
	})
	mustNoErr(t, err)
	if diff := cmp.Diff(PluginMetadata{Name: "shortnames", Version: "1.0.0", Rules: []string{"name_length"}, Kinds: []domain.EntityType{kiosk}}, meta); diff != "" {
		t.Fatalf("unexpected metadata (-want +got):\n%s", diff)
	}
	if _, ok := m.Schema(kiosk); !ok {
		t.Fatalf("plugin kind not registered")
	}
	if _, err := m.NewEntity(kiosk, "k", nil); err != nil {
		t.Fatalf("new plugin kind: %v", err)
	}

	mg := newObj(t, m, domain.EntityMicrogrid, "MG", m.Site())
	bus := newObj(t, m, domain.EntityBus, "Main", mg)
	rejected := subscribe(t, mg, "AddBusCanceled")
	mustNoErr(t, mg.Add("Busses", nil, bus))
	if rejected.Len() != 1 || rejected.Entries()[0].Tag != "X0001" {
		t.Fatalf("expected plugin rule rejection, got %v", rejected.Entries())
	}
	if rejected.Entries()[0].EntityID != mg.UID() || rejected.Entries()[0].Facet != "Busses" {
		t.Fatalf("rejections must be attributed to the target, got %+v", rejected.Entries()[0])
	}

	if _, err := m.InstallPlugin(testPlugin{name: "shortnames"}); err == nil {
		t.Fatalf("expected duplicate plugin error")
	}
	if _, err := m.InstallPlugin(nil); err == nil {
		t.Fatalf("expected nil plugin error")
	}
	boom := errors.New("boom")
	if _, err := m.InstallPlugin(testPlugin{name: "broken", err: boom}); !errors.Is(err, boom) {
		t.Fatalf("expected register error, got %v", err)
	}
	if got := m.RegisteredPlugins(); len(got) != 1 || got[0].Name != "shortnames" {
		t.Fatalf("unexpected registered plugins %v", got)
	}
}

func TestPluginRegistryRejectsDuplicateKinds(t *testing.T) {
	r := NewPluginRegistry()
	mustNoErr(t, r.RegisterKind(NewKindSchema("a")))
	if err := r.RegisterKind(NewKindSchema("a")); err == nil {
		t.Fatalf("expected duplicate kind error")
	}
	if err := r.RegisterKind(nil); err == nil {
		t.Fatalf("expected nil schema error")
	}
}

func TestRuleErrorsAbortMutation(t *testing.T) {
	rules := NewDefaultRulesEngine()
	rules.Register(failingRule{})
	m := NewModel(WithRules(rules))
	bus := newObj(t, m, domain.EntityBus, "B", nil)
	if err := bus.Set("RetrofitCost", 1.0, nil); err == nil {
		t.Fatalf("expected evaluation error")
	}
	if v, _ := bus.Get("RetrofitCost"); v != 0.0 {
		t.Fatalf("failed evaluation must not mutate, got %v", v)
	}
}

func TestMicrogridOf(t *testing.T) {
	m := NewModel()
	mg := newObj(t, m, domain.EntityMicrogrid, "MG", m.Site())
	bus := newObj(t, m, domain.EntityBus, "B", mg)
	gen := newObj(t, m, domain.EntitySolarGenerator, "PV", bus)
	if got := MicrogridOf(gen); got != domain.Entity(mg) {
		t.Fatalf("expected microgrid, got %v", got)
	}
	if got := MicrogridOf(newObj(t, m, domain.EntityBus, "Loose", nil)); got != nil {
		t.Fatalf("expected nil for a loose bus, got %v", got)
	}
}

func TestRetrofitBudgetPlugin(t *testing.T) {
	m := NewModel()
	if _, err := m.InstallPlugin(RetrofitBudgetPlugin{}); err == nil {
		t.Fatalf("expected a zero budget to be refused")
	}
	meta, err := m.InstallPlugin(RetrofitBudgetPlugin{Limit: 100})
	mustNoErr(t, err)
	if diff := cmp.Diff([]string{"retrofit_budget"}, meta.Rules); diff != "" {
		t.Fatalf("unexpected rules (-want +got):\n%s", diff)
	}

	bus := newObj(t, m, domain.EntityBus, "B", nil)
	rejected := subscribe(t, bus, "ChangeRetrofitCostCanceled")
	mustNoErr(t, bus.Set("RetrofitCost", 100.0, nil))
	mustNoErr(t, bus.Set("RetrofitCost", 250.0, nil))
	if rejected.Len() != 1 || rejected.Entries()[0].Tag != "E0900" {
		t.Fatalf("expected one budget rejection, got %v", rejected.Entries())
	}
	if v, _ := bus.Get("RetrofitCost"); v != 100.0 {
		t.Fatalf("over-budget value must not apply, got %v", v)
	}
}
