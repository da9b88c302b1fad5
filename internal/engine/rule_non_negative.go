package engine

import (
	"reflect"

	"mdtcore/pkg/domain"
)

var nonNegativeFacets = map[string]struct{}{
	"Length":                    {},
	"RetrofitCost":              {},
	"Capacity":                  {},
	"CapitalCost":               {},
	"OperationalCost":           {},
	"Weight":                    {},
	"MTBF":                      {},
	"MTTR":                      {},
	"Priority":                  {},
	"Duration":                  {},
	"Cost":                      {},
	"Probability":               {},
	"SimulationYears":           {},
	"RefuelingPeriod":           {},
	"RefuelingQuantity":         {},
	"GenRestartDelay":           {},
	"BusSyncDelay":              {},
	"GenSyncDelay":              {},
	"ForecastDuration":          {},
	"StartupGenRestartDelay":    {},
	"StartupBusSyncDelay":       {},
	"StartupGenSyncDelay":       {},
	"GenFailedFormationDelay":   {},
	"NoGenFailedFormationDelay": {},
	"RenewablesStartDelay":      {},
	"Efficiencies":              {},
	"FuelUsages":                {},
	"M":                         {},
}

// NewNonNegativeRule rejects negative values for quantities that cannot be
// negative.
func NewNonNegativeRule() domain.Rule {
	return nonNegativeRule{}
}

type nonNegativeRule struct{}

func (nonNegativeRule) Name() string { return "non_negative" }

func (nonNegativeRule) Evaluate(_ domain.RuleView, p domain.Proposal) (*domain.Log, error) {
	res := domain.NewLog()
	if p.Action != domain.ActionSet && p.Action != domain.ActionSetIndexed {
		return res, nil
	}
	if _, ok := nonNegativeFacets[p.Facet]; !ok {
		return res, nil
	}
	if n, ok := asFloat(p.Value); ok && n < 0 {
		res.Errorf("E0200", "%s of %s %q cannot be negative (got %g)",
			p.Facet, p.Target.Kind().Display(), p.Target.Name(), n)
	}
	return res, nil
}

func asFloat(v any) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	}
	return 0, false
}
