package engine

import (
	"fmt"

	"mdtcore/pkg/domain"
)

// RetrofitBudgetPlugin caps the retrofit cost any single component may carry.
type RetrofitBudgetPlugin struct {
	Limit float64
}

func (RetrofitBudgetPlugin) Name() string    { return "retrofit_budget" }
func (RetrofitBudgetPlugin) Version() string { return "1.0.0" }

func (p RetrofitBudgetPlugin) Register(r *PluginRegistry) error {
	if p.Limit <= 0 {
		return fmt.Errorf("retrofit budget must be positive, got %g", p.Limit)
	}
	r.RegisterRule(retrofitBudgetRule{limit: p.Limit})
	return nil
}

type retrofitBudgetRule struct{ limit float64 }

func (retrofitBudgetRule) Name() string { return "retrofit_budget" }

func (r retrofitBudgetRule) Evaluate(_ domain.RuleView, p domain.Proposal) (*domain.Log, error) {
	res := domain.NewLog()
	if p.Action != domain.ActionSet || p.Facet != "RetrofitCost" {
		return res, nil
	}
	if n, ok := asFloat(p.Value); ok && n > r.limit {
		res.Errorf("E0900", "retrofit cost of %s %q exceeds the budget of %g (got %g)",
			p.Target.Kind().Display(), p.Target.Name(), r.limit, n)
	}
	return res, nil
}
