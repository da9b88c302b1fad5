package engine

import (
	"mdtcore/pkg/domain"
)

// RulesEngine orchestrates rule evaluation.
type RulesEngine struct {
	rules []domain.Rule
}

// NewRulesEngine constructs an engine instance.
func NewRulesEngine() *RulesEngine {
	return &RulesEngine{}
}

// NewDefaultRulesEngine builds a rules engine with the built-in policy set.
func NewDefaultRulesEngine() *RulesEngine {
	engine := NewRulesEngine()
	engine.Register(NewUniqueNameRule())
	engine.Register(NewNonNegativeRule())
	engine.Register(NewMemberKindRule())
	engine.Register(NewTankMicrogridRule())
	return engine
}

// Register appends a rule to the engine.
func (e *RulesEngine) Register(rule domain.Rule) {
	if rule == nil {
		return
	}
	e.rules = append(e.rules, rule)
}

// Rules returns the registered rule names in order.
func (e *RulesEngine) Rules() []string {
	out := make([]string, 0, len(e.rules))
	for _, r := range e.rules {
		out = append(out, r.Name())
	}
	return out
}

// Evaluate executes all registered rules and aggregates their diagnostics.
func (e *RulesEngine) Evaluate(view domain.RuleView, proposal domain.Proposal) (*domain.Log, error) {
	combined := domain.NewLog()
	for _, rule := range e.rules {
		res, err := rule.Evaluate(view, proposal)
		if err != nil {
			return nil, err
		}
		combined.Merge(res)
	}
	return combined, nil
}
