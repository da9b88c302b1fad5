package engine

import (
	"mdtcore/pkg/domain"
)

// NewUniqueNameRule rejects adding an entity to a collection that already
// holds an entity with the same display name, or the same entity twice.
func NewUniqueNameRule() domain.Rule {
	return uniqueNameRule{}
}

type uniqueNameRule struct{}

func (uniqueNameRule) Name() string { return "unique_name" }

func (uniqueNameRule) Evaluate(view domain.RuleView, p domain.Proposal) (*domain.Log, error) {
	res := domain.NewLog()
	if p.Action != domain.ActionAdd || len(p.Args) == 0 {
		return res, nil
	}
	candidate, ok := p.Args[len(p.Args)-1].(domain.Entity)
	if !ok {
		return res, nil
	}
	for _, existing := range view.Members(p.Target, p.Collection) {
		switch {
		case existing.UID() == candidate.UID():
			res.Errorf("E0101", "%s already belongs to %s of %s %q",
				candidate.Name(), p.Collection, p.Target.Kind().Display(), p.Target.Name())
			return res, nil
		case existing.Name() == candidate.Name():
			res.Errorf("E0100", "%s of %s %q already contains an entity named %q",
				p.Collection, p.Target.Kind().Display(), p.Target.Name(), candidate.Name())
			return res, nil
		}
	}
	return res, nil
}
