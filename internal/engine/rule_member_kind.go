package engine

import (
	"mdtcore/pkg/domain"
)

// NewMemberKindRule rejects references and memberships whose entity kind
// the target's schema does not accept.
func NewMemberKindRule() domain.Rule {
	return memberKindRule{}
}

type memberKindRule struct{}

func (memberKindRule) Name() string { return "member_kind" }

func (memberKindRule) Evaluate(_ domain.RuleView, p domain.Proposal) (*domain.Log, error) {
	res := domain.NewLog()
	o, ok := p.Target.(*Object)
	if !ok {
		return res, nil
	}
	switch p.Action {
	case domain.ActionSet:
		fs := o.schema.Facets[p.Facet]
		e, isEntity := p.Value.(domain.Entity)
		if !fs.isRef() || !isEntity {
			return res, nil
		}
		if !accepts(fs.Accepts, e.Kind()) {
			res.Errorf("E0300", "%s of %s %q cannot refer to %s %q",
				p.Facet, o.Kind().Display(), o.Name(), e.Kind().Display(), e.Name())
		}
	case domain.ActionAdd:
		cs := o.schema.Collections[p.Collection]
		for i, arg := range p.Args {
			e, isEntity := arg.(domain.Entity)
			if !isEntity || i >= len(cs.Args) {
				continue
			}
			if !accepts(cs.Args[i].Accepts, e.Kind()) {
				res.Errorf("E0301", "%s of %s %q cannot hold %s %q",
					p.Collection, o.Kind().Display(), o.Name(), e.Kind().Display(), e.Name())
			}
		}
	}
	return res, nil
}
