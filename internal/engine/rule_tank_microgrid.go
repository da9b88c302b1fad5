package engine

import (
	"mdtcore/pkg/domain"
)

// NewTankMicrogridRule rejects connecting a generator to a tank that lives
// in a different microgrid.
func NewTankMicrogridRule() domain.Rule {
	return tankMicrogridRule{}
}

type tankMicrogridRule struct{}

func (tankMicrogridRule) Name() string { return "tank_microgrid" }

func (tankMicrogridRule) Evaluate(_ domain.RuleView, p domain.Proposal) (*domain.Log, error) {
	res := domain.NewLog()
	if p.Action != domain.ActionAdd || p.Collection != "Tanks" || len(p.Args) != 1 {
		return res, nil
	}
	tank, ok := p.Args[0].(domain.Entity)
	if !ok {
		return res, nil
	}
	genGrid := MicrogridOf(p.Target)
	tankGrid := MicrogridOf(tank)
	if genGrid == nil || tankGrid == nil {
		return res, nil
	}
	if genGrid.UID() != tankGrid.UID() {
		res.Errorf("E0400", "%s %q in microgrid %q cannot draw from tank %q in microgrid %q",
			p.Target.Kind().Display(), p.Target.Name(), genGrid.Name(), tank.Name(), tankGrid.Name())
	}
	return res, nil
}

// MicrogridOf walks the parent chain to the owning microgrid.
func MicrogridOf(e domain.Entity) domain.Entity {
	for e != nil {
		if e.Kind() == domain.EntityMicrogrid {
			return e
		}
		m, ok := e.(interface{ Parent() domain.Entity })
		if !ok {
			return nil
		}
		e = m.Parent()
	}
	return nil
}
