package core

import (
	"mdtcore/pkg/domain"
)

func (x *Executor) set(target domain.Mutable, facet string, value any, cfg callConfig, ledger *domain.Ledger) (domain.Outcome, error) {
	if isNil(target) {
		return domain.Outcome{}, domain.ErrNilTarget
	}
	channel := cfg.channel
	if channel == "" {
		channel = domain.ChangeChannel(facet)
	}
	return x.Execute(target, channel, func() error {
		return target.Set(facet, value, ledger)
	}, cfg.sinkOrDefault())
}

// SetProperty assigns a facet, recording the delta into the call ledger.
func (x *Executor) SetProperty(target domain.Mutable, facet string, value any, opts ...CallOption) (domain.Outcome, error) {
	cfg := newCallConfig(opts)
	return x.set(target, facet, value, cfg, cfg.ledgerOrNew())
}

// SetPropertyNoUndo assigns a facet without capturing an undo step.
func (x *Executor) SetPropertyNoUndo(target domain.Mutable, facet string, value any, opts ...CallOption) (domain.Outcome, error) {
	return x.set(target, facet, value, newCallConfig(opts), nil)
}

func (x *Executor) setIndexed(target domain.Mutable, facet string, index, value any, cfg callConfig, ledger *domain.Ledger) (domain.Outcome, error) {
	if isNil(target) {
		return domain.Outcome{}, domain.ErrNilTarget
	}
	channel := cfg.channel
	if channel == "" {
		channel = domain.ChangeChannel(facet)
	}
	return x.Execute(target, channel, func() error {
		return target.SetIndexed(facet, index, value, ledger)
	}, cfg.sinkOrDefault())
}

// SetIndexed assigns the value of an indexed facet with undo.
func (x *Executor) SetIndexed(target domain.Mutable, facet string, index, value any, opts ...CallOption) (domain.Outcome, error) {
	cfg := newCallConfig(opts)
	return x.setIndexed(target, facet, index, value, cfg, cfg.ledgerOrNew())
}

// SetIndexedNoUndo assigns the value of an indexed facet without undo.
func (x *Executor) SetIndexedNoUndo(target domain.Mutable, facet string, index, value any, opts ...CallOption) (domain.Outcome, error) {
	return x.setIndexed(target, facet, index, value, newCallConfig(opts), nil)
}

func (x *Executor) add(into domain.Mutable, collection, channel string, args []any, cfg callConfig, ledger *domain.Ledger) (domain.Outcome, error) {
	if isNil(into) {
		return domain.Outcome{}, domain.ErrNilTarget
	}
	if cfg.channel != "" {
		channel = cfg.channel
	}
	return x.Execute(into, channel, func() error {
		return into.Add(collection, ledger, args...)
	}, cfg.sinkOrDefault())
}

// Add appends item to a collection, firing channel on rejection.
func (x *Executor) Add(into domain.Mutable, collection, channel string, item any, opts ...CallOption) (domain.Outcome, error) {
	cfg := newCallConfig(opts)
	return x.add(into, collection, channel, []any{item}, cfg, cfg.ledgerOrNew())
}

// AddNoUndo is Add without an undo step.
func (x *Executor) AddNoUndo(into domain.Mutable, collection, channel string, item any, opts ...CallOption) (domain.Outcome, error) {
	return x.add(into, collection, channel, []any{item}, newCallConfig(opts), nil)
}

// Add2 appends a two-argument membership, for example a fragility curve
// keyed by hazard.
func (x *Executor) Add2(into domain.Mutable, collection, channel string, a1, a2 any, opts ...CallOption) (domain.Outcome, error) {
	cfg := newCallConfig(opts)
	return x.add(into, collection, channel, []any{a1, a2}, cfg, cfg.ledgerOrNew())
}

// Add2NoUndo is Add2 without an undo step.
func (x *Executor) Add2NoUndo(into domain.Mutable, collection, channel string, a1, a2 any, opts ...CallOption) (domain.Outcome, error) {
	return x.add(into, collection, channel, []any{a1, a2}, newCallConfig(opts), nil)
}

// Add3 appends a three-argument membership.
func (x *Executor) Add3(into domain.Mutable, collection, channel string, a1, a2, a3 any, opts ...CallOption) (domain.Outcome, error) {
	cfg := newCallConfig(opts)
	return x.add(into, collection, channel, []any{a1, a2, a3}, cfg, cfg.ledgerOrNew())
}

// Add3NoUndo is Add3 without an undo step.
func (x *Executor) Add3NoUndo(into domain.Mutable, collection, channel string, a1, a2, a3 any, opts ...CallOption) (domain.Outcome, error) {
	return x.add(into, collection, channel, []any{a1, a2, a3}, newCallConfig(opts), nil)
}
