package core

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"mdtcore/pkg/domain"
)

// Converter turns a raw option value into the facet's value type.
type Converter func(any) (any, error)

// FacetRule is one row of a blueprint's facet table.
type FacetRule struct {
	// Option is the configuration key. An empty option marks a rule that
	// always runs and reads the bag itself.
	Option string
	// Facet is the engine facet the default applier assigns.
	Facet string
	// Default is applied when the option is absent. A nil default skips the
	// rule instead.
	Default any
	Convert Converter
	// Apply replaces the default set-facet applier.
	Apply func(ctx *BuildContext, rule FacetRule, value any) error
	// Channel overrides the facet's rejection channel.
	Channel string
	// When gates the rule on the rest of the bag.
	When func(ctx *BuildContext) bool
}

// Blueprint declares how one entity kind is constructed, configured and
// attached.
type Blueprint struct {
	Kind domain.EntityType
	// Collection and AddChannel name the owner collection the entity joins.
	Collection string
	AddChannel string
	// DefaultName seeds generated names; the kind label is used when empty.
	DefaultName string
	NameFunc    func(ctx *BuildContext) (string, error)
	Required    []string
	// Parent supplies the natural parent when the caller passes none.
	Parent func(ctx *BuildContext) (domain.Entity, error)
	// ParentKinds restricts the kinds a parent may have.
	ParentKinds []domain.EntityType
	Prepare     func(ctx *BuildContext) error
	Facets      []FacetRule
	// Attach replaces the default 1-argument collection add.
	Attach func(ctx *BuildContext, owner domain.Mutable) error
}

// BuildContext carries one builder call through the pipeline.
type BuildContext struct {
	Tx        *Transaction
	Blueprint *Blueprint
	Options   Options
	Name      string
	Parent    domain.Entity
	Entity    domain.Mutable
	// Log holds this call's own diagnostics.
	Log *domain.Log
}

// Build constructs an entity of kind under parent, applies the configured
// facets and attaches it to its owner.
//
// Engine rejections never fail the call: the entity is returned and the
// rejections appear in the returned Log and in the transaction sink. A
// caller that does not inspect either will miss them. Malformed calls return
// an error and no entity.
func (tx *Transaction) Build(kind domain.EntityType, parent domain.Entity, name string, opts Options) (domain.Entity, *domain.Log, error) {
	callLog := domain.NewLog()
	if err := tx.usable(); err != nil {
		return nil, callLog, err
	}
	bp, ok := tx.svc.Blueprint(kind)
	if !ok {
		return nil, callLog, fmt.Errorf("build: %w: %s", domain.ErrUnknownKind, kind)
	}
	if opts == nil {
		opts = Options{}
	}
	ctx := &BuildContext{Tx: tx, Blueprint: bp, Options: opts, Name: name, Parent: parent, Log: callLog}
	defer tx.absorb(callLog)

	entity, err := ctx.run()
	if err != nil {
		tx.svc.logger.Error("build failed", "kind", kind, "name", name, "error", err)
		return nil, callLog, err
	}
	return entity, callLog, nil
}

func (ctx *BuildContext) run() (domain.Entity, error) {
	bp := ctx.Blueprint
	for _, key := range bp.Required {
		if v, ok := ctx.Options[key]; !ok || v == nil {
			return nil, domain.OptionError{Option: key, Err: domain.ErrMissingOption}
		}
	}
	if isNil(ctx.Parent) {
		ctx.Parent = nil
		if bp.Parent != nil {
			p, err := bp.Parent(ctx)
			if err != nil {
				return nil, err
			}
			ctx.Parent = p
		}
	}
	if ctx.Parent == nil && len(bp.ParentKinds) > 0 {
		return nil, fmt.Errorf("%w: a %s needs a parent", domain.ErrMissingOption, bp.Kind.Display())
	}
	if ctx.Parent != nil && len(bp.ParentKinds) > 0 && !kindIn(ctx.Parent.Kind(), bp.ParentKinds) {
		return nil, fmt.Errorf("%w: %s cannot own a %s", domain.ErrInvalidOption, ctx.Parent.Kind().Display(), bp.Kind.Display())
	}
	if bp.Prepare != nil {
		if err := bp.Prepare(ctx); err != nil {
			return nil, err
		}
	}
	if ctx.Name == "" {
		name, err := ctx.defaultName()
		if err != nil {
			return nil, err
		}
		ctx.Name = name
	}

	entity, err := ctx.Tx.svc.engine.NewEntity(bp.Kind, ctx.Name, ctx.Parent)
	if err != nil {
		return nil, fmt.Errorf("construct %s %q: %w", bp.Kind, ctx.Name, err)
	}
	ctx.Entity = entity
	if ctx.Tx.ledger != nil {
		ctx.Tx.ledger.Record(domain.Change{Entity: bp.Kind, EntityID: entity.UID(), Action: domain.ActionCreate, Args: []any{entity}})
	}

	if err := ctx.applyGUID(); err != nil {
		return nil, err
	}
	for _, rule := range bp.Facets {
		if err := ctx.applyRule(rule); err != nil {
			return nil, err
		}
	}
	if err := ctx.attach(); err != nil {
		return nil, err
	}
	return entity, nil
}

// nested builds another entity inside this call. Its diagnostics join this
// call's log.
func (ctx *BuildContext) nested(kind domain.EntityType, parent domain.Entity, name string, opts Options) (domain.Entity, error) {
	bp, ok := ctx.Tx.svc.Blueprint(kind)
	if !ok {
		return nil, fmt.Errorf("build: %w: %s", domain.ErrUnknownKind, kind)
	}
	if opts == nil {
		opts = Options{}
	}
	inner := &BuildContext{Tx: ctx.Tx, Blueprint: bp, Options: opts, Name: name, Parent: parent, Log: ctx.Log}
	return inner.run()
}

func kindIn(kind domain.EntityType, kinds []domain.EntityType) bool {
	for _, k := range kinds {
		if k == kind {
			return true
		}
	}
	return false
}

func (ctx *BuildContext) defaultName() (string, error) {
	bp := ctx.Blueprint
	if bp.NameFunc != nil {
		return bp.NameFunc(ctx)
	}
	base := bp.DefaultName
	if base == "" {
		base = bp.Kind.Label()
	}
	owner, err := ctx.owner()
	if err != nil || owner == nil || bp.Collection == "" {
		return base, nil
	}
	members, err := owner.Members(bp.Collection)
	if err != nil {
		return base, nil
	}
	return MakeUsableName(members, base, 1), nil
}

func (ctx *BuildContext) applyGUID() error {
	raw, ok := ctx.Options["guid"]
	if !ok || raw == nil {
		return nil
	}
	var id uuid.UUID
	switch v := raw.(type) {
	case uuid.UUID:
		id = v
	case string:
		parsed, err := uuid.Parse(v)
		if err != nil {
			return domain.OptionError{Option: "guid", Err: fmt.Errorf("%w: %v", domain.ErrInvalidOption, err)}
		}
		id = parsed
	default:
		return domain.OptionError{Option: "guid", Err: fmt.Errorf("%w: %T", domain.ErrInvalidOption, raw)}
	}
	r, ok := ctx.Entity.(domain.Reidentifier)
	if !ok {
		return domain.OptionError{Option: "guid", Err: errors.New("entity cannot be re-identified")}
	}
	if err := r.ResetUID(id.String()); err != nil {
		return domain.OptionError{Option: "guid", Err: err}
	}
	return nil
}

func (ctx *BuildContext) applyRule(rule FacetRule) error {
	if rule.When != nil && !rule.When(ctx) {
		return nil
	}
	var value any
	if rule.Option != "" {
		v, ok := ctx.Options[rule.Option]
		switch {
		case ok && v != nil:
			value = v
		case rule.Default != nil:
			value = rule.Default
		default:
			return nil
		}
	}
	if rule.Apply != nil {
		return wrapOption(rule.Option, rule.Apply(ctx, rule, value))
	}
	if rule.Convert != nil {
		converted, err := rule.Convert(value)
		if err != nil {
			return domain.OptionError{Option: rule.Option, Err: err}
		}
		value = converted
	}
	return wrapOption(rule.Option, ctx.Set(rule.Facet, value, rule.Channel))
}

func wrapOption(option string, err error) error {
	if err == nil || option == "" {
		return err
	}
	var oe domain.OptionError
	var nf domain.NotFoundError
	if errors.As(err, &oe) || errors.As(err, &nf) {
		return err
	}
	return domain.OptionError{Option: option, Err: err}
}

// owner resolves the attachment target: the explicit owner option, or the
// natural parent. A nil result means no attachment.
func (ctx *BuildContext) owner() (domain.Mutable, error) {
	raw, explicit := ctx.Options.Owner()
	if explicit {
		if raw == nil {
			return nil, nil
		}
		m, ok := raw.(domain.Mutable)
		if !ok {
			return nil, domain.OptionError{Option: OptOwner, Err: fmt.Errorf("%w: %T is not an entity", domain.ErrInvalidOption, raw)}
		}
		return m, nil
	}
	if ctx.Parent == nil {
		return nil, nil
	}
	m, ok := domain.AsMutable(ctx.Parent)
	if !ok {
		return nil, nil
	}
	return m, nil
}

func (ctx *BuildContext) attach() error {
	bp := ctx.Blueprint
	if bp.Collection == "" && bp.Attach == nil {
		return nil
	}
	owner, err := ctx.owner()
	if err != nil || owner == nil {
		return err
	}
	if bp.Attach != nil {
		return bp.Attach(ctx, owner)
	}
	return ctx.AddTo(owner, bp.Collection, bp.AddChannel, ctx.Entity)
}

// Set assigns a facet of the entity under construction.
func (ctx *BuildContext) Set(facet string, value any, channel string) error {
	return ctx.SetOn(ctx.Entity, facet, value, channel)
}

// SetOn assigns a facet of target inside the build.
func (ctx *BuildContext) SetOn(target domain.Mutable, facet string, value any, channel string) error {
	_, err := ctx.Tx.set(target, facet, value, ctx.Log, WithChannel(channel))
	return err
}

// SetIndexed assigns an indexed facet of the entity under construction.
func (ctx *BuildContext) SetIndexed(facet string, index, value any) error {
	_, err := ctx.Tx.setIndexed(ctx.Entity, facet, index, value, ctx.Log)
	return err
}

// Add appends a membership to one of the entity's own collections.
func (ctx *BuildContext) Add(collection, channel string, args ...any) error {
	return ctx.AddTo(ctx.Entity, collection, channel, args...)
}

// AddTo appends a membership to a collection of owner.
func (ctx *BuildContext) AddTo(owner domain.Mutable, collection, channel string, args ...any) error {
	_, err := ctx.Tx.add(owner, collection, channel, args, ctx.Log)
	return err
}

// Get reads a facet of the entity under construction.
func (ctx *BuildContext) Get(facet string) (any, error) {
	return ctx.Entity.Get(facet)
}

// Engine returns the engine the transaction mutates.
func (ctx *BuildContext) Engine() domain.Engine {
	return ctx.Tx.svc.engine
}

// FromMasterList resolves value against a named master list.
func (ctx *BuildContext) FromMasterList(list string, value any, opts FindOptions) (domain.Entity, error) {
	all, err := ctx.Engine().MasterList(list)
	if err != nil {
		return nil, err
	}
	return Resolve(value, all, opts)
}

// FromCollection resolves value among the members of owner's collection.
func (ctx *BuildContext) FromCollection(owner domain.Entity, collection string, value any, opts FindOptions) (domain.Entity, error) {
	m, ok := domain.AsMutable(owner)
	if !ok {
		return nil, fmt.Errorf("resolve %s: %w", collection, domain.ErrNilTarget)
	}
	all, err := m.Members(collection)
	if err != nil {
		return nil, err
	}
	return Resolve(value, all, opts)
}
