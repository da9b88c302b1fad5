package engine

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"mdtcore/pkg/domain"
)

// Model is the reference in-process engine. It owns every entity, enforces
// the registered rules and interprets undo ledgers.
type Model struct {
	mu      sync.Mutex
	name    string
	schemas map[domain.EntityType]*KindSchema
	objects map[string]*Object
	rules   *RulesEngine
	driver  *Object
	site    *Object
	newID   func() string
	nowFn   func() time.Time
	plugins map[string]PluginMetadata
}

// Option configures a Model.
type Option func(*Model)

// WithRules replaces the default rules engine.
func WithRules(rules *RulesEngine) Option {
	return func(m *Model) {
		if rules != nil {
			m.rules = rules
		}
	}
}

// WithIDGenerator overrides UID generation.
func WithIDGenerator(fn func() string) Option {
	return func(m *Model) {
		if fn != nil {
			m.newID = fn
		}
	}
}

// WithClock overrides the clock used to stamp snapshots.
func WithClock(fn func() time.Time) Option {
	return func(m *Model) {
		if fn != nil {
			m.nowFn = fn
		}
	}
}

// WithName names the model; the name keys persisted snapshots.
func WithName(name string) Option {
	return func(m *Model) { m.name = name }
}

// WithSchemas registers additional kind schemas, replacing built-ins of the
// same kind.
func WithSchemas(schemas ...*KindSchema) Option {
	return func(m *Model) {
		for _, s := range schemas {
			m.schemas[s.Kind] = s
		}
	}
}

// NewModel constructs an empty model with a driver and a site.
func NewModel(opts ...Option) *Model {
	m := &Model{
		name:    "model",
		schemas: make(map[domain.EntityType]*KindSchema),
		objects: make(map[string]*Object),
		rules:   NewDefaultRulesEngine(),
		newID:   uuid.NewString,
		nowFn:   func() time.Time { return time.Now().UTC() },
		plugins: make(map[string]PluginMetadata),
	}
	for _, s := range DefaultSchemas() {
		m.schemas[s.Kind] = s
	}
	for _, opt := range opts {
		opt(m)
	}
	m.reset()
	return m
}

func (m *Model) reset() {
	m.objects = make(map[string]*Object)
	m.driver = m.create(m.schemas[domain.EntityDriver], m.newID(), "Driver", nil)
	m.site = m.create(m.schemas[domain.EntitySite], m.newID(), "Site", m.driver)
}

// create registers an object and its declared children. Callers hold mu or
// own the model exclusively.
func (m *Model) create(schema *KindSchema, uid, name string, parent domain.Entity) *Object {
	o := newObject(m, schema, uid, name, parent)
	m.objects[uid] = o
	for facet, kind := range schema.Children {
		childSchema, ok := m.schemas[kind]
		if !ok {
			continue
		}
		o.facets[facet] = m.create(childSchema, m.newID(), facet, o)
	}
	return o
}

// Name returns the model name.
func (m *Model) Name() string { return m.name }

// Driver returns the root object owning the master lists.
func (m *Model) Driver() domain.Mutable {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.driver
}

// Site returns the site.
func (m *Model) Site() domain.Mutable {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.site
}

// Schema returns the schema registered for kind.
func (m *Model) Schema(kind domain.EntityType) (*KindSchema, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.schemas[kind]
	return s, ok
}

// NewEntity constructs a bare entity. It is not a member of any collection
// until an owner adds it.
func (m *Model) NewEntity(kind domain.EntityType, name string, parent domain.Entity) (domain.Mutable, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	schema, ok := m.schemas[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownKind, kind)
	}
	return m.create(schema, m.newID(), name, parent), nil
}

// Lookup finds an object by UID.
func (m *Model) Lookup(uid string) (domain.Mutable, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.objects[uid]
	if !ok {
		return nil, false
	}
	return o, true
}

// MasterList returns the members of a driver collection.
func (m *Model) MasterList(name string) ([]domain.Entity, error) {
	return m.Driver().Members(name)
}

// apply evaluates the rules for a proposal and either runs mutate or fires
// the channel handlers with the rejection diagnostics. Handlers run after
// the lock is released so they may call back into the model.
func (m *Model) apply(o *Object, channel string, p domain.Proposal, mutate func()) error {
	m.mu.Lock()
	diag, err := m.rules.Evaluate(modelView{m: m}, p)
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("evaluate %s on %s: %w", channel, o, err)
	}
	if !diag.HasErrors() {
		mutate()
		m.mu.Unlock()
		return nil
	}

	rejection := domain.NewLog()
	for _, e := range diag.Entries() {
		if e.Entity == "" {
			e.Entity = o.schema.Kind
			e.EntityID = o.UID()
		}
		if e.Facet == "" {
			e.Facet = p.Facet
			if e.Facet == "" {
				e.Facet = p.Collection
			}
		}
		rejection.Add(e)
	}
	slots := append([]*handlerSlot(nil), o.handlers[channel]...)
	m.mu.Unlock()

	for _, slot := range slots {
		slot.fn(rejection)
	}
	return nil
}

// Undo reverts the ledger's deltas newest first and resets the ledger.
func (m *Model) Undo(ledger *domain.Ledger) error {
	if ledger == nil {
		return nil
	}
	changes := ledger.Changes()
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for i := len(changes) - 1; i >= 0; i-- {
		c := changes[i]
		if c.Action == domain.ActionCreate {
			if err := m.uncreate(c); err != nil {
				errs = append(errs, err)
			}
			continue
		}
		o, ok := m.objects[c.EntityID]
		if !ok {
			errs = append(errs, fmt.Errorf("undo %s on %s %s: %w", c.Action, c.Entity, c.EntityID, domain.ErrNotFound))
			continue
		}
		switch c.Action {
		case domain.ActionSet:
			if c.HadBefore {
				o.facets[c.Facet] = c.Before
			} else {
				delete(o.facets, c.Facet)
			}
		case domain.ActionSetIndexed:
			if c.HadBefore {
				o.indexed[c.Facet][c.Index] = c.Before
			} else {
				delete(o.indexed[c.Facet], c.Index)
			}
		case domain.ActionAdd:
			o.removeLastMember(c.Collection, c.Args)
		default:
			errs = append(errs, fmt.Errorf("undo %s: %w", c.Action, domain.ErrUndoNotSupported))
		}
	}
	ledger.Reset()
	return errors.Join(errs...)
}

// uncreate drops an object built under the ledger along with its schema
// children. The entity travels in Args so a later UID reset cannot hide it.
func (m *Model) uncreate(c domain.Change) error {
	o := m.objects[c.EntityID]
	if len(c.Args) > 0 {
		if created, ok := c.Args[0].(*Object); ok {
			o = created
		}
	}
	if o == nil {
		return fmt.Errorf("undo %s on %s %s: %w", c.Action, c.Entity, c.EntityID, domain.ErrNotFound)
	}
	if o == m.driver || o == m.site {
		return fmt.Errorf("undo %s on %s: %w", c.Action, c.Entity, domain.ErrUndoNotSupported)
	}
	m.forget(o)
	return nil
}

func (m *Model) forget(o *Object) {
	if current, ok := m.objects[o.UID()]; ok && current == o {
		delete(m.objects, o.UID())
	}
	for facet := range o.schema.Children {
		if child, ok := o.facets[facet].(*Object); ok {
			m.forget(child)
		}
	}
}

func (o *Object) removeLastMember(collection string, args []any) {
	members := o.collections[collection]
	for i := len(members) - 1; i >= 0; i-- {
		if sameArgs(members[i].args, args) {
			o.collections[collection] = append(members[:i:i], members[i+1:]...)
			return
		}
	}
}

func sameArgs(a, b []any) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		ea, aok := a[i].(domain.Entity)
		eb, bok := b[i].(domain.Entity)
		if aok || bok {
			if !aok || !bok || ea.UID() != eb.UID() {
				return false
			}
			continue
		}
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// modelView gives rules lock-free read access; it is only used while the
// model lock is held.
type modelView struct {
	m *Model
}

func (v modelView) Lookup(uid string) (domain.Entity, bool) {
	o, ok := v.m.objects[uid]
	if !ok {
		return nil, false
	}
	return o, true
}

func (v modelView) Members(owner domain.Entity, collection string) []domain.Entity {
	o, ok := owner.(*Object)
	if !ok {
		return nil
	}
	if _, ok := o.schema.Collections[collection]; !ok {
		return nil
	}
	return o.membersLocked(collection)
}

func (v modelView) Value(e domain.Entity, facet string) (any, bool) {
	o, ok := e.(*Object)
	if !ok {
		return nil, false
	}
	fs, ok := o.schema.Facets[facet]
	if !ok {
		return nil, false
	}
	if val, ok := o.facets[facet]; ok {
		return val, true
	}
	return fs.Default, true
}

var _ domain.Engine = (*Model)(nil)
