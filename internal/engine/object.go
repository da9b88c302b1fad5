package engine

import (
	"fmt"
	"sync"

	"mdtcore/pkg/domain"
)

type member struct {
	args []any
}

// entity returns the last entity argument, the one the membership is about.
func (m member) entity() domain.Entity {
	for i := len(m.args) - 1; i >= 0; i-- {
		if e, ok := m.args[i].(domain.Entity); ok {
			return e
		}
	}
	return nil
}

type handlerSlot struct {
	fn domain.RejectionHandler
}

// Object is an entity owned by a Model. It implements domain.Mutable.
type Object struct {
	model       *Model
	schema      *KindSchema
	idMu        sync.RWMutex
	uid         string
	name        string
	parent      domain.Entity
	facets      map[string]any
	indexed     map[string]map[any]any
	collections map[string][]member
	handlers    map[string][]*handlerSlot
}

func newObject(m *Model, schema *KindSchema, uid, name string, parent domain.Entity) *Object {
	return &Object{
		model:       m,
		schema:      schema,
		uid:         uid,
		name:        name,
		parent:      parent,
		facets:      make(map[string]any),
		indexed:     make(map[string]map[any]any),
		collections: make(map[string][]member),
		handlers:    make(map[string][]*handlerSlot),
	}
}

func (o *Object) Kind() domain.EntityType { return o.schema.Kind }
func (o *Object) Name() string            { return o.name }
func (o *Object) Parent() domain.Entity   { return o.parent }

// UID returns the unique identifier.
func (o *Object) UID() string {
	o.idMu.RLock()
	defer o.idMu.RUnlock()
	return o.uid
}

func (o *Object) String() string {
	return fmt.Sprintf("%s %q", o.schema.Kind.Display(), o.name)
}

// ResetUID replaces the identifier. The new UID must be unused.
func (o *Object) ResetUID(uid string) error {
	o.model.mu.Lock()
	defer o.model.mu.Unlock()
	current := o.UID()
	if uid == current {
		return nil
	}
	if _, taken := o.model.objects[uid]; taken {
		return fmt.Errorf("uid %s already in use", uid)
	}
	o.idMu.Lock()
	o.uid = uid
	o.idMu.Unlock()
	delete(o.model.objects, current)
	o.model.objects[uid] = o
	return nil
}

// Subscribe attaches a rejection handler to one of the kind's channels.
func (o *Object) Subscribe(channel string, handler domain.RejectionHandler) (func(), error) {
	if !o.schema.HasChannel(channel) {
		return nil, domain.ChannelError{Kind: o.schema.Kind, Channel: channel}
	}
	if handler == nil {
		return nil, fmt.Errorf("nil handler for channel %s", channel)
	}
	slot := &handlerSlot{fn: handler}
	o.model.mu.Lock()
	o.handlers[channel] = append(o.handlers[channel], slot)
	o.model.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			o.model.mu.Lock()
			defer o.model.mu.Unlock()
			slots := o.handlers[channel]
			for i, s := range slots {
				if s == slot {
					o.handlers[channel] = append(slots[:i:i], slots[i+1:]...)
					break
				}
			}
			if len(o.handlers[channel]) == 0 {
				delete(o.handlers, channel)
			}
		})
	}, nil
}

// SubscriberCount reports the handlers currently attached to channel.
func (o *Object) SubscriberCount(channel string) int {
	o.model.mu.Lock()
	defer o.model.mu.Unlock()
	return len(o.handlers[channel])
}

// Get returns the facet value or its default.
func (o *Object) Get(facet string) (any, error) {
	fs, ok := o.schema.Facets[facet]
	if !ok {
		return nil, domain.FacetError{Kind: o.schema.Kind, Facet: facet, Err: domain.ErrUnknownFacet}
	}
	o.model.mu.Lock()
	defer o.model.mu.Unlock()
	if v, ok := o.facets[facet]; ok {
		return v, nil
	}
	return fs.Default, nil
}

// Set assigns a facet. Rule rejections fire the facet's channel and leave
// the facet unchanged; they are not errors.
func (o *Object) Set(facet string, value any, ledger *domain.Ledger) error {
	fs, ok := o.schema.Facets[facet]
	if !ok {
		return domain.FacetError{Kind: o.schema.Kind, Facet: facet, Err: domain.ErrUnknownFacet}
	}
	if fs.isRef() {
		if value != nil {
			if _, ok := value.(domain.Entity); !ok {
				return domain.FacetError{Kind: o.schema.Kind, Facet: facet, Err: fmt.Errorf("%w: %T is not an entity", domain.ErrTypeMismatch, value)}
			}
		}
	} else {
		v, err := coerce(value, fs.Default)
		if err != nil {
			return domain.FacetError{Kind: o.schema.Kind, Facet: facet, Err: err}
		}
		value = v
	}

	proposal := domain.Proposal{Target: o, Action: domain.ActionSet, Facet: facet, Value: value}
	return o.model.apply(o, facetChannel(facet, fs.Channel), proposal, func() {
		before, had := o.facets[facet]
		o.facets[facet] = value
		if ledger != nil {
			ledger.Record(domain.Change{
				Entity: o.schema.Kind, EntityID: o.UID(), Facet: facet, Action: domain.ActionSet,
				Before: before, HadBefore: had, After: value,
			})
		}
	})
}

func (o *Object) indexKey(is IndexedSchema, index any) (any, error) {
	if is.IndexKind != "" {
		e, ok := index.(domain.Entity)
		if !ok || e == nil {
			return nil, fmt.Errorf("%w: index must be a %s", domain.ErrTypeMismatch, is.IndexKind.Display())
		}
		return e.UID(), nil
	}
	v, err := coerce(index, 0)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// GetIndexed returns the value stored at index or the default.
func (o *Object) GetIndexed(facet string, index any) (any, error) {
	is, ok := o.schema.Indexed[facet]
	if !ok {
		return nil, domain.FacetError{Kind: o.schema.Kind, Facet: facet, Err: domain.ErrUnknownFacet}
	}
	key, err := o.indexKey(is, index)
	if err != nil {
		return nil, domain.FacetError{Kind: o.schema.Kind, Facet: facet, Err: err}
	}
	o.model.mu.Lock()
	defer o.model.mu.Unlock()
	if v, ok := o.indexed[facet][key]; ok {
		return v, nil
	}
	return is.Default, nil
}

// SetIndexed assigns the value stored at index.
func (o *Object) SetIndexed(facet string, index, value any, ledger *domain.Ledger) error {
	is, ok := o.schema.Indexed[facet]
	if !ok {
		return domain.FacetError{Kind: o.schema.Kind, Facet: facet, Err: domain.ErrUnknownFacet}
	}
	key, err := o.indexKey(is, index)
	if err != nil {
		return domain.FacetError{Kind: o.schema.Kind, Facet: facet, Err: err}
	}
	v, err := coerce(value, is.Default)
	if err != nil {
		return domain.FacetError{Kind: o.schema.Kind, Facet: facet, Err: err}
	}

	proposal := domain.Proposal{Target: o, Action: domain.ActionSetIndexed, Facet: facet, Index: index, Value: v}
	return o.model.apply(o, facetChannel(facet, is.Channel), proposal, func() {
		values := o.indexed[facet]
		if values == nil {
			values = make(map[any]any)
			o.indexed[facet] = values
		}
		before, had := values[key]
		values[key] = v
		if ledger != nil {
			ledger.Record(domain.Change{
				Entity: o.schema.Kind, EntityID: o.UID(), Facet: facet, Action: domain.ActionSetIndexed,
				Index: key, Before: before, HadBefore: had, After: v,
			})
		}
	})
}

// Members returns the entities of a collection in insertion order.
func (o *Object) Members(collection string) ([]domain.Entity, error) {
	if _, ok := o.schema.Collections[collection]; !ok {
		return nil, domain.FacetError{Kind: o.schema.Kind, Facet: collection, Err: domain.ErrUnknownCollection}
	}
	o.model.mu.Lock()
	defer o.model.mu.Unlock()
	return o.membersLocked(collection), nil
}

func (o *Object) membersLocked(collection string) []domain.Entity {
	out := make([]domain.Entity, 0, len(o.collections[collection]))
	for _, m := range o.collections[collection] {
		if e := m.entity(); e != nil {
			out = append(out, e)
		}
	}
	return out
}

// Entries returns the raw positional arguments of each membership.
func (o *Object) Entries(collection string) ([][]any, error) {
	if _, ok := o.schema.Collections[collection]; !ok {
		return nil, domain.FacetError{Kind: o.schema.Kind, Facet: collection, Err: domain.ErrUnknownCollection}
	}
	o.model.mu.Lock()
	defer o.model.mu.Unlock()
	out := make([][]any, 0, len(o.collections[collection]))
	for _, m := range o.collections[collection] {
		out = append(out, append([]any(nil), m.args...))
	}
	return out, nil
}

// Add appends a membership built from the collection's positional
// arguments.
func (o *Object) Add(collection string, ledger *domain.Ledger, args ...any) error {
	cs, ok := o.schema.Collections[collection]
	if !ok {
		return domain.FacetError{Kind: o.schema.Kind, Facet: collection, Err: domain.ErrUnknownCollection}
	}
	if len(args) != len(cs.Args) {
		return domain.FacetError{Kind: o.schema.Kind, Facet: collection,
			Err: fmt.Errorf("%w: got %d, want %d", domain.ErrArity, len(args), len(cs.Args))}
	}
	normalized := make([]any, len(args))
	for i, arg := range args {
		spec := cs.Args[i]
		if spec.Proto == nil {
			e, ok := arg.(domain.Entity)
			if !ok || e == nil {
				return domain.FacetError{Kind: o.schema.Kind, Facet: collection,
					Err: fmt.Errorf("%w: argument %d must be an entity", domain.ErrTypeMismatch, i+1)}
			}
			normalized[i] = e
			continue
		}
		v, err := coerce(arg, spec.Proto)
		if err != nil {
			return domain.FacetError{Kind: o.schema.Kind, Facet: collection, Err: err}
		}
		normalized[i] = v
	}

	proposal := domain.Proposal{Target: o, Action: domain.ActionAdd, Collection: collection, Args: normalized}
	return o.model.apply(o, cs.Channel, proposal, func() {
		o.collections[collection] = append(o.collections[collection], member{args: normalized})
		if ledger != nil {
			ledger.Record(domain.Change{
				Entity: o.schema.Kind, EntityID: o.UID(), Collection: collection, Action: domain.ActionAdd,
				Args: normalized,
			})
		}
	})
}

var _ domain.Mutable = (*Object)(nil)
var _ domain.Reidentifier = (*Object)(nil)
