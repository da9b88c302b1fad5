package engine

import (
	"fmt"
	"math"
	"reflect"

	"mdtcore/pkg/domain"
)

// FacetSchema describes one settable property of a kind.
type FacetSchema struct {
	// Default is the value reported before any assignment. Its dynamic type
	// is the facet's value type; nil marks a reference facet.
	Default any
	// Accepts restricts the kinds a reference facet may point at.
	Accepts []domain.EntityType
	// Channel overrides the default rejection channel.
	Channel string
}

func (f FacetSchema) isRef() bool { return f.Default == nil }

// IndexedSchema describes a property addressed by an index.
type IndexedSchema struct {
	Default any
	// IndexKind is set when the index is an entity of that kind.
	IndexKind domain.EntityType
	Channel   string
}

// ArgSchema describes one positional argument of a collection add.
type ArgSchema struct {
	// Proto is a value of the argument type; nil means an entity argument.
	Proto   any
	Accepts []domain.EntityType
}

// CollectionSchema describes a membership collection and its add contract.
type CollectionSchema struct {
	Channel string
	Args    []ArgSchema
}

// KindSchema is the full shape of an entity kind.
type KindSchema struct {
	Kind        domain.EntityType
	Facets      map[string]FacetSchema
	Indexed     map[string]IndexedSchema
	Collections map[string]CollectionSchema
	// Children are created alongside the entity and referenced by facet.
	Children map[string]domain.EntityType
	channels map[string]struct{}
}

// SchemaPart mutates a kind schema under construction.
type SchemaPart func(*KindSchema)

// NewKindSchema assembles a schema from parts.
func NewKindSchema(kind domain.EntityType, parts ...SchemaPart) *KindSchema {
	s := &KindSchema{
		Kind:        kind,
		Facets:      map[string]FacetSchema{},
		Indexed:     map[string]IndexedSchema{},
		Collections: map[string]CollectionSchema{},
		Children:    map[string]domain.EntityType{},
	}
	for _, part := range parts {
		part(s)
	}
	s.index()
	return s
}

func (s *KindSchema) index() {
	s.channels = make(map[string]struct{})
	for name, f := range s.Facets {
		s.channels[facetChannel(name, f.Channel)] = struct{}{}
	}
	for name, f := range s.Indexed {
		s.channels[facetChannel(name, f.Channel)] = struct{}{}
	}
	for _, c := range s.Collections {
		s.channels[c.Channel] = struct{}{}
	}
}

// HasChannel reports whether the kind exposes channel.
func (s *KindSchema) HasChannel(channel string) bool {
	_, ok := s.channels[channel]
	return ok
}

// Channels lists the channel names the kind exposes.
func (s *KindSchema) Channels() []string {
	out := make([]string, 0, len(s.channels))
	for c := range s.channels {
		out = append(out, c)
	}
	return out
}

func facetChannel(facet, override string) string {
	if override != "" {
		return override
	}
	return domain.ChangeChannel(facet)
}

// Facet declares a value facet.
func Facet(name string, def any) SchemaPart {
	return func(s *KindSchema) { s.Facets[name] = FacetSchema{Default: def} }
}

// FacetOn declares a value facet whose rejections fire channel.
func FacetOn(name string, def any, channel string) SchemaPart {
	return func(s *KindSchema) { s.Facets[name] = FacetSchema{Default: def, Channel: channel} }
}

// Ref declares a reference facet.
func Ref(name string, accepts ...domain.EntityType) SchemaPart {
	return func(s *KindSchema) { s.Facets[name] = FacetSchema{Accepts: accepts} }
}

// Indexed declares an indexed facet. An empty indexKind means integer
// indices.
func Indexed(name string, def any, indexKind domain.EntityType) SchemaPart {
	return func(s *KindSchema) { s.Indexed[name] = IndexedSchema{Default: def, IndexKind: indexKind} }
}

// Collection declares a membership collection.
func Collection(name, channel string, args ...ArgSchema) SchemaPart {
	return func(s *KindSchema) { s.Collections[name] = CollectionSchema{Channel: channel, Args: args} }
}

// Child declares a sub-entity created with the owner and exposed by a
// reference facet.
func Child(facet string, kind domain.EntityType) SchemaPart {
	return func(s *KindSchema) {
		s.Children[facet] = kind
		s.Facets[facet] = FacetSchema{Accepts: []domain.EntityType{kind}}
	}
}

// Parts bundles parts for reuse.
func Parts(parts ...SchemaPart) SchemaPart {
	return func(s *KindSchema) {
		for _, p := range parts {
			p(s)
		}
	}
}

// EntityArg is an entity argument restricted to the given kinds.
func EntityArg(accepts ...domain.EntityType) ArgSchema {
	return ArgSchema{Accepts: accepts}
}

// ValueArg is a value argument of the prototype's type.
func ValueArg(proto any) ArgSchema {
	return ArgSchema{Proto: proto}
}

// coerce converts value to the type of proto. Numeric kinds convert into
// each other; anything else must match exactly.
func coerce(value, proto any) (any, error) {
	want := reflect.TypeOf(proto)
	got := reflect.TypeOf(value)
	if value == nil || got == nil {
		return nil, fmt.Errorf("%w: nil for %s", domain.ErrTypeMismatch, want)
	}
	if got == want {
		return value, nil
	}
	if isNumeric(got.Kind()) && isNumeric(want.Kind()) {
		rv := reflect.ValueOf(value)
		if isFloat(got.Kind()) && !isFloat(want.Kind()) {
			f := rv.Float()
			if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
				return nil, fmt.Errorf("%w: %v is not a whole %s", domain.ErrTypeMismatch, value, want)
			}
		}
		return rv.Convert(want).Interface(), nil
	}
	if got.ConvertibleTo(want) && got.Kind() == want.Kind() {
		return reflect.ValueOf(value).Convert(want).Interface(), nil
	}
	return nil, fmt.Errorf("%w: got %s, want %s", domain.ErrTypeMismatch, got, want)
}

func isFloat(k reflect.Kind) bool {
	return k == reflect.Float32 || k == reflect.Float64
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func accepts(kinds []domain.EntityType, kind domain.EntityType) bool {
	if len(kinds) == 0 {
		return true
	}
	for _, k := range kinds {
		if k == kind {
			return true
		}
	}
	return false
}
