package engine

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"

	"mdtcore/pkg/domain"
)

// Export captures every object reachable from the driver and the site.
// Constructed entities that were never attached or referenced are dropped.
func (m *Model) Export() (domain.ModelSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := domain.ModelSnapshot{
		Version: domain.SnapshotVersion,
		Name:    m.name,
		Driver:  m.driver.UID(),
		Site:    m.site.UID(),
		SavedAt: m.nowFn(),
	}

	seen := map[string]bool{}
	queue := []*Object{m.driver, m.site}
	visit := func(e domain.Entity) {
		o, ok := e.(*Object)
		if !ok || o == nil || seen[o.UID()] {
			return
		}
		seen[o.UID()] = true
		queue = append(queue, o)
	}
	seen[m.driver.UID()] = true
	seen[m.site.UID()] = true

	for len(queue) > 0 {
		o := queue[0]
		queue = queue[1:]
		rec, err := o.record()
		if err != nil {
			return domain.ModelSnapshot{}, err
		}
		snap.Objects = append(snap.Objects, rec)

		for _, facet := range sortedKeys(o.facets) {
			if e, ok := o.facets[facet].(domain.Entity); ok {
				visit(e)
			}
		}
		for _, facet := range sortedKeys(o.indexed) {
			if o.schema.Indexed[facet].IndexKind == "" {
				continue
			}
			for key := range o.indexed[facet] {
				if ref, ok := m.objects[fmt.Sprint(key)]; ok {
					visit(ref)
				}
			}
		}
		for _, coll := range sortedKeys(o.collections) {
			for _, mem := range o.collections[coll] {
				for _, arg := range mem.args {
					if e, ok := arg.(domain.Entity); ok {
						visit(e)
					}
				}
			}
		}
	}
	return snap, nil
}

func (o *Object) record() (domain.ObjectRecord, error) {
	rec := domain.ObjectRecord{UID: o.UID(), Kind: o.schema.Kind, Name: o.name}
	if o.parent != nil {
		rec.Parent = o.parent.UID()
	}
	if len(o.facets) > 0 {
		rec.Facets = make(map[string]domain.Value, len(o.facets))
		for facet, v := range o.facets {
			enc, err := encodeValue(v)
			if err != nil {
				return rec, fmt.Errorf("encode %s.%s: %w", o.name, facet, err)
			}
			rec.Facets[facet] = enc
		}
	}
	if len(o.indexed) > 0 {
		rec.Indexed = make(map[string]map[string]domain.Value, len(o.indexed))
		for facet, values := range o.indexed {
			out := make(map[string]domain.Value, len(values))
			for key, v := range values {
				enc, err := encodeValue(v)
				if err != nil {
					return rec, fmt.Errorf("encode %s.%s[%v]: %w", o.name, facet, key, err)
				}
				out[fmt.Sprint(key)] = enc
			}
			rec.Indexed[facet] = out
		}
	}
	if len(o.collections) > 0 {
		rec.Collections = make(map[string][]domain.MemberRecord, len(o.collections))
		for coll, members := range o.collections {
			records := make([]domain.MemberRecord, 0, len(members))
			for _, mem := range members {
				args := make([]domain.Value, 0, len(mem.args))
				for _, arg := range mem.args {
					enc, err := encodeValue(arg)
					if err != nil {
						return rec, fmt.Errorf("encode %s.%s: %w", o.name, coll, err)
					}
					args = append(args, enc)
				}
				records = append(records, domain.MemberRecord{Args: args})
			}
			rec.Collections[coll] = records
		}
	}
	return rec, nil
}

// Import replaces the model contents with the snapshot. The model is left
// untouched when the snapshot cannot be decoded.
func (m *Model) Import(snap domain.ModelSnapshot) error {
	if snap.Version != domain.SnapshotVersion {
		return fmt.Errorf("%w: %d", domain.ErrUnsupportedVersion, snap.Version)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	objects := make(map[string]*Object, len(snap.Objects))
	for _, rec := range snap.Objects {
		schema, ok := m.schemas[rec.Kind]
		if !ok {
			return fmt.Errorf("%w: %s", domain.ErrUnknownKind, rec.Kind)
		}
		objects[rec.UID] = newObject(m, schema, rec.UID, rec.Name, nil)
	}
	lookup := func(uid string) (domain.Entity, error) {
		o, ok := objects[uid]
		if !ok {
			return nil, fmt.Errorf("reference %s: %w", uid, domain.ErrNotFound)
		}
		return o, nil
	}

	for _, rec := range snap.Objects {
		o := objects[rec.UID]
		if rec.Parent != "" {
			parent, err := lookup(rec.Parent)
			if err != nil {
				return err
			}
			o.parent = parent
		}
		for facet, val := range rec.Facets {
			fs, ok := o.schema.Facets[facet]
			if !ok {
				return domain.FacetError{Kind: rec.Kind, Facet: facet, Err: domain.ErrUnknownFacet}
			}
			v, err := decodeValue(val, fs.Default, lookup)
			if err != nil {
				return fmt.Errorf("decode %s.%s: %w", rec.Name, facet, err)
			}
			o.facets[facet] = v
		}
		for facet, values := range rec.Indexed {
			is, ok := o.schema.Indexed[facet]
			if !ok {
				return domain.FacetError{Kind: rec.Kind, Facet: facet, Err: domain.ErrUnknownFacet}
			}
			out := make(map[any]any, len(values))
			for key, val := range values {
				var k any = key
				if is.IndexKind == "" {
					n, err := strconv.Atoi(key)
					if err != nil {
						return fmt.Errorf("decode %s.%s index %q: %w", rec.Name, facet, key, err)
					}
					k = n
				}
				v, err := decodeValue(val, is.Default, lookup)
				if err != nil {
					return fmt.Errorf("decode %s.%s[%s]: %w", rec.Name, facet, key, err)
				}
				out[k] = v
			}
			o.indexed[facet] = out
		}
		for coll, members := range rec.Collections {
			cs, ok := o.schema.Collections[coll]
			if !ok {
				return domain.FacetError{Kind: rec.Kind, Facet: coll, Err: domain.ErrUnknownCollection}
			}
			for _, mem := range members {
				if len(mem.Args) != len(cs.Args) {
					return fmt.Errorf("decode %s.%s: %w", rec.Name, coll, domain.ErrArity)
				}
				args := make([]any, len(mem.Args))
				for i, val := range mem.Args {
					v, err := decodeValue(val, cs.Args[i].Proto, lookup)
					if err != nil {
						return fmt.Errorf("decode %s.%s: %w", rec.Name, coll, err)
					}
					args[i] = v
				}
				o.collections[coll] = append(o.collections[coll], member{args: args})
			}
		}
	}

	driver, ok := objects[snap.Driver]
	if !ok || driver.schema.Kind != domain.EntityDriver {
		return fmt.Errorf("snapshot driver %s: %w", snap.Driver, domain.ErrNotFound)
	}
	site, ok := objects[snap.Site]
	if !ok || site.schema.Kind != domain.EntitySite {
		return fmt.Errorf("snapshot site %s: %w", snap.Site, domain.ErrNotFound)
	}
	m.objects = objects
	m.driver = driver
	m.site = site
	if snap.Name != "" {
		m.name = snap.Name
	}
	return nil
}

func encodeValue(v any) (domain.Value, error) {
	if e, ok := v.(domain.Entity); ok && e != nil {
		return domain.Value{Ref: e.UID()}, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return domain.Value{}, err
	}
	return domain.Value{Raw: raw}, nil
}

func decodeValue(v domain.Value, proto any, lookup func(string) (domain.Entity, error)) (any, error) {
	if v.IsRef() {
		return lookup(v.Ref)
	}
	if len(v.Raw) == 0 || string(v.Raw) == "null" {
		return nil, nil
	}
	if proto == nil {
		return nil, fmt.Errorf("%w: value stored for a reference", domain.ErrTypeMismatch)
	}
	ptr := reflect.New(reflect.TypeOf(proto))
	if err := json.Unmarshal(v.Raw, ptr.Interface()); err != nil {
		return nil, err
	}
	return ptr.Elem().Interface(), nil
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
