package engine

import (
	"fmt"
	"sort"

	"mdtcore/pkg/domain"
)

// Plugin contributes rules and entity kinds to a model.
type Plugin interface {
	Name() string
	Version() string
	Register(registry *PluginRegistry) error
}

// PluginRegistry accumulates plugin contributions during registration.
type PluginRegistry struct {
	rules   []domain.Rule
	schemas map[domain.EntityType]*KindSchema
}

// NewPluginRegistry constructs a plugin registry.
func NewPluginRegistry() *PluginRegistry {
	return &PluginRegistry{schemas: make(map[domain.EntityType]*KindSchema)}
}

// RegisterRule adds a rule contributed by the plugin.
func (r *PluginRegistry) RegisterRule(rule domain.Rule) {
	if rule == nil {
		return
	}
	r.rules = append(r.rules, rule)
}

// RegisterKind adds or replaces an entity kind.
func (r *PluginRegistry) RegisterKind(schema *KindSchema) error {
	if schema == nil || schema.Kind == "" {
		return fmt.Errorf("kind schema requires a kind")
	}
	if _, exists := r.schemas[schema.Kind]; exists {
		return fmt.Errorf("kind %s already registered", schema.Kind)
	}
	r.schemas[schema.Kind] = schema
	return nil
}

// Rules returns a copy of registered rules.
func (r *PluginRegistry) Rules() []domain.Rule {
	out := make([]domain.Rule, len(r.rules))
	copy(out, r.rules)
	return out
}

// Kinds returns the registered kinds in sorted order.
func (r *PluginRegistry) Kinds() []domain.EntityType {
	out := make([]domain.EntityType, 0, len(r.schemas))
	for k := range r.schemas {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// PluginMetadata stores metadata describing an installed plugin.
type PluginMetadata struct {
	Name    string
	Version string
	Rules   []string
	Kinds   []domain.EntityType
}

// InstallPlugin registers a plugin, wiring its rules and kinds into the
// model.
func (m *Model) InstallPlugin(plugin Plugin) (PluginMetadata, error) {
	if plugin == nil {
		return PluginMetadata{}, fmt.Errorf("plugin cannot be nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.plugins[plugin.Name()]; ok {
		return PluginMetadata{}, fmt.Errorf("plugin %s already registered", plugin.Name())
	}

	registry := NewPluginRegistry()
	if err := plugin.Register(registry); err != nil {
		return PluginMetadata{}, err
	}

	meta := PluginMetadata{Name: plugin.Name(), Version: plugin.Version(), Kinds: registry.Kinds()}
	for _, rule := range registry.Rules() {
		m.rules.Register(rule)
		meta.Rules = append(meta.Rules, rule.Name())
	}
	for kind, schema := range registry.schemas {
		m.schemas[kind] = schema
	}
	m.plugins[plugin.Name()] = meta
	return meta, nil
}

// RegisteredPlugins returns metadata describing installed plugins.
func (m *Model) RegisteredPlugins() []PluginMetadata {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PluginMetadata, 0, len(m.plugins))
	for _, meta := range m.plugins {
		out = append(out, meta)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
