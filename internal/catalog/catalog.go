// Package catalog seeds the driver master lists from YAML.
//
//	load_tiers:
//	  - name: Critical
//	    priority: 1
//	    color: "#ff0000"
//	specifications:
//	  - name: Gen 500kW
//	    component: diesel_generator
//	    capacity: 500
//	    efficiencies: [0.28, 0.31, 0.33]
//
// Every key other than name is passed to the builder as an option.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"mdtcore/internal/core"
	"mdtcore/pkg/domain"
)

// Entry is one catalog item: a name plus builder options.
type Entry struct {
	Name    string         `yaml:"name"`
	Options map[string]any `yaml:",inline"`
}

// Catalog is the decoded seed file.
type Catalog struct {
	LoadTiers      []Entry `yaml:"load_tiers"`
	Specifications []Entry `yaml:"specifications"`
}

// Len returns the number of entries.
func (c Catalog) Len() int { return len(c.LoadTiers) + len(c.Specifications) }

// Parse decodes a catalog document. An empty document is an empty catalog.
func Parse(r io.Reader) (Catalog, error) {
	var c Catalog
	if err := yaml.NewDecoder(r).Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return Catalog{}, fmt.Errorf("decode catalog: %w", err)
	}
	for i, e := range c.LoadTiers {
		if e.Name == "" {
			return Catalog{}, fmt.Errorf("load_tiers[%d]: %w", i, domain.OptionError{Option: "name", Err: domain.ErrMissingOption})
		}
	}
	for i, e := range c.Specifications {
		if e.Name == "" {
			return Catalog{}, fmt.Errorf("specifications[%d]: %w", i, domain.OptionError{Option: "name", Err: domain.ErrMissingOption})
		}
	}
	return c, nil
}

// Seed reads a catalog from r and builds it inside tx: load tiers first so
// specifications and later builds can refer to them. Items that already
// exist are rejected softly and show up in the returned Log.
func Seed(ctx context.Context, tx *core.Transaction, r io.Reader) (*domain.Log, error) {
	c, err := Parse(r)
	if err != nil {
		return domain.NewLog(), err
	}
	return Apply(ctx, tx, c)
}

// Apply builds an already parsed catalog inside tx.
func Apply(ctx context.Context, tx *core.Transaction, c Catalog) (*domain.Log, error) {
	diag := domain.NewLog()
	groups := []struct {
		kind    domain.EntityType
		entries []Entry
	}{
		{domain.EntityLoadTier, c.LoadTiers},
		{domain.EntitySpecification, c.Specifications},
	}
	for _, g := range groups {
		for _, e := range g.entries {
			if err := ctx.Err(); err != nil {
				return diag, err
			}
			_, callLog, err := tx.Build(g.kind, nil, e.Name, core.Options(e.Options))
			diag.Merge(callLog)
			if err != nil {
				return diag, fmt.Errorf("seed %s %q: %w", g.kind, e.Name, err)
			}
		}
	}
	return diag, nil
}
