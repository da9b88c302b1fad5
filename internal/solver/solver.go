// Package solver is the islanded solver facade. It runs the static checks
// that must pass before a reliability simulation and summarises what the
// simulation would see; the simulation itself lives outside this module.
package solver

import (
	"context"
	"fmt"
	"time"

	"mdtcore/internal/core"
	"mdtcore/pkg/domain"
)

// Diagnostic tags.
const (
	TagNoGeneration    = "E0800"
	TagAborted         = "E0801"
	TagUntieredLoad    = "W0801"
	TagUnspecifiedUnit = "W0802"
	TagSummary         = "I0800"
)

var generatorCollections = []string{
	"DieselGenerators", "PropaneGenerators", "NaturalGasGenerators",
	"SolarGenerators", "WindGenerators", "HydroGenerators",
}

// Options tunes a run.
type Options struct {
	// Years overrides the driver SimulationYears when positive.
	Years  int
	Logger core.Logger
	Clock  func() time.Time
}

// MicrogridSummary describes one microgrid as the solver sees it.
type MicrogridSummary struct {
	Name       string
	UID        string
	Busses     int
	Generators map[domain.EntityType]int
	// Capacity sums the baseline specification capacity of every generator.
	Capacity     float64
	Batteries    int
	LoadSections int
}

// GeneratorCount returns the number of generators of any kind.
func (s MicrogridSummary) GeneratorCount() int {
	n := 0
	for _, c := range s.Generators {
		n += c
	}
	return n
}

// RunInfo is the outcome of a run.
type RunInfo struct {
	Model           string
	SimulationYears int
	StartedAt       time.Time
	FinishedAt      time.Time
	Microgrids      []MicrogridSummary
	TotalCapacity   float64
	// Runnable is false when any error was reported.
	Runnable bool
}

// Named is implemented by engines that carry a model name.
type Named interface{ Name() string }

// RunIslanded checks every microgrid of the site for islanded operation.
// Problems are reported in the Log; a cancelled context stops the run and
// is reported as an error entry.
func RunIslanded(ctx context.Context, model domain.Engine, opts Options) (RunInfo, *domain.Log) {
	diag := domain.NewLog()
	clock := opts.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	logger := opts.Logger
	if logger == nil {
		logger = core.NewZapLogger(nil)
	}

	info := RunInfo{StartedAt: clock(), SimulationYears: opts.Years}
	if n, ok := model.(Named); ok {
		info.Model = n.Name()
	}
	if info.SimulationYears <= 0 {
		if v, err := model.Driver().Get("SimulationYears"); err == nil {
			info.SimulationYears, _ = v.(int)
		}
	}

	microgrids, err := model.Site().Members("Models")
	if err != nil {
		diag.Errorf(TagAborted, "list microgrids: %v", err)
	}
	for _, mg := range microgrids {
		if err := ctx.Err(); err != nil {
			diag.Errorf(TagAborted, "run stopped: %v", err)
			break
		}
		m, ok := domain.AsMutable(mg)
		if !ok {
			continue
		}
		summary := summarise(m, diag)
		if summary.GeneratorCount() == 0 {
			diag.Add(domain.Entry{Category: domain.CategoryError, Tag: TagNoGeneration,
				Message: fmt.Sprintf("microgrid %q has no generation and cannot run islanded", summary.Name),
				Entity:  domain.EntityMicrogrid, EntityID: summary.UID})
		}
		info.TotalCapacity += summary.Capacity
		info.Microgrids = append(info.Microgrids, summary)
	}

	info.FinishedAt = clock()
	info.Runnable = !diag.HasErrors()
	diag.Infof(TagSummary, "%d microgrids, %.1f total generation capacity over %d years",
		len(info.Microgrids), info.TotalCapacity, info.SimulationYears)
	if info.Runnable {
		logger.Info("islanded check passed", "model", info.Model, "microgrids", len(info.Microgrids))
	} else {
		logger.Warn("islanded check failed", "model", info.Model, "errors", diag.Count(domain.CategoryError))
	}
	return info, diag
}

func summarise(mg domain.Mutable, diag *domain.Log) MicrogridSummary {
	s := MicrogridSummary{Name: mg.Name(), UID: mg.UID(), Generators: map[domain.EntityType]int{}}
	busses, _ := mg.Members("Busses")
	s.Busses = len(busses)
	for _, b := range busses {
		bus, ok := domain.AsMutable(b)
		if !ok {
			continue
		}
		for _, coll := range generatorCollections {
			gens, _ := bus.Members(coll)
			for _, g := range gens {
				s.Generators[g.Kind()]++
				capacity, ok := baselineCapacity(g)
				if !ok {
					diag.Add(domain.Entry{Category: domain.CategoryWarning, Tag: TagUnspecifiedUnit,
						Message: fmt.Sprintf("%s %q has no baseline specification; its capacity counts as zero", g.Kind().Display(), g.Name()),
						Entity:  g.Kind(), EntityID: g.UID(), Facet: "BaselineSpecification"})
				}
				s.Capacity += capacity
			}
		}
		batteries, _ := bus.Members("Batteries")
		s.Batteries += len(batteries)
		loads, _ := bus.Members("LoadSections")
		s.LoadSections += len(loads)
		for _, l := range loads {
			checkLoadTiers(l, diag)
		}
	}
	return s
}

func baselineCapacity(gen domain.Entity) (float64, bool) {
	m, ok := domain.AsMutable(gen)
	if !ok {
		return 0, false
	}
	ref, _ := m.Get("BaselineSpecification")
	spec, ok := ref.(domain.Entity)
	if !ok {
		return 0, false
	}
	sm, ok := domain.AsMutable(spec)
	if !ok {
		return 0, false
	}
	v, _ := sm.Get("Capacity")
	f, _ := v.(float64)
	return f, true
}

func checkLoadTiers(load domain.Entity, diag *domain.Log) {
	m, ok := domain.AsMutable(load)
	if !ok {
		return
	}
	sets, _ := m.Members("LoadDataSets")
	for _, set := range sets {
		sm, ok := domain.AsMutable(set)
		if !ok {
			continue
		}
		if tier, _ := sm.Get("LoadTier"); tier == nil {
			diag.Add(domain.Entry{Category: domain.CategoryWarning, Tag: TagUntieredLoad,
				Message: fmt.Sprintf("load data %q of %q has no load tier", set.Name(), load.Name()),
				Entity:  set.Kind(), EntityID: set.UID(), Facet: "LoadTier"})
		}
	}
}
