package core

import (
	"context"
	"fmt"
	"strings"

	"mdtcore/pkg/domain"
)

// Configure runs a facet table against an existing entity. Nothing is
// constructed or attached.
func (tx *Transaction) Configure(target domain.Mutable, facets []FacetRule, opts Options) (*domain.Log, error) {
	callLog := domain.NewLog()
	if err := tx.usable(); err != nil {
		return callLog, err
	}
	if isNil(target) {
		return callLog, domain.ErrNilTarget
	}
	if opts == nil {
		opts = Options{}
	}
	defer tx.absorb(callLog)
	ctx := &BuildContext{
		Tx:        tx,
		Blueprint: &Blueprint{Kind: target.Kind(), Facets: facets},
		Options:   opts,
		Name:      target.Name(),
		Parent:    target.Parent(),
		Entity:    target,
		Log:       callLog,
	}
	for _, rule := range facets {
		if err := ctx.applyRule(rule); err != nil {
			return callLog, err
		}
	}
	return callLog, nil
}

// infiniteFuelFacet names the microgrid setting indexed by tanks of kind.
func infiniteFuelFacet(kind domain.EntityType) (string, error) {
	switch kind {
	case domain.EntityDieselTank:
		return "UseInfiniteDieselFuel", nil
	case domain.EntityPropaneTank:
		return "UseInfinitePropaneFuel", nil
	}
	return "", fmt.Errorf("%w: %s is not a fuel tank", domain.ErrInvalidOption, kind.Display())
}

// SetInfiniteFuel marks a tank as never running dry. The setting lives on
// the tank's microgrid and is written without undo.
func (tx *Transaction) SetInfiniteFuel(tank domain.Entity, infinite bool) (domain.Outcome, error) {
	if err := tx.usable(); err != nil {
		return domain.Outcome{}, err
	}
	if isNil(tank) {
		return domain.Outcome{}, domain.ErrNilTarget
	}
	facet, err := infiniteFuelFacet(tank.Kind())
	if err != nil {
		return domain.Outcome{}, err
	}
	mg, ok := domain.AsMutable(ancestor(tank, domain.EntityMicrogrid))
	if !ok {
		return domain.Outcome{}, fmt.Errorf("%s %q has no microgrid: %w", tank.Kind().Display(), tank.Name(), domain.ErrNotFound)
	}
	l := domain.NewLog()
	defer tx.absorb(l)
	return tx.svc.exec.SetIndexedNoUndo(mg, facet, tank, infinite, WithSink(l))
}

// infiniteFuelRule applies the infinite_fuel tank option once the tank
// exists.
func infiniteFuelRule() FacetRule {
	return FacetRule{Option: "infinite_fuel",
		Apply: func(ctx *BuildContext, _ FacetRule, value any) error {
			infinite, err := toBool(value)
			if err != nil {
				return err
			}
			mg, ok := domain.AsMutable(ctx.Microgrid())
			if !ok {
				return nil
			}
			facet, err := infiniteFuelFacet(ctx.Entity.Kind())
			if err != nil {
				return err
			}
			_, err = ctx.Tx.svc.exec.SetIndexedNoUndo(mg, facet, ctx.Entity, infinite, WithSink(ctx.Log))
			return err
		}}
}

// ResetRegularPeriodData replaces the data of a resource, load data tier or
// other regular period data holder. A scalar is a one-value series.
func (tx *Transaction) ResetRegularPeriodData(target domain.Mutable, data any) (*domain.Log, error) {
	return tx.Configure(target, []FacetRule{{Option: "data", Facet: "Data",
		Apply: func(ctx *BuildContext, rule FacetRule, value any) error {
			return resetData(ctx.Log, ctx.Entity, value, func(t domain.Mutable, d []float64) error {
				return ctx.SetOn(t, rule.Facet, d, rule.Channel)
			})
		}}}, Options{"data": data})
}

var controllerRules = []FacetRule{
	{Option: "controller_type", Facet: "ControllerType", Convert: enumConverter(domain.ParseControllerType)},
	{Option: "gen_restart_delay", Facet: "GenRestartDelay", Convert: asFloat},
	{Option: "bus_sync_delay", Facet: "BusSyncDelay", Convert: asFloat},
	{Option: "gen_sync_delay", Facet: "GenSyncDelay", Convert: asFloat},
	{Option: "min_power_dispatch_threshold", Facet: "MinPowerDispatchThreshold", Convert: asFloat},
	{Option: "forecast_duration", Facet: "ForecastDuration", Convert: asFloat},
}

// ConfigureMicrogridController sets the islanded controller of mg. Only the
// options present are written.
func (tx *Transaction) ConfigureMicrogridController(mg domain.Mutable, opts Options) (*domain.Log, error) {
	return tx.configureMicrogrid(mg, controllerRules, opts)
}

var startupRules = []FacetRule{
	{Option: "gen_restart_delay", Facet: "StartupGenRestartDelay", Convert: asFloat},
	{Option: "bus_sync_delay", Facet: "StartupBusSyncDelay", Convert: asFloat},
	{Option: "gen_sync_delay", Facet: "StartupGenSyncDelay", Convert: asFloat},
	{Option: "gen_failed_formation_delay", Facet: "GenFailedFormationDelay", Convert: asFloat},
	{Option: "no_gen_failed_formation_delay", Facet: "NoGenFailedFormationDelay", Convert: asFloat},
	{Option: "renewable_start_delay", Facet: "RenewablesStartDelay", Convert: asFloat},
}

// ConfigureStartupController sets the controller that forms the islanded
// microgrid after a threat occurs. Only the options present are written.
func (tx *Transaction) ConfigureStartupController(mg domain.Mutable, opts Options) (*domain.Log, error) {
	return tx.configureMicrogrid(mg, startupRules, opts)
}

func trackRule(option, facet string) FacetRule {
	return FacetRule{Option: option, Facet: facet, Default: false, Convert: asBool}
}

var gridTiedRules = []FacetRule{
	trackRule("track_line_failures", "TrackLineFailures"),
	trackRule("track_transformer_failures", "TrackTransformerFailures"),
	trackRule("track_switch_failures", "TrackSwitchFailures"),
	trackRule("track_ups_failures", "TrackUPSFailures"),
	trackRule("track_battery_failures", "TrackBatteryFailures"),
	trackRule("track_wind_failures", "TrackWindGeneratorFailures"),
	trackRule("track_hydro_failures", "TrackHydroGeneratorFailures"),
	trackRule("track_solar_failures", "TrackSolarGeneratorFailures"),
	trackRule("track_inverter_failures", "TrackInverterFailures"),
}

// ConfigureGridTiedController sets which component failures are simulated
// between threat occurrences. Every flag is written; absent ones reset to
// not tracked.
func (tx *Transaction) ConfigureGridTiedController(mg domain.Mutable, opts Options) (*domain.Log, error) {
	return tx.configureMicrogrid(mg, gridTiedRules, opts)
}

func (tx *Transaction) configureMicrogrid(mg domain.Mutable, facets []FacetRule, opts Options) (*domain.Log, error) {
	if !isNil(mg) && mg.Kind() != domain.EntityMicrogrid {
		return domain.NewLog(), fmt.Errorf("%w: %s is not a microgrid", domain.ErrInvalidOption, mg.Name())
	}
	return tx.Configure(mg, facets, opts)
}

var refuelerRules = []FacetRule{
	{Option: "time_of_day", Facet: "RefuelingTimeOfDay", Convert: asFloat},
	{Option: "period", Facet: "RefuelingPeriod", Convert: asFloat},
	{Option: "quantity", Facet: "RefuelingQuantity", Convert: asFloat},
}

// ConfigureRefueller sets the refuelling schedule of the diesel or propane
// refueler of mg.
func (tx *Transaction) ConfigureRefueller(mg domain.Mutable, fuel string, opts Options) (*domain.Log, error) {
	if isNil(mg) {
		return domain.NewLog(), domain.ErrNilTarget
	}
	var facet string
	switch strings.ToLower(fuel) {
	case "diesel":
		facet = "DieselRefueler"
	case "propane":
		facet = "PropaneRefueler"
	default:
		return domain.NewLog(), domain.OptionError{Option: "fuel", Err: fmt.Errorf("%w: %q", domain.ErrInvalidOption, fuel)}
	}
	raw, err := mg.Get(facet)
	if err != nil {
		return domain.NewLog(), err
	}
	refueler, ok := domain.AsMutable(asEntity(raw))
	if !ok {
		return domain.NewLog(), fmt.Errorf("%s has no %s refueler: %w", mg.Name(), fuel, domain.ErrNotFound)
	}
	return tx.Configure(refueler, refuelerRules, opts)
}

var prmRules = []FacetRule{
	{Option: "simulation_years", Facet: "SimulationYears", Convert: asInt},
	{Option: "powerflow_type", Facet: "PowerflowType", Default: domain.PowerflowNone,
		Convert: enumConverter(domain.ParsePowerflowType)},
	{Option: "use_reliability", Facet: "UseReliability", Default: true, Convert: asBool},
	{Option: "use_fragility", Facet: "UseFragility", Default: true, Convert: asBool},
}

// ConfigurePRM sets the simulation settings held by the driver. Powerflow,
// reliability and fragility are reset to their defaults when not given.
func (tx *Transaction) ConfigurePRM(opts Options) (*domain.Log, error) {
	return tx.Configure(tx.svc.engine.Driver(), prmRules, opts)
}

// Apply runs fn in its own transaction wrapped with the service's tracing,
// metrics and audit hooks. op names the operation in those records.
func (s *Service) Apply(ctx context.Context, op string, fn func(tx *Transaction) error, opts ...CallOption) (*domain.Log, error) {
	var diag *domain.Log
	err := s.run(ctx, op, "", func() (*domain.Log, domain.Entity, error) {
		l, err := s.RunInTransaction(ctx, fn, opts...)
		diag = l
		return l, nil, err
	})
	return diag, err
}
