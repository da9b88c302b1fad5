// Package domain defines the shared vocabulary of the mutation layer: entity
// identity, diagnostics logs, undo ledgers, mutation outcomes, and the call
// contract an engine exposes to the builders.
package domain

import "strings"

// EntityType identifies the kind of an engine-owned entity.
type EntityType string

// Entity kinds understood by the builders and the reference engine.
const (
	// EntityDriver identifies the root object that owns the master lists.
	EntityDriver EntityType = "driver"
	// EntitySite identifies the site that owns microgrids and resources.
	EntitySite EntityType = "site"
	// EntityPowerUtility identifies the commercial utility attached to a site.
	EntityPowerUtility EntityType = "power_utility"
	// EntitySolver identifies the solver settings object.
	EntitySolver EntityType = "solver"

	EntityMicrogrid   EntityType = "microgrid"
	EntityBus         EntityType = "bus"
	EntityNode        EntityType = "node"
	EntityLine        EntityType = "line"
	EntityTransformer EntityType = "transformer"
	EntitySwitch      EntityType = "switch"

	EntityDieselTank            EntityType = "diesel_tank"
	EntityPropaneTank           EntityType = "propane_tank"
	EntityDieselGenerator       EntityType = "diesel_generator"
	EntityPropaneGenerator      EntityType = "propane_generator"
	EntityNaturalGasGenerator   EntityType = "natural_gas_generator"
	EntitySolarGenerator        EntityType = "solar_generator"
	EntityWindGenerator         EntityType = "wind_generator"
	EntityHydroGenerator        EntityType = "hydro_generator"
	EntityBattery               EntityType = "battery"
	EntityInverter              EntityType = "inverter"
	EntityUPS                   EntityType = "ups"
	EntityLoadSection           EntityType = "load_section"
	EntityLoadDataTier          EntityType = "load_data_tier"
	EntityLoadTier              EntityType = "load_tier"
	EntitySolarResource         EntityType = "solar_resource"
	EntityWindResource          EntityType = "wind_resource"
	EntityHydroResource         EntityType = "hydro_resource"
	EntityHazard                EntityType = "hazard"
	EntityDesignBasisThreat     EntityType = "design_basis_threat"
	EntityMicrogridDesignOpt    EntityType = "microgrid_design_option"
	EntityBusDesignOpt          EntityType = "bus_design_option"
	EntityMicrogridNodeGroup    EntityType = "microgrid_node_group"
	EntitySiteNodeGroup         EntityType = "site_node_group"
	EntitySpecification         EntityType = "specification"
	EntityFailureMode           EntityType = "failure_mode"
	EntityRefueler              EntityType = "refueler"
	EntityEnergyAvailability    EntityType = "energy_availability_metric"
	EntityRenewableEnergy       EntityType = "renewable_energy_metric"
	EntityFuelConsumed          EntityType = "fuel_consumed_metric"
	EntityRenewableSpilled      EntityType = "renewable_energy_spilled_metric"
	EntityRenewablePenetration  EntityType = "renewable_penetration_metric"
	EntitySpinningReserve       EntityType = "spinning_reserve_metric"
	EntityDieselEfficiency      EntityType = "diesel_efficiency_metric"
	EntityDieselFuel            EntityType = "diesel_fuel_metric"
	EntityDieselFuelCost        EntityType = "diesel_fuel_cost_metric"
	EntityDieselUtilization     EntityType = "diesel_utilization_metric"
	EntityFossilOffTime         EntityType = "fossil_off_time_metric"
	EntityLoadNotServedFreq     EntityType = "load_not_served_frequency_metric"
	EntityLoadNotServedMag      EntityType = "load_not_served_magnitude_metric"
	EntityHeatRecovery          EntityType = "heat_recovery_metric"
	EntityMissionOutage         EntityType = "mission_outage_duration_metric"
	EntityNaturalGasEfficiency  EntityType = "natural_gas_efficiency_metric"
	EntityNaturalGasFuel        EntityType = "natural_gas_fuel_metric"
	EntityNaturalGasFuelCost    EntityType = "natural_gas_fuel_cost_metric"
	EntityNaturalGasUtilization EntityType = "natural_gas_utilization_metric"
	EntityPropaneEfficiency     EntityType = "propane_efficiency_metric"
	EntityPropaneFuel           EntityType = "propane_fuel_metric"
	EntityPropaneFuelCost       EntityType = "propane_fuel_cost_metric"
	EntityPropaneUtilization    EntityType = "propane_utilization_metric"
	EntityTotalFuelCost         EntityType = "total_fuel_cost_metric"
	EntityResponseFunctionGrp   EntityType = "response_function_group"
	EntityMission               EntityType = "mission"
	EntityMissionFunction       EntityType = "mission_function"
	EntityAndNode               EntityType = "and_node"
	EntityOrNode                EntityType = "or_node"
	EntityMofNNode              EntityType = "m_of_n_node"
	EntityNotNode               EntityType = "not_node"
	EntityStoredConfiguration   EntityType = "stored_configuration"
)

// Entity is an opaque handle owned by an engine. Only identity matters to
// the mutation layer.
type Entity interface {
	Kind() EntityType
	Name() string
	UID() string
}

// Point is a 2D location used by located entities and node groups.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Size is a 2D extent.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// PeriodAndInterval describes the time base of regular period data.
type PeriodAndInterval struct {
	Period        float64  `json:"period"`
	PeriodUnits   TimeUnit `json:"period_units"`
	Interval      float64  `json:"interval"`
	IntervalUnits TimeUnit `json:"interval_units"`
}

// NumPeriods returns how many intervals fit in the period.
func (p PeriodAndInterval) NumPeriods() int {
	interval := p.IntervalUnits.Seconds(p.Interval)
	if interval <= 0 {
		return 0
	}
	return int(p.PeriodUnits.Seconds(p.Period) / interval)
}

// Names returns the display names of the supplied entities in order.
func Names[E Entity](items []E) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.Name())
	}
	return out
}

// Label returns the kind in CamelCase, e.g. "DieselGenerator".
func (t EntityType) Label() string {
	if label, ok := kindLabels[t]; ok {
		return label
	}
	parts := strings.Split(string(t), "_")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, "")
}

// Display returns the kind as lower-case words, e.g. "diesel generator".
func (t EntityType) Display() string {
	return strings.ReplaceAll(string(t), "_", " ")
}

var kindLabels = map[EntityType]string{
	EntityUPS:                 "UPS",
	EntityMofNNode:            "MofNNode",
	EntityMicrogridDesignOpt:  "MicrogridDesignOption",
	EntityBusDesignOpt:        "BusDesignOption",
	EntityResponseFunctionGrp: "ResponseFunctionGroup",
}

// SpecificationList names the master list holding specifications for kind.
func SpecificationList(kind EntityType) string {
	return kind.Label() + "Specifications"
}
