package core

import (
	"fmt"

	"mdtcore/pkg/domain"
)

func siteParent(ctx *BuildContext) (domain.Entity, error) {
	return ctx.Engine().Site(), nil
}

func driverParent(ctx *BuildContext) (domain.Entity, error) {
	return ctx.Engine().Driver(), nil
}

func utilityParent(ctx *BuildContext) (domain.Entity, error) {
	pu, err := ctx.Engine().Site().Get("PowerUtility")
	if err != nil {
		return nil, err
	}
	e := asEntity(pu)
	if e == nil {
		return nil, fmt.Errorf("site has no power utility: %w", domain.ErrNotFound)
	}
	return e, nil
}

var (
	underMicrogrid = []domain.EntityType{domain.EntityMicrogrid}
	underBus       = []domain.EntityType{domain.EntityBus}
	underLogic     = []domain.EntityType{
		domain.EntityMissionFunction,
		domain.EntityAndNode,
		domain.EntityOrNode,
		domain.EntityMofNNode,
		domain.EntityNotNode,
	}
)

// resolveTerminal finds a bus or node of the build's microgrid.
func resolveTerminal(ctx *BuildContext, value any) (domain.Entity, error) {
	if e, ok := value.(domain.Entity); ok {
		return e, nil
	}
	mg := ctx.Microgrid()
	if mg == nil {
		return nil, fmt.Errorf("%w: terminals need a microgrid", domain.ErrMissingOption)
	}
	bus, err := ctx.FromCollection(mg, "Busses", value, FindOptions{})
	if err != nil || bus != nil {
		return bus, err
	}
	return ctx.FromCollection(mg, "Nodes", value, throwIn("microgrid busses and nodes"))
}

func terminalRules() []FacetRule {
	rule := func(option, facet string) FacetRule {
		return FacetRule{Option: option, Facet: facet,
			Apply: func(ctx *BuildContext, rule FacetRule, value any) error {
				node, err := resolveTerminal(ctx, value)
				if err != nil {
					return err
				}
				return ctx.Set(rule.Facet, node, rule.Channel)
			}}
	}
	return []FacetRule{rule("first_node", "FirstNode"), rule("second_node", "SecondNode")}
}

// lineName names a line after its end nodes, "<first>-<second>".
func lineName(ctx *BuildContext) (string, error) {
	fn, err := resolveTerminal(ctx, ctx.Options["first_node"])
	if err != nil {
		return "", domain.OptionError{Option: "first_node", Err: err}
	}
	sn, err := resolveTerminal(ctx, ctx.Options["second_node"])
	if err != nil {
		return "", domain.OptionError{Option: "second_node", Err: err}
	}
	return fn.Name() + "-" + sn.Name(), nil
}

// busOptionPrepare resolves the bus of a bus design option, creating one
// named after the first free "Bus 1", "Bus 11", ... in the microgrid when
// none is given.
func busOptionPrepare(ctx *BuildContext) error {
	mg := ancestor(ctx.Parent, domain.EntityMicrogrid)
	if mg == nil {
		return fmt.Errorf("%w: a bus design option needs a microgrid", domain.ErrMissingOption)
	}
	if v, ok := ctx.Options["bus"]; ok && v != nil {
		bus, err := ctx.FromCollection(mg, "Busses", v, throwIn("microgrid busses"))
		if err != nil {
			return err
		}
		ctx.Options = ctx.Options.With("bus", bus)
		return nil
	}
	m, _ := domain.AsMutable(mg)
	busses, err := m.Members("Busses")
	if err != nil {
		return err
	}
	name := MakeUsableName(busses, "Bus 1", 1)
	bus, err := ctx.nested(domain.EntityBus, mg, name, nil)
	if err != nil {
		return err
	}
	ctx.Options = ctx.Options.With("bus", bus)
	return nil
}

// specAttach adds a specification to the master list of its component
// kind.
func specAttach(ctx *BuildContext, owner domain.Mutable) error {
	kind, err := specComponent(ctx.Options)
	if err != nil {
		return err
	}
	return ctx.AddTo(owner, domain.SpecificationList(kind), "Add"+kind.Label()+"SpecificationCanceled", ctx.Entity)
}

func specComponent(o Options) (domain.EntityType, error) {
	raw, err := o.String("component", "")
	if err != nil {
		return "", err
	}
	kind := domain.EntityType(raw)
	if !kindIn(kind, specifiedKinds) {
		return "", domain.OptionError{Option: "component", Err: fmt.Errorf("%w: %q carries no specifications", domain.ErrInvalidOption, raw)}
	}
	return kind, nil
}

var specifiedKinds = []domain.EntityType{
	domain.EntityBus, domain.EntityNode, domain.EntityLine, domain.EntityTransformer, domain.EntitySwitch,
	domain.EntityDieselTank, domain.EntityPropaneTank,
	domain.EntityDieselGenerator, domain.EntityPropaneGenerator, domain.EntityNaturalGasGenerator,
	domain.EntitySolarGenerator, domain.EntityWindGenerator, domain.EntityHydroGenerator,
	domain.EntityBattery, domain.EntityInverter, domain.EntityUPS, domain.EntityLoadSection,
}

// indexedRule writes each list element at its position.
func indexedRule(option, facet string) FacetRule {
	return FacetRule{Option: option, Facet: facet,
		Apply: func(ctx *BuildContext, rule FacetRule, value any) error {
			values, err := toFloats(value)
			if err != nil {
				return err
			}
			for i, v := range values {
				if err := ctx.SetIndexed(rule.Facet, i, v); err != nil {
					return err
				}
			}
			return nil
		}}
}

// operatingPointsRule adds [output, efficiency, fuel] triples.
func operatingPointsRule() FacetRule {
	return FacetRule{Option: "operating_points",
		Apply: func(ctx *BuildContext, _ FacetRule, value any) error {
			list := AsList(value)
			if len(list) == 3 {
				if _, nested := list[0].([]any); !nested {
					list = []any{list}
				}
			}
			for _, item := range list {
				p, err := toFloats(item)
				if err != nil {
					return err
				}
				if len(p) != 3 {
					return invalid("operating point needs 3 values, got %d", len(p))
				}
				if err := ctx.Add("OperatingPoints", "AddOperatingPointCanceled", p[0], p[1], p[2]); err != nil {
					return err
				}
			}
			return nil
		}}
}

// logicAttach makes a logic node the top node of a mission function or a
// child of another logic node.
func logicAttach(ctx *BuildContext, owner domain.Mutable) error {
	if owner.Kind() == domain.EntityMissionFunction {
		return ctx.SetOn(owner, "TopNode", ctx.Entity, "")
	}
	return ctx.AddTo(owner, "Children", "AddChildCanceled", ctx.Entity)
}

func rules(groups ...[]FacetRule) []FacetRule {
	var out []FacetRule
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

func one(r ...FacetRule) []FacetRule { return r }

func equipment(kind domain.EntityType, collection string, extra ...FacetRule) *Blueprint {
	return &Blueprint{
		Kind:        kind,
		Collection:  collection,
		AddChannel:  "Add" + kind.Label() + "Canceled",
		ParentKinds: underBus,
		Facets:      rules(componentRules(kind), extra, one(notesRule())),
	}
}

func metricBlueprint(kind domain.EntityType, improvement domain.ImprovementType, extra ...FacetRule) *Blueprint {
	return &Blueprint{
		Kind:        kind,
		Collection:  "Constraints",
		AddChannel:  "AddConstraintCanceled",
		ParentKinds: underMicrogrid,
		Facets: rules(metricRules(improvement), extra, one(
			FacetRule{Option: "phase", Facet: "Phase", Convert: enumConverter(domain.ParseSimPhase)},
			notesRule(),
		)),
	}
}

func resourceBlueprint(kind domain.EntityType, collection, category string) *Blueprint {
	return &Blueprint{
		Kind:       kind,
		Collection: collection,
		AddChannel: "Add" + kind.Label() + "Canceled",
		Parent:     siteParent,
		Facets: one(
			storedConfigurationRule(category),
			periodRule(),
			dataRule(),
			notesRule(),
		),
	}
}

func logicBlueprint(kind domain.EntityType, extra ...FacetRule) *Blueprint {
	return &Blueprint{
		Kind:        kind,
		ParentKinds: underLogic,
		Facets:      rules(extra, one(membersRule("Children", "AddChildCanceled"), notesRule())),
		Attach:      logicAttach,
	}
}

// DefaultBlueprints returns the blueprint of every buildable kind.
func DefaultBlueprints() []*Blueprint {
	return []*Blueprint{
		{
			Kind:       domain.EntityMicrogrid,
			Collection: "Models",
			AddChannel: "AddModelCanceled",
			Parent:     siteParent,
			Facets:     one(notesRule(), locRule()),
		},
		{
			Kind:        domain.EntityBus,
			Collection:  "Busses",
			AddChannel:  "AddBusCanceled",
			ParentKinds: underMicrogrid,
			Facets:      rules(componentRules(domain.EntityBus), one(voltageRule(), notesRule())),
		},
		{
			Kind:        domain.EntityNode,
			Collection:  "Nodes",
			AddChannel:  "AddNodeCanceled",
			ParentKinds: underMicrogrid,
			Facets:      rules(componentRules(domain.EntityNode), one(voltageRule(), notesRule())),
		},
		{
			Kind:        domain.EntityLine,
			Collection:  "Lines",
			AddChannel:  "AddLineCanceled",
			ParentKinds: underMicrogrid,
			Required:    []string{"first_node", "second_node"},
			NameFunc:    lineName,
			Facets: rules(terminalRules(), componentRules(domain.EntityLine), one(
				notesRule(),
				FacetRule{Option: "length", Facet: "Length", Default: 0.0, Convert: asFloat},
			)),
		},
		{
			Kind:        domain.EntityTransformer,
			Collection:  "Transformers",
			AddChannel:  "AddTransformerCanceled",
			ParentKinds: underMicrogrid,
			Facets:      rules(terminalRules(), componentRules(domain.EntityTransformer), one(notesRule())),
		},
		{
			Kind:        domain.EntitySwitch,
			Collection:  "Switches",
			AddChannel:  "AddSwitchCanceled",
			ParentKinds: underMicrogrid,
			Facets: rules(terminalRules(), componentRules(domain.EntitySwitch), one(
				FacetRule{Option: "normally_open", Facet: "NormallyOpen", Convert: asBool},
				notesRule(),
			)),
		},
		{
			Kind:        domain.EntityDieselTank,
			Collection:  "DieselTanks",
			AddChannel:  "AddDieselTankCanceled",
			ParentKinds: underMicrogrid,
			Facets: rules(componentRules(domain.EntityDieselTank), one(
				FacetRule{Option: "capacity", Facet: "Capacity", Convert: asFloat},
				infiniteFuelRule(),
				notesRule(),
			)),
		},
		{
			Kind:        domain.EntityPropaneTank,
			Collection:  "PropaneTanks",
			AddChannel:  "AddPropaneTankCanceled",
			ParentKinds: underMicrogrid,
			Facets: rules(componentRules(domain.EntityPropaneTank), one(
				FacetRule{Option: "capacity", Facet: "Capacity", Convert: asFloat},
				infiniteFuelRule(),
				notesRule(),
			)),
		},
		equipment(domain.EntityDieselGenerator, "DieselGenerators", tanksRule("DieselTanks", domain.EntityDieselTank)),
		equipment(domain.EntityPropaneGenerator, "PropaneGenerators", tanksRule("PropaneTanks", domain.EntityPropaneTank)),
		equipment(domain.EntityNaturalGasGenerator, "NaturalGasGenerators"),
		equipment(domain.EntitySolarGenerator, "SolarGenerators", resourceRule("SolarResources")),
		equipment(domain.EntityWindGenerator, "WindGenerators", resourceRule("WindResources")),
		equipment(domain.EntityHydroGenerator, "HydroGenerators", resourceRule("HydroResources")),
		equipment(domain.EntityBattery, "Batteries"),
		equipment(domain.EntityInverter, "Inverters"),
		equipment(domain.EntityUPS, "UPSs"),
		equipment(domain.EntityLoadSection, "LoadSections", voltageRule(), periodRule()),
		{
			Kind:        domain.EntityLoadDataTier,
			Collection:  "LoadDataSets",
			AddChannel:  "AddLoadDataSetCanceled",
			ParentKinds: []domain.EntityType{domain.EntityLoadSection},
			Facets: one(
				storedConfigurationRule(domain.ProfileLoad),
				periodRule(),
				dataRule(),
				tierRule(),
				notesRule(),
			),
		},
		{
			Kind:       domain.EntityLoadTier,
			Collection: "LoadTiers",
			AddChannel: "AddLoadTierCanceled",
			Parent:     driverParent,
			Required:   []string{"priority"},
			Facets: one(
				FacetRule{Option: "priority", Facet: "Priority", Convert: asInt},
				FacetRule{Option: "color", Facet: "Color", Convert: asColor},
				notesRule(),
			),
		},
		resourceBlueprint(domain.EntitySolarResource, "SolarResources", domain.ProfileSolar),
		resourceBlueprint(domain.EntityWindResource, "WindResources", domain.ProfileWind),
		resourceBlueprint(domain.EntityHydroResource, "HydroResources", domain.ProfileHydro),
		{
			Kind:       domain.EntityFailureMode,
			Collection: "FailureModes",
			AddChannel: "AddFailureModeCanceled",
			Parent:     driverParent,
			Facets: one(
				FacetRule{Option: "mtbf", Facet: "MTBF", Convert: asFloat},
				FacetRule{Option: "mttr", Facet: "MTTR", Convert: asFloat},
				notesRule(),
			),
		},
		{
			Kind:       domain.EntityDesignBasisThreat,
			Collection: "FailureModes",
			AddChannel: "AddFailureModeCanceled",
			Parent:     utilityParent,
			Facets: one(
				FacetRule{Option: "probability", Facet: "Probability", Convert: asFloat},
				notesRule(),
			),
		},
		{
			Kind:        domain.EntityHazard,
			Collection:  "Hazards",
			AddChannel:  "AddHazardCanceled",
			ParentKinds: []domain.EntityType{domain.EntityDesignBasisThreat},
			Facets: one(
				FacetRule{Option: "intensity", Facet: "Intensity", Convert: asFloat},
				FacetRule{Option: "units", Facet: "Units", Convert: asString},
				notesRule(),
			),
		},
		{
			Kind:        domain.EntityMicrogridDesignOpt,
			Collection:  "DesignOptions",
			AddChannel:  "AddDesignOptionCanceled",
			ParentKinds: underMicrogrid,
			Facets: one(
				FacetRule{Option: "cost", Facet: "Cost", Convert: asFloat},
				notesRule(),
			),
		},
		{
			Kind:        domain.EntityBusDesignOpt,
			Collection:  "BusOptions",
			AddChannel:  "AddBusDesignOptionCanceled",
			ParentKinds: []domain.EntityType{domain.EntityMicrogridDesignOpt},
			Prepare:     busOptionPrepare,
			Facets: one(
				FacetRule{Option: "bus", Facet: "Bus"},
				notesRule(),
			),
		},
		{
			Kind:        domain.EntityMicrogridNodeGroup,
			Collection:  "NodeGroups",
			AddChannel:  "AddNodeGroupCanceled",
			ParentKinds: underMicrogrid,
			Required:    []string{"loc", "size"},
			Facets:      nodeGroupRules(),
		},
		{
			Kind:       domain.EntitySiteNodeGroup,
			Collection: "NodeGroups",
			AddChannel: "AddNodeGroupCanceled",
			Parent:     siteParent,
			Required:   []string{"loc", "size"},
			Facets:     nodeGroupRules(),
		},
		{
			Kind:     domain.EntitySpecification,
			Parent:   driverParent,
			Required: []string{"component"},
			Prepare: func(ctx *BuildContext) error {
				_, err := specComponent(ctx.Options)
				return err
			},
			Facets: one(
				FacetRule{Option: "component", Facet: "ComponentKind", Convert: asString},
				FacetRule{Option: "capital_cost", Facet: "CapitalCost", Convert: asFloat},
				FacetRule{Option: "operational_cost", Facet: "OperationalCost", Convert: asFloat},
				FacetRule{Option: "capacity", Facet: "Capacity", Convert: asFloat},
				FacetRule{Option: "weight", Facet: "Weight", Convert: asFloat},
				FacetRule{Option: "voltage", Facet: "Voltage", Convert: asCmplx},
				FacetRule{Option: "impedance", Facet: "Impedance", Convert: asCmplx},
				indexedRule("efficiencies", "Efficiencies"),
				indexedRule("fuel_usages", "FuelUsages"),
				operatingPointsRule(),
				notesRule(),
			),
			Attach: specAttach,
		},
		metricBlueprint(domain.EntityEnergyAvailability, domain.Maximize, tierRule()),
		metricBlueprint(domain.EntityRenewableEnergy, domain.Maximize),
		metricBlueprint(domain.EntityFuelConsumed, domain.Minimize),
		metricBlueprint(domain.EntityRenewableSpilled, domain.Minimize),
		metricBlueprint(domain.EntityRenewablePenetration, domain.Maximize),
		metricBlueprint(domain.EntitySpinningReserve, domain.Maximize),
		metricBlueprint(domain.EntityDieselEfficiency, domain.Maximize),
		metricBlueprint(domain.EntityDieselFuel, domain.Minimize),
		metricBlueprint(domain.EntityDieselFuelCost, domain.Minimize),
		metricBlueprint(domain.EntityDieselUtilization, domain.Maximize),
		metricBlueprint(domain.EntityFossilOffTime, domain.Maximize),
		metricBlueprint(domain.EntityLoadNotServedFreq, domain.Minimize, tierRule()),
		metricBlueprint(domain.EntityLoadNotServedMag, domain.Minimize, tierRule()),
		metricBlueprint(domain.EntityHeatRecovery, domain.Maximize),
		metricBlueprint(domain.EntityMissionOutage, domain.Minimize, missionRule()),
		metricBlueprint(domain.EntityNaturalGasEfficiency, domain.Maximize),
		metricBlueprint(domain.EntityNaturalGasFuel, domain.Minimize),
		metricBlueprint(domain.EntityNaturalGasFuelCost, domain.Minimize),
		metricBlueprint(domain.EntityNaturalGasUtilization, domain.Maximize),
		metricBlueprint(domain.EntityPropaneEfficiency, domain.Maximize),
		metricBlueprint(domain.EntityPropaneFuel, domain.Minimize),
		metricBlueprint(domain.EntityPropaneFuelCost, domain.Minimize),
		metricBlueprint(domain.EntityPropaneUtilization, domain.Maximize),
		metricBlueprint(domain.EntityTotalFuelCost, domain.Minimize),
		{
			Kind:       domain.EntityResponseFunctionGrp,
			Collection: "ResponseFunctionGroups",
			AddChannel: "AddResponseFunctionGroupCanceled",
			Parent:     driverParent,
			Facets: one(
				FacetRule{Option: "metrics", Apply: func(ctx *BuildContext, _ FacetRule, value any) error {
					rule := membersRule("ResponseFunctions", "AddResponseFunctionCanceled")
					return rule.Apply(ctx, rule, value)
				}},
				notesRule(),
			),
		},
		{
			Kind:       domain.EntityMission,
			Collection: "Missions",
			AddChannel: "AddMissionCanceled",
			Parent:     siteParent,
			Facets: one(
				FacetRule{Option: "duration", Facet: "Duration", Convert: asFloat},
				membersRule("MissionFunctions", "AddMissionFunctionCanceled"),
				notesRule(),
			),
		},
		{
			Kind:       domain.EntityMissionFunction,
			Collection: "MissionFunctions",
			AddChannel: "AddMissionFunctionCanceled",
			Parent:     siteParent,
			Facets:     one(notesRule()),
		},
		logicBlueprint(domain.EntityAndNode),
		logicBlueprint(domain.EntityOrNode),
		logicBlueprint(domain.EntityMofNNode, FacetRule{Option: "m", Facet: "M", Default: 1, Convert: asInt}),
		logicBlueprint(domain.EntityNotNode),
	}
}
