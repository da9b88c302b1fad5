package engine

import "mdtcore/pkg/domain"

// SpecifiedKinds lists the kinds that carry specifications and therefore
// have a master list on the driver.
var SpecifiedKinds = []domain.EntityType{
	domain.EntityBus,
	domain.EntityNode,
	domain.EntityLine,
	domain.EntityTransformer,
	domain.EntitySwitch,
	domain.EntityDieselTank,
	domain.EntityPropaneTank,
	domain.EntityDieselGenerator,
	domain.EntityPropaneGenerator,
	domain.EntityNaturalGasGenerator,
	domain.EntitySolarGenerator,
	domain.EntityWindGenerator,
	domain.EntityHydroGenerator,
	domain.EntityBattery,
	domain.EntityInverter,
	domain.EntityUPS,
	domain.EntityLoadSection,
}

var generatorKinds = []domain.EntityType{
	domain.EntityDieselGenerator,
	domain.EntityPropaneGenerator,
	domain.EntityNaturalGasGenerator,
	domain.EntitySolarGenerator,
	domain.EntityWindGenerator,
	domain.EntityHydroGenerator,
}

var metricKinds = []domain.EntityType{
	domain.EntityEnergyAvailability,
	domain.EntityRenewableEnergy,
	domain.EntityFuelConsumed,
	domain.EntityRenewableSpilled,
	domain.EntityRenewablePenetration,
	domain.EntitySpinningReserve,
	domain.EntityDieselEfficiency,
	domain.EntityDieselFuel,
	domain.EntityDieselFuelCost,
	domain.EntityDieselUtilization,
	domain.EntityFossilOffTime,
	domain.EntityLoadNotServedFreq,
	domain.EntityLoadNotServedMag,
	domain.EntityHeatRecovery,
	domain.EntityMissionOutage,
	domain.EntityNaturalGasEfficiency,
	domain.EntityNaturalGasFuel,
	domain.EntityNaturalGasFuelCost,
	domain.EntityNaturalGasUtilization,
	domain.EntityPropaneEfficiency,
	domain.EntityPropaneFuel,
	domain.EntityPropaneFuelCost,
	domain.EntityPropaneUtilization,
	domain.EntityTotalFuelCost,
}

var logicKinds = []domain.EntityType{
	domain.EntityAndNode,
	domain.EntityOrNode,
	domain.EntityMofNNode,
	domain.EntityNotNode,
}

// SingleValueChannel is shared by all single-value response facets.
const SingleValueChannel = "ChangeSingleValueResponseDataCanceled"

var (
	notes   = Facet("Notes", "")
	located = Facet("Location", domain.Point{})

	component = Parts(
		notes,
		located,
		Ref("BaselineSpecification", domain.EntitySpecification),
		Facet("RetrofitCost", 0.0),
		Collection("Specifications", "AddSpecificationCanceled", EntityArg(domain.EntitySpecification)),
		Collection("FailureModes", "AddFailureModeCanceled", EntityArg(domain.EntityFailureMode)),
		Collection("FragilityCurves", "AddFragilityCurveCanceled",
			EntityArg(domain.EntityHazard), ValueArg(domain.FragilityCurve{})),
	)

	voltage = Facet("Voltage", domain.Complex{})

	terminals = Parts(
		Ref("FirstNode", domain.EntityBus, domain.EntityNode),
		Ref("SecondNode", domain.EntityBus, domain.EntityNode),
	)

	regularPeriod = Parts(
		Facet("PeriodAndInterval", domain.PeriodAndInterval{}),
		Facet("Data", []float64{}),
		Facet("StoredConfiguration", ""),
	)

	busEquipment = Parts(
		Collection("DieselGenerators", "AddDieselGeneratorCanceled", EntityArg(domain.EntityDieselGenerator)),
		Collection("PropaneGenerators", "AddPropaneGeneratorCanceled", EntityArg(domain.EntityPropaneGenerator)),
		Collection("NaturalGasGenerators", "AddNaturalGasGeneratorCanceled", EntityArg(domain.EntityNaturalGasGenerator)),
		Collection("SolarGenerators", "AddSolarGeneratorCanceled", EntityArg(domain.EntitySolarGenerator)),
		Collection("WindGenerators", "AddWindGeneratorCanceled", EntityArg(domain.EntityWindGenerator)),
		Collection("HydroGenerators", "AddHydroGeneratorCanceled", EntityArg(domain.EntityHydroGenerator)),
		Collection("Batteries", "AddBatteryCanceled", EntityArg(domain.EntityBattery)),
		Collection("Inverters", "AddInverterCanceled", EntityArg(domain.EntityInverter)),
		Collection("UPSs", "AddUPSCanceled", EntityArg(domain.EntityUPS)),
		Collection("LoadSections", "AddLoadSectionCanceled", EntityArg(domain.EntityLoadSection)),
	)

	fueled = func(tank domain.EntityType) SchemaPart {
		return Parts(component, Collection("Tanks", "AddTankCanceled", EntityArg(tank)))
	}

	renewable = func(resource domain.EntityType) SchemaPart {
		return Parts(component, Ref("Resource", resource))
	}

	nodeGroup = Parts(
		notes,
		located,
		Facet("Size", domain.Size{}),
		Facet("Color", domain.Color{}),
		Facet("TextFont", domain.Font{}),
		Facet("TextAlignment", domain.AlignMiddleCenter),
		Collection("Members", "AddMemberCanceled", EntityArg()),
	)

	metric = Parts(
		notes,
		FacetOn("SingleValueLimit", 0.0, SingleValueChannel),
		FacetOn("SingleValueObjective", 0.0, SingleValueChannel),
		FacetOn("SingleValueRelativeImportance", 1.0, SingleValueChannel),
		Facet("SingleValueLimitStiffness", domain.StiffnessNone),
		Facet("SingleValueValueBeyondObjective", domain.BeyondNone),
		Facet("ImprovementType", domain.Maximize),
		Facet("Phase", domain.PhaseIslanded),
		Ref("LoadTier", domain.EntityLoadTier),
	)

	logicNode = Parts(
		notes,
		Collection("Children", "AddChildCanceled", EntityArg()),
	)

	refuelSchedule = Parts(
		Facet("RefuelingTimeOfDay", 0.0),
		Facet("RefuelingPeriod", 0.0),
		Facet("RefuelingQuantity", 0.0),
	)
)

// DefaultSchemas returns the built-in kind schemas.
func DefaultSchemas() []*KindSchema {
	driverParts := []SchemaPart{
		Collection("LoadTiers", "AddLoadTierCanceled", EntityArg(domain.EntityLoadTier)),
		Collection("FailureModes", "AddFailureModeCanceled", EntityArg(domain.EntityFailureMode)),
		Collection("ResponseFunctionGroups", "AddResponseFunctionGroupCanceled", EntityArg(domain.EntityResponseFunctionGrp)),
		Facet("SimulationYears", 10),
		Facet("PowerflowType", domain.PowerflowNone),
		Facet("UseReliability", true),
		Facet("UseFragility", true),
	}
	for _, kind := range SpecifiedKinds {
		driverParts = append(driverParts, Collection(domain.SpecificationList(kind),
			"Add"+kind.Label()+"SpecificationCanceled", EntityArg(domain.EntitySpecification)))
	}

	return []*KindSchema{
		NewKindSchema(domain.EntityDriver, driverParts...),
		NewKindSchema(domain.EntitySite,
			notes,
			located,
			Child("PowerUtility", domain.EntityPowerUtility),
			Collection("Models", "AddModelCanceled", EntityArg(domain.EntityMicrogrid)),
			Collection("SolarResources", "AddSolarResourceCanceled", EntityArg(domain.EntitySolarResource)),
			Collection("WindResources", "AddWindResourceCanceled", EntityArg(domain.EntityWindResource)),
			Collection("HydroResources", "AddHydroResourceCanceled", EntityArg(domain.EntityHydroResource)),
			Collection("NodeGroups", "AddNodeGroupCanceled", EntityArg(domain.EntitySiteNodeGroup)),
			Collection("Missions", "AddMissionCanceled", EntityArg(domain.EntityMission)),
			Collection("MissionFunctions", "AddMissionFunctionCanceled", EntityArg(domain.EntityMissionFunction)),
		),
		NewKindSchema(domain.EntityPowerUtility,
			notes,
			Collection("FailureModes", "AddFailureModeCanceled", EntityArg(domain.EntityDesignBasisThreat)),
		),
		NewKindSchema(domain.EntityMicrogrid,
			notes,
			located,
			Collection("Busses", "AddBusCanceled", EntityArg(domain.EntityBus)),
			Collection("Nodes", "AddNodeCanceled", EntityArg(domain.EntityNode)),
			Collection("Lines", "AddLineCanceled", EntityArg(domain.EntityLine)),
			Collection("Transformers", "AddTransformerCanceled", EntityArg(domain.EntityTransformer)),
			Collection("Switches", "AddSwitchCanceled", EntityArg(domain.EntitySwitch)),
			Collection("DieselTanks", "AddDieselTankCanceled", EntityArg(domain.EntityDieselTank)),
			Collection("PropaneTanks", "AddPropaneTankCanceled", EntityArg(domain.EntityPropaneTank)),
			Collection("DesignOptions", "AddDesignOptionCanceled", EntityArg(domain.EntityMicrogridDesignOpt)),
			Collection("NodeGroups", "AddNodeGroupCanceled", EntityArg(domain.EntityMicrogridNodeGroup)),
			Collection("Constraints", "AddConstraintCanceled", EntityArg(metricKinds...)),
			Indexed("UseInfiniteDieselFuel", false, domain.EntityDieselTank),
			Indexed("UseInfinitePropaneFuel", false, domain.EntityPropaneTank),
			Facet("ControllerType", domain.ControllerLoadFirst),
			Facet("GenRestartDelay", 0.0),
			Facet("BusSyncDelay", 0.0),
			Facet("GenSyncDelay", 0.0),
			Facet("MinPowerDispatchThreshold", 0.0),
			Facet("ForecastDuration", 0.0),
			Facet("StartupGenRestartDelay", 15.0),
			Facet("StartupBusSyncDelay", 20.0),
			Facet("StartupGenSyncDelay", 15.0),
			Facet("GenFailedFormationDelay", 120.0),
			Facet("NoGenFailedFormationDelay", 600.0),
			Facet("RenewablesStartDelay", 300.0),
			Facet("TrackLineFailures", false),
			Facet("TrackTransformerFailures", false),
			Facet("TrackSwitchFailures", false),
			Facet("TrackUPSFailures", false),
			Facet("TrackBatteryFailures", false),
			Facet("TrackWindGeneratorFailures", false),
			Facet("TrackHydroGeneratorFailures", false),
			Facet("TrackSolarGeneratorFailures", false),
			Facet("TrackInverterFailures", false),
			Child("DieselRefueler", domain.EntityRefueler),
			Child("PropaneRefueler", domain.EntityRefueler),
		),
		NewKindSchema(domain.EntityRefueler, refuelSchedule),
		NewKindSchema(domain.EntityBus, component, voltage, busEquipment),
		NewKindSchema(domain.EntityNode, component, voltage),
		NewKindSchema(domain.EntityLine, component, terminals, Facet("Length", 0.0)),
		NewKindSchema(domain.EntityTransformer, component, terminals),
		NewKindSchema(domain.EntitySwitch, component, terminals, Facet("NormallyOpen", false)),
		NewKindSchema(domain.EntityDieselTank, component, Facet("Capacity", 0.0)),
		NewKindSchema(domain.EntityPropaneTank, component, Facet("Capacity", 0.0)),
		NewKindSchema(domain.EntityDieselGenerator, fueled(domain.EntityDieselTank)),
		NewKindSchema(domain.EntityPropaneGenerator, fueled(domain.EntityPropaneTank)),
		NewKindSchema(domain.EntityNaturalGasGenerator, component),
		NewKindSchema(domain.EntitySolarGenerator, renewable(domain.EntitySolarResource)),
		NewKindSchema(domain.EntityWindGenerator, renewable(domain.EntityWindResource)),
		NewKindSchema(domain.EntityHydroGenerator, renewable(domain.EntityHydroResource)),
		NewKindSchema(domain.EntityBattery, component),
		NewKindSchema(domain.EntityInverter, component),
		NewKindSchema(domain.EntityUPS, component),
		NewKindSchema(domain.EntityLoadSection,
			component,
			voltage,
			Facet("PeriodAndInterval", domain.PeriodAndInterval{}),
			Collection("LoadDataSets", "AddLoadDataSetCanceled", EntityArg(domain.EntityLoadDataTier)),
		),
		NewKindSchema(domain.EntityLoadDataTier, notes, regularPeriod, Ref("LoadTier", domain.EntityLoadTier)),
		NewKindSchema(domain.EntityLoadTier, notes, Facet("Priority", 0), Facet("Color", domain.Color{})),
		NewKindSchema(domain.EntitySolarResource, notes, regularPeriod),
		NewKindSchema(domain.EntityWindResource, notes, regularPeriod),
		NewKindSchema(domain.EntityHydroResource, notes, regularPeriod),
		NewKindSchema(domain.EntityFailureMode, notes, Facet("MTBF", 0.0), Facet("MTTR", 0.0)),
		NewKindSchema(domain.EntityDesignBasisThreat,
			notes,
			Facet("Probability", 0.0),
			Collection("Hazards", "AddHazardCanceled", EntityArg(domain.EntityHazard)),
		),
		NewKindSchema(domain.EntityHazard, notes, Facet("Intensity", 0.0), Facet("Units", "")),
		NewKindSchema(domain.EntityMicrogridDesignOpt,
			notes,
			Facet("Cost", 0.0),
			Collection("BusOptions", "AddBusDesignOptionCanceled", EntityArg(domain.EntityBusDesignOpt)),
			Collection("Lines", "AddLineCanceled", EntityArg(domain.EntityLine)),
			Collection("Transformers", "AddTransformerCanceled", EntityArg(domain.EntityTransformer)),
			Collection("Switches", "AddSwitchCanceled", EntityArg(domain.EntitySwitch)),
			Collection("DieselTanks", "AddDieselTankCanceled", EntityArg(domain.EntityDieselTank)),
			Collection("PropaneTanks", "AddPropaneTankCanceled", EntityArg(domain.EntityPropaneTank)),
		),
		NewKindSchema(domain.EntityBusDesignOpt, notes, Ref("Bus", domain.EntityBus), busEquipment),
		NewKindSchema(domain.EntityMicrogridNodeGroup, nodeGroup),
		NewKindSchema(domain.EntitySiteNodeGroup, nodeGroup),
		NewKindSchema(domain.EntitySpecification,
			notes,
			Facet("ComponentKind", ""),
			Facet("CapitalCost", 0.0),
			Facet("OperationalCost", 0.0),
			Facet("Capacity", 0.0),
			Facet("Weight", 0.0),
			Facet("Voltage", domain.Complex{}),
			Facet("Impedance", domain.Complex{}),
			Indexed("Efficiencies", 0.0, ""),
			Indexed("FuelUsages", 0.0, ""),
			Collection("OperatingPoints", "AddOperatingPointCanceled", ValueArg(0.0), ValueArg(0.0), ValueArg(0.0)),
		),
		NewKindSchema(domain.EntityEnergyAvailability, metric),
		NewKindSchema(domain.EntityRenewableEnergy, metric),
		NewKindSchema(domain.EntityFuelConsumed, metric),
		NewKindSchema(domain.EntityRenewableSpilled, metric),
		NewKindSchema(domain.EntityRenewablePenetration, metric),
		NewKindSchema(domain.EntitySpinningReserve, metric),
		NewKindSchema(domain.EntityDieselEfficiency, metric),
		NewKindSchema(domain.EntityDieselFuel, metric),
		NewKindSchema(domain.EntityDieselFuelCost, metric),
		NewKindSchema(domain.EntityDieselUtilization, metric),
		NewKindSchema(domain.EntityFossilOffTime, metric),
		NewKindSchema(domain.EntityLoadNotServedFreq, metric),
		NewKindSchema(domain.EntityLoadNotServedMag, metric),
		NewKindSchema(domain.EntityHeatRecovery, metric),
		NewKindSchema(domain.EntityMissionOutage, metric, Ref("Mission", domain.EntityMission)),
		NewKindSchema(domain.EntityNaturalGasEfficiency, metric),
		NewKindSchema(domain.EntityNaturalGasFuel, metric),
		NewKindSchema(domain.EntityNaturalGasFuelCost, metric),
		NewKindSchema(domain.EntityNaturalGasUtilization, metric),
		NewKindSchema(domain.EntityPropaneEfficiency, metric),
		NewKindSchema(domain.EntityPropaneFuel, metric),
		NewKindSchema(domain.EntityPropaneFuelCost, metric),
		NewKindSchema(domain.EntityPropaneUtilization, metric),
		NewKindSchema(domain.EntityTotalFuelCost, metric),
		NewKindSchema(domain.EntityResponseFunctionGrp,
			notes,
			Collection("ResponseFunctions", "AddResponseFunctionCanceled", EntityArg(metricKinds...)),
		),
		NewKindSchema(domain.EntityMission,
			notes,
			Facet("Duration", 0.0),
			Collection("MissionFunctions", "AddMissionFunctionCanceled", EntityArg(domain.EntityMissionFunction)),
		),
		NewKindSchema(domain.EntityMissionFunction, notes, Ref("TopNode", logicKinds...)),
		NewKindSchema(domain.EntityAndNode, logicNode),
		NewKindSchema(domain.EntityOrNode, logicNode),
		NewKindSchema(domain.EntityMofNNode, logicNode, Facet("M", 1)),
		NewKindSchema(domain.EntityNotNode, logicNode),
	}
}

// GeneratorKinds returns the generator kinds in a stable order.
func GeneratorKinds() []domain.EntityType {
	out := make([]domain.EntityType, len(generatorKinds))
	copy(out, generatorKinds)
	return out
}
