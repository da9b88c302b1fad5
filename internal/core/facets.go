package core

import (
	"fmt"

	"mdtcore/pkg/domain"
)

// SingleValueChannel is the rejection channel shared by metric limit,
// objective and relative importance.
const SingleValueChannel = "ChangeSingleValueResponseDataCanceled"

// ProfileSource lists stored configurations by category.
type ProfileSource interface {
	Profiles(category string) []domain.Profile
}

type parented interface {
	Parent() domain.Entity
}

// ancestor returns e or its nearest ancestor of kind.
func ancestor(e domain.Entity, kind domain.EntityType) domain.Entity {
	for e != nil && !isNil(e) {
		if e.Kind() == kind {
			return e
		}
		p, ok := e.(parented)
		if !ok {
			return nil
		}
		e = p.Parent()
	}
	return nil
}

// Microgrid returns the microgrid the build happens in, if any.
func (ctx *BuildContext) Microgrid() domain.Entity {
	if ctx.Entity != nil {
		if mg := ancestor(ctx.Entity, domain.EntityMicrogrid); mg != nil {
			return mg
		}
	}
	return ancestor(ctx.Parent, domain.EntityMicrogrid)
}

func throwIn(context string) FindOptions {
	return FindOptions{Fail: FailThrow, Context: context}
}

func convert(fn func(any) (any, error)) Converter { return fn }

var (
	asString = convert(func(v any) (any, error) { return toString(v) })
	asFloat  = convert(func(v any) (any, error) { return toFloat(v) })
	asInt    = convert(func(v any) (any, error) { return toInt(v) })
	asBool   = convert(func(v any) (any, error) { return toBool(v) })
	asPoint  = convert(func(v any) (any, error) { return toPoint(v) })
	asSize   = convert(func(v any) (any, error) { return toSize(v) })
	asCmplx  = convert(func(v any) (any, error) { return toComplex(v) })
	asColor  = convert(func(v any) (any, error) { return toColor(v) })
	asFont   = convert(func(v any) (any, error) { return toFont(v) })
)

func enumConverter[T ~string](parse func(string) (T, error)) Converter {
	return func(v any) (any, error) { return toEnum(v, parse) }
}

func absent(option string) func(*BuildContext) bool {
	return func(ctx *BuildContext) bool { return !ctx.Options.Has(option) }
}

func notesRule() FacetRule {
	return FacetRule{Option: "notes", Facet: "Notes", Default: "", Convert: asString}
}

func locRule() FacetRule {
	return FacetRule{Option: "loc", Facet: "Location", Convert: asPoint}
}

func retrofitCostRule() FacetRule {
	return FacetRule{Option: "retrofit_cost", Facet: "RetrofitCost", Default: 0.0, Convert: asFloat}
}

func specContext(kind domain.EntityType) string {
	return kind.Display() + " specifications"
}

// baseSpecRule resolves base_spec in the kind's specification master list.
func baseSpecRule(kind domain.EntityType) FacetRule {
	return FacetRule{Option: "base_spec", Facet: "BaselineSpecification",
		Apply: func(ctx *BuildContext, rule FacetRule, value any) error {
			spec, err := ctx.FromMasterList(domain.SpecificationList(kind), value, throwIn(specContext(kind)))
			if err != nil {
				return err
			}
			return ctx.Set(rule.Facet, spec, rule.Channel)
		}}
}

// specsRule adds every allowed specification; a single value is a list of
// one.
func specsRule(kind domain.EntityType) FacetRule {
	return FacetRule{Option: "specs",
		Apply: func(ctx *BuildContext, _ FacetRule, value any) error {
			for _, item := range AsList(value) {
				spec, err := ctx.FromMasterList(domain.SpecificationList(kind), item, throwIn(specContext(kind)))
				if err != nil {
					return err
				}
				if err := ctx.Add("Specifications", "AddSpecificationCanceled", spec); err != nil {
					return err
				}
			}
			return nil
		}}
}

func failureModesRule() FacetRule {
	return FacetRule{Option: "failure_modes",
		Apply: func(ctx *BuildContext, _ FacetRule, value any) error {
			for _, item := range AsList(value) {
				fm, err := ctx.FromMasterList("FailureModes", item, throwIn("failure modes"))
				if err != nil {
					return err
				}
				if err := ctx.Add("FailureModes", "AddFailureModeCanceled", fm); err != nil {
					return err
				}
			}
			return nil
		}}
}

// hazards lists every hazard of every design basis threat at the site.
func (ctx *BuildContext) hazards() ([]domain.Entity, error) {
	site := ctx.Engine().Site()
	pu, err := site.Get("PowerUtility")
	if err != nil {
		return nil, err
	}
	utility, ok := domain.AsMutable(asEntity(pu))
	if !ok {
		return nil, nil
	}
	threats, err := utility.Members("FailureModes")
	if err != nil {
		return nil, err
	}
	var out []domain.Entity
	for _, t := range threats {
		m, ok := domain.AsMutable(t)
		if !ok {
			continue
		}
		hs, err := m.Members("Hazards")
		if err != nil {
			return nil, err
		}
		out = append(out, hs...)
	}
	return out, nil
}

func asEntity(v any) domain.Entity {
	e, _ := v.(domain.Entity)
	return e
}

// fragilitiesRule accepts a map of hazard to curve, a single [hazard, curve]
// pair, or a list of such pairs.
func fragilitiesRule() FacetRule {
	return FacetRule{Option: "fragilities",
		Apply: func(ctx *BuildContext, _ FacetRule, value any) error {
			pairs, err := fragilityPairs(value)
			if err != nil {
				return err
			}
			if len(pairs) == 0 {
				return nil
			}
			all, err := ctx.hazards()
			if err != nil {
				return err
			}
			for _, p := range pairs {
				hazard, err := Resolve(p[0], all, throwIn("site hazards"))
				if err != nil {
					return err
				}
				curve, err := toFragility(p[1])
				if err != nil {
					return err
				}
				if err := ctx.Add("FragilityCurves", "AddFragilityCurveCanceled", hazard, curve); err != nil {
					return err
				}
			}
			return nil
		}}
}

func fragilityPairs(value any) ([][2]any, error) {
	switch v := value.(type) {
	case map[string]any:
		out := make([][2]any, 0, len(v))
		for _, k := range sortedOptionKeys(v) {
			out = append(out, [2]any{k, v[k]})
		}
		return out, nil
	case map[domain.Entity]domain.FragilityCurve:
		out := make([][2]any, 0, len(v))
		for h, c := range v {
			out = append(out, [2]any{h, c})
		}
		return out, nil
	}
	list := AsList(value)
	if len(list) == 2 {
		if _, nested := list[0].([]any); !nested {
			return [][2]any{{list[0], list[1]}}, nil
		}
	}
	out := make([][2]any, 0, len(list))
	for _, item := range list {
		pair := AsList(item)
		if len(pair) != 2 {
			return nil, invalid("fragility needs a hazard and a curve")
		}
		out = append(out, [2]any{pair[0], pair[1]})
	}
	return out, nil
}

// tanksRule adds fuel tanks looked up in the generator's microgrid.
func tanksRule(collection string, tankKind domain.EntityType) FacetRule {
	return FacetRule{Option: "tanks",
		Apply: func(ctx *BuildContext, _ FacetRule, value any) error {
			mg := ctx.Microgrid()
			for _, item := range AsList(value) {
				var tank domain.Entity
				var err error
				if mg != nil {
					tank, err = ctx.FromCollection(mg, collection, item, throwIn("microgrid "+tankKind.Display()+"s"))
				} else {
					tank, err = Resolve[domain.Entity](item, nil, throwIn("microgrid "+tankKind.Display()+"s"))
				}
				if err != nil {
					return err
				}
				if err := ctx.Add("Tanks", "AddTankCanceled", tank); err != nil {
					return err
				}
			}
			return nil
		}}
}

// resourceRule resolves the generator's resource at the site.
func resourceRule(collection string) FacetRule {
	return FacetRule{Option: "resource", Facet: "Resource",
		Apply: func(ctx *BuildContext, rule FacetRule, value any) error {
			rec, err := ctx.FromCollection(ctx.Engine().Site(), collection, value, throwIn("site resources"))
			if err != nil {
				return err
			}
			return ctx.Set(rule.Facet, rec, rule.Channel)
		}}
}

func voltageRule() FacetRule {
	return FacetRule{Option: "voltage", Facet: "Voltage", Default: domain.Complex{}, Convert: asCmplx}
}

func impedanceRule() FacetRule {
	return FacetRule{Option: "impedance", Facet: "Impedance", Default: domain.Complex{}, Convert: asCmplx}
}

// periodRule sets period and interval from their four options. Missing
// values default to one day sampled every hour.
func periodRule() FacetRule {
	return FacetRule{Facet: "PeriodAndInterval", When: absent("stored_configuration"),
		Apply: func(ctx *BuildContext, rule FacetRule, _ any) error {
			pi, err := periodFromOptions(ctx.Options)
			if err != nil {
				return err
			}
			return ctx.Set(rule.Facet, pi, rule.Channel)
		}}
}

func periodFromOptions(o Options) (domain.PeriodAndInterval, error) {
	period, err := o.Float("period", 1)
	if err != nil {
		return domain.PeriodAndInterval{}, err
	}
	interval, err := o.Float("interval", 1)
	if err != nil {
		return domain.PeriodAndInterval{}, err
	}
	pu, err := unitOption(o, "period_units", domain.Days)
	if err != nil {
		return domain.PeriodAndInterval{}, err
	}
	iu, err := unitOption(o, "interval_units", domain.Hours)
	if err != nil {
		return domain.PeriodAndInterval{}, err
	}
	return domain.PeriodAndInterval{Period: period, PeriodUnits: pu, Interval: interval, IntervalUnits: iu}, nil
}

func unitOption(o Options, key string, def domain.TimeUnit) (domain.TimeUnit, error) {
	v, ok := o[key]
	if !ok || v == nil {
		return def, nil
	}
	u, err := toEnum(v, domain.ParseTimeUnit)
	if err != nil {
		return "", domain.OptionError{Option: key, Err: err}
	}
	return u, nil
}

// dataRule replaces the regular period data. A length that does not match
// the configured period is kept but warned about.
func dataRule() FacetRule {
	return FacetRule{Option: "data", Facet: "Data", When: absent("stored_configuration"),
		Apply: func(ctx *BuildContext, rule FacetRule, value any) error {
			return resetData(ctx.Log, ctx.Entity, value, func(target domain.Mutable, data []float64) error {
				return ctx.SetOn(target, rule.Facet, data, rule.Channel)
			})
		}}
}

func resetData(l *domain.Log, target domain.Mutable, value any, set func(domain.Mutable, []float64) error) error {
	data, err := toFloats(value)
	if err != nil {
		return err
	}
	if raw, err := target.Get("PeriodAndInterval"); err == nil {
		if pi, ok := raw.(domain.PeriodAndInterval); ok {
			if n := pi.NumPeriods(); n > 0 && n != len(data) {
				l.Add(domain.Entry{
					Category: domain.CategoryWarning, Tag: "W0500",
					Message: fmt.Sprintf("%s %q has %d data values but its period holds %d intervals",
						target.Kind().Display(), target.Name(), len(data), n),
					Entity: target.Kind(), EntityID: target.UID(), Facet: "Data",
				})
			}
		}
	}
	return set(target, data)
}

// storedConfigurationRule adopts a named profile: its name, timing and data.
func storedConfigurationRule(category string) FacetRule {
	return FacetRule{Option: "stored_configuration", Facet: "StoredConfiguration",
		Apply: func(ctx *BuildContext, rule FacetRule, value any) error {
			var all []domain.Profile
			if src := ctx.Tx.svc.profiles; src != nil {
				all = src.Profiles(category)
			}
			var profile domain.Profile
			switch v := value.(type) {
			case domain.Profile:
				profile = v
			case *domain.Profile:
				if v == nil {
					return invalid("nil profile")
				}
				profile = *v
			default:
				found, err := Resolve(value, all, throwIn("stored "+category+" configurations"))
				if err != nil {
					return err
				}
				profile = found
			}
			if err := ctx.Set(rule.Facet, profile.Label, rule.Channel); err != nil {
				return err
			}
			if err := ctx.Set("PeriodAndInterval", profile.Timing, ""); err != nil {
				return err
			}
			return ctx.Set("Data", append([]float64(nil), profile.Data...), "")
		}}
}

// tierRule resolves a load tier in the driver's master list.
func tierRule() FacetRule {
	return FacetRule{Option: "tier", Facet: "LoadTier",
		Apply: func(ctx *BuildContext, rule FacetRule, value any) error {
			tier, err := ctx.FromMasterList("LoadTiers", value, throwIn("load tier master list"))
			if err != nil {
				return err
			}
			return ctx.Set(rule.Facet, tier, rule.Channel)
		}}
}

func missionRule() FacetRule {
	return FacetRule{Option: "mission", Facet: "Mission",
		Apply: func(ctx *BuildContext, rule FacetRule, value any) error {
			mission, err := ctx.FromCollection(ctx.Engine().Site(), "Missions", value, throwIn("site missions"))
			if err != nil {
				return err
			}
			return ctx.Set(rule.Facet, mission, rule.Channel)
		}}
}

// metricRules configure single-value response parameters. improvement is
// the kind's default direction.
func metricRules(improvement domain.ImprovementType) []FacetRule {
	return []FacetRule{
		{Option: "limit", Facet: "SingleValueLimit", Convert: asFloat, Channel: SingleValueChannel},
		{Option: "objective", Facet: "SingleValueObjective", Convert: asFloat, Channel: SingleValueChannel},
		{Option: "improvement_type", Facet: "ImprovementType", Default: improvement,
			Convert: enumConverter(domain.ParseImprovementType)},
		{Option: "limit_stiffness", Facet: "SingleValueLimitStiffness",
			Convert: enumConverter(domain.ParseLimitStiffness)},
		{Option: "relative_importance", Facet: "SingleValueRelativeImportance", Default: 1.0,
			Convert: asFloat, Channel: SingleValueChannel},
		{Option: "value_beyond_objective", Facet: "SingleValueValueBeyondObjective",
			Convert: enumConverter(domain.ParseValueBeyondObjective)},
	}
}

func nodeGroupRules() []FacetRule {
	return []FacetRule{
		notesRule(),
		{Option: "color", Facet: "Color", Default: domain.Color{}, Convert: asColor},
		{Option: "font", Facet: "TextFont", Default: domain.Font{Family: "Microsoft Sans Serif", Size: 8.25}, Convert: asFont},
		locRule(),
		{Option: "size", Facet: "Size", Convert: asSize},
		{Option: "text_alignment", Facet: "TextAlignment", Default: domain.AlignTopLeft,
			Convert: enumConverter(domain.ParseTextAlignment)},
		membersRule("Members", "AddMemberCanceled"),
	}
}

// membersRule adds already-built entities to one of the entity's own
// collections.
func membersRule(collection, channel string) FacetRule {
	return FacetRule{Option: optionKey(collection),
		Apply: func(ctx *BuildContext, _ FacetRule, value any) error {
			for _, item := range AsList(value) {
				e, ok := item.(domain.Entity)
				if !ok || isNil(e) {
					return invalid("%T is not an entity", item)
				}
				if err := ctx.Add(collection, channel, e); err != nil {
					return err
				}
			}
			return nil
		}}
}

// componentRules is the facet table shared by every specified component.
func componentRules(kind domain.EntityType) []FacetRule {
	return []FacetRule{
		locRule(),
		baseSpecRule(kind),
		specsRule(kind),
		failureModesRule(),
		fragilitiesRule(),
		retrofitCostRule(),
	}
}
