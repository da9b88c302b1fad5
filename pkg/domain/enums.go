package domain

import (
	"fmt"
	"strings"
)

// TimeUnit is the canonical time unit enumeration.
type TimeUnit string

const (
	Milliseconds TimeUnit = "milliseconds"
	Seconds      TimeUnit = "seconds"
	Minutes      TimeUnit = "minutes"
	Hours        TimeUnit = "hours"
	Days         TimeUnit = "days"
	Weeks        TimeUnit = "weeks"
	Years        TimeUnit = "years"
)

var timeUnitSeconds = map[TimeUnit]float64{
	Milliseconds: 0.001,
	Seconds:      1,
	Minutes:      60,
	Hours:        3600,
	Days:         86400,
	Weeks:        604800,
	Years:        31536000,
}

// Seconds converts v expressed in u to seconds. Unknown units yield 0.
func (u TimeUnit) Seconds(v float64) float64 {
	return v * timeUnitSeconds[u]
}

// ImprovementType tells the optimizer which direction improves a metric.
type ImprovementType string

const (
	Minimize ImprovementType = "minimize"
	Maximize ImprovementType = "maximize"
)

// LimitStiffness says how strictly a metric limit is enforced.
type LimitStiffness string

const (
	StiffnessNone    LimitStiffness = "none"
	StiffnessSoft    LimitStiffness = "soft"
	StiffnessHard    LimitStiffness = "hard"
	StiffnessAbsolut LimitStiffness = "absolute"
)

// ValueBeyondObjective says whether overshooting an objective still counts.
type ValueBeyondObjective string

const (
	BeyondNone    ValueBeyondObjective = "none"
	BeyondSome    ValueBeyondObjective = "some"
	BeyondFull    ValueBeyondObjective = "full"
	BeyondPenalty ValueBeyondObjective = "penalty"
)

// TextAlignment positions node group labels.
type TextAlignment string

const (
	AlignTopLeft      TextAlignment = "top_left"
	AlignTopCenter    TextAlignment = "top_center"
	AlignTopRight     TextAlignment = "top_right"
	AlignMiddleLeft   TextAlignment = "middle_left"
	AlignMiddleCenter TextAlignment = "middle_center"
	AlignMiddleRight  TextAlignment = "middle_right"
	AlignBottomLeft   TextAlignment = "bottom_left"
	AlignBottomCenter TextAlignment = "bottom_center"
	AlignBottomRight  TextAlignment = "bottom_right"
)

// ControllerType selects the islanded microgrid controller.
type ControllerType string

const (
	ControllerNone      ControllerType = "none"
	ControllerLoadFirst ControllerType = "load_following"
	ControllerCycle     ControllerType = "cycle_charging"
	ControllerForecast  ControllerType = "forecast"
)

// PowerflowType selects the powerflow model of a simulation.
type PowerflowType string

const (
	PowerflowNone     PowerflowType = "none"
	PowerflowBalanced PowerflowType = "balanced"
	PowerflowFull     PowerflowType = "full"
)

// SimPhase identifies the simulation phase a metric is evaluated in.
type SimPhase string

const (
	PhaseNone     SimPhase = "none"
	PhaseIslanded SimPhase = "islanded"
	PhaseStartup  SimPhase = "startup"
	PhaseBoth     SimPhase = "both"
)

var (
	timeUnits       = []TimeUnit{Milliseconds, Seconds, Minutes, Hours, Days, Weeks, Years}
	improvements    = []ImprovementType{Minimize, Maximize}
	stiffnesses     = []LimitStiffness{StiffnessNone, StiffnessSoft, StiffnessHard, StiffnessAbsolut}
	beyondValues    = []ValueBeyondObjective{BeyondNone, BeyondSome, BeyondFull, BeyondPenalty}
	alignments      = []TextAlignment{AlignTopLeft, AlignTopCenter, AlignTopRight, AlignMiddleLeft, AlignMiddleCenter, AlignMiddleRight, AlignBottomLeft, AlignBottomCenter, AlignBottomRight}
	controllerTypes = []ControllerType{ControllerNone, ControllerLoadFirst, ControllerCycle, ControllerForecast}
	powerflowTypes  = []PowerflowType{PowerflowNone, PowerflowBalanced, PowerflowFull}
	simPhases       = []SimPhase{PhaseNone, PhaseIslanded, PhaseStartup, PhaseBoth}
)

// ParseTimeUnit parses a time unit name.
func ParseTimeUnit(s string) (TimeUnit, error) {
	return parseEnum("time unit", s, timeUnits)
}

func ParseImprovementType(s string) (ImprovementType, error) {
	return parseEnum("improvement type", s, improvements)
}

func ParseLimitStiffness(s string) (LimitStiffness, error) {
	return parseEnum("limit stiffness", s, stiffnesses)
}

func ParseValueBeyondObjective(s string) (ValueBeyondObjective, error) {
	return parseEnum("value beyond objective", s, beyondValues)
}

func ParseTextAlignment(s string) (TextAlignment, error) {
	return parseEnum("text alignment", s, alignments)
}

func ParseControllerType(s string) (ControllerType, error) {
	return parseEnum("controller type", s, controllerTypes)
}

func ParsePowerflowType(s string) (PowerflowType, error) {
	return parseEnum("powerflow type", s, powerflowTypes)
}

func ParseSimPhase(s string) (SimPhase, error) {
	return parseEnum("sim phase", s, simPhases)
}

// normalizeEnum folds case and treats spaces, dashes and underscores alike,
// so "Load Following", "load-following" and "LOAD_FOLLOWING" all match.
func normalizeEnum(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "", "-", "", "_", "").Replace(s)
}

func parseEnum[T ~string](kind, s string, values []T) (T, error) {
	want := normalizeEnum(s)
	for _, v := range values {
		if normalizeEnum(string(v)) == want {
			return v, nil
		}
	}
	var zero T
	return zero, fmt.Errorf("%w: unknown %s %q", ErrInvalidOption, kind, s)
}

// Complex is a complex quantity such as a voltage or an impedance.
type Complex struct {
	Real      float64 `json:"real"`
	Imaginary float64 `json:"imaginary"`
}

// FragilityCurve is a lognormal damage curve against a hazard intensity.
type FragilityCurve struct {
	Median     float64 `json:"median"`
	Dispersion float64 `json:"dispersion"`
}

// Color is an RGBA color.
type Color struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
	A uint8 `json:"a"`
}

// Font describes node group label text.
type Font struct {
	Family string  `json:"family"`
	Size   float64 `json:"size"`
	Bold   bool    `json:"bold,omitempty"`
}
