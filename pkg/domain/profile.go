package domain

// Profile is a stored configuration: a named block of regular period data
// that resources and load data tiers can adopt instead of inline data.
type Profile struct {
	ID       string            `json:"id"`
	Label    string            `json:"name"`
	Category string            `json:"category"`
	Tier     string            `json:"tier,omitempty"`
	Timing   PeriodAndInterval `json:"timing"`
	Data     []float64         `json:"data"`
	Notes    string            `json:"notes,omitempty"`
}

// Profile categories.
const (
	ProfileLoad    = "load"
	ProfileSolar   = "solar"
	ProfileWind    = "wind"
	ProfileHydro   = "hydro"
	ProfileThermal = "thermal"
)

func (p Profile) Kind() EntityType { return EntityStoredConfiguration }
func (p Profile) Name() string     { return p.Label }
func (p Profile) UID() string      { return p.ID }
