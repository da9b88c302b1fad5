package domain

// Status tags an Outcome.
type Status string

const (
	StatusApplied  Status = "applied"
	StatusRejected Status = "rejected"
)

// Outcome is the result of one mutation: Applied, or Rejected with the
// diagnostics the engine attached.
type Outcome struct {
	Status      Status
	Diagnostics *Log
}

// Applied returns an applied outcome.
func Applied() Outcome {
	return Outcome{Status: StatusApplied}
}

// Rejected returns a rejected outcome carrying diagnostics.
func Rejected(diagnostics *Log) Outcome {
	if diagnostics == nil {
		diagnostics = NewLog()
	}
	return Outcome{Status: StatusRejected, Diagnostics: diagnostics}
}

// IsApplied reports whether the mutation applied.
func (o Outcome) IsApplied() bool { return o.Status == StatusApplied }

// IsRejected reports whether the engine declined the mutation.
func (o Outcome) IsRejected() bool { return o.Status == StatusRejected }
