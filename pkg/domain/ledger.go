package domain

import "sync"

// Action describes the kind of delta captured in a Change.
type Action string

const (
	// ActionCreate records construction of a new entity.
	ActionCreate Action = "create"
	// ActionSet records a property assignment.
	ActionSet Action = "set"
	// ActionSetIndexed records an indexed property assignment.
	ActionSetIndexed Action = "set_indexed"
	// ActionAdd records a collection membership addition.
	ActionAdd Action = "add"
)

// Change is one reversible delta. Its fields are written and read by the
// engine only.
type Change struct {
	Entity     EntityType
	EntityID   string
	Facet      string
	Action     Action
	Index      any
	Args       []any
	Before     any
	After      any
	HadBefore  bool
	Collection string
}

// Ledger is an append-only record of reversible deltas that undo as one
// unit.
type Ledger struct {
	mu      sync.Mutex
	changes []Change
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

// Record appends a change.
func (l *Ledger) Record(change Change) {
	l.mu.Lock()
	l.changes = append(l.changes, change)
	l.mu.Unlock()
}

// Changes returns a copy of the recorded deltas in order.
func (l *Ledger) Changes() []Change {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Change, len(l.changes))
	copy(out, l.changes)
	return out
}

// Len reports the number of recorded deltas.
func (l *Ledger) Len() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.changes)
}

// Reset discards the recorded deltas after they have been undone.
func (l *Ledger) Reset() {
	l.mu.Lock()
	l.changes = nil
	l.mu.Unlock()
}
