package domain

// RejectionHandler receives the diagnostics an engine attaches to a change
// it declined.
type RejectionHandler func(diagnostics *Log)

// ChannelSource exposes named rejection channels. A channel fires
// synchronously, during the call that caused the rejection.
type ChannelSource interface {
	Entity
	// Subscribe attaches handler to channel. Subscribing to a channel the
	// entity does not expose fails with an error wrapping ErrUnknownChannel.
	Subscribe(channel string, handler RejectionHandler) (unsubscribe func(), err error)
}

// Mutable is the setter/getter contract an engine entity exposes. A nil
// ledger means no undo step is captured for the change.
type Mutable interface {
	ChannelSource
	Parent() Entity
	Get(facet string) (any, error)
	Set(facet string, value any, ledger *Ledger) error
	GetIndexed(facet string, index any) (any, error)
	SetIndexed(facet string, index, value any, ledger *Ledger) error
	Members(collection string) ([]Entity, error)
	Add(collection string, ledger *Ledger, args ...any) error
}

// Reidentifier is implemented by entities whose UID may be replaced after
// construction.
type Reidentifier interface {
	ResetUID(uid string) error
}

// Engine is the collaborator that owns entities and all domain validation.
type Engine interface {
	// Driver returns the root object owning the master lists.
	Driver() Mutable
	// Site returns the site that owns microgrids and resources.
	Site() Mutable
	// NewEntity constructs a bare, unattached entity.
	NewEntity(kind EntityType, name string, parent Entity) (Mutable, error)
	// Lookup finds an entity by UID.
	Lookup(uid string) (Mutable, bool)
	// MasterList returns the ordered members of a named master list.
	MasterList(name string) ([]Entity, error)
	// Undo reverts every delta recorded in the ledger, newest first.
	Undo(ledger *Ledger) error
}

// ChangeChannel returns the default rejection channel for a facet.
func ChangeChannel(facet string) string {
	return "Change" + facet + "Canceled"
}

// AsMutable returns e as a Mutable when it is one.
func AsMutable(e Entity) (Mutable, bool) {
	if e == nil {
		return nil, false
	}
	m, ok := e.(Mutable)
	return m, ok
}
