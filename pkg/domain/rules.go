package domain

// RuleView provides read-only access to the model for rule evaluation.
type RuleView interface {
	Lookup(uid string) (Entity, bool)
	Members(owner Entity, collection string) []Entity
	Value(e Entity, facet string) (any, bool)
}

// Proposal describes a change an engine is about to apply.
type Proposal struct {
	Target     Entity
	Action     Action
	Facet      string
	Collection string
	Index      any
	Value      any
	Args       []any
}

// Rule evaluates a proposal. Error entries in the returned log reject the
// proposal; a returned error is a failure of the rule itself.
type Rule interface {
	Name() string
	Evaluate(view RuleView, proposal Proposal) (*Log, error)
}
