package core

import (
	"strconv"
	"strings"

	"mdtcore/pkg/domain"
)

// FailBehavior selects what a lookup does when no entity matches.
type FailBehavior int

const (
	// FailIgnore returns the zero value and no error.
	FailIgnore FailBehavior = iota
	// FailThrow returns a NotFoundError naming the target and context.
	FailThrow
)

// FindOptions control a name lookup.
type FindOptions struct {
	// CaseInsensitive compares names with strings.EqualFold.
	CaseInsensitive bool
	Fail            FailBehavior
	// Context describes the searched collection in error messages.
	Context string
}

// FindByName returns the first entity in all named name.
func FindByName[E domain.Entity](all []E, name string, opts FindOptions) (E, error) {
	for _, e := range all {
		if matchName(e.Name(), name, opts.CaseInsensitive) {
			return e, nil
		}
	}
	var zero E
	if opts.Fail == FailThrow {
		return zero, domain.NotFoundError{Name: name, Context: opts.Context}
	}
	return zero, nil
}

// Resolve accepts an already-resolved handle or a display name. Handles are
// returned unchanged; names are searched in all. Any other value is an
// invalid option.
func Resolve[E domain.Entity](value any, all []E, opts FindOptions) (E, error) {
	var zero E
	switch v := value.(type) {
	case nil:
		return zero, nil
	case E:
		return v, nil
	case string:
		return FindByName(all, v, opts)
	case domain.Entity:
		// A handle of a different concrete type still resolves by name.
		return FindByName(all, v.Name(), opts)
	}
	return zero, domain.OptionError{Option: opts.Context, Err: domain.ErrInvalidOption}
}

func matchName(have, want string, caseInsensitive bool) bool {
	if caseInsensitive {
		return strings.EqualFold(have, want)
	}
	return have == want
}

// MakeUsableName returns base when no entity in all carries it, otherwise
// the first of base+start, base+start+1, ... that is free. Callers must not
// mutate all during the search.
func MakeUsableName[E domain.Entity](all []E, base string, start int) string {
	taken := make(map[string]struct{}, len(all))
	for _, e := range all {
		taken[e.Name()] = struct{}{}
	}
	name := base
	for n := start; ; n++ {
		if _, ok := taken[name]; !ok {
			return name
		}
		name = base + strconv.Itoa(n)
	}
}
