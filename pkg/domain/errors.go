package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNilTarget          = errors.New("mutation target is nil")
	ErrUnknownChannel     = errors.New("unknown rejection channel")
	ErrUnknownFacet       = errors.New("unknown facet")
	ErrUnknownCollection  = errors.New("unknown collection")
	ErrUnknownKind        = errors.New("unknown entity kind")
	ErrArity              = errors.New("unsupported argument count")
	ErrMissingOption      = errors.New("missing required option")
	ErrInvalidOption      = errors.New("invalid option value")
	ErrTransactionClosed  = errors.New("transaction already closed")
	ErrNotFound           = errors.New("entity not found")
	ErrRejected           = errors.New("mutation rejected")
	ErrTypeMismatch       = errors.New("value type does not match facet")
	ErrUndoNotSupported   = errors.New("engine cannot undo ledger")
	ErrUnsupportedVersion = errors.New("unsupported snapshot version")
)

// ChannelError reports a channel name the target does not expose.
type ChannelError struct {
	Kind    EntityType
	Channel string
}

func (e ChannelError) Error() string {
	return fmt.Sprintf("%s does not expose channel %q", e.Kind, e.Channel)
}

func (e ChannelError) Unwrap() error { return ErrUnknownChannel }

// FacetError reports a facet or collection the target does not have.
type FacetError struct {
	Kind  EntityType
	Facet string
	Err   error
}

func (e FacetError) Error() string {
	return fmt.Sprintf("%s has no %q: %v", e.Kind, e.Facet, e.Err)
}

func (e FacetError) Unwrap() error { return e.Err }

// NotFoundError is raised by a throwing lookup. The message names both the
// searched name and the lookup context.
type NotFoundError struct {
	Name    string
	Context string
}

func (e NotFoundError) Error() string {
	if e.Context == "" {
		return fmt.Sprintf("unable to find an entity named %q", e.Name)
	}
	return fmt.Sprintf("unable to find an entity named %q in %s", e.Name, e.Context)
}

func (e NotFoundError) Unwrap() error { return ErrNotFound }

// OptionError reports a malformed or missing builder option.
type OptionError struct {
	Option string
	Err    error
}

func (e OptionError) Error() string {
	return fmt.Sprintf("option %q: %v", e.Option, e.Err)
}

func (e OptionError) Unwrap() error { return e.Err }

// RejectedError surfaces soft rejections as an error for strict callers.
type RejectedError struct {
	Log *Log
}

func (e RejectedError) Error() string {
	return fmt.Sprintf("%d mutation(s) rejected: %s", e.Log.Count(CategoryError), e.Log.Format(false, 1))
}

func (e RejectedError) Unwrap() error { return ErrRejected }
