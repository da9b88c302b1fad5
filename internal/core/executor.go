package core

import (
	"fmt"
	"reflect"
	"sync"

	"mdtcore/pkg/domain"
)

// CallOption customizes a single mutation.
type CallOption func(*callConfig)

type callConfig struct {
	sink    *domain.Log
	ledger  *domain.Ledger
	channel string
	noUndo  bool
	strict  bool
}

func newCallConfig(opts []CallOption) callConfig {
	var cfg callConfig
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// WithSink routes rejection diagnostics into sink instead of the
// process-wide default log.
func WithSink(sink *domain.Log) CallOption {
	return func(c *callConfig) { c.sink = sink }
}

// WithLedger records undo deltas into ledger. Undo-aware primitives create a
// throwaway ledger when none is supplied.
func WithLedger(ledger *domain.Ledger) CallOption {
	return func(c *callConfig) { c.ledger = ledger }
}

// WithChannel overrides the rejection channel of a mutation.
func WithChannel(channel string) CallOption {
	return func(c *callConfig) { c.channel = channel }
}

// WithoutUndo captures no undo step, even in undo-aware primitives.
func WithoutUndo() CallOption {
	return func(c *callConfig) { c.noUndo = true }
}

// Strict makes a transaction fail its commit when any mutation was
// rejected. Primitives ignore it.
func Strict() CallOption {
	return func(c *callConfig) { c.strict = true }
}

func (c callConfig) sinkOrDefault() *domain.Log {
	if c.sink != nil {
		return c.sink
	}
	return domain.DefaultLog()
}

// ledgerOrNew materializes a ledger only when the caller supplied none.
func (c callConfig) ledgerOrNew() *domain.Ledger {
	if c.noUndo {
		return nil
	}
	if c.ledger != nil {
		return c.ledger
	}
	return domain.NewLedger()
}

// Executor applies one change to one entity and captures the engine's
// synchronous rejection as a typed Outcome. Each call collects rejections
// into its own scope. When a rejection handler issues a second mutation on
// the same entity and channel, only the innermost call accepts the entries
// fired while it runs.
type Executor struct {
	logger   Logger
	outcomes OutcomeRecorder

	mu     sync.Mutex
	active map[scopeKey][]*domain.Log
}

type scopeKey struct {
	target  domain.ChannelSource
	channel string
}

func (x *Executor) push(key scopeKey, scope *domain.Log) {
	x.mu.Lock()
	if x.active == nil {
		x.active = make(map[scopeKey][]*domain.Log)
	}
	x.active[key] = append(x.active[key], scope)
	x.mu.Unlock()
}

func (x *Executor) pop(key scopeKey, scope *domain.Log) {
	x.mu.Lock()
	defer x.mu.Unlock()
	stack := x.active[key]
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == scope {
			stack = append(stack[:i], stack[i+1:]...)
			break
		}
	}
	if len(stack) == 0 {
		delete(x.active, key)
		return
	}
	x.active[key] = stack
}

// innermost reports whether scope is the most recent open call on key.
func (x *Executor) innermost(key scopeKey, scope *domain.Log) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	stack := x.active[key]
	return len(stack) > 0 && stack[len(stack)-1] == scope
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithExecutorLogger logs rejections at warn level.
func WithExecutorLogger(l Logger) ExecutorOption {
	return func(x *Executor) {
		if l != nil {
			x.logger = l
		}
	}
}

// WithOutcomeRecorder counts applied and rejected mutations.
func WithOutcomeRecorder(r OutcomeRecorder) ExecutorOption {
	return func(x *Executor) {
		if r != nil {
			x.outcomes = r
		}
	}
}

// NewExecutor constructs an executor.
func NewExecutor(opts ...ExecutorOption) *Executor {
	x := &Executor{logger: noopLogger{}, outcomes: noopOutcomes{}}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Execute subscribes to channel on target, runs action and unsubscribes
// exactly once, even when action fails. Diagnostics fired on the channel
// during action are merged into sink (the default log when nil) and carried
// by the returned Outcome.
//
// An unknown channel is a hard error and action is not run. An error from
// action is returned as is; any diagnostics captured before it are still
// merged.
func (x *Executor) Execute(target domain.ChannelSource, channel string, action func() error, sink *domain.Log) (domain.Outcome, error) {
	if isNil(target) {
		return domain.Outcome{}, domain.ErrNilTarget
	}
	if action == nil {
		return domain.Outcome{}, fmt.Errorf("execute %s on %s: nil action", channel, target.Name())
	}
	if sink == nil {
		sink = domain.DefaultLog()
	}

	scope := domain.NewLog()
	key := scopeKey{target: target, channel: channel}
	unsubscribe, err := target.Subscribe(channel, func(diag *domain.Log) {
		if x.innermost(key, scope) {
			scope.Merge(diag)
		}
	})
	if err != nil {
		x.logger.Error("subscribe failed", "entity", target.Name(), "channel", channel, "error", err)
		return domain.Outcome{}, err
	}
	x.push(key, scope)
	defer func() {
		x.pop(key, scope)
		unsubscribe()
	}()

	actionErr := action()
	rejected := scope.Len() > 0
	if rejected {
		sink.Merge(scope)
	}
	if actionErr != nil {
		x.logger.Error("mutation failed", "entity", target.Name(), "channel", channel, "error", actionErr)
		return domain.Outcome{}, actionErr
	}
	if rejected {
		x.outcomes.ObserveOutcome(channel, domain.StatusRejected)
		x.logger.Warn("mutation rejected", "entity", target.Name(), "channel", channel, "entries", scope.Len())
		return domain.Rejected(scope), nil
	}
	x.outcomes.ObserveOutcome(channel, domain.StatusApplied)
	return domain.Applied(), nil
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
