package core

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"mdtcore/pkg/domain"
)

// Service is the entry point of the mutation layer. It owns the executor,
// the blueprint table and the observability hooks wrapped around every
// builder and configure call.
type Service struct {
	engine domain.Engine
	exec   *Executor

	mu         sync.RWMutex
	blueprints map[domain.EntityType]*Blueprint

	profiles ProfileSource
	sink     *domain.Log
	clock    Clock
	logger   Logger
	audit    AuditRecorder
	metrics  MetricsRecorder
	tracer   Tracer
}

type serviceOptions struct {
	clock      Clock
	logger     Logger
	audit      AuditRecorder
	metrics    MetricsRecorder
	tracer     Tracer
	outcomes   OutcomeRecorder
	sink       *domain.Log
	profiles   ProfileSource
	blueprints map[domain.EntityType]*Blueprint
}

// ServiceOption configures a Service.
type ServiceOption func(*serviceOptions)

func defaultServiceOptions() serviceOptions {
	return serviceOptions{
		clock:    ClockFunc(func() time.Time { return time.Now().UTC() }),
		logger:   noopLogger{},
		audit:    noopAudit{},
		metrics:  noopMetrics{},
		tracer:   noopTracer{},
		outcomes: noopOutcomes{},
	}
}

// WithLogger sets the operational logger.
func WithLogger(l Logger) ServiceOption {
	return func(o *serviceOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock overrides the time source used for audit timestamps.
func WithClock(c Clock) ServiceOption {
	return func(o *serviceOptions) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithMetricsRecorder records operation latency. A recorder that also
// implements OutcomeRecorder counts individual mutations too.
func WithMetricsRecorder(m MetricsRecorder) ServiceOption {
	return func(o *serviceOptions) {
		if m == nil {
			return
		}
		o.metrics = m
		if r, ok := m.(OutcomeRecorder); ok {
			o.outcomes = r
		}
	}
}

// WithTracer wraps each operation in a span.
func WithTracer(t Tracer) ServiceOption {
	return func(o *serviceOptions) {
		if t != nil {
			o.tracer = t
		}
	}
}

// WithAuditRecorder receives one entry per operation.
func WithAuditRecorder(a AuditRecorder) ServiceOption {
	return func(o *serviceOptions) {
		if a != nil {
			o.audit = a
		}
	}
}

// WithDefaultSink replaces the process-wide log as the sink of transactions
// opened without WithSink.
func WithDefaultSink(l *domain.Log) ServiceOption {
	return func(o *serviceOptions) { o.sink = l }
}

// WithProfiles supplies the stored configurations the stored_configuration
// option resolves against.
func WithProfiles(p ProfileSource) ServiceOption {
	return func(o *serviceOptions) { o.profiles = p }
}

// WithBlueprints overrides or extends the default blueprint table.
func WithBlueprints(bps ...*Blueprint) ServiceOption {
	return func(o *serviceOptions) {
		if o.blueprints == nil {
			o.blueprints = make(map[domain.EntityType]*Blueprint, len(bps))
		}
		for _, bp := range bps {
			if bp != nil {
				o.blueprints[bp.Kind] = bp
			}
		}
	}
}

// NewService constructs a service mutating engine.
func NewService(engine domain.Engine, opts ...ServiceOption) *Service {
	cfg := defaultServiceOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	sink := cfg.sink
	if sink == nil {
		sink = domain.DefaultLog()
	}
	s := &Service{
		engine:     engine,
		exec:       NewExecutor(WithExecutorLogger(cfg.logger), WithOutcomeRecorder(cfg.outcomes)),
		blueprints: make(map[domain.EntityType]*Blueprint),
		profiles:   cfg.profiles,
		sink:       sink,
		clock:      cfg.clock,
		logger:     cfg.logger,
		audit:      cfg.audit,
		metrics:    cfg.metrics,
		tracer:     cfg.tracer,
	}
	for _, bp := range DefaultBlueprints() {
		s.blueprints[bp.Kind] = bp
	}
	for kind, bp := range cfg.blueprints {
		s.blueprints[kind] = bp
	}
	return s
}

// Engine returns the engine the service mutates.
func (s *Service) Engine() domain.Engine { return s.engine }

// Executor returns the executor shared by every transaction.
func (s *Service) Executor() *Executor { return s.exec }

// DefaultSink returns the log transactions write to when given no sink.
func (s *Service) DefaultSink() *domain.Log { return s.sink }

// Blueprint returns the blueprint registered for kind.
func (s *Service) Blueprint(kind domain.EntityType) (*Blueprint, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bp, ok := s.blueprints[kind]
	return bp, ok
}

// RegisterBlueprint adds or replaces the blueprint of bp.Kind.
func (s *Service) RegisterBlueprint(bp *Blueprint) error {
	if bp == nil || bp.Kind == "" {
		return errors.New("blueprint requires a kind")
	}
	s.mu.Lock()
	s.blueprints[bp.Kind] = bp
	s.mu.Unlock()
	return nil
}

// Kinds lists the buildable entity kinds.
func (s *Service) Kinds() []domain.EntityType {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.EntityType, 0, len(s.blueprints))
	for kind := range s.blueprints {
		out = append(out, kind)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Make builds one entity in its own transaction. Call options configure
// the transaction: WithSink, WithLedger, WithoutUndo and Strict.
//
// The returned log holds this call's diagnostics. A rejection leaves the
// entity in place and is visible only there and in the sink unless Strict
// is set.
func (s *Service) Make(ctx context.Context, kind domain.EntityType, parent domain.Entity, name string, opts Options, callOpts ...CallOption) (domain.Entity, *domain.Log, error) {
	var (
		entity domain.Entity
		diag   *domain.Log
	)
	op := "make_" + string(kind)
	err := s.run(ctx, op, kind, func() (*domain.Log, domain.Entity, error) {
		txLog, err := s.RunInTransaction(ctx, func(tx *Transaction) error {
			var buildErr error
			entity, _, buildErr = tx.Build(kind, parent, name, opts)
			return buildErr
		}, callOpts...)
		diag = txLog
		return txLog, entity, err
	})
	var rejected domain.RejectedError
	if err != nil && !errors.As(err, &rejected) {
		return nil, diag, err
	}
	return entity, diag, err
}

// run wraps an operation with tracing, metrics, auditing and logging.
func (s *Service) run(ctx context.Context, op string, kind domain.EntityType, fn func() (*domain.Log, domain.Entity, error)) error {
	ctx, span := s.tracer.Start(ctx, op)
	start := s.clock.Now()
	diag, entity, err := fn()
	elapsed := s.clock.Now().Sub(start)
	span.End(err)

	entry := AuditEntry{
		Operation: op,
		Entity:    kind,
		Status:    AuditStatusSuccess,
		Duration:  elapsed,
		Timestamp: start,
	}
	if entity != nil {
		entry.EntityID = entity.UID()
	}
	if diag != nil {
		entry.Diagnostics = diag.Len()
		if diag.HasErrors() {
			entry.Status = AuditStatusRejected
		}
	}
	switch {
	case err != nil:
		entry.Status = AuditStatusError
		entry.Error = err.Error()
		s.logger.Error("operation failed", "operation", op, "error", err)
	case entry.Status == AuditStatusRejected:
		s.logger.Warn("operation completed with rejections", "operation", op, "diagnostics", entry.Diagnostics)
	default:
		s.logger.Debug("operation completed", "operation", op, "duration", elapsed)
	}
	s.metrics.Observe(ctx, op, err == nil, elapsed)
	s.audit.Record(ctx, entry)
	return err
}
