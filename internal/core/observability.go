package core

import (
	"context"
	"time"

	"mdtcore/pkg/domain"
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// MetricsRecorder observes service operation latency and success.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// OutcomeRecorder observes individual mutations issued by the executor.
type OutcomeRecorder interface {
	ObserveOutcome(channel string, status domain.Status)
}

// Tracer starts spans around service operations.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan is ended exactly once with the operation error, if any.
type TraceSpan interface {
	End(err error)
}

// AuditStatus reports how an audited operation ended.
type AuditStatus string

const (
	AuditStatusSuccess  AuditStatus = "success"
	AuditStatusRejected AuditStatus = "rejected"
	AuditStatusError    AuditStatus = "error"
)

// AuditEntry records one service operation.
type AuditEntry struct {
	Operation   string
	Entity      domain.EntityType
	EntityID    string
	Status      AuditStatus
	Diagnostics int
	Error       string
	Duration    time.Duration
	Timestamp   time.Time
}

// AuditRecorder receives audit entries.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry)
}

type noopMetrics struct{}

func (noopMetrics) Observe(context.Context, string, bool, time.Duration) {}

type noopOutcomes struct{}

func (noopOutcomes) ObserveOutcome(string, domain.Status) {}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}

type noopAudit struct{}

func (noopAudit) Record(context.Context, AuditEntry) {}
