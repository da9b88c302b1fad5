package core

import (
	"context"
	"testing"
	"time"

	"mdtcore/internal/engine"
	"mdtcore/pkg/domain"
)

// newTestService returns a service over a fresh reference model whose
// default sink is private to the test.
func newTestService(t *testing.T, opts ...ServiceOption) (*Service, *engine.Model, *domain.Log) {
	t.Helper()
	model := engine.NewModel()
	sink := domain.NewLog()
	svc := NewService(model, append([]ServiceOption{WithDefaultSink(sink)}, opts...)...)
	return svc, model, sink
}

func mustBuild(t *testing.T, tx *Transaction, kind domain.EntityType, parent domain.Entity, name string, opts Options) domain.Mutable {
	t.Helper()
	e, _, err := tx.Build(kind, parent, name, opts)
	if err != nil {
		t.Fatalf("build %s %q: %v", kind, name, err)
	}
	m, ok := domain.AsMutable(e)
	if !ok {
		t.Fatalf("build %s %q returned %T", kind, name, e)
	}
	return m
}

func mustGet(t *testing.T, e domain.Mutable, facet string) any {
	t.Helper()
	v, err := e.Get(facet)
	if err != nil {
		t.Fatalf("get %s.%s: %v", e.Name(), facet, err)
	}
	return v
}

func memberNames(t *testing.T, e domain.Mutable, collection string) []string {
	t.Helper()
	members, err := e.Members(collection)
	if err != nil {
		t.Fatalf("members %s.%s: %v", e.Name(), collection, err)
	}
	return domain.Names(members)
}

func tags(l *domain.Log) []string {
	var out []string
	for _, e := range l.Entries() {
		out = append(out, e.Tag)
	}
	return out
}

type captureLogger struct {
	entries []logCall
}

type logCall struct {
	level string
	msg   string
}

func (c *captureLogger) Debug(msg string, _ ...any) {
	c.entries = append(c.entries, logCall{"debug", msg})
}
func (c *captureLogger) Info(msg string, _ ...any) {
	c.entries = append(c.entries, logCall{"info", msg})
}
func (c *captureLogger) Warn(msg string, _ ...any) {
	c.entries = append(c.entries, logCall{"warn", msg})
}
func (c *captureLogger) Error(msg string, _ ...any) {
	c.entries = append(c.entries, logCall{"error", msg})
}

func (c *captureLogger) has(level, msg string) bool {
	for _, e := range c.entries {
		if e.level == level && e.msg == msg {
			return true
		}
	}
	return false
}

type captureAuditRecorder struct {
	entries []AuditEntry
}

func (c *captureAuditRecorder) Record(_ context.Context, entry AuditEntry) {
	c.entries = append(c.entries, entry)
}

func (c *captureAuditRecorder) has(op string, status AuditStatus, predicate func(AuditEntry) bool) bool {
	for _, entry := range c.entries {
		if entry.Operation == op && entry.Status == status {
			if predicate == nil || predicate(entry) {
				return true
			}
		}
	}
	return false
}

type metricsCall struct {
	op       string
	success  bool
	duration time.Duration
}

type captureMetricsRecorder struct {
	calls    []metricsCall
	outcomes map[domain.Status]int
}

func (c *captureMetricsRecorder) Observe(_ context.Context, op string, success bool, duration time.Duration) {
	c.calls = append(c.calls, metricsCall{op: op, success: success, duration: duration})
}

func (c *captureMetricsRecorder) ObserveOutcome(_ string, status domain.Status) {
	if c.outcomes == nil {
		c.outcomes = make(map[domain.Status]int)
	}
	c.outcomes[status]++
}

func (c *captureMetricsRecorder) has(op string, success bool) bool {
	for _, call := range c.calls {
		if call.op == op && call.success == success {
			return true
		}
	}
	return false
}

type captureTracer struct {
	started []string
	ended   []spanRecord
}

type spanRecord struct {
	op  string
	err error
}

func (c *captureTracer) Start(ctx context.Context, op string) (context.Context, TraceSpan) {
	c.started = append(c.started, op)
	return ctx, &captureSpan{tracer: c, op: op}
}

func (c *captureTracer) has(op string, success bool) bool {
	for _, record := range c.ended {
		if record.op == op && (record.err == nil) == success {
			return true
		}
	}
	return false
}

type captureSpan struct {
	tracer *captureTracer
	op     string
}

func (s *captureSpan) End(err error) {
	s.tracer.ended = append(s.tracer.ended, spanRecord{op: s.op, err: err})
}

type staticProfiles []domain.Profile

func (p staticProfiles) Profiles(category string) []domain.Profile {
	var out []domain.Profile
	for _, profile := range p {
		if profile.Category == category {
			out = append(out, profile)
		}
	}
	return out
}
