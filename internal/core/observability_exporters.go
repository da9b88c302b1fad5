package core

import (
	"context"
	"encoding/json"
	"expvar"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mdtcore/pkg/domain"
)

var expvarSeq uint64

// ExpvarMetricsRecorder publishes per-operation totals via expvar.
type ExpvarMetricsRecorder struct {
	name      string
	mu        sync.Mutex
	durations map[string]float64
	results   map[string]map[string]int64
	outcomes  map[string]map[domain.Status]int64
}

// ExpvarMetricsSnapshot captures a read-only view of the recorded metrics.
type ExpvarMetricsSnapshot struct {
	DurationsMS map[string]float64                 `json:"durations_ms_total"`
	Results     map[string]map[string]int64        `json:"results_total"`
	Outcomes    map[string]map[domain.Status]int64 `json:"outcomes_total"`
	RecordedAt  time.Time                          `json:"recorded_at"`
}

// NewExpvarMetricsRecorder publishes a recorder under name, or under a
// generated name when empty.
func NewExpvarMetricsRecorder(name string) *ExpvarMetricsRecorder {
	if name == "" {
		id := atomic.AddUint64(&expvarSeq, 1)
		name = fmt.Sprintf("mdtcore_metrics_%d", id)
	}
	rec := &ExpvarMetricsRecorder{
		name:      name,
		durations: make(map[string]float64),
		results:   make(map[string]map[string]int64),
		outcomes:  make(map[string]map[domain.Status]int64),
	}
	expvar.Publish(name, expvar.Func(func() any {
		return rec.Snapshot()
	}))
	return rec
}

// Name returns the expvar export name.
func (r *ExpvarMetricsRecorder) Name() string {
	return r.name
}

// Snapshot returns a copy of the aggregated metrics.
func (r *ExpvarMetricsRecorder) Snapshot() ExpvarMetricsSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	durations := make(map[string]float64, len(r.durations))
	for op, total := range r.durations {
		durations[op] = total
	}
	results := make(map[string]map[string]int64, len(r.results))
	for op, statusCounts := range r.results {
		cpy := make(map[string]int64, len(statusCounts))
		for status, count := range statusCounts {
			cpy[status] = count
		}
		results[op] = cpy
	}
	outcomes := make(map[string]map[domain.Status]int64, len(r.outcomes))
	for ch, counts := range r.outcomes {
		cpy := make(map[domain.Status]int64, len(counts))
		for status, count := range counts {
			cpy[status] = count
		}
		outcomes[ch] = cpy
	}
	return ExpvarMetricsSnapshot{
		DurationsMS: durations,
		Results:     results,
		Outcomes:    outcomes,
		RecordedAt:  time.Now().UTC(),
	}
}

// Observe records a service operation outcome.
func (r *ExpvarMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	ms := float64(duration) / float64(time.Millisecond)
	status := "error"
	if success {
		status = "success"
	}

	r.mu.Lock()
	r.durations[operation] += ms
	if _, ok := r.results[operation]; !ok {
		r.results[operation] = make(map[string]int64, 2)
	}
	r.results[operation][status]++
	r.mu.Unlock()
}

// ObserveOutcome counts applied and rejected mutations per channel.
func (r *ExpvarMetricsRecorder) ObserveOutcome(channel string, status domain.Status) {
	r.mu.Lock()
	if _, ok := r.outcomes[channel]; !ok {
		r.outcomes[channel] = make(map[domain.Status]int64, 2)
	}
	r.outcomes[channel][status]++
	r.mu.Unlock()
}

// PrometheusMetricsRecorder exports operation latency and mutation outcomes
// as Prometheus collectors.
type PrometheusMetricsRecorder struct {
	latency  *prometheus.HistogramVec
	outcomes *prometheus.CounterVec
}

// NewPrometheusMetricsRecorder registers its collectors with reg. A nil reg
// uses the default registerer.
func NewPrometheusMetricsRecorder(reg prometheus.Registerer) (*PrometheusMetricsRecorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	r := &PrometheusMetricsRecorder{
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mdtcore",
			Name:      "operation_duration_seconds",
			Help:      "Latency of service operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "status"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mdtcore",
			Name:      "mutations_total",
			Help:      "Mutations issued by the executor by channel and outcome.",
		}, []string{"channel", "status"}),
	}
	for _, c := range []prometheus.Collector{r.latency, r.outcomes} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register collector: %w", err)
		}
	}
	return r, nil
}

// Observe records a service operation outcome.
func (r *PrometheusMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	status := "error"
	if success {
		status = "success"
	}
	r.latency.WithLabelValues(operation, status).Observe(duration.Seconds())
}

// ObserveOutcome counts a mutation outcome.
func (r *PrometheusMetricsRecorder) ObserveOutcome(channel string, status domain.Status) {
	r.outcomes.WithLabelValues(channel, string(status)).Inc()
}

// JSONTraceEntry represents a serialized trace span emitted by JSONTraceTracer.
type JSONTraceEntry struct {
	Operation  string    `json:"operation"`
	Status     string    `json:"status"`
	DurationMS float64   `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
}

// JSONTraceTracer writes spans as JSON lines and retains them.
type JSONTraceTracer struct {
	mu      sync.Mutex
	entries []JSONTraceEntry
	enc     *json.Encoder
}

// NewJSONTracer constructs a tracer writing to w; w may be nil.
func NewJSONTracer(w io.Writer) *JSONTraceTracer {
	var enc *json.Encoder
	if w != nil {
		enc = json.NewEncoder(w)
	}
	return &JSONTraceTracer{enc: enc}
}

// Entries returns a copy of all recorded spans.
func (t *JSONTraceTracer) Entries() []JSONTraceEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]JSONTraceEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Start implements Tracer.
func (t *JSONTraceTracer) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	return ctx, &jsonTraceSpan{tracer: t, operation: operation, started: time.Now().UTC()}
}

type jsonTraceSpan struct {
	tracer    *JSONTraceTracer
	operation string
	started   time.Time
}

func (s *jsonTraceSpan) End(err error) {
	status := "success"
	var errMsg string
	if err != nil {
		status = "error"
		errMsg = err.Error()
	}
	ended := time.Now().UTC()
	entry := JSONTraceEntry{
		Operation:  s.operation,
		Status:     status,
		DurationMS: float64(ended.Sub(s.started)) / float64(time.Millisecond),
		Error:      errMsg,
		StartedAt:  s.started,
		EndedAt:    ended,
	}

	s.tracer.mu.Lock()
	s.tracer.entries = append(s.tracer.entries, entry)
	if s.tracer.enc != nil {
		_ = s.tracer.enc.Encode(entry)
	}
	s.tracer.mu.Unlock()
}
