package core

import (
	"context"
	"encoding/json"
	"expvar"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var expvarSeq atomic.Uint64

// ExpvarMetricsRecorder keeps per-operation totals in a published expvar.Map
// so /debug/vars shows them without a Prometheus scraper. Keys are
// "<operation>.ms", "<operation>.success" and "<operation>.error".
type ExpvarMetricsRecorder struct {
	name string
	vars *expvar.Map
}

// OperationTotals is what the recorder has accumulated for one operation.
type OperationTotals struct {
	TotalMS float64 `json:"total_ms"`
	Success int64   `json:"success"`
	Error   int64   `json:"error"`
}

// NewExpvarMetricsRecorder publishes a fresh map under name, or under a
// generated agrorec_service_metrics_<n> name when name is empty. expvar
// panics on duplicate names.
func NewExpvarMetricsRecorder(name string) *ExpvarMetricsRecorder {
	if name == "" {
		name = fmt.Sprintf("agrorec_service_metrics_%d", expvarSeq.Add(1))
	}
	vars := new(expvar.Map).Init()
	expvar.Publish(name, vars)
	return &ExpvarMetricsRecorder{name: name, vars: vars}
}

func (r *ExpvarMetricsRecorder) Name() string { return r.name }

// Snapshot folds the flat expvar keys back into per-operation totals.
func (r *ExpvarMetricsRecorder) Snapshot() map[string]OperationTotals {
	out := make(map[string]OperationTotals)
	r.vars.Do(func(kv expvar.KeyValue) {
		op, field, ok := strings.Cut(kv.Key, ".")
		if !ok {
			return
		}
		totals := out[op]
		switch v := kv.Value.(type) {
		case *expvar.Float:
			totals.TotalMS = v.Value()
		case *expvar.Int:
			if field == "success" {
				totals.Success = v.Value()
			} else {
				totals.Error = v.Value()
			}
		}
		out[op] = totals
	})
	return out
}

// Observe implements MetricsRecorder. Unnamed operations are dropped.
func (r *ExpvarMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	outcome := "error"
	if success {
		outcome = "success"
	}
	r.vars.AddFloat(operation+".ms", float64(duration)/float64(time.Millisecond))
	r.vars.Add(operation+"."+outcome, 1)
}

// TraceRecord is one finished span as written by JSONTracer.
type TraceRecord struct {
	Operation  string    `json:"operation"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS float64   `json:"duration_ms"`
}

// JSONTracer emits one JSON line per finished span and keeps the records in
// memory. The CLI enables it with -trace.
type JSONTracer struct {
	mu      sync.Mutex
	out     io.Writer
	records []TraceRecord
}

// NewJSONTracer writes to w; a nil w only retains records.
func NewJSONTracer(w io.Writer) *JSONTracer {
	return &JSONTracer{out: w}
}

func (t *JSONTracer) Records() []TraceRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]TraceRecord(nil), t.records...)
}

func (t *JSONTracer) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	return ctx, &jsonSpan{tracer: t, rec: TraceRecord{Operation: operation, StartedAt: time.Now().UTC()}}
}

func (t *JSONTracer) finish(rec TraceRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records = append(t.records, rec)
	if t.out == nil {
		return
	}
	if line, err := json.Marshal(rec); err == nil {
		_, _ = t.out.Write(append(line, '\n'))
	}
}

type jsonSpan struct {
	tracer *JSONTracer
	rec    TraceRecord
}

func (s *jsonSpan) End(err error) {
	s.rec.DurationMS = float64(time.Since(s.rec.StartedAt)) / float64(time.Millisecond)
	s.rec.Status = "success"
	if err != nil {
		s.rec.Status = "error"
		s.rec.Error = err.Error()
	}
	s.tracer.finish(s.rec)
}

// PrometheusMetricsRecorder exports operation counters and latency histograms
// to a Prometheus registry.
type PrometheusMetricsRecorder struct {
	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
}

// NewPrometheusMetricsRecorder registers the agrorec operation metrics with reg.
// A nil registerer uses the default registry.
func NewPrometheusMetricsRecorder(reg prometheus.Registerer) (*PrometheusMetricsRecorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	rec := &PrometheusMetricsRecorder{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agrorec",
			Name:      "operations_total",
			Help:      "Service operations by outcome.",
		}, []string{"operation", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "agrorec",
			Name:      "operation_duration_seconds",
			Help:      "Service operation latency.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"operation"}),
	}
	for _, c := range []prometheus.Collector{rec.operations, rec.latency} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}
	return rec, nil
}

// Observe implements MetricsRecorder.
func (r *PrometheusMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	status := "error"
	if success {
		status = "success"
	}
	r.operations.WithLabelValues(operation, status).Inc()
	r.latency.WithLabelValues(operation).Observe(duration.Seconds())
}

// MultiMetricsRecorder fans observations out to several recorders.
type MultiMetricsRecorder []MetricsRecorder

// Observe implements MetricsRecorder.
func (m MultiMetricsRecorder) Observe(ctx context.Context, operation string, success bool, duration time.Duration) {
	for _, r := range m {
		if r != nil {
			r.Observe(ctx, operation, success, duration)
		}
	}
}
