package core

import (
	"context"
	"encoding/json"
	"expvar"
	"fmt"
	"io"
	"maps"
	"sync"
	"sync/atomic"
	"time"
)

var expvarSeq atomic.Uint64

// OperationStats aggregates the observations of one operation.
type OperationStats struct {
	Success int64   `json:"success"`
	Error   int64   `json:"error"`
	TotalMS float64 `json:"total_ms"`
	MaxMS   float64 `json:"max_ms"`
	LastMS  float64 `json:"last_ms"`
}

// Count is the number of observations.
func (s OperationStats) Count() int64 { return s.Success + s.Error }

// ExpvarSnapshot is the document published under the recorder's expvar name.
type ExpvarSnapshot struct {
	Operations map[string]OperationStats `json:"operations"`
	RecordedAt time.Time                 `json:"recorded_at"`
}

// ExpvarMetricsRecorder aggregates observations per operation and publishes
// them on /debug/vars.
type ExpvarMetricsRecorder struct {
	name string

	mu  sync.Mutex
	ops map[string]OperationStats
}

// NewExpvarMetricsRecorder publishes a recorder under name, or under a
// generated genecluster_service_metrics_N name when name is empty. expvar
// panics on duplicate names, so callers that build several services in one
// process should pass "".
func NewExpvarMetricsRecorder(name string) *ExpvarMetricsRecorder {
	if name == "" {
		name = fmt.Sprintf("genecluster_service_metrics_%d", expvarSeq.Add(1))
	}
	rec := &ExpvarMetricsRecorder{name: name, ops: make(map[string]OperationStats)}
	expvar.Publish(name, expvar.Func(func() any { return rec.Snapshot() }))
	return rec
}

// Name is the expvar key.
func (r *ExpvarMetricsRecorder) Name() string { return r.name }

// Snapshot copies the current aggregates.
func (r *ExpvarMetricsRecorder) Snapshot() ExpvarSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return ExpvarSnapshot{Operations: maps.Clone(r.ops), RecordedAt: time.Now().UTC()}
}

// Observe implements MetricsRecorder. Unnamed operations are ignored.
func (r *ExpvarMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	ms := float64(duration) / float64(time.Millisecond)

	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.ops[operation]
	if success {
		st.Success++
	} else {
		st.Error++
	}
	st.TotalMS += ms
	st.LastMS = ms
	st.MaxMS = max(st.MaxMS, ms)
	r.ops[operation] = st
}

// Span is one finished operation as written by JSONTracer.
type Span struct {
	Operation  string    `json:"operation"`
	Result     string    `json:"result"`
	DurationMS float64   `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
}

// maxRetainedSpans bounds the ring kept by a JSONTracer.
const maxRetainedSpans = 1024

// JSONTracer writes one JSON line per finished span and retains the most
// recent maxRetainedSpans of them.
type JSONTracer struct {
	mu    sync.Mutex
	enc   *json.Encoder
	ring  []Span
	next  int
	total int
}

// NewJSONTracer writes spans to w. A nil w only retains them.
func NewJSONTracer(w io.Writer) *JSONTracer {
	t := &JSONTracer{ring: make([]Span, maxRetainedSpans)}
	if w != nil {
		t.enc = json.NewEncoder(w)
	}
	return t
}

// Spans returns the retained spans, oldest first.
func (t *JSONTracer) Spans() []Span {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.total < len(t.ring) {
		return append([]Span(nil), t.ring[:t.total]...)
	}
	out := make([]Span, 0, len(t.ring))
	out = append(out, t.ring[t.next:]...)
	return append(out, t.ring[:t.next]...)
}

// Start implements Tracer.
func (t *JSONTracer) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	return ctx, &jsonSpan{tracer: t, operation: operation, started: time.Now().UTC()}
}

func (t *JSONTracer) record(span Span) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ring[t.next] = span
	t.next = (t.next + 1) % len(t.ring)
	t.total++
	if t.enc != nil {
		_ = t.enc.Encode(span)
	}
}

type jsonSpan struct {
	tracer    *JSONTracer
	operation string
	started   time.Time
}

func (s *jsonSpan) End(err error) {
	span := Span{
		Operation:  s.operation,
		Result:     resultLabel(err == nil),
		DurationMS: float64(time.Since(s.started)) / float64(time.Millisecond),
		StartedAt:  s.started,
	}
	if err != nil {
		span.Error = err.Error()
	}
	s.tracer.record(span)
}
