package core

import (
	"context"
	"time"

	"genecluster/internal/logging"
)

// Logger is the leveled logger accepted by the service.
type Logger = logging.Logger

// Clock supplies build timestamps.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// MetricsRecorder observes the outcome of service operations.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// Tracer starts a span per service operation.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan is finished with the operation error (nil on success).
type TraceSpan interface {
	End(err error)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type noopMetricsRecorder struct{}

func (noopMetricsRecorder) Observe(context.Context, string, bool, time.Duration) {}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Operation names reported to metrics, traces and logs.
const (
	opBuild          = "build_index"
	opGetClusters    = "get_clusters"
	opGetClusterByID = "get_cluster_by_id"
)

// Result labels shared by the exporters.
const (
	resultSuccess = "success"
	resultError   = "error"
)

func resultLabel(success bool) string {
	if success {
		return resultSuccess
	}
	return resultError
}

// run wraps fn with a trace span, a metrics observation and a log line.
func (s *Service) run(ctx context.Context, op string, fn func(context.Context) error, args ...any) error {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, op)
	err := fn(ctx)
	span.End(err)
	duration := time.Since(start)
	s.metrics.Observe(ctx, op, err == nil, duration)

	fields := append([]any{"op", op, "duration_ms", float64(duration) / float64(time.Millisecond)}, args...)
	if err != nil {
		s.logger.Error("operation failed", append(fields, "error", err)...)
		return err
	}
	s.logger.Debug("operation completed", fields...)
	return nil
}
