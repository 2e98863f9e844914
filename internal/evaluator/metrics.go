package evaluator

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "mockinterview",
		Subsystem: "evaluator",
		Name:      "request_duration_seconds",
		Help:      "Duration of evaluation service calls",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"backend", "op"})

	requestFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mockinterview",
		Subsystem: "evaluator",
		Name:      "failures_total",
		Help:      "Number of failed evaluation service calls by failure kind",
	}, []string{"backend", "op", "kind"})
)

var tracer = otel.Tracer("github.com/pavelanni/mockinterview/internal/evaluator")

// Track opens a span for one evaluator call and returns a function that
// records its duration, failure kind and span status.
func Track(ctx context.Context, backend, op string) (context.Context, func(error)) {
	ctx, span := tracer.Start(ctx, "evaluator."+op, trace.WithAttributes(
		attribute.String("backend", backend),
	))
	start := time.Now()

	return ctx, func(err error) {
		defer span.End()
		requestDuration.WithLabelValues(backend, op).Observe(time.Since(start).Seconds())
		if err == nil {
			return
		}
		kind := Kind(err)
		requestFailures.WithLabelValues(backend, op, kind).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Warn("evaluator call failed", "backend", backend, "op", op, "kind", kind, "error", err)
	}
}
