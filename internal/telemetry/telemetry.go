// Package telemetry emits trace spans and counters for the inventory core.
// Everything here is fire-and-forget: no call returns an error and nothing
// in the request path branches on it. Without an installed SDK the global
// otel providers are no-ops.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/fekuna/omnipos-inventory-service"

type Recorder struct {
	tracer          trace.Tracer
	staleReads      metric.Int64Counter
	droppedWrites   metric.Int64Counter
	raceDelays      metric.Int64Counter
	duplicateWrites metric.Int64Counter
	timeouts        metric.Int64Counter
	warmupServes    metric.Int64Counter
}

// NewRecorder binds to the global tracer and meter providers. Instrument
// creation errors leave a no-op counter in place.
func NewRecorder() *Recorder {
	meter := otel.Meter(instrumentationName)
	counter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			c, _ = noop.Meter{}.Int64Counter(name)
		}
		return c
	}

	return &Recorder{
		tracer:          otel.Tracer(instrumentationName),
		staleReads:      counter("inventory.cache.stale_reads", "cache reads flagged possibly stale"),
		droppedWrites:   counter("inventory.cache.dropped_writes", "cache writes silently skipped"),
		raceDelays:      counter("inventory.fastpath.race_delays", "fast-path pre-mutation delays injected"),
		duplicateWrites: counter("inventory.fastpath.duplicate_writes", "fast-path duplicate write sequences"),
		timeouts:        counter("inventory.apply.timeouts", "apply calls that lost the race against the deadline"),
		warmupServes:    counter("inventory.warmup.serves", "list reads served by the warmup cache"),
	}
}

func (r *Recorder) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return r.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func (r *Recorder) StaleRead(ctx context.Context, key string) {
	r.staleReads.Add(ctx, 1, metric.WithAttributes(attribute.String("cache.key", key)))
}

func (r *Recorder) DroppedWrite(ctx context.Context, key string) {
	r.droppedWrites.Add(ctx, 1, metric.WithAttributes(attribute.String("cache.key", key)))
}

func (r *Recorder) RaceDelay(ctx context.Context, productID string) {
	r.raceDelays.Add(ctx, 1, metric.WithAttributes(attribute.String("product.id", productID)))
}

func (r *Recorder) DuplicateWrite(ctx context.Context, productID string) {
	r.duplicateWrites.Add(ctx, 1, metric.WithAttributes(attribute.String("product.id", productID)))
}

func (r *Recorder) Timeout(ctx context.Context, algorithm string, retries int) {
	r.timeouts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("variant.algorithm", algorithm),
		attribute.Int("variant.retries", retries),
	))
}

func (r *Recorder) WarmupServe(ctx context.Context, mode string, stale bool) {
	r.warmupServes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("warmup.mode", mode),
		attribute.Bool("warmup.stale", stale),
	))
}
