// Package telemetry forwards visit payloads to the collector and to optional mirror sinks.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"visitor-relay/internal/telemetry/domain"
)

const instrumentationName = "visitor-relay/internal/telemetry"

// forwardTimeout bounds the collector POST.
const forwardTimeout = 10 * time.Second

// Forwarder sends each payload to the collector exactly once, synchronously, then hands
// it to every mirror in the background. Failures are logged and returned for observability only.
type Forwarder struct {
	collector Sink
	mirrors   []Sink
	logger    *slog.Logger
	tracer    trace.Tracer
	forwards  metric.Int64Counter

	inflight sync.WaitGroup
}

// NewForwarder returns a Forwarder posting to collector. logger may be nil; mirrors are optional.
func NewForwarder(collector Sink, logger *slog.Logger, mirrors ...Sink) *Forwarder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	forwards, err := otel.Meter(instrumentationName).Int64Counter("visit_forwards_total",
		metric.WithDescription("Visit payloads posted to the collector by outcome"))
	if err != nil {
		forwards, _ = noop.NewMeterProvider().Meter(instrumentationName).Int64Counter("visit_forwards_total")
	}
	return &Forwarder{
		collector: collector,
		mirrors:   mirrors,
		logger:    logger,
		tracer:    otel.Tracer(instrumentationName),
		forwards:  forwards,
	}
}

// Forward posts payload to the collector and starts the mirror emits. No retry.
// The POST runs on a context detached from ctx's cancellation, bounded by forwardTimeout.
func (f *Forwarder) Forward(ctx context.Context, payload *domain.Payload) error {
	if f == nil || payload == nil {
		return nil
	}
	ctx, span := f.tracer.Start(ctx, "telemetry.forward", trace.WithAttributes(
		attribute.String("visit.source", payload.Source),
		attribute.String("visit.ip", payload.IPInfo.IP),
	))
	defer span.End()

	var err error
	if f.collector != nil {
		postCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), forwardTimeout)
		err = f.collector.Emit(postCtx, payload)
		cancel()
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, "collector post failed")
		f.logger.ErrorContext(ctx, "failed to send visit to collector", "error", err)
	} else {
		f.logger.InfoContext(ctx, "visit sent to collector", "ip", payload.IPInfo.IP)
	}
	f.forwards.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))

	for _, m := range f.mirrors {
		f.emitAsync(m, payload)
	}
	return err
}
