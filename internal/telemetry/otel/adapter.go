package otel

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"visitor-relay/internal/telemetry"
	"visitor-relay/internal/telemetry/domain"
)

const visitLoggerName = "visitor-relay.visits"

// recordEmitter is the part of otellog.Logger the visit sink needs.
type recordEmitter interface {
	Emit(ctx context.Context, record otellog.Record)
}

// NewEventEmitter returns a Sink that records visits as OTel log records via the given LoggerProvider.
// If provider is nil, returns a no-op sink.
func NewEventEmitter(provider *sdklog.LoggerProvider) telemetry.Sink {
	if provider == nil {
		return noopEmitter{}
	}
	return NewEventEmitterWithLogger(provider.Logger(visitLoggerName))
}

// NewEventEmitterWithLogger returns a Sink that emits to logger.
func NewEventEmitterWithLogger(logger recordEmitter) telemetry.Sink {
	if logger == nil {
		return noopEmitter{}
	}
	return &otelEmitter{logger: logger}
}

type noopEmitter struct{}

func (noopEmitter) Emit(context.Context, *domain.Payload) error { return nil }

type otelEmitter struct {
	logger recordEmitter
}

// Emit converts the payload to a log record with its JSON as body.
func (e *otelEmitter) Emit(ctx context.Context, payload *domain.Payload) error {
	if payload == nil {
		return nil
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telemetry: encode visit record: %w", err)
	}
	rec := otellog.Record{}
	if t, err := time.Parse(domain.TimestampLayout, payload.Timestamp); err == nil {
		rec.SetTimestamp(t)
	} else {
		rec.SetTimestamp(time.Now().UTC())
	}
	rec.SetSeverity(otellog.SeverityInfo)
	rec.SetSeverityText("INFO")
	rec.SetBody(otellog.StringValue(string(body)))
	rec.AddAttributes(
		otellog.String("user_id", payload.UserID),
		otellog.String("source", payload.Source),
		otellog.String("ip", payload.IPInfo.IP),
		otellog.Bool("geo.error", payload.IPInfo.Error),
	)
	if payload.IPInfo.Source != "" {
		rec.AddAttributes(otellog.String("geo.provider", payload.IPInfo.Source))
	}
	if payload.IPInfo.CountryCode != "" {
		rec.AddAttributes(otellog.String("country_code", payload.IPInfo.CountryCode))
	}
	if payload.IPInfo.City != "" {
		rec.AddAttributes(otellog.String("city", payload.IPInfo.City))
	}
	e.logger.Emit(ctx, rec)
	return nil
}
