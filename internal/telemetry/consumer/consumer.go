// Package consumer reads mirrored visit payloads back from Kafka.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"visitor-relay/internal/telemetry/domain"
)

const instrumentationName = "visitor-relay/internal/telemetry/consumer"

// MessageReader is the part of *kafka.Reader the consumer uses.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

// NewReader returns a group reader for the visit topic. Call Close when done.
func NewReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		MaxWait:        1 * time.Second,
		CommitInterval: time.Second,
	})
}

// Consumer logs each mirrored visit and counts visits by country.
type Consumer struct {
	reader MessageReader
	logger *slog.Logger
	visits metric.Int64Counter
}

// New returns a Consumer over reader. logger may be nil.
func New(reader MessageReader, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	visits, err := otel.Meter(instrumentationName).Int64Counter("mirrored_visits_total",
		metric.WithDescription("Mirrored visits by country code and source"))
	if err != nil {
		visits, _ = noop.NewMeterProvider().Meter(instrumentationName).Int64Counter("mirrored_visits_total")
	}
	return &Consumer{reader: reader, logger: logger, visits: visits}
}

// Run reads until ctx is done or the reader is closed. Other read errors and
// decode errors are logged and skipped. Returns nil when ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			// kafka-go returns io.EOF once the reader is closed.
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("consumer: reader closed: %w", err)
			}
			c.logger.WarnContext(ctx, "kafka read error", "error", err)
			continue
		}
		if _, err := c.Handle(ctx, msg); err != nil {
			c.logger.WarnContext(ctx, "skipping mirrored visit", "offset", msg.Offset, "error", err)
		}
	}
}

// Handle decodes one message and records it.
func (c *Consumer) Handle(ctx context.Context, msg kafka.Message) (*domain.Payload, error) {
	var p domain.Payload
	if err := json.Unmarshal(msg.Value, &p); err != nil {
		return nil, fmt.Errorf("consumer: decode visit: %w", err)
	}
	c.visits.Add(ctx, 1, metric.WithAttributes(
		attribute.String("country_code", p.IPInfo.CountryCode),
		attribute.String("source", p.Source),
	))
	c.logger.InfoContext(ctx, "mirrored visit",
		"ip", p.IPInfo.IP,
		"location", p.IPInfo.Location(),
		"geo_provider", p.IPInfo.Source,
		"source", p.Source,
		"timestamp", p.Timestamp,
		"partition", msg.Partition,
		"offset", msg.Offset)
	return &p, nil
}
