package telemetry

import (
	"context"

	"visitor-relay/internal/telemetry/domain"
)

// Sink receives visit payloads (the collector, Kafka, OTel logs). Best-effort; callers log and ignore errors.
type Sink interface {
	Emit(ctx context.Context, payload *domain.Payload) error
}
