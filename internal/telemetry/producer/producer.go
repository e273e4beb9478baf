// Package producer defines the interface for mirroring visit payloads to a message broker (e.g. Kafka).
package producer

import (
	"context"

	"visitor-relay/internal/telemetry/domain"
)

// Producer mirrors visit payloads. Callers use it best-effort: log and ignore errors.
type Producer interface {
	// Emit sends a single payload. Implementations may block briefly; call from a goroutine if needed.
	Emit(ctx context.Context, payload *domain.Payload) error
	// Close releases resources (e.g. Kafka writer). Safe to call if already closed.
	Close() error
}
