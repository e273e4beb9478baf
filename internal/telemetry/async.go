package telemetry

import (
	"context"
	"time"

	"visitor-relay/internal/telemetry/domain"
)

// emitTimeout is the max time allowed for a single async mirror emit.
const emitTimeout = 5 * time.Second

// ShutdownDrainDuration is how long shutdown waits for in-flight mirror emits before
// OTel providers are flushed. Must be >= emitTimeout.
const ShutdownDrainDuration = emitTimeout

// emitAsync runs sink.Emit in a goroutine so the visitor is not blocked. The goroutine
// uses context.Background() with emitTimeout so request cancellation does not abort it.
func (f *Forwarder) emitAsync(sink Sink, payload *domain.Payload) {
	if sink == nil || payload == nil {
		return
	}
	f.inflight.Add(1)
	go func() {
		defer f.inflight.Done()
		emitCtx, cancel := context.WithTimeout(context.Background(), emitTimeout)
		defer cancel()
		if err := sink.Emit(emitCtx, payload); err != nil {
			f.logger.Warn("telemetry: async mirror emit failed", "error", err)
		}
	}()
}

// Drain blocks until in-flight mirror emits finish or ctx is done.
func (f *Forwarder) Drain(ctx context.Context) error {
	if f == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		f.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
