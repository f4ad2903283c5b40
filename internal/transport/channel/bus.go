// Package channel provides the in-memory batch bus between the scheduler
// and the dispatcher. A small buffer absorbs a slow batch without ever
// letting the scheduler's tick goroutine run dispatch work itself.
package channel

import (
	"context"

	"github.com/Laixer/Swabbr-Backend-sub003/internal/domain"
)

// MetricsSink records bus events. Implementations must not block.
type MetricsSink interface {
	BatchBufferUpdate(size int)
	EmitError()
}

// Option configures a BatchBus.
type Option func(*BatchBus)

// WithMetrics attaches a metrics sink to the bus.
func WithMetrics(sink MetricsSink) Option {
	return func(b *BatchBus) {
		b.metrics = sink
	}
}

// BatchBus carries trigger batches from the scheduler to the dispatcher.
type BatchBus struct {
	ch      chan domain.TriggerBatch
	metrics MetricsSink
}

// NewBatchBus creates a bus with the given buffer capacity.
func NewBatchBus(buffer int, opts ...Option) *BatchBus {
	b := &BatchBus{
		ch: make(chan domain.TriggerBatch, buffer),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Emit hands a batch to the dispatcher. It blocks only while the buffer is
// full, and gives up when ctx is done.
func (b *BatchBus) Emit(ctx context.Context, batch domain.TriggerBatch) error {
	select {
	case b.ch <- batch:
		b.publishSize()
		return nil
	case <-ctx.Done():
		if b.metrics != nil {
			b.metrics.EmitError()
		}
		return ctx.Err()
	}
}

// Channel exposes the consumer side of the bus.
func (b *BatchBus) Channel() <-chan domain.TriggerBatch {
	return b.ch
}

func (b *BatchBus) publishSize() {
	if b.metrics != nil {
		b.metrics.BatchBufferUpdate(len(b.ch))
	}
}
