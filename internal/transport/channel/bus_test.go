package channel

import (
	"context"
	"testing"
	"time"

	"github.com/Laixer/Swabbr-Backend-sub003/internal/domain"
)

func TestBatchBus_EmitAndConsume(t *testing.T) {
	bus := NewBatchBus(2)

	minute := time.Date(2024, 1, 15, 19, 30, 0, 0, time.UTC)
	batch := domain.TriggerBatch{Minute: minute, FiredAt: minute}

	if err := bus.Emit(context.Background(), batch); err != nil {
		t.Fatalf("Emit failed: %v", err)
	}

	select {
	case got := <-bus.Channel():
		if !got.Minute.Equal(minute) {
			t.Errorf("batch minute = %s, want %s", got.Minute, minute)
		}
	default:
		t.Fatal("no batch on channel")
	}
}

func TestBatchBus_EmitGivesUpOnCancel(t *testing.T) {
	bus := NewBatchBus(1)

	if err := bus.Emit(context.Background(), domain.TriggerBatch{}); err != nil {
		t.Fatalf("first Emit failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// Buffer is full and nobody consumes: Emit must return the ctx error.
	if err := bus.Emit(ctx, domain.TriggerBatch{}); err == nil {
		t.Fatal("Emit on full buffer returned nil, want context error")
	}
}
