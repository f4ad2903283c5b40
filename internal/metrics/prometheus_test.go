package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestPrometheusSink_RegistersAndRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink := NewPrometheusSink(reg)

	// Exercise every method; none may panic or block.
	sink.TickStarted()
	sink.TickCompleted(50*time.Millisecond, 3, nil)
	sink.TickSkipped("duplicate_minute")
	sink.TaskOutcome(TaskOutcomeNotified)
	sink.TasksInFlightIncr()
	sink.TasksInFlightDecr()
	sink.PushSent("fcm", StatusClass2xx, 100*time.Millisecond)
	sink.PushOutcome(PushOutcomeSent)
	sink.PoolSizeUpdate(5, 2, 2, 1)
	sink.AcquireOutcome("reserved")
	sink.TimersArmedUpdate(4)
	sink.TimeoutFired()
	sink.CleanupWon()
	sink.ConnectOutcome(ConnectOutcomeConnected)
	sink.BatchBufferUpdate(1)
	sink.EmitError()
	sink.SweepCompleted(2, 1)
	sink.LeaderStatusChanged(true)
	sink.LeaderAcquired()
	sink.LeaderLost("shutdown")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	if len(families) == 0 {
		t.Fatal("no metric families registered")
	}
}

func TestPrometheusSink_DuplicateRegistrationDoesNotPanic(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewPrometheusSink(reg)
	// Second sink on the same registry collides on every name; the sink
	// logs and keeps working.
	sink := NewPrometheusSink(reg)
	sink.TickStarted()
}
