package metrics

import (
	"strings"
	"time"
)

// Sink defines the interface for recording metrics.
// All methods are fire-and-forget: implementations MUST NOT block or
// propagate errors. If the metrics backend is unavailable, implementations
// log warnings and continue.
type Sink interface {
	// Scheduler
	TickStarted()
	TickCompleted(duration time.Duration, triggered int, err error)
	TickSkipped(reason string)

	// Dispatcher
	TaskOutcome(outcome string)
	TasksInFlightIncr()
	TasksInFlightDecr()

	// Notifications
	PushSent(platform string, statusClass string, duration time.Duration)
	PushOutcome(outcome string)

	// Pool
	PoolSizeUpdate(total, free, reserved, inUse int)
	AcquireOutcome(outcome string)

	// Timeout worker
	TimersArmedUpdate(count int)
	TimeoutFired()
	CleanupWon()

	// Connect events
	ConnectOutcome(outcome string)

	// Batch bus
	BatchBufferUpdate(size int)
	EmitError()

	// Sweeper
	SweepCompleted(expired, rearmed int)

	// Leader election
	LeaderStatusChanged(isLeader bool)
	LeaderAcquired()
	LeaderLost(reason string)
}

// Outcome constants for TaskOutcome.
const (
	TaskOutcomeNotified      = "notified"
	TaskOutcomePoolExhausted = "pool_exhausted"
	TaskOutcomeFailed        = "failed"
)

// Outcome constants for PushOutcome.
const (
	PushOutcomeSent        = "sent"
	PushOutcomeDropped     = "dropped"
	PushOutcomeBreakerOpen = "breaker_open"
)

// Outcome constants for ConnectOutcome.
const (
	ConnectOutcomeConnected = "connected"
	ConnectOutcomeConflict  = "conflict"
	ConnectOutcomeNotFound  = "not_found"
)

// StatusClass constants for PushSent.
const (
	StatusClass2xx             = "2xx"
	StatusClass4xx             = "4xx"
	StatusClass5xx             = "5xx"
	StatusClassTimeout         = "timeout"
	StatusClassConnectionError = "connection_error"
	StatusClassOtherError      = "other_error"
)

// ClassifyStatus maps an HTTP status code and error to a bounded-cardinality
// status class.
func ClassifyStatus(statusCode int, err error) string {
	if err != nil {
		msg := strings.ToLower(err.Error())
		switch {
		case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline exceeded"):
			return StatusClassTimeout
		case strings.Contains(msg, "connection refused"),
			strings.Contains(msg, "no such host"),
			strings.Contains(msg, "network is unreachable"),
			strings.Contains(msg, "dial"):
			return StatusClassConnectionError
		default:
			return StatusClassOtherError
		}
	}

	switch {
	case statusCode >= 200 && statusCode < 300:
		return StatusClass2xx
	case statusCode >= 400 && statusCode < 500:
		return StatusClass4xx
	case statusCode >= 500:
		return StatusClass5xx
	default:
		return StatusClassOtherError
	}
}
