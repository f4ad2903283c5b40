package domain

import (
	"time"

	"github.com/google/uuid"
)

// TriggerTask is one vlog-request creation task produced by the scheduler
// for a user whose trigger minute matched the current UTC minute.
type TriggerTask struct {
	UserID      uuid.UUID
	RequestedAt time.Time
	Deadline    time.Time
}

// TriggerBatch groups all tasks of one scheduler tick. Batches are keyed by
// the truncated UTC minute; at most one batch exists per minute.
type TriggerBatch struct {
	Minute  time.Time
	FiredAt time.Time
	Tasks   []TriggerTask
}
