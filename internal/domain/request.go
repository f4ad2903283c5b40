package domain

import (
	"time"

	"github.com/google/uuid"
)

type RequestState string

const (
	RequestStateRequested RequestState = "requested"
	RequestStateConnected RequestState = "connected"
	RequestStateCompleted RequestState = "completed"
	RequestStateTimedOut  RequestState = "timed_out"
	RequestStateCancelled RequestState = "cancelled"
)

// IsTerminal reports whether no further transitions are allowed from s.
func (s RequestState) IsTerminal() bool {
	switch s {
	case RequestStateCompleted, RequestStateTimedOut, RequestStateCancelled:
		return true
	default:
		return false
	}
}

// VlogRequest is one in-flight vlog-record session. The livestream resource
// it references is borrowed from the pool, not owned; it is released back
// when the request reaches a terminal state.
type VlogRequest struct {
	ID uuid.UUID

	UserID       uuid.UUID
	LivestreamID string

	RequestedAt time.Time
	Deadline    time.Time
	State       RequestState

	CreatedAt time.Time
}
