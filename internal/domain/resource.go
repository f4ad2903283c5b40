package domain

import (
	"time"

	"github.com/google/uuid"
)

type ResourceState string

const (
	ResourceStateFree     ResourceState = "free"
	ResourceStateReserved ResourceState = "reserved"
	ResourceStateInUse    ResourceState = "in_use"
)

// StreamResource is one provisioned livestream endpoint in the pool arena.
// The pool owns the record exclusively; callers only ever hold a borrowed
// handle for the duration of a session.
type StreamResource struct {
	LivestreamID string

	State       ResourceState
	ReservedAt  time.Time
	ReservedFor uuid.UUID
}
