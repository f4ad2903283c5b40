package domain

import (
	"time"

	"github.com/google/uuid"
)

// TriggerSchedule describes when a user is due to receive a
// "record a vlog now" request. Exactly one active schedule exists per user.
type TriggerSchedule struct {
	UserID uuid.UUID

	// TriggerMinute is the minute-of-day (0..1439) in the user's local
	// timezone at which the trigger fires daily.
	TriggerMinute int
	Timezone      string // IANA timezone, defaults to UTC

	// CronExpression, when set, replaces the daily cadence
	// (e.g. weekday-only triggers).
	CronExpression string

	// RequestTimeout is the connect window granted to the user before the
	// livestream resource is reclaimed.
	RequestTimeout time.Duration

	Enabled bool

	CreatedAt time.Time
	UpdatedAt time.Time
}
