package api

import "time"

// ScheduleRequest creates or replaces a user's trigger schedule. Timezone
// defaults to UTC, the request timeout to 300 seconds and enabled to true.
// A cron expression overrides the daily trigger-minute cadence.
type ScheduleRequest struct {
	TriggerMinute  int    `json:"trigger_minute"`
	Timezone       string `json:"timezone,omitempty"`
	CronExpression string `json:"cron_expression,omitempty"`
	RequestTimeout int    `json:"request_timeout_seconds,omitempty"`
	Enabled        *bool  `json:"enabled,omitempty"`
}

type ScheduleResponse struct {
	UserID         string `json:"user_id"`
	TriggerMinute  int    `json:"trigger_minute"`
	Timezone       string `json:"timezone"`
	CronExpression string `json:"cron_expression,omitempty"`
	RequestTimeout int    `json:"request_timeout_seconds"`
	Enabled        bool   `json:"enabled"`
}

// DeviceRequest binds a push handle to a user on one platform.
type DeviceRequest struct {
	Platform string `json:"platform"`
	Handle   string `json:"handle"`
}

type LivestreamEventResponse struct {
	LivestreamID string `json:"livestream_id"`
	Status       string `json:"status"`
}

type PoolResourceResponse struct {
	LivestreamID string `json:"livestream_id"`
	State        string `json:"state"`
	ReservedFor  string `json:"reserved_for,omitempty"`
	ReservedAt   string `json:"reserved_at,omitempty"`
}

type PoolResponse struct {
	Resources []PoolResourceResponse `json:"resources"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
