package domain

import (
	"time"

	"github.com/google/uuid"
)

type Platform string

const (
	PlatformFCM  Platform = "fcm"
	PlatformAPNS Platform = "apns"
)

type NotificationKind string

const (
	KindRecordVlogRequest   NotificationKind = "record_vlog_request"
	KindFollowedProfileLive NotificationKind = "followed_profile_live"
	KindVlogPosted          NotificationKind = "vlog_posted"
	KindVlogLiked           NotificationKind = "vlog_liked"
	KindVlogNewReaction     NotificationKind = "vlog_new_reaction"
)

// NotificationData carries the kind-specific identifiers of a payload.
// Only the fields relevant to the kind are populated.
type NotificationData struct {
	LivestreamID   string
	VlogID         uuid.UUID
	RequesterID    uuid.UUID
	ReactionID     uuid.UUID
	RequestTimeout time.Duration
}

// NotificationPayload is an immutable notification value. One built payload
// may be extracted into multiple platform wire variants without mutation.
type NotificationPayload struct {
	Kind         NotificationKind
	TargetUserID uuid.UUID
	Data         NotificationData
	Timestamp    time.Time
}

// DeviceRegistration binds a user to a platform-specific push handle.
type DeviceRegistration struct {
	UserID    uuid.UUID
	Platform  Platform
	Handle    string
	UpdatedAt time.Time
}
