package notification

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/Laixer/Swabbr-Backend-sub003/internal/domain"
)

// ErrUnsupportedPlatformKind is returned for a (platform, kind) pair outside
// the closed mapping. A partially-populated payload is never emitted.
var ErrUnsupportedPlatformKind = errors.New("unsupported platform/kind pair")

// Extractor maps a built payload to the platform-specific wire shape.
// Callers above this layer stay platform-agnostic.
type Extractor struct{}

// NewExtractor creates an Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// fcmMessage is the FCM downstream message body.
type fcmMessage struct {
	Notification fcmNotification   `json:"notification"`
	Data         map[string]string `json:"data"`
}

type fcmNotification struct {
	Title       string `json:"title"`
	Body        string `json:"body"`
	ClickAction string `json:"click_action"`
}

// apnsMessage is the APNS payload: the aps dictionary plus custom keys.
type apnsMessage struct {
	APS  apsDict           `json:"aps"`
	Data map[string]string `json:"swabbr"`
}

type apsDict struct {
	Alert    apsAlert `json:"alert"`
	Sound    string   `json:"sound"`
	Category string   `json:"category"`
}

type apsAlert struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Extract renders payload into the wire shape platform expects.
func (e *Extractor) Extract(platform domain.Platform, payload domain.NotificationPayload) ([]byte, error) {
	title, body, action, ok := describe(payload.Kind)
	if !ok {
		return nil, fmt.Errorf("kind %s: %w", payload.Kind, ErrUnsupportedPlatformKind)
	}

	data := semanticData(payload)

	switch platform {
	case domain.PlatformFCM:
		return json.Marshal(fcmMessage{
			Notification: fcmNotification{
				Title:       title,
				Body:        body,
				ClickAction: action,
			},
			Data: data,
		})
	case domain.PlatformAPNS:
		return json.Marshal(apnsMessage{
			APS: apsDict{
				Alert:    apsAlert{Title: title, Body: body},
				Sound:    "default",
				Category: action,
			},
			Data: data,
		})
	default:
		return nil, fmt.Errorf("platform %s, kind %s: %w", platform, payload.Kind, ErrUnsupportedPlatformKind)
	}
}

// describe returns the human-facing text and click action per kind. The
// mapping is total over the closed kind set; anything else is rejected.
func describe(kind domain.NotificationKind) (title, body, action string, ok bool) {
	switch kind {
	case domain.KindRecordVlogRequest:
		return "Time to vlog!", "Your moment is now. Go live and record your vlog.", "RECORD_VLOG", true
	case domain.KindFollowedProfileLive:
		return "Live now", "Someone you follow just went live.", "WATCH_LIVESTREAM", true
	case domain.KindVlogPosted:
		return "New vlog", "Someone you follow posted a new vlog.", "WATCH_VLOG", true
	case domain.KindVlogLiked:
		return "Your vlog was liked", "Someone liked your vlog.", "VIEW_VLOG_LIKES", true
	case domain.KindVlogNewReaction:
		return "New reaction", "Someone reacted to your vlog.", "VIEW_REACTION", true
	default:
		return "", "", "", false
	}
}

// semanticData flattens the kind-specific identifiers. Both platforms carry
// the same semantic content; only the envelope differs.
func semanticData(payload domain.NotificationPayload) map[string]string {
	data := map[string]string{
		"kind":      string(payload.Kind),
		"user_id":   payload.TargetUserID.String(),
		"timestamp": payload.Timestamp.UTC().Format(time.RFC3339),
	}
	if payload.Data.LivestreamID != "" {
		data["livestream_id"] = payload.Data.LivestreamID
	}
	if payload.Data.VlogID != uuid.Nil {
		data["vlog_id"] = payload.Data.VlogID.String()
	}
	if payload.Data.RequesterID != uuid.Nil {
		data["requester_id"] = payload.Data.RequesterID.String()
	}
	if payload.Data.ReactionID != uuid.Nil {
		data["reaction_id"] = payload.Data.ReactionID.String()
	}
	if payload.Data.RequestTimeout > 0 {
		data["request_timeout_minutes"] = strconv.Itoa(int(payload.Data.RequestTimeout / time.Minute))
	}
	return data
}
