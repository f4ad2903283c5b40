package notification

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Laixer/Swabbr-Backend-sub003/internal/domain"
)

func TestExtract_AllKindsBothPlatforms(t *testing.T) {
	b := NewBuilder()
	e := NewExtractor()
	userID := uuid.New()
	vlogID := uuid.New()
	otherID := uuid.New()

	payloads := []domain.NotificationPayload{
		b.RecordVlogRequest(userID, "ls-1", 5*time.Minute),
		b.FollowedProfileLive(userID, otherID, "ls-2"),
		b.VlogPosted(userID, vlogID, otherID),
		b.VlogLiked(userID, vlogID, otherID),
		b.VlogNewReaction(userID, vlogID, uuid.New(), otherID),
	}

	for _, payload := range payloads {
		for _, platform := range []domain.Platform{domain.PlatformFCM, domain.PlatformAPNS} {
			t.Run(string(payload.Kind)+"/"+string(platform), func(t *testing.T) {
				wire, err := e.Extract(platform, payload)
				if err != nil {
					t.Fatalf("Extract failed: %v", err)
				}
				if len(wire) == 0 {
					t.Fatal("empty wire payload")
				}
			})
		}
	}
}

// One built payload extracted for two platforms yields different envelopes
// but identical semantic content.
func TestExtract_PlatformVariantsShareSemantics(t *testing.T) {
	b := NewBuilder()
	e := NewExtractor()
	userID := uuid.New()
	vlogID := uuid.New()
	likerID := uuid.New()

	payload := b.VlogLiked(userID, vlogID, likerID)

	fcmWire, err := e.Extract(domain.PlatformFCM, payload)
	if err != nil {
		t.Fatalf("Extract(fcm) failed: %v", err)
	}
	apnsWire, err := e.Extract(domain.PlatformAPNS, payload)
	if err != nil {
		t.Fatalf("Extract(apns) failed: %v", err)
	}

	if string(fcmWire) == string(apnsWire) {
		t.Error("wire shapes are identical, want platform-specific envelopes")
	}

	var fcm struct {
		Data map[string]string `json:"data"`
	}
	if err := json.Unmarshal(fcmWire, &fcm); err != nil {
		t.Fatalf("unmarshal fcm: %v", err)
	}
	var apns struct {
		Data map[string]string `json:"swabbr"`
	}
	if err := json.Unmarshal(apnsWire, &apns); err != nil {
		t.Fatalf("unmarshal apns: %v", err)
	}

	for _, key := range []string{"kind", "user_id", "vlog_id", "requester_id"} {
		if fcm.Data[key] == "" {
			t.Errorf("fcm data missing %q", key)
		}
		if fcm.Data[key] != apns.Data[key] {
			t.Errorf("semantic mismatch for %q: fcm=%q apns=%q", key, fcm.Data[key], apns.Data[key])
		}
	}
	if fcm.Data["vlog_id"] != vlogID.String() {
		t.Errorf("vlog_id = %q, want %q", fcm.Data["vlog_id"], vlogID)
	}
	if fcm.Data["user_id"] != userID.String() {
		t.Errorf("user_id = %q, want %q", fcm.Data["user_id"], userID)
	}
}

func TestExtract_UnsupportedPlatform(t *testing.T) {
	b := NewBuilder()
	e := NewExtractor()

	payload := b.VlogPosted(uuid.New(), uuid.New(), uuid.New())
	_, err := e.Extract(domain.Platform("windows_phone"), payload)
	if !errors.Is(err, ErrUnsupportedPlatformKind) {
		t.Fatalf("err = %v, want ErrUnsupportedPlatformKind", err)
	}
}

func TestExtract_UnknownKind(t *testing.T) {
	e := NewExtractor()

	payload := domain.NotificationPayload{
		Kind:         domain.NotificationKind("vlog_shared"),
		TargetUserID: uuid.New(),
	}
	_, err := e.Extract(domain.PlatformFCM, payload)
	if !errors.Is(err, ErrUnsupportedPlatformKind) {
		t.Fatalf("err = %v, want ErrUnsupportedPlatformKind", err)
	}
}

func TestBuilder_RecordVlogRequestCarriesTimeout(t *testing.T) {
	b := NewBuilder()
	payload := b.RecordVlogRequest(uuid.New(), "ls-9", 5*time.Minute)

	if payload.Kind != domain.KindRecordVlogRequest {
		t.Errorf("kind = %s, want record_vlog_request", payload.Kind)
	}
	if payload.Data.LivestreamID != "ls-9" {
		t.Errorf("livestream id = %q, want ls-9", payload.Data.LivestreamID)
	}
	if payload.Data.RequestTimeout != 5*time.Minute {
		t.Errorf("request timeout = %s, want 5m", payload.Data.RequestTimeout)
	}
	if payload.Timestamp.IsZero() {
		t.Error("timestamp not stamped")
	}

	wire, err := NewExtractor().Extract(domain.PlatformFCM, payload)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	var fcm struct {
		Data map[string]string `json:"data"`
	}
	if err := json.Unmarshal(wire, &fcm); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if fcm.Data["request_timeout_minutes"] != "5" {
		t.Errorf("request_timeout_minutes = %q, want 5", fcm.Data["request_timeout_minutes"])
	}
}
