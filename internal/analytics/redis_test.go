package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Laixer/Swabbr-Backend-sub003/internal/domain"
)

func newTestSink(t *testing.T, now time.Time) (*RedisSink, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	sink := NewRedisSink(client, time.Hour)
	sink.clock = func() time.Time { return now }
	return sink, mr
}

func TestTriggerFired_CountsGlobalAndPerUser(t *testing.T) {
	now := time.Date(2024, 3, 10, 14, 30, 0, 0, time.UTC)
	sink, mr := newTestSink(t, now)
	user := uuid.New()

	sink.TriggerFired(context.Background(), user)
	sink.TriggerFired(context.Background(), user)

	global, err := mr.Get("swabbr:triggers:2024031014")
	if err != nil || global != "2" {
		t.Errorf("global counter = %q (%v), want 2", global, err)
	}
	perUser, err := mr.Get("swabbr:triggers:u:" + user.String() + ":2024031014")
	if err != nil || perUser != "2" {
		t.Errorf("per-user counter = %q (%v), want 2", perUser, err)
	}
}

func TestNotificationSent_BucketsByKindAndPlatform(t *testing.T) {
	now := time.Date(2024, 3, 10, 14, 0, 0, 0, time.UTC)
	sink, mr := newTestSink(t, now)

	sink.NotificationSent(context.Background(), domain.KindRecordVlogRequest, domain.PlatformFCM)
	sink.NotificationSent(context.Background(), domain.KindRecordVlogRequest, domain.PlatformAPNS)

	fcm, err := mr.Get("swabbr:pushes:record_vlog_request:fcm:2024031014")
	if err != nil || fcm != "1" {
		t.Errorf("fcm counter = %q (%v), want 1", fcm, err)
	}
	apns, err := mr.Get("swabbr:pushes:record_vlog_request:apns:2024031014")
	if err != nil || apns != "1" {
		t.Errorf("apns counter = %q (%v), want 1", apns, err)
	}
}

func TestCounters_CarryRetentionTTL(t *testing.T) {
	now := time.Date(2024, 3, 10, 14, 0, 0, 0, time.UTC)
	sink, mr := newTestSink(t, now)

	sink.RequestConnected(context.Background())

	ttl := mr.TTL("swabbr:connected:2024031014")
	if ttl != time.Hour {
		t.Errorf("ttl = %v, want 1h", ttl)
	}
}

func TestWriteFailure_DoesNotPanic(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	sink := NewRedisSink(client, 0)

	mr.Close()
	// Redis is gone; counters drop silently.
	sink.RequestTimedOut(context.Background())
}

func TestHourlyBucketRollsOver(t *testing.T) {
	now := time.Date(2024, 3, 10, 14, 59, 0, 0, time.UTC)
	sink, mr := newTestSink(t, now)

	sink.RequestTimedOut(context.Background())
	sink.clock = func() time.Time { return now.Add(2 * time.Minute) }
	sink.RequestTimedOut(context.Background())

	first, _ := mr.Get("swabbr:timed_out:2024031014")
	second, _ := mr.Get("swabbr:timed_out:2024031015")
	if first != "1" || second != "1" {
		t.Errorf("bucket counts = %q / %q, want 1 / 1", first, second)
	}
}
