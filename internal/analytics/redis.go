// Package analytics keeps best-effort usage counters in Redis. Counters are
// bucketed by hour and expire after the configured retention; losing one
// never affects dispatch correctness.
package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/Laixer/Swabbr-Backend-sub003/internal/domain"
)

// DefaultRetention is how long counter buckets live when none is configured.
const DefaultRetention = 30 * 24 * time.Hour

// RedisSink increments hourly counters per event kind. All writes are
// fire-and-forget; failures are logged and swallowed.
type RedisSink struct {
	client    *redis.Client
	retention time.Duration
	clock     func() time.Time
}

// NewRedisSink creates a RedisSink with the given retention. A zero
// retention falls back to DefaultRetention.
func NewRedisSink(client *redis.Client, retention time.Duration) *RedisSink {
	if retention == 0 {
		retention = DefaultRetention
	}
	return &RedisSink{
		client:    client,
		retention: retention,
		clock:     time.Now,
	}
}

// TriggerFired counts one vlog trigger, globally and per user.
func (s *RedisSink) TriggerFired(ctx context.Context, userID uuid.UUID) {
	s.incr(ctx, s.key("triggers"))
	s.incr(ctx, s.key("triggers:u:"+userID.String()))
}

// NotificationSent counts one delivered push per kind and platform.
func (s *RedisSink) NotificationSent(ctx context.Context, kind domain.NotificationKind, platform domain.Platform) {
	s.incr(ctx, s.key(fmt.Sprintf("pushes:%s:%s", kind, platform)))
}

// RequestConnected counts one session the user actually joined.
func (s *RedisSink) RequestConnected(ctx context.Context) {
	s.incr(ctx, s.key("connected"))
}

// RequestTimedOut counts one session reclaimed at the deadline.
func (s *RedisSink) RequestTimedOut(ctx context.Context) {
	s.incr(ctx, s.key("timed_out"))
}

func (s *RedisSink) incr(ctx context.Context, key string) {
	pipe := s.client.Pipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, s.retention)

	if _, err := pipe.Exec(ctx); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("analytics: write failed")
	}
}

// key prefixes a counter name with the current hourly bucket.
func (s *RedisSink) key(name string) string {
	return fmt.Sprintf("swabbr:%s:%s", name, s.clock().UTC().Format("2006010215"))
}
