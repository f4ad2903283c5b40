// Package sweeper rebuilds the in-memory timeout state from persisted
// deadlines.
//
// Connect timers live in process memory and die with it. After a restart,
// or when a timer was lost to a crash, pending requests would otherwise
// hold their livestream forever. The sweeper periodically scans requests
// still awaiting a connect: past-deadline requests are expired immediately,
// future ones get their timer re-armed. Re-arming an already-armed timer is
// a tolerated no-op, so the sweeper is safe to run alongside live dispatch.
package sweeper

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Laixer/Swabbr-Backend-sub003/internal/domain"
	"github.com/Laixer/Swabbr-Backend-sub003/internal/timeout"
)

// Store fetches requests still awaiting a connect.
type Store interface {
	GetPendingRequests(ctx context.Context, maxResults int) ([]domain.VlogRequest, error)
}

// Expirer times out a request whose deadline has passed. The persisted
// state guard makes a duplicate expire harmless.
type Expirer interface {
	HandleExpire(livestreamID string)
}

// Timeouts re-arms connect-deadline timers.
type Timeouts interface {
	Start(livestreamID string, delay time.Duration) error
}

// MetricsSink records sweep results. Implementations must not block.
type MetricsSink interface {
	SweepCompleted(expired, rearmed int)
}

// Config holds sweeper configuration.
type Config struct {
	// Interval is how often the sweeper scans. Default: 1 minute.
	Interval time.Duration

	// BatchSize is the maximum number of pending requests per cycle.
	// Default: 100.
	BatchSize int
}

// DefaultConfig returns the default sweeper configuration.
func DefaultConfig() Config {
	return Config{
		Interval:  time.Minute,
		BatchSize: 100,
	}
}

// Sweeper reconciles persisted deadlines with in-memory timers.
type Sweeper struct {
	config   Config
	store    Store
	expirer  Expirer
	timeouts Timeouts
	clock    func() time.Time
	metrics  MetricsSink
}

// New creates a Sweeper.
func New(config Config, store Store, expirer Expirer, timeouts Timeouts) *Sweeper {
	if config.Interval == 0 {
		config.Interval = time.Minute
	}
	if config.BatchSize == 0 {
		config.BatchSize = 100
	}
	return &Sweeper{
		config:   config,
		store:    store,
		expirer:  expirer,
		timeouts: timeouts,
		clock:    time.Now,
	}
}

// WithMetrics attaches a metrics sink to the sweeper.
func (s *Sweeper) WithMetrics(sink MetricsSink) *Sweeper {
	s.metrics = sink
	return s
}

// Run starts the sweep loop. A cycle runs immediately so a restarted
// instance recovers its timers before the first interval elapses. Blocks
// until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	log.Info().
		Dur("interval", s.config.Interval).
		Int("batch", s.config.BatchSize).
		Msg("sweeper: started")

	s.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("sweeper: stopped")
			return
		case <-ticker.C:
			s.runCycle(ctx)
		}
	}
}

func (s *Sweeper) runCycle(ctx context.Context) {
	now := s.clock().UTC()

	pending, err := s.store.GetPendingRequests(ctx, s.config.BatchSize)
	if err != nil {
		// Storage error: abort this cycle, retry next interval.
		log.Error().Err(err).Msg("sweeper: fetch pending requests failed")
		return
	}
	if len(pending) == 0 {
		return
	}

	expired := 0
	rearmed := 0

	for _, req := range pending {
		if ctx.Err() != nil {
			log.Warn().
				Int("processed", expired+rearmed).
				Int("total", len(pending)).
				Msg("sweeper: cycle interrupted")
			return
		}

		if !req.Deadline.After(now) {
			s.expirer.HandleExpire(req.LivestreamID)
			expired++
			continue
		}

		err := s.timeouts.Start(req.LivestreamID, req.Deadline.Sub(now))
		if err != nil {
			if errors.Is(err, timeout.ErrAlreadyArmed) {
				// Live dispatch already owns this timer.
				continue
			}
			log.Error().Err(err).Str("livestream_id", req.LivestreamID).Msg("sweeper: re-arm failed")
			continue
		}
		log.Info().
			Str("livestream_id", req.LivestreamID).
			Time("deadline", req.Deadline).
			Msg("sweeper: timer re-armed")
		rearmed++
	}

	if s.metrics != nil {
		s.metrics.SweepCompleted(expired, rearmed)
	}
	log.Info().Int("expired", expired).Int("rearmed", rearmed).Msg("sweeper: cycle complete")
}
