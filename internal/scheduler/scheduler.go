// Package scheduler fires once per calendar minute and turns due trigger
// schedules into vlog-request batches.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Laixer/Swabbr-Backend-sub003/internal/domain"
)

// ErrDuplicateBatch is returned by the store when a batch for the same
// minute already exists. It is the persisted duplicate-tick guard; a
// restarted scheduler cannot re-fire a minute another instance processed.
var ErrDuplicateBatch = errors.New("trigger batch already exists for minute")

// Store enumerates schedules and records processed minutes.
type Store interface {
	ListEnabledSchedules(ctx context.Context) ([]domain.TriggerSchedule, error)
	InsertTriggerBatch(ctx context.Context, minute time.Time, tasks int) error
	// DeleteTriggerBatch undoes a recorded minute whose batch never reached
	// the dispatcher, so a later tick can process the minute again.
	DeleteTriggerBatch(ctx context.Context, minute time.Time) error
}

// Evaluator decides whether a schedule fires at a given UTC minute.
type Evaluator interface {
	Due(s domain.TriggerSchedule, minuteUTC time.Time) (bool, error)
}

// BatchEmitter hands a batch to the dispatcher.
type BatchEmitter interface {
	Emit(ctx context.Context, batch domain.TriggerBatch) error
}

// MetricsSink records scheduler metrics. Implementations must not block.
type MetricsSink interface {
	TickStarted()
	TickCompleted(duration time.Duration, triggered int, err error)
	TickSkipped(reason string)
}

// Skip reasons for MetricsSink.TickSkipped.
const (
	SkipReasonSameMinute     = "same_minute"
	SkipReasonDuplicateBatch = "duplicate_batch"
)

// Config holds scheduler configuration.
type Config struct {
	// TickInterval is how often due-ness is checked. Minute idempotency
	// makes intervals shorter than a minute safe. Default: 1 minute.
	TickInterval time.Duration
}

// Scheduler runs the per-minute trigger loop.
type Scheduler struct {
	config  Config
	store   Store
	eval    Evaluator
	emitter BatchEmitter
	clock   func() time.Time
	metrics MetricsSink

	// lastMinute is the in-memory duplicate-tick guard; the persisted
	// batch insert backs it across restarts.
	lastMinute time.Time
}

// New creates a Scheduler.
func New(config Config, store Store, eval Evaluator, emitter BatchEmitter) *Scheduler {
	if config.TickInterval == 0 {
		config.TickInterval = time.Minute
	}
	return &Scheduler{
		config:  config,
		store:   store,
		eval:    eval,
		emitter: emitter,
		clock:   time.Now,
	}
}

// WithMetrics attaches a metrics sink to the scheduler.
func (s *Scheduler) WithMetrics(sink MetricsSink) *Scheduler {
	s.metrics = sink
	return s
}

// Run starts the tick loop. It blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.config.TickInterval)
	defer ticker.Stop()

	log.Info().Dur("tick", s.config.TickInterval).Msg("scheduler: started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("scheduler: stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := s.processTick(ctx); err != nil {
				log.Error().Err(err).Msg("scheduler: tick abandoned")
			}
		}
	}
}

// processTick evaluates all schedules against the current truncated minute
// and emits at most one batch. Enumeration is all-or-nothing: a storage
// failure abandons the whole tick before any dispatch starts.
func (s *Scheduler) processTick(ctx context.Context) error {
	start := s.clock().UTC()
	minute := start.Truncate(time.Minute)

	if s.metrics != nil {
		s.metrics.TickStarted()
	}

	if !s.lastMinute.IsZero() && !minute.After(s.lastMinute) {
		if s.metrics != nil {
			s.metrics.TickSkipped(SkipReasonSameMinute)
		}
		return nil
	}

	schedules, err := s.store.ListEnabledSchedules(ctx)
	if err != nil {
		if s.metrics != nil {
			s.metrics.TickCompleted(s.clock().UTC().Sub(start), 0, err)
		}
		return fmt.Errorf("enumerate schedules: %w", err)
	}

	tasks := s.dueTasks(schedules, minute, start)

	// The unique minute insert is what makes the tick idempotent across
	// instances and restarts.
	if err := s.store.InsertTriggerBatch(ctx, minute, len(tasks)); err != nil {
		if errors.Is(err, ErrDuplicateBatch) {
			s.lastMinute = minute
			if s.metrics != nil {
				s.metrics.TickSkipped(SkipReasonDuplicateBatch)
			}
			return nil
		}
		if s.metrics != nil {
			s.metrics.TickCompleted(s.clock().UTC().Sub(start), 0, err)
		}
		return fmt.Errorf("record trigger batch: %w", err)
	}

	if len(tasks) > 0 {
		batch := domain.TriggerBatch{Minute: minute, FiredAt: start, Tasks: tasks}
		if err := s.emitter.Emit(ctx, batch); err != nil {
			s.releaseMinute(minute)
			if s.metrics != nil {
				s.metrics.TickCompleted(s.clock().UTC().Sub(start), 0, err)
			}
			return fmt.Errorf("emit batch: %w", err)
		}
		log.Info().
			Time("minute", minute).
			Int("tasks", len(tasks)).
			Msg("scheduler: batch emitted")
	}

	s.lastMinute = minute
	if s.metrics != nil {
		s.metrics.TickCompleted(s.clock().UTC().Sub(start), len(tasks), nil)
	}
	return nil
}

// releaseMinuteTimeout bounds the compensating delete after a failed emit.
const releaseMinuteTimeout = 5 * time.Second

// releaseMinute removes the batch record so the minute stays retryable. An
// emit fails mostly because ctx was cancelled at shutdown, so the delete
// runs on its own short-lived context.
func (s *Scheduler) releaseMinute(minute time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), releaseMinuteTimeout)
	defer cancel()

	if err := s.store.DeleteTriggerBatch(ctx, minute); err != nil {
		log.Error().Err(err).Time("minute", minute).Msg("scheduler: release minute failed")
	}
}

// dueTasks filters schedules due at minute. A malformed schedule is skipped
// and logged; it never aborts the rest of the batch.
func (s *Scheduler) dueTasks(schedules []domain.TriggerSchedule, minute, now time.Time) []domain.TriggerTask {
	var tasks []domain.TriggerTask
	for _, sched := range schedules {
		due, err := s.eval.Due(sched, minute)
		if err != nil {
			log.Warn().Err(err).Str("user_id", sched.UserID.String()).Msg("scheduler: schedule skipped")
			continue
		}
		if !due {
			continue
		}
		tasks = append(tasks, domain.TriggerTask{
			UserID:      sched.UserID,
			RequestedAt: now,
			Deadline:    now.Add(sched.RequestTimeout),
		})
	}
	return tasks
}
