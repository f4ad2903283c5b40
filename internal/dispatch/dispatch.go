// Package dispatch turns trigger batches into live vlog-record sessions:
// it reserves a livestream, persists the request, arms the connect timeout
// and pushes the record notification to the user's devices. It also owns
// the connect, complete and expire transitions of a session.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/Laixer/Swabbr-Backend-sub003/internal/domain"
	"github.com/Laixer/Swabbr-Backend-sub003/internal/metrics"
	"github.com/Laixer/Swabbr-Backend-sub003/internal/notification"
	"github.com/Laixer/Swabbr-Backend-sub003/internal/pool"
)

// ErrStateTransitionDenied is returned when a request-state update would
// leave a terminal state or skip the expected prior state.
var ErrStateTransitionDenied = errors.New("state transition denied: request not in expected state")

// ErrRequestNotFound is returned when no request exists for a livestream.
var ErrRequestNotFound = errors.New("no vlog request for livestream")

type Store interface {
	InsertVlogRequest(ctx context.Context, req domain.VlogRequest) error
	GetRequestByLivestream(ctx context.Context, livestreamID string) (domain.VlogRequest, error)
	// TransitionRequestState moves a request from one state to another.
	// Implementations MUST apply the from-state as a guard and return
	// ErrStateTransitionDenied when the request is not in it. This is what
	// keeps the timeout path and the connect path from both winning.
	TransitionRequestState(ctx context.Context, requestID uuid.UUID, from, to domain.RequestState) error
	GetDeviceRegistrations(ctx context.Context, userID uuid.UUID) ([]domain.DeviceRegistration, error)
}

// Pool is the livestream arena the manager borrows resources from.
type Pool interface {
	Acquire(ctx context.Context, userID uuid.UUID) (pool.Handle, error)
	MarkInUse(h pool.Handle) error
	Release(h pool.Handle)
}

// Timeouts arms and disarms the connect-deadline timers.
type Timeouts interface {
	Start(livestreamID string, delay time.Duration) error
	Cleanup(livestreamID string) bool
}

// Breaker sheds pushes to a platform gateway that keeps failing.
type Breaker interface {
	Allow(platform domain.Platform) error
	RecordSuccess(platform domain.Platform)
	RecordFailure(platform domain.Platform)
}

// AnalyticsSink records usage counters as a best-effort side effect.
type AnalyticsSink interface {
	TriggerFired(ctx context.Context, userID uuid.UUID)
	NotificationSent(ctx context.Context, kind domain.NotificationKind, platform domain.Platform)
	RequestConnected(ctx context.Context)
	RequestTimedOut(ctx context.Context)
}

// MetricsSink records dispatch metrics. Implementations must not block.
type MetricsSink interface {
	TaskOutcome(outcome string)
	TasksInFlightIncr()
	TasksInFlightDecr()
	PushSent(platform, statusClass string, duration time.Duration)
	PushOutcome(outcome string)
	ConnectOutcome(outcome string)
}

// Config holds dispatch configuration.
type Config struct {
	// MaxParallel bounds how many tasks of one batch run concurrently.
	// Default: 8.
	MaxParallel int
}

// Manager processes trigger batches and session lifecycle events.
type Manager struct {
	config    Config
	store     Store
	pool      Pool
	timeouts  Timeouts
	builder   *notification.Builder
	extractor *notification.Extractor
	sender    notification.Sender

	breaker   Breaker       // optional, nil = disabled
	analytics AnalyticsSink // optional, nil = disabled
	metrics   MetricsSink   // optional, nil = disabled

	clock func() time.Time
}

// New creates a Manager. Timeouts must be bound with WithTimeouts before
// the first batch; the timeout worker needs the manager's expire handler
// at construction, so the two are wired in two steps.
func New(config Config, store Store, p Pool, sender notification.Sender) *Manager {
	if config.MaxParallel == 0 {
		config.MaxParallel = 8
	}
	return &Manager{
		config:    config,
		store:     store,
		pool:      p,
		builder:   notification.NewBuilder(),
		extractor: notification.NewExtractor(),
		sender:    sender,
		clock:     time.Now,
	}
}

// WithTimeouts binds the connect-timeout worker.
func (m *Manager) WithTimeouts(t Timeouts) *Manager {
	m.timeouts = t
	return m
}

// WithBreaker attaches a per-platform circuit breaker.
func (m *Manager) WithBreaker(b Breaker) *Manager {
	m.breaker = b
	return m
}

// WithAnalytics attaches an analytics sink.
func (m *Manager) WithAnalytics(sink AnalyticsSink) *Manager {
	m.analytics = sink
	return m
}

// WithMetrics attaches a metrics sink.
func (m *Manager) WithMetrics(sink MetricsSink) *Manager {
	m.metrics = sink
	return m
}

// Run consumes batches from the channel until ctx is cancelled, then drains
// what is still buffered. Batches are processed one at a time; a slow batch
// delays the next minute's batch rather than overlapping it.
func (m *Manager) Run(ctx context.Context, ch <-chan domain.TriggerBatch) {
	for {
		select {
		case <-ctx.Done():
			m.drain(ch)
			return
		case batch := <-ch:
			m.DispatchBatch(ctx, batch)
		}
	}
}

// DrainTimeout is the maximum time to spend on buffered batches during
// shutdown.
const DrainTimeout = 30 * time.Second

func (m *Manager) drain(ch <-chan domain.TriggerBatch) {
	drainCtx, cancel := context.WithTimeout(context.Background(), DrainTimeout)
	defer cancel()

	count := 0
	for {
		select {
		case <-drainCtx.Done():
			log.Warn().Int("batches", count).Msg("dispatch: drain timeout")
			return
		case batch, ok := <-ch:
			if !ok {
				log.Info().Int("batches", count).Msg("dispatch: drain complete")
				return
			}
			m.DispatchBatch(drainCtx, batch)
			count++
		default:
			if count > 0 {
				log.Info().Int("batches", count).Msg("dispatch: drain complete")
			}
			return
		}
	}
}

// DispatchBatch processes every task of a batch with bounded parallelism.
// A failing task never cancels its siblings; each task resolves on its own.
func (m *Manager) DispatchBatch(ctx context.Context, batch domain.TriggerBatch) {
	start := m.clock()

	var g errgroup.Group
	g.SetLimit(m.config.MaxParallel)
	for _, task := range batch.Tasks {
		task := task
		g.Go(func() error {
			m.processTask(ctx, task)
			return nil
		})
	}
	g.Wait()

	log.Info().
		Time("minute", batch.Minute).
		Int("tasks", len(batch.Tasks)).
		Dur("elapsed", m.clock().Sub(start)).
		Msg("dispatch: batch processed")
}

// processTask drives one user's trigger: reserve a livestream, persist the
// request, arm the deadline and notify the user's devices. Errors are
// terminal for this task only.
func (m *Manager) processTask(ctx context.Context, task domain.TriggerTask) {
	if m.metrics != nil {
		m.metrics.TasksInFlightIncr()
		defer m.metrics.TasksInFlightDecr()
	}

	handle, err := m.pool.Acquire(ctx, task.UserID)
	if err != nil {
		if errors.Is(err, pool.ErrPoolExhausted) {
			log.Warn().Str("user_id", task.UserID.String()).Msg("dispatch: pool exhausted, user skipped")
			m.recordTask(metrics.TaskOutcomePoolExhausted)
			return
		}
		log.Error().Err(err).Str("user_id", task.UserID.String()).Msg("dispatch: acquire failed")
		m.recordTask(metrics.TaskOutcomeFailed)
		return
	}

	req := domain.VlogRequest{
		ID:           uuid.New(),
		UserID:       task.UserID,
		LivestreamID: handle.LivestreamID,
		RequestedAt:  task.RequestedAt,
		Deadline:     task.Deadline,
		State:        domain.RequestStateRequested,
	}
	if err := m.store.InsertVlogRequest(ctx, req); err != nil {
		log.Error().Err(err).Str("user_id", task.UserID.String()).Msg("dispatch: persist request failed")
		m.pool.Release(handle)
		m.recordTask(metrics.TaskOutcomeFailed)
		return
	}

	if m.analytics != nil {
		m.analytics.TriggerFired(ctx, task.UserID)
	}

	delay := task.Deadline.Sub(m.clock().UTC())
	if err := m.timeouts.Start(handle.LivestreamID, delay); err != nil {
		log.Error().Err(err).Str("livestream_id", handle.LivestreamID).Msg("dispatch: arm timeout failed")
		if terr := m.store.TransitionRequestState(ctx, req.ID, domain.RequestStateRequested, domain.RequestStateCancelled); terr != nil {
			log.Error().Err(terr).Str("request_id", req.ID.String()).Msg("dispatch: cancel request failed")
		}
		m.pool.Release(handle)
		m.recordTask(metrics.TaskOutcomeFailed)
		return
	}

	payload := m.builder.RecordVlogRequest(task.UserID, handle.LivestreamID, task.Deadline.Sub(task.RequestedAt))
	m.notify(ctx, payload)

	m.recordTask(metrics.TaskOutcomeNotified)
	log.Info().
		Str("user_id", task.UserID.String()).
		Str("livestream_id", handle.LivestreamID).
		Time("deadline", task.Deadline).
		Msg("dispatch: vlog request live")
}

// notify pushes the payload to each of the user's registered devices. Push
// failures never undo the request; the connect timeout reaps sessions the
// user never joins.
func (m *Manager) notify(ctx context.Context, payload domain.NotificationPayload) {
	regs, err := m.store.GetDeviceRegistrations(ctx, payload.TargetUserID)
	if err != nil {
		log.Error().Err(err).Str("user_id", payload.TargetUserID.String()).Msg("dispatch: device lookup failed")
		m.recordPush(metrics.PushOutcomeDropped)
		return
	}
	if len(regs) == 0 {
		log.Warn().Str("user_id", payload.TargetUserID.String()).Msg("dispatch: no registered devices")
		return
	}

	for _, reg := range regs {
		if m.breaker != nil {
			if err := m.breaker.Allow(reg.Platform); err != nil {
				m.recordPush(metrics.PushOutcomeBreakerOpen)
				continue
			}
		}

		wire, err := m.extractor.Extract(reg.Platform, payload)
		if err != nil {
			log.Error().Err(err).Str("platform", string(reg.Platform)).Msg("dispatch: extract failed")
			m.recordPush(metrics.PushOutcomeDropped)
			continue
		}

		result := m.sender.Send(ctx, reg.Platform, reg.Handle, wire)
		if m.metrics != nil {
			m.metrics.PushSent(string(reg.Platform), metrics.ClassifyStatus(result.StatusCode, result.Error), result.Duration)
		}

		if result.IsSuccess() {
			if m.breaker != nil {
				m.breaker.RecordSuccess(reg.Platform)
			}
			if m.analytics != nil {
				m.analytics.NotificationSent(ctx, payload.Kind, reg.Platform)
			}
			m.recordPush(metrics.PushOutcomeSent)
			continue
		}

		if m.breaker != nil {
			m.breaker.RecordFailure(reg.Platform)
		}
		log.Warn().
			Str("platform", string(reg.Platform)).
			Int("status", result.StatusCode).
			Err(result.Error).
			Msg("dispatch: push failed")
		m.recordPush(metrics.PushOutcomeDropped)
	}
}

// HandleConnect moves a session to connected when the user starts streaming.
// The persisted from-state guard decides the race against the timeout: a
// connect arriving after the deadline fired is rejected.
func (m *Manager) HandleConnect(ctx context.Context, livestreamID string) error {
	req, err := m.store.GetRequestByLivestream(ctx, livestreamID)
	if err != nil {
		m.recordConnect(metrics.ConnectOutcomeNotFound)
		return fmt.Errorf("livestream %s: %w", livestreamID, ErrRequestNotFound)
	}

	if err := m.store.TransitionRequestState(ctx, req.ID, domain.RequestStateRequested, domain.RequestStateConnected); err != nil {
		if errors.Is(err, ErrStateTransitionDenied) {
			log.Warn().Str("livestream_id", livestreamID).Str("state", string(req.State)).Msg("dispatch: connect rejected")
			m.recordConnect(metrics.ConnectOutcomeConflict)
			return err
		}
		return fmt.Errorf("transition to connected: %w", err)
	}

	m.timeouts.Cleanup(livestreamID)

	if err := m.pool.MarkInUse(pool.Handle{LivestreamID: livestreamID}); err != nil {
		// The persisted state already moved; the pool record is advisory.
		log.Error().Err(err).Str("livestream_id", livestreamID).Msg("dispatch: mark in-use failed")
	}

	if m.analytics != nil {
		m.analytics.RequestConnected(ctx)
	}
	m.recordConnect(metrics.ConnectOutcomeConnected)
	log.Info().Str("livestream_id", livestreamID).Str("user_id", req.UserID.String()).Msg("dispatch: user connected")
	return nil
}

// HandleComplete finishes a connected session and returns the livestream to
// the pool.
func (m *Manager) HandleComplete(ctx context.Context, livestreamID string) error {
	req, err := m.store.GetRequestByLivestream(ctx, livestreamID)
	if err != nil {
		return fmt.Errorf("livestream %s: %w", livestreamID, ErrRequestNotFound)
	}

	if err := m.store.TransitionRequestState(ctx, req.ID, domain.RequestStateConnected, domain.RequestStateCompleted); err != nil {
		if errors.Is(err, ErrStateTransitionDenied) {
			log.Warn().Str("livestream_id", livestreamID).Msg("dispatch: complete rejected")
			return err
		}
		return fmt.Errorf("transition to completed: %w", err)
	}

	m.pool.Release(pool.Handle{LivestreamID: livestreamID})
	log.Info().Str("livestream_id", livestreamID).Msg("dispatch: session completed")
	return nil
}

// expireTimeout bounds the storage work done from a timer callback.
const expireTimeout = 10 * time.Second

// HandleExpire is the timeout worker's expire callback. It times out the
// request and frees the livestream unless a connect already won the race.
func (m *Manager) HandleExpire(livestreamID string) {
	ctx, cancel := context.WithTimeout(context.Background(), expireTimeout)
	defer cancel()

	req, err := m.store.GetRequestByLivestream(ctx, livestreamID)
	if err != nil {
		// The resource may belong to a session that connected moments ago;
		// releasing it here would free a live stream. Leave it alone: if the
		// request really timed out it is still in requested state and the
		// sweeper retries the expire.
		log.Error().Err(err).Str("livestream_id", livestreamID).Msg("dispatch: expire lookup failed")
		return
	}

	if err := m.store.TransitionRequestState(ctx, req.ID, domain.RequestStateRequested, domain.RequestStateTimedOut); err != nil {
		if errors.Is(err, ErrStateTransitionDenied) {
			// Connect won; the session is live and keeps its resource.
			log.Debug().Str("livestream_id", livestreamID).Msg("dispatch: expire lost to connect")
			return
		}
		log.Error().Err(err).Str("livestream_id", livestreamID).Msg("dispatch: expire transition failed")
		return
	}

	m.pool.Release(pool.Handle{LivestreamID: livestreamID})
	if m.analytics != nil {
		m.analytics.RequestTimedOut(ctx)
	}
	log.Info().Str("livestream_id", livestreamID).Str("user_id", req.UserID.String()).Msg("dispatch: request timed out")
}

func (m *Manager) recordTask(outcome string) {
	if m.metrics != nil {
		m.metrics.TaskOutcome(outcome)
	}
}

func (m *Manager) recordPush(outcome string) {
	if m.metrics != nil {
		m.metrics.PushOutcome(outcome)
	}
}

func (m *Manager) recordConnect(outcome string) {
	if m.metrics != nil {
		m.metrics.ConnectOutcome(outcome)
	}
}
