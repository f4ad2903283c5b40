// Package pool maintains the bounded arena of provisionable livestream
// resources. All state transitions on a resource go through the manager's
// single lock; callers never see shared mutable state, only borrowed handles.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Laixer/Swabbr-Backend-sub003/internal/domain"
)

var (
	// ErrPoolExhausted is returned by Acquire when no free resource exists
	// and the pool is at its ceiling. Callers must not retry synchronously;
	// the user is skipped for this cycle.
	ErrPoolExhausted = errors.New("livestream pool exhausted")

	// ErrInvalidTransition is returned when a handle is not in the state the
	// requested transition expects (e.g. MarkInUse after a timeout already
	// released the resource).
	ErrInvalidTransition = errors.New("invalid resource state transition")
)

// Provider is the external streaming-provider boundary. The pool only drives
// resource lifecycle through it and never sees protocol details.
type Provider interface {
	Provision(ctx context.Context) (string, error)
	Teardown(ctx context.Context, livestreamID string) error
}

// MetricsSink records pool gauges. Implementations must not block.
type MetricsSink interface {
	PoolSizeUpdate(total, free, reserved, inUse int)
	AcquireOutcome(outcome string)
}

// Acquire outcomes for MetricsSink.AcquireOutcome.
const (
	AcquireOutcomeReserved    = "reserved"
	AcquireOutcomeProvisioned = "provisioned"
	AcquireOutcomeExhausted   = "exhausted"
)

// Handle is a borrowed reference to a reserved or in-use resource.
// It carries no authority beyond the identifier; ownership stays with the pool.
type Handle struct {
	LivestreamID string
}

type resource struct {
	state       domain.ResourceState
	reservedAt  time.Time
	reservedFor uuid.UUID
}

// Config holds pool sizing.
type Config struct {
	// MaxSize is the provisioning ceiling. Acquire grows the pool on demand
	// up to this many resources before failing with ErrPoolExhausted.
	MaxSize int

	// ProvisionMaxElapsed bounds the retry window for one provider
	// provisioning call. Default 30s.
	ProvisionMaxElapsed time.Duration
}

// Manager owns the resource arena.
type Manager struct {
	mu        sync.Mutex
	resources map[string]*resource

	// growth counts in-flight on-demand provisioning so concurrent Acquire
	// calls cannot overshoot MaxSize while a provider call is in progress.
	growth int

	config   Config
	provider Provider
	clock    func() time.Time
	metrics  MetricsSink
}

// New creates a Manager with an empty arena. Call ScaleTo to pre-provision.
func New(config Config, provider Provider) *Manager {
	if config.ProvisionMaxElapsed == 0 {
		config.ProvisionMaxElapsed = 30 * time.Second
	}
	return &Manager{
		resources: make(map[string]*resource),
		config:    config,
		provider:  provider,
		clock:     time.Now,
	}
}

// WithMetrics attaches a metrics sink to the manager.
func (m *Manager) WithMetrics(sink MetricsSink) *Manager {
	m.metrics = sink
	return m
}

// Acquire reserves one free resource for userID. If none is free and the
// pool is under its ceiling, one resource is provisioned on demand; the
// provider call happens outside the arena lock. Acquire never waits for a
// resource to become free.
func (m *Manager) Acquire(ctx context.Context, userID uuid.UUID) (Handle, error) {
	if h, ok := m.tryReserve(userID); ok {
		m.recordAcquire(AcquireOutcomeReserved)
		return h, nil
	}

	if !m.reserveGrowthSlot() {
		m.recordAcquire(AcquireOutcomeExhausted)
		return Handle{}, ErrPoolExhausted
	}

	id, err := m.provision(ctx)
	if err != nil {
		m.releaseGrowthSlot()
		m.recordAcquire(AcquireOutcomeExhausted)
		return Handle{}, fmt.Errorf("provision livestream: %w", err)
	}

	m.mu.Lock()
	m.resources[id] = &resource{
		state:       domain.ResourceStateReserved,
		reservedAt:  m.clock().UTC(),
		reservedFor: userID,
	}
	m.growth--
	m.mu.Unlock()

	m.recordAcquire(AcquireOutcomeProvisioned)
	m.publishSize()
	return Handle{LivestreamID: id}, nil
}

func (m *Manager) tryReserve(userID uuid.UUID) (Handle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, r := range m.resources {
		if r.state != domain.ResourceStateFree {
			continue
		}
		r.state = domain.ResourceStateReserved
		r.reservedAt = m.clock().UTC()
		r.reservedFor = userID
		return Handle{LivestreamID: id}, true
	}
	return Handle{}, false
}

func (m *Manager) reserveGrowthSlot() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.resources)+m.growth >= m.config.MaxSize {
		return false
	}
	m.growth++
	return true
}

func (m *Manager) releaseGrowthSlot() {
	m.mu.Lock()
	m.growth--
	m.mu.Unlock()
}

// MarkInUse transitions a reserved resource to in-use when the user connects.
func (m *Manager) MarkInUse(h Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.resources[h.LivestreamID]
	if !ok {
		return fmt.Errorf("livestream %s: %w", h.LivestreamID, ErrInvalidTransition)
	}
	if r.state != domain.ResourceStateReserved {
		return fmt.Errorf("livestream %s in state %s: %w", h.LivestreamID, r.state, ErrInvalidTransition)
	}
	r.state = domain.ResourceStateInUse
	return nil
}

// Release returns a resource to the free state regardless of its prior
// state. Releasing an already-free or unknown resource is a no-op; the
// timeout path and the completion path may both race to release the same
// handle.
func (m *Manager) Release(h Handle) {
	m.mu.Lock()
	r, ok := m.resources[h.LivestreamID]
	if ok && r.state != domain.ResourceStateFree {
		r.state = domain.ResourceStateFree
		r.reservedAt = time.Time{}
		r.reservedFor = uuid.Nil
	}
	m.mu.Unlock()

	m.publishSize()
}

// ScaleTo grows or shrinks the pool toward targetSize. Shrinking removes
// only free resources and may under-shoot the target until in-flight
// sessions finish. Returns the resulting pool size.
func (m *Manager) ScaleTo(ctx context.Context, targetSize int) (int, error) {
	for {
		m.mu.Lock()
		total := len(m.resources)
		m.mu.Unlock()
		if total >= targetSize {
			break
		}

		id, err := m.provision(ctx)
		if err != nil {
			return m.Size(), fmt.Errorf("scale up: %w", err)
		}

		m.mu.Lock()
		m.resources[id] = &resource{state: domain.ResourceStateFree}
		m.mu.Unlock()
	}

	var removed []string
	m.mu.Lock()
	for id, r := range m.resources {
		if len(m.resources) <= targetSize {
			break
		}
		if r.state != domain.ResourceStateFree {
			continue
		}
		delete(m.resources, id)
		removed = append(removed, id)
	}
	total := len(m.resources)
	m.mu.Unlock()

	for _, id := range removed {
		if err := m.provider.Teardown(ctx, id); err != nil {
			log.Warn().Err(err).Str("livestream_id", id).Msg("pool: teardown failed")
		}
	}

	m.publishSize()
	return total, nil
}

// Size returns the current number of resources in the arena.
func (m *Manager) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.resources)
}

// Snapshot returns a copy of every resource record, for observability.
func (m *Manager) Snapshot() []domain.StreamResource {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.StreamResource, 0, len(m.resources))
	for id, r := range m.resources {
		out = append(out, domain.StreamResource{
			LivestreamID: id,
			State:        r.state,
			ReservedAt:   r.reservedAt,
			ReservedFor:  r.reservedFor,
		})
	}
	return out
}

func (m *Manager) provision(ctx context.Context) (string, error) {
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = m.config.ProvisionMaxElapsed

	var id string
	op := func() error {
		var err error
		id, err = m.provider.Provision(ctx)
		return err
	}
	if err := backoff.Retry(op, backoff.WithContext(policy, ctx)); err != nil {
		return "", err
	}
	return id, nil
}

func (m *Manager) recordAcquire(outcome string) {
	if m.metrics != nil {
		m.metrics.AcquireOutcome(outcome)
	}
}

func (m *Manager) publishSize() {
	if m.metrics == nil {
		return
	}

	m.mu.Lock()
	total := len(m.resources)
	var free, reserved, inUse int
	for _, r := range m.resources {
		switch r.state {
		case domain.ResourceStateFree:
			free++
		case domain.ResourceStateReserved:
			reserved++
		case domain.ResourceStateInUse:
			inUse++
		}
	}
	m.mu.Unlock()

	m.metrics.PoolSizeUpdate(total, free, reserved, inUse)
}
