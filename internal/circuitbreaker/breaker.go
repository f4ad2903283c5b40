// Package circuitbreaker sheds push deliveries to a platform gateway that
// keeps failing, instead of burning the connect window on dead sends.
package circuitbreaker

import (
	"errors"
	"sync"
	"time"

	"github.com/Laixer/Swabbr-Backend-sub003/internal/domain"
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

type state int

const (
	stateClosed state = iota
	stateOpen
	stateHalfOpen
)

type platformState struct {
	state               state
	consecutiveFailures int
	openedAt            time.Time
}

// Breaker tracks one circuit per push platform.
type Breaker struct {
	mu        sync.Mutex
	platforms map[domain.Platform]*platformState
	threshold int
	cooldown  time.Duration
}

// New creates a Breaker that opens after threshold consecutive failures and
// probes again after cooldown.
func New(threshold int, cooldown time.Duration) *Breaker {
	return &Breaker{
		platforms: make(map[domain.Platform]*platformState),
		threshold: threshold,
		cooldown:  cooldown,
	}
}

// Allow reports whether a send to platform may proceed. In half-open state
// a single probe is let through; further calls fail until the probe
// resolves the circuit.
func (b *Breaker) Allow(platform domain.Platform) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.platforms[platform]
	if !ok {
		return nil
	}

	switch s.state {
	case stateClosed:
		return nil
	case stateOpen:
		if time.Since(s.openedAt) >= b.cooldown {
			s.state = stateHalfOpen
			return nil
		}
		return ErrCircuitOpen
	case stateHalfOpen:
		return ErrCircuitOpen
	default:
		return nil
	}
}

// RecordSuccess closes the platform's circuit.
func (b *Breaker) RecordSuccess(platform domain.Platform) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.platforms[platform]
	if !ok {
		return
	}
	s.state = stateClosed
	s.consecutiveFailures = 0
}

// RecordFailure counts a failed send; the circuit opens at the threshold.
func (b *Breaker) RecordFailure(platform domain.Platform) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.platforms[platform]
	if !ok {
		s = &platformState{}
		b.platforms[platform] = s
	}

	s.consecutiveFailures++
	if s.consecutiveFailures >= b.threshold {
		s.state = stateOpen
		s.openedAt = time.Now()
	}
}
