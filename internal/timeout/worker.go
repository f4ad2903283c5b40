// Package timeout tracks the connect deadline of each in-flight livestream
// request. Timers are in-memory and best-effort; the sweeper re-arms them
// from persisted deadlines after a restart.
package timeout

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrAlreadyArmed is returned when Start is called twice for the same
// livestream without an intervening Cleanup. Callers must clean up first;
// there is no silent overwrite.
var ErrAlreadyArmed = errors.New("timeout already armed for livestream")

// ExpireFunc is invoked exactly once when a deadline elapses without the
// timer having been cleaned up.
type ExpireFunc func(livestreamID string)

// MetricsSink records timer events. Implementations must not block.
type MetricsSink interface {
	TimersArmedUpdate(count int)
	TimeoutFired()
	CleanupWon()
}

// Worker arms one-shot deadline timers keyed by livestream ID.
//
// The timers map entry is the single exactly-once guard: whichever of
// {Cleanup, timer fire} removes the entry first wins, the other is a no-op.
type Worker struct {
	mu     sync.Mutex
	timers map[string]*time.Timer

	onExpire ExpireFunc
	metrics  MetricsSink
}

// New creates a Worker that calls onExpire when a deadline elapses.
func New(onExpire ExpireFunc) *Worker {
	return &Worker{
		timers:   make(map[string]*time.Timer),
		onExpire: onExpire,
	}
}

// WithMetrics attaches a metrics sink to the worker.
func (w *Worker) WithMetrics(sink MetricsSink) *Worker {
	w.metrics = sink
	return w
}

// Start arms the deadline timer for livestreamID.
func (w *Worker) Start(livestreamID string, delay time.Duration) error {
	w.mu.Lock()
	if _, exists := w.timers[livestreamID]; exists {
		w.mu.Unlock()
		return fmt.Errorf("livestream %s: %w", livestreamID, ErrAlreadyArmed)
	}
	w.timers[livestreamID] = time.AfterFunc(delay, func() {
		w.fire(livestreamID)
	})
	armed := len(w.timers)
	w.mu.Unlock()

	w.publishArmed(armed)
	return nil
}

// Cleanup cancels the timer for livestreamID if still pending and reports
// whether it was the one to disarm it. Cleaning an already-fired or
// already-cleaned timer is a no-op.
func (w *Worker) Cleanup(livestreamID string) bool {
	w.mu.Lock()
	timer, ok := w.timers[livestreamID]
	if ok {
		delete(w.timers, livestreamID)
		timer.Stop()
	}
	armed := len(w.timers)
	w.mu.Unlock()

	if ok {
		if w.metrics != nil {
			w.metrics.CleanupWon()
		}
		w.publishArmed(armed)
	}
	return ok
}

// ArmedCount returns the number of pending timers.
func (w *Worker) ArmedCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.timers)
}

// StopAll disarms every pending timer without firing. Used on shutdown;
// persisted deadlines make the timers recoverable.
func (w *Worker) StopAll() {
	w.mu.Lock()
	for id, timer := range w.timers {
		timer.Stop()
		delete(w.timers, id)
	}
	w.mu.Unlock()

	w.publishArmed(0)
}

func (w *Worker) fire(livestreamID string) {
	w.mu.Lock()
	_, pending := w.timers[livestreamID]
	if pending {
		delete(w.timers, livestreamID)
	}
	armed := len(w.timers)
	w.mu.Unlock()

	if !pending {
		// Cleanup raced the timer and won.
		return
	}

	if w.metrics != nil {
		w.metrics.TimeoutFired()
	}
	w.publishArmed(armed)
	w.onExpire(livestreamID)
}

func (w *Worker) publishArmed(count int) {
	if w.metrics != nil {
		w.metrics.TimersArmedUpdate(count)
	}
}
