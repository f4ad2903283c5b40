package metrics

import "time"

// NoopSink is a no-op implementation of Sink.
// Used when metrics are disabled to avoid nil checks.
type NoopSink struct{}

// NewNoopSink returns a no-op metrics sink.
func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (n *NoopSink) TickStarted()                                                   {}
func (n *NoopSink) TickCompleted(duration time.Duration, triggered int, err error) {}
func (n *NoopSink) TickSkipped(reason string)                                      {}
func (n *NoopSink) TaskOutcome(outcome string)                                     {}
func (n *NoopSink) TasksInFlightIncr()                                             {}
func (n *NoopSink) TasksInFlightDecr()                                             {}
func (n *NoopSink) PushSent(platform, statusClass string, d time.Duration)         {}
func (n *NoopSink) PushOutcome(outcome string)                                     {}
func (n *NoopSink) PoolSizeUpdate(total, free, reserved, inUse int)                {}
func (n *NoopSink) AcquireOutcome(outcome string)                                  {}
func (n *NoopSink) TimersArmedUpdate(count int)                                    {}
func (n *NoopSink) TimeoutFired()                                                  {}
func (n *NoopSink) CleanupWon()                                                    {}
func (n *NoopSink) ConnectOutcome(outcome string)                                  {}
func (n *NoopSink) BatchBufferUpdate(size int)                                     {}
func (n *NoopSink) EmitError()                                                     {}
func (n *NoopSink) SweepCompleted(expired, rearmed int)                            {}
func (n *NoopSink) LeaderStatusChanged(isLeader bool)                              {}
func (n *NoopSink) LeaderAcquired()                                                {}
func (n *NoopSink) LeaderLost(reason string)                                       {}
