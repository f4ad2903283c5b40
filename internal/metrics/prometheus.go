package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// PrometheusSink implements Sink using the Prometheus client library.
// All methods are non-blocking and fire-and-forget. Registration errors are
// logged but never propagated.
type PrometheusSink struct {
	// Scheduler
	ticksTotal       prometheus.Counter
	tickErrorsTotal  prometheus.Counter
	tickSkippedTotal *prometheus.CounterVec
	triggeredTotal   prometheus.Counter
	tickDuration     prometheus.Histogram

	// Dispatcher
	taskOutcomesTotal *prometheus.CounterVec
	tasksInFlight     prometheus.Gauge

	// Notifications
	pushSentTotal     *prometheus.CounterVec
	pushDuration      prometheus.Histogram
	pushOutcomesTotal *prometheus.CounterVec

	// Pool
	poolResources *prometheus.GaugeVec
	acquiresTotal *prometheus.CounterVec

	// Timeout worker
	timersArmed        prometheus.Gauge
	timeoutsFiredTotal prometheus.Counter
	cleanupsWonTotal   prometheus.Counter

	// Connect events
	connectsTotal *prometheus.CounterVec

	// Batch bus
	batchBuffer     prometheus.Gauge
	emitErrorsTotal prometheus.Counter

	// Sweeper
	sweepExpiredTotal prometheus.Counter
	sweepRearmedTotal prometheus.Counter

	// Leader election
	leaderStatus        prometheus.Gauge
	leaderAcquiredTotal prometheus.Counter
	leaderLostTotal     *prometheus.CounterVec
}

// NewPrometheusSink creates a new Prometheus metrics sink. Metrics that fail
// to register keep working as unexported collectors.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	s := &PrometheusSink{
		ticksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "swabbr_scheduler_ticks_total",
			Help: "Total number of scheduler ticks processed.",
		}),
		tickErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "swabbr_scheduler_tick_errors_total",
			Help: "Total number of abandoned ticks (schedule enumeration failed).",
		}),
		tickSkippedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "swabbr_scheduler_tick_skipped_total",
			Help: "Total number of skipped ticks.",
		}, []string{"reason"}),
		triggeredTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "swabbr_scheduler_triggers_total",
			Help: "Total number of vlog-request tasks emitted.",
		}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "swabbr_scheduler_tick_duration_seconds",
			Help:    "Duration of each scheduler tick in seconds.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		}),
		taskOutcomesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "swabbr_dispatch_task_outcomes_total",
			Help: "Total number of dispatched task outcomes.",
		}, []string{"outcome"}),
		tasksInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "swabbr_dispatch_tasks_in_flight",
			Help: "Number of trigger tasks currently being processed.",
		}),
		pushSentTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "swabbr_push_sent_total",
			Help: "Total number of push gateway requests.",
		}, []string{"platform", "status_class"}),
		pushDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "swabbr_push_duration_seconds",
			Help:    "Push gateway request latency in seconds.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		pushOutcomesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "swabbr_push_outcomes_total",
			Help: "Total number of per-device push outcomes.",
		}, []string{"outcome"}),
		poolResources: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "swabbr_pool_resources",
			Help: "Livestream pool resources by state.",
		}, []string{"state"}),
		acquiresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "swabbr_pool_acquires_total",
			Help: "Total number of pool acquire outcomes.",
		}, []string{"outcome"}),
		timersArmed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "swabbr_timeout_timers_armed",
			Help: "Number of armed connect-timeout timers.",
		}),
		timeoutsFiredTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "swabbr_timeout_fired_total",
			Help: "Total number of connect timeouts that elapsed.",
		}),
		cleanupsWonTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "swabbr_timeout_cleanups_total",
			Help: "Total number of timers disarmed before the deadline.",
		}),
		connectsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "swabbr_connect_events_total",
			Help: "Total number of connect-event outcomes.",
		}, []string{"outcome"}),
		batchBuffer: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "swabbr_batchbus_buffer_size",
			Help: "Current number of batches buffered on the bus.",
		}),
		emitErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "swabbr_batchbus_emit_errors_total",
			Help: "Total number of batch emit errors.",
		}),
		sweepExpiredTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "swabbr_sweeper_expired_total",
			Help: "Total number of requests expired by the sweeper.",
		}),
		sweepRearmedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "swabbr_sweeper_rearmed_total",
			Help: "Total number of timers re-armed by the sweeper.",
		}),
		leaderStatus: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "swabbr_leader_status",
			Help: "1 when this instance holds the leader lock.",
		}),
		leaderAcquiredTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "swabbr_leader_acquired_total",
			Help: "Total number of times leadership was acquired.",
		}),
		leaderLostTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "swabbr_leader_lost_total",
			Help: "Total number of times leadership was lost.",
		}, []string{"reason"}),
	}

	register(reg, s.ticksTotal, "swabbr_scheduler_ticks_total")
	register(reg, s.tickErrorsTotal, "swabbr_scheduler_tick_errors_total")
	register(reg, s.tickSkippedTotal, "swabbr_scheduler_tick_skipped_total")
	register(reg, s.triggeredTotal, "swabbr_scheduler_triggers_total")
	register(reg, s.tickDuration, "swabbr_scheduler_tick_duration_seconds")
	register(reg, s.taskOutcomesTotal, "swabbr_dispatch_task_outcomes_total")
	register(reg, s.tasksInFlight, "swabbr_dispatch_tasks_in_flight")
	register(reg, s.pushSentTotal, "swabbr_push_sent_total")
	register(reg, s.pushDuration, "swabbr_push_duration_seconds")
	register(reg, s.pushOutcomesTotal, "swabbr_push_outcomes_total")
	register(reg, s.poolResources, "swabbr_pool_resources")
	register(reg, s.acquiresTotal, "swabbr_pool_acquires_total")
	register(reg, s.timersArmed, "swabbr_timeout_timers_armed")
	register(reg, s.timeoutsFiredTotal, "swabbr_timeout_fired_total")
	register(reg, s.cleanupsWonTotal, "swabbr_timeout_cleanups_total")
	register(reg, s.connectsTotal, "swabbr_connect_events_total")
	register(reg, s.batchBuffer, "swabbr_batchbus_buffer_size")
	register(reg, s.emitErrorsTotal, "swabbr_batchbus_emit_errors_total")
	register(reg, s.sweepExpiredTotal, "swabbr_sweeper_expired_total")
	register(reg, s.sweepRearmedTotal, "swabbr_sweeper_rearmed_total")
	register(reg, s.leaderStatus, "swabbr_leader_status")
	register(reg, s.leaderAcquiredTotal, "swabbr_leader_acquired_total")
	register(reg, s.leaderLostTotal, "swabbr_leader_lost_total")

	return s
}

func register(reg prometheus.Registerer, c prometheus.Collector, name string) {
	if err := reg.Register(c); err != nil {
		log.Warn().Err(err).Str("metric", name).Msg("metrics: registration failed")
	}
}

func (s *PrometheusSink) TickStarted() {
	s.ticksTotal.Inc()
}

func (s *PrometheusSink) TickCompleted(duration time.Duration, triggered int, err error) {
	s.tickDuration.Observe(duration.Seconds())
	s.triggeredTotal.Add(float64(triggered))
	if err != nil {
		s.tickErrorsTotal.Inc()
	}
}

func (s *PrometheusSink) TickSkipped(reason string) {
	s.tickSkippedTotal.WithLabelValues(reason).Inc()
}

func (s *PrometheusSink) TaskOutcome(outcome string) {
	s.taskOutcomesTotal.WithLabelValues(outcome).Inc()
}

func (s *PrometheusSink) TasksInFlightIncr() { s.tasksInFlight.Inc() }
func (s *PrometheusSink) TasksInFlightDecr() { s.tasksInFlight.Dec() }

func (s *PrometheusSink) PushSent(platform, statusClass string, duration time.Duration) {
	s.pushSentTotal.WithLabelValues(platform, statusClass).Inc()
	s.pushDuration.Observe(duration.Seconds())
}

func (s *PrometheusSink) PushOutcome(outcome string) {
	s.pushOutcomesTotal.WithLabelValues(outcome).Inc()
}

func (s *PrometheusSink) PoolSizeUpdate(total, free, reserved, inUse int) {
	s.poolResources.WithLabelValues("free").Set(float64(free))
	s.poolResources.WithLabelValues("reserved").Set(float64(reserved))
	s.poolResources.WithLabelValues("in_use").Set(float64(inUse))
}

func (s *PrometheusSink) AcquireOutcome(outcome string) {
	s.acquiresTotal.WithLabelValues(outcome).Inc()
}

func (s *PrometheusSink) TimersArmedUpdate(count int) {
	s.timersArmed.Set(float64(count))
}

func (s *PrometheusSink) TimeoutFired() { s.timeoutsFiredTotal.Inc() }
func (s *PrometheusSink) CleanupWon()   { s.cleanupsWonTotal.Inc() }

func (s *PrometheusSink) ConnectOutcome(outcome string) {
	s.connectsTotal.WithLabelValues(outcome).Inc()
}

func (s *PrometheusSink) BatchBufferUpdate(size int) {
	s.batchBuffer.Set(float64(size))
}

func (s *PrometheusSink) EmitError() { s.emitErrorsTotal.Inc() }

func (s *PrometheusSink) SweepCompleted(expired, rearmed int) {
	s.sweepExpiredTotal.Add(float64(expired))
	s.sweepRearmedTotal.Add(float64(rearmed))
}

func (s *PrometheusSink) LeaderStatusChanged(isLeader bool) {
	if isLeader {
		s.leaderStatus.Set(1)
	} else {
		s.leaderStatus.Set(0)
	}
}

func (s *PrometheusSink) LeaderAcquired() { s.leaderAcquiredTotal.Inc() }

func (s *PrometheusSink) LeaderLost(reason string) {
	s.leaderLostTotal.WithLabelValues(reason).Inc()
}
