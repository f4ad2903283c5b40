package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Laixer/Swabbr-Backend-sub003/internal/analytics"
	"github.com/Laixer/Swabbr-Backend-sub003/internal/api"
	"github.com/Laixer/Swabbr-Backend-sub003/internal/circuitbreaker"
	"github.com/Laixer/Swabbr-Backend-sub003/internal/config"
	"github.com/Laixer/Swabbr-Backend-sub003/internal/dispatch"
	"github.com/Laixer/Swabbr-Backend-sub003/internal/domain"
	"github.com/Laixer/Swabbr-Backend-sub003/internal/leaderelection"
	"github.com/Laixer/Swabbr-Backend-sub003/internal/metrics"
	"github.com/Laixer/Swabbr-Backend-sub003/internal/notification"
	"github.com/Laixer/Swabbr-Backend-sub003/internal/pool"
	"github.com/Laixer/Swabbr-Backend-sub003/internal/recurrence"
	"github.com/Laixer/Swabbr-Backend-sub003/internal/scheduler"
	"github.com/Laixer/Swabbr-Backend-sub003/internal/store/postgres"
	"github.com/Laixer/Swabbr-Backend-sub003/internal/sweeper"
	"github.com/Laixer/Swabbr-Backend-sub003/internal/timeout"
	"github.com/Laixer/Swabbr-Backend-sub003/internal/transport/channel"

	_ "github.com/lib/pq"
)

// Build-time variables set via -ldflags
var (
	version = "dev"
	commit  = "unknown"
)

const (
	exitSuccess       = 0
	exitRuntimeError  = 1
	exitInvalidConfig = 2
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(exitRuntimeError)
	}

	zerolog.TimeFieldFormat = time.RFC3339

	cmd := os.Args[1]

	switch cmd {
	case "serve":
		os.Exit(runServe())
	case "validate":
		os.Exit(runValidate())
	case "config":
		os.Exit(runConfig())
	case "version":
		os.Exit(runVersion())
	case "--help", "-h", "help":
		printUsage()
		os.Exit(exitSuccess)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(exitRuntimeError)
	}
}

func printUsage() {
	fmt.Println(`swabbrd - vlog trigger scheduler and livestream lifecycle service

Usage:
  swabbrd <command>

Commands:
  serve      Start the scheduler, dispatcher and HTTP API
  validate   Validate configuration (no connections made)
  config     Print effective configuration as JSON (secrets masked)
  version    Print version information

Environment Variables:
  SWABBR_DATABASE_URL           PostgreSQL connection string (required)
  SWABBR_PROVIDER_BASE_URL      Streaming provider base URL (required)
  SWABBR_PROVIDER_API_KEY       Streaming provider API key
  SWABBR_REDIS_ADDR             Redis address for analytics (optional)
  SWABBR_HTTP_ADDR              HTTP server address (default: ":8080")
  SWABBR_TICK_INTERVAL          Scheduler tick interval (default: "1m")

  SWABBR_DISPATCH_MAX_PARALLEL  Max concurrent tasks per batch (default: "8")
  SWABBR_BATCH_BUFFER_SIZE      Batch bus buffer size (default: "16")

  SWABBR_POOL_MAX_SIZE          Livestream pool ceiling (default: "10")
  SWABBR_POOL_INITIAL_SIZE      Resources provisioned at startup (default: "2")
  SWABBR_POOL_PROVISION_WINDOW  Retry window per provisioning call (default: "30s")

  SWABBR_PUSH_GATEWAY_FCM       FCM push gateway URL
  SWABBR_PUSH_GATEWAY_APNS      APNS push gateway URL
  SWABBR_PUSH_SECRET            HMAC secret for push payloads
  SWABBR_PUSH_TIMEOUT           Push gateway request timeout (default: "10s")

  SWABBR_BREAKER_THRESHOLD      Failures before a gateway circuit opens, 0 disables (default: "5")
  SWABBR_BREAKER_COOLDOWN       Open-circuit probe delay (default: "2m")

  SWABBR_SWEEP_INTERVAL         Timeout sweep interval (default: "1m")
  SWABBR_SWEEP_BATCH_SIZE       Max pending requests per sweep (default: "100")

  SWABBR_METRICS_ENABLED        Enable Prometheus metrics (default: "true")
  SWABBR_METRICS_PATH           Metrics endpoint path (default: "/metrics")

  SWABBR_DB_MAX_OPEN_CONNS      Max open database connections (default: "25")
  SWABBR_DB_MAX_IDLE_CONNS      Max idle database connections (default: "5")
  SWABBR_DB_CONN_MAX_LIFETIME   Max connection lifetime (default: "30m")
  SWABBR_DB_CONN_MAX_IDLE_TIME  Max connection idle time (default: "5m")

  SWABBR_HTTP_SHUTDOWN_TIMEOUT  Graceful HTTP shutdown timeout (default: "10s")

  SWABBR_LEADER_ENABLED         Enable advisory-lock leader election (default: "false")
  SWABBR_LEADER_LOCK_KEY        Advisory lock key shared by all instances (default: "728311")
  SWABBR_LEADER_RETRY_INTERVAL  Follower lock retry interval (default: "5s")
  SWABBR_LEADER_HEARTBEAT_INTERVAL  Leader connection heartbeat (default: "2s")`)
}

func runServe() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return exitInvalidConfig
	}
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return exitInvalidConfig
	}

	// Connect to PostgreSQL
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Error().Err(err).Msg("swabbrd: failed to open database")
		return exitRuntimeError
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	db.SetConnMaxLifetime(cfg.DBConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.DBConnMaxIdleTime)

	log.Info().
		Int("max_open", cfg.DBMaxOpenConns).
		Int("max_idle", cfg.DBMaxIdleConns).
		Dur("max_lifetime", cfg.DBConnMaxLifetime).
		Msg("swabbrd: db pool configured")

	if err := db.Ping(); err != nil {
		log.Error().Err(err).Msg("swabbrd: failed to connect to database")
		return exitRuntimeError
	}

	store := postgres.New(db)

	// Initialize metrics sink (optional)
	var metricsSink *metrics.PrometheusSink
	if cfg.MetricsEnabled {
		metricsSink = metrics.NewPrometheusSink(prometheus.DefaultRegisterer)
		log.Info().Str("path", cfg.MetricsPath).Msg("swabbrd: metrics enabled")
	} else {
		log.Info().Msg("swabbrd: SWABBR_METRICS_ENABLED is false; metrics disabled")
	}

	// Livestream pool against the streaming provider
	provider := pool.NewHTTPProvider(cfg.ProviderBaseURL, cfg.ProviderAPIKey, cfg.PoolProvisionWindow)
	poolMgr := pool.New(pool.Config{
		MaxSize:             cfg.PoolMaxSize,
		ProvisionMaxElapsed: cfg.PoolProvisionWindow,
	}, provider)
	if metricsSink != nil {
		poolMgr = poolMgr.WithMetrics(metricsSink)
	}

	scaleCtx, scaleCancel := context.WithTimeout(context.Background(), cfg.PoolProvisionWindow)
	size, err := poolMgr.ScaleTo(scaleCtx, cfg.PoolInitialSize)
	scaleCancel()
	if err != nil {
		// The pool grows on demand; a short initial pool is not fatal.
		log.Warn().Err(err).Int("size", size).Int("target", cfg.PoolInitialSize).
			Msg("swabbrd: initial pool provisioning incomplete")
	} else {
		log.Info().Int("size", size).Msg("swabbrd: livestream pool provisioned")
	}

	gateways := map[domain.Platform]string{}
	if cfg.PushGatewayFCM != "" {
		gateways[domain.PlatformFCM] = cfg.PushGatewayFCM
	}
	if cfg.PushGatewayAPNS != "" {
		gateways[domain.PlatformAPNS] = cfg.PushGatewayAPNS
	}
	sender := notification.NewHTTPSender(gateways, cfg.PushSecret, cfg.PushTimeout)

	// Dispatch manager and its connect-timeout worker. The worker needs the
	// expire handler at construction, hence the two-step wiring.
	mgr := dispatch.New(dispatch.Config{MaxParallel: cfg.DispatchMaxParallel}, store, poolMgr, sender)
	worker := timeout.New(mgr.HandleExpire)
	if metricsSink != nil {
		worker = worker.WithMetrics(metricsSink)
		mgr = mgr.WithMetrics(metricsSink)
	}
	mgr = mgr.WithTimeouts(worker)

	if cfg.BreakerThreshold > 0 {
		mgr = mgr.WithBreaker(circuitbreaker.New(cfg.BreakerThreshold, cfg.BreakerCooldown))
	} else {
		log.Info().Msg("swabbrd: SWABBR_BREAKER_THRESHOLD is 0; circuit breaker disabled")
	}

	// Wire analytics if Redis is configured
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
		})
		mgr = mgr.WithAnalytics(analytics.NewRedisSink(redisClient, cfg.AnalyticsRetention))
		log.Info().Str("redis", cfg.RedisAddr).Msg("swabbrd: analytics enabled")
	} else {
		log.Info().Msg("swabbrd: SWABBR_REDIS_ADDR not set; analytics disabled")
	}

	// Batch bus between scheduler and dispatcher
	var busOpts []channel.Option
	if metricsSink != nil {
		busOpts = append(busOpts, channel.WithMetrics(metricsSink))
	}
	bus := channel.NewBatchBus(cfg.BatchBufferSize, busOpts...)

	sched := scheduler.New(
		scheduler.Config{TickInterval: cfg.TickInterval},
		store,
		recurrence.NewEvaluator(),
		bus,
	)
	if metricsSink != nil {
		sched = sched.WithMetrics(metricsSink)
	}

	swp := sweeper.New(sweeper.Config{
		Interval:  cfg.SweepInterval,
		BatchSize: cfg.SweepBatchSize,
	}, store, mgr, worker)
	if metricsSink != nil {
		swp = swp.WithMetrics(metricsSink)
	}

	// HTTP surface: lifecycle callbacks, schedule and device management,
	// health and optionally metrics, all on one listener.
	apiHandler := api.NewHandler(store, mgr, poolMgr).WithHealthChecker(db)
	mux := http.NewServeMux()
	if metricsSink != nil {
		mux.Handle(cfg.MetricsPath, promhttp.Handler())
	}
	mux.Handle("/", apiHandler)

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: mux,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("swabbrd: http server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("swabbrd: http server error")
		}
	}()

	// The dispatcher runs on every instance; the scheduler and sweeper are
	// leader duties when election is enabled. Separate contexts give an
	// ordered shutdown: stop emitting first, drain last.
	dutiesCtx, cancelDuties := context.WithCancel(context.Background())
	dispatchCtx, cancelDispatch := context.WithCancel(context.Background())

	var dutiesWg sync.WaitGroup
	var electorWg sync.WaitGroup
	var dispatchWg sync.WaitGroup

	dispatchWg.Add(1)
	go func() {
		defer dispatchWg.Done()
		mgr.Run(dispatchCtx, bus.Channel())
	}()

	startDuties := func(ctx context.Context) {
		dutiesWg.Add(2)
		go func() {
			defer dutiesWg.Done()
			if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("swabbrd: scheduler stopped with error")
			}
		}()
		go func() {
			defer dutiesWg.Done()
			swp.Run(ctx)
		}()
	}

	if cfg.LeaderEnabled {
		elector := leaderelection.New(
			db,
			cfg.LeaderLockKey,
			cfg.LeaderRetryInterval,
			cfg.LeaderHeartbeatInterval,
			startDuties,
			dutiesWg.Wait,
		)
		if metricsSink != nil {
			elector = elector.WithMetrics(metricsSink)
		}
		electorWg.Add(1)
		go func() {
			defer electorWg.Done()
			elector.Run(dutiesCtx)
		}()
		log.Info().Int64("lock_key", cfg.LeaderLockKey).Msg("swabbrd: leader election enabled")
	} else {
		startDuties(dutiesCtx)
	}

	log.Info().
		Str("version", version).
		Dur("tick", cfg.TickInterval).
		Str("http", cfg.HTTPAddr).
		Msg("swabbrd: started")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	received := <-sig

	log.Info().Str("signal", received.String()).Msg("swabbrd: shutting down")

	// Phase 1: stop the scheduler and sweeper so no new batches are emitted
	log.Info().Msg("swabbrd: stopping scheduler and sweeper")
	cancelDuties()
	electorWg.Wait()
	dutiesWg.Wait()

	// Phase 2: stop the dispatcher; it drains buffered batches first
	log.Info().Msg("swabbrd: stopping dispatcher (draining batches)")
	cancelDispatch()
	dispatchWg.Wait()

	// Phase 3: disarm pending timers; persisted deadlines let the sweeper
	// re-arm them on the next start
	worker.StopAll()

	// Phase 4: stop the HTTP server with graceful shutdown
	log.Info().Msg("swabbrd: stopping http server")
	httpShutdownCtx, httpShutdownCancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
	defer httpShutdownCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		log.Error().Err(err).Msg("swabbrd: http server shutdown error")
	}

	log.Info().Msg("swabbrd: stopped")
	return exitSuccess
}

func runValidate() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitInvalidConfig
	}

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitInvalidConfig
	}

	fmt.Println("configuration valid")
	return exitSuccess
}

func runConfig() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitInvalidConfig
	}

	data, err := cfg.MaskedJSON()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to marshal config: %v\n", err)
		return exitRuntimeError
	}

	fmt.Println(string(data))
	return exitSuccess
}

func runVersion() int {
	fmt.Printf("swabbrd version %s (commit: %s)\n", version, commit)
	return exitSuccess
}
