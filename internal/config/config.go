// Package config loads service configuration from environment variables.
package config

import (
	"encoding/json"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the swabbrd service. Values are loaded
// from SWABBR_-prefixed environment variables.
type Config struct {
	DatabaseURL string `envconfig:"DATABASE_URL" json:"database_url"`
	RedisAddr   string `envconfig:"REDIS_ADDR" json:"redis_addr,omitempty"`
	HTTPAddr    string `envconfig:"HTTP_ADDR" default:":8080" json:"http_addr"`

	TickInterval time.Duration `envconfig:"TICK_INTERVAL" default:"1m" json:"tick_interval"`

	DispatchMaxParallel int `envconfig:"DISPATCH_MAX_PARALLEL" default:"8" json:"dispatch_max_parallel"`
	BatchBufferSize     int `envconfig:"BATCH_BUFFER_SIZE" default:"16" json:"batch_buffer_size"`

	// Livestream pool sizing. The pool never grows past PoolMaxSize; the
	// initial size is provisioned at startup.
	PoolMaxSize         int           `envconfig:"POOL_MAX_SIZE" default:"10" json:"pool_max_size"`
	PoolInitialSize     int           `envconfig:"POOL_INITIAL_SIZE" default:"2" json:"pool_initial_size"`
	PoolProvisionWindow time.Duration `envconfig:"POOL_PROVISION_WINDOW" default:"30s" json:"pool_provision_window"`

	// Streaming provider endpoint.
	ProviderBaseURL string `envconfig:"PROVIDER_BASE_URL" json:"provider_base_url"`
	ProviderAPIKey  string `envconfig:"PROVIDER_API_KEY" json:"provider_api_key"`

	// Push gateways per platform. An empty URL disables that platform.
	PushGatewayFCM  string        `envconfig:"PUSH_GATEWAY_FCM" json:"push_gateway_fcm,omitempty"`
	PushGatewayAPNS string        `envconfig:"PUSH_GATEWAY_APNS" json:"push_gateway_apns,omitempty"`
	PushSecret      string        `envconfig:"PUSH_SECRET" json:"push_secret,omitempty"`
	PushTimeout     time.Duration `envconfig:"PUSH_TIMEOUT" default:"10s" json:"push_timeout"`

	// BreakerThreshold: 0 disables the circuit breaker.
	BreakerThreshold int           `envconfig:"BREAKER_THRESHOLD" default:"5" json:"breaker_threshold"`
	BreakerCooldown  time.Duration `envconfig:"BREAKER_COOLDOWN" default:"2m" json:"breaker_cooldown"`

	SweepInterval  time.Duration `envconfig:"SWEEP_INTERVAL" default:"1m" json:"sweep_interval"`
	SweepBatchSize int           `envconfig:"SWEEP_BATCH_SIZE" default:"100" json:"sweep_batch_size"`

	AnalyticsRetention time.Duration `envconfig:"ANALYTICS_RETENTION" default:"720h" json:"analytics_retention"`

	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true" json:"metrics_enabled"`
	MetricsPath    string `envconfig:"METRICS_PATH" default:"/metrics" json:"metrics_path"`

	HTTPShutdownTimeout time.Duration `envconfig:"HTTP_SHUTDOWN_TIMEOUT" default:"10s" json:"http_shutdown_timeout"`

	DBMaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS" default:"25" json:"db_max_open_conns"`
	DBMaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS" default:"5" json:"db_max_idle_conns"`
	DBConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"30m" json:"db_conn_max_lifetime"`
	DBConnMaxIdleTime time.Duration `envconfig:"DB_CONN_MAX_IDLE_TIME" default:"5m" json:"db_conn_max_idle_time"`

	// Leader election. All instances sharing the same database must use the
	// same lock key.
	LeaderEnabled           bool          `envconfig:"LEADER_ENABLED" json:"leader_enabled"`
	LeaderLockKey           int64         `envconfig:"LEADER_LOCK_KEY" default:"728311" json:"leader_lock_key"`
	LeaderRetryInterval     time.Duration `envconfig:"LEADER_RETRY_INTERVAL" default:"5s" json:"leader_retry_interval"`
	LeaderHeartbeatInterval time.Duration `envconfig:"LEADER_HEARTBEAT_INTERVAL" default:"2s" json:"leader_heartbeat_interval"`
}

// envPrefix namespaces every variable, e.g. SWABBR_DATABASE_URL.
const envPrefix = "SWABBR"

// Load reads configuration from the environment with defaults applied.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// MaskedJSON returns the configuration as JSON with secrets masked.
func (c Config) MaskedJSON() ([]byte, error) {
	masked := c
	masked.DatabaseURL = maskSecret(c.DatabaseURL)
	masked.ProviderAPIKey = maskSecret(c.ProviderAPIKey)
	masked.PushSecret = maskSecret(c.PushSecret)
	return json.MarshalIndent(masked, "", "  ")
}

// maskSecret masks a secret value, preserving only the URI scheme if present.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	for _, scheme := range []string{"postgres://", "postgresql://"} {
		if len(s) >= len(scheme) && s[:len(scheme)] == scheme {
			return scheme + "***"
		}
	}
	return "***"
}
