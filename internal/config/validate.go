package config

import "fmt"

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	msg := fmt.Sprintf("%d validation errors:", len(e))
	for _, err := range e {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// Validate checks the configuration for errors.
// Returns nil if valid, or ValidationErrors if invalid.
func Validate(cfg Config) error {
	var errs ValidationErrors

	if cfg.DatabaseURL == "" {
		errs = append(errs, ValidationError{
			Field:   "SWABBR_DATABASE_URL",
			Message: "required",
		})
	}

	if cfg.ProviderBaseURL == "" {
		errs = append(errs, ValidationError{
			Field:   "SWABBR_PROVIDER_BASE_URL",
			Message: "required",
		})
	}

	if cfg.TickInterval <= 0 {
		errs = append(errs, ValidationError{
			Field:   "SWABBR_TICK_INTERVAL",
			Message: "must be positive",
		})
	}

	if cfg.PoolMaxSize <= 0 {
		errs = append(errs, ValidationError{
			Field:   "SWABBR_POOL_MAX_SIZE",
			Message: "must be positive",
		})
	}
	if cfg.PoolInitialSize < 0 {
		errs = append(errs, ValidationError{
			Field:   "SWABBR_POOL_INITIAL_SIZE",
			Message: "must not be negative",
		})
	}
	if cfg.PoolInitialSize > cfg.PoolMaxSize {
		errs = append(errs, ValidationError{
			Field:   "SWABBR_POOL_INITIAL_SIZE",
			Message: fmt.Sprintf("must not exceed pool max size %d", cfg.PoolMaxSize),
		})
	}

	if cfg.DispatchMaxParallel <= 0 {
		errs = append(errs, ValidationError{
			Field:   "SWABBR_DISPATCH_MAX_PARALLEL",
			Message: "must be positive",
		})
	}

	if cfg.PushGatewayFCM == "" && cfg.PushGatewayAPNS == "" {
		errs = append(errs, ValidationError{
			Field:   "SWABBR_PUSH_GATEWAY_FCM",
			Message: "at least one push gateway must be configured",
		})
	}

	if cfg.LeaderEnabled && cfg.LeaderLockKey == 0 {
		errs = append(errs, ValidationError{
			Field:   "SWABBR_LEADER_LOCK_KEY",
			Message: "required when leader election is enabled",
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
