package api

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Laixer/Swabbr-Backend-sub003/internal/domain"
)

const (
	minutesPerDay                = 24 * 60
	defaultRequestTimeoutSeconds = 300
	maxRequestTimeoutSeconds     = 3600
)

func validateSchedule(req ScheduleRequest) error {
	if req.TriggerMinute < 0 || req.TriggerMinute >= minutesPerDay {
		return fmt.Errorf("trigger_minute must be in [0, %d)", minutesPerDay)
	}

	if req.Timezone != "" {
		if err := validateTimezone(req.Timezone); err != nil {
			return fmt.Errorf("invalid timezone: %w", err)
		}
	}

	if req.CronExpression != "" {
		if err := validateCron(req.CronExpression); err != nil {
			return fmt.Errorf("invalid cron_expression: %w", err)
		}
	}

	if req.RequestTimeout < 0 || req.RequestTimeout > maxRequestTimeoutSeconds {
		return fmt.Errorf("request_timeout_seconds must be in [0, %d]", maxRequestTimeoutSeconds)
	}

	return nil
}

func validateDevice(req DeviceRequest) error {
	if err := validatePlatform(req.Platform); err != nil {
		return err
	}
	if req.Handle == "" {
		return fmt.Errorf("handle is required")
	}
	return nil
}

func validatePlatform(platform string) error {
	switch domain.Platform(platform) {
	case domain.PlatformFCM, domain.PlatformAPNS:
		return nil
	default:
		return fmt.Errorf("platform must be one of: fcm, apns")
	}
}

func validateCron(expr string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	_, err := parser.Parse(expr)
	return err
}

func validateTimezone(tz string) error {
	_, err := time.LoadLocation(tz)
	return err
}
