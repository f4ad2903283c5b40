package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		DatabaseURL:         "postgres://localhost/swabbr",
		ProviderBaseURL:     "https://streaming.example.com",
		PushGatewayFCM:      "https://push.example.com/fcm",
		TickInterval:        time.Minute,
		PoolMaxSize:         10,
		PoolInitialSize:     2,
		DispatchMaxParallel: 8,
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestValidate_MissingRequired(t *testing.T) {
	cfg := validConfig()
	cfg.DatabaseURL = ""
	cfg.ProviderBaseURL = ""

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation errors")
	}
	msg := err.Error()
	if !strings.Contains(msg, "SWABBR_DATABASE_URL") {
		t.Errorf("error should name the database url: %s", msg)
	}
	if !strings.Contains(msg, "SWABBR_PROVIDER_BASE_URL") {
		t.Errorf("error should name the provider url: %s", msg)
	}
	if !strings.Contains(msg, "2 validation errors") {
		t.Errorf("errors should be collected, got: %s", msg)
	}
}

func TestValidate_PoolSizing(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"zero max size", func(c *Config) { c.PoolMaxSize = 0 }, true},
		{"negative initial", func(c *Config) { c.PoolInitialSize = -1 }, true},
		{"initial over max", func(c *Config) { c.PoolInitialSize = 11 }, true},
		{"initial equals max", func(c *Config) { c.PoolInitialSize = 10 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := Validate(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_RequiresAPushGateway(t *testing.T) {
	cfg := validConfig()
	cfg.PushGatewayFCM = ""
	cfg.PushGatewayAPNS = ""

	if err := Validate(cfg); err == nil {
		t.Fatal("expected error when no push gateway is configured")
	}

	cfg.PushGatewayAPNS = "https://push.example.com/apns"
	if err := Validate(cfg); err != nil {
		t.Fatalf("one gateway should suffice, got %v", err)
	}
}

func TestValidate_NonPositiveTickInterval(t *testing.T) {
	cfg := validConfig()
	cfg.TickInterval = 0

	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for zero tick interval")
	}
}
