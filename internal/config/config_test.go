package config

import (
	"testing"
	"time"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg := FromEnv()

	if cfg.AppName != "hookrelay" {
		t.Errorf("AppName = %q", cfg.AppName)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.NSQ.EventsTopic != "events" || cfg.NSQ.Channel != "dispatch" {
		t.Errorf("NSQ = %+v", cfg.NSQ)
	}
	if cfg.Delivery.AttemptTimeout != 30*time.Second {
		t.Errorf("AttemptTimeout = %v", cfg.Delivery.AttemptTimeout)
	}
	if cfg.Delivery.DefaultMaxAttempts != 5 {
		t.Errorf("DefaultMaxAttempts = %d", cfg.Delivery.DefaultMaxAttempts)
	}
	if cfg.Delivery.DefaultBaseDelay != time.Second || cfg.Delivery.DefaultMaxDelay != 30*time.Second {
		t.Errorf("delivery delays = %+v", cfg.Delivery)
	}
	if cfg.Delivery.DefaultMultiplier != 2.0 {
		t.Errorf("DefaultMultiplier = %v", cfg.Delivery.DefaultMultiplier)
	}
	if cfg.Delivery.UserAgent != "hookrelay/1.0" {
		t.Errorf("UserAgent = %q", cfg.Delivery.UserAgent)
	}
	if cfg.Auth.TokenSecret != "" {
		t.Errorf("TokenSecret = %q, want empty by default", cfg.Auth.TokenSecret)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9999")
	t.Setenv("ATTEMPT_TIMEOUT", "5s")
	t.Setenv("DEFAULT_MAX_ATTEMPTS", "3")
	t.Setenv("DEFAULT_BACKOFF_MULTIPLIER", "1.5")
	t.Setenv("PUBLISH_EXHAUSTED_TOPIC", "true")
	t.Setenv("DB_NAME", "hooks_test")

	cfg := FromEnv()
	if cfg.HTTPAddr != ":9999" {
		t.Errorf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.Delivery.AttemptTimeout != 5*time.Second {
		t.Errorf("AttemptTimeout = %v", cfg.Delivery.AttemptTimeout)
	}
	if cfg.Delivery.DefaultMaxAttempts != 3 {
		t.Errorf("DefaultMaxAttempts = %d", cfg.Delivery.DefaultMaxAttempts)
	}
	if cfg.Delivery.DefaultMultiplier != 1.5 {
		t.Errorf("DefaultMultiplier = %v", cfg.Delivery.DefaultMultiplier)
	}
	if !cfg.NSQ.PublishDLQ {
		t.Error("PublishDLQ = false")
	}
	if cfg.DB.Name != "hooks_test" {
		t.Errorf("DB.Name = %q", cfg.DB.Name)
	}
}

func TestFromEnvBadValuesFallBack(t *testing.T) {
	t.Setenv("DEFAULT_MAX_ATTEMPTS", "not-a-number")
	t.Setenv("ATTEMPT_TIMEOUT", "soon")

	cfg := FromEnv()
	if cfg.Delivery.DefaultMaxAttempts != 5 {
		t.Errorf("DefaultMaxAttempts = %d, want default on parse failure", cfg.Delivery.DefaultMaxAttempts)
	}
	if cfg.Delivery.AttemptTimeout != 30*time.Second {
		t.Errorf("AttemptTimeout = %v, want default on parse failure", cfg.Delivery.AttemptTimeout)
	}
}

func TestDSN(t *testing.T) {
	cfg := Config{DB: DB{User: "u", Pass: "p", Host: "h", Port: "5432", Name: "d"}}
	want := "postgres://u:p@h:5432/d?sslmode=disable"
	if got := cfg.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}
