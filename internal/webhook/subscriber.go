package webhook

import (
	"time"
)

// HealthStatus is the subscriber-level health indicator derived from recent
// delivery outcomes. It gates candidate selection in the dispatch coordinator
// and is informational for external monitoring; it is not a rate limit.
type HealthStatus string

const (
	HealthActive  HealthStatus = "active"
	HealthTesting HealthStatus = "testing"
	HealthError   HealthStatus = "error"
)

// AuthType selects how outbound credentials are attached to a request.
type AuthType string

const (
	AuthNone   AuthType = "none"
	AuthBasic  AuthType = "basic"
	AuthBearer AuthType = "bearer"
	AuthCustom AuthType = "custom"
)

// AuthConfig holds a subscriber's outbound authentication settings. Exactly
// one mode applies; unrecognized types attach no credentials.
type AuthConfig struct {
	Type     AuthType          `json:"type"`
	Username string            `json:"username,omitempty"`
	Password string            `json:"password,omitempty"`
	Token    string            `json:"token,omitempty"`
	Headers  map[string]string `json:"headers,omitempty"`
}

// Condition is a single declarative filter rule. Field is a dot-path into the
// event payload.
type Condition struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    any    `json:"value"`
}

// FilterConfig narrows which event occurrences a subscriber receives.
type FilterConfig struct {
	Enabled    bool        `json:"enabled"`
	Conditions []Condition `json:"conditions,omitempty"`
}

// RetryPolicy bounds the attempt series of a delivery. It is copied onto
// each Delivery at creation time, so later edits never affect in-flight work.
type RetryPolicy struct {
	MaxAttempts int           `json:"max_attempts"`
	BaseDelay   time.Duration `json:"base_delay"`
	Multiplier  float64       `json:"multiplier"`
	MaxDelay    time.Duration `json:"max_delay"`
}

// RateLimitConfig is the subscriber's token budget. Burst tokens are
// available immediately; PerSecond is the refill rate.
type RateLimitConfig struct {
	Enabled   bool    `json:"enabled"`
	Burst     int     `json:"burst,omitempty"`
	PerSecond float64 `json:"per_second,omitempty"`
}

// Stats holds rolling per-subscriber health counters. AvgLatencyMS covers
// successful attempts only.
type Stats struct {
	Total         int64      `json:"total"`
	Successful    int64      `json:"successful"`
	Failed        int64      `json:"failed"`
	AvgLatencyMS  float64    `json:"avg_latency_ms"`
	LastSuccessAt *time.Time `json:"last_success_at,omitempty"`
	LastFailureAt *time.Time `json:"last_failure_at,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
}

// Subscriber is a registered external endpoint wanting notifications. The
// record is owned by the subscription registry; this subsystem consumes it
// read-only apart from Stats and Health.
type Subscriber struct {
	ID        string            `json:"id"`
	URL       string            `json:"url"`
	Secret    string            `json:"secret,omitempty"`
	Events    []string          `json:"events"`
	Active    bool              `json:"active"`
	Health    HealthStatus      `json:"health"`
	Filter    FilterConfig      `json:"filter"`
	Retry     RetryPolicy       `json:"retry"`
	RateLimit RateLimitConfig   `json:"rate_limit"`
	Auth      AuthConfig        `json:"auth"`
	Headers   map[string]string `json:"headers,omitempty"`
	Stats     Stats             `json:"stats"`
}

// SubscribesTo reports whether the subscriber's event set contains name.
func (s *Subscriber) SubscribesTo(name string) bool {
	for _, e := range s.Events {
		if e == name {
			return true
		}
	}
	return false
}

// Deliverable reports whether the subscriber is a dispatch candidate at all.
// Subscribers in error health are skipped entirely, not even filtered.
func (s *Subscriber) Deliverable() bool {
	return s.Active && (s.Health == HealthActive || s.Health == HealthTesting)
}

// RetryOrDefault returns the subscriber's retry policy, falling back to def
// when none is configured. A policy without a positive MaxAttempts could
// never grant a single attempt, so it counts as unconfigured.
func (s *Subscriber) RetryOrDefault(def RetryPolicy) RetryPolicy {
	if s.Retry.MaxAttempts > 0 {
		return s.Retry
	}
	return def
}
