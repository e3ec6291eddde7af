// Package dispatch fans one event occurrence out to every matched
// subscriber, creating one independent delivery per match.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/austindbirch/hookrelay/internal/logging"
	"github.com/austindbirch/hookrelay/internal/metrics"
	"github.com/austindbirch/hookrelay/internal/store"
	"github.com/austindbirch/hookrelay/internal/tracing"
	"github.com/austindbirch/hookrelay/internal/webhook"
)

// Launcher starts and cancels delivery state machines.
type Launcher interface {
	Launch(ctx context.Context, d *webhook.Delivery)
	CancelDelivery(ctx context.Context, id string) error
}

// RateLimiter gates dispatch per subscriber.
type RateLimiter interface {
	Allow(sub *webhook.Subscriber) bool
}

// Attempter performs one HTTP attempt, used by the test-fire path.
type Attempter interface {
	Execute(ctx context.Context, snap webhook.RequestSnapshot) webhook.AttemptResult
}

// Service is the dispatch coordinator.
type Service struct {
	registry      store.SubscriberRegistry
	deliveries    store.DeliveryStore
	builder       *webhook.RequestBuilder
	launcher      Launcher
	limiter       RateLimiter
	exec          Attempter
	retryDefaults webhook.RetryPolicy
	log           *logging.Logger
}

func NewService(
	registry store.SubscriberRegistry,
	deliveries store.DeliveryStore,
	builder *webhook.RequestBuilder,
	launcher Launcher,
	limiter RateLimiter,
	exec Attempter,
	retryDefaults webhook.RetryPolicy,
	log *logging.Logger,
) *Service {
	return &Service{
		registry:      registry,
		deliveries:    deliveries,
		builder:       builder,
		launcher:      launcher,
		limiter:       limiter,
		exec:          exec,
		retryDefaults: retryDefaults,
		log:           log,
	}
}

// Dispatch matches one event occurrence against the registry and launches
// one delivery per matched subscriber. Registry lookup failure is the only
// error that surfaces; everything after candidate selection is isolated per
// subscriber so one bad subscriber never blocks the rest.
func (s *Service) Dispatch(ctx context.Context, name string, payload map[string]any) error {
	ctx, span := tracing.StartSpan(ctx, "dispatch.event", attribute.String("event", name))
	defer span.End()

	subs, err := s.registry.ListSubscribersForEvent(ctx, name)
	if err != nil {
		tracing.SetSpanError(ctx, err)
		return fmt.Errorf("list subscribers for %s: %w", name, err)
	}

	metrics.RecordDispatch(name)
	span.SetAttributes(attribute.Int("candidates", len(subs)))

	launched := 0
	for _, sub := range subs {
		if s.dispatchOne(ctx, sub, name, payload) {
			launched++
		}
	}
	s.log.WithContext(ctx).WithEvent(name).WithFields(map[string]any{
		"candidates": len(subs),
		"launched":   launched,
	}).Info("event dispatched")
	return nil
}

// dispatchOne runs the per-subscriber gauntlet: deliverable, filter, rate
// limit, then delivery creation. Reports whether a delivery was launched.
func (s *Service) dispatchOne(ctx context.Context, sub *webhook.Subscriber, name string, payload map[string]any) bool {
	if !sub.Deliverable() {
		return false
	}
	if !webhook.MatchesFilter(sub.Filter, payload) {
		return false
	}
	if !s.limiter.Allow(sub) {
		// A rate-limited event is skipped for this subscriber, not queued
		// and not counted against their health.
		s.log.WithContext(ctx).WithEvent(name).WithSubscriber(sub.ID).Debug("rate limited, skipping")
		return false
	}

	req, err := s.builder.Build(sub, name, payload)
	if err != nil {
		s.log.WithContext(ctx).WithEvent(name).WithSubscriber(sub.ID).WithError(err).Error("build request failed")
		return false
	}

	d := webhook.NewDelivery(uuid.NewString(), sub, name, payload, req)
	// A subscriber with no configured policy gets the service defaults,
	// frozen onto the delivery like any other policy.
	d.Policy = sub.RetryOrDefault(s.retryDefaults)
	if err := s.deliveries.UpsertDelivery(ctx, d); err != nil {
		s.log.WithContext(ctx).WithEvent(name).WithSubscriber(sub.ID).WithError(err).Error("persist delivery failed")
		return false
	}
	s.launcher.Launch(ctx, d)
	return true
}

// TestResult is the outcome of a test fire against a subscriber endpoint.
// Nothing is persisted and no stats move.
type TestResult struct {
	Success    bool          `json:"success"`
	StatusCode int           `json:"status_code,omitempty"`
	Latency    time.Duration `json:"-"`
	LatencyMS  int64         `json:"latency_ms"`
	Error      string        `json:"error,omitempty"`
	ErrorCode  string        `json:"error_code,omitempty"`
}

// Test fires a one-off request at the subscriber's endpoint with the given
// payload, signed and authenticated exactly like a real delivery. Filters
// and rate limits are bypassed: the operator asked for this call.
func (s *Service) Test(ctx context.Context, subscriberID string, payload map[string]any) (TestResult, error) {
	sub, err := s.registry.GetSubscriber(ctx, subscriberID)
	if err != nil {
		return TestResult{}, fmt.Errorf("load subscriber %s: %w", subscriberID, err)
	}

	req, err := s.builder.Build(sub, "webhook.test", payload)
	if err != nil {
		return TestResult{}, fmt.Errorf("build test request: %w", err)
	}

	res := s.exec.Execute(ctx, req)
	return TestResult{
		Success:    res.Success,
		StatusCode: res.StatusCode,
		Latency:    res.Latency,
		LatencyMS:  res.Latency.Milliseconds(),
		Error:      res.ErrorMessage,
		ErrorCode:  res.ErrorCode,
	}, nil
}

// StatsReport combines the subscriber's rolling counters with a windowed
// aggregate over the delivery audit trail.
type StatsReport struct {
	SubscriberID string               `json:"subscriber_id"`
	Health       webhook.HealthStatus `json:"health"`
	Rolling      webhook.Stats        `json:"rolling"`
	WindowDays   int                  `json:"window_days"`
	Window       store.WindowStats    `json:"window"`
	SuccessRate  float64              `json:"success_rate"`
}

// GetStats builds a stats report for one subscriber. windowDays at or below
// zero defaults to 7.
func (s *Service) GetStats(ctx context.Context, subscriberID string, windowDays int) (StatsReport, error) {
	sub, err := s.registry.GetSubscriber(ctx, subscriberID)
	if err != nil {
		return StatsReport{}, fmt.Errorf("load subscriber %s: %w", subscriberID, err)
	}
	if windowDays <= 0 {
		windowDays = 7
	}

	since := time.Now().UTC().AddDate(0, 0, -windowDays)
	window, err := s.deliveries.WindowStats(ctx, subscriberID, since)
	if err != nil {
		return StatsReport{}, fmt.Errorf("window stats for %s: %w", subscriberID, err)
	}

	report := StatsReport{
		SubscriberID: subscriberID,
		Health:       sub.Health,
		Rolling:      sub.Stats,
		WindowDays:   windowDays,
		Window:       window,
	}
	if sub.Stats.Total > 0 {
		report.SuccessRate = float64(sub.Stats.Successful) / float64(sub.Stats.Total)
	}
	return report, nil
}

// GetDelivery returns one delivery audit record.
func (s *Service) GetDelivery(ctx context.Context, id string) (*webhook.Delivery, error) {
	return s.deliveries.GetDelivery(ctx, id)
}

// Cancel stops a delivery's remaining retries.
func (s *Service) Cancel(ctx context.Context, id string) error {
	return s.launcher.CancelDelivery(ctx, id)
}
