// Package store defines the persistence boundary of the delivery engine.
// Subscriber records are owned by the subscription registry; delivery
// records are owned here and upserted on every state transition.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/austindbirch/hookrelay/internal/webhook"
)

var ErrNotFound = errors.New("store: not found")

// SubscriberRegistry is the read side of the external subscription registry
// plus the stats/health writeback this engine owns.
type SubscriberRegistry interface {
	GetSubscriber(ctx context.Context, id string) (*webhook.Subscriber, error)
	ListSubscribersForEvent(ctx context.Context, event string) ([]*webhook.Subscriber, error)
	UpdateSubscriberStats(ctx context.Context, id string, s webhook.Stats, health webhook.HealthStatus) error
}

// WindowStats aggregates delivery records over a time window.
type WindowStats struct {
	Total        int64
	Successful   int64
	Failed       int64
	Pending      int64
	AvgLatencyMS float64
}

// DeliveryStore persists the delivery audit trail. Deliveries are never
// deleted by this subsystem; retention is an external concern.
type DeliveryStore interface {
	UpsertDelivery(ctx context.Context, d *webhook.Delivery) error
	GetDelivery(ctx context.Context, id string) (*webhook.Delivery, error)
	ListRetryScheduled(ctx context.Context) ([]*webhook.Delivery, error)
	WindowStats(ctx context.Context, subscriberID string, since time.Time) (WindowStats, error)
}
