package stats

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/austindbirch/hookrelay/internal/webhook"
)

// SubscriberStore is the slice of the registry the aggregator writes to.
type SubscriberStore interface {
	GetSubscriber(ctx context.Context, id string) (*webhook.Subscriber, error)
	UpdateSubscriberStats(ctx context.Context, id string, s webhook.Stats, health webhook.HealthStatus) error
}

// Aggregator maintains rolling per-subscriber health counters. Updates are
// serialized per subscriber, so two deliveries for different subscribers
// never contend on the same lock.
type Aggregator struct {
	store SubscriberStore

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewAggregator(store SubscriberStore) *Aggregator {
	return &Aggregator{
		store: store,
		locks: make(map[string]*sync.Mutex),
	}
}

// Record applies one terminal outcome to the subscriber's rolling stats.
// On success the running average latency covers successful attempts only,
// and a subscriber in error health is promoted back to active. On failure
// the subscriber's health drops to error.
func (a *Aggregator) Record(ctx context.Context, subscriberID string, success bool, latency time.Duration) error {
	lock := a.lockFor(subscriberID)
	lock.Lock()
	defer lock.Unlock()

	sub, err := a.store.GetSubscriber(ctx, subscriberID)
	if err != nil {
		return fmt.Errorf("load subscriber %s: %w", subscriberID, err)
	}

	st := sub.Stats
	now := time.Now().UTC()
	health := sub.Health

	if success {
		st.Total++
		st.Successful++
		st.LastSuccessAt = &now
		st.AvgLatencyMS = (st.AvgLatencyMS*float64(st.Successful-1) + float64(latency.Milliseconds())) / float64(st.Successful)
		if health == webhook.HealthError {
			// Self-healing: a delivered webhook proves the endpoint is back.
			health = webhook.HealthActive
			st.LastError = ""
		}
	} else {
		st.Total++
		st.Failed++
		st.LastFailureAt = &now
		health = webhook.HealthError
	}

	if err := a.store.UpdateSubscriberStats(ctx, subscriberID, st, health); err != nil {
		return fmt.Errorf("update subscriber %s stats: %w", subscriberID, err)
	}
	return nil
}

func (a *Aggregator) lockFor(id string) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()
	lock, ok := a.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		a.locks[id] = lock
	}
	return lock
}
