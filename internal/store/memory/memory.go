// Package memory provides in-process store implementations, used in tests
// and in single-node deployments without Postgres.
package memory

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/austindbirch/hookrelay/internal/store"
	"github.com/austindbirch/hookrelay/internal/webhook"
)

// Registry is an in-memory SubscriberRegistry.
type Registry struct {
	mu   sync.RWMutex
	subs map[string]*webhook.Subscriber
}

func NewRegistry() *Registry {
	return &Registry{subs: make(map[string]*webhook.Subscriber)}
}

// Put inserts or replaces a subscriber record.
func (r *Registry) Put(sub *webhook.Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs[sub.ID] = cloneSubscriber(sub)
}

func (r *Registry) GetSubscriber(_ context.Context, id string) (*webhook.Subscriber, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sub, ok := r.subs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneSubscriber(sub), nil
}

func (r *Registry) ListSubscribersForEvent(_ context.Context, event string) ([]*webhook.Subscriber, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*webhook.Subscriber
	for _, sub := range r.subs {
		if sub.SubscribesTo(event) {
			out = append(out, cloneSubscriber(sub))
		}
	}
	return out, nil
}

func (r *Registry) UpdateSubscriberStats(_ context.Context, id string, s webhook.Stats, health webhook.HealthStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[id]
	if !ok {
		return store.ErrNotFound
	}
	sub.Stats = s
	sub.Health = health
	return nil
}

// Deliveries is an in-memory DeliveryStore.
type Deliveries struct {
	mu   sync.RWMutex
	recs map[string]*webhook.Delivery
}

func NewDeliveries() *Deliveries {
	return &Deliveries{recs: make(map[string]*webhook.Delivery)}
}

func (s *Deliveries) UpsertDelivery(_ context.Context, d *webhook.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs[d.ID] = cloneDelivery(d)
	return nil
}

func (s *Deliveries) GetDelivery(_ context.Context, id string) (*webhook.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.recs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneDelivery(d), nil
}

func (s *Deliveries) ListRetryScheduled(_ context.Context) ([]*webhook.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*webhook.Delivery
	for _, d := range s.recs {
		if d.State == webhook.StateRetryScheduled {
			out = append(out, cloneDelivery(d))
		}
	}
	return out, nil
}

func (s *Deliveries) WindowStats(_ context.Context, subscriberID string, since time.Time) (store.WindowStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ws store.WindowStats
	var latencySum float64
	var latencyCount int64
	for _, d := range s.recs {
		if d.SubscriberID != subscriberID || d.CreatedAt.Before(since) {
			continue
		}
		ws.Total++
		switch d.State {
		case webhook.StateDelivered:
			ws.Successful++
			if d.LastResponse != nil {
				latencySum += float64(d.LastResponse.LatencyMS)
				latencyCount++
			}
		case webhook.StateExhausted:
			ws.Failed++
		default:
			ws.Pending++
		}
	}
	if latencyCount > 0 {
		ws.AvgLatencyMS = latencySum / float64(latencyCount)
	}
	return ws, nil
}

// Snapshot copies keep callers from mutating shared records; deliveries are
// JSON round-tripped since they hold nested pointers.
func cloneDelivery(d *webhook.Delivery) *webhook.Delivery {
	b, err := json.Marshal(d)
	if err != nil {
		cp := *d
		return &cp
	}
	var out webhook.Delivery
	if err := json.Unmarshal(b, &out); err != nil {
		cp := *d
		return &cp
	}
	return &out
}

func cloneSubscriber(sub *webhook.Subscriber) *webhook.Subscriber {
	b, err := json.Marshal(sub)
	if err != nil {
		cp := *sub
		return &cp
	}
	var out webhook.Subscriber
	if err := json.Unmarshal(b, &out); err != nil {
		cp := *sub
		return &cp
	}
	return &out
}
