package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/austindbirch/hookrelay/internal/store"
	"github.com/austindbirch/hookrelay/internal/webhook"
)

func TestRegistryRoundTrip(t *testing.T) {
	reg := NewRegistry()
	ctx := context.Background()

	if _, err := reg.GetSubscriber(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetSubscriber(missing) error = %v, want ErrNotFound", err)
	}

	sub := &webhook.Subscriber{
		ID:     "sub_1",
		URL:    "https://example.com/hook",
		Events: []string{"order.created"},
		Active: true,
		Health: webhook.HealthActive,
	}
	reg.Put(sub)

	got, err := reg.GetSubscriber(ctx, "sub_1")
	if err != nil {
		t.Fatalf("GetSubscriber() error = %v", err)
	}
	if got.URL != sub.URL {
		t.Errorf("URL = %q", got.URL)
	}

	// Returned record is a copy; mutating it must not leak back.
	got.URL = "https://evil.example.com"
	again, _ := reg.GetSubscriber(ctx, "sub_1")
	if again.URL != sub.URL {
		t.Error("stored subscriber mutated through returned copy")
	}
}

func TestListSubscribersForEvent(t *testing.T) {
	reg := NewRegistry()
	ctx := context.Background()

	reg.Put(&webhook.Subscriber{ID: "a", Events: []string{"order.created"}, Active: true, Health: webhook.HealthActive})
	reg.Put(&webhook.Subscriber{ID: "b", Events: []string{"order.deleted"}, Active: true, Health: webhook.HealthActive})
	reg.Put(&webhook.Subscriber{ID: "c", Events: []string{"order.created", "order.deleted"}, Active: true, Health: webhook.HealthActive})

	subs, err := reg.ListSubscribersForEvent(ctx, "order.created")
	if err != nil {
		t.Fatalf("ListSubscribersForEvent() error = %v", err)
	}
	ids := map[string]bool{}
	for _, s := range subs {
		ids[s.ID] = true
	}
	if len(subs) != 2 || !ids["a"] || !ids["c"] {
		t.Errorf("matched ids = %v, want a and c", ids)
	}
}

func TestUpdateSubscriberStats(t *testing.T) {
	reg := NewRegistry()
	ctx := context.Background()
	reg.Put(&webhook.Subscriber{ID: "sub_1", Active: true, Health: webhook.HealthActive})

	st := webhook.Stats{Total: 4, Successful: 3, Failed: 1, AvgLatencyMS: 12.5}
	if err := reg.UpdateSubscriberStats(ctx, "sub_1", st, webhook.HealthError); err != nil {
		t.Fatalf("UpdateSubscriberStats() error = %v", err)
	}
	got, _ := reg.GetSubscriber(ctx, "sub_1")
	if got.Stats != st || got.Health != webhook.HealthError {
		t.Errorf("stats = %+v health = %q", got.Stats, got.Health)
	}

	if err := reg.UpdateSubscriberStats(ctx, "missing", st, webhook.HealthActive); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("update missing error = %v, want ErrNotFound", err)
	}
}

func seedDelivery(id, subscriberID string, state webhook.State, latencyMS int64, age time.Duration) *webhook.Delivery {
	d := &webhook.Delivery{
		ID:           id,
		SubscriberID: subscriberID,
		Event:        "order.created",
		Request:      webhook.RequestSnapshot{Method: "POST", URL: "https://example.com"},
		State:        state,
		Policy:       webhook.RetryPolicy{MaxAttempts: 5, BaseDelay: time.Second, Multiplier: 2, MaxDelay: 30 * time.Second},
		CreatedAt:    time.Now().UTC().Add(-age),
	}
	if state == webhook.StateDelivered {
		d.LastResponse = &webhook.ResponseSnapshot{StatusCode: 200, LatencyMS: latencyMS}
	}
	return d
}

func TestDeliveriesRoundTrip(t *testing.T) {
	ds := NewDeliveries()
	ctx := context.Background()

	if _, err := ds.GetDelivery(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetDelivery(missing) error = %v, want ErrNotFound", err)
	}

	d := seedDelivery("dlv_1", "sub_1", webhook.StatePending, 0, 0)
	d.Payload = map[string]any{"a": float64(1)}
	d.Request.Body = []byte(`{"a":1}`)
	if err := ds.UpsertDelivery(ctx, d); err != nil {
		t.Fatalf("UpsertDelivery() error = %v", err)
	}

	got, err := ds.GetDelivery(ctx, "dlv_1")
	if err != nil {
		t.Fatalf("GetDelivery() error = %v", err)
	}
	if got.State != webhook.StatePending || string(got.Request.Body) != `{"a":1}` {
		t.Errorf("got = %+v", got)
	}
	if got.Policy.BaseDelay != time.Second {
		t.Errorf("Policy.BaseDelay = %v, want 1s", got.Policy.BaseDelay)
	}

	// Upsert replaces.
	d.State = webhook.StateInFlight
	_ = ds.UpsertDelivery(ctx, d)
	got, _ = ds.GetDelivery(ctx, "dlv_1")
	if got.State != webhook.StateInFlight {
		t.Errorf("State = %q after upsert, want in_flight", got.State)
	}
}

func TestListRetryScheduled(t *testing.T) {
	ds := NewDeliveries()
	ctx := context.Background()

	_ = ds.UpsertDelivery(ctx, seedDelivery("d1", "s", webhook.StateRetryScheduled, 0, 0))
	_ = ds.UpsertDelivery(ctx, seedDelivery("d2", "s", webhook.StateDelivered, 10, 0))
	_ = ds.UpsertDelivery(ctx, seedDelivery("d3", "s", webhook.StateRetryScheduled, 0, 0))

	got, err := ds.ListRetryScheduled(ctx)
	if err != nil {
		t.Fatalf("ListRetryScheduled() error = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("len = %d, want 2", len(got))
	}
}

func TestWindowStats(t *testing.T) {
	ds := NewDeliveries()
	ctx := context.Background()

	_ = ds.UpsertDelivery(ctx, seedDelivery("d1", "sub_1", webhook.StateDelivered, 100, time.Hour))
	_ = ds.UpsertDelivery(ctx, seedDelivery("d2", "sub_1", webhook.StateDelivered, 300, time.Hour))
	_ = ds.UpsertDelivery(ctx, seedDelivery("d3", "sub_1", webhook.StateExhausted, 0, time.Hour))
	_ = ds.UpsertDelivery(ctx, seedDelivery("d4", "sub_1", webhook.StateRetryScheduled, 0, time.Hour))
	// Outside window and foreign subscriber are excluded.
	_ = ds.UpsertDelivery(ctx, seedDelivery("d5", "sub_1", webhook.StateDelivered, 900, 48*time.Hour))
	_ = ds.UpsertDelivery(ctx, seedDelivery("d6", "sub_2", webhook.StateDelivered, 900, time.Hour))

	ws, err := ds.WindowStats(ctx, "sub_1", time.Now().UTC().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("WindowStats() error = %v", err)
	}
	if ws.Total != 4 || ws.Successful != 2 || ws.Failed != 1 || ws.Pending != 1 {
		t.Errorf("WindowStats = %+v", ws)
	}
	if ws.AvgLatencyMS != 200 {
		t.Errorf("AvgLatencyMS = %v, want 200", ws.AvgLatencyMS)
	}
}
