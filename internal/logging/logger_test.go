package logging

import (
	"encoding/json"
	"testing"
)

func TestEntryBuilders(t *testing.T) {
	log := New("dispatcher")

	e := log.Plain().
		WithEvent("order.created").
		WithDelivery("dlv_1").
		WithSubscriber("sub_1").
		WithField("attempt", 2).
		WithFields(map[string]any{"delay": "2s", "reason": "http_5xx"})

	if e.Service != "dispatcher" {
		t.Errorf("Service = %q", e.Service)
	}
	if e.Event != "order.created" || e.DeliveryID != "dlv_1" || e.SubscriberID != "sub_1" {
		t.Errorf("entry = %+v", e)
	}
	if e.Fields["attempt"] != 2 || e.Fields["delay"] != "2s" || e.Fields["reason"] != "http_5xx" {
		t.Errorf("fields = %+v", e.Fields)
	}
	if e.Time.IsZero() {
		t.Error("Time not set")
	}
}

func TestWithErrorNil(t *testing.T) {
	e := New("test").Plain().WithError(nil)
	if _, ok := e.Fields["error"]; ok {
		t.Error("nil error produced an error field")
	}
}

func TestEntryJSONShape(t *testing.T) {
	log := New("dispatcher")
	e := log.Plain().WithDelivery("dlv_1").WithField("k", "v")
	e.Level = LevelInfo
	e.Message = "delivered"

	data, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("marshal error = %v", err)
	}

	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	if m["msg"] != "delivered" || m["level"] != "info" || m["service"] != "dispatcher" {
		t.Errorf("json = %v", m)
	}
	if m["delivery_id"] != "dlv_1" {
		t.Errorf("delivery_id = %v", m["delivery_id"])
	}
	if _, ok := m["trace_id"]; ok {
		t.Error("empty trace_id serialized, want omitted")
	}
}
