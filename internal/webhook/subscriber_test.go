package webhook

import (
	"testing"
	"time"
)

func TestSubscribesTo(t *testing.T) {
	sub := &Subscriber{Events: []string{"order.created", "order.deleted"}}
	if !sub.SubscribesTo("order.created") {
		t.Error("SubscribesTo(order.created) = false")
	}
	if sub.SubscribesTo("order.updated") {
		t.Error("SubscribesTo(order.updated) = true")
	}
}

func TestRetryOrDefault(t *testing.T) {
	def := RetryPolicy{MaxAttempts: 5, BaseDelay: time.Second, Multiplier: 2, MaxDelay: 30 * time.Second}

	sub := &Subscriber{}
	if got := sub.RetryOrDefault(def); got != def {
		t.Errorf("RetryOrDefault() = %+v for a zero policy, want defaults", got)
	}

	own := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Minute, Multiplier: 1.5, MaxDelay: time.Hour}
	sub.Retry = own
	if got := sub.RetryOrDefault(def); got != own {
		t.Errorf("RetryOrDefault() = %+v, want the configured policy", got)
	}
}

func TestDeliverable(t *testing.T) {
	tests := []struct {
		name   string
		active bool
		health HealthStatus
		want   bool
	}{
		{name: "active healthy", active: true, health: HealthActive, want: true},
		{name: "active testing", active: true, health: HealthTesting, want: true},
		{name: "active error health", active: true, health: HealthError, want: false},
		{name: "inactive", active: false, health: HealthActive, want: false},
		{name: "inactive error", active: false, health: HealthError, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := &Subscriber{Active: tt.active, Health: tt.health}
			if got := sub.Deliverable(); got != tt.want {
				t.Errorf("Deliverable() = %v, want %v", got, tt.want)
			}
		})
	}
}
