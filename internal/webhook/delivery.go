package webhook

import (
	"fmt"
	"time"
)

// State is the delivery lifecycle state.
type State string

const (
	StatePending        State = "pending"
	StateInFlight       State = "in_flight"
	StateDelivered      State = "delivered"
	StateRetryScheduled State = "retry_scheduled"
	StateExhausted      State = "exhausted"
)

// Terminal reports whether no transition out of the state exists.
func (s State) Terminal() bool {
	return s == StateDelivered || s == StateExhausted
}

// ErrorCode for a cancelled delivery's terminal error record.
const ErrorCodeCancelled = "cancelled"

// RequestSnapshot is the outbound request captured once at delivery creation
// and reused across retries, so every attempt sends byte-identical payloads.
type RequestSnapshot struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers"`
	Body    []byte            `json:"body"`
}

// ResponseSnapshot is the last response captured for a delivery.
type ResponseSnapshot struct {
	StatusCode int               `json:"status_code"`
	Headers    map[string]string `json:"headers,omitempty"`
	Body       string            `json:"body,omitempty"`
	LatencyMS  int64             `json:"latency_ms"`
}

// DeliveryError is the last transport-level error captured for a delivery.
type DeliveryError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"` // timeout, connection_refused, dns_error, network
}

// Delivery is one subscriber-specific attempt-series for one event
// occurrence, and the audit record of it. It is created by the dispatch
// coordinator, mutated only through the transition methods below, and
// becomes immutable once terminal.
type Delivery struct {
	ID           string           `json:"id"`
	SubscriberID string           `json:"subscriber_id"`
	Event        string           `json:"event"`
	Payload      map[string]any   `json:"payload,omitempty"`
	Request      RequestSnapshot  `json:"request"`
	State        State            `json:"state"`
	Attempts     int              `json:"attempts"`
	Policy       RetryPolicy      `json:"policy"`
	NextRetryAt  *time.Time       `json:"next_retry_at,omitempty"`
	LastResponse *ResponseSnapshot `json:"last_response,omitempty"`
	LastError    *DeliveryError   `json:"last_error,omitempty"`
	DeliveredAt  *time.Time       `json:"delivered_at,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
}

// NewDelivery creates a pending delivery for one matched subscriber. The
// retry policy is copied so later subscriber edits don't affect it.
func NewDelivery(id string, sub *Subscriber, event string, payload map[string]any, req RequestSnapshot) *Delivery {
	return &Delivery{
		ID:           id,
		SubscriberID: sub.ID,
		Event:        event,
		Payload:      payload,
		Request:      req,
		State:        StatePending,
		Policy:       sub.Retry,
		CreatedAt:    time.Now().UTC(),
	}
}

// MaxAttempts returns the attempt budget frozen at creation time.
func (d *Delivery) MaxAttempts() int {
	return d.Policy.MaxAttempts
}

// BeginAttempt moves the delivery into in_flight. It is the single point of
// mutual exclusion per delivery: a delivery already in flight or terminal
// cannot begin another attempt.
func (d *Delivery) BeginAttempt() error {
	switch d.State {
	case StatePending, StateRetryScheduled:
		d.State = StateInFlight
		d.NextRetryAt = nil
		return nil
	default:
		return fmt.Errorf("delivery %s: cannot begin attempt from state %q", d.ID, d.State)
	}
}

// MarkDelivered records a successful attempt and terminates the delivery.
func (d *Delivery) MarkDelivered(resp *ResponseSnapshot) error {
	if d.State != StateInFlight {
		return fmt.Errorf("delivery %s: cannot deliver from state %q", d.ID, d.State)
	}
	d.Attempts++
	d.State = StateDelivered
	d.LastResponse = resp
	d.LastError = nil
	now := time.Now().UTC()
	d.DeliveredAt = &now
	return nil
}

// ScheduleRetry records a failed attempt that still has budget left and
// parks the delivery until nextRetryAt.
func (d *Delivery) ScheduleRetry(at time.Time, resp *ResponseSnapshot, derr *DeliveryError) error {
	if d.State != StateInFlight {
		return fmt.Errorf("delivery %s: cannot schedule retry from state %q", d.ID, d.State)
	}
	d.Attempts++
	if d.Attempts >= d.Policy.MaxAttempts {
		return fmt.Errorf("delivery %s: attempt budget exhausted, cannot schedule retry", d.ID)
	}
	d.State = StateRetryScheduled
	d.NextRetryAt = &at
	d.LastResponse = resp
	d.LastError = derr
	return nil
}

// MarkExhausted records a failed attempt with no budget left. Terminal.
func (d *Delivery) MarkExhausted(resp *ResponseSnapshot, derr *DeliveryError) error {
	if d.State != StateInFlight {
		return fmt.Errorf("delivery %s: cannot exhaust from state %q", d.ID, d.State)
	}
	d.Attempts++
	d.State = StateExhausted
	d.NextRetryAt = nil
	d.LastResponse = resp
	d.LastError = derr
	return nil
}

// Cancel terminates a retry_scheduled delivery without consuming an attempt.
// An in-flight attempt cannot be aborted; cancellation then only prevents the
// next retry, which the scheduler handles separately.
func (d *Delivery) Cancel() error {
	if d.State != StateRetryScheduled && d.State != StatePending {
		return fmt.Errorf("delivery %s: cannot cancel from state %q", d.ID, d.State)
	}
	d.State = StateExhausted
	d.NextRetryAt = nil
	d.LastError = &DeliveryError{Message: "delivery cancelled", Code: ErrorCodeCancelled}
	return nil
}
