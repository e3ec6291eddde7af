package retry

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/austindbirch/hookrelay/internal/logging"
	"github.com/austindbirch/hookrelay/internal/metrics"
	"github.com/austindbirch/hookrelay/internal/tracing"
	"github.com/austindbirch/hookrelay/internal/webhook"

	"go.opentelemetry.io/otel/attribute"
)

// DeliveryStore persists delivery records. Every state transition is
// upserted so that retry scheduling survives a process restart.
type DeliveryStore interface {
	UpsertDelivery(ctx context.Context, d *webhook.Delivery) error
	GetDelivery(ctx context.Context, id string) (*webhook.Delivery, error)
	ListRetryScheduled(ctx context.Context) ([]*webhook.Delivery, error)
}

// Attempter performs a single HTTP attempt from a request snapshot.
type Attempter interface {
	Execute(ctx context.Context, snap webhook.RequestSnapshot) webhook.AttemptResult
}

// OutcomeRecorder receives subscriber-level outcomes: one call per delivered
// or exhausted delivery, never for intermediate failed attempts.
type OutcomeRecorder interface {
	Record(ctx context.Context, subscriberID string, success bool, latency time.Duration) error
}

// DeadLetterPublisher receives exhausted deliveries for external consumers.
type DeadLetterPublisher interface {
	PublishExhausted(ctx context.Context, d *webhook.Delivery) error
}

// Scheduler owns per-delivery state machine progression. Pending retries sit
// on a min-heap keyed by nextRetryAt and are driven by a single timer
// goroutine rather than one sleeping goroutine per delivery.
type Scheduler struct {
	store DeliveryStore
	exec  Attempter
	stats OutcomeRecorder
	dlq   DeadLetterPublisher
	log   *logging.Logger

	mu        sync.Mutex
	heap      retryHeap
	cancelled map[string]struct{}
	wake      chan struct{}
}

func NewScheduler(store DeliveryStore, exec Attempter, stats OutcomeRecorder, log *logging.Logger) *Scheduler {
	return &Scheduler{
		store:     store,
		exec:      exec,
		stats:     stats,
		log:       log,
		cancelled: make(map[string]struct{}),
		wake:      make(chan struct{}, 1),
	}
}

// WithDeadLetter adds a publisher for exhausted deliveries.
func (s *Scheduler) WithDeadLetter(p DeadLetterPublisher) *Scheduler {
	s.dlq = p
	return s
}

// Start runs the retry timer loop until ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	go s.run(ctx)
}

// Launch begins the state machine for a freshly created delivery: the first
// attempt runs immediately, with no initial delay.
func (s *Scheduler) Launch(ctx context.Context, d *webhook.Delivery) {
	go s.runAttempt(ctx, d)
}

// Recover re-enqueues every delivery left in retry_scheduled by a previous
// process. Deliveries whose nextRetryAt has already passed fire immediately.
func (s *Scheduler) Recover(ctx context.Context) error {
	ds, err := s.store.ListRetryScheduled(ctx)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	for _, d := range ds {
		at := now
		if d.NextRetryAt != nil {
			at = *d.NextRetryAt
		}
		s.schedule(d.ID, at)
	}
	if len(ds) > 0 {
		s.log.Plain().WithField("count", len(ds)).Info("recovered scheduled retries")
	}
	return nil
}

// CancelDelivery terminates a scheduled delivery without consuming another
// attempt. A delivery whose attempt is already in flight cannot be aborted;
// cancellation then only prevents the next retry from being scheduled.
func (s *Scheduler) CancelDelivery(ctx context.Context, id string) error {
	s.mu.Lock()
	s.cancelled[id] = struct{}{}
	s.mu.Unlock()

	d, err := s.store.GetDelivery(ctx, id)
	if err != nil {
		s.forget(id)
		return err
	}
	if d.State.Terminal() {
		s.forget(id)
		return nil
	}
	if d.State == webhook.StateInFlight {
		// The post-attempt path observes the marker and removes it.
		return nil
	}
	if err := d.Cancel(); err != nil {
		s.forget(id)
		return err
	}
	if err := s.store.UpsertDelivery(ctx, d); err != nil {
		// Marker stays so the parked retry is skipped when it pops.
		return err
	}
	// Terminal now; the state check on pop drops the parked heap item.
	s.forget(id)
	metrics.RecordDelivery("cancelled")
	s.log.WithContext(ctx).WithDelivery(id).WithSubscriber(d.SubscriberID).Info("delivery cancelled")
	return nil
}

// QueueDepth returns the number of deliveries waiting on the retry heap.
func (s *Scheduler) QueueDepth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.heap.Len()
}

func (s *Scheduler) schedule(id string, at time.Time) {
	s.mu.Lock()
	heap.Push(&s.heap, &retryItem{deliveryID: id, at: at})
	metrics.UpdateRetryQueueDepth(float64(s.heap.Len()))
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) isCancelled(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.cancelled[id]
	return ok
}

// forget drops the cancellation marker once the delivery is terminal, so the
// set stays bounded by in-progress cancellations.
func (s *Scheduler) forget(id string) {
	s.mu.Lock()
	delete(s.cancelled, id)
	s.mu.Unlock()
}

// run is the timer loop: sleep until the earliest nextRetryAt, then hand the
// due deliveries back to the attempt pipeline.
func (s *Scheduler) run(ctx context.Context) {
	for {
		s.mu.Lock()
		wait := time.Hour
		now := time.Now().UTC()
		var due []string
		for s.heap.Len() > 0 {
			next := s.heap.peek()
			if next.at.After(now) {
				wait = next.at.Sub(now)
				break
			}
			item := heap.Pop(&s.heap).(*retryItem)
			if _, skip := s.cancelled[item.deliveryID]; skip {
				delete(s.cancelled, item.deliveryID)
				continue
			}
			due = append(due, item.deliveryID)
		}
		metrics.UpdateRetryQueueDepth(float64(s.heap.Len()))
		s.mu.Unlock()

		for _, id := range due {
			d, err := s.store.GetDelivery(ctx, id)
			if err != nil {
				s.log.WithContext(ctx).WithDelivery(id).WithError(err).Error("load scheduled delivery failed")
				continue
			}
			if d.State != webhook.StateRetryScheduled {
				// Stale heap entry; the delivery reached a terminal state
				// through another path.
				continue
			}
			go s.runAttempt(ctx, d)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-s.wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// runAttempt executes one attempt and advances the state machine. Nothing in
// here propagates an error to the caller: per-delivery isolation is the
// central reliability property of the engine.
func (s *Scheduler) runAttempt(ctx context.Context, d *webhook.Delivery) {
	ctx, span := tracing.StartSpan(ctx, "delivery.attempt",
		attribute.String("delivery_id", d.ID),
		attribute.String("subscriber_id", d.SubscriberID),
		attribute.String("event", d.Event),
		attribute.Int("attempt", d.Attempts),
	)
	defer span.End()

	if err := d.BeginAttempt(); err != nil {
		s.log.WithContext(ctx).WithDelivery(d.ID).WithError(err).Warn("attempt refused")
		return
	}
	s.persist(ctx, d)

	res := s.exec.Execute(ctx, d.Request)
	metrics.RecordAttempt(res.Success, res.StatusCode, res.Latency)
	span.SetAttributes(
		attribute.Int("http.status_code", res.StatusCode),
		attribute.Int64("http.latency_ms", res.Latency.Milliseconds()),
	)

	resp := responseSnapshot(res)
	derr := deliveryError(res)

	if res.Success {
		if err := d.MarkDelivered(resp); err != nil {
			s.log.WithContext(ctx).WithDelivery(d.ID).WithError(err).Error("mark delivered failed")
			return
		}
		s.persist(ctx, d)
		s.forget(d.ID)
		metrics.RecordDelivery("delivered")
		s.record(ctx, d.SubscriberID, true, res.Latency)
		s.log.WithContext(ctx).WithDelivery(d.ID).WithSubscriber(d.SubscriberID).
			WithField("attempts", d.Attempts).Info("delivered")
		return
	}

	cancelled := s.isCancelled(d.ID)
	budgetLeft := d.Attempts+1 < d.MaxAttempts()
	if budgetLeft && !cancelled {
		delay := PolicyBackoff(d.Policy).Delay(d.Attempts)
		at := time.Now().UTC().Add(delay)
		if err := d.ScheduleRetry(at, resp, derr); err != nil {
			s.log.WithContext(ctx).WithDelivery(d.ID).WithError(err).Error("schedule retry failed")
			return
		}
		s.persist(ctx, d)
		metrics.RecordRetry(res.Reason())
		tracing.AddSpanEvent(ctx, "retry scheduled",
			attribute.String("delay", delay.String()),
			attribute.String("reason", res.Reason()),
		)
		s.schedule(d.ID, at)
		s.log.WithContext(ctx).WithDelivery(d.ID).WithSubscriber(d.SubscriberID).WithFields(map[string]any{
			"attempt": d.Attempts,
			"delay":   delay.String(),
			"reason":  res.Reason(),
		}).Info("retry scheduled")
		return
	}

	if err := d.MarkExhausted(resp, derr); err != nil {
		s.log.WithContext(ctx).WithDelivery(d.ID).WithError(err).Error("mark exhausted failed")
		return
	}
	s.persist(ctx, d)
	s.forget(d.ID)

	if cancelled {
		// The operator asked for this termination: the failed attempt keeps
		// its real response snapshot, but no outcome is recorded against the
		// subscriber and nothing goes to the dead letter topic.
		metrics.RecordDelivery("cancelled")
		s.log.WithContext(ctx).WithDelivery(d.ID).WithSubscriber(d.SubscriberID).
			WithField("attempts", d.Attempts).Info("delivery cancelled after in-flight attempt")
		return
	}

	metrics.RecordDelivery("exhausted")
	s.record(ctx, d.SubscriberID, false, res.Latency)
	if s.dlq != nil {
		if err := s.dlq.PublishExhausted(ctx, d); err != nil {
			s.log.WithContext(ctx).WithDelivery(d.ID).WithError(err).Error("dead letter publish failed")
		}
	}
	s.log.WithContext(ctx).WithDelivery(d.ID).WithSubscriber(d.SubscriberID).WithFields(map[string]any{
		"attempts": d.Attempts,
		"reason":   res.Reason(),
	}).Warn("delivery exhausted")
}

func (s *Scheduler) persist(ctx context.Context, d *webhook.Delivery) {
	if err := s.store.UpsertDelivery(ctx, d); err != nil {
		tracing.SetSpanError(ctx, err)
		s.log.WithContext(ctx).WithDelivery(d.ID).WithError(err).Error("persist delivery failed")
	}
}

func (s *Scheduler) record(ctx context.Context, subscriberID string, success bool, latency time.Duration) {
	if err := s.stats.Record(ctx, subscriberID, success, latency); err != nil {
		s.log.WithContext(ctx).WithSubscriber(subscriberID).WithError(err).Error("record outcome failed")
	}
}

func responseSnapshot(res webhook.AttemptResult) *webhook.ResponseSnapshot {
	if !res.Completed() {
		return nil
	}
	return &webhook.ResponseSnapshot{
		StatusCode: res.StatusCode,
		Headers:    res.ResponseHeaders,
		Body:       res.ResponseBody,
		LatencyMS:  res.Latency.Milliseconds(),
	}
}

func deliveryError(res webhook.AttemptResult) *webhook.DeliveryError {
	if res.ErrorMessage == "" {
		return nil
	}
	return &webhook.DeliveryError{Message: res.ErrorMessage, Code: res.ErrorCode}
}

// retryItem is one parked delivery on the min-heap.
type retryItem struct {
	deliveryID string
	at         time.Time
}

type retryHeap []*retryItem

func (h retryHeap) Len() int            { return len(h) }
func (h retryHeap) Less(i, j int) bool  { return h[i].at.Before(h[j].at) }
func (h retryHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *retryHeap) Push(x any)         { *h = append(*h, x.(*retryItem)) }
func (h *retryHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

func (h retryHeap) peek() *retryItem {
	return h[0]
}
