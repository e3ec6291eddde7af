// Package event carries event envelopes over NSQ: inbound occurrences the
// dispatcher consumes and exhausted deliveries it publishes for downstream
// consumers.
package event

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nsqio/go-nsq"

	"github.com/austindbirch/hookrelay/internal/logging"
	"github.com/austindbirch/hookrelay/internal/tracing"
	"github.com/austindbirch/hookrelay/internal/webhook"
)

// Envelope is the wire form of one event occurrence on the events topic.
type Envelope struct {
	EventID      string            `json:"event_id"`
	Name         string            `json:"name"`
	Payload      map[string]any    `json:"payload"`
	PublishedAt  time.Time         `json:"published_at"`
	TraceHeaders map[string]string `json:"trace_headers,omitempty"`
}

// DeadLetter is the wire form of an exhausted delivery on the dead letter
// topic. It carries enough for a consumer to alert or replay without reading
// the delivery store.
type DeadLetter struct {
	DeliveryID   string                 `json:"delivery_id"`
	SubscriberID string                 `json:"subscriber_id"`
	Event        string                 `json:"event"`
	Attempts     int                    `json:"attempts"`
	LastStatus   int                    `json:"last_status,omitempty"`
	LastError    *webhook.DeliveryError `json:"last_error,omitempty"`
	ExhaustedAt  time.Time              `json:"exhausted_at"`
}

// Publisher publishes envelopes and dead letters through one NSQ producer.
type Publisher struct {
	producer       *nsq.Producer
	eventsTopic    string
	exhaustedTopic string
	log            *logging.Logger
}

func NewPublisher(nsqdAddr, eventsTopic, exhaustedTopic string, log *logging.Logger) (*Publisher, error) {
	producer, err := nsq.NewProducer(nsqdAddr, nsq.NewConfig())
	if err != nil {
		return nil, fmt.Errorf("create nsq producer: %w", err)
	}
	return &Publisher{
		producer:       producer,
		eventsTopic:    eventsTopic,
		exhaustedTopic: exhaustedTopic,
		log:            log,
	}, nil
}

// PublishEvent puts one event occurrence on the events topic. Trace context
// is propagated on the envelope so the dispatch side continues the trace.
func (p *Publisher) PublishEvent(ctx context.Context, env Envelope) error {
	if env.PublishedAt.IsZero() {
		env.PublishedAt = time.Now().UTC()
	}
	if env.TraceHeaders == nil {
		env.TraceHeaders = tracing.PropagateTrace(ctx)
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}
	if err := p.producer.Publish(p.eventsTopic, body); err != nil {
		return fmt.Errorf("publish event %s: %w", env.EventID, err)
	}
	return nil
}

// PublishExhausted puts a dead letter for an exhausted delivery on the
// exhausted topic.
func (p *Publisher) PublishExhausted(ctx context.Context, d *webhook.Delivery) error {
	dl := DeadLetter{
		DeliveryID:   d.ID,
		SubscriberID: d.SubscriberID,
		Event:        d.Event,
		Attempts:     d.Attempts,
		LastError:    d.LastError,
		ExhaustedAt:  time.Now().UTC(),
	}
	if d.LastResponse != nil {
		dl.LastStatus = d.LastResponse.StatusCode
	}
	body, err := json.Marshal(dl)
	if err != nil {
		return fmt.Errorf("marshal dead letter: %w", err)
	}
	if err := p.producer.Publish(p.exhaustedTopic, body); err != nil {
		return fmt.Errorf("publish dead letter for delivery %s: %w", d.ID, err)
	}
	p.log.WithContext(ctx).WithDelivery(d.ID).WithSubscriber(d.SubscriberID).Info("dead letter published")
	return nil
}

// Stop flushes and shuts down the producer.
func (p *Publisher) Stop() {
	p.producer.Stop()
}

// Dispatcher is the envelope sink on the consuming side.
type Dispatcher interface {
	Dispatch(ctx context.Context, name string, payload map[string]any) error
}

// Handler adapts NSQ messages into dispatch calls. Malformed envelopes are
// logged and dropped rather than requeued; they will never become valid.
type Handler struct {
	dispatcher Dispatcher
	log        *logging.Logger
}

func NewHandler(dispatcher Dispatcher, log *logging.Logger) *Handler {
	return &Handler{dispatcher: dispatcher, log: log}
}

func (h *Handler) HandleMessage(m *nsq.Message) error {
	var env Envelope
	if err := json.Unmarshal(m.Body, &env); err != nil {
		h.log.Plain().WithError(err).Error("drop malformed event envelope")
		return nil
	}

	ctx := tracing.ExtractTrace(context.Background(), env.TraceHeaders)
	if err := h.dispatcher.Dispatch(ctx, env.Name, env.Payload); err != nil {
		h.log.WithContext(ctx).WithEvent(env.Name).WithError(err).Error("dispatch failed, requeueing")
		return err
	}
	return nil
}

// NewConsumer builds an NSQ consumer on the events topic wired to the
// handler. The caller connects it to nsqlookupd and stops it on shutdown.
func NewConsumer(topic, channel string, h *Handler) (*nsq.Consumer, error) {
	cfg := nsq.NewConfig()
	cfg.MaxInFlight = 32
	consumer, err := nsq.NewConsumer(topic, channel, cfg)
	if err != nil {
		return nil, fmt.Errorf("create nsq consumer: %w", err)
	}
	consumer.AddHandler(h)
	return consumer, nil
}
