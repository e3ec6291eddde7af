// Package postgres backs the registry and delivery stores with pgx. The
// schema lives in migrations/0001_init.sql.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/austindbirch/hookrelay/internal/store"
	"github.com/austindbirch/hookrelay/internal/webhook"
)

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const subscriberColumns = `id, url, secret, events, active, health, filter, retry, rate_limit, auth, headers, stats`

func (s *Store) GetSubscriber(ctx context.Context, id string) (*webhook.Subscriber, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+subscriberColumns+`
		FROM hookrelay.subscribers
		WHERE id = $1`, id)
	sub, err := scanSubscriber(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return sub, err
}

func (s *Store) ListSubscribersForEvent(ctx context.Context, event string) ([]*webhook.Subscriber, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+subscriberColumns+`
		FROM hookrelay.subscribers
		WHERE active AND $1 = ANY(events)`, event)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*webhook.Subscriber
	for rows.Next() {
		sub, err := scanSubscriber(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (s *Store) UpdateSubscriberStats(ctx context.Context, id string, st webhook.Stats, health webhook.HealthStatus) error {
	statsJSON, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}
	ct, err := s.pool.Exec(ctx, `
		UPDATE hookrelay.subscribers
		SET stats = $2::jsonb, health = $3, updated_at = now()
		WHERE id = $1`, id, string(statsJSON), string(health))
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) UpsertDelivery(ctx context.Context, d *webhook.Delivery) error {
	payload, err := json.Marshal(d.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	request, err := json.Marshal(d.Request)
	if err != nil {
		return fmt.Errorf("marshal request snapshot: %w", err)
	}
	policy, err := json.Marshal(d.Policy)
	if err != nil {
		return fmt.Errorf("marshal policy: %w", err)
	}
	var lastResponse, lastError *string
	if d.LastResponse != nil {
		lastResponse, err = marshalJSON(d.LastResponse)
		if err != nil {
			return fmt.Errorf("marshal response snapshot: %w", err)
		}
	}
	if d.LastError != nil {
		lastError, err = marshalJSON(d.LastError)
		if err != nil {
			return fmt.Errorf("marshal delivery error: %w", err)
		}
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO hookrelay.deliveries
			(id, subscriber_id, event, payload, request, state, attempts, policy,
			 next_retry_at, last_response, last_error, delivered_at, created_at)
		VALUES ($1, $2, $3, $4::jsonb, $5::jsonb, $6, $7, $8::jsonb, $9, $10::jsonb, $11::jsonb, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			state = EXCLUDED.state,
			attempts = EXCLUDED.attempts,
			next_retry_at = EXCLUDED.next_retry_at,
			last_response = EXCLUDED.last_response,
			last_error = EXCLUDED.last_error,
			delivered_at = EXCLUDED.delivered_at,
			updated_at = now()`,
		d.ID, d.SubscriberID, d.Event, string(payload), string(request), string(d.State),
		d.Attempts, string(policy), d.NextRetryAt, lastResponse, lastError, d.DeliveredAt, d.CreatedAt,
	)
	return err
}

func (s *Store) GetDelivery(ctx context.Context, id string) (*webhook.Delivery, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+deliveryColumns+`
		FROM hookrelay.deliveries
		WHERE id = $1`, id)
	d, err := scanDelivery(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return d, err
}

func (s *Store) ListRetryScheduled(ctx context.Context) ([]*webhook.Delivery, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+deliveryColumns+`
		FROM hookrelay.deliveries
		WHERE state = 'retry_scheduled'
		ORDER BY next_retry_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*webhook.Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) WindowStats(ctx context.Context, subscriberID string, since time.Time) (store.WindowStats, error) {
	var ws store.WindowStats
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE state = 'delivered'),
		       COUNT(*) FILTER (WHERE state = 'exhausted'),
		       COUNT(*) FILTER (WHERE state NOT IN ('delivered', 'exhausted')),
		       COALESCE(AVG((last_response->>'latency_ms')::bigint) FILTER (WHERE state = 'delivered'), 0)
		FROM hookrelay.deliveries
		WHERE subscriber_id = $1 AND created_at >= $2`,
		subscriberID, since,
	).Scan(&ws.Total, &ws.Successful, &ws.Failed, &ws.Pending, &ws.AvgLatencyMS)
	return ws, err
}

const deliveryColumns = `id, subscriber_id, event, payload, request, state, attempts, policy,
	next_retry_at, last_response, last_error, delivered_at, created_at`

func scanSubscriber(row pgx.Row) (*webhook.Subscriber, error) {
	var (
		sub           webhook.Subscriber
		health        string
		filterJSON    []byte
		retryJSON     []byte
		rateLimitJSON []byte
		authJSON      []byte
		headersJSON   []byte
		statsJSON     []byte
	)
	if err := row.Scan(&sub.ID, &sub.URL, &sub.Secret, &sub.Events, &sub.Active, &health,
		&filterJSON, &retryJSON, &rateLimitJSON, &authJSON, &headersJSON, &statsJSON); err != nil {
		return nil, err
	}
	sub.Health = webhook.HealthStatus(health)
	for _, col := range []struct {
		raw []byte
		dst any
	}{
		{filterJSON, &sub.Filter},
		{retryJSON, &sub.Retry},
		{rateLimitJSON, &sub.RateLimit},
		{authJSON, &sub.Auth},
		{headersJSON, &sub.Headers},
		{statsJSON, &sub.Stats},
	} {
		if len(col.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(col.raw, col.dst); err != nil {
			return nil, fmt.Errorf("decode subscriber %s: %w", sub.ID, err)
		}
	}
	return &sub, nil
}

func scanDelivery(row pgx.Row) (*webhook.Delivery, error) {
	var (
		d            webhook.Delivery
		state        string
		payloadJSON  []byte
		requestJSON  []byte
		policyJSON   []byte
		responseJSON []byte
		errorJSON    []byte
	)
	if err := row.Scan(&d.ID, &d.SubscriberID, &d.Event, &payloadJSON, &requestJSON, &state,
		&d.Attempts, &policyJSON, &d.NextRetryAt, &responseJSON, &errorJSON, &d.DeliveredAt, &d.CreatedAt); err != nil {
		return nil, err
	}
	d.State = webhook.State(state)
	if len(payloadJSON) > 0 {
		if err := json.Unmarshal(payloadJSON, &d.Payload); err != nil {
			return nil, fmt.Errorf("decode delivery %s payload: %w", d.ID, err)
		}
	}
	if err := json.Unmarshal(requestJSON, &d.Request); err != nil {
		return nil, fmt.Errorf("decode delivery %s request: %w", d.ID, err)
	}
	if err := json.Unmarshal(policyJSON, &d.Policy); err != nil {
		return nil, fmt.Errorf("decode delivery %s policy: %w", d.ID, err)
	}
	if len(responseJSON) > 0 {
		if err := json.Unmarshal(responseJSON, &d.LastResponse); err != nil {
			return nil, fmt.Errorf("decode delivery %s response: %w", d.ID, err)
		}
	}
	if len(errorJSON) > 0 {
		if err := json.Unmarshal(errorJSON, &d.LastError); err != nil {
			return nil, fmt.Errorf("decode delivery %s error: %w", d.ID, err)
		}
	}
	return &d, nil
}

func marshalJSON(v any) (*string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	s := string(b)
	return &s, nil
}
