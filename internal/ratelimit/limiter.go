package ratelimit

import (
	"sync"
	"time"

	"github.com/austindbirch/hookrelay/internal/webhook"
)

// Limiter tracks one token bucket per subscriber. Refill and take happen in
// one critical section so concurrent dispatches see atomic token semantics.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

type bucket struct {
	tokens     float64
	lastRefill time.Time
	capacity   float64
	perSecond  float64
}

func New() *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Allow takes one token from the subscriber's bucket. Disabled rate limiting
// always allows. A denied event is simply skipped for this subscriber; it is
// not a failure against their health.
func (l *Limiter) Allow(sub *webhook.Subscriber) bool {
	if !sub.RateLimit.Enabled {
		return true
	}

	capacity := float64(sub.RateLimit.Burst)
	if capacity <= 0 {
		capacity = 1
	}
	perSecond := sub.RateLimit.PerSecond
	if perSecond <= 0 {
		perSecond = 1
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[sub.ID]
	if !ok {
		b = &bucket{tokens: capacity, lastRefill: now, capacity: capacity, perSecond: perSecond}
		l.buckets[sub.ID] = b
	}

	// Config changes apply on the next take.
	b.capacity = capacity
	b.perSecond = perSecond

	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed > 0 {
		b.tokens = min(b.capacity, b.tokens+elapsed*b.perSecond)
		b.lastRefill = now
	}

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Forget drops a subscriber's bucket, e.g. after deactivation.
func (l *Limiter) Forget(subscriberID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, subscriberID)
}
