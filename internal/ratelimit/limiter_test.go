package ratelimit

import (
	"testing"
	"time"

	"github.com/austindbirch/hookrelay/internal/webhook"
)

func limitedSub(burst int, perSecond float64) *webhook.Subscriber {
	return &webhook.Subscriber{
		ID:        "sub_1",
		RateLimit: webhook.RateLimitConfig{Enabled: true, Burst: burst, PerSecond: perSecond},
	}
}

// fakeClock lets tests advance the limiter's view of time.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter() (*Limiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := New()
	l.now = clock.now
	return l, clock
}

func TestAllowDisabled(t *testing.T) {
	l, _ := newTestLimiter()
	sub := &webhook.Subscriber{ID: "sub_1", RateLimit: webhook.RateLimitConfig{Enabled: false}}
	for i := 0; i < 100; i++ {
		if !l.Allow(sub) {
			t.Fatalf("Allow() = false on call %d with limiting disabled", i)
		}
	}
}

func TestAllowBurstThenDeny(t *testing.T) {
	l, _ := newTestLimiter()
	sub := limitedSub(3, 1)

	for i := 0; i < 3; i++ {
		if !l.Allow(sub) {
			t.Fatalf("Allow() = false on burst call %d", i)
		}
	}
	if l.Allow(sub) {
		t.Error("Allow() = true after burst exhausted")
	}
}

func TestRefill(t *testing.T) {
	l, clock := newTestLimiter()
	sub := limitedSub(2, 2) // 2 tokens/s

	if !l.Allow(sub) || !l.Allow(sub) {
		t.Fatal("burst tokens missing")
	}
	if l.Allow(sub) {
		t.Fatal("Allow() = true with empty bucket")
	}

	clock.advance(500 * time.Millisecond) // +1 token
	if !l.Allow(sub) {
		t.Error("Allow() = false after refill")
	}
	if l.Allow(sub) {
		t.Error("Allow() = true, refill overcounted")
	}
}

func TestRefillCappedAtBurst(t *testing.T) {
	l, clock := newTestLimiter()
	sub := limitedSub(2, 10)

	if !l.Allow(sub) || !l.Allow(sub) {
		t.Fatal("burst tokens missing")
	}

	// A long idle period refills to capacity, never beyond.
	clock.advance(time.Hour)
	if !l.Allow(sub) || !l.Allow(sub) {
		t.Fatal("refilled tokens missing")
	}
	if l.Allow(sub) {
		t.Error("Allow() = true past capacity after idle")
	}
}

func TestBucketsIndependent(t *testing.T) {
	l, _ := newTestLimiter()
	a := limitedSub(1, 1)
	b := limitedSub(1, 1)
	b.ID = "sub_2"

	if !l.Allow(a) {
		t.Fatal("first take for sub_1 denied")
	}
	if l.Allow(a) {
		t.Error("sub_1 bucket should be empty")
	}
	if !l.Allow(b) {
		t.Error("sub_2 bucket drained by sub_1 traffic")
	}
}

func TestZeroConfigDefaults(t *testing.T) {
	l, clock := newTestLimiter()
	sub := limitedSub(0, 0) // treated as burst 1, 1/s

	if !l.Allow(sub) {
		t.Fatal("first take denied with zero config")
	}
	if l.Allow(sub) {
		t.Error("second immediate take allowed with zero config")
	}
	clock.advance(time.Second)
	if !l.Allow(sub) {
		t.Error("take denied after 1s refill with zero config")
	}
}

func TestForget(t *testing.T) {
	l, _ := newTestLimiter()
	sub := limitedSub(1, 0.001)

	if !l.Allow(sub) {
		t.Fatal("first take denied")
	}
	if l.Allow(sub) {
		t.Fatal("bucket should be empty")
	}

	l.Forget(sub.ID)
	if !l.Allow(sub) {
		t.Error("Allow() = false after Forget, want fresh bucket")
	}
}
