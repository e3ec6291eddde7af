package retry

import (
	"testing"
	"time"

	"github.com/austindbirch/hookrelay/internal/webhook"
)

func TestDelayTable(t *testing.T) {
	b := Backoff{Base: 1000 * time.Millisecond, Multiplier: 2.0, Max: 30000 * time.Millisecond}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 0, want: 1000 * time.Millisecond},
		{attempt: 1, want: 2000 * time.Millisecond},
		{attempt: 2, want: 4000 * time.Millisecond},
		{attempt: 3, want: 8000 * time.Millisecond},
		{attempt: 4, want: 16000 * time.Millisecond},
		{attempt: 5, want: 30000 * time.Millisecond},
		{attempt: 6, want: 30000 * time.Millisecond},
		{attempt: 20, want: 30000 * time.Millisecond},
	}

	for _, tt := range tests {
		if got := b.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestDelayGuards(t *testing.T) {
	b := Backoff{Base: time.Second, Multiplier: 2, Max: 30 * time.Second}
	if got := b.Delay(-1); got != time.Second {
		t.Errorf("Delay(-1) = %v, want base", got)
	}

	flat := Backoff{Base: time.Second, Multiplier: 0.5, Max: 30 * time.Second}
	if got := flat.Delay(5); got != time.Second {
		t.Errorf("Delay(5) with sub-1 multiplier = %v, want flat base", got)
	}

	uncapped := Backoff{Base: time.Second, Multiplier: 2, Max: 0}
	if got := uncapped.Delay(10); got != 1024*time.Second {
		t.Errorf("Delay(10) uncapped = %v, want 1024s", got)
	}
}

func TestPolicyBackoff(t *testing.T) {
	p := webhook.RetryPolicy{MaxAttempts: 5, BaseDelay: 500 * time.Millisecond, Multiplier: 3, MaxDelay: 10 * time.Second}
	b := PolicyBackoff(p)
	if b.Base != p.BaseDelay || b.Multiplier != p.Multiplier || b.Max != p.MaxDelay {
		t.Errorf("PolicyBackoff() = %+v", b)
	}
	if got := b.Delay(1); got != 1500*time.Millisecond {
		t.Errorf("Delay(1) = %v, want 1.5s", got)
	}
}

func TestDelayMonotonic(t *testing.T) {
	b := Backoff{Base: 250 * time.Millisecond, Multiplier: 1.7, Max: time.Minute}
	prev := time.Duration(0)
	for i := 0; i < 20; i++ {
		d := b.Delay(i)
		if d < prev {
			t.Fatalf("Delay(%d) = %v < previous %v", i, d, prev)
		}
		if d > time.Minute {
			t.Fatalf("Delay(%d) = %v exceeds cap", i, d)
		}
		prev = d
	}
}
