package ratelimit

import (
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestMessageLimiter_DisabledAllowsAll(t *testing.T) {
	l := NewMessageLimiter(nil, 0)
	if l != nil {
		t.Fatalf("NewMessageLimiter(0)=%v, want nil", l)
	}
	for i := 0; i < 1000; i++ {
		if !l.Allow() {
			t.Fatalf("nil limiter rejected message %d", i)
		}
	}
}

func TestMessageLimiter_BurstThenRefill(t *testing.T) {
	clk := &fakeClock{now: time.Unix(0, 0)}
	l := NewMessageLimiter(clk, 3)

	for i := 0; i < 3; i++ {
		if !l.Allow() {
			t.Fatalf("message %d rejected within burst", i)
		}
	}
	if l.Allow() {
		t.Fatalf("expected 4th message within the same second to be rejected")
	}

	// One interval is time.Second/3 truncated; step just past it.
	clk.Advance(time.Second/3 + time.Nanosecond)
	if !l.Allow() {
		t.Fatalf("expected one message after refill")
	}
	if l.Allow() {
		t.Fatalf("expected bucket empty again")
	}
}

func TestMessageLimiter_IdleDoesNotExceedBurst(t *testing.T) {
	clk := &fakeClock{now: time.Unix(0, 0)}
	l := NewMessageLimiter(clk, 2)

	clk.Advance(10 * time.Second)
	for i := 0; i < 2; i++ {
		if !l.Allow() {
			t.Fatalf("message %d rejected after idle", i)
		}
	}
	if l.Allow() {
		t.Fatalf("idle time accrued more than one second of burst")
	}
}

func TestMessageLimiter_ClockBackwardsDoesNotRefill(t *testing.T) {
	clk := &fakeClock{now: time.Unix(10, 0)}
	l := NewMessageLimiter(clk, 2)

	if !l.Allow() || !l.Allow() {
		t.Fatalf("expected initial burst")
	}
	clk.Advance(-5 * time.Second)
	if l.Allow() {
		t.Fatalf("expected no refill when the clock moves backwards")
	}
	clk.Advance(5*time.Second + 500*time.Millisecond)
	if !l.Allow() {
		t.Fatalf("expected refill once the clock catches up")
	}
}

func TestMessageLimiter_SteadyRateIsSustained(t *testing.T) {
	clk := &fakeClock{now: time.Unix(0, 0)}
	l := NewMessageLimiter(clk, 10)

	for i := 0; i < 10; i++ {
		l.Allow()
	}
	for i := 0; i < 50; i++ {
		clk.Advance(100 * time.Millisecond)
		if !l.Allow() {
			t.Fatalf("message %d at the configured rate rejected", i)
		}
	}
}

func TestNewMessageLimiter_DefaultsToRealClock(t *testing.T) {
	l := NewMessageLimiter(nil, 1)
	if _, ok := l.clock.(RealClock); !ok {
		t.Fatalf("clock=%T, want RealClock", l.clock)
	}
	if !l.Allow() || l.Allow() {
		t.Fatalf("expected exactly one message within the first second")
	}
}
