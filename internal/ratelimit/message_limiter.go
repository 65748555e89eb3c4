package ratelimit

import (
	"sync"
	"time"
)

// MessageLimiter caps inbound signaling messages on a single connection at
// perSecond, with a burst of one second's worth of messages.
//
// It tracks the theoretical arrival time of the next message (GCRA): each
// accepted message pushes tat forward by one interval, and a message is
// rejected while tat runs more than burst-1 intervals ahead of the clock.
//
// A nil *MessageLimiter allows everything.
type MessageLimiter struct {
	mu    sync.Mutex
	clock Clock

	interval time.Duration
	slack    time.Duration // (burst-1) * interval
	tat      time.Time
}

// NewMessageLimiter returns nil when perSecond <= 0.
func NewMessageLimiter(clock Clock, perSecond int) *MessageLimiter {
	if perSecond <= 0 {
		return nil
	}
	if clock == nil {
		clock = RealClock{}
	}
	interval := time.Second / time.Duration(perSecond)
	if interval <= 0 {
		interval = time.Nanosecond
	}
	return &MessageLimiter{
		clock:    clock,
		interval: interval,
		slack:    time.Duration(perSecond-1) * interval,
		tat:      clock.Now(),
	}
}

func (l *MessageLimiter) Allow() bool {
	if l == nil {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	tat := l.tat
	if tat.Before(now) {
		tat = now
	}
	if tat.Sub(now) > l.slack {
		return false
	}
	l.tat = tat.Add(l.interval)
	return true
}
