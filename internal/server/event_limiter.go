// Package server throttles how fast a single connection may push chat events
// at the relay; over-limit events are discarded while the connection stays
// open.
package server

import (
	"sync"
	"time"
)

// eventLimiter is a token bucket sized for one connection. Each inbound event
// costs a token; tokens refill continuously at burst-per-interval, so a
// connection that pauses regains its full burst.
type eventLimiter struct {
	mu         sync.Mutex
	tokens     float64
	capacity   float64
	refillRate float64
	lastEvent  time.Time
	now        func() time.Time
}

func newEventLimiter(burst int, interval time.Duration) *eventLimiter {
	if burst <= 0 {
		burst = 1
	}
	if interval <= 0 {
		interval = time.Second
	}

	l := &eventLimiter{
		tokens:     float64(burst),
		capacity:   float64(burst),
		refillRate: float64(burst) / interval.Seconds(),
		now:        time.Now,
	}
	l.lastEvent = l.now()
	return l
}

// allow consumes one token if available and reports whether the event may be
// routed.
func (l *eventLimiter) allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	elapsed := now.Sub(l.lastEvent).Seconds()
	l.lastEvent = now

	if elapsed > 0 {
		l.tokens += elapsed * l.refillRate
		if l.tokens > l.capacity {
			l.tokens = l.capacity
		}
	}

	if l.tokens < 1 {
		return false
	}

	l.tokens--
	return true
}
