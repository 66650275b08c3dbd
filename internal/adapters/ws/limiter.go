package ws

import (
	"sync"
	"time"
)

// messageLimiter bounds how many messages one identity may send per sliding
// window. A limit of zero disables it.
type messageLimiter struct {
	mu      sync.Mutex
	history map[string][]time.Time
	limit   int
	window  time.Duration
}

func newMessageLimiter(limit int, window time.Duration) *messageLimiter {
	return &messageLimiter{
		history: make(map[string][]time.Time),
		limit:   limit,
		window:  window,
	}
}

func (l *messageLimiter) allow(subject string) bool {
	if l.limit <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-l.window)

	attempts := l.history[subject]
	fresh := make([]time.Time, 0, len(attempts))
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}

	if len(fresh) >= l.limit {
		l.history[subject] = fresh
		return false
	}

	l.history[subject] = append(fresh, now)
	return true
}

func (l *messageLimiter) forget(subject string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.history, subject)
}
