package middleware

import (
	"sync"
	"time"
)

// LoginLimiter throttles credential-exchange attempts per client address.
// Operator access tokens are long-lived opaque strings, so the exchange
// endpoint is the one place worth brute-forcing; everything behind it
// already requires a signed bearer token.
type LoginLimiter struct {
	mu       sync.Mutex
	attempts map[string]*attemptWindow
	limit    int
	window   time.Duration
	now      func() time.Time
}

type attemptWindow struct {
	count   int
	resetAt time.Time
}

func NewLoginLimiter(limit int, window time.Duration) *LoginLimiter {
	return NewLoginLimiterWithNow(limit, window, time.Now)
}

func NewLoginLimiterWithNow(limit int, window time.Duration, now func() time.Time) *LoginLimiter {
	l := &LoginLimiter{
		attempts: make(map[string]*attemptWindow),
		limit:    limit,
		window:   window,
		now:      now,
	}
	go l.sweep()
	return l
}

func (l *LoginLimiter) sweep() {
	if l.window <= 0 {
		return
	}

	ticker := time.NewTicker(l.window)
	defer ticker.Stop()

	for range ticker.C {
		l.mu.Lock()
		now := l.now()
		for addr, w := range l.attempts {
			if now.After(w.resetAt) {
				delete(l.attempts, addr)
			}
		}
		l.mu.Unlock()
	}
}

// Allow records one exchange attempt from addr and reports whether it may
// proceed. Every attempt counts against the window, successful or not.
func (l *LoginLimiter) Allow(addr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, exists := l.attempts[addr]
	if !exists || now.After(w.resetAt) {
		l.attempts[addr] = &attemptWindow{count: 1, resetAt: now.Add(l.window)}
		return true
	}

	if w.count >= l.limit {
		return false
	}

	w.count++
	return true
}
