package server

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ingestLimiter meters log entries per client IP. Each accepted entry
// costs one token, so a batch of n entries needs n tokens.
type ingestLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	rate     rate.Limit
	burst    int
	ttl      time.Duration
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newIngestLimiter(perSecond float64, burst int, ttl time.Duration) *ingestLimiter {
	return &ingestLimiter{
		limiters: make(map[string]*limiterEntry),
		rate:     rate.Limit(perSecond),
		burst:    burst,
		ttl:      ttl,
	}
}

// allow reports whether ip may submit n entries now. Limiters idle for
// longer than ttl are dropped.
func (l *ingestLimiter) allow(ip string, n int, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for key, e := range l.limiters {
		if now.Sub(e.lastSeen) > l.ttl {
			delete(l.limiters, key)
		}
	}

	e, ok := l.limiters[ip]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[ip] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, n)
}
