// Package ratelimit throttles inbound client connection attempts per
// remote address before a Session even exists, the same per-IP token
// bucket shape the teacher uses ahead of its own HTTP handler chain,
// adapted here to gate raw TCP accepts instead of requests.
package ratelimit

import (
	"net"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter rate-limits by remote address, evicting idle visitors so the
// map does not grow unboundedly across the life of the process.
type Limiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     rate.Limit
	burst    int
	ttl      time.Duration
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// New creates a Limiter allowing r connections per second per address,
// with burst capacity b. Entries idle longer than ttl are evicted by
// Cleanup.
func New(r float64, b int, ttl time.Duration) *Limiter {
	return &Limiter{
		visitors: make(map[string]*visitor),
		rate:     rate.Limit(r),
		burst:    b,
		ttl:      ttl,
	}
}

// Allow reports whether a new connection attempt from addr may proceed.
func (l *Limiter) Allow(addr string, now time.Time) bool {
	key := hostOnly(addr)

	l.mu.Lock()
	defer l.mu.Unlock()

	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// Cleanup evicts visitors that have been idle longer than ttl. Intended
// to be called from the scheduler's periodic tick.
func (l *Limiter) Cleanup(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, v := range l.visitors {
		if now.Sub(v.lastSeen) > l.ttl {
			delete(l.visitors, key)
		}
	}
}

func hostOnly(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return strings.TrimSpace(addr)
}
