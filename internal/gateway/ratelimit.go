package gateway

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// maxTrackedKeys caps the number of tracked rate-limit buckets so a client
// that rotates its remote address can't exhaust memory.
const maxTrackedKeys = 4096

// RateLimiter enforces a per-remote-address requests-per-minute budget
// ahead of the WebSocket upgrade, using a token bucket per key so a burst
// of reconnects doesn't immediately trip the limit.
type RateLimiter struct {
	rpm   int
	burst int

	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	seen    map[string]time.Time
}

// NewRateLimiter builds a limiter allowing rpm requests per minute per key,
// with burst as the bucket's initial capacity. rpm <= 0 disables limiting.
func NewRateLimiter(rpm, burst int) *RateLimiter {
	return &RateLimiter{
		rpm: rpm, burst: burst,
		buckets: make(map[string]*rate.Limiter),
		seen:    make(map[string]time.Time),
	}
}

// Enabled reports whether the limiter is actually restricting anything.
func (l *RateLimiter) Enabled() bool { return l.rpm > 0 }

// Allow reports whether key (typically a remote IP) may proceed now,
// consuming one token from its bucket if so.
func (l *RateLimiter) Allow(key string) bool {
	if !l.Enabled() {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.buckets) >= maxTrackedKeys {
		l.evictOldest()
	}

	b, ok := l.buckets[key]
	if !ok {
		b = rate.NewLimiter(rate.Limit(float64(l.rpm)/60.0), l.burst)
		l.buckets[key] = b
	}
	l.seen[key] = time.Now()
	return b.Allow()
}

// evictOldest drops the least-recently-seen quarter of tracked keys. Called
// only while holding l.mu and only once the cap is reached.
func (l *RateLimiter) evictOldest() {
	type entry struct {
		key  string
		seen time.Time
	}
	entries := make([]entry, 0, len(l.seen))
	for k, t := range l.seen {
		entries = append(entries, entry{k, t})
	}
	toEvict := len(entries) / 4
	if toEvict < 1 {
		toEvict = 1
	}
	for i := 0; i < len(entries) && i < toEvict; i++ {
		oldestIdx := i
		for j := i + 1; j < len(entries); j++ {
			if entries[j].seen.Before(entries[oldestIdx].seen) {
				oldestIdx = j
			}
		}
		entries[i], entries[oldestIdx] = entries[oldestIdx], entries[i]
		delete(l.buckets, entries[i].key)
		delete(l.seen, entries[i].key)
	}
}
