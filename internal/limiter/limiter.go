// Package limiter throttles reconnect attempts per relay. A relay that
// flaps or rejects the handshake would otherwise be redialed in a tight
// loop on every operation that touches it.
package limiter

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const defaultDialsPerMinute = 12

// DialLimiter keeps one token bucket per relay URL. Buckets are created
// lazily and refill continuously, so a healthy relay is never throttled.
type DialLimiter struct {
	mu        sync.Mutex
	perMinute int
	buckets   map[string]*rate.Limiter
	lastUsed  map[string]time.Time
}

func NewDialLimiter(dialsPerMinute int) *DialLimiter {
	if dialsPerMinute <= 0 {
		dialsPerMinute = defaultDialsPerMinute
	}
	return &DialLimiter{
		perMinute: dialsPerMinute,
		buckets:   make(map[string]*rate.Limiter),
		lastUsed:  make(map[string]time.Time),
	}
}

// Allow reports whether a dial to url may proceed now, consuming a token
// when it does.
func (l *DialLimiter) Allow(url string) bool {
	l.mu.Lock()
	bucket, ok := l.buckets[url]
	if !ok {
		bucket = rate.NewLimiter(rate.Limit(float64(l.perMinute)/60.0), l.perMinute)
		l.buckets[url] = bucket
	}
	l.lastUsed[url] = time.Now()
	l.mu.Unlock()
	return bucket.Allow()
}

// Forget drops the bucket for url, typically after the relay is removed
// from the pool.
func (l *DialLimiter) Forget(url string) {
	l.mu.Lock()
	delete(l.buckets, url)
	delete(l.lastUsed, url)
	l.mu.Unlock()
}

// Cleanup removes buckets idle longer than maxIdle.
func (l *DialLimiter) Cleanup(maxIdle time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	for url, last := range l.lastUsed {
		if now.Sub(last) > maxIdle {
			delete(l.buckets, url)
			delete(l.lastUsed, url)
		}
	}
}
