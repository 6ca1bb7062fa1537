package bus

import (
	"net"
	"sync"
	"time"
)

// maxTrackedSources bounds the bucket map; idle buckets are swept past it.
const maxTrackedSources = 4096

// RateLimitConfig configures per-source rate limiting.
type RateLimitConfig struct {
	// PerSource is the sustained datagram rate allowed from one source IP,
	// in datagrams per second. 0 means no limit.
	PerSource float64

	// Burst is the bucket size. If 0, defaults to 1 when PerSource is set.
	Burst int
}

// Enabled reports whether the configuration limits anything.
func (c RateLimitConfig) Enabled() bool {
	return c.PerSource > 0
}

// SourceLimiter limits datagrams per source using one token bucket per IP.
type SourceLimiter struct {
	mu      sync.Mutex
	rate    float64 // Tokens per second
	burst   float64 // Max bucket size
	buckets map[string]*tokenBucket
	now     func() time.Time
}

type tokenBucket struct {
	tokens     float64
	lastRefill time.Time
}

// NewSourceLimiter creates a SourceLimiter from cfg.
func NewSourceLimiter(cfg RateLimitConfig) *SourceLimiter {
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &SourceLimiter{
		rate:    cfg.PerSource,
		burst:   float64(burst),
		buckets: make(map[string]*tokenBucket),
		now:     time.Now,
	}
}

// Allow reports whether one more datagram from source may be inspected,
// consuming a token if so.
func (l *SourceLimiter) Allow(source string) bool {
	if l.rate <= 0 {
		return true // No limit
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[source]
	if !ok {
		if len(l.buckets) >= maxTrackedSources {
			l.sweep(now)
		}
		b = &tokenBucket{tokens: l.burst, lastRefill: now}
		l.buckets[source] = b
	}

	// Refill tokens
	b.tokens += now.Sub(b.lastRefill).Seconds() * l.rate
	if b.tokens > l.burst {
		b.tokens = l.burst
	}
	b.lastRefill = now

	// Consume token
	if b.tokens >= 1.0 {
		b.tokens -= 1.0
		return true
	}
	return false
}

// Tracked returns the number of sources with a live bucket.
func (l *SourceLimiter) Tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// sweep drops buckets that would have refilled completely by now.
// Callers must hold l.mu.
func (l *SourceLimiter) sweep(now time.Time) {
	for src, b := range l.buckets {
		if b.tokens+now.Sub(b.lastRefill).Seconds()*l.rate >= l.burst {
			delete(l.buckets, src)
		}
	}
}

// sourceKey extracts the rate-limit key (the IP) from a sender address.
func sourceKey(addr net.Addr) string {
	if udpAddr, ok := addr.(*net.UDPAddr); ok {
		return udpAddr.IP.String()
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err == nil {
		return host
	}
	return addr.String()
}
