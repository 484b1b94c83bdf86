package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ══════════════════════════════════════════════════════════════════════════════
// RATE LIMITER MIDDLEWARE
// Per-client token buckets. A client is its API key when one is sent,
// otherwise its remote IP.
// ══════════════════════════════════════════════════════════════════════════════

// RateLimitConfig holds configuration for the rate limiter.
type RateLimitConfig struct {
	// RequestsPerMinute is the sustained rate per client. Zero disables limiting.
	RequestsPerMinute int

	// BurstSize is the maximum burst size (tokens in bucket at start).
	BurstSize int

	// IdleTTL is how long an unused bucket is kept before cleanup.
	IdleTTL time.Duration

	// KeyHeader carries the client identity when present.
	KeyHeader string
}

// DefaultRateLimitConfig returns sensible defaults for rate limiting.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 600,
		BurstSize:         50,
		IdleTTL:           10 * time.Minute,
		KeyHeader:         "X-API-Key",
	}
}

// RateLimiter implements per-client rate limiting.
type RateLimiter struct {
	config  RateLimitConfig
	limit   rate.Limit
	clients sync.Map // map[string]*clientBucket
	now     func() time.Time
}

type clientBucket struct {
	limiter  *rate.Limiter
	mu       sync.Mutex
	lastSeen time.Time
	evicted  bool // removed from the map; callers must fetch a new bucket
}

// NewRateLimiter creates a new rate limiter with the given configuration.
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	if config.BurstSize <= 0 {
		config.BurstSize = 1
	}
	if config.IdleTTL <= 0 {
		config.IdleTTL = 10 * time.Minute
	}
	if config.KeyHeader == "" {
		config.KeyHeader = "X-API-Key"
	}

	return &RateLimiter{
		config: config,
		limit:  rate.Limit(float64(config.RequestsPerMinute) / 60.0),
		now:    time.Now,
	}
}

// Enabled reports whether requests are limited at all.
func (rl *RateLimiter) Enabled() bool {
	return rl.config.RequestsPerMinute > 0
}

// Allow consumes a token for the client. On rejection it returns how long
// the client should wait.
func (rl *RateLimiter) Allow(client string) (bool, time.Duration) {
	if !rl.Enabled() {
		return true, 0
	}

	now := rl.now()
	bucket := rl.bucket(client, now)

	if bucket.limiter.AllowN(now, 1) {
		return true, 0
	}

	return false, time.Duration(float64(time.Second) / float64(rl.limit))
}

// bucket returns the live bucket for client and marks it as used. A bucket
// evicted by Cleanup between the map lookup and the lock is never returned.
func (rl *RateLimiter) bucket(client string, now time.Time) *clientBucket {
	for {
		val, ok := rl.clients.Load(client)
		if !ok {
			val, _ = rl.clients.LoadOrStore(client, &clientBucket{
				limiter:  rate.NewLimiter(rl.limit, rl.config.BurstSize),
				lastSeen: now,
			})
		}

		b := val.(*clientBucket)
		b.mu.Lock()
		if b.evicted {
			b.mu.Unlock()
			continue
		}
		b.lastSeen = now
		b.mu.Unlock()
		return b
	}
}

// Cleanup drops buckets idle for longer than IdleTTL and returns how many were removed.
func (rl *RateLimiter) Cleanup() int {
	cutoff := rl.now().Add(-rl.config.IdleTTL)
	removed := 0

	rl.clients.Range(func(key, val any) bool {
		b := val.(*clientBucket)
		b.mu.Lock()
		defer b.mu.Unlock()

		if !b.evicted && b.lastSeen.Before(cutoff) && rl.clients.CompareAndDelete(key, val) {
			b.evicted = true
			removed++
		}
		return true
	})

	return removed
}

// Run calls Cleanup every IdleTTL until ctx is done.
func (rl *RateLimiter) Run(ctx context.Context) error {
	ticker := time.NewTicker(rl.config.IdleTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			rl.Cleanup()
		}
	}
}

// Middleware rejects clients over their rate with 429 and a Retry-After header.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	if !rl.Enabled() {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, retryAfter := rl.Allow(rl.clientKey(r))
		if !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
			writeError(w, http.StatusTooManyRequests, "rate_limited", "Too many requests")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) clientKey(r *http.Request) string {
	if key := r.Header.Get(rl.config.KeyHeader); key != "" {
		return "key:" + hashKey(key)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

// hashKey keeps raw API keys out of the bucket map.
func hashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:8])
}
