package server

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"
)

// Idle clients are evicted after this long to bound the limiter map
const clientTTL = 2 * time.Hour

// clientLimiter holds both token buckets for one principal
type clientLimiter struct {
	minute   *rate.Limiter
	hour     *rate.Limiter
	lastSeen time.Time
}

// RateLimiter enforces per-minute and per-hour caps per client IP with
// in-process token buckets.
type RateLimiter struct {
	mu        sync.Mutex
	clients   map[string]*clientLimiter
	perMinute int
	perHour   int
	logger    arbor.ILogger
}

// NewRateLimiter creates a rate limiter with the configured caps
func NewRateLimiter(perMinute, perHour int, logger arbor.ILogger) *RateLimiter {
	return &RateLimiter{
		clients:   make(map[string]*clientLimiter),
		perMinute: perMinute,
		perHour:   perHour,
		logger:    logger,
	}
}

// Allow reports whether the principal may proceed, and on rejection the
// duration after which a retry could succeed.
func (rl *RateLimiter) Allow(principal string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	c, ok := rl.clients[principal]
	if !ok {
		c = &clientLimiter{
			minute: rate.NewLimiter(rate.Limit(float64(rl.perMinute)/60.0), rl.perMinute),
			hour:   rate.NewLimiter(rate.Limit(float64(rl.perHour)/3600.0), rl.perHour),
		}
		rl.clients[principal] = c
	}
	c.lastSeen = time.Now()

	rm := c.minute.Reserve()
	if d := rm.Delay(); d > 0 {
		rm.Cancel()
		return false, d
	}
	rh := c.hour.Reserve()
	if d := rh.Delay(); d > 0 {
		rh.Cancel()
		// Return the minute token too, or hour-capped clients would drain
		// their per-minute allowance on rejected requests
		rm.Cancel()
		return false, d
	}
	return true, 0
}

// Prune evicts clients idle past the TTL; called periodically
func (rl *RateLimiter) Prune() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-clientTTL)
	for principal, c := range rl.clients {
		if c.lastSeen.Before(cutoff) {
			delete(rl.clients, principal)
		}
	}
}

// Middleware rejects over-limit requests with 429 and a Retry-After hint
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal := clientIP(r)

		ok, retryAfter := rl.Allow(principal)
		if !ok {
			seconds := int(retryAfter.Seconds()) + 1
			w.Header().Set("Retry-After", strconv.Itoa(seconds))
			rl.logger.Warn().
				Str("client", principal).
				Str("path", r.URL.Path).
				Msg("Request rate limited")
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// clientIP resolves the requesting principal, honouring the first
// X-Forwarded-For hop when present.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		for i := 0; i < len(fwd); i++ {
			if fwd[i] == ',' {
				return fwd[:i]
			}
		}
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
