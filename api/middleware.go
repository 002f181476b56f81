package api

import (
	"net"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// rateLimitMiddleware applies a token bucket per client address. A zero
// requests_per_second disables limiting.
func (a *API) rateLimitMiddleware(next http.Handler) http.Handler {
	rps := a.config.API.RateLimit.RequestsPerSecond
	burst := a.config.API.RateLimit.Burst
	if rps <= 0 {
		return next
	}
	if burst < 1 {
		burst = 1
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		a.rateLimitersMu.Lock()
		entry, exists := a.rateLimiters[ip]
		if !exists {
			entry = &rateLimiterEntry{
				limiter:  rate.NewLimiter(rate.Limit(rps), burst),
				lastSeen: time.Now(),
			}
			a.rateLimiters[ip] = entry
		} else {
			entry.lastSeen = time.Now()
		}
		limiter := entry.limiter
		a.rateLimitersMu.Unlock()

		if !limiter.Allow() {
			writeError(w, http.StatusTooManyRequests, "Too many requests", nil, a.logger)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// cleanupRateLimiters drops limiters for clients idle longer than an hour.
func (a *API) cleanupRateLimiters() {
	ticker := time.NewTicker(limiterIdleTTL)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			a.pruneRateLimiters(time.Now())
		case <-a.stopCh:
			return
		}
	}
}

func (a *API) pruneRateLimiters(now time.Time) {
	a.rateLimitersMu.Lock()
	defer a.rateLimitersMu.Unlock()
	for ip, entry := range a.rateLimiters {
		if now.Sub(entry.lastSeen) > limiterIdleTTL {
			delete(a.rateLimiters, ip)
		}
	}
}

// clientIP is the direct peer address; forwarded headers are not trusted.
func clientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
