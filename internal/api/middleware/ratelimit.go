package middleware

import (
	"banking-engine/internal/config"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter throttles requests per client IP, one token bucket each.
// Buckets that have fully refilled are dropped by a background sweep so the
// map does not grow without bound.
type RateLimiter struct {
	buckets sync.Map
	cfg     config.RateLimitConfig
	logger  *slog.Logger
}

func NewRateLimiterMiddleware(cfg config.RateLimitConfig, logger *slog.Logger) *RateLimiter {
	rl := &RateLimiter{
		cfg:    cfg,
		logger: logger.With("component", "rateLimiter"),
	}
	go rl.sweep(10 * time.Minute)
	return rl
}

func (rl *RateLimiter) bucketFor(ip string) *rate.Limiter {
	if b, ok := rl.buckets.Load(ip); ok {
		return b.(*rate.Limiter)
	}
	b, _ := rl.buckets.LoadOrStore(ip, rate.NewLimiter(rate.Limit(rl.cfg.RPS), rl.cfg.Burst))
	return b.(*rate.Limiter)
}

func (rl *RateLimiter) sweep(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for range ticker.C {
		rl.buckets.Range(func(key, value any) bool {
			// A bucket at full burst capacity has seen no traffic for at
			// least burst/rps seconds.
			if value.(*rate.Limiter).TokensAt(time.Now()) >= float64(rl.cfg.Burst) {
				rl.buckets.Delete(key)
			}
			return true
		})
	}
}

// clientIP prefers proxy headers over the socket address so limits apply to
// the originating client when the service runs behind a load balancer.
func (rl *RateLimiter) clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	if !rl.cfg.Enabled {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := rl.clientIP(r)
		if !rl.bucketFor(ip).Allow() {
			rl.logger.WarnContext(r.Context(), "Request throttled", "client_ip", ip, "path", r.URL.Path)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]string{
					"message": "Too many requests, slow down",
				},
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}
