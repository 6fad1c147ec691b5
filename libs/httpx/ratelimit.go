package httpx

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Decision is the outcome of one limiter check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	// RetryAfter is the time until the current window resets.
	RetryAfter time.Duration
}

// Limiter counts one request for key against its window.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

type RateLimitOptions struct {
	// FailOpen lets requests through when the limiter errors; otherwise they get 503.
	FailOpen bool
	// TrustForwarded keys clients by the first X-Forwarded-For hop. Enable only behind a
	// proxy that overwrites the header.
	TrustForwarded bool
}

// RateLimit rejects requests over the limit with 429 and Retry-After. Every limited
// response carries X-RateLimit-Limit and X-RateLimit-Remaining.
func RateLimit(l Limiter, logger *slog.Logger, opts RateLimitOptions) Middleware {
	if l == nil {
		return nil
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d, err := l.Allow(r.Context(), clientIP(r, opts.TrustForwarded))
			if err != nil {
				if logger != nil {
					logger.WarnContext(r.Context(), "rate limiter error", "request_id", RequestIDFromContext(r.Context()), "err", err)
				}
				if opts.FailOpen {
					next.ServeHTTP(w, r)
					return
				}
				WriteError(w, http.StatusServiceUnavailable, "unavailable", "rate limiter unavailable")
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(max(d.Remaining, 0)))
			if !d.Allowed {
				secs := int((d.RetryAfter + time.Second - 1) / time.Second)
				h.Set("Retry-After", strconv.Itoa(max(secs, 1)))
				WriteError(w, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// MemoryRateLimiter is a per-process fixed-window limiter for single-instance deployments.
type MemoryRateLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	windows map[string]*window
}

type window struct {
	count   int
	resetAt time.Time
}

// sweepThreshold is the number of tracked keys above which expired windows are dropped.
const sweepThreshold = 10000

func NewMemoryRateLimiter(limit int, period time.Duration) *MemoryRateLimiter {
	if limit <= 0 {
		limit = 60
	}
	if period <= 0 {
		period = time.Minute
	}
	return &MemoryRateLimiter{
		limit:   limit,
		window:  period,
		now:     time.Now,
		windows: map[string]*window{},
	}
}

func (rl *MemoryRateLimiter) Allow(_ context.Context, key string) (Decision, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	w := rl.windows[key]
	if w == nil || !now.Before(w.resetAt) {
		if len(rl.windows) > sweepThreshold {
			rl.sweep(now)
		}
		w = &window{resetAt: now.Add(rl.window)}
		rl.windows[key] = w
	}

	d := Decision{Limit: rl.limit, RetryAfter: w.resetAt.Sub(now)}
	if w.count >= rl.limit {
		return d, nil
	}
	w.count++
	d.Allowed = true
	d.Remaining = rl.limit - w.count
	return d, nil
}

func (rl *MemoryRateLimiter) sweep(now time.Time) {
	for k, w := range rl.windows {
		if !now.Before(w.resetAt) {
			delete(rl.windows, k)
		}
	}
}

func clientIP(r *http.Request, trustForwarded bool) string {
	if trustForwarded {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
