package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

const rateLimitedBody = `{"success":false,"message":"Too many requests, please try again later"}` + "\n"

// RateLimitConfig configures the per-client sliding window limiter.
type RateLimitConfig struct {
	Max    int
	Window time.Duration
	// KeyFunc extracts the client key. Defaults to the client IP.
	KeyFunc func(*http.Request) string
	// Skip exempts matching requests, e.g. provider webhooks.
	Skip func(*http.Request) bool
}

type window struct {
	start    time.Time
	count    float64
	previous float64
}

// Limiter approximates a sliding window from the current and previous fixed
// windows.
type Limiter struct {
	max    int
	size   time.Duration
	mu     sync.Mutex
	byKey  map[string]*window
	nowFun func() time.Time
}

// NewLimiter allows limit events per key per size.
func NewLimiter(limit int, size time.Duration) *Limiter {
	return &Limiter{
		max:    limit,
		size:   size,
		byKey:  make(map[string]*window),
		nowFun: time.Now,
	}
}

// Allow records an event for key. It reports whether the event fits, the
// remaining budget and when the current window resets.
func (l *Limiter) Allow(key string) (ok bool, remaining int, reset time.Time) {
	now := l.nowFun()

	l.mu.Lock()
	defer l.mu.Unlock()

	win, found := l.byKey[key]
	if !found {
		win = &window{start: now.Truncate(l.size)}
		l.byKey[key] = win
	}
	if elapsed := now.Sub(win.start); elapsed >= l.size {
		win.previous = 0
		if elapsed < 2*l.size {
			win.previous = win.count
		}
		win.count = 0
		win.start = now.Truncate(l.size)
	}

	weight := 1 - float64(now.Sub(win.start))/float64(l.size)
	estimate := win.previous*math.Max(weight, 0) + win.count
	reset = win.start.Add(l.size)
	if estimate >= float64(l.max) {
		return false, 0, reset
	}
	win.count++
	return true, max(int(float64(l.max)-estimate-1), 0), reset
}

// Prune drops keys idle for two windows.
func (l *Limiter) Prune() {
	now := l.nowFun()
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, win := range l.byKey {
		if now.Sub(win.start) >= 2*l.size {
			delete(l.byKey, key)
		}
	}
}

// RunPruner prunes every two windows until ctx is done.
func (l *Limiter) RunPruner(ctx context.Context) {
	ticker := time.NewTicker(2 * l.size)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Prune()
		}
	}
}

// RateLimit enforces cfg using limiter. Every response carries the
// X-RateLimit-* headers; rejected requests get 429 with Retry-After.
func RateLimit(cfg RateLimitConfig, limiter *Limiter) Middleware {
	keyOf := cfg.KeyFunc
	if keyOf == nil {
		keyOf = ClientIP
	}
	limit := strconv.Itoa(cfg.Max)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Skip != nil && cfg.Skip(r) {
				next.ServeHTTP(w, r)
				return
			}

			ok, remaining, reset := limiter.Allow(keyOf(r))
			h := w.Header()
			h.Set("X-RateLimit-Limit", limit)
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
			if ok {
				next.ServeHTTP(w, r)
				return
			}

			wait := max(reset.Sub(limiter.nowFun()), 0)
			h.Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			h.Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(rateLimitedBody))
		})
	}
}

// ClientIP returns the first X-Forwarded-For hop, X-Real-IP, or the remote
// address host.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
