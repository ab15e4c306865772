// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"fmt"
	"log"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// =============================================================================
// RATE LIMITER
// =============================================================================

// RateLimiter is a fixed-window per-caller limiter. Each caller gets a
// counter that resets when its window expires; a caller at the limit is
// refused until the reset, with Retry-After reporting the wait.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string]*callerWindow

	limit  int
	window time.Duration

	stop     chan struct{}
	stopOnce sync.Once

	now func() time.Time // stubbed in tests
}

type callerWindow struct {
	count   int
	resetAt time.Time
}

// NewRateLimiter creates a limiter allowing limit requests per caller per
// window. A background goroutine evicts expired windows until Close.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		windows: make(map[string]*callerWindow),
		limit:   limit,
		window:  window,
		stop:    make(chan struct{}),
		now:     time.Now,
	}
	go rl.cleanup()
	return rl
}

// Close stops the cleanup goroutine. Safe to call more than once; the
// limiter itself keeps working after Close.
func (rl *RateLimiter) Close() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

// Allow reports whether the caller may proceed. When refused, the second
// return is the time remaining until the caller's window resets.
func (rl *RateLimiter) Allow(caller string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	w := rl.windows[caller]
	if w == nil || !now.Before(w.resetAt) {
		rl.windows[caller] = &callerWindow{count: 1, resetAt: now.Add(rl.window)}
		return true, 0
	}
	if w.count >= rl.limit {
		return false, w.resetAt.Sub(now)
	}
	w.count++
	return true, 0
}

// cleanup periodically drops windows that have expired.
func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.mu.Lock()
			now := rl.now()
			for caller, w := range rl.windows {
				if !now.Before(w.resetAt) {
					delete(rl.windows, caller)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// RateLimitMiddleware refuses callers over their fixed-window budget with
// 429 and a Retry-After header.
func RateLimitMiddleware(limiter *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller := GetClientIP(r)

			allowed, retryIn := limiter.Allow(caller)
			if !allowed {
				secs := int(retryIn.Seconds())
				if secs < 1 {
					secs = 1
				}
				w.Header().Set("Retry-After", fmt.Sprintf("%d", secs))
				log.Printf("RATE_LIMIT_EXCEEDED | caller=%s limit=%d window=%v", caller, limiter.limit, limiter.window)
				writeJSON(w, http.StatusTooManyRequests, errorResponse("rate limit exceeded"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// LoadShedMiddleware refuses requests with 503 when the whole process is
// over its global budget, regardless of caller.
func LoadShedMiddleware(limiter *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				log.Printf("LOAD_SHED | path=%s", r.URL.Path)
				writeJSON(w, http.StatusServiceUnavailable, errorResponse("server overloaded"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// =============================================================================
// LOGGING AND RECOVERY
// =============================================================================

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// LoggingMiddleware logs every request.
//
// Log format: "2024-01-15 14:30:45 | POST /api/suggested-queries | 200 | 0.012s"
func LoggingMiddleware(logger *log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := newResponseWriter(w)

			next.ServeHTTP(wrapped, r)

			logger.Printf("%s | %s %s | %d | %.3fs",
				start.Format("2006-01-02 15:04:05"),
				r.Method,
				r.URL.Path,
				wrapped.statusCode,
				time.Since(start).Seconds(),
			)
		})
	}
}

// RecoveryMiddleware catches panics in downstream handlers, logs the stack
// trace, and returns 500 instead of crashing the server.
func RecoveryMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.Printf("PANIC_RECOVERED | method=%s path=%s error=%v\n%s",
						r.Method, r.URL.Path, err, debug.Stack())
					writeJSON(w, http.StatusInternalServerError, errorResponse("internal server error"))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// Chain composes middlewares so they execute in the order provided.
func Chain(middlewares ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}

// =============================================================================
// CLIENT IDENTITY
// =============================================================================

// GetClientIP extracts the caller identity used for rate limiting.
// X-Forwarded-For is only trusted when the connection itself comes from
// loopback, so a direct caller cannot reset its own budget with a header.
func GetClientIP(r *http.Request) string {
	connIP := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		connIP = host
	}

	ip := net.ParseIP(connIP)
	if ip == nil || !ip.IsLoopback() {
		return connIP
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if net.ParseIP(first) != nil {
			return first
		}
	}
	return connIP
}
