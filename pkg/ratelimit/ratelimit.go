package ratelimit

import (
	"net"
	"net/http"
	"sync"
	"time"
)

// Limiter caps requests per client IP over a fixed window. Counting restarts
// when a client's window elapses; there is no smoothing between windows.
type Limiter struct {
	mu    sync.Mutex
	seen  map[string]*window // per-IP state
	limit int                // requests allowed per window
	span  time.Duration
}

type window struct {
	start time.Time
	left  int // requests remaining
}

// New allows limit requests per span for each client IP
func New(limit int, span time.Duration) *Limiter {
	return &Limiter{seen: map[string]*window{}, limit: limit, span: span}
}

// Middleware rejects over-limit requests with 429 before reaching next
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, _, _ := net.SplitHostPort(r.RemoteAddr)

		l.mu.Lock()
		win := l.seen[ip]
		if win == nil || time.Since(win.start) > l.span {
			win = &window{start: time.Now(), left: l.limit}
			l.seen[ip] = win
		}

		if win.left <= 0 {
			l.mu.Unlock()
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		win.left--
		l.mu.Unlock()

		next.ServeHTTP(w, r)
	})
}
