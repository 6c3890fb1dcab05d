// Package ratelimit admits at most a fixed number of requests per caller in
// each fixed time window.
package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// Defaults.
const (
	DefaultMax    = 60
	DefaultWindow = time.Minute
)

// Response headers.
const (
	HeaderLimit     = "X-RateLimit-Limit"
	HeaderRemaining = "X-RateLimit-Remaining"
	HeaderReset     = "X-RateLimit-Reset"
)

type window struct {
	count   int
	resetAt time.Time
}

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Limiter is a fixed window counter per key. A janitor goroutine drops
// expired windows until Close is called.
type Limiter struct {
	max    int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	windows map[string]*window

	done      chan struct{}
	closeOnce sync.Once
}

// New creates a limiter and starts its janitor.
func New(max int, windowSize time.Duration) *Limiter {
	if max <= 0 {
		max = DefaultMax
	}
	if windowSize <= 0 {
		windowSize = DefaultWindow
	}
	l := &Limiter{
		max:     max,
		window:  windowSize,
		now:     time.Now,
		windows: make(map[string]*window),
		done:    make(chan struct{}),
	}
	go l.janitor()
	return l
}

// Allow counts a request for key and reports whether it is admitted.
func (l *Limiter) Allow(key string) Decision {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(l.window)}
		l.windows[key] = w
	}
	w.count++

	remaining := l.max - w.count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   w.count <= l.max,
		Limit:     l.max,
		Remaining: remaining,
		ResetAt:   w.resetAt,
	}
}

// Len returns the number of tracked windows.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// Close stops the janitor.
func (l *Limiter) Close() {
	l.closeOnce.Do(func() { close(l.done) })
}

func (l *Limiter) janitor() {
	ticker := time.NewTicker(l.window)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.sweep()
		case <-l.done:
			return
		}
	}
}

// sweep drops windows that have ended.
func (l *Limiter) sweep() {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	for key, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, key)
		}
	}
}

// Middleware admits requests by client ip and sets the rate limit headers
// on every response.
func (l *Limiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		d := l.Allow(c.ClientIP())

		c.Header(HeaderLimit, strconv.Itoa(d.Limit))
		c.Header(HeaderRemaining, strconv.Itoa(d.Remaining))
		c.Header(HeaderReset, strconv.FormatInt(resetSeconds(d.ResetAt), 10))

		if !d.Allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests"})
			return
		}
		c.Next()
	}
}

// resetSeconds rounds the reset time up to whole unix seconds.
func resetSeconds(t time.Time) int64 {
	return int64(math.Ceil(float64(t.UnixNano()) / float64(time.Second)))
}
