package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Query answering fans out to several upstreams per request, so the limit
// here is deliberately low compared to a typical CRUD API.

type Config struct {
	MaxRequestsPerMinute int
	WindowDuration       time.Duration
	Logger               *zap.Logger
}

type window struct {
	count int
	start time.Time
}

// RateLimiter enforces a fixed-window request count per caller. Callers are
// keyed by the X-User-ID header when present, falling back to client IP.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string]*window

	limit    int
	duration time.Duration
	logger   *zap.Logger
	stop     chan struct{}
}

func New(cfg Config) *RateLimiter {
	if cfg.MaxRequestsPerMinute <= 0 {
		cfg.MaxRequestsPerMinute = 30
	}
	if cfg.WindowDuration <= 0 {
		cfg.WindowDuration = time.Minute
	}

	rl := &RateLimiter{
		windows:  make(map[string]*window),
		limit:    cfg.MaxRequestsPerMinute,
		duration: cfg.WindowDuration,
		logger:   cfg.Logger,
		stop:     make(chan struct{}),
	}

	go rl.janitor()

	return rl
}

func (rl *RateLimiter) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := c.Get("X-User-ID")
		if key == "" {
			key = c.IP()
		}

		allowed, retryAfter := rl.take(key)
		if !allowed {
			if rl.logger != nil {
				rl.logger.Warn("Rate limit exceeded",
					zap.String("key", key),
					zap.String("path", c.Path()),
				)
			}
			c.Set("Retry-After", fmt.Sprintf("%d", int(retryAfter.Seconds())+1))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Rate limit exceeded. Please try again later.",
			})
		}

		return c.Next()
	}
}

// take consumes one request from the caller's current window. When the window
// is exhausted it reports how long until the window rolls over.
func (rl *RateLimiter) take(key string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	w, ok := rl.windows[key]
	if !ok || now.Sub(w.start) >= rl.duration {
		rl.windows[key] = &window{count: 1, start: now}
		return true, 0
	}

	if w.count >= rl.limit {
		return false, rl.duration - now.Sub(w.start)
	}

	w.count++
	return true, 0
}

// janitor drops windows that rolled over long ago so the map stays bounded
// by active callers.
func (rl *RateLimiter) janitor() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case now := <-ticker.C:
			rl.mu.Lock()
			for key, w := range rl.windows {
				if now.Sub(w.start) >= 2*rl.duration {
					delete(rl.windows, key)
				}
			}
			rl.mu.Unlock()
		}
	}
}

func (rl *RateLimiter) Stop() {
	close(rl.stop)
}
