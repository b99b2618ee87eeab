package security

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

type HeadersConfig struct {
	AllowedOrigins []string
	IsDevelopment  bool
}

// HeadersMiddleware sets the response headers for a JSON API that serves no
// HTML of its own. The CSP denies everything except API and websocket
// connections back to the allowed origins.
func HeadersMiddleware(cfg HeadersConfig) fiber.Handler {
	csp := buildCSP(cfg.AllowedOrigins)

	return func(c *fiber.Ctx) error {
		c.Set("X-Frame-Options", "DENY")
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("Referrer-Policy", "no-referrer")
		c.Set("Content-Security-Policy", csp)
		c.Set("Cache-Control", "no-store")

		if !cfg.IsDevelopment {
			c.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		return c.Next()
	}
}

func buildCSP(origins []string) string {
	connectSrc := "'self'"
	for _, origin := range origins {
		connectSrc += " " + origin
		// Websocket query streaming connects from the same origins.
		if ws := websocketOrigin(origin); ws != "" {
			connectSrc += " " + ws
		}
	}

	return "default-src 'none'; connect-src " + connectSrc + "; frame-ancestors 'none'; base-uri 'none'"
}

func websocketOrigin(origin string) string {
	switch {
	case strings.HasPrefix(origin, "https://"):
		return "wss://" + strings.TrimPrefix(origin, "https://")
	case strings.HasPrefix(origin, "http://"):
		return "ws://" + strings.TrimPrefix(origin, "http://")
	}
	return ""
}
