package api

import (
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v5"
)

// securityHeaders returns middleware that sets standard security response headers.
func securityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			h := c.Response().Header()
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			return next(c)
		}
	}
}

// corsMiddleware returns middleware that allows cross-origin requests
// from the given origins, with credentials. Preflight OPTIONS requests
// are answered directly with 204.
func corsMiddleware(origins []string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			req := c.Request()
			origin := req.Header.Get("Origin")

			h := c.Response().Header()
			h.Add("Vary", "Origin")

			if origin == "" || !originAllowed(origin, origins) {
				return next(c)
			}

			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")

			if req.Method == http.MethodOptions {
				h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				requested := req.Header.Get("Access-Control-Request-Headers")
				if requested == "" {
					requested = "Content-Type, Authorization"
				}
				h.Set("Access-Control-Allow-Headers", requested)
				h.Set("Access-Control-Max-Age", "86400")
				c.Response().WriteHeader(http.StatusNoContent)
				return nil
			}

			return next(c)
		}
	}
}

func originAllowed(origin string, allowed []string) bool {
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}
