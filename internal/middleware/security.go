package middleware

import (
	"github.com/labstack/echo/v4"

	"cors-proxy-go/internal/headers"
)

// SecurityHeaders returns an Echo middleware that strips hop-by-hop headers
// from the inbound request and marks every response as not sniffable and
// not frameable.
func SecurityHeaders() echo.MiddlewareFunc {
	hopByHop := headers.HopByHop()
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			for _, h := range hopByHop {
				c.Request().Header.Del(h)
			}

			res := c.Response().Header()
			res.Set("X-Content-Type-Options", "nosniff")
			res.Set("X-Frame-Options", "DENY")
			res.Set("Referrer-Policy", "no-referrer")

			return next(c)
		}
	}
}
