package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

const (
	allowedOrigin  = "*"
	allowedMethods = "GET, PUT, PATCH, POST, DELETE"
)

// CORS returns an Echo middleware that makes every response readable by
// browser callers on any origin. Preflight (OPTIONS) requests are answered
// with 200 and an empty body and never reach the route handler.
//
// It must be registered ahead of anything that can reject a request so
// that rejections carry the CORS headers too.
func CORS() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			h.Set(echo.HeaderAccessControlAllowOrigin, allowedOrigin)
			h.Set(echo.HeaderAccessControlAllowMethods, allowedMethods)
			if reqHeaders := c.Request().Header.Get(echo.HeaderAccessControlRequestHeaders); reqHeaders != "" {
				h.Set(echo.HeaderAccessControlAllowHeaders, reqHeaders)
			}

			if c.Request().Method == http.MethodOptions {
				return c.NoContent(http.StatusOK)
			}
			return next(c)
		}
	}
}
