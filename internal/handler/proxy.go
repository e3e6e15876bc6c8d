package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"regexp"

	"github.com/labstack/echo/v4"

	"cors-proxy-go/internal/model"
	"cors-proxy-go/internal/service"
)

// queryPattern matches the query string of URLs embedded in error messages.
var queryPattern = regexp.MustCompile(`(https?://[^\s"?#]*)\?[^\s"#]*`)

// ProxyHandler forwards caller requests to their validated destination.
type ProxyHandler struct {
	service *service.ProxyService
	logger  *slog.Logger
}

// NewProxyHandler creates a ProxyHandler.
func NewProxyHandler(svc *service.ProxyService, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		service: svc,
		logger:  logger.With("component", "proxy_handler"),
	}
}

// Handle proxies the request to its destination and streams the response back.
func (h *ProxyHandler) Handle(c echo.Context) error {
	req := c.Request()

	pr := &model.ProxyRequest{
		Ctx:           req.Context(),
		Method:        req.Method,
		Header:        req.Header,
		Body:          req.Body,
		ContentLength: req.ContentLength,
	}

	resp, err := h.service.Handle(pr)
	if err != nil {
		return h.mapError(c, err)
	}
	defer func() { _ = resp.Body.Close() }()

	for key, vals := range resp.Header {
		for _, v := range vals {
			c.Response().Header().Add(key, v)
		}
	}

	c.Response().WriteHeader(resp.StatusCode)

	// The status line is already sent, so a failed copy can only truncate
	// the body.
	if _, err := io.Copy(c.Response(), resp.Body); err != nil {
		h.logger.Error("streaming response body",
			"err", sanitizeError(err),
			"path", req.URL.Path,
		)
	}

	return nil
}

func (h *ProxyHandler) mapError(c echo.Context, err error) error {
	var pe *model.ProxyError
	if errors.As(err, &pe) {
		if pe.Kind == model.KindClientInput || pe.Kind == model.KindForbiddenTarget {
			h.logger.Info("request rejected",
				"kind", pe.Kind.String(),
				"reason", pe.Message,
				"remote_ip", c.RealIP(),
			)
		} else {
			h.logger.Error("proxy error",
				"kind", pe.Kind.String(),
				"err", sanitizeError(err),
				"path", c.Request().URL.Path,
			)
		}
		return c.JSON(pe.Status(), map[string]string{
			"error": pe.Message,
		})
	}

	h.logger.Error("proxy error",
		"err", sanitizeError(err),
		"path", c.Request().URL.Path,
	)

	if errors.Is(err, context.DeadlineExceeded) {
		return c.JSON(http.StatusGatewayTimeout, map[string]string{
			"error": "Upstream request timed out",
		})
	}

	if errors.Is(err, context.Canceled) {
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "Client disconnected",
		})
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "Failed to resolve target hostname",
		})
	}

	return c.JSON(http.StatusBadGateway, map[string]string{
		"error": "Upstream request failed",
	})
}

// sanitizeError redacts query strings from URLs embedded in error messages.
func sanitizeError(err error) string {
	return queryPattern.ReplaceAllString(err.Error(), "${1}?[REDACTED]")
}
