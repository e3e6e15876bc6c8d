// Package service implements the core proxy forwarding logic.
package service

import (
	"errors"
	"log/slog"
	"net/http"

	"cors-proxy-go/internal/client"
	"cors-proxy-go/internal/config"
	"cors-proxy-go/internal/dnsguard"
	"cors-proxy-go/internal/headers"
	"cors-proxy-go/internal/metrics"
	"cors-proxy-go/internal/model"
	"cors-proxy-go/internal/target"
)

// forwardableResponseHeaders are the only response headers returned to the caller.
var forwardableResponseHeaders = map[string]bool{
	"Content-Type":     true,
	"Content-Length":   true,
	"Content-Encoding": true,
	"Cache-Control":    true,
	"Date":             true,
	"Etag":             true,
	"Last-Modified":    true,
}

const userAgent = "cors-proxy-go/1.0"

// ProxyService runs the validate, resolve, sanitize and forward stages for
// a single request.
type ProxyService struct {
	validator *target.Validator
	guard     *dnsguard.Guard
	client    *client.ForwardClient
	cfg       *config.Config
	logger    *slog.Logger
	metrics   *metrics.Metrics // nil-safe
}

// NewProxyService creates a ProxyService.
func NewProxyService(
	v *target.Validator,
	g *dnsguard.Guard,
	c *client.ForwardClient,
	cfg *config.Config,
	logger *slog.Logger,
	m *metrics.Metrics,
) *ProxyService {
	return &ProxyService{
		validator: v,
		guard:     g,
		client:    c,
		cfg:       cfg,
		logger:    logger.With("component", "proxy_service"),
		metrics:   m,
	}
}

// Handle forwards pr to the destination named in its target header and
// returns the response to write back. The caller is responsible for
// closing the response body.
//
// Every returned error is a *model.ProxyError. The destination is never
// contacted unless all checks pass.
func (s *ProxyService) Handle(pr *model.ProxyRequest) (*model.ProxyResponse, error) {
	t, err := s.validator.Validate(pr.Header.Get(s.cfg.Proxy.TargetHeader))
	if err != nil {
		return nil, s.reject(err)
	}

	addrs, err := s.guard.Check(pr.Ctx, t.Host)
	if err != nil {
		return nil, s.reject(err)
	}

	custom := pr.Header.Values(s.cfg.Proxy.HeadersHeader)
	raw := ""
	if len(custom) > 0 {
		raw = custom[0]
	}
	outHeader, err := headers.Sanitize(raw, len(custom) > 0)
	if err != nil {
		return nil, s.reject(err)
	}
	if outHeader.Get("User-Agent") == "" {
		outHeader.Set("User-Agent", userAgent)
	}

	plan := &model.OutboundPlan{
		URL:           t.URL(),
		Host:          t.Host,
		Method:        pr.Method,
		Header:        outHeader,
		Body:          pr.Body,
		ContentLength: pr.ContentLength,
		Addrs:         addrs,
	}

	s.logger.Debug("forwarding request",
		"method", plan.Method,
		"host", plan.Host,
		"path", t.Path,
		"addrs", len(plan.Addrs),
	)

	resp, err := s.client.Forward(pr.Ctx, plan)
	if err != nil {
		return nil, s.reject(err)
	}

	resp.Header = filterResponseHeaders(resp.Header)
	if !s.cfg.Proxy.PropagateStatus {
		resp.StatusCode = http.StatusOK
	}
	return resp, nil
}

// reject counts err by kind and normalizes it to a *model.ProxyError.
func (s *ProxyService) reject(err error) error {
	var pe *model.ProxyError
	if !errors.As(err, &pe) {
		pe = client.ErrUpstreamFailed.WithCause(err)
	}
	if s.metrics != nil {
		s.metrics.Rejections.WithLabelValues(pe.Kind.String()).Inc()
	}
	return pe
}

func filterResponseHeaders(src http.Header) http.Header {
	dst := make(http.Header)
	for key, vals := range src {
		if forwardableResponseHeaders[http.CanonicalHeaderKey(key)] {
			dst[key] = vals
		}
	}
	return dst
}
