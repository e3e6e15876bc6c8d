// Package client provides the outbound HTTP client that reaches validated
// destinations.
package client

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"time"

	"cors-proxy-go/internal/config"
	"cors-proxy-go/internal/metrics"
	"cors-proxy-go/internal/model"
)

// Failures returned by Forward.
var (
	ErrUpstreamFailed     = model.Upstream("Upstream request failed", nil)
	ErrUpstreamTimeout    = model.Timeout("Upstream request timed out", nil)
	ErrClientDisconnected = model.ErrClientDisconnected
)

// errNoPinnedAddrs is returned by the dialer when a request reaches the
// transport without a validated address set.
var errNoPinnedAddrs = errors.New("no validated addresses for destination")

// DialFunc dials a single network address.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

type pinnedAddrsKey struct{}

// withPinnedAddrs attaches the addresses the transport is allowed to dial.
func withPinnedAddrs(ctx context.Context, addrs []netip.Addr) context.Context {
	return context.WithValue(ctx, pinnedAddrsKey{}, addrs)
}

func pinnedAddrs(ctx context.Context) []netip.Addr {
	addrs, _ := ctx.Value(pinnedAddrsKey{}).([]netip.Addr)
	return addrs
}

// ForwardClient sends validated requests to their destination.
type ForwardClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// Option customizes a ForwardClient.
type Option func(*options)

type options struct {
	tlsConfig *tls.Config
	dial      DialFunc
}

// WithTLSConfig sets the TLS configuration used for destination
// connections, for example to trust a private root CA.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(o *options) { o.tlsConfig = cfg }
}

// WithDialer replaces the dialer used for each pinned address.
func WithDialer(dial DialFunc) Option {
	return func(o *options) { o.dial = dial }
}

// NewForwardClient creates a ForwardClient with connection pooling and timeouts.
// The metrics parameter is optional; pass nil to disable upstream metrics recording.
func NewForwardClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics, opts ...Option) *ForwardClient {
	d := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	o := options{dial: d.DialContext}
	for _, opt := range opts {
		opt(&o)
	}
	return newForwardClient(cfg, logger, m, o.tlsConfig, o.dial)
}

func newForwardClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics, tlsCfg *tls.Config, dial DialFunc) *ForwardClient {
	logger = logger.With("component", "forward_client")
	transport := &http.Transport{
		// Proxy stays nil: an environment proxy would resolve the
		// destination itself.
		MaxIdleConns:          cfg.Upstream.IdleConnections,
		MaxIdleConnsPerHost:   cfg.Upstream.IdleConnections,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
		TLSClientConfig:       tlsCfg,
		DialContext:           pinnedDialer(dial, logger),
	}

	return &ForwardClient{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   time.Duration(cfg.Upstream.TimeoutSeconds) * time.Second,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger:  logger,
		metrics: m,
	}
}

// pinnedDialer ignores the host in addr and dials the validated addresses
// carried by ctx, in order, on the requested port.
func pinnedDialer(dial DialFunc, logger *slog.Logger) DialFunc {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		_, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, fmt.Errorf("split %q: %w", addr, err)
		}
		addrs := pinnedAddrs(ctx)
		if len(addrs) == 0 {
			return nil, errNoPinnedAddrs
		}

		var errs []error
		for _, ip := range addrs {
			target := net.JoinHostPort(ip.String(), port)
			conn, err := dial(ctx, network, target)
			if err == nil {
				return conn, nil
			}
			logger.Debug("dial failed", "addr", target, "error", err)
			errs = append(errs, err)
			if ctx.Err() != nil {
				break
			}
		}
		return nil, errors.Join(errs...)
	}
}

// Forward performs a single attempt against plan.URL. The caller is
// responsible for closing the response body.
//
// ctx controls the lifetime of the destination call: when it is canceled
// (e.g. the caller disconnects) the outbound request is canceled too.
func (c *ForwardClient) Forward(ctx context.Context, plan *model.OutboundPlan) (*model.ProxyResponse, error) {
	req, err := http.NewRequestWithContext(withPinnedAddrs(ctx, plan.Addrs), plan.Method, plan.URL, plan.Body)
	if err != nil {
		return nil, ErrUpstreamFailed.WithCause(fmt.Errorf("build outbound request: %w", err))
	}
	req.Header = plan.Header
	if req.Header == nil {
		req.Header = make(http.Header)
	}
	if plan.ContentLength > 0 {
		req.ContentLength = plan.ContentLength
	}

	c.logger.Debug("outbound request",
		"method", req.Method,
		"host", req.URL.Host,
		"path", req.URL.Path,
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req) //nolint:bodyclose // body ownership transfers to caller via ProxyResponse
	duration := time.Since(start).Seconds()

	method := metrics.NormalizeMethod(req.Method)
	if c.metrics != nil {
		c.metrics.UpstreamDuration.WithLabelValues(method).Observe(duration)
	}

	if err != nil {
		return nil, classify(ctx, err)
	}

	if c.metrics != nil {
		c.metrics.UpstreamResponses.WithLabelValues(method, strconv.Itoa(resp.StatusCode)).Inc()
	}

	return &model.ProxyResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       resp.Body,
	}, nil
}

// classify maps a transport error onto the caller-facing failures.
func classify(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return ErrClientDisconnected.WithCause(err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrUpstreamTimeout.WithCause(err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrUpstreamTimeout.WithCause(err)
	}
	return ErrUpstreamFailed.WithCause(err)
}
