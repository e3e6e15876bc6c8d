// Package dnsguard resolves destination hostnames and refuses any whose
// address set reaches a private or internal network.
package dnsguard

import (
	"context"
	"errors"
	"log/slog"
	"net/netip"
	"time"

	"cors-proxy-go/internal/config"
	"cors-proxy-go/internal/metrics"
	"cors-proxy-go/internal/model"
	"cors-proxy-go/internal/resolver"
)

// Rejections produced by Check.
var (
	ErrPrivateAddress = model.Forbidden("Target resolves to a private or internal address")
	ErrResolution     = model.Upstream("Failed to resolve target hostname", nil)
)

var privatePrefixes = []netip.Prefix{
	// IPv4
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("169.254.0.0/16"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	// IPv6
	netip.MustParsePrefix("::/128"),
	netip.MustParsePrefix("::1/128"),
	netip.MustParsePrefix("fc00::/7"),
	netip.MustParsePrefix("fe80::/10"),
}

// IsPrivate reports whether addr falls in a private or internal range.
// IPv4-mapped IPv6 addresses are judged by their IPv4 form. Invalid
// addresses count as private.
func IsPrivate(addr netip.Addr) bool {
	if !addr.IsValid() {
		return true
	}
	addr = addr.WithZone("").Unmap()
	for _, p := range privatePrefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// Guard resolves hostnames and enforces the private-address policy.
type Guard struct {
	resolver resolver.Resolver
	timeout  time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics // nil-safe
}

// NewGuard creates a Guard bounded by cfg.DNS.TimeoutSeconds.
func NewGuard(r resolver.Resolver, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *Guard {
	return &Guard{
		resolver: r,
		timeout:  time.Duration(cfg.DNS.TimeoutSeconds) * time.Second,
		logger:   logger.With("component", "dnsguard"),
		metrics:  m,
	}
}

// Check resolves host and returns its de-duplicated address set when every
// address is public. Results are never cached: each call performs a fresh
// lookup.
func (g *Guard) Check(ctx context.Context, host string) ([]netip.Addr, error) {
	parent := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	start := time.Now()
	addrs, err := g.resolver.LookupNetIP(ctx, host)
	if err != nil && errors.Is(parent.Err(), context.Canceled) {
		g.observe("canceled", start)
		return nil, model.ErrClientDisconnected.WithCause(err)
	}
	if err != nil {
		g.observe("error", start)
		g.logger.Info("dns lookup failed", "host", host, "error", err)
		return nil, ErrResolution.WithCause(err)
	}
	if len(addrs) == 0 {
		g.observe("empty", start)
		g.logger.Info("dns lookup returned no addresses", "host", host)
		return nil, ErrResolution
	}

	safe := make([]netip.Addr, 0, len(addrs))
	seen := make(map[netip.Addr]struct{}, len(addrs))
	for _, a := range addrs {
		if IsPrivate(a) {
			g.observe("private", start)
			g.logger.Info("destination resolves to private address", "host", host, "addr", a.String())
			return nil, ErrPrivateAddress
		}
		a = a.Unmap()
		if _, dup := seen[a]; dup {
			continue
		}
		seen[a] = struct{}{}
		safe = append(safe, a)
	}

	g.observe("ok", start)
	return safe, nil
}

func (g *Guard) observe(outcome string, start time.Time) {
	if g.metrics == nil {
		return
	}
	g.metrics.DNSLookupDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
}
