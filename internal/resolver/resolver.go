// Package resolver maps destination hostnames to their full address set.
//
// The system mode delegates to net.Resolver. The udp, tcp, tls and https
// modes query a fixed recursive resolver over the matching transport, so the
// proxy can be pinned to a resolver it trusts instead of whatever the host
// is configured with.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"net/url"
	"strings"

	"github.com/Jigsaw-Code/outline-sdk/dns"
	"github.com/Jigsaw-Code/outline-sdk/transport"
	"golang.org/x/net/dns/dnsmessage"
	"golang.org/x/sync/errgroup"

	"cors-proxy-go/internal/config"
)

// Resolver returns every address a hostname resolves to, across both
// address families.
type Resolver interface {
	LookupNetIP(ctx context.Context, host string) ([]netip.Addr, error)
}

// New builds the Resolver selected by cfg.DNS.Mode.
func New(cfg *config.Config, logger *slog.Logger) (Resolver, error) {
	d := cfg.DNS
	var (
		q   dns.Resolver
		err error
	)
	switch d.Mode {
	case "", "system":
		logger.Info("dns resolver", "mode", "system")
		return NewSystem(net.DefaultResolver), nil
	case "udp":
		q = dns.NewUDPResolver(&transport.UDPDialer{}, withDefaultPort(d.Server, "53"))
	case "tcp":
		q = dns.NewTCPResolver(&transport.TCPDialer{}, withDefaultPort(d.Server, "53"))
	case "tls":
		addr := withDefaultPort(d.Server, "853")
		host, _, _ := net.SplitHostPort(addr)
		q = dns.NewTLSResolver(&transport.TCPDialer{}, addr, host)
	case "https":
		addr := d.Server
		if addr == "" {
			addr, err = hostFromURL(d.URL)
			if err != nil {
				return nil, err
			}
		}
		q = dns.NewHTTPSResolver(&transport.TCPDialer{}, withDefaultPort(addr, "443"), d.URL)
	default:
		return nil, fmt.Errorf("unsupported dns mode %q", d.Mode)
	}

	logger.Info("dns resolver", "mode", d.Mode, "server", d.Server, "url", d.URL)
	return NewDNS(q), nil
}

// systemResolver uses the host's configured resolver.
type systemResolver struct {
	r *net.Resolver
}

// NewSystem wraps a net.Resolver.
func NewSystem(r *net.Resolver) Resolver {
	return &systemResolver{r: r}
}

func (s *systemResolver) LookupNetIP(ctx context.Context, host string) ([]netip.Addr, error) {
	return s.r.LookupNetIP(ctx, "ip", host)
}

// dnsResolver issues A and AAAA questions in parallel against q.
type dnsResolver struct {
	q dns.Resolver
}

// NewDNS wraps an outline-sdk DNS resolver.
func NewDNS(q dns.Resolver) Resolver {
	return &dnsResolver{q: q}
}

func (r *dnsResolver) LookupNetIP(ctx context.Context, host string) ([]netip.Addr, error) {
	if ip, err := netip.ParseAddr(host); err == nil {
		return []netip.Addr{ip}, nil
	}

	var v4, v6 []netip.Addr
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		v4, err = r.query(gctx, host, dnsmessage.TypeA)
		return err
	})
	g.Go(func() error {
		var err error
		v6, err = r.query(gctx, host, dnsmessage.TypeAAAA)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	addrs := append(v4, v6...)
	if len(addrs) == 0 {
		return nil, &net.DNSError{Err: "no addresses", Name: host, IsNotFound: true}
	}
	return addrs, nil
}

func (r *dnsResolver) query(ctx context.Context, host string, qtype dnsmessage.Type) ([]netip.Addr, error) {
	q, err := dns.NewQuestion(fqdn(host), qtype)
	if err != nil {
		return nil, fmt.Errorf("question %s %v: %w", host, qtype, err)
	}
	resp, err := r.q.Query(ctx, *q)
	if err != nil {
		return nil, &net.DNSError{Err: err.Error(), Name: host, IsTimeout: errors.Is(err, context.DeadlineExceeded)}
	}
	switch resp.RCode {
	case dnsmessage.RCodeSuccess:
	case dnsmessage.RCodeNameError:
		return nil, &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
	default:
		return nil, &net.DNSError{Err: "server answered " + resp.RCode.String(), Name: host, IsTemporary: true}
	}

	var addrs []netip.Addr
	for _, ans := range resp.Answers {
		switch rr := ans.Body.(type) {
		case *dnsmessage.AResource:
			if qtype == dnsmessage.TypeA {
				addrs = append(addrs, netip.AddrFrom4(rr.A))
			}
		case *dnsmessage.AAAAResource:
			if qtype == dnsmessage.TypeAAAA {
				addrs = append(addrs, netip.AddrFrom16(rr.AAAA))
			}
		}
	}
	return addrs, nil
}

func fqdn(host string) string {
	if strings.HasSuffix(host, ".") {
		return host
	}
	return host + "."
}

func withDefaultPort(addr, port string) string {
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}
	return net.JoinHostPort(strings.Trim(addr, "[]"), port)
}

func hostFromURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse dns.url: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("dns.url %q has no host", raw)
	}
	return u.Host, nil
}
