package resolver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/netip"
	"sync/atomic"
	"testing"

	"github.com/Jigsaw-Code/outline-sdk/dns"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/dns/dnsmessage"

	"cors-proxy-go/internal/config"
)

// fakeDNS answers A and AAAA questions from fixed tables.
func fakeDNS(t *testing.T, a map[string][]netip.Addr, aaaa map[string][]netip.Addr, rcode dnsmessage.RCode) dns.Resolver {
	t.Helper()
	return dns.FuncResolver(func(_ context.Context, q dnsmessage.Question) (*dnsmessage.Message, error) {
		msg := &dnsmessage.Message{
			Header:    dnsmessage.Header{Response: true, RCode: rcode},
			Questions: []dnsmessage.Question{q},
		}
		name := q.Name.String()
		hdr := dnsmessage.ResourceHeader{Name: q.Name, Type: q.Type, Class: dnsmessage.ClassINET, TTL: 60}
		switch q.Type {
		case dnsmessage.TypeA:
			for _, ip := range a[name] {
				msg.Answers = append(msg.Answers, dnsmessage.Resource{Header: hdr, Body: &dnsmessage.AResource{A: ip.As4()}})
			}
		case dnsmessage.TypeAAAA:
			for _, ip := range aaaa[name] {
				msg.Answers = append(msg.Answers, dnsmessage.Resource{Header: hdr, Body: &dnsmessage.AAAAResource{AAAA: ip.As16()}})
			}
		}
		return msg, nil
	})
}

func TestDNSResolver_BothFamilies(t *testing.T) {
	r := NewDNS(fakeDNS(t,
		map[string][]netip.Addr{"api.example.com.": {netip.MustParseAddr("93.184.216.34"), netip.MustParseAddr("10.0.0.7")}},
		map[string][]netip.Addr{"api.example.com.": {netip.MustParseAddr("2606:2800:220:1::1")}},
		dnsmessage.RCodeSuccess,
	))

	addrs, err := r.LookupNetIP(context.Background(), "api.example.com")
	require.NoError(t, err)
	require.ElementsMatch(t, []netip.Addr{
		netip.MustParseAddr("93.184.216.34"),
		netip.MustParseAddr("10.0.0.7"),
		netip.MustParseAddr("2606:2800:220:1::1"),
	}, addrs)
}

func TestDNSResolver_OnlyIPv6(t *testing.T) {
	r := NewDNS(fakeDNS(t,
		nil,
		map[string][]netip.Addr{"v6.example.com.": {netip.MustParseAddr("::1")}},
		dnsmessage.RCodeSuccess,
	))

	addrs, err := r.LookupNetIP(context.Background(), "v6.example.com.")
	require.NoError(t, err)
	require.Equal(t, []netip.Addr{netip.MustParseAddr("::1")}, addrs)
}

func TestDNSResolver_NoAnswers(t *testing.T) {
	r := NewDNS(fakeDNS(t, nil, nil, dnsmessage.RCodeSuccess))

	_, err := r.LookupNetIP(context.Background(), "empty.example.com")
	var dnsErr *net.DNSError
	require.ErrorAs(t, err, &dnsErr)
	require.True(t, dnsErr.IsNotFound)
}

func TestDNSResolver_NXDomain(t *testing.T) {
	r := NewDNS(fakeDNS(t, nil, nil, dnsmessage.RCodeNameError))

	_, err := r.LookupNetIP(context.Background(), "missing.example.com")
	var dnsErr *net.DNSError
	require.ErrorAs(t, err, &dnsErr)
	require.True(t, dnsErr.IsNotFound)
}

func TestDNSResolver_ServerFailure(t *testing.T) {
	r := NewDNS(fakeDNS(t, nil, nil, dnsmessage.RCodeServerFailure))

	_, err := r.LookupNetIP(context.Background(), "api.example.com")
	var dnsErr *net.DNSError
	require.ErrorAs(t, err, &dnsErr)
	require.True(t, dnsErr.IsTemporary)
}

func TestDNSResolver_OneFamilyFails(t *testing.T) {
	var calls atomic.Int32
	q := dns.FuncResolver(func(_ context.Context, q dnsmessage.Question) (*dnsmessage.Message, error) {
		calls.Add(1)
		if q.Type == dnsmessage.TypeAAAA {
			return nil, errors.New("connection refused")
		}
		return &dnsmessage.Message{Header: dnsmessage.Header{Response: true}}, nil
	})

	_, err := NewDNS(q).LookupNetIP(context.Background(), "api.example.com")
	require.Error(t, err)
	require.Equal(t, int32(2), calls.Load())
}

func TestDNSResolver_IPLiteral(t *testing.T) {
	q := dns.FuncResolver(func(context.Context, dnsmessage.Question) (*dnsmessage.Message, error) {
		t.Fatal("IP literals must not be sent to the resolver")
		return nil, nil
	})

	addrs, err := NewDNS(q).LookupNetIP(context.Background(), "127.0.0.1")
	require.NoError(t, err)
	require.Equal(t, []netip.Addr{netip.MustParseAddr("127.0.0.1")}, addrs)
}

func TestDNSResolver_ContextCanceled(t *testing.T) {
	q := dns.FuncResolver(func(ctx context.Context, _ dnsmessage.Question) (*dnsmessage.Message, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewDNS(q).LookupNetIP(ctx, "api.example.com")
	require.Error(t, err)
}

func TestNew_Modes(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name    string
		dns     config.DNSConfig
		wantErr bool
	}{
		{"system", config.DNSConfig{Mode: "system"}, false},
		{"empty defaults to system", config.DNSConfig{}, false},
		{"udp", config.DNSConfig{Mode: "udp", Server: "9.9.9.9"}, false},
		{"tcp", config.DNSConfig{Mode: "tcp", Server: "9.9.9.9:53"}, false},
		{"tls", config.DNSConfig{Mode: "tls", Server: "1.1.1.1"}, false},
		{"https from url", config.DNSConfig{Mode: "https", URL: "https://dns.google/dns-query"}, false},
		{"https bad url", config.DNSConfig{Mode: "https", URL: "https:///dns-query"}, true},
		{"unknown", config.DNSConfig{Mode: "smoke-signals"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := New(&config.Config{DNS: tt.dns}, logger)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, r)
		})
	}
}

func TestWithDefaultPort(t *testing.T) {
	require.Equal(t, "9.9.9.9:53", withDefaultPort("9.9.9.9", "53"))
	require.Equal(t, "9.9.9.9:5353", withDefaultPort("9.9.9.9:5353", "53"))
	require.Equal(t, "[2620:fe::fe]:853", withDefaultPort("2620:fe::fe", "853"))
	require.Equal(t, "[2620:fe::fe]:853", withDefaultPort("[2620:fe::fe]", "853"))
}
