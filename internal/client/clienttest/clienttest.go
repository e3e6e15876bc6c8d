// Package clienttest provides a TLS destination for tests that drive a
// client.ForwardClient end to end.
package clienttest

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"cors-proxy-go/internal/client"
)

// Destination is an httptest TLS server whose certificate is valid for
// example.com. Every pinned dial made through Options lands on it.
type Destination struct {
	Server *httptest.Server

	mu     sync.Mutex
	dialed []string
}

// NewDestination starts a Destination serving h. The server is closed when
// the test ends.
func NewDestination(t testing.TB, h http.Handler) *Destination {
	t.Helper()
	d := &Destination{Server: httptest.NewTLSServer(h)}
	t.Cleanup(d.Server.Close)
	return d
}

// Options returns ForwardClient options that trust the server certificate
// and redirect each dial to the server.
func (d *Destination) Options() []client.Option {
	pool := x509.NewCertPool()
	pool.AddCert(d.Server.Certificate())
	return []client.Option{
		client.WithTLSConfig(&tls.Config{RootCAs: pool}),
		client.WithDialer(d.dial),
	}
}

// Dialed returns the pinned addresses the client asked to dial, in order.
func (d *Destination) Dialed() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.dialed...)
}

func (d *Destination) dial(ctx context.Context, network, addr string) (net.Conn, error) {
	d.mu.Lock()
	d.dialed = append(d.dialed, addr)
	d.mu.Unlock()
	var dialer net.Dialer
	return dialer.DialContext(ctx, network, d.Server.Listener.Addr().String())
}
