// Package model defines shared types for the proxy.
package model

import (
	"context"
	"io"
	"net/http"
	"net/netip"
)

// ProxyRequest represents an inbound client request asking to be forwarded.
type ProxyRequest struct {
	Ctx           context.Context
	Method        string
	Header        http.Header
	Body          io.ReadCloser
	ContentLength int64 // -1 when unknown
}

// OutboundPlan is a fully validated request ready for the transport.
// URL is rebuilt from parsed components and Addrs holds the only
// addresses the transport may dial.
type OutboundPlan struct {
	URL           string
	Host          string
	Method        string
	Header        http.Header
	Body          io.Reader
	ContentLength int64
	Addrs         []netip.Addr
}

// ProxyResponse represents the destination response to be streamed back.
type ProxyResponse struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}
