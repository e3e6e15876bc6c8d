package model

import "net/http"

// ErrorKind classifies a request failure.
type ErrorKind int

const (
	// KindClientInput is a malformed or policy-disallowed request shape.
	KindClientInput ErrorKind = iota + 1
	// KindForbiddenTarget is a destination refused by the allow-list or
	// by the resolved-address policy.
	KindForbiddenTarget
	// KindUpstream is a resolver or transport failure.
	KindUpstream
	// KindUpstreamTimeout is a destination that did not answer in time.
	KindUpstreamTimeout
)

func (k ErrorKind) String() string {
	switch k {
	case KindClientInput:
		return "client_input"
	case KindForbiddenTarget:
		return "forbidden_target"
	case KindUpstream:
		return "upstream"
	case KindUpstreamTimeout:
		return "upstream_timeout"
	default:
		return "unknown"
	}
}

// ProxyError is a user-visible failure. Message is safe to return to the
// caller; Err is the underlying cause and is only ever logged.
type ProxyError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// ErrClientDisconnected reports that the caller went away before the
// destination answered.
var ErrClientDisconnected = Upstream("Client disconnected", nil)

// ClientInput returns a 400-class error.
func ClientInput(msg string) *ProxyError {
	return &ProxyError{Kind: KindClientInput, Message: msg}
}

// Timeout returns a 504 error wrapping cause.
func Timeout(msg string, cause error) *ProxyError {
	return &ProxyError{Kind: KindUpstreamTimeout, Message: msg, Err: cause}
}

// Forbidden returns a 403-class error.
func Forbidden(msg string) *ProxyError {
	return &ProxyError{Kind: KindForbiddenTarget, Message: msg}
}

// Upstream returns a 5xx-class error wrapping cause.
func Upstream(msg string, cause error) *ProxyError {
	return &ProxyError{Kind: KindUpstream, Message: msg, Err: cause}
}

func (e *ProxyError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ProxyError) Unwrap() error { return e.Err }

// Is reports whether target is a ProxyError with the same kind and message,
// so a sentinel still matches after it has been copied with a cause attached.
func (e *ProxyError) Is(target error) bool {
	t, ok := target.(*ProxyError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Message == t.Message
}

// WithCause returns a copy of e carrying cause.
func (e *ProxyError) WithCause(cause error) *ProxyError {
	cp := *e
	cp.Err = cause
	return &cp
}

// Status returns the HTTP status code for the error.
func (e *ProxyError) Status() int {
	switch e.Kind {
	case KindClientInput:
		return http.StatusBadRequest
	case KindForbiddenTarget:
		return http.StatusForbidden
	case KindUpstreamTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}
