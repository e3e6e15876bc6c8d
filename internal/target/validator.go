package target

import (
	"net/url"
	"strings"

	"cors-proxy-go/internal/model"
)

const (
	secureScheme = "https"
	securePort   = "443"
)

// Rejections produced by Validate, in check order.
var (
	ErrMissingTarget    = model.ClientInput("Missing target URL")
	ErrInvalidFormat    = model.ClientInput("Invalid target URL format")
	ErrHostNotAllowed   = model.Forbidden("Target hostname is not allowed")
	ErrInsecureScheme   = model.ClientInput("Only HTTPS targets are allowed")
	ErrNonDefaultPort   = model.ClientInput("Only default HTTPS port (443) is allowed")
	ErrPathTraversal    = model.ClientInput("Path traversal is not allowed")
	ErrEncodedTraversal = model.ClientInput("Encoded path traversal is not allowed")
	ErrUserinfo         = model.ClientInput("Credentials in target URL are not allowed")
	ErrFragment         = model.ClientInput("URL fragments are not allowed")
)

// Target is a destination that passed every check.
type Target struct {
	Scheme   string
	Host     string // canonical
	Path     string // percent-decoded
	RawPath  string // original encoding, empty when Path encodes canonically
	RawQuery string
}

// URL rebuilds the outbound URL from the validated components only.
// The port is always the scheme default and is omitted.
func (t *Target) URL() string {
	u := url.URL{
		Scheme:   t.Scheme,
		Host:     t.Host,
		Path:     t.Path,
		RawPath:  t.RawPath,
		RawQuery: t.RawQuery,
	}
	return u.String()
}

// Validator checks raw destination strings against an AllowList.
type Validator struct {
	allow *AllowList
}

// NewValidator creates a Validator.
func NewValidator(allow *AllowList) *Validator {
	return &Validator{allow: allow}
}

// Validate runs the ordered checks and returns the first violation.
// The returned error is always a *model.ProxyError.
func (v *Validator) Validate(raw string) (*Target, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrMissingTarget
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, ErrInvalidFormat.WithCause(err)
	}
	if !u.IsAbs() || u.Opaque != "" || u.Hostname() == "" {
		return nil, ErrInvalidFormat
	}

	host, err := Canonicalize(u.Hostname())
	if err != nil {
		return nil, ErrHostNotAllowed.WithCause(err)
	}
	if !v.allow.Contains(host) {
		return nil, ErrHostNotAllowed
	}

	if u.Scheme != secureScheme {
		return nil, ErrInsecureScheme
	}

	if p := u.Port(); p != "" && p != securePort {
		return nil, ErrNonDefaultPort
	}

	if err := checkTraversal(u); err != nil {
		return nil, err
	}

	if u.User != nil {
		return nil, ErrUserinfo
	}

	if u.Fragment != "" || strings.Contains(raw, "#") {
		return nil, ErrFragment
	}

	return &Target{
		Scheme:   secureScheme,
		Host:     host,
		Path:     u.Path,
		RawPath:  u.RawPath,
		RawQuery: u.RawQuery,
	}, nil
}

// checkTraversal inspects the escaped path as sent and its decoded form.
func checkTraversal(u *url.URL) error {
	if strings.Contains(u.EscapedPath(), "..") {
		return ErrPathTraversal
	}
	decoded, err := url.PathUnescape(u.EscapedPath())
	if err != nil {
		return ErrInvalidFormat.WithCause(err)
	}
	if strings.Contains(decoded, "..") {
		return ErrEncodedTraversal
	}
	return nil
}
