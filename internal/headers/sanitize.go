// Package headers builds the outbound header set from the caller's
// custom-header payload.
package headers

import (
	"net/http"
	"sort"
	"strings"

	"github.com/launchdarkly/go-jsonstream/v3/jreader"
	"golang.org/x/net/http/httpguts"

	"cors-proxy-go/internal/model"
)

// ErrInvalidHeaders is returned for any payload that is not a JSON object
// of valid header names to string values.
var ErrInvalidHeaders = model.ClientInput("Invalid custom headers format")

// hopByHop lists connection-scoped headers that a proxy must not forward.
var hopByHop = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"TE",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

var dropped = func() map[string]bool {
	m := map[string]bool{"Host": true}
	for _, h := range hopByHop {
		m[http.CanonicalHeaderKey(h)] = true
	}
	return m
}()

// HopByHop returns the hop-by-hop header names.
func HopByHop() []string {
	out := make([]string, len(hopByHop))
	copy(out, hopByHop)
	return out
}

// Sanitize decodes raw as a flat JSON object of string values and returns
// it as an http.Header. present reports whether the caller sent the header
// at all; when false the result is empty. Hop-by-hop names and Host are
// dropped silently.
func Sanitize(raw string, present bool) (http.Header, error) {
	out := make(http.Header)
	if !present {
		return out, nil
	}

	pairs := make(map[string]string)
	r := jreader.NewReader([]byte(raw))
	for obj := r.Object(); obj.Next(); {
		name := string(obj.Name())
		value := r.String()
		if r.Error() != nil {
			break
		}
		pairs[name] = value
	}
	if err := r.Error(); err != nil {
		return nil, ErrInvalidHeaders.WithCause(err)
	}
	if err := r.RequireEOF(); err != nil {
		return nil, ErrInvalidHeaders.WithCause(err)
	}

	names := make([]string, 0, len(pairs))
	for name := range pairs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		value := pairs[name]
		if !httpguts.ValidHeaderFieldName(name) || !httpguts.ValidHeaderFieldValue(value) {
			return nil, ErrInvalidHeaders
		}
		key := http.CanonicalHeaderKey(name)
		if dropped[key] {
			continue
		}
		out.Set(key, strings.TrimSpace(value))
	}
	return out, nil
}
