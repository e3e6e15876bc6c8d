// Package target parses caller-supplied destination URLs and enforces the
// destination policy. Only allow-listed hosts reached over HTTPS on the
// default port pass; everything else is rejected before any network I/O.
package target

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/net/idna"
)

// hostProfile is idna.Lookup without the STD3 character rules, which reject
// the underscores found in real DNS names. validLabels restores the LDH
// restriction with underscore added.
var hostProfile = idna.New(
	idna.MapForLookup(),
	idna.BidiRule(),
	idna.StrictDomainName(false),
)

// Canonicalize returns the single comparable form of a hostname: lower-case,
// ASCII (Punycode) and without trailing dots. The same function is applied to
// allow-list entries and request hosts.
func Canonicalize(host string) (string, error) {
	h := strings.TrimRight(strings.ToLower(strings.TrimSpace(host)), ".")
	if h == "" {
		return "", fmt.Errorf("empty hostname")
	}
	ascii, err := hostProfile.ToASCII(h)
	if err != nil {
		return "", fmt.Errorf("idna %q: %w", host, err)
	}
	ascii = strings.TrimRight(strings.ToLower(ascii), ".")
	if ascii == "" {
		return "", fmt.Errorf("empty hostname after idna mapping of %q", host)
	}
	if err := validLabels(ascii); err != nil {
		return "", fmt.Errorf("hostname %q: %w", host, err)
	}
	return ascii, nil
}

func validLabels(host string) error {
	for _, label := range strings.Split(host, ".") {
		if label == "" || len(label) > 63 {
			return fmt.Errorf("invalid label length in %q", host)
		}
		for i := 0; i < len(label); i++ {
			c := label[i]
			switch {
			case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '-', c == '_':
			default:
				return fmt.Errorf("invalid character %q", c)
			}
		}
	}
	return nil
}

// AllowList is the fixed set of canonical destination hostnames.
// It is never mutated after NewAllowList returns.
type AllowList struct {
	hosts map[string]struct{}
}

// NewAllowList canonicalizes every raw entry. Any entry that cannot be
// canonicalized is a configuration error.
func NewAllowList(raw []string) (*AllowList, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("allow-list is empty")
	}
	hosts := make(map[string]struct{}, len(raw))
	for _, r := range raw {
		h, err := Canonicalize(r)
		if err != nil {
			return nil, fmt.Errorf("allow-list entry %q: %w", r, err)
		}
		hosts[h] = struct{}{}
	}
	return &AllowList{hosts: hosts}, nil
}

// Contains reports whether canonicalHost is allow-listed. The argument must
// already be the output of Canonicalize.
func (a *AllowList) Contains(canonicalHost string) bool {
	_, ok := a.hosts[canonicalHost]
	return ok
}

// Hosts returns the sorted canonical entries.
func (a *AllowList) Hosts() []string {
	out := make([]string, 0, len(a.hosts))
	for h := range a.hosts {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}
