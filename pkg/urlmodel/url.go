// Package urlmodel implements BetterUrl, a URL type with structured
// host/path/query access, public-suffix-aware domain decomposition, and
// segment-level edits.
package urlmodel

import (
	"fmt"
	"net/url"
	"strings"
)

// BetterUrl wraps a parsed URL and a decomposed, order-preserving query
// representation. Domain decomposition is memoized and recomputed lazily
// whenever the host changes.
type BetterUrl struct {
	u     url.URL
	query []queryPair

	domainCached bool
	suffix       string
	hasSuffix    bool
}

// queryPair is one raw "name=value" (or bare "name") query component,
// preserving original percent-encoding.
type queryPair struct {
	rawName  string
	rawValue string
	hasValue bool
}

// Parse parses s into a BetterUrl. The input must be an absolute or
// relative RFC-3986 reference parseable by net/url.
func Parse(s string) (*BetterUrl, error) {
	parsed, err := url.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("urlmodel: parse %q: %w", s, err)
	}
	b := &BetterUrl{u: *parsed}
	b.query = splitQuery(parsed.RawQuery)
	return b, nil
}

// MustParse is like Parse but panics on error. Intended for tests and
// literal construction.
func MustParse(s string) *BetterUrl {
	b, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return b
}

// Clone returns a deep, independent copy.
func (b *BetterUrl) Clone() *BetterUrl {
	clone := &BetterUrl{
		u:            b.u,
		query:        append([]queryPair(nil), b.query...),
		domainCached: b.domainCached,
		suffix:       b.suffix,
		hasSuffix:    b.hasSuffix,
	}
	if b.u.User != nil {
		ui := *b.u.User
		clone.u.User = &ui
	}
	return clone
}

// String renders the URL, rebuilding the query from the current pairs and
// collapsing an empty query to absent. A present host with an empty path
// renders with an explicit "/", matching BetterUrl's always-rooted path
// convention.
func (b *BetterUrl) String() string {
	rendered := b.u
	rendered.RawQuery = joinQuery(b.query)
	if rendered.Host != "" && rendered.Path == "" && rendered.Opaque == "" {
		rendered.Path = "/"
		rendered.RawPath = ""
	}
	return rendered.String()
}

func splitQuery(raw string) []queryPair {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, "&")
	pairs := make([]queryPair, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		if idx := strings.IndexByte(p, '='); idx >= 0 {
			pairs = append(pairs, queryPair{rawName: p[:idx], rawValue: p[idx+1:], hasValue: true})
		} else {
			pairs = append(pairs, queryPair{rawName: p, hasValue: false})
		}
	}
	return pairs
}

func joinQuery(pairs []queryPair) string {
	if len(pairs) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, p := range pairs {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(p.rawName)
		if p.hasValue {
			sb.WriteByte('=')
			sb.WriteString(p.rawValue)
		}
	}
	return sb.String()
}

func decodeOrRaw(s string) string {
	if v, err := url.QueryUnescape(s); err == nil {
		return v
	}
	return s
}

// --- Scheme / userinfo / port / fragment -----------------------------------

func (b *BetterUrl) Scheme() string { return b.u.Scheme }

func (b *BetterUrl) SetScheme(scheme string) { b.u.Scheme = scheme }

func (b *BetterUrl) Username() (string, bool) {
	if b.u.User == nil {
		return "", false
	}
	return b.u.User.Username(), true
}

func (b *BetterUrl) SetUsername(v *string) {
	if v == nil {
		b.u.User = nil
		return
	}
	if pw, ok := b.Password(); ok {
		b.u.User = url.UserPassword(*v, pw)
	} else {
		b.u.User = url.User(*v)
	}
}

func (b *BetterUrl) Password() (string, bool) {
	if b.u.User == nil {
		return "", false
	}
	return b.u.User.Password()
}

func (b *BetterUrl) SetPassword(v *string) {
	user, _ := b.Username()
	if v == nil {
		if user == "" {
			b.u.User = nil
		} else {
			b.u.User = url.User(user)
		}
		return
	}
	b.u.User = url.UserPassword(user, *v)
}

func (b *BetterUrl) Port() (string, bool) {
	p := b.u.Port()
	return p, p != ""
}

// SetPort sets the port, validating it is a 16-bit unsigned integer when
// non-nil. A nil value removes the port.
func (b *BetterUrl) SetPort(v *string) error {
	host := b.hostnameOnly()
	if v == nil {
		b.u.Host = host
		return nil
	}
	var n int
	if _, err := fmt.Sscanf(*v, "%d", &n); err != nil || n < 0 || n > 65535 || fmt.Sprint(n) != *v {
		return fmt.Errorf("urlmodel: invalid port %q: %w", *v, ErrInvalidPort)
	}
	b.u.Host = host + ":" + *v
	b.domainCached = false
	return nil
}

func (b *BetterUrl) hostnameOnly() string {
	return b.u.Hostname()
}

func (b *BetterUrl) Fragment() (string, bool) {
	if !b.u.ForceQuery && b.u.Fragment == "" && !strings.Contains(b.u.String(), "#") {
		return "", false
	}
	return b.u.Fragment, b.u.Fragment != "" || b.u.RawFragment != ""
}

func (b *BetterUrl) SetFragment(v *string) {
	if v == nil {
		b.u.Fragment = ""
		b.u.RawFragment = ""
		return
	}
	b.u.Fragment = *v
	b.u.RawFragment = ""
}

// RemoveFragment always clears the fragment.
func (b *BetterUrl) RemoveFragment() { b.SetFragment(nil) }

// RemoveEmptyFragment clears the fragment only if it is present and empty.
func (b *BetterUrl) RemoveEmptyFragment() {
	if f, ok := b.Fragment(); ok && f == "" {
		b.RemoveFragment()
	}
}

// Join applies RFC-3986 relative resolution against the given reference.
func (b *BetterUrl) Join(ref string) error {
	parsedRef, err := url.Parse(ref)
	if err != nil {
		return fmt.Errorf("urlmodel: join %q: %w", ref, err)
	}
	resolved := b.u.ResolveReference(parsedRef)
	b.u = *resolved
	b.query = splitQuery(b.u.RawQuery)
	b.domainCached = false
	return nil
}

// SetWhole replaces the URL entirely by re-parsing s.
func (b *BetterUrl) SetWhole(s string) error {
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*b = *parsed
	return nil
}
