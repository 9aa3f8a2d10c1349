package urlmodel

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// Errors returned by part setters, surfaced through SetUrlPartError.
var (
	ErrInvalidPort        = errors.New("port is not a valid 16-bit integer")
	ErrNotPublicSuffix     = errors.New("value is not a recognized public suffix")
	ErrSegmentOutOfRange   = errors.New("segment index out of range")
	ErrForbiddenChar       = errors.New("value contains a forbidden character")
	ErrCannotRemoveAllPath = errors.New("cannot remove all path segments")
	ErrEmptyHost           = errors.New("host is empty")
	ErrMissingValue        = errors.New("expected a value but found none")
)

// Host returns the full host (hostname, no port).
func (b *BetterUrl) Host() string { return b.hostnameOnly() }

// SetHost replaces the entire host. The suffix cache is invalidated.
func (b *BetterUrl) SetHost(host string) error {
	if host == "" {
		return fmt.Errorf("urlmodel: set host: %w", ErrEmptyHost)
	}
	port, hasPort := b.Port()
	b.u.Host = host
	if hasPort {
		b.u.Host = host + ":" + port
	}
	b.domainCached = false
	return nil
}

func (b *BetterUrl) ensureSuffix() {
	if b.domainCached {
		return
	}
	host := b.Host()
	suffix, icann := publicsuffix.PublicSuffix(strings.ToLower(host))
	b.suffix = suffix
	b.hasSuffix = icann || suffix != host
	b.domainCached = true
}

// NormalizedHost is the host with any trailing FQDN period and leading
// "www." label removed, for comparisons that should treat www.example.com
// and example.com. as the same site. It has no setter.
func (b *BetterUrl) NormalizedHost() (string, bool) {
	host := strings.TrimSuffix(b.Host(), ".")
	host = strings.TrimPrefix(host, "www.")
	if host == "" {
		return "", false
	}
	return host, true
}

// Domain is the full host.
func (b *BetterUrl) Domain() string { return b.Host() }

// SetDomain is an alias for SetHost.
func (b *BetterUrl) SetDomain(domain string) error { return b.SetHost(domain) }

// DomainSuffix returns the public-suffix portion of the host (e.g. "co.uk").
func (b *BetterUrl) DomainSuffix() (string, bool) {
	b.ensureSuffix()
	if b.suffix == "" {
		return "", false
	}
	return b.suffix, true
}

// SetDomainSuffix replaces the public-suffix portion of the host. The new
// value must itself be a recognized public suffix.
func (b *BetterUrl) SetDomainSuffix(suffix string) error {
	if suffix == "" {
		return b.SetDomainSuffixRaw("")
	}
	normalized, icann := publicsuffix.PublicSuffix(strings.ToLower(suffix))
	if !icann && normalized == strings.ToLower(suffix) {
		return fmt.Errorf("urlmodel: set domain suffix %q: %w", suffix, ErrNotPublicSuffix)
	}
	return b.SetDomainSuffixRaw(suffix)
}

// SetDomainSuffixRaw replaces the suffix without validating it is a
// recognized public suffix. An empty string removes the suffix, per the
// empty-setter convention documented in DESIGN.md.
func (b *BetterUrl) SetDomainSuffixRaw(suffix string) error {
	notSuffix, _ := b.NotDomainSuffix()
	if suffix == "" {
		return b.SetHost(notSuffix)
	}
	if notSuffix == "" {
		return b.SetHost(suffix)
	}
	return b.SetHost(notSuffix + "." + suffix)
}

// NotDomainSuffix is everything before the public suffix.
func (b *BetterUrl) NotDomainSuffix() (string, bool) {
	b.ensureSuffix()
	host := b.Host()
	if b.suffix == "" {
		return host, true
	}
	rest := strings.TrimSuffix(host, b.suffix)
	rest = strings.TrimSuffix(rest, ".")
	return rest, true
}

// SetNotDomainSuffix replaces everything before the public suffix.
func (b *BetterUrl) SetNotDomainSuffix(v string) error {
	suffix, ok := b.DomainSuffix()
	if !ok || suffix == "" {
		return b.SetHost(v)
	}
	if v == "" {
		return b.SetHost(suffix)
	}
	return b.SetHost(v + "." + suffix)
}

// RegDomain is the registrable domain: one label longer than the public
// suffix (e.g. "example.co.uk").
func (b *BetterUrl) RegDomain() (string, bool) {
	host := b.Host()
	eTLDPlusOne, err := publicsuffix.EffectiveTLDPlusOne(strings.ToLower(host))
	if err != nil {
		return "", false
	}
	return eTLDPlusOne, true
}

// SetRegDomain replaces the registrable domain, keeping the existing
// subdomain prefix attached.
func (b *BetterUrl) SetRegDomain(v string) error {
	sub, hasSub := b.Subdomain()
	if !hasSub || sub == "" {
		return b.SetHost(v)
	}
	return b.SetHost(sub + "." + v)
}

// DomainMiddle is the registrable domain minus its public suffix.
func (b *BetterUrl) DomainMiddle() (string, bool) {
	reg, ok := b.RegDomain()
	if !ok {
		return "", false
	}
	suffix, hasSuffix := b.DomainSuffix()
	if !hasSuffix || suffix == "" {
		return reg, true
	}
	return strings.TrimSuffix(strings.TrimSuffix(reg, suffix), "."), true
}

// SetDomainMiddle replaces the registrable-domain-minus-suffix label,
// keeping subdomain and suffix intact.
func (b *BetterUrl) SetDomainMiddle(v string) error {
	suffix, hasSuffix := b.DomainSuffix()
	sub, _ := b.Subdomain()
	parts := []string{}
	if sub != "" {
		parts = append(parts, sub)
	}
	parts = append(parts, v)
	if hasSuffix && suffix != "" {
		parts = append(parts, suffix)
	}
	return b.SetHost(strings.Join(parts, "."))
}

// Subdomain is everything before the registrable domain.
func (b *BetterUrl) Subdomain() (string, bool) {
	host := b.Host()
	reg, ok := b.RegDomain()
	if !ok || reg == host {
		return "", false
	}
	return strings.TrimSuffix(strings.TrimSuffix(host, reg), "."), true
}

// SetSubdomain replaces the subdomain prefix. An empty value removes the
// subdomain entirely.
func (b *BetterUrl) SetSubdomain(v string) error {
	reg, ok := b.RegDomain()
	if !ok {
		return b.SetHost(v)
	}
	if v == "" {
		return b.SetHost(reg)
	}
	return b.SetHost(v + "." + reg)
}

// FqdnPeriod reports whether the host ends in a trailing dot.
func (b *BetterUrl) FqdnPeriod() bool { return strings.HasSuffix(b.Host(), ".") }

// EnsureFqdnPeriod appends a trailing dot if absent.
func (b *BetterUrl) EnsureFqdnPeriod() error {
	if b.FqdnPeriod() {
		return nil
	}
	return b.SetHost(b.Host() + ".")
}

// RemoveFqdnPeriod strips a trailing dot if present.
func (b *BetterUrl) RemoveFqdnPeriod() error {
	if !b.FqdnPeriod() {
		return nil
	}
	return b.SetHost(strings.TrimSuffix(b.Host(), "."))
}

func splitLabels(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ".")
}

// segmentAt resolves a possibly-negative index into labels, following
// Python-style negative indexing from the end.
func segmentAt(labels []string, i int) (int, bool) {
	if i < 0 {
		i += len(labels)
	}
	if i < 0 || i >= len(labels) {
		return 0, false
	}
	return i, true
}

// DomainSegment returns the i-th label of the full domain (negative counts
// from the end).
func (b *BetterUrl) DomainSegment(i int) (string, bool) {
	labels := splitLabels(b.Domain())
	idx, ok := segmentAt(labels, i)
	if !ok {
		return "", false
	}
	return labels[idx], true
}

// SubdomainSegment returns the i-th label of the subdomain.
func (b *BetterUrl) SubdomainSegment(i int) (string, bool) {
	sub, ok := b.Subdomain()
	if !ok {
		return "", false
	}
	labels := splitLabels(sub)
	idx, ok := segmentAt(labels, i)
	if !ok {
		return "", false
	}
	return labels[idx], true
}

// DomainSuffixSegment returns the i-th label of the public suffix.
func (b *BetterUrl) DomainSuffixSegment(i int) (string, bool) {
	suffix, ok := b.DomainSuffix()
	if !ok {
		return "", false
	}
	labels := splitLabels(suffix)
	idx, ok := segmentAt(labels, i)
	if !ok {
		return "", false
	}
	return labels[idx], true
}

// setLabelSegment replaces (v non-nil) or removes (v nil) the i-th label of
// labels, mirroring the path-segment convention: removing the last
// remaining label is an error.
func setLabelSegment(labels []string, i int, v *string) ([]string, error) {
	idx, ok := segmentAt(labels, i)
	if !ok {
		return nil, fmt.Errorf("urlmodel: set label segment %d: %w", i, ErrSegmentOutOfRange)
	}
	if v == nil {
		if len(labels) == 1 {
			return nil, fmt.Errorf("urlmodel: remove label segment %d: %w", i, ErrCannotRemoveAllPath)
		}
		out := append([]string(nil), labels[:idx]...)
		out = append(out, labels[idx+1:]...)
		return out, nil
	}
	out := append([]string(nil), labels...)
	out[idx] = *v
	return out, nil
}

// insertLabelSegment inserts v before (or, if after, after) index i.
func insertLabelSegment(labels []string, i int, v string, after bool) ([]string, error) {
	idx, ok := segmentAt(labels, i)
	if !ok {
		// An empty label sequence accepts insertion at index 0.
		if len(labels) == 0 && (i == 0 || i == -1) {
			return []string{v}, nil
		}
		return nil, fmt.Errorf("urlmodel: insert label segment %d: %w", i, ErrSegmentOutOfRange)
	}
	if after {
		idx++
	}
	out := append([]string(nil), labels[:idx]...)
	out = append(out, v)
	out = append(out, labels[idx:]...)
	return out, nil
}

// SetDomainSegment replaces (v non-nil) or removes (v nil) the i-th label
// of the full domain.
func (b *BetterUrl) SetDomainSegment(i int, v *string) error {
	labels, err := setLabelSegment(splitLabels(b.Domain()), i, v)
	if err != nil {
		return err
	}
	return b.SetHost(strings.Join(labels, "."))
}

// InsertDomainSegmentAt inserts v as a new domain label before index i.
func (b *BetterUrl) InsertDomainSegmentAt(i int, v string) error {
	labels, err := insertLabelSegment(splitLabels(b.Domain()), i, v, false)
	if err != nil {
		return err
	}
	return b.SetHost(strings.Join(labels, "."))
}

// InsertDomainSegmentAfter inserts v as a new domain label after index i.
func (b *BetterUrl) InsertDomainSegmentAfter(i int, v string) error {
	labels, err := insertLabelSegment(splitLabels(b.Domain()), i, v, true)
	if err != nil {
		return err
	}
	return b.SetHost(strings.Join(labels, "."))
}

// SetSubdomainSegment replaces (v non-nil) or removes (v nil) the i-th
// label of the subdomain, leaving the registrable domain untouched.
func (b *BetterUrl) SetSubdomainSegment(i int, v *string) error {
	sub, _ := b.Subdomain()
	labels, err := setLabelSegment(splitLabels(sub), i, v)
	if err != nil {
		return err
	}
	return b.SetSubdomain(strings.Join(labels, "."))
}

// InsertSubdomainSegmentAt inserts v as a new subdomain label before index i.
func (b *BetterUrl) InsertSubdomainSegmentAt(i int, v string) error {
	sub, _ := b.Subdomain()
	labels, err := insertLabelSegment(splitLabels(sub), i, v, false)
	if err != nil {
		return err
	}
	return b.SetSubdomain(strings.Join(labels, "."))
}

// InsertSubdomainSegmentAfter inserts v as a new subdomain label after
// index i.
func (b *BetterUrl) InsertSubdomainSegmentAfter(i int, v string) error {
	sub, _ := b.Subdomain()
	labels, err := insertLabelSegment(splitLabels(sub), i, v, true)
	if err != nil {
		return err
	}
	return b.SetSubdomain(strings.Join(labels, "."))
}

// SetDomainSuffixSegment replaces (v non-nil) or removes (v nil) the i-th
// label of the public suffix. Uses the raw (non-validating) suffix setter,
// since an edited suffix need not remain a recognized public suffix.
func (b *BetterUrl) SetDomainSuffixSegment(i int, v *string) error {
	suffix, _ := b.DomainSuffix()
	labels, err := setLabelSegment(splitLabels(suffix), i, v)
	if err != nil {
		return err
	}
	return b.SetDomainSuffixRaw(strings.Join(labels, "."))
}

// InsertDomainSuffixSegmentAt inserts v as a new suffix label before index i.
func (b *BetterUrl) InsertDomainSuffixSegmentAt(i int, v string) error {
	suffix, _ := b.DomainSuffix()
	labels, err := insertLabelSegment(splitLabels(suffix), i, v, false)
	if err != nil {
		return err
	}
	return b.SetDomainSuffixRaw(strings.Join(labels, "."))
}

// InsertDomainSuffixSegmentAfter inserts v as a new suffix label after
// index i.
func (b *BetterUrl) InsertDomainSuffixSegmentAfter(i int, v string) error {
	suffix, _ := b.DomainSuffix()
	labels, err := insertLabelSegment(splitLabels(suffix), i, v, true)
	if err != nil {
		return err
	}
	return b.SetDomainSuffixRaw(strings.Join(labels, "."))
}
