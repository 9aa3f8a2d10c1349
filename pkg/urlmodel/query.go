package urlmodel

import (
	"fmt"
	"net/url"
	"strings"

	"gopkg.in/yaml.v3"
)

// QueryPair is a decoded view of one query component, surfaced to callers
// that need both raw and decoded forms (RawQueryPairs, DecodedQueryPairs).
type QueryPair struct {
	Name     string
	Value    string
	HasValue bool
}

// RawQueryPairs returns the query as (raw name, raw value) pairs in source
// order, preserving original percent-encoding.
func (b *BetterUrl) RawQueryPairs() []QueryPair {
	out := make([]QueryPair, len(b.query))
	for i, p := range b.query {
		out[i] = QueryPair{Name: p.rawName, Value: p.rawValue, HasValue: p.hasValue}
	}
	return out
}

// DecodedQueryPairs is like RawQueryPairs but percent-decodes both name and
// value.
func (b *BetterUrl) DecodedQueryPairs() []QueryPair {
	out := make([]QueryPair, len(b.query))
	for i, p := range b.query {
		out[i] = QueryPair{Name: decodeOrRaw(p.rawName), Value: decodeOrRaw(p.rawValue), HasValue: p.hasValue}
	}
	return out
}

// HasQuery reports whether the URL currently has a non-absent query.
func (b *BetterUrl) HasQuery() bool { return len(b.query) > 0 }

// Query returns the raw query string (empty if absent).
func (b *BetterUrl) Query() string { return joinQuery(b.query) }

// SetQuery replaces the whole query from a raw "a=1&b=2" string. An empty
// string clears the query.
func (b *BetterUrl) SetQuery(raw string) {
	b.query = splitQuery(raw)
}

// RemoveQuery unconditionally clears the query.
func (b *BetterUrl) RemoveQuery() { b.query = nil }

// RemoveEmptyQuery clears the query only if it is present and renders empty.
func (b *BetterUrl) RemoveEmptyQuery() {
	if b.HasQuery() && joinQuery(b.query) == "" {
		b.query = nil
	}
}

func forbiddenQueryChar(s string) bool {
	return strings.ContainsAny(s, "&=#")
}

// QueryParam returns the decoded value of the i-th (0-based) query
// parameter whose decoded name equals name (percent-decoded matching).
func (b *BetterUrl) QueryParam(name string, i int) (string, bool, bool) {
	count := 0
	for _, p := range b.query {
		if decodeOrRaw(p.rawName) != name {
			continue
		}
		if count == i {
			return decodeOrRaw(p.rawValue), p.hasValue, true
		}
		count++
	}
	return "", false, false
}

// RawQueryParam is like QueryParam but returns the value undecoded.
func (b *BetterUrl) RawQueryParam(name string, i int) (string, bool, bool) {
	count := 0
	for _, p := range b.query {
		if decodeOrRaw(p.rawName) != name {
			continue
		}
		if count == i {
			return p.rawValue, p.hasValue, true
		}
		count++
	}
	return "", false, false
}

// SetQueryParam replaces (value non-nil) or removes (value nil) the i-th
// query parameter whose decoded name equals name, percent-encoding value.
func (b *BetterUrl) SetQueryParam(name string, i int, value *string) error {
	return b.setQueryParamRaw(name, i, value, true)
}

// SetRawQueryParam is like SetQueryParam but skips percent-encoding value.
func (b *BetterUrl) SetRawQueryParam(name string, i int, value *string) error {
	return b.setQueryParamRaw(name, i, value, false)
}

func (b *BetterUrl) setQueryParamRaw(name string, i int, value *string, encode bool) error {
	count := 0
	for idx, p := range b.query {
		if decodeOrRaw(p.rawName) != name {
			continue
		}
		if count != i {
			count++
			continue
		}
		if value == nil {
			b.query = append(append([]queryPair(nil), b.query[:idx]...), b.query[idx+1:]...)
			if len(b.query) == 0 {
				b.query = nil
			}
			return nil
		}
		raw := *value
		if encode {
			raw = url.QueryEscape(raw)
		}
		b.query[idx].rawValue = raw
		b.query[idx].hasValue = true
		return nil
	}
	// Removing a parameter that was never there is a no-op; setting the
	// next index past the last existing occurrence appends a new pair.
	if value == nil {
		return nil
	}
	if count != i {
		return fmt.Errorf("urlmodel: set query param %q[%d]: %w", name, i, ErrSegmentOutOfRange)
	}
	raw := *value
	rawName := name
	if encode {
		raw = url.QueryEscape(raw)
		rawName = url.QueryEscape(name)
	}
	b.query = append(b.query, queryPair{rawName: rawName, rawValue: raw, hasValue: true})
	return nil
}

// RemoveQueryParam removes every query parameter whose decoded name equals
// name.
func (b *BetterUrl) RemoveQueryParam(name string) {
	b.filterQuery(func(p queryPair) bool { return decodeOrRaw(p.rawName) != name })
}

// AllowQueryParam keeps only query parameters whose decoded name equals
// name.
func (b *BetterUrl) AllowQueryParam(name string) {
	b.filterQuery(func(p queryPair) bool { return decodeOrRaw(p.rawName) == name })
}

// RemoveQueryParams removes every query parameter whose decoded name is in
// names.
func (b *BetterUrl) RemoveQueryParams(names map[string]struct{}) {
	b.filterQuery(func(p queryPair) bool {
		_, remove := names[decodeOrRaw(p.rawName)]
		return !remove
	})
}

// AllowQueryParams keeps only query parameters whose decoded name is in
// names.
func (b *BetterUrl) AllowQueryParams(names map[string]struct{}) {
	b.filterQuery(func(p queryPair) bool {
		_, keep := names[decodeOrRaw(p.rawName)]
		return keep
	})
}

// RemoveQueryParamsMatching removes every query parameter whose decoded
// name satisfies match.
func (b *BetterUrl) RemoveQueryParamsMatching(match func(name string) bool) {
	b.filterQuery(func(p queryPair) bool { return !match(decodeOrRaw(p.rawName)) })
}

// AllowQueryParamsMatching keeps only query parameters whose decoded name
// satisfies match.
func (b *BetterUrl) AllowQueryParamsMatching(match func(name string) bool) {
	b.filterQuery(func(p queryPair) bool { return match(decodeOrRaw(p.rawName)) })
}

// RemoveQueryParamsInSetOrStartingWithAnyInList removes parameters whose
// decoded name is exactly in set, or starts with any prefix in list.
func (b *BetterUrl) RemoveQueryParamsInSetOrStartingWithAnyInList(set map[string]struct{}, prefixes []string) {
	b.filterQuery(func(p queryPair) bool {
		name := decodeOrRaw(p.rawName)
		if _, ok := set[name]; ok {
			return false
		}
		for _, prefix := range prefixes {
			if strings.HasPrefix(name, prefix) {
				return false
			}
		}
		return true
	})
}

func (b *BetterUrl) filterQuery(keep func(queryPair) bool) {
	filtered := b.query[:0:0]
	for _, p := range b.query {
		if keep(p) {
			filtered = append(filtered, p)
		}
	}
	if len(filtered) == 0 {
		b.query = nil
		return
	}
	b.query = filtered
}

// QueryParamSelector identifies the i-th query parameter by decoded name.
type QueryParamSelector struct {
	Name  string
	Index int
}

// UnmarshalYAML accepts either a bare name string (index defaults to 0) or
// a {name, index} mapping, per the spec's shorthand for QueryParamSelector.
func (s *QueryParamSelector) UnmarshalYAML(node *yaml.Node) error {
	sel, err := decodeQueryParamSelector(node)
	if err != nil {
		return err
	}
	*s = sel
	return nil
}

// RenameQueryParam renames the selected parameter's name to to, rejecting
// to values containing '&', '=', or '#'.
func (b *BetterUrl) RenameQueryParam(sel QueryParamSelector, to string) error {
	if forbiddenQueryChar(to) {
		return fmt.Errorf("urlmodel: rename query param to %q: %w", to, ErrForbiddenChar)
	}
	count := 0
	for i, p := range b.query {
		if decodeOrRaw(p.rawName) != sel.Name {
			continue
		}
		if count == sel.Index {
			b.query[i].rawName = url.QueryEscape(to)
			return nil
		}
		count++
	}
	return fmt.Errorf("urlmodel: rename query param %q[%d]: %w", sel.Name, sel.Index, ErrSegmentOutOfRange)
}

// GetUrlFromQueryParam replaces the whole URL with the first (index 0)
// decoded value of the named query parameter, re-parsed as a URL.
func (b *BetterUrl) GetUrlFromQueryParam(name string) error {
	v, hasValue, ok := b.QueryParam(name, 0)
	if !ok || !hasValue {
		return fmt.Errorf("urlmodel: get url from query param %q: %w", name, ErrMissingValue)
	}
	return b.SetWhole(v)
}
