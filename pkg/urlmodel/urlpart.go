package urlmodel

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// PartKind names a BetterUrl component addressed via UrlPart.
type PartKind int

const (
	PartWhole PartKind = iota
	PartScheme
	PartUsername
	PartPassword
	PartHost
	PartNormalizedHost
	PartPort
	PartDomain
	PartSubdomain
	PartRegDomain
	PartDomainMiddle
	PartDomainSuffix
	PartNotDomainSuffix
	PartDomainSegment
	PartSubdomainSegment
	PartDomainSuffixSegment
	PartPath
	PartPathSegments
	PartPathSegment
	PartRawPathSegment
	PartFirstNPathSegments
	PartPathSegmentsAfterFirstN
	PartLastNPathSegments
	PartPathSegmentsBeforeLastN
	PartQuery
	PartQueryParam
	PartRawQueryParam
	PartFragment
	PartPositionRange
)

// PositionRange addresses a [start, end) byte span of the serialized URL.
// A nil End means end-of-string; negative boundaries count from the end.
type PositionRange struct {
	Start int  `yaml:"start"`
	End   *int `yaml:"end"`
}

// UrlPart names one addressable BetterUrl component, plus an index for
// segment/query-param variants and an optional selector name.
type UrlPart struct {
	Kind  PartKind
	Index int
	Name  string         // query param / selector name, where applicable
	Range *PositionRange // PositionRange only
}

// SetUrlPartError wraps a per-kind setter failure, recording which part was
// being set.
type SetUrlPartError struct {
	Part PartKind
	Err  error
}

func (e *SetUrlPartError) Error() string {
	return fmt.Sprintf("urlmodel: set part %v: %v", e.Part, e.Err)
}

func (e *SetUrlPartError) Unwrap() error { return e.Err }

var errUnsupportedPart = errors.New("unsupported url part")

// bareParts are UrlPart variants with no payload, addressed by their bare
// tag name, e.g. {"Part": "Domain"}.
var bareParts = map[string]PartKind{
	"Whole":           PartWhole,
	"Scheme":          PartScheme,
	"Username":        PartUsername,
	"Password":        PartPassword,
	"Host":            PartHost,
	"NormalizedHost":  PartNormalizedHost,
	"Port":            PartPort,
	"Domain":          PartDomain,
	"Subdomain":       PartSubdomain,
	"RegDomain":       PartRegDomain,
	"DomainMiddle":    PartDomainMiddle,
	"DomainSuffix":    PartDomainSuffix,
	"NotDomainSuffix": PartNotDomainSuffix,
	"Path":            PartPath,
	"PathSegments":    PartPathSegments,
	"Query":           PartQuery,
	"Fragment":        PartFragment,
}

// indexParts are UrlPart variants whose payload is a single segment index
// (or segment count, for the N-segment range parts).
var indexParts = map[string]PartKind{
	"DomainSegment":           PartDomainSegment,
	"SubdomainSegment":        PartSubdomainSegment,
	"DomainSuffixSegment":     PartDomainSuffixSegment,
	"PathSegment":             PartPathSegment,
	"RawPathSegment":          PartRawPathSegment,
	"FirstNPathSegments":      PartFirstNPathSegments,
	"PathSegmentsAfterFirstN": PartPathSegmentsAfterFirstN,
	"LastNPathSegments":       PartLastNPathSegments,
	"PathSegmentsBeforeLastN": PartPathSegmentsBeforeLastN,
}

// queryParamParts are UrlPart variants whose payload is a QueryParamSelector
// (a bare name string, or {name, index}).
var queryParamParts = map[string]PartKind{
	"QueryParam":    PartQueryParam,
	"RawQueryParam": PartRawQueryParam,
}

// UnmarshalYAML decodes a UrlPart from its single-key tagged-union form
// ({"Domain": null}, {"PathSegment": 0}, {"QueryParam": "utm_source"} or
// {"QueryParam": {"name": "utm_source", "index": 1}}), or a bare string for
// no-payload variants ("Domain").
func (p *UrlPart) UnmarshalYAML(node *yaml.Node) error {
	var tag string
	var payload *yaml.Node
	if node.Kind == yaml.ScalarNode {
		tag = node.Value
	} else if node.Kind == yaml.MappingNode {
		if len(node.Content) != 2 {
			return fmt.Errorf("urlmodel: UrlPart must have exactly one key")
		}
		tag = node.Content[0].Value
		payload = node.Content[1]
	} else {
		return fmt.Errorf("urlmodel: UrlPart: unsupported node kind %v", node.Kind)
	}

	if kind, ok := bareParts[tag]; ok {
		*p = UrlPart{Kind: kind}
		return nil
	}
	if kind, ok := indexParts[tag]; ok {
		var idx int
		if payload != nil {
			if err := payload.Decode(&idx); err != nil {
				return fmt.Errorf("urlmodel: UrlPart %s: %w", tag, err)
			}
		}
		*p = UrlPart{Kind: kind, Index: idx}
		return nil
	}
	if kind, ok := queryParamParts[tag]; ok {
		sel, err := decodeQueryParamSelector(payload)
		if err != nil {
			return fmt.Errorf("urlmodel: UrlPart %s: %w", tag, err)
		}
		*p = UrlPart{Kind: kind, Name: sel.Name, Index: sel.Index}
		return nil
	}
	if tag == "PositionRange" {
		if payload == nil {
			return fmt.Errorf("urlmodel: UrlPart PositionRange: missing {start, end}")
		}
		var r PositionRange
		if err := payload.Decode(&r); err != nil {
			return fmt.Errorf("urlmodel: UrlPart PositionRange: %w", err)
		}
		*p = UrlPart{Kind: PartPositionRange, Range: &r}
		return nil
	}
	return fmt.Errorf("urlmodel: UrlPart: unknown variant %q", tag)
}

// decodeQueryParamSelector decodes a QueryParamSelector from a bare name
// string (index defaults to 0) or a {name, index} mapping.
func decodeQueryParamSelector(node *yaml.Node) (QueryParamSelector, error) {
	if node == nil {
		return QueryParamSelector{}, fmt.Errorf("missing query param selector")
	}
	if node.Kind == yaml.ScalarNode {
		var name string
		if err := node.Decode(&name); err != nil {
			return QueryParamSelector{}, err
		}
		return QueryParamSelector{Name: name}, nil
	}
	var raw struct {
		Name  string `yaml:"name"`
		Index int    `yaml:"index"`
	}
	if err := node.Decode(&raw); err != nil {
		return QueryParamSelector{}, err
	}
	return QueryParamSelector{Name: raw.Name, Index: raw.Index}, nil
}

// Get reads the named part, returning (value, present).
func (p UrlPart) Get(u *BetterUrl) (string, bool) {
	switch p.Kind {
	case PartWhole:
		return u.String(), true
	case PartScheme:
		return u.Scheme(), u.Scheme() != ""
	case PartUsername:
		return u.Username()
	case PartPassword:
		return u.Password()
	case PartHost:
		return u.Host(), u.Host() != ""
	case PartNormalizedHost:
		return u.NormalizedHost()
	case PartPort:
		return u.Port()
	case PartDomain:
		return u.Domain(), u.Domain() != ""
	case PartSubdomain:
		return u.Subdomain()
	case PartRegDomain:
		return u.RegDomain()
	case PartDomainMiddle:
		return u.DomainMiddle()
	case PartDomainSuffix:
		return u.DomainSuffix()
	case PartNotDomainSuffix:
		return u.NotDomainSuffix()
	case PartDomainSegment:
		return u.DomainSegment(p.Index)
	case PartSubdomainSegment:
		return u.SubdomainSegment(p.Index)
	case PartDomainSuffixSegment:
		return u.DomainSuffixSegment(p.Index)
	case PartPath:
		return u.Path(), true
	case PartPathSegments:
		return u.PathSegmentsStr()
	case PartPathSegment:
		return u.PathSegment(p.Index)
	case PartRawPathSegment:
		return u.RawPathSegment(p.Index)
	case PartFirstNPathSegments:
		return u.FirstNPathSegments(p.Index)
	case PartPathSegmentsAfterFirstN:
		return u.PathSegmentsAfterFirstN(p.Index)
	case PartLastNPathSegments:
		return u.LastNPathSegments(p.Index)
	case PartPathSegmentsBeforeLastN:
		return u.PathSegmentsBeforeLastN(p.Index)
	case PartQuery:
		return u.Query(), u.HasQuery()
	case PartQueryParam:
		v, hasValue, ok := u.QueryParam(p.Name, p.Index)
		return v, ok && hasValue
	case PartRawQueryParam:
		v, hasValue, ok := u.RawQueryParam(p.Name, p.Index)
		return v, ok && hasValue
	case PartFragment:
		return u.Fragment()
	case PartPositionRange:
		if p.Range == nil {
			return "", false
		}
		s := u.String()
		start := p.Range.Start
		if start < 0 {
			start += len(s)
		}
		end := len(s)
		if p.Range.End != nil {
			end = *p.Range.End
			if end < 0 {
				end += len(s)
			}
		}
		if start < 0 || end > len(s) || start > end {
			return "", false
		}
		return s[start:end], true
	default:
		return "", false
	}
}

// Set writes the named part. A nil value removes/clears the part where
// that is meaningful (path/segment/host-family parts); for parts with no
// removal semantics a nil value is an error.
func (p UrlPart) Set(u *BetterUrl, value *string) error {
	if err := p.set(u, value); err != nil {
		return &SetUrlPartError{Part: p.Kind, Err: err}
	}
	return nil
}

func (p UrlPart) set(u *BetterUrl, value *string) error {
	switch p.Kind {
	case PartWhole:
		if value == nil {
			return ErrMissingValue
		}
		return u.SetWhole(*value)
	case PartScheme:
		if value == nil {
			return ErrEmptyHost
		}
		u.SetScheme(*value)
		return nil
	case PartUsername:
		u.SetUsername(value)
		return nil
	case PartPassword:
		u.SetPassword(value)
		return nil
	case PartHost:
		if value == nil {
			return ErrEmptyHost
		}
		return u.SetHost(*value)
	case PartPort:
		return u.SetPort(value)
	case PartDomain:
		if value == nil {
			return ErrEmptyHost
		}
		return u.SetDomain(*value)
	case PartSubdomain:
		if value == nil {
			return u.SetSubdomain("")
		}
		return u.SetSubdomain(*value)
	case PartRegDomain:
		if value == nil {
			return ErrEmptyHost
		}
		return u.SetRegDomain(*value)
	case PartDomainMiddle:
		if value == nil {
			return ErrEmptyHost
		}
		return u.SetDomainMiddle(*value)
	case PartDomainSuffix:
		if value == nil {
			return u.SetDomainSuffixRaw("")
		}
		return u.SetDomainSuffix(*value)
	case PartNotDomainSuffix:
		if value == nil {
			return u.SetNotDomainSuffix("")
		}
		return u.SetNotDomainSuffix(*value)
	case PartDomainSegment:
		return u.SetDomainSegment(p.Index, value)
	case PartSubdomainSegment:
		return u.SetSubdomainSegment(p.Index, value)
	case PartDomainSuffixSegment:
		return u.SetDomainSuffixSegment(p.Index, value)
	case PartPath:
		if value == nil {
			u.SetPath("")
			return nil
		}
		u.SetPath(*value)
		return nil
	case PartPathSegments:
		if value == nil {
			return ErrCannotRemoveAllPath
		}
		u.SetPathSegmentsStr(*value)
		return nil
	case PartPathSegment:
		return u.SetPathSegment(p.Index, value)
	case PartRawPathSegment:
		return u.SetRawPathSegment(p.Index, value)
	case PartFirstNPathSegments:
		return u.SetFirstNPathSegments(p.Index, value)
	case PartPathSegmentsAfterFirstN:
		return u.SetPathSegmentsAfterFirstN(p.Index, value)
	case PartLastNPathSegments:
		return u.SetLastNPathSegments(p.Index, value)
	case PartPathSegmentsBeforeLastN:
		return u.SetPathSegmentsBeforeLastN(p.Index, value)
	case PartQuery:
		if value == nil {
			u.RemoveQuery()
			return nil
		}
		u.SetQuery(*value)
		return nil
	case PartFragment:
		u.SetFragment(value)
		return nil
	case PartQueryParam:
		return u.SetQueryParam(p.Name, p.Index, value)
	case PartRawQueryParam:
		return u.SetRawQueryParam(p.Name, p.Index, value)
	default:
		return errUnsupportedPart
	}
}
