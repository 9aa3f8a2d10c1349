package cleanerdoc

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/edgecomet/urlcleaner/pkg/pattern"
)

// StringMatcher is a boolean predicate over an optional haystack string and
// a TaskStateView.
type StringMatcher interface {
	Match(value *string, v *TaskStateView) (bool, error)
}

// DecodeStringMatcher dispatches a YAML node into a concrete StringMatcher
// by its single variant tag, or a bare string for no-payload variants
// (e.g. "Always", "IsSome", "IsAscii").
func DecodeStringMatcher(node *yaml.Node) (StringMatcher, error) {
	tag, payload, err := singleKeyTag(node)
	if err != nil {
		return nil, fmt.Errorf("string matcher: %w", err)
	}

	switch tag {
	case "Always":
		return matchAlways{}, nil
	case "Never":
		return matchNever{}, nil
	case "Error":
		var msg string
		if err := decodePayload(payload, &msg); err != nil {
			return nil, err
		}
		return matchError{Message: msg}, nil
	case "Not":
		inner, err := decodeChildMatcher(payload)
		if err != nil {
			return nil, err
		}
		return matchNot{Inner: inner}, nil
	case "All":
		items, err := decodeMatcherList(payload)
		if err != nil {
			return nil, err
		}
		return matchAll{Items: items}, nil
	case "Any":
		items, err := decodeMatcherList(payload)
		if err != nil {
			return nil, err
		}
		return matchAny{Items: items}, nil
	case "If":
		var raw struct {
			If   yaml.Node `yaml:"if"`
			Then yaml.Node `yaml:"then"`
			Else yaml.Node `yaml:"else"`
		}
		if err := decodePayload(payload, &raw); err != nil {
			return nil, err
		}
		ifM, err := DecodeStringMatcher(&raw.If)
		if err != nil {
			return nil, err
		}
		thenM, err := DecodeStringMatcher(&raw.Then)
		if err != nil {
			return nil, err
		}
		elseM, err := DecodeStringMatcher(&raw.Else)
		if err != nil {
			return nil, err
		}
		return matchIf{If: ifM, Then: thenM, Else: elseM}, nil
	case "TreatErrorAsPass":
		inner, err := decodeChildMatcher(payload)
		if err != nil {
			return nil, err
		}
		return matchTreatErrorAsPass{Inner: inner}, nil
	case "TreatErrorAsFail":
		inner, err := decodeChildMatcher(payload)
		if err != nil {
			return nil, err
		}
		return matchTreatErrorAsFail{Inner: inner}, nil
	case "TryElse":
		var raw struct {
			Try  yaml.Node `yaml:"try"`
			Else yaml.Node `yaml:"else"`
		}
		if err := decodePayload(payload, &raw); err != nil {
			return nil, err
		}
		tryM, err := DecodeStringMatcher(&raw.Try)
		if err != nil {
			return nil, err
		}
		elseM, err := DecodeStringMatcher(&raw.Else)
		if err != nil {
			return nil, err
		}
		return matchTryElse{Try: tryM, Else: elseM}, nil
	case "FirstNotError":
		items, err := decodeMatcherList(payload)
		if err != nil {
			return nil, err
		}
		return matchFirstNotError{Items: items}, nil
	case "Is":
		value, err := decodeChildSourcePayload(payload)
		if err != nil {
			return nil, err
		}
		return matchIs{Value: value}, nil
	case "IsOneOf":
		var values []string
		if err := decodePayload(payload, &values); err != nil {
			return nil, err
		}
		set := make(map[string]struct{}, len(values))
		for _, v := range values {
			set[v] = struct{}{}
		}
		return matchIsOneOf{Values: set}, nil
	case "IsInSet":
		var name string
		if err := decodePayload(payload, &name); err != nil {
			return nil, err
		}
		return matchIsInSet{Name: name}, nil
	case "StartsWith":
		value, err := decodeChildSourcePayload(payload)
		if err != nil {
			return nil, err
		}
		return matchStartsWith{Value: value}, nil
	case "EndsWith":
		value, err := decodeChildSourcePayload(payload)
		if err != nil {
			return nil, err
		}
		return matchEndsWith{Value: value}, nil
	case "IsPrefixOf":
		value, err := decodeChildSourcePayload(payload)
		if err != nil {
			return nil, err
		}
		return matchIsPrefixOf{Value: value}, nil
	case "IsSuffixOf":
		value, err := decodeChildSourcePayload(payload)
		if err != nil {
			return nil, err
		}
		return matchIsSuffixOf{Value: value}, nil
	case "Contains":
		var raw struct {
			Value yaml.Node `yaml:"value"`
			At    yaml.Node `yaml:"at"`
		}
		if err := decodePayload(payload, &raw); err != nil {
			return nil, err
		}
		value, err := DecodeStringSource(&raw.Value)
		if err != nil {
			return nil, err
		}
		var at StringLocation = locAnywhere{}
		if raw.At.Kind != 0 {
			at, err = DecodeStringLocation(&raw.At)
			if err != nil {
				return nil, err
			}
		}
		return matchContains{Value: value, At: at}, nil
	case "ContainsAny":
		var nodes []yaml.Node
		if err := decodePayload(payload, &nodes); err != nil {
			return nil, err
		}
		items := make([]StringSource, len(nodes))
		for i := range nodes {
			s, err := DecodeStringSource(&nodes[i])
			if err != nil {
				return nil, err
			}
			items[i] = s
		}
		return matchContainsAny{Values: items}, nil
	case "ContainsAnyInList":
		var name string
		if err := decodePayload(payload, &name); err != nil {
			return nil, err
		}
		return matchContainsAnyInList{Name: name}, nil
	case "AllCharsAreOneOf":
		var chars string
		if err := decodePayload(payload, &chars); err != nil {
			return nil, err
		}
		return matchAllCharsAreOneOf{Chars: chars}, nil
	case "AnyCharIsOneOf":
		var chars string
		if err := decodePayload(payload, &chars); err != nil {
			return nil, err
		}
		return matchAnyCharIsOneOf{Chars: chars}, nil
	case "NoCharIsOneOf":
		var chars string
		if err := decodePayload(payload, &chars); err != nil {
			return nil, err
		}
		return matchNoCharIsOneOf{Chars: chars}, nil
	case "AllCharsMatch":
		cm, err := decodeChildCharMatcher(payload)
		if err != nil {
			return nil, err
		}
		return matchAllCharsMatch{Matcher: cm}, nil
	case "AnyCharMatches":
		cm, err := decodeChildCharMatcher(payload)
		if err != nil {
			return nil, err
		}
		return matchAnyCharMatches{Matcher: cm}, nil
	case "IsAscii":
		return matchIsAscii{}, nil
	case "NthSegmentMatches":
		var raw struct {
			Split   string    `yaml:"split"`
			Index   int       `yaml:"index"`
			Matcher yaml.Node `yaml:"matcher"`
		}
		if err := decodePayload(payload, &raw); err != nil {
			return nil, err
		}
		matcher, err := DecodeStringMatcher(&raw.Matcher)
		if err != nil {
			return nil, err
		}
		return matchNthSegmentMatches{Split: raw.Split, Index: raw.Index, Matcher: matcher}, nil
	case "AnySegmentMatches":
		var raw struct {
			Split   string    `yaml:"split"`
			Matcher yaml.Node `yaml:"matcher"`
		}
		if err := decodePayload(payload, &raw); err != nil {
			return nil, err
		}
		matcher, err := DecodeStringMatcher(&raw.Matcher)
		if err != nil {
			return nil, err
		}
		return matchAnySegmentMatches{Split: raw.Split, Matcher: matcher}, nil
	case "SegmentsStartWith":
		var raw struct {
			Split    string   `yaml:"split"`
			Segments []string `yaml:"segments"`
		}
		if err := decodePayload(payload, &raw); err != nil {
			return nil, err
		}
		return matchSegmentsStartWith{Split: raw.Split, Segments: raw.Segments}, nil
	case "SegmentsEndWith":
		var raw struct {
			Split    string   `yaml:"split"`
			Segments []string `yaml:"segments"`
		}
		if err := decodePayload(payload, &raw); err != nil {
			return nil, err
		}
		return matchSegmentsEndWith{Split: raw.Split, Segments: raw.Segments}, nil
	case "LengthIs":
		var n int
		if err := decodePayload(payload, &n); err != nil {
			return nil, err
		}
		return matchLengthIs{Length: n}, nil
	case "Modified":
		var raw struct {
			Modification yaml.Node `yaml:"modification"`
			Matcher      yaml.Node `yaml:"matcher"`
		}
		if err := decodePayload(payload, &raw); err != nil {
			return nil, err
		}
		mod, err := DecodeStringModification(&raw.Modification)
		if err != nil {
			return nil, err
		}
		matcher, err := DecodeStringMatcher(&raw.Matcher)
		if err != nil {
			return nil, err
		}
		return matchModified{Modification: mod, Matcher: matcher}, nil
	case "IsSome":
		return matchIsSome{}, nil
	case "IsNone":
		return matchIsNone{}, nil
	case "IsSomeAnd":
		matcher, err := decodeChildMatcher(payload)
		if err != nil {
			return nil, err
		}
		return matchIsSomeAnd{Matcher: matcher}, nil
	case "IsNoneOr":
		matcher, err := decodeChildMatcher(payload)
		if err != nil {
			return nil, err
		}
		return matchIsNoneOr{Matcher: matcher}, nil
	case "Regex":
		var pattern string
		if err := decodePayload(payload, &pattern); err != nil {
			return nil, err
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("string matcher Regex: %w", err)
		}
		return matchRegex{Regex: re}, nil
	case "Pattern":
		var raw string
		if err := decodePayload(payload, &raw); err != nil {
			return nil, err
		}
		p, err := pattern.Compile(raw)
		if err != nil {
			return nil, fmt.Errorf("string matcher Pattern: %w", err)
		}
		return matchPattern{Pattern: p}, nil
	case "Common":
		var call CommonCall
		if err := decodePayload(payload, &call); err != nil {
			return nil, err
		}
		return matchCommon{Call: call}, nil
	case "CommonCallArg":
		var name string
		if err := decodePayload(payload, &name); err != nil {
			return nil, err
		}
		return matchCommonCallArg{Name: name}, nil
	default:
		return nil, fmt.Errorf("string matcher: unknown variant %q", tag)
	}
}

func decodeChildMatcher(payload *yaml.Node) (StringMatcher, error) {
	if payload == nil {
		return nil, fmt.Errorf("string matcher: missing payload")
	}
	return DecodeStringMatcher(payload)
}

func decodeMatcherList(payload *yaml.Node) ([]StringMatcher, error) {
	var nodes []yaml.Node
	if err := decodePayload(payload, &nodes); err != nil {
		return nil, err
	}
	items := make([]StringMatcher, len(nodes))
	for i := range nodes {
		m, err := DecodeStringMatcher(&nodes[i])
		if err != nil {
			return nil, err
		}
		items[i] = m
	}
	return items, nil
}

func decodeChildSourcePayload(payload *yaml.Node) (StringSource, error) {
	if payload == nil {
		return nil, fmt.Errorf("missing value payload")
	}
	return DecodeStringSource(payload)
}

// haystackOf dereferences value, treating a nil haystack as "".
func haystackOf(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

// --- logic combinators --------------------------------------------------

type matchAlways struct{}

func (matchAlways) Match(*string, *TaskStateView) (bool, error) { return true, nil }

type matchNever struct{}

func (matchNever) Match(*string, *TaskStateView) (bool, error) { return false, nil }

type matchError struct{ Message string }

func (m matchError) Match(*string, *TaskStateView) (bool, error) {
	return false, &ExplicitError{Message: m.Message}
}

type matchNot struct{ Inner StringMatcher }

func (m matchNot) Match(value *string, v *TaskStateView) (bool, error) {
	ok, err := m.Inner.Match(value, v)
	if err != nil {
		return false, err
	}
	return !ok, nil
}

type matchAll struct{ Items []StringMatcher }

func (m matchAll) Match(value *string, v *TaskStateView) (bool, error) {
	for _, item := range m.Items {
		ok, err := item.Match(value, v)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

type matchAny struct{ Items []StringMatcher }

func (m matchAny) Match(value *string, v *TaskStateView) (bool, error) {
	for _, item := range m.Items {
		ok, err := item.Match(value, v)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

type matchIf struct{ If, Then, Else StringMatcher }

func (m matchIf) Match(value *string, v *TaskStateView) (bool, error) {
	cond, err := m.If.Match(value, v)
	if err != nil {
		return false, err
	}
	if cond {
		return m.Then.Match(value, v)
	}
	return m.Else.Match(value, v)
}

type matchTreatErrorAsPass struct{ Inner StringMatcher }

func (m matchTreatErrorAsPass) Match(value *string, v *TaskStateView) (bool, error) {
	ok, err := m.Inner.Match(value, v)
	if err != nil {
		return true, nil
	}
	return ok, nil
}

type matchTreatErrorAsFail struct{ Inner StringMatcher }

func (m matchTreatErrorAsFail) Match(value *string, v *TaskStateView) (bool, error) {
	ok, err := m.Inner.Match(value, v)
	if err != nil {
		return false, nil
	}
	return ok, nil
}

type matchTryElse struct{ Try, Else StringMatcher }

func (m matchTryElse) Match(value *string, v *TaskStateView) (bool, error) {
	ok, err := m.Try.Match(value, v)
	if err == nil {
		return ok, nil
	}
	ok, elseErr := m.Else.Match(value, v)
	if elseErr == nil {
		return ok, nil
	}
	return false, &TryElseError{Try: err, Else: elseErr}
}

type matchFirstNotError struct{ Items []StringMatcher }

func (m matchFirstNotError) Match(value *string, v *TaskStateView) (bool, error) {
	var errs []error
	for _, item := range m.Items {
		ok, err := item.Match(value, v)
		if err == nil {
			return ok, nil
		}
		errs = append(errs, err)
	}
	return false, &FirstNotErrorErrors{Errors: errs}
}

// --- equality -------------------------------------------------------------

type matchIs struct{ Value StringSource }

func (m matchIs) Match(value *string, v *TaskStateView) (bool, error) {
	want, err := m.Value.Get(v)
	if err != nil {
		return false, err
	}
	if value == nil || want == nil {
		return value == nil && want == nil, nil
	}
	return *value == *want, nil
}

type matchIsOneOf struct{ Values map[string]struct{} }

func (m matchIsOneOf) Match(value *string, _ *TaskStateView) (bool, error) {
	if value == nil {
		return false, nil
	}
	_, ok := m.Values[*value]
	return ok, nil
}

type matchIsInSet struct{ Name string }

func (m matchIsInSet) Match(value *string, v *TaskStateView) (bool, error) {
	if value == nil {
		return false, nil
	}
	set, ok := v.Params().Sets[m.Name]
	if !ok {
		return false, fmt.Errorf("string matcher IsInSet %q: %w", m.Name, ErrNamedSetNotFound)
	}
	_, found := set[*value]
	return found, nil
}

// --- containment ------------------------------------------------------

type matchStartsWith struct{ Value StringSource }

func (m matchStartsWith) Match(value *string, v *TaskStateView) (bool, error) {
	want, err := m.Value.Get(v)
	if err != nil {
		return false, err
	}
	if want == nil {
		return false, nil
	}
	return strings.HasPrefix(haystackOf(value), *want), nil
}

type matchEndsWith struct{ Value StringSource }

func (m matchEndsWith) Match(value *string, v *TaskStateView) (bool, error) {
	want, err := m.Value.Get(v)
	if err != nil {
		return false, err
	}
	if want == nil {
		return false, nil
	}
	return strings.HasSuffix(haystackOf(value), *want), nil
}

type matchIsPrefixOf struct{ Value StringSource }

func (m matchIsPrefixOf) Match(value *string, v *TaskStateView) (bool, error) {
	other, err := m.Value.Get(v)
	if err != nil {
		return false, err
	}
	if other == nil {
		return false, nil
	}
	return strings.HasPrefix(*other, haystackOf(value)), nil
}

type matchIsSuffixOf struct{ Value StringSource }

func (m matchIsSuffixOf) Match(value *string, v *TaskStateView) (bool, error) {
	other, err := m.Value.Get(v)
	if err != nil {
		return false, err
	}
	if other == nil {
		return false, nil
	}
	return strings.HasSuffix(*other, haystackOf(value)), nil
}

type matchContains struct {
	Value StringSource
	At    StringLocation
}

func (m matchContains) Match(value *string, v *TaskStateView) (bool, error) {
	needle, err := m.Value.Get(v)
	if err != nil {
		return false, err
	}
	if needle == nil {
		return false, nil
	}
	at := m.At
	if at == nil {
		at = locAnywhere{}
	}
	return at.Check(haystackOf(value), *needle)
}

type matchContainsAny struct{ Values []StringSource }

func (m matchContainsAny) Match(value *string, v *TaskStateView) (bool, error) {
	haystack := haystackOf(value)
	for _, item := range m.Values {
		needle, err := item.Get(v)
		if err != nil {
			return false, err
		}
		if needle != nil && strings.Contains(haystack, *needle) {
			return true, nil
		}
	}
	return false, nil
}

type matchContainsAnyInList struct{ Name string }

func (m matchContainsAnyInList) Match(value *string, v *TaskStateView) (bool, error) {
	list, ok := v.Params().Lists[m.Name]
	if !ok {
		return false, fmt.Errorf("string matcher ContainsAnyInList %q: %w", m.Name, ErrNamedListNotFound)
	}
	haystack := haystackOf(value)
	for _, needle := range list {
		if strings.Contains(haystack, needle) {
			return true, nil
		}
	}
	return false, nil
}

// --- char-wise ----------------------------------------------------------

type matchAllCharsAreOneOf struct{ Chars string }

func (m matchAllCharsAreOneOf) Match(value *string, _ *TaskStateView) (bool, error) {
	for _, r := range haystackOf(value) {
		if !strings.ContainsRune(m.Chars, r) {
			return false, nil
		}
	}
	return true, nil
}

type matchAnyCharIsOneOf struct{ Chars string }

func (m matchAnyCharIsOneOf) Match(value *string, _ *TaskStateView) (bool, error) {
	for _, r := range haystackOf(value) {
		if strings.ContainsRune(m.Chars, r) {
			return true, nil
		}
	}
	return false, nil
}

type matchNoCharIsOneOf struct{ Chars string }

func (m matchNoCharIsOneOf) Match(value *string, _ *TaskStateView) (bool, error) {
	for _, r := range haystackOf(value) {
		if strings.ContainsRune(m.Chars, r) {
			return false, nil
		}
	}
	return true, nil
}

type matchAllCharsMatch struct{ Matcher CharMatcher }

func (m matchAllCharsMatch) Match(value *string, _ *TaskStateView) (bool, error) {
	for _, r := range haystackOf(value) {
		if !m.Matcher.Match(r) {
			return false, nil
		}
	}
	return true, nil
}

type matchAnyCharMatches struct{ Matcher CharMatcher }

func (m matchAnyCharMatches) Match(value *string, _ *TaskStateView) (bool, error) {
	for _, r := range haystackOf(value) {
		if m.Matcher.Match(r) {
			return true, nil
		}
	}
	return false, nil
}

type matchIsAscii struct{}

func (matchIsAscii) Match(value *string, _ *TaskStateView) (bool, error) {
	for _, r := range haystackOf(value) {
		if r > unicode.MaxASCII {
			return false, nil
		}
	}
	return true, nil
}

// --- segments -----------------------------------------------------------

type matchNthSegmentMatches struct {
	Split   string
	Index   int
	Matcher StringMatcher
}

func (m matchNthSegmentMatches) Match(value *string, v *TaskStateView) (bool, error) {
	segments := strings.Split(haystackOf(value), m.Split)
	idx := m.Index
	if idx < 0 {
		idx += len(segments)
	}
	if idx < 0 || idx >= len(segments) {
		return false, nil
	}
	return m.Matcher.Match(&segments[idx], v)
}

type matchAnySegmentMatches struct {
	Split   string
	Matcher StringMatcher
}

func (m matchAnySegmentMatches) Match(value *string, v *TaskStateView) (bool, error) {
	for _, seg := range strings.Split(haystackOf(value), m.Split) {
		seg := seg
		ok, err := m.Matcher.Match(&seg, v)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

type matchSegmentsStartWith struct {
	Split    string
	Segments []string
}

func (m matchSegmentsStartWith) Match(value *string, _ *TaskStateView) (bool, error) {
	segments := strings.Split(haystackOf(value), m.Split)
	if len(m.Segments) > len(segments) {
		return false, nil
	}
	for i, want := range m.Segments {
		if segments[i] != want {
			return false, nil
		}
	}
	return true, nil
}

type matchSegmentsEndWith struct {
	Split    string
	Segments []string
}

func (m matchSegmentsEndWith) Match(value *string, _ *TaskStateView) (bool, error) {
	segments := strings.Split(haystackOf(value), m.Split)
	if len(m.Segments) > len(segments) {
		return false, nil
	}
	offset := len(segments) - len(m.Segments)
	for i, want := range m.Segments {
		if segments[offset+i] != want {
			return false, nil
		}
	}
	return true, nil
}

// --- misc -----------------------------------------------------------------

type matchLengthIs struct{ Length int }

func (m matchLengthIs) Match(value *string, _ *TaskStateView) (bool, error) {
	return len([]rune(haystackOf(value))) == m.Length, nil
}

type matchModified struct {
	Modification StringModification
	Matcher      StringMatcher
}

func (m matchModified) Match(value *string, v *TaskStateView) (bool, error) {
	var cow *string
	if value != nil {
		s := *value
		cow = &s
	}
	if err := m.Modification.Apply(&cow, v); err != nil {
		return false, err
	}
	return m.Matcher.Match(cow, v)
}

type matchIsSome struct{}

func (matchIsSome) Match(value *string, _ *TaskStateView) (bool, error) { return value != nil, nil }

type matchIsNone struct{}

func (matchIsNone) Match(value *string, _ *TaskStateView) (bool, error) { return value == nil, nil }

type matchIsSomeAnd struct{ Matcher StringMatcher }

func (m matchIsSomeAnd) Match(value *string, v *TaskStateView) (bool, error) {
	if value == nil {
		return false, nil
	}
	return m.Matcher.Match(value, v)
}

type matchIsNoneOr struct{ Matcher StringMatcher }

func (m matchIsNoneOr) Match(value *string, v *TaskStateView) (bool, error) {
	if value == nil {
		return true, nil
	}
	return m.Matcher.Match(value, v)
}

type matchRegex struct{ Regex *regexp.Regexp }

func (m matchRegex) Match(value *string, _ *TaskStateView) (bool, error) {
	return m.Regex.MatchString(haystackOf(value)), nil
}

// matchPattern matches via the unified exact/wildcard/regexp pattern
// syntax ("foo", "*.pdf", "~regex", "~*case-insensitive-regex").
type matchPattern struct{ Pattern *pattern.Pattern }

func (m matchPattern) Match(value *string, _ *TaskStateView) (bool, error) {
	return m.Pattern.Match(haystackOf(value)), nil
}

type matchCommon struct{ Call CommonCall }

func (m matchCommon) Match(value *string, v *TaskStateView) (bool, error) {
	matcher, ok := v.Commons().StringMatchers[m.Call.Name]
	if !ok {
		return false, fmt.Errorf("string matcher Common %q: %w", m.Call.Name, ErrCommonNotFound)
	}
	frame := buildCommonCallArgs(m.Call.Args, v)
	return matcher.Match(value, v.WithCommonArgs(frame))
}

type matchCommonCallArg struct{ Name string }

func (m matchCommonCallArg) Match(value *string, v *TaskStateView) (bool, error) {
	args := v.CommonArgs()
	if args == nil {
		return false, fmt.Errorf("string matcher CommonCallArg %q: %w", m.Name, ErrCommonArgNotFound)
	}
	if matcher, ok := args.StringMatchers[m.Name]; ok {
		return matcher.(StringMatcher).Match(value, v)
	}
	return false, fmt.Errorf("string matcher CommonCallArg %q: %w", m.Name, ErrCommonArgNotFound)
}

// CustomStringMatcher is a host-supplied function hook, opaque to and
// excluded from serialized documents.
type CustomStringMatcher func(value *string, v *TaskStateView) (bool, error)

func (f CustomStringMatcher) Match(value *string, v *TaskStateView) (bool, error) { return f(value, v) }
