package cleanerdoc

import (
	"encoding/base64"
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/buger/jsonparser"
	htmlparser "golang.org/x/net/html"
	"gopkg.in/yaml.v3"
)

// StringModification mutates an optional string in place (value points at
// the Option<string> slot: *value == nil means "None").
type StringModification interface {
	Apply(value **string, v *TaskStateView) error
}

// DecodeStringModification dispatches a YAML node into a concrete
// StringModification by its single variant tag, or a bare string for
// no-payload variants (e.g. "Lowercase", "PercentDecode").
func DecodeStringModification(node *yaml.Node) (StringModification, error) {
	tag, payload, err := singleKeyTag(node)
	if err != nil {
		return nil, fmt.Errorf("string modification: %w", err)
	}

	switch tag {
	case "None":
		return modNone{}, nil
	case "Debug":
		inner, err := decodeChildModification(payload)
		if err != nil {
			return nil, err
		}
		return modDebug{Inner: inner}, nil
	case "Error":
		var msg string
		if err := decodePayload(payload, &msg); err != nil {
			return nil, err
		}
		return modError{Message: msg}, nil
	case "IgnoreError":
		inner, err := decodeChildModification(payload)
		if err != nil {
			return nil, err
		}
		return modIgnoreError{Inner: inner}, nil
	case "RevertOnError":
		inner, err := decodeChildModification(payload)
		if err != nil {
			return nil, err
		}
		return modRevertOnError{Inner: inner}, nil
	case "TryElse":
		var raw struct {
			Try  yaml.Node `yaml:"try"`
			Else yaml.Node `yaml:"else"`
		}
		if err := decodePayload(payload, &raw); err != nil {
			return nil, err
		}
		try, err := DecodeStringModification(&raw.Try)
		if err != nil {
			return nil, err
		}
		elseMod, err := DecodeStringModification(&raw.Else)
		if err != nil {
			return nil, err
		}
		return modTryElse{Try: try, Else: elseMod}, nil
	case "All":
		items, err := decodeModificationList(payload)
		if err != nil {
			return nil, err
		}
		return modAll{Items: items}, nil
	case "FirstNotError":
		items, err := decodeModificationList(payload)
		if err != nil {
			return nil, err
		}
		return modFirstNotError{Items: items}, nil
	case "IfSome":
		var raw struct {
			Then yaml.Node `yaml:"then"`
			Else yaml.Node `yaml:"else"`
		}
		if err := decodePayload(payload, &raw); err != nil {
			return nil, err
		}
		then, err := DecodeStringModification(&raw.Then)
		if err != nil {
			return nil, err
		}
		elseMod, err := DecodeStringModification(&raw.Else)
		if err != nil {
			return nil, err
		}
		return modIfSome{Then: then, Else: elseMod}, nil
	case "IfMatches":
		var raw struct {
			Matcher yaml.Node `yaml:"matcher"`
			Then    yaml.Node `yaml:"then"`
			Else    yaml.Node `yaml:"else"`
		}
		if err := decodePayload(payload, &raw); err != nil {
			return nil, err
		}
		matcher, err := DecodeStringMatcher(&raw.Matcher)
		if err != nil {
			return nil, err
		}
		then, err := DecodeStringModification(&raw.Then)
		if err != nil {
			return nil, err
		}
		elseMod, err := DecodeStringModification(&raw.Else)
		if err != nil {
			return nil, err
		}
		return modIfMatches{Matcher: matcher, Then: then, Else: elseMod}, nil
	case "IfContains":
		var raw struct {
			Value yaml.Node `yaml:"value"`
			Then  yaml.Node `yaml:"then"`
			Else  yaml.Node `yaml:"else"`
		}
		if err := decodePayload(payload, &raw); err != nil {
			return nil, err
		}
		value, err := DecodeStringSource(&raw.Value)
		if err != nil {
			return nil, err
		}
		then, err := DecodeStringModification(&raw.Then)
		if err != nil {
			return nil, err
		}
		elseMod, err := DecodeStringModification(&raw.Else)
		if err != nil {
			return nil, err
		}
		return modIfContains{Value: value, Then: then, Else: elseMod}, nil
	case "IfContainsAny":
		var raw struct {
			Values []yaml.Node `yaml:"values"`
			Then   yaml.Node   `yaml:"then"`
			Else   yaml.Node   `yaml:"else"`
		}
		if err := decodePayload(payload, &raw); err != nil {
			return nil, err
		}
		values := make([]StringSource, len(raw.Values))
		for i := range raw.Values {
			s, err := DecodeStringSource(&raw.Values[i])
			if err != nil {
				return nil, err
			}
			values[i] = s
		}
		then, err := DecodeStringModification(&raw.Then)
		if err != nil {
			return nil, err
		}
		elseMod, err := DecodeStringModification(&raw.Else)
		if err != nil {
			return nil, err
		}
		return modIfContainsAny{Values: values, Then: then, Else: elseMod}, nil
	case "Map":
		var raw struct {
			Map map[string]string `yaml:"map"`
		}
		if err := decodePayload(payload, &raw); err != nil {
			return nil, err
		}
		return modMap{Map: raw.Map}, nil
	case "Set":
		value, err := decodeChildSourcePayload(payload)
		if err != nil {
			return nil, err
		}
		return modSet{Value: value}, nil
	case "Append":
		value, err := decodeChildSourcePayload(payload)
		if err != nil {
			return nil, err
		}
		return modAppend{Value: value}, nil
	case "Prepend":
		value, err := decodeChildSourcePayload(payload)
		if err != nil {
			return nil, err
		}
		return modPrepend{Value: value}, nil
	case "Insert":
		var raw struct {
			Index int       `yaml:"index"`
			Value yaml.Node `yaml:"value"`
		}
		if err := decodePayload(payload, &raw); err != nil {
			return nil, err
		}
		value, err := DecodeStringSource(&raw.Value)
		if err != nil {
			return nil, err
		}
		return modInsert{Index: raw.Index, Value: value}, nil
	case "Lowercase":
		return modLowercase{}, nil
	case "Uppercase":
		return modUppercase{}, nil
	case "StripPrefix":
		value, err := decodeChildSourcePayload(payload)
		if err != nil {
			return nil, err
		}
		return modStripPrefix{Value: value}, nil
	case "StripSuffix":
		value, err := decodeChildSourcePayload(payload)
		if err != nil {
			return nil, err
		}
		return modStripSuffix{Value: value}, nil
	case "StripMaybePrefix":
		value, err := decodeChildSourcePayload(payload)
		if err != nil {
			return nil, err
		}
		return modStripMaybePrefix{Value: value}, nil
	case "StripMaybeSuffix":
		value, err := decodeChildSourcePayload(payload)
		if err != nil {
			return nil, err
		}
		return modStripMaybeSuffix{Value: value}, nil
	case "RemoveChar":
		var idx int
		if err := decodePayload(payload, &idx); err != nil {
			return nil, err
		}
		return modRemoveChar{Index: idx}, nil
	case "KeepBefore":
		value, err := decodeChildSourcePayload(payload)
		if err != nil {
			return nil, err
		}
		return modKeepBefore{Value: value}, nil
	case "KeepAfter":
		value, err := decodeChildSourcePayload(payload)
		if err != nil {
			return nil, err
		}
		return modKeepAfter{Value: value}, nil
	case "KeepMaybeBefore":
		value, err := decodeChildSourcePayload(payload)
		if err != nil {
			return nil, err
		}
		return modKeepMaybeBefore{Value: value}, nil
	case "KeepMaybeAfter":
		value, err := decodeChildSourcePayload(payload)
		if err != nil {
			return nil, err
		}
		return modKeepMaybeAfter{Value: value}, nil
	case "KeepBetween":
		var raw struct {
			Start yaml.Node `yaml:"start"`
			End   yaml.Node `yaml:"end"`
		}
		if err := decodePayload(payload, &raw); err != nil {
			return nil, err
		}
		start, err := DecodeStringSource(&raw.Start)
		if err != nil {
			return nil, err
		}
		end, err := DecodeStringSource(&raw.End)
		if err != nil {
			return nil, err
		}
		return modKeepBetween{Start: start, End: end}, nil
	case "KeepMaybeBetween":
		var raw struct {
			Start yaml.Node `yaml:"start"`
			End   yaml.Node `yaml:"end"`
		}
		if err := decodePayload(payload, &raw); err != nil {
			return nil, err
		}
		start, err := DecodeStringSource(&raw.Start)
		if err != nil {
			return nil, err
		}
		end, err := DecodeStringSource(&raw.End)
		if err != nil {
			return nil, err
		}
		return modKeepMaybeBetween{Start: start, End: end}, nil
	case "StripBefore":
		value, err := decodeChildSourcePayload(payload)
		if err != nil {
			return nil, err
		}
		return modStripBefore{Value: value}, nil
	case "StripAfter":
		value, err := decodeChildSourcePayload(payload)
		if err != nil {
			return nil, err
		}
		return modStripAfter{Value: value}, nil
	case "StripMaybeBefore":
		value, err := decodeChildSourcePayload(payload)
		if err != nil {
			return nil, err
		}
		return modStripMaybeBefore{Value: value}, nil
	case "StripMaybeAfter":
		value, err := decodeChildSourcePayload(payload)
		if err != nil {
			return nil, err
		}
		return modStripMaybeAfter{Value: value}, nil
	case "Replacen":
		var raw struct {
			Find    yaml.Node `yaml:"find"`
			Replace yaml.Node `yaml:"replace"`
			Count   int       `yaml:"count"`
		}
		if err := decodePayload(payload, &raw); err != nil {
			return nil, err
		}
		find, err := DecodeStringSource(&raw.Find)
		if err != nil {
			return nil, err
		}
		replace, err := DecodeStringSource(&raw.Replace)
		if err != nil {
			return nil, err
		}
		return modReplacen{Find: find, Replace: replace, Count: raw.Count}, nil
	case "ReplaceAll":
		var raw struct {
			Find    yaml.Node `yaml:"find"`
			Replace yaml.Node `yaml:"replace"`
		}
		if err := decodePayload(payload, &raw); err != nil {
			return nil, err
		}
		find, err := DecodeStringSource(&raw.Find)
		if err != nil {
			return nil, err
		}
		replace, err := DecodeStringSource(&raw.Replace)
		if err != nil {
			return nil, err
		}
		return modReplaceAll{Find: find, Replace: replace}, nil
	case "ReplaceRange":
		var raw struct {
			Start   int       `yaml:"start"`
			End     *int      `yaml:"end"`
			Replace yaml.Node `yaml:"replace"`
		}
		if err := decodePayload(payload, &raw); err != nil {
			return nil, err
		}
		replace, err := DecodeStringSource(&raw.Replace)
		if err != nil {
			return nil, err
		}
		return modReplaceRange{Start: raw.Start, End: raw.End, Replace: replace}, nil
	case "KeepRange":
		var raw struct {
			Start int  `yaml:"start"`
			End   *int `yaml:"end"`
		}
		if err := decodePayload(payload, &raw); err != nil {
			return nil, err
		}
		return modKeepRange{Start: raw.Start, End: raw.End}, nil
	case "SetSegment":
		var raw struct {
			Split string    `yaml:"split"`
			Index int       `yaml:"index"`
			Value yaml.Node `yaml:"value"`
		}
		if err := decodePayload(payload, &raw); err != nil {
			return nil, err
		}
		value, err := DecodeStringSource(&raw.Value)
		if err != nil {
			return nil, err
		}
		return modSetSegment{Split: raw.Split, Index: raw.Index, Value: value}, nil
	case "InsertSegment":
		var raw struct {
			Split string    `yaml:"split"`
			Index int       `yaml:"index"`
			Value yaml.Node `yaml:"value"`
			After bool      `yaml:"after"`
		}
		if err := decodePayload(payload, &raw); err != nil {
			return nil, err
		}
		value, err := DecodeStringSource(&raw.Value)
		if err != nil {
			return nil, err
		}
		return modInsertSegment{Split: raw.Split, Index: raw.Index, Value: value, After: raw.After}, nil
	case "KeepNthSegment":
		var raw struct {
			Split string `yaml:"split"`
			Index int    `yaml:"index"`
		}
		if err := decodePayload(payload, &raw); err != nil {
			return nil, err
		}
		return modKeepNthSegment{Split: raw.Split, Index: raw.Index}, nil
	case "KeepSegmentRange":
		var raw struct {
			Split string `yaml:"split"`
			Start int    `yaml:"start"`
			End   *int   `yaml:"end"`
		}
		if err := decodePayload(payload, &raw); err != nil {
			return nil, err
		}
		return modKeepSegmentRange{Split: raw.Split, Start: raw.Start, End: raw.End}, nil
	case "GetJsStringLiteralPrefix":
		return modGetJsStringLiteralPrefix{}, nil
	case "UnescapeHtmlText":
		return modUnescapeHTMLText{}, nil
	case "GetHtmlAttribute":
		var name string
		if err := decodePayload(payload, &name); err != nil {
			return nil, err
		}
		return modGetHTMLAttribute{Name: name}, nil
	case "JsonPointer":
		var ptr string
		if err := decodePayload(payload, &ptr); err != nil {
			return nil, err
		}
		return modJSONPointer{Pointer: ptr}, nil
	case "RegexFind":
		re, err := decodeRegexPayload(payload)
		if err != nil {
			return nil, err
		}
		return modRegexFind{Regex: re}, nil
	case "RegexSubstitute":
		re, replacement, err := decodeRegexReplacement(payload)
		if err != nil {
			return nil, err
		}
		return modRegexSubstitute{Regex: re, Replacement: replacement}, nil
	case "RegexReplaceAll":
		re, replacement, err := decodeRegexReplacement(payload)
		if err != nil {
			return nil, err
		}
		return modRegexReplaceAll{Regex: re, Replacement: replacement}, nil
	case "RegexReplaceOne":
		re, replacement, err := decodeRegexReplacement(payload)
		if err != nil {
			return nil, err
		}
		return modRegexReplaceOne{Regex: re, Replacement: replacement}, nil
	case "RegexReplacen":
		var raw struct {
			Regex       string `yaml:"regex"`
			Replacement string `yaml:"replacement"`
			Count       int    `yaml:"count"`
		}
		if err := decodePayload(payload, &raw); err != nil {
			return nil, err
		}
		re, err := regexp.Compile(raw.Regex)
		if err != nil {
			return nil, fmt.Errorf("string modification RegexReplacen: %w", err)
		}
		return modRegexReplacen{Regex: re, Replacement: raw.Replacement, Count: raw.Count}, nil
	case "JoinAllRegexSubstitutions":
		var raw struct {
			Regex       string `yaml:"regex"`
			Replacement string `yaml:"replacement"`
			Join        string `yaml:"join"`
		}
		if err := decodePayload(payload, &raw); err != nil {
			return nil, err
		}
		re, err := regexp.Compile(raw.Regex)
		if err != nil {
			return nil, fmt.Errorf("string modification JoinAllRegexSubstitutions: %w", err)
		}
		return modJoinAllRegexSubstitutions{Regex: re, Replacement: raw.Replacement, Join: raw.Join}, nil
	case "PercentEncode":
		var alphabet string
		if err := decodePayload(payload, &alphabet); err != nil {
			return nil, err
		}
		return modPercentEncode{Alphabet: alphabet}, nil
	case "PercentDecode":
		return modPercentDecode{}, nil
	case "LossyPercentDecode":
		return modLossyPercentDecode{}, nil
	case "Base64Encode":
		var config string
		if err := decodePayload(payload, &config); err != nil {
			return nil, err
		}
		return modBase64Encode{Config: config}, nil
	case "Base64Decode":
		var config string
		if err := decodePayload(payload, &config); err != nil {
			return nil, err
		}
		return modBase64Decode{Config: config}, nil
	case "RemoveQueryParamsMatching":
		matcher, err := decodeChildMatcher(payload)
		if err != nil {
			return nil, err
		}
		return modRemoveQueryParamsMatching{Matcher: matcher}, nil
	case "AllowQueryParamsMatching":
		matcher, err := decodeChildMatcher(payload)
		if err != nil {
			return nil, err
		}
		return modAllowQueryParamsMatching{Matcher: matcher}, nil
	case "RemoveQueryParamsInSetOrStartingWithAnyInList":
		var raw struct {
			Set  string `yaml:"set"`
			List string `yaml:"list"`
		}
		if err := decodePayload(payload, &raw); err != nil {
			return nil, err
		}
		return modRemoveQueryParamsInSetOrStartingWithAnyInList{Set: raw.Set, List: raw.List}, nil
	case "Common":
		var call CommonCall
		if err := decodePayload(payload, &call); err != nil {
			return nil, err
		}
		return modCommon{Call: call}, nil
	case "CommonCallArg":
		var name string
		if err := decodePayload(payload, &name); err != nil {
			return nil, err
		}
		return modCommonCallArg{Name: name}, nil
	default:
		return nil, fmt.Errorf("string modification: unknown variant %q", tag)
	}
}

func decodeChildModification(payload *yaml.Node) (StringModification, error) {
	if payload == nil {
		return nil, fmt.Errorf("string modification: missing payload")
	}
	return DecodeStringModification(payload)
}

func decodeModificationList(payload *yaml.Node) ([]StringModification, error) {
	var nodes []yaml.Node
	if err := decodePayload(payload, &nodes); err != nil {
		return nil, err
	}
	items := make([]StringModification, len(nodes))
	for i := range nodes {
		m, err := DecodeStringModification(&nodes[i])
		if err != nil {
			return nil, err
		}
		items[i] = m
	}
	return items, nil
}

func decodeRegexPayload(payload *yaml.Node) (*regexp.Regexp, error) {
	var pattern string
	if err := decodePayload(payload, &pattern); err != nil {
		return nil, err
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex %q: %w", pattern, err)
	}
	return re, nil
}

func decodeRegexReplacement(payload *yaml.Node) (*regexp.Regexp, string, error) {
	var raw struct {
		Regex       string `yaml:"regex"`
		Replacement string `yaml:"replacement"`
	}
	if err := decodePayload(payload, &raw); err != nil {
		return nil, "", err
	}
	re, err := regexp.Compile(raw.Regex)
	if err != nil {
		return nil, "", fmt.Errorf("invalid regex %q: %w", raw.Regex, err)
	}
	return re, raw.Replacement, nil
}

// --- index/rune helpers -------------------------------------------------

func resolveStrIndex(s string, i int) int {
	if i < 0 {
		i += len(s)
	}
	return i
}

func validBoundary(s string, i int) bool {
	if i < 0 || i > len(s) {
		return false
	}
	return i == len(s) || utf8.RuneStart(s[i])
}

// --- control --------------------------------------------------------------

type modNone struct{}

func (modNone) Apply(**string, *TaskStateView) error { return nil }

type modDebug struct{ Inner StringModification }

func (m modDebug) Apply(value **string, v *TaskStateView) error {
	if logger := v.Logger(); logger != nil {
		logger.Sugar().Debugw("string modification debug", "before", derefStr(*value))
	}
	return m.Inner.Apply(value, v)
}

type modError struct{ Message string }

func (m modError) Apply(**string, *TaskStateView) error { return &ExplicitError{Message: m.Message} }

type modIgnoreError struct{ Inner StringModification }

func (m modIgnoreError) Apply(value **string, v *TaskStateView) error {
	_ = m.Inner.Apply(value, v)
	return nil
}

type modRevertOnError struct{ Inner StringModification }

func (m modRevertOnError) Apply(value **string, v *TaskStateView) error {
	var snapshot *string
	if *value != nil {
		s := **value
		snapshot = &s
	}
	if err := m.Inner.Apply(value, v); err != nil {
		*value = snapshot
		return err
	}
	return nil
}

type modTryElse struct{ Try, Else StringModification }

func (m modTryElse) Apply(value **string, v *TaskStateView) error {
	if err := m.Try.Apply(value, v); err == nil {
		return nil
	} else if elseErr := m.Else.Apply(value, v); elseErr == nil {
		return nil
	} else {
		return &TryElseError{Try: err, Else: elseErr}
	}
}

type modAll struct{ Items []StringModification }

func (m modAll) Apply(value **string, v *TaskStateView) error {
	for _, item := range m.Items {
		if err := item.Apply(value, v); err != nil {
			return err
		}
	}
	return nil
}

type modFirstNotError struct{ Items []StringModification }

func (m modFirstNotError) Apply(value **string, v *TaskStateView) error {
	orig := *value
	var errs []error
	for _, item := range m.Items {
		candidate := orig
		if err := item.Apply(&candidate, v); err == nil {
			*value = candidate
			return nil
		} else {
			errs = append(errs, err)
		}
	}
	return &FirstNotErrorErrors{Errors: errs}
}

type modIfSome struct{ Then, Else StringModification }

func (m modIfSome) Apply(value **string, v *TaskStateView) error {
	if *value != nil {
		return m.Then.Apply(value, v)
	}
	return m.Else.Apply(value, v)
}

type modIfMatches struct {
	Matcher    StringMatcher
	Then, Else StringModification
}

func (m modIfMatches) Apply(value **string, v *TaskStateView) error {
	ok, err := m.Matcher.Match(*value, v)
	if err != nil {
		return err
	}
	if ok {
		return m.Then.Apply(value, v)
	}
	return m.Else.Apply(value, v)
}

type modIfContains struct {
	Value      StringSource
	Then, Else StringModification
}

func (m modIfContains) Apply(value **string, v *TaskStateView) error {
	needle, err := m.Value.Get(v)
	if err != nil {
		return err
	}
	if needle != nil && strings.Contains(derefStr(*value), *needle) {
		return m.Then.Apply(value, v)
	}
	return m.Else.Apply(value, v)
}

type modIfContainsAny struct {
	Values     []StringSource
	Then, Else StringModification
}

func (m modIfContainsAny) Apply(value **string, v *TaskStateView) error {
	haystack := derefStr(*value)
	for _, item := range m.Values {
		needle, err := item.Get(v)
		if err != nil {
			return err
		}
		if needle != nil && strings.Contains(haystack, *needle) {
			return m.Then.Apply(value, v)
		}
	}
	return m.Else.Apply(value, v)
}

type modMap struct{ Map map[string]string }

func (m modMap) Apply(value **string, _ *TaskStateView) error {
	if *value == nil {
		return nil
	}
	if mapped, ok := m.Map[**value]; ok {
		*value = &mapped
	}
	return nil
}

// --- content --------------------------------------------------------------

type modSet struct{ Value StringSource }

func (m modSet) Apply(value **string, v *TaskStateView) error {
	val, err := m.Value.Get(v)
	if err != nil {
		return err
	}
	*value = val
	return nil
}

type modAppend struct{ Value StringSource }

func (m modAppend) Apply(value **string, v *TaskStateView) error {
	val, err := m.Value.Get(v)
	if err != nil {
		return err
	}
	if val == nil {
		return nil
	}
	combined := derefStr(*value) + *val
	*value = &combined
	return nil
}

type modPrepend struct{ Value StringSource }

func (m modPrepend) Apply(value **string, v *TaskStateView) error {
	val, err := m.Value.Get(v)
	if err != nil {
		return err
	}
	if val == nil {
		return nil
	}
	combined := *val + derefStr(*value)
	*value = &combined
	return nil
}

type modInsert struct {
	Index int
	Value StringSource
}

func (m modInsert) Apply(value **string, v *TaskStateView) error {
	val, err := m.Value.Get(v)
	if err != nil {
		return err
	}
	if val == nil {
		return nil
	}
	haystack := derefStr(*value)
	idx := resolveStrIndex(haystack, m.Index)
	if !validBoundary(haystack, idx) {
		return &InvalidIndexError{Index: m.Index}
	}
	result := haystack[:idx] + *val + haystack[idx:]
	*value = &result
	return nil
}

type modLowercase struct{}

func (modLowercase) Apply(value **string, _ *TaskStateView) error {
	if *value == nil {
		return nil
	}
	lower := strings.ToLower(**value)
	*value = &lower
	return nil
}

type modUppercase struct{}

func (modUppercase) Apply(value **string, _ *TaskStateView) error {
	if *value == nil {
		return nil
	}
	upper := strings.ToUpper(**value)
	*value = &upper
	return nil
}

// --- edges ------------------------------------------------------------

type modStripPrefix struct{ Value StringSource }

func (m modStripPrefix) Apply(value **string, v *TaskStateView) error {
	prefix, err := m.Value.Get(v)
	if err != nil {
		return err
	}
	if prefix == nil {
		return nil
	}
	haystack := derefStr(*value)
	if !strings.HasPrefix(haystack, *prefix) {
		return &NotFoundError{What: "prefix"}
	}
	result := strings.TrimPrefix(haystack, *prefix)
	*value = &result
	return nil
}

type modStripSuffix struct{ Value StringSource }

func (m modStripSuffix) Apply(value **string, v *TaskStateView) error {
	suffix, err := m.Value.Get(v)
	if err != nil {
		return err
	}
	if suffix == nil {
		return nil
	}
	haystack := derefStr(*value)
	if !strings.HasSuffix(haystack, *suffix) {
		return &NotFoundError{What: "suffix"}
	}
	result := strings.TrimSuffix(haystack, *suffix)
	*value = &result
	return nil
}

type modStripMaybePrefix struct{ Value StringSource }

func (m modStripMaybePrefix) Apply(value **string, v *TaskStateView) error {
	prefix, err := m.Value.Get(v)
	if err != nil {
		return err
	}
	if prefix == nil {
		return nil
	}
	result := strings.TrimPrefix(derefStr(*value), *prefix)
	*value = &result
	return nil
}

type modStripMaybeSuffix struct{ Value StringSource }

func (m modStripMaybeSuffix) Apply(value **string, v *TaskStateView) error {
	suffix, err := m.Value.Get(v)
	if err != nil {
		return err
	}
	if suffix == nil {
		return nil
	}
	result := strings.TrimSuffix(derefStr(*value), *suffix)
	*value = &result
	return nil
}

type modRemoveChar struct{ Index int }

func (m modRemoveChar) Apply(value **string, _ *TaskStateView) error {
	haystack := derefStr(*value)
	idx := resolveStrIndex(haystack, m.Index)
	if idx < 0 || idx >= len(haystack) || !utf8.RuneStart(haystack[idx]) {
		return &InvalidIndexError{Index: m.Index}
	}
	_, size := utf8.DecodeRuneInString(haystack[idx:])
	result := haystack[:idx] + haystack[idx+size:]
	*value = &result
	return nil
}

// --- substring pivots ----------------------------------------------------

func findMarker(value StringSource, v *TaskStateView, haystack string) (int, int, error) {
	marker, err := value.Get(v)
	if err != nil {
		return -1, -1, err
	}
	if marker == nil {
		return -1, -1, nil
	}
	idx := strings.Index(haystack, *marker)
	if idx < 0 {
		return -1, -1, nil
	}
	return idx, idx + len(*marker), nil
}

type modKeepBefore struct{ Value StringSource }

func (m modKeepBefore) Apply(value **string, v *TaskStateView) error {
	haystack := derefStr(*value)
	start, _, err := findMarker(m.Value, v, haystack)
	if err != nil {
		return err
	}
	if start < 0 {
		return &NotFoundError{What: "marker"}
	}
	result := haystack[:start]
	*value = &result
	return nil
}

type modKeepMaybeBefore struct{ Value StringSource }

func (m modKeepMaybeBefore) Apply(value **string, v *TaskStateView) error {
	haystack := derefStr(*value)
	start, _, err := findMarker(m.Value, v, haystack)
	if err != nil {
		return err
	}
	if start < 0 {
		return nil
	}
	result := haystack[:start]
	*value = &result
	return nil
}

type modKeepAfter struct{ Value StringSource }

func (m modKeepAfter) Apply(value **string, v *TaskStateView) error {
	haystack := derefStr(*value)
	_, end, err := findMarker(m.Value, v, haystack)
	if err != nil {
		return err
	}
	if end < 0 {
		return &NotFoundError{What: "marker"}
	}
	result := haystack[end:]
	*value = &result
	return nil
}

type modKeepMaybeAfter struct{ Value StringSource }

func (m modKeepMaybeAfter) Apply(value **string, v *TaskStateView) error {
	haystack := derefStr(*value)
	_, end, err := findMarker(m.Value, v, haystack)
	if err != nil {
		return err
	}
	if end < 0 {
		return nil
	}
	result := haystack[end:]
	*value = &result
	return nil
}

type modStripBefore struct{ Value StringSource }

func (m modStripBefore) Apply(value **string, v *TaskStateView) error {
	haystack := derefStr(*value)
	start, _, err := findMarker(m.Value, v, haystack)
	if err != nil {
		return err
	}
	if start < 0 {
		return &NotFoundError{What: "marker"}
	}
	result := haystack[start:]
	*value = &result
	return nil
}

type modStripMaybeBefore struct{ Value StringSource }

func (m modStripMaybeBefore) Apply(value **string, v *TaskStateView) error {
	haystack := derefStr(*value)
	start, _, err := findMarker(m.Value, v, haystack)
	if err != nil {
		return err
	}
	if start < 0 {
		return nil
	}
	result := haystack[start:]
	*value = &result
	return nil
}

type modStripAfter struct{ Value StringSource }

func (m modStripAfter) Apply(value **string, v *TaskStateView) error {
	haystack := derefStr(*value)
	_, end, err := findMarker(m.Value, v, haystack)
	if err != nil {
		return err
	}
	if end < 0 {
		return &NotFoundError{What: "marker"}
	}
	result := haystack[:end]
	*value = &result
	return nil
}

type modStripMaybeAfter struct{ Value StringSource }

func (m modStripMaybeAfter) Apply(value **string, v *TaskStateView) error {
	haystack := derefStr(*value)
	_, end, err := findMarker(m.Value, v, haystack)
	if err != nil {
		return err
	}
	if end < 0 {
		return nil
	}
	result := haystack[:end]
	*value = &result
	return nil
}

type modKeepBetween struct{ Start, End StringSource }

func (m modKeepBetween) Apply(value **string, v *TaskStateView) error {
	haystack := derefStr(*value)
	_, startEnd, err := findMarker(m.Start, v, haystack)
	if err != nil {
		return err
	}
	if startEnd < 0 {
		return &NotFoundError{What: "start marker"}
	}
	endMarker, err := m.End.Get(v)
	if err != nil {
		return err
	}
	if endMarker == nil {
		return &NotFoundError{What: "end marker"}
	}
	rest := haystack[startEnd:]
	idx := strings.Index(rest, *endMarker)
	if idx < 0 {
		return &NotFoundError{What: "end marker"}
	}
	result := rest[:idx]
	*value = &result
	return nil
}

// modKeepMaybeBetween is KeepBetween's no-op-on-miss counterpart: a missing
// start or end marker leaves the value untouched.
type modKeepMaybeBetween struct{ Start, End StringSource }

func (m modKeepMaybeBetween) Apply(value **string, v *TaskStateView) error {
	haystack := derefStr(*value)
	_, startEnd, err := findMarker(m.Start, v, haystack)
	if err != nil {
		return err
	}
	if startEnd < 0 {
		return nil
	}
	endMarker, err := m.End.Get(v)
	if err != nil {
		return err
	}
	if endMarker == nil {
		return nil
	}
	rest := haystack[startEnd:]
	idx := strings.Index(rest, *endMarker)
	if idx < 0 {
		return nil
	}
	result := rest[:idx]
	*value = &result
	return nil
}

// --- bulk -----------------------------------------------------------------

type modReplacen struct {
	Find, Replace StringSource
	Count         int
}

func (m modReplacen) Apply(value **string, v *TaskStateView) error {
	find, err := m.Find.Get(v)
	if err != nil {
		return err
	}
	replace, err := m.Replace.Get(v)
	if err != nil {
		return err
	}
	if find == nil || replace == nil {
		return nil
	}
	result := strings.Replace(derefStr(*value), *find, *replace, m.Count)
	*value = &result
	return nil
}

type modReplaceAll struct{ Find, Replace StringSource }

func (m modReplaceAll) Apply(value **string, v *TaskStateView) error {
	find, err := m.Find.Get(v)
	if err != nil {
		return err
	}
	replace, err := m.Replace.Get(v)
	if err != nil {
		return err
	}
	if find == nil || replace == nil {
		return nil
	}
	result := strings.ReplaceAll(derefStr(*value), *find, *replace)
	*value = &result
	return nil
}

type modReplaceRange struct {
	Start   int
	End     *int
	Replace StringSource
}

func (m modReplaceRange) Apply(value **string, v *TaskStateView) error {
	replace, err := m.Replace.Get(v)
	if err != nil {
		return err
	}
	if replace == nil {
		return nil
	}
	haystack := derefStr(*value)
	start, end, err := resolveRange(haystack, &m.Start, 0, m.End)
	if err != nil {
		return err
	}
	result := haystack[:start] + *replace + haystack[end:]
	*value = &result
	return nil
}

type modKeepRange struct {
	Start int
	End   *int
}

func (m modKeepRange) Apply(value **string, _ *TaskStateView) error {
	haystack := derefStr(*value)
	start, end, err := resolveRange(haystack, &m.Start, 0, m.End)
	if err != nil {
		return err
	}
	result := haystack[start:end]
	*value = &result
	return nil
}

// resolveRange resolves a [start, end) byte range against s, honoring
// negative indices and a nil end meaning end-of-string.
func resolveRange(s string, start *int, startDefault int, end *int) (int, int, error) {
	s0 := startDefault
	if start != nil {
		s0 = *start
	}
	s0 = resolveStrIndex(s, s0)
	e0 := len(s)
	if end != nil {
		e0 = resolveStrIndex(s, *end)
	}
	if !validBoundary(s, s0) || !validBoundary(s, e0) || s0 > e0 {
		return 0, 0, &InvalidSliceError{Start: s0, End: e0}
	}
	return s0, e0, nil
}

// --- segmenting -------------------------------------------------------

type modSetSegment struct {
	Split string
	Index int
	Value StringSource
}

func (m modSetSegment) Apply(value **string, v *TaskStateView) error {
	val, err := m.Value.Get(v)
	if err != nil {
		return err
	}
	if val == nil {
		return nil
	}
	segments := strings.Split(derefStr(*value), m.Split)
	idx := m.Index
	if idx < 0 {
		idx += len(segments)
	}
	if idx < 0 || idx >= len(segments) {
		return &NotFoundError{What: "segment"}
	}
	segments[idx] = *val
	result := strings.Join(segments, m.Split)
	*value = &result
	return nil
}

type modInsertSegment struct {
	Split string
	Index int
	Value StringSource
	After bool
}

func (m modInsertSegment) Apply(value **string, v *TaskStateView) error {
	val, err := m.Value.Get(v)
	if err != nil {
		return err
	}
	if val == nil {
		return nil
	}
	segments := strings.Split(derefStr(*value), m.Split)
	idx := m.Index
	if idx < 0 {
		idx += len(segments)
	}
	if idx < 0 || idx > len(segments) {
		return &NotFoundError{What: "segment"}
	}
	if m.After {
		idx++
	}
	out := append([]string(nil), segments[:idx]...)
	out = append(out, *val)
	out = append(out, segments[idx:]...)
	result := strings.Join(out, m.Split)
	*value = &result
	return nil
}

type modKeepNthSegment struct {
	Split string
	Index int
}

func (m modKeepNthSegment) Apply(value **string, _ *TaskStateView) error {
	segments := strings.Split(derefStr(*value), m.Split)
	idx := m.Index
	if idx < 0 {
		idx += len(segments)
	}
	if idx < 0 || idx >= len(segments) {
		return &NotFoundError{What: "segment"}
	}
	result := segments[idx]
	*value = &result
	return nil
}

type modKeepSegmentRange struct {
	Split string
	Start int
	End   *int
}

func (m modKeepSegmentRange) Apply(value **string, _ *TaskStateView) error {
	segments := strings.Split(derefStr(*value), m.Split)
	start := m.Start
	if start < 0 {
		start += len(segments)
	}
	end := len(segments)
	if m.End != nil {
		end = *m.End
		if end < 0 {
			end += len(segments)
		}
	}
	if start < 0 || end > len(segments) || start > end {
		return &InvalidSliceError{Start: start, End: end}
	}
	result := strings.Join(segments[start:end], m.Split)
	*value = &result
	return nil
}

// --- parsing ---------------------------------------------------------

type modGetJsStringLiteralPrefix struct{}

func (modGetJsStringLiteralPrefix) Apply(value **string, _ *TaskStateView) error {
	haystack := derefStr(*value)
	if len(haystack) == 0 {
		return &NotFoundError{What: "js string literal"}
	}
	quote := haystack[0]
	if quote != '"' && quote != '\'' {
		return &NotFoundError{What: "js string literal"}
	}
	var sb strings.Builder
	i := 1
	for i < len(haystack) {
		c := haystack[i]
		if c == quote {
			result := sb.String()
			*value = &result
			return nil
		}
		if c == '\\' && i+1 < len(haystack) {
			i++
			switch haystack[i] {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			case '\\', '\'', '"':
				sb.WriteByte(haystack[i])
			case 'u':
				if i+4 < len(haystack) {
					var r rune
					if _, err := fmt.Sscanf(haystack[i+1:i+5], "%04x", &r); err == nil {
						sb.WriteRune(r)
						i += 4
						i++
						continue
					}
				}
				sb.WriteByte(haystack[i])
			default:
				sb.WriteByte(haystack[i])
			}
			i++
			continue
		}
		sb.WriteByte(c)
		i++
	}
	return &NotFoundError{What: "js string literal closing quote"}
}

type modUnescapeHTMLText struct{}

func (modUnescapeHTMLText) Apply(value **string, _ *TaskStateView) error {
	if *value == nil {
		return nil
	}
	result := html.UnescapeString(**value)
	*value = &result
	return nil
}

type modGetHTMLAttribute struct{ Name string }

func (m modGetHTMLAttribute) Apply(value **string, _ *TaskStateView) error {
	haystack := derefStr(*value)
	tokenizer := htmlparser.NewTokenizer(strings.NewReader(haystack))
	for {
		tt := tokenizer.Next()
		if tt == htmlparser.ErrorToken {
			*value = nil
			return nil
		}
		if tt == htmlparser.StartTagToken || tt == htmlparser.SelfClosingTagToken {
			token := tokenizer.Token()
			for _, attr := range token.Attr {
				if attr.Key == m.Name {
					result := attr.Val
					*value = &result
					return nil
				}
			}
			*value = nil
			return nil
		}
	}
}

type modJSONPointer struct{ Pointer string }

func (m modJSONPointer) Apply(value **string, _ *TaskStateView) error {
	if *value == nil {
		return nil
	}
	keys := jsonPointerKeys(m.Pointer)
	result, err := jsonparser.GetString([]byte(**value), keys...)
	if err != nil {
		return fmt.Errorf("string modification JsonPointer %q: %w", m.Pointer, err)
	}
	*value = &result
	return nil
}

func jsonPointerKeys(pointer string) []string {
	pointer = strings.TrimPrefix(pointer, "/")
	if pointer == "" {
		return nil
	}
	parts := strings.Split(pointer, "/")
	for i, p := range parts {
		p = strings.ReplaceAll(p, "~1", "/")
		p = strings.ReplaceAll(p, "~0", "~")
		parts[i] = p
	}
	return parts
}

// --- regex ------------------------------------------------------------

type modRegexFind struct{ Regex *regexp.Regexp }

func (m modRegexFind) Apply(value **string, _ *TaskStateView) error {
	haystack := derefStr(*value)
	loc := m.Regex.FindStringIndex(haystack)
	if loc == nil {
		*value = nil
		return nil
	}
	result := haystack[loc[0]:loc[1]]
	*value = &result
	return nil
}

// modRegexSubstitute replaces the whole value with the replacement
// template expanded against the first match's captures, discarding
// everything outside the match. Distinct from RegexReplaceAll, which keeps
// the surrounding text.
type modRegexSubstitute struct {
	Regex       *regexp.Regexp
	Replacement string
}

func (m modRegexSubstitute) Apply(value **string, _ *TaskStateView) error {
	haystack := derefStr(*value)
	loc := m.Regex.FindStringSubmatchIndex(haystack)
	if loc == nil {
		return &NotFoundError{What: "regex match"}
	}
	result := string(m.Regex.ExpandString(nil, m.Replacement, haystack, loc))
	*value = &result
	return nil
}

type modRegexReplaceOne struct {
	Regex       *regexp.Regexp
	Replacement string
}

func (m modRegexReplaceOne) Apply(value **string, _ *TaskStateView) error {
	haystack := derefStr(*value)
	loc := m.Regex.FindStringSubmatchIndex(haystack)
	if loc == nil {
		return nil
	}
	expanded := m.Regex.ExpandString(nil, m.Replacement, haystack, loc)
	result := haystack[:loc[0]] + string(expanded) + haystack[loc[1]:]
	*value = &result
	return nil
}

type modRegexReplaceAll struct {
	Regex       *regexp.Regexp
	Replacement string
}

func (m modRegexReplaceAll) Apply(value **string, _ *TaskStateView) error {
	result := m.Regex.ReplaceAllString(derefStr(*value), m.Replacement)
	*value = &result
	return nil
}

type modRegexReplacen struct {
	Regex       *regexp.Regexp
	Replacement string
	Count       int
}

func (m modRegexReplacen) Apply(value **string, _ *TaskStateView) error {
	haystack := derefStr(*value)
	matches := m.Regex.FindAllStringSubmatchIndex(haystack, m.Count)
	if len(matches) == 0 {
		*value = &haystack
		return nil
	}
	var sb strings.Builder
	last := 0
	for _, loc := range matches {
		sb.WriteString(haystack[last:loc[0]])
		sb.Write(m.Regex.ExpandString(nil, m.Replacement, haystack, loc))
		last = loc[1]
	}
	sb.WriteString(haystack[last:])
	result := sb.String()
	*value = &result
	return nil
}

type modJoinAllRegexSubstitutions struct {
	Regex       *regexp.Regexp
	Replacement string
	Join        string
}

func (m modJoinAllRegexSubstitutions) Apply(value **string, _ *TaskStateView) error {
	haystack := derefStr(*value)
	matches := m.Regex.FindAllStringSubmatchIndex(haystack, -1)
	parts := make([]string, 0, len(matches))
	for _, loc := range matches {
		parts = append(parts, string(m.Regex.ExpandString(nil, m.Replacement, haystack, loc)))
	}
	result := strings.Join(parts, m.Join)
	*value = &result
	return nil
}

// --- codecs -----------------------------------------------------------

type modPercentEncode struct{ Alphabet string }

func (m modPercentEncode) Apply(value **string, _ *TaskStateView) error {
	if *value == nil {
		return nil
	}
	var result string
	switch m.Alphabet {
	case "path":
		result = url.PathEscape(**value)
	case "userinfo":
		result = url.User(**value).String()
	default:
		result = url.QueryEscape(**value)
	}
	*value = &result
	return nil
}

type modPercentDecode struct{}

func (modPercentDecode) Apply(value **string, _ *TaskStateView) error {
	if *value == nil {
		return nil
	}
	decoded, err := url.PathUnescape(**value)
	if err != nil {
		return fmt.Errorf("string modification PercentDecode: %w", err)
	}
	*value = &decoded
	return nil
}

type modLossyPercentDecode struct{}

func (modLossyPercentDecode) Apply(value **string, _ *TaskStateView) error {
	if *value == nil {
		return nil
	}
	decoded, err := url.PathUnescape(**value)
	if err != nil {
		decoded = **value
	}
	*value = &decoded
	return nil
}

func base64EncodingFor(config string) *base64.Encoding {
	switch config {
	case "url":
		return base64.URLEncoding
	case "raw_standard":
		return base64.RawStdEncoding
	case "raw_url":
		return base64.RawURLEncoding
	default:
		return base64.StdEncoding
	}
}

type modBase64Encode struct{ Config string }

func (m modBase64Encode) Apply(value **string, _ *TaskStateView) error {
	if *value == nil {
		return nil
	}
	result := base64EncodingFor(m.Config).EncodeToString([]byte(**value))
	*value = &result
	return nil
}

type modBase64Decode struct{ Config string }

func (m modBase64Decode) Apply(value **string, _ *TaskStateView) error {
	if *value == nil {
		return nil
	}
	decoded, err := base64EncodingFor(m.Config).DecodeString(**value)
	if err != nil {
		return fmt.Errorf("string modification Base64Decode: %w", err)
	}
	result := string(decoded)
	*value = &result
	return nil
}

// --- query helpers (mirror action-level query surgery on a raw string) ---

func splitRawQueryPairs(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "&")
}

func pairName(pair string) string {
	if idx := strings.IndexByte(pair, '='); idx >= 0 {
		name, err := url.QueryUnescape(pair[:idx])
		if err != nil {
			return pair[:idx]
		}
		return name
	}
	name, err := url.QueryUnescape(pair)
	if err != nil {
		return pair
	}
	return name
}

type modRemoveQueryParamsMatching struct{ Matcher StringMatcher }

func (m modRemoveQueryParamsMatching) Apply(value **string, v *TaskStateView) error {
	pairs := splitRawQueryPairs(derefStr(*value))
	kept := pairs[:0:0]
	for _, p := range pairs {
		name := pairName(p)
		ok, err := m.Matcher.Match(&name, v)
		if err != nil {
			return err
		}
		if !ok {
			kept = append(kept, p)
		}
	}
	result := strings.Join(kept, "&")
	*value = &result
	return nil
}

type modAllowQueryParamsMatching struct{ Matcher StringMatcher }

func (m modAllowQueryParamsMatching) Apply(value **string, v *TaskStateView) error {
	pairs := splitRawQueryPairs(derefStr(*value))
	kept := pairs[:0:0]
	for _, p := range pairs {
		name := pairName(p)
		ok, err := m.Matcher.Match(&name, v)
		if err != nil {
			return err
		}
		if ok {
			kept = append(kept, p)
		}
	}
	result := strings.Join(kept, "&")
	*value = &result
	return nil
}

type modRemoveQueryParamsInSetOrStartingWithAnyInList struct{ Set, List string }

func (m modRemoveQueryParamsInSetOrStartingWithAnyInList) Apply(value **string, v *TaskStateView) error {
	set, ok := v.Params().Sets[m.Set]
	if !ok {
		return fmt.Errorf("string modification RemoveQueryParamsInSetOrStartingWithAnyInList set %q: %w", m.Set, ErrNamedSetNotFound)
	}
	list, ok := v.Params().Lists[m.List]
	if !ok {
		return fmt.Errorf("string modification RemoveQueryParamsInSetOrStartingWithAnyInList list %q: %w", m.List, ErrNamedListNotFound)
	}
	pairs := splitRawQueryPairs(derefStr(*value))
	kept := pairs[:0:0]
	for _, p := range pairs {
		name := pairName(p)
		if _, inSet := set[name]; inSet {
			continue
		}
		remove := false
		for _, prefix := range list {
			if strings.HasPrefix(name, prefix) {
				remove = true
				break
			}
		}
		if !remove {
			kept = append(kept, p)
		}
	}
	result := strings.Join(kept, "&")
	*value = &result
	return nil
}

// --- commons -------------------------------------------------------------

type modCommon struct{ Call CommonCall }

func (m modCommon) Apply(value **string, v *TaskStateView) error {
	mod, ok := v.Commons().StringModifications[m.Call.Name]
	if !ok {
		return fmt.Errorf("string modification Common %q: %w", m.Call.Name, ErrCommonNotFound)
	}
	frame := buildCommonCallArgs(m.Call.Args, v)
	return mod.Apply(value, v.WithCommonArgs(frame))
}

type modCommonCallArg struct{ Name string }

func (m modCommonCallArg) Apply(value **string, v *TaskStateView) error {
	args := v.CommonArgs()
	if args == nil {
		return fmt.Errorf("string modification CommonCallArg %q: %w", m.Name, ErrCommonArgNotFound)
	}
	if mod, ok := args.StringModifications[m.Name]; ok {
		return mod.(StringModification).Apply(value, v)
	}
	return fmt.Errorf("string modification CommonCallArg %q: %w", m.Name, ErrCommonArgNotFound)
}

// CustomStringModification is a host-supplied function hook, opaque to and
// excluded from serialized documents.
type CustomStringModification func(value **string, v *TaskStateView) error

func (f CustomStringModification) Apply(value **string, v *TaskStateView) error { return f(value, v) }

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
