package cleanerdoc

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/edgecomet/urlcleaner/pkg/urlmodel"
)

// StringSource produces an optional string against a TaskStateView.
type StringSource interface {
	Get(v *TaskStateView) (*string, error)
}

// VarType names which scope a Var(VarRef) reads from.
type VarType int

const (
	VarTypeParams VarType = iota
	VarTypeScratchpad
	VarTypeContext
	VarTypeJobContext
	VarTypeCommonArg
	VarTypeEnvVar
)

var varTypeNames = map[string]VarType{
	"Params":     VarTypeParams,
	"Scratchpad": VarTypeScratchpad,
	"Context":    VarTypeContext,
	"JobContext": VarTypeJobContext,
	"CommonArg":  VarTypeCommonArg,
	"EnvVar":     VarTypeEnvVar,
}

// UnmarshalYAML decodes a VarType from its scope name ("Params",
// "Scratchpad", "Context", "JobContext", "CommonArg", "EnvVar").
func (t *VarType) UnmarshalYAML(node *yaml.Node) error {
	var name string
	if err := node.Decode(&name); err != nil {
		return err
	}
	vt, ok := varTypeNames[name]
	if !ok {
		return fmt.Errorf("cleanerdoc: unknown var type %q", name)
	}
	*t = vt
	return nil
}

// VarRef addresses a variable within one of the VarType scopes.
type VarRef struct {
	Type VarType `yaml:"type"`
	Name string  `yaml:"name"`
}

// DecodeStringSource dispatches a YAML node into a concrete StringSource by
// its single variant tag, or as a bare string/null for the String/None
// shorthand.
func DecodeStringSource(node *yaml.Node) (StringSource, error) {
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		return srcNone{}, nil
	}
	if node.Kind == yaml.ScalarNode && node.Tag != "!!null" {
		var s string
		if err := node.Decode(&s); err == nil {
			// Bare scalar is either the literal string shorthand or a
			// no-payload variant name like "None".
			if s == "None" {
				return srcNone{}, nil
			}
			return srcString{Value: s}, nil
		}
	}

	tag, payload, err := singleKeyTag(node)
	if err != nil {
		return nil, fmt.Errorf("string source: %w", err)
	}

	switch tag {
	case "String":
		var s string
		if err := decodePayload(payload, &s); err != nil {
			return nil, err
		}
		return srcString{Value: s}, nil
	case "None":
		return srcNone{}, nil
	case "Error":
		var msg string
		if err := decodePayload(payload, &msg); err != nil {
			return nil, err
		}
		return srcError{Message: msg}, nil
	case "ErrorToNone":
		inner, err := decodeChildSource(payload)
		if err != nil {
			return nil, err
		}
		return srcErrorToNone{Inner: inner}, nil
	case "ErrorToEmptyString":
		inner, err := decodeChildSource(payload)
		if err != nil {
			return nil, err
		}
		return srcErrorToEmptyString{Inner: inner}, nil
	case "NoneToEmptyString":
		inner, err := decodeChildSource(payload)
		if err != nil {
			return nil, err
		}
		return srcNoneToEmptyString{Inner: inner}, nil
	case "TryElse":
		var raw struct {
			Try  yaml.Node `yaml:"try"`
			Else yaml.Node `yaml:"else"`
		}
		if err := decodePayload(payload, &raw); err != nil {
			return nil, err
		}
		try, err := DecodeStringSource(&raw.Try)
		if err != nil {
			return nil, err
		}
		elseSrc, err := DecodeStringSource(&raw.Else)
		if err != nil {
			return nil, err
		}
		return srcTryElse{Try: try, Else: elseSrc}, nil
	case "FirstNotError":
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
		return srcFirstNotError{Items: items}, nil
	case "Var":
		var ref VarRef
		if err := decodePayload(payload, &ref); err != nil {
			return nil, err
		}
		return srcVar{Ref: ref}, nil
	case "Part":
		var part urlmodel.UrlPart
		if err := decodePayload(payload, &part); err != nil {
			return nil, err
		}
		return srcPart{Part: part}, nil
	case "Join":
		var raw struct {
			Values []yaml.Node `yaml:"values"`
			Join   string      `yaml:"join"`
		}
		if err := decodePayload(payload, &raw); err != nil {
			return nil, err
		}
		items := make([]StringSource, len(raw.Values))
		for i := range raw.Values {
			s, err := DecodeStringSource(&raw.Values[i])
			if err != nil {
				return nil, err
			}
			items[i] = s
		}
		return srcJoin{Values: items, Join: raw.Join}, nil
	case "Modified":
		var raw struct {
			Value        yaml.Node `yaml:"value"`
			Modification yaml.Node `yaml:"modification"`
		}
		if err := decodePayload(payload, &raw); err != nil {
			return nil, err
		}
		value, err := DecodeStringSource(&raw.Value)
		if err != nil {
			return nil, err
		}
		mod, err := DecodeStringModification(&raw.Modification)
		if err != nil {
			return nil, err
		}
		return srcModified{Value: value, Modification: mod}, nil
	case "RegexFind":
		var raw struct {
			Value yaml.Node `yaml:"value"`
			Regex string    `yaml:"regex"`
		}
		if err := decodePayload(payload, &raw); err != nil {
			return nil, err
		}
		value, err := DecodeStringSource(&raw.Value)
		if err != nil {
			return nil, err
		}
		re, err := regexp.Compile(raw.Regex)
		if err != nil {
			return nil, fmt.Errorf("string source RegexFind: %w", err)
		}
		return srcRegexFind{Value: value, Regex: re}, nil
	case "NoneTo":
		var raw struct {
			Value  yaml.Node `yaml:"value"`
			IfNone yaml.Node `yaml:"if_none"`
		}
		if err := decodePayload(payload, &raw); err != nil {
			return nil, err
		}
		value, err := DecodeStringSource(&raw.Value)
		if err != nil {
			return nil, err
		}
		ifNone, err := DecodeStringSource(&raw.IfNone)
		if err != nil {
			return nil, err
		}
		return srcNoneTo{Value: value, IfNone: ifNone}, nil
	case "AssertMatches":
		var raw struct {
			Value   yaml.Node `yaml:"value"`
			Matcher yaml.Node `yaml:"matcher"`
			Message string    `yaml:"message"`
		}
		if err := decodePayload(payload, &raw); err != nil {
			return nil, err
		}
		value, err := DecodeStringSource(&raw.Value)
		if err != nil {
			return nil, err
		}
		matcher, err := DecodeStringMatcher(&raw.Matcher)
		if err != nil {
			return nil, err
		}
		return srcAssertMatches{Value: value, Matcher: matcher, Message: raw.Message}, nil
	case "IfFlag":
		var raw struct {
			Flag FlagRef   `yaml:"flag"`
			Then yaml.Node `yaml:"then"`
			Else yaml.Node `yaml:"else"`
		}
		if err := decodePayload(payload, &raw); err != nil {
			return nil, err
		}
		then, err := DecodeStringSource(&raw.Then)
		if err != nil {
			return nil, err
		}
		elseSrc, err := DecodeStringSource(&raw.Else)
		if err != nil {
			return nil, err
		}
		return srcIfFlag{Flag: raw.Flag, Then: then, Else: elseSrc}, nil
	case "IfStringIsNone":
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
		then, err := DecodeStringSource(&raw.Then)
		if err != nil {
			return nil, err
		}
		elseSrc, err := DecodeStringSource(&raw.Else)
		if err != nil {
			return nil, err
		}
		return srcIfStringIsNone{Value: value, Then: then, Else: elseSrc}, nil
	case "IfStringMatches":
		var raw struct {
			Value   yaml.Node `yaml:"value"`
			Matcher yaml.Node `yaml:"matcher"`
			Then    yaml.Node `yaml:"then"`
			Else    yaml.Node `yaml:"else"`
		}
		if err := decodePayload(payload, &raw); err != nil {
			return nil, err
		}
		value, err := DecodeStringSource(&raw.Value)
		if err != nil {
			return nil, err
		}
		matcher, err := DecodeStringMatcher(&raw.Matcher)
		if err != nil {
			return nil, err
		}
		then, err := DecodeStringSource(&raw.Then)
		if err != nil {
			return nil, err
		}
		elseSrc, err := DecodeStringSource(&raw.Else)
		if err != nil {
			return nil, err
		}
		return srcIfStringMatches{Value: value, Matcher: matcher, Then: then, Else: elseSrc}, nil
	case "Map":
		var raw struct {
			Value yaml.Node         `yaml:"value"`
			Map   map[string]string `yaml:"map"`
		}
		if err := decodePayload(payload, &raw); err != nil {
			return nil, err
		}
		value, err := DecodeStringSource(&raw.Value)
		if err != nil {
			return nil, err
		}
		return srcMap{Value: value, Map: raw.Map}, nil
	case "ExtractPart":
		var raw struct {
			Value yaml.Node        `yaml:"value"`
			Part  urlmodel.UrlPart `yaml:"part"`
		}
		if err := decodePayload(payload, &raw); err != nil {
			return nil, err
		}
		value, err := DecodeStringSource(&raw.Value)
		if err != nil {
			return nil, err
		}
		return srcExtractPart{Value: value, Part: raw.Part}, nil
	case "ParamsMap":
		var raw struct {
			Name string `yaml:"name"`
			Key  string `yaml:"key"`
		}
		if err := decodePayload(payload, &raw); err != nil {
			return nil, err
		}
		return srcParamsMap{Name: raw.Name, Key: raw.Key}, nil
	case "NamedPartitioning":
		var raw struct {
			Name    string    `yaml:"name"`
			Element yaml.Node `yaml:"element"`
		}
		if err := decodePayload(payload, &raw); err != nil {
			return nil, err
		}
		element, err := DecodeStringSource(&raw.Element)
		if err != nil {
			return nil, err
		}
		return srcNamedPartitioning{Name: raw.Name, Element: element}, nil
	case "CommandOutput":
		var cmd CommandConfig
		if err := decodePayload(payload, &cmd); err != nil {
			return nil, err
		}
		return srcCommandOutput{Config: cmd}, nil
	case "HttpRequest":
		var raw struct {
			Request  yaml.Node `yaml:"request"`
			Response yaml.Node `yaml:"response"`
		}
		if err := decodePayload(payload, &raw); err != nil {
			return nil, err
		}
		reqCfg, err := DecodeRequestConfig(&raw.Request)
		if err != nil {
			return nil, err
		}
		field, err := decodeResponseField(&raw.Response)
		if err != nil {
			return nil, err
		}
		return srcHttpRequest{Request: reqCfg, Response: field}, nil
	case "Cache":
		var raw struct {
			Subject yaml.Node `yaml:"subject"`
			Key     yaml.Node `yaml:"key"`
			Value   yaml.Node `yaml:"value"`
		}
		if err := decodePayload(payload, &raw); err != nil {
			return nil, err
		}
		subject, err := DecodeStringSource(&raw.Subject)
		if err != nil {
			return nil, err
		}
		key, err := DecodeStringSource(&raw.Key)
		if err != nil {
			return nil, err
		}
		value, err := DecodeStringSource(&raw.Value)
		if err != nil {
			return nil, err
		}
		return srcCache{Subject: subject, Key: key, Value: value}, nil
	case "Common":
		var call CommonCall
		if err := decodePayload(payload, &call); err != nil {
			return nil, err
		}
		return srcCommon{Call: call}, nil
	case "CommonCallArg":
		var name string
		if err := decodePayload(payload, &name); err != nil {
			return nil, err
		}
		return srcCommonCallArg{Name: name}, nil
	default:
		return nil, fmt.Errorf("string source: unknown variant %q", tag)
	}
}

func decodeChildSource(payload *yaml.Node) (StringSource, error) {
	if payload == nil {
		return nil, fmt.Errorf("string source: missing payload")
	}
	return DecodeStringSource(payload)
}

// --- variants ---------------------------------------------------------

type srcString struct{ Value string }

func (s srcString) Get(*TaskStateView) (*string, error) { v := s.Value; return &v, nil }

type srcNone struct{}

func (srcNone) Get(*TaskStateView) (*string, error) { return nil, nil }

type srcError struct{ Message string }

func (s srcError) Get(*TaskStateView) (*string, error) { return nil, &ExplicitError{Message: s.Message} }

type srcErrorToNone struct{ Inner StringSource }

func (s srcErrorToNone) Get(v *TaskStateView) (*string, error) {
	val, err := s.Inner.Get(v)
	if err != nil {
		return nil, nil
	}
	return val, nil
}

type srcErrorToEmptyString struct{ Inner StringSource }

func (s srcErrorToEmptyString) Get(v *TaskStateView) (*string, error) {
	val, err := s.Inner.Get(v)
	if err != nil {
		empty := ""
		return &empty, nil
	}
	return val, nil
}

type srcNoneToEmptyString struct{ Inner StringSource }

func (s srcNoneToEmptyString) Get(v *TaskStateView) (*string, error) {
	val, err := s.Inner.Get(v)
	if err != nil {
		return nil, err
	}
	if val == nil {
		empty := ""
		return &empty, nil
	}
	return val, nil
}

type srcTryElse struct{ Try, Else StringSource }

func (s srcTryElse) Get(v *TaskStateView) (*string, error) {
	val, tryErr := s.Try.Get(v)
	if tryErr == nil {
		return val, nil
	}
	val, elseErr := s.Else.Get(v)
	if elseErr == nil {
		return val, nil
	}
	return nil, &TryElseError{Try: tryErr, Else: elseErr}
}

type srcFirstNotError struct{ Items []StringSource }

func (s srcFirstNotError) Get(v *TaskStateView) (*string, error) {
	var errs []error
	for _, item := range s.Items {
		val, err := item.Get(v)
		if err == nil {
			return val, nil
		}
		errs = append(errs, err)
	}
	return nil, &FirstNotErrorErrors{Errors: errs}
}

type srcVar struct{ Ref VarRef }

func (s srcVar) Get(v *TaskStateView) (*string, error) {
	switch s.Ref.Type {
	case VarTypeParams:
		if val, ok := v.Params().Var(s.Ref.Name); ok {
			return &val, nil
		}
	case VarTypeScratchpad:
		if val, ok := v.Scratchpad().Var(s.Ref.Name); ok {
			return &val, nil
		}
	case VarTypeContext:
		if val, ok := v.Context().Var(s.Ref.Name); ok {
			return &val, nil
		}
	case VarTypeJobContext:
		if val, ok := v.JobContext().Var(s.Ref.Name); ok {
			return &val, nil
		}
	case VarTypeCommonArg:
		if val, ok := v.CommonArgs().Var(s.Ref.Name); ok {
			return &val, nil
		}
	case VarTypeEnvVar:
		// Resolved at evaluation time, never cached: see DESIGN.md "Env var
		// caching".
		if val, ok := os.LookupEnv(s.Ref.Name); ok {
			return &val, nil
		}
	}
	return nil, fmt.Errorf("string source Var %q: %w", s.Ref.Name, ErrVarNotFound)
}

type srcPart struct{ Part urlmodel.UrlPart }

func (s srcPart) Get(v *TaskStateView) (*string, error) {
	val, ok := s.Part.Get(v.Url())
	if !ok {
		return nil, nil
	}
	return &val, nil
}

type srcJoin struct {
	Values []StringSource
	Join   string
}

func (s srcJoin) Get(v *TaskStateView) (*string, error) {
	var parts []string
	for _, item := range s.Values {
		val, err := item.Get(v)
		if err != nil {
			return nil, err
		}
		if val != nil {
			parts = append(parts, *val)
		}
	}
	result := strings.Join(parts, s.Join)
	return &result, nil
}

type srcModified struct {
	Value        StringSource
	Modification StringModification
}

func (s srcModified) Get(v *TaskStateView) (*string, error) {
	val, err := s.Value.Get(v)
	if err != nil {
		return nil, err
	}
	if err := s.Modification.Apply(&val, v); err != nil {
		return nil, err
	}
	return val, nil
}

type srcRegexFind struct {
	Value StringSource
	Regex *regexp.Regexp
}

func (s srcRegexFind) Get(v *TaskStateView) (*string, error) {
	val, err := s.Value.Get(v)
	if err != nil {
		return nil, err
	}
	if val == nil {
		return nil, nil
	}
	match := s.Regex.FindString(*val)
	if match == "" && !s.Regex.MatchString(*val) {
		return nil, nil
	}
	return &match, nil
}

type srcCommandOutput struct{ Config CommandConfig }

func (s srcCommandOutput) Get(v *TaskStateView) (*string, error) {
	return runCommand(s.Config, v)
}

type srcNoneTo struct{ Value, IfNone StringSource }

func (s srcNoneTo) Get(v *TaskStateView) (*string, error) {
	val, err := s.Value.Get(v)
	if err != nil {
		return nil, err
	}
	if val != nil {
		return val, nil
	}
	return s.IfNone.Get(v)
}

type srcAssertMatches struct {
	Value   StringSource
	Matcher StringMatcher
	Message string
}

func (s srcAssertMatches) Get(v *TaskStateView) (*string, error) {
	val, err := s.Value.Get(v)
	if err != nil {
		return nil, err
	}
	var haystack string
	if val != nil {
		haystack = *val
	}
	ok, err := s.Matcher.Match(val, v)
	if err != nil {
		return nil, err
	}
	if !ok {
		msg := s.Message
		if msg == "" {
			msg = fmt.Sprintf("assertion failed for %q", haystack)
		}
		return nil, &ExplicitError{Message: msg}
	}
	return val, nil
}

type srcIfFlag struct {
	Flag       FlagRef
	Then, Else StringSource
}

func (s srcIfFlag) Get(v *TaskStateView) (*string, error) {
	set, err := s.Flag.IsSet(v)
	if err != nil {
		return nil, err
	}
	if set {
		return s.Then.Get(v)
	}
	return s.Else.Get(v)
}

type srcIfStringIsNone struct {
	Value      StringSource
	Then, Else StringSource
}

func (s srcIfStringIsNone) Get(v *TaskStateView) (*string, error) {
	val, err := s.Value.Get(v)
	if err != nil {
		return nil, err
	}
	if val == nil {
		return s.Then.Get(v)
	}
	return s.Else.Get(v)
}

type srcIfStringMatches struct {
	Value      StringSource
	Matcher    StringMatcher
	Then, Else StringSource
}

func (s srcIfStringMatches) Get(v *TaskStateView) (*string, error) {
	val, err := s.Value.Get(v)
	if err != nil {
		return nil, err
	}
	ok, err := s.Matcher.Match(val, v)
	if err != nil {
		return nil, err
	}
	if ok {
		return s.Then.Get(v)
	}
	return s.Else.Get(v)
}

type srcMap struct {
	Value StringSource
	Map   map[string]string
}

func (s srcMap) Get(v *TaskStateView) (*string, error) {
	val, err := s.Value.Get(v)
	if err != nil {
		return nil, err
	}
	if val == nil {
		return nil, nil
	}
	mapped, ok := s.Map[*val]
	if !ok {
		return val, nil
	}
	return &mapped, nil
}

type srcExtractPart struct {
	Value StringSource
	Part  urlmodel.UrlPart
}

func (s srcExtractPart) Get(v *TaskStateView) (*string, error) {
	val, err := s.Value.Get(v)
	if err != nil {
		return nil, err
	}
	if val == nil {
		return nil, nil
	}
	parsed, err := urlmodel.Parse(*val)
	if err != nil {
		return nil, err
	}
	result, ok := s.Part.Get(parsed)
	if !ok {
		return nil, nil
	}
	return &result, nil
}

type srcParamsMap struct{ Name, Key string }

func (s srcParamsMap) Get(v *TaskStateView) (*string, error) {
	m, ok := v.Params().Maps[s.Name]
	if !ok {
		return nil, fmt.Errorf("string source ParamsMap %q: %w", s.Name, ErrNamedMapNotFound)
	}
	val, found := m.Lookup(&s.Key)
	if !found {
		return nil, nil
	}
	return &val, nil
}

type srcNamedPartitioning struct {
	Name    string
	Element StringSource
}

func (s srcNamedPartitioning) Get(v *TaskStateView) (*string, error) {
	p, ok := v.Params().Partitionings[s.Name]
	if !ok {
		return nil, fmt.Errorf("string source NamedPartitioning %q: %w", s.Name, ErrPartitioningNotFound)
	}
	element, err := s.Element.Get(v)
	if err != nil {
		return nil, err
	}
	if element == nil {
		return nil, nil
	}
	bucket, ok := p.PartitionOf(*element)
	if !ok {
		return nil, nil
	}
	return &bucket, nil
}

type srcCommon struct{ Call CommonCall }

func (s srcCommon) Get(v *TaskStateView) (*string, error) {
	source, ok := v.Commons().StringSources[s.Call.Name]
	if !ok {
		return nil, fmt.Errorf("string source Common %q: %w", s.Call.Name, ErrCommonNotFound)
	}
	frame := buildCommonCallArgs(s.Call.Args, v)
	return source.Get(v.WithCommonArgs(frame))
}

type srcCommonCallArg struct{ Name string }

func (s srcCommonCallArg) Get(v *TaskStateView) (*string, error) {
	args := v.CommonArgs()
	if args == nil {
		return nil, fmt.Errorf("string source CommonCallArg %q: %w", s.Name, ErrCommonArgNotFound)
	}
	if source, ok := args.StringSources[s.Name]; ok {
		return source.(StringSource).Get(v)
	}
	return nil, fmt.Errorf("string source CommonCallArg %q: %w", s.Name, ErrCommonArgNotFound)
}

// CustomStringSource is a host-supplied function hook. It is opaque and excluded from
// serialized documents, same as Action/Condition custom hooks.
type CustomStringSource func(v *TaskStateView) (*string, error)

func (f CustomStringSource) Get(v *TaskStateView) (*string, error) { return f(v) }
