package cleanerdoc

import (
	"context"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/edgecomet/urlcleaner/internal/cache"
	"github.com/edgecomet/urlcleaner/pkg/urlmodel"
)

// Condition evaluates a boolean test against the current task state.
type Condition interface {
	Check(v *TaskStateView) (bool, error)
}

// DecodeCondition dispatches a YAML node into a concrete Condition by its
// single variant tag, or a bare string for no-payload variants (e.g.
// "Always").
func DecodeCondition(node *yaml.Node) (Condition, error) {
	tag, payload, err := singleKeyTag(node)
	if err != nil {
		return nil, fmt.Errorf("condition: %w", err)
	}

	switch tag {
	case "Always":
		return condAlways{}, nil
	case "Never":
		return condNever{}, nil
	case "Error":
		var msg string
		if err := decodePayload(payload, &msg); err != nil {
			return nil, err
		}
		return condError{Message: msg}, nil
	case "Debug":
		inner, err := decodeChildCondition(payload)
		if err != nil {
			return nil, err
		}
		return condDebug{Inner: inner}, nil
	case "Not":
		inner, err := decodeChildCondition(payload)
		if err != nil {
			return nil, err
		}
		return condNot{Inner: inner}, nil
	case "All":
		items, err := decodeConditionList(payload)
		if err != nil {
			return nil, err
		}
		return condAll{Items: items}, nil
	case "Any":
		items, err := decodeConditionList(payload)
		if err != nil {
			return nil, err
		}
		return condAny{Items: items}, nil
	case "If":
		var raw struct {
			If   yaml.Node `yaml:"if"`
			Then yaml.Node `yaml:"then"`
			Else yaml.Node `yaml:"else"`
		}
		if err := decodePayload(payload, &raw); err != nil {
			return nil, err
		}
		ifCond, err := DecodeCondition(&raw.If)
		if err != nil {
			return nil, err
		}
		then, err := DecodeCondition(&raw.Then)
		if err != nil {
			return nil, err
		}
		elseCond, err := DecodeCondition(&raw.Else)
		if err != nil {
			return nil, err
		}
		return condIf{If: ifCond, Then: then, Else: elseCond}, nil
	case "TreatErrorAsPass":
		inner, err := decodeChildCondition(payload)
		if err != nil {
			return nil, err
		}
		return condTreatErrorAsPass{Inner: inner}, nil
	case "TreatErrorAsFail":
		inner, err := decodeChildCondition(payload)
		if err != nil {
			return nil, err
		}
		return condTreatErrorAsFail{Inner: inner}, nil
	case "TryElse":
		var raw struct {
			Try  yaml.Node `yaml:"try"`
			Else yaml.Node `yaml:"else"`
		}
		if err := decodePayload(payload, &raw); err != nil {
			return nil, err
		}
		try, err := DecodeCondition(&raw.Try)
		if err != nil {
			return nil, err
		}
		elseCond, err := DecodeCondition(&raw.Else)
		if err != nil {
			return nil, err
		}
		return condTryElse{Try: try, Else: elseCond}, nil
	case "FirstNotError":
		items, err := decodeConditionList(payload)
		if err != nil {
			return nil, err
		}
		return condFirstNotError{Items: items}, nil
	case "PartIs":
		var raw struct {
			Part  urlmodel.UrlPart `yaml:"part"`
			Value yaml.Node        `yaml:"value"`
		}
		if err := decodePayload(payload, &raw); err != nil {
			return nil, err
		}
		value, err := DecodeStringSource(&raw.Value)
		if err != nil {
			return nil, err
		}
		return condPartIs{Part: raw.Part, Value: value}, nil
	case "PartIsOneOf":
		var raw struct {
			Part   urlmodel.UrlPart `yaml:"part"`
			Values []yaml.Node      `yaml:"values"`
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
		return condPartIsOneOf{Part: raw.Part, Values: values}, nil
	case "PartIsInSet":
		var raw struct {
			Part urlmodel.UrlPart `yaml:"part"`
			Set  string           `yaml:"set"`
		}
		if err := decodePayload(payload, &raw); err != nil {
			return nil, err
		}
		return condPartIsInSet{Part: raw.Part, Set: raw.Set}, nil
	case "PartMatches":
		var raw struct {
			Part    urlmodel.UrlPart `yaml:"part"`
			Matcher yaml.Node        `yaml:"matcher"`
		}
		if err := decodePayload(payload, &raw); err != nil {
			return nil, err
		}
		matcher, err := DecodeStringMatcher(&raw.Matcher)
		if err != nil {
			return nil, err
		}
		return condPartMatches{Part: raw.Part, Matcher: matcher}, nil
	case "PartContains":
		var raw struct {
			Part  urlmodel.UrlPart `yaml:"part"`
			Value yaml.Node        `yaml:"value"`
		}
		if err := decodePayload(payload, &raw); err != nil {
			return nil, err
		}
		value, err := DecodeStringSource(&raw.Value)
		if err != nil {
			return nil, err
		}
		return condPartContains{Part: raw.Part, Value: value}, nil
	case "StringIs":
		var raw struct {
			Value   yaml.Node `yaml:"value"`
			Compare yaml.Node `yaml:"compare"`
		}
		if err := decodePayload(payload, &raw); err != nil {
			return nil, err
		}
		value, err := DecodeStringSource(&raw.Value)
		if err != nil {
			return nil, err
		}
		compare, err := DecodeStringSource(&raw.Compare)
		if err != nil {
			return nil, err
		}
		return condStringIs{Value: value, Compare: compare}, nil
	case "StringMatches":
		var raw struct {
			Value   yaml.Node `yaml:"value"`
			Matcher yaml.Node `yaml:"matcher"`
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
		return condStringMatches{Value: value, Matcher: matcher}, nil
	case "FlagIsSet":
		var ref FlagRef
		if err := decodePayload(payload, &ref); err != nil {
			return nil, err
		}
		return condFlagIsSet{Ref: ref}, nil
	case "TaskContextFlagIsSet":
		var name string
		if err := decodePayload(payload, &name); err != nil {
			return nil, err
		}
		return condTaskContextFlagIsSet{Name: name}, nil
	case "JobContextFlagIsSet":
		var name string
		if err := decodePayload(payload, &name); err != nil {
			return nil, err
		}
		return condJobContextFlagIsSet{Name: name}, nil
	case "IsCached":
		var raw struct {
			Subject yaml.Node `yaml:"subject"`
			Key     yaml.Node `yaml:"key"`
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
		return condIsCached{Subject: subject, Key: key}, nil
	case "Common":
		var call CommonCall
		if err := decodePayload(payload, &call); err != nil {
			return nil, err
		}
		return condCommon{Call: call}, nil
	case "CommonCallArg":
		var name string
		if err := decodePayload(payload, &name); err != nil {
			return nil, err
		}
		return condCommonCallArg{Name: name}, nil
	default:
		return nil, fmt.Errorf("condition: unknown variant %q", tag)
	}
}

func decodeChildCondition(payload *yaml.Node) (Condition, error) {
	if payload == nil {
		return nil, fmt.Errorf("condition: missing payload")
	}
	return DecodeCondition(payload)
}

func decodeConditionList(payload *yaml.Node) ([]Condition, error) {
	var nodes []yaml.Node
	if err := decodePayload(payload, &nodes); err != nil {
		return nil, err
	}
	items := make([]Condition, len(nodes))
	for i := range nodes {
		c, err := DecodeCondition(&nodes[i])
		if err != nil {
			return nil, err
		}
		items[i] = c
	}
	return items, nil
}

// --- control ---------------------------------------------------------

type condAlways struct{}

func (condAlways) Check(*TaskStateView) (bool, error) { return true, nil }

type condNever struct{}

func (condNever) Check(*TaskStateView) (bool, error) { return false, nil }

type condError struct{ Message string }

func (c condError) Check(*TaskStateView) (bool, error) {
	return false, &ExplicitError{Message: c.Message}
}

type condDebug struct{ Inner Condition }

func (c condDebug) Check(v *TaskStateView) (bool, error) {
	ok, err := c.Inner.Check(v)
	if logger := v.Logger(); logger != nil {
		logger.Sugar().Debugw("condition debug", "result", ok, "err", err)
	}
	return ok, err
}

type condNot struct{ Inner Condition }

func (c condNot) Check(v *TaskStateView) (bool, error) {
	ok, err := c.Inner.Check(v)
	if err != nil {
		return false, err
	}
	return !ok, nil
}

type condAll struct{ Items []Condition }

func (c condAll) Check(v *TaskStateView) (bool, error) {
	for _, item := range c.Items {
		ok, err := item.Check(v)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

type condAny struct{ Items []Condition }

func (c condAny) Check(v *TaskStateView) (bool, error) {
	for _, item := range c.Items {
		ok, err := item.Check(v)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

type condIf struct{ If, Then, Else Condition }

func (c condIf) Check(v *TaskStateView) (bool, error) {
	ok, err := c.If.Check(v)
	if err != nil {
		return false, err
	}
	if ok {
		return c.Then.Check(v)
	}
	return c.Else.Check(v)
}

type condTreatErrorAsPass struct{ Inner Condition }

func (c condTreatErrorAsPass) Check(v *TaskStateView) (bool, error) {
	ok, err := c.Inner.Check(v)
	if err != nil {
		return true, nil
	}
	return ok, nil
}

type condTreatErrorAsFail struct{ Inner Condition }

func (c condTreatErrorAsFail) Check(v *TaskStateView) (bool, error) {
	ok, err := c.Inner.Check(v)
	if err != nil {
		return false, nil
	}
	return ok, nil
}

type condTryElse struct{ Try, Else Condition }

func (c condTryElse) Check(v *TaskStateView) (bool, error) {
	ok, err := c.Try.Check(v)
	if err == nil {
		return ok, nil
	}
	ok, elseErr := c.Else.Check(v)
	if elseErr == nil {
		return ok, nil
	}
	return false, &TryElseError{Try: err, Else: elseErr}
}

type condFirstNotError struct{ Items []Condition }

func (c condFirstNotError) Check(v *TaskStateView) (bool, error) {
	var errs []error
	for _, item := range c.Items {
		ok, err := item.Check(v)
		if err == nil {
			return ok, nil
		}
		errs = append(errs, err)
	}
	return false, &FirstNotErrorErrors{Errors: errs}
}

// --- part/string probes ------------------------------------------------

type condPartIs struct {
	Part  urlmodel.UrlPart
	Value StringSource
}

func (c condPartIs) Check(v *TaskStateView) (bool, error) {
	actual, ok := c.Part.Get(v.Url())
	expected, err := c.Value.Get(v)
	if err != nil {
		return false, err
	}
	if !ok {
		return expected == nil, nil
	}
	return expected != nil && *expected == actual, nil
}

type condPartIsOneOf struct {
	Part   urlmodel.UrlPart
	Values []StringSource
}

func (c condPartIsOneOf) Check(v *TaskStateView) (bool, error) {
	actual, ok := c.Part.Get(v.Url())
	if !ok {
		return false, nil
	}
	for _, item := range c.Values {
		expected, err := item.Get(v)
		if err != nil {
			return false, err
		}
		if expected != nil && *expected == actual {
			return true, nil
		}
	}
	return false, nil
}

type condPartIsInSet struct {
	Part urlmodel.UrlPart
	Set  string
}

func (c condPartIsInSet) Check(v *TaskStateView) (bool, error) {
	actual, ok := c.Part.Get(v.Url())
	if !ok {
		return false, nil
	}
	set, ok := v.Params().Sets[c.Set]
	if !ok {
		return false, fmt.Errorf("condition PartIsInSet %q: %w", c.Set, ErrNamedSetNotFound)
	}
	_, in := set[actual]
	return in, nil
}

type condPartMatches struct {
	Part    urlmodel.UrlPart
	Matcher StringMatcher
}

func (c condPartMatches) Check(v *TaskStateView) (bool, error) {
	actual, ok := c.Part.Get(v.Url())
	if !ok {
		return c.Matcher.Match(nil, v)
	}
	return c.Matcher.Match(&actual, v)
}

type condPartContains struct {
	Part  urlmodel.UrlPart
	Value StringSource
}

func (c condPartContains) Check(v *TaskStateView) (bool, error) {
	actual, ok := c.Part.Get(v.Url())
	if !ok {
		return false, nil
	}
	needle, err := c.Value.Get(v)
	if err != nil {
		return false, err
	}
	if needle == nil {
		return false, nil
	}
	return containsSubstr(actual, *needle), nil
}

func containsSubstr(haystack, needle string) bool {
	if needle == "" {
		return true
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}

type condStringIs struct{ Value, Compare StringSource }

func (c condStringIs) Check(v *TaskStateView) (bool, error) {
	value, err := c.Value.Get(v)
	if err != nil {
		return false, err
	}
	compare, err := c.Compare.Get(v)
	if err != nil {
		return false, err
	}
	if value == nil || compare == nil {
		return value == nil && compare == nil, nil
	}
	return *value == *compare, nil
}

type condStringMatches struct {
	Value   StringSource
	Matcher StringMatcher
}

func (c condStringMatches) Check(v *TaskStateView) (bool, error) {
	value, err := c.Value.Get(v)
	if err != nil {
		return false, err
	}
	return c.Matcher.Match(value, v)
}

// --- flags ---------------------------------------------------------------

// FlagRef addresses a boolean flag within one of the flag-bearing scopes.
// A bare string decodes as a params flag, the common case in cleaner
// documents; {type, name} selects another scope explicitly.
type FlagRef struct {
	Type VarType `yaml:"type"`
	Name string  `yaml:"name"`
}

// UnmarshalYAML accepts either a bare flag name or a {type, name} mapping.
func (r *FlagRef) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		r.Type = VarTypeParams
		r.Name = node.Value
		return nil
	}
	var raw struct {
		Type VarType `yaml:"type"`
		Name string  `yaml:"name"`
	}
	if err := node.Decode(&raw); err != nil {
		return fmt.Errorf("cleanerdoc: flag ref: %w", err)
	}
	r.Type = raw.Type
	r.Name = raw.Name
	return nil
}

// IsSet resolves the referenced flag against v.
func (r FlagRef) IsSet(v *TaskStateView) (bool, error) {
	switch r.Type {
	case VarTypeParams:
		return v.Params().FlagIsSet(r.Name), nil
	case VarTypeScratchpad:
		return v.Scratchpad().FlagIsSet(r.Name), nil
	case VarTypeContext:
		return v.Context().FlagIsSet(r.Name), nil
	case VarTypeJobContext:
		return v.JobContext().FlagIsSet(r.Name), nil
	case VarTypeCommonArg:
		return v.CommonArgs().FlagIsSet(r.Name), nil
	default:
		return false, fmt.Errorf("flag %q: %w", r.Name, ErrFlagRefUnresolved)
	}
}

type condFlagIsSet struct{ Ref FlagRef }

func (c condFlagIsSet) Check(v *TaskStateView) (bool, error) {
	return c.Ref.IsSet(v)
}

type condTaskContextFlagIsSet struct{ Name string }

func (c condTaskContextFlagIsSet) Check(v *TaskStateView) (bool, error) {
	return v.Context().FlagIsSet(c.Name), nil
}

type condJobContextFlagIsSet struct{ Name string }

func (c condJobContextFlagIsSet) Check(v *TaskStateView) (bool, error) {
	return v.JobContext().FlagIsSet(c.Name), nil
}

// --- cache probes ----------------------------------------------------

type condIsCached struct{ Subject, Key StringSource }

func (c condIsCached) Check(v *TaskStateView) (bool, error) {
	store := v.Cache()
	if store == nil {
		return false, nil
	}
	subject, err := c.Subject.Get(v)
	if err != nil {
		return false, err
	}
	key, err := c.Key.Get(v)
	if err != nil {
		return false, err
	}
	if subject == nil || key == nil {
		return false, nil
	}
	release := v.Unthreader().Unthread(v.State().ID)
	defer release()
	entry, err := store.Read(context.Background(), cache.EntryKeys{Subject: *subject, Key: *key})
	if err != nil {
		return false, err
	}
	return entry != nil, nil
}

// --- commons ---------------------------------------------------------

type condCommon struct{ Call CommonCall }

func (c condCommon) Check(v *TaskStateView) (bool, error) {
	cond, ok := v.Commons().Conditions[c.Call.Name]
	if !ok {
		return false, fmt.Errorf("condition Common %q: %w", c.Call.Name, ErrCommonNotFound)
	}
	frame := buildCommonCallArgs(c.Call.Args, v)
	return cond.Check(v.WithCommonArgs(frame))
}

type condCommonCallArg struct{ Name string }

func (c condCommonCallArg) Check(v *TaskStateView) (bool, error) {
	args := v.CommonArgs()
	if args == nil {
		return false, fmt.Errorf("condition CommonCallArg %q: %w", c.Name, ErrCommonArgNotFound)
	}
	if cond, ok := args.Conditions[c.Name]; ok {
		return cond.(Condition).Check(v)
	}
	return false, fmt.Errorf("condition CommonCallArg %q: %w", c.Name, ErrCommonArgNotFound)
}

// CustomCondition is a host-supplied function hook, opaque to and excluded
// from serialized documents.
type CustomCondition func(v *TaskStateView) (bool, error)

func (f CustomCondition) Check(v *TaskStateView) (bool, error) { return f(v) }
