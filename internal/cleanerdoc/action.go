package cleanerdoc

import (
	"context"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/edgecomet/urlcleaner/internal/cache"
	"github.com/edgecomet/urlcleaner/internal/httpconfig"
	"github.com/edgecomet/urlcleaner/internal/params"
	"github.com/edgecomet/urlcleaner/pkg/urlmodel"
)

// Action mutates the task state. Apply's default failure mode is
// non-reverting: if a composite action partially mutates state before
// failing, prior mutations persist. RevertOnError is the one variant that
// snapshots and restores url+scratchpad around a failing delegate.
type Action interface {
	Apply(ts *TaskState) error
}

// DecodeAction dispatches a YAML node into a concrete Action by its single
// variant tag, or a bare string for no-payload variants (e.g. "None").
func DecodeAction(node *yaml.Node) (Action, error) {
	tag, payload, err := singleKeyTag(node)
	if err != nil {
		return nil, fmt.Errorf("action: %w", err)
	}

	switch tag {
	case "None":
		return actNone{}, nil
	case "Error":
		var msg string
		if err := decodePayload(payload, &msg); err != nil {
			return nil, err
		}
		return actError{Message: msg}, nil
	case "Debug":
		inner, err := decodeChildAction(payload)
		if err != nil {
			return nil, err
		}
		return actDebug{Inner: inner}, nil
	case "IgnoreError":
		inner, err := decodeChildAction(payload)
		if err != nil {
			return nil, err
		}
		return actIgnoreError{Inner: inner}, nil
	case "RevertOnError":
		inner, err := decodeChildAction(payload)
		if err != nil {
			return nil, err
		}
		return actRevertOnError{Inner: inner}, nil
	case "TryElse":
		var raw struct {
			Try  yaml.Node `yaml:"try"`
			Else yaml.Node `yaml:"else"`
		}
		if err := decodePayload(payload, &raw); err != nil {
			return nil, err
		}
		try, err := DecodeAction(&raw.Try)
		if err != nil {
			return nil, err
		}
		elseAct, err := DecodeAction(&raw.Else)
		if err != nil {
			return nil, err
		}
		return actTryElse{Try: try, Else: elseAct}, nil
	case "FirstNotError":
		items, err := decodeActionList(payload)
		if err != nil {
			return nil, err
		}
		return actFirstNotError{Items: items}, nil
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
		then, err := DecodeAction(&raw.Then)
		if err != nil {
			return nil, err
		}
		var elseAct Action = actNone{}
		if raw.Else.Kind != 0 {
			elseAct, err = DecodeAction(&raw.Else)
			if err != nil {
				return nil, err
			}
		}
		return actIf{If: ifCond, Then: then, Else: elseAct}, nil
	case "All":
		items, err := decodeActionList(payload)
		if err != nil {
			return nil, err
		}
		return actAll{Items: items}, nil
	case "Repeat":
		var raw struct {
			Actions []yaml.Node `yaml:"actions"`
			Limit   *int        `yaml:"limit"`
		}
		if err := decodePayload(payload, &raw); err != nil {
			return nil, err
		}
		items := make([]Action, len(raw.Actions))
		for i := range raw.Actions {
			a, err := DecodeAction(&raw.Actions[i])
			if err != nil {
				return nil, err
			}
			items[i] = a
		}
		limit := 10
		if raw.Limit != nil {
			limit = *raw.Limit
		}
		return actRepeat{Actions: items, Limit: limit}, nil

	case "PartMap":
		var raw struct {
			Part urlmodel.UrlPart     `yaml:"part"`
			Map  map[string]yaml.Node `yaml:"map"`
		}
		if err := decodePayload(payload, &raw); err != nil {
			return nil, err
		}
		m, err := decodeActionMap(payload)
		if err != nil {
			return nil, err
		}
		return actPartMap{Part: raw.Part, Map: m}, nil
	case "StringMap":
		var raw struct {
			Value yaml.Node `yaml:"value"`
		}
		if err := decodePayload(payload, &raw); err != nil {
			return nil, err
		}
		value, err := DecodeStringSource(&raw.Value)
		if err != nil {
			return nil, err
		}
		m, err := decodeActionMap(payload)
		if err != nil {
			return nil, err
		}
		return actStringMap{Value: value, Map: m}, nil
	case "PartNamedPartitioning":
		var raw struct {
			NamedPartitioning string           `yaml:"named_partitioning"`
			Part              urlmodel.UrlPart `yaml:"part"`
		}
		if err := decodePayload(payload, &raw); err != nil {
			return nil, err
		}
		m, err := decodeActionMap(payload)
		if err != nil {
			return nil, err
		}
		return actPartNamedPartitioning{NamedPartitioning: raw.NamedPartitioning, Part: raw.Part, Map: m}, nil
	case "StringNamedPartitioning":
		var raw struct {
			NamedPartitioning string    `yaml:"named_partitioning"`
			Value             yaml.Node `yaml:"value"`
		}
		if err := decodePayload(payload, &raw); err != nil {
			return nil, err
		}
		value, err := DecodeStringSource(&raw.Value)
		if err != nil {
			return nil, err
		}
		m, err := decodeActionMap(payload)
		if err != nil {
			return nil, err
		}
		return actStringNamedPartitioning{NamedPartitioning: raw.NamedPartitioning, Value: value, Map: m}, nil

	case "SetWhole":
		src, err := decodeChildStringSource(payload)
		if err != nil {
			return nil, err
		}
		return actSetWhole{Value: src}, nil
	case "Join":
		src, err := decodeChildStringSource(payload)
		if err != nil {
			return nil, err
		}
		return actJoin{Value: src}, nil

	case "SetScheme":
		src, err := decodeChildStringSource(payload)
		if err != nil {
			return nil, err
		}
		return actSetScheme{Value: src}, nil
	case "SetHost":
		src, err := decodeChildStringSource(payload)
		if err != nil {
			return nil, err
		}
		return actSetHost{Value: src}, nil
	case "SetSubdomain":
		src, err := decodeChildStringSource(payload)
		if err != nil {
			return nil, err
		}
		return actSetSubdomain{Value: src}, nil
	case "SetRegDomain":
		src, err := decodeChildStringSource(payload)
		if err != nil {
			return nil, err
		}
		return actSetRegDomain{Value: src}, nil
	case "SetDomain":
		src, err := decodeChildStringSource(payload)
		if err != nil {
			return nil, err
		}
		return actSetDomain{Value: src}, nil
	case "SetDomainMiddle":
		src, err := decodeChildStringSource(payload)
		if err != nil {
			return nil, err
		}
		return actSetDomainMiddle{Value: src}, nil
	case "SetNotDomainSuffix":
		src, err := decodeChildStringSource(payload)
		if err != nil {
			return nil, err
		}
		return actSetNotDomainSuffix{Value: src}, nil
	case "SetDomainSuffix":
		src, err := decodeChildStringSource(payload)
		if err != nil {
			return nil, err
		}
		return actSetDomainSuffix{Value: src}, nil
	case "EnsureFqdnPeriod":
		return actEnsureFqdnPeriod{}, nil
	case "RemoveFqdnPeriod":
		return actRemoveFqdnPeriod{}, nil

	case "SetDomainSegment":
		idx, src, err := decodeIndexedStringSource(payload)
		if err != nil {
			return nil, err
		}
		return actSetDomainSegment{Index: idx, Value: src}, nil
	case "InsertDomainSegmentAt":
		idx, src, err := decodeIndexedNonOptStringSource(payload)
		if err != nil {
			return nil, err
		}
		return actInsertDomainSegmentAt{Index: idx, Value: src}, nil
	case "InsertDomainSegmentAfter":
		idx, src, err := decodeIndexedNonOptStringSource(payload)
		if err != nil {
			return nil, err
		}
		return actInsertDomainSegmentAfter{Index: idx, Value: src}, nil
	case "SetSubdomainSegment":
		idx, src, err := decodeIndexedStringSource(payload)
		if err != nil {
			return nil, err
		}
		return actSetSubdomainSegment{Index: idx, Value: src}, nil
	case "InsertSubdomainSegmentAt":
		idx, src, err := decodeIndexedNonOptStringSource(payload)
		if err != nil {
			return nil, err
		}
		return actInsertSubdomainSegmentAt{Index: idx, Value: src}, nil
	case "InsertSubdomainSegmentAfter":
		idx, src, err := decodeIndexedNonOptStringSource(payload)
		if err != nil {
			return nil, err
		}
		return actInsertSubdomainSegmentAfter{Index: idx, Value: src}, nil
	case "SetDomainSuffixSegment":
		idx, src, err := decodeIndexedStringSource(payload)
		if err != nil {
			return nil, err
		}
		return actSetDomainSuffixSegment{Index: idx, Value: src}, nil
	case "InsertDomainSuffixSegmentAt":
		idx, src, err := decodeIndexedNonOptStringSource(payload)
		if err != nil {
			return nil, err
		}
		return actInsertDomainSuffixSegmentAt{Index: idx, Value: src}, nil
	case "InsertDomainSuffixSegmentAfter":
		idx, src, err := decodeIndexedNonOptStringSource(payload)
		if err != nil {
			return nil, err
		}
		return actInsertDomainSuffixSegmentAfter{Index: idx, Value: src}, nil

	case "SetPath":
		src, err := decodeChildStringSource(payload)
		if err != nil {
			return nil, err
		}
		return actSetPath{Value: src}, nil
	case "RemovePathSegment":
		var idx int
		if err := decodePayload(payload, &idx); err != nil {
			return nil, err
		}
		return actRemovePathSegment{Index: idx}, nil
	case "SetPathSegment":
		idx, src, err := decodeIndexedStringSource(payload)
		if err != nil {
			return nil, err
		}
		return actSetPathSegment{Index: idx, Value: src}, nil
	case "SetRawPathSegment":
		idx, src, err := decodeIndexedStringSource(payload)
		if err != nil {
			return nil, err
		}
		return actSetRawPathSegment{Index: idx, Value: src}, nil
	case "InsertPathSegmentAt":
		idx, src, err := decodeIndexedNonOptStringSource(payload)
		if err != nil {
			return nil, err
		}
		return actInsertPathSegmentAt{Index: idx, Value: src}, nil
	case "InsertPathSegmentAfter":
		idx, src, err := decodeIndexedNonOptStringSource(payload)
		if err != nil {
			return nil, err
		}
		return actInsertPathSegmentAfter{Index: idx, Value: src}, nil
	case "InsertRawPathSegmentAt":
		idx, src, err := decodeIndexedNonOptStringSource(payload)
		if err != nil {
			return nil, err
		}
		return actInsertRawPathSegmentAt{Index: idx, Value: src}, nil
	case "InsertRawPathSegmentAfter":
		idx, src, err := decodeIndexedNonOptStringSource(payload)
		if err != nil {
			return nil, err
		}
		return actInsertRawPathSegmentAfter{Index: idx, Value: src}, nil
	case "RemoveEmptyLastPathSegment":
		return actRemoveEmptyLastPathSegment{}, nil
	case "RemoveEmptyLastPathSegmentAndInsertNew":
		src, err := decodeChildStringSource(payload)
		if err != nil {
			return nil, err
		}
		return actRemoveEmptyLastPathSegmentAndInsertNew{Value: src}, nil
	case "RemoveFirstNPathSegments":
		var n int
		if err := decodePayload(payload, &n); err != nil {
			return nil, err
		}
		return actRemoveFirstNPathSegments{N: n}, nil
	case "RemoveLastNPathSegments":
		var n int
		if err := decodePayload(payload, &n); err != nil {
			return nil, err
		}
		return actRemoveLastNPathSegments{N: n}, nil
	case "KeepFirstNPathSegments":
		var n int
		if err := decodePayload(payload, &n); err != nil {
			return nil, err
		}
		return actKeepFirstNPathSegments{N: n}, nil
	case "KeepLastNPathSegments":
		var n int
		if err := decodePayload(payload, &n); err != nil {
			return nil, err
		}
		return actKeepLastNPathSegments{N: n}, nil

	case "SetQuery":
		src, err := decodeChildStringSource(payload)
		if err != nil {
			return nil, err
		}
		return actSetQuery{Value: src}, nil
	case "RemoveQuery":
		return actRemoveQuery{}, nil
	case "RemoveEmptyQuery":
		return actRemoveEmptyQuery{}, nil
	case "RemoveQueryParam":
		var name string
		if err := decodePayload(payload, &name); err != nil {
			return nil, err
		}
		return actRemoveQueryParam{Name: name}, nil
	case "AllowQueryParam":
		var name string
		if err := decodePayload(payload, &name); err != nil {
			return nil, err
		}
		return actAllowQueryParam{Name: name}, nil
	case "RemoveQueryParams":
		var set string
		if err := decodePayload(payload, &set); err != nil {
			return nil, err
		}
		return actRemoveQueryParams{Set: set}, nil
	case "AllowQueryParams":
		var set string
		if err := decodePayload(payload, &set); err != nil {
			return nil, err
		}
		return actAllowQueryParams{Set: set}, nil
	case "RemoveQueryParamsMatching":
		matcher, err := decodeChildStringMatcher(payload)
		if err != nil {
			return nil, err
		}
		return actRemoveQueryParamsMatching{Matcher: matcher}, nil
	case "AllowQueryParamsMatching":
		matcher, err := decodeChildStringMatcher(payload)
		if err != nil {
			return nil, err
		}
		return actAllowQueryParamsMatching{Matcher: matcher}, nil
	case "RemoveQueryParamsInSetOrStartingWithAnyInList":
		var raw struct {
			Set  string `yaml:"set"`
			List string `yaml:"list"`
		}
		if err := decodePayload(payload, &raw); err != nil {
			return nil, err
		}
		return actRemoveQueryParamsInSetOrStartingWithAnyInList{Set: raw.Set, List: raw.List}, nil
	case "RenameQueryParam":
		var raw struct {
			From urlmodel.QueryParamSelector `yaml:"from"`
			To   string                      `yaml:"to"`
		}
		if err := decodePayload(payload, &raw); err != nil {
			return nil, err
		}
		return actRenameQueryParam{From: raw.From, To: raw.To}, nil
	case "GetUrlFromQueryParam":
		var name string
		if err := decodePayload(payload, &name); err != nil {
			return nil, err
		}
		return actGetUrlFromQueryParam{Name: name}, nil

	case "RemoveFragment":
		return actRemoveFragment{}, nil
	case "RemoveEmptyFragment":
		return actRemoveEmptyFragment{}, nil

	case "SetPart":
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
		return actSetPart{Part: raw.Part, Value: value}, nil
	case "ModifyPart":
		var raw struct {
			Part         urlmodel.UrlPart `yaml:"part"`
			Modification yaml.Node        `yaml:"modification"`
		}
		if err := decodePayload(payload, &raw); err != nil {
			return nil, err
		}
		mod, err := DecodeStringModification(&raw.Modification)
		if err != nil {
			return nil, err
		}
		return actModifyPart{Part: raw.Part, Modification: mod}, nil
	case "ModifyPartIfSome":
		var raw struct {
			Part         urlmodel.UrlPart `yaml:"part"`
			Modification yaml.Node        `yaml:"modification"`
		}
		if err := decodePayload(payload, &raw); err != nil {
			return nil, err
		}
		mod, err := DecodeStringModification(&raw.Modification)
		if err != nil {
			return nil, err
		}
		return actModifyPartIfSome{Part: raw.Part, Modification: mod}, nil
	case "CopyPart":
		var raw struct {
			From urlmodel.UrlPart `yaml:"from"`
			To   urlmodel.UrlPart `yaml:"to"`
		}
		if err := decodePayload(payload, &raw); err != nil {
			return nil, err
		}
		return actCopyPart{From: raw.From, To: raw.To}, nil
	case "MovePart":
		var raw struct {
			From urlmodel.UrlPart `yaml:"from"`
			To   urlmodel.UrlPart `yaml:"to"`
		}
		if err := decodePayload(payload, &raw); err != nil {
			return nil, err
		}
		return actMovePart{From: raw.From, To: raw.To}, nil

	case "SetScratchpadFlag":
		var raw struct {
			Name  string `yaml:"name"`
			Value bool   `yaml:"value"`
		}
		if err := decodePayload(payload, &raw); err != nil {
			return nil, err
		}
		return actSetScratchpadFlag{Name: raw.Name, Value: raw.Value}, nil
	case "SetScratchpadVar":
		var raw struct {
			Name  string    `yaml:"name"`
			Value yaml.Node `yaml:"value"`
		}
		if err := decodePayload(payload, &raw); err != nil {
			return nil, err
		}
		value, err := DecodeStringSource(&raw.Value)
		if err != nil {
			return nil, err
		}
		return actSetScratchpadVar{Name: raw.Name, Value: value}, nil
	case "ModifyScratchpadVar":
		var raw struct {
			Name         string    `yaml:"name"`
			Modification yaml.Node `yaml:"modification"`
		}
		if err := decodePayload(payload, &raw); err != nil {
			return nil, err
		}
		mod, err := DecodeStringModification(&raw.Modification)
		if err != nil {
			return nil, err
		}
		return actModifyScratchpadVar{Name: raw.Name, Modification: mod}, nil

	case "ExpandRedirect":
		var raw struct {
			Headers               map[string]yaml.Node `yaml:"headers"`
			HttpClientConfigDiff  yaml.Node            `yaml:"http_client_config_diff"`
		}
		if err := decodePayload(payload, &raw); err != nil {
			return nil, err
		}
		headers := make(map[string]StringSource, len(raw.Headers))
		for name, n := range raw.Headers {
			n := n
			src, err := DecodeStringSource(&n)
			if err != nil {
				return nil, err
			}
			headers[name] = src
		}
		diff, err := decodeHttpClientConfigDiff(&raw.HttpClientConfigDiff)
		if err != nil {
			return nil, err
		}
		return actExpandRedirect{Headers: headers, Diff: diff}, nil
	case "CacheUrl":
		var raw struct {
			Subject yaml.Node `yaml:"subject"`
			Action  yaml.Node `yaml:"action"`
		}
		if err := decodePayload(payload, &raw); err != nil {
			return nil, err
		}
		subject, err := DecodeStringSource(&raw.Subject)
		if err != nil {
			return nil, err
		}
		inner, err := DecodeAction(&raw.Action)
		if err != nil {
			return nil, err
		}
		return actCacheUrl{Subject: subject, Inner: inner}, nil

	case "Common":
		var call CommonCall
		if err := decodePayload(payload, &call); err != nil {
			return nil, err
		}
		return actCommon{Call: call}, nil
	case "CommonCallArg":
		var name string
		if err := decodePayload(payload, &name); err != nil {
			return nil, err
		}
		return actCommonCallArg{Name: name}, nil

	default:
		return nil, fmt.Errorf("action: unknown variant %q", tag)
	}
}

func decodeChildAction(payload *yaml.Node) (Action, error) {
	if payload == nil {
		return nil, fmt.Errorf("action: missing payload")
	}
	return DecodeAction(payload)
}

func decodeActionList(payload *yaml.Node) ([]Action, error) {
	var nodes []yaml.Node
	if err := decodePayload(payload, &nodes); err != nil {
		return nil, err
	}
	items := make([]Action, len(nodes))
	for i := range nodes {
		a, err := DecodeAction(&nodes[i])
		if err != nil {
			return nil, err
		}
		items[i] = a
	}
	return items, nil
}

func decodeChildStringSource(payload *yaml.Node) (StringSource, error) {
	if payload == nil {
		return nil, fmt.Errorf("action: missing payload")
	}
	return DecodeStringSource(payload)
}

func decodeChildStringMatcher(payload *yaml.Node) (StringMatcher, error) {
	if payload == nil {
		return nil, fmt.Errorf("action: missing payload")
	}
	return DecodeStringMatcher(payload)
}

// decodeIndexedStringSource decodes a {index, value} payload where value
// may be omitted/null (an Option<string> setter: nil clears the segment).
func decodeIndexedStringSource(payload *yaml.Node) (int, StringSource, error) {
	var raw struct {
		Index int       `yaml:"index"`
		Value yaml.Node `yaml:"value"`
	}
	if err := decodePayload(payload, &raw); err != nil {
		return 0, nil, err
	}
	value, err := DecodeStringSource(&raw.Value)
	if err != nil {
		return 0, nil, err
	}
	return raw.Index, value, nil
}

// decodeIndexedNonOptStringSource decodes a {index, value} payload whose
// value is a required (non-optional) string, used by Insert* variants.
func decodeIndexedNonOptStringSource(payload *yaml.Node) (int, StringSource, error) {
	return decodeIndexedStringSource(payload)
}

// decodeActionMap decodes the `map` field of a *Map action payload into a
// params.Map[Action], reusing the generic lookup table the params package
// already implements rather than hand-rolling dispatch/lookup logic again.
func decodeActionMap(payload *yaml.Node) (params.Map[Action], error) {
	var raw struct {
		Map map[string]yaml.Node `yaml:"map"`
	}
	if err := decodePayload(payload, &raw); err != nil {
		return params.Map[Action]{}, err
	}
	var rawExtra struct {
		IfNull yaml.Node `yaml:"if_null"`
		Else   yaml.Node `yaml:"else"`
	}
	if err := decodePayload(payload, &rawExtra); err != nil {
		return params.Map[Action]{}, err
	}
	m := params.Map[Action]{Entries: make(map[string]Action, len(raw.Map))}
	for k, n := range raw.Map {
		n := n
		a, err := DecodeAction(&n)
		if err != nil {
			return params.Map[Action]{}, err
		}
		m.Entries[k] = a
	}
	if rawExtra.IfNull.Kind != 0 {
		a, err := DecodeAction(&rawExtra.IfNull)
		if err != nil {
			return params.Map[Action]{}, err
		}
		m.IfNull = &a
	}
	if rawExtra.Else.Kind != 0 {
		a, err := DecodeAction(&rawExtra.Else)
		if err != nil {
			return params.Map[Action]{}, err
		}
		m.Else = &a
	}
	return m, nil
}

func decodeHttpClientConfigDiff(node *yaml.Node) (*httpconfig.HttpClientConfigDiff, error) {
	if node == nil || node.Kind == 0 {
		return nil, nil
	}
	var raw struct {
		DefaultHeaders map[string][]string `yaml:"default_headers"`
		HTTPSOnly      *bool               `yaml:"https_only"`
		Referer        *string             `yaml:"referer"`
		NoProxy        []string            `yaml:"no_proxy"`
		TimeoutMs      *int64              `yaml:"timeout_ms"`
		RedirectLimit  *int                `yaml:"redirect_limit"`
	}
	if err := node.Decode(&raw); err != nil {
		return nil, fmt.Errorf("action: http_client_config_diff: %w", err)
	}
	diff := &httpconfig.HttpClientConfigDiff{
		DefaultHeaders: raw.DefaultHeaders,
		HTTPSOnly:      raw.HTTPSOnly,
		Referer:        raw.Referer,
		NoProxy:        raw.NoProxy,
	}
	if raw.TimeoutMs != nil {
		d := time.Duration(*raw.TimeoutMs) * time.Millisecond
		diff.Timeout = &d
	}
	if raw.RedirectLimit != nil {
		policy := httpconfig.LimitedRedirects(*raw.RedirectLimit)
		diff.Redirect = &policy
	}
	return diff, nil
}

// --- control ---------------------------------------------------------

type actNone struct{}

func (actNone) Apply(*TaskState) error { return nil }

type actError struct{ Message string }

func (a actError) Apply(*TaskState) error { return &ExplicitError{Message: a.Message} }

type actDebug struct{ Inner Action }

func (a actDebug) Apply(ts *TaskState) error {
	err := a.Inner.Apply(ts)
	if ts.Logger != nil {
		ts.Logger.Sugar().Debugw("action debug", "url", ts.Url.String(), "err", err)
	}
	return err
}

type actIgnoreError struct{ Inner Action }

func (a actIgnoreError) Apply(ts *TaskState) error {
	_ = a.Inner.Apply(ts)
	return nil
}

// actRevertOnError is the one composite action that does not follow the
// default non-reverting failure mode: it snapshots url+scratchpad before
// delegating and restores both on any error, then re-raises the error.
type actRevertOnError struct{ Inner Action }

func (a actRevertOnError) Apply(ts *TaskState) error {
	urlSnapshot := ts.Url.Clone()
	scratchpadSnapshot := ts.Scratchpad.Clone()
	if err := a.Inner.Apply(ts); err != nil {
		*ts.Url = *urlSnapshot
		ts.Scratchpad.Restore(scratchpadSnapshot)
		return err
	}
	return nil
}

type actTryElse struct{ Try, Else Action }

func (a actTryElse) Apply(ts *TaskState) error {
	if err := a.Try.Apply(ts); err == nil {
		return nil
	} else if elseErr := a.Else.Apply(ts); elseErr != nil {
		return &TryElseError{Try: err, Else: elseErr}
	}
	return nil
}

type actFirstNotError struct{ Items []Action }

func (a actFirstNotError) Apply(ts *TaskState) error {
	var errs []error
	for _, item := range a.Items {
		if err := item.Apply(ts); err == nil {
			return nil
		} else {
			errs = append(errs, err)
		}
	}
	return &FirstNotErrorErrors{Errors: errs}
}

type actIf struct {
	If         Condition
	Then, Else Action
}

func (a actIf) Apply(ts *TaskState) error {
	ok, err := a.If.Check(ts.View())
	if err != nil {
		return err
	}
	if ok {
		return a.Then.Apply(ts)
	}
	return a.Else.Apply(ts)
}

type actAll struct{ Items []Action }

func (a actAll) Apply(ts *TaskState) error {
	for _, item := range a.Items {
		if err := item.Apply(ts); err != nil {
			return err
		}
	}
	return nil
}

// actRepeat applies Actions up to Limit times, stopping early once an
// iteration leaves both url and scratchpad unchanged.
type actRepeat struct {
	Actions []Action
	Limit   int
}

func (a actRepeat) Apply(ts *TaskState) error {
	for i := 0; i < a.Limit; i++ {
		beforeURL := ts.Url.String()
		beforeScratchpad := fmt.Sprintf("%v|%v", ts.Scratchpad.Flags, ts.Scratchpad.Vars)
		for _, item := range a.Actions {
			if err := item.Apply(ts); err != nil {
				return err
			}
		}
		afterURL := ts.Url.String()
		afterScratchpad := fmt.Sprintf("%v|%v", ts.Scratchpad.Flags, ts.Scratchpad.Vars)
		if beforeURL == afterURL && beforeScratchpad == afterScratchpad {
			break
		}
	}
	return nil
}

// --- map dispatch ------------------------------------------------------

type actPartMap struct {
	Part urlmodel.UrlPart
	Map  params.Map[Action]
}

func (a actPartMap) Apply(ts *TaskState) error {
	val, ok := a.Part.Get(ts.Url)
	var key *string
	if ok {
		key = &val
	}
	action, found := a.Map.Lookup(key)
	if !found {
		return nil
	}
	return action.Apply(ts)
}

type actStringMap struct {
	Value StringSource
	Map   params.Map[Action]
}

func (a actStringMap) Apply(ts *TaskState) error {
	val, err := a.Value.Get(ts.View())
	if err != nil {
		return err
	}
	action, found := a.Map.Lookup(val)
	if !found {
		return nil
	}
	return action.Apply(ts)
}

type actPartNamedPartitioning struct {
	NamedPartitioning string
	Part              urlmodel.UrlPart
	Map               params.Map[Action]
}

func (a actPartNamedPartitioning) Apply(ts *TaskState) error {
	np, ok := ts.Params.Partitionings[a.NamedPartitioning]
	if !ok {
		return fmt.Errorf("action PartNamedPartitioning %q: %w", a.NamedPartitioning, ErrPartitioningNotFound)
	}
	val, ok := a.Part.Get(ts.Url)
	if !ok {
		action, found := a.Map.Lookup(nil)
		if !found {
			return nil
		}
		return action.Apply(ts)
	}
	bucket, _ := np.PartitionOf(val)
	var key *string
	if bucket != "" {
		key = &bucket
	}
	action, found := a.Map.Lookup(key)
	if !found {
		return nil
	}
	return action.Apply(ts)
}

type actStringNamedPartitioning struct {
	NamedPartitioning string
	Value             StringSource
	Map               params.Map[Action]
}

func (a actStringNamedPartitioning) Apply(ts *TaskState) error {
	np, ok := ts.Params.Partitionings[a.NamedPartitioning]
	if !ok {
		return fmt.Errorf("action StringNamedPartitioning %q: %w", a.NamedPartitioning, ErrPartitioningNotFound)
	}
	val, err := a.Value.Get(ts.View())
	if err != nil {
		return err
	}
	var key *string
	if val != nil {
		bucket, _ := np.PartitionOf(*val)
		if bucket != "" {
			key = &bucket
		}
	}
	action, found := a.Map.Lookup(key)
	if !found {
		return nil
	}
	return action.Apply(ts)
}

// --- whole URL -----------------------------------------------------------

type actSetWhole struct{ Value StringSource }

func (a actSetWhole) Apply(ts *TaskState) error {
	val, err := a.Value.Get(ts.View())
	if err != nil {
		return err
	}
	if val == nil {
		return ErrUnexpectedNone
	}
	return ts.Url.SetWhole(*val)
}

type actJoin struct{ Value StringSource }

func (a actJoin) Apply(ts *TaskState) error {
	val, err := a.Value.Get(ts.View())
	if err != nil {
		return err
	}
	if val == nil {
		return ErrUnexpectedNone
	}
	return ts.Url.Join(*val)
}

// --- host surgery --------------------------------------------------------

func resolveRequiredString(src StringSource, ts *TaskState) (string, error) {
	val, err := src.Get(ts.View())
	if err != nil {
		return "", err
	}
	if val == nil {
		return "", ErrUnexpectedNone
	}
	return *val, nil
}

type actSetScheme struct{ Value StringSource }

func (a actSetScheme) Apply(ts *TaskState) error {
	v, err := resolveRequiredString(a.Value, ts)
	if err != nil {
		return err
	}
	ts.Url.SetScheme(v)
	return nil
}

type actSetHost struct{ Value StringSource }

func (a actSetHost) Apply(ts *TaskState) error {
	v, err := resolveRequiredString(a.Value, ts)
	if err != nil {
		return err
	}
	return ts.Url.SetHost(v)
}

type actSetSubdomain struct{ Value StringSource }

func (a actSetSubdomain) Apply(ts *TaskState) error {
	val, err := a.Value.Get(ts.View())
	if err != nil {
		return err
	}
	if val == nil {
		return ts.Url.SetSubdomain("")
	}
	return ts.Url.SetSubdomain(*val)
}

type actSetRegDomain struct{ Value StringSource }

func (a actSetRegDomain) Apply(ts *TaskState) error {
	v, err := resolveRequiredString(a.Value, ts)
	if err != nil {
		return err
	}
	return ts.Url.SetRegDomain(v)
}

type actSetDomain struct{ Value StringSource }

func (a actSetDomain) Apply(ts *TaskState) error {
	v, err := resolveRequiredString(a.Value, ts)
	if err != nil {
		return err
	}
	return ts.Url.SetDomain(v)
}

type actSetDomainMiddle struct{ Value StringSource }

func (a actSetDomainMiddle) Apply(ts *TaskState) error {
	v, err := resolveRequiredString(a.Value, ts)
	if err != nil {
		return err
	}
	return ts.Url.SetDomainMiddle(v)
}

type actSetNotDomainSuffix struct{ Value StringSource }

func (a actSetNotDomainSuffix) Apply(ts *TaskState) error {
	val, err := a.Value.Get(ts.View())
	if err != nil {
		return err
	}
	if val == nil {
		return ts.Url.SetNotDomainSuffix("")
	}
	return ts.Url.SetNotDomainSuffix(*val)
}

type actSetDomainSuffix struct{ Value StringSource }

func (a actSetDomainSuffix) Apply(ts *TaskState) error {
	val, err := a.Value.Get(ts.View())
	if err != nil {
		return err
	}
	if val == nil {
		return ts.Url.SetDomainSuffixRaw("")
	}
	return ts.Url.SetDomainSuffix(*val)
}

type actEnsureFqdnPeriod struct{}

func (actEnsureFqdnPeriod) Apply(ts *TaskState) error { return ts.Url.EnsureFqdnPeriod() }

type actRemoveFqdnPeriod struct{}

func (actRemoveFqdnPeriod) Apply(ts *TaskState) error { return ts.Url.RemoveFqdnPeriod() }

type actSetDomainSegment struct {
	Index int
	Value StringSource
}

func (a actSetDomainSegment) Apply(ts *TaskState) error {
	val, err := a.Value.Get(ts.View())
	if err != nil {
		return err
	}
	return ts.Url.SetDomainSegment(a.Index, val)
}

type actInsertDomainSegmentAt struct {
	Index int
	Value StringSource
}

func (a actInsertDomainSegmentAt) Apply(ts *TaskState) error {
	v, err := resolveRequiredString(a.Value, ts)
	if err != nil {
		return err
	}
	return ts.Url.InsertDomainSegmentAt(a.Index, v)
}

type actInsertDomainSegmentAfter struct {
	Index int
	Value StringSource
}

func (a actInsertDomainSegmentAfter) Apply(ts *TaskState) error {
	v, err := resolveRequiredString(a.Value, ts)
	if err != nil {
		return err
	}
	return ts.Url.InsertDomainSegmentAfter(a.Index, v)
}

type actSetSubdomainSegment struct {
	Index int
	Value StringSource
}

func (a actSetSubdomainSegment) Apply(ts *TaskState) error {
	val, err := a.Value.Get(ts.View())
	if err != nil {
		return err
	}
	return ts.Url.SetSubdomainSegment(a.Index, val)
}

type actInsertSubdomainSegmentAt struct {
	Index int
	Value StringSource
}

func (a actInsertSubdomainSegmentAt) Apply(ts *TaskState) error {
	v, err := resolveRequiredString(a.Value, ts)
	if err != nil {
		return err
	}
	return ts.Url.InsertSubdomainSegmentAt(a.Index, v)
}

type actInsertSubdomainSegmentAfter struct {
	Index int
	Value StringSource
}

func (a actInsertSubdomainSegmentAfter) Apply(ts *TaskState) error {
	v, err := resolveRequiredString(a.Value, ts)
	if err != nil {
		return err
	}
	return ts.Url.InsertSubdomainSegmentAfter(a.Index, v)
}

type actSetDomainSuffixSegment struct {
	Index int
	Value StringSource
}

func (a actSetDomainSuffixSegment) Apply(ts *TaskState) error {
	val, err := a.Value.Get(ts.View())
	if err != nil {
		return err
	}
	return ts.Url.SetDomainSuffixSegment(a.Index, val)
}

type actInsertDomainSuffixSegmentAt struct {
	Index int
	Value StringSource
}

func (a actInsertDomainSuffixSegmentAt) Apply(ts *TaskState) error {
	v, err := resolveRequiredString(a.Value, ts)
	if err != nil {
		return err
	}
	return ts.Url.InsertDomainSuffixSegmentAt(a.Index, v)
}

type actInsertDomainSuffixSegmentAfter struct {
	Index int
	Value StringSource
}

func (a actInsertDomainSuffixSegmentAfter) Apply(ts *TaskState) error {
	v, err := resolveRequiredString(a.Value, ts)
	if err != nil {
		return err
	}
	return ts.Url.InsertDomainSuffixSegmentAfter(a.Index, v)
}

// --- path surgery ----------------------------------------------------------

type actSetPath struct{ Value StringSource }

func (a actSetPath) Apply(ts *TaskState) error {
	v, err := resolveRequiredString(a.Value, ts)
	if err != nil {
		return err
	}
	ts.Url.SetPath(v)
	return nil
}

type actRemovePathSegment struct{ Index int }

func (a actRemovePathSegment) Apply(ts *TaskState) error { return ts.Url.RemovePathSegment(a.Index) }

type actSetPathSegment struct {
	Index int
	Value StringSource
}

func (a actSetPathSegment) Apply(ts *TaskState) error {
	val, err := a.Value.Get(ts.View())
	if err != nil {
		return err
	}
	return ts.Url.SetPathSegment(a.Index, val)
}

type actSetRawPathSegment struct {
	Index int
	Value StringSource
}

func (a actSetRawPathSegment) Apply(ts *TaskState) error {
	val, err := a.Value.Get(ts.View())
	if err != nil {
		return err
	}
	return ts.Url.SetRawPathSegment(a.Index, val)
}

type actInsertPathSegmentAt struct {
	Index int
	Value StringSource
}

func (a actInsertPathSegmentAt) Apply(ts *TaskState) error {
	v, err := resolveRequiredString(a.Value, ts)
	if err != nil {
		return err
	}
	return ts.Url.InsertPathSegmentAt(a.Index, v)
}

type actInsertPathSegmentAfter struct {
	Index int
	Value StringSource
}

func (a actInsertPathSegmentAfter) Apply(ts *TaskState) error {
	v, err := resolveRequiredString(a.Value, ts)
	if err != nil {
		return err
	}
	return ts.Url.InsertPathSegmentAfter(a.Index, v)
}

type actInsertRawPathSegmentAt struct {
	Index int
	Value StringSource
}

func (a actInsertRawPathSegmentAt) Apply(ts *TaskState) error {
	v, err := resolveRequiredString(a.Value, ts)
	if err != nil {
		return err
	}
	return ts.Url.InsertRawPathSegmentAt(a.Index, v)
}

type actInsertRawPathSegmentAfter struct {
	Index int
	Value StringSource
}

func (a actInsertRawPathSegmentAfter) Apply(ts *TaskState) error {
	v, err := resolveRequiredString(a.Value, ts)
	if err != nil {
		return err
	}
	return ts.Url.InsertRawPathSegmentAfter(a.Index, v)
}

type actRemoveEmptyLastPathSegment struct{}

func (actRemoveEmptyLastPathSegment) Apply(ts *TaskState) error {
	return ts.Url.RemoveEmptyLastPathSegment()
}

type actRemoveEmptyLastPathSegmentAndInsertNew struct{ Value StringSource }

func (a actRemoveEmptyLastPathSegmentAndInsertNew) Apply(ts *TaskState) error {
	v, err := resolveRequiredString(a.Value, ts)
	if err != nil {
		return err
	}
	return ts.Url.RemoveEmptyLastPathSegmentAndInsertNew(v)
}

type actRemoveFirstNPathSegments struct{ N int }

func (a actRemoveFirstNPathSegments) Apply(ts *TaskState) error {
	return ts.Url.RemoveFirstNPathSegments(a.N)
}

type actRemoveLastNPathSegments struct{ N int }

func (a actRemoveLastNPathSegments) Apply(ts *TaskState) error {
	return ts.Url.RemoveLastNPathSegments(a.N)
}

type actKeepFirstNPathSegments struct{ N int }

func (a actKeepFirstNPathSegments) Apply(ts *TaskState) error {
	return ts.Url.KeepFirstNPathSegments(a.N)
}

type actKeepLastNPathSegments struct{ N int }

func (a actKeepLastNPathSegments) Apply(ts *TaskState) error {
	return ts.Url.KeepLastNPathSegments(a.N)
}

// --- query surgery -----------------------------------------------------

type actSetQuery struct{ Value StringSource }

func (a actSetQuery) Apply(ts *TaskState) error {
	v, err := resolveRequiredString(a.Value, ts)
	if err != nil {
		return err
	}
	ts.Url.SetQuery(v)
	return nil
}

type actRemoveQuery struct{}

func (actRemoveQuery) Apply(ts *TaskState) error { ts.Url.RemoveQuery(); return nil }

type actRemoveEmptyQuery struct{}

func (actRemoveEmptyQuery) Apply(ts *TaskState) error { ts.Url.RemoveEmptyQuery(); return nil }

type actRemoveQueryParam struct{ Name string }

func (a actRemoveQueryParam) Apply(ts *TaskState) error {
	ts.Url.RemoveQueryParam(a.Name)
	return nil
}

type actAllowQueryParam struct{ Name string }

func (a actAllowQueryParam) Apply(ts *TaskState) error {
	ts.Url.AllowQueryParam(a.Name)
	return nil
}

type actRemoveQueryParams struct{ Set string }

func (a actRemoveQueryParams) Apply(ts *TaskState) error {
	set, ok := ts.Params.Sets[a.Set]
	if !ok {
		return fmt.Errorf("action RemoveQueryParams set %q: %w", a.Set, ErrNamedSetNotFound)
	}
	ts.Url.RemoveQueryParams(set)
	return nil
}

type actAllowQueryParams struct{ Set string }

func (a actAllowQueryParams) Apply(ts *TaskState) error {
	set, ok := ts.Params.Sets[a.Set]
	if !ok {
		return fmt.Errorf("action AllowQueryParams set %q: %w", a.Set, ErrNamedSetNotFound)
	}
	ts.Url.AllowQueryParams(set)
	return nil
}

type actRemoveQueryParamsMatching struct{ Matcher StringMatcher }

func (a actRemoveQueryParamsMatching) Apply(ts *TaskState) error {
	v := ts.View()
	var matchErr error
	ts.Url.RemoveQueryParamsMatching(func(name string) bool {
		if matchErr != nil {
			return false
		}
		ok, err := a.Matcher.Match(&name, v)
		if err != nil {
			matchErr = err
			return false
		}
		return ok
	})
	return matchErr
}

type actAllowQueryParamsMatching struct{ Matcher StringMatcher }

func (a actAllowQueryParamsMatching) Apply(ts *TaskState) error {
	v := ts.View()
	var matchErr error
	ts.Url.AllowQueryParamsMatching(func(name string) bool {
		if matchErr != nil {
			return false
		}
		ok, err := a.Matcher.Match(&name, v)
		if err != nil {
			matchErr = err
			return false
		}
		return ok
	})
	return matchErr
}

type actRemoveQueryParamsInSetOrStartingWithAnyInList struct{ Set, List string }

func (a actRemoveQueryParamsInSetOrStartingWithAnyInList) Apply(ts *TaskState) error {
	set, ok := ts.Params.Sets[a.Set]
	if !ok {
		return fmt.Errorf("action RemoveQueryParamsInSetOrStartingWithAnyInList set %q: %w", a.Set, ErrNamedSetNotFound)
	}
	list, ok := ts.Params.Lists[a.List]
	if !ok {
		return fmt.Errorf("action RemoveQueryParamsInSetOrStartingWithAnyInList list %q: %w", a.List, ErrNamedListNotFound)
	}
	ts.Url.RemoveQueryParamsInSetOrStartingWithAnyInList(set, list)
	return nil
}

type actRenameQueryParam struct {
	From urlmodel.QueryParamSelector
	To   string
}

func (a actRenameQueryParam) Apply(ts *TaskState) error {
	return ts.Url.RenameQueryParam(a.From, a.To)
}

type actGetUrlFromQueryParam struct{ Name string }

func (a actGetUrlFromQueryParam) Apply(ts *TaskState) error {
	return ts.Url.GetUrlFromQueryParam(a.Name)
}

// --- fragment ------------------------------------------------------------

type actRemoveFragment struct{}

func (actRemoveFragment) Apply(ts *TaskState) error { ts.Url.RemoveFragment(); return nil }

type actRemoveEmptyFragment struct{}

func (actRemoveEmptyFragment) Apply(ts *TaskState) error { ts.Url.RemoveEmptyFragment(); return nil }

// --- generic part ----------------------------------------------------------

type actSetPart struct {
	Part  urlmodel.UrlPart
	Value StringSource
}

func (a actSetPart) Apply(ts *TaskState) error {
	val, err := a.Value.Get(ts.View())
	if err != nil {
		return err
	}
	return a.Part.Set(ts.Url, val)
}

type actModifyPart struct {
	Part         urlmodel.UrlPart
	Modification StringModification
}

func (a actModifyPart) Apply(ts *TaskState) error {
	raw, ok := a.Part.Get(ts.Url)
	var val *string
	if ok {
		val = &raw
	}
	if err := a.Modification.Apply(&val, ts.View()); err != nil {
		return err
	}
	return a.Part.Set(ts.Url, val)
}

// actModifyPartIfSome applies Modification only when the part is present,
// leaving it untouched (not an error) when absent.
type actModifyPartIfSome struct {
	Part         urlmodel.UrlPart
	Modification StringModification
}

func (a actModifyPartIfSome) Apply(ts *TaskState) error {
	raw, ok := a.Part.Get(ts.Url)
	if !ok {
		return nil
	}
	val := &raw
	if err := a.Modification.Apply(&val, ts.View()); err != nil {
		return err
	}
	return a.Part.Set(ts.Url, val)
}

type actCopyPart struct{ From, To urlmodel.UrlPart }

func (a actCopyPart) Apply(ts *TaskState) error {
	raw, ok := a.From.Get(ts.Url)
	var val *string
	if ok {
		val = &raw
	}
	return a.To.Set(ts.Url, val)
}

// actMovePart copies From to To then clears From; if From and To name the
// same part the net effect is clearing it.
type actMovePart struct{ From, To urlmodel.UrlPart }

func (a actMovePart) Apply(ts *TaskState) error {
	raw, ok := a.From.Get(ts.Url)
	var val *string
	if ok {
		val = &raw
	}
	if err := a.To.Set(ts.Url, val); err != nil {
		return err
	}
	return a.From.Set(ts.Url, nil)
}

// --- scratchpad ------------------------------------------------------------

type actSetScratchpadFlag struct {
	Name  string
	Value bool
}

func (a actSetScratchpadFlag) Apply(ts *TaskState) error {
	ts.Scratchpad.SetFlag(a.Name, a.Value)
	return nil
}

type actSetScratchpadVar struct {
	Name  string
	Value StringSource
}

func (a actSetScratchpadVar) Apply(ts *TaskState) error {
	val, err := a.Value.Get(ts.View())
	if err != nil {
		return err
	}
	ts.Scratchpad.SetVar(a.Name, val)
	return nil
}

type actModifyScratchpadVar struct {
	Name         string
	Modification StringModification
}

func (a actModifyScratchpadVar) Apply(ts *TaskState) error {
	raw, ok := ts.Scratchpad.Var(a.Name)
	var val *string
	if ok {
		val = &raw
	}
	if err := a.Modification.Apply(&val, ts.View()); err != nil {
		return err
	}
	ts.Scratchpad.SetVar(a.Name, val)
	return nil
}

// --- HTTP redirect expansion / arbitrary cached action --------------------

type actExpandRedirect struct {
	Headers map[string]StringSource
	Diff    *httpconfig.HttpClientConfigDiff
}

func (a actExpandRedirect) Apply(ts *TaskState) error {
	v := ts.View()
	store := ts.Cache
	current := ts.Url.String()

	if store != nil && ts.Params.ReadCache {
		release := ts.Unthreader.Unthread(ts.ID)
		entry, err := store.Read(context.Background(), cache.EntryKeys{Subject: "redirect", Key: current})
		release()
		if err != nil {
			return err
		}
		if entry != nil {
			if entry.Value == nil {
				return ErrCachedValueIsNone
			}
			return ts.Url.SetWhole(*entry.Value)
		}
	}

	headers := make(map[string]string, len(a.Headers))
	for name, src := range a.Headers {
		val, err := src.Get(v)
		if err != nil {
			return err
		}
		if val != nil {
			headers[name] = *val
		}
	}

	cfg := v.HttpClientConfig()
	if a.Diff != nil {
		cfg = a.Diff.Apply(cfg)
	}

	started := time.Now()
	resp, err := doHttpRequest(v, cfg, "GET", current, headers)
	elapsed := time.Since(started)
	if err != nil {
		return err
	}

	var next string
	if resp.StatusCode >= 300 && resp.StatusCode < 400 && resp.Location != "" {
		next = resp.Location
	} else {
		next = current
	}
	if err := ts.Url.SetWhole(next); err != nil {
		return err
	}

	if store != nil && ts.Params.WriteCache {
		release := ts.Unthreader.Unthread(ts.ID)
		resultURL := ts.Url.String()
		writeErr := store.Write(context.Background(), cache.NewEntry{
			Subject:  "redirect",
			Key:      current,
			Value:    &resultURL,
			Duration: elapsed,
		})
		release()
		if writeErr != nil {
			return writeErr
		}
	}
	return nil
}

// actCacheUrl caches the resulting URL (not scratchpad effects) of an
// arbitrary inner action, keyed by the pre-action URL.
type actCacheUrl struct {
	Subject StringSource
	Inner   Action
}

func (a actCacheUrl) Apply(ts *TaskState) error {
	v := ts.View()
	subject, err := a.Subject.Get(v)
	if err != nil {
		return err
	}
	if subject == nil {
		return ErrUnexpectedNone
	}
	store := ts.Cache
	current := ts.Url.String()

	if store != nil && ts.Params.ReadCache {
		release := ts.Unthreader.Unthread(ts.ID)
		entry, err := store.Read(context.Background(), cache.EntryKeys{Subject: *subject, Key: current})
		release()
		if err != nil {
			return err
		}
		if entry != nil {
			if entry.Value == nil {
				return ErrCachedValueIsNone
			}
			return ts.Url.SetWhole(*entry.Value)
		}
	}

	started := time.Now()
	if err := a.Inner.Apply(ts); err != nil {
		return err
	}
	elapsed := time.Since(started)

	if store != nil && ts.Params.WriteCache {
		release := ts.Unthreader.Unthread(ts.ID)
		resultURL := ts.Url.String()
		writeErr := store.Write(context.Background(), cache.NewEntry{
			Subject:  *subject,
			Key:      current,
			Value:    &resultURL,
			Duration: elapsed,
		})
		release()
		if writeErr != nil {
			return writeErr
		}
	}
	return nil
}

// --- commons -------------------------------------------------------------

type actCommon struct{ Call CommonCall }

func (a actCommon) Apply(ts *TaskState) error {
	target, ok := ts.Commons.Actions[a.Call.Name]
	if !ok {
		return fmt.Errorf("action Common %q: %w", a.Call.Name, ErrCommonNotFound)
	}
	frame := buildCommonCallArgs(a.Call.Args, ts.View())
	// WithCommonArgs shares Url/Scratchpad with ts (only CommonArgs differs),
	// so the callee's mutations are already visible through ts directly.
	callee := ts.WithCommonArgs(frame)
	return target.Apply(callee)
}

type actCommonCallArg struct{ Name string }

func (a actCommonCallArg) Apply(ts *TaskState) error {
	if ts.CommonArgs == nil {
		return fmt.Errorf("action CommonCallArg %q: %w", a.Name, ErrCommonArgNotFound)
	}
	raw, ok := ts.CommonArgs.Actions[a.Name]
	if !ok {
		return fmt.Errorf("action CommonCallArg %q: %w", a.Name, ErrCommonArgNotFound)
	}
	action, ok := raw.(Action)
	if !ok {
		return fmt.Errorf("action CommonCallArg %q: %w", a.Name, ErrCommonArgNotFound)
	}
	return action.Apply(ts)
}

// --- custom ----------------------------------------------------------------

// CustomAction is a host-supplied escape hatch excluded from serialized
// documents, mirroring CustomStringSource/CustomCondition.
type CustomAction func(ts *TaskState) error

func (f CustomAction) Apply(ts *TaskState) error { return f(ts) }
