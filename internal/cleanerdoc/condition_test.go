package cleanerdoc

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgecomet/urlcleaner/internal/cache"
	"github.com/edgecomet/urlcleaner/internal/taskstate"
)

func checkCondition(t *testing.T, doc string, ts *TaskState) bool {
	t.Helper()
	ok, err := mustCondition(t, doc).Check(ts.View())
	require.NoError(t, err)
	return ok
}

func TestConditionConstantsAndLogic(t *testing.T) {
	ts := newTestState(t, "https://example.com/")

	assert.True(t, checkCondition(t, `Always`, ts))
	assert.False(t, checkCondition(t, `Never`, ts))
	assert.True(t, checkCondition(t, `{Not: Never}`, ts))
	assert.True(t, checkCondition(t, `{All: [Always, Always]}`, ts))
	assert.False(t, checkCondition(t, `{All: [Always, Never]}`, ts))
	assert.True(t, checkCondition(t, `{Any: [Never, Always]}`, ts))
	assert.True(t, checkCondition(t, `{If: {if: Always, then: Always, else: Never}}`, ts))
	assert.False(t, checkCondition(t, `{If: {if: Never, then: Always, else: Never}}`, ts))
}

func TestConditionShortCircuit(t *testing.T) {
	ts := newTestState(t, "https://example.com/")

	// The erroring branch after the decisive one must never run.
	assert.False(t, checkCondition(t, `{All: [Never, {Error: unreachable}]}`, ts))
	assert.True(t, checkCondition(t, `{Any: [Always, {Error: unreachable}]}`, ts))
}

func TestConditionErrorHandling(t *testing.T) {
	ts := newTestState(t, "https://example.com/")

	_, err := mustCondition(t, `{Error: boom}`).Check(ts.View())
	require.Error(t, err)

	assert.True(t, checkCondition(t, `{TreatErrorAsPass: {Error: boom}}`, ts))
	assert.False(t, checkCondition(t, `{TreatErrorAsFail: {Error: boom}}`, ts))
	assert.True(t, checkCondition(t, `{TryElse: {try: {Error: boom}, else: Always}}`, ts))
	assert.True(t, checkCondition(t, `{FirstNotError: [{Error: a}, Always]}`, ts))
}

func TestConditionPartTests(t *testing.T) {
	ts := newTestState(t, "https://sub.example.co.uk/path?q=1")
	ts.Params.Sets["good_hosts"] = map[string]struct{}{"sub.example.co.uk": {}}

	assert.True(t, checkCondition(t, `{PartIs: {part: RegDomain, value: example.co.uk}}`, ts))
	assert.False(t, checkCondition(t, `{PartIs: {part: RegDomain, value: other.com}}`, ts))
	assert.True(t, checkCondition(t, `{PartIs: {part: Fragment, value: null}}`, ts))
	assert.True(t, checkCondition(t, `{PartIsOneOf: {part: Subdomain, values: [www, sub]}}`, ts))
	assert.True(t, checkCondition(t, `{PartIsInSet: {part: Host, set: good_hosts}}`, ts))
	assert.True(t, checkCondition(t, `{PartMatches: {part: Path, matcher: {StartsWith: /pa}}}`, ts))
	assert.True(t, checkCondition(t, `{PartContains: {part: Host, value: example}}`, ts))
}

func TestConditionPartIsInSetMissingSetErrors(t *testing.T) {
	ts := newTestState(t, "https://example.com/")
	_, err := mustCondition(t, `{PartIsInSet: {part: Host, set: nope}}`).Check(ts.View())
	assert.True(t, errors.Is(err, ErrNamedSetNotFound))
}

func TestConditionStringTests(t *testing.T) {
	ts := newTestState(t, "https://example.com/")
	ts.Scratchpad.SetVar("mode", strptr("strict"))

	assert.True(t, checkCondition(t, `{StringIs: {value: {Var: {type: Scratchpad, name: mode}}, compare: strict}}`, ts))
	assert.True(t, checkCondition(t, `{StringMatches: {value: hello, matcher: {StartsWith: he}}}`, ts))
}

func TestConditionFlagScopes(t *testing.T) {
	ts := newTestState(t, "https://example.com/")
	ts.Params.Flags["from_params"] = struct{}{}
	ts.Scratchpad.SetFlag("from_scratchpad", true)
	ts.Context = &taskstate.TaskContext{Flags: map[string]struct{}{"from_task": {}}}
	ts.JobContext = &taskstate.JobContext{Flags: map[string]struct{}{"from_job": {}}}

	assert.True(t, checkCondition(t, `{FlagIsSet: from_params}`, ts))
	assert.False(t, checkCondition(t, `{FlagIsSet: missing}`, ts))
	assert.True(t, checkCondition(t, `{FlagIsSet: {type: Scratchpad, name: from_scratchpad}}`, ts))
	assert.True(t, checkCondition(t, `{TaskContextFlagIsSet: from_task}`, ts))
	assert.True(t, checkCondition(t, `{JobContextFlagIsSet: from_job}`, ts))
}

func TestConditionIsCached(t *testing.T) {
	ts := newTestState(t, "https://example.com/")
	doc := `{IsCached: {subject: redirect, key: "https://t.co/x"}}`

	assert.False(t, checkCondition(t, doc, ts))

	target := "https://long.example.org/"
	require.NoError(t, ts.Cache.Write(context.Background(), cache.NewEntry{
		Subject: "redirect",
		Key:     "https://t.co/x",
		Value:   &target,
	}))
	assert.True(t, checkCondition(t, doc, ts))
}

func TestConditionCommon(t *testing.T) {
	ts := newTestState(t, "https://example.com/")
	named, err := DecodeCondition(yamlNode(t, `{PartIs: {part: Host, value: example.com}}`))
	require.NoError(t, err)
	ts.Commons.Conditions["is_example"] = named

	assert.True(t, checkCondition(t, `{Common: {name: is_example}}`, ts))

	_, err = mustCondition(t, `{Common: {name: missing}}`).Check(ts.View())
	assert.True(t, errors.Is(err, ErrCommonNotFound))
}
