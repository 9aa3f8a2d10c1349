package cleanerdoc

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgecomet/urlcleaner/internal/cache"
	"github.com/edgecomet/urlcleaner/internal/params"
	"github.com/edgecomet/urlcleaner/internal/taskstate"
)

func TestBareStringAndNullShorthand(t *testing.T) {
	ts := newTestState(t, "https://example.com/")

	got, err := mustSource(t, `hello`).Get(ts.View())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "hello", *got)

	got, err = mustSource(t, `null`).Get(ts.View())
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = mustSource(t, `None`).Get(ts.View())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSourceErrorAndSalvage(t *testing.T) {
	ts := newTestState(t, "https://example.com/")

	_, err := mustSource(t, `{Error: boom}`).Get(ts.View())
	var explicit *ExplicitError
	require.ErrorAs(t, err, &explicit)

	got, err := mustSource(t, `{ErrorToNone: {Error: boom}}`).Get(ts.View())
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = mustSource(t, `{ErrorToEmptyString: {Error: boom}}`).Get(ts.View())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "", *got)

	got, err = mustSource(t, `{NoneToEmptyString: null}`).Get(ts.View())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "", *got)
}

func TestSourcePartReadsUrl(t *testing.T) {
	ts := newTestState(t, "https://sub.example.co.uk/p?q=1")

	got, err := mustSource(t, `{Part: Host}`).Get(ts.View())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "sub.example.co.uk", *got)

	got, err = mustSource(t, `{Part: RegDomain}`).Get(ts.View())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "example.co.uk", *got)

	got, err = mustSource(t, `{Part: {QueryParam: q}}`).Get(ts.View())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "1", *got)

	got, err = mustSource(t, `{Part: Fragment}`).Get(ts.View())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestExtractPartReparsesString(t *testing.T) {
	ts := newTestState(t, "https://example.com/")
	src := mustSource(t, `{ExtractPart: {value: "https://inner.example.org/deep?x=1", part: Host}}`)
	got, err := src.Get(ts.View())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "inner.example.org", *got)
}

func TestJoinSkipsNones(t *testing.T) {
	ts := newTestState(t, "https://example.com/")
	src := mustSource(t, `{Join: {values: [a, null, b], join: "-"}}`)
	got, err := src.Get(ts.View())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "a-b", *got)
}

func TestVarScopes(t *testing.T) {
	ts := newTestState(t, "https://example.com/")
	ts.Params.Vars["p"] = "from-params"
	ts.Scratchpad.SetVar("s", strptr("from-scratchpad"))
	ts.Context = &taskstate.TaskContext{Vars: map[string]string{"c": "from-context"}}
	ts.JobContext = &taskstate.JobContext{Vars: map[string]string{"j": "from-job"}}

	cases := []struct {
		doc  string
		want string
	}{
		{`{Var: {type: Params, name: p}}`, "from-params"},
		{`{Var: {type: Scratchpad, name: s}}`, "from-scratchpad"},
		{`{Var: {type: Context, name: c}}`, "from-context"},
		{`{Var: {type: JobContext, name: j}}`, "from-job"},
	}
	for _, tc := range cases {
		got, err := mustSource(t, tc.doc).Get(ts.View())
		require.NoError(t, err, tc.doc)
		require.NotNil(t, got, tc.doc)
		assert.Equal(t, tc.want, *got, tc.doc)
	}

	_, err := mustSource(t, `{Var: {type: Params, name: missing}}`).Get(ts.View())
	assert.True(t, errors.Is(err, ErrVarNotFound))
}

func TestEnvVarResolvedAtEvaluationTime(t *testing.T) {
	ts := newTestState(t, "https://example.com/")
	t.Setenv("URLCLEANER_TEST_VAR", "first")

	src := mustSource(t, `{Var: {type: EnvVar, name: URLCLEANER_TEST_VAR}}`)
	got, err := src.Get(ts.View())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "first", *got)

	t.Setenv("URLCLEANER_TEST_VAR", "second")
	got, err = src.Get(ts.View())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "second", *got)
}

func TestIfFlagChecksParamsByDefault(t *testing.T) {
	ts := newTestState(t, "https://example.com/")
	src := mustSource(t, `{IfFlag: {flag: enabled, then: "yes", else: "no"}}`)

	got, err := src.Get(ts.View())
	require.NoError(t, err)
	assert.Equal(t, "no", *got)

	ts.Params.Flags["enabled"] = struct{}{}
	got, err = src.Get(ts.View())
	require.NoError(t, err)
	assert.Equal(t, "yes", *got)
}

func TestIfFlagScratchpadScope(t *testing.T) {
	ts := newTestState(t, "https://example.com/")
	ts.Scratchpad.SetFlag("local", true)
	src := mustSource(t, `{IfFlag: {flag: {type: Scratchpad, name: local}, then: "yes", else: "no"}}`)
	got, err := src.Get(ts.View())
	require.NoError(t, err)
	assert.Equal(t, "yes", *got)
}

func TestParamsMapAndNamedPartitioningSources(t *testing.T) {
	ts := newTestState(t, "https://example.com/")
	ts.Params.Maps["hosts"] = params.Map[string]{
		Entries: map[string]string{"example.com": "known"},
		Else:    strptr("unknown"),
	}
	np, err := newTestPartitioning()
	require.NoError(t, err)
	ts.Params.Partitionings["kinds"] = np

	got, err := mustSource(t, `{ParamsMap: {name: hosts, key: example.com}}`).Get(ts.View())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "known", *got)

	got, err = mustSource(t, `{ParamsMap: {name: hosts, key: other.org}}`).Get(ts.View())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "unknown", *got)

	got, err = mustSource(t, `{NamedPartitioning: {name: kinds, element: t.co}}`).Get(ts.View())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "shortener", *got)
}

func TestModifiedSource(t *testing.T) {
	ts := newTestState(t, "https://example.com/")
	src := mustSource(t, `{Modified: {value: Hello, modification: Uppercase}}`)
	got, err := src.Get(ts.View())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "HELLO", *got)
}

func TestRegexFindSource(t *testing.T) {
	ts := newTestState(t, "https://example.com/")
	src := mustSource(t, `{RegexFind: {value: "id=12345", regex: "[0-9]+"}}`)
	got, err := src.Get(ts.View())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "12345", *got)
}

func TestNoneToFallback(t *testing.T) {
	ts := newTestState(t, "https://example.com/")
	src := mustSource(t, `{NoneTo: {value: null, if_none: fallback}}`)
	got, err := src.Get(ts.View())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "fallback", *got)
}

func TestTryElseAndFirstNotErrorSources(t *testing.T) {
	ts := newTestState(t, "https://example.com/")

	got, err := mustSource(t, `{TryElse: {try: {Error: nope}, else: saved}}`).Get(ts.View())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "saved", *got)

	got, err = mustSource(t, `{FirstNotError: [{Error: a}, {Error: b}, winner]}`).Get(ts.View())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "winner", *got)
}

func TestAssertMatches(t *testing.T) {
	ts := newTestState(t, "https://example.com/")

	got, err := mustSource(t, `{AssertMatches: {value: hello, matcher: {StartsWith: he}}}`).Get(ts.View())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "hello", *got)

	_, err = mustSource(t, `{AssertMatches: {value: hello, matcher: {StartsWith: xx}, message: bad prefix}}`).Get(ts.View())
	var explicit *ExplicitError
	require.ErrorAs(t, err, &explicit)
	assert.Equal(t, "bad prefix", explicit.Message)
}

func TestCacheSourceMemoizesValue(t *testing.T) {
	ts := newTestState(t, "https://example.com/")
	ts.Params.ReadCache = true
	ts.Params.WriteCache = true

	src := srcCache{
		Subject: srcString{Value: "test"},
		Key:     srcString{Value: "k"},
		Value:   srcString{Value: "computed"},
	}
	got, err := src.Get(ts.View())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "computed", *got)

	entry, err := ts.Cache.Read(context.Background(), cache.EntryKeys{Subject: "test", Key: "k"})
	require.NoError(t, err)
	require.NotNil(t, entry)
	require.NotNil(t, entry.Value)
	assert.Equal(t, "computed", *entry.Value)

	// A hit short-circuits the value source entirely.
	hitOnly := srcCache{
		Subject: srcString{Value: "test"},
		Key:     srcString{Value: "k"},
		Value:   srcError{Message: "must not be evaluated"},
	}
	got, err = hitOnly.Get(ts.View())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "computed", *got)
}

func TestCommonSourceWithArgs(t *testing.T) {
	ts := newTestState(t, "https://example.com/")
	named, err := DecodeStringSource(yamlNode(t, `{CommonCallArg: inner}`))
	require.NoError(t, err)
	ts.Commons.StringSources["wrapped"] = named

	src := mustSource(t, `
Common:
  name: wrapped
  args:
    string_sources:
      inner: provided
`)
	got, err := src.Get(ts.View())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "provided", *got)
}
