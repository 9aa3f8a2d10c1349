package cleanerdoc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func checkMatcher(t *testing.T, doc string, value *string, ts *TaskState) bool {
	t.Helper()
	ok, err := mustMatcher(t, doc).Match(value, ts.View())
	require.NoError(t, err)
	return ok
}

func TestMatcherBasics(t *testing.T) {
	ts := newTestState(t, "https://example.com/")

	assert.True(t, checkMatcher(t, `Always`, nil, ts))
	assert.False(t, checkMatcher(t, `Never`, strptr("x"), ts))
	assert.True(t, checkMatcher(t, `{Not: Never}`, nil, ts))
	assert.True(t, checkMatcher(t, `{All: [Always, {Is: v}]}`, strptr("v"), ts))
	assert.True(t, checkMatcher(t, `{Any: [Never, {Is: v}]}`, strptr("v"), ts))
}

func TestMatcherEquality(t *testing.T) {
	ts := newTestState(t, "https://example.com/")
	ts.Params.Sets["hosts"] = map[string]struct{}{"example.com": {}}

	assert.True(t, checkMatcher(t, `{Is: hello}`, strptr("hello"), ts))
	assert.False(t, checkMatcher(t, `{Is: hello}`, nil, ts))
	assert.True(t, checkMatcher(t, `{Is: null}`, nil, ts))
	assert.True(t, checkMatcher(t, `{IsOneOf: [a, b]}`, strptr("b"), ts))
	assert.True(t, checkMatcher(t, `{IsInSet: hosts}`, strptr("example.com"), ts))
	assert.False(t, checkMatcher(t, `{IsInSet: hosts}`, strptr("other.org"), ts))
}

func TestMatcherContainment(t *testing.T) {
	ts := newTestState(t, "https://example.com/")

	assert.True(t, checkMatcher(t, `{StartsWith: utm_}`, strptr("utm_source"), ts))
	assert.True(t, checkMatcher(t, `{EndsWith: _id}`, strptr("click_id"), ts))
	assert.True(t, checkMatcher(t, `{IsPrefixOf: "utm_source"}`, strptr("utm_"), ts))
	assert.True(t, checkMatcher(t, `{IsSuffixOf: "click_id"}`, strptr("_id"), ts))
	assert.True(t, checkMatcher(t, `{Contains: {value: mid}}`, strptr("a-mid-b"), ts))
	assert.True(t, checkMatcher(t, `{Contains: {value: a, at: Start}}`, strptr("abc"), ts))
	assert.False(t, checkMatcher(t, `{Contains: {value: a, at: End}}`, strptr("abc"), ts))
	assert.True(t, checkMatcher(t, `{ContainsAny: [x, b]}`, strptr("abc"), ts))
}

func TestMatcherContainsAnyInList(t *testing.T) {
	ts := newTestState(t, "https://example.com/")
	ts.Params.Lists["needles"] = []string{"track", "click"}

	assert.True(t, checkMatcher(t, `{ContainsAnyInList: needles}`, strptr("clickthrough"), ts))
	assert.False(t, checkMatcher(t, `{ContainsAnyInList: needles}`, strptr("plain"), ts))
}

func TestMatcherCharClasses(t *testing.T) {
	ts := newTestState(t, "https://example.com/")

	assert.True(t, checkMatcher(t, `{AllCharsAreOneOf: "0123456789"}`, strptr("42"), ts))
	assert.False(t, checkMatcher(t, `{AllCharsAreOneOf: "0123456789"}`, strptr("4x2"), ts))
	assert.True(t, checkMatcher(t, `{AnyCharIsOneOf: "xyz"}`, strptr("axb"), ts))
	assert.True(t, checkMatcher(t, `{NoCharIsOneOf: "xyz"}`, strptr("abc"), ts))
	assert.True(t, checkMatcher(t, `IsAscii`, strptr("plain"), ts))
	assert.False(t, checkMatcher(t, `IsAscii`, strptr("plän"), ts))
	assert.True(t, checkMatcher(t, `{AllCharsMatch: IsNumeric}`, strptr("123"), ts))
	assert.True(t, checkMatcher(t, `{AnyCharMatches: IsUppercase}`, strptr("aBc"), ts))
}

func TestMatcherSegments(t *testing.T) {
	ts := newTestState(t, "https://example.com/")

	assert.True(t, checkMatcher(t, `{NthSegmentMatches: {split: ".", index: 0, matcher: {Is: www}}}`, strptr("www.example.com"), ts))
	assert.True(t, checkMatcher(t, `{AnySegmentMatches: {split: "/", matcher: {Is: admin}}}`, strptr("a/admin/b"), ts))
	assert.True(t, checkMatcher(t, `{SegmentsStartWith: {split: ".", segments: [www, example]}}`, strptr("www.example.com"), ts))
	assert.True(t, checkMatcher(t, `{SegmentsEndWith: {split: ".", segments: [co, uk]}}`, strptr("example.co.uk"), ts))
}

func TestMatcherMisc(t *testing.T) {
	ts := newTestState(t, "https://example.com/")

	assert.True(t, checkMatcher(t, `{LengthIs: 3}`, strptr("abc"), ts))
	assert.True(t, checkMatcher(t, `IsSome`, strptr(""), ts))
	assert.False(t, checkMatcher(t, `IsSome`, nil, ts))
	assert.True(t, checkMatcher(t, `IsNone`, nil, ts))
	assert.False(t, checkMatcher(t, `{IsSomeAnd: Always}`, nil, ts))
	assert.True(t, checkMatcher(t, `{IsNoneOr: Never}`, nil, ts))
	assert.True(t, checkMatcher(t, `{Modified: {modification: Lowercase, matcher: {Is: abc}}}`, strptr("ABC"), ts))
}

func TestMatcherModifiedDoesNotLeakMutation(t *testing.T) {
	ts := newTestState(t, "https://example.com/")
	value := strptr("ABC")
	ok, err := mustMatcher(t, `{Modified: {modification: Lowercase, matcher: {Is: abc}}}`).Match(value, ts.View())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "ABC", *value)
}

func TestMatcherRegexAndPattern(t *testing.T) {
	ts := newTestState(t, "https://example.com/")

	assert.True(t, checkMatcher(t, `{Regex: "^utm_[a-z]+$"}`, strptr("utm_source"), ts))
	assert.False(t, checkMatcher(t, `{Regex: "^utm_[a-z]+$"}`, strptr("id"), ts))

	// Unified pattern syntax: exact, wildcard, regex prefixes.
	assert.True(t, checkMatcher(t, `{Pattern: "example.com"}`, strptr("EXAMPLE.com"), ts))
	assert.True(t, checkMatcher(t, `{Pattern: "*.pdf"}`, strptr("file.pdf"), ts))
	assert.True(t, checkMatcher(t, `{Pattern: "~^https://"}`, strptr("https://x.com"), ts))
	assert.False(t, checkMatcher(t, `{Pattern: "~^https://"}`, strptr("http://x.com"), ts))
}

func TestMatcherErrorHandling(t *testing.T) {
	ts := newTestState(t, "https://example.com/")

	assert.True(t, checkMatcher(t, `{TreatErrorAsPass: {Error: boom}}`, nil, ts))
	assert.False(t, checkMatcher(t, `{TreatErrorAsFail: {Error: boom}}`, nil, ts))
	assert.True(t, checkMatcher(t, `{TryElse: {try: {Error: boom}, else: Always}}`, nil, ts))
	assert.True(t, checkMatcher(t, `{FirstNotError: [{Error: boom}, Always]}`, nil, ts))

	_, err := mustMatcher(t, `{Error: boom}`).Match(nil, ts.View())
	require.Error(t, err)
}

func TestMatcherIfBranches(t *testing.T) {
	ts := newTestState(t, "https://example.com/")
	doc := `{If: {if: {StartsWith: a}, then: {EndsWith: z}, else: Never}}`
	assert.True(t, checkMatcher(t, doc, strptr("a-to-z"), ts))
	assert.False(t, checkMatcher(t, doc, strptr("a-to-b"), ts))
	assert.False(t, checkMatcher(t, doc, strptr("b-to-z"), ts))
}
