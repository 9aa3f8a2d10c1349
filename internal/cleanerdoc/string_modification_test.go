package cleanerdoc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentModifications(t *testing.T) {
	ts := newTestState(t, "https://example.com/")

	cases := []struct {
		name    string
		doc     string
		initial *string
		want    *string
	}{
		{"set replaces", `{Set: new}`, strptr("old"), strptr("new")},
		{"set to none", `{Set: null}`, strptr("old"), nil},
		{"append", `{Append: "!"}`, strptr("hi"), strptr("hi!")},
		{"prepend", `{Prepend: ">"}`, strptr("hi"), strptr(">hi")},
		{"insert", `{Insert: {index: 1, value: "XY"}}`, strptr("ab"), strptr("aXYb")},
		{"insert negative index", `{Insert: {index: -1, value: "-"}}`, strptr("ab"), strptr("a-b")},
		{"lowercase", `Lowercase`, strptr("HeLLo"), strptr("hello")},
		{"uppercase", `Uppercase`, strptr("hello"), strptr("HELLO")},
		{"strip prefix", `{StripPrefix: "www."}`, strptr("www.example.com"), strptr("example.com")},
		{"strip maybe prefix miss", `{StripMaybePrefix: "www."}`, strptr("example.com"), strptr("example.com")},
		{"keep maybe between hit", `{KeepMaybeBetween: {start: "[", end: "]"}}`, strptr("a[mid]b"), strptr("mid")},
		{"keep maybe between miss", `{KeepMaybeBetween: {start: "[", end: "]"}}`, strptr("plain"), strptr("plain")},
		{"strip suffix", `{StripSuffix: "/"}`, strptr("a/"), strptr("a")},
		{"remove char", `{RemoveChar: 1}`, strptr("abc"), strptr("ac")},
		{"keep before", `{KeepBefore: "?"}`, strptr("path?query"), strptr("path")},
		{"keep after", `{KeepAfter: "?"}`, strptr("path?query"), strptr("query")},
		{"keep between", `{KeepBetween: {start: "[", end: "]"}}`, strptr("a[mid]b"), strptr("mid")},
		{"strip before", `{StripBefore: "="}`, strptr("k=v"), strptr("=v")},
		{"strip after", `{StripAfter: "="}`, strptr("k=v"), strptr("k=")},
		{"replacen", `{Replacen: {find: a, replace: b, count: 2}}`, strptr("aaa"), strptr("bba")},
		{"replace all", `{ReplaceAll: {find: a, replace: b}}`, strptr("aaa"), strptr("bbb")},
		{"replace range", `{ReplaceRange: {start: 1, end: 3, replace: "XY"}}`, strptr("abcd"), strptr("aXYd")},
		{"keep range", `{KeepRange: {start: 1, end: 3}}`, strptr("abcd"), strptr("bc")},
		{"keep range open end", `{KeepRange: {start: 2}}`, strptr("abcd"), strptr("cd")},
		{"set segment", `{SetSegment: {split: ".", index: 0, value: www}}`, strptr("a.b.c"), strptr("www.b.c")},
		{"keep nth segment", `{KeepNthSegment: {split: "/", index: -1}}`, strptr("a/b/c"), strptr("c")},
		{"keep segment range", `{KeepSegmentRange: {split: ".", start: 1}}`, strptr("a.b.c"), strptr("b.c")},
		{"percent decode", `PercentDecode`, strptr("a%20b"), strptr("a b")},
		{"unescape html text", `UnescapeHtmlText`, strptr("a &amp; b"), strptr("a & b")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mod := mustModification(t, tc.doc)
			got, err := applyMod(t, mod, tc.initial, ts)
			require.NoError(t, err)
			if tc.want == nil {
				assert.Nil(t, got)
			} else {
				require.NotNil(t, got)
				assert.Equal(t, *tc.want, *got)
			}
		})
	}
}

func TestModificationFailureModes(t *testing.T) {
	ts := newTestState(t, "https://example.com/")

	_, err := applyMod(t, mustModification(t, `{StripPrefix: "xx"}`), strptr("value"), ts)
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)

	_, err = applyMod(t, mustModification(t, `{Insert: {index: 99, value: x}}`), strptr("ab"), ts)
	var invalidIdx *InvalidIndexError
	require.ErrorAs(t, err, &invalidIdx)

	_, err = applyMod(t, mustModification(t, `{RemoveChar: 10}`), strptr("ab"), ts)
	require.ErrorAs(t, err, &invalidIdx)

	_, err = applyMod(t, mustModification(t, `{KeepRange: {start: 3, end: 1}}`), strptr("ab"), ts)
	var invalidSlice *InvalidSliceError
	require.ErrorAs(t, err, &invalidSlice)
}

func TestIgnoreAndRevertOnErrorModifications(t *testing.T) {
	ts := newTestState(t, "https://example.com/")

	got, err := applyMod(t, mustModification(t, `{IgnoreError: {Error: boom}}`), strptr("kept"), ts)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "kept", *got)

	// RevertOnError restores the pre-modification value before re-raising.
	mod := mustModification(t, `
RevertOnError:
  All:
    - Uppercase
    - {Error: boom}
`)
	value := strptr("original")
	err = mod.Apply(&value, ts.View())
	require.Error(t, err)
	require.NotNil(t, value)
	assert.Equal(t, "original", *value)
}

func TestTryElseModification(t *testing.T) {
	ts := newTestState(t, "https://example.com/")
	mod := mustModification(t, `{TryElse: {try: {StripPrefix: "xx"}, else: Uppercase}}`)
	got, err := applyMod(t, mod, strptr("value"), ts)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "VALUE", *got)
}

func TestIfMatchesModification(t *testing.T) {
	ts := newTestState(t, "https://example.com/")
	mod := mustModification(t, `
IfMatches:
  matcher: {StartsWith: "www."}
  then: {StripPrefix: "www."}
  else: None
`)
	got, err := applyMod(t, mod, strptr("www.example.com"), ts)
	require.NoError(t, err)
	assert.Equal(t, "example.com", *got)

	got, err = applyMod(t, mod, strptr("example.com"), ts)
	require.NoError(t, err)
	assert.Equal(t, "example.com", *got)
}

func TestGetJsStringLiteralPrefix(t *testing.T) {
	ts := newTestState(t, "https://example.com/")
	mod := mustModification(t, `GetJsStringLiteralPrefix`)

	got, err := applyMod(t, mod, strptr(`"https:\/\/x.com\/p"; var rest = 1`), ts)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "https://x.com/p", *got)

	got, err = applyMod(t, mod, strptr(`'quoted\'part'`), ts)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "quoted'part", *got)

	_, err = applyMod(t, mod, strptr("not a literal"), ts)
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestGetHtmlAttribute(t *testing.T) {
	ts := newTestState(t, "https://example.com/")
	mod := mustModification(t, `{GetHtmlAttribute: href}`)

	got, err := applyMod(t, mod, strptr(`<a href="https://x.com/p" rel="nofollow">x</a>`), ts)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "https://x.com/p", *got)

	got, err = applyMod(t, mod, strptr(`<a rel="nofollow">x</a>`), ts)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestJsonPointer(t *testing.T) {
	ts := newTestState(t, "https://example.com/")
	mod := mustModification(t, `{JsonPointer: /data/url}`)

	got, err := applyMod(t, mod, strptr(`{"data": {"url": "https://x.com/"}}`), ts)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "https://x.com/", *got)

	_, err = applyMod(t, mod, strptr(`{"data": {}}`), ts)
	require.Error(t, err)
}

func TestRegexModifications(t *testing.T) {
	ts := newTestState(t, "https://example.com/")

	got, err := applyMod(t, mustModification(t, `{RegexFind: "[0-9]+"}`), strptr("id=42&x=7"), ts)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "42", *got)

	got, err = applyMod(t, mustModification(t, `{RegexReplaceAll: {regex: "[0-9]+", replacement: N}}`), strptr("a1b22c"), ts)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "aNbNc", *got)
}

func TestRegexSubstituteKeepsOnlyExpansion(t *testing.T) {
	ts := newTestState(t, "https://example.com/")

	// The whole value becomes the expanded template; text outside the
	// first match is discarded, unlike RegexReplaceAll.
	mod := mustModification(t, `{RegexSubstitute: {regex: "([0-9]+)", replacement: "$1!"}}`)
	got, err := applyMod(t, mod, strptr("price: 42 usd"), ts)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "42!", *got)

	replaceAll := mustModification(t, `{RegexReplaceAll: {regex: "([0-9]+)", replacement: "$1!"}}`)
	got, err = applyMod(t, replaceAll, strptr("price: 42 usd"), ts)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "price: 42! usd", *got)

	_, err = applyMod(t, mod, strptr("no digits"), ts)
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestBase64Codecs(t *testing.T) {
	ts := newTestState(t, "https://example.com/")

	got, err := applyMod(t, mustModification(t, `Base64Encode`), strptr("hi"), ts)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "aGk=", *got)

	got, err = applyMod(t, mustModification(t, `Base64Decode`), strptr("aGk="), ts)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "hi", *got)

	_, err = applyMod(t, mustModification(t, `Base64Decode`), strptr("!!! not base64 !!!"), ts)
	require.Error(t, err)
}

func TestQueryHelperModifications(t *testing.T) {
	ts := newTestState(t, "https://example.com/")
	mod := mustModification(t, `{RemoveQueryParamsMatching: {StartsWith: utm_}}`)
	got, err := applyMod(t, mod, strptr("utm_source=x&id=3&utm_medium=y"), ts)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "id=3", *got)
}

func TestUnknownModificationVariantRejected(t *testing.T) {
	_, err := DecodeStringModification(yamlNode(t, `{Frobnicate: 1}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown variant")
}
