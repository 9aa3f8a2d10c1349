package cleanerdoc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgecomet/urlcleaner/internal/cache"
)

func TestRemoveQueryParamsFromNamedSet(t *testing.T) {
	ts := newTestState(t, "https://example.com?utm_source=x&id=3")
	ts.Params.Sets["tracking"] = map[string]struct{}{"utm_source": {}}

	act := mustAction(t, `{RemoveQueryParams: tracking}`)
	require.NoError(t, act.Apply(ts))
	assert.Equal(t, "https://example.com/?id=3", ts.Url.String())
}

func TestRemoveQueryParamMatchesDecodedName(t *testing.T) {
	ts := newTestState(t, "https://example.com?a=1&%61=2&a=3")
	act := mustAction(t, `{RemoveQueryParam: a}`)
	require.NoError(t, act.Apply(ts))
	assert.Equal(t, "https://example.com/", ts.Url.String())
}

func TestGetUrlFromQueryParamReplacesWholeUrl(t *testing.T) {
	ts := newTestState(t, "https://example.com?redirect=https%3A%2F%2Fb.com%2F")
	act := mustAction(t, `{GetUrlFromQueryParam: redirect}`)
	require.NoError(t, act.Apply(ts))
	assert.Equal(t, "https://b.com/", ts.Url.String())
}

func TestJoinResolvesRelativeReference(t *testing.T) {
	ts := newTestState(t, "https://example.com/a/b/c")
	act := mustAction(t, `{Join: ".."}`)
	require.NoError(t, act.Apply(ts))
	assert.Equal(t, "https://example.com/a/", ts.Url.String())
}

func TestRenameQueryParamByIndex(t *testing.T) {
	ts := newTestState(t, "https://example.com?a=2&b=3&a=4")
	act := mustAction(t, `{RenameQueryParam: {from: {name: a, index: 1}, to: b}}`)
	require.NoError(t, act.Apply(ts))
	assert.Equal(t, "https://example.com/?a=2&b=3&b=4", ts.Url.String())
}

func TestAllowQueryParamsKeepsOriginalOrder(t *testing.T) {
	ts := newTestState(t, "https://example.com?keep=1&drop=2&keep=3")
	act := mustAction(t, `{AllowQueryParam: keep}`)
	require.NoError(t, act.Apply(ts))
	assert.Equal(t, "https://example.com/?keep=1&keep=3", ts.Url.String())
}

func TestRemoveThenAllowMatchingLeavesNothing(t *testing.T) {
	ts := newTestState(t, "https://example.com?utm_a=1&id=2&utm_b=3")
	remove := mustAction(t, `{RemoveQueryParamsMatching: {StartsWith: utm_}}`)
	allow := mustAction(t, `{AllowQueryParamsMatching: {StartsWith: utm_}}`)
	require.NoError(t, remove.Apply(ts))
	require.NoError(t, allow.Apply(ts))
	assert.False(t, ts.Url.HasQuery())
	assert.Equal(t, "https://example.com/", ts.Url.String())
}

func TestRemoveQueryParamsInSetOrStartingWithAnyInList(t *testing.T) {
	ts := newTestState(t, "https://example.com?fbclid=x&utm_source=y&id=3")
	ts.Params.Sets["tracking"] = map[string]struct{}{"fbclid": {}}
	ts.Params.Lists["tracking_prefixes"] = []string{"utm_"}

	act := mustAction(t, `{RemoveQueryParamsInSetOrStartingWithAnyInList: {set: tracking, list: tracking_prefixes}}`)
	require.NoError(t, act.Apply(ts))
	assert.Equal(t, "https://example.com/?id=3", ts.Url.String())
}

func TestIfWithoutElseIsNoopOnFalse(t *testing.T) {
	ts := newTestState(t, "https://example.com/?x=1")
	act := mustAction(t, `
If:
  if: {PartIs: {part: Host, value: other.com}}
  then: RemoveQuery
`)
	require.NoError(t, act.Apply(ts))
	assert.Equal(t, "https://example.com/?x=1", ts.Url.String())
}

func TestRevertOnErrorRestoresUrlAndScratchpad(t *testing.T) {
	ts := newTestState(t, "https://example.com/a?x=1")
	ts.Scratchpad.SetVar("k", strptr("v"))
	before := ts.Url.String()

	act := mustAction(t, `
RevertOnError:
  All:
    - {SetPath: /mutated}
    - {SetScratchpadFlag: {name: touched, value: true}}
    - {SetScratchpadVar: {name: k, value: changed}}
    - {Error: boom}
`)
	err := act.Apply(ts)
	require.Error(t, err)

	var explicit *ExplicitError
	require.ErrorAs(t, err, &explicit)
	assert.Equal(t, "boom", explicit.Message)

	assert.Equal(t, before, ts.Url.String())
	assert.False(t, ts.Scratchpad.FlagIsSet("touched"))
	v, _ := ts.Scratchpad.Var("k")
	assert.Equal(t, "v", v)
}

func TestCompositeFailureDoesNotRevertWithoutWrapper(t *testing.T) {
	ts := newTestState(t, "https://example.com/a")
	act := mustAction(t, `
All:
  - {SetPath: /mutated}
  - {Error: boom}
`)
	require.Error(t, act.Apply(ts))
	assert.Equal(t, "/mutated", ts.Url.Path())
}

func TestTryElsePreservesBothErrors(t *testing.T) {
	ts := newTestState(t, "https://example.com/")
	act := mustAction(t, `{TryElse: {try: {Error: first}, else: {Error: second}}}`)
	err := act.Apply(ts)
	require.Error(t, err)

	var tryElse *TryElseError
	require.ErrorAs(t, err, &tryElse)
	assert.EqualError(t, tryElse.Try, "first")
	assert.EqualError(t, tryElse.Else, "second")
}

func TestFirstNotErrorCollectsAllErrors(t *testing.T) {
	ts := newTestState(t, "https://example.com/")
	failing := mustAction(t, `{FirstNotError: [{Error: a}, {Error: b}]}`)
	err := failing.Apply(ts)
	var all *FirstNotErrorErrors
	require.ErrorAs(t, err, &all)
	assert.Len(t, all.Errors, 2)

	recovering := mustAction(t, `{FirstNotError: [{Error: a}, {SetPath: /ok}]}`)
	require.NoError(t, recovering.Apply(ts))
	assert.Equal(t, "/ok", ts.Url.Path())
}

func TestIgnoreErrorSwallows(t *testing.T) {
	ts := newTestState(t, "https://example.com/")
	act := mustAction(t, `{IgnoreError: {Error: boom}}`)
	require.NoError(t, act.Apply(ts))
}

func TestRepeatStopsWhenStateStabilizes(t *testing.T) {
	ts := newTestState(t, "https://example.com/")
	calls := 0
	inner := CustomAction(func(ts *TaskState) error {
		calls++
		// Mutates only on the first pass; the second pass observes a
		// stable state and Repeat stops.
		if calls == 1 {
			ts.Scratchpad.SetFlag("seen", true)
		}
		return nil
	})
	act := actRepeat{Actions: []Action{inner}, Limit: 10}
	require.NoError(t, act.Apply(ts))
	assert.Equal(t, 2, calls)
}

func TestRepeatHonorsLimit(t *testing.T) {
	ts := newTestState(t, "https://example.com/")
	act := mustAction(t, `
Repeat:
  limit: 3
  actions:
    - {InsertPathSegmentAt: {index: 0, value: x}}
`)
	require.NoError(t, act.Apply(ts))
	assert.Equal(t, "/x/x/x", ts.Url.Path())
}

func TestPartMapDispatch(t *testing.T) {
	ts := newTestState(t, "https://example.com/?x=1")
	act := mustAction(t, `
PartMap:
  part: Host
  map:
    example.com: RemoveQuery
    other.com: {Error: wrong branch}
`)
	require.NoError(t, act.Apply(ts))
	assert.False(t, ts.Url.HasQuery())
}

func TestPartMapMissIsNoop(t *testing.T) {
	ts := newTestState(t, "https://nomatch.com/?x=1")
	act := mustAction(t, `
PartMap:
  part: Host
  map:
    example.com: RemoveQuery
`)
	require.NoError(t, act.Apply(ts))
	assert.True(t, ts.Url.HasQuery())
}

func TestPartNamedPartitioningDispatch(t *testing.T) {
	ts := newTestState(t, "https://go.example.com/?x=1")
	np, err := newTestPartitioning()
	require.NoError(t, err)
	ts.Params.Partitionings["shorteners"] = np

	act := mustAction(t, `
PartNamedPartitioning:
  named_partitioning: shorteners
  part: Host
  map:
    shortener: {Error: is a shortener}
  else: RemoveQuery
`)
	require.NoError(t, act.Apply(ts))
	assert.False(t, ts.Url.HasQuery())
}

func TestSetPartAndCopyMovePart(t *testing.T) {
	ts := newTestState(t, "https://example.com/p?q=1#frag")

	set := mustAction(t, `{SetPart: {part: Fragment, value: other}}`)
	require.NoError(t, set.Apply(ts))
	frag, ok := ts.Url.Fragment()
	require.True(t, ok)
	assert.Equal(t, "other", frag)

	copyAct := mustAction(t, `{CopyPart: {from: Fragment, to: {QueryParam: copied}}}`)
	require.NoError(t, copyAct.Apply(ts))
	v, hasValue, ok := ts.Url.QueryParam("copied", 0)
	require.True(t, ok && hasValue)
	assert.Equal(t, "other", v)

	move := mustAction(t, `{MovePart: {from: Fragment, to: {QueryParam: moved}}}`)
	require.NoError(t, move.Apply(ts))
	_, ok = ts.Url.Fragment()
	assert.False(t, ok)
	v, _, ok = ts.Url.QueryParam("moved", 0)
	require.True(t, ok)
	assert.Equal(t, "other", v)
}

func TestModifyPartIfSomeSkipsAbsentPart(t *testing.T) {
	ts := newTestState(t, "https://example.com/")
	act := mustAction(t, `{ModifyPartIfSome: {part: Fragment, modification: Uppercase}}`)
	require.NoError(t, act.Apply(ts))
	_, ok := ts.Url.Fragment()
	assert.False(t, ok)
}

func TestScratchpadActions(t *testing.T) {
	ts := newTestState(t, "https://example.com/")

	require.NoError(t, mustAction(t, `{SetScratchpadFlag: {name: f, value: true}}`).Apply(ts))
	assert.True(t, ts.Scratchpad.FlagIsSet("f"))

	require.NoError(t, mustAction(t, `{SetScratchpadVar: {name: v, value: hello}}`).Apply(ts))
	require.NoError(t, mustAction(t, `{ModifyScratchpadVar: {name: v, modification: Uppercase}}`).Apply(ts))
	v, ok := ts.Scratchpad.Var("v")
	require.True(t, ok)
	assert.Equal(t, "HELLO", v)

	// nil value deletes
	require.NoError(t, mustAction(t, `{SetScratchpadVar: {name: v, value: null}}`).Apply(ts))
	_, ok = ts.Scratchpad.Var("v")
	assert.False(t, ok)
}

func TestExpandRedirectServedFromCacheWithoutNetwork(t *testing.T) {
	ts := newTestState(t, "https://t.co/abc")
	ts.Params.ReadCache = true
	target := "https://e.org/p"
	require.NoError(t, ts.Cache.Write(context.Background(), cache.NewEntry{
		Subject:  "redirect",
		Key:      "https://t.co/abc",
		Value:    &target,
		Duration: time.Millisecond,
	}))

	act := mustAction(t, `ExpandRedirect`)
	require.NoError(t, act.Apply(ts))
	assert.Equal(t, "https://e.org/p", ts.Url.String())
}

func TestExpandRedirectNegativeCacheHitIsError(t *testing.T) {
	ts := newTestState(t, "https://t.co/abc")
	ts.Params.ReadCache = true
	require.NoError(t, ts.Cache.Write(context.Background(), cache.NewEntry{
		Subject: "redirect",
		Key:     "https://t.co/abc",
	}))

	act := mustAction(t, `ExpandRedirect`)
	err := act.Apply(ts)
	assert.ErrorIs(t, err, ErrCachedValueIsNone)
}

func TestCacheUrlRunsInnerActionAtMostOncePerUrl(t *testing.T) {
	ts := newTestState(t, "https://example.com/?utm=1")
	ts.Params.ReadCache = true
	ts.Params.WriteCache = true

	calls := 0
	inner := CustomAction(func(ts *TaskState) error {
		calls++
		ts.Url.RemoveQuery()
		return nil
	})
	act := actCacheUrl{Subject: srcString{Value: "clean"}, Inner: inner}

	require.NoError(t, act.Apply(ts))
	assert.Equal(t, "https://example.com/", ts.Url.String())
	assert.Equal(t, 1, calls)

	// Same pre-action URL again: served from cache, inner never runs.
	require.NoError(t, ts.Url.SetWhole("https://example.com/?utm=1"))
	require.NoError(t, act.Apply(ts))
	assert.Equal(t, "https://example.com/", ts.Url.String())
	assert.Equal(t, 1, calls)
}

func TestCacheUrlDoesNotCacheScratchpadEffects(t *testing.T) {
	ts := newTestState(t, "https://example.com/?utm=1")
	ts.Params.ReadCache = true
	ts.Params.WriteCache = true

	inner := CustomAction(func(ts *TaskState) error {
		ts.Scratchpad.SetFlag("ran", true)
		ts.Url.RemoveQuery()
		return nil
	})
	act := actCacheUrl{Subject: srcString{Value: "clean"}, Inner: inner}
	require.NoError(t, act.Apply(ts))
	assert.True(t, ts.Scratchpad.FlagIsSet("ran"))

	// A cached replay on a fresh task restores the URL but not the flag.
	ts2 := newTestState(t, "https://example.com/?utm=1")
	ts2.Params.ReadCache = true
	ts2.Cache = ts.Cache
	require.NoError(t, act.Apply(ts2))
	assert.Equal(t, "https://example.com/", ts2.Url.String())
	assert.False(t, ts2.Scratchpad.FlagIsSet("ran"))
}

func TestCommonActionWithArgs(t *testing.T) {
	ts := newTestState(t, "https://example.com/?x=1&y=2")
	common, err := DecodeAction(yamlNode(t, `
All:
  - {CommonCallArg: extra}
  - {RemoveQueryParam: x}
`))
	require.NoError(t, err)
	ts.Commons.Actions["strip"] = common

	act := mustAction(t, `
Common:
  name: strip
  args:
    actions:
      extra: {RemoveQueryParam: y}
`)
	require.NoError(t, act.Apply(ts))
	assert.Equal(t, "https://example.com/", ts.Url.String())
}

func TestCommonNotFound(t *testing.T) {
	ts := newTestState(t, "https://example.com/")
	act := mustAction(t, `{Common: {name: missing}}`)
	assert.True(t, errors.Is(act.Apply(ts), ErrCommonNotFound))
}

func TestCommonCallArgOutsideCommonFails(t *testing.T) {
	ts := newTestState(t, "https://example.com/")
	act := mustAction(t, `{CommonCallArg: anything}`)
	assert.True(t, errors.Is(act.Apply(ts), ErrCommonArgNotFound))
}

func TestSetSchemeAction(t *testing.T) {
	ts := newTestState(t, "http://example.com/")
	require.NoError(t, mustAction(t, `{SetScheme: https}`).Apply(ts))
	assert.Equal(t, "https://example.com/", ts.Url.String())
}

func TestPathSegmentRangeParts(t *testing.T) {
	ts := newTestState(t, "https://www.example.com/a/b/c/d")

	got, err := mustSource(t, `{Part: NormalizedHost}`).Get(ts.View())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "example.com", *got)

	got, err = mustSource(t, `{Part: PathSegments}`).Get(ts.View())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "a/b/c/d", *got)

	got, err = mustSource(t, `{Part: {FirstNPathSegments: 2}}`).Get(ts.View())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "a/b", *got)

	got, err = mustSource(t, `{Part: {PathSegmentsAfterFirstN: 2}}`).Get(ts.View())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "c/d", *got)

	require.NoError(t, mustAction(t, `{SetPart: {part: {LastNPathSegments: 2}, value: "x/y"}}`).Apply(ts))
	assert.Equal(t, "/a/b/x/y", ts.Url.Path())

	require.NoError(t, mustAction(t, `{SetPart: {part: {FirstNPathSegments: 2}, value: null}}`).Apply(ts))
	assert.Equal(t, "/x/y", ts.Url.Path())
}

func TestHostSurgeryActions(t *testing.T) {
	ts := newTestState(t, "https://a.b.example.co.uk/x")

	require.NoError(t, mustAction(t, `{SetSubdomain: www}`).Apply(ts))
	assert.Equal(t, "www.example.co.uk", ts.Url.Host())

	require.NoError(t, mustAction(t, `{SetDomainMiddle: other}`).Apply(ts))
	assert.Equal(t, "www.other.co.uk", ts.Url.Host())
}

func TestPathSurgeryActions(t *testing.T) {
	ts := newTestState(t, "https://example.com/a/b/c/d")

	require.NoError(t, mustAction(t, `{KeepFirstNPathSegments: 2}`).Apply(ts))
	assert.Equal(t, "/a/b", ts.Url.Path())

	require.NoError(t, mustAction(t, `{InsertPathSegmentAfter: {index: 0, value: mid}}`).Apply(ts))
	assert.Equal(t, "/a/mid/b", ts.Url.Path())

	require.NoError(t, mustAction(t, `{RemovePathSegment: -1}`).Apply(ts))
	assert.Equal(t, "/a/mid", ts.Url.Path())
}

func TestUnknownActionVariantRejected(t *testing.T) {
	_, err := DecodeAction(yamlNode(t, `{NoSuchAction: 1}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown variant")
}
