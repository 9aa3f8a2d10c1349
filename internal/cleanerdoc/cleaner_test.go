package cleanerdoc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validCleanerDoc() string {
	return `
params:
  flags: [strip_tracking]
  vars:
    canonical_scheme: https
  sets:
    tracking:
      - utm_source
      - utm_medium
      - fbclid
  lists:
    tracking_prefixes: [utm_, mc_]
  maps:
    host_kind:
      map:
        t.co: shortener
      else: normal
  partitionings:
    shorteners:
      - shortener: [t.co, bit.ly]
      - resolver: [unshorten.me]
actions:
  - {RemoveQueryParams: tracking}
  - RemoveEmptyQuery
  - RemoveFragment
`
}

func TestParseCleanerFullDocument(t *testing.T) {
	c, err := ParseCleaner([]byte(validCleanerDoc()))
	require.NoError(t, err)

	assert.True(t, c.Params.FlagIsSet("strip_tracking"))
	v, ok := c.Params.Var("canonical_scheme")
	require.True(t, ok)
	assert.Equal(t, "https", v)
	assert.True(t, c.Params.SetContains("tracking", "utm_source"))
	list, ok := c.Params.List("tracking_prefixes")
	require.True(t, ok)
	assert.Equal(t, []string{"utm_", "mc_"}, list)

	m, ok := c.Params.Maps["host_kind"]
	require.True(t, ok)
	kind, found := m.Lookup(strptr("t.co"))
	require.True(t, found)
	assert.Equal(t, "shortener", kind)
	kind, found = m.Lookup(strptr("example.com"))
	require.True(t, found)
	assert.Equal(t, "normal", kind)

	np, ok := c.Params.Partitionings["shorteners"]
	require.True(t, ok)
	bucket, found := np.PartitionOf("bit.ly")
	require.True(t, found)
	assert.Equal(t, "shortener", bucket)
}

func TestCleanerApplyEndToEnd(t *testing.T) {
	c, err := ParseCleaner([]byte(validCleanerDoc()))
	require.NoError(t, err)

	ts := newTestState(t, "https://example.com/page?utm_source=x&id=7#section")
	ts.Params = c.Params
	ts.Commons = c.Commons
	require.NoError(t, c.Apply(ts))
	assert.Equal(t, "https://example.com/page?id=7", ts.Url.String())
}

func TestCleanerApplyFillsStateDefaults(t *testing.T) {
	c, err := ParseCleaner([]byte(validCleanerDoc()))
	require.NoError(t, err)

	ts := newTestState(t, "https://example.com/?utm_medium=mail")
	ts.Params = nil
	ts.Commons = nil
	require.NoError(t, c.Apply(ts))
	assert.Equal(t, "https://example.com/", ts.Url.String())
}

func TestCleanerCommonsInvocation(t *testing.T) {
	doc := `
params:
  sets:
    tracking: [utm_source]
  lists:
    tracking_prefixes: [utm_]
  flags: [strip_tracking]
commons:
  actions:
    strip_all_tracking:
      All:
        - {RemoveQueryParams: tracking}
        - {RemoveQueryParamsInSetOrStartingWithAnyInList: {set: tracking, list: tracking_prefixes}}
actions:
  - If:
      if: {FlagIsSet: strip_tracking}
      then: {Common: {name: strip_all_tracking}}
  - RemoveEmptyQuery
`
	c, err := ParseCleaner([]byte(doc))
	require.NoError(t, err)

	ts := newTestState(t, "https://example.com/?utm_campaign=spring&keep=1")
	ts.Params = c.Params
	ts.Commons = c.Commons
	require.NoError(t, c.Apply(ts))
	assert.Equal(t, "https://example.com/?keep=1", ts.Url.String())
}

func TestParseCleanerRequiresActions(t *testing.T) {
	_, err := ParseCleaner([]byte(`params: {flags: [x]}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "actions is required")
}

func TestParseCleanerRejectsUnknownVariant(t *testing.T) {
	_, err := ParseCleaner([]byte("actions:\n  - {Bogus: 1}\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown variant")
}

func TestParseCleanerRejectsDuplicatePartitionMembership(t *testing.T) {
	doc := `
params:
  partitionings:
    broken:
      - a: [x]
      - b: [x]
actions:
  - None
`
	_, err := ParseCleaner([]byte(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "appears in both")
}
