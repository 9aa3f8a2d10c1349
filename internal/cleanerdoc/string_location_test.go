package cleanerdoc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func checkLocation(t *testing.T, doc, haystack, needle string) bool {
	t.Helper()
	ok, err := mustLocation(t, doc).Check(haystack, needle)
	require.NoError(t, err)
	return ok
}

func TestStringLocations(t *testing.T) {
	cases := []struct {
		name     string
		doc      string
		haystack string
		needle   string
		want     bool
	}{
		{"anywhere hit", `Anywhere`, "a-mid-b", "mid", true},
		{"anywhere miss", `Anywhere`, "a-b", "mid", false},
		{"start hit", `Start`, "prefix-rest", "prefix", true},
		{"start miss", `Start`, "rest-prefix", "prefix", false},
		{"end hit", `End`, "rest-suffix", "suffix", true},
		{"at exact", `{At: 2}`, "abcd", "cd", true},
		{"at wrong offset", `{At: 1}`, "abcd", "cd", false},
		{"at negative", `{At: -2}`, "abcd", "cd", true},
		{"after", `{After: 1}`, "xxneedle", "needle", true},
		{"after excludes boundary", `{After: 1}`, "needle", "needle", false},
		{"before", `{Before: 4}`, "abXcd", "ab", true},
		{"before miss", `{Before: 1}`, "abXcd", "ab", false},
		{"between", `{Between: {start: 1, end: 4}}`, "xabcx", "abc", true},
		{"between miss", `{Between: {start: 2, end: 4}}`, "xabcx", "abc", false},
		{"not", `{Not: Start}`, "rest-prefix", "prefix", true},
		{"all", `{All: [Anywhere, End]}`, "ab-suffix", "suffix", true},
		{"any", `{Any: [Start, End]}`, "ab-suffix", "suffix", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, checkLocation(t, tc.doc, tc.haystack, tc.needle))
		})
	}
}
