package job

import (
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgecomet/urlcleaner/internal/cache"
	"github.com/edgecomet/urlcleaner/internal/cleanerdoc"
	"github.com/edgecomet/urlcleaner/internal/params"
)

const testCleanerDoc = `
params:
  sets:
    tracking: [utm_source, utm_medium]
actions:
  - {RemoveQueryParams: tracking}
  - RemoveEmptyQuery
`

func newTestJob(t *testing.T, source ConfigSource, diffs ...params.ParamsDiff) *Job {
	t.Helper()
	cleaner, err := cleanerdoc.ParseCleaner([]byte(testCleanerDoc))
	require.NoError(t, err)
	j, err := New(&Config{
		Cleaner:     cleaner,
		Cache:       cache.NewMemStore(),
		ParamsDiffs: diffs,
	}, source)
	require.NoError(t, err)
	return j
}

func TestJobRunCleansAllTasks(t *testing.T) {
	source := NewSliceSource([]string{
		"https://example.com/?utm_source=a&id=1",
		"https://example.com/?utm_medium=b&id=2",
		"https://example.com/?id=3",
	})
	j := newTestJob(t, source)

	var cleaned []string
	for result := range j.Run(4) {
		require.NoError(t, result.Err)
		cleaned = append(cleaned, result.Url.String())
	}
	sort.Strings(cleaned)
	assert.Equal(t, []string{
		"https://example.com/?id=1",
		"https://example.com/?id=2",
		"https://example.com/?id=3",
	}, cleaned)
}

func TestJobReportsParseFailuresPerTask(t *testing.T) {
	source := NewSliceSource([]string{
		"https://example.com/?utm_source=a",
		"://not-a-url",
	})
	j := newTestJob(t, source)

	var okCount, errCount int
	for result := range j.Run(2) {
		if result.Err != nil {
			errCount++
		} else {
			okCount++
		}
	}
	assert.Equal(t, 1, okCount)
	assert.Equal(t, 1, errCount)
}

func TestLazyTaskConfigMaterializeBareUrl(t *testing.T) {
	cfg, err := LazyTaskConfig{Raw: "https://example.com/a"}.Materialize()
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a", cfg.Url.String())
	assert.Nil(t, cfg.Context)
}

func TestLazyTaskConfigMaterializeMappingForm(t *testing.T) {
	raw := `{"url": "https://example.com/a", "context": {"vars": {"k": "v"}, "flags": ["f"]}}`
	cfg, err := LazyTaskConfig{Raw: raw}.Materialize()
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a", cfg.Url.String())
	require.NotNil(t, cfg.Context)
	v, ok := cfg.Context.Var("k")
	require.True(t, ok)
	assert.Equal(t, "v", v)
	assert.True(t, cfg.Context.FlagIsSet("f"))
}

func TestLazyTaskConfigMaterializeRejectsGarbage(t *testing.T) {
	_, err := LazyTaskConfig{Raw: ""}.Materialize()
	require.Error(t, err)

	_, err = LazyTaskConfig{Raw: `{"context": {}}`}.Materialize()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "url is required")
}

func TestTaskDoDoesNotMutateInputUrl(t *testing.T) {
	source := NewSliceSource([]string{"https://example.com/?utm_source=a"})
	j := newTestJob(t, source)

	lt, err := j.Next()
	require.NoError(t, err)
	require.NotNil(t, lt)
	task, err := lt.Make()
	require.NoError(t, err)

	cleaned, err := task.Do()
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/", cleaned.String())
	assert.Equal(t, "https://example.com/?utm_source=a", task.Config.Url.String())
}

func TestJobParamsDiffDoesNotMutateCleaner(t *testing.T) {
	cleaner, err := cleanerdoc.ParseCleaner([]byte(testCleanerDoc))
	require.NoError(t, err)

	diff := params.ParamsDiff{SetFlags: []string{"extra"}}
	j, err := New(&Config{
		Cleaner:     cleaner,
		Cache:       cache.NewMemStore(),
		ParamsDiffs: []params.ParamsDiff{diff},
	}, NewSliceSource(nil))
	require.NoError(t, err)

	assert.True(t, j.params.FlagIsSet("extra"))
	assert.False(t, cleaner.Params.FlagIsSet("extra"))
}

func TestJobNextExhaustsSource(t *testing.T) {
	j := newTestJob(t, NewSliceSource([]string{"https://example.com/"}))

	lt, err := j.Next()
	require.NoError(t, err)
	require.NotNil(t, lt)
	assert.Equal(t, uint64(1), lt.ID)

	lt, err = j.Next()
	require.NoError(t, err)
	assert.Nil(t, lt)
}

func TestReaderSourceSkipsBlanksAndComments(t *testing.T) {
	input := strings.NewReader("https://a.example/\n\n# comment\nhttps://b.example/\n")
	source := NewReaderSource(input)

	first, err := source.Next()
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, "https://a.example/", first.Raw)

	second, err := source.Next()
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, "https://b.example/", second.Raw)

	done, err := source.Next()
	require.NoError(t, err)
	assert.Nil(t, done)
}

func TestConfigSliceSource(t *testing.T) {
	cfg, err := LazyTaskConfig{Raw: "https://example.com/"}.Materialize()
	require.NoError(t, err)
	source := NewConfigSliceSource([]*TaskConfig{cfg})

	lt, err := source.Next()
	require.NoError(t, err)
	require.NotNil(t, lt)
	materialized, err := lt.Materialize()
	require.NoError(t, err)
	assert.Same(t, cfg, materialized)

	lt, err = source.Next()
	require.NoError(t, err)
	assert.Nil(t, lt)
}

func TestDoTaskErrorWrapsInput(t *testing.T) {
	failDoc := `
actions:
  - {Error: always fails}
`
	cleaner, err := cleanerdoc.ParseCleaner([]byte(failDoc))
	require.NoError(t, err)
	j, err := New(&Config{Cleaner: cleaner, Cache: cache.NewMemStore()},
		NewSliceSource([]string{"https://example.com/x"}))
	require.NoError(t, err)

	lt, err := j.Next()
	require.NoError(t, err)
	task, err := lt.Make()
	require.NoError(t, err)

	_, err = task.Do()
	require.Error(t, err)
	var taskErr *DoTaskError
	require.ErrorAs(t, err, &taskErr)
	assert.Equal(t, "https://example.com/x", taskErr.Input)
}
