package cleanerdoc

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/edgecomet/urlcleaner/internal/cache"
	"github.com/edgecomet/urlcleaner/internal/params"
	"github.com/edgecomet/urlcleaner/internal/taskstate"
	"github.com/edgecomet/urlcleaner/pkg/urlmodel"
)

func newTestState(t *testing.T, rawURL string) *TaskState {
	t.Helper()
	u, err := urlmodel.Parse(rawURL)
	require.NoError(t, err)
	return &TaskState{
		ID:         1,
		Url:        u,
		Scratchpad: taskstate.NewScratchpad(),
		Params:     params.New(),
		Commons:    NewCommons(),
		Cache:      cache.NewMemStore(),
		Unthreader: NewUnthreader(false),
		Logger:     zap.NewNop(),
	}
}

func yamlNode(t *testing.T, doc string) *yaml.Node {
	t.Helper()
	var node yaml.Node
	require.NoError(t, yaml.Unmarshal([]byte(doc), &node))
	require.NotEmpty(t, node.Content)
	return node.Content[0]
}

func mustAction(t *testing.T, doc string) Action {
	t.Helper()
	act, err := DecodeAction(yamlNode(t, doc))
	require.NoError(t, err)
	return act
}

func mustCondition(t *testing.T, doc string) Condition {
	t.Helper()
	cond, err := DecodeCondition(yamlNode(t, doc))
	require.NoError(t, err)
	return cond
}

func mustSource(t *testing.T, doc string) StringSource {
	t.Helper()
	src, err := DecodeStringSource(yamlNode(t, doc))
	require.NoError(t, err)
	return src
}

func mustModification(t *testing.T, doc string) StringModification {
	t.Helper()
	mod, err := DecodeStringModification(yamlNode(t, doc))
	require.NoError(t, err)
	return mod
}

func mustMatcher(t *testing.T, doc string) StringMatcher {
	t.Helper()
	m, err := DecodeStringMatcher(yamlNode(t, doc))
	require.NoError(t, err)
	return m
}

func mustLocation(t *testing.T, doc string) StringLocation {
	t.Helper()
	loc, err := DecodeStringLocation(yamlNode(t, doc))
	require.NoError(t, err)
	return loc
}

func strptr(s string) *string { return &s }

// newTestPartitioning buckets a few shortener hosts; everything else falls
// through to the partitioning's miss path.
func newTestPartitioning() (*params.NamedPartitioning, error) {
	return params.NewNamedPartitioning([]params.PartitionBucket{
		{Name: "shortener", Values: []*string{strptr("t.co"), strptr("bit.ly")}},
		{Name: "tracker", Values: []*string{strptr("trk.example.net")}},
	})
}

// applyMod runs mod over an initial optional value and returns the result.
func applyMod(t *testing.T, mod StringModification, initial *string, ts *TaskState) (*string, error) {
	t.Helper()
	value := initial
	err := mod.Apply(&value, ts.View())
	return value, err
}
