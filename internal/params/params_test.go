package params

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBorrowedThenApplyDoesNotMutateOriginal(t *testing.T) {
	base := New()
	base.Flags["a"] = struct{}{}

	derived := base.Borrowed()
	diff := ParamsDiff{SetFlags: []string{"b"}, UnsetFlags: []string{"a"}}
	diff.Apply(derived)

	assert.True(t, base.FlagIsSet("a"))
	assert.False(t, base.FlagIsSet("b"))
	assert.True(t, derived.FlagIsSet("b"))
	assert.False(t, derived.FlagIsSet("a"))
}

func TestParamsDiffSetRemovalAfterInsert(t *testing.T) {
	base := New()
	diff := ParamsDiff{
		Sets: map[string]SetDiff{
			"tracking": {Init: true, Insert: []string{"utm_source", "utm_medium"}, Remove: []string{"utm_medium"}},
		},
	}
	diff.Apply(base)

	assert.True(t, base.SetContains("tracking", "utm_source"))
	assert.False(t, base.SetContains("tracking", "utm_medium"))
}

func TestParamsDiffInsertAutoCreatesSet(t *testing.T) {
	base := New()
	diff := ParamsDiff{
		Sets: map[string]SetDiff{
			"fresh": {Insert: []string{"a"}},
		},
	}
	diff.Apply(base)

	assert.True(t, base.SetContains("fresh", "a"))
}

func TestMapLookupRules(t *testing.T) {
	elseVal := "default"
	ifNullVal := "was-null"
	m := Map[string]{
		Entries: map[string]string{"a": "1"},
		IfNull:  &ifNullVal,
		Else:    &elseVal,
	}

	v, ok := m.Lookup(nil)
	require.True(t, ok)
	assert.Equal(t, "was-null", v)

	name := "a"
	v, ok = m.Lookup(&name)
	require.True(t, ok)
	assert.Equal(t, "1", v)

	missing := "z"
	v, ok = m.Lookup(&missing)
	require.True(t, ok)
	assert.Equal(t, "default", v)
}

func TestNamedPartitioningRejectsDuplicateMembership(t *testing.T) {
	a, b := "x", "x"
	_, err := NewNamedPartitioning([]PartitionBucket{
		{Name: "one", Values: []*string{&a}},
		{Name: "two", Values: []*string{&b}},
	})
	assert.Error(t, err)
}

func TestNamedPartitioningPartitionOf(t *testing.T) {
	a, b := "x", "y"
	np, err := NewNamedPartitioning([]PartitionBucket{
		{Name: "one", Values: []*string{&a}},
		{Name: "two", Values: []*string{&b}},
	})
	require.NoError(t, err)

	name, ok := np.PartitionOf("x")
	require.True(t, ok)
	assert.Equal(t, "one", name)

	_, ok = np.PartitionOf("z")
	assert.False(t, ok)
}
