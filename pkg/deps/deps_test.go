package deps

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duplexio/duplex/pkg/types"
)

func TestSortOrdersDependenciesFirst(t *testing.T) {
	graph := map[string][]string{
		"A": {},
		"D": {"A", "C"},
		"C": {"B"},
		"B": {"A"},
	}

	ordered, err := Sort(graph)
	require.NoError(t, err)
	require.Equal(t, []string{"A", "B", "C", "D"}, ordered)
}

func TestSortIsDeterministic(t *testing.T) {
	graph := map[string][]string{
		"c": {},
		"a": {},
		"b": {},
	}

	for i := 0; i < 10; i++ {
		ordered, err := Sort(graph)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c"}, ordered)
	}
}

func TestSortIgnoresSelfReferences(t *testing.T) {
	graph := map[string][]string{
		"A": {"A"},
		"B": {"A", "B"},
	}

	ordered, err := Sort(graph)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, ordered)
}

func TestSortResolvesForeignItems(t *testing.T) {
	// "X" only appears as a dependency; it resolves the order but is not
	// part of the result
	graph := map[string][]string{
		"A": {"X"},
	}

	ordered, err := Sort(graph)
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, ordered)
}

func TestSortDetectsCycle(t *testing.T) {
	graph := map[string][]string{
		"A": {"B"},
		"B": {"C"},
		"C": {"A"},
	}

	_, err := Sort(graph)
	require.Error(t, err)
	assert.True(t, types.IsErrCode(err, types.ErrCodeCyclicDependency))
}

func TestSortEmptyGraph(t *testing.T) {
	ordered, err := Sort(map[string][]string{})
	require.NoError(t, err)
	assert.Empty(t, ordered)
}

func TestReverse(t *testing.T) {
	assert.Equal(t, []string{"c", "b", "a"}, Reverse([]string{"a", "b", "c"}))
	assert.Empty(t, Reverse(nil))
}
