package dag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGraph_AddNodeAndEdge(t *testing.T) {
	g := NewGraph[string]()
	g.AddNode("plays", "PBP")
	g.AddNode("passes", "PASS")

	require.NoError(t, g.AddEdge("plays", "passes"))
	require.NoError(t, g.AddEdge("plays", "passes"), "duplicate edges are ignored")

	assert.Equal(t, 2, g.Len())
	assert.Equal(t, []string{"passes"}, g.Children("plays"))
	assert.Equal(t, []string{"plays"}, g.Parents("passes"))

	data, ok := g.Get("passes")
	require.True(t, ok)
	assert.Equal(t, "PASS", data)
}

func TestGraph_AddEdge_Invalid(t *testing.T) {
	g := NewGraph[int]()
	g.AddNode("a", 1)

	assert.Error(t, g.AddEdge("a", "missing"))
	assert.Error(t, g.AddEdge("missing", "a"))
	assert.Error(t, g.AddEdge("a", "a"))
}

func TestGraph_TopologicalSort_KeepsInsertionOrder(t *testing.T) {
	g := NewGraph[struct{}]()
	for _, id := range []string{"games", "passes", "plays", "rushes", "drives"} {
		g.AddNode(id, struct{}{})
	}
	require.NoError(t, g.AddEdge("plays", "passes"))
	require.NoError(t, g.AddEdge("plays", "rushes"))

	order, err := g.TopologicalSort()
	require.NoError(t, err)
	assert.Equal(t, []string{"games", "plays", "passes", "rushes", "drives"}, order)
}

func TestGraph_HasCycle(t *testing.T) {
	g := NewGraph[struct{}]()
	for _, id := range []string{"a", "b", "c"} {
		g.AddNode(id, struct{}{})
	}
	require.NoError(t, g.AddEdge("a", "b"))
	require.NoError(t, g.AddEdge("b", "c"))

	hasCycle, _ := g.HasCycle()
	assert.False(t, hasCycle)

	require.NoError(t, g.AddEdge("c", "a"))
	hasCycle, path := g.HasCycle()
	assert.True(t, hasCycle)
	assert.Equal(t, []string{"a", "b", "c", "a"}, path)

	_, err := g.TopologicalSort()
	assert.Error(t, err)
}

func TestGraph_Downstream(t *testing.T) {
	g := NewGraph[struct{}]()
	for _, id := range []string{"plays", "passes", "rushes", "games", "summary"} {
		g.AddNode(id, struct{}{})
	}
	require.NoError(t, g.AddEdge("plays", "passes"))
	require.NoError(t, g.AddEdge("plays", "rushes"))
	require.NoError(t, g.AddEdge("passes", "summary"))

	assert.Equal(t, []string{"passes", "rushes", "summary"}, g.Downstream("plays"))
	assert.Empty(t, g.Downstream("games"))
	assert.Equal(t, []string{"plays", "games"}, g.Roots())
}
