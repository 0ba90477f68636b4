package catalog

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNames(t *testing.T) {
	names := Names()
	assert.Len(t, names, 23)
	assert.Equal(t, "games", names[0])

	seen := make(map[string]bool)
	for _, n := range names {
		assert.False(t, seen[n], "duplicate canonical name %s", n)
		seen[n] = true
	}
	for _, want := range []string{"plays", "drives", "passes", "rushes", "penalties", "safeties", "interceptions"} {
		assert.True(t, IsCanonical(want), want)
	}
	assert.False(t, IsCanonical("PLAY"))
}

func TestDefinitions_Shape(t *testing.T) {
	for _, d := range Definitions() {
		t.Run(d.Name, func(t *testing.T) {
			assert.NotEmpty(t, d.Sources, "every definition reads at least one staged table")
			assert.NotEmpty(t, d.SQL)
			assert.Contains(t, []Kind{KindDerived, KindPassthrough}, d.Kind)
			for _, dep := range d.DependsOn {
				assert.True(t, IsCanonical(dep), "dependency %s must be canonical", dep)
			}
		})
	}
}

func TestDefinitions_ReturnsCopy(t *testing.T) {
	defs := Definitions()
	defs[0].Name = "mutated"
	assert.Equal(t, "games", Names()[0])
}

func TestLookup(t *testing.T) {
	d, ok := Lookup("penalties")
	require.True(t, ok)
	assert.Equal(t, KindPassthrough, d.Kind)
	assert.Equal(t, []string{"PENALTY"}, d.Sources)
	assert.Contains(t, d.SQL, `"desc"`)

	d, ok = Lookup("players")
	require.True(t, ok)
	assert.Equal(t, `SELECT * FROM "PLAYER"`, d.SQL)
	assert.Equal(t, `CREATE TABLE "players" AS SELECT * FROM "PLAYER"`, d.CreateSQL())

	_, ok = Lookup("standings")
	assert.False(t, ok)
}

func TestGraph_OrdersPlaysFirst(t *testing.T) {
	g, err := Graph(Definitions())
	require.NoError(t, err)

	order, err := g.TopologicalSort()
	require.NoError(t, err)
	require.Len(t, order, 23)

	plays := slices.Index(order, "plays")
	assert.Less(t, plays, slices.Index(order, "passes"))
	assert.Less(t, plays, slices.Index(order, "rushes"))
	assert.Equal(t, []string{"passes", "rushes"}, g.Downstream("plays"))
}

func TestGraph_UnknownDependency(t *testing.T) {
	defs := []Definition{{Name: "passes", DependsOn: []string{"plays"}, Sources: []string{"PASS"}, SQL: "SELECT 1"}}
	_, err := Graph(defs)
	assert.Error(t, err)
}
