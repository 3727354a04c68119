package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild_IncludesIsolatedNodes(t *testing.T) {
	g := Build([]int64{3, 1, 2, 4}, []ResolvedLink{{1, 2}, {2, 3}, {3, 1}})
	assert.Equal(t, []int64{1, 2, 3, 4}, g.NoteIDs())
	assert.Equal(t, 4, g.NodeCount())
	assert.Equal(t, 3, g.EdgeCount())

	d, ok := g.Index(4)
	require.True(t, ok)
	assert.Zero(t, g.InDegree(d))
	assert.Zero(t, g.OutDegree(d))
}

func TestBuild_CollapsesMultiplicity(t *testing.T) {
	g := Build([]int64{1, 2}, []ResolvedLink{{1, 2}, {1, 2}, {1, 2}, {2, 1}})
	assert.Equal(t, 2, g.EdgeCount())
	assert.Equal(t, 3, g.Multiplicity(1, 2))
	assert.Equal(t, 1, g.Multiplicity(2, 1))
	assert.Equal(t, 0, g.Multiplicity(1, 1))
	assert.Equal(t, []Edge{{1, 2, 3}, {2, 1, 1}}, g.Edges())
}

func TestBuild_SelfLoops(t *testing.T) {
	g := Build([]int64{1, 2}, []ResolvedLink{{1, 1}, {1, 1}, {1, 2}})
	i, _ := g.Index(1)
	assert.True(t, g.HasSelfLoop(i))
	assert.Equal(t, []int64{1}, g.SelfLoops())
	assert.Equal(t, 2, g.OutDegree(i))
	assert.Equal(t, 1, g.InDegree(i))
	assert.Equal(t, 2, g.Multiplicity(1, 1))
}

func TestBuild_IgnoresUnknownEndpoints(t *testing.T) {
	g := Build([]int64{1}, []ResolvedLink{{1, 99}, {99, 1}})
	assert.Zero(t, g.EdgeCount())
}

func TestBuild_Empty(t *testing.T) {
	g := Build(nil, nil)
	assert.Zero(t, g.NodeCount())
	assert.Empty(t, g.Edges())
	assert.Zero(t, g.Undirected().NodeCount())
}

func TestDegreeSumsEqualDistinctEdges(t *testing.T) {
	links := []ResolvedLink{{1, 2}, {1, 2}, {2, 3}, {3, 3}, {3, 1}, {4, 1}}
	g := Build([]int64{1, 2, 3, 4, 5}, links)
	in, out := 0, 0
	for i := 0; i < g.NodeCount(); i++ {
		in += g.InDegree(i)
		out += g.OutDegree(i)
	}
	assert.Equal(t, g.EdgeCount(), in)
	assert.Equal(t, g.EdgeCount(), out)

	total := 0
	for _, e := range g.Edges() {
		total += e.Multiplicity
	}
	assert.Equal(t, len(links), total)
}

func TestUndirected_Projection(t *testing.T) {
	g := Build([]int64{1, 2, 3}, []ResolvedLink{{1, 2}, {2, 1}, {2, 3}, {3, 3}})
	u := g.Undirected()
	assert.Equal(t, 2, u.EdgeCount())
	assert.Equal(t, []int{1}, u.Neighbors(0))
	assert.Equal(t, []int{0, 2}, u.Neighbors(1))
	assert.Equal(t, []int{1}, u.Neighbors(2), "self-loop dropped")
	assert.True(t, u.Adjacent(0, 1))
	assert.False(t, u.Adjacent(0, 2))
	assert.Equal(t, int64(3), u.ID(2))
}
