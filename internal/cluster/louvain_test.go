package cluster

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/vaultlens/internal/graph"
)

func undirected(ids []int64, links ...graph.ResolvedLink) *graph.Undirected {
	return graph.Build(ids, links).Undirected()
}

func clusterOf(t *testing.T, r *Result, id int64) int {
	t.Helper()
	for _, a := range r.Assignments {
		if a.NoteID == id {
			return a.ClusterID
		}
	}
	t.Fatalf("note %d not assigned", id)
	return -1
}

func TestDetect_TwoTrianglesAndIsolatedNote(t *testing.T) {
	u := undirected([]int64{10, 11, 12, 20, 21, 22, 30},
		graph.ResolvedLink{Source: 10, Target: 11},
		graph.ResolvedLink{Source: 11, Target: 12},
		graph.ResolvedLink{Source: 12, Target: 10},
		graph.ResolvedLink{Source: 20, Target: 21},
		graph.ResolvedLink{Source: 21, Target: 22},
		graph.ResolvedLink{Source: 22, Target: 20},
		graph.ResolvedLink{Source: 12, Target: 20},
	)
	res, err := Detect(context.Background(), u, DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, 3, res.Count)
	assert.Equal(t, []int64{10, 11, 12}, res.Members(0))
	assert.Equal(t, []int64{20, 21, 22}, res.Members(1))
	assert.Equal(t, []int64{30}, res.Members(2), "singleton kept")
	assert.Greater(t, res.Modularity, 0.3)
}

func TestDetect_NoEdgesGivesSingletons(t *testing.T) {
	res, err := Detect(context.Background(), undirected([]int64{1, 2, 3}), DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Count)
	for i, a := range res.Assignments {
		assert.Equal(t, i, a.ClusterID)
	}
	assert.Zero(t, res.Modularity)
}

func TestDetect_EmptyGraph(t *testing.T) {
	res, err := Detect(context.Background(), undirected(nil), DefaultOptions())
	require.NoError(t, err)
	assert.Empty(t, res.Assignments)
	assert.Zero(t, res.Count)
}

func TestDetect_Deterministic(t *testing.T) {
	ids := []int64{1, 2, 3, 4}
	ring := []graph.ResolvedLink{{Source: 1, Target: 2}, {Source: 2, Target: 3}, {Source: 3, Target: 4}, {Source: 4, Target: 1}}
	first, err := Detect(context.Background(), undirected(ids, ring...), DefaultOptions())
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := Detect(context.Background(), undirected(ids, ring...), DefaultOptions())
		require.NoError(t, err)
		assert.Equal(t, first.Assignments, again.Assignments)
	}
	assert.Equal(t, 2, first.Count)
	assert.Equal(t, clusterOf(t, first, 1), clusterOf(t, first, 2))
	assert.Equal(t, clusterOf(t, first, 3), clusterOf(t, first, 4))
}

func TestDetect_ClusterIDsNumberedBySmallestMember(t *testing.T) {
	res, err := Detect(context.Background(), undirected([]int64{5, 7, 9},
		graph.ResolvedLink{Source: 9, Target: 7}), DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 0, clusterOf(t, res, 5))
	assert.Equal(t, 1, clusterOf(t, res, 7))
	assert.Equal(t, 1, clusterOf(t, res, 9))
}

func TestDetect_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Detect(ctx, undirected([]int64{1, 2}, graph.ResolvedLink{Source: 1, Target: 2}), DefaultOptions())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestModularity_SingleCommunityOfClique(t *testing.T) {
	u := undirected([]int64{1, 2, 3},
		graph.ResolvedLink{Source: 1, Target: 2},
		graph.ResolvedLink{Source: 2, Target: 3},
		graph.ResolvedLink{Source: 3, Target: 1})
	assert.InDelta(t, 0.0, Modularity(u, []int{0, 0, 0}, 1), 1e-12)
}
