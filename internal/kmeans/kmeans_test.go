package kmeans

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func axisVectors() [][]float64 {
	// Three tight groups on separate axes.
	return [][]float64{
		{1.0, 0.0, 0.0},
		{0.9, 0.1, 0.0},
		{0.0, 1.0, 0.0},
		{0.0, 0.9, 0.1},
		{0.0, 0.0, 1.0},
		{0.1, 0.0, 0.9},
	}
}

func TestRunPartitionsSeparatedGroups(t *testing.T) {
	vecs := axisVectors()

	res, err := Run(vecs, 3, 42, 10)
	require.NoError(t, err)
	require.Len(t, res.Labels, len(vecs))
	require.Len(t, res.Centroids, 3)

	// Neighbors on the same axis land together.
	assert.Equal(t, res.Labels[0], res.Labels[1])
	assert.Equal(t, res.Labels[2], res.Labels[3])
	assert.Equal(t, res.Labels[4], res.Labels[5])
	assert.Equal(t, 3, DistinctClusters(res.Labels))
}

func TestRunDeterministicForSeed(t *testing.T) {
	vecs := axisVectors()

	a, err := Run(vecs, 2, 42, 10)
	require.NoError(t, err)
	b, err := Run(vecs, 2, 42, 10)
	require.NoError(t, err)
	assert.Equal(t, a.Labels, b.Labels)
	assert.Equal(t, a.Centroids, b.Centroids)
}

func TestRunRejectsBadK(t *testing.T) {
	vecs := axisVectors()

	_, err := Run(vecs, 0, 42, 10)
	assert.Error(t, err)
	_, err = Run(vecs, len(vecs)+1, 42, 10)
	assert.Error(t, err)
	_, err = Run(nil, 1, 42, 10)
	assert.Error(t, err)
}

func TestSilhouetteRewardsTruePartition(t *testing.T) {
	vecs := axisVectors()

	good, err := Run(vecs, 3, 42, 10)
	require.NoError(t, err)
	goodScore := Silhouette(vecs, good.Labels)
	assert.Greater(t, goodScore, 0.5)
	assert.LessOrEqual(t, goodScore, 1.0)

	// A mixed-up labeling scores worse.
	badScore := Silhouette(vecs, []int{0, 1, 0, 1, 0, 1})
	assert.Less(t, badScore, goodScore)
	assert.GreaterOrEqual(t, badScore, -1.0)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float64{1, 2, 3}, []float64{2, 4, 6}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float64{1, 0}, []float64{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, CosineSimilarity([]float64{1, 0}, []float64{-1, 0}), 1e-9)
	assert.Equal(t, 0.0, CosineSimilarity([]float64{0, 0}, []float64{1, 1}))
}
