// Package kmeans implements seeded Lloyd k-means over raw vectors plus the
// cosine-distance silhouette score used to pick a cluster count.
//
// The metric mix is deliberate: partitioning is Euclidean (standard k-means)
// while k selection and similarity search elsewhere use cosine distance.
package kmeans

import (
	"errors"
	"math"
	"math/rand"
)

// Result holds one k-means partition: a label per input vector and a
// centroid per cluster. Clusters may be empty; their centroid is kept.
type Result struct {
	Labels    []int
	Centroids [][]float64
}

const (
	defaultRestarts = 10
	maxIterations   = 100
)

// Run partitions vectors into k clusters. The seed fixes both the restart
// sequence and the k-means++ style initialization, so identical input
// always yields an identical partition. The best of `restarts` runs by
// within-cluster sum of squares wins.
func Run(vectors [][]float64, k int, seed int64, restarts int) (*Result, error) {
	n := len(vectors)
	if n == 0 {
		return nil, errors.New("kmeans: no input vectors")
	}
	if k < 1 || k > n {
		return nil, errors.New("kmeans: k out of range")
	}
	if restarts <= 0 {
		restarts = defaultRestarts
	}

	rng := rand.New(rand.NewSource(seed))

	var best *Result
	bestInertia := math.Inf(1)
	for r := 0; r < restarts; r++ {
		res, inertia := runOnce(vectors, k, rng)
		if inertia < bestInertia {
			bestInertia = inertia
			best = res
		}
	}
	return best, nil
}

func runOnce(vectors [][]float64, k int, rng *rand.Rand) (*Result, float64) {
	centroids := seedCentroids(vectors, k, rng)
	labels := make([]int, len(vectors))

	for iter := 0; iter < maxIterations; iter++ {
		changed := false
		for i, v := range vectors {
			best := 0
			bestDist := math.Inf(1)
			for c := range centroids {
				if d := squaredDistance(v, centroids[c]); d < bestDist {
					bestDist = d
					best = c
				}
			}
			if labels[i] != best {
				labels[i] = best
				changed = true
			}
		}

		dim := len(vectors[0])
		sums := make([][]float64, k)
		counts := make([]int, k)
		for c := range sums {
			sums[c] = make([]float64, dim)
		}
		for i, v := range vectors {
			c := labels[i]
			counts[c]++
			for j, x := range v {
				sums[c][j] += x
			}
		}
		for c := 0; c < k; c++ {
			if counts[c] == 0 {
				continue // empty cluster keeps its previous centroid
			}
			for j := range sums[c] {
				sums[c][j] /= float64(counts[c])
			}
			centroids[c] = sums[c]
		}

		if !changed {
			break
		}
	}

	var inertia float64
	for i, v := range vectors {
		inertia += squaredDistance(v, centroids[labels[i]])
	}
	return &Result{Labels: labels, Centroids: centroids}, inertia
}

// seedCentroids picks initial centers k-means++ style: a random first
// center, then each next center with probability proportional to its
// squared distance from the nearest chosen center.
func seedCentroids(vectors [][]float64, k int, rng *rand.Rand) [][]float64 {
	centroids := make([][]float64, 0, k)
	centroids = append(centroids, cloneVector(vectors[rng.Intn(len(vectors))]))

	dists := make([]float64, len(vectors))
	for len(centroids) < k {
		var total float64
		for i, v := range vectors {
			d := math.Inf(1)
			for _, c := range centroids {
				if sd := squaredDistance(v, c); sd < d {
					d = sd
				}
			}
			dists[i] = d
			total += d
		}

		if total == 0 {
			// All points coincide with chosen centers; fall back to uniform.
			centroids = append(centroids, cloneVector(vectors[rng.Intn(len(vectors))]))
			continue
		}

		target := rng.Float64() * total
		idx := 0
		for i, d := range dists {
			target -= d
			if target <= 0 {
				idx = i
				break
			}
		}
		centroids = append(centroids, cloneVector(vectors[idx]))
	}
	return centroids
}

// DistinctClusters reports how many labels map to a non-empty cluster.
func DistinctClusters(labels []int) int {
	seen := map[int]struct{}{}
	for _, l := range labels {
		seen[l] = struct{}{}
	}
	return len(seen)
}

// Silhouette computes the mean silhouette coefficient of a partition using
// cosine distance. Points in singleton clusters score zero. The caller must
// ensure the partition has at least two distinct non-empty clusters.
func Silhouette(vectors [][]float64, labels []int) float64 {
	n := len(vectors)
	if n == 0 {
		return 0
	}

	counts := map[int]int{}
	for _, l := range labels {
		counts[l]++
	}

	var total float64
	for i := range vectors {
		own := labels[i]
		if counts[own] <= 1 {
			continue // singleton scores 0
		}

		// Mean cosine distance to every cluster.
		sums := map[int]float64{}
		for j := range vectors {
			if i == j {
				continue
			}
			sums[labels[j]] += 1 - CosineSimilarity(vectors[i], vectors[j])
		}

		a := sums[own] / float64(counts[own]-1)
		b := math.Inf(1)
		for c, cnt := range counts {
			if c == own || cnt == 0 {
				continue
			}
			if m := sums[c] / float64(cnt); m < b {
				b = m
			}
		}
		if math.IsInf(b, 1) {
			continue
		}

		if d := math.Max(a, b); d > 0 {
			total += (b - a) / d
		}
	}
	return total / float64(n)
}

// CosineSimilarity returns the cosine of the angle between a and b, or 0
// when either vector has zero magnitude.
func CosineSimilarity(a, b []float64) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func squaredDistance(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

func cloneVector(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	return out
}
