package segment

import (
	"fmt"
	"math"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// kmeans is a seeded Lloyd's-algorithm clusterer. All sources of
// nondeterminism (initialization, tie-breaking, iteration order) are fixed,
// so the same points and seed always yield the same assignment.
type kmeans struct {
	k       int
	seed    int64
	maxIter int
	tol     float64
}

func newKMeans(k int, seed int64) *kmeans {
	return &kmeans{
		k:       k,
		seed:    seed,
		maxIter: 100,
		tol:     1e-6,
	}
}

// fit clusters the points and returns per-point assignments and centroids.
func (m *kmeans) fit(points [][]float64) ([]int, [][]float64, error) {
	if m.k < 2 {
		return nil, nil, fmt.Errorf("%w: k must be >= 2, got %d", domain.ErrInvalidInput, m.k)
	}
	if len(points) < m.k {
		return nil, nil, fmt.Errorf("%w: %d points for k=%d", domain.ErrDegenerate, len(points), m.k)
	}
	if distinctPoints(points) < m.k {
		return nil, nil, fmt.Errorf("%w: fewer than k=%d distinct points", domain.ErrDegenerate, m.k)
	}

	centroids := m.seedCentroids(points)
	assignments := make([]int, len(points))

	for iter := 0; iter < m.maxIter; iter++ {
		for i, p := range points {
			assignments[i] = nearest(p, centroids)
		}

		next := recompute(points, assignments, m.k, centroids)

		shift := 0.0
		for c := range centroids {
			shift += distSq(centroids[c], next[c])
		}
		centroids = next

		if shift < m.tol {
			break
		}
	}

	for i, p := range points {
		assignments[i] = nearest(p, centroids)
	}

	return assignments, centroids, nil
}

// seedCentroids picks initial centers with a k-means++ style spread driven
// by a SplitMix64 stream, so initialization depends only on the seed and the
// point order.
func (m *kmeans) seedCentroids(points [][]float64) [][]float64 {
	rng := newSplitMix64(uint64(m.seed))
	centroids := make([][]float64, 0, m.k)

	first := int(rng.next() % uint64(len(points)))
	centroids = append(centroids, clone(points[first]))

	dist := make([]float64, len(points))
	for len(centroids) < m.k {
		total := 0.0
		for i, p := range points {
			d := math.Inf(1)
			for _, c := range centroids {
				if ds := distSq(p, c); ds < d {
					d = ds
				}
			}
			dist[i] = d
			total += d
		}

		if total == 0 {
			// All remaining points coincide with chosen centers; fall back
			// to the next unused point index.
			centroids = append(centroids, clone(points[len(centroids)%len(points)]))
			continue
		}

		target := rng.float64() * total
		acc := 0.0
		chosen := len(points) - 1
		for i, d := range dist {
			acc += d
			if acc >= target {
				chosen = i
				break
			}
		}
		centroids = append(centroids, clone(points[chosen]))
	}

	return centroids
}

// nearest returns the index of the closest centroid, lowest index winning ties.
func nearest(p []float64, centroids [][]float64) int {
	best := 0
	bestD := distSq(p, centroids[0])
	for c := 1; c < len(centroids); c++ {
		if d := distSq(p, centroids[c]); d < bestD {
			best = c
			bestD = d
		}
	}
	return best
}

// recompute derives new centroids as member means. An emptied cluster keeps
// its previous center rather than collapsing to the origin.
func recompute(points [][]float64, assignments []int, k int, prev [][]float64) [][]float64 {
	dims := len(points[0])
	sums := make([][]float64, k)
	counts := make([]int, k)
	for c := range sums {
		sums[c] = make([]float64, dims)
	}

	for i, p := range points {
		c := assignments[i]
		counts[c]++
		for d, v := range p {
			sums[c][d] += v
		}
	}

	next := make([][]float64, k)
	for c := range next {
		if counts[c] == 0 {
			next[c] = clone(prev[c])
			continue
		}
		next[c] = make([]float64, dims)
		for d := range sums[c] {
			next[c][d] = sums[c][d] / float64(counts[c])
		}
	}
	return next
}

func distSq(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

func clone(p []float64) []float64 {
	out := make([]float64, len(p))
	copy(out, p)
	return out
}

func distinctPoints(points [][]float64) int {
	seen := make(map[string]bool, len(points))
	for _, p := range points {
		key := fmt.Sprintf("%v", p)
		seen[key] = true
	}
	return len(seen)
}

// splitMix64 is a tiny deterministic PRNG. math/rand would work, but its
// algorithm is not guaranteed stable across Go releases; reproducible labels
// require a fixed stream.
type splitMix64 struct {
	state uint64
}

func newSplitMix64(seed uint64) *splitMix64 {
	return &splitMix64{state: seed}
}

func (s *splitMix64) next() uint64 {
	s.state += 0x9e3779b97f4a7c15
	z := s.state
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

// float64 returns a uniform value in [0, 1).
func (s *splitMix64) float64() float64 {
	return float64(s.next()>>11) / float64(1<<53)
}
