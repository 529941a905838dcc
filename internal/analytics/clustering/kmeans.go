package clustering

import (
	"math"
	"math/rand"
)

type KMeansOptions struct {
	NInit   int
	MaxIter int
	Seed    int64
}

func DefaultKMeansOptions() KMeansOptions {
	return KMeansOptions{NInit: 10, MaxIter: 300, Seed: 42}
}

// KMeans partitions points into k groups under Euclidean distance. It runs
// k-means++ seeding NInit times from one seeded stream and keeps the run with
// the lowest inertia, so equal input gives equal labels. Every label in
// [0, k) is used when len(points) >= k.
func KMeans(points [][]float64, k int, opts KMeansOptions) ([]int, float64) {
	n := len(points)
	if n == 0 || k <= 0 {
		return nil, 0
	}
	if k > n {
		k = n
	}
	if opts.NInit <= 0 {
		opts.NInit = 1
	}
	if opts.MaxIter <= 0 {
		opts.MaxIter = 300
	}
	rng := rand.New(rand.NewSource(opts.Seed))

	var best []int
	bestInertia := math.Inf(1)
	for run := 0; run < opts.NInit; run++ {
		labels, inertia := lloyd(points, seedPlusPlus(points, k, rng), opts.MaxIter)
		if inertia < bestInertia {
			best, bestInertia = labels, inertia
		}
	}
	return best, bestInertia
}

func seedPlusPlus(points [][]float64, k int, rng *rand.Rand) [][]float64 {
	n := len(points)
	centers := make([][]float64, 0, k)
	centers = append(centers, clone(points[rng.Intn(n)]))
	d2 := make([]float64, n)
	for i := range points {
		d2[i] = sqDist(points[i], centers[0])
	}
	for len(centers) < k {
		total := 0.0
		for _, d := range d2 {
			total += d
		}
		pick := 0
		if total > 0 {
			r := rng.Float64() * total
			for i, d := range d2 {
				r -= d
				if r <= 0 {
					pick = i
					break
				}
				pick = i
			}
		} else {
			pick = rng.Intn(n)
		}
		c := clone(points[pick])
		centers = append(centers, c)
		for i := range points {
			if d := sqDist(points[i], c); d < d2[i] {
				d2[i] = d
			}
		}
	}
	return centers
}

func lloyd(points [][]float64, centers [][]float64, maxIter int) ([]int, float64) {
	n, k := len(points), len(centers)
	labels := make([]int, n)
	for i := range labels {
		labels[i] = -1
	}
	for iter := 0; iter < maxIter; iter++ {
		changed := false
		for i, p := range points {
			c := nearest(p, centers)
			if c != labels[i] {
				labels[i] = c
				changed = true
			}
		}
		if fillEmpty(points, centers, labels, k) {
			changed = true
		}
		centers = means(points, labels, k, len(points[0]))
		if !changed {
			break
		}
	}
	inertia := 0.0
	for i, p := range points {
		inertia += sqDist(p, centers[labels[i]])
	}
	return labels, inertia
}

// fillEmpty moves the point farthest from its own center into each empty
// cluster. Donors must keep at least one member.
func fillEmpty(points, centers [][]float64, labels []int, k int) bool {
	sizes := make([]int, k)
	for _, l := range labels {
		sizes[l]++
	}
	moved := false
	for c := 0; c < k; c++ {
		if sizes[c] > 0 {
			continue
		}
		far, farD := -1, -1.0
		for i, p := range points {
			if sizes[labels[i]] < 2 {
				continue
			}
			if d := sqDist(p, centers[labels[i]]); d > farD {
				far, farD = i, d
			}
		}
		if far < 0 {
			break
		}
		sizes[labels[far]]--
		labels[far] = c
		sizes[c]++
		centers[c] = clone(points[far])
		moved = true
	}
	return moved
}

func nearest(p []float64, centers [][]float64) int {
	best, bestD := 0, math.Inf(1)
	for c, ctr := range centers {
		if d := sqDist(p, ctr); d < bestD {
			best, bestD = c, d
		}
	}
	return best
}

func means(points [][]float64, labels []int, k, dim int) [][]float64 {
	out := make([][]float64, k)
	counts := make([]int, k)
	for c := range out {
		out[c] = make([]float64, dim)
	}
	for i, p := range points {
		c := labels[i]
		counts[c]++
		for j, v := range p {
			out[c][j] += v
		}
	}
	for c := range out {
		if counts[c] == 0 {
			continue
		}
		for j := range out[c] {
			out[c][j] /= float64(counts[c])
		}
	}
	return out
}

func sqDist(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		d := a[i] - b[i]
		s += d * d
	}
	return s
}

func clone(v []float64) []float64 {
	return append([]float64(nil), v...)
}
