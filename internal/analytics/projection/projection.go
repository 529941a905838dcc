package projection

import "math"

const (
	Components = 3
	Scale      = 10.0
	maxIter    = 200
	tolerance  = 1e-9
)

// Project3D maps vectors onto their first three principal components,
// centered and scaled so the largest absolute coordinate is Scale. Shorter
// vectors are zero padded. Empty entries are missing: they do not take part
// in centering or the fit and are placed at the origin. Output is
// deterministic for equal input.
func Project3D(vectors [][]float32) [][3]float64 {
	n := len(vectors)
	out := make([][3]float64, n)
	dim := 0
	present := make([]int, 0, n)
	for i, v := range vectors {
		if len(v) == 0 {
			continue
		}
		present = append(present, i)
		dim = max(dim, len(v))
	}
	if len(present) == 0 {
		return out
	}

	x := make([][]float64, len(present))
	mean := make([]float64, dim)
	for k, i := range present {
		row := make([]float64, dim)
		for j, f := range vectors[i] {
			row[j] = float64(f)
			mean[j] += float64(f)
		}
		x[k] = row
	}
	for j := range mean {
		mean[j] /= float64(len(present))
	}
	for _, row := range x {
		for j := range row {
			row[j] -= mean[j]
		}
	}

	var comps [][]float64
	for c := 0; c < Components && c < dim; c++ {
		v := principal(x, comps, c)
		if v == nil {
			break
		}
		comps = append(comps, v)
	}
	for k, row := range x {
		for c, v := range comps {
			out[present[k]][c] = dot(row, v)
		}
	}

	peak := 0.0
	for _, p := range out {
		for _, f := range p {
			peak = math.Max(peak, math.Abs(f))
		}
	}
	if peak > 0 {
		for i := range out {
			for c := range out[i] {
				out[i][c] *= Scale / peak
			}
		}
	}
	return out
}

// principal finds the next leading eigenvector of XᵀX orthogonal to prev by
// power iteration. It returns nil when the remaining variance is zero.
func principal(x [][]float64, prev [][]float64, c int) []float64 {
	dim := len(x[0])
	v := make([]float64, dim)
	for j := range v {
		v[j] = 1 / float64(j+c+1)
	}
	orthonormalize(v, prev)
	if norm(v) == 0 {
		v[c%dim] = 1
		orthonormalize(v, prev)
	}
	for iter := 0; iter < maxIter; iter++ {
		next := make([]float64, dim)
		for _, row := range x {
			s := dot(row, v)
			if s == 0 {
				continue
			}
			for j, f := range row {
				next[j] += s * f
			}
		}
		orthonormalize(next, prev)
		if norm(next) == 0 {
			return nil
		}
		delta := 0.0
		for j := range next {
			delta += math.Abs(next[j] - v[j])
		}
		v = next
		if delta < tolerance {
			break
		}
	}
	// Fix the sign so the largest loading is positive.
	big := 0
	for j := range v {
		if math.Abs(v[j]) > math.Abs(v[big]) {
			big = j
		}
	}
	if v[big] < 0 {
		for j := range v {
			v[j] = -v[j]
		}
	}
	return v
}

func orthonormalize(v []float64, basis [][]float64) {
	for _, b := range basis {
		p := dot(v, b)
		for j := range v {
			v[j] -= p * b[j]
		}
	}
	n := norm(v)
	if n < 1e-12 {
		for j := range v {
			v[j] = 0
		}
		return
	}
	for j := range v {
		v[j] /= n
	}
}

func dot(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func norm(v []float64) float64 {
	return math.Sqrt(dot(v, v))
}
