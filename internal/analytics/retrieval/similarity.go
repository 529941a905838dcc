package retrieval

import "math"

// PadTo returns v right-padded with zeros to n components. v is not modified.
func PadTo(v []float32, n int) []float32 {
	if len(v) >= n {
		return v
	}
	out := make([]float32, n)
	copy(out, v)
	return out
}

// Cosine compares two vectors after padding the shorter one. A zero norm
// scores 0.
func Cosine(a, b []float32) float64 {
	n := max(len(a), len(b))
	a, b = PadTo(a, n), PadTo(b, n)
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
