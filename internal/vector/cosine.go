// Package vector holds the similarity kernels used for ranking.
package vector

import "math"

// Cosine returns dot(a, b) / (|a| * |b|).
// Vectors of different length, empty vectors, zero-norm vectors and any non-finite
// intermediate all yield 0 so that NaN never reaches the ranking.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	if math.IsNaN(sim) || math.IsInf(sim, 0) {
		return 0
	}
	// rounding can push |sim| a hair past 1
	return math.Max(-1, math.Min(1, sim))
}

// Norm returns the Euclidean length of v.
func Norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}
