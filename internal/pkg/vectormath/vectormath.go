// Package vectormath provides the scoring primitives shared by the
// vector index backends.
package vectormath

import "math"

// Dot returns the inner product of a and b. Dimensions must match.
func Dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// Norm returns the L2 norm of v.
func Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// Normalized returns a unit-length copy of v. A zero vector is returned
// unchanged.
func Normalized(v []float32) []float32 {
	out := make([]float32, len(v))
	n := Norm(v)
	if n == 0 {
		copy(out, v)
		return out
	}
	for i, x := range v {
		out[i] = float32(float64(x) / n)
	}
	return out
}

// CosineSimilarity returns the cosine of the angle between a and b,
// in [-1, 1]. Either vector being zero yields 0.
func CosineSimilarity(a, b []float32) float64 {
	na, nb := Norm(a), Norm(b)
	if na == 0 || nb == 0 {
		return 0
	}
	return Dot(a, b) / (na * nb)
}

// UnitScore maps a cosine similarity into the [0, 1] score space used
// across the retrieval core: (cos+1)/2, so an exact self-match scores
// 1.0 and an opposite vector scores 0.0. Float drift is clamped.
func UnitScore(cos float64) float64 {
	s := (cos + 1) / 2
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}
