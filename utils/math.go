package utils

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// RandomArray returns 'size' samples from U(-1/sqrt(v), 1/sqrt(v)).
func RandomArray(size int, v float64, rng *rand.Rand) []float64 {
	bound := 1.0 / math.Sqrt(v+1e-12)
	return RandomUniform(size, bound, rng)
}

// RandomUniform returns 'size' samples from U(-bound, bound).
func RandomUniform(size int, bound float64, rng *rand.Rand) []float64 {
	out := make([]float64, size)
	for i := range out {
		out[i] = -bound + 2*bound*rng.Float64()
	}
	return out
}

// RandomNormal returns 'size' samples from N(0, 1).
func RandomNormal(size int, rng *rand.Rand) []float64 {
	out := make([]float64, size)
	for i := range out {
		out[i] = rng.NormFloat64()
	}
	return out
}

// ArgMax returns the index of the largest value. Ties go to the lowest index.
func ArgMax(xs []float64) int {
	best := 0
	for i := 1; i < len(xs); i++ {
		if xs[i] > xs[best] {
			best = i
		}
	}
	return best
}

// MaskedArgMax is ArgMax over the entries whose mask is 0. It returns -1 when
// every entry is masked.
func MaskedArgMax(xs []float64, mask []uint8) int {
	best := -1
	for i, x := range xs {
		if mask != nil && mask[i] != 0 {
			continue
		}
		if best < 0 || x > xs[best] {
			best = i
		}
	}
	return best
}

// ColArgMax returns the ArgMax of every column of m.
func ColArgMax(m mat.Matrix) []int {
	r, c := m.Dims()
	out := make([]int, c)
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, m)
		out[j] = ArgMax(col)
	}
	return out
}

// GlobalNorm is the L2 norm of all matrices taken as one vector.
func GlobalNorm(ms ...*mat.Dense) float64 {
	sum := 0.0
	for _, m := range ms {
		n := mat.Norm(m, 2)
		sum += n * n
	}
	return math.Sqrt(sum)
}

// ClipGrads rescales ms in place so their global norm is at most maxNorm and
// returns the norm before clipping. maxNorm <= 0 disables clipping.
func ClipGrads(maxNorm float64, ms ...*mat.Dense) float64 {
	norm := GlobalNorm(ms...)
	if maxNorm <= 0 || norm <= maxNorm {
		return norm
	}
	coef := maxNorm / (norm + 1e-6)
	for _, m := range ms {
		m.Scale(coef, m)
	}
	return norm
}

// RowSums returns per-row sums for a mat.Dense.
func RowSums(m *mat.Dense) []float64 {
	r, _ := m.Dims()
	out := make([]float64, r)
	for i := 0; i < r; i++ {
		out[i] = floats.Sum(m.RawRowView(i))
	}
	return out
}
