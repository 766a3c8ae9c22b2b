package utils

import (
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestArgMaxLowestIndexOnTies(t *testing.T) {
	tests := []struct {
		in   []float64
		want int
	}{
		{[]float64{1, 3, 3, 2}, 1},
		{[]float64{5}, 0},
		{[]float64{-1, -1, -1}, 0},
		{[]float64{math.Inf(-1), 0, math.Inf(-1)}, 1},
	}
	for _, tt := range tests {
		if got := ArgMax(tt.in); got != tt.want {
			t.Errorf("ArgMax(%v): expected %d; got %d", tt.in, tt.want, got)
		}
	}
}

func TestMaskedArgMax(t *testing.T) {
	xs := []float64{9, 1, 4, 4}
	if got := MaskedArgMax(xs, []uint8{1, 0, 0, 0}); got != 2 {
		t.Errorf("expected 2; got %d", got)
	}
	if got := MaskedArgMax(xs, []uint8{1, 1, 1, 1}); got != -1 {
		t.Errorf("expected -1 when all masked; got %d", got)
	}
	if got := MaskedArgMax(xs, nil); got != 0 {
		t.Errorf("expected 0 without a mask; got %d", got)
	}
}

func TestColArgMax(t *testing.T) {
	m := mat.NewDense(3, 2, []float64{
		0, 7,
		2, 7,
		1, 1,
	})
	got := ColArgMax(m)
	if got[0] != 1 || got[1] != 0 {
		t.Errorf("expected [1 0]; got %v", got)
	}
}

func TestClipGrads(t *testing.T) {
	a := mat.NewDense(1, 2, []float64{3, 0})
	b := mat.NewDense(1, 1, []float64{4})
	norm := ClipGrads(1, a, b)
	if math.Abs(norm-5) > 1e-12 {
		t.Errorf("expected pre-clip norm 5; got %g", norm)
	}
	if after := GlobalNorm(a, b); math.Abs(after-1) > 1e-5 {
		t.Errorf("expected clipped norm 1; got %g", after)
	}
	c := mat.NewDense(1, 1, []float64{0.5})
	ClipGrads(1, c)
	if c.At(0, 0) != 0.5 {
		t.Errorf("expected small gradient untouched; got %g", c.At(0, 0))
	}
	ClipGrads(0, a)
	if math.Abs(GlobalNorm(a, b)-1) > 1e-5 {
		t.Error("expected clipping disabled for a non-positive bound")
	}
}

func TestRandomArrayBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(123))
	xs := RandomArray(1000, 4, rng)
	for _, x := range xs {
		if x < -0.5 || x > 0.5 {
			t.Fatalf("expected values in [-0.5, 0.5]; got %g", x)
		}
	}
	again := RandomArray(1000, 4, rand.New(rand.NewSource(123)))
	if again[17] != xs[17] {
		t.Error("expected the same seed to give the same draw")
	}
}
