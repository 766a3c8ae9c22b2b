package optimizations

import (
	"math"
	"testing"

	"github.com/aSeaFood/STER/graph"
	"gonum.org/v1/gonum/mat"
)

func TestAdamFirstStepMovesByLR(t *testing.T) {
	p := mat.NewDense(1, 2, []float64{1, 1})
	g := mat.NewDense(1, 2, []float64{0.3, -5})
	m := mat.NewDense(1, 2, nil)
	v := mat.NewDense(1, 2, nil)
	AdamUpdateInPlace(p, g, m, v, 1, 0.1, 0.9, 0.999, 1e-8, 0)
	// bias correction makes the first step lr * sign(g)
	if math.Abs(p.At(0, 0)-0.9) > 1e-6 || math.Abs(p.At(0, 1)-1.1) > 1e-6 {
		t.Errorf("expected [0.9 1.1]; got %v", p.RawRowView(0))
	}
	if math.Abs(m.At(0, 1)+0.5) > 1e-12 {
		t.Errorf("expected first moment -0.5; got %g", m.At(0, 1))
	}
}

func TestAdamShapeMismatchPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected a panic on mismatched shapes")
		}
	}()
	AdamUpdateInPlace(mat.NewDense(1, 2, nil), mat.NewDense(2, 1, nil), mat.NewDense(1, 2, nil), mat.NewDense(1, 2, nil), 1, 0.1, 0.9, 0.999, 1e-8, 0)
}

func TestAdamStepClipsAndClears(t *testing.T) {
	a := graph.NewParam("a", mat.NewDense(1, 1, []float64{0}))
	b := graph.NewParam("b", mat.NewDense(1, 1, []float64{0}))
	a.Grad.Set(0, 0, 30)
	b.Grad.Set(0, 0, 40)
	opt := &Adam{LR: 0.01, Beta1: 0.9, Beta2: 0.999, Eps: 1e-8, Clip: 10}
	norm := opt.Step([]*graph.Param{a, b})
	if math.Abs(norm-50) > 1e-9 {
		t.Errorf("expected pre-clip norm 50; got %g", norm)
	}
	if opt.T != 1 {
		t.Errorf("expected step counter 1; got %d", opt.T)
	}
	if a.Grad.At(0, 0) != 0 || b.Grad.At(0, 0) != 0 {
		t.Error("expected gradients cleared after the step")
	}
	if math.Abs(a.W.At(0, 0)+0.01) > 1e-6 || math.Abs(b.W.At(0, 0)+0.01) > 1e-6 {
		t.Errorf("expected both weights to move by -lr; got %g %g", a.W.At(0, 0), b.W.At(0, 0))
	}
	if math.Abs(a.M.At(0, 0)-0.6) > 1e-5 {
		t.Errorf("expected the clipped gradient in the first moment; got %g", a.M.At(0, 0))
	}
}
