package graph

import (
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func randParam(name string, r, c int, rng *rand.Rand) *Param {
	w := make([]float64, r*c)
	for i := range w {
		w[i] = rng.Float64() - 0.5
	}
	return NewParam(name, mat.NewDense(r, c, w))
}

// gradCheck compares the analytic gradient of loss with central differences
// on every entry of every parameter.
func gradCheck(t *testing.T, loss func(g *Graph) *Node, ps ...*Param) {
	t.Helper()
	for _, p := range ps {
		p.ZeroGrad()
	}
	g := New(true, false, nil)
	g.Backward(loss(g))
	g.Flush()

	forward := func() float64 { return loss(New(false, false, nil)).Scalar() }
	eps := 1e-5
	for _, p := range ps {
		r, c := p.W.Dims()
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				w0 := p.W.At(i, j)
				p.W.Set(i, j, w0+eps)
				lp := forward()
				p.W.Set(i, j, w0-eps)
				lm := forward()
				p.W.Set(i, j, w0)

				num := (lp - lm) / (2 * eps)
				ana := p.Grad.At(i, j)
				if math.Abs(num-ana) > 1e-5*math.Max(1, math.Abs(num)) {
					t.Fatalf("%s[%d,%d] grad mismatch: num=%.6g ana=%.6g", p.Name, i, j, num, ana)
				}
			}
		}
	}
}

func TestDenseOpsGradCheck(t *testing.T) {
	rng := rand.New(rand.NewSource(123))
	w := randParam("w", 3, 4, rng)
	b := randParam("b", 3, 1, rng)
	x := randParam("x", 4, 5, rng)
	u := randParam("u", 3, 5, rng)
	gold := []int{0, 2, 1, 0, 2}

	gradCheck(t, func(g *Graph) *Node {
		h := g.AddBias(g.MatMul(g.Param(w), g.Param(x)), g.Param(b))
		h = g.Add(g.Tanh(h), g.Hadamard(g.Sigmoid(h), g.Param(u)))
		h = g.ScaleCols(g.Relu(h), []float64{1, 0.5, 2, 1, 3})
		return g.Scale(g.CrossEntropy(h, gold), 0.7)
	}, w, b, x, u)
}

func TestShapeOpsGradCheck(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	a := randParam("a", 2, 6, rng)
	c := randParam("c", 3, 6, rng)
	v := randParam("v", 1, 5, rng)

	gradCheck(t, func(g *Graph) *Node {
		x := g.ConcatRows(g.Param(a), g.Param(c))     // 5x6
		x = g.ConcatCols(g.Col(x, 5), g.Cols(x, 0, 3)) // 5x4
		y := g.Transpose(g.Rows(x, 1, 4))              // 4x3
		s := g.MatMul(g.Param(v), g.Tanh(x))           // 1x4
		return g.MatMul(g.MatMul(s, y), g.Const(mat.NewDense(3, 1, []float64{1, -2, 0.5})))
	}, a, c, v)
}

func TestSoftmaxGradCheck(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	a := randParam("a", 4, 2, rng)
	h := randParam("h", 3, 4, rng)
	mask := []uint8{0, 1, 0, 0}

	gradCheck(t, func(g *Graph) *Node {
		att := g.Softmax(g.Param(a), mask)
		ctx := g.MatMul(g.Param(h), att)
		return g.CrossEntropy(ctx, []int{2, 1})
	}, a, h)
}

func TestPoolingGradCheck(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	a := randParam("a", 2, 7, rng)
	w := randParam("w", 3, 6, rng)

	gradCheck(t, func(g *Graph) *Node {
		conv := g.MatMul(g.Param(w), g.Unfold(g.Param(a), 3)) // 3x5
		mx := g.MaxPoolCols(conv, 2)                          // 3x2
		avg := g.AvgPoolCols(conv, 2)                         // 3x4
		mean := g.MaskedMeanCols(avg, []uint8{0, 0, 1, 0})    // 3x1
		return g.CrossEntropy(g.ConcatCols(mx, mean), []int{1, 2, 2})
	}, a, w)
}

func TestLookupSkipsPaddingRow(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	emb := randParam("emb", 4, 3, rng)
	proj := randParam("proj", 5, 3, rng)
	ids := []int{2, 0, 2, 3}

	loss := func(g *Graph) *Node {
		return g.CrossEntropy(g.MatMul(g.Param(proj), g.Lookup(emb, ids)), []int{1, 4, 0, 3})
	}
	g := New(true, false, nil)
	g.Backward(loss(g))
	g.Flush()
	for j := 0; j < 3; j++ {
		if emb.Grad.At(0, j) != 0 {
			t.Errorf("expected no gradient on the padding row; got %g", emb.Grad.At(0, j))
		}
		if emb.Grad.At(1, j) != 0 {
			t.Errorf("expected no gradient on an unused row; got %g", emb.Grad.At(1, j))
		}
	}

	// a table whose padding row is never looked up must pass the full check
	ids = []int{2, 1, 2, 3}
	gradCheck(t, loss, emb, proj)
}

func TestSoftmaxMaskedExactlyZero(t *testing.T) {
	g := New(false, false, nil)
	a := g.Const(mat.NewDense(3, 2, []float64{1, 5, 2, 5, 3, 5}))
	out := g.Softmax(a, []uint8{0, 1, 0})
	if out.Value.At(1, 0) != 0 || out.Value.At(1, 1) != 0 {
		t.Errorf("expected masked row to be exactly 0; got %v", mat.Row(nil, 1, out.Value))
	}
	if s := out.Value.At(0, 1) + out.Value.At(2, 1); math.Abs(s-1) > 1e-12 {
		t.Errorf("expected column to sum to 1; got %g", s)
	}
	if out.Value.At(0, 1) != out.Value.At(2, 1) {
		t.Error("expected equal scores to share the mass")
	}
	none := g.Softmax(a, []uint8{1, 1, 1})
	if mat.Sum(none.Value) != 0 {
		t.Errorf("expected an all-masked column to be zero; got %v", none.Value.RawMatrix().Data)
	}
}

func TestMaskedMeanColsSkipsPadding(t *testing.T) {
	g := New(false, false, nil)
	a := g.Const(mat.NewDense(2, 3, []float64{1, 100, 3, 2, 100, 6}))
	out := g.MaskedMeanCols(a, []uint8{0, 1, 0})
	if r, c := out.Value.Dims(); r != 2 || c != 1 {
		t.Fatalf("expected a 2x1 result; got %dx%d", r, c)
	}
	if out.Value.At(0, 0) != 2 || out.Value.At(1, 0) != 4 {
		t.Errorf("expected [2 4]; got %v", out.Value.RawMatrix().Data)
	}
	none := g.MaskedMeanCols(a, []uint8{1, 1, 1})
	if mat.Sum(none.Value) != 0 {
		t.Errorf("expected zero with every column masked; got %v", none.Value.RawMatrix().Data)
	}
}

func TestCrossEntropyIgnoresPadding(t *testing.T) {
	g := New(false, false, nil)
	logits := g.Const(mat.NewDense(2, 2, []float64{0, 0, 0, 0}))
	if got := g.CrossEntropy(logits, []int{0, 0}).Scalar(); got != 0 {
		t.Errorf("expected zero loss when every label is padding; got %g", got)
	}
	if got := g.CrossEntropy(logits, []int{1, 0}).Scalar(); math.Abs(got-math.Log(2)) > 1e-12 {
		t.Errorf("expected log 2; got %g", got)
	}
}

func TestDropoutOnlyWhileTraining(t *testing.T) {
	x := mat.NewDense(10, 10, nil)
	x.Apply(func(_, _ int, _ float64) float64 { return 1 }, x)

	eval := New(false, false, nil)
	in := eval.Const(x)
	if eval.Dropout(in, 0.5) != in {
		t.Error("expected dropout to be the identity outside training")
	}

	train := New(false, true, rand.New(rand.NewSource(1)))
	out := train.Dropout(train.Const(x), 0.5)
	zeros := 0
	for _, v := range out.Value.RawMatrix().Data {
		switch v {
		case 0:
			zeros++
		case 2:
		default:
			t.Fatalf("expected kept entries scaled to 2; got %g", v)
		}
	}
	if zeros == 0 || zeros == 100 {
		t.Errorf("expected some but not all entries dropped; got %d zeros", zeros)
	}
}

func TestFlushMergesConcurrentGraphs(t *testing.T) {
	w := NewParam("w", mat.NewDense(1, 1, []float64{3}))
	done := make(chan struct{})
	for i := 0; i < 4; i++ {
		go func() {
			g := New(true, false, nil)
			g.Backward(g.Scale(g.Param(w), 2))
			g.Flush()
			done <- struct{}{}
		}()
	}
	for i := 0; i < 4; i++ {
		<-done
	}
	if got := w.Grad.At(0, 0); got != 8 {
		t.Errorf("expected merged gradient 8; got %g", got)
	}
}
