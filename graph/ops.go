package graph

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func (g *Graph) newNode(r, c int) *Node {
	return &Node{Value: mat.NewDense(r, c, nil)}
}

// MatMul returns a·b.
func (g *Graph) MatMul(a, b *Node) *Node {
	ar, ac := a.Dims()
	br, bc := b.Dims()
	if ac != br {
		panic(fmt.Sprintf("graph: MatMul shape mismatch %dx%d by %dx%d", ar, ac, br, bc))
	}
	out := g.newNode(ar, bc)
	out.Value.Mul(a.Value, b.Value)
	g.addBackward(func() {
		if out.grad == nil {
			return
		}
		if a.wantsGrad() {
			var t mat.Dense
			t.Mul(out.grad, b.Value.T())
			a.Grad().Add(a.Grad(), &t)
		}
		if b.wantsGrad() {
			var t mat.Dense
			t.Mul(a.Value.T(), out.grad)
			b.Grad().Add(b.Grad(), &t)
		}
	})
	return out
}

// Add returns the element-wise sum of nodes of equal shape.
func (g *Graph) Add(ns ...*Node) *Node {
	if len(ns) == 0 {
		panic("graph: Add needs at least one node")
	}
	r, c := ns[0].Dims()
	out := g.newNode(r, c)
	for _, n := range ns {
		sameShape("Add", ns[0], n)
		out.Value.Add(out.Value, n.Value)
	}
	g.addBackward(func() {
		if out.grad == nil {
			return
		}
		for _, n := range ns {
			if n.wantsGrad() {
				n.Grad().Add(n.Grad(), out.grad)
			}
		}
	})
	return out
}

// AddBias adds the column b (r x 1) to every column of a.
func (g *Graph) AddBias(a, b *Node) *Node {
	r, c := a.Dims()
	if br, bc := b.Dims(); br != r || bc != 1 {
		panic(fmt.Sprintf("graph: AddBias needs a %dx1 bias, got %dx%d", r, br, bc))
	}
	out := g.newNode(r, c)
	for i := 0; i < r; i++ {
		bi := b.Value.At(i, 0)
		row, src := out.Value.RawRowView(i), a.Value.RawRowView(i)
		for j := range row {
			row[j] = src[j] + bi
		}
	}
	g.addBackward(func() {
		if out.grad == nil {
			return
		}
		if a.wantsGrad() {
			a.Grad().Add(a.Grad(), out.grad)
		}
		if b.wantsGrad() {
			bg := b.Grad()
			for i := 0; i < r; i++ {
				bg.Set(i, 0, bg.At(i, 0)+floats.Sum(out.grad.RawRowView(i)))
			}
		}
	})
	return out
}

// Hadamard returns the element-wise product.
func (g *Graph) Hadamard(a, b *Node) *Node {
	sameShape("Hadamard", a, b)
	r, c := a.Dims()
	out := g.newNode(r, c)
	out.Value.MulElem(a.Value, b.Value)
	g.addBackward(func() {
		if out.grad == nil {
			return
		}
		var t mat.Dense
		if a.wantsGrad() {
			t.MulElem(out.grad, b.Value)
			a.Grad().Add(a.Grad(), &t)
		}
		if b.wantsGrad() {
			t.Reset()
			t.MulElem(out.grad, a.Value)
			b.Grad().Add(b.Grad(), &t)
		}
	})
	return out
}

// Scale returns s·a.
func (g *Graph) Scale(a *Node, s float64) *Node {
	r, c := a.Dims()
	out := g.newNode(r, c)
	out.Value.Scale(s, a.Value)
	g.addBackward(func() {
		if out.grad == nil || !a.wantsGrad() {
			return
		}
		var t mat.Dense
		t.Scale(s, out.grad)
		a.Grad().Add(a.Grad(), &t)
	})
	return out
}

// ScaleCols multiplies column j of a by s[j].
func (g *Graph) ScaleCols(a *Node, s []float64) *Node {
	r, c := a.Dims()
	if len(s) != c {
		panic(fmt.Sprintf("graph: ScaleCols got %d factors for %d columns", len(s), c))
	}
	out := g.newNode(r, c)
	for i := 0; i < r; i++ {
		floats.MulTo(out.Value.RawRowView(i), a.Value.RawRowView(i), s)
	}
	g.addBackward(func() {
		if out.grad == nil || !a.wantsGrad() {
			return
		}
		ag := a.Grad()
		for i := 0; i < r; i++ {
			dy, dx := out.grad.RawRowView(i), ag.RawRowView(i)
			for j := range dx {
				dx[j] += dy[j] * s[j]
			}
		}
	})
	return out
}

// elementwise applies f and uses df(x, y) with y = f(x) as the derivative.
func (g *Graph) elementwise(a *Node, f func(float64) float64, df func(x, y float64) float64) *Node {
	r, c := a.Dims()
	out := g.newNode(r, c)
	out.Value.Apply(func(_, _ int, v float64) float64 { return f(v) }, a.Value)
	g.addBackward(func() {
		if out.grad == nil || !a.wantsGrad() {
			return
		}
		ag := a.Grad()
		for i := 0; i < r; i++ {
			x, y, dy, dx := a.Value.RawRowView(i), out.Value.RawRowView(i), out.grad.RawRowView(i), ag.RawRowView(i)
			for j := range dx {
				dx[j] += df(x[j], y[j]) * dy[j]
			}
		}
	})
	return out
}

func (g *Graph) Tanh(a *Node) *Node {
	return g.elementwise(a, math.Tanh, func(_, y float64) float64 { return 1 - y*y })
}

func (g *Graph) Sigmoid(a *Node) *Node {
	return g.elementwise(a, func(x float64) float64 { return 1 / (1 + math.Exp(-x)) },
		func(_, y float64) float64 { return y * (1 - y) })
}

func (g *Graph) Relu(a *Node) *Node {
	return g.elementwise(a, func(x float64) float64 { return math.Max(0, x) },
		func(x, _ float64) float64 {
			if x > 0 {
				return 1
			}
			return 0
		})
}

// Dropout zeroes each entry with probability p and rescales the rest by
// 1/(1-p). It is the identity outside training.
func (g *Graph) Dropout(a *Node, p float64) *Node {
	if !g.Training || p <= 0 {
		return a
	}
	r, c := a.Dims()
	keep := mat.NewDense(r, c, nil)
	scale := 1 / (1 - p)
	keep.Apply(func(_, _ int, _ float64) float64 {
		if g.rng.Float64() < p {
			return 0
		}
		return scale
	}, keep)
	return g.Hadamard(a, g.Const(keep))
}

// ConcatRows stacks nodes with the same number of columns on top of each other.
func (g *Graph) ConcatRows(ns ...*Node) *Node {
	_, c := ns[0].Dims()
	rows := 0
	for _, n := range ns {
		nr, nc := n.Dims()
		if nc != c {
			panic(fmt.Sprintf("graph: ConcatRows column mismatch %d vs %d", nc, c))
		}
		rows += nr
	}
	out := g.newNode(rows, c)
	off := 0
	for _, n := range ns {
		nr, _ := n.Dims()
		out.Value.Slice(off, off+nr, 0, c).(*mat.Dense).Copy(n.Value)
		off += nr
	}
	g.addBackward(func() {
		if out.grad == nil {
			return
		}
		off := 0
		for _, n := range ns {
			nr, _ := n.Dims()
			if n.wantsGrad() {
				n.Grad().Add(n.Grad(), out.grad.Slice(off, off+nr, 0, c))
			}
			off += nr
		}
	})
	return out
}

// ConcatCols places nodes with the same number of rows side by side.
func (g *Graph) ConcatCols(ns ...*Node) *Node {
	r, _ := ns[0].Dims()
	cols := 0
	for _, n := range ns {
		nr, nc := n.Dims()
		if nr != r {
			panic(fmt.Sprintf("graph: ConcatCols row mismatch %d vs %d", nr, r))
		}
		cols += nc
	}
	out := g.newNode(r, cols)
	off := 0
	for _, n := range ns {
		_, nc := n.Dims()
		out.Value.Slice(0, r, off, off+nc).(*mat.Dense).Copy(n.Value)
		off += nc
	}
	g.addBackward(func() {
		if out.grad == nil {
			return
		}
		off := 0
		for _, n := range ns {
			_, nc := n.Dims()
			if n.wantsGrad() {
				n.Grad().Add(n.Grad(), out.grad.Slice(0, r, off, off+nc))
			}
			off += nc
		}
	})
	return out
}

// Rows returns rows [from, to) of a.
func (g *Graph) Rows(a *Node, from, to int) *Node {
	_, c := a.Dims()
	out := g.newNode(to-from, c)
	out.Value.Copy(a.Value.Slice(from, to, 0, c))
	g.addBackward(func() {
		if out.grad == nil || !a.wantsGrad() {
			return
		}
		dst := a.Grad().Slice(from, to, 0, c).(*mat.Dense)
		dst.Add(dst, out.grad)
	})
	return out
}

// Cols returns columns [from, to) of a.
func (g *Graph) Cols(a *Node, from, to int) *Node {
	r, _ := a.Dims()
	out := g.newNode(r, to-from)
	out.Value.Copy(a.Value.Slice(0, r, from, to))
	g.addBackward(func() {
		if out.grad == nil || !a.wantsGrad() {
			return
		}
		dst := a.Grad().Slice(0, r, from, to).(*mat.Dense)
		dst.Add(dst, out.grad)
	})
	return out
}

// Col returns column j of a as an r x 1 node.
func (g *Graph) Col(a *Node, j int) *Node { return g.Cols(a, j, j+1) }

func (g *Graph) Transpose(a *Node) *Node {
	r, c := a.Dims()
	out := g.newNode(c, r)
	out.Value.Copy(a.Value.T())
	g.addBackward(func() {
		if out.grad == nil || !a.wantsGrad() {
			return
		}
		a.Grad().Add(a.Grad(), out.grad.T())
	})
	return out
}

// Lookup gathers rows ids of the table p as the columns of a (d x len(ids))
// node. Row 0 is padding and receives no gradient.
func (g *Graph) Lookup(p *Param, ids []int) *Node {
	vocab, d := p.W.Dims()
	if len(ids) == 0 {
		panic("graph: Lookup needs at least one id")
	}
	out := g.newNode(d, len(ids))
	for j, id := range ids {
		if id < 0 || id >= vocab {
			panic(fmt.Sprintf("graph: Lookup id %d outside table of %d rows", id, vocab))
		}
		out.Value.SetCol(j, p.W.RawRowView(id))
	}
	g.addBackward(func() {
		if out.grad == nil {
			return
		}
		col := make([]float64, d)
		for j, id := range ids {
			if id == 0 {
				continue
			}
			mat.Col(col, j, out.grad)
			floats.Add(g.rowGrad(p, id), col)
		}
	})
	return out
}

// Softmax normalizes every column of a. Rows i with mask[i] != 0 get
// probability exactly 0; a column with every row masked is all zeros.
// A nil mask masks nothing.
func (g *Graph) Softmax(a *Node, mask []uint8) *Node {
	r, c := a.Dims()
	if mask != nil && len(mask) != r {
		panic(fmt.Sprintf("graph: Softmax mask of %d for %d rows", len(mask), r))
	}
	out := g.newNode(r, c)
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, a.Value)
		mx := math.Inf(-1)
		for i, v := range col {
			if mask == nil || mask[i] == 0 {
				mx = math.Max(mx, v)
			}
		}
		if math.IsInf(mx, -1) {
			continue
		}
		sum := 0.0
		for i, v := range col {
			if mask != nil && mask[i] != 0 {
				col[i] = 0
				continue
			}
			col[i] = math.Exp(v - mx)
			sum += col[i]
		}
		floats.Scale(1/sum, col)
		out.Value.SetCol(j, col)
	}
	g.addBackward(func() {
		if out.grad == nil || !a.wantsGrad() {
			return
		}
		ag := a.Grad()
		y := make([]float64, r)
		dy := make([]float64, r)
		for j := 0; j < c; j++ {
			mat.Col(y, j, out.Value)
			mat.Col(dy, j, out.grad)
			dot := floats.Dot(y, dy)
			for i := 0; i < r; i++ {
				ag.Set(i, j, ag.At(i, j)+y[i]*(dy[i]-dot))
			}
		}
	})
	return out
}

// CrossEntropy returns the summed negative log-likelihood of gold[j] under
// softmax(logits[:, j]). Positions with gold id 0 are ignored.
func (g *Graph) CrossEntropy(logits *Node, gold []int) *Node {
	r, c := logits.Dims()
	if len(gold) != c {
		panic(fmt.Sprintf("graph: CrossEntropy got %d labels for %d positions", len(gold), c))
	}
	out := g.newNode(1, 1)
	probs := make([][]float64, c)
	loss := 0.0
	for j, y := range gold {
		if y == 0 {
			continue
		}
		col := mat.Col(nil, j, logits.Value)
		lse := floats.LogSumExp(col)
		loss -= col[y] - lse
		for i := range col {
			col[i] = math.Exp(col[i] - lse)
		}
		probs[j] = col
	}
	out.Value.Set(0, 0, loss)
	g.addBackward(func() {
		if out.grad == nil || !logits.wantsGrad() {
			return
		}
		scale := out.grad.At(0, 0)
		lg := logits.Grad()
		for j, p := range probs {
			if p == nil {
				continue
			}
			for i := 0; i < r; i++ {
				d := p[i]
				if i == gold[j] {
					d--
				}
				lg.Set(i, j, lg.At(i, j)+scale*d)
			}
		}
	})
	return out
}

// Unfold turns a (c x L) sequence into the (c*k x L-k+1) matrix whose column
// j stacks columns j..j+k-1 of a. A linear layer over it is a width-k
// convolution without padding.
func (g *Graph) Unfold(a *Node, k int) *Node {
	c, l := a.Dims()
	if l < k {
		panic(fmt.Sprintf("graph: Unfold width %d over length %d", k, l))
	}
	out := g.newNode(c*k, l-k+1)
	for w := 0; w < k; w++ {
		out.Value.Slice(w*c, (w+1)*c, 0, l-k+1).(*mat.Dense).Copy(a.Value.Slice(0, c, w, w+l-k+1))
	}
	g.addBackward(func() {
		if out.grad == nil || !a.wantsGrad() {
			return
		}
		ag := a.Grad()
		for w := 0; w < k; w++ {
			dst := ag.Slice(0, c, w, w+l-k+1).(*mat.Dense)
			dst.Add(dst, out.grad.Slice(w*c, (w+1)*c, 0, l-k+1))
		}
	})
	return out
}

// MaxPoolCols takes the row-wise maximum over consecutive, non-overlapping
// windows of width columns. Trailing columns that do not fill a window are
// dropped.
func (g *Graph) MaxPoolCols(a *Node, width int) *Node {
	r, l := a.Dims()
	n := l / width
	if n == 0 {
		panic(fmt.Sprintf("graph: MaxPoolCols width %d over length %d", width, l))
	}
	out := g.newNode(r, n)
	arg := make([]int, r*n)
	for i := 0; i < r; i++ {
		row := a.Value.RawRowView(i)
		for w := 0; w < n; w++ {
			best := w * width
			for j := best + 1; j < (w+1)*width; j++ {
				if row[j] > row[best] {
					best = j
				}
			}
			arg[i*n+w] = best
			out.Value.Set(i, w, row[best])
		}
	}
	g.addBackward(func() {
		if out.grad == nil || !a.wantsGrad() {
			return
		}
		ag := a.Grad()
		for i := 0; i < r; i++ {
			for w := 0; w < n; w++ {
				j := arg[i*n+w]
				ag.Set(i, j, ag.At(i, j)+out.grad.At(i, w))
			}
		}
	})
	return out
}

// AvgPoolCols averages every window of width consecutive columns with stride
// one, giving L-width+1 columns.
func (g *Graph) AvgPoolCols(a *Node, width int) *Node {
	r, l := a.Dims()
	n := l - width + 1
	if n <= 0 {
		panic(fmt.Sprintf("graph: AvgPoolCols width %d over length %d", width, l))
	}
	out := g.newNode(r, n)
	inv := 1 / float64(width)
	for i := 0; i < r; i++ {
		src, dst := a.Value.RawRowView(i), out.Value.RawRowView(i)
		for j := range dst {
			dst[j] = floats.Sum(src[j:j+width]) * inv
		}
	}
	g.addBackward(func() {
		if out.grad == nil || !a.wantsGrad() {
			return
		}
		ag := a.Grad()
		for i := 0; i < r; i++ {
			dy, dx := out.grad.RawRowView(i), ag.RawRowView(i)
			for j, v := range dy {
				for w := 0; w < width; w++ {
					dx[j+w] += v * inv
				}
			}
		}
	})
	return out
}

// MaskedMeanCols averages the columns j with mask[j] == 0 into one column.
// With no such column the result is zero.
func (g *Graph) MaskedMeanCols(a *Node, mask []uint8) *Node {
	_, c := a.Dims()
	if len(mask) != c {
		panic(fmt.Sprintf("graph: MaskedMeanCols mask of %d for %d columns", len(mask), c))
	}
	w := make([]float64, c)
	n := 0
	for _, m := range mask {
		if m == 0 {
			n++
		}
	}
	for j, m := range mask {
		if m == 0 {
			w[j] = 1 / float64(n)
		}
	}
	return g.MatMul(a, g.Const(mat.NewDense(c, 1, w)))
}
