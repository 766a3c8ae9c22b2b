package seq2seq

import (
	"math/rand"
	"strconv"

	"github.com/aSeaFood/STER/graph"
	"github.com/aSeaFood/STER/utils"
	"gonum.org/v1/gonum/mat"
)

// Linear is y = W·x + b with W (out x in). B is nil for a layer without bias.
type Linear struct {
	W, B *graph.Param
}

// NewLinear draws W and b from U(-1/sqrt(in), 1/sqrt(in)).
func NewLinear(name string, in, out int, bias bool, rng *rand.Rand) *Linear {
	l := &Linear{W: graph.NewParam(name+".W", mat.NewDense(out, in, utils.RandomArray(out*in, float64(in), rng)))}
	if bias {
		l.B = graph.NewParam(name+".b", mat.NewDense(out, 1, utils.RandomArray(out, float64(in), rng)))
	}
	return l
}

func (l *Linear) Forward(g *graph.Graph, x *graph.Node) *graph.Node {
	y := g.MatMul(g.Param(l.W), x)
	if l.B != nil {
		y = g.AddBias(y, g.Param(l.B))
	}
	return y
}

func (l *Linear) Params() []*graph.Param {
	if l.B == nil {
		return []*graph.Param{l.W}
	}
	return []*graph.Param{l.W, l.B}
}

// LSTMCell holds the gate weights in i, f, g, o order.
type LSTMCell struct {
	Hidden    int
	Wx, Wh, B *graph.Param
}

func NewLSTMCell(name string, in, hidden int, rng *rand.Rand) *LSTMCell {
	v := float64(hidden)
	return &LSTMCell{
		Hidden: hidden,
		Wx:     graph.NewParam(name+".Wx", mat.NewDense(4*hidden, in, utils.RandomArray(4*hidden*in, v, rng))),
		Wh:     graph.NewParam(name+".Wh", mat.NewDense(4*hidden, hidden, utils.RandomArray(4*hidden*hidden, v, rng))),
		B:      graph.NewParam(name+".b", mat.NewDense(4*hidden, 1, utils.RandomArray(4*hidden, v, rng))),
	}
}

func (l *LSTMCell) Params() []*graph.Param { return []*graph.Param{l.Wx, l.Wh, l.B} }

// Zero returns a zero hidden or cell state.
func (l *LSTMCell) Zero(g *graph.Graph) *graph.Node {
	return g.Const(mat.NewDense(l.Hidden, 1, nil))
}

// Step runs one time step on the input column x.
func (l *LSTMCell) Step(g *graph.Graph, x, h, c *graph.Node) (*graph.Node, *graph.Node) {
	return l.step(g, g.AddBias(g.MatMul(g.Param(l.Wx), x), g.Param(l.B)), h, c)
}

// step takes the input projection Wx·x+b already computed.
func (l *LSTMCell) step(g *graph.Graph, xw, h, c *graph.Node) (*graph.Node, *graph.Node) {
	n := l.Hidden
	gates := g.Add(xw, g.MatMul(g.Param(l.Wh), h))
	i := g.Sigmoid(g.Rows(gates, 0, n))
	f := g.Sigmoid(g.Rows(gates, n, 2*n))
	cand := g.Tanh(g.Rows(gates, 2*n, 3*n))
	o := g.Sigmoid(g.Rows(gates, 3*n, 4*n))
	c = g.Add(g.Hadamard(f, c), g.Hadamard(i, cand))
	h = g.Hadamard(o, g.Tanh(c))
	return h, c
}

// BiLSTM is a stack of bidirectional LSTM layers. Each direction has Hidden
// units and the layer output is their concatenation. Padding positions are
// processed like any other step.
type BiLSTM struct {
	Fwd, Bwd []*LSTMCell
}

func NewBiLSTM(name string, in, hidden, layers int, rng *rand.Rand) *BiLSTM {
	b := &BiLSTM{}
	for i := 0; i < layers; i++ {
		if i > 0 {
			in = 2 * hidden
		}
		b.Fwd = append(b.Fwd, NewLSTMCell(name+".fwd"+strconv.Itoa(i), in, hidden, rng))
		b.Bwd = append(b.Bwd, NewLSTMCell(name+".bwd"+strconv.Itoa(i), in, hidden, rng))
	}
	return b
}

func (b *BiLSTM) Params() []*graph.Param {
	var ps []*graph.Param
	for i := range b.Fwd {
		ps = append(ps, b.Fwd[i].Params()...)
		ps = append(ps, b.Bwd[i].Params()...)
	}
	return ps
}

// Forward maps an (in x T) sequence to (2*hidden x T).
func (b *BiLSTM) Forward(g *graph.Graph, x *graph.Node) *graph.Node {
	for i := range b.Fwd {
		x = g.ConcatRows(run(g, b.Fwd[i], x, false), run(g, b.Bwd[i], x, true))
	}
	return x
}

func run(g *graph.Graph, cell *LSTMCell, x *graph.Node, reverse bool) *graph.Node {
	_, T := x.Dims()
	xw := g.AddBias(g.MatMul(g.Param(cell.Wx), x), g.Param(cell.B))
	h, c := cell.Zero(g), cell.Zero(g)
	out := make([]*graph.Node, T)
	for s := 0; s < T; s++ {
		t := s
		if reverse {
			t = T - 1 - s
		}
		h, c = cell.step(g, g.Col(xw, t), h, c)
		out[t] = h
	}
	return g.ConcatCols(out...)
}

// GCN is a stack of graph convolutions over a weighted adjacency matrix:
// H' = relu((W·(H·Aᵀ) + b + W·H + b) / (rowsum(A) + 1)).
type GCN struct {
	Layers   []*Linear
	DropRate float64
}

func NewGCN(name string, dim, layers int, dropRate float64, rng *rand.Rand) *GCN {
	l := &GCN{DropRate: dropRate}
	for i := 0; i < layers; i++ {
		l.Layers = append(l.Layers, NewLinear(name+strconv.Itoa(i), dim, dim, true, rng))
	}
	return l
}

func (l *GCN) Params() []*graph.Param {
	var ps []*graph.Param
	for _, lin := range l.Layers {
		ps = append(ps, lin.Params()...)
	}
	return ps
}

// Forward runs every layer on h (d x T) with adj (T x T). Dropout follows
// every layer but the last.
func (l *GCN) Forward(g *graph.Graph, h *graph.Node, adj *mat.Dense) *graph.Node {
	var adjT mat.Dense
	adjT.CloneFrom(adj.T())
	at := g.Const(&adjT)
	inv := utils.RowSums(adj)
	for i := range inv {
		inv[i] = 1 / (inv[i] + 1)
	}
	for i, lin := range l.Layers {
		ax := g.MatMul(h, at)
		z := g.Add(lin.Forward(g, ax), lin.Forward(g, h))
		h = g.Relu(g.ScaleCols(z, inv))
		if i < len(l.Layers)-1 {
			h = g.Dropout(h, l.DropRate)
		}
	}
	return h
}

// CharCNN turns a framed char sequence into one feature column per word:
// embedding, width-K convolution, max-pool over each word block, tanh.
type CharCNN struct {
	Emb      *graph.Param
	Conv     *Linear
	K        int
	Width    int // char slots per word
	DropRate float64
}

// NewCharCNN draws the char table from N(0, 1) with a zero padding row.
func NewCharCNN(name string, vocab, embDim, features, k, width int, dropRate float64, rng *rand.Rand) *CharCNN {
	emb := mat.NewDense(vocab, embDim, utils.RandomNormal(vocab*embDim, rng))
	for j := 0; j < embDim; j++ {
		emb.Set(0, j, 0)
	}
	return &CharCNN{
		Emb:      graph.NewParam(name+".emb", emb),
		Conv:     NewLinear(name+".conv", embDim*k, features, true, rng),
		K:        k,
		Width:    width,
		DropRate: dropRate,
	}
}

func (c *CharCNN) Params() []*graph.Param {
	return append([]*graph.Param{c.Emb}, c.Conv.Params()...)
}

func (c *CharCNN) Forward(g *graph.Graph, ids []int) *graph.Node {
	e := g.Dropout(g.Lookup(c.Emb, ids), c.DropRate)
	conv := c.Conv.Forward(g, g.Unfold(e, c.K))
	return g.Tanh(g.MaxPoolCols(conv, c.Width))
}
