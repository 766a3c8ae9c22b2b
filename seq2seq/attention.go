package seq2seq

import (
	"math/rand"
	"strconv"

	"github.com/aSeaFood/STER/graph"
)

// UnigramAttention is additive attention of the previous decoder state over
// the encoder states: v·tanh(Wc·H + Wq·s + b).
type UnigramAttention struct {
	Ctx   *Linear // no bias
	Query *Linear
	V     *Linear
}

func NewUnigramAttention(d int, rng *rand.Rand) *UnigramAttention {
	return &UnigramAttention{
		Ctx:   NewLinear("att.ctx", d, d, false, rng),
		Query: NewLinear("att.query", d, d, true, rng),
		V:     NewLinear("att.v", d, 1, true, rng),
	}
}

func (a *UnigramAttention) Params() []*graph.Param {
	ps := append(a.Ctx.Params(), a.Query.Params()...)
	return append(ps, a.V.Params()...)
}

// Forward returns the context (d x 1) and the weights (T x 1). uh is Wc·H,
// computed once per source.
func (a *UnigramAttention) Forward(g *graph.Graph, s, h, uh *graph.Node, mask []uint8) (*graph.Node, *graph.Node) {
	z := g.Tanh(g.AddBias(uh, a.Query.Forward(g, s)))
	w := g.Softmax(g.Transpose(a.V.Forward(g, z)), mask)
	return g.MatMul(h, w), w
}

// NGramAttention attends with a fixed query over the source word embeddings
// averaged over windows of 1..N words. Scale i has its own key (V) and
// output (W) projections and the scale contexts are summed.
type NGramAttention struct {
	V, W []*Linear
}

func NewNGramAttention(d, n int, rng *rand.Rand) *NGramAttention {
	a := &NGramAttention{}
	for i := 0; i < n; i++ {
		a.V = append(a.V, NewLinear("att.ngram.V"+strconv.Itoa(i), d, d, true, rng))
		a.W = append(a.W, NewLinear("att.ngram.W"+strconv.Itoa(i), d, d, true, rng))
	}
	return a
}

func (a *NGramAttention) Params() []*graph.Param {
	var ps []*graph.Param
	for i := range a.V {
		ps = append(ps, a.V[i].Params()...)
		ps = append(ps, a.W[i].Params()...)
	}
	return ps
}

// Forward returns the summed context (d x 1) and the unigram weights
// (T x 1), which are the ones used for copying. A scale whose window is
// longer than the source, or whose windows all touch padding, is skipped.
func (a *NGramAttention) Forward(g *graph.Graph, q, e *graph.Node, mask []uint8) (*graph.Node, *graph.Node) {
	att := g.Softmax(g.MatMul(g.Transpose(a.V[0].Forward(g, e)), q), mask)
	ctx := a.W[0].Forward(g, g.MatMul(e, att))
	_, T := e.Dims()
	for i := 1; i < len(a.V); i++ {
		if T-i < 1 {
			break
		}
		nmask, ok := windowMask(mask, i+1)
		if !ok {
			continue
		}
		en := g.AvgPoolCols(e, i+1)
		natt := g.Softmax(g.MatMul(g.Transpose(a.V[i].Forward(g, en)), q), nmask)
		ctx = g.Add(ctx, a.W[i].Forward(g, g.MatMul(en, natt)))
	}
	return ctx, att
}

// windowMask masks every stride-1 window of width that covers a padded
// position. ok is false when every window is masked.
func windowMask(mask []uint8, width int) ([]uint8, bool) {
	out := make([]uint8, len(mask)-width+1)
	ok := false
	for j := range out {
		for _, m := range mask[j : j+width] {
			if m != 0 {
				out[j] = 1
				break
			}
		}
		if out[j] == 0 {
			ok = true
		}
	}
	return out, ok
}
