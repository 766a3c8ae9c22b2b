package seq2seq

import (
	"math/rand"

	"github.com/aSeaFood/STER/graph"
	"github.com/aSeaFood/STER/params"
	"gonum.org/v1/gonum/mat"
)

// Decoder is an LSTM cell fed with [previous word ; context] followed by a
// projection onto the word vocabulary.
type Decoder struct {
	Attention params.AttentionType
	Unigram   *UnigramAttention
	NGram     *NGramAttention
	Cell      *LSTMCell
	Out       *Linear
	DropRate  float64
}

func NewDecoder(cfg params.TrainingConfig, vocab int, rng *rand.Rand) *Decoder {
	d := cfg.WordEmbedDim
	dec := &Decoder{Attention: cfg.Attention, DropRate: cfg.DropRate}
	in := 2 * d
	switch cfg.Attention {
	case params.AttentionUnigram:
		dec.Unigram = NewUnigramAttention(d, rng)
	case params.AttentionNGram:
		dec.NGram = NewNGramAttention(d, cfg.NGram, rng)
		in = 3 * d
	}
	dec.Cell = NewLSTMCell("dec.cell", in, d, rng)
	dec.Out = NewLinear("dec.out", d, vocab, true, rng)
	return dec
}

func (d *Decoder) Params() []*graph.Param {
	var ps []*graph.Param
	if d.Unigram != nil {
		ps = append(ps, d.Unigram.Params()...)
	}
	if d.NGram != nil {
		ps = append(ps, d.NGram.Params()...)
	}
	ps = append(ps, d.Cell.Params()...)
	return append(ps, d.Out.Params()...)
}

// source is what the decoder attends over for one sample.
type source struct {
	H    *graph.Node // d x T encoder states
	E    *graph.Node // d x T source word embeddings
	Mask []uint8

	// step-independent parts, filled by prepare
	uh  *graph.Node
	ctx *graph.Node
	att *graph.Node
}

// prepare computes everything that does not depend on the decoder state.
func (d *Decoder) prepare(g *graph.Graph, src *source) {
	_, T := src.H.Dims()
	switch d.Attention {
	case params.AttentionUnigram:
		src.uh = d.Unigram.Ctx.Forward(g, src.H)
	case params.AttentionNGram:
		last := g.Col(src.H, lastReal(src.Mask))
		ctx, att := d.NGram.Forward(g, last, src.E, src.Mask)
		src.ctx = g.ConcatRows(last, ctx)
		src.att = att
	default:
		src.ctx = g.MaskedMeanCols(src.H, src.Mask)
		src.att = g.Const(mat.NewDense(T, 1, nil))
	}
}

// lastReal is the index of the last unmasked position, 0 when there is none.
func lastReal(mask []uint8) int {
	n := 0
	for _, m := range mask {
		if m == 0 {
			n++
		}
	}
	return max(n-1, 0)
}

type state struct {
	h, c *graph.Node
}

// Step consumes the previous word embedding y (d x 1) and returns the
// vocabulary logits (|V| x 1) and the attention weights (T x 1). The
// dropped-out hidden state is also the state carried to the next step.
func (d *Decoder) Step(g *graph.Graph, y *graph.Node, st *state, src *source) (*graph.Node, *graph.Node) {
	ctx, att := src.ctx, src.att
	if d.Attention == params.AttentionUnigram {
		ctx, att = d.Unigram.Forward(g, st.h, src.H, src.uh, src.Mask)
	}
	h, c := d.Cell.Step(g, g.ConcatRows(y, ctx), st.h, st.c)
	st.h, st.c = g.Dropout(h, d.DropRate), c
	return d.Out.Forward(g, st.h), att
}
