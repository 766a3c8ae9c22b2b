package seq2seq

import (
	"fmt"
	"math/rand"

	"github.com/aSeaFood/STER/batch"
	"github.com/aSeaFood/STER/graph"
	"github.com/aSeaFood/STER/params"
	"github.com/aSeaFood/STER/utils"
	"gonum.org/v1/gonum/mat"
)

// Model is one encoder-decoder. The student and both teachers are three
// independent Models with the same architecture.
type Model struct {
	Variant params.Variant
	Config  params.TrainingConfig

	VocabSize, CharVocabSize int

	WordEmb *graph.Param // |V| x d, shared by encoder and decoder
	Enc     *Encoder
	Dec     *Decoder

	params []*graph.Param
}

// NewModel builds a model whose word table is a copy of emb.
func NewModel(v params.Variant, cfg params.TrainingConfig, charVocab int, emb *mat.Dense, rng *rand.Rand) *Model {
	vocab, _ := emb.Dims()
	m := &Model{
		Variant:       v,
		Config:        cfg,
		VocabSize:     vocab,
		CharVocabSize: charVocab,
		WordEmb:       graph.NewParam("word_emb", mat.DenseCopyOf(emb)),
		Enc:           NewEncoder(cfg, charVocab, rng),
		Dec:           NewDecoder(cfg, vocab, rng),
	}
	m.params = append([]*graph.Param{m.WordEmb}, m.Enc.Params()...)
	m.params = append(m.params, m.Dec.Params()...)
	return m
}

// Params lists every trainable matrix in a fixed order.
func (m *Model) Params() []*graph.Param { return m.params }

// Fingerprint identifies the shapes a checkpoint must match.
func (m *Model) Fingerprint() string {
	c := m.Config
	return fmt.Sprintf("%s enc=%s att=%s d=%d char=%d/%d k=%d wl=%d layers=%d gcn=%d ngram=%d vocab=%d chars=%d",
		m.Variant, c.Encoder, c.Attention, c.WordEmbedDim, c.CharEmbedDim, c.CharFeatureSize,
		c.ConvFilterSize, c.MaxWordLen, c.Layers, c.GCNLayers, c.NGram, m.VocabSize, m.CharVocabSize)
}

// Input is one sample as seen by one variant.
type Input struct {
	Words     []int
	Mask      []uint8
	Chars     []int
	VocabMask []uint8
	Adj       *mat.Dense // view length square, zero outside the sentence
	Target    []int      // decoder inputs starting with <SOS>
	Labels    []int      // nil outside training
}

// Inputs slices the variant's view of b into per-sample inputs.
func Inputs(b *batch.Batch, v params.Variant) []Input {
	view := b.View(v)
	n := view.Len()
	out := make([]Input, b.Size())
	for i := range out {
		out[i] = Input{
			Words:     view.Words[i],
			Mask:      view.Mask[i],
			Chars:     view.Chars[i],
			VocabMask: view.VocabMask[i],
			Adj:       padSquare(b.Adj[i], n),
			Target:    b.TrgInput[i],
		}
		if b.Labels != nil {
			out[i].Labels = b.Labels[i]
		}
	}
	return out
}

func padSquare(m *mat.Dense, n int) *mat.Dense {
	if r, _ := m.Dims(); r == n {
		return m
	}
	out := mat.NewDense(n, n, nil)
	r, c := m.Dims()
	out.Slice(0, r, 0, c).(*mat.Dense).Copy(m)
	return out
}

func (m *Model) encode(g *graph.Graph, in Input) *source {
	e := g.Dropout(g.Lookup(m.WordEmb, in.Words), m.Config.DropRate)
	src := &source{
		H:    m.Enc.Forward(g, e, in.Chars, in.Adj),
		E:    e,
		Mask: in.Mask,
	}
	m.Dec.prepare(g, src)
	return src
}

func (m *Model) initState(g *graph.Graph) *state {
	return &state{h: m.Dec.Cell.Zero(g), c: m.Dec.Cell.Zero(g)}
}

// Forward decodes with teacher forcing and returns the logits
// (|V| x len(Target)-1), one column per predicted position.
func (m *Model) Forward(g *graph.Graph, in Input) *graph.Node {
	src := m.encode(g, in)
	steps := len(in.Target) - 1
	y := g.Dropout(g.Lookup(m.WordEmb, in.Target[:steps]), m.Config.DropRate)
	st := m.initState(g)
	out := make([]*graph.Node, steps)
	for t := 0; t < steps; t++ {
		out[t], _ = m.Dec.Step(g, g.Col(y, t), st, src)
	}
	return g.ConcatCols(out...)
}

// Greedy decodes exactly maxLen steps, feeding back the arg-max word. With
// copying on, words outside the sample's vocabulary mask are never chosen.
// It returns the predicted ids and the arg-max attention position per step.
func (m *Model) Greedy(in Input, maxLen int) ([]int, []int) {
	g := graph.New(false, false, nil)
	src := m.encode(g, in)
	st := m.initState(g)
	preds := make([]int, maxLen)
	attns := make([]int, maxLen)
	prev := params.SosID
	var vocabMask []uint8
	if m.Config.CopyOn {
		vocabMask = in.VocabMask
	}
	for t := 0; t < maxLen; t++ {
		logits, att := m.Dec.Step(g, g.Lookup(m.WordEmb, []int{prev}), st, src)
		next := utils.MaskedArgMax(logits.Value.RawMatrix().Data, vocabMask)
		if next < 0 {
			next = utils.ArgMax(logits.Value.RawMatrix().Data)
		}
		preds[t] = next
		attns[t] = utils.ArgMax(att.Value.RawMatrix().Data)
		prev = next
	}
	return preds, attns
}
