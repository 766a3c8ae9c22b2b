package seq2seq

import (
	"math/rand"

	"github.com/aSeaFood/STER/graph"
	"github.com/aSeaFood/STER/params"
	"gonum.org/v1/gonum/mat"
)

// Encoder turns embedded source words plus char features into one d-wide
// state per position.
type Encoder struct {
	Type     params.EncoderType
	Char     *CharCNN
	LSTM     *BiLSTM // LSTM and LSTM-GCN
	Reduce   *Linear // GCN only
	GCN      *GCN    // GCN and LSTM-GCN
	DropRate float64
}

func NewEncoder(cfg params.TrainingConfig, charVocab int, rng *rand.Rand) *Encoder {
	d := cfg.WordEmbedDim
	in := d + cfg.CharFeatureSize
	e := &Encoder{
		Type:     cfg.Encoder,
		Char:     NewCharCNN("enc.char", charVocab, cfg.CharEmbedDim, cfg.CharFeatureSize, cfg.ConvFilterSize, cfg.CharWidth(), cfg.DropRate, rng),
		DropRate: cfg.DropRate,
	}
	switch cfg.Encoder {
	case params.EncoderGCN:
		e.Reduce = NewLinear("enc.reduce", in, d, true, rng)
		e.GCN = NewGCN("enc.gcn", d, cfg.GCNLayers, cfg.DropRate, rng)
	case params.EncoderLSTMGCN:
		e.LSTM = NewBiLSTM("enc.lstm", in, d/2, cfg.Layers, rng)
		e.GCN = NewGCN("enc.gcn", d, cfg.GCNLayers, cfg.DropRate, rng)
	default:
		e.LSTM = NewBiLSTM("enc.lstm", in, d/2, cfg.Layers, rng)
	}
	return e
}

func (e *Encoder) Params() []*graph.Param {
	ps := e.Char.Params()
	if e.LSTM != nil {
		ps = append(ps, e.LSTM.Params()...)
	}
	if e.Reduce != nil {
		ps = append(ps, e.Reduce.Params()...)
	}
	if e.GCN != nil {
		ps = append(ps, e.GCN.Params()...)
	}
	return ps
}

// Forward encodes words (d x T, already embedded) with the char sequence of
// the same view. adj (T x T) is only read by the graph encoders.
func (e *Encoder) Forward(g *graph.Graph, words *graph.Node, chars []int, adj *mat.Dense) *graph.Node {
	x := g.ConcatRows(words, e.Char.Forward(g, chars))
	switch e.Type {
	case params.EncoderGCN:
		h := e.GCN.Forward(g, e.Reduce.Forward(g, x), adj)
		return g.Dropout(h, e.DropRate)
	case params.EncoderLSTMGCN:
		h := g.Dropout(e.LSTM.Forward(g, x), e.DropRate)
		return g.Dropout(e.GCN.Forward(g, h, adj), e.DropRate)
	default:
		return g.Dropout(e.LSTM.Forward(g, x), e.DropRate)
	}
}
