package batch

import (
	"fmt"

	"github.com/aSeaFood/STER/IO"
	"github.com/aSeaFood/STER/params"
	"gonum.org/v1/gonum/mat"
)

// ShapeError is returned when a batch cannot be laid out.
type ShapeError struct {
	Msg string
}

func (e *ShapeError) Error() string { return "batch shape: " + e.Msg }

// View is the encoded input of one model variant. Every row of Words, Mask
// and Chars has the same length inside a batch.
type View struct {
	Words     [][]int
	Mask      [][]uint8 // 0 real, 1 pad
	Chars     [][]int
	VocabMask [][]uint8 // per sample, |V| entries: 0 allowed, 1 disallowed
	Tokens    [][]string
}

// Len is the padded length of the view.
func (v *View) Len() int {
	if len(v.Words) == 0 {
		return 0
	}
	return len(v.Words[0])
}

// Batch holds the tensors of one mini-batch for all three variants.
type Batch struct {
	Samples      []IO.Sample
	SrcMaxLen    int
	TrgMaxLen    int
	RelMaxLen    int
	EntityMaxLen int
	Views        []View       // indexed by params.Variant
	Adj          []*mat.Dense // SrcMaxLen x SrcMaxLen per sample
	TrgInput     [][]int
	Labels       [][]int // TrgInput without <SOS>; nil outside training
}

func (b *Batch) View(v params.Variant) *View { return &b.Views[v] }

func (b *Batch) Size() int { return len(b.Samples) }

// Encode lays out samples with the minimum padding the batch needs.
//
// Training targets are padded with the <EOS> id and the labels are the
// padded targets without the leading <SOS>. At inference the target input is
// the single <SOS> id.
func Encode(samples []IO.Sample, ctx *params.Context, cfg params.TrainingConfig, forTraining bool) (*Batch, error) {
	if len(samples) == 0 {
		return nil, &ShapeError{Msg: "empty batch"}
	}
	b := &Batch{Samples: samples, Views: make([]View, len(params.Variants))}
	for _, s := range samples {
		b.SrcMaxLen = max(b.SrcMaxLen, len(s.SrcWords))
		b.TrgMaxLen = max(b.TrgMaxLen, len(s.TrgWords))
		b.RelMaxLen = max(b.RelMaxLen, len(s.RelWords))
		b.EntityMaxLen = max(b.EntityMaxLen, len(s.EntityWords))
	}
	if b.SrcMaxLen == 0 {
		return nil, &ShapeError{Msg: "every sample has an empty source"}
	}

	viewLen := map[params.Variant]int{
		params.Student:  b.SrcMaxLen,
		params.Teacher1: b.SrcMaxLen + b.EntityMaxLen,
		params.Teacher2: b.SrcMaxLen + b.RelMaxLen,
	}
	for _, v := range params.Variants {
		view := &b.Views[v]
		n := viewLen[v]
		for _, s := range samples {
			words := s.ViewWords(v)
			view.Tokens = append(view.Tokens, words)
			view.Words = append(view.Words, WordIDs(words, ctx.Words, n, params.PadID))
			view.Mask = append(view.Mask, PaddingMask(len(words), n))
			view.Chars = append(view.Chars, CharIDs(words, ctx.Chars, n, cfg))
			view.VocabMask = append(view.VocabMask, TargetVocabMask(words, ctx))
		}
	}

	for _, s := range samples {
		adj, err := embedAdjacency(s, b.SrcMaxLen)
		if err != nil {
			return nil, err
		}
		b.Adj = append(b.Adj, adj)
		if forTraining {
			trg := WordIDs(s.TrgWords, ctx.Words, b.TrgMaxLen, params.EosID)
			b.TrgInput = append(b.TrgInput, trg)
			b.Labels = append(b.Labels, append([]int(nil), trg[1:]...))
		} else {
			b.TrgInput = append(b.TrgInput, []int{params.SosID})
		}
	}
	return b, nil
}

// WordIDs index-encodes words and right-pads with pad to length n.
func WordIDs(words []string, vocab *params.Vocabulary, n, pad int) []int {
	out := make([]int, n)
	for i := range out {
		if i < len(words) {
			out[i] = vocab.Lookup(words[i])
		} else {
			out[i] = pad
		}
	}
	return out
}

// PaddingMask returns real zeros followed by ones up to n.
func PaddingMask(real, n int) []uint8 {
	out := make([]uint8, n)
	for i := real; i < n; i++ {
		out[i] = 1
	}
	return out
}

// CharIDs frames every word for a width-ConvFilterSize convolution: k-1 pads
// lead the sequence, each word is cut to MaxWordLen, right padded to
// MaxWordLen and followed by k-1 pads. Padding words are all pads.
func CharIDs(words []string, chars *params.Vocabulary, n int, cfg params.TrainingConfig) []int {
	k := cfg.ConvFilterSize
	out := make([]int, 0, k-1+n*cfg.CharWidth())
	for i := 0; i < k-1; i++ {
		out = append(out, params.CharPadID)
	}
	for i := 0; i < n; i++ {
		if i >= len(words) {
			for j := 0; j < cfg.CharWidth(); j++ {
				out = append(out, params.CharPadID)
			}
			continue
		}
		runes := []rune(words[i])
		for j := 0; j < cfg.MaxWordLen; j++ {
			if j < len(runes) {
				out = append(out, chars.Lookup(string(runes[j])))
			} else {
				out = append(out, params.CharPadID)
			}
		}
		for j := 0; j < k-1; j++ {
			out = append(out, params.CharPadID)
		}
	}
	return out
}

// TargetVocabMask allows the view's known words, every relation, <UNK>,
// <EOS> and both separators. Everything else is disallowed.
func TargetVocabMask(words []string, ctx *params.Context) []uint8 {
	mask := make([]uint8, ctx.Words.Len())
	for i := range mask {
		mask[i] = 1
	}
	for _, w := range words {
		if id, ok := ctx.Words.ID(w); ok {
			mask[id] = 0
		}
	}
	for _, r := range ctx.Relations {
		if id, ok := ctx.Words.ID(r); ok {
			mask[id] = 0
		}
	}
	mask[params.UnkID] = 0
	mask[params.EosID] = 0
	for _, sep := range []string{params.FieldSep, params.TripletSep} {
		if id, ok := ctx.Words.ID(sep); ok {
			mask[id] = 0
		}
	}
	return mask
}

func embedAdjacency(s IO.Sample, n int) (*mat.Dense, error) {
	out := mat.NewDense(n, n, nil)
	if s.AdjMat == nil {
		if s.SrcLen != 0 {
			return nil, &ShapeError{Msg: fmt.Sprintf("sample %d has no adjacency matrix", s.Id)}
		}
		return out, nil
	}
	r, c := s.AdjMat.Dims()
	if r != s.SrcLen || c != s.SrcLen {
		return nil, &ShapeError{Msg: fmt.Sprintf("sample %d: adjacency %dx%d for %d words", s.Id, r, c, s.SrcLen)}
	}
	out.Slice(0, r, 0, c).(*mat.Dense).Copy(s.AdjMat)
	return out, nil
}
