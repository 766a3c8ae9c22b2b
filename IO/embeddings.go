package IO

import (
	"math/rand"
	"strconv"
	"strings"

	"github.com/aSeaFood/STER/params"
	"gonum.org/v1/gonum/mat"
)

// Range of the uniform draw for rows without a pretrained vector.
const randomEmbedScale = 0.25

// wordCounts keeps corpus frequencies in first-seen order.
type wordCounts struct {
	order []string
	count map[string]int
}

func (w *wordCounts) set(tok string, n int) {
	if _, ok := w.count[tok]; !ok {
		w.order = append(w.order, tok)
	}
	w.count[tok] = n
}

func (w *wordCounts) qualifies(tok string, min int) bool {
	n, ok := w.count[tok]
	return ok && n >= min
}

// BuildVocab builds the word and char vocabularies from the training samples
// and aligns an embedding matrix (|V| x WordEmbedDim) with the word ids.
//
// Word frequencies come from SrcWords only. Relation labels and the two
// separators are forced to MinWordFreq. Words found in the pretrained file
// take ids first, in file order; the remaining qualifying words follow in
// first-seen order with random rows. Row 0 stays zero.
func BuildVocab(samples []Sample, relations []string, cfg params.TrainingConfig, embedPath string, rng *rand.Rand) (*params.Vocabulary, *params.Vocabulary, *mat.Dense, error) {
	counts := &wordCounts{count: make(map[string]int)}
	chars := params.NewCharVocabulary()
	for _, s := range samples {
		for _, w := range s.SrcWords {
			counts.set(w, counts.count[w]+1)
			for _, c := range w {
				chars.Add(string(c))
			}
		}
	}
	for _, r := range relations {
		counts.set(r, cfg.MinWordFreq)
	}
	counts.set(params.FieldSep, cfg.MinWordFreq)
	counts.set(params.TripletSep, cfg.MinWordFreq)

	dim := cfg.WordEmbedDim
	words := params.NewWordVocabulary()
	rows := make([][]float64, 0, len(counts.order)+4)
	rows = append(rows, make([]float64, dim))
	for i := params.UnkID; i <= params.EosID; i++ {
		rows = append(rows, randomRow(dim, rng))
	}

	err := eachLine(embedPath, func(line string) error {
		parts := strings.Fields(line)
		if len(parts) < dim+1 {
			return nil
		}
		w := parts[0]
		if _, seen := words.ID(w); seen || !counts.qualifies(w, cfg.MinWordFreq) {
			return nil
		}
		vec := make([]float64, dim)
		for i := range vec {
			f, err := strconv.ParseFloat(parts[i+1], 64)
			if err != nil {
				return nil
			}
			vec[i] = f
		}
		words.Add(w)
		rows = append(rows, vec)
		return nil
	})
	if err != nil {
		return nil, nil, nil, &FileError{Path: embedPath, Err: err}
	}

	for _, w := range counts.order {
		if _, seen := words.ID(w); seen || !counts.qualifies(w, cfg.MinWordFreq) {
			continue
		}
		words.Add(w)
		rows = append(rows, randomRow(dim, rng))
	}

	emb := mat.NewDense(len(rows), dim, nil)
	for i, r := range rows {
		emb.SetRow(i, r)
	}
	return words, chars, emb, nil
}

func randomRow(dim int, rng *rand.Rand) []float64 {
	out := make([]float64, dim)
	for i := range out {
		out[i] = -randomEmbedScale + 2*randomEmbedScale*rng.Float64()
	}
	return out
}
