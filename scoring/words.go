package scoring

import (
	"strings"

	"github.com/aSeaFood/STER/params"
)

// PredWords turns decoded ids into words. Decoding stops after the first
// <EOS>, which is kept. With copying, an <UNK> is replaced by the view word
// at the attended position.
func PredWords(preds, attns []int, view []string, vocab *params.Vocabulary, copyOn bool) []string {
	out := make([]string, 0, len(preds))
	for t, id := range preds {
		switch {
		case id == params.EosID:
			return append(out, params.EosToken)
		case copyOn && id == params.UnkID && t < len(attns) && attns[t] < len(view):
			out = append(out, view[attns[t]])
		default:
			out = append(out, vocab.Token(id))
		}
	}
	return out
}

// Line is the prediction file text of one sample: the words before the first
// <EOS>.
func Line(words []string) string {
	for i, w := range words {
		if w == params.EosToken {
			words = words[:i]
			break
		}
	}
	return strings.Join(words, " ")
}

// SeqCounts are the position-wise token counts of a set of sequences.
type SeqCounts struct {
	Correct, Predicted, Gold int
}

// Add scores one sequence pair: tokens match when they are equal at the
// same position.
func (c *SeqCounts) Add(gold, pred []string) {
	c.Gold += len(gold)
	c.Predicted += len(pred)
	for j := 0; j < len(gold) && j < len(pred); j++ {
		if gold[j] == pred[j] {
			c.Correct++
		}
	}
}

// PRF is the unrounded precision, recall and F1 of the counts.
func (c SeqCounts) PRF() (p, r, f float64) {
	p = float64(c.Correct) / (float64(c.Predicted) + eps)
	r = float64(c.Correct) / (float64(c.Gold) + eps)
	return p, r, 2 * p * r / (p + r + eps)
}

// SequenceF1 is the token-level F1 used to select models on the dev set.
// gold[i] is the target without <SOS>; pred[i] includes the final <EOS>.
func SequenceF1(gold, pred [][]string) (SeqCounts, float64) {
	var c SeqCounts
	for i := 0; i < len(gold) && i < len(pred); i++ {
		c.Add(gold[i], pred[i])
	}
	_, _, f := c.PRF()
	return c, f
}
