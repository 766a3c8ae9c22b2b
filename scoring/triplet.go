package scoring

import (
	"strconv"
	"strings"

	"github.com/aSeaFood/STER/params"
)

// FullMatch compares every field exactly. Any other mode compares only the
// last word of each field.
const FullMatch = 1

const eps = 1e-8

// Triplet is one (entity1, entity2, relation) fact.
type Triplet struct {
	E1, E2, Rel string
}

// Result holds the counts behind a score and the rounded metrics.
type Result struct {
	Correct   int
	Predicted int // accepted, de-duplicated predictions
	Reference int // de-duplicated reference triplets

	Same      int // predictions rejected for e1 == e2
	None      int // predictions rejected for a None field
	Duplicate int // exact repeats within one predicted line

	Precision, Recall, F1 float64
}

// ParseReference splits a reference line. NIL gives no triplets; entries with
// fewer than three fields are skipped and repeats are dropped.
func ParseReference(line string) []Triplet {
	line = strings.TrimSpace(line)
	if line == "NIL" || line == "" {
		return nil
	}
	var out []Triplet
	for _, t := range strings.Split(line, params.TripletSep) {
		parts := strings.Split(t, params.FieldSep)
		if len(parts) < 3 {
			continue
		}
		tr := Triplet{strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]), strings.TrimSpace(parts[2])}
		if !contains(out, tr, FullMatch) {
			out = append(out, tr)
		}
	}
	return out
}

// ParsePrediction splits a predicted line and keeps the triplets that could
// be facts. res receives the rejection counters.
func ParsePrediction(line string, isRelation func(string) bool, res *Result) []Triplet {
	line = strings.TrimSpace(line)
	if line == "NIL" || line == "" {
		return nil
	}
	var out []Triplet
	for _, t := range strings.Split(line, params.TripletSep) {
		parts := strings.Split(t, params.FieldSep)
		if len(parts) != 3 {
			continue
		}
		tr := Triplet{strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]), strings.TrimSpace(parts[2])}
		switch {
		case tr.E1 == "" || tr.E2 == "" || tr.Rel == "":
			continue
		case tr.E1 == tr.E2:
			res.Same++
			continue
		case !isRelation(tr.Rel):
			continue
		case tr.Rel == "None" || tr.E1 == "None" || tr.E2 == "None":
			res.None++
			continue
		}
		if contains(out, tr, FullMatch) {
			res.Duplicate++
			continue
		}
		out = append(out, tr)
	}
	return out
}

// Score compares predicted lines with reference lines pair by pair, up to
// the shorter of the two.
func Score(ref, pred, relations []string, mode int) Result {
	rels := make(map[string]bool, len(relations))
	for _, r := range relations {
		rels[strings.TrimSpace(r)] = true
	}
	var res Result
	for i := 0; i < len(ref) && i < len(pred); i++ {
		gold := ParseReference(ref[i])
		res.Reference += len(gold)
		got := ParsePrediction(pred[i], func(r string) bool { return rels[r] }, &res)
		res.Predicted += len(got)
		for _, g := range gold {
			if contains(got, g, mode) {
				res.Correct++
			}
		}
	}
	res.Precision, res.Recall, res.F1 = prf(res.Correct, res.Predicted, res.Reference)
	return res
}

func contains(ts []Triplet, t Triplet, mode int) bool {
	for _, o := range ts {
		if match(o, t, mode) {
			return true
		}
	}
	return false
}

func match(a, b Triplet, mode int) bool {
	if mode == FullMatch {
		return a == b
	}
	return head(a.E1) == head(b.E1) && head(a.E2) == head(b.E2) && head(a.Rel) == head(b.Rel)
}

func head(s string) string {
	f := strings.Fields(s)
	if len(f) == 0 {
		return ""
	}
	return f[len(f)-1]
}

// prf turns counts into rounded precision, recall and F1.
func prf(correct, predicted, reference int) (float64, float64, float64) {
	p := float64(correct) / (float64(predicted) + eps)
	r := float64(correct) / (float64(reference) + eps)
	f := 2 * p * r / (p + r + eps)
	return Round3(p), Round3(r), Round3(f)
}

// Round3 rounds the exact binary value of x to three decimals, so 0.1235
// (stored just below the tie) becomes 0.123.
func Round3(x float64) float64 {
	r, _ := strconv.ParseFloat(strconv.FormatFloat(x, 'f', 3, 64), 64)
	return r
}
