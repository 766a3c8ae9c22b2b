package IO

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"path/filepath"
	"strings"

	"github.com/aSeaFood/STER/params"
	"gonum.org/v1/gonum/mat"
)

// MaxDependencyDistance is the farthest dependency distance that still
// carries weight in the adjacency matrix.
const MaxDependencyDistance = 5

// Sample is one sentence with its target triplet sequence.
// Samples are built by NewSample and must not be modified afterwards.
type Sample struct {
	Id          int
	SrcLen      int
	TrgLen      int
	SrcWords    []string
	TrgWords    []string // <SOS> ... <EOS>
	RelWords    []string
	EntityWords []string
	AdjMat      *mat.Dense // SrcLen x SrcLen
}

// ViewWords returns the source words followed by the auxiliary stream the
// given variant sees.
func (s Sample) ViewWords(v params.Variant) []string {
	var aux []string
	switch v {
	case params.Teacher1:
		aux = s.EntityWords
	case params.Teacher2:
		aux = s.RelWords
	}
	out := make([]string, 0, len(s.SrcWords)+len(aux))
	out = append(out, s.SrcWords...)
	return append(out, aux...)
}

// DecayWeight maps a dependency distance d to 2^-d for 0 <= d <= 5 and to 0
// otherwise.
func DecayWeight(d int) float64 {
	if d < 0 || d > MaxDependencyDistance {
		return 0
	}
	return math.Pow(2, -float64(d))
}

// DecayAdjacency turns an n x n distance matrix into decayed edge weights.
// Rows are not normalized and the matrix is not symmetrized. An empty
// sentence has no matrix.
func DecayAdjacency(dist [][]int) *mat.Dense {
	n := len(dist)
	if n == 0 {
		return nil
	}
	adj := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			adj.Set(i, j, DecayWeight(dist[i][j]))
		}
	}
	return adj
}

// NewSample parses one corpus row. When shuffle is non-nil the triplet order
// of the target is permuted with it before anything is derived from it.
func NewSample(id int, srcWords []string, tupLine string, dist [][]int, shuffle *rand.Rand) (Sample, error) {
	n := len(srcWords)
	if len(dist) != n {
		return Sample{}, errAdjacency(n, len(dist))
	}
	for _, row := range dist {
		if len(row) != n {
			return Sample{}, errAdjacency(n, len(row))
		}
	}

	tupLine = strings.TrimSpace(tupLine)
	tuples := strings.Split(tupLine, params.TripletSep)
	isNil := len(tuples) == 1 && strings.TrimSpace(tuples[0]) == "NIL"
	if shuffle != nil && !isNil {
		shuffle.Shuffle(len(tuples), func(i, j int) { tuples[i], tuples[j] = tuples[j], tuples[i] })
		tupLine = strings.Join(tuples, " "+params.TripletSep+" ")
	}

	var rels, ents []string
	if !isNil {
		for _, t := range tuples {
			fields := strings.Split(strings.TrimSpace(t), params.FieldSep)
			if len(fields) != 3 {
				return Sample{}, errTriplet(t, len(fields))
			}
			rels = append(rels, strings.TrimSpace(fields[2]))
			ents = append(ents, strings.TrimSpace(fields[0])+" "+params.FieldSep+" "+strings.TrimSpace(fields[1]))
		}
	}
	sep := " " + params.TripletSep + " "

	trg := make([]string, 0, len(strings.Fields(tupLine))+2)
	trg = append(trg, params.SosToken)
	trg = append(trg, strings.Fields(tupLine)...)
	trg = append(trg, params.EosToken)

	return Sample{
		Id:          id,
		SrcLen:      n,
		TrgLen:      len(trg),
		SrcWords:    append([]string(nil), srcWords...),
		TrgWords:    trg,
		RelWords:    strings.Fields(strings.Join(rels, sep)),
		EntityWords: strings.Fields(strings.Join(ents, sep)),
		AdjMat:      DecayAdjacency(dist),
	}, nil
}

// NewSentence builds an inference-only sample from raw words. Without a parse
// every word is only connected to itself.
func NewSentence(id int, words []string) Sample {
	dist := make([][]int, len(words))
	for i := range dist {
		dist[i] = make([]int, len(words))
		for j := range dist[i] {
			if i != j {
				dist[i][j] = -1
			}
		}
	}
	return Sample{
		Id:       id,
		SrcLen:   len(words),
		TrgLen:   2,
		SrcWords: append([]string(nil), words...),
		TrgWords: []string{params.SosToken, params.EosToken},
		AdjMat:   DecayAdjacency(dist),
	}
}

// sampleError is a malformed row; dep tells which of the two inputs is at fault.
type sampleError struct {
	dep bool
	msg string
}

func (e *sampleError) Error() string { return e.msg }

func errAdjacency(want, got int) error {
	return &sampleError{dep: true, msg: fmt.Sprintf("adjacency matrix does not match sentence length %d (got %d)", want, got)}
}

func errTriplet(t string, fields int) error {
	return &sampleError{msg: fmt.Sprintf("triplet %q has %d fields, want 3", strings.TrimSpace(t), fields)}
}

// Split names the three corpus partitions.
type Split string

const (
	Train Split = "train"
	Dev   Split = "dev"
	Test  Split = "test"
)

// CorpusFiles returns the .sent, .tup and .dep paths of a split.
func CorpusFiles(dir string, split Split) (sent, tup, dep string) {
	base := filepath.Join(dir, string(split))
	return base + ".sent", base + ".tup", base + ".dep"
}

type depLine struct {
	AdjMat [][]int `json:"adj_mat"`
}

// ReadCorpus reads the three parallel files of a split. Training samples get
// their triplets shuffled with rng and are dropped when longer than the
// configured maxima; dev and test samples are kept as given.
func ReadCorpus(dir string, split Split, cfg params.TrainingConfig, rng *rand.Rand) ([]Sample, error) {
	sentPath, tupPath, depPath := CorpusFiles(dir, split)
	src, err := readLines(sentPath, 0)
	if err != nil {
		return nil, &FileError{Path: sentPath, Err: err}
	}
	trg, err := readLines(tupPath, 0)
	if err != nil {
		return nil, &FileError{Path: tupPath, Err: err}
	}
	deps, err := readLines(depPath, 0)
	if err != nil {
		return nil, &FileError{Path: depPath, Err: err}
	}
	if len(trg) != len(src) || len(deps) != len(src) {
		return nil, &DataFormatError{Path: sentPath, Msg: fmt.Sprintf(
			"sentence, triplet and dependency files differ in length (%d, %d, %d)", len(src), len(trg), len(deps))}
	}

	training := split == Train
	var shuffle *rand.Rand
	if training {
		shuffle = rng
	}
	samples := make([]Sample, 0, len(src))
	uid := 1
	for i := range src {
		var dl depLine
		if err := json.Unmarshal([]byte(deps[i]), &dl); err != nil {
			return nil, &DataFormatError{Path: depPath, Line: i + 1, Msg: err.Error()}
		}
		s, err := NewSample(uid, strings.Fields(src[i]), trg[i], dl.AdjMat, shuffle)
		if err != nil {
			path := tupPath
			if se, ok := err.(*sampleError); ok && se.dep {
				path = depPath
			}
			return nil, &DataFormatError{Path: path, Line: i + 1, Msg: err.Error()}
		}
		if training && (s.SrcLen > cfg.MaxSrcLen || s.TrgLen > cfg.MaxTrgLen+1) {
			continue
		}
		samples = append(samples, s)
		uid++
	}
	return samples, nil
}

// ReadRelations reads the closed relation vocabulary, one label per line.
func ReadRelations(path string) ([]string, error) {
	lines, err := readLines(path, 0)
	if err != nil {
		return nil, &FileError{Path: path, Err: err}
	}
	rels := make([]string, 0, len(lines))
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			rels = append(rels, l)
		}
	}
	return rels, nil
}
