package IO

import (
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/aSeaFood/STER/params"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestDecayWeightMonotone(t *testing.T) {
	for d1 := 0; d1 <= MaxDependencyDistance; d1++ {
		for d2 := d1 + 1; d2 <= MaxDependencyDistance; d2++ {
			if DecayWeight(d1) <= DecayWeight(d2) {
				t.Errorf("expected weight(%d) > weight(%d); got %g <= %g", d1, d2, DecayWeight(d1), DecayWeight(d2))
			}
		}
	}
	for _, d := range []int{-1, -7, 6, 100} {
		if w := DecayWeight(d); w != 0 {
			t.Errorf("expected weight(%d) = 0; got %g", d, w)
		}
	}
	if DecayWeight(0) != 1 || DecayWeight(3) != 0.125 {
		t.Errorf("expected 2^-d; got %g and %g", DecayWeight(0), DecayWeight(3))
	}
}

func TestDecayAdjacencyAsymmetric(t *testing.T) {
	adj := DecayAdjacency([][]int{{0, 1}, {-1, 0}})
	if adj.At(0, 1) != 0.5 || adj.At(1, 0) != 0 {
		t.Errorf("expected asymmetric weights kept; got %v", adj.RawMatrix().Data)
	}
}

func TestNewSampleDerivedStreams(t *testing.T) {
	src := strings.Fields("John lives in New York")
	dist := make([][]int, len(src))
	for i := range dist {
		dist[i] = make([]int, len(src))
	}
	s, err := NewSample(7, src, "John ; New York ; lives_in | New York ; USA ; located_in", dist, nil)
	if err != nil {
		t.Fatal(err)
	}
	wantTrg := strings.Fields("<SOS> John ; New York ; lives_in | New York ; USA ; located_in <EOS>")
	if !reflect.DeepEqual(s.TrgWords, wantTrg) {
		t.Errorf("expected target %v; got %v", wantTrg, s.TrgWords)
	}
	if s.TrgLen != len(s.TrgWords) || s.SrcLen != len(s.SrcWords) {
		t.Errorf("length fields out of sync: %d/%d %d/%d", s.TrgLen, len(s.TrgWords), s.SrcLen, len(s.SrcWords))
	}
	if want := []string{"lives_in", "|", "located_in"}; !reflect.DeepEqual(s.RelWords, want) {
		t.Errorf("expected relation stream %v; got %v", want, s.RelWords)
	}
	if want := strings.Fields("John ; New York | New York ; USA"); !reflect.DeepEqual(s.EntityWords, want) {
		t.Errorf("expected entity stream %v; got %v", want, s.EntityWords)
	}
	if r, c := s.AdjMat.Dims(); r != 5 || c != 5 {
		t.Errorf("expected 5x5 adjacency; got %dx%d", r, c)
	}
	if got := s.ViewWords(params.Teacher2); len(got) != len(src)+3 {
		t.Errorf("expected teacher2 view of %d words; got %v", len(src)+3, got)
	}
}

func TestNewSampleShufflePreservesTokens(t *testing.T) {
	src := []string{"a", "b", "c"}
	dist := [][]int{{0, 1, 2}, {1, 0, 1}, {2, 1, 0}}
	line := "a ; b ; r1 | b ; c ; r2 | a ; c ; r3"
	s, err := NewSample(1, src, line, dist, rand.New(rand.NewSource(3)))
	if err != nil {
		t.Fatal(err)
	}
	if s.TrgLen != len(strings.Fields(line))+2 {
		t.Errorf("expected shuffled target to keep %d tokens; got %d", len(strings.Fields(line))+2, s.TrgLen)
	}
	// relation stream follows the shuffled target order
	var rels []string
	for _, w := range s.TrgWords {
		if strings.HasPrefix(w, "r") {
			rels = append(rels, w)
		}
	}
	if got := strings.Join(s.RelWords, " "); got != strings.Join(rels, " | ") {
		t.Errorf("expected relation stream %q to follow target order %v", got, rels)
	}
}

func TestNewSampleNIL(t *testing.T) {
	s, err := NewSample(1, []string{"x"}, "NIL", [][]int{{0}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(s.RelWords) != 0 || len(s.EntityWords) != 0 {
		t.Errorf("expected empty auxiliary streams; got %v %v", s.RelWords, s.EntityWords)
	}
	if want := []string{"<SOS>", "NIL", "<EOS>"}; !reflect.DeepEqual(s.TrgWords, want) {
		t.Errorf("expected %v; got %v", want, s.TrgWords)
	}
}

func TestNewSampleRejectsMalformed(t *testing.T) {
	if _, err := NewSample(1, []string{"a", "b"}, "a ; b", [][]int{{0, 1}, {1, 0}}, nil); err == nil {
		t.Error("expected error for two-field triplet")
	}
	if _, err := NewSample(1, []string{"a", "b"}, "a ; b ; r", [][]int{{0}}, nil); err == nil {
		t.Error("expected error for adjacency size mismatch")
	}
}

func writeCorpus(t *testing.T, dir string, split Split, sents, tups, deps []string) {
	t.Helper()
	writeFile(t, dir, string(split)+".sent", strings.Join(sents, "\n")+"\n")
	writeFile(t, dir, string(split)+".tup", strings.Join(tups, "\n")+"\n")
	writeFile(t, dir, string(split)+".dep", strings.Join(deps, "\n")+"\n")
}

func TestReadCorpusDropsOversizedTrainingOnly(t *testing.T) {
	dir := t.TempDir()
	sents := []string{"a b", "a b c d"}
	tups := []string{"a ; b ; r", "a ; d ; r"}
	deps := []string{
		`{"adj_mat": [[0, 1], [1, 0]]}`,
		`{"adj_mat": [[0, 1, 2, 3], [1, 0, 1, 2], [2, 1, 0, 1], [3, 2, 1, 0]]}`,
	}
	writeCorpus(t, dir, Train, sents, tups, deps)
	writeCorpus(t, dir, Dev, sents, tups, deps)

	cfg := params.DefaultConfig()
	cfg.MaxSrcLen = 3
	train, err := ReadCorpus(dir, Train, cfg, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatal(err)
	}
	if len(train) != 1 || train[0].Id != 1 {
		t.Fatalf("expected one training sample with id 1; got %d", len(train))
	}
	dev, err := ReadCorpus(dir, Dev, cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(dev) != 2 || dev[1].Id != 2 {
		t.Fatalf("expected dev to keep both samples; got %d", len(dev))
	}
}

func TestReadCorpusErrors(t *testing.T) {
	dir := t.TempDir()
	cfg := params.DefaultConfig()
	var fe *FileError
	if _, err := ReadCorpus(dir, Test, cfg, nil); !errors.As(err, &fe) {
		t.Errorf("expected FileError for missing files; got %v", err)
	}

	writeCorpus(t, dir, Test, []string{"a b"}, []string{"a ; b ; r"}, []string{`{"adj_mat": [[0, 1], [1`})
	var de *DataFormatError
	if _, err := ReadCorpus(dir, Test, cfg, nil); !errors.As(err, &de) || de.Line != 1 {
		t.Errorf("expected DataFormatError on line 1; got %v", err)
	}

	writeCorpus(t, dir, Dev, []string{"a b", "c d"}, []string{"a ; b ; r"}, []string{`{"adj_mat": [[0]]}`})
	if _, err := ReadCorpus(dir, Dev, cfg, nil); !errors.As(err, &de) {
		t.Errorf("expected DataFormatError for length mismatch; got %v", err)
	}
}

func TestReadRelations(t *testing.T) {
	p := writeFile(t, t.TempDir(), "relations.txt", "capital_of\nborn_in\n\n")
	rels, err := ReadRelations(p)
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"capital_of", "born_in"}; !reflect.DeepEqual(rels, want) {
		t.Errorf("expected %v; got %v", want, rels)
	}
	if _, err := ReadRelations(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Error("expected error for missing relation file")
	}
}
