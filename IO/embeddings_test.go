package IO

import (
	"errors"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/aSeaFood/STER/params"
)

func vocabSamples() []Sample {
	return []Sample{
		{SrcWords: []string{"Paris", "is", "in", "France"}},
		{SrcWords: []string{"Paris", "is", "big"}},
		{SrcWords: []string{"France", "is", "old"}},
	}
}

func TestBuildVocabOrderAndEmbeddings(t *testing.T) {
	dir := t.TempDir()
	emb := writeFile(t, dir, "w2v.txt", "3 2\nis 0.1 0.2\nshort 0.5\nFrance 0.3 0.4\nold 9 9\n")
	cfg := params.DefaultConfig()
	cfg.WordEmbedDim = 2
	cfg.MinWordFreq = 2

	words, chars, m, err := BuildVocab(vocabSamples(), []string{"capital_of"}, cfg, emb, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatal(err)
	}
	// pretrained hits first in file order, then the rest in first-seen order
	want := []string{"<PAD>", "<UNK>", "<SOS>", "<EOS>", "is", "France", "Paris", "capital_of", ";", "|"}
	if len(words.IDToToken) != len(want) {
		t.Fatalf("expected vocabulary %v; got %v", want, words.IDToToken)
	}
	for i, w := range want {
		if words.IDToToken[i] != w {
			t.Errorf("id %d: expected %s; got %s", i, w, words.IDToToken[i])
		}
	}
	if _, ok := words.ID("old"); ok {
		t.Error("did not expect rare word old in the vocabulary")
	}

	r, c := m.Dims()
	if r != words.Len() || c != 2 {
		t.Fatalf("expected %dx2 embeddings; got %dx%d", words.Len(), r, c)
	}
	if m.At(0, 0) != 0 || m.At(0, 1) != 0 {
		t.Error("expected zero padding row")
	}
	if m.At(4, 0) != 0.1 || m.At(5, 1) != 0.4 {
		t.Errorf("expected pretrained rows; got %v %v", m.RawRowView(4), m.RawRowView(5))
	}
	for i := 1; i < r; i++ {
		if i == 4 || i == 5 {
			continue
		}
		for _, v := range m.RawRowView(i) {
			if v < -0.25 || v > 0.25 {
				t.Errorf("row %d: expected random value in [-0.25,0.25]; got %g", i, v)
			}
		}
	}
	if m.At(1, 0) == m.At(6, 0) && m.At(1, 1) == m.At(6, 1) {
		t.Error("expected unknown words not to share the <UNK> row")
	}

	if got, _ := chars.ID("P"); got != 4 {
		t.Errorf("expected first seen char P at id 4; got %d", got)
	}
}

func TestBuildVocabMissingEmbeddings(t *testing.T) {
	cfg := params.DefaultConfig()
	_, _, _, err := BuildVocab(vocabSamples(), nil, cfg, filepath.Join(t.TempDir(), "none.txt"), rand.New(rand.NewSource(1)))
	var fe *FileError
	if !errors.As(err, &fe) {
		t.Errorf("expected FileError; got %v", err)
	}
}

func TestVocabSnapshotRoundTrip(t *testing.T) {
	words := params.NewWordVocabulary()
	words.Add("Paris")
	chars := params.NewCharVocabulary()
	chars.Add("P")
	p := filepath.Join(t.TempDir(), "vocab.json")
	if err := ExportVocabJSON(p, words, chars); err != nil {
		t.Fatal(err)
	}
	w2, c2, err := ImportVocabJSON(p)
	if err != nil {
		t.Fatal(err)
	}
	if w2.Lookup("Paris") != 4 || c2.Lookup("P") != 4 {
		t.Errorf("expected ids to survive the snapshot; got %d %d", w2.Lookup("Paris"), c2.Lookup("P"))
	}
	if _, _, err := ImportVocabJSON(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for a missing snapshot")
	}
}

func TestWritePredictions(t *testing.T) {
	p := filepath.Join(t.TempDir(), "stu_test.out")
	if err := WritePredictions(p, []string{"a ; b ; r", ""}); err != nil {
		t.Fatal(err)
	}
	lines, err := ReadLines(p)
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 2 || lines[0] != "a ; b ; r" || lines[1] != "" {
		t.Errorf("expected two aligned lines; got %q", lines)
	}
}
