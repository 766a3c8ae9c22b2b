package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aSeaFood/STER/IO"
)

func writeFile(t *testing.T, path string, lines ...string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func depLine(t *testing.T, sent string) string {
	t.Helper()
	n := len(strings.Fields(sent))
	dist := make([][]int, n)
	for i := range dist {
		dist[i] = make([]int, n)
		for j := range dist[i] {
			dist[i][j] = i - j
		}
	}
	raw, err := json.Marshal(map[string][][]int{"adj_mat": dist})
	if err != nil {
		t.Fatal(err)
	}
	return string(raw)
}

func writeSplit(t *testing.T, dir, split string, rows [][2]string) {
	t.Helper()
	var sents, tups, deps []string
	for _, r := range rows {
		sents = append(sents, r[0])
		tups = append(tups, r[1])
		deps = append(deps, depLine(t, r[0]))
	}
	writeFile(t, filepath.Join(dir, split+".sent"), sents...)
	writeFile(t, filepath.Join(dir, split+".tup"), tups...)
	writeFile(t, filepath.Join(dir, split+".dep"), deps...)
}

func testData(t *testing.T) (data, out, cfg string) {
	t.Helper()
	root := t.TempDir()
	data = filepath.Join(root, "data")
	out = filepath.Join(root, "out")
	if err := os.MkdirAll(data, 0o755); err != nil {
		t.Fatal(err)
	}
	rows := [][2]string{
		{"Paris is the capital of France", "Paris ; France ; capital_of"},
		{"Lyon is in France", "Lyon ; France ; located_in"},
		{"Berlin is the capital of Germany", "Berlin ; Germany ; capital_of"},
		{"Munich is in Germany", "Munich ; Germany ; located_in"},
		{"Rome is the capital of Italy and Milan is in Italy", "Rome ; Italy ; capital_of | Milan ; Italy ; located_in"},
	}
	writeSplit(t, data, "train", rows)
	writeSplit(t, data, "dev", rows[:2])
	writeSplit(t, data, "test", rows[2:4])
	writeFile(t, filepath.Join(data, relationsFile), "capital_of", "located_in")
	writeFile(t, filepath.Join(data, embeddingFile), "France 0.1 0.2 0.3 0.4", "is 0.5 0.5 0.5 0.5", "short 1")

	cfg = filepath.Join(root, "config.yaml")
	writeFile(t, cfg,
		"word_embed_dim: 4",
		"char_embed_dim: 3",
		"char_feature_size: 2",
		"max_word_len: 5",
		"layers: 1",
		"max_trg_len: 14",
		"min_word_freq: 1",
		"batch_size: 2",
		"max_epochs: 2",
		"learning_rate: 0.01",
		"distill_warmup: 1",
		"save_epoch_number: 1",
	)
	return data, out, cfg
}

func TestTrainTestHistory(t *testing.T) {
	data, out, cfg := testData(t)
	global := []string{"ster", "--device", "cpu:2", "--data", data, "--out", out, "--config", cfg}

	if err := newApp().Run(append(global, "train")); err != nil {
		t.Fatalf("train: %v", err)
	}
	for _, f := range []string{vocabFile, runsFile, epochLogFile, "training.log", "stu_model.gob", "tea1_model.gob", "tea2_model.gob", "stu_model.ep002.gob"} {
		if _, err := os.Stat(filepath.Join(out, f)); err != nil {
			t.Errorf("expected %s to be written: %v", f, err)
		}
	}
	csvLines, err := IO.ReadLines(filepath.Join(out, epochLogFile))
	if err != nil {
		t.Fatal(err)
	}
	if len(csvLines) != 1+2*3 {
		t.Errorf("expected a header and 6 epoch rows; got %d lines", len(csvLines))
	}

	if err := newApp().Run(append(global, "test", "--epoch", "2")); err != nil {
		t.Fatalf("test: %v", err)
	}
	for _, v := range []string{"stu", "tea1", "tea2"} {
		lines, err := IO.ReadLines(filepath.Join(out, v+"_test.out"))
		if err != nil {
			t.Fatal(err)
		}
		if len(lines) != 2 {
			t.Errorf("%s: expected one prediction per test sentence; got %d", v, len(lines))
		}
	}

	var buf bytes.Buffer
	app := newApp()
	app.Writer = &buf
	if err := app.Run(append(global, "history", "--list")); err != nil {
		t.Fatalf("history: %v", err)
	}
	runs := strings.Fields(buf.String())
	if len(runs) != 2 || !strings.HasPrefix(runs[0], "train-") || !strings.HasPrefix(runs[1], "test-") {
		t.Fatalf("expected a train and a test run; got %v", runs)
	}
	buf.Reset()
	app = newApp()
	app.Writer = &buf
	if err := app.Run(append(global, "history", "--run", runs[0])); err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(buf.String(), "student dev sequence F1") {
		t.Errorf("expected the epoch table and plot; got %q", buf.String())
	}
}

func TestTestNeedsCheckpoints(t *testing.T) {
	data, out, cfg := testData(t)
	if err := os.MkdirAll(out, 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(out, vocabFile), `{"words":["<PAD>","<UNK>","<SOS>","<EOS>"],"chars":["<PAD>","<UNK>",";","|"]}`)
	err := newApp().Run([]string{"ster", "--data", data, "--out", out, "--config", cfg, "test"})
	if err == nil || !strings.Contains(err.Error(), "stu_model.gob") {
		t.Errorf("expected a missing checkpoint error; got %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(out, "stu_test.out")); statErr == nil {
		t.Error("did not expect predictions without checkpoints")
	}
}

func TestScoreCommand(t *testing.T) {
	data, _, _ := testData(t)
	pred := filepath.Join(t.TempDir(), "pred.out")
	writeFile(t, pred, "Berlin ; Germany ; capital_of", "NIL")

	var buf bytes.Buffer
	app := newApp()
	app.Writer = &buf
	if err := app.Run([]string{"ster", "--data", data, "score", filepath.Join(data, "test.tup"), pred}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "P 1.000\tR 0.500\tF1 0.667") {
		t.Errorf("expected P 1 R 0.5; got %q", buf.String())
	}
	if err := newApp().Run([]string{"ster", "--data", data, "score", pred}); err == nil {
		t.Error("expected an error with a single file")
	}
}

func TestParseDevice(t *testing.T) {
	tests := []struct {
		in   string
		want int
		err  bool
	}{
		{"cpu", 1, false},
		{"cpu:4", 4, false},
		{"cpu:0", 0, true},
		{"cpu:x", 0, true},
		{"cuda:0", 0, true},
	}
	for _, tt := range tests {
		got, err := parseDevice(tt.in)
		if (err != nil) != tt.err || got != tt.want {
			t.Errorf("parseDevice(%q): expected %d (err %v); got %d (%v)", tt.in, tt.want, tt.err, got, err)
		}
	}
}

func TestAsciiPlot(t *testing.T) {
	var buf bytes.Buffer
	asciiPlot(&buf, []float64{1, 0.5, 0})
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 12 {
		t.Fatalf("expected 12 lines; got %d", len(lines))
	}
	if lines[0] != "█  " || lines[5] != "██ " || lines[9] != "██ " {
		t.Errorf("unexpected bars %q", lines[:10])
	}
	if lines[11] != "1  " {
		t.Errorf("expected the epoch axis; got %q", lines[11])
	}

	buf.Reset()
	asciiPlot(&buf, nil)
	if buf.String() != "no data to plot\n" {
		t.Errorf("expected the empty message; got %q", buf.String())
	}
}
