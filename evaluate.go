package main

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/aSeaFood/STER/IO"
	"github.com/aSeaFood/STER/batch"
	"github.com/aSeaFood/STER/params"
	"github.com/aSeaFood/STER/scoring"
	"github.com/aSeaFood/STER/seq2seq"
	"github.com/aSeaFood/STER/storage"
	"github.com/aSeaFood/STER/storage/sqlite/zombiezen"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

// evalCacheBytes bounds the encoded dev/test batches kept in memory.
const evalCacheBytes = 256 << 20

// decodeSplit greedily decodes samples batch by batch and returns the
// predicted words of every sample, ending with <EOS> when one was emitted.
// Batches are looked up in cache under key/<index> when cache is set.
func decodeSplit(m *seq2seq.Model, r *seq2seq.Runner, samples []IO.Sample, ctx *params.Context, cache *batch.Cache, key string) ([][]string, error) {
	cfg := m.Config
	out := make([][]string, 0, len(samples))
	for i, chunk := range batch.Split(samples, cfg.BatchSize) {
		var (
			b   *batch.Batch
			err error
		)
		if cache != nil {
			b, err = cache.Encoded(fmt.Sprintf("%s/%d", key, i), chunk, ctx, cfg, false)
		} else {
			b, err = batch.Encode(chunk, ctx, cfg, false)
		}
		if err != nil {
			return nil, err
		}
		preds, attns := m.DecodeBatch(r, b)
		for j, s := range b.Samples {
			out = append(out, scoring.PredWords(preds[j], attns[j], s.ViewWords(m.Variant), ctx.Words, cfg.CopyDecoding()))
		}
	}
	return out, nil
}

// predictionLines turns decoded words into prediction file lines.
func predictionLines(words [][]string) []string {
	lines := make([]string, len(words))
	for i, w := range words {
		lines[i] = scoring.Line(w)
	}
	return lines
}

// loadContext reads the vocabulary snapshot and the relation set.
func loadContext(e *env) (*params.Context, error) {
	vocabPath := filepath.Join(e.outDir, vocabFile)
	relPath := filepath.Join(e.dataDir, relationsFile)
	if err := IO.CheckFiles(vocabPath, relPath); err != nil {
		return nil, err
	}
	words, chars, err := IO.ImportVocabJSON(vocabPath)
	if err != nil {
		return nil, err
	}
	relations, err := IO.ReadRelations(relPath)
	if err != nil {
		return nil, err
	}
	e.log.Info("vocabulary loaded", zap.Int("words", words.Len()), zap.Int("chars", chars.Len()), zap.Int("relations", len(relations)))
	return params.NewContext(words, chars, relations), nil
}

// loadModel builds a model of variant v and reads its checkpoint. The word
// table starts at zero; the checkpoint supplies it.
func loadModel(e *env, ctx *params.Context, v params.Variant, epoch int) (*seq2seq.Model, error) {
	emb := mat.NewDense(ctx.Words.Len(), e.cfg.WordEmbedDim, nil)
	m := seq2seq.NewModel(v, e.cfg, ctx.Chars.Len(), emb, newRand(e.seed))
	path := seq2seq.CheckpointPath(e.outDir, v, epoch)
	savedAt, _, err := m.Load(path)
	if err != nil {
		return nil, err
	}
	e.log.Info("model loaded", zap.Stringer("variant", v), zap.String("path", path), zap.Int("epoch", savedAt))
	return m, nil
}

func runTest(e *env, epoch, mode int) error {
	ctx, err := loadContext(e)
	if err != nil {
		return err
	}
	var paths []string
	for _, v := range params.Variants {
		paths = append(paths, seq2seq.CheckpointPath(e.outDir, v, epoch))
	}
	if err := IO.CheckFiles(paths...); err != nil {
		return err
	}
	models := make([]*seq2seq.Model, len(params.Variants))
	for _, v := range params.Variants {
		if models[v], err = loadModel(e, ctx, v, epoch); err != nil {
			return err
		}
	}

	test, err := IO.ReadCorpus(e.dataDir, IO.Test, e.cfg, newRand(e.seed))
	if err != nil {
		return err
	}
	_, tupPath, _ := IO.CorpusFiles(e.dataDir, IO.Test)
	refs, err := IO.ReadLines(tupPath)
	if err != nil {
		return err
	}
	e.log.Info("test data", zap.Int("samples", len(test)), zap.Int64("seed", e.seed))

	runner, err := seq2seq.NewRunner(e.workers)
	if err != nil {
		return err
	}
	defer runner.Release()

	store, pool, err := zombiezen.Open(filepath.Join(e.outDir, runsFile))
	if err != nil {
		return err
	}
	defer pool.Close()
	run := fmt.Sprintf("test-%s-seed%d", time.Now().Format("20060102-150405"), e.seed)

	cache := batch.NewCache(evalCacheBytes)
	for _, v := range params.Variants {
		start := time.Now()
		words, err := decodeSplit(models[v], runner, test, ctx, cache, "test")
		if err != nil {
			return err
		}
		lines := predictionLines(words)
		outPath := filepath.Join(e.outDir, fmt.Sprintf("%s_test.out", v))
		if err := IO.WritePredictions(outPath, lines); err != nil {
			return err
		}
		res := scoring.Score(refs, lines, ctx.Relations, mode)
		e.log.Info("test result",
			zap.Stringer("variant", v),
			zap.Int("mode", mode),
			zap.Int("predicted", res.Predicted),
			zap.Int("reference", res.Reference),
			zap.Int("correct", res.Correct),
			zap.Int("same", res.Same),
			zap.Int("none", res.None),
			zap.Int("duplicate", res.Duplicate),
			zap.Float64("precision", res.Precision),
			zap.Float64("recall", res.Recall),
			zap.Float64("f1", res.F1),
			zap.String("output", outPath),
			zap.Duration("elapsed", time.Since(start)))
		err = store.WriteTest(storage.TestRecord{
			Run:       run,
			Variant:   v.String(),
			Epoch:     epoch,
			Mode:      mode,
			Correct:   res.Correct,
			Predicted: res.Predicted,
			Reference: res.Reference,
			Precision: res.Precision,
			Recall:    res.Recall,
			F1:        res.F1,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// runScore scores a prediction file offline.
func runScore(w io.Writer, relPath, refPath, predPath string, mode int) error {
	if err := IO.CheckFiles(relPath, refPath, predPath); err != nil {
		return err
	}
	relations, err := IO.ReadRelations(relPath)
	if err != nil {
		return err
	}
	refs, err := IO.ReadLines(refPath)
	if err != nil {
		return err
	}
	preds, err := IO.ReadLines(predPath)
	if err != nil {
		return err
	}
	res := scoring.Score(refs, preds, relations, mode)
	fmt.Fprintf(w, "predicted %d\treference %d\tcorrect %d\n", res.Predicted, res.Reference, res.Correct)
	fmt.Fprintf(w, "same %d\tnone %d\tduplicate %d\n", res.Same, res.None, res.Duplicate)
	fmt.Fprintf(w, "P %.3f\tR %.3f\tF1 %.3f\n", res.Precision, res.Recall, res.F1)
	return nil
}
