package main

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/aSeaFood/STER/IO"
	"github.com/aSeaFood/STER/batch"
	"github.com/aSeaFood/STER/params"
	"github.com/aSeaFood/STER/scoring"
	"github.com/aSeaFood/STER/seq2seq"
	"github.com/aSeaFood/STER/storage"
	"github.com/aSeaFood/STER/storage/sqlite/zombiezen"
	"github.com/gosuri/uiprogress"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

func newRand(seed int64) *rand.Rand { return rand.New(rand.NewSource(seed)) }

// tracker remembers the best dev score of one variant.
type tracker struct {
	bestF     float64
	bestEpoch int
	bestSeed  int64
}

func runTrain(e *env) error {
	cfg := e.cfg
	rng := newRand(e.seed)

	relPath := filepath.Join(e.dataDir, relationsFile)
	if err := IO.CheckFiles(relPath); err != nil {
		return err
	}
	relations, err := IO.ReadRelations(relPath)
	if err != nil {
		return err
	}
	e.log.Info("loading data")
	train, err := IO.ReadCorpus(e.dataDir, IO.Train, cfg, rng)
	if err != nil {
		return err
	}
	dev, err := IO.ReadCorpus(e.dataDir, IO.Dev, cfg, rng)
	if err != nil {
		return err
	}
	_, devTup, _ := IO.CorpusFiles(e.dataDir, IO.Dev)
	devRefs, err := IO.ReadLines(devTup)
	if err != nil {
		return err
	}
	e.log.Info("data loaded", zap.Int("train", len(train)), zap.Int("dev", len(dev)))
	if len(train) == 0 {
		return errors.Errorf("no training samples within max_src_len %d and max_trg_len %d", cfg.MaxSrcLen, cfg.MaxTrgLen)
	}

	e.log.Info("preparing vocabulary")
	words, chars, emb, err := IO.BuildVocab(train, relations, cfg, filepath.Join(e.dataDir, embeddingFile), rng)
	if err != nil {
		return err
	}
	if err := IO.ExportVocabJSON(filepath.Join(e.outDir, vocabFile), words, chars); err != nil {
		return err
	}
	ctx := params.NewContext(words, chars, relations)
	e.log.Info("vocabulary built", zap.Int("words", words.Len()), zap.Int("chars", chars.Len()))

	var models [3]*seq2seq.Model
	for _, v := range params.Variants {
		models[v] = seq2seq.NewModel(v, cfg, chars.Len(), emb, newRand(e.seed+int64(v)+1))
	}
	size := 0
	for _, p := range models[params.Student].Params() {
		r, c := p.W.Dims()
		size += r * c
	}
	e.log.Info("model built", zap.Int("parameters", size), zap.String("fingerprint", models[params.Student].Fingerprint()))

	runner, err := seq2seq.NewRunner(e.workers)
	if err != nil {
		return err
	}
	defer runner.Release()
	trainer := seq2seq.NewTrainer(models, runner, cfg)

	store, pool, err := zombiezen.Open(filepath.Join(e.outDir, runsFile))
	if err != nil {
		return err
	}
	defer pool.Close()
	run := fmt.Sprintf("train-%s-seed%d", time.Now().Format("20060102-150405"), e.seed)

	csvLog, err := newEpochLog(filepath.Join(e.outDir, epochLogFile))
	if err != nil {
		return err
	}
	defer csvLog.Close()

	cache := batch.NewCache(evalCacheBytes)
	devGold := make([][]string, len(dev))
	for i, s := range dev {
		devGold[i] = s.TrgWords[1:]
	}

	var best [3]tracker
	for v := range best {
		best[v].bestF = -1
	}
	var history []float64

	for epoch := 0; epoch < cfg.MaxEpochs; epoch++ {
		seed := e.seed + int64(epoch) + 1
		trainer.Reseed(seed)
		trainer.Reset()
		batches := batch.Split(batch.Shuffle(train, cfg.BatchSize, newRand(seed)), cfg.BatchSize)
		e.log.Info("epoch", zap.Int("epoch", epoch+1), zap.Int64("seed", seed), zap.Int("batches", len(batches)))

		start := time.Now()
		var loss [3]float64
		progress := uiprogress.New()
		progress.Start()
		bar := progress.AddBar(len(batches))
		bar.AppendCompleted()
		bar.PrependElapsed()
		for _, samples := range batches {
			b, err := batch.Encode(samples, ctx, cfg, true)
			if err != nil {
				progress.Stop()
				return err
			}
			res := trainer.TrainBatch(b, epoch)
			for v := range loss {
				loss[v] += res.Loss[v]
			}
			bar.Incr()
		}
		progress.Stop()
		for v := range loss {
			loss[v] /= float64(len(batches))
		}
		e.log.Info("training loss",
			zap.Float64("stu", loss[params.Student]),
			zap.Float64("tea1", loss[params.Teacher1]),
			zap.Float64("tea2", loss[params.Teacher2]),
			zap.Duration("elapsed", time.Since(start)))

		for _, v := range params.Variants {
			m := models[v]
			predWords, err := decodeSplit(m, runner, dev, ctx, cache, "dev")
			if err != nil {
				return err
			}
			counts, seqF := scoring.SequenceF1(devGold, predWords)
			seqP, seqR, _ := counts.PRF()
			trip := scoring.Score(devRefs, predictionLines(predWords), relations, scoring.FullMatch)

			rec := storage.EpochRecord{
				Run:       run,
				Variant:   v.String(),
				Epoch:     epoch + 1,
				Loss:      loss[v],
				SeqP:      seqP,
				SeqR:      seqR,
				SeqF:      seqF,
				TripletF1: trip.F1,
			}
			if seqF > best[v].bestF {
				best[v] = tracker{bestF: seqF, bestEpoch: epoch + 1, bestSeed: seed}
				rec.Best = true
				if err := m.Save(seq2seq.CheckpointPath(e.outDir, v, 0), epoch+1, trainer.Opts[v].T); err != nil {
					return err
				}
			}
			if cfg.SaveEpochNumber > 0 && (epoch+1)%cfg.SaveEpochNumber == 0 {
				if err := m.Save(seq2seq.CheckpointPath(e.outDir, v, epoch+1), epoch+1, trainer.Opts[v].T); err != nil {
					return err
				}
			}
			e.log.Info("dev result",
				zap.Stringer("variant", v),
				zap.Int("predicted", counts.Predicted),
				zap.Int("gold", counts.Gold),
				zap.Int("correct", counts.Correct),
				zap.Float64("seq_p", seqP),
				zap.Float64("seq_r", seqR),
				zap.Float64("seq_f", seqF),
				zap.Float64("triplet_f1", trip.F1),
				zap.Int("best_epoch", best[v].bestEpoch),
				zap.Int64("best_seed", best[v].bestSeed),
				zap.Float64("best_seq_f", best[v].bestF))
			if err := store.WriteEpoch(rec); err != nil {
				return err
			}
			if err := csvLog.Write(rec); err != nil {
				return err
			}
			if v == params.Student {
				history = append(history, seqF)
			}
		}

		if cfg.Patience > 0 && epoch+1-best[params.Student].bestEpoch >= cfg.Patience {
			e.log.Info("stopping early", zap.Int("epoch", epoch+1), zap.Int("best_epoch", best[params.Student].bestEpoch))
			break
		}
	}

	for _, v := range params.Variants {
		e.log.Info("model saved", zap.Stringer("variant", v), zap.String("path", seq2seq.CheckpointPath(e.outDir, v, 0)))
	}
	fmt.Println("student dev sequence F1 per epoch")
	asciiPlot(os.Stdout, history)
	return nil
}
