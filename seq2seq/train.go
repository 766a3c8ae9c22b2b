package seq2seq

import (
	"math/rand"

	"github.com/aSeaFood/STER/batch"
	"github.com/aSeaFood/STER/graph"
	"github.com/aSeaFood/STER/optimizations"
	"github.com/aSeaFood/STER/params"
	"github.com/aSeaFood/STER/utils"
)

// Trainer updates the student and both teachers on the same batches. The
// models are indexed by params.Variant.
type Trainer struct {
	Models [3]*Model
	Opts   [3]*optimizations.Adam
	Runner *Runner
	Config params.TrainingConfig

	rng     *rand.Rand
	pending int
}

func NewTrainer(models [3]*Model, runner *Runner, cfg params.TrainingConfig) *Trainer {
	t := &Trainer{Models: models, Runner: runner, Config: cfg, rng: rand.New(rand.NewSource(1))}
	for v := range t.Opts {
		t.Opts[v] = &optimizations.Adam{
			LR:    cfg.LearningRate,
			Beta1: cfg.AdamBeta1,
			Beta2: cfg.AdamBeta2,
			Eps:   cfg.AdamEps,
			Clip:  cfg.GradClip,
		}
	}
	return t
}

// Reseed restarts the dropout streams; the training loop calls it once per
// epoch.
func (t *Trainer) Reseed(seed int64) { t.rng = rand.New(rand.NewSource(seed)) }

// BatchLoss is the loss of each variant on one batch, normalized by the
// number of scored positions.
type BatchLoss struct {
	Loss      [3]float64
	Gold      int  // non-padding gold labels in the batch
	Distilled bool // the student also learned from the teachers
}

// TrainBatch runs one training step on b.
//
// The teachers are trained on the gold labels first and their arg-max
// predictions are kept. The student is then trained on the gold labels and,
// from epoch DistillWarmup on, on each teacher's predictions weighted by
// Tea1Weight and Tea2Weight. Every term is a mean over its own non-padding
// targets; a term with none is skipped. The optimizers step every
// UpdateFreq batches.
func (t *Trainer) TrainBatch(b *batch.Batch, epoch int) BatchLoss {
	n := b.Size()
	seeds := make([][3]int64, n)
	for i := range seeds {
		for v := range seeds[i] {
			seeds[i][v] = t.rng.Int63()
		}
	}

	var res BatchLoss
	for _, labels := range b.Labels {
		res.Gold += countTargets(labels)
	}
	if res.Gold == 0 {
		return res
	}
	scale := 1 / float64(res.Gold)

	// teachers
	teaPreds := [3][][]int{}
	teaLoss := [3][]float64{}
	for _, v := range []params.Variant{params.Teacher1, params.Teacher2} {
		teaPreds[v] = make([][]int, n)
		teaLoss[v] = make([]float64, n)
	}
	for _, v := range []params.Variant{params.Teacher1, params.Teacher2} {
		m, inputs := t.Models[v], Inputs(b, v)
		t.Runner.Each(n, func(i int) {
			g := graph.New(true, true, rand.New(rand.NewSource(seeds[i][v])))
			logits := m.Forward(g, inputs[i])
			loss := g.CrossEntropy(logits, inputs[i].Labels)
			teaPreds[v][i] = utils.ColArgMax(logits.Value)
			teaLoss[v][i] = loss.Scalar()
			g.Backward(g.Scale(loss, scale))
			g.Flush()
		})
	}

	// student
	w := [3]float64{params.Teacher1: t.Config.Tea1Weight, params.Teacher2: t.Config.Tea2Weight}
	var count [3]int
	res.Distilled = epoch >= t.Config.DistillWarmup
	if res.Distilled {
		for _, v := range []params.Variant{params.Teacher1, params.Teacher2} {
			for _, p := range teaPreds[v] {
				count[v] += countTargets(p)
			}
		}
	}
	stuLoss := make([]float64, n)
	m, inputs := t.Models[params.Student], Inputs(b, params.Student)
	t.Runner.Each(n, func(i int) {
		g := graph.New(true, true, rand.New(rand.NewSource(seeds[i][params.Student])))
		logits := m.Forward(g, inputs[i])
		terms := []*graph.Node{g.Scale(g.CrossEntropy(logits, inputs[i].Labels), scale)}
		for _, v := range []params.Variant{params.Teacher1, params.Teacher2} {
			if count[v] > 0 {
				ce := g.CrossEntropy(logits, teaPreds[v][i])
				terms = append(terms, g.Scale(ce, w[v]/float64(count[v])))
			}
		}
		loss := g.Add(terms...)
		stuLoss[i] = loss.Scalar()
		g.Backward(loss)
		g.Flush()
	})

	for i := 0; i < n; i++ {
		res.Loss[params.Student] += stuLoss[i]
		res.Loss[params.Teacher1] += teaLoss[params.Teacher1][i] * scale
		res.Loss[params.Teacher2] += teaLoss[params.Teacher2][i] * scale
	}

	t.pending++
	if t.pending >= t.Config.UpdateFreq {
		t.Step()
	}
	return res
}

// Step applies the accumulated gradients of all three models.
func (t *Trainer) Step() {
	for v, m := range t.Models {
		t.Opts[v].Step(m.Params())
	}
	t.pending = 0
}

// Reset drops gradients accumulated since the last step. The training loop
// calls it at the start of every epoch.
func (t *Trainer) Reset() {
	for _, m := range t.Models {
		for _, p := range m.Params() {
			p.ZeroGrad()
		}
	}
	t.pending = 0
}

// countTargets counts the positions a cross entropy over ids scores.
func countTargets(ids []int) int {
	n := 0
	for _, id := range ids {
		if id != params.PadID {
			n++
		}
	}
	return n
}

// DecodeBatch greedily decodes every sample of b for the model's variant.
func (m *Model) DecodeBatch(r *Runner, b *batch.Batch) (preds, attns [][]int) {
	inputs := Inputs(b, m.Variant)
	preds = make([][]int, len(inputs))
	attns = make([][]int, len(inputs))
	r.Each(len(inputs), func(i int) {
		preds[i], attns[i] = m.Greedy(inputs[i], m.Config.MaxTrgLen)
	})
	return preds, attns
}
