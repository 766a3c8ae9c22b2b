package optimizations

import (
	"math"

	"github.com/aSeaFood/STER/graph"
	"github.com/aSeaFood/STER/utils"
	"gonum.org/v1/gonum/mat"
)

// AdamUpdateInPlace applies one bias-corrected Adam step:
// p -= lr * (mhat/(sqrt(vhat)+eps) + wd * p).
func AdamUpdateInPlace(
	p, g, m, v *mat.Dense,
	t int,
	lr, beta1, beta2, eps, weightDecay float64,
) {
	pr, pc := p.Dims()
	if gr, gc := g.Dims(); gr != pr || gc != pc {
		panic("adamUpdateInPlace: grad shape mismatch")
	}
	if mr, mc := m.Dims(); mr != pr || mc != pc {
		panic("adamUpdateInPlace: m shape mismatch")
	}
	if vr, vc := v.Dims(); vr != pr || vc != pc {
		panic("adamUpdateInPlace: v shape mismatch")
	}
	c1 := 1.0 / (1.0 - math.Pow(beta1, float64(t)))
	c2 := 1.0 / (1.0 - math.Pow(beta2, float64(t)))
	for i := 0; i < pr; i++ {
		prow, grow, mrow, vrow := p.RawRowView(i), g.RawRowView(i), m.RawRowView(i), v.RawRowView(i)
		for j := range prow {
			gij := grow[j]
			mrow[j] = beta1*mrow[j] + (1.0-beta1)*gij
			vrow[j] = beta2*vrow[j] + (1.0-beta2)*gij*gij
			denom := math.Sqrt(vrow[j]*c2) + eps
			prow[j] -= lr * (mrow[j]*c1/denom + weightDecay*prow[j])
		}
	}
}

// Adam steps every parameter of one model with a shared step counter.
type Adam struct {
	LR, Beta1, Beta2, Eps float64
	Clip                  float64 // global gradient norm bound, <= 0 disables
	T                     int
}

// Step clips the model's gradients as one vector, updates the parameters
// and clears the gradients. It returns the gradient norm before clipping.
func (a *Adam) Step(ps []*graph.Param) float64 {
	grads := make([]*mat.Dense, len(ps))
	for i, p := range ps {
		grads[i] = p.Grad
	}
	norm := utils.ClipGrads(a.Clip, grads...)
	a.T++
	for _, p := range ps {
		AdamUpdateInPlace(p.W, p.Grad, p.M, p.V, a.T, a.LR, a.Beta1, a.Beta2, a.Eps, 0)
		p.ZeroGrad()
	}
	return norm
}
