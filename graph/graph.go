// Package graph is a small reverse-mode automatic differentiation tape over
// gonum matrices.
//
// Sequences are stored column-major: a sequence of T vectors of width d is a
// d x T matrix and weights are (out x in). Every op appends its backward
// closure to the tape; Backward replays the tape in reverse.
//
// A Graph is used by one goroutine. Parameters are shared between graphs:
// their values are read-only during a pass and gradients are collected
// privately per graph and merged into the parameter by Flush.
package graph

import (
	"fmt"
	"math/rand"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Param is a trainable matrix with its accumulated gradient and the Adam
// moment estimates.
type Param struct {
	Name string
	W    *mat.Dense
	Grad *mat.Dense
	M, V *mat.Dense

	mu sync.Mutex
}

func NewParam(name string, w *mat.Dense) *Param {
	r, c := w.Dims()
	return &Param{
		Name: name,
		W:    w,
		Grad: mat.NewDense(r, c, nil),
		M:    mat.NewDense(r, c, nil),
		V:    mat.NewDense(r, c, nil),
	}
}

func (p *Param) ZeroGrad() { p.Grad.Zero() }

// Node is a value of the computation and the gradient flowing into it.
type Node struct {
	Value    *mat.Dense
	grad     *mat.Dense
	constant bool
}

func (n *Node) Dims() (int, int) { return n.Value.Dims() }

// Grad returns the gradient accumulated so far, allocating it on first use.
func (n *Node) Grad() *mat.Dense {
	if n.grad == nil {
		r, c := n.Value.Dims()
		n.grad = mat.NewDense(r, c, nil)
	}
	return n.grad
}

// Scalar returns the value of a 1x1 node.
func (n *Node) Scalar() float64 { return n.Value.At(0, 0) }

func (n *Node) wantsGrad() bool { return !n.constant }

type Graph struct {
	NeedsBackprop bool
	Training      bool // enables dropout

	rng      *rand.Rand
	backprop []func()
	leaves   map[*Param]*Node
	rows     map[*Param]map[int][]float64
}

// New returns an empty tape. rng drives dropout and may be nil when training
// is false.
func New(needsBackprop, training bool, rng *rand.Rand) *Graph {
	return &Graph{
		NeedsBackprop: needsBackprop,
		Training:      training,
		rng:           rng,
		leaves:        make(map[*Param]*Node),
		rows:          make(map[*Param]map[int][]float64),
	}
}

func (g *Graph) addBackward(f func()) {
	if g.NeedsBackprop {
		g.backprop = append(g.backprop, f)
	}
}

// Param binds p into the graph. Repeated calls return the same node.
func (g *Graph) Param(p *Param) *Node {
	if n, ok := g.leaves[p]; ok {
		return n
	}
	n := &Node{Value: p.W}
	g.leaves[p] = n
	return n
}

// Const wraps m as a node that receives no gradient.
func (g *Graph) Const(m *mat.Dense) *Node {
	return &Node{Value: m, constant: true}
}

// Backward seeds the scalar out with 1 and replays the tape.
func (g *Graph) Backward(out *Node) {
	if r, c := out.Dims(); r != 1 || c != 1 {
		panic(fmt.Sprintf("graph: Backward needs a 1x1 output, got %dx%d", r, c))
	}
	out.Grad().Set(0, 0, 1)
	for i := len(g.backprop) - 1; i >= 0; i-- {
		g.backprop[i]()
	}
	g.backprop = nil
}

// Flush adds the gradients collected by this graph into the bound
// parameters and resets the graph's private buffers.
func (g *Graph) Flush() {
	for p, n := range g.leaves {
		if n.grad == nil {
			continue
		}
		p.mu.Lock()
		p.Grad.Add(p.Grad, n.grad)
		p.mu.Unlock()
	}
	for p, rows := range g.rows {
		p.mu.Lock()
		for id, row := range rows {
			floats.Add(p.Grad.RawRowView(id), row)
		}
		p.mu.Unlock()
	}
	g.leaves = make(map[*Param]*Node)
	g.rows = make(map[*Param]map[int][]float64)
}

func (g *Graph) rowGrad(p *Param, id int) []float64 {
	rows, ok := g.rows[p]
	if !ok {
		rows = make(map[int][]float64)
		g.rows[p] = rows
	}
	row, ok := rows[id]
	if !ok {
		_, c := p.W.Dims()
		row = make([]float64, c)
		rows[id] = row
	}
	return row
}

func sameShape(op string, a, b *Node) {
	ar, ac := a.Dims()
	br, bc := b.Dims()
	if ar != br || ac != bc {
		panic(fmt.Sprintf("graph: %s shape mismatch %dx%d vs %dx%d", op, ar, ac, br, bc))
	}
}
