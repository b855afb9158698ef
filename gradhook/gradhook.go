// Package gradhook intercepts gradients while they flow
// backward through an anydiff graph.
//
// A hook is attached to an intermediate result right after
// it is produced.
// During back-propagation, the upstream gradient for that
// result is passed through the hook before it reaches the
// result's own Propagate method.
// This makes it possible to rescale, negate, record, or
// replace the gradient that one sub-network sends into
// another.
package gradhook

import (
	"math"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
)

// A Transformer transforms an upstream gradient.
//
// Transform may modify u and return it.
// A Transformer should not retain u after Transform
// returns, since the caller owns it.
type Transformer interface {
	Transform(u anyvec.Vector) anyvec.Vector
}

// Chain applies Transformers in order, so that the first
// element sees the raw upstream gradient.
type Chain []Transformer

// Transform applies every Transformer in the chain.
func (c Chain) Transform(u anyvec.Vector) anyvec.Vector {
	for _, t := range c {
		u = t.Transform(u)
	}
	return u
}

type hookRes struct {
	In   anydiff.Res
	Hook Transformer
}

// Attach wraps r so that t transforms the upstream
// gradient of r during back-propagation.
//
// The result should have a single consumer in the graph.
// If several results depend on it, the hook runs once per
// consumer; use Pool or PoolSeq to merge the gradients
// first.
func Attach(r anydiff.Res, t Transformer) anydiff.Res {
	return &hookRes{In: r, Hook: t}
}

func (h *hookRes) Output() anyvec.Vector {
	return h.In.Output()
}

func (h *hookRes) Vars() anydiff.VarSet {
	return h.In.Vars()
}

func (h *hookRes) Propagate(u anyvec.Vector, g anydiff.Grad) {
	h.In.Propagate(h.Hook.Transform(u), g)
}

// Norm computes the Euclidean norm of a vector.
func Norm(v anyvec.Vector) float64 {
	return math.Sqrt(numericFloat(v.Dot(v)))
}

func numericFloat(n anyvec.Numeric) float64 {
	switch n := n.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	default:
		panic("unsupported numeric type")
	}
}
