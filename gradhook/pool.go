package gradhook

import (
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anydiff/anyseq"
	"github.com/unixpickle/anyvec"
)

type poolRes struct {
	In       anydiff.Res
	Res      anydiff.Res
	PoolVar  *anydiff.Var
	UsedVars anydiff.VarSet
}

// Pool passes a pooled copy of r to f in such a way that
// the result of f will only propagate once through r, no
// matter how many times f uses its argument.
func Pool(r anydiff.Res, f func(anydiff.Res) anydiff.Res) anydiff.Res {
	pool := anydiff.NewVar(r.Output())
	out := f(pool)

	// Keep our set of variables correct when f ignores
	// its input entirely.
	if !out.Vars().Has(pool) {
		return out
	}

	used := anydiff.MergeVarSets(r.Vars(), out.Vars())
	used.Del(pool)
	return &poolRes{In: r, Res: out, PoolVar: pool, UsedVars: used}
}

func (p *poolRes) Output() anyvec.Vector {
	return p.Res.Output()
}

func (p *poolRes) Vars() anydiff.VarSet {
	return p.UsedVars
}

func (p *poolRes) Propagate(u anyvec.Vector, g anydiff.Grad) {
	v := p.PoolVar
	g[v] = v.Vector.Creator().MakeVector(v.Vector.Len())
	p.Res.Propagate(u, g)
	down := g[v]
	delete(g, v)
	p.In.Propagate(down, g)
}

type poolSeqRes struct {
	In       anydiff.Res
	Res      anyseq.Seq
	PoolVar  *anydiff.Var
	UsedVars anydiff.VarSet
}

// PoolSeq is like Pool, but for functions which turn a
// vector into a sequence.
//
// A decoder which feeds the same code into every timestep
// uses PoolSeq so that the encoder behind the code is
// back-propagated once instead of once per timestep.
func PoolSeq(r anydiff.Res, f func(anydiff.Res) anyseq.Seq) anyseq.Seq {
	pool := anydiff.NewVar(r.Output())
	out := f(pool)
	if !out.Vars().Has(pool) {
		return out
	}
	used := anydiff.MergeVarSets(r.Vars(), out.Vars())
	used.Del(pool)
	return &poolSeqRes{In: r, Res: out, PoolVar: pool, UsedVars: used}
}

func (p *poolSeqRes) Creator() anyvec.Creator {
	return p.Res.Creator()
}

func (p *poolSeqRes) Output() []*anyseq.Batch {
	return p.Res.Output()
}

func (p *poolSeqRes) Vars() anydiff.VarSet {
	return p.UsedVars
}

func (p *poolSeqRes) Propagate(u []*anyseq.Batch, g anydiff.Grad) {
	v := p.PoolVar
	g[v] = v.Vector.Creator().MakeVector(v.Vector.Len())
	p.Res.Propagate(u, g)
	down := g[v]
	delete(g, v)
	p.In.Propagate(down, g)
}

// A Capture cuts a graph at a result.
//
// Downstream computations consume Var, a variable holding
// a copy of the result's value.
// When Var is tracked in a gradient, back-propagating the
// downstream graph accumulates the gradient for the result
// without touching anything upstream of it.
// The captured gradient can later be sent into the
// upstream graph with a Transfer hook.
type Capture struct {
	In  anydiff.Res
	Var *anydiff.Var
}

// NewCapture creates a Capture for r.
func NewCapture(r anydiff.Res) *Capture {
	return &Capture{In: r, Var: anydiff.NewVar(r.Output())}
}

// Track adds c.Var to g with a zero gradient.
func (c *Capture) Track(g anydiff.Grad) {
	g[c.Var] = c.Var.Vector.Creator().MakeVector(c.Var.Vector.Len())
}

// Take removes the captured gradient from g and returns
// it.
// It returns nil if c.Var was not tracked.
func (c *Capture) Take(g anydiff.Grad) anyvec.Vector {
	res := g[c.Var]
	delete(g, c.Var)
	return res
}

// Release takes the captured gradient from g and
// back-propagates it through the captured result, using a
// Transfer hook to substitute it for the upstream
// gradient.
// The captured gradient is first passed through t, which
// may be nil.
func (c *Capture) Release(g anydiff.Grad, t Transformer) {
	captured := c.Take(g)
	if captured == nil {
		panic("capture was not tracked")
	}
	var hook Transformer = Transfer{Source: captured}
	if t != nil {
		hook = Chain{hook, t}
	}
	zero := captured.Creator().MakeVector(captured.Len())
	Attach(c.In, hook).Propagate(zero, g)
}
