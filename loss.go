package arae

import (
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anydiff/anyseq"
	"github.com/unixpickle/anyvec"
	"gonum.org/v1/gonum/floats"
)

// A Position selects one output of a decoded sequence:
// the log-probability of Target at timestep Step of row
// Row.
type Position struct {
	Row    int
	Step   int
	Target int
}

// MaskTargets lists the positions of every non-padding
// target, row by row.
//
// The selection only depends on the targets, never on the
// outputs being scored.
func MaskTargets(targets [][]int) []Position {
	var res []Position
	for row, tgt := range targets {
		for step, id := range tgt {
			if id != PadID {
				res = append(res, Position{Row: row, Step: step, Target: id})
			}
		}
	}
	return res
}

// A located Position has been resolved to an offset in a
// packed timestep.
type located struct {
	Step   int
	Offset int
	Target int
}

// locate resolves positions against a sequence's present
// maps, skipping positions whose row is absent.
func locate(out []*anyseq.Batch, positions []Position) []located {
	var res []located
	for _, p := range positions {
		if p.Step >= len(out) {
			continue
		}
		batch := out[p.Step]
		if !batch.Present[p.Row] {
			continue
		}
		rowSize := batch.Packed.Len() / batch.NumPresent()
		var idx int
		for i := 0; i < p.Row; i++ {
			if batch.Present[i] {
				idx++
			}
		}
		res = append(res, located{
			Step:   p.Step,
			Offset: idx*rowSize + p.Target,
			Target: p.Target,
		})
	}
	return res
}

type maskedNLLRes struct {
	In      anyseq.Seq
	Out     anyvec.Vector
	Entries []located
}

// MaskedNLL computes the mean negative log-likelihood of
// the targets under a sequence of log-probabilities.
//
// Padding targets are ignored, as are targets past the
// end of a row's sequence.
// If no target is selected, the result is zero.
func MaskedNLL(seq anyseq.Seq, targets [][]int) anydiff.Res {
	out := seq.Output()
	entries := locate(out, MaskTargets(targets))
	return &maskedNLLRes{
		In:      seq,
		Out:     makeVector(seq.Creator(), []float64{meanNLL(out, entries)}),
		Entries: entries,
	}
}

func (m *maskedNLLRes) Output() anyvec.Vector {
	return m.Out
}

func (m *maskedNLLRes) Vars() anydiff.VarSet {
	return m.In.Vars()
}

func (m *maskedNLLRes) Propagate(u anyvec.Vector, g anydiff.Grad) {
	if len(m.Entries) == 0 {
		return
	}
	scale := -vectorData(u)[0] / float64(len(m.Entries))

	out := m.In.Output()
	upData := make([][]float64, len(out))
	for i, batch := range out {
		upData[i] = make([]float64, batch.Packed.Len())
	}
	for _, e := range m.Entries {
		upData[e.Step][e.Offset] += scale
	}
	upstream := make([]*anyseq.Batch, len(out))
	for i, batch := range out {
		upstream[i] = &anyseq.Batch{
			Packed:  makeVector(m.Out.Creator(), upData[i]),
			Present: batch.Present,
		}
	}
	m.In.Propagate(upstream, g)
}

// MaskedAccuracy computes the fraction of non-padding
// targets which are the most likely token in a sequence
// of log-probabilities.
func MaskedAccuracy(out []*anyseq.Batch, targets [][]int) float64 {
	entries := locate(out, MaskTargets(targets))
	if len(entries) == 0 {
		return 0
	}
	data := stepData(out)
	var correct int
	for _, e := range entries {
		batch := out[e.Step]
		rowSize := batch.Packed.Len() / batch.NumPresent()
		rowStart := e.Offset - e.Target
		if argmax(data[e.Step][rowStart:rowStart+rowSize]) == e.Target {
			correct++
		}
	}
	return float64(correct) / float64(len(entries))
}

// maskedNLLValue is MaskedNLL without the graph, for
// scoring decoder outputs which are not differentiable.
func maskedNLLValue(out []*anyseq.Batch, targets [][]int) float64 {
	return meanNLL(out, locate(out, MaskTargets(targets)))
}

func meanNLL(out []*anyseq.Batch, entries []located) float64 {
	if len(entries) == 0 {
		return 0
	}
	data := stepData(out)
	var sum float64
	for _, e := range entries {
		sum -= data[e.Step][e.Offset]
	}
	return sum / float64(len(entries))
}

func stepData(out []*anyseq.Batch) [][]float64 {
	res := make([][]float64, len(out))
	for i, batch := range out {
		res[i] = vectorData(batch.Packed)
	}
	return res
}

type cosineLossRes struct {
	In     anydiff.Res
	Target [][]float64
	Out    anyvec.Vector
}

// CosineLoss computes the mean of 1-cos(x, y) between the
// rows x of pred and the rows y of target.
//
// The target is treated as a constant.
// Rows where either norm is zero count as orthogonal and
// receive no gradient.
func CosineLoss(pred anydiff.Res, target anyvec.Vector, n int) anydiff.Res {
	predRows := rowMajor(pred.Output(), n)
	targetRows := rowMajor(target, n)
	var total float64
	for i, x := range predRows {
		total += 1 - cosine(x, targetRows[i])
	}
	return &cosineLossRes{
		In:     pred,
		Target: targetRows,
		Out:    makeVector(target.Creator(), []float64{total / float64(n)}),
	}
}

func (c *cosineLossRes) Output() anyvec.Vector {
	return c.Out
}

func (c *cosineLossRes) Vars() anydiff.VarSet {
	return c.In.Vars()
}

func (c *cosineLossRes) Propagate(u anyvec.Vector, g anydiff.Grad) {
	n := len(c.Target)
	scale := -vectorData(u)[0] / float64(n)
	var upstream []float64
	for i, x := range rowMajor(c.In.Output(), n) {
		y := c.Target[i]
		row := make([]float64, len(x))
		normX, normY := floats.Norm(x, 2), floats.Norm(y, 2)
		if normX != 0 && normY != 0 {
			// d/dx cos(x, y) = y/(|x||y|) - cos(x, y)*x/|x|^2
			cos := floats.Dot(x, y) / (normX * normY)
			floats.AddScaled(row, 1/(normX*normY), y)
			floats.AddScaled(row, -cos/(normX*normX), x)
			floats.Scale(scale, row)
		}
		upstream = append(upstream, row...)
	}
	c.In.Propagate(makeVector(u.Creator(), upstream), g)
}

// cosine computes the cosine similarity of two vectors,
// or 0 if either has a zero norm.
func cosine(x, y []float64) float64 {
	normX, normY := floats.Norm(x, 2), floats.Norm(y, 2)
	if normX == 0 || normY == 0 {
		return 0
	}
	return floats.Dot(x, y) / (normX * normY)
}
