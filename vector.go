package arae

import (
	"fmt"
	"math"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anydiff/anyseq"
	"github.com/unixpickle/anyvec"
)

// vectorData reads a vector as float64s.
func vectorData(v anyvec.Vector) []float64 {
	switch data := v.Data().(type) {
	case []float64:
		return data
	case []float32:
		res := make([]float64, len(data))
		for i, x := range data {
			res[i] = float64(x)
		}
		return res
	default:
		panic(fmt.Sprintf("unsupported numeric list: %T", data))
	}
}

func makeVector(c anyvec.Creator, data []float64) anyvec.Vector {
	return c.MakeVectorData(c.MakeNumericList(data))
}

// scalarValue reads the single component of a loss.
func scalarValue(r anydiff.Res) float64 {
	return vectorData(r.Output())[0]
}

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

// oneHot creates a packed batch of one-hot rows.
func oneHot(c anyvec.Creator, ids []int, size int) anyvec.Vector {
	data := make([]float64, len(ids)*size)
	for i, id := range ids {
		data[i*size+id] = 1
	}
	return makeVector(c, data)
}

// oneHotSeq creates a sequence of one-hot vectors for the
// first lengths[i] tokens of each row.
// If lengths is nil, every row is used in full.
func oneHotSeq(c anyvec.Creator, rows [][]int, lengths []int, size int) anyseq.Seq {
	seqs := make([][]anyvec.Vector, len(rows))
	for i, row := range rows {
		n := len(row)
		if lengths != nil {
			n = lengths[i]
		}
		for _, id := range row[:n] {
			seqs[i] = append(seqs[i], oneHot(c, []int{id}, size))
		}
	}
	return anyseq.ConstSeqList(c, seqs)
}

// meanRes averages the components of r.
func meanRes(r anydiff.Res) anydiff.Res {
	c := r.Output().Creator()
	return anydiff.Scale(anydiff.Sum(r), c.MakeNumeric(1/float64(r.Output().Len())))
}

// rowMajor splits a packed vector into rows.
func rowMajor(v anyvec.Vector, rows int) [][]float64 {
	data := vectorData(v)
	cols := len(data) / rows
	res := make([][]float64, rows)
	for i := range res {
		res[i] = append([]float64{}, data[i*cols:(i+1)*cols]...)
	}
	return res
}

func argmax(v []float64) int {
	best := 0
	for i, x := range v {
		if x > v[best] {
			best = i
		}
	}
	return best
}

type concatRowsRes struct {
	A   anydiff.Res
	B   anydiff.Res
	N   int
	Out anyvec.Vector
	V   anydiff.VarSet
}

// concatRows joins the rows of two packed batches of n
// rows each, so that row i of the result is row i of a
// followed by row i of b.
func concatRows(a, b anydiff.Res, n int) anydiff.Res {
	rowsA, rowsB := rowMajor(a.Output(), n), rowMajor(b.Output(), n)
	var data []float64
	for i := range rowsA {
		data = append(data, rowsA[i]...)
		data = append(data, rowsB[i]...)
	}
	return &concatRowsRes{
		A:   a,
		B:   b,
		N:   n,
		Out: makeVector(a.Output().Creator(), data),
		V:   anydiff.MergeVarSets(a.Vars(), b.Vars()),
	}
}

func (c *concatRowsRes) Output() anyvec.Vector {
	return c.Out
}

func (c *concatRowsRes) Vars() anydiff.VarSet {
	return c.V
}

func (c *concatRowsRes) Propagate(u anyvec.Vector, g anydiff.Grad) {
	colsA := c.A.Output().Len() / c.N
	var upA, upB []float64
	for _, row := range rowMajor(u, c.N) {
		upA = append(upA, row[:colsA]...)
		upB = append(upB, row[colsA:]...)
	}
	if g.Intersects(c.A.Vars()) {
		c.A.Propagate(makeVector(u.Creator(), upA), g)
	}
	if g.Intersects(c.B.Vars()) {
		c.B.Propagate(makeVector(u.Creator(), upB), g)
	}
}
