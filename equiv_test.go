package arae

import (
	"math/rand"
	"reflect"
	"testing"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anydiff/anyseq"
	"github.com/unixpickle/anyvec"
)

// testSeqsLen generates sequences of the given lengths
// whose timesteps are packed variables.
//
// The variables are returned in timestep order so that
// tests can build their own graphs on the same inputs.
func testSeqsLen(c anyvec.Creator, inSize int, lengths ...int) ([]*anyseq.ResBatch,
	anyseq.Seq) {
	var seqs [][]anyvec.Vector
	for _, length := range lengths {
		var seq []anyvec.Vector
		for j := 0; j < length; j++ {
			vec := c.MakeVector(inSize)
			anyvec.Rand(vec, anyvec.Normal, nil)
			seq = append(seq, vec)
		}
		seqs = append(seqs, seq)
	}

	joined := anyseq.ConstSeqList(c, seqs)

	resBatches := make([]*anyseq.ResBatch, len(joined.Output()))
	for i, x := range joined.Output() {
		resBatches[i] = &anyseq.ResBatch{
			Packed:  anydiff.NewVar(x.Packed),
			Present: x.Present,
		}
	}

	return resBatches, anyseq.ResSeq(c, resBatches)
}

// testEquivalentRes ensures that two ways of producing a
// vector are equivalent in their variables, outputs, and
// gradients.
func testEquivalentRes(t *testing.T, actual, expected func() anydiff.Res) {
	t.Run("Vars", func(t *testing.T) {
		vars1 := actual().Vars()
		vars2 := expected().Vars()
		if len(vars1) != len(vars2) {
			t.Error("variable mismatch")
		} else {
			for x := range vars1 {
				if !vars2.Has(x) {
					t.Error("variable mismatch")
				}
			}
		}
	})
	t.Run("Out", func(t *testing.T) {
		v1 := actual().Output().Copy()
		v2 := expected().Output()
		if v1.Len() != v2.Len() {
			t.Fatalf("output length: expected %d got %d", v2.Len(), v1.Len())
		}
		v1.Sub(v2)
		if anyvec.AbsMax(v1).(float64) > 1e-4 {
			t.Errorf("output mismatch: expected %v got %v", v2.Data(), actual().Output().Data())
		}
	})
	t.Run("Grad", func(t *testing.T) {
		t.Run("AllVars", func(t *testing.T) {
			actGrad := computeGradient(actual(), nil)
			expGrad := computeGradient(expected(), nil)
			gradientsEquivalent(t, actGrad, expGrad)
		})
		t.Run("SingleVar", func(t *testing.T) {
			for v := range actual().Vars() {
				vs := anydiff.NewVarSet(v)
				actGrad := computeGradient(actual(), vs)
				expGrad := computeGradient(expected(), vs)
				gradientsEquivalent(t, actGrad, expGrad)
			}
		})
	})
}

func computeGradient(r anydiff.Res, vars anydiff.VarSet) anydiff.Grad {
	if vars == nil {
		vars = r.Vars()
	}

	grad := anydiff.NewGrad(vars.Slice()...)

	upstreamGen := rand.New(rand.NewSource(1337))
	data := make([]float64, r.Output().Len())
	for i := range data {
		data[i] = upstreamGen.NormFloat64()
	}
	r.Propagate(r.Output().Creator().MakeVectorData(data), grad)
	return grad
}

func gradientsEquivalent(t *testing.T, actGrad, expGrad anydiff.Grad) {
	if !reflect.DeepEqual(len(actGrad), len(expGrad)) {
		t.Error("gradient size mismatch")
	}
	for variable, vec := range actGrad {
		expVec := expGrad[variable]
		if expVec == nil {
			t.Error("excess variable")
			continue
		}
		diff := expVec.Copy()
		diff.Sub(vec)
		maxDiff := anyvec.AbsMax(diff).(float64)
		if maxDiff > 1e-4 {
			t.Errorf("gradient mismatch: expected %v got %v", expVec.Data(),
				vec.Data())
			return
		}
	}
}
