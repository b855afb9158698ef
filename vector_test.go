package arae

import (
	"math"
	"testing"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anynet"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvec64"
)

func TestConcatRows(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	a := anydiff.NewVar(c.MakeVectorData([]float64{1, 2, 3, 4, 5, 6}))
	b := anydiff.NewVar(c.MakeVectorData([]float64{-1, -2}))
	joined := concatRows(a, b, 2)
	expected := []float64{1, 2, 3, -1, 4, 5, 6, -2}
	for i, x := range vectorData(joined.Output()) {
		if x != expected[i] {
			t.Fatalf("expected %v but got %v", expected, vectorData(joined.Output()))
		}
	}

	// A layer on the joined rows is the sum of layers on
	// the parts, with the weight columns split accordingly.
	layer := anynet.NewFC(c, 4, 3)
	layerA := anynet.NewFC(c, 3, 3)
	layerB := anynet.NewFC(c, 1, 3)
	weights := vectorData(layer.Weights.Vector)
	var weightsA, weightsB []float64
	for row := 0; row < 3; row++ {
		weightsA = append(weightsA, weights[row*4:row*4+3]...)
		weightsB = append(weightsB, weights[row*4+3])
	}
	layerA.Weights.Vector.Set(c.MakeVectorData(weightsA))
	layerA.Biases.Vector.Set(layer.Biases.Vector)
	layerB.Weights.Vector.Set(c.MakeVectorData(weightsB))
	layerB.Biases.Vector.Set(c.MakeVector(3))

	actual := layer.Apply(concatRows(a, b, 2), 2)
	split := anydiff.Add(layerA.Apply(a, 2), layerB.Apply(b, 2))
	diff := actual.Output().Copy()
	diff.Sub(split.Output())
	if anyvec.AbsMax(diff).(float64) > 1e-8 {
		t.Errorf("expected %v but got %v", split.Output().Data(), actual.Output().Data())
	}

	vars := anydiff.NewVarSet(a, b)
	gradientsEquivalent(t, computeGradient(actual, vars), computeGradient(split, vars))
}

func TestCosineLoss(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	predData := []float64{1, 2, -1, 0.5, 0.5, 3, 0, 0, 0}
	target := c.MakeVectorData([]float64{2, 1, 0, -1, 0.5, 2, 1, 1, 1})
	pred := anydiff.NewVar(c.MakeVectorData(predData))

	loss := CosineLoss(pred, target, 3)
	targetRows := rowMajor(target, 3)
	var expected float64
	for i, row := range rowMajor(pred.Vector, 3) {
		expected += 1 - cosine(row, targetRows[i])
	}
	expected /= 3
	if actual := scalarValue(loss); math.Abs(actual-expected) > 1e-8 {
		t.Errorf("expected loss %f but got %f", expected, actual)
	}

	grad := anydiff.NewGrad(pred)
	loss.Propagate(c.MakeVectorData([]float64{1}), grad)
	analytic := vectorData(grad[pred])

	const delta = 1e-5
	for i := 0; i < 6; i++ {
		shifted := func(d float64) float64 {
			data := append([]float64{}, predData...)
			data[i] += d
			return scalarValue(CosineLoss(anydiff.NewConst(c.MakeVectorData(data)),
				target, 3))
		}
		numeric := (shifted(delta) - shifted(-delta)) / (2 * delta)
		if math.Abs(numeric-analytic[i]) > 1e-6 {
			t.Errorf("component %d: expected gradient %f but got %f", i, numeric,
				analytic[i])
		}
	}
	for i := 6; i < 9; i++ {
		if analytic[i] != 0 {
			t.Errorf("zero row got gradient %f", analytic[i])
		}
	}
}
