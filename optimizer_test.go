package arae

import (
	"math"
	"reflect"
	"testing"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec/anyvec64"
)

func TestAdamFirstStep(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	critic := NewCritic(c, 2, nil)
	opt, err := NewOptimizer(OptimizerAdam, critic, 0.1, 0.9)
	if err != nil {
		t.Fatal(err)
	}
	params := critic.Parameters()
	weights := append([]float64{}, vectorData(params[0].Vector)...)
	biases := append([]float64{}, vectorData(params[1].Vector)...)

	// The bias-corrected first step is the sign of the
	// gradient.
	opt.Step(anydiff.Grad{params[0]: c.MakeVectorData([]float64{3, -0.5})})
	actual := vectorData(params[0].Vector)
	if math.Abs(actual[0]-(weights[0]-0.1)) > 1e-6 ||
		math.Abs(actual[1]-(weights[1]+0.1)) > 1e-6 {
		t.Errorf("expected %v to step by -0.1*sign(g) but got %v", weights, actual)
	}
	if actual := vectorData(params[1].Vector); !reflect.DeepEqual(actual, biases) {
		t.Errorf("bias changed without a gradient")
	}
}

func TestOptimizerState(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	for _, kind := range []string{OptimizerAdam, OptimizerRMSProp} {
		t.Run(kind, func(t *testing.T) {
			critic := NewCritic(c, 3, []int{2})
			opt, err := NewOptimizer(kind, critic, 0.01, 0.5)
			if err != nil {
				t.Fatal(err)
			}
			params := critic.Parameters()
			for i := 0; i < 3; i++ {
				g := anydiff.Grad{}
				for j, p := range params {
					data := make([]float64, p.Vector.Len())
					for k := range data {
						data[k] = float64(i+j+k) - 2
					}
					g[p] = c.MakeVectorData(data)
				}
				opt.Step(g)
			}

			state, err := opt.MarshalState()
			if err != nil {
				t.Fatal(err)
			}
			restored, _ := NewOptimizer(kind, critic, 0.01, 0.5)
			if err := restored.UnmarshalState(state); err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(restored.Transformer, opt.Transformer) {
				t.Error("restored state differs")
			}

			fresh, _ := NewOptimizer(kind, critic, 0.01, 0.5)
			if err := fresh.UnmarshalState(nil); err == nil {
				t.Error("expected error for missing state")
			}
		})
	}

	critic := NewCritic(c, 3, nil)
	sgd, _ := NewOptimizer(OptimizerSGD, critic, 0.01, 0.5)
	if state, err := sgd.MarshalState(); err != nil || state != nil {
		t.Errorf("unexpected SGD state %v (%v)", state, err)
	}
	if err := sgd.UnmarshalState(nil); err != nil {
		t.Error(err)
	}

	adam, _ := NewOptimizer(OptimizerAdam, critic, 0.01, 0.5)
	adam.Step(anydiff.Grad{})
	state, err := adam.MarshalState()
	if err != nil {
		t.Fatal(err)
	}
	rmsprop, _ := NewOptimizer(OptimizerRMSProp, critic, 0.01, 0.5)
	if err := rmsprop.UnmarshalState(state); err == nil {
		t.Error("expected error for mismatched state")
	}
}
