package arae

import (
	"bytes"
	"encoding"
	"encoding/gob"
	"math"

	"github.com/pkg/errors"
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anynet/anysgd"
	"github.com/unixpickle/anyvec/anyvec64"
)

// An Optimizer updates the parameters of one module.
//
// Gradients are optionally preconditioned by an anysgd
// Transformer (e.g. Adam) before a plain gradient descent
// step with the given rate.
//
// A Transformer with internal state must implement
// encoding.BinaryMarshaler and encoding.BinaryUnmarshaler
// so that the state survives checkpoints.
type Optimizer struct {
	Name        string
	Params      []*anydiff.Var
	Rate        float64
	Transformer anysgd.Transformer
}

// NewOptimizer creates an Optimizer for the parameters of
// a module.
// The kind is one of OptimizerSGD, OptimizerAdam, or
// OptimizerRMSProp.
func NewOptimizer(kind string, m TrainableModule, rate, beta1 float64) (*Optimizer,
	error) {
	o := &Optimizer{Name: m.Name(), Params: m.Parameters(), Rate: rate}
	switch kind {
	case OptimizerSGD:
	case OptimizerAdam:
		o.Transformer = &Adam{
			Params:     o.Params,
			DecayRate1: beta1,
			DecayRate2: 0.999,
			Damping:    1e-8,
		}
	case OptimizerRMSProp:
		o.Transformer = &RMSProp{
			Params:    o.Params,
			DecayRate: 0.9,
			Damping:   1e-8,
		}
	default:
		return nil, &ConfigError{Field: "optimizer", Value: kind, Reason: "unknown optimizer"}
	}
	return o, nil
}

// Step applies one update using the gradients in g.
//
// Parameters without a gradient in g are treated as
// having a zero gradient, so the Transformer always sees
// the same set of variables.
// The gradient g itself is not modified.
func (o *Optimizer) Step(g anydiff.Grad) {
	sub := anydiff.Grad{}
	for _, p := range o.Params {
		if v, ok := g[p]; ok {
			sub[p] = v.Copy()
		} else {
			sub[p] = p.Vector.Creator().MakeVector(p.Vector.Len())
		}
	}
	if o.Transformer != nil {
		sub = o.Transformer.Transform(sub)
	}
	for _, p := range o.Params {
		step := sub[p].Copy()
		step.Scale(step.Creator().MakeNumeric(-o.Rate))
		p.Vector.Add(step)
	}
}

// MarshalState encodes the Transformer's state.
// It returns nil for plain gradient descent.
func (o *Optimizer) MarshalState() ([]byte, error) {
	if o.Transformer == nil {
		return nil, nil
	}
	m, ok := o.Transformer.(encoding.BinaryMarshaler)
	if !ok {
		return nil, errors.Errorf("marshal %s optimizer: cannot encode %T", o.Name,
			o.Transformer)
	}
	data, err := m.MarshalBinary()
	if err != nil {
		return nil, errors.Wrapf(err, "marshal %s optimizer", o.Name)
	}
	return data, nil
}

// UnmarshalState restores state from MarshalState.
//
// Missing state is an error unless the optimizer is plain
// gradient descent.
func (o *Optimizer) UnmarshalState(data []byte) error {
	if o.Transformer == nil {
		if data != nil {
			return errors.Errorf("unmarshal %s optimizer: unexpected state", o.Name)
		}
		return nil
	}
	if data == nil {
		return errors.Errorf("unmarshal %s optimizer: missing state", o.Name)
	}
	u, ok := o.Transformer.(encoding.BinaryUnmarshaler)
	if !ok {
		return errors.Errorf("unmarshal %s optimizer: cannot decode %T", o.Name,
			o.Transformer)
	}
	return errors.Wrapf(u.UnmarshalBinary(data), "unmarshal %s optimizer", o.Name)
}

// Adam is the bias-corrected Adam update rule.
//
// Moment estimates are kept per parameter, in the order of
// Params, so they can be checkpointed.
type Adam struct {
	Params []*anydiff.Var

	DecayRate1 float64
	DecayRate2 float64
	Damping    float64

	steps  int
	first  [][]float64
	second [][]float64
}

// Transform replaces each gradient in g with its Adam
// step direction.
func (a *Adam) Transform(g anydiff.Grad) anydiff.Grad {
	if a.first == nil {
		a.first = zeroMoments(a.Params)
		a.second = zeroMoments(a.Params)
	}
	a.steps++
	corr1 := 1 - math.Pow(a.DecayRate1, float64(a.steps))
	corr2 := 1 - math.Pow(a.DecayRate2, float64(a.steps))
	for i, p := range a.Params {
		grad, ok := g[p]
		if !ok {
			continue
		}
		first, second := a.first[i], a.second[i]
		data := vectorData(grad)
		step := make([]float64, len(data))
		for j, x := range data {
			first[j] = a.DecayRate1*first[j] + (1-a.DecayRate1)*x
			second[j] = a.DecayRate2*second[j] + (1-a.DecayRate2)*x*x
			step[j] = (first[j] / corr1) / (math.Sqrt(second[j]/corr2) + a.Damping)
		}
		grad.Set(makeVector(grad.Creator(), step))
	}
	return g
}

// MarshalBinary encodes the step count and moments.
func (a *Adam) MarshalBinary() ([]byte, error) {
	return marshalMoments(a.steps, a.first, a.second)
}

// UnmarshalBinary decodes the output of MarshalBinary.
func (a *Adam) UnmarshalBinary(data []byte) error {
	steps, moments, err := unmarshalMoments(data, a.Params, 2)
	if err != nil {
		return errors.Wrap(err, "unmarshal adam")
	}
	a.steps = steps
	if moments == nil {
		a.first, a.second = nil, nil
	} else {
		a.first, a.second = moments[0], moments[1]
	}
	return nil
}

// RMSProp divides gradients by a running average of their
// magnitudes.
type RMSProp struct {
	Params []*anydiff.Var

	DecayRate float64
	Damping   float64

	steps int
	avg   [][]float64
}

// Transform replaces each gradient in g with its RMSProp
// step direction.
func (r *RMSProp) Transform(g anydiff.Grad) anydiff.Grad {
	if r.avg == nil {
		r.avg = zeroMoments(r.Params)
	}
	r.steps++
	for i, p := range r.Params {
		grad, ok := g[p]
		if !ok {
			continue
		}
		avg := r.avg[i]
		data := vectorData(grad)
		step := make([]float64, len(data))
		for j, x := range data {
			if r.steps == 1 {
				avg[j] = x * x
			} else {
				avg[j] = r.DecayRate*avg[j] + (1-r.DecayRate)*x*x
			}
			step[j] = x / (math.Sqrt(avg[j]) + r.Damping)
		}
		grad.Set(makeVector(grad.Creator(), step))
	}
	return g
}

// MarshalBinary encodes the running average.
func (r *RMSProp) MarshalBinary() ([]byte, error) {
	return marshalMoments(r.steps, r.avg)
}

// UnmarshalBinary decodes the output of MarshalBinary.
func (r *RMSProp) UnmarshalBinary(data []byte) error {
	steps, moments, err := unmarshalMoments(data, r.Params, 1)
	if err != nil {
		return errors.Wrap(err, "unmarshal rmsprop")
	}
	r.steps = steps
	if moments == nil {
		r.avg = nil
	} else {
		r.avg = moments[0]
	}
	return nil
}

type momentState struct {
	Steps   int
	Moments [][]byte
}

func zeroMoments(params []*anydiff.Var) [][]float64 {
	res := make([][]float64, len(params))
	for i, p := range params {
		res[i] = make([]float64, p.Vector.Len())
	}
	return res
}

func marshalMoments(steps int, moments ...[][]float64) ([]byte, error) {
	state := momentState{Steps: steps}
	for _, m := range moments {
		for _, vec := range m {
			data, err := encodeVector(makeVector(anyvec64.DefaultCreator{}, vec))
			if err != nil {
				return nil, err
			}
			state.Moments = append(state.Moments, data)
		}
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&state); err != nil {
		return nil, errors.Wrap(err, "marshal moments")
	}
	return buf.Bytes(), nil
}

// unmarshalMoments decodes count moment lists for params.
// The lists are nil if no step had been taken.
func unmarshalMoments(data []byte, params []*anydiff.Var,
	count int) (int, [][][]float64, error) {
	var state momentState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&state); err != nil {
		return 0, nil, err
	}
	if len(state.Moments) == 0 {
		return state.Steps, nil, nil
	}
	if len(state.Moments) != count*len(params) {
		return 0, nil, errors.Errorf("expected %d moments but got %d",
			count*len(params), len(state.Moments))
	}
	res := make([][][]float64, count)
	for i := range res {
		res[i] = make([][]float64, len(params))
		for j, p := range params {
			vec, err := decodeVector(anyvec64.DefaultCreator{}, state.Moments[i*len(params)+j])
			if err != nil {
				return 0, nil, err
			}
			if vec.Len() != p.Vector.Len() {
				return 0, nil, errors.Errorf("moment %d has size %d but parameter has %d",
					j, vec.Len(), p.Vector.Len())
			}
			res[i][j] = append([]float64{}, vectorData(vec)...)
		}
	}
	return state.Steps, res, nil
}
