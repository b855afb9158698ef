package gradhook

import (
	"io"
	"log"
	"math"

	"github.com/unixpickle/anyvec"
)

// ScaleTo rescales a gradient so that its norm matches
// Reference, typically a norm recorded during a different
// backward pass by a Recorder.
//
// If Reference or the gradient's norm is zero, the
// gradient is passed through unchanged and a warning is
// written to Logger.
// A nil Logger discards warnings.
type ScaleTo struct {
	Reference float64
	Logger    *log.Logger
}

// Transform rescales u in place.
func (s ScaleTo) Transform(u anyvec.Vector) anyvec.Vector {
	if s.Reference == 0 {
		s.logger().Printf("[WARN] gradhook: zero reference norm; gradient left unscaled")
		return u
	}
	norm := Norm(u)
	if norm == 0 {
		s.logger().Printf("[WARN] gradhook: zero gradient norm; gradient left unscaled")
		return u
	}
	u.Scale(u.Creator().MakeNumeric(s.Reference / norm))
	return u
}

func (s ScaleTo) logger() *log.Logger {
	if s.Logger == nil {
		return log.New(io.Discard, "", 0)
	}
	return s.Logger
}

// Flip multiplies a gradient by -|Weight|.
//
// Placed between a critic and the encoder that feeds it,
// a single backward pass trains the critic normally while
// pushing the encoder in the opposite direction.
type Flip struct {
	Weight float64
}

// Transform scales u in place.
func (f Flip) Transform(u anyvec.Vector) anyvec.Vector {
	u.Scale(u.Creator().MakeNumeric(-math.Abs(f.Weight)))
	return u
}

// Scale multiplies a gradient by Factor.
type Scale struct {
	Factor float64
}

// Transform scales u in place.
func (s Scale) Transform(u anyvec.Vector) anyvec.Vector {
	u.Scale(u.Creator().MakeNumeric(s.Factor))
	return u
}

// Transfer replaces a gradient entirely with Source.
//
// It is used to feed the gradient captured at the input
// of one graph into a second, disjoint graph.
// Source is copied, so the same Transfer may be used more
// than once.
type Transfer struct {
	Source anyvec.Vector
}

// Transform returns a copy of t.Source.
func (t Transfer) Transform(u anyvec.Vector) anyvec.Vector {
	if t.Source.Len() != u.Len() {
		panic("transfer gradient size mismatch")
	}
	return t.Source.Copy()
}

// A Recorder passes gradients through unchanged while
// remembering the norm of the last one it saw.
//
// The owner of a Recorder reads Norm after the backward
// pass and hands it to a ScaleTo explicitly.
type Recorder struct {
	Norm float64
}

// Transform records the norm of u and returns u.
func (r *Recorder) Transform(u anyvec.Vector) anyvec.Vector {
	r.Norm = Norm(u)
	return u
}
