// Package results collects the values produced by
// training and evaluation phases and fans them out to
// logs, files, and live viewers.
package results

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// Kind identifies the type of a Value.
type Kind int

const (
	Scalar Kind = iota
	Text
	Embedding
)

// String returns a lowercase name for the kind.
func (k Kind) String() string {
	switch k {
	case Scalar:
		return "scalar"
	case Text:
		return "text"
	case Embedding:
		return "embedding"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name.
func (k *Kind) UnmarshalText(text []byte) error {
	for _, x := range []Kind{Scalar, Text, Embedding} {
		if x.String() == string(text) {
			*k = x
			return nil
		}
	}
	return errors.Errorf("unknown kind: %s", text)
}

// A Value is a single named result.
//
// Which fields are set depends on Kind.
// An embedding stores one row per labeled item.
type Value struct {
	Kind    Kind        `json:"kind"`
	Scalar  float64     `json:"scalar,omitempty"`
	Lines   []string    `json:"lines,omitempty"`
	Vectors [][]float64 `json:"vectors,omitempty"`
	Labels  []string    `json:"labels,omitempty"`
}

// An Entry pairs a Value with its name.
type Entry struct {
	Name  string `json:"name"`
	Value Value  `json:"value"`
}

// A Record is an ordered set of values produced by one
// phase at one global step.
type Record struct {
	RunID   string    `json:"run_id,omitempty"`
	Phase   string    `json:"phase"`
	Step    int       `json:"step"`
	Time    time.Time `json:"time"`
	Entries []Entry   `json:"entries"`
}

// NewRecord creates an empty record for a phase.
func NewRecord(phase string) *Record {
	return &Record{Phase: phase}
}

// AddScalar appends a scalar entry.
func (r *Record) AddScalar(name string, x float64) {
	r.add(name, Value{Kind: Scalar, Scalar: x})
}

// AddText appends a text entry with one string per line.
func (r *Record) AddText(name string, lines []string) {
	r.add(name, Value{Kind: Text, Lines: lines})
}

// AddEmbedding appends an embedding entry.
//
// There must be exactly one label per vector.
func (r *Record) AddEmbedding(name string, vecs [][]float64, labels []string) {
	if len(vecs) != len(labels) {
		panic("embedding label count mismatch")
	}
	r.add(name, Value{Kind: Embedding, Vectors: vecs, Labels: labels})
}

// Get finds an entry by name.
func (r *Record) Get(name string) (Value, bool) {
	for _, e := range r.Entries {
		if e.Name == name {
			return e.Value, true
		}
	}
	return Value{}, false
}

// Scalar finds a scalar entry by name.
func (r *Record) Scalar(name string) (float64, bool) {
	v, ok := r.Get(name)
	if !ok || v.Kind != Scalar {
		return 0, false
	}
	return v.Scalar, true
}

// Key returns the phase-tagged key for an entry, such as
// "AE_train/loss".
func (r *Record) Key(name string) string {
	return r.Phase + "/" + name
}

func (r *Record) add(name string, v Value) {
	if _, ok := r.Get(name); ok {
		panic("duplicate entry: " + name)
	}
	r.Entries = append(r.Entries, Entry{Name: name, Value: v})
}
