package arae

import (
	"encoding/gob"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// CheckpointFile is the name of the checkpoint inside a
// run directory.
const CheckpointFile = "checkpoint.gob"

type checkpoint struct {
	Name string

	GlobalStep int
	BatchStep  int
	EpochStep  int

	Cursors     map[string]Cursor
	NoiseRadius float64

	// Params maps module names to one encoded vector per
	// parameter.
	Params map[string][][]byte

	// Optimizers maps optimizer names to transformer
	// state. Plain gradient descent has no entry.
	Optimizers map[string][]byte
}

// CheckpointPath returns the path where checkpoints are
// saved.
func (s *Supervisor) CheckpointPath() string {
	return filepath.Join(s.Config.RunDir(), CheckpointFile)
}

// Save writes a checkpoint of the counters, iterator
// positions, network, and optimizer state.
//
// The checkpoint is written to a temporary file which is
// then renamed, so an interrupted Save never corrupts the
// previous checkpoint.
func (s *Supervisor) Save() error {
	sw := StartStopwatch("save")
	cp := &checkpoint{
		Name:        s.Config.Name,
		GlobalStep:  s.globalStep,
		BatchStep:   s.batchStep,
		EpochStep:   s.epochStep,
		Cursors:     map[string]Cursor{},
		NoiseRadius: s.Network.Encoder.NoiseRadius,
		Params:      map[string][][]byte{},
		Optimizers:  map[string][]byte{},
	}
	for name, it := range s.Iterators {
		cp.Cursors[name] = it.Cursor()
	}
	for _, m := range s.Network.Modules() {
		var blobs [][]byte
		for _, p := range m.Parameters() {
			data, err := encodeVector(p.Vector)
			if err != nil {
				return errors.Wrapf(err, "save %s", m.Name())
			}
			blobs = append(blobs, data)
		}
		cp.Params[m.Name()] = blobs
	}
	for _, o := range s.Network.Optimizers() {
		state, err := o.MarshalState()
		if err != nil {
			return errors.Wrap(err, "save")
		}
		if state != nil {
			cp.Optimizers[o.Name] = state
		}
	}

	dir := s.Config.RunDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "save")
	}
	tmp, err := os.CreateTemp(dir, CheckpointFile+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "save")
	}
	defer os.Remove(tmp.Name())
	if err := gob.NewEncoder(tmp).Encode(cp); err != nil {
		tmp.Close()
		return errors.Wrap(err, "save")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "save")
	}
	if err := os.Rename(tmp.Name(), s.CheckpointPath()); err != nil {
		return errors.Wrap(err, "save")
	}
	s.lastSave = s.globalStep
	sw.Stop(s.Logger)
	return nil
}

// Restore loads the checkpoint written by Save.
//
// Counters, iterator positions, noise radius,
// parameters, and optimizer state are restored exactly.
// If there is no checkpoint, the returned error satisfies
// errors.Is(err, os.ErrNotExist).
func (s *Supervisor) Restore() error {
	f, err := os.Open(s.CheckpointPath())
	if err != nil {
		return errors.Wrap(err, "restore")
	}
	defer f.Close()
	var cp checkpoint
	if err := gob.NewDecoder(f).Decode(&cp); err != nil {
		return errors.Wrap(err, "restore")
	}

	for _, m := range s.Network.Modules() {
		blobs, ok := cp.Params[m.Name()]
		if !ok {
			return errors.Errorf("restore: missing module %s", m.Name())
		}
		params := m.Parameters()
		if len(blobs) != len(params) {
			return errors.Errorf("restore: %s has %d parameters but checkpoint has %d",
				m.Name(), len(params), len(blobs))
		}
		for i, p := range params {
			vec, err := decodeVector(p.Vector.Creator(), blobs[i])
			if err != nil {
				return errors.Wrapf(err, "restore %s", m.Name())
			}
			if vec.Len() != p.Vector.Len() {
				return errors.Errorf("restore: %s parameter %d has size %d but checkpoint has %d",
					m.Name(), i, p.Vector.Len(), vec.Len())
			}
			p.Vector.Set(vec)
		}
	}
	for _, o := range s.Network.Optimizers() {
		if err := o.UnmarshalState(cp.Optimizers[o.Name]); err != nil {
			return errors.Wrap(err, "restore")
		}
	}
	for name, it := range s.Iterators {
		cursor, ok := cp.Cursors[name]
		if !ok {
			return errors.Errorf("restore: missing iterator %s", name)
		}
		if err := it.Restore(cursor); err != nil {
			return errors.Wrap(err, "restore")
		}
	}

	s.globalStep = cp.GlobalStep
	s.batchStep = cp.BatchStep
	s.epochStep = cp.EpochStep
	s.lastSave = cp.GlobalStep
	s.epochStart = len(s.Writer.Log.Series(PhaseAETrain, "loss"))
	s.Network.Encoder.NoiseRadius = cp.NoiseRadius
	if s.IsEndOfTraining() {
		s.state = Terminated
	} else {
		s.state = Idle
	}
	return nil
}
