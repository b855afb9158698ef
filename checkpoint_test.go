package arae

import (
	"encoding/gob"
	"os"
	"reflect"
	"testing"

	"github.com/pkg/errors"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvec32"
	"github.com/unixpickle/anyvec/anyvec64"
)

func TestCheckpoint(t *testing.T) {
	cfg := testConfig(t)
	sents := []string{"a b", "b a", "a", "b b a", "a a b"}
	trainer := testTrainer(t, cfg, sents...)
	sv := trainer.Supervisor
	for i := 0; i < 4; i++ {
		if err := trainer.Iterate(); err != nil {
			t.Fatal(err)
		}
	}
	trainer.Network.Encoder.NoiseRadius = 0.125
	if err := sv.Save(); err != nil {
		t.Fatal(err)
	}

	restored := testTrainer(t, cfg, sents...)
	rsv := restored.Supervisor
	if err := rsv.Restore(); err != nil {
		t.Fatal(err)
	}
	if rsv.GlobalStep() != sv.GlobalStep() || rsv.BatchStep() != sv.BatchStep() ||
		rsv.EpochStep() != sv.EpochStep() {
		t.Errorf("counters: expected %d/%d/%d but got %d/%d/%d", sv.GlobalStep(),
			sv.BatchStep(), sv.EpochStep(), rsv.GlobalStep(), rsv.BatchStep(),
			rsv.EpochStep())
	}
	if rsv.State() != Idle {
		t.Errorf("expected Idle but got %s", rsv.State())
	}
	if r := restored.Network.Encoder.NoiseRadius; r != 0.125 {
		t.Errorf("expected noise radius 0.125 but got %f", r)
	}

	modules := trainer.Network.Modules()
	for i, m := range restored.Network.Modules() {
		expected := modules[i].Parameters()
		for j, p := range m.Parameters() {
			if !reflect.DeepEqual(vectorData(p.Vector), vectorData(expected[j].Vector)) {
				t.Errorf("module %s: parameter %d differs", m.Name(), j)
			}
		}
	}

	for name, it := range sv.Iterators {
		rit := rsv.Iterators[name]
		for i := 0; i < 5; i++ {
			expected, err := it.Next()
			if err != nil {
				t.Fatal(err)
			}
			actual, err := rit.Next()
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(actual, expected) {
				t.Errorf("iterator %s batch %d: expected %v but got %v", name, i,
					expected.Tgt, actual.Tgt)
			}
		}
	}
}

func TestCheckpointOptimizer(t *testing.T) {
	cfg := testConfig(t)
	sents := []string{"a b", "b a", "a"}
	trainer := testTrainer(t, cfg, sents...)
	b := NewBatch([][]int{{4, 5}, {5}}, nil)
	if _, err := trainer.TrainAutoencoder(b); err != nil {
		t.Fatal(err)
	}
	if err := trainer.Supervisor.Save(); err != nil {
		t.Fatal(err)
	}

	restored := testTrainer(t, cfg, sents...)
	if err := restored.Supervisor.Restore(); err != nil {
		t.Fatal(err)
	}

	// With the Adam moments restored, the next step is the
	// same on both copies.
	if _, err := trainer.TrainAutoencoder(b); err != nil {
		t.Fatal(err)
	}
	if _, err := restored.TrainAutoencoder(b); err != nil {
		t.Fatal(err)
	}
	modules := trainer.Network.Modules()
	for i, m := range restored.Network.Modules() {
		expected := modules[i].Parameters()
		for j, p := range m.Parameters() {
			diff := p.Vector.Copy()
			diff.Sub(expected[j].Vector)
			if anyvec.AbsMax(diff).(float64) > 1e-10 {
				t.Errorf("module %s: parameter %d differs after resumed step", m.Name(), j)
			}
		}
	}

	// A checkpoint without optimizer state is rejected.
	cp := readCheckpoint(t, restored.Supervisor.CheckpointPath())
	delete(cp.Optimizers, restored.Network.EncoderOpt.Name)
	writeCheckpoint(t, restored.Supervisor.CheckpointPath(), cp)
	if err := restored.Supervisor.Restore(); err == nil {
		t.Error("expected error for missing optimizer state")
	}
}

func TestCheckpointEpochWindow(t *testing.T) {
	cfg := testConfig(t)
	trainer := testTrainer(t, cfg, "a b", "b a", "a", "b b a", "a a b")
	sv := trainer.Supervisor
	for i := 0; i < 4; i++ {
		if err := trainer.Iterate(); err != nil {
			t.Fatal(err)
		}
	}
	if err := sv.Save(); err != nil {
		t.Fatal(err)
	}
	if err := sv.Restore(); err != nil {
		t.Fatal(err)
	}
	if n := len(sv.Writer.Log.Series(PhaseAETrain, "loss")); sv.epochStart != n {
		t.Errorf("expected epoch window to start at %d but got %d", n, sv.epochStart)
	}
}

func readCheckpoint(t *testing.T, path string) *checkpoint {
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	var cp checkpoint
	if err := gob.NewDecoder(f).Decode(&cp); err != nil {
		t.Fatal(err)
	}
	return &cp
}

func writeCheckpoint(t *testing.T, path string, cp *checkpoint) {
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := gob.NewEncoder(f).Encode(cp); err != nil {
		t.Fatal(err)
	}
}

func TestCheckpointMissing(t *testing.T) {
	trainer := testTrainer(t, testConfig(t), "a")
	err := trainer.Supervisor.Restore()
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected ErrNotExist but got %v", err)
	}
}

func TestVectorCodec(t *testing.T) {
	data := []float64{1, -2.5, 3e-3, 0}
	c64 := anyvec64.DefaultCreator{}
	c32 := anyvec32.DefaultCreator{}

	encoded, err := encodeVector(c64.MakeVectorData(data))
	if err != nil {
		t.Fatal(err)
	}
	if encoded[0] != codecFloat64 {
		t.Errorf("unexpected precision %d", encoded[0])
	}
	decoded, err := decodeVector(c64, encoded)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(vectorData(decoded), data) {
		t.Errorf("expected %v but got %v", data, vectorData(decoded))
	}

	encoded, err = encodeVector(c32.MakeVectorData(c32.MakeNumericList(data)))
	if err != nil {
		t.Fatal(err)
	}
	decoded, err = decodeVector(c64, encoded)
	if err != nil {
		t.Fatal(err)
	}
	for i, x := range vectorData(decoded) {
		if float32(x) != float32(data[i]) {
			t.Errorf("component %d: expected %f but got %f", i, data[i], x)
		}
	}

	if _, err := decodeVector(c64, []byte{17, 0}); err == nil {
		t.Error("expected error for unknown precision")
	}
}
