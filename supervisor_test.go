package arae

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/unixpickle/arae/results"
)

func TestSupervisorCounters(t *testing.T) {
	cfg := testConfig(t)
	trainer := testTrainer(t, cfg, "a", "b", "a b", "b a", "a a")
	sv := trainer.Supervisor
	it := trainer.Data.AE

	// Five sentences in batches of two make three batches
	// per epoch.
	for i := 0; i < 7; i++ {
		err := sv.TrainingContext(func() error {
			if _, err := it.Next(); err != nil {
				return err
			}
			for j := 0; j < 2; j++ {
				err := sv.Dispatch("test", func() (*results.Record, error) {
					return nil, nil
				})
				if err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	if sv.GlobalStep() != 14 {
		t.Errorf("expected global step 14 but got %d", sv.GlobalStep())
	}
	if sv.EpochStep() != 2 {
		t.Errorf("expected epoch step 2 but got %d", sv.EpochStep())
	}
	if sv.BatchStep() != 1 {
		t.Errorf("expected batch step 1 but got %d", sv.BatchStep())
	}
	if sv.State() != Idle {
		t.Errorf("expected Idle but got %s", sv.State())
	}
}

func TestSupervisorDispatchError(t *testing.T) {
	cfg := testConfig(t)
	trainer := testTrainer(t, cfg, "a", "b")
	sv := trainer.Supervisor

	err := sv.TrainingContext(func() error {
		return sv.Dispatch(PhaseAETrain, func() (*results.Record, error) {
			return nil, ErrNonFinite
		})
	})
	if !errors.Is(err, ErrNonFinite) {
		t.Errorf("expected ErrNonFinite but got %v", err)
	}
	if sv.GlobalStep() != 1 || sv.BatchStep() != 1 {
		t.Errorf("unexpected counters: global %d batch %d", sv.GlobalStep(), sv.BatchStep())
	}
	if sv.State() != Terminated {
		t.Errorf("expected Terminated but got %s", sv.State())
	}
	if err := sv.EvaluationContext(func() error { return nil }); err != ErrTerminated {
		t.Errorf("expected ErrTerminated but got %v", err)
	}
}

func TestSupervisorPanic(t *testing.T) {
	cfg := testConfig(t)
	trainer := testTrainer(t, cfg, "a", "b")
	sv := trainer.Supervisor

	func() {
		defer func() {
			if recover() == nil {
				t.Error("expected panic")
			}
		}()
		sv.TrainingContext(func() error {
			panic("oops")
		})
	}()
	if sv.BatchStep() != 1 {
		t.Errorf("expected batch step 1 but got %d", sv.BatchStep())
	}
	if sv.State() != Terminated {
		t.Errorf("expected Terminated but got %s", sv.State())
	}
}

func TestSupervisorNesting(t *testing.T) {
	cfg := testConfig(t)
	trainer := testTrainer(t, cfg, "a", "b")
	sv := trainer.Supervisor

	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	sv.TrainingContext(func() error {
		return sv.EvaluationContext(func() error {
			return nil
		})
	})
}

func TestSupervisorEvaluationMode(t *testing.T) {
	cfg := testConfig(t)
	trainer := testTrainer(t, cfg, "a", "b")
	sv := trainer.Supervisor

	err := sv.EvaluationContext(func() error {
		for _, m := range trainer.Network.Modules() {
			if m.Training() {
				t.Errorf("module %s in training mode", m.Name())
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, m := range trainer.Network.Modules() {
		if !m.Training() {
			t.Errorf("module %s in evaluation mode", m.Name())
		}
	}
}

func TestSupervisorEvery(t *testing.T) {
	cfg := testConfig(t)
	trainer := testTrainer(t, cfg, "a", "b")
	sv := trainer.Supervisor

	var bestEffortCalls int
	sv.Every("flaky", 2, func() (*results.Record, error) {
		bestEffortCalls++
		return nil, errors.New("flaky failure")
	}, true)
	sv.Every("diag", 3, func() (*results.Record, error) {
		rec := results.NewRecord("")
		rec.AddScalar("x", 1)
		return rec, nil
	}, false)

	dispatch := func() error {
		return sv.TrainingContext(func() error {
			return sv.Dispatch("test", func() (*results.Record, error) {
				return nil, nil
			})
		})
	}
	for i := 0; i < 6; i++ {
		if err := dispatch(); err != nil {
			t.Fatal(err)
		}
	}
	if bestEffortCalls != 3 {
		t.Errorf("expected 3 calls but got %d", bestEffortCalls)
	}
	if n := len(sv.Writer.Log.Series("diag", "x")); n != 2 {
		t.Errorf("expected 2 diag records but got %d", n)
	}

	sv.Every("fatal", 7, func() (*results.Record, error) {
		return nil, errors.New("fatal failure")
	}, false)
	if err := dispatch(); err == nil {
		t.Error("expected error from periodic action")
	}
	if sv.State() != Terminated {
		t.Errorf("expected Terminated but got %s", sv.State())
	}
}

func TestSupervisorSchedule(t *testing.T) {
	cfg := testConfig(t)
	cfg.GANSchedule = []int{1, 3}
	cfg.EpochTotal = 0
	cfg.GlobalStepTotal = 4
	cfg.EvalInterval = 2
	trainer := testTrainer(t, cfg, "a", "b")
	sv := trainer.Supervisor

	if n := sv.GANIterations(); n != 1 {
		t.Errorf("expected 1 iteration but got %d", n)
	}
	sv.epochStep = 3
	if n := sv.GANIterations(); n != 3 {
		t.Errorf("expected 3 iterations but got %d", n)
	}

	sv.batchStep = 4
	if !sv.IsEvaluation() {
		t.Error("expected evaluation")
	}
	sv.batchStep = 3
	if sv.IsEvaluation() {
		t.Error("unexpected evaluation")
	}

	sv.globalStep = 3
	if sv.IsEndOfTraining() {
		t.Error("unexpected end of training")
	}
	sv.globalStep = 4
	if !sv.IsEndOfTraining() {
		t.Error("expected end of training")
	}
}
