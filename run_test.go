package arae

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/unixpickle/anyvec/anyvec64"
)

func TestNewRun(t *testing.T) {
	cfg := testConfig(t)
	cfg.DataPath = filepath.Join(t.TempDir(), "train.txt")
	data := "the cat sat\nthe dog sat\na very long sentence that is dropped by max len\n"
	if err := os.WriteFile(cfg.DataPath, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	cfg.MaxLen = 4
	cfg.EpochTotal = 1
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}

	run, err := NewRun(anyvec64.DefaultCreator{}, cfg, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := uuid.Parse(run.RunID); err != nil {
		t.Errorf("bad run ID %q: %v", run.RunID, err)
	}
	if run.Writer.RunID != run.RunID {
		t.Errorf("writer has run ID %q", run.Writer.RunID)
	}
	for _, name := range []string{EpochIterator, GANIterator, EvalIterator} {
		if _, ok := run.Supervisor.Iterators[name]; !ok {
			t.Errorf("missing iterator %s", name)
		}
	}
	if n := len(run.Trainer.Data.HeldOut); n != 2 {
		t.Errorf("expected 2 held-out sentences but got %d", n)
	}
	if run.Trainer.Toolkit != nil {
		t.Error("unexpected n-gram toolkit")
	}

	if err := run.Trainer.Run(make(chan struct{})); err != nil {
		t.Fatal(err)
	}
	if run.Supervisor.State() != Terminated {
		t.Errorf("expected Terminated but got %s", run.Supervisor.State())
	}
	if _, err := os.Stat(run.Supervisor.CheckpointPath()); err != nil {
		t.Errorf("checkpoint not saved: %v", err)
	}
}

func TestNewRunEmpty(t *testing.T) {
	cfg := testConfig(t)
	cfg.DataPath = filepath.Join(t.TempDir(), "train.txt")
	if err := os.WriteFile(cfg.DataPath, []byte("a b c d e f g\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg.MaxLen = 3
	_, err := NewRun(anyvec64.DefaultCreator{}, cfg, log.New(io.Discard, "", 0))
	if !errors.Is(err, ErrEmptyDataset) {
		t.Errorf("expected ErrEmptyDataset but got %v", err)
	}
}

func TestNewRunAnswers(t *testing.T) {
	cfg := testConfig(t)
	cfg.DataPath = filepath.Join(t.TempDir(), "train.txt")
	data := "who sat\tthe cat\nwho ran\tthe dog\nwhat sat\ta cat\n"
	if err := os.WriteFile(cfg.DataPath, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	cfg.AnswerCodeSize = 4
	cfg.EpochTotal = 1
	cfg.EvalInterval = 1

	run, err := NewRun(anyvec64.DefaultCreator{}, cfg, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatal(err)
	}
	if run.Network.AnswerEncoder == nil || run.Network.AnswerCritic == nil {
		t.Fatal("missing answer modules")
	}
	if n := len(run.Trainer.Data.FixedAnswers); n != cfg.EvalSize {
		t.Errorf("expected %d fixed answers but got %d", cfg.EvalSize, n)
	}
	if err := run.Trainer.Run(make(chan struct{})); err != nil {
		t.Fatal(err)
	}
	if len(run.Writer.Log.Series(PhaseAnswerCriticTrain, "loss")) == 0 {
		t.Error("answer critic was never trained")
	}
	if len(run.Writer.Log.Series(PhaseAEEval+"/"+ModeTeacherForcing, "ans_cos")) == 0 {
		t.Error("no answer similarity in evaluation")
	}

	if err := os.WriteFile(cfg.DataPath, []byte("who sat\nwho ran\n"), 0644); err != nil {
		t.Fatal(err)
	}
	_, err = NewRun(anyvec64.DefaultCreator{}, cfg, log.New(io.Discard, "", 0))
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Field != "answer_code_size" {
		t.Errorf("expected answer_code_size error but got %v", err)
	}
}
