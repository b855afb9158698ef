package arae

import (
	"fmt"
	"log"
	"time"

	"github.com/pkg/errors"
	"github.com/unixpickle/arae/results"
	"gonum.org/v1/gonum/stat"
)

// State is the state of a Supervisor.
type State int

const (
	Idle State = iota
	Training
	Evaluation
	Terminated
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Training:
		return "Training"
	case Evaluation:
		return "Evaluation"
	case Terminated:
		return "Terminated"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// EpochIterator is the name of the iterator whose passes
// define epochs.
const EpochIterator = "ae"

type periodic struct {
	Name       string
	Interval   int
	Action     func() (*results.Record, error)
	BestEffort bool
}

// A Supervisor sequences training.
//
// It owns the global, batch, and epoch step counters.
// The global step counts dispatched training phases, the
// batch step counts training iterations within the
// current epoch, and the epoch step counts completed
// passes over the autoencoder data.
//
// A Supervisor is not safe for concurrent use.
type Supervisor struct {
	Config    *Config
	Network   *Network
	Writer    *results.Writer
	Iterators map[string]Iterator
	Logger    *log.Logger

	state      State
	globalStep int
	batchStep  int
	epochStep  int
	lastSave   int
	epochStart int
	periodic   []*periodic
}

// NewSupervisor creates an idle Supervisor.
//
// The iterators are saved in checkpoints by name, and
// the iterator named EpochIterator must be present.
func NewSupervisor(cfg *Config, net *Network, w *results.Writer,
	iters map[string]Iterator, logger *log.Logger) *Supervisor {
	if _, ok := iters[EpochIterator]; !ok {
		panic("missing epoch iterator")
	}
	return &Supervisor{
		Config:    cfg,
		Network:   net,
		Writer:    w,
		Iterators: iters,
		Logger:    logger,
	}
}

// State returns the current state.
func (s *Supervisor) State() State {
	return s.state
}

// GlobalStep returns the number of dispatched training
// phases.
func (s *Supervisor) GlobalStep() int {
	return s.globalStep
}

// BatchStep returns the number of training iterations in
// the current epoch.
func (s *Supervisor) BatchStep() int {
	return s.batchStep
}

// EpochStep returns the number of completed epochs.
func (s *Supervisor) EpochStep() int {
	return s.epochStep
}

// TrainingContext runs f as one training iteration.
//
// However f exits, the batch step is incremented, and the
// epoch step is incremented if the epoch iterator crossed
// the end of a pass.
// If f succeeds, a checkpoint is saved when one is due.
// Afterwards, the Supervisor is Idle, or Terminated if f
// failed or training is over.
//
// Contexts may not be nested.
func (s *Supervisor) TrainingContext(f func() error) (err error) {
	if err := s.enter(Training); err != nil {
		return err
	}
	defer func() {
		s.incBatchStep()
		if s.Iterators[EpochIterator].TakeEndOfEpoch() {
			s.incEpochStep()
		}
		if r := recover(); r != nil {
			s.state = Terminated
			panic(r)
		}
		if err == nil && s.IsEndOfTraining() {
			err = s.Save()
		} else if err == nil && s.saveDue() {
			err = s.Save()
		}
		if err != nil || s.IsEndOfTraining() {
			s.state = Terminated
		} else {
			s.state = Idle
		}
	}()
	return f()
}

// EvaluationContext runs f with every module in
// evaluation mode.
// Modules are returned to training mode however f exits.
func (s *Supervisor) EvaluationContext(f func() error) (err error) {
	if err := s.enter(Evaluation); err != nil {
		return err
	}
	s.Network.SetModulesTrainMode(false)
	defer func() {
		s.Network.SetModulesTrainMode(true)
		if r := recover(); r != nil {
			s.state = Terminated
			panic(r)
		}
		if err != nil {
			s.state = Terminated
		} else {
			s.state = Idle
		}
	}()
	return f()
}

// IsEndOfTraining reports whether the epoch or global
// step budget has been used up.
func (s *Supervisor) IsEndOfTraining() bool {
	if s.Config.EpochTotal > 0 && s.epochStep >= s.Config.EpochTotal {
		return true
	}
	return s.Config.GlobalStepTotal > 0 && s.globalStep >= s.Config.GlobalStepTotal
}

// IsEvaluation reports whether an evaluation is due after
// the last training iteration.
func (s *Supervisor) IsEvaluation() bool {
	return s.Config.EvalInterval > 0 && s.batchStep%s.Config.EvalInterval == 0
}

// GANIterations returns the number of regularizer rounds
// to run per training iteration.
// It starts at one and grows by one for every epoch in
// the GAN schedule that has been reached.
func (s *Supervisor) GANIterations() int {
	res := 1
	for _, epoch := range s.Config.GANSchedule {
		if s.epochStep >= epoch {
			res++
		}
	}
	return res
}

// Dispatch runs a training phase from inside a training
// context.
//
// The global step is incremented once, the routine's
// record is stamped with the phase and step and written,
// and then any periodic actions that are due are run.
func (s *Supervisor) Dispatch(phase string, routine func() (*results.Record, error)) error {
	if s.state != Training {
		panic("dispatch outside of training context")
	}
	rec, err := routine()
	s.incGlobalStep()
	if err != nil {
		return errors.Wrap(err, phase)
	}
	if rec != nil {
		rec.Phase = phase
		if err := s.Record(rec); err != nil {
			return err
		}
	}
	return s.runPeriodic()
}

// Every registers an action to run whenever the global
// step reaches a multiple of interval.
//
// Errors from best-effort actions are logged and ignored.
// Other errors abort the dispatch that triggered them.
// A non-positive interval disables the action.
func (s *Supervisor) Every(name string, interval int, action func() (*results.Record, error),
	bestEffort bool) {
	s.periodic = append(s.periodic, &periodic{
		Name:       name,
		Interval:   interval,
		Action:     action,
		BestEffort: bestEffort,
	})
}

// Record stamps a record with the global step and the
// current time, then writes it.
func (s *Supervisor) Record(rec *results.Record) error {
	rec.Step = s.globalStep
	rec.Time = time.Now()
	return errors.Wrap(s.Writer.Add(rec), "record results")
}

func (s *Supervisor) runPeriodic() error {
	for _, p := range s.periodic {
		if p.Interval <= 0 || s.globalStep%p.Interval != 0 {
			continue
		}
		rec, err := p.Action()
		if err != nil {
			if p.BestEffort {
				s.Logger.Printf("[WARN] %s failed at step %d: %v", p.Name, s.globalStep, err)
				continue
			}
			return errors.Wrap(err, p.Name)
		}
		if rec != nil {
			if rec.Phase == "" {
				rec.Phase = p.Name
			}
			if err := s.Record(rec); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Supervisor) enter(state State) error {
	switch s.state {
	case Terminated:
		return ErrTerminated
	case Idle:
		s.state = state
		return nil
	default:
		panic("supervisor context entered from state " + s.state.String())
	}
}

func (s *Supervisor) saveDue() bool {
	return s.Config.SaveInterval > 0 && s.globalStep-s.lastSave >= s.Config.SaveInterval
}

func (s *Supervisor) incBatchStep() {
	s.batchStep++
}

func (s *Supervisor) incEpochStep() {
	s.epochStep++
	s.batchStep = 0

	losses := s.Writer.Log.Series(PhaseAETrain, "loss")
	if len(losses) > s.epochStart {
		s.Logger.Printf("[INFO] epoch %d done at step %d: mean %s loss %.4f", s.epochStep,
			s.globalStep, PhaseAETrain, stat.Mean(losses[s.epochStart:], nil))
	} else {
		s.Logger.Printf("[INFO] epoch %d done at step %d", s.epochStep, s.globalStep)
	}
	s.epochStart = len(losses)
}

func (s *Supervisor) incGlobalStep() {
	s.globalStep++
}
