package arae

import (
	"github.com/pkg/errors"
	"github.com/unixpickle/arae/results"
)

// A Regularizer shapes the distribution of codes.
//
// Train runs the regularizer's phases for one training
// iteration, dispatching each through the Supervisor.
type Regularizer interface {
	Name() string
	Train(t *Trainer, sv *Supervisor) error
}

// NewRegularizer creates a Regularizer by name.
func NewRegularizer(name string) (Regularizer, error) {
	switch name {
	case RegularizerWGAN:
		return WGAN{}, nil
	case RegularizerVAE:
		return CodeVAE{}, nil
	default:
		return nil, &ConfigError{Field: "regularizer", Value: name,
			Reason: "unknown regularizer"}
	}
}

// WGAN regularizes codes with a Wasserstein GAN.
//
// Each round trains the critic for NIterCritic batches
// and then the generator NIterGen times.
type WGAN struct{}

// Name returns RegularizerWGAN.
func (w WGAN) Name() string {
	return RegularizerWGAN
}

// Train runs GANIterations rounds.
func (w WGAN) Train(t *Trainer, sv *Supervisor) error {
	for round := 0; round < sv.GANIterations(); round++ {
		for i := 0; i < t.Config.NIterCritic; i++ {
			batch, err := t.Data.GAN.Next()
			if err != nil {
				return errors.Wrap(err, "next batch")
			}
			err = sv.Dispatch(PhaseCriticTrain, func() (*results.Record, error) {
				return t.TrainCritic(batch)
			})
			if err != nil {
				return err
			}
		}
		for i := 0; i < t.Config.NIterGen; i++ {
			// Conditioned generators borrow the answers of a
			// real batch.
			var batch *Batch
			if t.conditioned() {
				var err error
				batch, err = t.Data.GAN.Next()
				if err != nil {
					return errors.Wrap(err, "next batch")
				}
			}
			err := sv.Dispatch(PhaseGenTrain, func() (*results.Record, error) {
				return t.TrainGenerator(batch)
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// CodeVAE regularizes codes with a VAE made of the
// reverse network and the generator, and trains the
// secondary decoder on regenerated codes.
type CodeVAE struct{}

// Name returns RegularizerVAE.
func (c CodeVAE) Name() string {
	return RegularizerVAE
}

// Train runs GANIterations rounds, each of which trains
// the code VAE and the secondary decoder on one batch.
func (c CodeVAE) Train(t *Trainer, sv *Supervisor) error {
	for round := 0; round < sv.GANIterations(); round++ {
		batch, err := t.Data.GAN.Next()
		if err != nil {
			return errors.Wrap(err, "next batch")
		}
		err = sv.Dispatch(PhaseCodeVAETrain, func() (*results.Record, error) {
			return t.TrainCodeVAE(batch)
		})
		if err != nil {
			return err
		}
		err = sv.Dispatch(PhaseDec2Train, func() (*results.Record, error) {
			return t.TrainSecondaryDecoder(batch)
		})
		if err != nil {
			return err
		}
	}
	return nil
}
