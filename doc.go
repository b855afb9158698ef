// Package arae trains adversarially regularized text
// autoencoders.
//
// An encoder maps sentences to fixed-size codes, and a
// decoder reconstructs the sentences from the codes.
// The distribution of codes is regularized by a
// Regularizer: either a generator/critic pair trained as
// a WGAN, or a code VAE built from a reverse network and
// the generator.
//
// A Supervisor drives training.
// It owns the step counters, decides when to evaluate,
// save, and stop, and records the results of every phase.
// The phases themselves are methods on Trainer.
package arae
