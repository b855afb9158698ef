package arae

import (
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/arae/ngram"
	"github.com/unixpickle/arae/results"
)

// Iterator names used in checkpoints, besides
// EpochIterator.
const (
	GANIterator  = "gan"
	EvalIterator = "eval"
)

// A Run bundles everything needed to train a model from a
// configuration.
type Run struct {
	RunID      string
	Config     *Config
	Network    *Network
	Writer     *results.Writer
	Supervisor *Supervisor
	Trainer    *Trainer
}

// NewRun loads the data for a configuration and creates
// a fresh network, supervisor, and trainer.
//
// Records are written to the given sinks.
// The configuration should already be validated.
func NewRun(c anyvec.Creator, cfg *Config, logger *log.Logger,
	sinks ...results.Sink) (*Run, error) {
	sents, err := LoadSentences(cfg.DataPath)
	if err != nil {
		return nil, err
	}
	vocab := BuildVocab(TokenLists(sents), cfg.VocabSize)
	train := NewDataset(vocab, sents, cfg.MinLen, cfg.MaxLen)
	if train.Len() == 0 {
		return nil, errors.Wrap(ErrEmptyDataset, cfg.DataPath)
	}
	logger.Printf("[INFO] loaded %d sentences with %d tokens in vocabulary", train.Len(),
		vocab.Len())

	evalData := train
	heldOut := joinTokens(sents, cfg.MinLen, cfg.MaxLen)
	if cfg.EvalPath != "" {
		evalSents, err := LoadSentences(cfg.EvalPath)
		if err != nil {
			return nil, err
		}
		evalData = NewDataset(vocab, evalSents, cfg.MinLen, cfg.MaxLen)
		if evalData.Len() == 0 {
			return nil, errors.Wrap(ErrEmptyDataset, cfg.EvalPath)
		}
		heldOut = joinTokens(evalSents, cfg.MinLen, cfg.MaxLen)
	}

	var fixedAnswers [][]int
	if cfg.AnswerCodeSize > 0 {
		if train.Answers == nil || evalData.Answers == nil {
			return nil, &ConfigError{Field: "answer_code_size", Value: cfg.AnswerCodeSize,
				Reason: "every sentence needs an answer"}
		}
		fixedAnswers = evalData.Answers
		if len(fixedAnswers) > cfg.EvalSize {
			fixedAnswers = fixedAnswers[:cfg.EvalSize]
		}
	}

	aeIter := NewBatchIterator(train, cfg.BatchSize, cfg.BucketSize, cfg.DropLast, cfg.Seed)
	logger.Printf("[INFO] %d batches per epoch", aeIter.NumBatches())
	iters := map[string]Iterator{
		EpochIterator: aeIter,
		GANIterator: NewBatchIterator(train, cfg.BatchSize, cfg.BucketSize, cfg.DropLast,
			cfg.Seed+1),
		EvalIterator: NewBatchIterator(evalData, cfg.EvalSize, 1, false, cfg.Seed+2),
	}

	net, err := NewNetwork(c, cfg, vocab)
	if err != nil {
		return nil, err
	}
	runID := uuid.New().String()
	writer := results.NewWriter(runID, sinks...)
	sv := NewSupervisor(cfg, net, writer, iters, logger)

	var tk *ngram.Toolkit
	if cfg.LMPlzPath != "" {
		tk = &ngram.Toolkit{
			LMPlz:   cfg.LMPlzPath,
			Query:   cfg.QueryPath,
			Order:   cfg.NgramOrder,
			Timeout: 10 * time.Minute,
		}
	}
	trainer, err := NewTrainer(sv, &Data{
		AE:           iters[EpochIterator],
		GAN:          iters[GANIterator],
		Eval:         iters[EvalIterator],
		HeldOut:      heldOut,
		FixedAnswers: fixedAnswers,
	}, tk)
	if err != nil {
		return nil, err
	}
	return &Run{
		RunID:      runID,
		Config:     cfg,
		Network:    net,
		Writer:     writer,
		Supervisor: sv,
		Trainer:    trainer,
	}, nil
}

func joinTokens(sents []Sentence, minLen, maxLen int) []string {
	var res []string
	for _, s := range sents {
		if len(s.Tokens) >= minLen && len(s.Tokens) <= maxLen {
			res = append(res, strings.Join(s.Tokens, " "))
		}
	}
	return res
}
