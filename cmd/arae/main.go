// Command arae trains an adversarially regularized text
// autoencoder.
package main

import (
	"flag"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/klauspost/cpuid/v2"
	"github.com/pkg/errors"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvec32"
	"github.com/unixpickle/anyvec/anyvec64"
	"github.com/unixpickle/arae"
	"github.com/unixpickle/arae/results"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/rip"
)

func main() {
	var configPath string
	var fresh bool
	var use32 bool

	overrides := arae.DefaultConfig()
	flag.StringVar(&configPath, "config", "", "JSON config file")
	flag.BoolVar(&fresh, "fresh", false, "ignore any existing checkpoint")
	flag.BoolVar(&use32, "float32", false, "use 32-bit floats")
	flag.StringVar(&overrides.Name, "name", overrides.Name, "run name")
	flag.StringVar(&overrides.DataPath, "data", overrides.DataPath, "training sentences")
	flag.StringVar(&overrides.EvalPath, "eval", overrides.EvalPath, "held-out sentences")
	flag.StringVar(&overrides.OutDir, "out", overrides.OutDir, "output directory")
	flag.IntVar(&overrides.EpochTotal, "epochs", overrides.EpochTotal, "epochs to train")
	flag.IntVar(&overrides.GlobalStepTotal, "steps", overrides.GlobalStepTotal,
		"global steps to train (0 for no limit)")
	flag.IntVar(&overrides.BatchSize, "batch", overrides.BatchSize, "batch size")
	flag.StringVar(&overrides.Regularizer, "regularizer", overrides.Regularizer,
		"code regularizer (wgan or vae)")
	flag.StringVar(&overrides.LiveAddr, "live", overrides.LiveAddr,
		"address for the live results websocket")
	flag.Parse()

	cfg := arae.DefaultConfig()
	if configPath != "" {
		var err error
		cfg, err = arae.LoadConfig(configPath)
		if err != nil {
			essentials.Die(err)
		}
	}
	applyOverrides(cfg, overrides)
	if err := cfg.Validate(); err != nil {
		essentials.Die(err)
	}

	if err := os.MkdirAll(cfg.RunDir(), 0755); err != nil {
		essentials.Die(err)
	}
	logFile, err := os.OpenFile(filepath.Join(cfg.RunDir(), "log.txt"),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		essentials.Die(err)
	}
	defer logFile.Close()
	logger := log.New(io.MultiWriter(os.Stderr, logFile), "", log.LstdFlags)

	logger.Printf("[INFO] cpu: %s (%d cores, avx2=%v)", cpuid.CPU.BrandName,
		cpuid.CPU.PhysicalCores, cpuid.CPU.Supports(cpuid.AVX2))

	var creator anyvec.Creator = anyvec64.DefaultCreator{}
	if use32 {
		creator = anyvec32.DefaultCreator{}
	}

	sinks, err := createSinks(cfg, logger)
	if err != nil {
		essentials.Die(err)
	}
	run, err := arae.NewRun(creator, cfg, logger, sinks...)
	if err != nil {
		essentials.Die(err)
	}
	defer run.Writer.Close()
	logger.Printf("[INFO] run %s", run.RunID)

	if !fresh {
		if err := run.Supervisor.Restore(); err == nil {
			logger.Printf("[INFO] restored checkpoint at step %d (epoch %d)",
				run.Supervisor.GlobalStep(), run.Supervisor.EpochStep())
		} else if !errors.Is(err, os.ErrNotExist) {
			essentials.Die(err)
		}
	}

	if cfg.LiveAddr != "" {
		viewer := &results.Viewer{Log: run.Writer.Log, Logger: logger}
		go func() {
			if err := viewer.ListenAndServe(cfg.LiveAddr); err != nil {
				logger.Printf("[WARN] live viewer: %v", err)
			}
		}()
		logger.Printf("[INFO] live results at ws://%s/results", cfg.LiveAddr)
	}

	if err := run.Trainer.Run(rip.NewRIP().Chan()); err != nil {
		var modeErr *arae.DecodeModeError
		if errors.As(err, &modeErr) {
			essentials.Die("evaluation misconfigured:", err)
		}
		essentials.Die(err)
	}
	if run.Supervisor.State() != arae.Terminated {
		if err := run.Supervisor.Save(); err != nil {
			essentials.Die(err)
		}
	}
	logger.Printf("[INFO] done at step %d (epoch %d)", run.Supervisor.GlobalStep(),
		run.Supervisor.EpochStep())
}

// applyOverrides copies the flags that were set on the
// command line into cfg.
func applyOverrides(cfg, overrides *arae.Config) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "name":
			cfg.Name = overrides.Name
		case "data":
			cfg.DataPath = overrides.DataPath
		case "eval":
			cfg.EvalPath = overrides.EvalPath
		case "out":
			cfg.OutDir = overrides.OutDir
		case "epochs":
			cfg.EpochTotal = overrides.EpochTotal
		case "steps":
			cfg.GlobalStepTotal = overrides.GlobalStepTotal
		case "batch":
			cfg.BatchSize = overrides.BatchSize
		case "regularizer":
			cfg.Regularizer = overrides.Regularizer
		case "live":
			cfg.LiveAddr = overrides.LiveAddr
		}
	})
}

func createSinks(cfg *arae.Config, logger *log.Logger) ([]results.Sink, error) {
	jsonl, err := results.NewJSONLSink(filepath.Join(cfg.RunDir(), "results.jsonl"))
	if err != nil {
		return nil, err
	}
	embDir := filepath.Join(cfg.RunDir(), "embeddings")
	if err := os.MkdirAll(embDir, 0755); err != nil {
		return nil, err
	}
	return []results.Sink{
		&results.LineSink{Logger: logger},
		jsonl,
		&results.EmbeddingSink{Dir: embDir},
	}, nil
}
