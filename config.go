package arae

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Regularizer names.
const (
	RegularizerWGAN = "wgan"
	RegularizerVAE  = "vae"
)

// Optimizer names.
const (
	OptimizerSGD     = "sgd"
	OptimizerAdam    = "adam"
	OptimizerRMSProp = "rmsprop"
)

// Config stores every hyper-parameter of a run.
//
// Configs are loaded from JSON files whose keys are the
// json tags below.
// Missing keys keep their DefaultConfig values.
type Config struct {
	Name     string `json:"name"`
	DataPath string `json:"data_path"`
	EvalPath string `json:"eval_path"`
	OutDir   string `json:"out_dir"`
	Seed     int64  `json:"seed"`

	// Data and batching.
	MinLen     int  `json:"min_len"`
	MaxLen     int  `json:"max_len"`
	VocabSize  int  `json:"vocab_size"`
	BatchSize  int  `json:"batch_size"`
	EvalSize   int  `json:"eval_size"`
	BucketSize int  `json:"bucket_size"`
	DropLast   bool `json:"drop_last"`

	// Architecture.
	EmbedSize  int    `json:"embed_size"`
	HiddenSize int    `json:"hidden_size"`
	CodeSize   int    `json:"code_size"`
	ZSize      int    `json:"z_size"`
	Layers     int    `json:"layers"`
	ArchG      string `json:"arch_g"`
	ArchD      string `json:"arch_d"`
	ArchR      string `json:"arch_r"`

	// AnswerCodeSize is the size of the answer codes that
	// condition the decoders and critic.
	// Zero disables answer conditioning.
	AnswerCodeSize int `json:"answer_code_size"`

	// Encoder noise.
	NoiseRadius         float64 `json:"noise_radius"`
	NoiseAnneal         float64 `json:"noise_anneal"`
	NoiseAnnealInterval int     `json:"noise_anneal_interval"`

	// Optimization.
	AEOptimizer   string  `json:"ae_optimizer"`
	GANOptimizer  string  `json:"gan_optimizer"`
	LRAE          float64 `json:"lr_ae"`
	LRGenerator   float64 `json:"lr_gen"`
	LRCritic      float64 `json:"lr_critic"`
	LRReverse     float64 `json:"lr_reverse"`
	Beta1         float64 `json:"beta1"`
	Clip          float64 `json:"clip"`
	GANClamp      float64 `json:"gan_clamp"`
	GANToAE       float64 `json:"gan_to_ae"`
	AEGradNorm    bool    `json:"ae_grad_norm"`
	KLWeight      float64 `json:"kl_weight"`
	Dec2GenWeight float64 `json:"dec2_gen_weight"`
	Regularizer   string  `json:"regularizer"`

	// Schedule.
	EpochTotal      int   `json:"epoch_total"`
	GlobalStepTotal int   `json:"global_step_total"`
	NIterAE         int   `json:"niter_ae"`
	NIterCritic     int   `json:"niter_critic"`
	NIterGen        int   `json:"niter_gen"`
	GANSchedule     []int `json:"gan_schedule"`
	EvalInterval    int   `json:"eval_interval"`
	SaveInterval    int   `json:"save_interval"`
	DiagInterval    int   `json:"diag_interval"`
	LogSamples      int   `json:"log_samples"`

	// Diagnostics.
	NgramOrder int    `json:"ngram_order"`
	LMPlzPath  string `json:"lmplz_path"`
	QueryPath  string `json:"query_path"`
	LiveAddr   string `json:"live_addr"`
}

// DefaultConfig returns the configuration used for keys
// that a config file does not set.
func DefaultConfig() *Config {
	return &Config{
		Name:   "arae",
		OutDir: "out",
		Seed:   1,

		MinLen:     1,
		MaxLen:     15,
		VocabSize:  10000,
		BatchSize:  64,
		EvalSize:   100,
		BucketSize: 20,

		EmbedSize:  300,
		HiddenSize: 300,
		CodeSize:   300,
		ZSize:      100,
		Layers:     1,
		ArchG:      "300-300",
		ArchD:      "300-300",
		ArchR:      "300-300",

		NoiseRadius:         0.2,
		NoiseAnneal:         0.995,
		NoiseAnnealInterval: 100,

		AEOptimizer:  OptimizerSGD,
		GANOptimizer: OptimizerAdam,
		LRAE:         1,
		LRGenerator:  5e-5,
		LRCritic:     1e-5,
		LRReverse:    1e-4,
		Beta1:        0.9,
		Clip:         1,
		GANClamp:     0.01,
		GANToAE:      -0.01,
		KLWeight:     1,
		Regularizer:  RegularizerWGAN,

		EpochTotal:   15,
		NIterAE:      1,
		NIterCritic:  5,
		NIterGen:     1,
		GANSchedule:  []int{2, 4, 6},
		EvalInterval: 100,
		SaveInterval: 1000,
		DiagInterval: 0,
		LogSamples:   5,

		NgramOrder: 5,
	}
}

// LoadConfig reads a JSON config file on top of the
// default configuration.
// Unknown keys are rejected.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	defer f.Close()
	cfg := DefaultConfig()
	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, errors.Wrapf(err, "load config %s", path)
	}
	return cfg, nil
}

// RunDir returns the directory for the run's outputs.
func (c *Config) RunDir() string {
	return filepath.Join(c.OutDir, c.Name)
}

// Validate checks the configuration for values that
// cannot be trained with.
// It returns a *ConfigError for the first problem.
func (c *Config) Validate() error {
	if c.Name == "" {
		return &ConfigError{Field: "name", Value: c.Name, Reason: "must not be empty"}
	}
	if c.DataPath == "" {
		return &ConfigError{Field: "data_path", Value: c.DataPath, Reason: "must be set"}
	}
	for _, field := range []struct {
		Name string
		Path string
	}{{"data_path", c.DataPath}, {"eval_path", c.EvalPath}} {
		if field.Path == "" {
			continue
		}
		if _, err := os.Stat(field.Path); err != nil {
			return &ConfigError{Field: field.Name, Value: field.Path,
				Reason: "file not found"}
		}
	}

	positive := []struct {
		Name  string
		Value int
	}{
		{"max_len", c.MaxLen}, {"vocab_size", c.VocabSize},
		{"batch_size", c.BatchSize}, {"eval_size", c.EvalSize},
		{"bucket_size", c.BucketSize}, {"embed_size", c.EmbedSize},
		{"hidden_size", c.HiddenSize}, {"code_size", c.CodeSize},
		{"z_size", c.ZSize}, {"layers", c.Layers},
		{"niter_ae", c.NIterAE}, {"niter_critic", c.NIterCritic},
		{"niter_gen", c.NIterGen}, {"ngram_order", c.NgramOrder},
	}
	for _, p := range positive {
		if p.Value <= 0 {
			return &ConfigError{Field: p.Name, Value: p.Value, Reason: "must be positive"}
		}
	}
	if c.MinLen < 1 || c.MinLen > c.MaxLen {
		return &ConfigError{Field: "min_len", Value: c.MinLen,
			Reason: "must be between 1 and max_len"}
	}
	if c.EpochTotal <= 0 && c.GlobalStepTotal <= 0 {
		return &ConfigError{Field: "epoch_total", Value: c.EpochTotal,
			Reason: "epoch_total or global_step_total must be positive"}
	}
	if c.AnswerCodeSize < 0 {
		return &ConfigError{Field: "answer_code_size", Value: c.AnswerCodeSize,
			Reason: "must not be negative"}
	}
	if c.NoiseAnneal <= 0 || c.NoiseAnneal > 1 {
		return &ConfigError{Field: "noise_anneal", Value: c.NoiseAnneal,
			Reason: "must be in (0, 1]"}
	}

	switch c.Regularizer {
	case RegularizerWGAN, RegularizerVAE:
	default:
		return &ConfigError{Field: "regularizer", Value: c.Regularizer,
			Reason: "unknown regularizer"}
	}
	for _, opt := range []struct {
		Name  string
		Value string
	}{{"ae_optimizer", c.AEOptimizer}, {"gan_optimizer", c.GANOptimizer}} {
		switch opt.Value {
		case OptimizerSGD, OptimizerAdam, OptimizerRMSProp:
		default:
			return &ConfigError{Field: opt.Name, Value: opt.Value,
				Reason: "unknown optimizer"}
		}
	}
	for _, arch := range []struct {
		Name  string
		Value string
	}{{"arch_g", c.ArchG}, {"arch_d", c.ArchD}, {"arch_r", c.ArchR}} {
		if _, err := ParseArch(arch.Value); err != nil {
			return &ConfigError{Field: arch.Name, Value: arch.Value, Reason: err.Error()}
		}
	}
	if (c.LMPlzPath == "") != (c.QueryPath == "") {
		return &ConfigError{Field: "lmplz_path", Value: c.LMPlzPath,
			Reason: "lmplz_path and query_path must be set together"}
	}
	if c.DiagInterval > 0 && c.EvalPath == "" {
		return &ConfigError{Field: "diag_interval", Value: c.DiagInterval,
			Reason: "reverse perplexity needs eval_path"}
	}
	return nil
}

// ParseArch parses a hidden layer specification such as
// "300-300".
// The empty string means no hidden layers.
func ParseArch(arch string) ([]int, error) {
	if arch == "" {
		return nil, nil
	}
	var res []int
	for _, part := range strings.Split(arch, "-") {
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, errors.Errorf("bad layer size %q", part)
		}
		if n <= 0 {
			return nil, errors.Errorf("non-positive layer size %d", n)
		}
		res = append(res, n)
	}
	return res, nil
}
