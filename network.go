package arae

import (
	"github.com/unixpickle/anyvec"
)

// A Network holds every module of the model along with
// its optimizer.
//
// The embedding is shared by the encoders and both
// decoders.
//
// AnswerEncoder and AnswerCritic are nil unless the
// configuration enables answer conditioning.
// The answer encoder's code is joined to every code that
// a decoder or the critic reads, and the answer critic
// predicts that code from the question alone.
type Network struct {
	Config  *Config
	Vocab   *Vocab
	Creator anyvec.Creator

	Embed     *Embedding
	Encoder   *Encoder
	Decoder   *Decoder
	Decoder2  *Decoder
	Generator *Generator
	Critic    *Critic
	Reverse   *Reverse

	AnswerEncoder *Encoder
	AnswerCritic  *Encoder

	EmbedOpt     *Optimizer
	EncoderOpt   *Optimizer
	DecoderOpt   *Optimizer
	Decoder2Opt  *Optimizer
	GeneratorOpt *Optimizer
	CriticOpt    *Optimizer
	ReverseOpt   *Optimizer

	AnswerEncoderOpt *Optimizer
	AnswerCriticOpt  *Optimizer
}

// NewNetwork creates every module and optimizer for a
// configuration.
//
// The configuration should already be validated.
func NewNetwork(c anyvec.Creator, cfg *Config, v *Vocab) (*Network, error) {
	archG, err := ParseArch(cfg.ArchG)
	if err != nil {
		return nil, &ConfigError{Field: "arch_g", Value: cfg.ArchG, Reason: err.Error()}
	}
	archD, err := ParseArch(cfg.ArchD)
	if err != nil {
		return nil, &ConfigError{Field: "arch_d", Value: cfg.ArchD, Reason: err.Error()}
	}
	archR, err := ParseArch(cfg.ArchR)
	if err != nil {
		return nil, &ConfigError{Field: "arch_r", Value: cfg.ArchR, Reason: err.Error()}
	}

	n := &Network{Config: cfg, Vocab: v, Creator: c}
	n.Embed = NewEmbedding(c, v.Len(), cfg.EmbedSize)
	if v.Embedding != nil {
		n.Embed.Load(v.Embedding)
	}
	// Size of the codes read by the decoders and critic.
	joinedSize := cfg.CodeSize + cfg.AnswerCodeSize

	n.Encoder = NewEncoder(c, "encoder", n.Embed, cfg.HiddenSize, cfg.CodeSize,
		cfg.Layers, cfg.NoiseRadius, cfg.Seed)
	n.Decoder = NewDecoder(c, "decoder", n.Embed, cfg.HiddenSize, joinedSize,
		cfg.Layers)
	n.Decoder2 = NewDecoder(c, "decoder2", n.Embed, cfg.HiddenSize, joinedSize,
		cfg.Layers)
	n.Generator = NewGenerator(c, cfg.ZSize, archG, cfg.CodeSize, cfg.Seed+1)
	n.Critic = NewCritic(c, joinedSize, archD)
	n.Reverse = NewReverse(c, cfg.CodeSize, archR, cfg.ZSize)

	type optSpec struct {
		Dest   **Optimizer
		Module TrainableModule
		Kind   string
		Rate   float64
	}
	specs := []optSpec{
		{&n.EmbedOpt, n.Embed, cfg.AEOptimizer, cfg.LRAE},
		{&n.EncoderOpt, n.Encoder, cfg.AEOptimizer, cfg.LRAE},
		{&n.DecoderOpt, n.Decoder, cfg.AEOptimizer, cfg.LRAE},
		{&n.Decoder2Opt, n.Decoder2, cfg.AEOptimizer, cfg.LRAE},
		{&n.GeneratorOpt, n.Generator, cfg.GANOptimizer, cfg.LRGenerator},
		{&n.CriticOpt, n.Critic, cfg.GANOptimizer, cfg.LRCritic},
		{&n.ReverseOpt, n.Reverse, cfg.GANOptimizer, cfg.LRReverse},
	}
	if cfg.AnswerCodeSize > 0 {
		n.AnswerEncoder = NewEncoder(c, "answer_encoder", n.Embed, cfg.HiddenSize,
			cfg.AnswerCodeSize, cfg.Layers, 0, cfg.Seed+2)
		n.AnswerCritic = NewEncoder(c, "answer_critic", n.Embed, cfg.HiddenSize,
			cfg.AnswerCodeSize, cfg.Layers, 0, cfg.Seed+3)
		specs = append(specs,
			optSpec{&n.AnswerEncoderOpt, n.AnswerEncoder, cfg.AEOptimizer, cfg.LRAE},
			optSpec{&n.AnswerCriticOpt, n.AnswerCritic, cfg.GANOptimizer, cfg.LRCritic})
	}

	for _, o := range specs {
		opt, err := NewOptimizer(o.Kind, o.Module, o.Rate, cfg.Beta1)
		if err != nil {
			return nil, err
		}
		*o.Dest = opt
	}
	return n, nil
}

// Modules returns every module.
func (n *Network) Modules() []TrainableModule {
	res := []TrainableModule{n.Embed, n.Encoder, n.Decoder, n.Decoder2,
		n.Generator, n.Critic, n.Reverse}
	if n.AnswerEncoder != nil {
		res = append(res, n.AnswerEncoder, n.AnswerCritic)
	}
	return res
}

// Optimizers returns every optimizer, in the same order
// as Modules.
func (n *Network) Optimizers() []*Optimizer {
	res := []*Optimizer{n.EmbedOpt, n.EncoderOpt, n.DecoderOpt, n.Decoder2Opt,
		n.GeneratorOpt, n.CriticOpt, n.ReverseOpt}
	if n.AnswerEncoder != nil {
		res = append(res, n.AnswerEncoderOpt, n.AnswerCriticOpt)
	}
	return res
}

// Optimizer returns the optimizer of a module.
func (n *Network) Optimizer(m TrainableModule) *Optimizer {
	for _, o := range n.Optimizers() {
		if o.Name == m.Name() {
			return o
		}
	}
	panic("no optimizer for module " + m.Name())
}

// SetModulesTrainMode sets the mode of every module.
func (n *Network) SetModulesTrainMode(training bool) {
	for _, m := range n.Modules() {
		m.SetMode(training)
	}
}
