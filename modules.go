package arae

import (
	"math"
	"math/rand"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anydiff/anyseq"
	"github.com/unixpickle/anynet"
	"github.com/unixpickle/anynet/anyrnn"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/arae/gradhook"
)

// A TrainableModule is a named group of parameters with a
// training/evaluation mode.
type TrainableModule interface {
	anynet.Parameterizer

	Name() string
	SetMode(training bool)
	Training() bool

	// ClipGradNorm rescales the module's gradients in g so
	// that their joint norm is at most threshold.
	// It returns the norm before clipping.
	// A non-positive threshold disables clipping.
	ClipGradNorm(g anydiff.Grad, threshold float64) float64
}

type module struct {
	name     string
	training bool
	params   []*anydiff.Var
}

func newModule(name string, layers ...interface{}) module {
	m := module{name: name, training: true}
	for _, l := range layers {
		if p, ok := l.(anynet.Parameterizer); ok {
			m.params = append(m.params, p.Parameters()...)
		}
	}
	return m
}

func (m *module) Name() string {
	return m.name
}

func (m *module) SetMode(training bool) {
	m.training = training
}

func (m *module) Training() bool {
	return m.training
}

func (m *module) Parameters() []*anydiff.Var {
	return m.params
}

func (m *module) ClipGradNorm(g anydiff.Grad, threshold float64) float64 {
	var sqNorm float64
	for _, p := range m.params {
		if v, ok := g[p]; ok {
			n := gradhook.Norm(v)
			sqNorm += n * n
		}
	}
	norm := math.Sqrt(sqNorm)
	if threshold > 0 && norm > threshold {
		for _, p := range m.params {
			if v, ok := g[p]; ok {
				v.Scale(v.Creator().MakeNumeric(threshold / norm))
			}
		}
	}
	return norm
}

// An Embedding maps token IDs to vectors.
//
// It is a fully-connected layer applied to one-hot
// inputs.
type Embedding struct {
	module
	Layer     *anynet.FC
	VocabSize int
}

// NewEmbedding creates a randomly initialized Embedding.
func NewEmbedding(c anyvec.Creator, vocabSize, embedSize int) *Embedding {
	layer := anynet.NewFC(c, vocabSize, embedSize)
	return &Embedding{
		module:    newModule("embed", layer),
		Layer:     layer,
		VocabSize: vocabSize,
	}
}

// Load replaces the embedding with pre-trained vectors,
// one per token ID.
func (e *Embedding) Load(vecs [][]float64) {
	if len(vecs) != e.VocabSize {
		panic("embedding count mismatch")
	}
	embedSize := e.Layer.Biases.Vector.Len()
	weights := make([]float64, embedSize*e.VocabSize)
	for id, vec := range vecs {
		if len(vec) != embedSize {
			panic("embedding size mismatch")
		}
		for i, x := range vec {
			weights[i*e.VocabSize+id] = x
		}
	}
	c := e.Layer.Weights.Vector.Creator()
	e.Layer.Weights.Vector.Set(makeVector(c, weights))
	e.Layer.Biases.Vector.Set(c.MakeVector(embedSize))
}

// ApplySeq embeds a sequence of one-hot vectors.
func (e *Embedding) ApplySeq(seq anyseq.Seq) anyseq.Seq {
	return anyseq.MapN(func(n int, v ...anydiff.Res) anydiff.Res {
		return e.Layer.Apply(v[0], n)
	}, seq)
}

// An Encoder turns sentences into codes.
//
// Codes are the final output of an LSTM stack topped with
// a tanh layer, so every component is in [-1, 1].
type Encoder struct {
	module
	Embed *Embedding
	Block anyrnn.Block

	// NoiseRadius is the standard deviation of the noise
	// added to codes in training mode.
	NoiseRadius float64

	rand *rand.Rand
}

// NewEncoder creates an Encoder.
func NewEncoder(c anyvec.Creator, name string, embed *Embedding, hidden, codeSize,
	layers int, noiseRadius float64, seed int64) *Encoder {
	var layerObjs []interface{}
	var stack anyrnn.Stack
	inSize := embed.Layer.Biases.Vector.Len()
	for i := 0; i < layers; i++ {
		lstm := anyrnn.NewLSTM(c, inSize, hidden)
		stack = append(stack, lstm)
		layerObjs = append(layerObjs, lstm)
		inSize = hidden
	}
	head := anynet.Net{
		anynet.NewFC(c, hidden, codeSize),
		anynet.Tanh,
	}
	stack = append(stack, &anyrnn.LayerBlock{Layer: head})
	layerObjs = append(layerObjs, head)
	return &Encoder{
		module:      newModule(name, layerObjs...),
		Embed:       embed,
		Block:       stack,
		NoiseRadius: noiseRadius,
		rand:        rand.New(rand.NewSource(seed)),
	}
}

// Encode computes the code for every row of the batch.
func (e *Encoder) Encode(b *Batch) anydiff.Res {
	return e.EncodeRows(b.Src, b.Lengths)
}

// EncodeRows computes the code for the first lengths[i]
// tokens of every row.
// Every length must be positive.
func (e *Encoder) EncodeRows(rows [][]int, lengths []int) anydiff.Res {
	c := e.Embed.Layer.Weights.Vector.Creator()
	in := oneHotSeq(c, rows, lengths, e.Embed.VocabSize)
	return anyseq.Tail(anyrnn.Map(e.Embed.ApplySeq(in), e.Block))
}

// AddNoise adds Gaussian noise to a code in training
// mode.
// In evaluation mode, or with a zero radius, the code is
// returned unchanged.
func (e *Encoder) AddNoise(code anydiff.Res) anydiff.Res {
	if !e.training || e.NoiseRadius == 0 {
		return code
	}
	c := code.Output().Creator()
	return anydiff.Add(code, anydiff.NewConst(e.Perturb(c.MakeVector(code.Output().Len()))))
}

// Perturb returns a copy of code with Gaussian noise of
// standard deviation NoiseRadius added, regardless of the
// mode.
func (e *Encoder) Perturb(code anyvec.Vector) anyvec.Vector {
	data := append([]float64{}, vectorData(code)...)
	for i := range data {
		data[i] += e.rand.NormFloat64() * e.NoiseRadius
	}
	return makeVector(code.Creator(), data)
}

// A Decoder turns codes into distributions over
// sentences.
//
// At every timestep, the LSTM input is the embedding of
// the previous token plus a projection of the code.
// Outputs are log-probabilities over the vocabulary.
type Decoder struct {
	module
	Embed    *Embedding
	CodeProj *anynet.FC
	Block    anyrnn.Block
}

// NewDecoder creates a Decoder.
func NewDecoder(c anyvec.Creator, name string, embed *Embedding, hidden, codeSize,
	layers int) *Decoder {
	embedSize := embed.Layer.Biases.Vector.Len()
	proj := anynet.NewFC(c, codeSize, embedSize)
	layerObjs := []interface{}{proj}
	var stack anyrnn.Stack
	inSize := embedSize
	for i := 0; i < layers; i++ {
		lstm := anyrnn.NewLSTM(c, inSize, hidden)
		stack = append(stack, lstm)
		layerObjs = append(layerObjs, lstm)
		inSize = hidden
	}
	head := anynet.Net{
		anynet.NewFC(c, hidden, embed.VocabSize),
		anynet.LogSoftmax,
	}
	stack = append(stack, &anyrnn.LayerBlock{Layer: head})
	layerObjs = append(layerObjs, head)
	return &Decoder{
		module:   newModule(name, layerObjs...),
		Embed:    embed,
		CodeProj: proj,
		Block:    stack,
	}
}

// TeacherForce decodes a batch, feeding the true previous
// token at every timestep.
//
// Every row is present for the full padded length; loss
// functions are expected to mask out padding.
func (d *Decoder) TeacherForce(code anydiff.Res, b *Batch) anyseq.Seq {
	n := b.Size()
	c := code.Output().Creator()
	in := d.Embed.ApplySeq(oneHotSeq(c, b.Src, nil, d.Embed.VocabSize))
	return gradhook.PoolSeq(d.CodeProj.Apply(code, n), func(proj anydiff.Res) anyseq.Seq {
		joined := anyseq.MapN(func(n int, v ...anydiff.Res) anydiff.Res {
			return anydiff.Add(v[0], proj)
		}, in)
		return anyrnn.Map(joined, d.Block)
	})
}

// FreeRun decodes n codes greedily for maxLen timesteps,
// feeding back the most likely token at every timestep.
//
// It returns the tokens for each row and the output of
// every timestep.
// After a row produces EosID, its remaining tokens are
// PadID.
func (d *Decoder) FreeRun(code anyvec.Vector, n, maxLen int) ([][]int, []*anyseq.Batch) {
	c := code.Creator()
	vocabSize := d.Embed.VocabSize
	proj := d.CodeProj.Apply(anydiff.NewConst(code), n).Output()

	present := make([]bool, n)
	tokens := make([]int, n)
	for i := range tokens {
		present[i] = true
		tokens[i] = SosID
	}
	done := make([]bool, n)
	ids := make([][]int, n)

	var steps []*anyseq.Batch
	state := d.Block.Start(n)
	for t := 0; t < maxLen; t++ {
		embedded := d.Embed.Layer.Apply(anydiff.NewConst(oneHot(c, tokens, vocabSize)), n)
		in := embedded.Output().Copy()
		in.Add(proj)
		res := d.Block.Step(state, in)
		steps = append(steps, &anyseq.Batch{Packed: res.Output(), Present: present})
		rows := rowMajor(res.Output(), n)
		for i, row := range rows {
			tok := argmax(row)
			if done[i] {
				tok = PadID
			} else if tok == EosID {
				done[i] = true
			}
			ids[i] = append(ids[i], tok)
			tokens[i] = tok
		}
		state = res.State()
	}
	return ids, steps
}

// An MLP is a feed-forward network with ReLU hidden
// layers.
type MLP struct {
	module
	Net anynet.Net
}

func newMLP(c anyvec.Creator, name string, inSize int, hidden []int, outSize int,
	final anynet.Layer) *MLP {
	var net anynet.Net
	for _, h := range hidden {
		net = append(net, anynet.NewFC(c, inSize, h), anynet.ReLU)
		inSize = h
	}
	net = append(net, anynet.NewFC(c, inSize, outSize))
	if final != nil {
		net = append(net, final)
	}
	return &MLP{module: newModule(name, net), Net: net}
}

// Apply applies the network to a batch of n inputs.
func (m *MLP) Apply(in anydiff.Res, n int) anydiff.Res {
	return m.Net.Apply(in, n)
}

// A Generator maps Gaussian noise to codes.
type Generator struct {
	*MLP
	ZSize int

	rand *rand.Rand
}

// NewGenerator creates a Generator.
func NewGenerator(c anyvec.Creator, zSize int, hidden []int, codeSize int,
	seed int64) *Generator {
	return &Generator{
		MLP:   newMLP(c, "generator", zSize, hidden, codeSize, anynet.Tanh),
		ZSize: zSize,
		rand:  rand.New(rand.NewSource(seed)),
	}
}

// Noise samples a batch of n noise vectors.
func (g *Generator) Noise(n int) anyvec.Vector {
	return g.NoiseFrom(g.rand, n)
}

// NoiseFrom samples a batch of n noise vectors from a
// given source, leaving the generator's own source alone.
func (g *Generator) NoiseFrom(r *rand.Rand, n int) anyvec.Vector {
	data := make([]float64, n*g.ZSize)
	for i := range data {
		data[i] = r.NormFloat64()
	}
	return makeVector(g.params[0].Vector.Creator(), data)
}

// A Critic scores codes.
// Its output has one component per code.
type Critic struct {
	*MLP
}

// NewCritic creates a Critic.
func NewCritic(c anyvec.Creator, codeSize int, hidden []int) *Critic {
	return &Critic{MLP: newMLP(c, "critic", codeSize, hidden, 1, nil)}
}

// Clamp clips every parameter to [-limit, limit].
func (c *Critic) Clamp(limit float64) {
	for _, p := range c.params {
		data := vectorData(p.Vector)
		for i, x := range data {
			data[i] = math.Max(-limit, math.Min(limit, x))
		}
		p.Vector.SetData(p.Vector.Creator().MakeNumericList(data))
	}
}

// A Reverse network maps codes back to the noise space of
// the generator, as the mean and log-variance of a
// Gaussian.
type Reverse struct {
	module
	Trunk  anynet.Net
	Mu     *anynet.FC
	LogVar *anynet.FC
}

// NewReverse creates a Reverse network.
func NewReverse(c anyvec.Creator, codeSize int, hidden []int, zSize int) *Reverse {
	var trunk anynet.Net
	inSize := codeSize
	for _, h := range hidden {
		trunk = append(trunk, anynet.NewFC(c, inSize, h), anynet.ReLU)
		inSize = h
	}
	mu := anynet.NewFC(c, inSize, zSize)
	logVar := anynet.NewFC(c, inSize, zSize)
	return &Reverse{
		module: newModule("reverse", trunk, mu, logVar),
		Trunk:  trunk,
		Mu:     mu,
		LogVar: logVar,
	}
}

// Apply computes the mean and log-variance for a batch of
// n codes.
func (r *Reverse) Apply(code anydiff.Res, n int) (mu, logVar anydiff.Res) {
	return r.Heads(r.Hidden(code, n), n)
}

// Hidden applies the shared trunk to a batch of n codes.
func (r *Reverse) Hidden(code anydiff.Res, n int) anydiff.Res {
	if len(r.Trunk) == 0 {
		return code
	}
	return r.Trunk.Apply(code, n)
}

// Heads computes the mean and log-variance from the
// output of Hidden.
func (r *Reverse) Heads(h anydiff.Res, n int) (mu, logVar anydiff.Res) {
	return r.Mu.Apply(h, n), r.LogVar.Apply(h, n)
}
