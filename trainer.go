package arae

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anydiff/anyseq"
	"github.com/unixpickle/anynet"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/arae/gradhook"
	"github.com/unixpickle/arae/ngram"
	"github.com/unixpickle/arae/results"
	"github.com/unixpickle/essentials"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Phase names, used to tag records.
const (
	PhaseAETrain           = "AE_train"
	PhaseAnswerCriticTrain = "AnsCritic_train"
	PhaseCriticTrain       = "Critic_train"
	PhaseGenTrain          = "Gen_train"
	PhaseCodeVAETrain      = "CodeVAE_train"
	PhaseDec2Train         = "Dec2_train"
	PhaseAEEval            = "AE_eval"
	PhaseGenerated         = "Generated"
	PhaseRevPPL            = "RevPPL"
)

// Decode modes for EvalAutoencoder.
const (
	ModeTeacherForcing = "tf"
	ModeFreeRunning    = "fr"
)

// Data holds the iterators a Trainer reads from.
type Data struct {
	AE   Iterator
	GAN  Iterator
	Eval Iterator

	// HeldOut are sentences scored by the reverse
	// perplexity diagnostic.
	HeldOut []string

	// FixedAnswers condition generated sentences when the
	// network is answer-conditioned.
	// They are used cyclically.
	FixedAnswers [][]int
}

// A Trainer implements the phases of training.
//
// Each phase builds a graph, back-propagates a single
// loss, clips and steps the optimizers of the modules it
// trains, and returns a record of what happened.
type Trainer struct {
	Config      *Config
	Network     *Network
	Supervisor  *Supervisor
	Data        *Data
	Regularizer Regularizer
	Toolkit     *ngram.Toolkit
	Logger      *log.Logger

	// aeNorm is the norm of the gradient the decoder sent
	// into the code during the last autoencoder phase.
	aeNorm gradhook.Recorder

	// criticNorm is the norm of the gradient the critic
	// sent into the encoder, after rescaling and flipping.
	criticNorm gradhook.Recorder

	// codeHook, if set, sees the critic's gradient for the
	// real codes after every other hook.
	codeHook gradhook.Transformer

	fixedNoise anyvec.Vector

	// diagRand drives sampling for diagnostics, so that
	// they do not disturb the generator's noise stream.
	diagRand *rand.Rand
}

// NewTrainer creates a Trainer and registers its periodic
// actions with the Supervisor.
//
// The toolkit may be nil, disabling reverse perplexity.
func NewTrainer(sv *Supervisor, data *Data, tk *ngram.Toolkit) (*Trainer, error) {
	reg, err := NewRegularizer(sv.Config.Regularizer)
	if err != nil {
		return nil, err
	}
	if sv.Network.AnswerEncoder != nil && len(data.FixedAnswers) == 0 {
		return nil, &ConfigError{Field: "answer_code_size", Value: sv.Config.AnswerCodeSize,
			Reason: "answer conditioning needs answers"}
	}
	t := &Trainer{
		Config:      sv.Config,
		Network:     sv.Network,
		Supervisor:  sv,
		Data:        data,
		Regularizer: reg,
		Toolkit:     tk,
		Logger:      sv.Logger,
		fixedNoise:  sv.Network.Generator.Noise(sv.Config.EvalSize),
		diagRand:    rand.New(rand.NewSource(sv.Config.Seed + 3)),
	}
	sv.Every("noise_anneal", t.Config.NoiseAnnealInterval, t.annealNoise, false)
	if tk != nil {
		sv.Every(PhaseRevPPL, t.Config.DiagInterval, t.reversePerplexity, true)
	}
	return t, nil
}

// Run trains until the Supervisor reports the end of
// training or stop is closed.
// The stop channel is only checked between iterations.
func (t *Trainer) Run(stop <-chan struct{}) error {
	defer StartStopwatch("training").Stop(t.Logger)
	sv := t.Supervisor
	for !sv.IsEndOfTraining() && sv.State() != Terminated {
		select {
		case <-stop:
			t.Logger.Printf("[INFO] stopping at step %d", sv.GlobalStep())
			return nil
		default:
		}
		if err := t.Iterate(); err != nil {
			return err
		}
	}
	return nil
}

// Iterate runs one training iteration, followed by an
// evaluation when one is due.
//
// An iteration trains the autoencoder for up to NIterAE
// batches, stopping early at the end of a pass, and then
// runs the regularizer.
// Answer-conditioned networks also train the answer
// critic on every autoencoder batch.
func (t *Trainer) Iterate() error {
	sv := t.Supervisor
	err := sv.TrainingContext(func() error {
		for i := 0; i < t.Config.NIterAE; i++ {
			batch, err := t.Data.AE.Next()
			if err != nil {
				return errors.Wrap(err, "next batch")
			}
			err = sv.Dispatch(PhaseAETrain, func() (*results.Record, error) {
				return t.TrainAutoencoder(batch)
			})
			if err != nil {
				return err
			}
			if t.conditioned() {
				err = sv.Dispatch(PhaseAnswerCriticTrain, func() (*results.Record, error) {
					return t.TrainAnswerCritic(batch)
				})
				if err != nil {
					return err
				}
			}
			if t.Data.AE.IsEndOfStep() {
				break
			}
		}
		return t.Regularizer.Train(t, sv)
	})
	if err != nil {
		return err
	}
	if sv.State() != Terminated && sv.IsEvaluation() {
		return sv.EvaluationContext(t.Evaluate)
	}
	return nil
}

// Evaluate scores the autoencoder on an evaluation batch
// in both decode modes and samples from the generator.
func (t *Trainer) Evaluate() error {
	defer StartStopwatch("evaluation").Stop(t.Logger)
	batch, err := t.Data.Eval.Next()
	if err != nil {
		return errors.Wrap(err, "next eval batch")
	}
	for _, mode := range []string{ModeTeacherForcing, ModeFreeRunning} {
		rec, err := t.EvalAutoencoder(batch, mode)
		if err != nil {
			return err
		}
		if mode == ModeTeacherForcing {
			losses := t.Supervisor.Writer.Log.Series(PhaseAETrain, "loss")
			if window := t.Config.EvalInterval; len(losses) > window && window > 0 {
				losses = losses[len(losses)-window:]
			}
			if len(losses) > 0 {
				rec.AddScalar("train_loss_avg", stat.Mean(losses, nil))
			}
		}
		if err := t.Supervisor.Record(rec); err != nil {
			return err
		}
	}
	rec, err := t.Generate()
	if err != nil {
		return err
	}
	return t.Supervisor.Record(rec)
}

// TrainAutoencoder trains the embedding, encoder, and
// decoder to reconstruct a batch from noisy codes.
// The answer encoder, if any, is trained along with them.
//
// The norm of the gradient reaching the code is recorded
// for the critic phase.
func (t *Trainer) TrainAutoencoder(b *Batch) (*results.Record, error) {
	net := t.Network
	modules := []TrainableModule{net.Embed, net.Encoder, net.Decoder}
	if t.conditioned() {
		modules = append(modules, net.AnswerEncoder)
	}
	setTraining(modules...)
	grad := anydiff.NewGrad(parameters(modules...)...)
	n := b.Size()

	code := net.Encoder.Encode(b)
	noisy := net.Encoder.AddNoise(code)
	in := condition(gradhook.Attach(noisy, &t.aeNorm), t.answerCode(b), n)
	out := net.Decoder.TeacherForce(in, b)
	loss := MaskedNLL(out, b.Tgt)
	lossVal := scalarValue(loss)
	if !isFinite(lossVal) {
		return nil, ErrNonFinite
	}
	acc := MaskedAccuracy(out.Output(), b.Tgt)
	cos := meanCosine(code.Output(), noisy.Output(), n)

	loss.Propagate(t.one(), grad)
	t.clipAndStep(grad, modules...)

	rec := results.NewRecord(PhaseAETrain)
	rec.AddScalar("loss", lossVal)
	rec.AddScalar("acc", acc)
	rec.AddScalar("cos_sim", cos)
	rec.AddScalar("code_grad_norm", t.aeNorm.Norm)
	rec.AddScalar("noise_radius", net.Encoder.NoiseRadius)
	return rec, nil
}

// TrainAnswerCritic trains the answer critic to predict a
// batch's answer codes from its questions, scored by
// cosine similarity.
// The answer codes are detached from the answer encoder.
func (t *Trainer) TrainAnswerCritic(b *Batch) (*results.Record, error) {
	net := t.Network
	setTraining(net.AnswerCritic)
	grad := anydiff.NewGrad(net.AnswerCritic.Parameters()...)
	n := b.Size()

	target := t.answerConst(b).Output()
	loss := CosineLoss(net.AnswerCritic.Encode(b), target, n)
	lossVal := scalarValue(loss)
	if !isFinite(lossVal) {
		return nil, ErrNonFinite
	}

	loss.Propagate(t.one(), grad)
	t.clipAndStep(grad, net.AnswerCritic)

	rec := results.NewRecord(PhaseAnswerCriticTrain)
	rec.AddScalar("loss", lossVal)
	rec.AddScalar("cos_sim", 1-lossVal)
	return rec, nil
}

// TrainCritic trains the critic to separate real codes
// from generated ones.
//
// The same backward pass pushes the encoder the other
// way: the gradient reaching the real code is optionally
// rescaled to the autoencoder's gradient norm and then
// flipped.
// Generated codes are detached from the generator, and
// both kinds of code are joined with the same detached
// answer codes.
func (t *Trainer) TrainCritic(b *Batch) (*results.Record, error) {
	net := t.Network
	setTraining(net.Embed, net.Encoder, net.Critic)
	net.Critic.Clamp(t.Config.GANClamp)
	grad := anydiff.NewGrad(parameters(net.Embed, net.Encoder, net.Critic)...)
	n := b.Size()

	ans := t.answerConst(b)
	realCode := gradhook.Attach(net.Encoder.AddNoise(net.Encoder.Encode(b)),
		t.criticHooks())

	noise := anydiff.NewConst(net.Generator.Noise(n))
	fake := anydiff.NewConst(net.Generator.Apply(noise, n).Output())

	dReal := meanRes(net.Critic.Apply(condition(realCode, ans, n), n))
	dFake := meanRes(net.Critic.Apply(condition(fake, ans, n), n))
	loss := anydiff.Sub(dReal, dFake)
	lossVal := scalarValue(loss)
	if !isFinite(lossVal) {
		return nil, ErrNonFinite
	}

	loss.Propagate(t.one(), grad)
	t.clipAndStep(grad, net.Critic, net.Encoder, net.Embed)

	rec := results.NewRecord(PhaseCriticTrain)
	rec.AddScalar("loss", lossVal)
	rec.AddScalar("d_real", scalarValue(dReal))
	rec.AddScalar("d_fake", scalarValue(dFake))
	rec.AddScalar("code_grad_norm", t.criticNorm.Norm)
	return rec, nil
}

// criticHooks builds the chain applied to the gradient
// that the critic sends into the encoder.
func (t *Trainer) criticHooks() gradhook.Chain {
	var hooks gradhook.Chain
	if t.Config.AEGradNorm {
		hooks = append(hooks, gradhook.ScaleTo{Reference: t.aeNorm.Norm, Logger: t.Logger})
	}
	hooks = append(hooks, gradhook.Flip{Weight: t.Config.GANToAE}, &t.criticNorm)
	if t.codeHook != nil {
		hooks = append(hooks, t.codeHook)
	}
	return hooks
}

// TrainGenerator trains the generator against the
// critic.
//
// The batch supplies answer codes for conditioned
// networks and may be nil otherwise, in which case
// BatchSize codes are generated.
func (t *Trainer) TrainGenerator(b *Batch) (*results.Record, error) {
	net := t.Network
	setTraining(net.Generator)
	grad := anydiff.NewGrad(net.Generator.Parameters()...)
	n := t.Config.BatchSize
	if b != nil {
		n = b.Size()
	}

	fake := net.Generator.Apply(anydiff.NewConst(net.Generator.Noise(n)), n)
	loss := meanRes(net.Critic.Apply(condition(fake, t.answerConst(b), n), n))
	lossVal := scalarValue(loss)
	if !isFinite(lossVal) {
		return nil, ErrNonFinite
	}

	loss.Propagate(t.one(), grad)
	t.clipAndStep(grad, net.Generator)

	rec := results.NewRecord(PhaseGenTrain)
	rec.AddScalar("loss", lossVal)
	return rec, nil
}

// TrainCodeVAE trains the reverse network and generator
// as a VAE over detached codes: the reverse network
// encodes a code to a Gaussian, and the generator decodes
// a sample of it back to the code.
func (t *Trainer) TrainCodeVAE(b *Batch) (*results.Record, error) {
	net := t.Network
	c := net.Creator
	setTraining(net.Reverse, net.Generator)
	grad := anydiff.NewGrad(parameters(net.Reverse, net.Generator)...)
	n := b.Size()

	code := anydiff.NewConst(net.Encoder.Encode(b).Output())
	eps := anydiff.NewConst(net.Generator.Noise(n))

	// Both heads and the KL term read the trunk, so it is
	// pooled to run its backward pass once.
	var mse, kl anydiff.Res
	loss := gradhook.Pool(net.Reverse.Hidden(code, n), func(h anydiff.Res) anydiff.Res {
		mu, logVar := net.Reverse.Heads(h, n)
		std := anydiff.Exp(anydiff.Scale(logVar, c.MakeNumeric(0.5)))
		z := anydiff.Add(mu, anydiff.Mul(std, eps))
		recon := net.Generator.Apply(z, n)

		mse = meanRes(anynet.MSE{}.Cost(code, recon, n))

		// KL(N(mu, var) || N(0, 1)), averaged over the batch.
		inner := anydiff.Sub(anydiff.Sub(logVar, anydiff.Mul(mu, mu)), anydiff.Exp(logVar))
		count := anydiff.NewConst(makeVector(c, []float64{float64(inner.Output().Len())}))
		kl = anydiff.Scale(anydiff.Add(anydiff.Sum(inner), count),
			c.MakeNumeric(-0.5/float64(n)))

		return anydiff.Add(mse, anydiff.Scale(kl, c.MakeNumeric(t.Config.KLWeight)))
	})
	lossVal := scalarValue(loss)
	if !isFinite(lossVal) {
		return nil, ErrNonFinite
	}

	loss.Propagate(t.one(), grad)
	t.clipAndStep(grad, net.Reverse, net.Generator)

	rec := results.NewRecord(PhaseCodeVAETrain)
	rec.AddScalar("loss", lossVal)
	rec.AddScalar("mse", scalarValue(mse))
	rec.AddScalar("kl", scalarValue(kl))
	return rec, nil
}

// TrainSecondaryDecoder trains the secondary decoder to
// reconstruct a batch from codes regenerated by the
// reverse network and generator.
//
// The gradient reaching the regenerated code is captured
// and, if Dec2GenWeight is positive, transferred into the
// generator scaled by that weight.
func (t *Trainer) TrainSecondaryDecoder(b *Batch) (*results.Record, error) {
	net := t.Network
	setTraining(net.Decoder2)
	n := b.Size()
	trainGen := t.Config.Dec2GenWeight > 0

	code := anydiff.NewConst(net.Encoder.Encode(b).Output())
	mu, _ := net.Reverse.Apply(code, n)
	capture := gradhook.NewCapture(net.Generator.Apply(mu, n))

	params := net.Decoder2.Parameters()
	if trainGen {
		params = append(params, net.Generator.Parameters()...)
	}
	grad := anydiff.NewGrad(params...)
	capture.Track(grad)

	out := net.Decoder2.TeacherForce(condition(capture.Var, t.answerConst(b), n), b)
	loss := MaskedNLL(out, b.Tgt)
	lossVal := scalarValue(loss)
	if !isFinite(lossVal) {
		return nil, ErrNonFinite
	}
	acc := MaskedAccuracy(out.Output(), b.Tgt)

	loss.Propagate(t.one(), grad)
	if trainGen {
		capture.Release(grad, gradhook.Scale{Factor: t.Config.Dec2GenWeight})
		t.clipAndStep(grad, net.Decoder2, net.Generator)
	} else {
		capture.Take(grad)
		t.clipAndStep(grad, net.Decoder2)
	}

	rec := results.NewRecord(PhaseDec2Train)
	rec.AddScalar("loss", lossVal)
	rec.AddScalar("acc", acc)
	return rec, nil
}

// EvalAutoencoder scores the autoencoder on a batch, with
// every module in evaluation mode.
//
// In ModeTeacherForcing, the decoder sees the true
// previous tokens, and the record also scores codes with
// noise of the current radius added.
// In ModeFreeRunning, it decodes greedily, and positions
// are scored up to the target length.
// Any other mode yields a *DecodeModeError.
func (t *Trainer) EvalAutoencoder(b *Batch, mode string) (*results.Record, error) {
	net := t.Network
	n := b.Size()

	if mode != ModeTeacherForcing && mode != ModeFreeRunning {
		return nil, &DecodeModeError{Mode: mode}
	}
	defer t.evalMode()()

	code := net.Encoder.Encode(b).Output()
	ans := t.answerConst(b)
	in := condition(anydiff.NewConst(code), ans, n)
	var out []*anyseq.Batch
	var decoded [][]int
	if mode == ModeTeacherForcing {
		out = net.Decoder.TeacherForce(in, b).Output()
		decoded = greedyTokens(out, n)
	} else {
		decoded, out = net.Decoder.FreeRun(in.Output(), n, b.MaxLen())
	}

	loss := maskedNLLValue(out, b.Tgt)
	if !isFinite(loss) {
		return nil, errors.Wrap(ErrNonFinite, PhaseAEEval+"/"+mode)
	}

	rec := results.NewRecord(PhaseAEEval + "/" + mode)
	rec.AddScalar("loss", loss)
	rec.AddScalar("acc", MaskedAccuracy(out, b.Tgt))

	var samples []string
	labels := make([]string, n)
	for i := range decoded {
		labels[i] = t.Network.Vocab.Decode(decoded[i])
		if i < t.Config.LogSamples {
			samples = append(samples, t.Network.Vocab.Decode(b.Tgt[i])+" => "+labels[i])
		}
	}
	rec.AddText("samples", samples)
	rec.AddEmbedding("code", rowMajor(code, n), labels)

	if mode == ModeTeacherForcing {
		noisy := net.Encoder.Perturb(code)
		noisyOut := net.Decoder.TeacherForce(condition(anydiff.NewConst(noisy), ans, n), b)
		rec.AddScalar("noisy_loss", maskedNLLValue(noisyOut.Output(), b.Tgt))
		rec.AddScalar("cos_sim", meanCosine(code, noisy, n))
		rec.AddEmbedding("code_noisy", rowMajor(noisy, n), labels)
	}
	if ans != nil {
		pred := net.AnswerCritic.Encode(b)
		rec.AddScalar("ans_cos", 1-scalarValue(CosineLoss(pred, ans.Output(), n)))
	}
	return rec, nil
}

// Generate decodes the generator's codes for a fixed
// batch of noise, with every module in evaluation mode.
func (t *Trainer) Generate() (*results.Record, error) {
	defer t.evalMode()()
	n := t.fixedNoise.Len() / t.Network.Generator.ZSize
	codes, texts := t.sample(t.fixedNoise, t.fixedAnswerCode(0, n))
	rec := results.NewRecord(PhaseGenerated)
	samples := texts
	if len(samples) > t.Config.LogSamples {
		samples = samples[:t.Config.LogSamples]
	}
	rec.AddText("samples", samples)
	rec.AddEmbedding("code", codes, texts)
	return rec, nil
}

// sample decodes the generator's codes for a batch of
// noise, joined with answer codes if ans is non-nil.
func (t *Trainer) sample(noise anyvec.Vector, ans anydiff.Res) ([][]float64, []string) {
	net := t.Network
	n := noise.Len() / net.Generator.ZSize
	codes := net.Generator.Apply(anydiff.NewConst(noise), n).Output()
	in := condition(anydiff.NewConst(codes), ans, n).Output()
	ids, _ := net.Decoder.FreeRun(in, n, t.Config.MaxLen+1)
	texts := make([]string, n)
	for i, row := range ids {
		texts[i] = net.Vocab.Decode(row)
	}
	return rowMajor(codes, n), texts
}

// sampleTexts generates n sentences in batches of at most
// BatchSize, drawing noise from diagRand.
func (t *Trainer) sampleTexts(n int) []string {
	var texts []string
	for len(texts) < n {
		size := essentials.MinInt(t.Config.BatchSize, n-len(texts))
		noise := t.Network.Generator.NoiseFrom(t.diagRand, size)
		_, chunk := t.sample(noise, t.fixedAnswerCode(len(texts), size))
		texts = append(texts, chunk...)
	}
	return texts
}

func (t *Trainer) annealNoise() (*results.Record, error) {
	t.Network.Encoder.NoiseRadius *= t.Config.NoiseAnneal
	return nil, nil
}

func (t *Trainer) reversePerplexity() (*results.Record, error) {
	defer t.evalMode()()
	texts := t.sampleTexts(len(t.Data.HeldOut))
	dir := t.Config.RunDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	dest := filepath.Join(dir, fmt.Sprintf("revppl_%d", t.Supervisor.GlobalStep()))
	ppl, err := t.Toolkit.ReversePerplexity(context.Background(), t.Network.Vocab.Words(),
		texts, t.Data.HeldOut, dest)
	if err != nil {
		return nil, err
	}
	rec := results.NewRecord(PhaseRevPPL)
	rec.AddScalar("rev_ppl", ppl)
	return rec, nil
}

// evalMode puts every module in evaluation mode and
// returns a function that restores the previous modes.
func (t *Trainer) evalMode() func() {
	modules := t.Network.Modules()
	modes := make([]bool, len(modules))
	for i, m := range modules {
		modes[i] = m.Training()
		m.SetMode(false)
	}
	return func() {
		for i, m := range modules {
			m.SetMode(modes[i])
		}
	}
}

func (t *Trainer) conditioned() bool {
	return t.Network.AnswerEncoder != nil
}

// answerCode encodes the answers of b, or returns nil for
// a network without answer conditioning.
func (t *Trainer) answerCode(b *Batch) anydiff.Res {
	if !t.conditioned() {
		return nil
	}
	if b == nil || b.Ans == nil {
		panic("answer-conditioned network needs a batch with answers")
	}
	return t.Network.AnswerEncoder.EncodeRows(b.Ans, b.AnsLengths)
}

// answerConst is like answerCode, but the result is
// detached from the answer encoder.
func (t *Trainer) answerConst(b *Batch) anydiff.Res {
	if ans := t.answerCode(b); ans != nil {
		return anydiff.NewConst(ans.Output())
	}
	return nil
}

// fixedAnswerCode encodes n of the fixed answers, cycling
// through them from the given offset.
// It returns nil for a network without answer
// conditioning.
func (t *Trainer) fixedAnswerCode(offset, n int) anydiff.Res {
	if !t.conditioned() {
		return nil
	}
	answers := t.Data.FixedAnswers
	rows := make([][]int, n)
	lengths := make([]int, n)
	for i := range rows {
		rows[i] = answers[(offset+i)%len(answers)]
		lengths[i] = len(rows[i])
	}
	return anydiff.NewConst(t.Network.AnswerEncoder.EncodeRows(rows, lengths).Output())
}

// condition joins a batch of n codes with answer codes.
// A nil ans leaves the codes alone.
func condition(code, ans anydiff.Res, n int) anydiff.Res {
	if ans == nil {
		return code
	}
	return concatRows(code, ans, n)
}

// clipAndStep clips the gradient of each module and then
// steps its optimizer.
func (t *Trainer) clipAndStep(g anydiff.Grad, modules ...TrainableModule) {
	for _, m := range modules {
		m.ClipGradNorm(g, t.Config.Clip)
		t.Network.Optimizer(m).Step(g)
	}
}

func (t *Trainer) one() anyvec.Vector {
	return makeVector(t.Network.Creator, []float64{1})
}

func setTraining(modules ...TrainableModule) {
	for _, m := range modules {
		m.SetMode(true)
	}
}

func parameters(modules ...TrainableModule) []*anydiff.Var {
	var res []*anydiff.Var
	for _, m := range modules {
		res = append(res, m.Parameters()...)
	}
	return res
}

// greedyTokens picks the most likely token for every row
// at every timestep of a fully-present sequence.
func greedyTokens(out []*anyseq.Batch, n int) [][]int {
	res := make([][]int, n)
	for _, batch := range out {
		for i, row := range rowMajor(batch.Packed, n) {
			res[i] = append(res[i], argmax(row))
		}
	}
	return res
}

// meanCosine computes the mean cosine similarity between
// corresponding rows of two packed matrices.
// Rows with a zero norm are skipped.
func meanCosine(a, b anyvec.Vector, n int) float64 {
	rowsA, rowsB := rowMajor(a, n), rowMajor(b, n)
	var sims []float64
	for i := range rowsA {
		normA, normB := floats.Norm(rowsA[i], 2), floats.Norm(rowsB[i], 2)
		if normA == 0 || normB == 0 {
			continue
		}
		sims = append(sims, floats.Dot(rowsA[i], rowsB[i])/(normA*normB))
	}
	if len(sims) == 0 {
		return 0
	}
	return stat.Mean(sims, nil)
}
