// Package model drives the generator, discriminator and feature encoder of a
// conditional image synthesis GAN. It owns input encoding, the loss
// aggregation of a forward pass, the optimizers with their learning rate
// schedule, checkpoints, and the inference variants that inject sampled,
// supplied or swapped appearance features.
package model

import (
	"fmt"
	"io/fs"
	"math/rand/v2"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorgonia.org/tensor"

	"github.com/FlavioCFOliveira/GoNeuronHD/internal/config"
	"github.com/FlavioCFOliveira/GoNeuronHD/internal/encode"
	"github.com/FlavioCFOliveira/GoNeuronHD/internal/feature"
	"github.com/FlavioCFOliveira/GoNeuronHD/internal/loss"
	"github.com/FlavioCFOliveira/GoNeuronHD/internal/net"
	"github.com/FlavioCFOliveira/GoNeuronHD/internal/opt"
	"github.com/FlavioCFOliveira/GoNeuronHD/internal/spatial"
)

// ErrNotImplemented is returned by New for option combinations the model
// does not support.
var ErrNotImplemented = errors.New("model: not implemented")

const dictionaryCacheSize = 4

// Networks are the collaborators a Model drives.
type Networks struct {
	G net.Generator
	// D is required when training.
	D net.Discriminator
	// E is required when features are produced by an encoder.
	E net.Encoder

	// Perceptual is required when the perceptual loss is enabled without
	// the style loss; Style when the style loss is enabled.
	Perceptual loss.Perceptual
	Style      loss.StylePerceptual

	// Pool overrides the discriminator history pool built from PoolSize.
	Pool net.Pool
}

// Model is not safe for concurrent use.
type Model struct {
	opts config.Options
	nets Networks
	log  *zap.Logger
	rng  *rand.Rand

	encoder      encode.Encoder
	losses       loss.Aggregator
	pool         net.Pool
	checkpoints  net.Checkpoints
	dictionaries *feature.Cache
	equivalence  feature.Equivalence
	averages     feature.Vectors

	optG, optD *opt.Adam
	schedule   *opt.LinearDecay

	// pooled is the pooled discriminator input of the last Forward, consumed
	// by the next StepD.
	pooled *tensor.Dense
}

// New validates opts, loads checkpoints when resuming or testing, and sets
// up the optimizers when training. A nil log discards output.
func New(opts config.Options, nets Networks, log *zap.Logger) (*Model, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	opts.Resolve()
	if log == nil {
		log = zap.NewNop()
	}
	if nets.G == nil {
		return nil, errors.New("model: generator is required")
	}
	if opts.IsTrain && nets.D == nil {
		return nil, errors.New("model: discriminator is required for training")
	}
	if opts.GenFeatures() && nets.E == nil {
		return nil, errors.New("model: encoder is required to generate features")
	}
	if opts.IsTrain && opts.PoolSize > 0 && len(opts.GPUIDs) > 1 {
		return nil, errors.Wrap(ErrNotImplemented, "fake pool with multiple devices")
	}

	dictionaries, err := feature.NewCache(dictionaryCacheSize)
	if err != nil {
		return nil, err
	}
	m := &Model{
		opts: opts,
		nets: nets,
		log:  log,
		encoder: encode.Encoder{
			LabelNC:  opts.LabelNC,
			Instance: !opts.NoInstance,
			Half:     opts.DataType == 16,
		},
		checkpoints:  net.Checkpoints{Dir: opts.ExpDir()},
		dictionaries: dictionaries,
		equivalence:  feature.DefaultEquivalence(),
	}
	if opts.Seed != 0 {
		m.rng = rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))
	}
	if opts.Equivalence != nil {
		m.equivalence = make(feature.Equivalence, len(opts.Equivalence))
		for from, to := range opts.Equivalence {
			m.equivalence[spatial.ClassID(from)] = spatial.ClassID(to)
		}
	}
	log.Debug("networks initialized",
		zap.Int("generator_input_nc", opts.GeneratorInputNC()),
		zap.Int("discriminator_input_nc", opts.DiscriminatorInputNC()),
		zap.Bool("encoder", opts.GenFeatures()),
		zap.Bool("auto_tune", opts.Backend.AutoTune))

	if !opts.IsTrain || opts.ContinueTrain || opts.LoadPretrain != "" {
		if err := m.load(); err != nil {
			return nil, err
		}
	}
	if opts.IsTrain {
		if err := m.initTraining(); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// load reads the networks at WhichEpoch. Only the generator is mandatory.
func (m *Model) load() error {
	dir := m.opts.ExpDir()
	if m.opts.IsTrain {
		dir = m.opts.PretrainDir()
	}
	store := net.Checkpoints{Dir: dir}
	roles := []struct {
		role net.Role
		m    net.Module
		on   bool
	}{
		{net.RoleG, m.nets.G, true},
		{net.RoleD, m.nets.D, m.opts.IsTrain},
		{net.RoleE, m.nets.E, m.opts.GenFeatures()},
	}
	for _, r := range roles {
		if !r.on {
			continue
		}
		err := store.Load(r.m, r.role, m.opts.WhichEpoch)
		switch {
		case err == nil:
			m.log.Info("loaded network", zap.String("role", string(r.role)), zap.String("epoch", m.opts.WhichEpoch))
		case errors.Is(err, fs.ErrNotExist) && r.role != net.RoleG:
			m.log.Warn("network checkpoint missing, starting from scratch",
				zap.String("role", string(r.role)), zap.String("dir", dir))
		case errors.Is(err, fs.ErrNotExist):
			return errors.Wrap(err, "model: generator must exist")
		default:
			return err
		}
	}
	return nil
}

func (m *Model) initTraining() error {
	o := m.opts
	flags := loss.Flags{
		GANFeat: !o.NoGANFeatLoss,
		VGG:     !o.NoVGGLoss,
		Style:   !o.NoStyleLoss,
		Recon:   !o.NoReconLoss,
	}
	switch {
	case flags.Style && m.nets.Style == nil:
		return errors.New("model: style loss enabled without a style criterion")
	case !flags.Style && flags.VGG && m.nets.Perceptual == nil:
		return errors.New("model: perceptual loss enabled without a criterion")
	}
	m.losses = loss.Aggregator{
		Flags: flags,
		GAN:   loss.NewGANLoss(!o.NoLSGAN),
		FeatureMatching: loss.FeatureMatching{
			NumD:     o.NumD,
			NLayersD: o.NLayersD,
			Lambda:   o.LambdaFeat,
		},
		Perceptual:  m.nets.Perceptual,
		Style:       m.nets.Style,
		LambdaFeat:  o.LambdaFeat,
		LambdaStyle: o.LambdaStyle,
		LambdaRecon: o.LambdaRecon,
	}

	m.pool = m.nets.Pool
	if m.pool == nil {
		if o.PoolSize > 0 {
			m.pool = net.NewHistoryPool(o.PoolSize, m.rng)
		} else {
			m.pool = net.NopPool{}
		}
	}

	m.schedule = opt.NewLinearDecay(o.LR, o.NiterDecay)
	params, err := m.generatorParams(o.NiterFixGlobal == 0)
	if err != nil {
		return err
	}
	m.optG = opt.NewAdam(o.LR, o.Beta1, o.Beta2, params...)
	m.optD = opt.NewAdam(o.LR, o.Beta1, o.Beta2, m.nets.D)
	return nil
}

// generatorParams lists what the generator optimizer manages: the whole
// generator, or only the finest local enhancer while the global network is
// fixed. Encoder parameters are appended when features are generated.
func (m *Model) generatorParams(all bool) ([]opt.Parameterized, error) {
	var params []opt.Parameterized
	if all {
		params = append(params, m.nets.G)
	} else {
		staged, ok := m.nets.G.(net.Staged)
		if !ok {
			return nil, errors.New("model: generator has no submodules to fine-tune")
		}
		prefix := fmt.Sprintf("model%d", m.opts.NLocalEnhancers)
		var names []string
		for _, s := range staged.Submodules() {
			if strings.HasPrefix(s.Name, prefix) {
				params = append(params, s.Module)
				names = append(names, s.Name)
			}
		}
		if len(params) == 0 {
			return nil, errors.Errorf("model: no generator submodule matches %q", prefix)
		}
		m.log.Info("only training the local enhancer network",
			zap.Int("epochs", m.opts.NiterFixGlobal),
			zap.Strings("layers", names))
	}
	if m.opts.GenFeatures() {
		params = append(params, m.nets.E)
	}
	return params, nil
}

// Options returns the resolved options.
func (m *Model) Options() config.Options { return m.opts }

// LossNames returns the names of the terms Forward reports, in order.
func (m *Model) LossNames() []string { return m.losses.Names() }

// Save writes every network at epoch.
func (m *Model) Save(epoch string) error {
	if err := m.checkpoints.Save(m.nets.G, net.RoleG, epoch); err != nil {
		return err
	}
	if m.nets.D != nil {
		if err := m.checkpoints.Save(m.nets.D, net.RoleD, epoch); err != nil {
			return err
		}
	}
	if m.opts.GenFeatures() {
		if err := m.checkpoints.Save(m.nets.E, net.RoleE, epoch); err != nil {
			return err
		}
	}
	return nil
}

func (m *Model) requireTraining(op string) error {
	if !m.opts.IsTrain {
		return errors.Errorf("model: %s needs a training model", op)
	}
	return nil
}

// UpdateFixedParams switches the generator optimizer from the local
// enhancer alone to the whole generator. The optimizer state restarts.
func (m *Model) UpdateFixedParams() error {
	if err := m.requireTraining("UpdateFixedParams"); err != nil {
		return err
	}
	params, err := m.generatorParams(true)
	if err != nil {
		return err
	}
	m.optG = opt.NewAdam(m.schedule.LR(), m.opts.Beta1, m.opts.Beta2, params...)
	m.log.Info("now also fine-tuning the global generator")
	return nil
}

// UpdateLearningRate lowers the learning rate of both optimizers by one
// linear decay step and returns the new rate.
func (m *Model) UpdateLearningRate() (float64, error) {
	if err := m.requireTraining("UpdateLearningRate"); err != nil {
		return 0, err
	}
	old := m.schedule.LR()
	lr := m.schedule.Step()
	opt.Apply(lr, m.optD, m.optG)
	m.log.Info("update learning rate", zap.Float64("old", old), zap.Float64("new", lr))
	return lr, nil
}

// SetContinueLearningRate overrides the learning rate of both optimizers,
// as when resuming at a given epoch.
func (m *Model) SetContinueLearningRate(lr float64) error {
	if err := m.requireTraining("SetContinueLearningRate"); err != nil {
		return err
	}
	m.schedule.Set(lr)
	opt.Apply(lr, m.optD, m.optG)
	m.log.Info("set continue learning rate", zap.Float64("lr", lr))
	return nil
}

// LearningRate returns the tracked learning rate.
func (m *Model) LearningRate() float64 {
	if m.schedule == nil {
		return 0
	}
	return m.schedule.LR()
}
