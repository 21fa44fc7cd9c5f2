package pix2pixhd

import (
	"context"
	"math/rand/v2"

	"go.uber.org/zap"

	"github.com/FlavioCFOliveira/GoNeuronHD/internal/config"
	"github.com/FlavioCFOliveira/GoNeuronHD/internal/feature"
	"github.com/FlavioCFOliveira/GoNeuronHD/internal/logging"
	"github.com/FlavioCFOliveira/GoNeuronHD/internal/loss"
	"github.com/FlavioCFOliveira/GoNeuronHD/internal/model"
	"github.com/FlavioCFOliveira/GoNeuronHD/internal/net"
	"github.com/FlavioCFOliveira/GoNeuronHD/internal/spatial"
)

// Re-export common types and functions for easier access
type (
	Model      = model.Model
	Networks   = model.Networks
	Options    = config.Options
	Terms      = loss.Terms
	ClassID    = spatial.ClassID
	Label      = spatial.Label
	Vectors    = feature.Vectors
	Stats      = feature.Stats
	Dictionary = feature.Dictionary

	Generator     = net.Generator
	Discriminator = net.Discriminator
	Encoder       = net.Encoder
	Perceptual    = loss.Perceptual
)

// Errors
var (
	ErrNotImplemented = model.ErrNotImplemented
	ErrClassAbsent    = feature.ErrClassAbsent
	ErrNoEquivalent   = feature.ErrNoEquivalent
)

// Options
func DefaultOptions() Options {
	return config.Default()
}

func LoadOptions(path string) (Options, error) {
	return config.Load(path)
}

// Model creation
func New(opts Options, nets Networks, log *zap.Logger) (*Model, error) {
	return model.New(opts, nets, log)
}

// ReferenceNetworks builds pointwise networks sized from opts: a generator
// with opts.NLocalEnhancers refinement stages, a discriminator when
// training, and an encoder when features are generated.
func ReferenceNetworks(opts Options, rng *rand.Rand) Networks {
	nets := Networks{
		G: net.NewPointwiseGenerator(opts.GeneratorInputNC(), opts.OutputNC, opts.NGF, opts.NLocalEnhancers, rng),
	}
	if opts.IsTrain {
		nets.D = net.NewPointwiseDiscriminator(opts.DiscriminatorInputNC(), opts.NDF, opts.NLayersD, opts.NumD,
			opts.UseSigmoid(), !opts.NoGANFeatLoss, rng)
	}
	if opts.GenFeatures() {
		nets.E = net.NewPointwiseEncoder(opts.OutputNC, opts.FeatNum, opts.NEF, rng)
	}
	return nets
}

// Logging
func Logger(verbose bool) *zap.Logger {
	return logging.New(verbose)
}

// Feature dictionaries
func Cluster(ctx context.Context, stats Stats, k, featNum, workers int) (Dictionary, error) {
	return feature.Cluster(ctx, stats, k, featNum, workers)
}

func Averages(stats Stats, featNum int) Vectors {
	return feature.Averages(stats, featNum)
}

func SaveDictionary(path string, d Dictionary) error {
	return feature.SaveFile(path, d)
}

func LoadDictionary(path string) (Dictionary, error) {
	return feature.LoadFile(path)
}
