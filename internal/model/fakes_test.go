package model

import (
	"math/rand/v2"
	"testing"

	"gorgonia.org/tensor"

	"github.com/FlavioCFOliveira/GoNeuronHD/internal/config"
	"github.com/FlavioCFOliveira/GoNeuronHD/internal/net"
	"github.com/FlavioCFOliveira/GoNeuronHD/internal/spatial"
)

// recordingGenerator returns zeros and keeps every input it sees.
type recordingGenerator struct {
	outNC  int
	inputs []*tensor.Dense
}

func (g *recordingGenerator) Forward(x *tensor.Dense) (*tensor.Dense, error) {
	g.inputs = append(g.inputs, spatial.Clone(x))
	n, _, h, w := spatial.Dims(x)
	return spatial.New(n, g.outNC, h, w), nil
}

func (g *recordingGenerator) last() *tensor.Dense { return g.inputs[len(g.inputs)-1] }

func (*recordingGenerator) Params() []float64    { return []float64{} }
func (*recordingGenerator) SetParams([]float64)  {}
func (*recordingGenerator) Gradients() []float64 { return []float64{} }

// channelEncoder uses the first featNum image channels as features.
type channelEncoder struct {
	featNum int
	fast    int
}

func (e *channelEncoder) Forward(image, _ *tensor.Dense) (*tensor.Dense, error) {
	return spatial.Channels(image, 0, e.featNum)
}

func (e *channelEncoder) ForwardFast(image, seg *tensor.Dense) (*tensor.Dense, error) {
	e.fast++
	return e.Forward(image, seg)
}

func (*channelEncoder) Params() []float64    { return []float64{} }
func (*channelEncoder) SetParams([]float64)  {}
func (*channelEncoder) Gradients() []float64 { return []float64{} }

// countingPool passes images through and counts queries.
type countingPool struct{ queries int }

func (p *countingPool) Query(images *tensor.Dense) *tensor.Dense {
	p.queries++
	return images
}

type constPerceptual float64

func (c constPerceptual) Distance(_, _ *tensor.Dense) (float64, error) { return float64(c), nil }

type constStyle struct{ content, style float64 }

func (c constStyle) Distances(_, _ *tensor.Dense) (float64, float64, error) {
	return c.content, c.style, nil
}

// testOptions is a small training configuration with every auxiliary loss
// off.
func testOptions(t *testing.T) config.Options {
	t.Helper()
	o := config.Default()
	o.Name = "test"
	o.CheckpointsDir = t.TempDir()
	o.LabelNC = 4
	o.OutputNC = 3
	o.FeatNum = 2
	o.NumD = 2
	o.NLayersD = 1
	o.NoGANFeatLoss = true
	o.NoVGGLoss = true
	o.NoStyleLoss = true
	o.NoReconLoss = true
	o.Seed = 11
	return o
}

func referenceNets(o config.Options, seed uint64) Networks {
	rng := rand.New(rand.NewPCG(seed, seed+1))
	return Networks{
		G: net.NewPointwiseGenerator(o.GeneratorInputNC(), o.OutputNC, 4, o.NLocalEnhancers, rng),
		D: net.NewPointwiseDiscriminator(o.DiscriminatorInputNC(), 4, o.NLayersD, o.NumD, o.UseSigmoid(), !o.NoGANFeatLoss, rng),
	}
}

// batch returns a 1x1x2x4 label map, a matching instance map and a 1x3x2x4
// image.
func batch() (label, inst, image *tensor.Dense) {
	label = spatial.FromSlice([]float64{
		0, 1, 1, 2,
		0, 1, 3, 2,
	}, 1, 1, 2, 4)
	inst = spatial.FromSlice([]float64{
		0, 1000, 1000, 2000,
		0, 1001, 3000, 2000,
	}, 1, 1, 2, 4)
	image = spatial.New(1, 3, 2, 4)
	for i := range spatial.Data(image) {
		spatial.Data(image)[i] = float64(i%5)/5 - 0.4
	}
	return label, inst, image
}
