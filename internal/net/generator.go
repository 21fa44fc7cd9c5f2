package net

import (
	"fmt"
	"math/rand/v2"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/FlavioCFOliveira/GoNeuronHD/internal/activations"
	"github.com/FlavioCFOliveira/GoNeuronHD/internal/layer"
	"github.com/FlavioCFOliveira/GoNeuronHD/internal/spatial"
)

// PointwiseGenerator is a coarse-to-fine generator of 1x1 stacks. The global
// stage maps the input to an image; every local enhancer refines the previous
// image from the input and that image. Submodules are named "model" for the
// global stage and "model1".."modelN" for the enhancers.
type PointwiseGenerator struct {
	in, out int
	stages  []*layer.Pointwise
}

// NewPointwiseGenerator builds a generator with nLocal enhancers and hidden
// channels per stage. Outputs are in [-1, 1].
func NewPointwiseGenerator(in, out, hidden, nLocal int, rng *rand.Rand) *PointwiseGenerator {
	g := &PointwiseGenerator{in: in, out: out}
	g.stages = append(g.stages, layer.NewPointwise(in, out,
		layer.NewDense(in, hidden, activations.ReLU{}, rng),
		layer.NewDense(hidden, out, activations.Tanh{}, rng),
	))
	for i := 0; i < nLocal; i++ {
		g.stages = append(g.stages, layer.NewPointwise(in+out, out,
			layer.NewDense(in+out, hidden, activations.ReLU{}, rng),
			layer.NewDense(hidden, out, activations.Tanh{}, rng),
		))
	}
	return g
}

// Forward maps (N, in, H, W) to (N, out, H, W).
func (g *PointwiseGenerator) Forward(x *tensor.Dense) (*tensor.Dense, error) {
	outs, err := g.forwardStages(x)
	if err != nil {
		return nil, err
	}
	return outs[len(outs)-1], nil
}

// forwardStages returns the input of every stage followed by the final image.
func (g *PointwiseGenerator) forwardStages(x *tensor.Dense) ([]*tensor.Dense, error) {
	if _, c, _, _ := spatial.Dims(x); c != g.in {
		return nil, errors.Errorf("net: generator expects %d channels, got %d", g.in, c)
	}
	inputs := []*tensor.Dense{x}
	y := g.stages[0].Forward(x)
	for _, s := range g.stages[1:] {
		in, err := spatial.ConcatChannels(x, y)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, in)
		y = s.Forward(in)
	}
	return append(inputs, y), nil
}

// Backward accumulates parameter gradients for input x given the gradient
// of the loss with respect to Forward(x), and returns the gradient with
// respect to x.
func (g *PointwiseGenerator) Backward(x, grad *tensor.Dense) (*tensor.Dense, error) {
	inputs, err := g.forwardStages(x)
	if err != nil {
		return nil, err
	}
	n, _, h, w := spatial.Dims(x)
	xGrad := spatial.New(n, g.in, h, w)
	acc := spatial.Data(xGrad)
	for i := len(g.stages) - 1; i >= 0; i-- {
		inGrad := g.stages[i].Backward(inputs[i], grad)
		src := spatial.Data(inGrad)
		if i == 0 {
			for j, v := range src {
				acc[j] += v
			}
			break
		}
		// a stage input is x followed by the previous image
		grad = spatial.New(n, g.out, h, w)
		dst := spatial.Data(grad)
		for b := 0; b < n; b++ {
			for ch := 0; ch < g.in+g.out; ch++ {
				from := spatial.Offset(b, ch, 0, 0, g.in+g.out, h, w)
				if ch < g.in {
					to := spatial.Offset(b, ch, 0, 0, g.in, h, w)
					for k, v := range src[from : from+h*w] {
						acc[to+k] += v
					}
					continue
				}
				to := spatial.Offset(b, ch-g.in, 0, 0, g.out, h, w)
				copy(dst[to:to+h*w], src[from:from+h*w])
			}
		}
	}
	return xGrad, nil
}

// Submodules returns the stages with their names.
func (g *PointwiseGenerator) Submodules() []Named {
	named := make([]Named, len(g.stages))
	for i, s := range g.stages {
		name := "model"
		if i > 0 {
			name = fmt.Sprintf("model%d", i)
		}
		named[i] = Named{Name: name, Module: s}
	}
	return named
}

// Params returns the parameters of every stage (copy).
func (g *PointwiseGenerator) Params() []float64 { return Params(g.modules()...) }

// SetParams loads the parameters of every stage.
func (g *PointwiseGenerator) SetParams(p []float64) { SetParams(p, g.modules()...) }

// Gradients returns the gradients of every stage (copy).
func (g *PointwiseGenerator) Gradients() []float64 { return Gradients(g.modules()...) }

func (g *PointwiseGenerator) modules() []Module {
	ms := make([]Module, len(g.stages))
	for i, s := range g.stages {
		ms[i] = s
	}
	return ms
}
