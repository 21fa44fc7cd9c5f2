package net

import (
	"math/rand/v2"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/FlavioCFOliveira/GoNeuronHD/internal/activations"
	"github.com/FlavioCFOliveira/GoNeuronHD/internal/layer"
	"github.com/FlavioCFOliveira/GoNeuronHD/internal/spatial"
)

// PointwiseDiscriminator is a multi-scale discriminator of 1x1 stacks. Scale
// s sees the input average-pooled s times by a factor of two.
type PointwiseDiscriminator struct {
	in         int
	scales     []*layer.Pointwise
	intermFeat bool
}

// NewPointwiseDiscriminator builds numD scales of nLayers hidden layers with
// a 0.2 leaky slope. useSigmoid ends every scale with a sigmoid, as the
// binary cross entropy criterion needs. With intermFeat the prediction of
// each scale carries every hidden map, as feature matching needs.
func NewPointwiseDiscriminator(in, hidden, nLayers, numD int, useSigmoid, intermFeat bool, rng *rand.Rand) *PointwiseDiscriminator {
	var last activations.Activation = activations.Linear{}
	if useSigmoid {
		last = activations.Sigmoid{}
	}
	d := &PointwiseDiscriminator{in: in, intermFeat: intermFeat}
	for s := 0; s < numD; s++ {
		var layers []layer.Layer
		width := in
		for l := 0; l < nLayers; l++ {
			layers = append(layers, layer.NewDense(width, hidden, activations.NewLeakyReLU(0.2), rng))
			width = hidden
		}
		layers = append(layers, layer.NewDense(width, 1, last, rng))
		d.scales = append(d.scales, layer.NewPointwise(in, 1, layers...))
	}
	return d
}

// Forward returns one output list per scale.
func (d *PointwiseDiscriminator) Forward(x *tensor.Dense) (Prediction, error) {
	if _, c, _, _ := spatial.Dims(x); c != d.in {
		return nil, errors.Errorf("net: discriminator expects %d channels, got %d", d.in, c)
	}
	pred := make(Prediction, len(d.scales))
	cur := x
	for s, scale := range d.scales {
		if s > 0 {
			cur = Downsample(cur)
		}
		if d.intermFeat {
			pred[s] = scale.ForwardAll(cur)
		} else {
			pred[s] = []*tensor.Dense{scale.Forward(cur)}
		}
	}
	return pred, nil
}

// Backward accumulates parameter gradients from the gradient with respect
// to the final output of every scale, as returned by GANLoss.Backward, and
// returns the gradient with respect to x. Each call replaces the gradients
// of the previous one.
func (d *PointwiseDiscriminator) Backward(x *tensor.Dense, grads []*tensor.Dense) (*tensor.Dense, error) {
	if len(grads) != len(d.scales) {
		return nil, errors.Errorf("net: %d scale gradients for %d scales", len(grads), len(d.scales))
	}
	inputs := make([]*tensor.Dense, len(d.scales))
	cur := x
	for s := range d.scales {
		if s > 0 {
			cur = Downsample(cur)
		}
		inputs[s] = cur
	}

	var carry *tensor.Dense
	for s := len(d.scales) - 1; s >= 0; s-- {
		g := d.scales[s].Backward(inputs[s], grads[s])
		if carry != nil {
			dst := spatial.Data(g)
			for i, v := range spatial.Data(carry) {
				dst[i] += v
			}
		}
		carry = g
		if s > 0 {
			_, _, h, w := spatial.Dims(inputs[s-1])
			carry = downsampleGrad(g, h, w)
		}
	}
	return carry, nil
}

// Params returns the parameters of every scale (copy).
func (d *PointwiseDiscriminator) Params() []float64 { return Params(d.modules()...) }

// SetParams loads the parameters of every scale.
func (d *PointwiseDiscriminator) SetParams(p []float64) { SetParams(p, d.modules()...) }

// Gradients returns the gradients of every scale (copy).
func (d *PointwiseDiscriminator) Gradients() []float64 { return Gradients(d.modules()...) }

func (d *PointwiseDiscriminator) modules() []Module {
	ms := make([]Module, len(d.scales))
	for i, s := range d.scales {
		ms[i] = s
	}
	return ms
}

// Downsample average-pools every 2x2 block. Odd trailing rows and columns
// are dropped; maps smaller than 2x2 are returned as copies.
func Downsample(x *tensor.Dense) *tensor.Dense {
	n, c, h, w := spatial.Dims(x)
	if h < 2 || w < 2 {
		return spatial.Clone(x)
	}
	oh, ow := h/2, w/2
	src := spatial.Data(x)
	out := spatial.New(n, c, oh, ow)
	dst := spatial.Data(out)
	for b := 0; b < n; b++ {
		for ch := 0; ch < c; ch++ {
			for y := 0; y < oh; y++ {
				for xx := 0; xx < ow; xx++ {
					sum := src[spatial.Offset(b, ch, 2*y, 2*xx, c, h, w)] +
						src[spatial.Offset(b, ch, 2*y, 2*xx+1, c, h, w)] +
						src[spatial.Offset(b, ch, 2*y+1, 2*xx, c, h, w)] +
						src[spatial.Offset(b, ch, 2*y+1, 2*xx+1, c, h, w)]
					dst[spatial.Offset(b, ch, y, xx, c, oh, ow)] = sum / 4
				}
			}
		}
	}
	return out
}

// downsampleGrad maps a gradient with respect to Downsample's output back to
// an input of size h x w.
func downsampleGrad(grad *tensor.Dense, h, w int) *tensor.Dense {
	if h < 2 || w < 2 {
		return spatial.Clone(grad)
	}
	n, c, oh, ow := spatial.Dims(grad)
	src := spatial.Data(grad)
	out := spatial.New(n, c, h, w)
	dst := spatial.Data(out)
	for b := 0; b < n; b++ {
		for ch := 0; ch < c; ch++ {
			for y := 0; y < oh; y++ {
				for xx := 0; xx < ow; xx++ {
					v := src[spatial.Offset(b, ch, y, xx, c, oh, ow)] / 4
					dst[spatial.Offset(b, ch, 2*y, 2*xx, c, h, w)] = v
					dst[spatial.Offset(b, ch, 2*y, 2*xx+1, c, h, w)] = v
					dst[spatial.Offset(b, ch, 2*y+1, 2*xx, c, h, w)] = v
					dst[spatial.Offset(b, ch, 2*y+1, 2*xx+1, c, h, w)] = v
				}
			}
		}
	}
	return out
}
