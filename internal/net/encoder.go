package net

import (
	"math/rand/v2"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/FlavioCFOliveira/GoNeuronHD/internal/activations"
	"github.com/FlavioCFOliveira/GoNeuronHD/internal/layer"
	"github.com/FlavioCFOliveira/GoNeuronHD/internal/spatial"
)

// PointwiseEncoder encodes an image with a 1x1 stack and averages the result
// over every region of the segmentation map, so each instance carries one
// feature vector.
type PointwiseEncoder struct {
	in, featNum int
	stack       *layer.Pointwise
}

// NewPointwiseEncoder builds an encoder from in image channels to featNum
// feature channels.
func NewPointwiseEncoder(in, featNum, hidden int, rng *rand.Rand) *PointwiseEncoder {
	return &PointwiseEncoder{
		in:      in,
		featNum: featNum,
		stack: layer.NewPointwise(in, featNum,
			layer.NewDense(in, hidden, activations.ReLU{}, rng),
			layer.NewDense(hidden, featNum, activations.Tanh{}, rng),
		),
	}
}

func (e *PointwiseEncoder) check(image, seg *tensor.Dense) error {
	n, c, h, w := spatial.Dims(image)
	sn, sc, sh, sw := spatial.Dims(seg)
	if c != e.in {
		return errors.Errorf("net: encoder expects %d channels, got %d", e.in, c)
	}
	if sc != 1 || sn != n || sh != h || sw != w {
		return errors.Errorf("net: segmentation map %v does not match image %v", seg.Shape(), image.Shape())
	}
	return nil
}

// Forward encodes every pixel and replaces it with the mean encoding of its
// region in seg.
func (e *PointwiseEncoder) Forward(image, seg *tensor.Dense) (*tensor.Dense, error) {
	if err := e.check(image, seg); err != nil {
		return nil, err
	}
	return regionMean(e.stack.Forward(image), seg)
}

// Backward accumulates parameter gradients given the gradient of the loss
// with respect to Forward(image, seg). Region averaging is its own adjoint,
// so grad is averaged over every region before entering the stack.
func (e *PointwiseEncoder) Backward(image, seg, grad *tensor.Dense) error {
	if err := e.check(image, seg); err != nil {
		return err
	}
	if _, c, _, _ := spatial.Dims(grad); c != e.featNum {
		return errors.Errorf("net: encoder gradient has %d channels, want %d", c, e.featNum)
	}
	pooled, err := regionMean(grad, seg)
	if err != nil {
		return err
	}
	e.stack.Backward(image, pooled)
	return nil
}

// ForwardFast encodes the mean colour of every region once instead of every
// pixel. It matches Forward when the stack is affine and is an approximation
// otherwise.
func (e *PointwiseEncoder) ForwardFast(image, seg *tensor.Dense) (*tensor.Dense, error) {
	if err := e.check(image, seg); err != nil {
		return nil, err
	}
	regions, err := spatial.LabelRegions(seg)
	if err != nil {
		return nil, err
	}
	pooled, err := regionMean(image, seg)
	if err != nil {
		return nil, err
	}
	n, _, h, w := spatial.Dims(image)
	out := spatial.New(n, e.featNum, h, w)
	dst := spatial.Data(out)
	for _, id := range regions.Keys() {
		positions := regions.Positions(id)
		b, y, x := regions.Pixel(positions[0])
		px := spatial.New(1, e.in, 1, 1)
		for ch := 0; ch < e.in; ch++ {
			spatial.Data(px)[ch] = spatial.Data(pooled)[spatial.Offset(b, ch, y, x, e.in, h, w)]
		}
		v := spatial.Data(e.stack.Forward(px))
		for _, pos := range positions {
			b, y, x := regions.Pixel(pos)
			for k, val := range v {
				dst[spatial.Offset(b, k, y, x, e.featNum, h, w)] = val
			}
		}
	}
	return out, nil
}

// regionMean replaces every pixel of feat by the channel mean over its region
// in seg. Regions span the whole batch, as in instance-wise pooling.
func regionMean(feat, seg *tensor.Dense) (*tensor.Dense, error) {
	regions, err := spatial.LabelRegions(seg)
	if err != nil {
		return nil, err
	}
	n, c, h, w := spatial.Dims(feat)
	src := spatial.Data(feat)
	out := spatial.New(n, c, h, w)
	dst := spatial.Data(out)
	mean := make([]float64, c)
	for _, id := range regions.Keys() {
		positions := regions.Positions(id)
		clear(mean)
		for _, pos := range positions {
			b, y, x := regions.Pixel(pos)
			for ch := range mean {
				mean[ch] += src[spatial.Offset(b, ch, y, x, c, h, w)]
			}
		}
		for ch := range mean {
			mean[ch] /= float64(len(positions))
		}
		for _, pos := range positions {
			b, y, x := regions.Pixel(pos)
			for ch, v := range mean {
				dst[spatial.Offset(b, ch, y, x, c, h, w)] = v
			}
		}
	}
	return out, nil
}

// Params returns the encoder parameters (copy).
func (e *PointwiseEncoder) Params() []float64 { return e.stack.Params() }

// SetParams loads the encoder parameters.
func (e *PointwiseEncoder) SetParams(p []float64) { e.stack.SetParams(p) }

// Gradients returns the encoder gradients (copy).
func (e *PointwiseEncoder) Gradients() []float64 { return e.stack.Gradients() }
