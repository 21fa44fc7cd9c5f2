package layer

import (
	"fmt"

	"gorgonia.org/tensor"

	"github.com/FlavioCFOliveira/GoNeuronHD/internal/spatial"
)

// Pointwise applies a stack of layers independently at every pixel of an
// NCHW tensor, which makes it equivalent to a chain of 1x1 convolutions.
// Parameter gradients are accumulated over all pixels of the last Backward
// call.
type Pointwise struct {
	layers []Layer
	in     int
	out    int

	grads [][]float64
	pixel []float64
}

// NewPointwise stacks layers. The first layer must accept in values and the
// last must produce out values.
func NewPointwise(in, out int, layers ...Layer) *Pointwise {
	if len(layers) == 0 {
		panic("layer: pointwise stack needs at least one layer")
	}
	if s, ok := layers[0].(Sized); ok && s.InSize() != in {
		panic(fmt.Sprintf("layer: first layer takes %d inputs, stack declares %d", s.InSize(), in))
	}
	if s, ok := layers[len(layers)-1].(Sized); ok && s.OutSize() != out {
		panic(fmt.Sprintf("layer: last layer yields %d outputs, stack declares %d", s.OutSize(), out))
	}
	grads := make([][]float64, len(layers))
	for i, l := range layers {
		grads[i] = make([]float64, len(l.Params()))
	}
	return &Pointwise{layers: layers, in: in, out: out, grads: grads, pixel: make([]float64, in)}
}

// InChannels returns the number of input channels.
func (p *Pointwise) InChannels() int { return p.in }

// OutChannels returns the number of output channels.
func (p *Pointwise) OutChannels() int { return p.out }

// Forward maps an (N, in, H, W) tensor to (N, out, H, W).
func (p *Pointwise) Forward(x *tensor.Dense) *tensor.Dense {
	outs := p.ForwardAll(x)
	return outs[len(outs)-1]
}

// ForwardAll returns the activation map after every layer of the stack.
func (p *Pointwise) ForwardAll(x *tensor.Dense) []*tensor.Dense {
	n, c, h, w := spatial.Dims(x)
	if c != p.in {
		panic(fmt.Sprintf("layer: pointwise expects %d channels, got %d", p.in, c))
	}
	src := spatial.Data(x)

	outs := make([]*tensor.Dense, len(p.layers))
	for i, l := range p.layers {
		width := p.out
		if s, ok := l.(Sized); ok {
			width = s.OutSize()
		}
		outs[i] = spatial.New(n, width, h, w)
	}

	for b := 0; b < n; b++ {
		for y := 0; y < h; y++ {
			for xx := 0; xx < w; xx++ {
				for ch := 0; ch < c; ch++ {
					p.pixel[ch] = src[spatial.Offset(b, ch, y, xx, c, h, w)]
				}
				v := p.pixel
				for i, l := range p.layers {
					v = l.Forward(v)
					dst := spatial.Data(outs[i])
					for ch, val := range v {
						dst[spatial.Offset(b, ch, y, xx, len(v), h, w)] = val
					}
				}
			}
		}
	}
	return outs
}

// Backward accumulates parameter gradients for input x given the gradient
// of the loss with respect to Forward(x), and returns the input gradient.
func (p *Pointwise) Backward(x, grad *tensor.Dense) *tensor.Dense {
	n, c, h, w := spatial.Dims(x)
	src := spatial.Data(x)
	g := spatial.Data(grad)
	inGrad := spatial.New(n, c, h, w)
	dst := spatial.Data(inGrad)

	for _, acc := range p.grads {
		clear(acc)
	}

	pixelGrad := make([]float64, p.out)
	for b := 0; b < n; b++ {
		for y := 0; y < h; y++ {
			for xx := 0; xx < w; xx++ {
				for ch := 0; ch < c; ch++ {
					p.pixel[ch] = src[spatial.Offset(b, ch, y, xx, c, h, w)]
				}
				v := p.pixel
				for _, l := range p.layers {
					v = l.Forward(v)
				}
				for ch := range pixelGrad {
					pixelGrad[ch] = g[spatial.Offset(b, ch, y, xx, p.out, h, w)]
				}
				back := pixelGrad
				for i := len(p.layers) - 1; i >= 0; i-- {
					back = p.layers[i].Backward(back)
					for j, gv := range p.layers[i].Gradients() {
						p.grads[i][j] += gv
					}
				}
				for ch, gv := range back {
					dst[spatial.Offset(b, ch, y, xx, c, h, w)] = gv
				}
			}
		}
	}
	return inGrad
}

// Params returns the parameters of every layer, concatenated (copy).
func (p *Pointwise) Params() []float64 {
	var params []float64
	for _, l := range p.layers {
		params = append(params, l.Params()...)
	}
	return params
}

// SetParams distributes a flat parameter slice over the layers.
func (p *Pointwise) SetParams(params []float64) {
	offset := 0
	for i, l := range p.layers {
		size := len(p.grads[i])
		l.SetParams(params[offset : offset+size])
		offset += size
	}
}

// Gradients returns the accumulated gradients of every layer (copy).
func (p *Pointwise) Gradients() []float64 {
	var grads []float64
	for _, g := range p.grads {
		grads = append(grads, g...)
	}
	return grads
}
