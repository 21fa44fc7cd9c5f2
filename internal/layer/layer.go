// Package layer provides the layers the reference networks are built from.
package layer

import (
	"math"
	"math/rand/v2"

	"github.com/FlavioCFOliveira/GoNeuronHD/internal/activations"
)

// Layer is a neural network layer operating on one feature vector.
type Layer interface {
	Forward(x []float64) []float64
	Backward(grad []float64) []float64
	Params() []float64
	SetParams([]float64)
	Gradients() []float64
}

// Sized is implemented by layers with fixed input and output widths.
type Sized interface {
	InSize() int
	OutSize() int
}

// Dense is a fully connected layer.
// Weights are row-major: the weight for output o, input i is at weights[o*in+i].
// Forward and Backward reuse preallocated buffers, so a Dense is not safe for
// concurrent use.
type Dense struct {
	weights []float64
	biases  []float64
	act     activations.Activation
	inSize  int
	outSize int

	inputBuf  []float64
	preActBuf []float64
	outputBuf []float64
	dzBuf     []float64
	gradWBuf  []float64
	gradBBuf  []float64
	gradInBuf []float64
}

// NewDense creates a dense layer with Xavier/Glorot initialised weights drawn
// from rng. A nil rng uses the package-level source.
func NewDense(in, out int, act activations.Activation, rng *rand.Rand) *Dense {
	uniform := rand.Float64
	if rng != nil {
		uniform = rng.Float64
	}

	d := &Dense{
		weights:   make([]float64, out*in),
		biases:    make([]float64, out),
		act:       act,
		inSize:    in,
		outSize:   out,
		inputBuf:  make([]float64, in),
		preActBuf: make([]float64, out),
		outputBuf: make([]float64, out),
		dzBuf:     make([]float64, out),
		gradWBuf:  make([]float64, out*in),
		gradBBuf:  make([]float64, out),
		gradInBuf: make([]float64, in),
	}

	scale := math.Sqrt(2.0 / float64(in+out))
	for i := range d.weights {
		d.weights[i] = uniform()*2*scale - scale
	}
	return d
}

// Forward computes act(Wx + b). The returned slice is owned by the layer and
// overwritten by the next call.
func (d *Dense) Forward(x []float64) []float64 {
	copy(d.inputBuf, x)

	for o := 0; o < d.outSize; o++ {
		sum := d.biases[o]
		row := d.weights[o*d.inSize : (o+1)*d.inSize]
		for i, w := range row {
			sum += w * d.inputBuf[i]
		}
		d.preActBuf[o] = sum
		d.outputBuf[o] = d.act.Activate(sum)
	}
	return d.outputBuf
}

// Backward computes the gradients of the last Forward call and returns the
// gradient with respect to its input. Parameter gradients are overwritten,
// not accumulated.
func (d *Dense) Backward(grad []float64) []float64 {
	for o := 0; o < d.outSize; o++ {
		dz := grad[o] * d.act.Derivative(d.preActBuf[o])
		d.dzBuf[o] = dz
		d.gradBBuf[o] = dz
		row := d.gradWBuf[o*d.inSize : (o+1)*d.inSize]
		for i := range row {
			row[i] = dz * d.inputBuf[i]
		}
	}

	for i := 0; i < d.inSize; i++ {
		sum := 0.0
		for o := 0; o < d.outSize; o++ {
			sum += d.dzBuf[o] * d.weights[o*d.inSize+i]
		}
		d.gradInBuf[i] = sum
	}
	return d.gradInBuf
}

// Params returns weights followed by biases (copy).
func (d *Dense) Params() []float64 {
	params := make([]float64, 0, len(d.weights)+len(d.biases))
	params = append(params, d.weights...)
	return append(params, d.biases...)
}

// SetParams loads weights followed by biases.
func (d *Dense) SetParams(params []float64) {
	copy(d.weights, params[:len(d.weights)])
	copy(d.biases, params[len(d.weights):])
}

// Gradients returns weight gradients followed by bias gradients (copy).
func (d *Dense) Gradients() []float64 {
	grads := make([]float64, 0, len(d.gradWBuf)+len(d.gradBBuf))
	grads = append(grads, d.gradWBuf...)
	return append(grads, d.gradBBuf...)
}

// SetWeight sets the weight connecting input col to output row.
func (d *Dense) SetWeight(row, col int, val float64) {
	d.weights[row*d.inSize+col] = val
}

// SetBias sets a single bias.
func (d *Dense) SetBias(idx int, val float64) {
	d.biases[idx] = val
}

// InSize returns the input width.
func (d *Dense) InSize() int { return d.inSize }

// OutSize returns the output width.
func (d *Dense) OutSize() int { return d.outSize }

// Activation returns the activation function of the layer.
func (d *Dense) Activation() activations.Activation { return d.act }
