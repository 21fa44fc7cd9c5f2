// Package net defines the network roles the model drives and provides
// pointwise reference networks and checkpoint storage for them.
package net

import (
	"gorgonia.org/tensor"
)

// Role identifies a network in checkpoints and logs.
type Role string

// Network roles.
const (
	RoleG Role = "G"
	RoleD Role = "D"
	RoleE Role = "E"
)

// Module is anything with trainable parameters.
type Module interface {
	// Params returns all parameters flattened (copy).
	Params() []float64
	// SetParams loads a flat parameter slice.
	SetParams([]float64)
	// Gradients returns the gradients of the last backward pass (copy).
	Gradients() []float64
}

// Named is a submodule and its parameter name prefix.
type Named struct {
	Name   string
	Module Module
}

// Staged is implemented by networks built from named submodules, so that
// training can be restricted to a subset of them.
type Staged interface {
	Submodules() []Named
}

// Prediction is a multi-scale discriminator output: one slice per scale,
// holding the intermediate feature maps followed by the final output.
type Prediction [][]*tensor.Dense

// Generator maps the conditioning input to an image.
type Generator interface {
	Module
	Forward(x *tensor.Dense) (*tensor.Dense, error)
}

// Discriminator scores a conditioning input concatenated with an image.
type Discriminator interface {
	Module
	Forward(x *tensor.Dense) (Prediction, error)
}

// Encoder computes a feature map from an image and a label or instance map.
type Encoder interface {
	Module
	Forward(image, seg *tensor.Dense) (*tensor.Dense, error)
}

// FastEncoder is an Encoder with a cheaper forward path.
type FastEncoder interface {
	Encoder
	ForwardFast(image, seg *tensor.Dense) (*tensor.Dense, error)
}

// TrainableGenerator is a Generator that backpropagates. Backward fills the
// parameter gradients for input x given the gradient of the loss with
// respect to Forward(x) and returns the gradient with respect to x.
type TrainableGenerator interface {
	Generator
	Backward(x, grad *tensor.Dense) (*tensor.Dense, error)
}

// TrainableEncoder is an Encoder that backpropagates the gradient of the
// loss with respect to Forward(image, seg) into its parameters.
type TrainableEncoder interface {
	Encoder
	Backward(image, seg, grad *tensor.Dense) error
}

// TrainableDiscriminator is a Discriminator that backpropagates from the
// gradient of every scale's final output and returns the input gradient.
type TrainableDiscriminator interface {
	Discriminator
	Backward(x *tensor.Dense, grads []*tensor.Dense) (*tensor.Dense, error)
}

// Params concatenates the parameters of modules in order.
func Params(modules ...Module) []float64 {
	var params []float64
	for _, m := range modules {
		params = append(params, m.Params()...)
	}
	return params
}

// Gradients concatenates the gradients of modules in order.
func Gradients(modules ...Module) []float64 {
	var grads []float64
	for _, m := range modules {
		grads = append(grads, m.Gradients()...)
	}
	return grads
}

// SetParams distributes params over modules in order.
func SetParams(params []float64, modules ...Module) {
	offset := 0
	for _, m := range modules {
		size := len(m.Params())
		m.SetParams(params[offset : offset+size])
		offset += size
	}
}
