// Package activations provides the activation functions used by the
// reference per-pixel networks.
package activations

import (
	"fmt"
	"math"
)

// Activation is an activation function with derivative.
type Activation interface {
	// Activate computes f(x)
	Activate(x float64) float64

	// Derivative computes f'(x)
	Derivative(x float64) float64
}

// ReLU activation function.
type ReLU struct{}

// Activate computes max(0, x)
func (r ReLU) Activate(x float64) float64 {
	if x > 0 {
		return x
	}
	return 0
}

// Derivative returns 1 if x > 0, else 0
func (r ReLU) Derivative(x float64) float64 {
	if x > 0 {
		return 1
	}
	return 0
}

// Sigmoid activation function.
type Sigmoid struct{}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// Activate computes sigmoid(x)
func (s Sigmoid) Activate(x float64) float64 {
	return sigmoid(x)
}

// Derivative computes sigmoid(x) * (1 - sigmoid(x))
func (s Sigmoid) Derivative(x float64) float64 {
	sigma := sigmoid(x)
	return sigma * (1 - sigma)
}

// LeakyReLU activation function. Discriminators use a slope of 0.2.
type LeakyReLU struct {
	Alpha float64 // Slope for x <= 0
}

// NewLeakyReLU creates a LeakyReLU with the given alpha value.
func NewLeakyReLU(alpha float64) *LeakyReLU {
	return &LeakyReLU{Alpha: alpha}
}

// Activate computes x if x > 0, else alpha*x
func (l *LeakyReLU) Activate(x float64) float64 {
	if x > 0 {
		return x
	}
	return l.Alpha * x
}

// Derivative returns 1 if x > 0, else alpha
func (l *LeakyReLU) Derivative(x float64) float64 {
	if x > 0 {
		return 1
	}
	return l.Alpha
}

// Tanh activation function. Generators end with it to produce images in [-1, 1].
type Tanh struct{}

// Activate computes tanh(x)
func (t Tanh) Activate(x float64) float64 {
	return math.Tanh(x)
}

// Derivative computes 1 - tanh(x)^2
func (t Tanh) Derivative(x float64) float64 {
	tanhX := math.Tanh(x)
	return 1 - tanhX*tanhX
}

// Linear is the identity activation.
type Linear struct{}

// Activate returns x unchanged.
func (Linear) Activate(x float64) float64 { return x }

// Derivative returns 1.
func (Linear) Derivative(float64) float64 { return 1 }

// Name returns the stable name of act, used in checkpoint headers.
func Name(act Activation) string {
	switch act.(type) {
	case ReLU:
		return "ReLU"
	case Sigmoid:
		return "Sigmoid"
	case Tanh:
		return "Tanh"
	case *LeakyReLU:
		return "LeakyReLU"
	case Linear:
		return "Linear"
	default:
		return fmt.Sprintf("%T", act)
	}
}

// ByName returns the activation registered under name.
func ByName(name string) (Activation, error) {
	switch name {
	case "ReLU":
		return ReLU{}, nil
	case "Sigmoid":
		return Sigmoid{}, nil
	case "Tanh":
		return Tanh{}, nil
	case "LeakyReLU":
		return NewLeakyReLU(0.2), nil
	case "Linear":
		return Linear{}, nil
	default:
		return nil, fmt.Errorf("unknown activation: %s", name)
	}
}
