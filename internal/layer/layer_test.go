// Package layer provides unit tests for the reference layers.
package layer

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/FlavioCFOliveira/GoNeuronHD/internal/activations"
	"github.com/FlavioCFOliveira/GoNeuronHD/internal/spatial"
)

func identityDense(act activations.Activation) *Dense {
	d := NewDense(2, 2, act, rand.New(rand.NewPCG(1, 2)))
	d.SetParams([]float64{1, 0, 0, 1, 0, 0})
	return d
}

// TestDenseForward tests identity weights through tanh.
func TestDenseForward(t *testing.T) {
	d := identityDense(activations.Tanh{})

	output := d.Forward([]float64{1.0, 2.0})

	if math.Abs(output[0]-math.Tanh(1.0)) > 1e-12 {
		t.Errorf("output[0] = %v, want %v", output[0], math.Tanh(1.0))
	}
	if math.Abs(output[1]-math.Tanh(2.0)) > 1e-12 {
		t.Errorf("output[1] = %v, want %v", output[1], math.Tanh(2.0))
	}
}

// TestDenseBackward tests gradients of a linear layer.
func TestDenseBackward(t *testing.T) {
	d := NewDense(2, 1, activations.Linear{}, nil)
	d.SetParams([]float64{3, -2, 0.5})

	d.Forward([]float64{1, 4})
	inGrad := d.Backward([]float64{2})

	// dL/dx = grad * W
	if inGrad[0] != 6 || inGrad[1] != -4 {
		t.Errorf("input gradient = %v, want [6 -4]", inGrad)
	}

	// dL/dW = grad * x, dL/db = grad
	want := []float64{2, 8, 2}
	for i, g := range d.Gradients() {
		if g != want[i] {
			t.Errorf("gradient[%d] = %v, want %v", i, g, want[i])
		}
	}
}

// TestDenseParamsRoundTrip tests parameter get/set.
func TestDenseParamsRoundTrip(t *testing.T) {
	d := NewDense(3, 2, activations.ReLU{}, rand.New(rand.NewPCG(7, 7)))
	params := d.Params()
	if len(params) != 3*2+2 {
		t.Fatalf("len(params) = %d, want 8", len(params))
	}

	params[0] = 42
	if d.Params()[0] == 42 {
		t.Error("Params should return a copy")
	}

	d.SetParams(params)
	if d.Params()[0] != 42 {
		t.Error("SetParams did not update weights")
	}
}

// TestDenseDeterministicInit tests that equal seeds give equal weights.
func TestDenseDeterministicInit(t *testing.T) {
	a := NewDense(4, 3, activations.ReLU{}, rand.New(rand.NewPCG(3, 4)))
	b := NewDense(4, 3, activations.ReLU{}, rand.New(rand.NewPCG(3, 4)))

	pa, pb := a.Params(), b.Params()
	for i := range pa {
		if pa[i] != pb[i] {
			t.Fatalf("param %d differs: %v vs %v", i, pa[i], pb[i])
		}
	}
}

// TestPointwiseForward tests that the stack is applied per pixel.
func TestPointwiseForward(t *testing.T) {
	d := NewDense(2, 1, activations.Linear{}, nil)
	d.SetParams([]float64{1, 10, 0.5})
	p := NewPointwise(2, 1, d)

	// one sample, two channels, 1x3 pixels
	x := spatial.FromSlice([]float64{
		1, 2, 3,
		4, 5, 6,
	}, 1, 2, 1, 3)

	out := p.Forward(x)
	n, c, h, w := spatial.Dims(out)
	if n != 1 || c != 1 || h != 1 || w != 3 {
		t.Fatalf("output shape = (%d,%d,%d,%d), want (1,1,1,3)", n, c, h, w)
	}

	want := []float64{41.5, 52.5, 63.5}
	for i, v := range spatial.Data(out) {
		if math.Abs(v-want[i]) > 1e-12 {
			t.Errorf("pixel %d = %v, want %v", i, v, want[i])
		}
	}
}

// TestPointwiseForwardAll tests intermediate activation maps.
func TestPointwiseForwardAll(t *testing.T) {
	first := NewDense(1, 3, activations.Linear{}, nil)
	first.SetParams([]float64{1, 2, 3, 0, 0, 0})
	second := NewDense(3, 1, activations.Linear{}, nil)
	second.SetParams([]float64{1, 1, 1, 0})
	p := NewPointwise(1, 1, first, second)

	outs := p.ForwardAll(spatial.FromSlice([]float64{1, 2}, 1, 1, 1, 2))
	if len(outs) != 2 {
		t.Fatalf("len(outs) = %d, want 2", len(outs))
	}
	if _, c, _, _ := spatial.Dims(outs[0]); c != 3 {
		t.Errorf("hidden channels = %d, want 3", c)
	}
	got := spatial.Data(outs[1])
	if got[0] != 6 || got[1] != 12 {
		t.Errorf("output = %v, want [6 12]", got)
	}
}

// TestPointwiseBackwardAccumulates tests gradient accumulation over pixels.
func TestPointwiseBackwardAccumulates(t *testing.T) {
	d := NewDense(1, 1, activations.Linear{}, nil)
	d.SetParams([]float64{2, 0})
	p := NewPointwise(1, 1, d)

	x := spatial.FromSlice([]float64{1, 3}, 1, 1, 1, 2)
	grad := spatial.FromSlice([]float64{1, 1}, 1, 1, 1, 2)

	inGrad := p.Backward(x, grad)

	// dW = sum(grad * x) = 4, db = sum(grad) = 2
	g := p.Gradients()
	if g[0] != 4 || g[1] != 2 {
		t.Errorf("gradients = %v, want [4 2]", g)
	}
	for i, v := range spatial.Data(inGrad) {
		if v != 2 {
			t.Errorf("input gradient %d = %v, want 2", i, v)
		}
	}

	// A second call starts from zero.
	p.Backward(x, grad)
	if g := p.Gradients(); g[0] != 4 {
		t.Errorf("gradients not reset between calls: %v", g)
	}
}

// TestPointwiseChannelMismatch tests the input channel check.
func TestPointwiseChannelMismatch(t *testing.T) {
	p := NewPointwise(2, 1, NewDense(2, 1, activations.Linear{}, nil))

	defer func() {
		if r := recover(); r == nil {
			t.Error("Expected panic for channel mismatch")
		}
	}()
	p.Forward(spatial.New(1, 3, 1, 1))
}
