package loss

import (
	"gorgonia.org/tensor"
)

// GANLoss scores multi-scale discriminator outputs against a constant real
// or fake target. Each scale contributes the criterion on its last output;
// the scale losses are summed.
type GANLoss struct {
	// LSGAN selects the least-squares criterion. Otherwise binary cross
	// entropy is used and discriminator outputs must be probabilities.
	LSGAN bool

	RealLabel float64
	FakeLabel float64
}

// NewGANLoss returns a GANLoss with targets 1 for real and 0 for fake.
func NewGANLoss(lsgan bool) GANLoss {
	return GANLoss{LSGAN: lsgan, RealLabel: 1, FakeLabel: 0}
}

func (g GANLoss) criterion() Loss {
	if g.LSGAN {
		return MSE{}
	}
	return BCELoss{}
}

func (g GANLoss) target(n int, real bool) []float64 {
	label := g.FakeLabel
	if real {
		label = g.RealLabel
	}
	t := make([]float64, n)
	for i := range t {
		t[i] = label
	}
	return t
}

func last(scale []*tensor.Dense) []float64 {
	if len(scale) == 0 {
		panic("GANLoss: discriminator scale without outputs")
	}
	return scale[len(scale)-1].Data().([]float64)
}

// Forward returns the summed loss over all scales of pred.
func (g GANLoss) Forward(pred [][]*tensor.Dense, real bool) float64 {
	crit := g.criterion()
	var sum float64
	for _, scale := range pred {
		out := last(scale)
		sum += crit.Forward(out, g.target(len(out), real))
	}
	return sum
}

// Backward returns the gradient with respect to the last output of every
// scale, shaped like that output.
func (g GANLoss) Backward(pred [][]*tensor.Dense, real bool) []*tensor.Dense {
	crit := g.criterion()
	grads := make([]*tensor.Dense, len(pred))
	for i, scale := range pred {
		out := last(scale)
		grad := crit.Backward(out, g.target(len(out), real))
		grads[i] = tensor.New(tensor.WithShape(scale[len(scale)-1].Shape().Clone()...), tensor.WithBacking(grad))
	}
	return grads
}

// FeatureMatching is the discriminator feature-matching loss: an L1 distance
// between the intermediate outputs of every scale for fake and real inputs.
// The final output of each scale is excluded.
type FeatureMatching struct {
	NumD     int
	NLayersD int
	Lambda   float64
}

// Forward returns the weighted feature-matching loss. Real features are
// treated as constants.
func (f FeatureMatching) Forward(fake, real [][]*tensor.Dense) float64 {
	if len(fake) != len(real) {
		panic("FeatureMatching: fake and real predictions have different scale counts")
	}
	featWeight := 4.0 / float64(f.NLayersD+1)
	dWeight := 1.0 / float64(f.NumD)

	var (
		l1  L1Loss
		sum float64
	)
	for i := range fake {
		if len(fake[i]) != len(real[i]) {
			panic("FeatureMatching: fake and real scales have different depths")
		}
		for j := 0; j < len(fake[i])-1; j++ {
			d := l1.Forward(fake[i][j].Data().([]float64), real[i][j].Data().([]float64))
			sum += dWeight * featWeight * d * f.Lambda
		}
	}
	return sum
}
