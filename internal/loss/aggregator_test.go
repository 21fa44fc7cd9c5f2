package loss

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"
)

func dense(vals ...float64) *tensor.Dense {
	return tensor.New(tensor.WithShape(1, 1, 1, len(vals)), tensor.WithBacking(vals))
}

// twoScales builds a two-scale prediction with one intermediate map and a
// final map per scale.
func twoScales(inter, final float64) [][]*tensor.Dense {
	return [][]*tensor.Dense{
		{dense(inter, inter), dense(final, final)},
		{dense(inter, inter), dense(final)},
	}
}

type fixedPerceptual float64

func (f fixedPerceptual) Distance(_, _ *tensor.Dense) (float64, error) { return float64(f), nil }

type fixedStyle struct{ content, style float64 }

func (f fixedStyle) Distances(_, _ *tensor.Dense) (float64, float64, error) {
	return f.content, f.style, nil
}

type failingPerceptual struct{}

func (failingPerceptual) Distance(_, _ *tensor.Dense) (float64, error) {
	return 0, errors.New("vgg unavailable")
}

func TestGANLossLSGAN(t *testing.T) {
	g := NewGANLoss(true)
	pred := twoScales(0, 0.5)

	// each scale: mean((0.5-1)^2) = 0.25
	assert.InDelta(t, 0.5, g.Forward(pred, true), 1e-12)
	assert.InDelta(t, 0.5, g.Forward(pred, false), 1e-12)

	grads := g.Backward(pred, true)
	require.Len(t, grads, 2)
	assert.Equal(t, []float64{-0.5, -0.5}, grads[0].Data())
	assert.Equal(t, []float64{-1.0}, grads[1].Data())
	assert.Equal(t, pred[1][1].Shape(), grads[1].Shape())
}

func TestGANLossBCE(t *testing.T) {
	g := NewGANLoss(false)
	pred := [][]*tensor.Dense{{dense(0.5)}}

	assert.InDelta(t, 0.6931471805599453, g.Forward(pred, true), 1e-9)
}

func TestFeatureMatchingSkipsFinalOutput(t *testing.T) {
	fm := FeatureMatching{NumD: 2, NLayersD: 3, Lambda: 10}

	fake := twoScales(1, 100)
	real := twoScales(0, -100)

	// per scale: 1/2 * 4/4 * |1-0| * 10 = 5
	assert.InDelta(t, 10.0, fm.Forward(fake, real), 1e-12)
}

func TestFlagsNamesOrder(t *testing.T) {
	all := Flags{GANFeat: true, VGG: true, Style: true, Recon: true}
	assert.Equal(t, []string{GGAN, GGANFeat, GVGG, GStyleVGG, GRecon, DReal, DFake}, all.Names())
	assert.Equal(t, []string{GGAN, GVGG, DReal, DFake}, Flags{VGG: true}.Names())
}

func TestComputeAllDisabledReportsThreeTerms(t *testing.T) {
	a := &Aggregator{GAN: NewGANLoss(true)}
	terms, err := a.Compute(Inputs{
		PredFakePool: twoScales(0, 0),
		PredReal:     twoScales(0, 1),
		PredFake:     twoScales(0, 0),
		Fake:         dense(0),
		Real:         dense(1),
	})
	require.NoError(t, err)
	require.Len(t, terms, 3)
	assert.Equal(t, []string{GGAN, DReal, DFake}, terms.Names())

	for _, term := range terms {
		assert.Equal(t, tensor.Shape{1}, term.Value.Shape())
	}

	gGAN, _ := terms.Get(GGAN)
	dReal, _ := terms.Get(DReal)
	dFake, _ := terms.Get(DFake)
	assert.InDelta(t, 2.0, gGAN, 1e-12)
	assert.InDelta(t, 0.0, dReal, 1e-12)
	assert.InDelta(t, 0.0, dFake, 1e-12)
	assert.Equal(t, a.Names(), terms.Names())
}

func TestComputeWeightsAuxiliaryTerms(t *testing.T) {
	a := &Aggregator{
		Flags:           Flags{GANFeat: true, VGG: true, Style: true, Recon: true},
		GAN:             NewGANLoss(true),
		FeatureMatching: FeatureMatching{NumD: 2, NLayersD: 3, Lambda: 10},
		Style:           fixedStyle{content: 0.5, style: 0.25},
		LambdaFeat:      10,
		LambdaStyle:     4,
		LambdaRecon:     2,
	}
	terms, err := a.Compute(Inputs{
		PredFakePool: twoScales(0, 0),
		PredReal:     twoScales(0, 1),
		PredFake:     twoScales(1, 0),
		Fake:         dense(1, 2),
		Real:         dense(0, 0),
	})
	require.NoError(t, err)
	require.Len(t, terms, 7)

	got := terms.Scalars()
	assert.InDelta(t, 10.0, got[GGANFeat], 1e-12)
	assert.InDelta(t, 5.0, got[GVGG], 1e-12)
	assert.InDelta(t, 1.0, got[GStyleVGG], 1e-12)
	assert.InDelta(t, 3.0, got[GRecon], 1e-12) // mean(|1|,|2|) * 2
}

func TestComputePerceptualOnly(t *testing.T) {
	a := &Aggregator{
		Flags:      Flags{VGG: true},
		GAN:        NewGANLoss(true),
		Perceptual: fixedPerceptual(0.3),
		LambdaFeat: 10,
	}
	terms, err := a.Compute(Inputs{
		PredFakePool: twoScales(0, 0), PredReal: twoScales(0, 1), PredFake: twoScales(0, 0),
		Fake: dense(0), Real: dense(0),
	})
	require.NoError(t, err)
	v, ok := terms.Get(GVGG)
	require.True(t, ok)
	assert.InDelta(t, 3.0, v, 1e-12)
}

func TestComputeMissingCriterion(t *testing.T) {
	in := Inputs{
		PredFakePool: twoScales(0, 0), PredReal: twoScales(0, 1), PredFake: twoScales(0, 0),
		Fake: dense(0), Real: dense(0),
	}

	_, err := (&Aggregator{Flags: Flags{Style: true}, GAN: NewGANLoss(true)}).Compute(in)
	assert.Error(t, err)

	_, err = (&Aggregator{Flags: Flags{VGG: true}, GAN: NewGANLoss(true), Perceptual: failingPerceptual{}}).Compute(in)
	assert.ErrorContains(t, err, "vgg unavailable")
}

func TestGatherConcatenatesReplicas(t *testing.T) {
	a := Terms{newTerm(GGAN, 1), newTerm(DReal, 2)}
	b := Terms{newTerm(GGAN, 3), newTerm(DReal, 6)}

	out, err := Gather(a, b)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, tensor.Shape{2}, out[0].Value.Shape())
	assert.Equal(t, []float64{1, 3}, out[0].Value.Data())
	assert.InDelta(t, 4.0, out[1].Scalar(), 1e-12)

	_, err = Gather(a, Terms{newTerm(DReal, 1), newTerm(GGAN, 1)})
	assert.Error(t, err)
}
