package loss

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gorgonia.org/tensor"
)

// Loss term names, in the order the aggregator reports them.
const (
	GGAN      = "G_GAN"
	GGANFeat  = "G_GAN_Feat"
	GVGG      = "G_VGG"
	GStyleVGG = "G_STYLE_VGG"
	GRecon    = "G_RECON"
	DReal     = "D_real"
	DFake     = "D_fake"
)

var termOrder = [...]string{GGAN, GGANFeat, GVGG, GStyleVGG, GRecon, DReal, DFake}

// Flags selects the auxiliary generator losses. The adversarial generator
// loss and both discriminator losses are always reported.
type Flags struct {
	GANFeat bool
	VGG     bool
	Style   bool
	Recon   bool
}

func (f Flags) enabled() [len(termOrder)]bool {
	return [...]bool{true, f.GANFeat, f.VGG, f.Style, f.Recon, true, true}
}

// Names returns the names of the terms the flags enable, in report order.
func (f Flags) Names() []string {
	var names []string
	for i, on := range f.enabled() {
		if on {
			names = append(names, termOrder[i])
		}
	}
	return names
}

// Perceptual is a content distance between generated and real images, such
// as a VGG feature loss.
type Perceptual interface {
	Distance(fake, real *tensor.Dense) (float64, error)
}

// StylePerceptual returns a content distance and a style distance from one
// pass over both images.
type StylePerceptual interface {
	Distances(fake, real *tensor.Dense) (content, style float64, err error)
}

// Term is one named loss value. Value has shape (1) so terms produced by
// several replicas can be concatenated along the first axis.
type Term struct {
	Name  string
	Value *tensor.Dense
}

// Scalar returns the mean of the term's values.
func (t Term) Scalar() float64 {
	data := t.Value.Data().([]float64)
	return floats.Sum(data) / float64(len(data))
}

func newTerm(name string, v float64) Term {
	return Term{Name: name, Value: tensor.New(tensor.WithShape(1), tensor.WithBacking([]float64{v}))}
}

// Terms is an ordered list of loss terms.
type Terms []Term

// Names returns the term names in order.
func (ts Terms) Names() []string {
	names := make([]string, len(ts))
	for i, t := range ts {
		names[i] = t.Name
	}
	return names
}

// Get returns the scalar value of the named term.
func (ts Terms) Get(name string) (float64, bool) {
	for _, t := range ts {
		if t.Name == name {
			return t.Scalar(), true
		}
	}
	return 0, false
}

// Scalars returns every term's scalar value by name.
func (ts Terms) Scalars() map[string]float64 {
	out := make(map[string]float64, len(ts))
	for _, t := range ts {
		out[t.Name] = t.Scalar()
	}
	return out
}

// Gather concatenates the terms of several replicas along the first axis.
// Every replica must report the same names in the same order.
func Gather(replicas ...Terms) (Terms, error) {
	if len(replicas) == 0 {
		return nil, nil
	}
	out := make(Terms, len(replicas[0]))
	for i, t := range replicas[0] {
		others := make([]*tensor.Dense, 0, len(replicas)-1)
		for r, rep := range replicas[1:] {
			if len(rep) != len(out) || rep[i].Name != t.Name {
				return nil, errors.Errorf("loss: replica %d reports %v, want %v", r+1, rep.Names(), replicas[0].Names())
			}
			others = append(others, rep[i].Value)
		}
		if len(others) == 0 {
			out[i] = t
			continue
		}
		v, err := t.Value.Concat(0, others...)
		if err != nil {
			return nil, errors.Wrapf(err, "loss: gather %s", t.Name)
		}
		out[i] = Term{Name: t.Name, Value: v}
	}
	return out, nil
}

// Inputs holds everything one forward pass hands to the aggregator.
type Inputs struct {
	// PredFakePool is the discriminator output on pooled fakes.
	PredFakePool [][]*tensor.Dense
	PredReal     [][]*tensor.Dense
	// PredFake is the discriminator output on the current fake, used for
	// the generator adversarial and feature-matching terms.
	PredFake [][]*tensor.Dense

	Fake *tensor.Dense
	Real *tensor.Dense
}

// Aggregator computes the enabled subset of the generator and discriminator
// losses.
type Aggregator struct {
	Flags           Flags
	GAN             GANLoss
	FeatureMatching FeatureMatching

	// Perceptual is used when Flags.VGG is set and Flags.Style is not.
	Perceptual Perceptual
	// Style is used when Flags.Style is set.
	Style StylePerceptual

	LambdaFeat  float64
	LambdaStyle float64
	LambdaRecon float64
}

// Names returns the names Compute reports.
func (a *Aggregator) Names() []string {
	return a.Flags.Names()
}

// Compute evaluates the enabled terms in report order.
func (a *Aggregator) Compute(in Inputs) (Terms, error) {
	var values [len(termOrder)]float64

	values[6] = a.GAN.Forward(in.PredFakePool, false)
	values[5] = a.GAN.Forward(in.PredReal, true)
	values[0] = a.GAN.Forward(in.PredFake, true)

	if a.Flags.GANFeat {
		values[1] = a.FeatureMatching.Forward(in.PredFake, in.PredReal)
	}

	switch {
	case a.Flags.Style:
		if a.Style == nil {
			return nil, errors.New("loss: style loss enabled without a style criterion")
		}
		content, style, err := a.Style.Distances(in.Fake, in.Real)
		if err != nil {
			return nil, errors.Wrap(err, "loss: style perceptual")
		}
		values[2] = content * a.LambdaFeat
		values[3] = style * a.LambdaStyle
	case a.Flags.VGG:
		if a.Perceptual == nil {
			return nil, errors.New("loss: perceptual loss enabled without a criterion")
		}
		d, err := a.Perceptual.Distance(in.Fake, in.Real)
		if err != nil {
			return nil, errors.Wrap(err, "loss: perceptual")
		}
		values[2] = d * a.LambdaFeat
	}

	if a.Flags.Recon {
		values[4] = L1Loss{}.Forward(in.Fake.Data().([]float64), in.Real.Data().([]float64)) * a.LambdaRecon
	}

	var terms Terms
	for i, on := range a.Flags.enabled() {
		if on {
			terms = append(terms, newTerm(termOrder[i], values[i]))
		}
	}
	return terms, nil
}
