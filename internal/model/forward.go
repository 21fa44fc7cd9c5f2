package model

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/FlavioCFOliveira/GoNeuronHD/internal/encode"
	"github.com/FlavioCFOliveira/GoNeuronHD/internal/loss"
	"github.com/FlavioCFOliveira/GoNeuronHD/internal/net"
	"github.com/FlavioCFOliveira/GoNeuronHD/internal/spatial"
)

// EncodeInput encodes a label map, an optional instance map, real image and
// precomputed feature map. The feature map is kept only when features are
// preloaded.
func (m *Model) EncodeInput(label, inst, real, feat *tensor.Dense) (encode.Encoded, error) {
	if !m.opts.UseFeatures() || !m.opts.LoadFeatures {
		feat = nil
	}
	enc, err := m.encoder.Encode(label, inst, real, feat)
	if err != nil {
		return encode.Encoded{}, errors.Wrap(err, "model: encode input")
	}
	return enc, nil
}

// encodeFeatures runs the encoder on image with the segmentation map seg.
func (m *Model) encodeFeatures(image, seg *tensor.Dense, fast bool) (*tensor.Dense, error) {
	if m.nets.E == nil {
		return nil, errors.New("model: no feature encoder")
	}
	if image == nil || seg == nil {
		return nil, errors.New("model: feature encoding needs an image and a segmentation map")
	}
	var (
		feat *tensor.Dense
		err  error
	)
	if fe, ok := m.nets.E.(net.FastEncoder); ok && fast {
		feat, err = fe.ForwardFast(image, seg)
	} else {
		feat, err = m.nets.E.Forward(image, seg)
	}
	if err != nil {
		return nil, errors.Wrap(err, "model: encoder forward")
	}
	return feat, nil
}

// pass holds the tensors of one generator evaluation.
type pass struct {
	label *tensor.Dense // encoded label with edges
	real  *tensor.Dense
	input *tensor.Dense // generator input
	seg   *tensor.Dense // encoder segmentation map, nil without an encoder
	fake  *tensor.Dense
}

// generate encodes the inputs, builds the feature map when features are used,
// and runs the generator.
func (m *Model) generate(label, inst, image, feat *tensor.Dense) (pass, error) {
	if image == nil {
		return pass{}, errors.New("model: real image is required")
	}
	enc, err := m.EncodeInput(label, inst, image, feat)
	if err != nil {
		return pass{}, err
	}
	p := pass{label: enc.Label, real: enc.Real, input: enc.Label}

	if m.opts.UseFeatures() {
		featMap := enc.Features
		if !m.opts.LoadFeatures {
			seg := enc.Instance
			if m.opts.LabelFeat {
				seg = label
			}
			featMap, err = m.encodeFeatures(enc.Real, seg, m.opts.Faster)
			if err != nil {
				return pass{}, err
			}
			p.seg = seg
		}
		if featMap == nil {
			return pass{}, errors.New("model: precomputed feature map is required")
		}
		if p.input, err = spatial.ConcatChannels(enc.Label, featMap); err != nil {
			return pass{}, err
		}
	}

	p.fake, err = m.nets.G.Forward(p.input)
	if err != nil {
		return pass{}, errors.Wrap(err, "model: generator forward")
	}
	return p, nil
}

// discriminate scores image under the encoded label. Fakes meant for the
// discriminator loss go through the history pool.
func (m *Model) discriminate(label, image *tensor.Dense, usePool bool) (net.Prediction, *tensor.Dense, error) {
	in, err := spatial.ConcatChannels(label, image)
	if err != nil {
		return nil, nil, err
	}
	if usePool {
		in = m.pool.Query(in)
	}
	pred, err := m.nets.D.Forward(in)
	if err != nil {
		return nil, nil, errors.Wrap(err, "model: discriminator forward")
	}
	return pred, in, nil
}

// Forward runs one training pass and returns the enabled loss terms in
// LossNames order. The generated image is returned only when infer is set.
// The pooled fake it scores is kept for the next StepD, so an iteration of
// Forward then StepD queries the history pool once.
func (m *Model) Forward(label, inst, image, feat *tensor.Dense, infer bool) (loss.Terms, *tensor.Dense, error) {
	if err := m.requireTraining("Forward"); err != nil {
		return nil, nil, err
	}
	p, err := m.generate(label, inst, image, feat)
	if err != nil {
		return nil, nil, err
	}

	predFakePool, pooled, err := m.discriminate(p.label, p.fake, true)
	if err != nil {
		return nil, nil, err
	}
	predReal, _, err := m.discriminate(p.label, p.real, false)
	if err != nil {
		return nil, nil, err
	}
	predFake, _, err := m.discriminate(p.label, p.fake, false)
	if err != nil {
		return nil, nil, err
	}

	terms, err := m.losses.Compute(loss.Inputs{
		PredFakePool: predFakePool,
		PredReal:     predReal,
		PredFake:     predFake,
		Fake:         p.fake,
		Real:         p.real,
	})
	if err != nil {
		return nil, nil, err
	}
	m.pooled = pooled
	if !infer {
		return terms, nil, nil
	}
	return terms, p.fake, nil
}

// StepD runs one discriminator update on pooled fakes and real images and
// returns the discriminator objective, the mean of D_fake and D_real. The
// pooled fake left by a preceding Forward is used when present; otherwise
// a fresh fake is generated and pooled.
func (m *Model) StepD(label, inst, image, feat *tensor.Dense) (float64, error) {
	if err := m.requireTraining("StepD"); err != nil {
		return 0, err
	}
	d, ok := m.nets.D.(net.TrainableDiscriminator)
	if !ok {
		return 0, errors.New("model: discriminator cannot backpropagate")
	}
	fakeIn, realIn, err := m.discriminatorInputs(label, inst, image, feat)
	if err != nil {
		return 0, err
	}
	predFake, err := m.nets.D.Forward(fakeIn)
	if err != nil {
		return 0, errors.Wrap(err, "model: discriminator forward")
	}
	predReal, err := m.nets.D.Forward(realIn)
	if err != nil {
		return 0, errors.Wrap(err, "model: discriminator forward")
	}

	gan := m.losses.GAN
	objective := 0.5 * (gan.Forward(predFake, false) + gan.Forward(predReal, true))

	fakeGrads := gan.Backward(predFake, false)
	realGrads := gan.Backward(predReal, true)
	grads := make([]*tensor.Dense, len(fakeGrads))
	for s := range grads {
		if grads[s], err = spatial.ConcatBatch(fakeGrads[s], realGrads[s]); err != nil {
			return 0, err
		}
		spatial.Scale(grads[s], 0.5)
	}
	both, err := spatial.ConcatBatch(fakeIn, realIn)
	if err != nil {
		return 0, err
	}
	if _, err := d.Backward(both, grads); err != nil {
		return 0, errors.Wrap(err, "model: discriminator backward")
	}
	m.optD.Step()
	return objective, nil
}

// discriminatorInputs returns the pooled fake and the real discriminator
// inputs of one batch.
func (m *Model) discriminatorInputs(label, inst, image, feat *tensor.Dense) (fakeIn, realIn *tensor.Dense, err error) {
	if m.pooled != nil {
		fakeIn, m.pooled = m.pooled, nil
		if image == nil {
			return nil, nil, errors.New("model: real image is required")
		}
		enc, err := m.EncodeInput(label, inst, image, feat)
		if err != nil {
			return nil, nil, err
		}
		if realIn, err = spatial.ConcatChannels(enc.Label, enc.Real); err != nil {
			return nil, nil, err
		}
		return fakeIn, realIn, nil
	}
	p, err := m.generate(label, inst, image, feat)
	if err != nil {
		return nil, nil, err
	}
	if fakeIn, err = spatial.ConcatChannels(p.label, p.fake); err != nil {
		return nil, nil, err
	}
	if realIn, err = spatial.ConcatChannels(p.label, p.real); err != nil {
		return nil, nil, err
	}
	return m.pool.Query(fakeIn), realIn, nil
}

// StepG runs one generator update and returns the backpropagated objective:
// the adversarial term plus the weighted reconstruction term when enabled.
// Feature matching and perceptual terms are reported by Forward only. When
// features are generated, the gradient of the feature channels of the
// generator input also trains the encoder, through its full Forward path
// even with Faster.
func (m *Model) StepG(label, inst, image, feat *tensor.Dense) (float64, error) {
	if err := m.requireTraining("StepG"); err != nil {
		return 0, err
	}
	g, ok := m.nets.G.(net.TrainableGenerator)
	if !ok {
		return 0, errors.New("model: generator cannot backpropagate")
	}
	d, ok := m.nets.D.(net.TrainableDiscriminator)
	if !ok {
		return 0, errors.New("model: discriminator cannot backpropagate")
	}
	p, err := m.generate(label, inst, image, feat)
	if err != nil {
		return 0, err
	}
	pred, in, err := m.discriminate(p.label, p.fake, false)
	if err != nil {
		return 0, err
	}

	gan := m.losses.GAN
	objective := gan.Forward(pred, true)
	inGrad, err := d.Backward(in, gan.Backward(pred, true))
	if err != nil {
		return 0, errors.Wrap(err, "model: discriminator backward")
	}
	_, labelNC, _, _ := spatial.Dims(p.label)
	_, outNC, _, _ := spatial.Dims(p.fake)
	fakeGrad, err := spatial.Channels(inGrad, labelNC, outNC)
	if err != nil {
		return 0, err
	}

	if m.losses.Flags.Recon {
		fake, real := spatial.Data(p.fake), spatial.Data(p.real)
		objective += loss.L1Loss{}.Forward(fake, real) * m.opts.LambdaRecon
		dst := spatial.Data(fakeGrad)
		for i, v := range (loss.L1Loss{}).Backward(fake, real) {
			dst[i] += v * m.opts.LambdaRecon
		}
	}

	inputGrad, err := g.Backward(p.input, fakeGrad)
	if err != nil {
		return 0, errors.Wrap(err, "model: generator backward")
	}
	if p.seg != nil {
		e, ok := m.nets.E.(net.TrainableEncoder)
		if !ok {
			return 0, errors.New("model: encoder cannot backpropagate")
		}
		featGrad, err := spatial.Channels(inputGrad, labelNC, m.opts.FeatNum)
		if err != nil {
			return 0, err
		}
		if err := e.Backward(p.real, p.seg, featGrad); err != nil {
			return 0, errors.Wrap(err, "model: encoder backward")
		}
	}
	m.optG.Step()
	return objective, nil
}
