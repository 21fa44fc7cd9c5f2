package model

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorgonia.org/tensor"

	"github.com/FlavioCFOliveira/GoNeuronHD/internal/feature"
	"github.com/FlavioCFOliveira/GoNeuronHD/internal/spatial"
)

func (m *Model) half(t *tensor.Dense) {
	if m.opts.DataType == 16 {
		spatial.HalfInPlace(t)
	}
}

func (m *Model) run(label, featMap *tensor.Dense) (*tensor.Dense, error) {
	input := label
	if featMap != nil {
		var err error
		if input, err = spatial.ConcatChannels(label, featMap); err != nil {
			return nil, err
		}
	}
	fake, err := m.nets.G.Forward(input)
	if err != nil {
		return nil, errors.Wrap(err, "model: generator forward")
	}
	return fake, nil
}

// Inference generates an image from a label map and an instance map. When
// features are used, one cluster per instance is drawn from the clustered
// dictionary in the experiment directory.
func (m *Model) Inference(label, inst *tensor.Dense) (*tensor.Dense, error) {
	enc, err := m.EncodeInput(label, inst, nil, nil)
	if err != nil {
		return nil, err
	}
	var featMap *tensor.Dense
	if m.opts.UseFeatures() {
		if featMap, err = m.SampleFeatures(inst); err != nil {
			return nil, err
		}
	}
	return m.run(enc.Label, featMap)
}

// Predict is Inference.
func (m *Model) Predict(label, inst *tensor.Dense) (*tensor.Dense, error) {
	return m.Inference(label, inst)
}

// SampleFeatures builds a feature map for inst from the clustered dictionary.
// The dictionary file is read once and then served from a cache.
func (m *Model) SampleFeatures(inst *tensor.Dense) (*tensor.Dense, error) {
	if inst == nil {
		return nil, errors.New("model: instance map required to sample features")
	}
	dict, err := m.dictionaries.Load(m.opts.ClusterFile())
	if err != nil {
		return nil, errors.Wrap(err, "model: load clustered features")
	}
	featMap, err := feature.Sample(dict, inst, m.opts.FeatNum, m.rng)
	if err != nil {
		return nil, err
	}
	m.half(featMap)
	return featMap, nil
}

// SetAverageFeatures installs per-class average vectors for the fromAvg
// fallback of InferenceGivenFeature.
func (m *Model) SetAverageFeatures(avg feature.Vectors) { m.averages = avg }

// BroadcastFeatures builds a feature map from one vector per class of label.
// With random, the configured random feature class gets a freshly drawn
// vector. With fromAvg, classes without a vector use the average features.
func (m *Model) BroadcastFeatures(vectors feature.Vectors, label *tensor.Dense, random, fromAvg bool) (*tensor.Dense, error) {
	if fromAvg && m.averages == nil {
		return nil, errors.New("model: average features not set")
	}
	featMap, err := feature.Broadcast(vectors, label, m.opts.FeatNum, feature.BroadcastOptions{
		Random:      random,
		RandomClass: spatial.ClassID(m.opts.RandomFeatureClass),
		RandomType:  m.opts.RandomType,
		FromAvg:     fromAvg,
		Averages:    m.averages,
		Rand:        m.rng,
	})
	if err != nil {
		return nil, err
	}
	m.half(featMap)
	return featMap, nil
}

// InferenceGivenFeature generates an image with the supplied per-class
// feature vectors broadcast over label.
func (m *Model) InferenceGivenFeature(label, inst *tensor.Dense, vectors feature.Vectors, random, fromAvg bool) (*tensor.Dense, error) {
	enc, err := m.EncodeInput(label, inst, nil, nil)
	if err != nil {
		return nil, err
	}
	var featMap *tensor.Dense
	if m.opts.UseFeatures() {
		if featMap, err = m.BroadcastFeatures(vectors, label, random, fromAvg); err != nil {
			return nil, err
		}
	}
	return m.run(enc.Label, featMap)
}

// ConditionInference generates an image whose swapID region carries the
// appearance of the reference image. The reference features are encoded
// from refImg under refLabel. With a condition image, its own features are
// encoded and the swapID region is overwritten with the reference features
// of the same or equivalent class before generating from the condition
// label. Without one, the image is generated from the reference alone.
func (m *Model) ConditionInference(condLabel, refLabel, condInst, refInst, condImg, refImg *tensor.Dense, swapID spatial.ClassID) (*tensor.Dense, error) {
	ref, err := m.EncodeInput(refLabel, refInst, refImg, nil)
	if err != nil {
		return nil, err
	}
	refFeat, err := m.encodeFeatures(ref.Real, refLabel, false)
	if err != nil {
		return nil, err
	}
	if condImg == nil {
		return m.run(ref.Label, refFeat)
	}

	cond, err := m.EncodeInput(condLabel, condInst, condImg, nil)
	if err != nil {
		return nil, err
	}
	condFeat, err := m.encodeFeatures(cond.Real, condLabel, false)
	if err != nil {
		return nil, err
	}
	swapped, err := feature.Swap(swapID, condFeat, refFeat, condLabel, refLabel, m.equivalence)
	if err != nil {
		return nil, errors.Wrapf(err, "model: swap class %d", swapID)
	}
	m.log.Debug("swapped features",
		zap.Int("class", int(swapID)),
		zap.Int("source", int(swapped.Source)),
		zap.Int("pixels", swapped.Pixels))
	return m.run(cond.Label, swapped.Features)
}

// EncodeFeatures encodes image under inst and returns one raw row per
// instance, keyed by class, for later clustering.
func (m *Model) EncodeFeatures(image, inst *tensor.Dense) (feature.Stats, error) {
	feat, err := m.encodeFeatures(image, inst, false)
	if err != nil {
		return nil, err
	}
	return feature.Extract(feat, inst, m.opts.FeatNum, m.opts.LabelNC)
}

// SimpleEncodeFeatures encodes image under inst and returns the vector at
// the first pixel of every instance, keyed by instance label.
func (m *Model) SimpleEncodeFeatures(image, inst *tensor.Dense) (map[spatial.Label]feature.Vector, error) {
	feat, err := m.encodeFeatures(image, inst, false)
	if err != nil {
		return nil, err
	}
	return feature.ExtractFirst(feat, inst)
}
