package feature

import (
	"math/rand/v2"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat/distuv"
	"gorgonia.org/tensor"

	"github.com/FlavioCFOliveira/GoNeuronHD/internal/spatial"
)

// Random vector distributions.
const (
	Gaussian = "gauss"
	Uniform  = "uni"
)

// BroadcastOptions controls Broadcast.
type BroadcastOptions struct {
	// Random replaces the vector of RandomClass with a freshly drawn one.
	Random      bool
	RandomClass spatial.ClassID
	// RandomType is Gaussian (standard normal) or Uniform on [-1, 1).
	RandomType string

	// FromAvg fills classes missing from the vectors with Averages.
	FromAvg  bool
	Averages Vectors

	// Rand is the source of random draws. Nil uses the global source.
	Rand *rand.Rand
}

// RandomVector draws n values from the named distribution.
func RandomVector(n int, kind string, rng *rand.Rand) (Vector, error) {
	var src rand.Source
	if rng != nil {
		src = rng
	}
	var draw func() float64
	switch kind {
	case Gaussian, "":
		draw = distuv.Normal{Mu: 0, Sigma: 1, Src: src}.Rand
	case Uniform:
		draw = distuv.Uniform{Min: -1, Max: 1, Src: src}.Rand
	default:
		return nil, errors.Errorf("feature: unknown random type %q", kind)
	}
	v := make(Vector, n)
	for i := range v {
		v[i] = draw()
	}
	return v, nil
}

// Broadcast builds an (N, featNum, H, W) feature map from one vector per
// class. Every pixel of label whose decoded class has a vector receives it.
// Classes without a vector stay zero unless opts.FromAvg supplies an average.
func Broadcast(vectors Vectors, label *tensor.Dense, featNum int, opts BroadcastOptions) (*tensor.Dense, error) {
	regions, err := spatial.LabelRegions(label)
	if err != nil {
		return nil, err
	}
	n, _, h, w := spatial.Dims(label)
	out := spatial.New(n, featNum, h, w)

	for _, id := range regions.Keys() {
		class := id.Class()
		v, ok := vectors[class]
		switch {
		case ok && opts.Random && class == opts.RandomClass:
			v, err = RandomVector(len(v), opts.RandomType, opts.Rand)
			if err != nil {
				return nil, err
			}
		case !ok && opts.FromAvg:
			v, ok = opts.Averages[class]
		}
		if !ok {
			continue
		}
		if len(v) < featNum {
			return nil, errors.Errorf("feature: class %d vector has %d values, need %d", class, len(v), featNum)
		}
		fill(out, regions.Positions(id), v, featNum)
	}
	return out, nil
}

// Sample builds a feature map by drawing, for every instance of inst whose
// class is in dict, one cluster uniformly at random and broadcasting it over
// the instance. Classes absent from dict stay zero.
func Sample(dict Dictionary, inst *tensor.Dense, featNum int, rng *rand.Rand) (*tensor.Dense, error) {
	regions, err := spatial.LabelRegions(inst)
	if err != nil {
		return nil, err
	}
	intN := rand.IntN
	if rng != nil {
		intN = rng.IntN
	}
	n, _, h, w := spatial.Dims(inst)
	out := spatial.New(n, featNum, h, w)

	for _, id := range regions.Keys() {
		clusters, ok := dict[id.Class()]
		if !ok || clusters == nil {
			continue
		}
		rows, cols := clusters.Dims()
		if cols < featNum {
			return nil, errors.Errorf("feature: class %d clusters have %d values, need %d", id.Class(), cols, featNum)
		}
		fill(out, regions.Positions(id), clusters.RawRowView(intN(rows)), featNum)
	}
	return out, nil
}
