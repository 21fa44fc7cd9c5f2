// Package encode turns raw label maps, instance maps and images into the
// tensors the generator and discriminator consume.
package encode

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/FlavioCFOliveira/GoNeuronHD/internal/spatial"
)

// Encoder holds the input encoding settings.
type Encoder struct {
	// LabelNC is the number of semantic classes. Zero means label maps are
	// already continuous and pass through unchanged.
	LabelNC int
	// Instance appends the instance edge map to the encoded label.
	Instance bool
	// Half rounds the encoded label and feature map to binary16 precision.
	Half bool
}

// Encoded is the result of Encode. Every tensor is owned by the caller and
// shares no storage with the inputs.
type Encoded struct {
	Label    *tensor.Dense
	Instance *tensor.Dense
	Real     *tensor.Dense
	Features *tensor.Dense
}

// Encode builds the generator conditioning input. inst is required when the
// encoder appends edges; real and feat may be nil.
func (e Encoder) Encode(label, inst, real, feat *tensor.Dense) (Encoded, error) {
	var (
		out Encoded
		err error
	)
	if e.LabelNC == 0 {
		out.Label = spatial.Clone(label)
	} else {
		out.Label, err = OneHot(label, e.LabelNC)
		if err != nil {
			return Encoded{}, err
		}
	}
	if e.Half {
		spatial.HalfInPlace(out.Label)
	}

	if e.Instance {
		if inst == nil {
			return Encoded{}, errors.New("encode: instance map required for edge extraction")
		}
		edges, err := Edges(inst)
		if err != nil {
			return Encoded{}, err
		}
		out.Label, err = spatial.ConcatChannels(out.Label, edges)
		if err != nil {
			return Encoded{}, errors.Wrap(err, "encode: append edges")
		}
	}

	out.Instance = spatial.Clone(inst)
	out.Real = spatial.Clone(real)
	out.Features = spatial.Clone(feat)
	if e.Half && out.Features != nil {
		spatial.HalfInPlace(out.Features)
	}
	return out, nil
}

// OneHot expands a single channel label map of shape (N,1,H,W) into (N,nc,H,W)
// with a 1 in the channel of each pixel's label.
func OneHot(label *tensor.Dense, nc int) (*tensor.Dense, error) {
	labels, err := spatial.Labels(label)
	if err != nil {
		return nil, err
	}
	n, _, h, w := spatial.Dims(label)
	out := spatial.New(n, nc, h, w)
	dst := spatial.Data(out)
	plane := h * w
	for pos, l := range labels {
		if l < 0 || int(l) >= nc {
			return nil, errors.Errorf("encode: label %d outside [0, %d)", l, nc)
		}
		b, rem := pos/plane, pos%plane
		dst[spatial.Offset(b, int(l), rem/w, rem%w, nc, h, w)] = 1
	}
	return out, nil
}

// Decode returns the single channel label map holding, at every pixel, the
// channel with the largest value. Ties resolve to the lowest channel.
func Decode(oneHot *tensor.Dense) *tensor.Dense {
	n, c, h, w := spatial.Dims(oneHot)
	src := spatial.Data(oneHot)
	out := spatial.New(n, 1, h, w)
	dst := spatial.Data(out)
	for b := 0; b < n; b++ {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				best := 0
				for ch := 1; ch < c; ch++ {
					if src[spatial.Offset(b, ch, y, x, c, h, w)] > src[spatial.Offset(b, best, y, x, c, h, w)] {
						best = ch
					}
				}
				dst[spatial.Offset(b, 0, y, x, 1, h, w)] = float64(best)
			}
		}
	}
	return out
}

// Edges marks every pixel whose horizontal or vertical neighbour belongs to
// a different instance. Both pixels of a differing pair are marked.
func Edges(inst *tensor.Dense) (*tensor.Dense, error) {
	n, c, h, w := spatial.Dims(inst)
	if c != 1 {
		return nil, errors.Errorf("encode: instance map must have one channel, got %d", c)
	}
	src := spatial.Data(inst)
	out := spatial.New(n, 1, h, w)
	edge := spatial.Data(out)
	for b := 0; b < n; b++ {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				i := spatial.Offset(b, 0, y, x, 1, h, w)
				if x+1 < w && src[i] != src[i+1] {
					edge[i], edge[i+1] = 1, 1
				}
				if y+1 < h && src[i] != src[i+w] {
					edge[i], edge[i+w] = 1, 1
				}
			}
		}
	}
	return out, nil
}
