package net

import (
	"math/rand/v2"

	"gorgonia.org/tensor"

	"github.com/FlavioCFOliveira/GoNeuronHD/internal/spatial"
)

// Pool returns the images the discriminator is trained on as fakes.
type Pool interface {
	Query(images *tensor.Dense) *tensor.Dense
}

// NopPool returns its input.
type NopPool struct{}

// Query returns images unchanged.
func (NopPool) Query(images *tensor.Dense) *tensor.Dense { return images }

// HistoryPool keeps up to Size previously generated samples. Once full, each
// queried sample is swapped for a stored one with probability one half, so
// the discriminator also sees older fakes. A HistoryPool is not safe for
// concurrent use and must not be shared between replicas.
type HistoryPool struct {
	size    int
	samples [][]float64
	rng     *rand.Rand
}

// NewHistoryPool creates a pool of size samples. A nil rng uses the global
// source.
func NewHistoryPool(size int, rng *rand.Rand) *HistoryPool {
	return &HistoryPool{size: size, rng: rng}
}

func (p *HistoryPool) float() float64 {
	if p.rng != nil {
		return p.rng.Float64()
	}
	return rand.Float64()
}

func (p *HistoryPool) intN(n int) int {
	if p.rng != nil {
		return p.rng.IntN(n)
	}
	return rand.IntN(n)
}

// Query returns a batch of the same shape as images.
func (p *HistoryPool) Query(images *tensor.Dense) *tensor.Dense {
	if p.size <= 0 {
		return images
	}
	n, c, h, w := spatial.Dims(images)
	src := spatial.Data(images)
	out := spatial.New(n, c, h, w)
	dst := spatial.Data(out)
	per := c * h * w
	for b := 0; b < n; b++ {
		sample := append([]float64(nil), src[b*per:(b+1)*per]...)
		switch {
		case len(p.samples) < p.size:
			p.samples = append(p.samples, sample)
			copy(dst[b*per:], sample)
		case p.float() > 0.5:
			i := p.intN(p.size)
			copy(dst[b*per:], p.samples[i])
			p.samples[i] = sample
		default:
			copy(dst[b*per:], sample)
		}
	}
	return out
}

// Len returns the number of stored samples.
func (p *HistoryPool) Len() int { return len(p.samples) }
