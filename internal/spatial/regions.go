package spatial

import (
	"slices"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// Regions groups the pixels of a single channel map by key. Pixel positions
// are flat indices b*H*W + y*W + x, so every set enumerates its pixels in
// row-major order within a sample and sample order across the batch.
type Regions[K ~int] struct {
	keys []K
	sets map[K]*roaring.Bitmap
	h, w int
}

// LabelRegions groups every pixel of the map by its raw label value.
func LabelRegions(m *tensor.Dense) (*Regions[Label], error) {
	n, _, _, _ := Dims(m)
	return regionsOf(m, 0, n, func(l Label) Label { return l })
}

// SampleClassRegions groups the pixels of sample b by decoded class.
func SampleClassRegions(m *tensor.Dense, b int) (*Regions[ClassID], error) {
	n, _, _, _ := Dims(m)
	if b < 0 || b >= n {
		return nil, errors.Errorf("spatial: sample %d out of range for batch of %d", b, n)
	}
	return regionsOf(m, b, b+1, Label.Class)
}

func regionsOf[K ~int](m *tensor.Dense, from, to int, key func(Label) K) (*Regions[K], error) {
	labels, err := Labels(m)
	if err != nil {
		return nil, err
	}
	_, _, h, w := Dims(m)
	plane := h * w
	r := &Regions[K]{sets: make(map[K]*roaring.Bitmap), h: h, w: w}
	for pos := from * plane; pos < to*plane; pos++ {
		k := key(labels[pos])
		set, ok := r.sets[k]
		if !ok {
			set = roaring.New()
			r.sets[k] = set
			r.keys = append(r.keys, k)
		}
		set.Add(uint32(pos))
	}
	slices.Sort(r.keys)
	return r, nil
}

// Keys returns the distinct keys in ascending order.
func (r *Regions[K]) Keys() []K {
	return r.keys
}

// Has reports whether any pixel carries key k.
func (r *Regions[K]) Has(k K) bool {
	_, ok := r.sets[k]
	return ok
}

// Count returns the number of pixels carrying k.
func (r *Regions[K]) Count(k K) int {
	set, ok := r.sets[k]
	if !ok {
		return 0
	}
	return int(set.GetCardinality())
}

// Positions returns the flat positions of k in scan order.
func (r *Regions[K]) Positions(k K) []uint32 {
	set, ok := r.sets[k]
	if !ok {
		return nil
	}
	return set.ToArray()
}

// Median returns the position at index Count(k)/2 in scan order.
func (r *Regions[K]) Median(k K) (uint32, bool) {
	set, ok := r.sets[k]
	if !ok {
		return 0, false
	}
	pos, err := set.Select(uint32(set.GetCardinality() / 2))
	if err != nil {
		return 0, false
	}
	return pos, true
}

// First returns the first position of k in scan order.
func (r *Regions[K]) First(k K) (uint32, bool) {
	set, ok := r.sets[k]
	if !ok {
		return 0, false
	}
	return set.Minimum(), true
}

// Pixel splits a flat position into sample, row and column.
func (r *Regions[K]) Pixel(pos uint32) (b, y, x int) {
	p := int(pos)
	plane := r.h * r.w
	b = p / plane
	rem := p % plane
	return b, rem / r.w, rem % r.w
}
