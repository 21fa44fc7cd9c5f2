// Package feature extracts, clusters, broadcasts and swaps per-instance
// appearance feature vectors over label and instance maps.
//
// A feature map is an (N, featNum, H, W) tensor in which every pixel of one
// instance carries the same vector. Instance and label values of 1000 or more
// are composite ids whose class is value/1000; every per-class structure in
// this package is keyed by the decoded class, never by the composite id.
//
// Pixels of a region are always visited in row-major order within a sample
// and in sample order across a batch. Representative pixels and swap
// correspondences are defined in terms of that order.
package feature

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gorgonia.org/tensor"

	"github.com/FlavioCFOliveira/GoNeuronHD/internal/spatial"
)

var (
	// ErrClassAbsent reports a swap class missing from the condition map.
	ErrClassAbsent = errors.New("feature: class absent from condition map")
	// ErrNoEquivalent reports a swap class that is missing from the
	// reference map and has no equivalent class present there either.
	ErrNoEquivalent = errors.New("feature: no equivalent class in reference map")
)

// blockNum normalises instance pixel counts: occupancy is the count divided
// by H*W/blockNum.
const blockNum = 32

// Vector is one feature vector.
type Vector []float64

// Vectors maps a class to the single vector broadcast for it.
type Vectors map[spatial.ClassID]Vector

// Dictionary maps a class to its clustered feature vectors, one cluster per
// row.
type Dictionary map[spatial.ClassID]*mat.Dense

// Classes returns the number of classes with at least one cluster.
func (d Dictionary) Classes() int {
	n := 0
	for _, m := range d {
		if m != nil {
			n++
		}
	}
	return n
}

// Stats holds raw per-instance rows gathered by Extract, keyed by class.
// Each row is a feature vector followed by the instance occupancy.
type Stats map[spatial.ClassID][]Vector

// Accumulate appends every row of src to dst.
func (dst Stats) Accumulate(src Stats) {
	for class, rows := range src {
		dst[class] = append(dst[class], rows...)
	}
}

// Rows returns the total number of rows.
func (s Stats) Rows() int {
	n := 0
	for _, rows := range s {
		n += len(rows)
	}
	return n
}

// fill writes v[:featNum] at every position of the region into out.
func fill(out *tensor.Dense, positions []uint32, v []float64, featNum int) {
	_, _, h, w := spatial.Dims(out)
	dst := spatial.Data(out)
	plane := h * w
	for _, pos := range positions {
		p := int(pos)
		b, rem := p/plane, p%plane
		for k := 0; k < featNum; k++ {
			dst[spatial.Offset(b, k, rem/w, rem%w, featNum, h, w)] = v[k]
		}
	}
}

// vectorAt reads the channel values of feat at a flat pixel position.
func vectorAt(feat *tensor.Dense, pos uint32) Vector {
	_, c, h, w := spatial.Dims(feat)
	src := spatial.Data(feat)
	plane := h * w
	p := int(pos)
	b, rem := p/plane, p%plane
	v := make(Vector, c)
	for k := range v {
		v[k] = src[spatial.Offset(b, k, rem/w, rem%w, c, h, w)]
	}
	return v
}

func checkSpatial(feat, m *tensor.Dense) error {
	fn, _, fh, fw := spatial.Dims(feat)
	mn, _, mh, mw := spatial.Dims(m)
	if fn != mn || fh != mh || fw != mw {
		return errors.Errorf("feature: feature map %v does not match map %v", feat.Shape(), m.Shape())
	}
	return nil
}
