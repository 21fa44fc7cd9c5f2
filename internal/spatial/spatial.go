// Package spatial holds the NCHW tensor helpers shared by the input encoder,
// the feature subsystem and the reference networks.
//
// Every tensor handled here is a contiguous *tensor.Dense of float64 laid out
// as (batch, channel, row, column). Label and instance maps are single
// channel tensors whose values are integral.
package spatial

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// compositeBase separates class and instance in composite label values.
const compositeBase = 1000

// Label is a raw value of a label or instance map.
type Label int

// ClassID identifies a semantic class. It is never a composite id.
type ClassID int

// Class decodes the semantic class carried by l.
func (l Label) Class() ClassID {
	if l < compositeBase {
		return ClassID(l)
	}
	return ClassID(l / compositeBase)
}

// New allocates a zeroed NCHW tensor.
func New(n, c, h, w int) *tensor.Dense {
	return FromSlice(make([]float64, n*c*h*w), n, c, h, w)
}

// FromSlice wraps data as an NCHW tensor without copying.
func FromSlice(data []float64, n, c, h, w int) *tensor.Dense {
	if len(data) != n*c*h*w {
		panic(fmt.Sprintf("spatial: %d values do not fit shape (%d,%d,%d,%d)", len(data), n, c, h, w))
	}
	return tensor.New(tensor.WithShape(n, c, h, w), tensor.WithBacking(data))
}

// Dims returns the batch, channel, height and width of t.
func Dims(t *tensor.Dense) (n, c, h, w int) {
	s := t.Shape()
	if len(s) != 4 {
		panic(fmt.Sprintf("spatial: expected NCHW tensor, got shape %v", s))
	}
	return s[0], s[1], s[2], s[3]
}

// Data returns the backing slice of t. Writes through it mutate t.
func Data(t *tensor.Dense) []float64 {
	return t.Data().([]float64)
}

// Clone returns a deep copy of t.
func Clone(t *tensor.Dense) *tensor.Dense {
	if t == nil {
		return nil
	}
	n, c, h, w := Dims(t)
	data := make([]float64, n*c*h*w)
	copy(data, Data(t))
	return FromSlice(data, n, c, h, w)
}

// Offset returns the flat index of (b, ch, y, x) in a tensor of the given
// channel count and spatial size.
func Offset(b, ch, y, x, c, h, w int) int {
	return ((b*c+ch)*h+y)*w + x
}

// ConcatChannels joins tensors along the channel axis. Nil entries are
// skipped; all others must share batch and spatial size.
func ConcatChannels(ts ...*tensor.Dense) (*tensor.Dense, error) {
	var parts []*tensor.Dense
	for _, t := range ts {
		if t != nil {
			parts = append(parts, t)
		}
	}
	if len(parts) == 0 {
		return nil, errors.New("spatial: nothing to concatenate")
	}
	n, _, h, w := Dims(parts[0])
	for _, p := range parts[1:] {
		pn, _, ph, pw := Dims(p)
		if pn != n || ph != h || pw != w {
			return nil, errors.Errorf("spatial: cannot concatenate %v with %v", p.Shape(), parts[0].Shape())
		}
	}
	if len(parts) == 1 {
		return Clone(parts[0]), nil
	}
	out, err := parts[0].Concat(1, parts[1:]...)
	if err != nil {
		return nil, errors.Wrap(err, "spatial: concat channels")
	}
	return out, nil
}

// ConcatBatch joins tensors of identical per-sample shape along the batch
// axis.
func ConcatBatch(first *tensor.Dense, rest ...*tensor.Dense) (*tensor.Dense, error) {
	_, c, h, w := Dims(first)
	for _, t := range rest {
		if _, tc, th, tw := Dims(t); tc != c || th != h || tw != w {
			return nil, errors.Errorf("spatial: cannot stack %v with %v", t.Shape(), first.Shape())
		}
	}
	if len(rest) == 0 {
		return Clone(first), nil
	}
	out, err := first.Concat(0, rest...)
	if err != nil {
		return nil, errors.Wrap(err, "spatial: concat batch")
	}
	return out, nil
}

// Channels copies channels [from, from+count) of t.
func Channels(t *tensor.Dense, from, count int) (*tensor.Dense, error) {
	n, c, h, w := Dims(t)
	if from < 0 || count < 0 || from+count > c {
		return nil, errors.Errorf("spatial: channels [%d, %d) out of range for %d", from, from+count, c)
	}
	src := Data(t)
	out := New(n, count, h, w)
	dst := Data(out)
	plane := h * w
	for b := 0; b < n; b++ {
		s := Offset(b, from, 0, 0, c, h, w)
		d := Offset(b, 0, 0, 0, count, h, w)
		copy(dst[d:d+count*plane], src[s:s+count*plane])
	}
	return out, nil
}

// Scale multiplies every value of t by k in place.
func Scale(t *tensor.Dense, k float64) {
	data := Data(t)
	for i := range data {
		data[i] *= k
	}
}

// Labels reads the integral label at every position of a single channel map.
func Labels(m *tensor.Dense) ([]Label, error) {
	_, c, _, _ := Dims(m)
	if c != 1 {
		return nil, errors.Errorf("spatial: label map must have one channel, got %d", c)
	}
	data := Data(m)
	out := make([]Label, len(data))
	for i, v := range data {
		out[i] = Label(int(v))
	}
	return out, nil
}

// Half rounds v to the nearest value representable in IEEE 754 binary16.
func Half(v float64) float64 {
	if v == 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	if math.Abs(v) < 0x1p-14 {
		return math.RoundToEven(v*0x1p24) * 0x1p-24
	}
	frac, exp := math.Frexp(v)
	r := math.Ldexp(math.RoundToEven(frac*2048)/2048, exp)
	if math.Abs(r) > 65504 {
		return math.Inf(int(math.Copysign(1, v)))
	}
	return r
}

// HalfInPlace rounds every value of t to binary16 precision.
func HalfInPlace(t *tensor.Dense) {
	data := Data(t)
	for i, v := range data {
		data[i] = Half(v)
	}
}
