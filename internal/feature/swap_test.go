package feature

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"

	"github.com/FlavioCFOliveira/GoNeuronHD/internal/spatial"
)

// regionMap returns a (1,1,h,w) map holding id at the first count
// positions in row-major order and fill elsewhere.
func regionMap(h, w int, id, fill float64, count int) *tensor.Dense {
	m := spatial.New(1, 1, h, w)
	for p := range spatial.Data(m) {
		if p < count {
			spatial.Data(m)[p] = id
		} else {
			spatial.Data(m)[p] = fill
		}
	}
	return m
}

func TestSwapPositionalPrefix(t *testing.T) {
	condLabel := regionMap(4, 5, 5, 0, 10) // class 5 at 10 pixels
	refLabel := regionMap(5, 5, 5, 2, 20)  // class 5 at 20 pixels

	cond := indexedFeatures(4, 5, 1000)
	ref := indexedFeatures(5, 5, 0)
	condBefore := spatial.Clone(cond)
	refBefore := spatial.Clone(ref)

	res, err := Swap(5, cond, ref, condLabel, refLabel, DefaultEquivalence())
	require.NoError(t, err)
	assert.Equal(t, spatial.ClassID(5), res.Source)
	assert.Equal(t, 10, res.Pixels)

	for p := 0; p < 20; p++ {
		y, x := p/5, p%5
		if p < 10 {
			// condition pixel i takes reference pixel i
			assert.Equal(t, []float64{float64(p), -float64(p)}, pixel(res.Features, y, x), "pixel %d", p)
		} else {
			assert.Equal(t, pixel(condBefore, y, x), pixel(res.Features, y, x), "pixel %d", p)
		}
	}

	assert.Equal(t, spatial.Data(refBefore), spatial.Data(ref), "reference map must not change")
	assert.Equal(t, spatial.Data(condBefore), spatial.Data(cond), "input condition map must not change")
}

func TestSwapCyclesSmallReference(t *testing.T) {
	condLabel := regionMap(2, 3, 1, 0, 5)
	refLabel := regionMap(2, 3, 1, 0, 2)

	res, err := Swap(1, indexedFeatures(2, 3, 100), indexedFeatures(2, 3, 0), condLabel, refLabel, nil)
	require.NoError(t, err)

	want := []float64{0, 1, 0, 1, 0}
	for p, v := range want {
		assert.Equal(t, v, pixel(res.Features, p/3, p%3)[0], "pixel %d", p)
	}
}

func TestSwapUsesEquivalentClass(t *testing.T) {
	condLabel := labelMap(
		[]float64{5, 5},
		[]float64{0, 0},
	)
	refLabel := labelMap(
		[]float64{0, 1},
		[]float64{1, 3},
	)

	res, err := Swap(5, indexedFeatures(2, 2, 50), indexedFeatures(2, 2, 0), condLabel, refLabel, DefaultEquivalence())
	require.NoError(t, err)
	assert.Equal(t, spatial.ClassID(1), res.Source)
	assert.Equal(t, []float64{1, -1}, pixel(res.Features, 0, 0))
	assert.Equal(t, []float64{2, -2}, pixel(res.Features, 0, 1))
	assert.Equal(t, []float64{52, -52}, pixel(res.Features, 1, 0))
}

func TestSwapClassAbsentFromCondition(t *testing.T) {
	condLabel := labelMap([]float64{1, 2})
	refLabel := labelMap([]float64{5, 5})

	_, err := Swap(5, indexedFeatures(1, 2, 0), indexedFeatures(1, 2, 0), condLabel, refLabel, DefaultEquivalence())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrClassAbsent))
}

func TestSwapNoEquivalentInReference(t *testing.T) {
	condLabel := labelMap([]float64{5, 2})
	refLabel := labelMap([]float64{3, 2})

	_, err := Swap(5, indexedFeatures(1, 2, 0), indexedFeatures(1, 2, 0), condLabel, refLabel, DefaultEquivalence())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoEquivalent))
}

func TestSwapOnlyFirstSample(t *testing.T) {
	// class 4 appears only in the second sample of the condition batch
	condLabel := spatial.FromSlice([]float64{0, 0, 4, 4}, 2, 1, 1, 2)
	refLabel := labelMap([]float64{4, 4})
	cond := spatial.New(2, 2, 1, 2)

	_, err := Swap(4, cond, indexedFeatures(1, 2, 0), condLabel, refLabel, nil)
	assert.True(t, errors.Is(err, ErrClassAbsent))
}

func TestSwapChannelMismatch(t *testing.T) {
	label := labelMap([]float64{1})
	_, err := Swap(1, spatial.New(1, 3, 1, 1), spatial.New(1, 2, 1, 1), label, label, nil)
	assert.Error(t, err)
}
