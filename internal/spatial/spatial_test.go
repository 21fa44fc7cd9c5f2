package spatial

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLabelClass(t *testing.T) {
	tests := []struct {
		label Label
		want  ClassID
	}{
		{0, 0},
		{7, 7},
		{999, 999},
		{1000, 1},
		{5003, 5},
		{22017, 22},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.label.Class(), "label %d", tt.label)
	}
}

func TestConcatChannels(t *testing.T) {
	a := FromSlice([]float64{1, 2, 3, 4}, 1, 1, 2, 2)
	b := FromSlice([]float64{5, 6, 7, 8, 9, 10, 11, 12}, 1, 2, 2, 2)

	out, err := ConcatChannels(a, nil, b)
	require.NoError(t, err)

	n, c, h, w := Dims(out)
	assert.Equal(t, []int{1, 3, 2, 2}, []int{n, c, h, w})
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}, Data(out))
}

func TestConcatChannelsShapeMismatch(t *testing.T) {
	a := New(1, 1, 2, 2)
	b := New(1, 1, 3, 2)
	_, err := ConcatChannels(a, b)
	assert.Error(t, err)
}

func TestCloneDoesNotAlias(t *testing.T) {
	a := FromSlice([]float64{1, 2}, 1, 1, 1, 2)
	b := Clone(a)
	Data(b)[0] = 42
	assert.Equal(t, 1.0, Data(a)[0])
}

func TestLabelRegionsRowMajor(t *testing.T) {
	// 2 samples of 2x3:
	// [3 3 1]   [1 1 1]
	// [1 3 3]   [3 1 1]
	m := FromSlice([]float64{
		3, 3, 1,
		1, 3, 3,
		1, 1, 1,
		3, 1, 1,
	}, 2, 1, 2, 3)

	r, err := LabelRegions(m)
	require.NoError(t, err)

	assert.Equal(t, []Label{1, 3}, r.Keys())
	assert.Equal(t, []uint32{0, 1, 4, 5, 9}, r.Positions(3))
	assert.Equal(t, 5, r.Count(3))

	med, ok := r.Median(3)
	require.True(t, ok)
	assert.Equal(t, uint32(4), med)

	b, y, x := r.Pixel(9)
	assert.Equal(t, []int{1, 1, 0}, []int{b, y, x})

	first, ok := r.First(1)
	require.True(t, ok)
	assert.Equal(t, uint32(2), first)
}

func TestSampleClassRegionsDecodesComposite(t *testing.T) {
	m := FromSlice([]float64{
		5001, 5002,
		7, 5001,
		5001, 5001,
		5001, 5001,
	}, 2, 1, 2, 2)

	r, err := SampleClassRegions(m, 0)
	require.NoError(t, err)
	assert.Equal(t, []ClassID{5, 7}, r.Keys())
	assert.Equal(t, []uint32{0, 1, 3}, r.Positions(5))
	assert.False(t, r.Has(5001))

	_, err = SampleClassRegions(m, 2)
	assert.Error(t, err)
}

func TestLabelsRejectsMultiChannel(t *testing.T) {
	_, err := Labels(New(1, 2, 2, 2))
	assert.Error(t, err)
}

func TestHalf(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0, 0},
		{1, 1},
		{-2.5, -2.5},
		{1.0 / 3.0, 0.333251953125},
		{65504, 65504},
		{70000, math.Inf(1)},
		{-70000, math.Inf(-1)},
		{0x1p-24, 0x1p-24},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Half(tt.in), "Half(%v)", tt.in)
	}
}

func TestConcatBatchAndChannels(t *testing.T) {
	a := FromSlice([]float64{1, 2, 3, 4}, 1, 2, 1, 2)
	b := FromSlice([]float64{5, 6, 7, 8}, 1, 2, 1, 2)

	stacked, err := ConcatBatch(a, b)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6, 7, 8}, Data(stacked))
	n, c, h, w := Dims(stacked)
	assert.Equal(t, []int{2, 2, 1, 2}, []int{n, c, h, w})

	second, err := Channels(stacked, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 4, 7, 8}, Data(second))

	_, err = Channels(stacked, 1, 2)
	assert.Error(t, err)
	_, err = ConcatBatch(a, New(1, 1, 1, 2))
	assert.Error(t, err)

	Scale(second, 0.5)
	assert.Equal(t, []float64{1.5, 2, 3.5, 4}, Data(second))
	assert.Equal(t, []float64{1, 2, 3, 4}, Data(a), "inputs are not aliased")
}
