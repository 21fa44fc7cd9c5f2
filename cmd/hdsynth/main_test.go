package main

import (
	"image"
	"image/color"
	"image/png"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorgonia.org/tensor"

	"github.com/FlavioCFOliveira/GoNeuronHD/pix2pixhd"
)

func writePNG(t *testing.T, img image.Image) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "in.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return path
}

func TestReadLabelsKeepsCompositeIDs(t *testing.T) {
	img := image.NewGray16(image.Rect(0, 0, 2, 1))
	img.SetGray16(0, 0, color.Gray16{Y: 5003})
	img.SetGray16(1, 0, color.Gray16{Y: 7})

	labels, err := readLabels(writePNG(t, img))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1, 1, 2}, []int(labels.Shape()))
	assert.Equal(t, []float64{5003, 7}, labels.Data())

	_, err = readLabels(writePNG(t, image.NewNRGBA(image.Rect(0, 0, 1, 1))))
	assert.Error(t, err)
}

func TestImageRoundTrip(t *testing.T) {
	data := []float64{
		-1, 1, // red
		0, 1, // green
		1, -1, // blue
	}
	src := tensor.New(tensor.WithShape(1, 3, 1, 2), tensor.WithBacking(data))
	path := filepath.Join(t.TempDir(), "out.png")
	require.NoError(t, writeImage(path, src))

	back, err := readImage(path)
	require.NoError(t, err)
	for i, v := range back.Data().([]float64) {
		assert.InDelta(t, data[i], v, 2.0/255, "value %d", i)
	}

	assert.Error(t, writeImage(path, tensor.New(tensor.WithShape(1, 1, 1, 1), tensor.WithBacking([]float64{0}))))
}

func TestOptionsApplyOverrides(t *testing.T) {
	opts, err := options(args{Name: "shirts", WhichEpoch: "20", Seed: 3, Verbose: true})
	require.NoError(t, err)
	assert.Equal(t, "shirts", opts.Name)
	assert.Equal(t, "20", opts.WhichEpoch)
	assert.Equal(t, uint64(3), opts.Seed)
	assert.True(t, opts.Verbose)
	assert.False(t, opts.IsTrain)

	_, err = options(args{Config: filepath.Join(t.TempDir(), "missing.yaml")})
	assert.Error(t, err)
}

func TestRunInfer(t *testing.T) {
	opts := pix2pixhd.DefaultOptions()
	opts.CheckpointsDir = t.TempDir()
	opts.LabelNC = 4
	opts.NGF, opts.NDF = 4, 4
	opts.NoVGGLoss = true
	opts.NoStyleLoss = true
	trained, err := pix2pixhd.New(opts, pix2pixhd.ReferenceNetworks(opts, rand.New(rand.NewPCG(1, 1))), nil)
	require.NoError(t, err)
	require.NoError(t, trained.Save("latest"))

	label := image.NewGray(image.Rect(0, 0, 2, 2))
	label.SetGray(1, 0, color.Gray{Y: 3})
	label.SetGray(0, 1, color.Gray{Y: 1})

	opts.IsTrain = false
	out := filepath.Join(t.TempDir(), "fake.png")
	require.NoError(t, runInfer(opts, inferCmd{Label: writePNG(t, label), Out: out}, zap.NewNop()))

	back, err := readImage(out)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3, 2, 2}, []int(back.Shape()))
}

func TestRunFeaturesNeedsEncoder(t *testing.T) {
	opts := pix2pixhd.DefaultOptions()
	opts.IsTrain = false
	err := runFeatures(opts, featuresCmd{Images: []string{"a"}, Instances: []string{"b"}}, zap.NewNop())
	assert.Error(t, err)

	err = runFeatures(opts, featuresCmd{Images: []string{"a"}}, zap.NewNop())
	assert.Error(t, err)
}
