package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "opts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	opts := Default()
	require.NoError(t, opts.Validate())
	assert.Equal(t, 0.0002, opts.LR)
	assert.Equal(t, 0.5, opts.Beta1)
	assert.Equal(t, 3, opts.FeatNum)
	assert.Equal(t, 2, opts.NumD)
	assert.Equal(t, 100, opts.NiterDecay)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeFile(t, `
name: fashion
label_nc: 20
instance_feat: true
no_vgg_loss: true
gpu_ids: [0, 1]
equivalence:
  5: 1
  22: 1
`)
	opts, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "fashion", opts.Name)
	assert.Equal(t, 20, opts.LabelNC)
	assert.True(t, opts.NoVGGLoss)
	assert.Equal(t, []int{0, 1}, opts.GPUIDs)
	assert.Equal(t, map[int]int{5: 1, 22: 1}, opts.Equivalence)
	assert.Equal(t, 0.0002, opts.LR)
	assert.True(t, opts.Backend.AutoTune)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	_, err := Load(writeFile(t, "nmae: typo\n"))
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Options)
	}{
		{"empty name", func(o *Options) { o.Name = "" }},
		{"zero feat num", func(o *Options) { o.InstanceFeat = true; o.FeatNum = 0 }},
		{"zero decay", func(o *Options) { o.NiterDecay = 0 }},
		{"data type", func(o *Options) { o.DataType = 8 }},
		{"random type", func(o *Options) { o.RandomType = "poisson" }},
		{"no input channels", func(o *Options) { o.LabelNC = 0; o.InputNC = 0 }},
		{"no scales", func(o *Options) { o.NumD = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := Default()
			tt.modify(&opts)
			assert.Error(t, opts.Validate())
		})
	}

	opts := Default()
	opts.IsTrain = false
	opts.NiterDecay = 0
	assert.NoError(t, opts.Validate(), "decay is irrelevant at test time")
}

func TestChannelCounts(t *testing.T) {
	opts := Default()
	opts.LabelNC = 10
	opts.OutputNC = 3
	opts.FeatNum = 4

	assert.Equal(t, 11, opts.GeneratorInputNC())
	assert.Equal(t, 14, opts.DiscriminatorInputNC())

	opts.InstanceFeat = true
	assert.True(t, opts.UseFeatures())
	assert.True(t, opts.GenFeatures())
	assert.Equal(t, 15, opts.GeneratorInputNC())

	opts.LoadFeatures = true
	assert.False(t, opts.GenFeatures())

	opts.NoInstance = true
	opts.LabelNC = 0
	opts.InputNC = 3
	assert.Equal(t, 7, opts.GeneratorInputNC())
	assert.Equal(t, 6, opts.DiscriminatorInputNC())
}

func TestResolveBackend(t *testing.T) {
	opts := Default()
	opts.ResizeOrCrop = "none"
	opts.Resolve()
	assert.False(t, opts.Backend.AutoTune)

	opts.IsTrain = false
	opts.Resolve()
	assert.True(t, opts.Backend.AutoTune)
}

func TestPaths(t *testing.T) {
	opts := Default()
	opts.CheckpointsDir = "/ckpt"
	opts.Name = "exp"
	assert.Equal(t, "/ckpt/exp", opts.ExpDir())
	assert.Equal(t, "/ckpt/exp", opts.PretrainDir())
	assert.Equal(t, "/ckpt/exp/features_clustered.gob.zst", opts.ClusterFile())

	opts.LoadPretrain = "/pre"
	assert.Equal(t, "/pre", opts.PretrainDir())
}
