// Package config holds the options read by the model and the CLI. Options are
// loaded from YAML over Default and checked with Validate.
package config

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	yaml "gopkg.in/yaml.v2"
)

// Random feature distributions.
const (
	RandomGaussian = "gauss"
	RandomUniform  = "uni"
)

// Backend carries performance flags for the numeric runtime. It is resolved
// once when the model is built.
type Backend struct {
	AutoTune bool `yaml:"auto_tune"`
}

// Options is the full option set.
type Options struct {
	Name           string `yaml:"name"`
	CheckpointsDir string `yaml:"checkpoints_dir"`
	ClusterPath    string `yaml:"cluster_path"`
	WhichEpoch     string `yaml:"which_epoch"`
	LoadPretrain   string `yaml:"load_pretrain"`
	IsTrain        bool   `yaml:"is_train"`
	ContinueTrain  bool   `yaml:"continue_train"`
	ResizeOrCrop   string `yaml:"resize_or_crop"`
	Verbose        bool   `yaml:"verbose"`
	GPUIDs         []int  `yaml:"gpu_ids"`
	DataType       int    `yaml:"data_type"`

	LabelNC  int `yaml:"label_nc"`
	InputNC  int `yaml:"input_nc"`
	OutputNC int `yaml:"output_nc"`
	FeatNum  int `yaml:"feat_num"`

	NoInstance   bool `yaml:"no_instance"`
	InstanceFeat bool `yaml:"instance_feat"`
	LabelFeat    bool `yaml:"label_feat"`
	LoadFeatures bool `yaml:"load_features"`
	Faster       bool `yaml:"faster"`

	NGF             int `yaml:"ngf"`
	NDF             int `yaml:"ndf"`
	NEF             int `yaml:"nef"`
	NLocalEnhancers int `yaml:"n_local_enhancers"`
	NumD            int `yaml:"num_D"`
	NLayersD        int `yaml:"n_layers_D"`

	Niter          int     `yaml:"niter"`
	NiterDecay     int     `yaml:"niter_decay"`
	NiterFixGlobal int     `yaml:"niter_fix_global"`
	LR             float64 `yaml:"lr"`
	Beta1          float64 `yaml:"beta1"`
	Beta2          float64 `yaml:"beta2"`
	PoolSize       int     `yaml:"pool_size"`

	NoLSGAN       bool    `yaml:"no_lsgan"`
	NoGANFeatLoss bool    `yaml:"no_ganFeat_loss"`
	NoVGGLoss     bool    `yaml:"no_vgg_loss"`
	NoStyleLoss   bool    `yaml:"no_style_loss"`
	NoReconLoss   bool    `yaml:"no_recon_loss"`
	LambdaFeat    float64 `yaml:"lambda_feat"`
	LambdaStyle   float64 `yaml:"lambda_style"`
	LambdaRecon   float64 `yaml:"lambda_recon"`

	RandomFeatureClass int         `yaml:"random_feature_class"`
	RandomType         string      `yaml:"random_type"`
	Equivalence        map[int]int `yaml:"equivalence"`
	Seed               uint64      `yaml:"seed"`

	Backend Backend `yaml:"-"`
}

// Default returns the stock options.
func Default() Options {
	return Options{
		Name:               "label2city",
		CheckpointsDir:     "./checkpoints",
		ClusterPath:        "features_clustered.gob.zst",
		WhichEpoch:         "latest",
		IsTrain:            true,
		ResizeOrCrop:       "scale_width",
		DataType:           32,
		LabelNC:            35,
		InputNC:            3,
		OutputNC:           3,
		FeatNum:            3,
		NGF:                64,
		NDF:                64,
		NEF:                16,
		NLocalEnhancers:    1,
		NumD:               2,
		NLayersD:           3,
		Niter:              100,
		NiterDecay:         100,
		LR:                 0.0002,
		Beta1:              0.5,
		Beta2:              0.999,
		LambdaFeat:         10,
		LambdaStyle:        10,
		LambdaRecon:        10,
		RandomFeatureClass: 6,
		RandomType:         RandomGaussian,
	}
}

// Load reads a YAML options file over Default and validates the result.
func Load(path string) (Options, error) {
	opts := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return opts, errors.Wrapf(err, "config: read %s", path)
	}
	if err := yaml.UnmarshalStrict(data, &opts); err != nil {
		return opts, errors.Wrapf(err, "config: parse %s", path)
	}
	opts.Resolve()
	return opts, opts.Validate()
}

// Resolve derives the backend flags. Auto-tuning pays off only when input
// sizes are fixed, which holds at test time or without resizing.
func (o *Options) Resolve() {
	o.Backend.AutoTune = o.ResizeOrCrop != "none" || !o.IsTrain
}

// Validate reports the first inconsistent option.
func (o Options) Validate() error {
	switch {
	case o.Name == "":
		return errors.New("config: name is empty")
	case o.OutputNC <= 0:
		return errors.Errorf("config: output_nc must be positive, got %d", o.OutputNC)
	case o.LabelNC < 0:
		return errors.Errorf("config: label_nc must not be negative, got %d", o.LabelNC)
	case o.LabelNC == 0 && o.InputNC <= 0:
		return errors.Errorf("config: input_nc must be positive without label_nc, got %d", o.InputNC)
	case o.UseFeatures() && o.FeatNum <= 0:
		return errors.Errorf("config: feat_num must be positive, got %d", o.FeatNum)
	case o.IsTrain && o.NiterDecay <= 0:
		return errors.Errorf("config: niter_decay must be positive when training, got %d", o.NiterDecay)
	case o.NLocalEnhancers < 0:
		return errors.Errorf("config: n_local_enhancers must not be negative, got %d", o.NLocalEnhancers)
	case o.NumD <= 0 || o.NLayersD <= 0:
		return errors.Errorf("config: num_D and n_layers_D must be positive, got %d and %d", o.NumD, o.NLayersD)
	case o.DataType != 16 && o.DataType != 32:
		return errors.Errorf("config: data_type must be 16 or 32, got %d", o.DataType)
	case o.RandomType != RandomGaussian && o.RandomType != RandomUniform:
		return errors.Errorf("config: unknown random_type %q", o.RandomType)
	}
	return nil
}

// UseFeatures reports whether instance or label features feed the generator.
func (o Options) UseFeatures() bool { return o.InstanceFeat || o.LabelFeat }

// GenFeatures reports whether features are produced by an encoder network.
func (o Options) GenFeatures() bool { return o.UseFeatures() && !o.LoadFeatures }

// LabelChannels is the channel count of the encoded label.
func (o Options) LabelChannels() int {
	if o.LabelNC != 0 {
		return o.LabelNC
	}
	return o.InputNC
}

// GeneratorInputNC is the channel count of the generator input.
func (o Options) GeneratorInputNC() int {
	nc := o.LabelChannels()
	if !o.NoInstance {
		nc++
	}
	if o.UseFeatures() {
		nc += o.FeatNum
	}
	return nc
}

// DiscriminatorInputNC is the channel count of the discriminator input.
func (o Options) DiscriminatorInputNC() int {
	nc := o.LabelChannels() + o.OutputNC
	if !o.NoInstance {
		nc++
	}
	return nc
}

// ExpDir is the directory of this experiment's checkpoints.
func (o Options) ExpDir() string { return filepath.Join(o.CheckpointsDir, o.Name) }

// PretrainDir is the directory pretrained networks are loaded from.
func (o Options) PretrainDir() string {
	if o.LoadPretrain != "" {
		return o.LoadPretrain
	}
	return o.ExpDir()
}

// ClusterFile is the path of the clustered feature dictionary.
func (o Options) ClusterFile() string { return filepath.Join(o.ExpDir(), o.ClusterPath) }

// UseSigmoid reports whether discriminators end in a sigmoid, as the binary
// cross entropy criterion needs.
func (o Options) UseSigmoid() bool { return o.NoLSGAN }
