// Command hdsynth builds feature dictionaries and runs inference with a
// trained model.
//
//	hdsynth --config opts.yaml features --image a.png --inst a_inst.png
//	hdsynth infer --label l.png --inst i.png --out fake.png
//	hdsynth swap --cond-label c.png --cond-image c.jpg --ref-label r.png --ref-image r.png --class 5 --out swapped.png
package main

import (
	"context"
	"math/rand/v2"

	"github.com/alexflint/go-arg"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorgonia.org/tensor"

	"github.com/FlavioCFOliveira/GoNeuronHD/pix2pixhd"
)

type featuresCmd struct {
	Images    []string `arg:"--image,required" help:"RGB images"`
	Instances []string `arg:"--inst,required" help:"instance maps, one per image"`
	Clusters  int      `help:"clusters per class"`
	Workers   int      `help:"classes clustered concurrently"`
}

type inferCmd struct {
	Label string `arg:"required" help:"label map"`
	Inst  string `help:"instance map"`
	Out   string `arg:"required" help:"output image"`
}

type swapCmd struct {
	CondLabel string `arg:"--cond-label,required"`
	CondInst  string `arg:"--cond-inst" help:"defaults to the condition label map"`
	CondImage string `arg:"--cond-image" help:"condition image; without it the reference alone is rendered"`
	RefLabel  string `arg:"--ref-label,required"`
	RefInst   string `arg:"--ref-inst" help:"defaults to the reference label map"`
	RefImage  string `arg:"--ref-image,required"`
	Class     int    `arg:"required" help:"class whose appearance is transplanted"`
	Out       string `arg:"required"`
}

type args struct {
	Features *featuresCmd `arg:"subcommand:features" help:"encode images and cluster their features"`
	Infer    *inferCmd    `arg:"subcommand:infer" help:"generate an image from a label map"`
	Swap     *swapCmd     `arg:"subcommand:swap" help:"transplant one class appearance from a reference"`

	Config         string `help:"YAML options file"`
	Name           string `help:"experiment name"`
	CheckpointsDir string `arg:"--checkpoints-dir"`
	WhichEpoch     string `arg:"--which-epoch"`
	Seed           uint64
	Verbose        bool
}

func main() {
	var a args
	p := arg.MustParse(&a)
	if p.Subcommand() == nil {
		p.Fail("missing subcommand")
	}

	opts, err := options(a)
	log := pix2pixhd.Logger(opts.Verbose)
	defer log.Sync()
	if err != nil {
		log.Fatal("invalid options", zap.Error(err))
	}

	switch {
	case a.Features != nil:
		err = runFeatures(opts, *a.Features, log)
	case a.Infer != nil:
		err = runInfer(opts, *a.Infer, log)
	case a.Swap != nil:
		err = runSwap(opts, *a.Swap, log)
	}
	if err != nil {
		log.Fatal("hdsynth failed", zap.Error(err))
	}
}

// options loads the YAML file when given and applies flag overrides. The
// command always runs at test time.
func options(a args) (pix2pixhd.Options, error) {
	opts := pix2pixhd.DefaultOptions()
	if a.Config != "" {
		var err error
		if opts, err = pix2pixhd.LoadOptions(a.Config); err != nil {
			return opts, err
		}
	}
	if a.Name != "" {
		opts.Name = a.Name
	}
	if a.CheckpointsDir != "" {
		opts.CheckpointsDir = a.CheckpointsDir
	}
	if a.WhichEpoch != "" {
		opts.WhichEpoch = a.WhichEpoch
	}
	if a.Seed != 0 {
		opts.Seed = a.Seed
	}
	opts.Verbose = opts.Verbose || a.Verbose
	opts.IsTrain = false
	return opts, opts.Validate()
}

func newModel(opts pix2pixhd.Options, log *zap.Logger) (*pix2pixhd.Model, error) {
	var rng *rand.Rand
	if opts.Seed != 0 {
		rng = rand.New(rand.NewPCG(opts.Seed, 0))
	}
	return pix2pixhd.New(opts, pix2pixhd.ReferenceNetworks(opts, rng), log)
}

func runFeatures(opts pix2pixhd.Options, c featuresCmd, log *zap.Logger) error {
	if len(c.Images) != len(c.Instances) {
		return errors.Errorf("%d images but %d instance maps", len(c.Images), len(c.Instances))
	}
	if !opts.GenFeatures() {
		return errors.New("features need instance_feat or label_feat without load_features")
	}
	if c.Clusters <= 0 {
		c.Clusters = 10
	}
	m, err := newModel(opts, log)
	if err != nil {
		return err
	}

	stats := pix2pixhd.Stats{}
	for i := range c.Images {
		image, err := readImage(c.Images[i])
		if err != nil {
			return err
		}
		inst, err := readLabels(c.Instances[i])
		if err != nil {
			return err
		}
		s, err := m.EncodeFeatures(image, inst)
		if err != nil {
			return errors.Wrapf(err, "encode %s", c.Images[i])
		}
		stats.Accumulate(s)
		log.Debug("encoded features", zap.String("image", c.Images[i]), zap.Int("rows", s.Rows()))
	}

	dict, err := pix2pixhd.Cluster(context.Background(), stats, c.Clusters, opts.FeatNum, c.Workers)
	if err != nil {
		return err
	}
	path := opts.ClusterFile()
	if err := pix2pixhd.SaveDictionary(path, dict); err != nil {
		return err
	}
	log.Info("saved clustered features", zap.String("path", path), zap.Int("classes", dict.Classes()), zap.Int("rows", stats.Rows()))
	return nil
}

func runInfer(opts pix2pixhd.Options, c inferCmd, log *zap.Logger) error {
	m, err := newModel(opts, log)
	if err != nil {
		return err
	}
	label, err := readLabels(c.Label)
	if err != nil {
		return err
	}
	inst, err := readOptionalLabels(c.Inst, label)
	if err != nil {
		return err
	}
	fake, err := m.Predict(label, inst)
	if err != nil {
		return err
	}
	if err := writeImage(c.Out, fake); err != nil {
		return err
	}
	log.Info("generated image", zap.String("out", c.Out))
	return nil
}

func runSwap(opts pix2pixhd.Options, c swapCmd, log *zap.Logger) error {
	m, err := newModel(opts, log)
	if err != nil {
		return err
	}
	condLabel, err := readLabels(c.CondLabel)
	if err != nil {
		return err
	}
	refLabel, err := readLabels(c.RefLabel)
	if err != nil {
		return err
	}
	refImage, err := readImage(c.RefImage)
	if err != nil {
		return err
	}
	condInst, err := readOptionalLabels(c.CondInst, condLabel)
	if err != nil {
		return err
	}
	refInst, err := readOptionalLabels(c.RefInst, refLabel)
	if err != nil {
		return err
	}
	var condImage *tensor.Dense
	if c.CondImage != "" {
		if condImage, err = readImage(c.CondImage); err != nil {
			return err
		}
	}

	fake, err := m.ConditionInference(condLabel, refLabel, condInst, refInst, condImage, refImage, pix2pixhd.ClassID(c.Class))
	if err != nil {
		return err
	}
	if err := writeImage(c.Out, fake); err != nil {
		return err
	}
	log.Info("generated swapped image", zap.String("out", c.Out), zap.Int("class", c.Class))
	return nil
}
