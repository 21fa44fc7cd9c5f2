package main

import (
	"image"
	"image/color"
	"image/png"
	"os"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

func decodePNG(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", path)
	}
	return img, nil
}

// readImage loads an RGB image as a (1, 3, H, W) tensor scaled to [-1, 1].
func readImage(path string) (*tensor.Dense, error) {
	img, err := decodePNG(path)
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	h, w := b.Dy(), b.Dx()
	data := make([]float64, 3*h*w)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			for ch, v := range [3]uint32{r, g, bl} {
				data[(ch*h+y)*w+x] = float64(v)/0xffff*2 - 1
			}
		}
	}
	return tensor.New(tensor.WithShape(1, 3, h, w), tensor.WithBacking(data)), nil
}

// readLabels loads an 8 or 16 bit grayscale map as a (1, 1, H, W) tensor of
// raw values. 16 bit maps carry composite class*1000+instance ids.
func readLabels(path string) (*tensor.Dense, error) {
	img, err := decodePNG(path)
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	h, w := b.Dy(), b.Dx()
	data := make([]float64, h*w)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			px, py := b.Min.X+x, b.Min.Y+y
			switch m := img.(type) {
			case *image.Gray:
				data[y*w+x] = float64(m.GrayAt(px, py).Y)
			case *image.Gray16:
				data[y*w+x] = float64(m.Gray16At(px, py).Y)
			case *image.Paletted:
				data[y*w+x] = float64(m.ColorIndexAt(px, py))
			default:
				return nil, errors.Errorf("%s: label maps must be grayscale or paletted, got %T", path, img)
			}
		}
	}
	return tensor.New(tensor.WithShape(1, 1, h, w), tensor.WithBacking(data)), nil
}

func readOptionalLabels(path string, fallback *tensor.Dense) (*tensor.Dense, error) {
	if path == "" {
		return fallback, nil
	}
	return readLabels(path)
}

// writeImage saves the first sample of a (N, 3, H, W) tensor in [-1, 1] as
// an RGB PNG.
func writeImage(path string, t *tensor.Dense) error {
	shape := t.Shape()
	if len(shape) != 4 || shape[1] != 3 {
		return errors.Errorf("cannot write %v as an RGB image", shape)
	}
	h, w := shape[2], shape[3]
	data := t.Data().([]float64)
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var px [3]uint8
			for ch := range px {
				// Denormalize from [-1, 1] to [0, 255]
				val := (data[(ch*h+y)*w+x] + 1) / 2 * 255
				if val < 0 {
					val = 0
				}
				if val > 255 {
					val = 255
				}
				px[ch] = uint8(val + 0.5)
			}
			img.SetNRGBA(x, y, color.NRGBA{R: px[0], G: px[1], B: px[2], A: 255})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return errors.Wrapf(err, "encode %s", path)
	}
	return f.Close()
}
