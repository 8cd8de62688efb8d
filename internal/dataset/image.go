package dataset

import (
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/image/draw"
)

// Rescale maps one pixel intensity from [0,255] to [0,1]. It is a pure
// elementwise transform; applying it to an already rescaled value
// collapses toward zero, so it must run exactly once per pixel.
func Rescale(v float64) float64 {
	return v / 255.0
}

// DecodeImage reads the file at path, resizes it to size x size and
// returns a flattened size*size*3 tensor of rescaled RGB intensities,
// laid out row-major with interleaved channels.
func DecodeImage(path string, size int) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open image")
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", path)
	}
	return pixels(resize(src, size)), nil
}

func resize(src image.Image, size int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

func pixels(img *image.RGBA) []float64 {
	size := img.Bounds().Dx()
	out := make([]float64, size*size*3)
	i := 0
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			c := img.RGBAAt(x, y)
			out[i] = Rescale(float64(c.R))
			out[i+1] = Rescale(float64(c.G))
			out[i+2] = Rescale(float64(c.B))
			i += 3
		}
	}
	return out
}
