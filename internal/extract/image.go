// Package extract computes feature values from image files and external
// embedding providers. Everything here is a collaborator of feature.Store:
// each exported entry point fits the ExtractFunc shape or is trivially
// wrapped into one.
package extract

import (
	"fmt"
	"image"
	"math"
	"os"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/imagesieve/imagesieve/internal/feature"
)

// ImageFile decodes an image and returns its pixel dimensions together with
// the downscaled LAB color fingerprint.
func ImageFile(path string) (feature.Dimensions, feature.ColorGrid, error) {
	f, err := os.Open(path)
	if err != nil {
		return feature.Dimensions{}, nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return feature.Dimensions{}, nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	bounds := img.Bounds()
	dims := feature.Dimensions{
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
	}

	return dims, colorGrid(img), nil
}

// Size extracts only the pixel dimensions, for the size comparison mode.
func Size(path string) (feature.Value, error) {
	dims, _, err := ImageFile(path)
	if err != nil {
		return nil, err
	}
	return dims, nil
}

// Colors extracts only the LAB thumbnail grid, for the colors comparison mode.
func Colors(path string) (feature.Value, error) {
	_, grid, err := ImageFile(path)
	if err != nil {
		return nil, err
	}
	return grid, nil
}

// colorGrid shrinks the image to ThumbDim x ThumbDim and converts every
// pixel to CIE LAB.
func colorGrid(img image.Image) feature.ColorGrid {
	thumb := image.NewRGBA(image.Rect(0, 0, feature.ThumbDim, feature.ThumbDim))
	draw.ApproxBiLinear.Scale(thumb, thumb.Bounds(), img, img.Bounds(), draw.Src, nil)

	grid := make(feature.ColorGrid, 0, feature.ThumbDim*feature.ThumbDim)
	for y := 0; y < feature.ThumbDim; y++ {
		for x := 0; x < feature.ThumbDim; x++ {
			r, g, b, _ := thumb.At(x, y).RGBA()
			grid = append(grid, rgbToLab(
				float64(r)/65535.0,
				float64(g)/65535.0,
				float64(b)/65535.0,
			))
		}
	}
	return grid
}

// rgbToLab converts linear-intent sRGB components in [0,1] to CIE LAB
// under the D65 illuminant.
func rgbToLab(r, g, b float64) feature.LAB {
	r = srgbToLinear(r)
	g = srgbToLinear(g)
	b = srgbToLinear(b)

	// sRGB to XYZ (D65)
	x := r*0.4124564 + g*0.3575761 + b*0.1804375
	y := r*0.2126729 + g*0.7151522 + b*0.0721750
	z := r*0.0193339 + g*0.1191920 + b*0.9503041

	// Normalize by D65 white point
	fx := labF(x / 0.95047)
	fy := labF(y / 1.00000)
	fz := labF(z / 1.08883)

	return feature.LAB{
		L: 116*fy - 16,
		A: 500 * (fx - fy),
		B: 200 * (fy - fz),
	}
}

func srgbToLinear(c float64) float64 {
	if c <= 0.04045 {
		return c / 12.92
	}
	return math.Pow((c+0.055)/1.055, 2.4)
}

func labF(t float64) float64 {
	const delta = 6.0 / 29.0
	if t > delta*delta*delta {
		return math.Cbrt(t)
	}
	return t/(3*delta*delta) + 4.0/29.0
}
