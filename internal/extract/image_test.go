package extract

import (
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/imagesieve/imagesieve/internal/feature"
)

func writeTestPNG(t *testing.T, w, h int, c color.Color) string {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}

	path := filepath.Join(t.TempDir(), "test.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create test image: %v", err)
	}
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("failed to encode test image: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("failed to close test image: %v", err)
	}
	return path
}

func TestImageFile_DimensionsAndGrid(t *testing.T) {
	path := writeTestPNG(t, 64, 48, color.White)

	dims, grid, err := ImageFile(path)
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}

	if dims.Width != 64 || dims.Height != 48 {
		t.Errorf("expected 64x48, got %dx%d", dims.Width, dims.Height)
	}
	if len(grid) != feature.ThumbDim*feature.ThumbDim {
		t.Fatalf("expected %d grid entries, got %d", feature.ThumbDim*feature.ThumbDim, len(grid))
	}

	// A uniform white image maps to L ~100, a ~0, b ~0 everywhere
	for i, lab := range grid {
		if math.Abs(lab.L-100) > 1 || math.Abs(lab.A) > 1 || math.Abs(lab.B) > 1 {
			t.Fatalf("entry %d: expected white LAB, got %+v", i, lab)
		}
	}
}

func TestImageFile_MissingFile(t *testing.T) {
	if _, _, err := ImageFile(filepath.Join(t.TempDir(), "missing.png")); err == nil {
		t.Error("expected error for a missing file")
	}
}

func TestImageFile_NotAnImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.png")
	if err := os.WriteFile(path, []byte("not an image"), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if _, _, err := ImageFile(path); err == nil {
		t.Error("expected decode error")
	}
}

func TestSizeAndColorsExtractors(t *testing.T) {
	path := writeTestPNG(t, 512, 512, color.Black)

	v, err := Size(path)
	if err != nil {
		t.Fatalf("size extraction failed: %v", err)
	}
	dims, ok := v.(feature.Dimensions)
	if !ok {
		t.Fatalf("expected Dimensions, got %T", v)
	}
	if dims.Width != 512 || dims.Height != 512 {
		t.Errorf("expected 512x512, got %dx%d", dims.Width, dims.Height)
	}

	v, err = Colors(path)
	if err != nil {
		t.Fatalf("colors extraction failed: %v", err)
	}
	grid, ok := v.(feature.ColorGrid)
	if !ok {
		t.Fatalf("expected ColorGrid, got %T", v)
	}
	// Black maps to the LAB origin
	if grid[0].L > 0.5 {
		t.Errorf("expected near-zero lightness for black, got %f", grid[0].L)
	}
}

func TestRGBToLab(t *testing.T) {
	tests := []struct {
		name    string
		r, g, b float64
		wantL   float64
	}{
		{"black", 0, 0, 0, 0},
		{"white", 1, 1, 1, 100},
		{"mid gray", 0.5, 0.5, 0.5, 53.39},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			lab := rgbToLab(tc.r, tc.g, tc.b)
			if math.Abs(lab.L-tc.wantL) > 0.1 {
				t.Errorf("expected L %.2f, got %.2f", tc.wantL, lab.L)
			}
			// Neutral colors carry no chroma
			if math.Abs(lab.A) > 0.01 || math.Abs(lab.B) > 0.01 {
				t.Errorf("expected neutral a/b, got a=%f b=%f", lab.A, lab.B)
			}
		})
	}
}
