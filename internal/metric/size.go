package metric

import (
	"fmt"

	"github.com/imagesieve/imagesieve/internal/feature"
)

// Size scores pixel dimensions. With zero tolerance only exact matches score
// 1.0; with a positive tolerance the score tapers linearly as the width and
// height differences approach it. Pairs outside the tolerance score 0.0.
type Size struct {
	// Tolerance is the maximum per-axis pixel difference still considered a
	// match.
	Tolerance int
}

func NewSize(tolerance int) *Size {
	return &Size{Tolerance: tolerance}
}

func (m *Size) Name() string { return "size" }

func (m *Size) Kind() feature.Kind { return feature.KindSize }

func (m *Size) Polarity() Polarity { return HigherIsBetter }

func (m *Size) Score(a, b feature.Value) (float64, error) {
	da, ok := a.(feature.Dimensions)
	if !ok {
		return 0, fmt.Errorf("size metric got %T", a)
	}
	db, ok := b.(feature.Dimensions)
	if !ok {
		return 0, fmt.Errorf("size metric got %T", b)
	}

	widthDiff := abs(da.Width - db.Width)
	heightDiff := abs(da.Height - db.Height)

	if widthDiff > m.Tolerance || heightDiff > m.Tolerance {
		return 0.0, nil
	}
	if m.Tolerance == 0 {
		return 1.0, nil
	}

	widthSim := 1.0 - float64(widthDiff)/float64(m.Tolerance)
	heightSim := 1.0 - float64(heightDiff)/float64(m.Tolerance)
	return (widthSim + heightSim) / 2.0, nil
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
