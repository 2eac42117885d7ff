package metric

import (
	"fmt"
	"math"

	"github.com/imagesieve/imagesieve/internal/feature"
)

const (
	// colorPositionThreshold is the CIE76 delta below which two thumbnail
	// positions count as the same color.
	colorPositionThreshold = 15.0
	// consecutiveThreshold and consecutiveRunThreshold drive the run-based
	// consensus over the per-position matches.
	consecutiveThreshold    = 10
	consecutiveRunThreshold = 10
)

// Colors scores LAB thumbnail grids by summed CIE76 color distance. Pairs
// that fail the positional consensus are pushed to +Inf so they never clear
// any distance threshold.
type Colors struct {
	// belowThreshold is the minimum count of matching positions, half the
	// grid by default.
	belowThreshold int
}

func NewColors() *Colors {
	return &Colors{belowThreshold: feature.ThumbDim * feature.ThumbDim / 2}
}

func (m *Colors) Name() string { return "colors" }

func (m *Colors) Kind() feature.Kind { return feature.KindColors }

func (m *Colors) Polarity() Polarity { return LowerIsBetter }

func (m *Colors) Score(a, b feature.Value) (float64, error) {
	ga, ok := a.(feature.ColorGrid)
	if !ok {
		return 0, fmt.Errorf("colors metric got %T", a)
	}
	gb, ok := b.(feature.ColorGrid)
	if !ok {
		return 0, fmt.Errorf("colors metric got %T", b)
	}
	if len(ga) != len(gb) || len(ga) == 0 {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(ga), len(gb))
	}

	var total float64
	matches := make([]bool, len(ga))
	for i := range ga {
		d := deltaE76(ga[i], gb[i])
		total += d
		matches[i] = d < colorPositionThreshold
	}

	if !consensus(matches, m.belowThreshold) {
		return math.Inf(1), nil
	}
	return total, nil
}

// deltaE76 is the CIE76 color difference: euclidean distance in LAB space.
func deltaE76(a, b feature.LAB) float64 {
	dl := a.L - b.L
	da := a.A - b.A
	db := a.B - b.B
	return math.Sqrt(dl*dl + da*da + db*db)
}

// consensus accepts a pair when enough positions match overall and the
// matches cluster into long consecutive runs rather than scattering across
// the grid. Counters deliberately start at one and the run counter never
// resets, so isolated gaps inside a long run still count toward it.
func consensus(matches []bool, minTrue int) bool {
	countTrue := 1
	priorMatch := false
	consecutive := 1
	runs := 0

	for _, match := range matches {
		if match {
			countTrue++
			if priorMatch {
				consecutive++
				if consecutive > consecutiveThreshold {
					runs++
				}
			}
		}
		priorMatch = match
		if countTrue > minTrue && runs > consecutiveRunThreshold {
			return true
		}
	}
	return false
}
