// Package metric defines the similarity policies a pairwise scan can run
// under. Every policy scores a pair of feature values and declares which
// direction of its scale means "more similar".
package metric

import (
	"errors"

	"github.com/imagesieve/imagesieve/internal/feature"
)

// ErrDimensionMismatch reports feature values with incompatible shapes. It is
// fatal: a corpus must be extracted under one shape per mode.
var ErrDimensionMismatch = errors.New("feature dimension mismatch")

// Polarity declares how a metric's scores order by similarity.
type Polarity int

const (
	// HigherIsBetter: larger scores mean more similar (similarities).
	HigherIsBetter Polarity = iota
	// LowerIsBetter: smaller scores mean more similar (distances).
	LowerIsBetter
)

// Metric scores pairs of feature values under one comparison mode.
type Metric interface {
	// Name is the mode identifier used for config lookup and cache naming.
	Name() string
	// Kind is the feature variant this metric consumes.
	Kind() feature.Kind
	Polarity() Polarity
	// Score compares two feature values. Implementations must be symmetric:
	// Score(a, b) == Score(b, a).
	Score(a, b feature.Value) (float64, error)
}

// Passes reports whether score clears the threshold under the metric's
// polarity. The comparison is strict in both directions: a score exactly at
// the threshold does not pass.
func Passes(p Polarity, score, threshold float64) bool {
	if p == LowerIsBetter {
		return score < threshold
	}
	return score > threshold
}

// Drifted reports whether a candidate score has moved past the allowed
// cutoff relative to the score that formed the group.
func Drifted(p Polarity, groupScore, score, cutoff float64) bool {
	if p == LowerIsBetter {
		return score-groupScore > cutoff
	}
	return groupScore-score > cutoff
}
