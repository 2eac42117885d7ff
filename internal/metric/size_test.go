package metric

import (
	"testing"

	"github.com/imagesieve/imagesieve/internal/feature"
)

func TestSize_ExactMatchAtZeroTolerance(t *testing.T) {
	m := NewSize(0)

	score, err := m.Score(
		feature.Dimensions{Width: 512, Height: 512},
		feature.Dimensions{Width: 512, Height: 512},
	)
	if err != nil {
		t.Fatalf("score failed: %v", err)
	}
	if score != 1.0 {
		t.Errorf("expected 1.0 for exact match, got %f", score)
	}
}

func TestSize_MismatchAtZeroTolerance(t *testing.T) {
	m := NewSize(0)

	score, err := m.Score(
		feature.Dimensions{Width: 512, Height: 512},
		feature.Dimensions{Width: 512, Height: 514},
	)
	if err != nil {
		t.Fatalf("score failed: %v", err)
	}
	if score != 0.0 {
		t.Errorf("expected 0.0 for mismatch at zero tolerance, got %f", score)
	}
}

func TestSize_TaperedWithinTolerance(t *testing.T) {
	m := NewSize(2)

	score, err := m.Score(
		feature.Dimensions{Width: 512, Height: 512},
		feature.Dimensions{Width: 512, Height: 514},
	)
	if err != nil {
		t.Fatalf("score failed: %v", err)
	}
	// Width matches exactly (1.0), height is at the tolerance edge (0.0)
	if score != 0.5 {
		t.Errorf("expected tapered score 0.5, got %f", score)
	}
}

func TestSize_OutsideTolerance(t *testing.T) {
	m := NewSize(2)

	score, err := m.Score(
		feature.Dimensions{Width: 512, Height: 512},
		feature.Dimensions{Width: 512, Height: 515},
	)
	if err != nil {
		t.Fatalf("score failed: %v", err)
	}
	if score != 0.0 {
		t.Errorf("expected 0.0 outside tolerance, got %f", score)
	}
}

func TestSize_NonzeroWithinLargerTolerance(t *testing.T) {
	m := NewSize(4)

	score, err := m.Score(
		feature.Dimensions{Width: 512, Height: 512},
		feature.Dimensions{Width: 512, Height: 514},
	)
	if err != nil {
		t.Fatalf("score failed: %v", err)
	}
	if score <= 0 || score >= 1 {
		t.Errorf("expected score in (0, 1) within tolerance, got %f", score)
	}
}
