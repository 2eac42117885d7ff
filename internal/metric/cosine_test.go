package metric

import (
	"errors"
	"testing"

	"github.com/imagesieve/imagesieve/internal/feature"
)

func TestEmbedding_IdenticalVectors(t *testing.T) {
	m := NewEmbedding()
	v := feature.Vector{3, 4}.Normalize()

	score, err := m.Score(v, v)
	if err != nil {
		t.Fatalf("score failed: %v", err)
	}
	if score < 0.999999 || score > 1 {
		t.Errorf("expected score ~1.0 for identical vectors, got %f", score)
	}
}

func TestEmbedding_OrthogonalVectors(t *testing.T) {
	m := NewEmbedding()

	score, err := m.Score(feature.Vector{1, 0}, feature.Vector{0, 1})
	if err != nil {
		t.Fatalf("score failed: %v", err)
	}
	if score != 0 {
		t.Errorf("expected score 0 for orthogonal vectors, got %f", score)
	}
}

func TestEmbedding_OppositeVectorsClamped(t *testing.T) {
	m := NewEmbedding()

	score, err := m.Score(feature.Vector{-1, 0}, feature.Vector{1, 0})
	if err != nil {
		t.Fatalf("score failed: %v", err)
	}
	if score != -1 {
		t.Errorf("expected clamped score -1, got %f", score)
	}
}

func TestEmbedding_DimensionMismatch(t *testing.T) {
	m := NewEmbedding()

	_, err := m.Score(feature.Vector{1, 0}, feature.Vector{1, 0, 0})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestEmbedding_EmptyVectors(t *testing.T) {
	m := NewEmbedding()

	_, err := m.Score(feature.Vector{}, feature.Vector{})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch for empty vectors, got %v", err)
	}
}

func TestEmbedding_WrongValueType(t *testing.T) {
	m := NewEmbedding()

	if _, err := m.Score(feature.Dimensions{}, feature.Vector{1}); err == nil {
		t.Error("expected error for non-vector value")
	}
}
