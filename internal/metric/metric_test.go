package metric

import (
	"math"
	"testing"

	"github.com/imagesieve/imagesieve/internal/feature"
)

func grid(l, a, b float64) feature.ColorGrid {
	g := make(feature.ColorGrid, feature.ThumbDim*feature.ThumbDim)
	for i := range g {
		g[i] = feature.LAB{L: l, A: a, B: b}
	}
	return g
}

// Every metric must score pairs symmetrically.
func TestMetrics_Symmetry(t *testing.T) {
	cases := []struct {
		name string
		m    Metric
		a, b feature.Value
	}{
		{
			name: "embedding",
			m:    NewEmbedding(),
			a:    feature.Vector{0.6, 0.8, 0},
			b:    feature.Vector{0, 0.8, 0.6},
		},
		{
			name: "colors",
			m:    NewColors(),
			a:    grid(50, 10, -10),
			b:    grid(52, 11, -9),
		},
		{
			name: "prompts",
			m:    NewPrompts(),
			a:    feature.PromptPair{Positive: "a cat sitting on a mat", Negative: "blurry"},
			b:    feature.PromptPair{Positive: "a cat sitting on a chair", Negative: "noisy"},
		},
		{
			name: "models",
			m:    NewModels(),
			a:    feature.ModelSet{Models: []string{"sdxl", "flux"}, Loras: []string{"detail"}},
			b:    feature.ModelSet{Models: []string{"sdxl"}, Loras: []string{"detail", "film"}},
		},
		{
			name: "size",
			m:    NewSize(4),
			a:    feature.Dimensions{Width: 512, Height: 512},
			b:    feature.Dimensions{Width: 514, Height: 510},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ab, err := tc.m.Score(tc.a, tc.b)
			if err != nil {
				t.Fatalf("score(a,b) failed: %v", err)
			}
			ba, err := tc.m.Score(tc.b, tc.a)
			if err != nil {
				t.Fatalf("score(b,a) failed: %v", err)
			}
			if ab != ba {
				t.Errorf("asymmetric scores: %f vs %f", ab, ba)
			}
		})
	}
}

func TestPasses_StrictComparison(t *testing.T) {
	// A score exactly at the threshold never passes, in either polarity
	if Passes(HigherIsBetter, 0.9, 0.9) {
		t.Error("score equal to threshold must not pass (higher is better)")
	}
	if Passes(LowerIsBetter, 50, 50) {
		t.Error("score equal to threshold must not pass (lower is better)")
	}

	if !Passes(HigherIsBetter, 0.91, 0.9) {
		t.Error("score above threshold must pass (higher is better)")
	}
	if Passes(HigherIsBetter, 0.89, 0.9) {
		t.Error("score below threshold must not pass (higher is better)")
	}

	if !Passes(LowerIsBetter, 49, 50) {
		t.Error("score below threshold must pass (lower is better)")
	}
	if Passes(LowerIsBetter, 51, 50) {
		t.Error("score above threshold must not pass (lower is better)")
	}
}

func TestPasses_ExactThresholdFromVectors(t *testing.T) {
	// Construct vectors whose dot product is exactly the threshold
	m := NewEmbedding()
	a := feature.Vector{1, 0}
	b := feature.Vector{0.5, float32(math.Sqrt(0.75))}

	score, err := m.Score(a, b)
	if err != nil {
		t.Fatalf("score failed: %v", err)
	}
	if score != 0.5 {
		t.Fatalf("expected exact score 0.5, got %v", score)
	}
	if Passes(m.Polarity(), score, 0.5) {
		t.Error("pair scoring exactly at the threshold must be excluded")
	}
}

func TestDrifted(t *testing.T) {
	// Higher is better: a new score far below the group's founding score
	// splits off a new group
	if !Drifted(HigherIsBetter, 0.99, 0.5, 0.3) {
		t.Error("expected drift when score fell 0.49 with allowance 0.3")
	}
	if Drifted(HigherIsBetter, 0.99, 0.8, 0.3) {
		t.Error("expected no drift when score fell 0.19 with allowance 0.3")
	}

	// Lower is better: a new score far above the group's founding distance
	if !Drifted(LowerIsBetter, 10, 400, 300) {
		t.Error("expected drift when distance grew 390 with allowance 300")
	}
	if Drifted(LowerIsBetter, 10, 200, 300) {
		t.Error("expected no drift when distance grew 190 with allowance 300")
	}
}
