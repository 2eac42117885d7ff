package metric

import (
	"fmt"

	"github.com/imagesieve/imagesieve/internal/feature"
)

// Models scores the generation provenance of two images: Jaccard overlap of
// their checkpoint models weighted at 0.7 plus lora overlap weighted at 0.3.
type Models struct{}

func NewModels() *Models {
	return &Models{}
}

func (m *Models) Name() string { return "models" }

func (m *Models) Kind() feature.Kind { return feature.KindModels }

func (m *Models) Polarity() Polarity { return HigherIsBetter }

func (m *Models) Score(a, b feature.Value) (float64, error) {
	sa, ok := a.(feature.ModelSet)
	if !ok {
		return 0, fmt.Errorf("models metric got %T", a)
	}
	sb, ok := b.(feature.ModelSet)
	if !ok {
		return 0, fmt.Errorf("models metric got %T", b)
	}

	aEmpty := len(sa.Models) == 0 && len(sa.Loras) == 0
	bEmpty := len(sb.Models) == 0 && len(sb.Loras) == 0
	if aEmpty && bEmpty {
		// Two images with no provenance at all are indistinguishable
		return 1.0, nil
	}
	if aEmpty || bEmpty {
		return 0.0, nil
	}

	modelSim := jaccard(sa.Models, sb.Models)
	loraSim := jaccard(sa.Loras, sb.Loras)
	return modelSim*0.7 + loraSim*0.3, nil
}

func jaccard(a, b []string) float64 {
	setA := make(map[string]struct{}, len(a))
	for _, s := range a {
		setA[s] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, s := range b {
		setB[s] = struct{}{}
	}

	var intersection int
	for s := range setA {
		if _, ok := setB[s]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0.0
	}
	return float64(intersection) / float64(union)
}
