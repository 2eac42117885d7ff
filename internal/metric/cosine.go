package metric

import (
	"fmt"

	"github.com/imagesieve/imagesieve/internal/feature"
)

// Embedding scores dense vectors by cosine similarity. Vectors are
// L2-normalized at extraction time, so the similarity is a plain dot product.
type Embedding struct{}

func NewEmbedding() *Embedding {
	return &Embedding{}
}

func (m *Embedding) Name() string { return "embedding" }

func (m *Embedding) Kind() feature.Kind { return feature.KindEmbedding }

func (m *Embedding) Polarity() Polarity { return HigherIsBetter }

func (m *Embedding) Score(a, b feature.Value) (float64, error) {
	va, ok := a.(feature.Vector)
	if !ok {
		return 0, fmt.Errorf("embedding metric got %T", a)
	}
	vb, ok := b.(feature.Vector)
	if !ok {
		return 0, fmt.Errorf("embedding metric got %T", b)
	}
	if len(va) != len(vb) || len(va) == 0 {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(va), len(vb))
	}

	var dot float64
	for i := range va {
		dot += float64(va[i]) * float64(vb[i])
	}

	// Clamp to [-1, 1] to handle floating point errors
	if dot > 1 {
		dot = 1
	}
	if dot < -1 {
		dot = -1
	}
	return dot, nil
}

// Dot is the raw similarity kernel used to re-score approximate index
// candidates exactly, skipping interface dispatch. Both vectors must share a
// dimension.
func Dot(a, b feature.Vector) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}
