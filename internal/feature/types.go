package feature

import (
	"encoding/gob"
	"math"
)

// Kind identifies which comparison mode a feature value belongs to.
type Kind string

const (
	KindEmbedding Kind = "embedding"
	KindColors    Kind = "colors"
	KindPrompts   Kind = "prompts"
	KindModels    Kind = "models"
	KindSize      Kind = "size"
)

// ThumbDim is the side length of the thumbnail used for color fingerprints.
// A thumb color grid always holds ThumbDim*ThumbDim entries.
const ThumbDim = 15

// Value is one extracted fingerprint for a file under a comparison mode.
type Value interface {
	Kind() Kind
}

// Vector is a dense embedding, L2-normalized at creation time.
type Vector []float32

func (Vector) Kind() Kind { return KindEmbedding }

// Normalize scales the vector to unit L2 norm in place and returns it.
// A zero vector is left unchanged.
func (v Vector) Normalize() Vector {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v
}

// LAB is a single color in CIELAB space.
type LAB struct {
	L, A, B float64
}

// ColorGrid is the ordered list of LAB colors of a fixed-size thumbnail,
// row-major, ThumbDim*ThumbDim entries.
type ColorGrid []LAB

func (ColorGrid) Kind() Kind { return KindColors }

// PromptPair holds the positive and negative generation prompts extracted
// from an image's metadata.
type PromptPair struct {
	Positive string
	Negative string
}

func (PromptPair) Kind() Kind { return KindPrompts }

// ModelSet holds the checkpoint model and lora identifiers extracted from
// an image's generation metadata.
type ModelSet struct {
	Models []string
	Loras  []string
}

func (ModelSet) Kind() Kind { return KindModels }

// Dimensions is a file's pixel width and height.
type Dimensions struct {
	Width  int
	Height int
}

func (Dimensions) Kind() Kind { return KindSize }

func init() {
	// Concrete value types cross the gob boundary behind the Value interface.
	gob.Register(Vector{})
	gob.Register(ColorGrid{})
	gob.Register(PromptPair{})
	gob.Register(ModelSet{})
	gob.Register(Dimensions{})
}
