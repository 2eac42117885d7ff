package index

import (
	"fmt"
	"math"
	"path/filepath"
	"testing"

	"github.com/imagesieve/imagesieve/internal/engine"
	"github.com/imagesieve/imagesieve/internal/feature"
)

func testCorpus(n int) *engine.Corpus {
	c := &engine.Corpus{}
	for i := range n {
		angle := float64(i) * 0.2
		c.Files = append(c.Files, fmt.Sprintf("file%d.png", i))
		c.Features = append(c.Features, feature.Vector{
			float32(math.Cos(angle)), float32(math.Sin(angle)), 0,
		})
	}
	return c
}

func TestIndex_SearchFindsExactMatch(t *testing.T) {
	x := New()
	c := testCorpus(20)
	if err := x.Build(c); err != nil {
		t.Fatalf("build failed: %v", err)
	}

	query := c.Features[7].(feature.Vector)
	matches, err := x.Search(query, 5)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(matches) == 0 {
		t.Fatal("expected matches")
	}

	if matches[0].Path != "file7.png" {
		t.Errorf("expected file7.png first, got %s", matches[0].Path)
	}
	if matches[0].Score < 0.999 {
		t.Errorf("expected exact score ~1.0, got %f", matches[0].Score)
	}
}

func TestIndex_SearchAboveFilters(t *testing.T) {
	x := New()
	c := testCorpus(20)
	if err := x.Build(c); err != nil {
		t.Fatalf("build failed: %v", err)
	}

	query := c.Features[7].(feature.Vector)
	matches, err := x.SearchAbove(query, 10, 0.95)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}

	if len(matches) == 0 {
		t.Fatal("expected at least the exact match above threshold")
	}
	for _, m := range matches {
		if m.Score <= 0.95 {
			t.Errorf("%s scored %f, at or below threshold", m.Path, m.Score)
		}
	}
}

func TestIndex_SearchUninitialized(t *testing.T) {
	if _, err := New().Search(feature.Vector{1, 0, 0}, 5); err == nil {
		t.Error("expected error searching an empty index")
	}
}

func TestIndex_BuildSkipsNonVectors(t *testing.T) {
	x := New()
	c := &engine.Corpus{
		Files: []string{"a.png", "b.png"},
		Features: []feature.Value{
			feature.Vector{1, 0, 0},
			feature.Dimensions{Width: 512, Height: 512},
		},
	}
	if err := x.Build(c); err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if x.Count() != 1 {
		t.Errorf("expected 1 indexed vector, got %d", x.Count())
	}
}

func TestIndex_SaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.hnsw")

	c := testCorpus(10)
	x := New()
	if err := x.Build(c); err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if err := x.Save(path, c.Checksum()); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded := New()
	if err := loaded.Load(path); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	loaded.Rebuild(c)

	query := c.Features[3].(feature.Vector)
	matches, err := loaded.Search(query, 3)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(matches) == 0 || matches[0].Path != "file3.png" {
		t.Errorf("expected file3.png first after reload, got %v", matches)
	}
}

func TestIndex_Staleness(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.hnsw")

	c := testCorpus(5)
	x := New()
	if err := x.Build(c); err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if err := x.Save(path, c.Checksum()); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	if Stale(path, c.Checksum()) {
		t.Error("freshly saved index must not be stale")
	}
	if !Stale(path, "different-checksum") {
		t.Error("index from another corpus must be stale")
	}
	if !Stale(filepath.Join(dir, "missing.hnsw"), c.Checksum()) {
		t.Error("missing sidecar must count as stale")
	}
}
