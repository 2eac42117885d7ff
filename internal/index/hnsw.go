// Package index provides an approximate-nearest-neighbor acceleration index
// for query mode over large corpora. Candidates come from an HNSW graph;
// exact scores are recomputed before reporting.
package index

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/coder/hnsw"

	"github.com/imagesieve/imagesieve/internal/engine"
	"github.com/imagesieve/imagesieve/internal/feature"
	"github.com/imagesieve/imagesieve/internal/metric"
)

const (
	// maxNeighbors (M) is the maximum number of neighbors per node.
	maxNeighbors = 16

	// searchMultiplier requests extra candidates from the graph so recall
	// survives the exact-score filtering step.
	searchMultiplier = 3
)

// Index wraps an HNSW graph keyed by file path.
type Index struct {
	graph      *hnsw.Graph[string]
	savedGraph *hnsw.SavedGraph[string]
	vectors    map[string]feature.Vector
	mu         sync.RWMutex
}

func New() *Index {
	return &Index{
		vectors: make(map[string]feature.Vector),
	}
}

// Build populates the index from a corpus whose features are dense vectors.
// Non-vector features are skipped.
func (x *Index) Build(c *engine.Corpus) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if c.Len() == 0 {
		x.graph = nil
		x.savedGraph = nil
		x.vectors = make(map[string]feature.Vector)
		return nil
	}

	g := hnsw.NewGraph[string]()
	g.M = maxNeighbors
	g.Ml = 1.0 / float64(maxNeighbors) // Standard HNSW formula
	g.Distance = hnsw.CosineDistance

	x.vectors = make(map[string]feature.Vector, c.Len())
	for i, f := range c.Features {
		v, ok := f.(feature.Vector)
		if !ok || len(v) == 0 {
			continue
		}
		g.Add(hnsw.MakeNode(c.Files[i], v))
		x.vectors[c.Files[i]] = v
	}

	x.graph = g
	return nil
}

// Count returns the number of indexed vectors.
func (x *Index) Count() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.vectors)
}

// Search returns up to k candidate matches for the query, scored with the
// exact dot product rather than the graph's approximate distances, in
// descending similarity order as produced by the graph walk.
func (x *Index) Search(query feature.Vector, k int) ([]engine.Match, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.graph == nil && x.savedGraph == nil {
		return nil, fmt.Errorf("index not initialized")
	}

	var neighbors []hnsw.Node[string]
	if x.savedGraph != nil {
		neighbors = x.savedGraph.Search(query, k)
	} else {
		neighbors = x.graph.Search(query, k)
	}

	matches := make([]engine.Match, 0, len(neighbors))
	for _, n := range neighbors {
		v, ok := x.vectors[n.Key]
		if !ok || len(v) != len(query) {
			continue
		}
		matches = append(matches, engine.Match{Path: n.Key, Score: metric.Dot(query, v)})
	}
	return matches, nil
}

// SearchAbove returns up to k matches whose exact similarity clears the
// threshold. More candidates than k are pulled from the graph so the
// filtering does not starve the result.
func (x *Index) SearchAbove(query feature.Vector, k int, threshold float64) ([]engine.Match, error) {
	searchK := max(k*searchMultiplier, 100)

	candidates, err := x.Search(query, searchK)
	if err != nil {
		return nil, err
	}

	matches := make([]engine.Match, 0, k)
	for _, m := range candidates {
		if m.Score <= threshold {
			continue
		}
		matches = append(matches, m)
		if len(matches) >= k {
			break
		}
	}
	return matches, nil
}

// metadata rides next to the exported graph for staleness checking.
type metadata struct {
	Checksum string `json:"checksum"`
	Count    int    `json:"count"`
}

// Save exports the graph to path with a .meta sidecar binding it to the
// corpus checksum it was built from.
func (x *Index) Save(path, checksum string) error {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.graph == nil && x.savedGraph == nil {
		os.Remove(path)
		os.Remove(path + ".meta")
		return nil
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create index file: %w", err)
	}
	if x.savedGraph != nil {
		err = x.savedGraph.Export(f)
	} else {
		err = x.graph.Export(f)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to export index: %w", err)
	}

	meta, err := json.Marshal(metadata{Checksum: checksum, Count: len(x.vectors)})
	if err != nil {
		return fmt.Errorf("failed to marshal index metadata: %w", err)
	}
	if err := os.WriteFile(path+".meta", meta, 0o644); err != nil {
		return fmt.Errorf("failed to write index metadata: %w", err)
	}
	return nil
}

// Load reads a previously exported graph. The vector map must be repopulated
// from the corpus via Rebuild before exact scoring works.
func (x *Index) Load(path string) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	saved, err := hnsw.LoadSavedGraph[string](path)
	if err != nil {
		return fmt.Errorf("failed to load index: %w", err)
	}
	x.savedGraph = saved
	return nil
}

// Rebuild repopulates the path-to-vector map after Load.
func (x *Index) Rebuild(c *engine.Corpus) {
	x.mu.Lock()
	defer x.mu.Unlock()

	x.vectors = make(map[string]feature.Vector, c.Len())
	for i, f := range c.Features {
		if v, ok := f.(feature.Vector); ok {
			x.vectors[c.Files[i]] = v
		}
	}
}

// Stale reports whether the saved index at path was built from a different
// corpus snapshot. A missing or unreadable sidecar counts as stale.
func Stale(path, checksum string) bool {
	data, err := os.ReadFile(path + ".meta")
	if err != nil {
		return true
	}
	var meta metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return true
	}
	return meta.Checksum != checksum
}
