package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/imagesieve/imagesieve/internal/feature"
)

// Corpus holds the ordered file list under comparison and the parallel slice
// of extracted feature values. Indices are stable for the duration of a run;
// Remove compacts both slices together and invalidates cached indices.
type Corpus struct {
	Files    []string
	Features []feature.Value
}

// BuildCorpus resolves features for the given paths through the store.
// Duplicated paths are dropped, keeping the first occurrence. Files whose
// extraction fails with feature.ErrSkip are logged and left out; any other
// extraction error aborts the build.
func BuildCorpus(store *feature.Store, paths []string) (*Corpus, error) {
	c := &Corpus{}
	seen := make(map[string]struct{}, len(paths))

	for _, path := range paths {
		if _, ok := seen[path]; ok {
			continue
		}
		seen[path] = struct{}{}

		v, err := store.GetOrCompute(path)
		if errors.Is(err, feature.ErrSkip) {
			log.Printf("skipping %s: %v", path, err)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to extract feature for %s: %w", path, err)
		}

		c.Files = append(c.Files, path)
		c.Features = append(c.Features, v)
	}
	return c, nil
}

// Len returns the number of files in the corpus.
func (c *Corpus) Len() int {
	return len(c.Files)
}

// Index returns the position of path in the corpus, or -1.
func (c *Corpus) Index(path string) int {
	for i, f := range c.Files {
		if f == path {
			return i
		}
	}
	return -1
}

// Checksum returns a content hash of the ordered file list, used to bind
// checkpoints to one corpus snapshot.
func (c *Corpus) Checksum() string {
	h := sha256.Sum256([]byte(strings.Join(c.Files, "\n")))
	return hex.EncodeToString(h[:])
}

// Remove drops the given paths, compacting the file list and feature slice
// together. Indices after the first removed position shift down; callers
// holding indices must re-resolve them.
func (c *Corpus) Remove(paths []string) {
	if len(paths) == 0 {
		return
	}
	drop := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		drop[p] = struct{}{}
	}

	files := c.Files[:0]
	features := c.Features[:0]
	for i, f := range c.Files {
		if _, ok := drop[f]; ok {
			continue
		}
		files = append(files, f)
		features = append(features, c.Features[i])
	}
	c.Files = files
	c.Features = features
}

// Readd re-extracts the given paths and appends any that are not already in
// the corpus; paths already present get their feature replaced in place.
// Used after external edits invalidated a file's cached feature.
func (c *Corpus) Readd(store *feature.Store, paths []string) error {
	for _, path := range paths {
		store.Forget(path)

		v, err := store.GetOrCompute(path)
		if errors.Is(err, feature.ErrSkip) {
			log.Printf("skipping %s: %v", path, err)
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to re-extract feature for %s: %w", path, err)
		}

		if i := c.Index(path); i >= 0 {
			c.Features[i] = v
			continue
		}
		c.Files = append(c.Files, path)
		c.Features = append(c.Features, v)
	}
	return nil
}
