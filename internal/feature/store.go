package feature

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"sort"

	"github.com/imagesieve/imagesieve/internal/storage"
)

// ErrSkip marks a file that yields no feature under the current mode
// (unreadable image, missing metadata). The file is skipped, not failed.
var ErrSkip = errors.New("no feature for file")

// ExtractFunc computes the feature value of one file. Returning an error
// wrapping ErrSkip excludes the file without aborting the run.
type ExtractFunc func(path string) (Value, error)

// Store caches extracted feature values per file path and persists them
// between runs. Values are computed lazily through the injected extractor;
// the cache is written back only when something changed.
type Store struct {
	blob    storage.Blob
	extract ExtractFunc
	values  map[string]Value
	dirty   bool
}

func NewStore(blob storage.Blob, extract ExtractFunc) (*Store, error) {
	s := &Store{
		blob:    blob,
		extract: extract,
		values:  make(map[string]Value),
	}

	data, ok, err := blob.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load feature cache: %w", err)
	}
	if ok {
		dec := gob.NewDecoder(bytes.NewReader(data))
		if err := dec.Decode(&s.values); err != nil {
			return nil, fmt.Errorf("failed to decode feature cache: %w", err)
		}
	}
	return s, nil
}

// GetOrCompute returns the cached value for path, extracting and caching it
// on a miss.
func (s *Store) GetOrCompute(path string) (Value, error) {
	if v, ok := s.values[path]; ok {
		return v, nil
	}

	v, err := s.extract(path)
	if err != nil {
		return nil, err
	}

	s.values[path] = v
	s.dirty = true
	return v, nil
}

// Get returns the cached value without triggering extraction.
func (s *Store) Get(path string) (Value, bool) {
	v, ok := s.values[path]
	return v, ok
}

// Put stores an externally computed value.
func (s *Store) Put(path string, v Value) {
	s.values[path] = v
	s.dirty = true
}

// Forget drops the cached value for path.
func (s *Store) Forget(path string) {
	if _, ok := s.values[path]; !ok {
		return
	}
	delete(s.values, path)
	s.dirty = true
}

// Paths returns the cached file paths in lexicographic order.
func (s *Store) Paths() []string {
	paths := make([]string, 0, len(s.values))
	for p := range s.values {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Len returns the number of cached entries.
func (s *Store) Len() int {
	return len(s.values)
}

// Dirty reports whether the cache has unsaved changes.
func (s *Store) Dirty() bool {
	return s.dirty
}

// Save writes the cache back if it changed since load. Set force to write
// unconditionally.
func (s *Store) Save(force bool) error {
	if !s.dirty && !force {
		return nil
	}

	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(s.values); err != nil {
		return fmt.Errorf("failed to encode feature cache: %w", err)
	}
	if err := s.blob.Save(buf.Bytes()); err != nil {
		return fmt.Errorf("failed to save feature cache: %w", err)
	}

	s.dirty = false
	return nil
}
