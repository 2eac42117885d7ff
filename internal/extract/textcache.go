package extract

import (
	"container/list"
	"context"
	"sync"

	"github.com/imagesieve/imagesieve/internal/feature"
)

// defaultTextCacheBytes bounds the memoized text embeddings at 8 MiB,
// roughly 2500 cached 768-dim queries.
const defaultTextCacheBytes = 8 << 20

// textSource is anything that can embed a text query.
type textSource interface {
	Text(ctx context.Context, text string) (feature.Vector, error)
}

// TextCache memoizes text embeddings in front of a provider, evicting the
// least recently used entries once a byte budget is exceeded. Text queries
// repeat often (the serve API re-embeds every search request) while each
// provider call costs a network round trip.
type TextCache struct {
	source   textSource
	capacity int64

	mu      sync.Mutex
	size    int64
	order   *list.List
	entries map[string]*list.Element
}

type textCacheEntry struct {
	text string
	vec  feature.Vector
}

// NewTextCache wraps source with an LRU cache of at most maxBytes. A
// non-positive maxBytes selects the default budget.
func NewTextCache(source textSource, maxBytes int64) *TextCache {
	if maxBytes <= 0 {
		maxBytes = defaultTextCacheBytes
	}
	return &TextCache{
		source:   source,
		capacity: maxBytes,
		order:    list.New(),
		entries:  make(map[string]*list.Element),
	}
}

// Text returns the cached embedding for text, consulting the underlying
// provider on a miss. Provider errors are not cached.
func (c *TextCache) Text(ctx context.Context, text string) (feature.Vector, error) {
	c.mu.Lock()
	if elem, ok := c.entries[text]; ok {
		c.order.MoveToFront(elem)
		vec := elem.Value.(*textCacheEntry).vec
		c.mu.Unlock()
		return vec, nil
	}
	c.mu.Unlock()

	vec, err := c.source.Text(ctx, text)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// A concurrent call may have filled the entry while the provider ran.
	if elem, ok := c.entries[text]; ok {
		c.order.MoveToFront(elem)
		return elem.Value.(*textCacheEntry).vec, nil
	}

	c.entries[text] = c.order.PushFront(&textCacheEntry{text: text, vec: vec})
	c.size += entryCost(text, vec)
	for c.size > c.capacity && c.order.Len() > 1 {
		c.evictOldest()
	}
	return vec, nil
}

// Len returns the number of cached embeddings.
func (c *TextCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *TextCache) evictOldest() {
	elem := c.order.Back()
	if elem == nil {
		return
	}
	entry := elem.Value.(*textCacheEntry)
	c.order.Remove(elem)
	delete(c.entries, entry.text)
	c.size -= entryCost(entry.text, entry.vec)
}

func entryCost(text string, vec feature.Vector) int64 {
	return int64(len(text)) + int64(len(vec))*4
}
