// File: internal/prompt/cache.go
package prompt

import (
	"container/list"
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/quietops/linkhawk/api/schemas"
)

// classification is the memoized output of a Classify call.
type classification struct {
	Intent schemas.Intent
	Params schemas.ExtractedParameters
}

// lruCache is a bounded, mutex-guarded LRU keyed by normalized prompt text.
// Capacity is fixed at construction; inserting beyond it evicts the least
// recently used entry.
type lruCache struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	entries  map[string]*list.Element
}

type lruEntry struct {
	key   string
	value classification
}

func newLRUCache(capacity int) *lruCache {
	if capacity < 1 {
		capacity = 1
	}
	return &lruCache{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[string]*list.Element, capacity),
	}
}

func (c *lruCache) Get(key string) (classification, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.entries[key]
	if !ok {
		return classification{}, false
	}
	c.order.MoveToFront(elem)
	return elem.Value.(*lruEntry).value, true
}

func (c *lruCache) Put(key string, value classification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.entries[key]; ok {
		elem.Value.(*lruEntry).value = value
		c.order.MoveToFront(elem)
		return
	}
	c.entries[key] = c.order.PushFront(&lruEntry{key: key, value: value})
	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*lruEntry).key)
	}
}

func (c *lruCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// CachedClassifier memoizes an inner classifier by exact prompt text.
// Concurrent identical calls share a single in-flight classification via
// singleflight, so a burst of the same prompt performs one inner call.
type CachedClassifier struct {
	inner Classifier
	cache *lruCache
	group singleflight.Group
}

// NewCachedClassifier wraps inner with a bounded LRU of the given capacity.
func NewCachedClassifier(inner Classifier, capacity int) *CachedClassifier {
	return &CachedClassifier{inner: inner, cache: newLRUCache(capacity)}
}

func (c *CachedClassifier) Classify(ctx context.Context, prompt string) (schemas.Intent, schemas.ExtractedParameters, error) {
	if hit, ok := c.cache.Get(prompt); ok {
		return hit.Intent, hit.Params, nil
	}

	v, err, _ := c.group.Do(prompt, func() (any, error) {
		intent, params, err := c.inner.Classify(ctx, prompt)
		if err != nil {
			return nil, err
		}
		result := classification{Intent: intent, Params: params}
		c.cache.Put(prompt, result)
		return result, nil
	})
	if err != nil {
		return schemas.IntentUnknown, schemas.ExtractedParameters{}, err
	}
	result := v.(classification)
	return result.Intent, result.Params, nil
}
