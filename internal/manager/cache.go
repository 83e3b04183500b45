package manager

import (
	"container/list"
	"encoding/json"
	"sync"

	"raggate/pkg/types"
)

// responseCache memoizes full answers for identical compressed message
// sequences. Bounded LRU; safe for concurrent use.
type responseCache struct {
	mu    sync.Mutex
	cap   int
	order *list.List
	items map[string]*list.Element
}

type cacheEntry struct {
	key  string
	full string
}

func newResponseCache(capacity int) *responseCache {
	return &responseCache{
		cap:   capacity,
		order: list.New(),
		items: make(map[string]*list.Element, capacity),
	}
}

func (c *responseCache) get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		return "", false
	}
	c.order.MoveToFront(el)
	return el.Value.(cacheEntry).full, true
}

func (c *responseCache) put(key, full string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		el.Value = cacheEntry{key: key, full: full}
		c.order.MoveToFront(el)
		return
	}
	c.items[key] = c.order.PushFront(cacheEntry{key: key, full: full})
	for c.order.Len() > c.cap {
		last := c.order.Back()
		c.order.Remove(last)
		delete(c.items, last.Value.(cacheEntry).key)
	}
}

// cacheKey is a canonical rendering of a message sequence.
func cacheKey(messages []types.ChatMessage) string {
	b, err := json.Marshal(messages)
	if err != nil {
		return ""
	}
	return string(b)
}
