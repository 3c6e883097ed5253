// Package reccache implements the bounded, recency-ordered cache of
// decoded records in front of the shard store: read-through on get,
// populated on put/update, invalidated on delete.
package reccache

import (
	"container/list"
	"sync"

	"github.com/marmos91/docstore/pkg/record"
)

// DefaultCapacity is the cache size used when none is configured.
const DefaultCapacity = 5000

type entry struct {
	id  string
	rec *record.Record
}

// Cache is a thread-safe, least-recently-used cache of records, guarded by
// its own mutex, disjoint from the global index/WAL lock.
type Cache struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List
	items    map[string]*list.Element
}

// New returns a Cache bounded to capacity entries.
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[string]*list.Element),
	}
}

// Get returns a clone of the cached record for id, promoting it to most
// recently used.
func (c *Cache) Get(id string) (*record.Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[id]
	if !ok {
		return nil, false
	}
	c.ll.MoveToFront(el)
	return el.Value.(*entry).rec.Clone(), true
}

// Put inserts or replaces the cached record for id, evicting the least
// recently used entry if the cache is at capacity.
func (c *Cache) Put(id string, rec *record.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stored := rec.Clone()
	if el, ok := c.items[id]; ok {
		el.Value.(*entry).rec = stored
		c.ll.MoveToFront(el)
		return
	}

	el := c.ll.PushFront(&entry{id: id, rec: stored})
	c.items[id] = el

	for c.ll.Len() > c.capacity {
		c.evictOldest()
	}
}

func (c *Cache) evictOldest() {
	oldest := c.ll.Back()
	if oldest == nil {
		return
	}
	c.ll.Remove(oldest)
	delete(c.items, oldest.Value.(*entry).id)
}

// Invalidate removes id from the cache, if present.
func (c *Cache) Invalidate(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[id]; ok {
		c.ll.Remove(el)
		delete(c.items, id)
	}
}

// Len reports the current number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}
