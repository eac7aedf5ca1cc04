package cache

import "sync"

// CostFunc reports the cost of a value, usually its size in bytes.
type CostFunc[V any] func(V) int64

// Cache is a thread-safe LRU cache bounded by total cost.
type Cache[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]*entry[K, V]
	order   recency[K, V]
	cost    CostFunc[V]
	budget  int64
	used    int64

	hits      uint64
	misses    uint64
	evictions uint64
}

// New creates a cache holding at most budget cost units.
// A budget of 0 disables the cache: Set becomes a no-op.
func New[K comparable, V any](budget int64, cost CostFunc[V]) *Cache[K, V] {
	if cost == nil {
		cost = func(V) int64 { return 1 }
	}
	return &Cache[K, V]{
		entries: make(map[K]*entry[K, V]),
		cost:    cost,
		budget:  budget,
	}
}

// Get retrieves a value and marks it most recently used.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		var zero V
		return zero, false
	}
	c.hits++
	c.order.touch(e)
	return e.value, true
}

// Set stores a value, evicting least recently used entries as needed.
// Values whose cost exceeds the whole budget are dropped.
func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cost := c.cost(value)
	if cost > c.budget {
		c.removeLocked(key)
		return
	}

	if e, ok := c.entries[key]; ok {
		c.used += cost - e.cost
		e.value, e.cost = value, cost
		c.order.touch(e)
	} else {
		e := &entry[K, V]{key: key, value: value, cost: cost}
		c.entries[key] = e
		c.order.pushNewest(e)
		c.used += cost
	}

	for c.used > c.budget && c.order.oldest != nil {
		c.removeLocked(c.order.oldest.key)
		c.evictions++
	}
}

// Delete removes an entry. Returns true if it was present.
func (c *Cache[K, V]) Delete(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removeLocked(key)
}

// Clear removes all entries. Counters are kept.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[K]*entry[K, V])
	c.order.reset()
	c.used = 0
}

// Len returns the number of entries.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns a snapshot of the cache counters.
func (c *Cache[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Len:       len(c.entries),
		Used:      c.used,
		Budget:    c.budget,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}

// removeLocked drops key. Caller must hold c.mu.
func (c *Cache[K, V]) removeLocked(key K) bool {
	e, ok := c.entries[key]
	if !ok {
		return false
	}
	c.order.remove(e)
	c.used -= e.cost
	delete(c.entries, key)
	return true
}

// Stats contains cache statistics.
type Stats struct {
	// Len is the current number of entries.
	Len int
	// Used is the summed cost of all entries.
	Used int64
	// Budget is the configured cost limit.
	Budget int64
	// Hits is the number of successful lookups.
	Hits uint64
	// Misses is the number of failed lookups.
	Misses uint64
	// HitRate is Hits / (Hits + Misses), 0 when nothing was looked up.
	HitRate float64
	// Evictions is the number of entries removed to stay under budget.
	Evictions uint64
}
