package cache

// entry is one cached value and its position in the recency list.
type entry[K comparable, V any] struct {
	key   K
	value V
	cost  int64

	newer *entry[K, V]
	older *entry[K, V]
}

// recency orders entries from most to least recently used. It is not
// safe for concurrent use; Cache holds its mutex around every call.
type recency[K comparable, V any] struct {
	newest *entry[K, V]
	oldest *entry[K, V]
}

// pushNewest inserts e as the most recently used entry.
func (r *recency[K, V]) pushNewest(e *entry[K, V]) {
	e.older = r.newest
	e.newer = nil
	if r.newest != nil {
		r.newest.newer = e
	}
	r.newest = e
	if r.oldest == nil {
		r.oldest = e
	}
}

// touch marks e as the most recently used entry.
func (r *recency[K, V]) touch(e *entry[K, V]) {
	if e == r.newest {
		return
	}
	r.remove(e)
	r.pushNewest(e)
}

// remove unlinks e.
func (r *recency[K, V]) remove(e *entry[K, V]) {
	if e.newer != nil {
		e.newer.older = e.older
	} else {
		r.newest = e.older
	}
	if e.older != nil {
		e.older.newer = e.newer
	} else {
		r.oldest = e.newer
	}
	e.newer, e.older = nil, nil
}

// reset forgets every entry.
func (r *recency[K, V]) reset() {
	r.newest, r.oldest = nil, nil
}
