// Package cache provides a byte-budgeted LRU cache used to keep recently
// decoded slice payloads in memory.
//
//	c := cache.New[Key, []byte](64<<20, func(b []byte) int64 { return int64(len(b)) })
//	c.Set(key, payload)
//	payload, ok := c.Get(key)
//
// Entries are evicted least recently used first once the summed cost of
// all entries exceeds the budget. A single entry larger than the budget is
// not stored.
//
// Cache is safe for concurrent use and must not be copied after creation.
package cache
