// Package cache provides the generic LRU cache used to share compiled
// breakpoint conditions between debug sessions.
//
//	c := cache.New[string, int](100, nil)
//	value, err := c.GetOrCreate("key", func() (int, error) { return 42, nil })
//
// Values may own resources; pass a release callback to New and it runs
// whenever a value leaves the cache, on eviction or Clear.
//
// Cache is safe for concurrent use and must not be copied after creation.
package cache
