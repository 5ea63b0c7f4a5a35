package urlspace

import (
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize bounds a Cache created with a non-positive size.
const DefaultCacheSize = 4096

// Cache memoizes Relativize results in a bounded LRU. Session tokens are kept
// out of the keys, so paths that only differ by session share an entry.
// A nil *Cache computes every call.
type Cache struct {
	entries *lru.Cache[cacheKey, string]
}

type cacheKey struct {
	base, path string
}

// NewCache returns an empty Cache holding at most size entries.
func NewCache(size int) *Cache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	entries, err := lru.New[cacheKey, string](size)
	if err != nil {
		// Only a non-positive size fails.
		panic(err)
	}
	return &Cache{entries: entries}
}

// Relativize is a memoized Relativize.
func (c *Cache) Relativize(base, path string) string {
	if c == nil {
		return Relativize(base, path)
	}
	// The last segment of base only matters by name, so its session can go.
	// The session of path is swapped for the placeholder and put back after
	// the lookup.
	path, session, hasSession := SplitSession(path)
	if hasSession {
		path += sessionPlaceholder
	}
	key := cacheKey{base: StripSession(base), path: path}

	rel, ok := c.entries.Get(key)
	if !ok {
		rel = Relativize(key.base, key.path)
		c.entries.Add(key, rel)
	}
	if hasSession {
		rel = strings.Replace(rel, sessionPlaceholder, ";"+session, 1)
	}
	return rel
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return c.entries.Len()
}
