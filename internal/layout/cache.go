package layout

import "prex/internal/schema"

type cacheEntry struct {
	Layout TypeLayout
	Err    *LayoutError
}

type cache struct {
	byType map[schema.TypeID]cacheEntry
}

func newCache() *cache {
	return &cache{byType: make(map[schema.TypeID]cacheEntry, 256)}
}

func (c *cache) get(id schema.TypeID) (cacheEntry, bool) {
	if c == nil {
		return cacheEntry{}, false
	}
	e, ok := c.byType[id]
	return e, ok
}

func (c *cache) put(id schema.TypeID, e *cacheEntry) {
	if c == nil {
		return
	}
	if e == nil {
		delete(c.byType, id)
		return
	}
	c.byType[id] = *e
}
