package jit

import (
	"container/list"

	"rillc/codegen"
)

// lruCache holds compiled region artifacts, evicting the least recently used
// entry once full.  Callers synchronize access.
type lruCache struct {
	capacity int
	order    *list.List
	items    map[Key]*list.Element
}

type lruEntry struct {
	key  Key
	code *codegen.FuncCode
}

func newLRUCache(capacity int) *lruCache {
	return &lruCache{
		capacity: capacity,
		order:    list.New(),
		items:    make(map[Key]*list.Element),
	}
}

func (c *lruCache) get(key Key) (*codegen.FuncCode, bool) {
	elem, ok := c.items[key]
	if !ok {
		return nil, false
	}

	c.order.MoveToFront(elem)
	return elem.Value.(*lruEntry).code, true
}

func (c *lruCache) add(key Key, code *codegen.FuncCode) {
	if elem, ok := c.items[key]; ok {
		elem.Value.(*lruEntry).code = code
		c.order.MoveToFront(elem)
		return
	}

	c.items[key] = c.order.PushFront(&lruEntry{key: key, code: code})

	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*lruEntry).key)
	}
}

func (c *lruCache) len() int {
	return c.order.Len()
}
