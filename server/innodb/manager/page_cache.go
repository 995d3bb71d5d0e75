package manager

import (
	"container/list"
	"fmt"
	"sync"
	"time"

	"github.com/zhukovaskychina/txstorage/server/innodb/basic"
)

// lruPageCache is a fixed-capacity, eviction-on-insert page cache sitting
// in front of the buffer pool — grounded on the same young/old LRU idiom
// buffer_pool.go already uses, simplified to a single list since the page
// manager's cache is a thin lookup layer, not the buffer pool itself.
type lruPageCache struct {
	mu sync.Mutex

	capacity uint32
	order    *list.List // front = most recently used
	index    map[string]*list.Element

	stats basic.PageCacheStats
}

func keyOf(spaceID, pageNo uint32) string {
	return fmt.Sprintf("%d:%d", spaceID, pageNo)
}

type cacheEntry struct {
	key  string
	page basic.IPage
}

// NewLRUCache creates a page cache holding at most capacity pages.
func NewLRUCache(capacity uint32) basic.PageCache {
	return &lruPageCache{
		capacity: capacity,
		order:    list.New(),
		index:    make(map[string]*list.Element),
	}
}

func (c *lruPageCache) Get(spaceID, pageNo uint32) (basic.IPage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := keyOf(spaceID, pageNo)
	elem, ok := c.index[key]
	if !ok {
		c.stats.Misses++
		return nil, false
	}
	c.order.MoveToFront(elem)
	c.stats.Hits++
	return elem.Value.(*cacheEntry).page, true
}

func (c *lruPageCache) Put(p basic.IPage) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := keyOf(p.GetSpaceID(), p.GetPageNo())
	if elem, ok := c.index[key]; ok {
		elem.Value.(*cacheEntry).page = p
		c.order.MoveToFront(elem)
		return nil
	}

	if c.capacity > 0 && uint32(c.order.Len()) >= c.capacity {
		back := c.order.Back()
		if back != nil {
			c.order.Remove(back)
			delete(c.index, back.Value.(*cacheEntry).key)
			c.stats.Evictions++
		}
	}

	elem := c.order.PushFront(&cacheEntry{key: key, page: p})
	c.index[key] = elem
	return nil
}

func (c *lruPageCache) Remove(spaceID, pageNo uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := keyOf(spaceID, pageNo)
	if elem, ok := c.index[key]; ok {
		c.order.Remove(elem)
		delete(c.index, key)
	}
}

func (c *lruPageCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.order = list.New()
	c.index = make(map[string]*list.Element)
}

func (c *lruPageCache) Range(fn func(basic.IPage) bool) {
	c.mu.Lock()
	entries := make([]basic.IPage, 0, c.order.Len())
	for e := c.order.Front(); e != nil; e = e.Next() {
		entries = append(entries, e.Value.(*cacheEntry).page)
	}
	c.mu.Unlock()

	for _, p := range entries {
		if !fn(p) {
			return
		}
	}
}

func (c *lruPageCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *lruPageCache) Capacity() uint32 {
	return c.capacity
}

func (c *lruPageCache) GetStats() *basic.PageCacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	stats := c.stats
	stats.AvgAccessTime = time.Duration(0)
	return &stats
}
