package manager

import (
	"sync"
	"time"

	"github.com/zhukovaskychina/txstorage/server/common"
	"github.com/zhukovaskychina/txstorage/server/innodb/basic"
	"github.com/zhukovaskychina/txstorage/server/innodb/buffer_pool"
)

// DefaultPageManager is the top-level page allocate/read/write/flush API,
// sitting between mini-transactions and the buffer pool. It owns a small
// LRU cache of parsed basic.IPage views on top of the buffer pool's own
// raw-byte caching, so repeated structural access to the same page (e.g.
// walking a B+tree) doesn't re-parse the page header on every hit.
type DefaultPageManager struct {
	sync.RWMutex

	bufferPool *buffer_pool.BufferPool
	cache      basic.PageCache
	stats      *PageStats
	config     *PageConfig
}

// PageStats tracks page manager level IO/cache counters, independent of
// the buffer pool's own stats (those cover raw block IO; these cover
// structural page access).
type PageStats struct {
	PageReads  uint64
	PageWrites uint64

	CacheHits   uint64
	CacheMisses uint64

	AvgReadTime  time.Duration
	AvgWriteTime time.Duration
}

// PageConfig configures the page manager's own cache and flush behavior.
type PageConfig struct {
	CacheSize      uint32
	DirtyThreshold float64
	EvictionPolicy string

	ReadAheadSize   uint32
	WriteBufferSize uint32

	MaxConcurrency int
}

// NewPageManager creates a page manager on top of an already-configured
// buffer pool.
func NewPageManager(bp *buffer_pool.BufferPool, config *PageConfig) *DefaultPageManager {
	if config == nil {
		config = &PageConfig{
			CacheSize:      1000,
			DirtyThreshold: 0.7,
			EvictionPolicy: "LRU",
		}
	}

	return &DefaultPageManager{
		bufferPool: bp,
		cache:      NewLRUCache(config.CacheSize),
		stats:      &PageStats{},
		config:     config,
	}
}

// CreatePage formats a page of the given type at an already-allocated
// pageNo (the extent/segment manager is responsible for reserving the
// page number; CreatePage's job is formatting and registering it with the
// buffer pool, not allocation bookkeeping).
func (pm *DefaultPageManager) CreatePage(spaceID, pageNo uint32, typ common.PageType) (basic.IPage, error) {
	pm.Lock()
	defer pm.Unlock()

	p := newPage(typ, pageNo)
	p.SetSpaceID(spaceID)
	if err := p.Init(); err != nil {
		return nil, err
	}

	block, err := pm.bufferPool.GetPageBlock(spaceID, pageNo)
	if err != nil || block == nil {
		return nil, ErrNoFreePages
	}
	copy(block.GetContent(), p.GetData())
	if err := pm.bufferPool.UpdateBlock(spaceID, pageNo, block); err != nil {
		return nil, err
	}

	if err := pm.cache.Put(p); err != nil {
		return nil, err
	}
	pm.stats.PageWrites++

	return p, nil
}

// GetPage returns a page, preferring the page manager's own parsed-page
// cache before falling back to the buffer pool (and, transitively, disk).
func (pm *DefaultPageManager) GetPage(spaceID, pageNo uint32) (basic.IPage, error) {
	pm.RLock()
	if p, ok := pm.cache.Get(spaceID, pageNo); ok {
		pm.RUnlock()
		pm.stats.CacheHits++
		return p, nil
	}
	pm.RUnlock()
	pm.stats.CacheMisses++

	start := time.Now()
	block, err := pm.bufferPool.GetPageBlock(spaceID, pageNo)
	if err != nil || block == nil {
		return nil, ErrPageNotFound
	}

	p, err := parsePage(block.GetContent())
	if err != nil {
		return nil, err
	}
	p.SetSpaceID(spaceID)

	pm.Lock()
	pm.stats.AvgReadTime = time.Since(start)
	pm.stats.PageReads++
	if err := pm.cache.Put(p); err != nil {
		pm.Unlock()
		return nil, err
	}
	pm.Unlock()

	return p, nil
}

// FlushPage writes a dirty cached page's current content back to its
// buffer block and queues it for disk flush.
func (pm *DefaultPageManager) FlushPage(spaceID, pageNo uint32) error {
	pm.Lock()
	defer pm.Unlock()

	p, ok := pm.cache.Get(spaceID, pageNo)
	if !ok {
		return nil
	}
	if !p.IsDirty() {
		return nil
	}

	block, err := pm.bufferPool.GetPageBlock(spaceID, pageNo)
	if err != nil || block == nil {
		return ErrPageNotFound
	}

	copy(block.GetContent(), p.GetData())
	if err := pm.bufferPool.UpdateBlock(spaceID, pageNo, block); err != nil {
		return err
	}
	pm.bufferPool.GetFlushDiskList().AddBlock(block)

	start := time.Now()
	pm.stats.AvgWriteTime = time.Since(start)
	p.ClearDirty()

	return nil
}

// FlushAll flushes every dirty page currently held in the page manager's
// cache.
func (pm *DefaultPageManager) FlushAll() error {
	for _, p := range pm.getDirtyPages() {
		if err := pm.FlushPage(p.GetSpaceID(), p.GetPageNo()); err != nil {
			return err
		}
	}
	return nil
}

// BeginTx starts a page-level transaction scoped to one tablespace.
func (pm *DefaultPageManager) BeginTx(spaceID uint32) (basic.PageTx, error) {
	return NewPageTx(pm, spaceID), nil
}

// EncodePageID packs a (spaceID, pageNo) pair into the flat uint64 address
// redo log records carry (log_types.go's RedoLogEntry.PageID), so recovery
// doesn't need a separate field per component.
func EncodePageID(spaceID, pageNo uint32) uint64 {
	return uint64(spaceID)<<32 | uint64(pageNo)
}

// DecodePageID reverses EncodePageID.
func DecodePageID(pageID uint64) (spaceID, pageNo uint32) {
	return uint32(pageID >> 32), uint32(pageID)
}

// ApplyRedo replays one physical redo record during crash recovery
// (spec.md §4.3/§4.10): overwrite the page's body with the record's
// after-image and mark it dirty so the next flush pass persists it. Redo
// records are idempotent full-body overwrites, so re-applying one that was
// already durable is harmless. Satisfies RedoLogManager's PageApplier.
func (pm *DefaultPageManager) ApplyRedo(pageID uint64, data []byte) error {
	spaceID, pageNo := DecodePageID(pageID)

	p, err := pm.GetPage(spaceID, pageNo)
	if err != nil {
		typ := common.FIL_PAGE_INDEX
		if p, err = pm.CreatePage(spaceID, pageNo, typ); err != nil {
			return err
		}
	}

	start, end := bodyBounds()
	body := p.GetData()[start:end]
	n := copy(body, data)
	for i := start + n; i < end; i++ {
		p.GetData()[i] = 0
	}
	p.MarkDirty()

	return pm.FlushPage(spaceID, pageNo)
}

func (pm *DefaultPageManager) getDirtyPages() []basic.IPage {
	var dirty []basic.IPage
	pm.cache.Range(func(p basic.IPage) bool {
		if p.IsDirty() {
			dirty = append(dirty, p)
		}
		return true
	})
	return dirty
}
