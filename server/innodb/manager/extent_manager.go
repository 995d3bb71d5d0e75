package manager

import (
	"sync"

	"github.com/zhukovaskychina/txstorage/server/innodb/basic"
	"github.com/zhukovaskychina/txstorage/server/innodb/buffer_pool"
	"github.com/zhukovaskychina/txstorage/server/innodb/storage/store/extents"
)

// ExtentManager tracks the extent descriptors for one tablespace: which
// extents are free, partially used, full, or reserved for system pages
// (spec.md §4.1 extent/segment bookkeeping).
type ExtentManager struct {
	sync.RWMutex

	bufferPool *buffer_pool.BufferPool

	extentCache map[uint32]*extents.ExtentEntry // key: extentID

	freeExtents []uint32

	stats *ExtentStats
}

// ExtentStats summarizes extent utilization for monitoring/checkpointing.
type ExtentStats struct {
	TotalExtents   uint32
	FreeExtents    uint32
	FullExtents    uint32
	FragmentRatio  float64
	AvgUtilization float64
}

// NewExtentManager creates an extent manager for one tablespace's buffer pool.
func NewExtentManager(bp *buffer_pool.BufferPool) *ExtentManager {
	return &ExtentManager{
		bufferPool:  bp,
		extentCache: make(map[uint32]*extents.ExtentEntry),
		freeExtents: make([]uint32, 0),
		stats:       &ExtentStats{},
	}
}

// AllocateExtent allocates a new extent, preferring one already on the
// free list before growing the tablespace.
func (em *ExtentManager) AllocateExtent(spaceID uint32, extType basic.ExtentType) (*extents.ExtentEntry, uint32, error) {
	em.Lock()
	defer em.Unlock()

	var extentID uint32
	if len(em.freeExtents) > 0 {
		extentID = em.freeExtents[len(em.freeExtents)-1]
		em.freeExtents = em.freeExtents[:len(em.freeExtents)-1]
	} else {
		extentID = em.stats.TotalExtents
		em.stats.TotalExtents++
	}

	firstPage := extentID * extents.PAGES_PER_EXTENT
	ext := extents.NewExtentEntry(firstPage)
	if extType == basic.ExtentTypeSystem {
		ext.State = extents.EXTENT_SYSTEM
	}

	em.extentCache[extentID] = ext
	em.updateStatsLocked()

	return ext, extentID, nil
}

// GetExtent returns a cached extent descriptor by ID.
func (em *ExtentManager) GetExtent(extentID uint32) (*extents.ExtentEntry, error) {
	em.RLock()
	defer em.RUnlock()

	if ext, ok := em.extentCache[extentID]; ok {
		return ext, nil
	}
	return nil, ErrExtentNotFound
}

// FreeExtent resets an extent's bitmap and returns it to the free list.
func (em *ExtentManager) FreeExtent(extentID uint32) error {
	em.Lock()
	defer em.Unlock()

	ext, ok := em.extentCache[extentID]
	if !ok {
		return ErrExtentNotFound
	}

	*ext = *extents.NewExtentEntry(ext.FirstPageNo)
	em.freeExtents = append(em.freeExtents, extentID)
	em.updateStatsLocked()

	return nil
}

// AllocatePageInExtent allocates the next free page slot within an extent,
// returning its absolute page number.
func (em *ExtentManager) AllocatePageInExtent(extentID uint32) (uint32, error) {
	em.Lock()
	defer em.Unlock()

	ext, ok := em.extentCache[extentID]
	if !ok {
		return 0, ErrExtentNotFound
	}

	for offset := uint8(0); offset < extents.PAGES_PER_EXTENT; offset++ {
		if ext.IsPageFree(offset) {
			if err := ext.AllocatePage(offset); err != nil {
				return 0, err
			}
			em.updateStatsLocked()
			return ext.FirstPageNo + uint32(offset), nil
		}
	}
	return 0, ErrExtentFull
}

// GetStats returns a snapshot of extent utilization.
func (em *ExtentManager) GetStats() *ExtentStats {
	em.RLock()
	defer em.RUnlock()
	stats := *em.stats
	return &stats
}

func (em *ExtentManager) updateStatsLocked() {
	stats := &ExtentStats{
		TotalExtents: em.stats.TotalExtents,
		FreeExtents:  uint32(len(em.freeExtents)),
	}

	var fullCount uint32
	var totalSpace, usedSpace uint64

	for _, ext := range em.extentCache {
		if ext.GetState() == extents.EXTENT_FULL {
			fullCount++
		}
		totalSpace += extents.EXTENT_SIZE
		usedSpace += uint64(ext.GetUsedPages()) * extents.PAGE_SIZE
	}

	stats.FullExtents = fullCount
	if totalSpace > 0 {
		stats.AvgUtilization = float64(usedSpace) / float64(totalSpace)
	}
	if em.stats.TotalExtents > 0 {
		stats.FragmentRatio = float64(em.stats.TotalExtents-fullCount) / float64(em.stats.TotalExtents)
	}

	em.stats = stats
}

// GetFreeExtentCount reports how many extents sit on the free list.
func (em *ExtentManager) GetFreeExtentCount() int {
	em.RLock()
	defer em.RUnlock()
	return len(em.freeExtents)
}

// GetTotalExtentCount reports how many extents have ever been allocated.
func (em *ExtentManager) GetTotalExtentCount() uint32 {
	em.RLock()
	defer em.RUnlock()
	return em.stats.TotalExtents
}
