package manager

import (
	"sync"

	"github.com/zhukovaskychina/txstorage/server/innodb/basic"
	"github.com/zhukovaskychina/txstorage/server/innodb/buffer_pool"
	"github.com/zhukovaskychina/txstorage/server/innodb/storage/store/extents"
	"github.com/zhukovaskychina/txstorage/server/innodb/storage/store/segs"
)

// SegmentManager tracks the segments (data, index, undo, blob) living in a
// tablespace. Each segment owns its own free/fragment/full extent lists
// (storage/store/segs.Segment); SegmentManager's job is handing out fresh
// extents from the tablespace-wide ExtentManager when a segment's own
// lists run dry (spec.md §4.1).
type SegmentManager struct {
	mu sync.RWMutex

	segments      map[uint32]*segs.Segment
	nextSegmentID uint32

	bufferPool    *buffer_pool.BufferPool
	extentManager *ExtentManager

	stats *SegmentStats
}

// SegmentStats summarizes segment-level space usage.
type SegmentStats struct {
	TotalSegments     uint32
	TotalPages        uint32
	TotalExtents      uint32
	FreeSpace         uint64
	FragmentationRate float64
}

// NewSegmentManager creates a segment manager backed by a fresh extent
// manager for the same tablespace's buffer pool.
func NewSegmentManager(bp *buffer_pool.BufferPool) *SegmentManager {
	return &SegmentManager{
		segments:      make(map[uint32]*segs.Segment),
		bufferPool:    bp,
		extentManager: NewExtentManager(bp),
		stats:         &SegmentStats{},
	}
}

// CreateSegment creates a new segment of the given type with one initial
// extent allocated to it.
func (sm *SegmentManager) CreateSegment(spaceID uint32, segType uint8, isTemp bool) (*segs.Segment, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sm.nextSegmentID++
	segID := sm.nextSegmentID

	seg := segs.NewSegment(uint64(segID), segType, spaceID)

	if _, err := sm.allocateExtentForSegmentLocked(seg, spaceID, segType); err != nil {
		return nil, err
	}

	sm.segments[segID] = seg
	sm.stats.TotalSegments++
	sm.stats.TotalExtents++
	sm.stats.TotalPages += seg.TotalPages
	sm.stats.FreeSpace += uint64(seg.FreePages) * extents.PAGE_SIZE

	return seg, nil
}

// allocateExtentForSegmentLocked reserves a fresh extent from the
// tablespace-wide extent manager and hands it to the segment's own
// free-extent list. Caller must hold sm.mu.
func (sm *SegmentManager) allocateExtentForSegmentLocked(seg *segs.Segment, spaceID uint32, segType uint8) (uint32, error) {
	extType := basic.ExtentTypeData
	if segType == segs.SEG_TYPE_INDEX {
		extType = basic.ExtentTypeIndex
	}

	_, extentID, err := sm.extentManager.AllocateExtent(spaceID, extType)
	if err != nil {
		return 0, err
	}
	ext, err := sm.extentManager.GetExtent(extentID)
	if err != nil {
		return 0, err
	}

	if err := seg.AllocateExtent(ext.FirstPageNo); err != nil {
		return 0, err
	}
	return ext.FirstPageNo, nil
}

// GetSegment returns a segment by ID.
func (sm *SegmentManager) GetSegment(segID uint32) *segs.Segment {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.segments[segID]
}

// AllocatePage allocates a new page within a segment, pulling a fresh
// extent from the extent manager if the segment has no free capacity left.
func (sm *SegmentManager) AllocatePage(segID uint32) (uint32, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	seg, ok := sm.segments[segID]
	if !ok {
		return 0, ErrSegmentNotFound
	}

	pageNo, err := seg.AllocatePage()
	if err == nil {
		sm.stats.TotalPages++
		sm.stats.FreeSpace -= extents.PAGE_SIZE
		return pageNo, nil
	}

	if _, allocErr := sm.allocateExtentForSegmentLocked(seg, seg.SpaceID, seg.Type); allocErr != nil {
		return 0, allocErr
	}
	sm.stats.TotalExtents++

	pageNo, err = seg.AllocatePage()
	if err != nil {
		return 0, err
	}
	sm.stats.TotalPages++
	sm.stats.FreeSpace -= extents.PAGE_SIZE
	return pageNo, nil
}

// FreePage releases a page back to its segment.
func (sm *SegmentManager) FreePage(segID uint32, pageNo uint32) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	seg, ok := sm.segments[segID]
	if !ok {
		return ErrSegmentNotFound
	}

	if err := seg.FreePage(pageNo); err != nil {
		return ErrPageNotFound
	}

	sm.stats.TotalPages--
	sm.stats.FreeSpace += extents.PAGE_SIZE
	return nil
}

// DropSegment removes a segment from tracking. Its extents stay owned by
// the segment's own lists rather than being individually returned to the
// extent manager's free list, matching the spec's "drop is rare, segments
// are long-lived" usage pattern (tables/indexes, not per-statement scratch
// space).
func (sm *SegmentManager) DropSegment(segID uint32) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if _, ok := sm.segments[segID]; !ok {
		return ErrSegmentNotFound
	}

	delete(sm.segments, segID)
	return nil
}

// GetFreeSpace reports a segment's free space in bytes.
func (sm *SegmentManager) GetFreeSpace(segID uint32) uint64 {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	seg, ok := sm.segments[segID]
	if !ok {
		return 0
	}
	return uint64(seg.FreePages) * extents.PAGE_SIZE
}

// GetStats returns a snapshot of segment-manager-wide statistics.
func (sm *SegmentManager) GetStats() *SegmentStats {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	stats := *sm.stats
	return &stats
}

// Close tears down all tracked segments.
func (sm *SegmentManager) Close() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sm.segments = make(map[uint32]*segs.Segment)
	sm.stats = &SegmentStats{}
	return nil
}
