package manager

import (
	"context"
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zhukovaskychina/txstorage/server/innodb/buffer_pool"
)

// newTestBTreeStack wires a tablespace-backed page/segment manager stack
// against a temp directory, the same chain bplus_tree_manager.go drives in
// production: SpaceManagerImpl -> BufferPool -> DefaultPageManager,
// SegmentManager/ExtentManager for page allocation.
func newTestBTreeStack(t *testing.T) (*DefaultBPlusTreeManager, uint32) {
	t.Helper()

	dir := t.TempDir()
	spaceMgr := NewSpaceManager(dir, nil)
	ts, err := spaceMgr.CreateTablespace("btree_test", false)
	require.NoError(t, err)

	bp := buffer_pool.NewBufferPool(&buffer_pool.BufferPoolConfig{
		TotalPages:       256,
		PageSize:         16384,
		BufferPoolSize:   256 * 16384,
		StorageManager:   spaceMgr,
		YoungListPercent: 0.75,
		OldListPercent:   0.25,
		OldBlocksTime:    1000,
	})

	pm := NewPageManager(bp, nil)
	segMgr := NewSegmentManager(bp)

	seg, err := segMgr.CreateSegment(ts.SpaceID, 1, false)
	require.NoError(t, err)

	btm := NewBPlusTreeManager(ts.SpaceID, pm, segMgr, uint32(seg.ID), &BPlusTreeConfig{
		Order:          4, // small order so the tests exercise real splits
		HashBuckets:    8,
		MaxCacheSize:   1000,
		DirtyThreshold: 0.6,
	})
	t.Cleanup(func() { btm.Close() })

	return btm, ts.SpaceID
}

func intKey(i int) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(i))
	return b
}

func TestBPlusTreeClusteredInsertAndSearch(t *testing.T) {
	btm, spaceID := newTestBTreeStack(t)
	ctx := context.Background()

	root, err := btm.CreateIndex(ctx, spaceID, IndexKindClustered)
	require.NoError(t, err)

	const n = 40
	for i := 0; i < n; i++ {
		rec := IndexRecord{Key: intKey(i), Value: []byte(fmt.Sprintf("row-%d", i))}
		require.NoError(t, btm.Insert(ctx, root, rec))
	}

	for i := 0; i < n; i++ {
		rec, found, err := btm.Search(ctx, root, intKey(i))
		require.NoError(t, err)
		require.True(t, found, "key %d should be found", i)
		require.Equal(t, fmt.Sprintf("row-%d", i), string(rec.Value))
	}

	_, found, err := btm.Search(ctx, root, intKey(n+1000))
	require.NoError(t, err)
	require.False(t, found)

	stats := btm.GetStats()
	require.Greater(t, stats.Splits, uint64(0), "an order-4 tree with 40 inserts must have split at least once")
}

func TestBPlusTreeRangeSearchAcrossLeaves(t *testing.T) {
	btm, spaceID := newTestBTreeStack(t)
	ctx := context.Background()

	root, err := btm.CreateIndex(ctx, spaceID, IndexKindSecondaryBTree)
	require.NoError(t, err)

	const n = 30
	for i := 0; i < n; i++ {
		require.NoError(t, btm.Insert(ctx, root, IndexRecord{Key: intKey(i), Value: intKey(i)}))
	}

	recs, err := btm.RangeSearch(ctx, root, intKey(10), intKey(19))
	require.NoError(t, err)
	require.Len(t, recs, 10)
	for i, r := range recs {
		require.Equal(t, intKey(10+i), r.Key)
	}

	leaves, err := btm.GetAllLeafPages(ctx, root)
	require.NoError(t, err)
	require.Greater(t, len(leaves), 1, "30 records at order 4 should span multiple leaves")
}

func TestBPlusTreeDelete(t *testing.T) {
	btm, spaceID := newTestBTreeStack(t)
	ctx := context.Background()

	root, err := btm.CreateIndex(ctx, spaceID, IndexKindClustered)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		require.NoError(t, btm.Insert(ctx, root, IndexRecord{Key: intKey(i), Value: intKey(i)}))
	}

	require.NoError(t, btm.Delete(ctx, root, intKey(5)))
	_, found, err := btm.Search(ctx, root, intKey(5))
	require.NoError(t, err)
	require.False(t, found)

	err = btm.Delete(ctx, root, intKey(5))
	require.ErrorIs(t, err, ErrKeyNotFound)
}

func TestBPlusTreeHashIndex(t *testing.T) {
	btm, spaceID := newTestBTreeStack(t)
	ctx := context.Background()

	root, err := btm.CreateIndex(ctx, spaceID, IndexKindHash)
	require.NoError(t, err)

	const n = 50
	for i := 0; i < n; i++ {
		require.NoError(t, btm.Insert(ctx, root, IndexRecord{Key: intKey(i), Value: intKey(i * 2)}))
	}

	for i := 0; i < n; i++ {
		rec, found, err := btm.Search(ctx, root, intKey(i))
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, intKey(i*2), rec.Value)
	}

	_, err = btm.RangeSearch(ctx, root, intKey(0), intKey(10))
	require.ErrorIs(t, err, ErrRangeUnsupported)
}
