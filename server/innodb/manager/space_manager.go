package manager

import (
	"errors"
	"fmt"
	"sync"

	"github.com/zhukovaskychina/txstorage/server/innodb/basic"
	"github.com/zhukovaskychina/txstorage/server/innodb/buffer_pool"
	"github.com/zhukovaskychina/txstorage/server/innodb/storage/store/pagefile"
)

var ErrTablespaceNotFound = errors.New("tablespace not found")

// SpaceManagerImpl resolves tablespace IDs to their backing .cdb file and
// implements basic.SpaceManager/basic.StorageProvider for the buffer pool
// (spec.md §4.1 tablespace layer, §4.2 buffer pool <-> storage boundary).
type SpaceManagerImpl struct {
	mu sync.RWMutex

	dataDir string
	spaces  map[uint32]*Tablespace

	nextSpaceID   uint32
	extentManager *ExtentManager
	bufferPool    *buffer_pool.BufferPool
}

// Tablespace is one .cdb file plus its bookkeeping metadata. It embeds
// *pagefile.PageFile so it satisfies basic.Space (LoadPageByPageNumber)
// directly through method promotion.
type Tablespace struct {
	*pagefile.PageFile

	SpaceID     uint32
	Name        string
	PageSize    uint32
	IsTemporary bool
}

// FlushToDisk implements basic.Space by delegating to the underlying page
// file's checksum-stamping WritePage.
func (ts *Tablespace) FlushToDisk(pageNo uint32, content []byte) error {
	return ts.WritePage(pageNo, content)
}

// NewSpaceManager creates a space manager rooted at dataDir, where each
// tablespace's .cdb file lives.
func NewSpaceManager(dataDir string, bufferPool *buffer_pool.BufferPool) *SpaceManagerImpl {
	return &SpaceManagerImpl{
		dataDir:       dataDir,
		spaces:        make(map[uint32]*Tablespace),
		extentManager: NewExtentManager(bufferPool),
		bufferPool:    bufferPool,
	}
}

// CreateTablespace creates and opens a brand-new .cdb file.
func (sm *SpaceManagerImpl) CreateTablespace(name string, isTemp bool) (*Tablespace, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sm.nextSpaceID++
	spaceID := sm.nextSpaceID

	pf := pagefile.NewPageFile(sm.dataDir, name, spaceID)
	if err := pf.Create(); err != nil {
		return nil, fmt.Errorf("create tablespace %q: %w", name, err)
	}

	ts := &Tablespace{PageFile: pf, SpaceID: spaceID, Name: name, PageSize: pagefile.PageSize, IsTemporary: isTemp}
	sm.spaces[spaceID] = ts
	return ts, nil
}

// OpenTablespace opens an existing .cdb file, used during startup/recovery
// when the space ID is already known from the catalog.
func (sm *SpaceManagerImpl) OpenTablespace(name string, spaceID uint32, isTemp bool) (*Tablespace, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	pf := pagefile.NewPageFile(sm.dataDir, name, spaceID)
	if err := pf.Open(); err != nil {
		return nil, fmt.Errorf("open tablespace %q: %w", name, err)
	}

	ts := &Tablespace{PageFile: pf, SpaceID: spaceID, Name: name, PageSize: pagefile.PageSize, IsTemporary: isTemp}
	sm.spaces[spaceID] = ts
	if spaceID > sm.nextSpaceID {
		sm.nextSpaceID = spaceID
	}
	return ts, nil
}

// GetSpace implements basic.SpaceManager for the buffer pool.
func (sm *SpaceManagerImpl) GetSpace(spaceID uint32) (basic.Space, error) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	ts, ok := sm.spaces[spaceID]
	if !ok {
		return nil, ErrTablespaceNotFound
	}
	return ts, nil
}

// GetTablespace returns the full Tablespace handle (not just the narrow
// basic.Space view) for callers that need metadata like Name/PageSize.
func (sm *SpaceManagerImpl) GetTablespace(spaceID uint32) (*Tablespace, error) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	ts, ok := sm.spaces[spaceID]
	if !ok {
		return nil, ErrTablespaceNotFound
	}
	return ts, nil
}

// WritePage implements basic.StorageProvider, dispatching to the right
// tablespace file for callers (e.g. checkpoint/flush code) that only have
// a spaceID and a raw page buffer in hand.
func (sm *SpaceManagerImpl) WritePage(spaceID, pageNo uint32, data []byte) error {
	sm.mu.RLock()
	ts, ok := sm.spaces[spaceID]
	sm.mu.RUnlock()
	if !ok {
		return ErrTablespaceNotFound
	}
	return ts.WritePage(pageNo, data)
}

// DropTablespace deletes a tablespace's .cdb file from disk and stops
// tracking it.
func (sm *SpaceManagerImpl) DropTablespace(spaceID uint32) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ts, ok := sm.spaces[spaceID]
	if !ok {
		return ErrTablespaceNotFound
	}

	if err := ts.Delete(); err != nil {
		return err
	}
	delete(sm.spaces, spaceID)
	return nil
}

// Close syncs and closes every open tablespace file.
func (sm *SpaceManagerImpl) Close() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	for _, ts := range sm.spaces {
		if err := ts.Close(); err != nil {
			return err
		}
	}
	sm.spaces = make(map[uint32]*Tablespace)
	return nil
}
