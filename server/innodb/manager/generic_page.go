package manager

import (
	"encoding/binary"
	"sync"

	"github.com/zhukovaskychina/txstorage/server/common"
)

// genericPage is a page-format-agnostic common.IPage. Index pages, undo
// pages, INODE pages and the rest each give their body bytes a different
// structured meaning, but the page manager only needs a uniform way to
// track identity, type, LSN and dirty/pinned state across all of them
// (spec.md §4.1).
type genericPage struct {
	mu sync.RWMutex

	spaceID  uint32
	pageNo   uint32
	pageType common.PageType
	lsn      uint64
	dirty    bool
	state    common.PageState
	pinCount int32

	data []byte
}

// newPage allocates a fresh zero-filled page of the given type.
func newPage(typ common.PageType, pageNo uint32) *genericPage {
	data := make([]byte, common.PageSize)
	binary.BigEndian.PutUint32(data[4:8], pageNo)
	binary.BigEndian.PutUint16(data[24:26], uint16(typ))
	return &genericPage{pageNo: pageNo, pageType: typ, data: data, state: common.PageStateInit}
}

// parsePage reconstructs a genericPage from a raw page buffer read off
// disk, reading its type/LSN/page-number back out of the file header.
func parsePage(content []byte) (*genericPage, error) {
	if len(content) < common.PageSize {
		return nil, ErrInvalidPageData
	}
	data := make([]byte, common.PageSize)
	copy(data, content)

	pageNo := binary.BigEndian.Uint32(data[4:8])
	lsn := binary.BigEndian.Uint64(data[16:24])
	typ := common.PageType(binary.BigEndian.Uint16(data[24:26]))

	return &genericPage{pageNo: pageNo, pageType: typ, lsn: lsn, data: data, state: common.PageStateLoaded}, nil
}

func (p *genericPage) Init() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = common.PageStateInit
	return nil
}

func (p *genericPage) GetID() uint32      { return p.pageNo }
func (p *genericPage) GetSpaceID() uint32 { return p.spaceID }
func (p *genericPage) GetPageNo() uint32  { return p.pageNo }

// SetSpaceID stamps the tablespace this page belongs to. newPage/parsePage
// don't know it at construction time — the page manager assigns it once
// it knows which tablespace the containing buffer block came from.
func (p *genericPage) SetSpaceID(spaceID uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.spaceID = spaceID
}

func (p *genericPage) GetPageType() common.PageType {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pageType
}

func (p *genericPage) GetLSN() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lsn
}

func (p *genericPage) SetLSN(lsn uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lsn = lsn
	binary.BigEndian.PutUint64(p.data[16:24], lsn)
}

func (p *genericPage) IsDirty() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.dirty
}

func (p *genericPage) MarkDirty() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dirty = true
	p.state = common.PageStateDirty
}

func (p *genericPage) ClearDirty() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dirty = false
	p.state = common.PageStateClean
}

func (p *genericPage) GetState() common.PageState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

func (p *genericPage) SetState(s common.PageState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = s
}

func (p *genericPage) Pin() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pinCount++
	p.state = common.PageStatePinned
}

func (p *genericPage) Unpin() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pinCount > 0 {
		p.pinCount--
	}
}

func (p *genericPage) Read() error  { return nil }
func (p *genericPage) Write() error { return nil }

func (p *genericPage) IsLeafPage() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pageType == common.FIL_PAGE_INDEX
}

func (p *genericPage) GetData() []byte {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.data
}

// bodyBounds returns the slice range between the file header and trailer —
// the part of the page a structured page type (index node, undo record,
// INODE entry...) actually owns.
func bodyBounds() (int, int) {
	return common.FileHeaderSize, common.PageSize - common.FileTrailerSize
}

// GetBody returns the page's body region, excluding the file header/trailer.
func (p *genericPage) GetBody() []byte {
	p.mu.RLock()
	defer p.mu.RUnlock()
	start, end := bodyBounds()
	return p.data[start:end]
}

// SetBody overwrites the page's body region with content, zero-padding
// anything shorter than the body's fixed capacity. Callers still need to
// MarkDirty() — SetBody only touches the in-memory buffer.
func (p *genericPage) SetBody(content []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	start, end := bodyBounds()
	n := copy(p.data[start:end], content)
	for i := start + n; i < end; i++ {
		p.data[i] = 0
	}
}
