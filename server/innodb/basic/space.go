package basic

// Space is a single tablespace's page-level read/write surface, as seen by
// the buffer pool. It is satisfied by the page manager's per-tablespace
// handle (backed by storage/store/pagefile.PageFile).
type Space interface {
	FlushToDisk(pageNo uint32, content []byte) error
	LoadPageByPageNumber(pageNo uint32) ([]byte, error)
}

// SpaceManager resolves a tablespace ID to its Space, letting the buffer
// pool evict and fault in pages without depending on the page manager
// directly (spec.md §4.2 buffer pool <-> page manager boundary).
type SpaceManager interface {
	GetSpace(spaceID uint32) (Space, error)
}

// StorageProvider is the buffer pool's direct write path used by
// checkpoint/flush code that already has a raw page buffer in hand and
// doesn't need the Space lookup indirection.
type StorageProvider interface {
	WritePage(spaceID, pageNo uint32, data []byte) error
}
