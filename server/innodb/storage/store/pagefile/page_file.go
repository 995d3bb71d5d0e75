/*
Package pagefile is the lowest storage layer: one physical file per
tablespace, holding fixed-size pages back to back.

File structure:
  .cdb file -> Segment(s) -> Extent(s, 1MB) -> Page(s, 16KB)

PageFile only knows about raw page I/O — it does not track which pages are
allocated (that's the extent/segment bookkeeping in the manager layer) and
it does not know page contents (that's the pages package). Its one piece of
domain knowledge is the checksum trailer: every write stamps an xxhash64
checksum over the page body, and every read verifies it (an all-zero page,
never written, is returned without the check), surfacing
corruption (spec.md §4.1, §7 CorruptionError) instead of returning a torn
or bit-rotted page to the caller.
*/
package pagefile

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/OneOfOne/xxhash"
)

const (
	PageSize = 16 * 1024

	HeaderSize    = 38
	TrailerSize   = 8
	ChecksumBytes = 8 // trailing xxhash64 of the page body, excluding the checksum field itself
)

// PageFile represents a physical tablespace file.
type PageFile struct {
	sync.RWMutex
	filePath string
	file     *os.File
	spaceID  uint32
	name     string
}

// NewPageFile builds a handle for a tablespace file; call Create or Open to
// get a live file descriptor.
func NewPageFile(dataDir string, name string, spaceID uint32) *PageFile {
	return &PageFile{
		filePath: filepath.Join(dataDir, name+".cdb"),
		spaceID:  spaceID,
		name:     name,
	}
}

// Open opens an existing tablespace file.
func (f *PageFile) Open() error {
	f.Lock()
	defer f.Unlock()

	if f.file != nil {
		return fmt.Errorf("file already open: %s", f.filePath)
	}

	file, err := os.OpenFile(f.filePath, os.O_RDWR, 0666)
	if err != nil {
		return fmt.Errorf("failed to open file: %v", err)
	}

	f.file = file
	return nil
}

// Create creates and initializes a new tablespace file, writing a
// zero-filled FSP header page (page 0).
func (f *PageFile) Create() error {
	f.Lock()
	defer f.Unlock()

	if f.file != nil {
		return fmt.Errorf("file already open: %s", f.filePath)
	}

	dir := filepath.Dir(f.filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %v", err)
	}

	file, err := os.OpenFile(f.filePath, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0666)
	if err != nil {
		return fmt.Errorf("failed to create file: %v", err)
	}
	f.file = file

	header := make([]byte, PageSize)
	if err := f.writePageUnsafe(0, header); err != nil {
		f.file.Close()
		f.file = nil
		return fmt.Errorf("failed to write FSP header: %v", err)
	}

	return nil
}

// checksum computes the xxhash64 of a page body (everything but the last
// ChecksumBytes, which store the checksum itself).
func checksum(page []byte) uint64 {
	return xxhash.Checksum64(page[:len(page)-ChecksumBytes])
}

// writePageUnsafe writes a page, stamping its trailing checksum, without
// acquiring locks (caller must already hold the write lock).
func (f *PageFile) writePageUnsafe(pageNo uint32, page []byte) error {
	if f.file == nil {
		return fmt.Errorf("file not open")
	}
	if len(page) != PageSize {
		return fmt.Errorf("invalid page size: %d", len(page))
	}

	binary.BigEndian.PutUint64(page[len(page)-ChecksumBytes:], checksum(page))

	offset := int64(pageNo) * int64(PageSize)
	n, err := f.file.WriteAt(page, offset)
	if err != nil {
		return fmt.Errorf("failed to write page: %v", err)
	}
	if n != PageSize {
		return fmt.Errorf("incomplete page write: %d bytes", n)
	}
	return nil
}

// ReadPage reads a page and verifies its checksum trailer; an all-zero page
// (never written) is returned without the check.
func (f *PageFile) ReadPage(pageNo uint32) ([]byte, error) {
	f.RLock()
	defer f.RUnlock()

	if f.file == nil {
		return nil, fmt.Errorf("file not open")
	}

	page := make([]byte, PageSize)
	offset := int64(pageNo) * int64(PageSize)

	n, err := f.file.ReadAt(page, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to read page: %v", err)
	}
	if n != PageSize {
		return nil, fmt.Errorf("incomplete page read: %d bytes", n)
	}

	want := binary.BigEndian.Uint64(page[len(page)-ChecksumBytes:])
	if got := checksum(page); got != want && !isZeroPage(page) {
		return nil, &ChecksumError{SpaceID: f.spaceID, PageNo: pageNo, Want: want, Got: got}
	}

	return page, nil
}

func isZeroPage(page []byte) bool {
	for _, b := range page {
		if b != 0 {
			return false
		}
	}
	return true
}

// ChecksumError signals a corrupted page read — a checksum mismatch
// between the stored trailer and the recomputed xxhash64 of the body.
type ChecksumError struct {
	SpaceID uint32
	PageNo  uint32
	Want    uint64
	Got     uint64
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("checksum mismatch space=%d page=%d want=%x got=%x", e.SpaceID, e.PageNo, e.Want, e.Got)
}

// WritePage writes a page to disk, stamping its checksum trailer.
func (f *PageFile) WritePage(pageNo uint32, page []byte) error {
	f.Lock()
	defer f.Unlock()
	return f.writePageUnsafe(pageNo, page)
}

// Sync flushes file buffers to disk.
func (f *PageFile) Sync() error {
	f.RLock()
	defer f.RUnlock()

	if f.file == nil {
		return fmt.Errorf("file not open")
	}
	return f.file.Sync()
}

func (f *PageFile) GetSpaceId() uint32   { return f.spaceID }
func (f *PageFile) GetTableName() string { return f.name }
func (f *PageFile) GetFilePath() string  { return f.filePath }

// Delete removes the tablespace file from disk.
func (f *PageFile) Delete() error {
	f.Lock()
	defer f.Unlock()

	if f.file != nil {
		if err := f.closeUnsafe(); err != nil {
			return fmt.Errorf("failed to close file: %v", err)
		}
	}

	if err := os.Remove(f.filePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %v", err)
	}
	return nil
}

// Close syncs and closes the tablespace file.
func (f *PageFile) Close() error {
	f.Lock()
	defer f.Unlock()
	return f.closeUnsafe()
}

func (f *PageFile) closeUnsafe() error {
	if f.file == nil {
		return nil
	}
	if err := f.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync file: %v", err)
	}
	if err := f.file.Close(); err != nil {
		return fmt.Errorf("failed to close file: %v", err)
	}
	f.file = nil
	return nil
}

// Exists reports whether the tablespace file exists on disk.
func (f *PageFile) Exists() bool {
	_, err := os.Stat(f.filePath)
	return err == nil
}

// Size returns the current file size in bytes.
func (f *PageFile) Size() (int64, error) {
	f.RLock()
	defer f.RUnlock()

	if f.file == nil {
		return 0, fmt.Errorf("file not open")
	}
	info, err := f.file.Stat()
	if err != nil {
		return 0, fmt.Errorf("failed to get file info: %v", err)
	}
	return info.Size(), nil
}

// LoadPageByPageNumber is an alias for ReadPage kept for call-site parity
// with the page manager's naming.
func (f *PageFile) LoadPageByPageNumber(no uint32) ([]byte, error) {
	return f.ReadPage(no)
}
