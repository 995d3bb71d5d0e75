package manager

import "context"

// IndexKind tags what an index's leaf pages actually hold, so the manager
// can dispatch once per call instead of paying per-record virtual dispatch
// through a Record interface.
type IndexKind uint8

const (
	// IndexKindClustered stores the full row in the leaf, keyed by primary key.
	IndexKindClustered IndexKind = iota
	// IndexKindSecondaryBTree stores secondary_key -> primary_key in the leaf,
	// ordered, supporting range scans.
	IndexKindSecondaryBTree
	// IndexKindHash stores secondary_key -> primary_key in a hash bucket
	// chain, trading range-scan support for O(1) equality lookup.
	IndexKindHash
)

func (k IndexKind) String() string {
	switch k {
	case IndexKindClustered:
		return "clustered"
	case IndexKindSecondaryBTree:
		return "secondary_btree"
	case IndexKindHash:
		return "hash"
	default:
		return "unknown"
	}
}

// IndexRecord is a raw key/value pair as stored in a leaf: Value is the full
// row body for a clustered index, or the primary key bytes for a secondary
// index (hash or btree).
type IndexRecord struct {
	Key   []byte
	Value []byte
}

// BPlusTreeManager is the index-structure seam a mini-transaction (mtr.go)
// and the transaction coordinator drive for both clustered and secondary
// indexes (spec.md §4.6).
type BPlusTreeManager interface {
	// CreateIndex allocates a fresh root page for a new index and returns
	// its page number.
	CreateIndex(ctx context.Context, spaceID uint32, kind IndexKind) (uint32, error)

	Search(ctx context.Context, rootPage uint32, key []byte) (*IndexRecord, bool, error)
	Insert(ctx context.Context, rootPage uint32, rec IndexRecord) error
	Delete(ctx context.Context, rootPage uint32, key []byte) error

	// RangeSearch walks leaves from low to high (inclusive); unsupported
	// for IndexKindHash.
	RangeSearch(ctx context.Context, rootPage uint32, low, high []byte) ([]IndexRecord, error)

	GetFirstLeafPage(ctx context.Context, rootPage uint32) (uint32, error)
	GetAllLeafPages(ctx context.Context, rootPage uint32) ([]uint32, error)

	GetStats() *BPlusTreeStats
	Close() error
}
