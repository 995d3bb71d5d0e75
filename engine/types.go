// Package engine is the embedded API spec.md §6 describes: the thin
// composition root wiring Page Manager -> Buffer Pool -> WAL -> Undo Log ->
// Lock Manager -> Transaction Coordinator -> indexes into the
// begin/insert/scan/commit surface the SQL layer above drives.
package engine

import (
	"github.com/zhukovaskychina/txstorage/server/innodb/basic"
	"github.com/zhukovaskychina/txstorage/server/innodb/manager"
)

// AccessPath selects how Txn.Scan locates rows: directly through a table's
// clustered index, or through one of its secondary indexes (which only
// carry primary keys in their leaves, requiring a second clustered lookup
// per row — the classic secondary-index "bookmark lookup").
type AccessPath struct {
	IndexName string // empty selects the table's clustered index
}

// KeyRange bounds a scan; either end left nil means unbounded in that
// direction (spec.md §6's predicate_range).
type KeyRange struct {
	Low  []byte
	High []byte
}

// ColumnDef describes one column of a table, enough to project and
// validate values — full SQL typing (precision, collation, defaults beyond
// a static one) is the schema-catalog layer's job above this one.
type ColumnDef struct {
	Name     string
	Type     basic.ValueType
	Nullable bool
}

// TableSchema is what Engine.CreateTable needs: a name, its columns, and
// which column(s) form the primary key.
type TableSchema struct {
	Name       string
	Columns    []ColumnDef
	PrimaryKey []string
}

// IndexSpec describes a secondary index to build over an existing table.
type IndexSpec struct {
	Table   string
	Name    string
	Columns []string
	Kind    manager.IndexKind
	Unique  bool
}

// Metrics is Engine.Stats()'s return value: the counters and ratios spec.md
// §6 asks for ("counters, histograms, buffer-pool hit ratio, …"). It is
// easyjson-generatable (see metrics_easyjson.go) so the SQL layer's
// information_schema surface can serialize it without reflection.
type Metrics struct {
	BufferPoolHitRatio float64 `json:"buffer_pool_hit_ratio"`
	BufferPoolDirtyPct float64 `json:"buffer_pool_dirty_pct"`

	ActiveTransactions int `json:"active_transactions"`

	LockWaits     uint64 `json:"lock_waits"`
	LockTimeouts  uint64 `json:"lock_timeouts"`
	Deadlocks     uint64 `json:"deadlocks"`

	IndexSearches uint64 `json:"index_searches"`
	IndexInserts  uint64 `json:"index_inserts"`
	IndexDeletes  uint64 `json:"index_deletes"`
	IndexSplits   uint64 `json:"index_splits"`
}
