package manager

import "time"

// UndoLogEntry is one undo record: enough to reconstruct the prior version
// of a row during rollback or an old-version read (spec.md §4.4). Its LSN
// also serves as the row's roll_ptr — the address a current record's hidden
// roll pointer names to reach this entry.
type UndoLogEntry struct {
	LSN       uint64
	TrxID     int64
	TableID   uint64
	Type      uint8
	Data      []byte
	Timestamp time.Time

	// RootPage/Key identify the row this entry belongs to, so a version
	// chain walk can be resumed independent of which transaction wrote it.
	RootPage uint32
	Key      []byte

	// PrevRollPtr/PrevTrxID chain to the row's previous version: 0/0 means
	// this entry's INSERT created the row, so the chain ends here.
	PrevRollPtr uint64
	PrevTrxID   int64
}

// RedoLogEntry is one WAL record: a physical change to a page, replayed
// during crash recovery (spec.md §4.3/§6's `(lsn, mtr_id, page_id, type,
// payload, crc)` layout; the crc is computed at write time rather than
// stored as a struct field — see redo_log_manager.go's flushBuffer).
type RedoLogEntry struct {
	LSN       uint64
	MtrID     uint64 // the mini-transaction (manager.MTR) that produced this record
	TrxID     int64
	PageID    uint64
	Type      uint8
	Data      []byte
	Timestamp time.Time
}

// Log record operation types, shared by the redo and undo logs.
const (
	LOG_TYPE_INSERT uint8 = iota + 1
	LOG_TYPE_UPDATE
	LOG_TYPE_DELETE
	LOG_TYPE_COMPENSATE // compensation log record, written during rollback
	LOG_TYPE_COMMIT      // marks a transaction's commit point in the redo log (spec.md §4.9 step 2)
	LOG_TYPE_ABORT       // marks a transaction's rollback point in the redo log (spec.md §4.9 step 2)
)

// LogStats tracks write-path throughput/latency for either log.
type LogStats struct {
	TotalLogs     uint64
	TotalSize     uint64
	AvgLogSize    uint64
	WriteLatency  time.Duration
	FlushLatency  time.Duration
	LogsPerSecond float64
}

// LogConfig configures either log's file rotation and flush behavior.
type LogConfig struct {
	LogDir          string
	MaxFileSize     uint64
	FlushInterval   time.Duration
	RetentionPeriod time.Duration
	SyncMode        string
	Compression     bool
	BufferSize      uint32
}
