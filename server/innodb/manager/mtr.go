package manager

import (
	"context"
	"sync/atomic"
)

// mtrIDCounter hands out process-unique mini-transaction ids, independent of
// transaction ids (a transaction drives many mini-transactions over its
// lifetime: one per page-structure-modifying operation).
var mtrIDCounter uint64

// MTR (mini-transaction) is the atomic unit spec.md's GLOSSARY describes as
// "a short-lived group of page latches plus the redo records describing
// their changes, made durable or discarded as a whole." Every page mutation
// bplus_tree_manager.go performs opens one, writes its redo record(s)
// through it, and commits it before the physical page write is considered
// done — grounded on the latch/mutate/emit-redo/commit-as-one-unit pattern
// already visible across that file's btreeInsert/btreeDelete/splitLeaf call
// chains.
//
// There is no true physical undo for a partially-applied page split in this
// codebase (promoteNewRoot's multi-page writes aren't reversible once any
// one of them has landed), so Abort is best-effort: it stops the MTR from
// being committed again and is primarily a diagnostic marker, not a
// guarantee that its pages revert. Logical correctness after a failed
// mutation still depends on the transaction-level undo log, not on MTR
// abort.
type MTR struct {
	id    uint64
	trxID int64
	redo  *RedoLogManager
	done  bool
}

// NewMTR starts a mini-transaction belonging to trxID (0 if the caller has
// no transaction context, e.g. background maintenance work).
func NewMTR(redo *RedoLogManager, trxID int64) *MTR {
	return &MTR{
		id:    atomic.AddUint64(&mtrIDCounter, 1),
		trxID: trxID,
		redo:  redo,
	}
}

// ID returns this mini-transaction's id, stamped onto every redo record it
// writes (RedoLogEntry.MtrID).
func (m *MTR) ID() uint64 { return m.id }

// WriteRedo appends one physical redo record for a page mutation this MTR is
// performing. Call this BEFORE the corresponding physical page write
// (pm.FlushPage et al.) so the write-ahead invariant holds: the redo record
// describing a change reaches the log buffer before the change itself is
// allowed to be considered done.
func (m *MTR) WriteRedo(pageID uint64, logType uint8, data []byte) (uint64, error) {
	if m.redo == nil {
		return 0, nil
	}
	entry := &RedoLogEntry{
		MtrID:  m.id,
		TrxID:  m.trxID,
		PageID: pageID,
		Type:   logType,
		Data:   data,
	}
	lsn, err := m.redo.Append(entry)
	return uint64(lsn), err
}

// Commit forces this MTR's redo records durable. Per the immediate-append
// design, WriteRedo has already buffered (and possibly flushed) every
// record by the time Commit runs; Commit's job is to force a flush so the
// caller's mutation is durable before it reports success, matching spec.md
// §4.3's "redo is flushed before the mutating call returns" requirement.
func (m *MTR) Commit() error {
	if m.done {
		return nil
	}
	m.done = true
	if m.redo == nil {
		return nil
	}
	return m.redo.Flush(0)
}

// Abort marks this MTR as not to be committed. See the type doc: this does
// not physically undo any page write already issued through WriteRedo's
// companion FlushPage calls. Callers that need real rollback rely on the
// transaction's undo log, not MTR.Abort.
func (m *MTR) Abort() {
	m.done = true
}

// trxIDContextKey is unexported so only this package's helpers can set or
// read it on a context.Context.
type trxIDContextKey struct{}

// WithTrxID attaches a transaction id to ctx, so code several calls deep
// (bplus_tree_manager.go's mutation paths) can learn which transaction a
// page mutation belongs to without BPlusTreeManager's interface methods
// taking an explicit parameter for it.
func WithTrxID(ctx context.Context, trxID int64) context.Context {
	return context.WithValue(ctx, trxIDContextKey{}, trxID)
}

// TrxIDFromContext returns the transaction id WithTrxID attached to ctx, or
// (0, false) if none was set (background/maintenance callers).
func TrxIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(trxIDContextKey{}).(int64)
	return id, ok
}
