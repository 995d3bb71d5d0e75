package manager

import (
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"
)

// RowApplier is the compensating-action surface Rollback drives: given an
// undo entry, put the row back the way it was before the logged change.
// manager.BPlusTreeManager satisfies this directly.
type RowApplier interface {
	Insert(ctx context.Context, rootPage uint32, rec IndexRecord) error
	Delete(ctx context.Context, rootPage uint32, key []byte) error
}

// UndoLogManager 撤销日志管理器
type UndoLogManager struct {
	mu         sync.RWMutex
	logs       map[int64][]*UndoLogEntry // 事务ID -> Undo日志列表，按写入顺序
	byRollPtr  map[uint64]*UndoLogEntry  // roll_ptr(=LSN) -> 日志条目，用于版本链跨事务回溯
	undoDir    string                    // Undo日志目录
	undoFile   *os.File                  // Undo日志文件
	nextRollPtr uint64

	// 事务状态跟踪
	activeTxns    map[int64]bool // 活跃事务集合
	oldestTxnTime time.Time      // 最老事务开始时间
}

// NewUndoLogManager 创建新的撤销日志管理器
func NewUndoLogManager(undoDir string) (*UndoLogManager, error) {
	if err := os.MkdirAll(undoDir, 0755); err != nil {
		return nil, err
	}

	undoFile, err := os.OpenFile(
		filepath.Join(undoDir, "undo.log"),
		os.O_CREATE|os.O_RDWR|os.O_APPEND,
		0644,
	)
	if err != nil {
		return nil, err
	}

	return &UndoLogManager{
		logs:       make(map[int64][]*UndoLogEntry),
		byRollPtr:  make(map[uint64]*UndoLogEntry),
		activeTxns: make(map[int64]bool),
		undoDir:    undoDir,
		undoFile:   undoFile,
	}, nil
}

// Append 追加一条撤销日志，分配其roll_ptr(LSN)并返回，供调用方写入行的隐藏
// roll_ptr 列。
func (u *UndoLogManager) Append(entry *UndoLogEntry) (uint64, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	entry.LSN = atomic.AddUint64(&u.nextRollPtr, 1)
	entry.Timestamp = time.Now()

	if !u.activeTxns[entry.TrxID] {
		u.activeTxns[entry.TrxID] = true
		if u.oldestTxnTime.IsZero() || entry.Timestamp.Before(u.oldestTxnTime) {
			u.oldestTxnTime = entry.Timestamp
		}
	}

	u.logs[entry.TrxID] = append(u.logs[entry.TrxID], entry)
	u.byRollPtr[entry.LSN] = entry

	if err := u.writeEntryToFile(entry); err != nil {
		return entry.LSN, err
	}
	return entry.LSN, nil
}

// GetByRollPtr looks up the undo entry a roll pointer names, for version
// chain walks that cross transaction boundaries (manager/version_chain.go).
func (u *UndoLogManager) GetByRollPtr(rollPtr uint64) (*UndoLogEntry, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	entry, ok := u.byRollPtr[rollPtr]
	return entry, ok
}

// writeEntryToFile 将Undo日志写入文件
func (u *UndoLogManager) writeEntryToFile(entry *UndoLogEntry) error {
	if err := binary.Write(u.undoFile, binary.BigEndian, entry.LSN); err != nil {
		return err
	}
	if err := binary.Write(u.undoFile, binary.BigEndian, entry.TrxID); err != nil {
		return err
	}
	if err := binary.Write(u.undoFile, binary.BigEndian, entry.TableID); err != nil {
		return err
	}
	if err := binary.Write(u.undoFile, binary.BigEndian, entry.Type); err != nil {
		return err
	}
	if err := binary.Write(u.undoFile, binary.BigEndian, entry.RootPage); err != nil {
		return err
	}
	if err := binary.Write(u.undoFile, binary.BigEndian, entry.PrevRollPtr); err != nil {
		return err
	}
	if err := binary.Write(u.undoFile, binary.BigEndian, entry.PrevTrxID); err != nil {
		return err
	}

	keyLen := uint16(len(entry.Key))
	if err := binary.Write(u.undoFile, binary.BigEndian, keyLen); err != nil {
		return err
	}
	if _, err := u.undoFile.Write(entry.Key); err != nil {
		return err
	}

	dataLen := uint32(len(entry.Data))
	if err := binary.Write(u.undoFile, binary.BigEndian, dataLen); err != nil {
		return err
	}
	if _, err := u.undoFile.Write(entry.Data); err != nil {
		return err
	}

	return u.undoFile.Sync()
}

// applyUndo runs one undo entry's compensating action. Applying the same
// entry twice is harmless: an INSERT-undo Delete on an already-deleted key
// returns ErrKeyNotFound, which both Rollback and RollbackTo treat as
// already-applied rather than a failure, making the walk idempotent and
// crash-safe.
func applyUndo(ctx context.Context, applier RowApplier, entry *UndoLogEntry) error {
	var err error
	switch entry.Type {
	case LOG_TYPE_INSERT:
		// undo an insert by deleting the row it created
		err = applier.Delete(ctx, entry.RootPage, entry.Key)
	case LOG_TYPE_UPDATE, LOG_TYPE_DELETE:
		// Data holds the row's pre-change bytes; put them back
		err = applier.Insert(ctx, entry.RootPage, IndexRecord{Key: entry.Key, Value: entry.Data})
	case LOG_TYPE_COMPENSATE:
		// a compensation record is never itself rolled back
	}
	if err != nil && errors.Is(err, ErrKeyNotFound) {
		return nil
	}
	return err
}

// Rollback undoes a transaction's writes in reverse insertion order, one
// undo record at a time, each as its own compensating index operation
// (spec.md §4.4: "Rollback walks the transaction's undo list in reverse
// insertion order and applies each record via its own MTR").
func (u *UndoLogManager) Rollback(ctx context.Context, txID int64, applier RowApplier) error {
	u.mu.Lock()
	entries, exists := u.logs[txID]
	u.mu.Unlock()

	if !exists {
		return ErrTxNotFound
	}

	for i := len(entries) - 1; i >= 0; i-- {
		if err := applyUndo(ctx, applier, entries[i]); err != nil {
			return err
		}
	}

	u.Cleanup(txID)
	return nil
}

// Mark returns a savepoint marker for txID: the number of undo entries the
// transaction has written so far. RollbackTo(marker) later undoes exactly
// the entries appended after this call (spec.md §4.9's
// set_savepoint/rollback_to).
func (u *UndoLogManager) Mark(txID int64) int {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return len(u.logs[txID])
}

// RollbackTo undoes a transaction's entries back to a prior Mark, in
// reverse order, then discards them — unlike Rollback, the transaction
// stays active and its earlier entries (and activeTxns bookkeeping) are
// untouched.
func (u *UndoLogManager) RollbackTo(ctx context.Context, txID int64, marker int, applier RowApplier) error {
	u.mu.Lock()
	entries, exists := u.logs[txID]
	u.mu.Unlock()

	if !exists {
		if marker == 0 {
			return nil
		}
		return ErrTxNotFound
	}
	if marker < 0 || marker > len(entries) {
		return ErrNoSuchSavepoint
	}

	for i := len(entries) - 1; i >= marker; i-- {
		if err := applyUndo(ctx, applier, entries[i]); err != nil {
			return err
		}
	}

	u.mu.Lock()
	for i := marker; i < len(entries); i++ {
		delete(u.byRollPtr, entries[i].LSN)
	}
	u.logs[txID] = entries[:marker]
	u.mu.Unlock()

	return nil
}

// Cleanup 清理事务的Undo日志
func (u *UndoLogManager) Cleanup(txID int64) {
	u.mu.Lock()
	defer u.mu.Unlock()

	for _, entry := range u.logs[txID] {
		delete(u.byRollPtr, entry.LSN)
	}
	delete(u.logs, txID)
	delete(u.activeTxns, txID)

	if len(u.activeTxns) == 0 {
		u.oldestTxnTime = time.Time{}
		return
	}

	oldestTime := time.Now()
	for otherTxID := range u.activeTxns {
		if entries := u.logs[otherTxID]; len(entries) > 0 {
			if entries[0].Timestamp.Before(oldestTime) {
				oldestTime = entries[0].Timestamp
			}
		}
	}
	u.oldestTxnTime = oldestTime
}

// GetActiveTxns 获取活跃事务列表
func (u *UndoLogManager) GetActiveTxns() []int64 {
	u.mu.RLock()
	defer u.mu.RUnlock()

	txns := make([]int64, 0, len(u.activeTxns))
	for txID := range u.activeTxns {
		txns = append(txns, txID)
	}
	return txns
}

// GetOldestTxnTime 获取最老事务的开始时间
func (u *UndoLogManager) GetOldestTxnTime() time.Time {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.oldestTxnTime
}

// Close 关闭Undo日志管理器
func (u *UndoLogManager) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	return u.undoFile.Close()
}
