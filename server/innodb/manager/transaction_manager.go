package manager

import (
	"context"
	"errors"
	"github.com/zhukovaskychina/txstorage/server/innodb/storage/store/mvcc"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrInvalidTrxState = errors.New("invalid transaction state")
)

// 事务状态
const (
	TRX_STATE_NOT_STARTED uint8 = iota
	TRX_STATE_ACTIVE
	TRX_STATE_PREPARED
	TRX_STATE_COMMITTED
	TRX_STATE_ROLLED_BACK
)

// 事务隔离级别
const (
	TRX_ISO_READ_UNCOMMITTED uint8 = iota
	TRX_ISO_READ_COMMITTED
	TRX_ISO_REPEATABLE_READ
	TRX_ISO_SERIALIZABLE
)

// Transaction 表示一个事务
type Transaction struct {
	ID             int64          // 事务ID
	State          uint8          // 事务状态
	IsolationLevel uint8          // 隔离级别
	StartTime      time.Time      // 开始时间
	LastActiveTime time.Time      // 最后活跃时间
	ReadView       *mvcc.ReadView // MVCC读视图
	UndoLogs       []UndoLogEntry // Undo日志
	RedoLogs       []RedoLogEntry // Redo日志
	IsReadOnly     bool           // 是否只读事务

	// Savepoints maps a savepoint name to the undo-log marker captured at
	// Savepoint time (spec.md §4.9's set_savepoint/rollback_to).
	Savepoints map[string]int
}

// TransactionManager 事务管理器
type TransactionManager struct {
	mu                 sync.RWMutex
	nextTrxID          int64                  // 最近分配的事务ID（Begin先加一再使用）
	activeTransactions map[int64]*Transaction // 活跃事务

	// 日志管理器
	redoManager *RedoLogManager
	undoManager *UndoLogManager

	// index applies undo records during Rollback; one TransactionManager
	// serves one tablespace, so one applier is enough (see DESIGN.md).
	index RowApplier

	// locks releases a transaction's locks at commit/rollback (spec.md
	// §4.9's commit/rollback sequences, step "release locks").
	locks *LockManager

	// 默认配置
	defaultIsolationLevel uint8
	defaultTimeout        time.Duration
}

// SetIndexApplier wires the index manager Rollback uses to apply
// compensating actions. Must be called before any transaction using this
// manager rolls back.
func (tm *TransactionManager) SetIndexApplier(index RowApplier) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.index = index
}

// SetLockManager wires the lock manager released at commit/rollback.
func (tm *TransactionManager) SetLockManager(locks *LockManager) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.locks = locks
}

// RedoManager returns the WAL this transaction manager appends to, so a
// caller can wire its PageApplier and drive manager.Recover at startup.
func (tm *TransactionManager) RedoManager() *RedoLogManager { return tm.redoManager }

// UndoManager returns the undo log this transaction manager writes to, so
// a caller can drive manager.Recover's undo phase at startup.
func (tm *TransactionManager) UndoManager() *UndoLogManager { return tm.undoManager }

// NewTransactionManager 创建事务管理器
func NewTransactionManager(redoDir, undoDir string) (*TransactionManager, error) {
	redoManager, err := NewRedoLogManager(redoDir, 1000)
	if err != nil {
		return nil, err
	}

	undoManager, err := NewUndoLogManager(undoDir)
	if err != nil {
		return nil, err
	}

	return &TransactionManager{
		nextTrxID:             1,
		activeTransactions:    make(map[int64]*Transaction),
		redoManager:           redoManager,
		undoManager:           undoManager,
		defaultIsolationLevel: TRX_ISO_REPEATABLE_READ,
		defaultTimeout:        time.Hour,
	}, nil
}

// Begin 开始新事务
func (tm *TransactionManager) Begin(isReadOnly bool, isolationLevel uint8) (*Transaction, error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	// 分配事务ID
	trxID := atomic.AddInt64(&tm.nextTrxID, 1)

	// 创建事务对象
	trx := &Transaction{
		ID:             trxID,
		State:          TRX_STATE_ACTIVE,
		IsolationLevel: isolationLevel,
		StartTime:      time.Now(),
		LastActiveTime: time.Now(),
		IsReadOnly:     isReadOnly,
	}

	// ReadView creation timing depends on isolation level (spec.md §4.5):
	// READ UNCOMMITTED never gets one; READ COMMITTED gets a fresh one per
	// statement (NewStatement/EnsureReadView below); REPEATABLE READ and
	// SERIALIZABLE get one at the first read and reuse it for the
	// transaction's lifetime. None of that is "at Begin time", so Begin
	// itself never creates one — EnsureReadView does, lazily.

	// 记录活跃事务
	tm.activeTransactions[trxID] = trx

	return trx, nil
}

// EnsureReadView returns trx's current ReadView, creating one if this
// isolation level needs one and doesn't have one yet (spec.md §4.5's
// table). Call this immediately before any row-visibility check; for READ
// COMMITTED, pair it with a NewStatement call at the start of each
// statement so the view gets refreshed.
func (tm *TransactionManager) EnsureReadView(trx *Transaction) *mvcc.ReadView {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if trx.IsolationLevel == TRX_ISO_READ_UNCOMMITTED {
		return nil
	}
	if trx.ReadView == nil {
		trx.ReadView = tm.createReadView(trx.ID)
	}
	return trx.ReadView
}

// NewStatement marks the start of a new statement within trx. Under READ
// COMMITTED this drops the cached ReadView so the next EnsureReadView call
// snapshots active transactions afresh; every other isolation level reuses
// whatever ReadView it already has (or has none, for READ UNCOMMITTED).
func (tm *TransactionManager) NewStatement(trx *Transaction) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if trx.IsolationLevel == TRX_ISO_READ_COMMITTED {
		trx.ReadView = nil
	}
}

// Commit 提交事务
func (tm *TransactionManager) Commit(trx *Transaction) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	// 检查事务状态
	if trx.State != TRX_STATE_ACTIVE {
		return ErrInvalidTrxState
	}

	// 写入Redo日志
	for _, redoLog := range trx.RedoLogs {
		if _, err := tm.redoManager.Append(&redoLog); err != nil {
			return err
		}
	}

	// Emit the transaction's commit redo record (spec.md §4.9 step 2), so a
	// crash-restart analyze pass (manager/recovery.go) can tell this
	// transaction apart from one that was still active at crash time.
	if _, err := tm.redoManager.Append(&RedoLogEntry{TrxID: trx.ID, Type: LOG_TYPE_COMMIT}); err != nil {
		return err
	}

	// 确保Redo日志持久化 (await fsync / group commit, spec.md §4.9 step 3)
	if err := tm.redoManager.Flush(0); err != nil {
		return err
	}

	// 释放该事务持有的所有锁 (strict 2PL: held until transaction end)
	if tm.locks != nil {
		tm.locks.ReleaseLocks(uint64(trx.ID))
	}

	// 更新事务状态
	trx.State = TRX_STATE_COMMITTED
	trx.LastActiveTime = time.Now()

	// 清理Undo日志（等价于交给purge队列：没有更早的ReadView还需要这些版本）
	tm.undoManager.Cleanup(trx.ID)

	// 移除活跃事务记录
	delete(tm.activeTransactions, trx.ID)

	return nil
}

// Rollback 回滚事务
func (tm *TransactionManager) Rollback(trx *Transaction) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return tm.rollbackLocked(trx)
}

// rollbackLocked is Rollback's body, callable by other methods that already
// hold tm.mu (sync.RWMutex isn't reentrant, so Rollback itself can't be
// called while the lock is held).
func (tm *TransactionManager) rollbackLocked(trx *Transaction) error {
	if trx.State != TRX_STATE_ACTIVE {
		return ErrInvalidTrxState
	}

	if tm.index != nil {
		if err := tm.undoManager.Rollback(context.Background(), trx.ID, tm.index); err != nil {
			return err
		}
	}

	// Emit an abort redo record and fsync (spec.md §4.9's rollback sequence
	// steps 2-3), so recovery's analyze phase sees this transaction ended
	// without needing to re-derive it from the absence of a commit record.
	if _, err := tm.redoManager.Append(&RedoLogEntry{TrxID: trx.ID, Type: LOG_TYPE_ABORT}); err != nil {
		return err
	}
	if err := tm.redoManager.Flush(0); err != nil {
		return err
	}

	if tm.locks != nil {
		tm.locks.ReleaseLocks(uint64(trx.ID))
	}

	trx.State = TRX_STATE_ROLLED_BACK
	trx.LastActiveTime = time.Now()

	delete(tm.activeTransactions, trx.ID)

	return nil
}

// Savepoint records an undo-log marker under name, so a later RollbackTo
// can undo back to exactly this point without aborting the whole
// transaction (spec.md §4.9's set_savepoint).
func (tm *TransactionManager) Savepoint(trx *Transaction, name string) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if trx.State != TRX_STATE_ACTIVE {
		return ErrInvalidTrxState
	}

	if trx.Savepoints == nil {
		trx.Savepoints = make(map[string]int)
	}
	trx.Savepoints[name] = tm.undoManager.Mark(trx.ID)
	return nil
}

// RollbackTo undoes trx's writes back to a previously recorded savepoint,
// in reverse order, without ending the transaction (spec.md §4.9's
// rollback_to). Savepoints taken after name are invalidated, matching SQL's
// usual savepoint-stack semantics.
func (tm *TransactionManager) RollbackTo(trx *Transaction, name string) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if trx.State != TRX_STATE_ACTIVE {
		return ErrInvalidTrxState
	}

	marker, ok := trx.Savepoints[name]
	if !ok {
		return ErrNoSuchSavepoint
	}
	if tm.index != nil {
		if err := tm.undoManager.RollbackTo(context.Background(), trx.ID, marker, tm.index); err != nil {
			return err
		}
	}

	for n, m := range trx.Savepoints {
		if m > marker {
			delete(trx.Savepoints, n)
		}
	}
	trx.LastActiveTime = time.Now()
	return nil
}

// createReadView 创建MVCC读视图
func (tm *TransactionManager) createReadView(trxID int64) *mvcc.ReadView {
	// 获取当前活跃事务列表
	activeIDs := make([]int64, 0, len(tm.activeTransactions))
	minTrxID := int64(^uint64(0) >> 1)

	for id, trx := range tm.activeTransactions {
		if trx.State == TRX_STATE_ACTIVE && id != trxID {
			activeIDs = append(activeIDs, id)
			if id < minTrxID {
				minTrxID = id
			}
		}
	}

	// nextTrxID holds the most recently assigned id, so the next id to be
	// assigned (the view's exclusive upper bound) is one past it
	return mvcc.NewReadView(activeIDs, minTrxID, tm.nextTrxID+1, trxID)
}

// GetTransaction 获取事务对象
func (tm *TransactionManager) GetTransaction(trxID int64) *Transaction {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return tm.activeTransactions[trxID]
}

// IsVisible 判断数据版本是否对事务可见
func (tm *TransactionManager) IsVisible(trx *Transaction, version int64) bool {
	if trx.IsolationLevel == TRX_ISO_READ_UNCOMMITTED {
		return true
	}

	if trx.ReadView == nil {
		return true
	}

	return trx.ReadView.IsVisible(version)
}

// Cleanup 清理超时事务
func (tm *TransactionManager) Cleanup() {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	timeout := tm.defaultTimeout
	now := time.Now()

	for id, trx := range tm.activeTransactions {
		if now.Sub(trx.LastActiveTime) > timeout {
			// 回滚超时事务
			tm.rollbackLocked(trx)
			delete(tm.activeTransactions, id)
		}
	}
}

// Close 关闭事务管理器
func (tm *TransactionManager) Close() error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	// 回滚所有未完成事务
	for _, trx := range tm.activeTransactions {
		if trx.State == TRX_STATE_ACTIVE {
			tm.rollbackLocked(trx)
		}
	}

	// 关闭日志管理器
	if err := tm.redoManager.Close(); err != nil {
		return err
	}
	if err := tm.undoManager.Close(); err != nil {
		return err
	}

	return nil
}
