package manager

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/zhukovaskychina/txstorage/server/innodb/storage/store/mvcc"
)

// LockMode is the requested grant strength. Table-kind resources use the
// full IS/IX/S/SIX/X set; record/gap/next-key resources only ever use
// LOCK_S/LOCK_X (spec.md §4.7).
type LockMode int

const (
	LOCK_S   LockMode = iota // 共享锁
	LOCK_X                   // 排他锁
	LOCK_IS                  // 表意向共享锁
	LOCK_IX                  // 表意向排他锁
	LOCK_SIX                 // 表意向排他锁 + 共享锁
)

func (m LockMode) String() string {
	switch m {
	case LOCK_S:
		return "S"
	case LOCK_X:
		return "X"
	case LOCK_IS:
		return "IS"
	case LOCK_IX:
		return "IX"
	case LOCK_SIX:
		return "SIX"
	default:
		return "?"
	}
}

// LockKind is the resource kind a lock request names (spec.md §4.7's four
// resource kinds).
type LockKind int

const (
	LockKindTable   LockKind = iota // table intention lock (IS/IX/S/SIX/X)
	LockKindRecord                  // exactly one index entry
	LockKindGap                     // the open interval before a record
	LockKindNextKey                 // record lock + the gap before it
)

func (k LockKind) String() string {
	switch k {
	case LockKindTable:
		return "table"
	case LockKindRecord:
		return "record"
	case LockKindGap:
		return "gap"
	case LockKindNextKey:
		return "next-key"
	default:
		return "?"
	}
}

// LockPolicy selects what happens when a request conflicts with an existing
// grant (spec.md §4.7's three acquisition policies).
type LockPolicy int

const (
	// AcquireWait blocks up to the configured/requested timeout, then fails
	// with ErrLockTimeout (spec.md §4.7's default policy).
	AcquireWait LockPolicy = iota
	// AcquireNoWait fails immediately with ErrLockWouldBlock on conflict.
	AcquireNoWait
	// AcquireSkipLocked returns ErrLockSkipped on conflict: no wait, and the
	// caller (a scan) is expected to treat this as "skip this row", not an
	// error condition.
	AcquireSkipLocked
)

// LockRequest 锁请求
type LockRequest struct {
	TxID     uint64        // 事务ID
	Kind     LockKind      // 资源种类
	Mode     LockMode      // 锁模式
	Granted  bool          // 是否已授予
	WaitChan chan error    // woken with nil on grant, an error on timeout/deadlock
	Created  time.Time     // 创建时间
}

// LockInfo 锁信息
type LockInfo struct {
	ResourceID string         // 资源ID(表ID_页ID_行ID，或 table_表ID)
	Requests   []*LockRequest // 锁请求队列
}

// LockManager 锁管理器
//
// The wait-for graph is the teacher's storage/store/mvcc.DeadlockDetector,
// unchanged in shape; this manager only feeds it AddWaitFor/RemoveWaitFor
// calls and asks it for the current deadlocked set.
type LockManager struct {
	mu        sync.Mutex
	lockTable map[string]*LockInfo // 锁表
	txnLocks  map[uint64][]string  // 事务持有的锁（resourceID 列表）
	dd        *mvcc.DeadlockDetector
	stopChan  chan struct{}
	config    LockConfig

	stats LockStats
}

// NewLockManager 创建锁管理器
func NewLockManager(config *LockConfig) *LockManager {
	cfg := DefaultLockConfig
	if config != nil {
		cfg = *config
	}
	lm := &LockManager{
		lockTable: make(map[string]*LockInfo),
		txnLocks:  make(map[uint64][]string),
		dd:        mvcc.NewDeadlockDetector(),
		stopChan:  make(chan struct{}),
		config:    cfg,
	}
	go lm.deadlockDetection()
	return lm
}

// Close 关闭锁管理器
func (lm *LockManager) Close() {
	close(lm.stopChan)
}

func (lm *LockManager) GetStats() LockStats {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return lm.stats
}

// makeResourceID 生成资源ID
func makeResourceID(tableID, pageID uint32, rowID uint64) string {
	return fmt.Sprintf("%d_%d_%d", tableID, pageID, rowID)
}

// makeTableResourceID names the table-level intention-lock resource, kept in
// a namespace ("table_...") distinct from any row's makeResourceID so a
// table id can never collide with a page/row id.
func makeTableResourceID(tableID uint32) string {
	return fmt.Sprintf("table_%d", tableID)
}

// intentionCompatible is the standard IS/IX/S/SIX/X compatibility matrix
// (spec.md §4.7).
func intentionCompatible(held, requested LockMode) bool {
	compat := map[LockMode]map[LockMode]bool{
		LOCK_IS:  {LOCK_IS: true, LOCK_IX: true, LOCK_S: true, LOCK_SIX: true, LOCK_X: false},
		LOCK_IX:  {LOCK_IS: true, LOCK_IX: true, LOCK_S: false, LOCK_SIX: false, LOCK_X: false},
		LOCK_S:   {LOCK_IS: true, LOCK_IX: false, LOCK_S: true, LOCK_SIX: false, LOCK_X: false},
		LOCK_SIX: {LOCK_IS: true, LOCK_IX: false, LOCK_S: false, LOCK_SIX: false, LOCK_X: false},
		LOCK_X:   {LOCK_IS: false, LOCK_IX: false, LOCK_S: false, LOCK_SIX: false, LOCK_X: false},
	}
	row, ok := compat[held]
	if !ok {
		return false
	}
	return row[requested]
}

// rowLevelConflict decides whether two record/gap/next-key requests on the
// same resource conflict. Pure gap-vs-gap requests are always compatible
// regardless of S/X mode — they only block inserts into the interval, never
// each other (spec.md §4.7); every other pairing falls back to the plain
// S/X rule (S tolerates S, X tolerates nothing).
func rowLevelConflict(held, requested *LockRequest) bool {
	if held.Kind == LockKindGap && requested.Kind == LockKindGap {
		return false
	}
	if held.Mode == LOCK_S && requested.Mode == LOCK_S {
		return false
	}
	return true
}

func locksConflict(held, requested *LockRequest) bool {
	if held.Kind == LockKindTable || requested.Kind == LockKindTable {
		return !intentionCompatible(held.Mode, requested.Mode)
	}
	return rowLevelConflict(held, requested)
}

// deadlockDetection 死锁检测循环：周期性地向 teacher 的 wait-for 图询问当前
// 死锁环，并选择其中 txn id 最年轻的事务作为牺牲者（spec.md §4.7/§8 P9）。
func (lm *LockManager) deadlockDetection() {
	ticker := time.NewTicker(lm.config.DeadlockInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cycle := lm.dd.GetDeadlockedTransactions()
			if len(cycle) == 0 {
				continue
			}
			victim := youngest(cycle)
			lm.mu.Lock()
			lm.stats.Deadlocks++
			lm.mu.Unlock()
			lm.abortTransaction(victim)
		case <-lm.stopChan:
			return
		}
	}
}

// youngest returns the largest id among a cycle's members: txn ids are
// assigned from a strictly increasing counter (transaction_manager.go's
// nextTrxID), so the largest id is the most recently started transaction.
func youngest(ids []uint64) uint64 {
	var max uint64
	for i, id := range ids {
		if i == 0 || id > max {
			max = id
		}
	}
	return max
}

// abortTransaction wakes every pending wait belonging to txID with a
// deadlock error, then releases anything it already holds. The transaction
// coordinator is responsible for noticing the error on its next lock call
// and rolling back — this manager has no reference back to
// TransactionManager, consistent with the rest of this package's layering.
func (lm *LockManager) abortTransaction(txID uint64) {
	lm.mu.Lock()
	for _, info := range lm.lockTable {
		for _, req := range info.Requests {
			if req.TxID == txID && !req.Granted {
				select {
				case req.WaitChan <- ErrDeadlockDetected:
				default:
				}
			}
		}
	}
	lm.mu.Unlock()

	lm.ReleaseLocks(txID)
	lm.dd.RemoveTransaction(txID)
}

// acquire is the shared body behind AcquireTableIntention/AcquireRecordLock/
// AcquireGapLock/AcquireNextKeyLock: find-or-create the resource's queue,
// check for an already-held compatible/upgradeable grant, else conflict-test
// against every granted request and either grant immediately or wait per
// policy (spec.md §4.7).
func (lm *LockManager) acquire(ctx context.Context, txID uint64, resourceID string, kind LockKind, mode LockMode, policy LockPolicy, timeout time.Duration) error {
	lm.mu.Lock()

	info, exists := lm.lockTable[resourceID]
	if !exists {
		info = &LockInfo{ResourceID: resourceID, Requests: make([]*LockRequest, 0)}
		lm.lockTable[resourceID] = info
	}

	// Already holding a grant on this exact resource: same-or-stronger mode
	// is a no-op; S->X is a lock upgrade, permitted only if no other
	// transaction also holds a grant here.
	for _, req := range info.Requests {
		if req.TxID == txID && req.Granted && req.Kind == kind {
			if req.Mode == mode || (mode == LOCK_S && req.Mode == LOCK_X) {
				lm.mu.Unlock()
				return nil
			}
			if req.Mode == LOCK_S && mode == LOCK_X {
				for _, other := range info.Requests {
					if other.TxID != txID && other.Granted {
						lm.mu.Unlock()
						return fmt.Errorf("cannot upgrade lock: other transactions hold a grant on %s", resourceID)
					}
				}
				req.Mode = LOCK_X
				lm.mu.Unlock()
				return nil
			}
		}
	}

	newReq := &LockRequest{
		TxID:     txID,
		Kind:     kind,
		Mode:     mode,
		WaitChan: make(chan error, 1),
		Created:  time.Now(),
	}

	var blockers []uint64
	for _, req := range info.Requests {
		if req.Granted && req.TxID != txID && locksConflict(req, newReq) {
			blockers = append(blockers, req.TxID)
		}
	}

	newReq.Granted = len(blockers) == 0
	info.Requests = append(info.Requests, newReq)
	lm.stats.TotalLocks++
	if newReq.Granted {
		lm.stats.GrantedLocks++
		lm.txnLocks[txID] = append(lm.txnLocks[txID], resourceID)
		lm.mu.Unlock()
		return nil
	}
	lm.stats.LockConflicts++
	lm.mu.Unlock()

	switch policy {
	case AcquireNoWait:
		lm.removeRequest(resourceID, newReq)
		return ErrLockWouldBlock
	case AcquireSkipLocked:
		lm.removeRequest(resourceID, newReq)
		return ErrLockSkipped
	}

	for _, holder := range blockers {
		lm.dd.AddWaitFor(txID, holder)
	}
	defer lm.dd.RemoveTransaction(txID)

	wait := timeout
	if wait <= 0 {
		wait = lm.config.LockTimeout
	}
	var timer *time.Timer
	var timerC <-chan time.Time
	if wait > 0 {
		timer = time.NewTimer(wait)
		defer timer.Stop()
		timerC = timer.C
	}

	lm.mu.Lock()
	lm.stats.WaitingLocks++
	lm.mu.Unlock()

	select {
	case err := <-newReq.WaitChan:
		lm.mu.Lock()
		lm.stats.WaitingLocks--
		lm.mu.Unlock()
		if err != nil {
			lm.removeRequest(resourceID, newReq)
			return err
		}
		lm.mu.Lock()
		lm.txnLocks[txID] = append(lm.txnLocks[txID], resourceID)
		lm.mu.Unlock()
		return nil
	case <-timerC:
		lm.mu.Lock()
		lm.stats.WaitingLocks--
		lm.stats.LockTimeouts++
		lm.mu.Unlock()
		lm.removeRequest(resourceID, newReq)
		return ErrLockTimeout
	case <-ctx.Done():
		lm.mu.Lock()
		lm.stats.WaitingLocks--
		lm.mu.Unlock()
		lm.removeRequest(resourceID, newReq)
		return ctx.Err()
	}
}

func (lm *LockManager) removeRequest(resourceID string, target *LockRequest) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	info, ok := lm.lockTable[resourceID]
	if !ok {
		return
	}
	var kept []*LockRequest
	for _, req := range info.Requests {
		if req != target {
			kept = append(kept, req)
		}
	}
	if len(kept) == 0 {
		delete(lm.lockTable, resourceID)
	} else {
		info.Requests = kept
	}
}

// AcquireTableIntention takes the implicit intention lock that must precede
// any record-level lock on a table (spec.md §4.7).
func (lm *LockManager) AcquireTableIntention(ctx context.Context, txID uint64, tableID uint32, mode LockMode) error {
	return lm.acquire(ctx, txID, makeTableResourceID(tableID), LockKindTable, mode, AcquireWait, 0)
}

// AcquireRecordLock locks exactly one index entry: S blocks writers, X
// blocks everyone.
func (lm *LockManager) AcquireRecordLock(ctx context.Context, txID uint64, tableID, pageID uint32, rowID uint64, mode LockMode, policy LockPolicy) error {
	return lm.acquire(ctx, txID, makeResourceID(tableID, pageID, rowID), LockKindRecord, mode, policy, lm.config.LockTimeout)
}

// AcquireGapLock locks the open interval immediately before a record,
// preventing inserts into it.
func (lm *LockManager) AcquireGapLock(ctx context.Context, txID uint64, tableID, pageID uint32, rowID uint64, mode LockMode, policy LockPolicy) error {
	return lm.acquire(ctx, txID, makeResourceID(tableID, pageID, rowID), LockKindGap, mode, policy, lm.config.LockTimeout)
}

// AcquireNextKeyLock locks a record plus the gap before it: the default
// mode for range predicates under SERIALIZABLE and for secondary-index
// unique checks under any level.
func (lm *LockManager) AcquireNextKeyLock(ctx context.Context, txID uint64, tableID, pageID uint32, rowID uint64, mode LockMode, policy LockPolicy) error {
	return lm.acquire(ctx, txID, makeResourceID(tableID, pageID, rowID), LockKindNextKey, mode, policy, lm.config.LockTimeout)
}

// ReleaseLocks 释放事务持有的所有锁 (transaction end, strict 2PL).
func (lm *LockManager) ReleaseLocks(txID uint64) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	lm.releaseLocked(txID, nil)
}

// ReleaseGapLocks releases only this transaction's pure gap locks
// (LockKindGap), leaving its record and next-key locks intact — the READ COMMITTED exception in
// spec.md §4.7 ("gap locks are released at statement end").
func (lm *LockManager) ReleaseGapLocks(txID uint64) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	lm.releaseLocked(txID, func(k LockKind) bool { return k == LockKindGap })
}

// releaseLocked removes every request belonging to txID whose Kind matches
// filter (or every request, if filter is nil), then tries to wake whatever
// is left waiting on each affected resource.
func (lm *LockManager) releaseLocked(txID uint64, filter func(LockKind) bool) {
	resourceIDs := lm.txnLocks[txID]
	var stillHeld []string

	for _, resourceID := range resourceIDs {
		info := lm.lockTable[resourceID]
		if info == nil {
			continue
		}

		var kept []*LockRequest
		released := false
		for _, req := range info.Requests {
			if req.TxID == txID && (filter == nil || filter(req.Kind)) {
				released = true
				continue
			}
			kept = append(kept, req)
		}
		if !released {
			stillHeld = append(stillHeld, resourceID)
			continue
		}

		if len(kept) == 0 {
			delete(lm.lockTable, resourceID)
		} else {
			info.Requests = kept
			lm.grantWaitingLocks(info)
		}
	}

	if filter == nil {
		delete(lm.txnLocks, txID)
	} else {
		lm.txnLocks[txID] = stillHeld
	}
}

// grantWaitingLocks 尝试授予等待的锁
func (lm *LockManager) grantWaitingLocks(info *LockInfo) {
	var granted []*LockRequest
	var waiting []*LockRequest

	for _, req := range info.Requests {
		if req.Granted {
			granted = append(granted, req)
		} else {
			waiting = append(waiting, req)
		}
	}

	for _, wreq := range waiting {
		blocked := false
		for _, greq := range granted {
			if locksConflict(greq, wreq) {
				blocked = true
				break
			}
		}
		if !blocked {
			wreq.Granted = true
			granted = append(granted, wreq)
			select {
			case wreq.WaitChan <- nil:
			default:
			}
		}
	}
}
