package manager

import (
	"sync"

	"github.com/zhukovaskychina/txstorage/server/common"
	"github.com/zhukovaskychina/txstorage/server/innodb/basic"
)

// pageTx records page creations/deletes made against a DefaultPageManager so
// a caller (typically a mini-transaction, see manager/mtr.go) can either
// commit them through the normal page manager path or roll them back.
// CreatePage formats each page through the page manager at once, so its
// buffer-pool block already holds the new page before Commit; Rollback drops
// the created pages from the page manager's cache and does not revert those
// blocks.
type pageTx struct {
	mu sync.Mutex

	pm         *DefaultPageManager
	spaceID    uint32
	created    []basic.IPage
	deleted    []struct{ spaceID, pageNo uint32 }
	committed  bool
	rolledBack bool
}

// NewPageTx starts a page-level transaction against pm, scoped to one
// tablespace — mirroring how a mini-transaction (manager/mtr.go) latches
// and modifies pages of a single index/segment at a time.
func NewPageTx(pm *DefaultPageManager, spaceID uint32) basic.PageTx {
	return &pageTx{pm: pm, spaceID: spaceID}
}

func (tx *pageTx) GetPage(spaceID, pageNo uint32) (basic.IPage, error) {
	return tx.pm.GetPage(spaceID, pageNo)
}

func (tx *pageTx) CreatePage(pageNo uint32, typ basic.PageType) (basic.IPage, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	p, err := tx.pm.CreatePage(tx.spaceID, pageNo, common.PageType(typ))
	if err != nil {
		return nil, err
	}
	tx.created = append(tx.created, p)
	return p, nil
}

func (tx *pageTx) DeletePage(spaceID, pageNo uint32) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	tx.deleted = append(tx.deleted, struct{ spaceID, pageNo uint32 }{spaceID, pageNo})
	return nil
}

// Commit flushes every page created under this transaction to the buffer
// pool's dirty list. Deletions are expected to have already been applied
// by the segment/extent managers that own free-space bookkeeping — this
// only drops the page manager's cache entry for them.
func (tx *pageTx) Commit() error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.committed || tx.rolledBack {
		return ErrTxFinished
	}

	for _, p := range tx.created {
		if err := tx.pm.FlushPage(p.GetSpaceID(), p.GetPageNo()); err != nil {
			return err
		}
	}
	for _, d := range tx.deleted {
		tx.pm.cache.Remove(d.spaceID, d.pageNo)
	}

	tx.committed = true
	return nil
}

// Rollback drops every page created under this transaction from the page
// manager's cache without flushing it. The buffer-pool blocks CreatePage
// already wrote are left as they are.
func (tx *pageTx) Rollback() error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.committed || tx.rolledBack {
		return ErrTxFinished
	}

	for _, p := range tx.created {
		tx.pm.cache.Remove(p.GetSpaceID(), p.GetPageNo())
	}

	tx.rolledBack = true
	return nil
}
