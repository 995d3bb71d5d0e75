package engine

import (
	"github.com/zhukovaskychina/txstorage/server/innodb/basic"
	"github.com/zhukovaskychina/txstorage/server/innodb/manager"
)

// Cursor walks the records a Txn.Scan call found, in key order. A scan
// through a secondary index holds only (index-key -> primary-key) entries,
// so Next does the bookmark lookup back into the clustered index on the
// caller's behalf — the classic secondary-index indirection spec.md §6's
// AccessPath comment describes.
type Cursor struct {
	table       string
	recs        []manager.IndexRecord
	pos         int
	isSecondary bool
	te          *tableEntry
	t           *Txn
}

func newCursor(table string, recs []manager.IndexRecord, isSecondary bool, te *tableEntry, t *Txn) *Cursor {
	return &Cursor{table: table, recs: recs, isSecondary: isSecondary, te: te, t: t}
}

// Next returns the cursor's next row, or ok=false once exhausted.
func (c *Cursor) Next() (basic.Row, bool, error) {
	if c.pos >= len(c.recs) {
		return nil, false, nil
	}
	rec := c.recs[c.pos]
	c.pos++

	if !c.isSecondary {
		row, err := DecodeRow(c.table, rec.Key, rec.Value)
		if err != nil {
			return nil, false, err
		}
		return row, true, nil
	}

	primaryKey := rec.Value
	clusteredRec, found, err := c.te.clusteredTree.Search(c.t.ctx, c.te.clusteredRoot, primaryKey)
	if err != nil {
		return nil, false, err
	}
	if !found {
		// the referencing clustered row was deleted after this secondary
		// entry was read but before the cursor reached it; skip it rather
		// than surface a torn read.
		return c.Next()
	}
	row, err := DecodeRow(c.table, primaryKey, clusteredRec.Value)
	if err != nil {
		return nil, false, err
	}
	return row, true, nil
}
