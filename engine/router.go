package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/zhukovaskychina/txstorage/server/innodb/manager"
)

// secondaryIndex is one table's secondary index: Columns names which
// columns the index key is built from, in order, Tree/RootPage are what
// locates it (manager/bplus_tree_manager.go binds one DefaultBPlusTreeManager
// to exactly one segment — "typically one segment per clustered index,
// another per secondary index, matching InnoDB's one-segment-per-index
// convention", per its own doc comment — so every index, not just every
// table, gets its own manager.BPlusTreeManager instance).
type secondaryIndex struct {
	Name     string
	Tree     manager.BPlusTreeManager
	RootPage uint32
	Kind     manager.IndexKind
	Columns  []string
	Unique   bool
}

// tableEntry is the router's catalog row for one table: its schema, its
// clustered index, and every secondary index built over it.
type tableEntry struct {
	schema        TableSchema
	clusteredTree manager.BPlusTreeManager
	clusteredRoot uint32
	secondary     []*secondaryIndex
}

// indexRouter is the catalog the rest of the engine package shares. Since
// every index (clustered or secondary, for every table) owns its own
// manager.BPlusTreeManager bound to its own segment, the undo log and
// recovery's redo/analyze phases — which address a mutation only by
// root page (manager.UndoLogEntry/RedoLogEntry carry RootPage/PageID, not a
// table name) — need a single place to resolve "which tree owns this root
// page" across the whole engine. indexRouter is that place: it also
// implements manager.RowApplier (the transaction manager's rollback
// target and recovery's redo target) and manager.FKManager's
// CascadeApplier (the foreign-key manager's cascade executor), both by
// looking up the right tree instead of assuming there is only one.
type indexRouter struct {
	mu      sync.RWMutex
	byRoot  map[uint32]manager.BPlusTreeManager
	tables  map[string]*tableEntry
}

func newIndexRouter() *indexRouter {
	return &indexRouter{
		byRoot: make(map[uint32]manager.BPlusTreeManager),
		tables: make(map[string]*tableEntry),
	}
}

func (r *indexRouter) registerTable(schema TableSchema, tree manager.BPlusTreeManager, clusteredRoot uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tables[schema.Name] = &tableEntry{schema: schema, clusteredTree: tree, clusteredRoot: clusteredRoot}
	r.byRoot[clusteredRoot] = tree
}

func (r *indexRouter) unregisterTable(table string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tables[table]
	if !ok {
		return
	}
	delete(r.byRoot, t.clusteredRoot)
	for _, idx := range t.secondary {
		delete(r.byRoot, idx.RootPage)
	}
	delete(r.tables, table)
}

func (r *indexRouter) registerIndex(table string, idx *secondaryIndex) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tables[table]
	if !ok {
		return fmt.Errorf("engine: unknown table %q", table)
	}
	t.secondary = append(t.secondary, idx)
	r.byRoot[idx.RootPage] = idx.Tree
	return nil
}

func (r *indexRouter) unregisterIndex(table, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tables[table]
	if !ok {
		return
	}
	kept := t.secondary[:0]
	for _, idx := range t.secondary {
		if idx.Name == name {
			delete(r.byRoot, idx.RootPage)
			continue
		}
		kept = append(kept, idx)
	}
	t.secondary = kept
}

func (r *indexRouter) table(name string) (*tableEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tables[name]
	return t, ok
}

func (r *indexRouter) secondaryIndexes(table string) []*secondaryIndex {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tables[table]
	if !ok {
		return nil
	}
	out := make([]*secondaryIndex, len(t.secondary))
	copy(out, t.secondary)
	return out
}

func (r *indexRouter) treeForRoot(rootPage uint32) (manager.BPlusTreeManager, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byRoot[rootPage]
	return t, ok
}

// aggregateStats sums every registered tree's own operation counters
// (manager.BPlusTreeManager.GetStats), since Engine.Stats reports one set of
// totals across every table and index rather than per-index breakdowns.
func (r *indexRouter) aggregateStats() manager.BPlusTreeStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var total manager.BPlusTreeStats
	for _, tree := range r.byRoot {
		s := tree.GetStats()
		total.Searches += s.Searches
		total.Inserts += s.Inserts
		total.Deletes += s.Deletes
		total.Splits += s.Splits
		total.RangeScans += s.RangeScans
	}
	return total
}

// Insert and Delete satisfy manager.RowApplier: the undo log and recovery
// address a mutation only by root page, so look up the owning tree first.
func (r *indexRouter) Insert(ctx context.Context, rootPage uint32, rec manager.IndexRecord) error {
	tree, ok := r.treeForRoot(rootPage)
	if !ok {
		return fmt.Errorf("engine: no index owns root page %d", rootPage)
	}
	return tree.Insert(ctx, rootPage, rec)
}

func (r *indexRouter) Delete(ctx context.Context, rootPage uint32, key []byte) error {
	tree, ok := r.treeForRoot(rootPage)
	if !ok {
		return fmt.Errorf("engine: no index owns root page %d", rootPage)
	}
	return tree.Delete(ctx, rootPage, key)
}

// DeleteRow satisfies manager.CascadeApplier: remove a row and every
// secondary-index entry it produced. The clustered record is read first so
// the secondary keys it produced can be reconstructed from its column
// values — a cascade only carries the primary key, not the row.
func (r *indexRouter) DeleteRow(ctx context.Context, table string, primaryKey []byte) error {
	t, ok := r.table(table)
	if !ok {
		return fmt.Errorf("engine: unknown table %q", table)
	}
	rec, found, err := t.clusteredTree.Search(ctx, t.clusteredRoot, primaryKey)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	row, err := DecodeRow(table, primaryKey, rec.Value)
	if err != nil {
		return err
	}
	for _, idx := range t.secondary {
		skey := secondaryKey(row, idx.Columns)
		if skey == nil {
			continue
		}
		if err := idx.Tree.Delete(ctx, idx.RootPage, skey); err != nil && err != manager.ErrKeyNotFound {
			return err
		}
	}
	return t.clusteredTree.Delete(ctx, t.clusteredRoot, primaryKey)
}

// NullifyFK satisfies manager.CascadeApplier: set the referencing row's
// foreign-key column to NULL in place, per an ON DELETE/ON UPDATE SET NULL
// action, without touching any other column.
func (r *indexRouter) NullifyFK(ctx context.Context, table string, primaryKey []byte, fk *manager.ForeignKey) error {
	t, ok := r.table(table)
	if !ok {
		return fmt.Errorf("engine: unknown table %q", table)
	}
	rec, found, err := t.clusteredTree.Search(ctx, t.clusteredRoot, primaryKey)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	row, err := DecodeRow(table, primaryKey, rec.Value)
	if err != nil {
		return err
	}
	// fk's own name doubles as the single-column FK's column name — the
	// engine package only builds single-column foreign keys (see
	// Engine.AddForeignKey in engine.go).
	delete(row.Values, fk.Name)
	return t.clusteredTree.Insert(ctx, t.clusteredRoot, manager.IndexRecord{Key: primaryKey, Value: row.ToByte()})
}

var _ manager.RowApplier = (*indexRouter)(nil)
var _ manager.CascadeApplier = (*indexRouter)(nil)
