package manager

import (
	"context"
	"fmt"
	"sync"
)

// FKAction is one of spec.md §4.8's referential actions, taken when a
// referenced row is deleted or its referenced columns are updated.
type FKAction uint8

const (
	FKActionRestrict FKAction = iota
	FKActionNoAction
	FKActionCascade
	FKActionSetNull
	FKActionSetDefault
)

func (a FKAction) String() string {
	switch a {
	case FKActionRestrict:
		return "RESTRICT"
	case FKActionNoAction:
		return "NO ACTION"
	case FKActionCascade:
		return "CASCADE"
	case FKActionSetNull:
		return "SET NULL"
	case FKActionSetDefault:
		return "SET DEFAULT"
	default:
		return "UNKNOWN"
	}
}

// KeyExtractor projects a foreign-key column's value out of a row's
// clustered-index record. A caller-supplied function, rather than a typed
// column reference, keeps ForeignKey as column-type-agnostic as IndexRecord
// itself (btree_interface.go's keys are opaque bytes throughout).
type KeyExtractor func(row IndexRecord) (key []byte, isNull bool)

// TableHandle is the lookup surface the FK manager needs for one index:
// which tree to search or range-scan, and its root page.
type TableHandle struct {
	RootPage uint32
	Tree     BPlusTreeManager
}

// ForeignKey is one constraint (spec.md §57's Foreign-Key Descriptor):
// ExtractKey(row) must exist as a key in RefTable's unique index. FKIndex is
// the referencing table's own secondary index on that column (fk value ->
// referencing primary key); CheckDelete uses it to find what must cascade
// when a row in RefTable is deleted or updated.
type ForeignKey struct {
	Name       string
	Table      string // the referencing table
	RefTable   string // the referenced table
	OnDelete   FKAction
	OnUpdate   FKAction
	ExtractKey KeyExtractor
	FKIndex    *TableHandle
}

// CascadeApplier is the mutation surface CASCADE/SET NULL actions drive
// against the referencing table. The engine package's table wrappers
// (clustered-index-backed) satisfy this.
type CascadeApplier interface {
	DeleteRow(ctx context.Context, table string, primaryKey []byte) error
	NullifyFK(ctx context.Context, table string, primaryKey []byte, fk *ForeignKey) error
}

// FKManager is the constraint catalog of spec.md §4.8: registered tables'
// clustered indexes plus declared foreign keys, indexed both by referencing
// table (for insert/update checks) and by referenced table (for delete/
// update cascades) — the same resource-keyed-map-plus-mutex shape as
// lock_manager.go's lock table.
type FKManager struct {
	mu                sync.RWMutex
	tables            map[string]*TableHandle
	byTable           map[string][]*ForeignKey
	byRefTable        map[string][]*ForeignKey
	cascadeDepthLimit int
}

// NewFKManager creates a constraint catalog. cascadeDepthLimit bounds
// recursive CASCADE chains (spec.md §4.8: "cycles are broken by a depth
// limit; exceeding it is a constraint error").
func NewFKManager(cascadeDepthLimit int) *FKManager {
	return &FKManager{
		tables:            make(map[string]*TableHandle),
		byTable:           make(map[string][]*ForeignKey),
		byRefTable:        make(map[string][]*ForeignKey),
		cascadeDepthLimit: cascadeDepthLimit,
	}
}

// RegisterTable wires table's clustered index so insert-time existence
// checks and delete-time cascades can reach it. Call before adding any
// foreign key that names this table as either side.
func (f *FKManager) RegisterTable(table string, handle *TableHandle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tables[table] = handle
}

// AddForeignKey declares fk after confirming its referenced table is
// already registered. (Confirming the referenced columns actually form a
// unique key, per §57's invariant, is the schema layer's job above this
// one — FKManager only needs somewhere to look the key up.)
func (f *FKManager) AddForeignKey(fk *ForeignKey) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tables[fk.RefTable]; !ok {
		return ErrRefTableNotFound
	}
	f.byTable[fk.Table] = append(f.byTable[fk.Table], fk)
	f.byRefTable[fk.RefTable] = append(f.byRefTable[fk.RefTable], fk)
	return nil
}

// ForeignKeys returns the foreign keys table declares as the referencing
// side.
func (f *FKManager) ForeignKeys(table string) []*ForeignKey {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]*ForeignKey{}, f.byTable[table]...)
}

// CheckInsert validates every foreign key row's table declares (spec.md
// §4.8: "INSERT/UPDATE on referencing row: the referenced tuple must exist;
// looked up via the referenced table's unique index").
func (f *FKManager) CheckInsert(ctx context.Context, table string, row IndexRecord) error {
	f.mu.RLock()
	fks := append([]*ForeignKey{}, f.byTable[table]...)
	tables := f.tables
	f.mu.RUnlock()

	for _, fk := range fks {
		key, isNull := fk.ExtractKey(row)
		if isNull {
			continue // a NULL foreign-key column is always valid, standard SQL semantics
		}
		refHandle, ok := tables[fk.RefTable]
		if !ok {
			return fmt.Errorf("%w: %s", ErrRefTableNotFound, fk.RefTable)
		}
		_, found, err := refHandle.Tree.Search(ctx, refHandle.RootPage, key)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%w: %s.%s references missing %s row", ErrFKViolation, table, fk.Name, fk.RefTable)
		}
	}
	return nil
}

// CheckDelete runs every foreign key that references table's configured
// action, for a row being deleted with primary key rowKey (spec.md §4.8's
// DELETE/UPDATE-on-referenced-row rules). applier performs the referencing
// table's own delete/update for CASCADE and SET NULL; RESTRICT/NO ACTION
// never call it and just reject the delete if any referencing row exists.
func (f *FKManager) CheckDelete(ctx context.Context, table string, rowKey []byte, applier CascadeApplier) error {
	return f.cascadeDelete(ctx, table, rowKey, applier, 0)
}

func (f *FKManager) cascadeDelete(ctx context.Context, table string, rowKey []byte, applier CascadeApplier, depth int) error {
	if depth > f.cascadeDepthLimit {
		return ErrFKCascadeTooDeep
	}

	f.mu.RLock()
	fks := append([]*ForeignKey{}, f.byRefTable[table]...)
	f.mu.RUnlock()

	for _, fk := range fks {
		if fk.FKIndex == nil {
			continue
		}
		referencing, err := fk.FKIndex.Tree.RangeSearch(ctx, fk.FKIndex.RootPage, rowKey, rowKey)
		if err != nil {
			return err
		}

		for _, rec := range referencing {
			primaryKey := rec.Value // the FK index stores fk-value -> referencing primary key

			switch fk.OnDelete {
			case FKActionRestrict, FKActionNoAction:
				return fmt.Errorf("%w: %s row referenced by %s.%s", ErrFKViolation, table, fk.Table, fk.Name)
			case FKActionCascade:
				if err := applier.DeleteRow(ctx, fk.Table, primaryKey); err != nil {
					return err
				}
				// the deleted referencing row may itself be referenced elsewhere
				if err := f.cascadeDelete(ctx, fk.Table, primaryKey, applier, depth+1); err != nil {
					return err
				}
			case FKActionSetNull, FKActionSetDefault:
				if err := applier.NullifyFK(ctx, fk.Table, primaryKey, fk); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
