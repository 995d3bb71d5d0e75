package manager

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeRowApplier is an in-memory RowApplier stand-in so Rollback can be
// tested without a real tablespace-backed B+tree.
type fakeRowApplier struct {
	rows map[string][]byte
}

func newFakeRowApplier() *fakeRowApplier {
	return &fakeRowApplier{rows: make(map[string][]byte)}
}

func (f *fakeRowApplier) Insert(_ context.Context, _ uint32, rec IndexRecord) error {
	f.rows[string(rec.Key)] = rec.Value
	return nil
}

func (f *fakeRowApplier) Delete(_ context.Context, _ uint32, key []byte) error {
	if _, ok := f.rows[string(key)]; !ok {
		return ErrKeyNotFound
	}
	delete(f.rows, string(key))
	return nil
}

func TestUndoLogManagerRollbackUndoesInReverseOrder(t *testing.T) {
	undo, err := NewUndoLogManager(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { undo.Close() })

	applier := newFakeRowApplier()

	// Simulate a transaction that inserts "a", then updates it to "a2".
	require.NoError(t, applier.Insert(context.Background(), 1, IndexRecord{Key: []byte("a"), Value: []byte("a1")}))
	_, err = undo.Append(&UndoLogEntry{TrxID: 9, Type: LOG_TYPE_INSERT, RootPage: 1, Key: []byte("a")})
	require.NoError(t, err)

	applier.rows["a"] = []byte("a2")
	_, err = undo.Append(&UndoLogEntry{TrxID: 9, Type: LOG_TYPE_UPDATE, RootPage: 1, Key: []byte("a"), Data: []byte("a1")})
	require.NoError(t, err)

	require.NoError(t, undo.Rollback(context.Background(), 9, applier))

	_, stillThere := applier.rows["a"]
	require.False(t, stillThere, "rolling back the insert that created the row must remove it")

	_, exists := undo.logs[9]
	require.False(t, exists, "Rollback must clean up the transaction's undo entries")
}

func TestUndoLogManagerRollbackIdempotentOnReapply(t *testing.T) {
	undo, err := NewUndoLogManager(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { undo.Close() })

	applier := newFakeRowApplier()
	_, err = undo.Append(&UndoLogEntry{TrxID: 3, Type: LOG_TYPE_INSERT, RootPage: 1, Key: []byte("b")})
	require.NoError(t, err)

	// The row was never actually materialized (crash before the insert's
	// buffer-pool write made it to disk) — rollback must not fail just
	// because there's nothing to delete.
	require.NoError(t, undo.Rollback(context.Background(), 3, applier))
}

func TestUndoLogManagerAppendAssignsRollPtrAndIndexesIt(t *testing.T) {
	undo, err := NewUndoLogManager(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { undo.Close() })

	lsn, err := undo.Append(&UndoLogEntry{TrxID: 1, Type: LOG_TYPE_INSERT, Key: []byte("k")})
	require.NoError(t, err)
	require.NotZero(t, lsn)

	entry, ok := undo.GetByRollPtr(lsn)
	require.True(t, ok)
	require.Equal(t, int64(1), entry.TrxID)
}
