package manager

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTransactionManagerCommitClearsUndoLog(t *testing.T) {
	tm, err := NewTransactionManager(t.TempDir(), t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { tm.Close() })

	trx, err := tm.Begin(false, TRX_ISO_REPEATABLE_READ)
	require.NoError(t, err)
	_, err = tm.undoManager.Append(&UndoLogEntry{TrxID: trx.ID, Type: LOG_TYPE_INSERT, RootPage: 1, Key: []byte("k")})
	require.NoError(t, err)
	require.NoError(t, tm.Commit(trx))

	require.Nil(t, tm.GetTransaction(trx.ID))
	_, exists := tm.undoManager.logs[trx.ID]
	require.False(t, exists, "Commit must clear the transaction's undo entries")
}

func TestTransactionManagerRollbackAppliesCompensatingActions(t *testing.T) {
	tm, err := NewTransactionManager(t.TempDir(), t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { tm.Close() })

	applier := newFakeRowApplier()
	tm.SetIndexApplier(applier)

	trx, err := tm.Begin(false, TRX_ISO_REPEATABLE_READ)
	require.NoError(t, err)

	require.NoError(t, applier.Insert(context.Background(), 1, IndexRecord{Key: []byte("k"), Value: []byte("v")}))
	_, err = tm.undoManager.Append(&UndoLogEntry{TrxID: trx.ID, Type: LOG_TYPE_INSERT, RootPage: 1, Key: []byte("k")})
	require.NoError(t, err)

	require.NoError(t, tm.Rollback(trx))

	_, stillThere := applier.rows["k"]
	require.False(t, stillThere)
	require.Equal(t, TRX_STATE_ROLLED_BACK, trx.State)
}

// TestTransactionManagerCloseDoesNotDeadlock exercises the Close path
// against an active transaction — Close (like Cleanup) used to call Rollback
// (which re-locks tm.mu) while already holding tm.mu, hanging forever.
func TestTransactionManagerCloseDoesNotDeadlock(t *testing.T) {
	tm, err := NewTransactionManager(t.TempDir(), t.TempDir())
	require.NoError(t, err)

	_, err = tm.Begin(false, TRX_ISO_REPEATABLE_READ)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- tm.Close() }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("TransactionManager.Close deadlocked on an active transaction")
	}
}
