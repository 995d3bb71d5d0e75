package manager

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zhukovaskychina/txstorage/server/innodb/storage/store/mvcc"
)

// buildRowHistory writes the undo trail for a row that trx 1 inserts as
// "v1", trx 2 updates to "v2", and trx 3 deletes — the three undo record
// types version_chain.go's walk has to handle.
func buildRowHistory(t *testing.T, undo *UndoLogManager) RowHeader {
	t.Helper()

	insertLSN, err := undo.Append(&UndoLogEntry{
		TrxID: 1, Type: LOG_TYPE_INSERT, RootPage: 7, Key: []byte("k"),
	})
	require.NoError(t, err)

	updateLSN, err := undo.Append(&UndoLogEntry{
		TrxID: 2, Type: LOG_TYPE_UPDATE, RootPage: 7, Key: []byte("k"),
		Data: []byte("v1"), PrevTrxID: 1, PrevRollPtr: insertLSN,
	})
	require.NoError(t, err)

	deleteLSN, err := undo.Append(&UndoLogEntry{
		TrxID: 3, Type: LOG_TYPE_DELETE, RootPage: 7, Key: []byte("k"),
		Data: []byte("v2"), PrevTrxID: 2, PrevRollPtr: updateLSN,
	})
	require.NoError(t, err)

	return RowHeader{TrxID: 3, RollPtr: deleteLSN, Deleted: true}
}

func TestVersionChainResolveWalksBackToVisibleVersion(t *testing.T) {
	undo, err := NewUndoLogManager(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { undo.Close() })

	header := buildRowHistory(t, undo)
	vc := NewVersionChainManager(undo)

	// Snapshot taken before trx 2/3 ever started: trx 1 is the only
	// committed version this view can see.
	early := mvcc.NewReadView(nil, 2, 2, 100)

	version, found, err := vc.Resolve(early, header, nil)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, int64(1), version.TrxID)
	require.Equal(t, "v1", string(version.Value))
}

func TestVersionChainResolveSeesCurrentDeletedRowAsAbsent(t *testing.T) {
	undo, err := NewUndoLogManager(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { undo.Close() })

	header := buildRowHistory(t, undo)
	vc := NewVersionChainManager(undo)

	// Snapshot taken after every transaction committed: the delete is
	// visible, so the row is simply gone.
	latest := mvcc.NewReadView(nil, 4, 4, 200)

	_, found, err := vc.Resolve(latest, header, nil)
	require.NoError(t, err)
	require.False(t, found)
}

func TestVersionChainResolveBrokenChainReportsError(t *testing.T) {
	undo, err := NewUndoLogManager(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { undo.Close() })

	vc := NewVersionChainManager(undo)

	header := RowHeader{TrxID: 5, RollPtr: 999, Deleted: false}
	view := mvcc.NewReadView(nil, 1, 1, 100)

	_, _, err = vc.Resolve(view, header, []byte("x"))
	require.ErrorIs(t, err, ErrVersionChainBroken)
}
