package server

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jyafoo/godb/internal/catalog"
	"github.com/jyafoo/godb/internal/vm"
)

// TestOpenRecoversFromUncleanShutdown exercises spec.md §8 scenario 5
// end to end: a process dies mid-transaction without running Close, so
// page one's close marker is never stamped. The next Open must detect
// the mismatch via CheckPageOneValid and run recovery before handing
// the store back to a caller, redoing the committed table creation and
// undoing the still-active insert.
//
// This is a white-box test (package server, not server_test) because
// simulating a crash means releasing the directory lock without
// running the rest of Close's clean-shutdown sequence, which requires
// reaching Store.lock directly.
func TestOpenRecoversFromUncleanShutdown(t *testing.T) {
	dir := t.TempDir()

	store, err := Open(dir, 200, nil)
	require.NoError(t, err)

	xid1, err := store.VM.Begin(vm.IsolationReadCommitted)
	require.NoError(t, err)
	_, err = store.Catalog.CreateTable(xid1, "t", []catalog.FieldSpec{{Name: "id", Type: catalog.TypeInt64, Indexed: true}})
	require.NoError(t, err)
	require.NoError(t, store.VM.Commit(xid1))

	xid2, err := store.VM.Begin(vm.IsolationReadCommitted)
	require.NoError(t, err)
	require.NoError(t, store.Catalog.Insert(xid2, "t", []string{"1"}))
	// Neither commit nor abort xid2: it is still active when the
	// process "dies". Release the advisory lock the way the OS would
	// on process exit, but skip dmgr.Close so the close marker is
	// never stamped.
	require.NoError(t, store.lock.Unlock())

	reopened, err := Open(dir, 200, nil)
	require.NoError(t, err)
	defer reopened.Close()

	require.Contains(t, reopened.Catalog.Show(), "{t:")

	xid3, err := reopened.VM.Begin(vm.IsolationReadCommitted)
	require.NoError(t, err)
	out, err := reopened.Catalog.Select(xid3, "t", nil, nil)
	require.NoError(t, err)
	require.NotContains(t, out, "1", "insert from the never-committed transaction must be undone by recovery")
	require.NoError(t, reopened.VM.Commit(xid3))
}
