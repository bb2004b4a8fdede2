package tm

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestTM(t *testing.T) *TM {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.xid")
	tm, err := Open(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tm.Close() })
	return tm
}

func TestBeginAssignsIncreasingXIDs(t *testing.T) {
	tm := openTestTM(t)

	x1, err := tm.Begin()
	require.NoError(t, err)
	require.Equal(t, uint64(1), x1)
	require.True(t, tm.IsActive(x1))

	x2, err := tm.Begin()
	require.NoError(t, err)
	require.Equal(t, uint64(2), x2)
	require.True(t, tm.IsActive(x2))
}

func TestCommitAndAbortTransitions(t *testing.T) {
	tm := openTestTM(t)

	x1, _ := tm.Begin()
	require.NoError(t, tm.Commit(x1))
	require.True(t, tm.IsCommitted(x1))
	require.False(t, tm.IsActive(x1))
	require.False(t, tm.IsAborted(x1))

	x2, _ := tm.Begin()
	require.NoError(t, tm.Abort(x2))
	require.True(t, tm.IsAborted(x2))
	require.False(t, tm.IsActive(x2))
}

func TestSuperXIDAlwaysCommitted(t *testing.T) {
	tm := openTestTM(t)
	require.True(t, tm.IsCommitted(SuperXID))
	require.False(t, tm.IsActive(SuperXID))
	require.False(t, tm.IsAborted(SuperXID))
}

func TestReopenPreservesState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.xid")
	tm, err := Open(path, nil)
	require.NoError(t, err)

	x1, _ := tm.Begin()
	require.NoError(t, tm.Commit(x1))
	x2, _ := tm.Begin()
	require.NoError(t, tm.Close())

	tm2, err := Open(path, nil)
	require.NoError(t, err)
	defer tm2.Close()

	require.True(t, tm2.IsCommitted(x1))
	require.True(t, tm2.IsActive(x2))

	x3, err := tm2.Begin()
	require.NoError(t, err)
	require.Equal(t, uint64(3), x3)
}
