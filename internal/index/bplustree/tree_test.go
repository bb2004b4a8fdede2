package bplustree_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jyafoo/godb/internal/dm"
	"github.com/jyafoo/godb/internal/index/bplustree"
	"github.com/jyafoo/godb/internal/pcache"
	"github.com/jyafoo/godb/internal/wal"
)

func newTestDM(t *testing.T) *dm.DM {
	t.Helper()
	dir := t.TempDir()

	pc, err := pcache.Open(filepath.Join(dir, "db.data"), 200, nil)
	require.NoError(t, err)
	require.NoError(t, dm.InitFirstPages(pc))

	lg, err := wal.Create(filepath.Join(dir, "db.log"), nil)
	require.NoError(t, err)

	dmgr, err := dm.New(pc, lg, nil)
	require.NoError(t, err)
	return dmgr
}

func TestCreateAndSearchSingleKey(t *testing.T) {
	dmgr := newTestDM(t)

	boot, err := bplustree.Create(dmgr)
	require.NoError(t, err)

	tree, err := bplustree.Load(boot, dmgr)
	require.NoError(t, err)
	defer tree.Close()

	require.NoError(t, tree.Insert(42, 4242))

	uids, err := tree.Search(42)
	require.NoError(t, err)
	require.Equal(t, []uint64{4242}, uids)

	uids, err = tree.Search(7)
	require.NoError(t, err)
	require.Empty(t, uids)
}

func TestSearchRangeAcrossMultipleKeys(t *testing.T) {
	dmgr := newTestDM(t)

	boot, err := bplustree.Create(dmgr)
	require.NoError(t, err)
	tree, err := bplustree.Load(boot, dmgr)
	require.NoError(t, err)
	defer tree.Close()

	for i := int64(0); i < 50; i++ {
		require.NoError(t, tree.Insert(i, uint64(i+1000)))
	}

	uids, err := tree.SearchRange(10, 19)
	require.NoError(t, err)
	require.Len(t, uids, 10)
	for i, uid := range uids {
		require.Equal(t, uint64(1010+i), uid)
	}
}

// TestInsertForcesSplitsAndKeepsOrdering inserts enough keys to force
// repeated node splits (BALANCE=32, so >64 keys) and verifies every
// key is still individually searchable afterward, in order, across
// what is now a multi-level tree.
func TestInsertForcesSplitsAndKeepsOrdering(t *testing.T) {
	dmgr := newTestDM(t)

	boot, err := bplustree.Create(dmgr)
	require.NoError(t, err)
	tree, err := bplustree.Load(boot, dmgr)
	require.NoError(t, err)
	defer tree.Close()

	const lim = 1000
	for i := lim - 1; i >= 0; i-- {
		require.NoError(t, tree.Insert(int64(i), uint64(i)))
	}

	for i := 0; i < lim; i++ {
		uids, err := tree.Search(int64(i))
		require.NoError(t, err)
		require.Equal(t, []uint64{uint64(i)}, uids, "key %d", i)
	}

	all, err := tree.SearchRange(0, lim-1)
	require.NoError(t, err)
	require.Len(t, all, lim)
	for i, uid := range all {
		require.Equal(t, uint64(i), uid)
	}
}

func TestLoadReopensExistingTree(t *testing.T) {
	dmgr := newTestDM(t)

	boot, err := bplustree.Create(dmgr)
	require.NoError(t, err)

	tree, err := bplustree.Load(boot, dmgr)
	require.NoError(t, err)
	require.NoError(t, tree.Insert(1, 100))
	require.NoError(t, tree.Insert(2, 200))
	tree.Close()

	reopened, err := bplustree.Load(boot, dmgr)
	require.NoError(t, err)
	defer reopened.Close()

	uids, err := reopened.Search(2)
	require.NoError(t, err)
	require.Equal(t, []uint64{200}, uids)
}
