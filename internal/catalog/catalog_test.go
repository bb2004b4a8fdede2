package catalog_test

import (
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jyafoo/godb/internal/catalog"
	"github.com/jyafoo/godb/internal/dberr"
	"github.com/jyafoo/godb/internal/dm"
	"github.com/jyafoo/godb/internal/pcache"
	"github.com/jyafoo/godb/internal/tm"
	"github.com/jyafoo/godb/internal/vm"
	"github.com/jyafoo/godb/internal/wal"
)

func newTestCatalog(t *testing.T) (*catalog.Catalog, *vm.VM) {
	t.Helper()
	dir := t.TempDir()

	pc, err := pcache.Open(filepath.Join(dir, "db.data"), 200, nil)
	require.NoError(t, err)
	require.NoError(t, dm.InitFirstPages(pc))

	lg, err := wal.Create(filepath.Join(dir, "db.log"), nil)
	require.NoError(t, err)

	tmgr, err := tm.Open(filepath.Join(dir, "db.xid"), nil)
	require.NoError(t, err)

	dmgr, err := dm.New(pc, lg, nil)
	require.NoError(t, err)

	vmgr := vm.New(tmgr, dmgr, nil)

	cat, err := catalog.Create(filepath.Join(dir, "db"), vmgr, dmgr, nil)
	require.NoError(t, err)

	return cat, vmgr
}

func usersSpec() []catalog.FieldSpec {
	return []catalog.FieldSpec{
		{Name: "id", Type: catalog.TypeInt64, Indexed: true},
		{Name: "name", Type: catalog.TypeString},
	}
}

func TestCreateTableRejectsDuplicateName(t *testing.T) {
	cat, vmgr := newTestCatalog(t)
	xid, err := vmgr.Begin(vm.IsolationReadCommitted)
	require.NoError(t, err)

	_, err = cat.CreateTable(xid, "users", usersSpec())
	require.NoError(t, err)

	_, err = cat.CreateTable(xid, "users", usersSpec())
	require.True(t, dberr.Is(err, dberr.KindDuplicatedTable))
}

func TestInsertSelectRoundTrip(t *testing.T) {
	cat, vmgr := newTestCatalog(t)
	xid, err := vmgr.Begin(vm.IsolationReadCommitted)
	require.NoError(t, err)

	_, err = cat.CreateTable(xid, "users", usersSpec())
	require.NoError(t, err)

	require.NoError(t, cat.Insert(xid, "users", []string{"1", "alice"}))
	require.NoError(t, cat.Insert(xid, "users", []string{"2", "bob"}))

	out, err := cat.Select(xid, "users", nil, &catalog.Where{Field1: "id", Op1: "=", Value1: "1"})
	require.NoError(t, err)
	require.Equal(t, "[1, alice]\n", out)

	out, err = cat.Select(xid, "users", nil, nil)
	require.NoError(t, err)
	require.Contains(t, out, "[1, alice]")
	require.Contains(t, out, "[2, bob]")
}

func TestSelectRangeAndAndOr(t *testing.T) {
	cat, vmgr := newTestCatalog(t)
	xid, err := vmgr.Begin(vm.IsolationReadCommitted)
	require.NoError(t, err)

	_, err = cat.CreateTable(xid, "users", usersSpec())
	require.NoError(t, err)

	for i := 1; i <= 5; i++ {
		require.NoError(t, cat.Insert(xid, "users", []string{strconv.Itoa(i), "u" + strconv.Itoa(i)}))
	}

	out, err := cat.Select(xid, "users", nil, &catalog.Where{
		Field1: "id", Op1: ">", Value1: "1",
		LogicOp: "and",
		Field2:  "id", Op2: "<", Value2: "5",
	})
	require.NoError(t, err)
	require.Contains(t, out, "[2, u2]")
	require.Contains(t, out, "[3, u3]")
	require.Contains(t, out, "[4, u4]")
	require.NotContains(t, out, "[1, u1]")
	require.NotContains(t, out, "[5, u5]")

	out, err = cat.Select(xid, "users", nil, &catalog.Where{
		Field1: "id", Op1: "=", Value1: "1",
		LogicOp: "or",
		Field2:  "id", Op2: "=", Value2: "5",
	})
	require.NoError(t, err)
	require.Contains(t, out, "[1, u1]")
	require.Contains(t, out, "[5, u5]")
	require.NotContains(t, out, "[3, u3]")
}

func TestUpdateRewritesRowAndIndex(t *testing.T) {
	cat, vmgr := newTestCatalog(t)
	xid, err := vmgr.Begin(vm.IsolationReadCommitted)
	require.NoError(t, err)

	_, err = cat.CreateTable(xid, "users", usersSpec())
	require.NoError(t, err)
	require.NoError(t, cat.Insert(xid, "users", []string{"1", "alice"}))

	count, err := cat.Update(xid, "users", "name", "alicia", &catalog.Where{Field1: "id", Op1: "=", Value1: "1"})
	require.NoError(t, err)
	require.Equal(t, 1, count)

	out, err := cat.Select(xid, "users", nil, &catalog.Where{Field1: "id", Op1: "=", Value1: "1"})
	require.NoError(t, err)
	require.Equal(t, "[1, alicia]\n", out)
}

func TestDeleteRemovesRow(t *testing.T) {
	cat, vmgr := newTestCatalog(t)
	xid, err := vmgr.Begin(vm.IsolationReadCommitted)
	require.NoError(t, err)

	_, err = cat.CreateTable(xid, "users", usersSpec())
	require.NoError(t, err)
	require.NoError(t, cat.Insert(xid, "users", []string{"1", "alice"}))

	count, err := cat.Delete(xid, "users", &catalog.Where{Field1: "id", Op1: "=", Value1: "1"})
	require.NoError(t, err)
	require.Equal(t, 1, count)

	out, err := cat.Select(xid, "users", nil, &catalog.Where{Field1: "id", Op1: "=", Value1: "1"})
	require.NoError(t, err)
	require.Equal(t, "", out)
}

func TestDropTableRemovesFromChainAndBoot(t *testing.T) {
	cat, vmgr := newTestCatalog(t)
	xid, err := vmgr.Begin(vm.IsolationReadCommitted)
	require.NoError(t, err)

	_, err = cat.CreateTable(xid, "a", usersSpec())
	require.NoError(t, err)
	_, err = cat.CreateTable(xid, "b", usersSpec())
	require.NoError(t, err)
	_, err = cat.CreateTable(xid, "c", usersSpec())
	require.NoError(t, err)

	_, err = cat.Drop("b")
	require.NoError(t, err)

	show := cat.Show()
	require.Contains(t, show, "{a:")
	require.NotContains(t, show, "{b:")
	require.Contains(t, show, "{c:")

	_, err = cat.Select(xid, "b", nil, nil)
	require.True(t, dberr.Is(err, dberr.KindTableNotFound))
}
