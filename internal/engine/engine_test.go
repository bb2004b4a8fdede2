package engine_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jyafoo/godb/internal/catalog"
	"github.com/jyafoo/godb/internal/dm"
	"github.com/jyafoo/godb/internal/engine"
	"github.com/jyafoo/godb/internal/pcache"
	"github.com/jyafoo/godb/internal/tm"
	"github.com/jyafoo/godb/internal/vm"
	"github.com/jyafoo/godb/internal/wal"
)

func newTestEngine(t *testing.T) *engine.Engine {
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

	return engine.New(cat, vmgr, nil)
}

func TestCreateInsertSelectAutoCommit(t *testing.T) {
	e := newTestEngine(t)

	out, err := e.Execute("create table users id int64, name string (index id)")
	require.NoError(t, err)
	require.Equal(t, "create users", out)

	out, err = e.Execute("insert into users values 1 alice")
	require.NoError(t, err)
	require.Equal(t, "insert", out)

	out, err = e.Execute("select * from users where id = 1")
	require.NoError(t, err)
	require.Equal(t, "[1, alice]\n", out)
}

func TestExplicitTransactionSpansStatements(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Execute("create table t id int64 (index id)")
	require.NoError(t, err)

	out, err := e.Execute("begin")
	require.NoError(t, err)
	require.Equal(t, "begin", out)

	_, err = e.Execute("insert into t values 1")
	require.NoError(t, err)
	_, err = e.Execute("insert into t values 2")
	require.NoError(t, err)

	out, err = e.Execute("commit")
	require.NoError(t, err)
	require.Equal(t, "commit", out)

	out, err = e.Execute("select * from t where id = 2")
	require.NoError(t, err)
	require.Equal(t, "[2]\n", out)
}

func TestNestedBeginFails(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Execute("begin")
	require.NoError(t, err)

	_, err = e.Execute("begin")
	require.Error(t, err)
}

func TestCommitWithoutBeginFails(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Execute("commit")
	require.Error(t, err)
}

func TestUpdateAndDeleteReturnCounts(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Execute("create table t id int64, name string (index id)")
	require.NoError(t, err)
	_, err = e.Execute("insert into t values 1 a")
	require.NoError(t, err)

	out, err := e.Execute("update t set name = b where id = 1")
	require.NoError(t, err)
	require.Equal(t, "update 1", out)

	out, err = e.Execute("delete from t where id = 1")
	require.NoError(t, err)
	require.Equal(t, "delete 1", out)
}

func TestShowListsCreatedTables(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Execute("create table t id int64 (index id)")
	require.NoError(t, err)

	out, err := e.Execute("show")
	require.NoError(t, err)
	require.Contains(t, out, "{t:")
}

func TestInvalidStatementReturnsError(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Execute("frobnicate everything")
	require.Error(t, err)
}
