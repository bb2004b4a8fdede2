package sql_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jyafoo/godb/internal/sql"
)

func TestParseCreateTableWithIndex(t *testing.T) {
	stmt, err := sql.Parse("create table users id int64, name string, age int32 (index id name)")
	require.NoError(t, err)

	ct, ok := stmt.(*sql.CreateTableStmt)
	require.True(t, ok)
	require.Equal(t, "users", ct.Table)
	require.Equal(t, []sql.FieldDef{
		{Name: "id", Type: "int64"},
		{Name: "name", Type: "string"},
		{Name: "age", Type: "int32"},
	}, ct.Fields)
	require.Equal(t, []string{"id", "name"}, ct.Index)
}

func TestParseCreateTableNoIndex(t *testing.T) {
	stmt, err := sql.Parse("create table t id int64 (index)")
	require.NoError(t, err)
	ct := stmt.(*sql.CreateTableStmt)
	require.Empty(t, ct.Index)
}

func TestParseBeginDefaultAndIsolationLevels(t *testing.T) {
	stmt, err := sql.Parse("begin")
	require.NoError(t, err)
	require.False(t, stmt.(*sql.BeginStmt).RepeatableRead)

	stmt, err = sql.Parse("begin isolation level read committed")
	require.NoError(t, err)
	require.False(t, stmt.(*sql.BeginStmt).RepeatableRead)

	stmt, err = sql.Parse("begin isolation level repeatable read")
	require.NoError(t, err)
	require.True(t, stmt.(*sql.BeginStmt).RepeatableRead)
}

func TestParseSelectWithAndOrWhere(t *testing.T) {
	stmt, err := sql.Parse("select id, name from users where id > 1 and id < 5")
	require.NoError(t, err)
	sel := stmt.(*sql.SelectStmt)
	require.Equal(t, []string{"id", "name"}, sel.Fields)
	require.Equal(t, "users", sel.Table)
	require.NotNil(t, sel.Where)
	require.Equal(t, "and", sel.Where.LogicOp)
	require.Equal(t, sql.SingleExpr{Field: "id", Op: ">", Value: "1"}, sel.Where.Expr1)
	require.Equal(t, sql.SingleExpr{Field: "id", Op: "<", Value: "5"}, sel.Where.Expr2)

	stmt, err = sql.Parse("select * from users")
	require.NoError(t, err)
	require.Equal(t, []string{"*"}, stmt.(*sql.SelectStmt).Fields)
	require.Nil(t, stmt.(*sql.SelectStmt).Where)
}

func TestParseInsertUpdateDelete(t *testing.T) {
	stmt, err := sql.Parse("insert into users values 1 alice 30")
	require.NoError(t, err)
	require.Equal(t, []string{"1", "alice", "30"}, stmt.(*sql.InsertStmt).Values)

	stmt, err = sql.Parse("update users set name = bob where id = 1")
	require.NoError(t, err)
	up := stmt.(*sql.UpdateStmt)
	require.Equal(t, "name", up.Field)
	require.Equal(t, "bob", up.Value)
	require.NotNil(t, up.Where)

	stmt, err = sql.Parse("delete from users where id = 1")
	require.NoError(t, err)
	require.Equal(t, "users", stmt.(*sql.DeleteStmt).Table)
}

func TestParseDropTableAndShow(t *testing.T) {
	stmt, err := sql.Parse("drop table users")
	require.NoError(t, err)
	require.Equal(t, "users", stmt.(*sql.DropTableStmt).Table)

	stmt, err = sql.Parse("show")
	require.NoError(t, err)
	_, ok := stmt.(*sql.ShowStmt)
	require.True(t, ok)
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := sql.Parse("frobnicate 1 2 3")
	require.Error(t, err)

	_, err = sql.Parse("select * from users extra tokens")
	require.Error(t, err)

	_, err = sql.Parse("")
	require.Error(t, err)
}

func TestParseQuotedStringLiteral(t *testing.T) {
	stmt, err := sql.Parse(`insert into t values 1 'hello world'`)
	require.NoError(t, err)
	require.Equal(t, []string{"1", "hello world"}, stmt.(*sql.InsertStmt).Values)
}
