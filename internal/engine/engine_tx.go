package engine

import (
	"github.com/jyafoo/godb/internal/dberr"
	"github.com/jyafoo/godb/internal/sql"
	"github.com/jyafoo/godb/internal/vm"
)

func (e *Engine) begin(s *sql.BeginStmt) (string, error) {
	if e.xid != 0 {
		return "", dberr.New(dberr.KindNestedTransaction, "transaction already open")
	}

	level := vm.IsolationReadCommitted
	if s.RepeatableRead {
		level = vm.IsolationRepeatableRead
	}
	xid, err := e.vm.Begin(level)
	if err != nil {
		return "", err
	}
	e.xid = xid
	return "begin", nil
}

func (e *Engine) commit() (string, error) {
	if e.xid == 0 {
		return "", dberr.New(dberr.KindNoTransaction, "no transaction to commit")
	}
	xid := e.xid
	e.xid = 0
	if err := e.vm.Commit(xid); err != nil {
		return "", err
	}
	return "commit", nil
}

func (e *Engine) abort() (string, error) {
	if e.xid == 0 {
		return "", dberr.New(dberr.KindNoTransaction, "no transaction to abort")
	}
	xid := e.xid
	e.xid = 0
	if err := e.vm.Abort(xid); err != nil {
		return "", err
	}
	return "abort", nil
}
