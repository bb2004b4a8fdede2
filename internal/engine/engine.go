// Package engine is the statement-dispatch executor of spec.md §4.13:
// it turns parsed SQL statements into Catalog calls, opening an
// implicit auto-commit transaction per statement when none is
// currently open. Grounded on the teacher's single-DBEngine dispatch
// shape (engine.go/engine_execute.go) generalized from its in-memory
// storage.Engine onto this project's vm+catalog stack.
package engine

import (
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/jyafoo/godb/internal/catalog"
	"github.com/jyafoo/godb/internal/dberr"
	"github.com/jyafoo/godb/internal/sql"
	"github.com/jyafoo/godb/internal/vm"
)

// Engine executes one client connection's statement stream. Exactly
// one outstanding transaction at a time: nested Begin fails.
type Engine struct {
	cat *catalog.Catalog
	vm  *vm.VM
	log *logrus.Entry

	xid uint64 // 0 when no transaction is open
}

// New returns an executor bound to cat/vmgr for a single connection's
// lifetime.
func New(cat *catalog.Catalog, vmgr *vm.VM, log *logrus.Entry) *Engine {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Engine{cat: cat, vm: vmgr, log: log.WithField("component", "engine")}
}

// Execute parses and runs a single statement, returning its textual
// result per spec.md §6's response bodies.
func (e *Engine) Execute(stat string) (string, error) {
	stmt, err := sql.Parse(stat)
	if err != nil {
		return "", err
	}
	return e.dispatch(stmt)
}

func (e *Engine) dispatch(stmt sql.Statement) (string, error) {
	switch s := stmt.(type) {
	case *sql.BeginStmt:
		return e.begin(s)
	case *sql.CommitStmt:
		return e.commit()
	case *sql.AbortStmt:
		return e.abort()
	case *sql.ShowStmt:
		return e.cat.Show(), nil
	case *sql.CreateTableStmt:
		return e.withImplicitXID(func(xid uint64) (string, error) {
			return e.cat.CreateTable(xid, s.Table, toFieldSpecs(s))
		})
	case *sql.DropTableStmt:
		return e.cat.Drop(s.Table)
	case *sql.InsertStmt:
		return e.withImplicitXID(func(xid uint64) (string, error) {
			if err := e.cat.Insert(xid, s.Table, s.Values); err != nil {
				return "", err
			}
			return "insert", nil
		})
	case *sql.SelectStmt:
		return e.withImplicitXID(func(xid uint64) (string, error) {
			return e.cat.Select(xid, s.Table, s.Fields, toWhere(s.Where))
		})
	case *sql.UpdateStmt:
		return e.withImplicitXID(func(xid uint64) (string, error) {
			n, err := e.cat.Update(xid, s.Table, s.Field, s.Value, toWhere(s.Where))
			if err != nil {
				return "", err
			}
			return "update " + strconv.Itoa(n), nil
		})
	case *sql.DeleteStmt:
		return e.withImplicitXID(func(xid uint64) (string, error) {
			n, err := e.cat.Delete(xid, s.Table, toWhere(s.Where))
			if err != nil {
				return "", err
			}
			return "delete " + strconv.Itoa(n), nil
		})
	default:
		return "", dberr.New(dberr.KindInvalidCommand, "unsupported statement")
	}
}

// withImplicitXID runs fn under the executor's current transaction,
// or, if none is open, under a fresh auto-commit transaction that is
// committed on success and aborted on error.
func (e *Engine) withImplicitXID(fn func(xid uint64) (string, error)) (string, error) {
	if e.xid != 0 {
		return fn(e.xid)
	}

	xid, err := e.vm.Begin(vm.IsolationReadCommitted)
	if err != nil {
		return "", err
	}
	out, err := fn(xid)
	if err != nil {
		_ = e.vm.Abort(xid)
		return "", err
	}
	if err := e.vm.Commit(xid); err != nil {
		return "", err
	}
	return out, nil
}

func toFieldSpecs(s *sql.CreateTableStmt) []catalog.FieldSpec {
	indexed := make(map[string]bool, len(s.Index))
	for _, name := range s.Index {
		indexed[name] = true
	}
	specs := make([]catalog.FieldSpec, len(s.Fields))
	for i, f := range s.Fields {
		specs[i] = catalog.FieldSpec{
			Name:    f.Name,
			Type:    catalog.FieldType(f.Type),
			Indexed: indexed[f.Name],
		}
	}
	return specs
}

func toWhere(w *sql.Where) *catalog.Where {
	if w == nil {
		return nil
	}
	return &catalog.Where{
		Field1:  w.Expr1.Field,
		Op1:     w.Expr1.Op,
		Value1:  w.Expr1.Value,
		LogicOp: w.LogicOp,
		Field2:  w.Expr2.Field,
		Op2:     w.Expr2.Op,
		Value2:  w.Expr2.Value,
	}
}

