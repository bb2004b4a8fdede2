package vm

import "github.com/jyafoo/godb/internal/tm"

// Isolation levels (spec.md §4.8/§4.9).
const (
	IsolationReadCommitted = 0
	IsolationRepeatableRead = 1
)

// Transaction is VM's in-memory record of one active transaction: its
// isolation level, the repeatable-read snapshot of concurrently active
// XIDs at begin time, and any error that forces it to abort.
type Transaction struct {
	XID   uint64
	Level int

	// Snapshot holds the XIDs active at begin time, for repeatable-read
	// visibility. Unused (nil) at read-committed level.
	Snapshot map[uint64]bool

	Err         error
	AutoAborted bool
}

func newTransaction(xid uint64, level int, active map[uint64]*Transaction) *Transaction {
	t := &Transaction{XID: xid, Level: level}
	if level != IsolationReadCommitted {
		t.Snapshot = make(map[uint64]bool, len(active))
		for x := range active {
			t.Snapshot[x] = true
		}
	}
	return t
}

// InSnapshot reports whether xid was active when this transaction began.
func (t *Transaction) InSnapshot(xid uint64) bool {
	if xid == tm.SuperXID {
		return false
	}
	return t.Snapshot[xid]
}
