package vm

import "github.com/jyafoo/godb/internal/tm"

// isVisible dispatches to the visibility rule for txn's isolation level.
func isVisible(tmgr *tm.TM, txn *Transaction, e *Entry) bool {
	if txn.Level == IsolationReadCommitted {
		return readCommitted(tmgr, txn, e)
	}
	return repeatableRead(tmgr, txn, e)
}

// isVersionSkip reports whether e was concurrently deleted-and-committed
// by a transaction invisible to txn's repeatable-read snapshot, which
// would mean txn's would-be update silently skips that intervening
// version. Always false under read committed.
func isVersionSkip(tmgr *tm.TM, txn *Transaction, e *Entry) bool {
	if txn.Level == IsolationReadCommitted {
		return false
	}
	xmax := e.Xmax()
	return tmgr.IsCommitted(xmax) && (xmax > txn.XID || txn.InSnapshot(xmax))
}

// readCommitted: visible if created by txn itself and not yet deleted,
// or created by an already-committed transaction and either not yet
// deleted or deleted by a transaction that hasn't committed (other than
// txn itself, whose own delete is always visible to it as a deletion).
func readCommitted(tmgr *tm.TM, txn *Transaction, e *Entry) bool {
	xid := txn.XID
	xmin := e.Xmin()
	xmax := e.Xmax()

	if xmin == xid && xmax == 0 {
		return true
	}
	if tmgr.IsCommitted(xmin) {
		if xmax == 0 {
			return true
		}
		if xid != xmax && !tmgr.IsCommitted(xmax) {
			return true
		}
	}
	return false
}

// repeatableRead: as readCommitted, but the creating transaction must
// additionally have committed strictly before txn began (not merely
// committed by now, and not in txn's snapshot), and the same applies
// to whichever transaction deleted it.
func repeatableRead(tmgr *tm.TM, txn *Transaction, e *Entry) bool {
	xid := txn.XID
	xmin := e.Xmin()
	xmax := e.Xmax()

	if xid == xmin && xmax == 0 {
		return true
	}
	if tmgr.IsCommitted(xmin) && xmin < xid && !txn.InSnapshot(xmin) {
		if xmax == 0 {
			return true
		}
		if xmax != xid {
			if !tmgr.IsCommitted(xmax) || xmax > xid || txn.InSnapshot(xmax) {
				return true
			}
		}
	}
	return false
}
