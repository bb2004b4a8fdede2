// Package vm implements the multi-version concurrency control layer
// (spec.md §4.8/§4.9): it wraps DM records as XMIN/XMAX-stamped
// Entries, enforces Read Committed / Repeatable Read visibility, and
// arbitrates concurrent deletes through the lock table, auto-aborting
// on deadlock or version skip.
package vm

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/jyafoo/godb/internal/cache"
	"github.com/jyafoo/godb/internal/dberr"
	"github.com/jyafoo/godb/internal/dm"
	"github.com/jyafoo/godb/internal/tm"
	"github.com/jyafoo/godb/internal/vm/locktable"
)

// VM is the version manager. It is itself a cache of live Entries,
// mirroring how DM caches DataItems.
type VM struct {
	tm  *tm.TM
	dm  *dm.DM
	log *logrus.Entry

	mu     sync.Mutex
	active map[uint64]*Transaction

	lockTable *locktable.Table

	entryCache *cache.Cache // keyed by uid -> *Entry
}

// New wires a VM over an already-open TM and DM. The super transaction
// (XID 0) is always present in the active set, as every non-isolated
// read and the catalog's own bookkeeping run under it.
func New(tmgr *tm.TM, dmgr *dm.DM, log *logrus.Entry) *VM {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("component", "vm")

	v := &VM{
		tm:        tmgr,
		dm:        dmgr,
		log:       log,
		active:    make(map[uint64]*Transaction),
		lockTable: locktable.New(),
	}
	v.active[tm.SuperXID] = newTransaction(tm.SuperXID, IsolationReadCommitted, nil)
	v.entryCache = cache.New(v, 0)
	return v
}

// --- cache.Backend ---

func (v *VM) GetForCache(uid uint64) (interface{}, error) {
	e, err := loadEntry(v, uid)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, dberr.New(dberr.KindNullEntry, "entry not found")
	}
	return e, nil
}

func (v *VM) ReleaseForCache(uid uint64, value interface{}) {
	e := value.(*Entry)
	e.remove()
}

func (v *VM) releaseEntry(e *Entry) {
	v.entryCache.Release(e.uid)
}

// --- public API ---

func (v *VM) getTransaction(xid uint64) (*Transaction, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	txn, ok := v.active[xid]
	if !ok {
		return nil, dberr.ErrNoTransaction
	}
	return txn, nil
}

// Begin starts a new transaction at the given isolation level,
// snapshotting the currently active XIDs if level is repeatable read.
func (v *VM) Begin(level int) (uint64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	xid, err := v.tm.Begin()
	if err != nil {
		return 0, err
	}
	v.active[xid] = newTransaction(xid, level, v.active)
	return xid, nil
}

// Read resolves uid to its payload as visible to xid's transaction, or
// nil if no visible version exists.
func (v *VM) Read(xid uint64, uid uint64) ([]byte, error) {
	txn, err := v.getTransaction(xid)
	if err != nil {
		return nil, err
	}
	if txn.Err != nil {
		return nil, txn.Err
	}

	val, err := v.entryCache.Get(uid)
	if err != nil {
		if dberr.Is(err, dberr.KindNullEntry) {
			return nil, nil
		}
		return nil, err
	}
	e := val.(*Entry)
	defer e.Release()

	if isVisible(v.tm, txn, e) {
		return e.Data(), nil
	}
	return nil, nil
}

// Insert wraps data as a fresh Entry (xmin=xid, xmax=0) and hands it to DM.
func (v *VM) Insert(xid uint64, data []byte) (uint64, error) {
	txn, err := v.getTransaction(xid)
	if err != nil {
		return 0, err
	}
	if txn.Err != nil {
		return 0, txn.Err
	}
	return v.dm.Insert(xid, wrapEntryRaw(xid, data))
}

// Delete marks uid's version deleted by xid. It returns false (with a
// nil error) if uid is not visible to xid or was already deleted by
// xid itself; it returns dberr.ErrConcurrentUpdate and auto-aborts xid
// if acquiring the resource would deadlock or the version was
// concurrently deleted-and-committed outside xid's snapshot.
func (v *VM) Delete(xid uint64, uid uint64) (bool, error) {
	txn, err := v.getTransaction(xid)
	if err != nil {
		return false, err
	}
	if txn.Err != nil {
		return false, txn.Err
	}

	val, err := v.entryCache.Get(uid)
	if err != nil {
		if dberr.Is(err, dberr.KindNullEntry) {
			return false, nil
		}
		return false, err
	}
	e := val.(*Entry)
	defer e.Release()

	if !isVisible(v.tm, txn, e) {
		return false, nil
	}

	ch, err := v.lockTable.Add(xid, uid)
	if err != nil {
		v.log.WithField("xid", xid).Warn("deadlock detected, auto-aborting transaction")
		txn.Err = dberr.ErrConcurrentUpdate
		v.internalAbort(xid, true)
		txn.AutoAborted = true
		return false, txn.Err
	}
	if ch != nil {
		<-ch
	}

	if e.Xmax() == xid {
		return false, nil
	}

	if isVersionSkip(v.tm, txn, e) {
		txn.Err = dberr.ErrConcurrentUpdate
		v.internalAbort(xid, true)
		txn.AutoAborted = true
		return false, txn.Err
	}

	if err := e.SetXmax(xid); err != nil {
		return false, err
	}
	return true, nil
}

// Commit finalizes xid: drops it from the active set, releases its
// lock-table holdings (waking successors), and marks it committed.
func (v *VM) Commit(xid uint64) error {
	txn, err := v.getTransaction(xid)
	if err != nil {
		return err
	}
	if txn.Err != nil {
		v.mu.Lock()
		delete(v.active, xid)
		v.mu.Unlock()
		return txn.Err
	}

	v.mu.Lock()
	delete(v.active, xid)
	v.mu.Unlock()

	v.lockTable.Remove(xid)
	return v.tm.Commit(xid)
}

// Abort rolls xid back by caller request.
func (v *VM) Abort(xid uint64) error {
	return v.internalAbort(xid, false)
}

// internalAbort implements both manual abort and the auto-abort path
// taken on deadlock or version skip. Auto-aborted transactions stay in
// the active set (so the caller's in-flight call can still see
// txn.Err) until the caller itself calls Commit/Abort, at which point
// AutoAborted makes that call a no-op against TM/the lock table (they
// were already released here).
func (v *VM) internalAbort(xid uint64, autoAborted bool) error {
	v.mu.Lock()
	txn, ok := v.active[xid]
	if !autoAborted {
		delete(v.active, xid)
	}
	v.mu.Unlock()

	if !ok {
		return nil
	}
	if txn.AutoAborted {
		return nil
	}

	v.lockTable.Remove(xid)
	return v.tm.Abort(xid)
}

// Close releases the entry cache, flushing any resident entries back
// through DM.
func (v *VM) Close() {
	v.entryCache.Close()
}
