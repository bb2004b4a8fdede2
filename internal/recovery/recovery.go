// Package recovery implements crash recovery (spec.md §4.5): on
// reopen, if page one's validity marker indicates an unclean
// shutdown, it scans the WAL and replays committed transactions
// (redo) then rolls back whatever was still active at crash time
// (undo).
package recovery

import (
	"github.com/sirupsen/logrus"

	"github.com/jyafoo/godb/internal/dm"
	"github.com/jyafoo/godb/internal/pcache"
	"github.com/jyafoo/godb/internal/tm"
	"github.com/jyafoo/godb/internal/wal"
)

// Run performs the full redo-then-undo recovery algorithm described in
// spec.md §4.5 against an already-open page cache, WAL and TM. It must
// run before any DM is constructed over pc, since it truncates the
// data file and mutates pages directly.
func Run(pc *pcache.Cache, lg *wal.Logger, tmgr *tm.TM, log *logrus.Entry) error {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("component", "recovery")

	maxPgno, err := scanMaxPgno(lg)
	if err != nil {
		return err
	}
	if maxPgno < 1 {
		maxPgno = 1
	}
	if err := pc.TruncateByPgno(maxPgno); err != nil {
		return err
	}

	redoCount, err := redo(pc, lg, tmgr)
	if err != nil {
		return err
	}
	undoCount, err := undo(pc, lg, tmgr)
	if err != nil {
		return err
	}

	log.WithFields(logrus.Fields{"redo": redoCount, "undo": undoCount, "pages": maxPgno}).
		Info("recovery complete")
	return nil
}

// scanMaxPgno determines the highest page number referenced by any
// log record, so the data file can be truncated to a consistent
// length before replay (spec.md §4.5 step 1).
func scanMaxPgno(lg *wal.Logger) (uint64, error) {
	lg.Rewind()
	var max uint64
	for {
		data, ok, err := lg.Next()
		if err != nil {
			return 0, err
		}
		if !ok {
			break
		}
		switch data[0] {
		case dm.LogTypeInsert:
			r, err := dm.DecodeInsertLog(data)
			if err != nil {
				return 0, err
			}
			if r.Pgno > max {
				max = r.Pgno
			}
		case dm.LogTypeUpdate:
			r, err := dm.DecodeUpdateLog(data)
			if err != nil {
				return 0, err
			}
			pgno, _ := dm.ParseUID(r.UID)
			if pgno > max {
				max = pgno
			}
		}
	}
	return max, nil
}

// redo re-applies every record whose XID is not currently active
// (i.e. it committed or aborted before the crash, or belongs to a
// transaction this pass has no opinion on yet because recovery always
// runs against a freshly reopened TM where only truly active XIDs
// remain active).
func redo(pc *pcache.Cache, lg *wal.Logger, tmgr *tm.TM) (int, error) {
	lg.Rewind()
	count := 0
	for {
		data, ok, err := lg.Next()
		if err != nil {
			return count, err
		}
		if !ok {
			break
		}

		xid, err := dm.LogRecordXID(data)
		if err != nil {
			return count, err
		}
		if tmgr.IsActive(xid) {
			continue
		}

		if err := applyRecord(pc, data); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// undo buckets every record by XID, then for each XID still active at
// crash time, reverses its records in reverse insertion order and
// marks it aborted.
func undo(pc *pcache.Cache, lg *wal.Logger, tmgr *tm.TM) (int, error) {
	byXID := make(map[uint64][][]byte)
	var order []uint64
	seen := make(map[uint64]bool)

	lg.Rewind()
	for {
		data, ok, err := lg.Next()
		if err != nil {
			return 0, err
		}
		if !ok {
			break
		}
		xid, err := dm.LogRecordXID(data)
		if err != nil {
			return 0, err
		}
		if !tmgr.IsActive(xid) {
			continue
		}
		if !seen[xid] {
			seen[xid] = true
			order = append(order, xid)
		}
		byXID[xid] = append(byXID[xid], data)
	}

	count := 0
	for _, xid := range order {
		records := byXID[xid]
		for i := len(records) - 1; i >= 0; i-- {
			if err := undoRecord(pc, records[i]); err != nil {
				return count, err
			}
			count++
		}
		if err := tmgr.Abort(xid); err != nil {
			return count, err
		}
	}
	return count, nil
}

// applyRecord redoes a single committed/aborted-at-crash record.
func applyRecord(pc *pcache.Cache, data []byte) error {
	switch data[0] {
	case dm.LogTypeInsert:
		r, err := dm.DecodeInsertLog(data)
		if err != nil {
			return err
		}
		page, err := pc.GetPage(r.Pgno)
		if err != nil {
			return err
		}
		page.RecoverInsert(r.Offset, r.Raw)
		pc.Release(r.Pgno)
		return nil
	case dm.LogTypeUpdate:
		r, err := dm.DecodeUpdateLog(data)
		if err != nil {
			return err
		}
		pgno, offset := dm.ParseUID(r.UID)
		page, err := pc.GetPage(pgno)
		if err != nil {
			return err
		}
		page.RecoverUpdate(offset, r.NewRaw)
		pc.Release(pgno)
		return nil
	}
	return nil
}

// undoRecord reverses a single still-active record: an insert is
// undone by tombstoning the DataItem's valid byte; an update is undone
// by restoring oldRaw.
func undoRecord(pc *pcache.Cache, data []byte) error {
	switch data[0] {
	case dm.LogTypeInsert:
		r, err := dm.DecodeInsertLog(data)
		if err != nil {
			return err
		}
		page, err := pc.GetPage(r.Pgno)
		if err != nil {
			return err
		}
		page.RecoverUpdate(r.Offset+dm.DIValidOffset, []byte{dm.ValidByte(true)})
		pc.Release(r.Pgno)
		return nil
	case dm.LogTypeUpdate:
		r, err := dm.DecodeUpdateLog(data)
		if err != nil {
			return err
		}
		pgno, offset := dm.ParseUID(r.UID)
		page, err := pc.GetPage(pgno)
		if err != nil {
			return err
		}
		page.RecoverUpdate(offset, r.OldRaw)
		pc.Release(pgno)
		return nil
	}
	return nil
}
