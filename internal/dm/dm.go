// Package dm implements the data-item layer (spec.md §4.6): it
// allocates and reads typed records inside pages, and provides the
// before/after update protocol that journals mutations to the WAL and
// serializes concurrent mutators per DataItem.
package dm

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/jyafoo/godb/internal/cache"
	"github.com/jyafoo/godb/internal/dberr"
	"github.com/jyafoo/godb/internal/pcache"
	"github.com/jyafoo/godb/internal/wal"
)

// PageSize mirrors pcache.PageSize for callers that only import dm.
const PageSize = pcache.PageSize

const maxInsertRetries = 5

// DM ties together the page cache, the WAL, and the DataItem cache
// into the allocate/read/update API the rest of the engine uses.
type DM struct {
	pc  *pcache.Cache
	lg  *wal.Logger
	log *logrus.Entry

	pageOne *pcache.Page
	pi      *PageIndex

	itemCache *cache.Cache // keyed by UID

	insertMu sync.Mutex // serializes the select-page-or-allocate retry loop
}

// New wires a DM over an already-open page cache and WAL, loading
// page one and building the free-space index from every ordinary page
// already on disk.
func New(pc *pcache.Cache, lg *wal.Logger, log *logrus.Entry) (*DM, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("component", "dm")

	dm := &DM{pc: pc, lg: lg, log: log, pi: NewPageIndex()}
	dm.itemCache = cache.New(dm, 0)

	p1, err := pc.GetPage(1)
	if err != nil {
		return nil, err
	}
	dm.pageOne = p1
	p1.StampOpen()

	if err := dm.fillPageIndex(); err != nil {
		return nil, err
	}
	return dm, nil
}

// InitFirstPages creates page one (with a fresh validity marker) in a
// brand-new database, before any ordinary page exists.
func InitFirstPages(pc *pcache.Cache) error {
	no, err := pc.NewPage(pcache.NewPageOneData())
	if err != nil {
		return err
	}
	if no != 1 {
		return dberr.New(dberr.KindBadLogFile, "page one was not the first page allocated")
	}
	return nil
}

// CheckPageOneValid reports whether the previous shutdown was clean,
// by comparing page one's open/close marker windows.
func CheckPageOneValid(pc *pcache.Cache) (bool, error) {
	p1, err := pc.GetPage(1)
	if err != nil {
		return false, err
	}
	defer pc.Release(1)
	return p1.CheckVC(), nil
}

func (dm *DM) fillPageIndex() error {
	n := dm.pc.NoPages()
	for pgno := uint64(2); pgno <= n; pgno++ {
		p, err := dm.pc.GetPage(pgno)
		if err != nil {
			return err
		}
		dm.pi.Add(pgno, p.FreeSpace())
		dm.pc.Release(pgno)
	}
	return nil
}

// --- cache.Backend ---

func (dm *DM) GetForCache(uid uint64) (interface{}, error) {
	pgno, _ := ParseUID(uid)
	page, err := dm.pc.GetPage(pgno)
	if err != nil {
		return nil, err
	}
	return newDataItem(uid, page, dm), nil
}

func (dm *DM) ReleaseForCache(uid uint64, value interface{}) {
	di := value.(*DataItem)
	dm.pc.Release(di.pgno)
}

// --- public API ---

// Read resolves uid to a DataItem, returning (nil, nil) if the item is
// tombstoned.
func (dm *DM) Read(uid uint64) (*DataItem, error) {
	v, err := dm.itemCache.Get(uid)
	if err != nil {
		return nil, err
	}
	di := v.(*DataItem)
	if !di.IsValid() {
		dm.itemCache.Release(uid)
		return nil, nil
	}
	return di, nil
}

// ReleaseItem releases a DataItem acquired via Read or Insert.
func (dm *DM) ReleaseItem(di *DataItem) {
	dm.itemCache.Release(di.uid)
}

// Insert wraps data as a live DataItem, places it in a page with
// enough free space (allocating new pages as needed, retrying up to
// five times before giving up with DatabaseBusy), logs the insert
// before mutating the page, and returns the new item's UID.
func (dm *DM) Insert(xid uint64, data []byte) (uint64, error) {
	wrapped := wrapDataItem(data)
	if len(wrapped) > PageSize-2 {
		return 0, dberr.New(dberr.KindDataTooLarge, "data item exceeds page capacity")
	}

	dm.insertMu.Lock()
	defer dm.insertMu.Unlock()

	var pgno uint64
	var ok bool
	for attempt := 0; attempt < maxInsertRetries; attempt++ {
		pgno, ok = dm.pi.Select(len(wrapped))
		if ok {
			break
		}
		newPgno, err := dm.pc.NewPage(pcache.InitOrdinaryPage())
		if err != nil {
			return 0, err
		}
		dm.pi.Add(newPgno, pcache.PageSize-2)
	}
	if !ok {
		return 0, dberr.ErrDatabaseBusy
	}

	page, err := dm.pc.GetPage(pgno)
	if err != nil {
		return 0, err
	}
	defer dm.pc.Release(pgno)

	if page.FreeSpace() < len(wrapped) {
		// lost the race with a concurrent insert into the same page;
		// put it back and report busy rather than corrupt the page.
		dm.pi.Add(pgno, page.FreeSpace())
		return 0, dberr.ErrDatabaseBusy
	}

	offset := uint16(PageSize - page.FreeSpace())
	if err := dm.logInsert(xid, pgno, offset, wrapped); err != nil {
		return 0, err
	}
	page.InsertOrdinary(wrapped)

	dm.pi.Add(pgno, page.FreeSpace())
	return UID(pgno, offset), nil
}

func (dm *DM) logInsert(xid uint64, pgno uint64, offset uint16, raw []byte) error {
	return dm.lg.Append(encodeInsertLog(xid, pgno, offset, raw))
}

func (dm *DM) logUpdate(xid uint64, uid uint64, oldRaw, newRaw []byte) error {
	return dm.lg.Append(encodeUpdateLog(xid, uid, oldRaw, newRaw))
}

// Close flushes the DataItem cache, closes the WAL, stamps page one's
// close marker, releases and flushes page one, and closes the page
// cache — spec.md §4.6's shutdown sequence.
func (dm *DM) Close() error {
	dm.itemCache.Close()
	if err := dm.lg.Close(); err != nil {
		return err
	}
	dm.pageOne.StampClose()
	dm.pc.Release(1)
	dm.pc.Flush()
	return dm.pc.Close()
}
