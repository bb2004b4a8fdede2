package pcache

import (
	"os"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/jyafoo/godb/internal/cache"
	"github.com/jyafoo/godb/internal/dberr"
)

// Cache is the page cache: fixed-size pages backed by a single data
// file, page numbers starting at 1. It satisfies cache.Backend so it
// can plug into the shared reference-counted cache framework.
type Cache struct {
	f    *os.File
	path string
	log  *logrus.Entry

	fileMu  sync.Mutex // serializes file IO (the "page file lock")
	noPages uint64      // highest page number allocated so far

	rc *cache.Cache
}

// Open opens (or creates) the data file at path and wraps it in a
// page cache of the given capacity (0 = unbounded).
func Open(path string, capacity int, log *logrus.Entry) (*Cache, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("component", "pcache")

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, dberr.Wrap(dberr.KindFileCannotRW, "open data file", err)
	}

	pc := &Cache{f: f, path: path, log: log}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, dberr.Wrap(dberr.KindFileCannotRW, "stat data file", err)
	}
	pc.noPages = uint64(fi.Size() / PageSize)
	pc.rc = cache.New(pc, capacity)
	return pc, nil
}

// NoPages returns the number of pages currently in the data file.
func (pc *Cache) NoPages() uint64 {
	return atomic.LoadUint64(&pc.noPages)
}

// NewPage appends a new page with the given initial contents
// (pre-flushed immediately, per spec.md §4.3) and returns its page
// number.
func (pc *Cache) NewPage(initData []byte) (uint64, error) {
	pc.fileMu.Lock()
	defer pc.fileMu.Unlock()

	no := atomic.AddUint64(&pc.noPages, 1)
	if err := pc.flushAt(no, initData); err != nil {
		atomic.AddUint64(&pc.noPages, ^uint64(0)) // revert on failure
		return 0, err
	}
	return no, nil
}

func (pc *Cache) flushAt(no uint64, data []byte) error {
	offset := int64(no-1) * PageSize
	if _, err := pc.f.WriteAt(data, offset); err != nil {
		return dberr.Wrap(dberr.KindFileCannotRW, "write page", err)
	}
	return pc.f.Sync()
}

// GetPage acquires page no through the shared cache, reading it from
// disk on first access.
func (pc *Cache) GetPage(no uint64) (*Page, error) {
	v, err := pc.rc.Get(no)
	if err != nil {
		if err == cache.ErrCacheFull {
			return nil, dberr.Wrap(dberr.KindDatabaseBusy, "page cache full", err)
		}
		return nil, err
	}
	return v.(*Page), nil
}

// Release decrements page no's reference count, writing it back on
// final release if dirty.
func (pc *Cache) Release(no uint64) {
	pc.rc.Release(no)
}

// GetForCache implements cache.Backend: reads exactly one page from
// the file at offset (pgno-1)*PageSize.
func (pc *Cache) GetForCache(key uint64) (interface{}, error) {
	pc.fileMu.Lock()
	defer pc.fileMu.Unlock()

	buf := make([]byte, PageSize)
	offset := int64(key-1) * PageSize
	if _, err := pc.f.ReadAt(buf, offset); err != nil {
		return nil, dberr.Wrap(dberr.KindFileCannotRW, "read page", err)
	}
	return newPage(key, buf, pc), nil
}

// ReleaseForCache implements cache.Backend: writes the page back if
// it is dirty.
func (pc *Cache) ReleaseForCache(key uint64, value interface{}) {
	p := value.(*Page)
	p.mu.Lock()
	dirty := p.Dirty
	data := append([]byte(nil), p.Data...)
	p.Dirty = false
	p.mu.Unlock()

	if !dirty {
		return
	}
	pc.fileMu.Lock()
	defer pc.fileMu.Unlock()
	offset := int64(key-1) * PageSize
	if _, err := pc.f.WriteAt(data, offset); err != nil {
		dberr.Fatal(pc.log, dberr.KindFileCannotRW, "write back dirty page", err)
	}
}

// TruncateByPgno sets the file length to m*PageSize and resets the
// page counter. Used only during recovery, before log replay.
func (pc *Cache) TruncateByPgno(m uint64) error {
	pc.fileMu.Lock()
	defer pc.fileMu.Unlock()

	if err := pc.f.Truncate(int64(m) * PageSize); err != nil {
		return dberr.Wrap(dberr.KindFileCannotRW, "truncate data file", err)
	}
	atomic.StoreUint64(&pc.noPages, m)
	return nil
}

// Flush forces write-back of every resident page and drops it from the
// cache.
func (pc *Cache) Flush() {
	pc.rc.Close()
}

// Close flushes all resident pages and closes the data file.
func (pc *Cache) Close() error {
	pc.rc.Close()
	pc.fileMu.Lock()
	defer pc.fileMu.Unlock()
	return pc.f.Close()
}
