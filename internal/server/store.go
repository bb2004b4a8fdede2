package server

import (
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/sirupsen/logrus"

	"github.com/jyafoo/godb/internal/catalog"
	"github.com/jyafoo/godb/internal/dberr"
	"github.com/jyafoo/godb/internal/dm"
	"github.com/jyafoo/godb/internal/pcache"
	"github.com/jyafoo/godb/internal/recovery"
	"github.com/jyafoo/godb/internal/tm"
	"github.com/jyafoo/godb/internal/vm"
	"github.com/jyafoo/godb/internal/wal"
)

// Store is the fully wired storage stack (spec.md §4.1-§4.12) a Server
// hands to every connection's engine.Engine. One Store per data
// directory; the directory-wide advisory lock in Open guards against a
// second process opening the same P.db/P.log/P.xid set, a failure mode
// the original single-process assumption leaves implicit.
type Store struct {
	VM      *vm.VM
	Catalog *catalog.Catalog

	dmgr *dm.DM
	lock *flock.Flock
}

// Open creates a brand-new database under dataDir if none exists, or
// reopens the existing one, following each layer's own
// Create-if-missing/Open-if-present convention (tm.Open, wal.Open).
func Open(dataDir string, pageCacheCapacity int, log *logrus.Entry) (*Store, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, dberr.Wrap(dberr.KindFileCannotRW, "create data directory", err)
	}

	lock := flock.New(filepath.Join(dataDir, ".godb.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, dberr.Wrap(dberr.KindFileCannotRW, "lock data directory", err)
	}
	if !locked {
		return nil, dberr.New(dberr.KindDatabaseBusy, "data directory is already open by another process")
	}

	dataPath := filepath.Join(dataDir, "P.db")
	_, statErr := os.Stat(dataPath)
	isNew := os.IsNotExist(statErr)

	pc, err := pcache.Open(dataPath, pageCacheCapacity, log)
	if err != nil {
		lock.Unlock()
		return nil, err
	}
	if isNew {
		if err := dm.InitFirstPages(pc); err != nil {
			lock.Unlock()
			return nil, err
		}
	}

	lg, err := wal.Open(filepath.Join(dataDir, "P.log"), log)
	if err != nil {
		lock.Unlock()
		return nil, err
	}

	tmgr, err := tm.Open(filepath.Join(dataDir, "P.xid"), log)
	if err != nil {
		lock.Unlock()
		return nil, err
	}

	if !isNew {
		valid, err := dm.CheckPageOneValid(pc)
		if err != nil {
			lock.Unlock()
			return nil, err
		}
		if !valid {
			log.Warn("page one marker mismatch, previous shutdown was unclean: running recovery")
			if err := recovery.Run(pc, lg, tmgr, log); err != nil {
				lock.Unlock()
				return nil, err
			}
		}
	}

	dmgr, err := dm.New(pc, lg, log)
	if err != nil {
		lock.Unlock()
		return nil, err
	}

	vmgr := vm.New(tmgr, dmgr, log)

	bootPath := filepath.Join(dataDir, "P.boot")
	var cat *catalog.Catalog
	if isNew {
		cat, err = catalog.Create(bootPath, vmgr, dmgr, log)
	} else {
		cat, err = catalog.Open(bootPath, vmgr, dmgr, log)
	}
	if err != nil {
		lock.Unlock()
		return nil, err
	}

	log.WithFields(logrus.Fields{"dir": dataDir, "new": isNew}).Info("database opened")
	return &Store{VM: vmgr, Catalog: cat, dmgr: dmgr, lock: lock}, nil
}

// Close runs the layered shutdown sequence spec.md §4.6 describes:
// VM flushes its entry cache through DM, DM stamps page one's close
// marker and flushes/closes the page cache and WAL, and finally the
// directory's advisory lock is released. Stamping the close marker
// here is what makes the next Open's CheckPageOneValid distinguish
// this clean shutdown from a crash.
func (s *Store) Close() error {
	s.VM.Close()
	if err := s.dmgr.Close(); err != nil {
		s.lock.Unlock()
		return err
	}
	return s.lock.Unlock()
}
