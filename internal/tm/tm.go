// Package tm implements the transaction manager (spec.md §4.2): it
// assigns monotonically increasing XIDs and persists each XID's status
// as one byte in a dedicated ".xid" file.
package tm

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/jyafoo/godb/internal/dberr"
)

// Status is the persisted state of one XID.
type Status byte

const (
	StatusActive    Status = 0
	StatusCommitted Status = 1
	StatusAborted   Status = 2
)

const (
	lenXIDHeader = 8 // 8-byte counter at the front of the file
	// SuperXID is XID 0: always committed, never recorded on disk.
	SuperXID uint64 = 0
)

// TM is the transaction manager. All methods are safe for concurrent use.
type TM struct {
	f    *os.File
	path string
	mu   sync.Mutex
	log  *logrus.Entry
}

// Open opens (or creates) the XID file at path. An existing file whose
// size doesn't match its own counter is reported as corrupted via a
// fatal error, per spec.md §7's propagation policy for storage errors.
func Open(path string, log *logrus.Entry) (*TM, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("component", "tm")

	_, statErr := os.Stat(path)
	isNew := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, dberr.Wrap(dberr.KindFileCannotRW, "open xid file", err)
	}

	t := &TM{f: f, path: path, log: log}

	if isNew {
		if err := t.initFile(); err != nil {
			f.Close()
			return nil, err
		}
		return t, nil
	}

	if err := t.checkFile(); err != nil {
		f.Close()
		dberr.Fatal(log, dberr.KindBadXIDFile, "xid file failed validity check", err)
		return nil, err // unreachable; Fatal exits the process
	}
	return t, nil
}

func (t *TM) initFile() error {
	buf := make([]byte, lenXIDHeader)
	if _, err := t.f.WriteAt(buf, 0); err != nil {
		return dberr.Wrap(dberr.KindFileCannotRW, "init xid header", err)
	}
	return t.f.Sync()
}

func (t *TM) fileLen() (int64, error) {
	fi, err := t.f.Stat()
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

func (t *TM) readCount() (uint64, error) {
	buf := make([]byte, lenXIDHeader)
	if _, err := t.f.ReadAt(buf, 0); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(buf), nil
}

// checkFile validates that the file size equals 8 + count.
func (t *TM) checkFile() error {
	size, err := t.fileLen()
	if err != nil {
		return err
	}
	if size < lenXIDHeader {
		return fmt.Errorf("xid file truncated below header: %d bytes", size)
	}
	count, err := t.readCount()
	if err != nil {
		return err
	}
	want := lenXIDHeader + int64(count)
	if size != want {
		return fmt.Errorf("xid file size %d does not match counter %d (want %d)", size, count, want)
	}
	return nil
}

func xidOffset(xid uint64) int64 {
	return lenXIDHeader + int64(xid-1)
}

func (t *TM) writeStatus(xid uint64, s Status) error {
	if _, err := t.f.WriteAt([]byte{byte(s)}, xidOffset(xid)); err != nil {
		return err
	}
	return t.f.Sync()
}

func (t *TM) readStatus(xid uint64) (Status, error) {
	if xid == SuperXID {
		return StatusCommitted, nil
	}
	buf := make([]byte, 1)
	if _, err := t.f.ReadAt(buf, xidOffset(xid)); err != nil {
		return 0, err
	}
	return Status(buf[0]), nil
}

// Begin allocates a new XID, persists it as active, and bumps the
// on-disk counter. Both writes are fsynced before returning.
func (t *TM) Begin() (uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	count, err := t.readCount()
	if err != nil {
		dberr.Fatal(t.log, dberr.KindBadXIDFile, "read xid counter", err)
	}
	xid := count + 1

	if err := t.writeStatus(xid, StatusActive); err != nil {
		dberr.Fatal(t.log, dberr.KindBadXIDFile, "write xid status", err)
	}

	buf := make([]byte, lenXIDHeader)
	binary.BigEndian.PutUint64(buf, xid)
	if _, err := t.f.WriteAt(buf, 0); err != nil {
		dberr.Fatal(t.log, dberr.KindBadXIDFile, "persist xid counter", err)
	}
	if err := t.f.Sync(); err != nil {
		dberr.Fatal(t.log, dberr.KindBadXIDFile, "sync xid counter", err)
	}

	return xid, nil
}

// Commit marks xid committed.
func (t *TM) Commit(xid uint64) error { return t.updateStatus(xid, StatusCommitted) }

// Abort marks xid aborted.
func (t *TM) Abort(xid uint64) error { return t.updateStatus(xid, StatusAborted) }

func (t *TM) updateStatus(xid uint64, s Status) error {
	if xid == SuperXID {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.writeStatus(xid, s); err != nil {
		dberr.Fatal(t.log, dberr.KindBadXIDFile, "write xid status", err)
	}
	return nil
}

func (t *TM) isStatus(xid uint64, s Status) bool {
	if xid == SuperXID {
		return s == StatusCommitted
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	got, err := t.readStatus(xid)
	if err != nil {
		dberr.Fatal(t.log, dberr.KindBadXIDFile, "read xid status", err)
	}
	return got == s
}

// IsActive reports whether xid is currently active. XID 0 is never active.
func (t *TM) IsActive(xid uint64) bool {
	if xid == SuperXID {
		return false
	}
	return t.isStatus(xid, StatusActive)
}

// IsCommitted reports whether xid has committed. XID 0 is always committed.
func (t *TM) IsCommitted(xid uint64) bool { return t.isStatus(xid, StatusCommitted) }

// IsAborted reports whether xid has aborted. XID 0 is never aborted.
func (t *TM) IsAborted(xid uint64) bool {
	if xid == SuperXID {
		return false
	}
	return t.isStatus(xid, StatusAborted)
}

// Close flushes and closes the underlying xid file.
func (t *TM) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.f.Close()
}
