// Package wal implements the write-ahead logger (spec.md §4.4): a file
// with a 4-byte global checksum prefix followed by
// length+checksum-prefixed records, supporting append, sequential
// scan, and bad-tail truncation.
package wal

import (
	"encoding/binary"
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/jyafoo/godb/internal/dberr"
)

const (
	seed = 13331

	xChecksumOffset = 0
	xChecksumLen    = 4
	recordHeaderLen = 4 + 4 // size + checksum
)

// Logger is a WAL file. Append is serialized by mu; the file-global
// checksum is updated in place and fsynced on every append.
type Logger struct {
	f    *os.File
	path string
	log  *logrus.Entry

	mu        sync.Mutex
	xChecksum uint32

	// scan cursor, advanced by Next/Rewind.
	scanPos int64
}

func fold(checksum uint32, b byte) uint32 {
	return checksum*seed + uint32(b)
}

func foldBytes(checksum uint32, data []byte) uint32 {
	for _, b := range data {
		checksum = fold(checksum, b)
	}
	return checksum
}

// Create initializes a brand-new, empty WAL file at path.
func Create(path string, log *logrus.Entry) (*Logger, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("component", "wal")

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, dberr.Wrap(dberr.KindFileCannotRW, "create wal file", err)
	}
	buf := make([]byte, xChecksumLen)
	if _, err := f.WriteAt(buf, 0); err != nil {
		f.Close()
		return nil, dberr.Wrap(dberr.KindFileCannotRW, "init wal checksum", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return nil, dberr.Wrap(dberr.KindFileCannotRW, "sync new wal file", err)
	}
	return &Logger{f: f, path: path, log: log}, nil
}

// Open opens an existing WAL file, validates its running checksum
// fold against the stored xChecksum, and truncates any trailing bytes
// that fail validation (the "bad tail" the log can accumulate if a
// crash interrupted the last append).
func Open(path string, log *logrus.Entry) (*Logger, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("component", "wal")

	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		if os.IsNotExist(err) {
			return Create(path, log)
		}
		return nil, dberr.Wrap(dberr.KindFileCannotRW, "open wal file", err)
	}

	l := &Logger{f: f, path: path, log: log}
	if err := l.verifyAndTruncateTail(); err != nil {
		f.Close()
		return nil, err
	}
	return l, nil
}

func (l *Logger) readXChecksum() (uint32, error) {
	buf := make([]byte, xChecksumLen)
	if _, err := l.f.ReadAt(buf, xChecksumOffset); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf), nil
}

func (l *Logger) writeXChecksum(c uint32) error {
	buf := make([]byte, xChecksumLen)
	binary.BigEndian.PutUint32(buf, c)
	if _, err := l.f.WriteAt(buf, xChecksumOffset); err != nil {
		return err
	}
	return l.f.Sync()
}

// verifyAndTruncateTail scans every record from the start, folding a
// running checksum, and compares it to the stored xChecksum. Any
// trailing bytes that don't form a complete, checksum-valid record are
// truncated away.
func (l *Logger) verifyAndTruncateTail() error {
	stored, err := l.readXChecksum()
	if err != nil {
		return dberr.Wrap(dberr.KindBadLogFile, "read wal xchecksum", err)
	}

	running := uint32(0)
	pos := int64(xChecksumLen)
	for {
		size, data, ok, err := l.readRecordAt(pos)
		if err != nil {
			return dberr.Wrap(dberr.KindBadLogFile, "scan wal", err)
		}
		if !ok {
			break
		}
		running = foldBytes(running, data)
		pos += int64(recordHeaderLen) + int64(size)
	}

	if running != stored {
		l.log.WithFields(logrus.Fields{"want": stored, "got": running, "truncateAt": pos}).
			Warn("wal checksum mismatch, truncating bad tail")
	}
	if err := l.f.Truncate(pos); err != nil {
		return dberr.Wrap(dberr.KindBadLogFile, "truncate wal bad tail", err)
	}
	if err := l.writeXChecksum(running); err != nil {
		return dberr.Wrap(dberr.KindBadLogFile, "rewrite wal xchecksum", err)
	}
	l.xChecksum = running
	return nil
}

// readRecordAt reads one [size][checksum][data] record at pos,
// returning ok=false if there isn't a complete, checksum-valid record
// there (end of log, or a torn trailing write).
func (l *Logger) readRecordAt(pos int64) (size uint32, data []byte, ok bool, err error) {
	hdr := make([]byte, recordHeaderLen)
	n, rerr := l.f.ReadAt(hdr, pos)
	if n < recordHeaderLen {
		if rerr == io.EOF || rerr == io.ErrUnexpectedEOF || rerr == nil {
			return 0, nil, false, nil
		}
		return 0, nil, false, rerr
	}

	size = binary.BigEndian.Uint32(hdr[0:4])
	checksum := binary.BigEndian.Uint32(hdr[4:8])

	body := make([]byte, size)
	n, rerr = l.f.ReadAt(body, pos+int64(recordHeaderLen))
	if uint32(n) < size {
		return 0, nil, false, nil
	}
	if rerr != nil && rerr != io.EOF {
		return 0, nil, false, rerr
	}

	if foldBytes(0, body) != checksum {
		return 0, nil, false, nil
	}
	return size, body, true, nil
}

// Append writes one record and fsyncs the running xChecksum.
func (l *Logger) Append(data []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	checksum := foldBytes(0, data)
	hdr := make([]byte, recordHeaderLen)
	binary.BigEndian.PutUint32(hdr[0:4], uint32(len(data)))
	binary.BigEndian.PutUint32(hdr[4:8], checksum)

	fi, err := l.f.Stat()
	if err != nil {
		return dberr.Wrap(dberr.KindBadLogFile, "stat wal", err)
	}
	pos := fi.Size()

	if _, err := l.f.WriteAt(append(hdr, data...), pos); err != nil {
		return dberr.Wrap(dberr.KindBadLogFile, "append wal record", err)
	}

	l.xChecksum = fold2(l.xChecksum, data)
	if err := l.writeXChecksum(l.xChecksum); err != nil {
		return dberr.Wrap(dberr.KindBadLogFile, "sync wal xchecksum", err)
	}
	return nil
}

func fold2(checksum uint32, data []byte) uint32 { return foldBytes(checksum, data) }

// Rewind positions the scan cursor at the first record (offset 4).
func (l *Logger) Rewind() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.scanPos = xChecksumLen
}

// Next returns the next record's raw bytes during a forward scan, or
// ok=false at end of log (including when a trailing record fails its
// checksum — that is treated as end-of-log, not an error, since
// verifyAndTruncateTail already removed genuinely bad tails at open).
func (l *Logger) Next() (data []byte, ok bool, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	size, data, ok, err := l.readRecordAt(l.scanPos)
	if err != nil || !ok {
		return nil, false, err
	}
	l.scanPos += int64(recordHeaderLen) + int64(size)
	return data, true, nil
}

// Close flushes and closes the WAL file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Close()
}
