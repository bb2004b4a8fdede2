package dm

import (
	"encoding/binary"
	"fmt"

	"github.com/jyafoo/godb/internal/dberr"
)

// Log record tags (spec.md §3: Insert log / Update log). Exported so
// the recovery package can bucket and replay records without a second
// copy of the wire format.
const (
	LogTypeInsert byte = 0
	LogTypeUpdate byte = 1
)

// InsertLogRecord: [type=0:1][xid:8][pgno:4][offset:2][raw:*]
type InsertLogRecord struct {
	XID    uint64
	Pgno   uint64
	Offset uint16
	Raw    []byte
}

func encodeInsertLog(xid uint64, pgno uint64, offset uint16, raw []byte) []byte {
	buf := make([]byte, 1+8+4+2+len(raw))
	buf[0] = LogTypeInsert
	binary.BigEndian.PutUint64(buf[1:9], xid)
	binary.BigEndian.PutUint32(buf[9:13], uint32(pgno))
	binary.BigEndian.PutUint16(buf[13:15], offset)
	copy(buf[15:], raw)
	return buf
}

// DecodeInsertLog decodes an insert log record body (the bytes after
// the WAL's own [size][checksum] framing).
func DecodeInsertLog(data []byte) (InsertLogRecord, error) {
	if len(data) < 15 {
		return InsertLogRecord{}, dberr.New(dberr.KindInvalidLogOp, "insert log record too short")
	}
	return InsertLogRecord{
		XID:    binary.BigEndian.Uint64(data[1:9]),
		Pgno:   uint64(binary.BigEndian.Uint32(data[9:13])),
		Offset: binary.BigEndian.Uint16(data[13:15]),
		Raw:    data[15:],
	}, nil
}

// UpdateLogRecord: [type=1:1][xid:8][uid:8][oldRaw:N][newRaw:N]
type UpdateLogRecord struct {
	XID    uint64
	UID    uint64
	OldRaw []byte
	NewRaw []byte
}

func encodeUpdateLog(xid uint64, uid uint64, oldRaw, newRaw []byte) []byte {
	buf := make([]byte, 1+8+8+len(oldRaw)+len(newRaw))
	buf[0] = LogTypeUpdate
	binary.BigEndian.PutUint64(buf[1:9], xid)
	binary.BigEndian.PutUint64(buf[9:17], uid)
	copy(buf[17:17+len(oldRaw)], oldRaw)
	copy(buf[17+len(oldRaw):], newRaw)
	return buf
}

// DecodeUpdateLog decodes an update log record body.
func DecodeUpdateLog(data []byte) (UpdateLogRecord, error) {
	if len(data) < 17 {
		return UpdateLogRecord{}, dberr.New(dberr.KindInvalidLogOp, "update log record too short")
	}
	n := (len(data) - 17) / 2
	if 17+2*n != len(data) {
		return UpdateLogRecord{}, dberr.New(dberr.KindInvalidLogOp, "update log record length not even")
	}
	return UpdateLogRecord{
		XID:    binary.BigEndian.Uint64(data[1:9]),
		UID:    binary.BigEndian.Uint64(data[9:17]),
		OldRaw: data[17 : 17+n],
		NewRaw: data[17+n : 17+2*n],
	}, nil
}

// LogRecordXID extracts the XID from either record shape without a
// full decode, used by recovery to bucket records per transaction.
func LogRecordXID(data []byte) (uint64, error) {
	if len(data) < 1 {
		return 0, dberr.New(dberr.KindInvalidLogOp, "empty log record")
	}
	switch data[0] {
	case LogTypeInsert:
		r, err := DecodeInsertLog(data)
		return r.XID, err
	case LogTypeUpdate:
		r, err := DecodeUpdateLog(data)
		return r.XID, err
	default:
		return 0, dberr.New(dberr.KindInvalidLogOp, fmt.Sprintf("unknown log record type %d", data[0]))
	}
}

// Exported DataItem header layout, used by recovery to tombstone a
// page slot directly when undoing an insert.
const (
	DIValidOffset = diValidOffset
	DIHeaderLen   = diHeaderLen
)

// ValidByte returns the valid/tombstoned marker byte to write.
func ValidByte(tombstoned bool) byte {
	if tombstoned {
		return validTombstoned
	}
	return validLive
}
