package vm

import (
	"encoding/binary"

	"github.com/jyafoo/godb/internal/dm"
)

// Entry layout on top of a DataItem's payload: [xmin:8][xmax:8][data].
const (
	ofXmin = 0
	ofXmax = 8
	ofData = 16
)

// wrapEntryRaw builds a fresh entry body for xid's insert: xmin=xid,
// xmax=0 (not yet deleted).
func wrapEntryRaw(xid uint64, data []byte) []byte {
	buf := make([]byte, ofData+len(data))
	binary.BigEndian.PutUint64(buf[ofXmin:ofXmax], xid)
	copy(buf[ofData:], data)
	return buf
}

// Entry is VM's view onto one versioned record: a DataItem whose
// payload carries the XMIN/XMAX MVCC header in front of the caller's
// data.
type Entry struct {
	uid uint64
	di  *dm.DataItem
	vm  *VM
}

func loadEntry(v *VM, uid uint64) (*Entry, error) {
	di, err := v.dm.Read(uid)
	if err != nil {
		return nil, err
	}
	if di == nil {
		return nil, nil
	}
	return &Entry{uid: uid, di: di, vm: v}, nil
}

// UID returns the entry's identifier.
func (e *Entry) UID() uint64 { return e.uid }

// Data returns a copy of the entry's payload, excluding the XMIN/XMAX header.
func (e *Entry) Data() []byte {
	e.di.RLock()
	defer e.di.RUnlock()
	payload := e.di.RawPayload()
	out := make([]byte, len(payload)-ofData)
	copy(out, payload[ofData:])
	return out
}

// Xmin returns the XID that created this version.
func (e *Entry) Xmin() uint64 {
	e.di.RLock()
	defer e.di.RUnlock()
	return binary.BigEndian.Uint64(e.di.RawPayload()[ofXmin:ofXmax])
}

// Xmax returns the XID that deleted this version, or 0 if it is live.
func (e *Entry) Xmax() uint64 {
	e.di.RLock()
	defer e.di.RUnlock()
	return binary.BigEndian.Uint64(e.di.RawPayload()[ofXmax:ofData])
}

// SetXmax records xid as the version's deleter, journaling the change
// through the DataItem's before/after protocol.
func (e *Entry) SetXmax(xid uint64) error {
	e.di.Before()
	binary.BigEndian.PutUint64(e.di.RawPayload()[ofXmax:ofData], xid)
	return e.di.After(xid)
}

// Release gives the entry back to VM's entry cache.
func (e *Entry) Release() {
	e.vm.releaseEntry(e)
}

func (e *Entry) remove() {
	e.vm.dm.ReleaseItem(e.di)
}
