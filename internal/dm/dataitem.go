package dm

import (
	"encoding/binary"
	"sync"

	"github.com/jyafoo/godb/internal/pcache"
)

// DataItem header layout: [valid:1][size:2][data:size].
const (
	diValidOffset = 0
	diSizeOffset  = 1
	diDataOffset  = 3
	diHeaderLen   = diDataOffset
)

// validLive / validTombstoned are the two states of a DataItem's valid byte.
const (
	validLive       byte = 0
	validTombstoned byte = 1
)

// wrapDataItem builds the on-page [valid=0][size][data] representation.
func wrapDataItem(data []byte) []byte {
	buf := make([]byte, diHeaderLen+len(data))
	buf[diValidOffset] = validLive
	binary.BigEndian.PutUint16(buf[diSizeOffset:diDataOffset], uint16(len(data)))
	copy(buf[diDataOffset:], data)
	return buf
}

// UID packs a page number and in-page offset into a single identifier:
// UID = (pgno<<32) | offset.
func UID(pgno uint64, offset uint16) uint64 {
	return (pgno << 32) | uint64(offset)
}

// ParseUID unpacks a UID back into its page number and offset.
func ParseUID(uid uint64) (pgno uint64, offset uint16) {
	return uid >> 32, uint16(uid & 0xFFFF)
}

// DataItem is a live handle onto one record inside a page. Its raw
// byte view shares backing storage with the owning Page so in-place
// mutation (Before/After/UnBefore) is visible to write-back.
type DataItem struct {
	uid  uint64
	pgno uint64
	off  uint16

	page *pcache.Page
	raw  []byte // [valid][size][data], a sub-slice of page.Data
	dm   *DM

	mu     sync.RWMutex
	oldRaw []byte
}

func newDataItem(uid uint64, page *pcache.Page, dm *DM) *DataItem {
	pgno, off := ParseUID(uid)
	size := binary.BigEndian.Uint16(page.Data[int(off)+diSizeOffset : int(off)+diDataOffset])
	end := int(off) + diHeaderLen + int(size)
	return &DataItem{
		uid:  uid,
		pgno: pgno,
		off:  off,
		page: page,
		raw:  page.Data[off:end],
		dm:   dm,
	}
}

// UID returns the item's identifier.
func (d *DataItem) UID() uint64 { return d.uid }

// IsValid reports whether the item is live (not tombstoned).
func (d *DataItem) IsValid() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.raw[diValidOffset] == validLive
}

// Data returns a copy of the item's payload (excluding the header).
// Callers must hold at least a read lock via RLock/RUnlock if they
// need a consistent read against concurrent writers; Data itself
// takes the lock internally for a point-in-time copy.
func (d *DataItem) Data() []byte {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]byte, len(d.raw)-diHeaderLen)
	copy(out, d.raw[diHeaderLen:])
	return out
}

// RLock/RUnlock expose the item's read lock for callers composing
// multiple reads that must observe a single consistent snapshot.
func (d *DataItem) RLock()   { d.mu.RLock() }
func (d *DataItem) RUnlock() { d.mu.RUnlock() }

// RawPayload returns the item's live payload bytes (excluding the
// DataItem header), without copying. Callers must already hold RLock
// or be inside a Before/After bracket; it exists so higher layers
// (e.g. vm.Entry) can read or mutate fields inside their own payload
// layout in place instead of paying for a copy on every access.
func (d *DataItem) RawPayload() []byte { return d.raw[diHeaderLen:] }

// Before begins an in-place mutation: write-locks the item, marks the
// owning page dirty, and snapshots the current raw bytes so UnBefore
// can restore them.
func (d *DataItem) Before() {
	d.mu.Lock()
	d.page.SetDirty(true)
	d.oldRaw = append([]byte(nil), d.raw...)
}

// UnBefore restores the pre-mutation bytes and releases the write lock.
// Used when a mutator decides not to commit its change to the log.
func (d *DataItem) UnBefore() {
	copy(d.raw, d.oldRaw)
	d.oldRaw = nil
	d.mu.Unlock()
}

// After logs the update (old/new raw) and releases the write lock.
// Must be called after the in-place edit and paired with a prior Before.
func (d *DataItem) After(xid uint64) error {
	newRaw := append([]byte(nil), d.raw...)
	oldRaw := d.oldRaw
	d.oldRaw = nil
	err := d.dm.logUpdate(xid, d.uid, oldRaw, newRaw)
	d.mu.Unlock()
	return err
}

// SetValid sets the tombstone byte directly, bypassing the normal
// Before/After update-logging protocol: no WAL record is written for
// the change.
func (d *DataItem) SetValid(valid bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if valid {
		d.raw[diValidOffset] = validLive
	} else {
		d.raw[diValidOffset] = validTombstoned
	}
	d.page.SetDirty(true)
}
