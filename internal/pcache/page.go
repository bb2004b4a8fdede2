// Package pcache implements the fixed-size page cache (spec.md §4.3)
// and the two page formats layered on top of it: page one's validity
// marker (§4.3, §8) and the ordinary append-only page (§4.3, §4.6).
package pcache

import (
	"sync"
)

// PageSize is the fixed page size for every page in the data file.
const PageSize = 8192

// Page is an in-memory handle to one on-disk page. Pages are owned by
// the Cache; callers obtain them through GetPage and must Release them.
type Page struct {
	No    uint64 // page number, >= 1
	Data  []byte // exactly PageSize bytes
	Dirty bool

	mu sync.Mutex
	pc *Cache
}

// Lock/Unlock serialize in-place mutation of the page's bytes (the
// "same page never held exclusively by two threads" invariant).
func (p *Page) Lock()   { p.mu.Lock() }
func (p *Page) Unlock() { p.mu.Unlock() }

// SetDirty marks the page for write-back at eviction.
func (p *Page) SetDirty(dirty bool) {
	p.mu.Lock()
	p.Dirty = dirty
	p.mu.Unlock()
}

func newPage(no uint64, data []byte, pc *Cache) *Page {
	return &Page{No: no, Data: data, pc: pc}
}

// --- Ordinary page format: [FSO:2][payload...] ---

const ordinaryPageHeaderSize = 2

// InitOrdinaryPage returns a fresh PageSize-byte buffer for a new
// ordinary page: free-space offset set to just past the header.
func InitOrdinaryPage() []byte {
	buf := make([]byte, PageSize)
	setFSO(buf, ordinaryPageHeaderSize)
	return buf
}

func getFSO(data []byte) uint16 {
	return beUint16(data[0:2])
}

func setFSO(data []byte, fso uint16) {
	putBeUint16(data[0:2], fso)
}

// FreeSpace returns the number of bytes still available for insertion.
func (p *Page) FreeSpace() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PageSize - int(getFSO(p.Data))
}

// InsertOrdinary appends raw into the page's free space and advances
// the free-space offset. Returns the byte offset raw was written at.
// Caller must have verified FreeSpace() >= len(raw).
func (p *Page) InsertOrdinary(raw []byte) uint16 {
	p.mu.Lock()
	defer p.mu.Unlock()
	offset := getFSO(p.Data)
	copy(p.Data[offset:], raw)
	setFSO(p.Data, offset+uint16(len(raw)))
	p.Dirty = true
	return offset
}

// RecoverInsert rewrites raw at a fixed offset during redo/undo
// recovery, raising the free-space offset only if this insert extends
// past the page's current high-water mark.
func (p *Page) RecoverInsert(offset uint16, raw []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	copy(p.Data[offset:], raw)
	end := offset + uint16(len(raw))
	if end > getFSO(p.Data) {
		setFSO(p.Data, end)
	}
	p.Dirty = true
}

// RecoverUpdate overwrites raw at a fixed offset in place, without
// touching the free-space offset (the slot already existed).
func (p *Page) RecoverUpdate(offset uint16, raw []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	copy(p.Data[offset:], raw)
	p.Dirty = true
}

func beUint16(b []byte) uint16 { return uint16(b[0])<<8 | uint16(b[1]) }
func putBeUint16(b []byte, v uint16) {
	b[0] = byte(v >> 8)
	b[1] = byte(v)
}
