package pcache

import "crypto/rand"

// Page one is reserved for the startup validity marker (spec.md §3,
// §4.3): 8 random bytes at offset 100 (written on every open) mirrored
// to offset 108 on clean close. The two windows compare equal iff the
// previous shutdown was clean.
const (
	openMarkerOffset  = 100
	closeMarkerOffset = 108
	markerLen         = 8
)

// NewPageOneData returns a fresh page-one buffer with a random open
// marker and a mismatching close marker, so a brand-new database
// starts in the "unclean" state until explicitly closed.
func NewPageOneData() []byte {
	buf := make([]byte, PageSize)
	stampOpenMarker(buf)
	return buf
}

func stampOpenMarker(data []byte) {
	b := make([]byte, markerLen)
	_, _ = rand.Read(b)
	copy(data[openMarkerOffset:openMarkerOffset+markerLen], b)
}

// StampOpen overwrites the open-marker window with fresh random bytes.
// Called every time the database is opened.
func (p *Page) StampOpen() {
	p.mu.Lock()
	defer p.mu.Unlock()
	stampOpenMarker(p.Data)
	p.Dirty = true
}

// StampClose copies the open marker into the close-marker window.
// Called only on a clean shutdown.
func (p *Page) StampClose() {
	p.mu.Lock()
	defer p.mu.Unlock()
	copy(p.Data[closeMarkerOffset:closeMarkerOffset+markerLen],
		p.Data[openMarkerOffset:openMarkerOffset+markerLen])
	p.Dirty = true
}

// CheckVC reports whether the open and close marker windows match,
// i.e. whether the previous shutdown was clean.
func (p *Page) CheckVC() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return checkVC(p.Data)
}

func checkVC(data []byte) bool {
	open := data[openMarkerOffset : openMarkerOffset+markerLen]
	closeB := data[closeMarkerOffset : closeMarkerOffset+markerLen]
	for i := range open {
		if open[i] != closeB[i] {
			return false
		}
	}
	return true
}
