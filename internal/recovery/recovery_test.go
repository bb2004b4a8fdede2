package recovery_test

import (
	"encoding/binary"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jyafoo/godb/internal/dm"
	"github.com/jyafoo/godb/internal/pcache"
	"github.com/jyafoo/godb/internal/recovery"
	"github.com/jyafoo/godb/internal/tm"
	"github.com/jyafoo/godb/internal/wal"
)

// encodeInsertLog mirrors dm's unexported wire format, since the test
// lives outside the dm package and must build raw log bytes by hand.
func encodeInsertLog(xid uint64, pgno uint64, offset uint16, raw []byte) []byte {
	buf := make([]byte, 1+8+4+2+len(raw))
	buf[0] = dm.LogTypeInsert
	binary.BigEndian.PutUint64(buf[1:9], xid)
	binary.BigEndian.PutUint32(buf[9:13], uint32(pgno))
	binary.BigEndian.PutUint16(buf[13:15], offset)
	copy(buf[15:], raw)
	return buf
}

func encodeUpdateLog(xid uint64, uid uint64, oldRaw, newRaw []byte) []byte {
	buf := make([]byte, 1+8+8+len(oldRaw)+len(newRaw))
	buf[0] = dm.LogTypeUpdate
	binary.BigEndian.PutUint64(buf[1:9], xid)
	binary.BigEndian.PutUint64(buf[9:17], uid)
	copy(buf[17:17+len(oldRaw)], oldRaw)
	copy(buf[17+len(oldRaw):], newRaw)
	return buf
}

func wrapItem(payload byte, n int) []byte {
	raw := make([]byte, 3+n)
	raw[0] = 0 // live
	binary.BigEndian.PutUint16(raw[1:3], uint16(n))
	for i := 0; i < n; i++ {
		raw[3+i] = payload
	}
	return raw
}

func TestRunRedoesCommittedAndUndoesActive(t *testing.T) {
	dir := t.TempDir()

	pc, err := pcache.Open(filepath.Join(dir, "db.data"), 50, nil)
	require.NoError(t, err)
	require.NoError(t, dm.InitFirstPages(pc))

	pgno, err := pc.NewPage(pcache.InitOrdinaryPage())
	require.NoError(t, err)
	require.EqualValues(t, 2, pgno)

	tmgr, err := tm.Open(filepath.Join(dir, "db.xid"), nil)
	require.NoError(t, err)

	committedXID, err := tmgr.Begin()
	require.NoError(t, err)
	activeXID, err := tmgr.Begin()
	require.NoError(t, err)
	require.NoError(t, tmgr.Commit(committedXID))
	// activeXID stays active, simulating a crash mid-transaction.

	lg, err := wal.Create(filepath.Join(dir, "db.log"), nil)
	require.NoError(t, err)

	committedRaw := wrapItem(0xAA, 4)
	require.NoError(t, lg.Append(encodeInsertLog(committedXID, pgno, 2, committedRaw)))

	activeInsertRaw := wrapItem(0xBB, 4)
	require.NoError(t, lg.Append(encodeInsertLog(activeXID, pgno, 200, activeInsertRaw)))

	uid := dm.UID(pgno, 2)
	oldRaw := wrapItem(0x00, 4)
	newRaw := wrapItem(0xCC, 4)
	require.NoError(t, lg.Append(encodeUpdateLog(activeXID, uid, oldRaw, newRaw)))

	require.NoError(t, recovery.Run(pc, lg, tmgr, nil))

	require.True(t, tmgr.IsCommitted(committedXID))
	require.True(t, tmgr.IsAborted(activeXID))

	page, err := pc.GetPage(pgno)
	require.NoError(t, err)
	require.Equal(t, oldRaw, page.Data[2:2+len(oldRaw)], "active xid's update must be undone back to oldRaw")
	require.Equal(t, byte(1), page.Data[200], "active xid's insert must be tombstoned by undo")
	pc.Release(pgno)

	require.NoError(t, lg.Close())
	require.NoError(t, tmgr.Close())
	require.NoError(t, pc.Close())
}

func TestRunWithEmptyLogIsNoop(t *testing.T) {
	dir := t.TempDir()

	pc, err := pcache.Open(filepath.Join(dir, "db.data"), 50, nil)
	require.NoError(t, err)
	require.NoError(t, dm.InitFirstPages(pc))

	tmgr, err := tm.Open(filepath.Join(dir, "db.xid"), nil)
	require.NoError(t, err)
	lg, err := wal.Create(filepath.Join(dir, "db.log"), nil)
	require.NoError(t, err)

	require.NoError(t, recovery.Run(pc, lg, tmgr, nil))
	require.EqualValues(t, 1, pc.NoPages())

	require.NoError(t, lg.Close())
	require.NoError(t, tmgr.Close())
	require.NoError(t, pc.Close())
}
