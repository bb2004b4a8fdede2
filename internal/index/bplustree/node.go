// Package bplustree implements the copy-on-split B+ tree index
// (spec.md §4.11): fixed-size nodes, each living in exactly one
// DataItem, mapping a 64-bit key to a 64-bit UID. All mutations run
// under the super XID so they never interact with user-visible MVCC
// visibility; DataItem's before/after protocol gives each node update
// atomicity and WAL durability.
package bplustree

import (
	"encoding/binary"
	"math"

	"github.com/jyafoo/godb/internal/dm"
	"github.com/jyafoo/godb/internal/tm"
)

// Node layout: [isLeaf:1][noKeys:2][sibling:8][son0][key0][son1][key1]...
const (
	ofIsLeaf  = 0
	ofNoKeys  = ofIsLeaf + 1
	ofSibling = ofNoKeys + 2
	headerLen = ofSibling + 8

	entrySize = 16 // 8-byte son UID + 8-byte key

	// Balance is the B+ tree fan-out parameter: a node splits once its
	// key count reaches 2*Balance.
	Balance = 32

	nodeSize = headerLen + entrySize*(2*Balance+2)

	sentinelKey = int64(math.MaxInt64)
)

func setIsLeaf(raw []byte, leaf bool) {
	if leaf {
		raw[ofIsLeaf] = 1
	} else {
		raw[ofIsLeaf] = 0
	}
}

func getIsLeaf(raw []byte) bool { return raw[ofIsLeaf] == 1 }

func setNoKeys(raw []byte, n int) {
	binary.BigEndian.PutUint16(raw[ofNoKeys:ofNoKeys+2], uint16(n))
}

func getNoKeys(raw []byte) int {
	return int(binary.BigEndian.Uint16(raw[ofNoKeys : ofNoKeys+2]))
}

func setSibling(raw []byte, uid uint64) {
	binary.BigEndian.PutUint64(raw[ofSibling:ofSibling+8], uid)
}

func getSibling(raw []byte) uint64 {
	return binary.BigEndian.Uint64(raw[ofSibling : ofSibling+8])
}

func entryOffset(kth int) int {
	return headerLen + kth*entrySize
}

func setKthSon(raw []byte, uid uint64, kth int) {
	off := entryOffset(kth)
	binary.BigEndian.PutUint64(raw[off:off+8], uid)
}

func getKthSon(raw []byte, kth int) uint64 {
	off := entryOffset(kth)
	return binary.BigEndian.Uint64(raw[off : off+8])
}

func setKthKey(raw []byte, key int64, kth int) {
	off := entryOffset(kth) + 8
	binary.BigEndian.PutUint64(raw[off:off+8], uint64(key))
}

func getKthKey(raw []byte, kth int) int64 {
	off := entryOffset(kth) + 8
	return int64(binary.BigEndian.Uint64(raw[off : off+8]))
}

// newNilRootRaw builds an empty leaf root: no keys, no sibling.
func newNilRootRaw() []byte {
	raw := make([]byte, nodeSize)
	setIsLeaf(raw, true)
	setNoKeys(raw, 0)
	setSibling(raw, 0)
	return raw
}

// newRootRaw builds a fresh non-leaf root with two children: left
// under key, right under the sentinel max key.
func newRootRaw(left, right uint64, key int64) []byte {
	raw := make([]byte, nodeSize)
	setIsLeaf(raw, false)
	setNoKeys(raw, 2)
	setSibling(raw, 0)
	setKthSon(raw, left, 0)
	setKthKey(raw, key, 0)
	setKthSon(raw, right, 1)
	setKthKey(raw, sentinelKey, 1)
	return raw
}

// node is a live handle onto one on-disk B+ tree node.
type node struct {
	tree *Tree
	di   *dm.DataItem
	uid  uint64
}

func loadNode(t *Tree, uid uint64) (*node, error) {
	di, err := t.dm.Read(uid)
	if err != nil {
		return nil, err
	}
	return &node{tree: t, di: di, uid: uid}, nil
}

func (n *node) release() {
	n.tree.dm.ReleaseItem(n.di)
}

func (n *node) isLeaf() bool {
	n.di.RLock()
	defer n.di.RUnlock()
	return getIsLeaf(n.di.RawPayload())
}

type searchNextResult struct {
	uid        uint64
	siblingUid uint64
}

// searchNext finds the son UID to descend into for key, or 0 (with
// the node's sibling) if key is beyond every entry here — the caller
// must then retry against the sibling, a safety net against a
// concurrent split during descent.
func (n *node) searchNext(key int64) searchNextResult {
	n.di.RLock()
	defer n.di.RUnlock()
	raw := n.di.RawPayload()

	noKeys := getNoKeys(raw)
	for i := 0; i < noKeys; i++ {
		if key < getKthKey(raw, i) {
			return searchNextResult{uid: getKthSon(raw, i), siblingUid: getSibling(raw)}
		}
	}
	return searchNextResult{uid: 0, siblingUid: getSibling(raw)}
}

type leafSearchRangeResult struct {
	uids       []uint64
	siblingUid uint64
}

// leafSearchRange collects the UIDs of every entry in [lo, hi] in this
// leaf. If the scan runs off the end of the node's keys, siblingUid is
// set so the caller continues into the next leaf.
func (n *node) leafSearchRange(lo, hi int64) leafSearchRangeResult {
	n.di.RLock()
	defer n.di.RUnlock()
	raw := n.di.RawPayload()

	noKeys := getNoKeys(raw)
	kth := 0
	for kth < noKeys && getKthKey(raw, kth) < lo {
		kth++
	}

	var uids []uint64
	for kth < noKeys {
		if getKthKey(raw, kth) > hi {
			break
		}
		uids = append(uids, getKthSon(raw, kth))
		kth++
	}

	var siblingUid uint64
	if kth == noKeys {
		siblingUid = getSibling(raw)
	}
	return leafSearchRangeResult{uids: uids, siblingUid: siblingUid}
}

type insertAndSplitResult struct {
	siblingUid uint64 // non-zero: insertion deferred to this sibling, retry there
	newSon     uint64 // non-zero: this node split, propagate (newSon, newKey) upward
	newKey     int64
}

// insertAndSplit inserts (uid, key) into this node under the
// before/after protocol, splitting if the node is now full.
func (n *node) insertAndSplit(uid uint64, key int64) (insertAndSplitResult, error) {
	n.di.Before()

	ok := n.insert(uid, key)
	if !ok {
		raw := n.di.RawPayload()
		res := insertAndSplitResult{siblingUid: getSibling(raw)}
		n.di.UnBefore()
		return res, nil
	}

	if !n.needSplit() {
		if err := n.di.After(tm.SuperXID); err != nil {
			return insertAndSplitResult{}, err
		}
		return insertAndSplitResult{}, nil
	}

	newSon, newKey, err := n.split()
	if err != nil {
		n.di.UnBefore()
		return insertAndSplitResult{}, err
	}
	if err := n.di.After(tm.SuperXID); err != nil {
		return insertAndSplitResult{}, err
	}
	return insertAndSplitResult{newSon: newSon, newKey: newKey}, nil
}

func (n *node) needSplit() bool {
	return getNoKeys(n.di.RawPayload()) == 2*Balance
}

// insert places (uid, key) at its sorted position, shifting later
// entries right by one slot. Returns false if key belongs after every
// entry here and a right sibling exists, deferring the insert there.
func (n *node) insert(uid uint64, key int64) bool {
	raw := n.di.RawPayload()
	noKeys := getNoKeys(raw)

	kth := 0
	for kth < noKeys && getKthKey(raw, kth) < key {
		kth++
	}

	if kth == noKeys && getSibling(raw) != 0 {
		return false
	}

	if getIsLeaf(raw) {
		shiftRight(raw, kth)
		setKthKey(raw, key, kth)
		setKthSon(raw, uid, kth)
		setNoKeys(raw, noKeys+1)
	} else {
		// Non-leaf: the existing kth key becomes the separator after
		// the new son, so it moves right along with it.
		oldKey := getKthKey(raw, kth)
		setKthKey(raw, key, kth)
		shiftRight(raw, kth+1)
		setKthKey(raw, oldKey, kth+1)
		setKthSon(raw, uid, kth+1)
		setNoKeys(raw, noKeys+1)
	}
	return true
}

// shiftRight moves every entry from kth onward one slot to the right,
// opening up a gap at kth.
func shiftRight(raw []byte, kth int) {
	begin := entryOffset(kth)
	end := nodeSize - 1
	for i := end; i >= begin+entrySize; i-- {
		raw[i] = raw[i-entrySize]
	}
}

// split peels off the upper half of this node's entries into a new
// node, linking siblings so the original points at the new node and
// the new node inherits the original's old sibling.
func (n *node) split() (newSon uint64, newKey int64, err error) {
	raw := n.di.RawPayload()

	newRaw := make([]byte, nodeSize)
	setIsLeaf(newRaw, getIsLeaf(raw))
	setNoKeys(newRaw, Balance)
	setSibling(newRaw, getSibling(raw))
	copyFromKth(raw, newRaw, Balance)

	son, err := n.tree.dm.Insert(tm.SuperXID, newRaw)
	if err != nil {
		return 0, 0, err
	}

	setNoKeys(raw, Balance)
	setSibling(raw, son)

	return son, getKthKey(newRaw, 0), nil
}

func copyFromKth(from, to []byte, kth int) {
	off := entryOffset(kth)
	copy(to[headerLen:], from[off:])
}
