package bplustree

import (
	"encoding/binary"
	"sync"

	"github.com/jyafoo/godb/internal/dm"
	"github.com/jyafoo/godb/internal/tm"
)

// Tree is a handle onto an on-disk B+ tree. Because insert/split may
// replace the root, the root UID itself is not fixed: it is stored in
// a boot DataItem, and bootLock serializes updates to it.
type Tree struct {
	dm *dm.DM

	bootUID  uint64
	bootItem *dm.DataItem
	bootLock sync.Mutex
}

// Create allocates a fresh empty tree: an empty leaf root, plus a boot
// item holding that root's UID. It returns the boot UID, which the
// caller (the catalog, persisting it on a Field) must hang onto to
// reload the tree later via Load.
func Create(dmgr *dm.DM) (uint64, error) {
	rootRaw := newNilRootRaw()
	rootUID, err := dmgr.Insert(tm.SuperXID, rootRaw)
	if err != nil {
		return 0, err
	}

	bootRaw := make([]byte, 8)
	binary.BigEndian.PutUint64(bootRaw, rootUID)
	return dmgr.Insert(tm.SuperXID, bootRaw)
}

// Load reopens a tree from its boot UID.
func Load(bootUID uint64, dmgr *dm.DM) (*Tree, error) {
	bootItem, err := dmgr.Read(bootUID)
	if err != nil {
		return nil, err
	}
	return &Tree{dm: dmgr, bootUID: bootUID, bootItem: bootItem}, nil
}

func (t *Tree) rootUID() uint64 {
	t.bootLock.Lock()
	defer t.bootLock.Unlock()
	t.bootItem.RLock()
	defer t.bootItem.RUnlock()
	return binary.BigEndian.Uint64(t.bootItem.RawPayload()[:8])
}

func (t *Tree) updateRootUID(left, right uint64, rightKey int64) error {
	t.bootLock.Lock()
	defer t.bootLock.Unlock()

	rootRaw := newRootRaw(left, right, rightKey)
	newRootUID, err := t.dm.Insert(tm.SuperXID, rootRaw)
	if err != nil {
		return err
	}

	t.bootItem.Before()
	binary.BigEndian.PutUint64(t.bootItem.RawPayload()[:8], newRootUID)
	return t.bootItem.After(tm.SuperXID)
}

// searchLeaf descends from nodeUID to the leaf that would contain key.
func (t *Tree) searchLeaf(nodeUID uint64, key int64) (uint64, error) {
	n, err := loadNode(t, nodeUID)
	if err != nil {
		return 0, err
	}
	isLeaf := n.isLeaf()
	n.release()

	if isLeaf {
		return nodeUID, nil
	}
	next, err := t.searchNext(nodeUID, key)
	if err != nil {
		return 0, err
	}
	return t.searchLeaf(next, key)
}

// searchNext finds the son of nodeUID to descend into for key,
// walking right siblings until one is found.
func (t *Tree) searchNext(nodeUID uint64, key int64) (uint64, error) {
	for {
		n, err := loadNode(t, nodeUID)
		if err != nil {
			return 0, err
		}
		res := n.searchNext(key)
		n.release()

		if res.uid != 0 {
			return res.uid, nil
		}
		nodeUID = res.siblingUid
	}
}

// Search returns the UIDs stored under key.
func (t *Tree) Search(key int64) ([]uint64, error) {
	return t.SearchRange(key, key)
}

// SearchRange returns the UIDs of every entry whose key falls in
// [lo, hi], walking leaf sibling pointers as needed.
func (t *Tree) SearchRange(lo, hi int64) ([]uint64, error) {
	rootUID := t.rootUID()
	leafUID, err := t.searchLeaf(rootUID, lo)
	if err != nil {
		return nil, err
	}

	var uids []uint64
	for {
		n, err := loadNode(t, leafUID)
		if err != nil {
			return nil, err
		}
		res := n.leafSearchRange(lo, hi)
		n.release()

		uids = append(uids, res.uids...)
		if res.siblingUid == 0 {
			break
		}
		leafUID = res.siblingUid
	}
	return uids, nil
}

// insertResult mirrors insertAndSplitResult but for the recursive,
// caller-facing insert: newNode is non-zero only when nodeUID's
// subtree split and the parent must absorb (newNode, newKey).
type insertResult struct {
	newNode uint64
	newKey  int64
}

// Insert adds a (key, uid) mapping to the tree, propagating and
// resolving any node splits up to (and possibly past) the root.
func (t *Tree) Insert(key int64, uid uint64) error {
	rootUID := t.rootUID()
	res, err := t.insert(rootUID, uid, key)
	if err != nil {
		return err
	}
	if res.newNode != 0 {
		return t.updateRootUID(rootUID, res.newNode, res.newKey)
	}
	return nil
}

func (t *Tree) insert(nodeUID, uid uint64, key int64) (insertResult, error) {
	n, err := loadNode(t, nodeUID)
	if err != nil {
		return insertResult{}, err
	}
	isLeaf := n.isLeaf()
	n.release()

	if isLeaf {
		return t.insertAndSplit(nodeUID, uid, key)
	}

	next, err := t.searchNext(nodeUID, key)
	if err != nil {
		return insertResult{}, err
	}
	child, err := t.insert(next, uid, key)
	if err != nil {
		return insertResult{}, err
	}
	if child.newNode == 0 {
		return insertResult{}, nil
	}
	return t.insertAndSplit(nodeUID, child.newNode, child.newKey)
}

// insertAndSplit inserts (uid, key) into nodeUID, following right
// siblings when the node defers the insert (a concurrent split moved
// the target range there), and returns any split that propagates up.
func (t *Tree) insertAndSplit(nodeUID, uid uint64, key int64) (insertResult, error) {
	for {
		n, err := loadNode(t, nodeUID)
		if err != nil {
			return insertResult{}, err
		}
		res, err := n.insertAndSplit(uid, key)
		n.release()
		if err != nil {
			return insertResult{}, err
		}

		if res.siblingUid != 0 {
			nodeUID = res.siblingUid
			continue
		}
		return insertResult{newNode: res.newSon, newKey: res.newKey}, nil
	}
}

// Close releases the boot item.
func (t *Tree) Close() {
	t.dm.ReleaseItem(t.bootItem)
}
