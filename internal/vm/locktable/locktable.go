// Package locktable implements the deadlock-detecting lock table
// (spec.md §4.10): per-XID resource ownership, per-UID FIFO waiter
// queues, and a wait-for graph checked by mark-sweep DFS on every new
// edge.
package locktable

import (
	"sync"

	"github.com/jyafoo/godb/internal/dberr"
)

// Table tracks, for every UID, which XID currently holds it and which
// XIDs are waiting for it, and the wait-for graph this induces.
type Table struct {
	mu sync.Mutex

	held      map[uint64][]uint64      // xid -> uids it holds
	holder    map[uint64]uint64        // uid -> xid holding it
	waiters   map[uint64][]uint64      // uid -> FIFO queue of waiting xids
	waitLatch map[uint64]chan struct{} // xid -> one-shot latch it is blocked on
	waitedOn  map[uint64]uint64        // xid -> uid it is waiting for
}

// New builds an empty lock table.
func New() *Table {
	return &Table{
		held:      make(map[uint64][]uint64),
		holder:    make(map[uint64]uint64),
		waiters:   make(map[uint64][]uint64),
		waitLatch: make(map[uint64]chan struct{}),
		waitedOn:  make(map[uint64]uint64),
	}
}

// Add records that xid wants uid.
//
//   - If xid already holds uid, returns (nil, nil): no wait needed.
//   - If uid is free, xid becomes its holder immediately: (nil, nil).
//   - Otherwise xid is enqueued as a FIFO waiter and a cycle check runs
//     over the wait-for graph. A cycle rolls the new edge back and
//     returns dberr.ErrDeadlock. No cycle returns a channel the caller
//     must receive from (it is closed when xid becomes the holder).
func (t *Table) Add(xid, uid uint64) (<-chan struct{}, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if containsUID(t.held[xid], uid) {
		return nil, nil
	}

	if _, busy := t.holder[uid]; !busy {
		t.holder[uid] = xid
		t.held[xid] = append(t.held[xid], uid)
		return nil, nil
	}

	t.waitedOn[xid] = uid
	t.waiters[uid] = append(t.waiters[uid], xid)

	if t.hasCycle() {
		t.removeWaiter(uid, xid)
		delete(t.waitedOn, xid)
		return nil, dberr.ErrDeadlock
	}

	ch := make(chan struct{})
	t.waitLatch[xid] = ch
	return ch, nil
}

// Remove releases every UID xid holds, handing each off to the next
// eligible FIFO waiter, and clears all of xid's bookkeeping. Called
// when a transaction commits or aborts.
func (t *Table) Remove(xid uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, uid := range t.held[xid] {
		delete(t.holder, uid)
		t.selectNewHolder(uid)
	}
	delete(t.held, xid)
	delete(t.waitedOn, xid)
	delete(t.waitLatch, xid)
}

// selectNewHolder hands uid to the first waiter in its FIFO queue that
// still has a live wait latch, waking it by closing the latch.
func (t *Table) selectNewHolder(uid uint64) {
	queue := t.waiters[uid]
	for len(queue) > 0 {
		xid := queue[0]
		queue = queue[1:]
		ch, ok := t.waitLatch[xid]
		if !ok {
			continue
		}
		t.holder[uid] = xid
		t.held[xid] = append(t.held[xid], uid)
		delete(t.waitLatch, xid)
		delete(t.waitedOn, xid)
		close(ch)
		break
	}
	if len(queue) == 0 {
		delete(t.waiters, uid)
	} else {
		t.waiters[uid] = queue
	}
}

func (t *Table) removeWaiter(uid, xid uint64) {
	queue := t.waiters[uid]
	for i, x := range queue {
		if x == xid {
			queue = append(queue[:i], queue[i+1:]...)
			break
		}
	}
	if len(queue) == 0 {
		delete(t.waiters, uid)
	} else {
		t.waiters[uid] = queue
	}
}

// hasCycle runs a mark-sweep DFS from every XID currently holding a
// resource, following waitedOn then holder edges (xid -> uid -> xid).
// A node revisited within the same sweep is a cycle.
func (t *Table) hasCycle() bool {
	stamp := make(map[uint64]int)
	cur := 0
	for xid := range t.held {
		if stamp[xid] > 0 {
			continue
		}
		cur++
		if t.dfs(xid, stamp, cur) {
			return true
		}
	}
	return false
}

func (t *Table) dfs(xid uint64, stamp map[uint64]int, cur int) bool {
	if s := stamp[xid]; s != 0 {
		if s == cur {
			return true
		}
		return false
	}
	stamp[xid] = cur

	uid, waiting := t.waitedOn[xid]
	if !waiting {
		return false
	}
	holder, ok := t.holder[uid]
	if !ok {
		return false
	}
	return t.dfs(holder, stamp, cur)
}

func containsUID(list []uint64, uid uint64) bool {
	for _, u := range list {
		if u == uid {
			return true
		}
	}
	return false
}
