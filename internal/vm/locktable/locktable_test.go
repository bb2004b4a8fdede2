package locktable_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jyafoo/godb/internal/dberr"
	"github.com/jyafoo/godb/internal/vm/locktable"
)

func TestAddGrantsFreeResourceImmediately(t *testing.T) {
	lt := locktable.New()
	ch, err := lt.Add(1, 100)
	require.NoError(t, err)
	require.Nil(t, ch)
}

func TestAddIsIdempotentForSameHolder(t *testing.T) {
	lt := locktable.New()
	_, err := lt.Add(1, 100)
	require.NoError(t, err)
	ch, err := lt.Add(1, 100)
	require.NoError(t, err)
	require.Nil(t, ch)
}

func TestSecondXIDWaitsThenWakesOnRemove(t *testing.T) {
	lt := locktable.New()
	_, err := lt.Add(1, 100)
	require.NoError(t, err)

	ch, err := lt.Add(2, 100)
	require.NoError(t, err)
	require.NotNil(t, ch)

	select {
	case <-ch:
		t.Fatal("waiter latch closed before the holder released the resource")
	case <-time.After(20 * time.Millisecond):
	}

	lt.Remove(1)

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("waiter latch never closed after holder released")
	}

	// xid 2 is now the holder; releasing it must not panic.
	lt.Remove(2)
}

func TestWaitersServedFIFO(t *testing.T) {
	lt := locktable.New()
	_, err := lt.Add(1, 100)
	require.NoError(t, err)

	ch2, err := lt.Add(2, 100)
	require.NoError(t, err)
	ch3, err := lt.Add(3, 100)
	require.NoError(t, err)

	lt.Remove(1)

	select {
	case <-ch2:
	case <-time.After(time.Second):
		t.Fatal("xid 2 (first waiter) was not woken first")
	}
	select {
	case <-ch3:
		t.Fatal("xid 3 (second waiter) was woken before xid 2 released")
	case <-time.After(20 * time.Millisecond):
	}

	lt.Remove(2)
	select {
	case <-ch3:
	case <-time.After(time.Second):
		t.Fatal("xid 3 was never woken after xid 2 released")
	}
	lt.Remove(3)
}

func TestAddDetectsDeadlockCycle(t *testing.T) {
	lt := locktable.New()

	_, err := lt.Add(1, 100) // xid1 holds uid100
	require.NoError(t, err)
	_, err = lt.Add(2, 200) // xid2 holds uid200
	require.NoError(t, err)

	ch, err := lt.Add(1, 200) // xid1 waits on uid200 (held by xid2)
	require.NoError(t, err)
	require.NotNil(t, ch)

	_, err = lt.Add(2, 100) // xid2 waits on uid100 (held by xid1) -> cycle
	require.ErrorIs(t, err, dberr.ErrDeadlock)

	// the rejected edge (xid2 waiting on uid100) must not have been
	// committed: xid1's own wait on uid200 must still resolve normally
	// once xid2 releases it.
	lt.Remove(2)
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("xid1's wait on uid200 should still resolve once xid2 releases it")
	}
	lt.Remove(1)
}
