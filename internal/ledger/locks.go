package ledger

import (
	"sort"
	"sync"
)

// lockTable hands out one mutex per wallet. Entries are reference counted so
// the table does not grow with every wallet ever touched.
type lockTable struct {
	mu    sync.Mutex
	locks map[uint]*walletLock
}

type walletLock struct {
	sync.Mutex
	refs int
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[uint]*walletLock)}
}

// acquire locks every wallet in ascending id order and returns the release func.
// ids must already be sorted and free of duplicates.
func (t *lockTable) acquire(ids []uint) func() {
	held := make([]*walletLock, 0, len(ids))
	for _, id := range ids {
		l := t.ref(id)
		l.Lock()
		held = append(held, l)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
			t.unref(ids[i])
		}
	}
}

func (t *lockTable) ref(id uint) *walletLock {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.locks[id]
	if !ok {
		l = &walletLock{}
		t.locks[id] = l
	}
	l.refs++
	return l
}

func (t *lockTable) unref(id uint) {
	t.mu.Lock()
	defer t.mu.Unlock()
	l := t.locks[id]
	l.refs--
	if l.refs == 0 {
		delete(t.locks, id)
	}
}

func (t *lockTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.locks)
}

// lockOrder dedupes ids and sorts them into the global acquisition order.
func lockOrder(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
