package repostore

import "sync"

// lockTable hands out one mutex per repo id. Entries are reference
// counted and dropped when the last holder releases, so the table does
// not grow with the repo count.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*repoLock
}

type repoLock struct {
	mu   sync.Mutex
	refs int
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[string]*repoLock)}
}

func (t *lockTable) lock(id string) func() {
	t.mu.Lock()
	l, ok := t.locks[id]
	if !ok {
		l = &repoLock{}
		t.locks[id] = l
	}
	l.refs++
	t.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		t.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(t.locks, id)
		}
		t.mu.Unlock()
	}
}
