package workspace

import (
	"sync"

	"github.com/KUMARAN-07/Academic-Collab/pkg/state"
)

// keyedLocks serializes load-mutate-persist sequences per task workspace so
// two connections mutating the same task cannot lose each other's writes.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[state.RoomKey]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[state.RoomKey]*entry)}
}

// lock acquires the lock for a key and returns its unlock function.
func (k *keyedLocks) lock(key state.RoomKey) func() {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &entry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
