// Package engine implements the order lifecycle state machine: the
// per-order serialization, transition validation, and effect dispatch that
// coordinate counterparties, the Lightning gateway, and the Nostr gateway.
package engine

import "sync"

// orderLocks is a sharded map of order_id -> mutex, acquired for the
// duration of a single state transition and evicted once the order reaches
// a terminal status. This bounds memory to the number of currently-active
// orders rather than growing forever, and lets transitions on different
// orders run fully in parallel while transitions on the same order
// serialize.
type orderLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newOrderLocks() *orderLocks {
	return &orderLocks{locks: make(map[string]*sync.Mutex)}
}

// acquire returns the mutex for orderID, creating it on first use, and
// locks it. The caller must call release when done.
func (l *orderLocks) acquire(orderID string) *sync.Mutex {
	l.mu.Lock()
	m, ok := l.locks[orderID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[orderID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m
}

// release unlocks m. Evicting the map entry is a separate step (evict)
// since the lock must be released before the entry guarding it can be
// safely removed.
func (l *orderLocks) release(m *sync.Mutex) {
	m.Unlock()
}

// evict removes orderID's lock entry from the map. Call only after the
// order has reached a terminal status and its lock is not held — a
// concurrent acquire racing the evict simply recreates the entry, which is
// harmless since the removed mutex was unlocked.
func (l *orderLocks) evict(orderID string) {
	l.mu.Lock()
	delete(l.locks, orderID)
	l.mu.Unlock()
}

// size reports the number of tracked order locks, used by tests to
// confirm eviction is working.
func (l *orderLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

// withOrderLock runs fn while holding orderID's lock, evicting the lock
// afterward if evictAfter is true (the transition reached a terminal
// status).
func (l *orderLocks) withOrderLock(orderID string, evictAfter bool, fn func() error) error {
	m := l.acquire(orderID)
	defer l.release(m)

	err := fn()
	if evictAfter {
		l.evict(orderID)
	}
	return err
}
