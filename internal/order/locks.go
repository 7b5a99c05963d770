package order

import "sync"

// orderLocks serializes transitions per order id. Entries are reference
// counted and removed once the last waiter releases, so the map stays
// bounded by the number of in-flight transitions.
type orderLocks struct {
	mu      sync.Mutex
	entries map[int64]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newOrderLocks() *orderLocks {
	return &orderLocks{entries: make(map[int64]*lockEntry)}
}

func (ol *orderLocks) acquire(orderID int64) *lockEntry {
	ol.mu.Lock()
	entry, ok := ol.entries[orderID]
	if !ok {
		entry = &lockEntry{}
		ol.entries[orderID] = entry
	}
	entry.refs++
	ol.mu.Unlock()

	entry.mu.Lock()
	return entry
}

func (ol *orderLocks) release(orderID int64, entry *lockEntry) {
	entry.mu.Unlock()

	ol.mu.Lock()
	entry.refs--
	if entry.refs == 0 {
		delete(ol.entries, orderID)
	}
	ol.mu.Unlock()
}
