package driver

import "sync"

// HandleTable maps handles to the runtime's representation of a resource.
// It is safe for concurrent use. The zero value is ready to use.
//
// Handles are never reused by the same table, so a stale handle can't accidentally refer to a newer resource.
type HandleTable[T any] struct {
	mu      sync.Mutex
	last    Handle
	entries map[Handle]T
}

// Insert value in the table and returns its new handle.
func (t *HandleTable[T]) Insert(value T) Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.entries == nil {
		t.entries = make(map[Handle]T)
	}
	t.last++
	t.entries[t.last] = value
	return t.last
}

// Get returns the value for handle, and whether it was found.
func (t *HandleTable[T]) Get(handle Handle) (value T, found bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	value, found = t.entries[handle]
	return
}

// Remove the handle from the table, returning its value and whether it was found.
func (t *HandleTable[T]) Remove(handle Handle) (value T, found bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	value, found = t.entries[handle]
	if found {
		delete(t.entries, handle)
	}
	return
}

// Len returns the number of handles currently in the table.
func (t *HandleTable[T]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Each calls fn for every entry of the table, in no particular order. The table is locked during the call,
// so fn must not call back into it.
func (t *HandleTable[T]) Each(fn func(handle Handle, value T)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for h, v := range t.entries {
		fn(h, v)
	}
}
