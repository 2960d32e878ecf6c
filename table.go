package hiz

import (
	"sync"
)

// ViewTable associates derived pyramid state with long-lived views.
//
// Entries are inserted when a view has a valid depth source in a frame and
// removed when it does not; presence of an entry is what tells the
// occlusion consumer that culling data exists. ViewTable is safe for
// concurrent use.
type ViewTable struct {
	mu      sync.RWMutex
	entries map[ViewID]*DepthPyramid
}

// NewViewTable returns an empty table.
func NewViewTable() *ViewTable {
	return &ViewTable{entries: make(map[ViewID]*DepthPyramid)}
}

// Insert stores p under its view, returning the entry it replaced, if any.
func (t *ViewTable) Insert(p *DepthPyramid) (old *DepthPyramid) {
	t.mu.Lock()
	defer t.mu.Unlock()
	old = t.entries[p.View]
	t.entries[p.View] = p
	return old
}

// Remove deletes the entry for id and returns it.
func (t *ViewTable) Remove(id ViewID) (*DepthPyramid, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.entries[id]
	if ok {
		delete(t.entries, id)
	}
	return p, ok
}

// Get returns the entry for id.
func (t *ViewTable) Get(id ViewID) (*DepthPyramid, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.entries[id]
	return p, ok
}

// Len returns the number of entries.
func (t *ViewTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Range calls fn for every entry until fn returns false. fn must not modify
// the table.
func (t *ViewTable) Range(fn func(*DepthPyramid) bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, p := range t.entries {
		if !fn(p) {
			return
		}
	}
}

// Retain removes every entry for which keep returns false and returns the
// removed entries.
func (t *ViewTable) Retain(keep func(*DepthPyramid) bool) []*DepthPyramid {
	t.mu.Lock()
	defer t.mu.Unlock()
	var removed []*DepthPyramid
	for id, p := range t.entries {
		if !keep(p) {
			removed = append(removed, p)
			delete(t.entries, id)
		}
	}
	return removed
}
