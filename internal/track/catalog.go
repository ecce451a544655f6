package track

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/lapline/lapline/pkg/core"
	"github.com/lapline/lapline/pkg/geometry"
)

// Catalog holds the checkpoint layout for the current session.
//
// Readers share an immutable snapshot loaded without locking, so the sample
// hot path never contends with layout edits. Each write publishes a fresh
// sorted slice. A sample observed mid-edit is judged entirely against one
// snapshot, never a half-applied layout.
type Catalog struct {
	mu   sync.Mutex // serializes writers
	list atomic.Pointer[[]core.Checkpoint]
}

// NewCatalog creates an empty Catalog.
func NewCatalog() *Catalog {
	c := &Catalog{}
	empty := make([]core.Checkpoint, 0)
	c.list.Store(&empty)
	return c
}

// Ordered returns all checkpoints sorted by Order, then ID. The returned
// slice is the live snapshot and must not be modified.
func (c *Catalog) Ordered() []core.Checkpoint {
	return *c.list.Load()
}

// Get returns the checkpoint with the given id.
func (c *Catalog) Get(id uint16) (core.Checkpoint, bool) {
	for _, cp := range c.Ordered() {
		if cp.ID == id {
			return cp, true
		}
	}
	return core.Checkpoint{}, false
}

// Len returns the number of checkpoints in the catalog.
func (c *Catalog) Len() int {
	return len(c.Ordered())
}

// Put inserts the checkpoint, or replaces the existing definition wholesale
// when the id is already present. Bounds corners are normalized so Min/Max
// hold the true minima/maxima regardless of how the feed ordered them.
func (c *Catalog) Put(cp core.Checkpoint) {
	cp.Bounds = geometry.NewBox3(cp.Bounds.Min, cp.Bounds.Max)

	c.mu.Lock()
	defer c.mu.Unlock()

	cur := *c.list.Load()
	next := make([]core.Checkpoint, 0, len(cur)+1)
	replaced := false
	for _, existing := range cur {
		if existing.ID == cp.ID {
			next = append(next, cp)
			replaced = true
			continue
		}
		next = append(next, existing)
	}
	if !replaced {
		next = append(next, cp)
	}
	sortCheckpoints(next)
	c.list.Store(&next)
}

// Delete removes the checkpoint with the given id and reports whether it
// existed.
func (c *Catalog) Delete(id uint16) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur := *c.list.Load()
	next := make([]core.Checkpoint, 0, len(cur))
	found := false
	for _, cp := range cur {
		if cp.ID == id {
			found = true
			continue
		}
		next = append(next, cp)
	}
	if !found {
		return false
	}
	c.list.Store(&next)
	return true
}

// SetActive toggles a checkpoint without removing its definition and reports
// whether the id existed.
func (c *Catalog) SetActive(id uint16, active bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur := *c.list.Load()
	next := make([]core.Checkpoint, len(cur))
	copy(next, cur)
	for i := range next {
		if next[i].ID == id {
			next[i].Active = active
			c.list.Store(&next)
			return true
		}
	}
	return false
}

// ActiveRegularIDs returns the ids of active non-start/finish checkpoints,
// in catalog order. These are the checkpoints a lap must collect.
func (c *Catalog) ActiveRegularIDs() []uint16 {
	list := c.Ordered()
	ids := make([]uint16, 0, len(list))
	for _, cp := range list {
		if cp.Active && !cp.IsStartFinish {
			ids = append(ids, cp.ID)
		}
	}
	return ids
}

// Reset drops all checkpoints.
func (c *Catalog) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	empty := make([]core.Checkpoint, 0)
	c.list.Store(&empty)
}

func sortCheckpoints(list []core.Checkpoint) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].Order != list[j].Order {
			return list[i].Order < list[j].Order
		}
		return list[i].ID < list[j].ID
	})
}
