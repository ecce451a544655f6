package trajectory

import (
	"sync"

	"github.com/lapline/lapline/pkg/core"
)

// Segment is the straight-line path between an entity's two most recent
// observed positions.
type Segment struct {
	From core.Position3D
	To   core.Position3D
}

// Tracker remembers the last observed position per entity so consecutive
// samples can be joined into trajectory segments. Latency here is critical,
// every position sample passes through Observe.
type Tracker struct {
	mu   sync.Mutex
	last map[uint16]core.Position3D
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{
		last: make(map[uint16]core.Position3D),
	}
}

// Observe records a position for the entity. When a previous position exists
// the segment from it to pos is returned; the first observation for an entity
// yields no segment. A repeated position yields a degenerate segment with
// From equal to To.
func (t *Tracker) Observe(id uint16, pos core.Position3D) (Segment, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev, ok := t.last[id]
	t.last[id] = pos
	if !ok {
		return Segment{}, false
	}
	return Segment{From: prev, To: pos}, true
}

// Forget drops the remembered position for one entity. The next sample for
// it starts a fresh trajectory.
func (t *Tracker) Forget(id uint16) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.last, id)
}

// Reset drops all remembered positions.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last = make(map[uint16]core.Position3D)
}

// Tracked returns the number of entities with a remembered position.
func (t *Tracker) Tracked() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.last)
}
