package race

import (
	"sort"
	"sync"
	"time"
)

// Progress tracks which regular checkpoints each entity has collected on its
// current lap, and when that lap began.
//
// Collection is idempotent and survives checkpoint deletions: a lap is judged
// only against checkpoints that are still part of the active layout, so a
// stale collected id can delay a lap but never block it permanently.
type Progress struct {
	mu        sync.Mutex
	collected map[uint16]map[uint16]struct{}
	lapStart  map[uint16]time.Time
}

// NewProgress creates an empty Progress.
func NewProgress() *Progress {
	return &Progress{
		collected: make(map[uint16]map[uint16]struct{}),
		lapStart:  make(map[uint16]time.Time),
	}
}

// Collect marks a regular checkpoint as collected for the entity's current
// lap. It returns true the first time a checkpoint is collected and false on
// repeat crossings, which leave the set unchanged.
func (p *Progress) Collect(entityID, checkpointID uint16, at time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	set, ok := p.collected[entityID]
	if !ok {
		set = make(map[uint16]struct{})
		p.collected[entityID] = set
	}
	if _, dup := set[checkpointID]; dup {
		return false
	}
	set[checkpointID] = struct{}{}
	if p.lapStart[entityID].IsZero() {
		p.lapStart[entityID] = at
	}
	return true
}

// TryCompleteLap evaluates a start/finish crossing. The lap completes when
// every id in activeRegular has been collected; extra collected ids from
// since-deleted or deactivated checkpoints are ignored. On completion the
// entity's collection is cleared, its lap clock restarts at the crossing
// time, and the elapsed lap duration is returned (zero when the clock was
// never armed). An incomplete crossing changes nothing except arming the lap
// clock on an entity's first visit; there is no partial credit.
func (p *Progress) TryCompleteLap(entityID uint16, activeRegular []uint16, at time.Time) (time.Duration, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	set := p.collected[entityID]
	have := 0
	for _, id := range activeRegular {
		if _, ok := set[id]; ok {
			have++
		}
	}
	if have < len(activeRegular) {
		if p.lapStart[entityID].IsZero() {
			p.lapStart[entityID] = at
		}
		return 0, false
	}

	var dur time.Duration
	if start := p.lapStart[entityID]; !start.IsZero() {
		dur = at.Sub(start)
	}
	delete(p.collected, entityID)
	p.lapStart[entityID] = at
	return dur, true
}

// Has reports whether the entity has collected the checkpoint on its
// current lap.
func (p *Progress) Has(entityID, checkpointID uint16) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	_, ok := p.collected[entityID][checkpointID]
	return ok
}

// Collected returns a sorted copy of the entity's collected checkpoint ids.
func (p *Progress) Collected(entityID uint16) []uint16 {
	p.mu.Lock()
	defer p.mu.Unlock()

	set := p.collected[entityID]
	ids := make([]uint16, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Invalidate removes a checkpoint id from every entity's collection. Called
// when a checkpoint is deleted from the layout so no entity keeps credit for
// a volume that no longer exists.
func (p *Progress) Invalidate(checkpointID uint16) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, set := range p.collected {
		delete(set, checkpointID)
	}
}

// LapStartedAt returns when the entity's current lap began, if its clock has
// been armed.
func (p *Progress) LapStartedAt(entityID uint16) (time.Time, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	start := p.lapStart[entityID]
	return start, !start.IsZero()
}

// ResetEntity clears one entity's collection and lap clock.
func (p *Progress) ResetEntity(entityID uint16) {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.collected, entityID)
	delete(p.lapStart, entityID)
}

// Reset clears all progress.
func (p *Progress) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.collected = make(map[uint16]map[uint16]struct{})
	p.lapStart = make(map[uint16]time.Time)
}
