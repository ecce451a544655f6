// Package memory implements the storage.Backend interface on in-process
// maps and exports the finished session as a gzipped JSON recording.
package memory

import (
	"fmt"
	"sort"
	"sync"

	"github.com/lapline/lapline/internal/config"
	v1 "github.com/lapline/lapline/internal/storage/memory/export/v1"
	"github.com/lapline/lapline/pkg/core"
)

// Backend buffers a full session in memory and exports it to a JSON file
// when the session ends
type Backend struct {
	cfg     config.MemoryConfig
	session *core.Session
	venue   *core.Venue

	entities    map[uint16]*v1.EntityRecord     // keyed by entity ID
	teams       map[string]*v1.TeamRecord       // keyed by team name
	checkpoints map[uint16]*v1.CheckpointRecord // keyed by checkpoint ID
	collected   map[uint16]map[uint16]struct{}  // entity ID -> collected checkpoint IDs

	generalEvents []core.GeneralEvent
	timeStates    []core.TimeState
	outlines      []core.TrackOutline

	lastExportPath string
	mu             sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{
		cfg:         cfg,
		entities:    make(map[uint16]*v1.EntityRecord),
		teams:       make(map[string]*v1.TeamRecord),
		checkpoints: make(map[uint16]*v1.CheckpointRecord),
		collected:   make(map[uint16]map[uint16]struct{}),
	}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}

// StartSession begins recording a new session
func (b *Backend) StartSession(session *core.Session, venue *core.Venue) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.session = session
	b.venue = venue

	// Reset all collections
	b.entities = make(map[uint16]*v1.EntityRecord)
	b.teams = make(map[string]*v1.TeamRecord)
	b.checkpoints = make(map[uint16]*v1.CheckpointRecord)
	b.collected = make(map[uint16]map[uint16]struct{})
	b.generalEvents = nil
	b.timeStates = nil
	b.outlines = nil
	b.lastExportPath = ""

	return nil
}

// EndSession finalizes and exports the session data
func (b *Backend) EndSession() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil {
		return fmt.Errorf("no session to end")
	}
	return b.exportJSON()
}

// ensureEntity returns the record for an entity ID, creating a skeleton
// record when telemetry arrives before registration. Callers must hold mu.
func (b *Backend) ensureEntity(id uint16) *v1.EntityRecord {
	record, ok := b.entities[id]
	if !ok {
		record = &v1.EntityRecord{Entity: core.Entity{ID: id}}
		b.entities[id] = record
	}
	return record
}

// ensureTeam returns the record for a team name. Callers must hold mu.
func (b *Backend) ensureTeam(name string) *v1.TeamRecord {
	record, ok := b.teams[name]
	if !ok {
		record = &v1.TeamRecord{Team: core.Team{Name: name}}
		b.teams[name] = record
	}
	return record
}

// AddEntity registers an entity. Samples recorded before registration are
// kept and attached to the registered entity.
func (b *Backend) AddEntity(e *core.Entity) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	record := b.ensureEntity(e.ID)
	record.Entity = *e
	return nil
}

// AddTeam registers a team
func (b *Backend) AddTeam(t *core.Team) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	record := b.ensureTeam(t.Name)
	record.Team = *t
	return nil
}

// PutCheckpoint inserts or fully replaces a checkpoint definition
func (b *Backend) PutCheckpoint(c *core.Checkpoint) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.checkpoints[c.ID] = &v1.CheckpointRecord{Checkpoint: *c}
	return nil
}

// DeleteCheckpoint marks a checkpoint deleted. The definition is kept so
// the export can resolve crossings recorded before the deletion.
func (b *Backend) DeleteCheckpoint(id uint16) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if record, ok := b.checkpoints[id]; ok {
		record.Deleted = true
	}
	return nil
}

// SetCheckpointActive toggles a checkpoint's active flag
func (b *Backend) SetCheckpointActive(id uint16, active bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if record, ok := b.checkpoints[id]; ok {
		record.Checkpoint.Active = active
	}
	return nil
}

// RecordSample records a position sample
func (b *Backend) RecordSample(s *core.Sample) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	record := b.ensureEntity(s.EntityID)
	record.Samples = append(record.Samples, *s)
	return nil
}

// RecordCrossing records a checkpoint crossing
func (b *Backend) RecordCrossing(c *core.Crossing) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	record := b.ensureEntity(c.EntityID)
	record.Crossings = append(record.Crossings, *c)
	return nil
}

// RecordLap records a completed lap
func (b *Backend) RecordLap(l *core.Lap) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	record := b.ensureEntity(l.EntityID)
	record.Laps = append(record.Laps, *l)
	return nil
}

// RecordCollected marks a regular checkpoint as collected for the current
// lap of an entity
func (b *Backend) RecordCollected(entityID, checkpointID uint16) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	set, ok := b.collected[entityID]
	if !ok {
		set = make(map[uint16]struct{})
		b.collected[entityID] = set
	}
	set[checkpointID] = struct{}{}
	return nil
}

// ClearCollected resets an entity's collected set after a completed lap
func (b *Backend) ClearCollected(entityID uint16) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.collected, entityID)
	return nil
}

// CollectedCheckpoints returns the checkpoint IDs an entity has collected
// during its current lap, ascending
func (b *Backend) CollectedCheckpoints(entityID uint16) []uint16 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	set, ok := b.collected[entityID]
	if !ok {
		return nil
	}
	ids := make([]uint16, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// IncrementEntityLaps bumps an entity's credited lap total
func (b *Backend) IncrementEntityLaps(entityID uint16) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.ensureEntity(entityID).LapTotal++
	return nil
}

// IncrementTeamLaps bumps a team's credited lap total
func (b *Backend) IncrementTeamLaps(team string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.ensureTeam(team).LapTotal++
	return nil
}

// RecordGeneralEvent records a general event
func (b *Backend) RecordGeneralEvent(e *core.GeneralEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.generalEvents = append(b.generalEvents, *e)
	return nil
}

// RecordFeedStatus is a no-op. Feed health snapshots matter while the
// session is live and carry no replay value.
func (b *Backend) RecordFeedStatus(s *core.FeedStatus) error {
	return nil
}

// RecordTimeState records a clock synchronization point
func (b *Backend) RecordTimeState(t *core.TimeState) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.timeStates = append(b.timeStates, *t)
	return nil
}

// RecordTrackOutline records a track outline polyline
func (b *Backend) RecordTrackOutline(o *core.TrackOutline) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.outlines = append(b.outlines, *o)
	return nil
}

// GetExportedFilePath returns the path of the last exported file
func (b *Backend) GetExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}

// GetExportMetadata describes the buffered session for the results frontend
func (b *Backend) GetExportMetadata() core.UploadMetadata {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.session == nil {
		return core.UploadMetadata{}
	}
	var totalLaps int64
	for _, record := range b.entities {
		totalLaps += record.LapTotal
	}
	return core.UploadMetadata{
		SessionName: b.session.Name,
		VenueName:   b.venue.Name,
		Tag:         b.session.Tag,
		StartTime:   b.session.StartTime,
		EntityCount: len(b.entities),
		TotalLaps:   totalLaps,
	}
}
