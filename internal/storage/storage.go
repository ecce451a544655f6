// internal/storage/storage.go
package storage

import (
	"time"

	"github.com/lapline/lapline/internal/model"
	"github.com/lapline/lapline/pkg/core"
)

// Backend is the interface all storage implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Session management (assigns IDs to the passed pointers where the
	// backend generates them)
	StartSession(session *core.Session, venue *core.Venue) error
	EndSession() error

	// Entity registration
	AddEntity(e *core.Entity) error
	AddTeam(t *core.Team) error

	// Checkpoint catalog
	PutCheckpoint(c *core.Checkpoint) error
	DeleteCheckpoint(id uint16) error
	SetCheckpointActive(id uint16, active bool) error

	// Telemetry recording
	RecordSample(s *core.Sample) error
	RecordCrossing(c *core.Crossing) error
	RecordLap(l *core.Lap) error

	// Lap progress mirror. Regular checkpoints collected since the last
	// completed lap, per entity. Backends that can derive this from
	// crossing records treat these as no-ops.
	RecordCollected(entityID, checkpointID uint16) error
	ClearCollected(entityID uint16) error

	// Lap counters
	IncrementEntityLaps(entityID uint16) error
	IncrementTeamLaps(team string) error

	// Event recording
	RecordGeneralEvent(e *core.GeneralEvent) error
	RecordFeedStatus(s *core.FeedStatus) error
	RecordTimeState(t *core.TimeState) error
	RecordTrackOutline(o *core.TrackOutline) error
}

// Uploadable is an optional interface for storage backends that produce
// files suitable for upload to the results web frontend.
type Uploadable interface {
	GetExportedFilePath() string
	GetExportMetadata() core.UploadMetadata
}

// Monitorable is an optional interface for storage backends that expose
// write-queue depth and persist performance snapshots. The session monitor
// uses it when the active backend supports it.
type Monitorable interface {
	QueueLengths() model.WriteQueueLengths
	GetLastDBWriteDuration() time.Duration
	RecordPerformance(perf *model.SessionPerformance) error
}
