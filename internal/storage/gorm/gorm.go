// Package gormstorage is the shared GORM-backed storage core. It buffers
// records in write queues and flushes them to the database in batches on a
// fixed cadence. The postgres and sqlite backends embed it and add dialect
// specifics.
package gormstorage

import (
	"fmt"
	"sync/atomic"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lapline/lapline/internal/logging"
	"github.com/lapline/lapline/internal/model"
	"github.com/lapline/lapline/internal/model/convert"
	"github.com/lapline/lapline/internal/queue"
	"github.com/lapline/lapline/pkg/core"
)

// Dependencies holds the external resources the backend needs. DB may be
// nil, in which case records accumulate in the write queues and are never
// flushed. Tests use this to exercise queueing without a database.
type Dependencies struct {
	DB         *gorm.DB
	LogManager *logging.SlogManager
}

// queues holds one write queue per batched table.
type queues struct {
	Entities      *queue.Queue[model.Entity]
	Teams         *queue.Queue[model.TeamRecord]
	Positions     *queue.Queue[model.PositionRecord]
	Crossings     *queue.Queue[model.CrossingRecord]
	Laps          *queue.Queue[model.LapRecord]
	GeneralEvents *queue.Queue[model.GeneralEventRecord]
	FeedStatuses  *queue.Queue[model.FeedStatusRecord]
	TimeStates    *queue.Queue[model.TimeStateRecord]
	TrackOutlines *queue.Queue[model.TrackOutlineRecord]
}

// Backend writes session records to a relational database through GORM.
type Backend struct {
	deps      Dependencies
	queues    *queues
	sessionID atomic.Uint64
	stopChan  chan struct{}
	dbReady   bool

	lastDBWriteDuration atomic.Int64 // nanoseconds
}

// New creates a GORM storage backend. Call Init before use.
func New(deps Dependencies) *Backend {
	return &Backend{deps: deps}
}

// Init prepares the write queues, migrates the schema when a database is
// configured, and starts the background writer.
func (b *Backend) Init() error {
	b.queues = &queues{
		Entities:      queue.New[model.Entity](),
		Teams:         queue.New[model.TeamRecord](),
		Positions:     queue.New[model.PositionRecord](),
		Crossings:     queue.New[model.CrossingRecord](),
		Laps:          queue.New[model.LapRecord](),
		GeneralEvents: queue.New[model.GeneralEventRecord](),
		FeedStatuses:  queue.New[model.FeedStatusRecord](),
		TimeStates:    queue.New[model.TimeStateRecord](),
		TrackOutlines: queue.New[model.TrackOutlineRecord](),
	}
	b.stopChan = make(chan struct{})

	if b.deps.DB != nil {
		if err := b.setupDB(); err != nil {
			return fmt.Errorf("failed to set up database: %w", err)
		}
		b.dbReady = true
	}

	b.startDBWriters()

	return nil
}

// setupDB seeds the instance info row on first run and migrates the schema.
func (b *Backend) setupDB() error {
	db := b.deps.DB
	log := b.deps.LogManager

	if !db.Migrator().HasTable(&model.InstanceInfo{}) {
		if err := db.AutoMigrate(&model.InstanceInfo{}); err != nil {
			log.WriteLog("setupDB", fmt.Sprintf("Failed to create instance_infos table: %s", err), "ERROR")
			return fmt.Errorf("failed to auto-migrate InstanceInfo: %w", err)
		}
		err := db.Create(&model.InstanceInfo{
			OrgName:        "Lapline",
			OrgDescription: "Lapline timing instance",
			OrgWebsite:     "https://github.com/lapline/lapline",
		}).Error
		if err != nil {
			return fmt.Errorf("failed to create instance info entry: %w", err)
		}
	}

	if db.Name() == "postgres" {
		if err := db.Exec(`CREATE Extension IF NOT EXISTS postgis;`).Error; err != nil {
			return fmt.Errorf("failed to create PostGIS Extension: %w", err)
		}
		log.WriteLog("setupDB", "PostGIS Extension created", "INFO")
	}

	log.WriteLog("setupDB", "Migrating schema", "INFO")
	models := model.DatabaseModels
	if db.Name() != "postgres" {
		models = model.DatabaseModelsSQLite
	}
	if err := db.AutoMigrate(models...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	log.WriteLog("setupDB", "Database setup complete", "INFO")
	return nil
}

// startDBWriters starts the background goroutine that flushes the write
// queues every 2 seconds. The writer idles until the database is ready.
func (b *Backend) startDBWriters() {
	go func() {
		for {
			select {
			case <-b.stopChan:
				return
			default:
			}

			if !b.dbReady {
				time.Sleep(1 * time.Second)
				continue
			}

			b.drainQueues()

			time.Sleep(2 * time.Second)
		}
	}()
}

// drainQueues flushes every write queue in one pass, stamping queued rows
// with the active session ID.
func (b *Backend) drainQueues() {
	start := time.Now()
	sessionID := uint(b.sessionID.Load())

	stampEntities := func(items []model.Entity) {
		for i := range items {
			items[i].SessionID = sessionID
		}
	}
	stampTeams := func(items []model.TeamRecord) {
		for i := range items {
			items[i].SessionID = sessionID
		}
	}
	stampPositions := func(items []model.PositionRecord) {
		for i := range items {
			items[i].SessionID = sessionID
		}
	}
	stampCrossings := func(items []model.CrossingRecord) {
		for i := range items {
			items[i].SessionID = sessionID
		}
	}
	stampLaps := func(items []model.LapRecord) {
		for i := range items {
			items[i].SessionID = sessionID
		}
	}
	stampGeneralEvents := func(items []model.GeneralEventRecord) {
		for i := range items {
			items[i].SessionID = sessionID
		}
	}
	stampFeedStatuses := func(items []model.FeedStatusRecord) {
		for i := range items {
			items[i].SessionID = sessionID
		}
	}
	stampTimeStates := func(items []model.TimeStateRecord) {
		for i := range items {
			items[i].SessionID = sessionID
		}
	}
	stampTrackOutlines := func(items []model.TrackOutlineRecord) {
		for i := range items {
			items[i].SessionID = sessionID
		}
	}

	log := b.deps.LogManager.WriteLog

	// registration
	writeQueue(b.deps.DB, b.queues.Entities, "entities", log, stampEntities)
	writeQueue(b.deps.DB, b.queues.Teams, "teams", log, stampTeams)

	// telemetry
	writeQueue(b.deps.DB, b.queues.Positions, "positions", log, stampPositions)
	writeQueue(b.deps.DB, b.queues.Crossings, "crossings", log, stampCrossings)
	writeQueue(b.deps.DB, b.queues.Laps, "laps", log, stampLaps)

	// events
	writeQueue(b.deps.DB, b.queues.GeneralEvents, "general events", log, stampGeneralEvents)
	writeQueue(b.deps.DB, b.queues.FeedStatuses, "feed statuses", log, stampFeedStatuses)
	writeQueue(b.deps.DB, b.queues.TimeStates, "time states", log, stampTimeStates)
	writeQueue(b.deps.DB, b.queues.TrackOutlines, "track outlines", log, stampTrackOutlines)

	b.lastDBWriteDuration.Store(int64(time.Since(start)))
}

// writeQueue flushes one queue in a single transaction. Failed batches are
// pushed back onto the queue for the next cycle.
func writeQueue[T any](db *gorm.DB, q *queue.Queue[T], name string, log func(string, string, string), prepare func([]T)) {
	if q.Empty() {
		return
	}

	tx := db.Begin()
	items := q.GetAndEmpty()
	if prepare != nil {
		prepare(items)
	}

	if err := tx.Create(&items).Error; err != nil {
		log(":DB:WRITER:", fmt.Sprintf("Error creating %s: %v", name, err), "ERROR")
		tx.Rollback()
		q.Push(items...)
		return
	}
	tx.Commit()
}

// Close stops the background writer and flushes whatever is still queued.
func (b *Backend) Close() error {
	close(b.stopChan)
	if b.dbReady {
		b.drainQueues()
	}
	return nil
}

// StartSession writes the venue and session rows and assigns the generated
// database IDs back to the passed structs. Subsequent queued rows are
// stamped with the new session ID.
func (b *Backend) StartSession(session *core.Session, venue *core.Venue) error {
	if !b.dbReady {
		return nil
	}

	gormVenue := convert.CoreToVenue(*venue)
	err := b.deps.DB.Where(model.Venue{VenueName: gormVenue.VenueName}).FirstOrCreate(&gormVenue).Error
	if err != nil {
		return fmt.Errorf("failed to get or create venue: %w", err)
	}
	venue.ID = gormVenue.ID

	gormSession := convert.CoreToSession(*session)
	gormSession.VenueID = gormVenue.ID
	if err := b.deps.DB.Create(&gormSession).Error; err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	session.ID = gormSession.ID
	session.VenueID = gormVenue.ID

	b.sessionID.Store(uint64(gormSession.ID))

	return nil
}

// EndSession is a no-op. The session row is written at start and the final
// queue drain happens in Close.
func (b *Backend) EndSession() error {
	return nil
}

// SetSessionID overrides the session ID used to stamp rows. Offline tools
// use this to write under an existing session without calling StartSession.
func (b *Backend) SetSessionID(id uint) {
	b.sessionID.Store(uint64(id))
}

// AddEntity queues an entity registration row.
func (b *Backend) AddEntity(e *core.Entity) error {
	b.queues.Entities.Push(convert.CoreToEntity(*e))
	return nil
}

// AddTeam queues a team registration row.
func (b *Backend) AddTeam(t *core.Team) error {
	b.queues.Teams.Push(convert.CoreToTeam(*t))
	return nil
}

// PutCheckpoint writes the checkpoint definition immediately. Checkpoint
// changes are rare and low-volume, and re-sends of an existing ID replace
// the stored definition, so they bypass the batch queues. A re-put of a
// soft-deleted checkpoint restores it.
func (b *Backend) PutCheckpoint(c *core.Checkpoint) error {
	if !b.dbReady {
		return nil
	}

	record := convert.CoreToCheckpoint(*c)
	record.SessionID = uint(b.sessionID.Load())

	err := b.deps.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}, {Name: "object_id"}},
		UpdateAll: true,
	}).Create(&record).Error
	if err != nil {
		return fmt.Errorf("failed to upsert checkpoint %d: %w", c.ID, err)
	}
	return nil
}

// DeleteCheckpoint soft-deletes the checkpoint row so past crossings keep
// their reference.
func (b *Backend) DeleteCheckpoint(id uint16) error {
	if !b.dbReady {
		return nil
	}

	err := b.deps.DB.Where("session_id = ? AND object_id = ?", uint(b.sessionID.Load()), id).
		Delete(&model.CheckpointRecord{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete checkpoint %d: %w", id, err)
	}
	return nil
}

// SetCheckpointActive updates the stored active flag for a checkpoint.
func (b *Backend) SetCheckpointActive(id uint16, active bool) error {
	if !b.dbReady {
		return nil
	}

	err := b.deps.DB.Model(&model.CheckpointRecord{}).
		Where("session_id = ? AND object_id = ?", uint(b.sessionID.Load()), id).
		Update("active", active).Error
	if err != nil {
		return fmt.Errorf("failed to update checkpoint %d active state: %w", id, err)
	}
	return nil
}

// RecordSample queues a position row.
func (b *Backend) RecordSample(s *core.Sample) error {
	b.queues.Positions.Push(convert.CoreToPositionRecord(*s))
	return nil
}

// RecordCrossing queues a crossing row.
func (b *Backend) RecordCrossing(c *core.Crossing) error {
	b.queues.Crossings.Push(convert.CoreToCrossing(*c))
	return nil
}

// RecordLap queues a lap row.
func (b *Backend) RecordLap(l *core.Lap) error {
	b.queues.Laps.Push(convert.CoreToLap(*l))
	return nil
}

// RecordCollected is a no-op. Collected checkpoints are derivable from
// crossing rows: regular crossings since the entity's last lap-completing
// crossing.
func (b *Backend) RecordCollected(entityID, checkpointID uint16) error {
	return nil
}

// ClearCollected is a no-op, see RecordCollected.
func (b *Backend) ClearCollected(entityID uint16) error {
	return nil
}

// IncrementEntityLaps bumps the credited lap total on the entity row. The
// engine owns the live counter; this column exists for SQL queries. An
// entity row still waiting in the write queue matches nothing, which GORM
// does not report as an error.
func (b *Backend) IncrementEntityLaps(entityID uint16) error {
	if !b.dbReady {
		return nil
	}

	err := b.deps.DB.Model(&model.Entity{}).
		Where("session_id = ? AND object_id = ?", uint(b.sessionID.Load()), entityID).
		Update("laps", gorm.Expr("laps + 1")).Error
	if err != nil {
		return fmt.Errorf("failed to increment laps for entity %d: %w", entityID, err)
	}
	return nil
}

// IncrementTeamLaps bumps the credited lap total on the team row.
func (b *Backend) IncrementTeamLaps(team string) error {
	if !b.dbReady {
		return nil
	}

	err := b.deps.DB.Model(&model.TeamRecord{}).
		Where("session_id = ? AND name = ?", uint(b.sessionID.Load()), team).
		Update("laps", gorm.Expr("laps + 1")).Error
	if err != nil {
		return fmt.Errorf("failed to increment laps for team %s: %w", team, err)
	}
	return nil
}

// RecordGeneralEvent queues a general event row.
func (b *Backend) RecordGeneralEvent(e *core.GeneralEvent) error {
	b.queues.GeneralEvents.Push(convert.CoreToGeneralEvent(*e))
	return nil
}

// RecordFeedStatus queues a feed status row.
func (b *Backend) RecordFeedStatus(s *core.FeedStatus) error {
	b.queues.FeedStatuses.Push(convert.CoreToFeedStatus(*s))
	return nil
}

// RecordTimeState queues a time state row.
func (b *Backend) RecordTimeState(t *core.TimeState) error {
	b.queues.TimeStates.Push(convert.CoreToTimeState(*t))
	return nil
}

// RecordTrackOutline queues a track outline row, stamped with the receive
// time since the feed command carries none.
func (b *Backend) RecordTrackOutline(o *core.TrackOutline) error {
	record := convert.CoreToTrackOutline(*o)
	record.Time = time.Now()
	b.queues.TrackOutlines.Push(record)
	return nil
}

// RecordPerformance writes a performance snapshot row. Snapshots taken
// before a session starts are dropped since the row references the session.
func (b *Backend) RecordPerformance(perf *model.SessionPerformance) error {
	if !b.dbReady {
		return nil
	}

	sessionID := uint(b.sessionID.Load())
	if sessionID == 0 {
		return nil
	}

	perf.SessionID = sessionID
	if err := b.deps.DB.Create(perf).Error; err != nil {
		return fmt.Errorf("failed to create performance row: %w", err)
	}
	return nil
}

// GetLastDBWriteDuration returns how long the most recent queue flush took.
func (b *Backend) GetLastDBWriteDuration() time.Duration {
	return time.Duration(b.lastDBWriteDuration.Load())
}

// QueueLengths reports the current depth of each write queue.
func (b *Backend) QueueLengths() model.WriteQueueLengths {
	return model.WriteQueueLengths{
		Entities:      uint16(b.queues.Entities.Len()),
		Teams:         uint16(b.queues.Teams.Len()),
		Positions:     uint16(b.queues.Positions.Len()),
		Crossings:     uint16(b.queues.Crossings.Len()),
		Laps:          uint16(b.queues.Laps.Len()),
		GeneralEvents: uint16(b.queues.GeneralEvents.Len()),
		FeedStatuses:  uint16(b.queues.FeedStatuses.Len()),
		TimeStates:    uint16(b.queues.TimeStates.Len()),
		TrackOutlines: uint16(b.queues.TrackOutlines.Len()),
	}
}
