package model

import (
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&InstanceInfo{},
	&Venue{},
	&Session{},
	&Entity{},
	&TeamRecord{},
	&CheckpointRecord{},
	&PositionRecord{},
	&CrossingRecord{},
	&LapRecord{},
	&GeneralEventRecord{},
	&FeedStatusRecord{},
	&TimeStateRecord{},
	&TrackOutlineRecord{},
	&SessionPerformance{},
}

var DatabaseModelsSQLite = []interface{}{
	&InstanceInfo{},
	&Venue{},
	&Session{},
	&Entity{},
	&TeamRecord{},
	&CheckpointRecord{},
	&PositionRecord{},
	&CrossingRecord{},
	&LapRecord{},
	&GeneralEventRecord{},
	&FeedStatusRecord{},
	&TimeStateRecord{},
	&TrackOutlineRecord{},
	&SessionPerformance{},
}

////////////////////////
// SYSTEM MODELS
////////////////////////

// InstanceInfo contains organization information about the instance
type InstanceInfo struct {
	gorm.Model
	OrgName        string `json:"orgName" gorm:"size:127"` // primary key
	OrgDescription string `json:"orgDescription" gorm:"size:255"`
	OrgWebsite     string `json:"orgURL" gorm:"size:255"`
	OrgLogo        string `json:"orgLogoURL" gorm:"size:255"`
}

func (*InstanceInfo) TableName() string {
	return "instance_infos"
}

// SessionPerformance is the model for server performance metrics
type SessionPerformance struct {
	Time                time.Time         `json:"time" gorm:"type:timestamptz;index:idx_time"`
	SessionID           uint              `json:"sessionId" gorm:"index:idx_sessionperformance_session_id"`
	Session             Session           `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	BufferLengths       BufferLengths     `json:"bufferLengths" gorm:"embedded;embeddedPrefix:buffer_"`
	WriteQueueLengths   WriteQueueLengths `json:"writeQueueLengths" gorm:"embedded;embeddedPrefix:writequeue_"`
	LastWriteDurationMs float32           `json:"lastWriteDurationMs"`
}

func (*SessionPerformance) TableName() string {
	return "session_performances"
}

// BufferLengths is the model for the dispatcher buffer lengths
type BufferLengths struct {
	Entities      uint16 `json:"entities"`
	Teams         uint16 `json:"teams"`
	Checkpoints   uint16 `json:"checkpoints"`
	Positions     uint16 `json:"positions"`
	Crossings     uint16 `json:"crossings"`
	Laps          uint16 `json:"laps"`
	GeneralEvents uint16 `json:"generalEvents"`
	FeedStatuses  uint16 `json:"feedStatuses"`
	TimeStates    uint16 `json:"timeStates"`
	TrackOutlines uint16 `json:"trackOutlines"`
}

// WriteQueueLengths is the model for the write queue lengths
type WriteQueueLengths struct {
	Entities      uint16 `json:"entities"`
	Teams         uint16 `json:"teams"`
	Checkpoints   uint16 `json:"checkpoints"`
	Positions     uint16 `json:"positions"`
	Crossings     uint16 `json:"crossings"`
	Laps          uint16 `json:"laps"`
	GeneralEvents uint16 `json:"generalEvents"`
	FeedStatuses  uint16 `json:"feedStatuses"`
	TimeStates    uint16 `json:"timeStates"`
	TrackOutlines uint16 `json:"trackOutlines"`
}

func (b *BufferLengths) TableName() string {
	return "buffer_lengths"
}

////////////////////////
// RECORDING MODELS
////////////////////////

// Venue is the main model for a track or circuit location
type Venue struct {
	gorm.Model
	Author      string     `json:"author" gorm:"size:64"`
	DisplayName string     `json:"displayName" gorm:"size:127"`
	VenueName   string     `json:"venueName" gorm:"size:127"`
	TrackLength float32    `json:"trackLength"`
	Latitude    float32    `json:"latitude" gorm:"-"`
	Longitude   float32    `json:"longitude" gorm:"-"`
	Location    geom.Point `json:"location"`
	Sessions    []Session
}

func (*Venue) TableName() string {
	return "venues"
}

func (v *Venue) GetOrInsert(db *gorm.DB) (
	created bool,
	err error,
) {
	var existingVenue Venue
	err = db.Where("venue_name = ?", v.VenueName).First(&existingVenue).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			// insert
			err = db.Create(v).Error
			return true, err
		}
		return false, err
	}
	// overwrite with db record if found
	*v = existingVenue
	return false, nil
}

// Session is the main model for a timing session
type Session struct {
	gorm.Model
	SessionName   string    `json:"sessionName" gorm:"size:200"`
	Tag           string    `json:"tag" gorm:"size:127"`
	ServerName    string    `json:"serverName" gorm:"size:200"`
	Organizer     string    `json:"organizer" gorm:"size:200"`
	StartTime     time.Time `json:"sessionStart" gorm:"type:timestamptz;index:idx_session_start"`
	VenueID       uint
	Venue         Venue   `gorm:"foreignkey:VenueID"`
	CaptureDelay  float32 `json:"-" gorm:"default:1.0"`
	FeedVersion   string  `json:"feedVersion" gorm:"size:64;default:1.0.0"`
	EngineVersion string  `json:"engineVersion" gorm:"size:64;default:1.0.0"`
	CountMode     string  `json:"countMode" gorm:"size:16;default:entity"`
	LapCap        int     `json:"lapCap" gorm:"default:0"`

	Entities      []Entity
	Teams         []TeamRecord
	Checkpoints   []CheckpointRecord
	Crossings     []CrossingRecord
	Laps          []LapRecord
	GeneralEvents []GeneralEventRecord
	FeedStatuses  []FeedStatusRecord
	TimeStates    []TimeStateRecord
	TrackOutlines []TrackOutlineRecord
}

func (*Session) TableName() string {
	return "sessions"
}

// Entity is a tracked competitor
// Uses composite primary key (SessionID, ObjectID) - ObjectID is the feed-assigned sequential ID
//
// Feed Command: :NEW:ENTITY:
// Args: [frameNo, entityId, name, team, class, carNumber, isPlayer, teamColor]
type Entity struct {
	SessionID  uint           `json:"sessionId" gorm:"primaryKey;autoIncrement:false"`
	ObjectID   uint16         `json:"entityId" gorm:"primaryKey;autoIncrement:false"` // Feed-assigned sequential ID
	Session    Session        `gorm:"foreignkey:SessionID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
	DeletedAt  gorm.DeletedAt `json:"deletedAt" gorm:"index"`
	JoinTime   time.Time      `json:"joinTime" gorm:"type:timestamptz;NOT NULL;index:idx_entity_join_time"` // Server time when entity was registered
	JoinFrame  uint           `json:"joinFrame"`                                                            // Frame number when entity was first seen
	EntityName string         `json:"name" gorm:"size:64"`                                                  // Display name (driver or vehicle name)
	TeamName   string         `json:"team" gorm:"size:64;index:idx_entity_team_name"`                       // Team assignment (empty when unaffiliated)
	Class      string         `json:"class" gorm:"size:64"`                                                 // Competition class (e.g., "GT3", "Kart")
	CarNumber  int            `json:"carNumber" gorm:"default:0"`                                           // Race number (0 when unassigned)
	IsPlayer   bool           `json:"isPlayer" gorm:"default:false"`                                        // Whether entity is human-controlled
	Laps       int64          `json:"laps" gorm:"default:0"`                                                // Credited lap total, kept current by the engine
}

func (*Entity) TableName() string {
	return "entities"
}

func (e *Entity) Get(db *gorm.DB) (err error) {
	err = db.Where(&e).Order(
		"join_time DESC",
	).First(&e).Error
	return err
}

// TeamRecord groups entities for team-level lap counting
//
// Created on first sight of a team name in :NEW:ENTITY:
type TeamRecord struct {
	gorm.Model
	SessionID uint    `json:"sessionId" gorm:"index:idx_team_session_id"`
	Session   Session `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	Name      string  `json:"name" gorm:"size:64;index:idx_team_name"`
	Color     string  `json:"color" gorm:"size:32"`
	Laps      int64   `json:"laps" gorm:"default:0"` // Credited lap total in team count mode
}

func (*TeamRecord) TableName() string {
	return "teams"
}

// CheckpointRecord is an axis-aligned volume entities must pass through
// Uses composite primary key (SessionID, ObjectID) - ObjectID is the feed-assigned checkpoint ID
// Deleting a checkpoint soft-deletes the row so past crossings keep their reference
//
// Feed Command: :NEW:CHECKPOINT:
// Args: [checkpointId, name, cornerA, cornerB, order, isStartFinish, active]
type CheckpointRecord struct {
	SessionID     uint           `json:"sessionId" gorm:"primaryKey;autoIncrement:false"`
	ObjectID      uint16         `json:"checkpointId" gorm:"primaryKey;autoIncrement:false"` // Feed-assigned checkpoint ID
	Session       Session        `gorm:"foreignkey:SessionID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
	DeletedAt     gorm.DeletedAt `json:"deletedAt" gorm:"index"`
	Name          string         `json:"name" gorm:"size:128"`
	IsStartFinish bool           `json:"isStartFinish" gorm:"default:false"` // Crossing this gate evaluates lap completion
	SortOrder     int32          `json:"order"`                              // Ascending processing and display order
	BoundsMin     geom.Point     `json:"boundsMin"`                          // Normalized minimum corner, venue-local meters
	BoundsMax     geom.Point     `json:"boundsMax"`                          // Normalized maximum corner, venue-local meters
	Active        bool           `json:"active" gorm:"default:true"`
}

func (*CheckpointRecord) TableName() string {
	return "checkpoints"
}

// PositionRecord tracks entity position at a point in time
// References Entity by (SessionID, EntityObjectID) composite FK
//
// Feed Command: :ENTITY:POS:
// Args: [entityId, pos, frameNo, bearing, speed, velocity, aux]
type PositionRecord struct {
	ID             uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	Time           time.Time `json:"time" gorm:"type:timestamptz;"` // Server time when sample was recorded
	SessionID      uint      `json:"sessionId" gorm:"index:idx_positionrecord_session_id"`
	Session        Session   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	CaptureFrame   uint      `json:"captureFrame" gorm:"index:idx_capture_frame"`                 // Frame number in recording timeline
	EntityObjectID uint16    `json:"entityId" gorm:"index:idx_positionrecord_entity_object_id"`   // Feed ID of the entity
	Entity         Entity    `gorm:"foreignkey:SessionID,EntityObjectID;references:SessionID,ObjectID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`

	Position geom.Point     `json:"position"`                                 // Venue-local position as XYZ point
	Bearing  uint16         `json:"bearing" gorm:"default:0"`                 // Heading (0-360 degrees)
	Speed    float32        `json:"speed"`                                    // Meters per second
	Velocity string         `json:"velocity" gorm:"size:64"`                  // Velocity vector "[vx,vy,vz]" as received
	Aux      datatypes.JSON `json:"aux" gorm:"type:jsonb;default:'{}'"`       // Opaque feed-supplied extras (throttle, gear, tire data)
}

func (*PositionRecord) TableName() string {
	return "position_records"
}

// CrossingRecord records one detected pass of an entity through a checkpoint volume
// Stores the trajectory segment that triggered detection for replay and audit
type CrossingRecord struct {
	ID                 uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	Time               time.Time `json:"time" gorm:"type:timestamptz;"` // Server time of the detecting sample
	SessionID          uint      `json:"sessionId" gorm:"index:idx_crossingrecord_session_id"`
	Session            Session   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	CaptureFrame       uint      `json:"captureFrame" gorm:"index:idx_crossingrecord_capture_frame;"` // Frame number of the detecting sample
	EntityObjectID     uint16    `json:"entityId" gorm:"index:idx_crossingrecord_entity_object_id"`   // Feed ID of the entity
	Entity             Entity    `gorm:"foreignkey:SessionID,EntityObjectID;references:SessionID,ObjectID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	CheckpointObjectID uint16    `json:"checkpointId" gorm:"index:idx_crossingrecord_checkpoint_object_id"` // Feed ID of the crossed checkpoint

	SegmentFrom  geom.Point `json:"segmentFrom"`                       // Trajectory segment start, venue-local XYZ
	SegmentTo    geom.Point `json:"segmentTo"`                         // Trajectory segment end, venue-local XYZ
	LapCompleted bool       `json:"lapCompleted" gorm:"default:false"` // Whether this crossing completed a lap
}

func (*CrossingRecord) TableName() string {
	return "crossings"
}

// LapRecord records one completed circuit
type LapRecord struct {
	ID             uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	Time           time.Time `json:"time" gorm:"type:timestamptz;"` // Server time of the completing crossing
	SessionID      uint      `json:"sessionId" gorm:"index:idx_laprecord_session_id"`
	Session        Session   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	CaptureFrame   uint      `json:"captureFrame" gorm:"index:idx_laprecord_capture_frame;"` // Frame number of the completing crossing
	EntityObjectID uint16    `json:"entityId" gorm:"index:idx_laprecord_entity_object_id"`   // Feed ID of the entity
	Entity         Entity    `gorm:"foreignkey:SessionID,EntityObjectID;references:SessionID,ObjectID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`

	TeamName   string  `json:"team" gorm:"size:64"`           // Team at completion time (empty when unaffiliated)
	LapNumber  int64   `json:"lapNumber"`                     // Counter total for the credited key at completion
	DurationMs float64 `json:"durationMs"`                    // Lap time in milliseconds (0 when the clock was unarmed)
	Credited   bool    `json:"credited" gorm:"default:true"`  // False when the counter refused the lap
}

func (*LapRecord) TableName() string {
	return "laps"
}

// GeneralEventRecord is a generic event for feed connections, session end, custom events
//
// Feed Command: :EVENT:
// Args: [frameNo, eventType, message, extraDataJSON]
// Common eventTypes: "connected", "disconnected", "endSession"
type GeneralEventRecord struct {
	ID           uint           `json:"id" gorm:"primarykey;autoIncrement;"`
	Time         time.Time      `json:"time" gorm:"type:timestamptz;"` // Server time when event occurred
	SessionID    uint           `json:"sessionId" gorm:"index:idx_generalevent_session_id"`
	Session      Session        `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	CaptureFrame uint           `json:"captureFrame" gorm:"index:idx_generalevent_capture_frame;"` // Frame number when event occurred
	Name         string         `json:"name" gorm:"size:64"`                                       // Event type: connected, disconnected, endSession, custom
	Message      string         `json:"message"`                                                   // Event message (e.g., feed name)
	ExtraData    datatypes.JSON `json:"extraData" gorm:"type:jsonb;default:'{}'"`                  // Additional JSON data
}

func (g *GeneralEventRecord) TableName() string {
	return "general_events"
}

// FeedStatusRecord records telemetry feed health metrics
//
// Feed Command: :FEED:STATUS:
// Args: [frameNo, sampleRate, latencyMs, droppedSamples]
type FeedStatusRecord struct {
	Time           time.Time `json:"time" gorm:"type:timestamptz;"` // Server time when measurement taken
	SessionID      uint      `json:"sessionId" gorm:"index:idx_feedstatus_session_id"`
	Session        Session   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	CaptureFrame   uint      `json:"captureFrame" gorm:"index:idx_feedstatus_capture_frame;"` // Frame number when measurement taken
	SampleRate     float32   `json:"sampleRate"`                                              // Samples per second the feed claims to emit
	LatencyMs      float32   `json:"latencyMs"`                                               // Feed-measured transport latency
	DroppedSamples uint32    `json:"droppedSamples"`                                          // Samples the feed dropped since last report
}

func (s *FeedStatusRecord) TableName() string {
	return "feed_statuses"
}

// TimeStateRecord represents session clock synchronization data
//
// Feed Command: :TIME:
// Args: [frameNo, sessionClock]
type TimeStateRecord struct {
	Time         time.Time `json:"time" gorm:"type:timestamptz;"` // Server time when recorded
	SessionID    uint      `json:"sessionId" gorm:"index:idx_timestate_session_id"`
	Session      Session   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	CaptureFrame uint      `json:"captureFrame" gorm:"index:idx_timestate_capture_frame;"` // Frame number when recorded
	SessionClock float64   `json:"sessionClock"`                                           // Seconds elapsed since session start
}

func (t *TimeStateRecord) TableName() string {
	return "time_states"
}

// TrackOutlineRecord stores display geometry for the racing line or circuit edge
//
// Feed Command: :TRACK:OUTLINE:
// Args: [name, polyline]
type TrackOutlineRecord struct {
	ID           uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	Time         time.Time `json:"time" gorm:"type:timestamptz;"` // Server time when outline received
	SessionID    uint      `json:"sessionId" gorm:"index:idx_trackoutline_session_id"`
	Session      Session   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	CaptureFrame uint      `json:"captureFrame" gorm:"index:idx_trackoutline_capture_frame;"` // Frame number when outline received

	Name     string          `json:"name" gorm:"size:128;index:idx_trackoutline_name"` // Outline identifier (e.g., "racing line")
	Polyline geom.LineString `json:"polyline"`                                         // Outline vertices, venue-local XY
}

func (*TrackOutlineRecord) TableName() string {
	return "track_outlines"
}
