// pkg/core/track.go
package core

import (
	"time"

	"github.com/lapline/lapline/pkg/geometry"
)

// Checkpoint is an axis-aligned volume entities must pass through.
// A start/finish checkpoint triggers lap evaluation instead of being
// collected.
type Checkpoint struct {
	ID            uint16
	Name          string
	IsStartFinish bool
	Order         int32 // ascending processing and display order
	Bounds        geometry.Box3
	Active        bool
}

// Crossing records one detected pass of an entity's trajectory segment
// through a checkpoint volume.
type Crossing struct {
	EntityID     uint16
	CheckpointID uint16
	Time         time.Time
	CaptureFrame uint
	SegmentFrom  Position3D
	SegmentTo    Position3D
	LapCompleted bool
}

// Lap records one completed circuit. LapNumber is the counter total for the
// credited key (entity or team) at completion time. Credited is false when
// the counter refused the lap (capped or deactivated key, or no team
// assignment in team mode).
type Lap struct {
	EntityID     uint16
	Team         string
	LapNumber    int64
	Time         time.Time
	CaptureFrame uint
	Duration     time.Duration
	Credited     bool
}

// Standing is one leaderboard row.
type Standing struct {
	Key    string // entity name or team name depending on count mode
	Laps   int64
	Active bool
}

// TrackOutline is display geometry for the racing line or circuit edge.
type TrackOutline struct {
	Name   string
	Points Polyline
}
