// Package convert provides functions to convert between GORM models and core models
package convert

import (
	"encoding/json"
	"time"

	geom "github.com/peterstace/simplefeatures/geom"

	"github.com/lapline/lapline/internal/model"
	"github.com/lapline/lapline/pkg/core"
	"github.com/lapline/lapline/pkg/geometry"
)

// pointToPosition3D converts a stored geom.Point to a core.Position3D
func pointToPosition3D(p geom.Point) core.Position3D {
	coord, ok := p.Coordinates()
	if !ok {
		return core.Position3D{}
	}
	return core.Position3D{X: coord.XY.X, Y: coord.XY.Y, Z: coord.Z}
}

// lineStringToPolyline converts a geom.LineString to a core.Polyline
func lineStringToPolyline(ls geom.LineString) core.Polyline {
	seq := ls.Coordinates()
	if seq.Length() == 0 {
		return nil
	}
	polyline := make(core.Polyline, seq.Length())
	for i := 0; i < seq.Length(); i++ {
		pt := seq.GetXY(i)
		polyline[i] = core.Position2D{X: pt.X, Y: pt.Y}
	}
	return polyline
}

// EntityToCore converts a GORM Entity to a core.Entity.
// GORM Entity.ObjectID maps to core Entity.ID.
func EntityToCore(e model.Entity) core.Entity {
	return core.Entity{
		ID:        e.ObjectID, // Core ID = GORM ObjectID
		JoinTime:  e.JoinTime,
		JoinFrame: e.JoinFrame,
		Name:      e.EntityName,
		Team:      e.TeamName,
		Class:     e.Class,
		CarNumber: e.CarNumber,
		IsPlayer:  e.IsPlayer,
	}
}

// TeamToCore converts a GORM TeamRecord to a core.Team
func TeamToCore(t model.TeamRecord) core.Team {
	return core.Team{
		Name:  t.Name,
		Color: t.Color,
	}
}

// CheckpointToCore converts a GORM CheckpointRecord to a core.Checkpoint.
// GORM CheckpointRecord.ObjectID maps to core Checkpoint.ID.
func CheckpointToCore(c model.CheckpointRecord) core.Checkpoint {
	return core.Checkpoint{
		ID:            c.ObjectID, // Core ID = GORM ObjectID
		Name:          c.Name,
		IsStartFinish: c.IsStartFinish,
		Order:         c.SortOrder,
		Bounds: geometry.NewBox3(
			pointToPosition3D(c.BoundsMin),
			pointToPosition3D(c.BoundsMax),
		),
		Active: c.Active,
	}
}

// PositionRecordToCore converts a GORM PositionRecord to a core.Sample.
// EntityObjectID in GORM maps directly to EntityID in core (both are ObjectID).
func PositionRecordToCore(r model.PositionRecord) core.Sample {
	var aux string
	if len(r.Aux) > 0 {
		aux = string(r.Aux)
	}

	return core.Sample{
		EntityID:     r.EntityObjectID, // Direct mapping: GORM EntityObjectID = core EntityID
		Time:         r.Time,
		CaptureFrame: r.CaptureFrame,
		Position:     pointToPosition3D(r.Position),
		Bearing:      r.Bearing,
		Speed:        r.Speed,
		Velocity:     r.Velocity,
		Aux:          aux,
	}
}

// CrossingToCore converts a GORM CrossingRecord to a core.Crossing
func CrossingToCore(c model.CrossingRecord) core.Crossing {
	return core.Crossing{
		EntityID:     c.EntityObjectID,
		CheckpointID: c.CheckpointObjectID,
		Time:         c.Time,
		CaptureFrame: c.CaptureFrame,
		SegmentFrom:  pointToPosition3D(c.SegmentFrom),
		SegmentTo:    pointToPosition3D(c.SegmentTo),
		LapCompleted: c.LapCompleted,
	}
}

// LapToCore converts a GORM LapRecord to a core.Lap
func LapToCore(l model.LapRecord) core.Lap {
	return core.Lap{
		EntityID:     l.EntityObjectID,
		Team:         l.TeamName,
		LapNumber:    l.LapNumber,
		Time:         l.Time,
		CaptureFrame: l.CaptureFrame,
		Duration:     time.Duration(l.DurationMs * float64(time.Millisecond)),
		Credited:     l.Credited,
	}
}

// GeneralEventToCore converts a GORM GeneralEventRecord to a core.GeneralEvent
func GeneralEventToCore(e model.GeneralEventRecord) core.GeneralEvent {
	var extraData map[string]any
	if len(e.ExtraData) > 0 {
		_ = json.Unmarshal(e.ExtraData, &extraData)
	}

	return core.GeneralEvent{
		ID:           e.ID,
		Time:         e.Time,
		CaptureFrame: e.CaptureFrame,
		Name:         e.Name,
		Message:      e.Message,
		ExtraData:    extraData,
	}
}

// FeedStatusToCore converts a GORM FeedStatusRecord to a core.FeedStatus
func FeedStatusToCore(s model.FeedStatusRecord) core.FeedStatus {
	return core.FeedStatus{
		Time:           s.Time,
		CaptureFrame:   s.CaptureFrame,
		SampleRate:     s.SampleRate,
		LatencyMs:      s.LatencyMs,
		DroppedSamples: s.DroppedSamples,
	}
}

// TimeStateToCore converts a GORM TimeStateRecord to a core.TimeState
func TimeStateToCore(t model.TimeStateRecord) core.TimeState {
	return core.TimeState{
		Time:         t.Time,
		CaptureFrame: t.CaptureFrame,
		SessionClock: t.SessionClock,
	}
}

// TrackOutlineToCore converts a GORM TrackOutlineRecord to a core.TrackOutline
func TrackOutlineToCore(o model.TrackOutlineRecord) core.TrackOutline {
	return core.TrackOutline{
		Name:   o.Name,
		Points: lineStringToPolyline(o.Polyline),
	}
}

// SessionToCore converts a GORM Session to a core.Session
func SessionToCore(s *model.Session) core.Session {
	return core.Session{
		ID:            s.ID,
		Name:          s.SessionName,
		Tag:           s.Tag,
		ServerName:    s.ServerName,
		Organizer:     s.Organizer,
		StartTime:     s.StartTime,
		VenueID:       s.VenueID,
		CaptureDelay:  s.CaptureDelay,
		FeedVersion:   s.FeedVersion,
		EngineVersion: s.EngineVersion,
		Rules: core.RuleSet{
			CountMode: s.CountMode,
			LapCap:    s.LapCap,
		},
	}
}

// VenueToCore converts a GORM Venue to a core.Venue
func VenueToCore(v *model.Venue) core.Venue {
	return core.Venue{
		ID:          v.ID,
		Name:        v.VenueName,
		DisplayName: v.DisplayName,
		Author:      v.Author,
		TrackLength: v.TrackLength,
		Latitude:    v.Latitude,
		Longitude:   v.Longitude,
		Location:    pointToPosition3D(v.Location),
	}
}
