package convert

import (
	"encoding/json"
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"

	"github.com/lapline/lapline/internal/model"
	"github.com/lapline/lapline/pkg/core"
)

// position3DToPoint converts a core.Position3D to a stored XYZ geom.Point
func position3DToPoint(p core.Position3D) geom.Point {
	coords := geom.Coordinates{XY: geom.XY{X: p.X, Y: p.Y}, Z: p.Z, Type: geom.DimXYZ}
	return geom.NewPoint(coords)
}

// polylineToLineString converts a core.Polyline to a geom.LineString
func polylineToLineString(p core.Polyline) geom.LineString {
	if len(p) == 0 {
		return geom.LineString{}
	}
	coords := make([]float64, 0, len(p)*2)
	for _, pt := range p {
		coords = append(coords, pt.X, pt.Y)
	}
	seq := geom.NewSequence(coords, geom.DimXY)
	return geom.NewLineString(seq)
}

// auxToJSON converts the feed's opaque aux string to datatypes.JSON for DB storage.
// Invalid or empty payloads store as an empty object rather than failing the row.
func auxToJSON(aux string) datatypes.JSON {
	if aux == "" || !json.Valid([]byte(aux)) {
		return datatypes.JSON("{}")
	}
	return datatypes.JSON(aux)
}

// CoreToEntity converts a core.Entity to a GORM model.Entity.
// core.Entity.ID maps to GORM Entity.ObjectID.
func CoreToEntity(e core.Entity) model.Entity {
	return model.Entity{
		ObjectID:   e.ID,
		JoinTime:   e.JoinTime,
		JoinFrame:  uint(e.JoinFrame),
		EntityName: e.Name,
		TeamName:   e.Team,
		Class:      e.Class,
		CarNumber:  e.CarNumber,
		IsPlayer:   e.IsPlayer,
	}
}

// CoreToTeam converts a core.Team to a GORM model.TeamRecord.
func CoreToTeam(t core.Team) model.TeamRecord {
	return model.TeamRecord{
		Name:  t.Name,
		Color: t.Color,
	}
}

// CoreToCheckpoint converts a core.Checkpoint to a GORM model.CheckpointRecord.
// core.Checkpoint.ID maps to GORM CheckpointRecord.ObjectID.
func CoreToCheckpoint(c core.Checkpoint) model.CheckpointRecord {
	return model.CheckpointRecord{
		ObjectID:      c.ID,
		Name:          c.Name,
		IsStartFinish: c.IsStartFinish,
		SortOrder:     c.Order,
		BoundsMin:     position3DToPoint(c.Bounds.Min),
		BoundsMax:     position3DToPoint(c.Bounds.Max),
		Active:        c.Active,
	}
}

// CoreToPositionRecord converts a core.Sample to a GORM model.PositionRecord.
func CoreToPositionRecord(s core.Sample) model.PositionRecord {
	return model.PositionRecord{
		EntityObjectID: s.EntityID,
		Time:           s.Time,
		CaptureFrame:   uint(s.CaptureFrame),
		Position:       position3DToPoint(s.Position),
		Bearing:        s.Bearing,
		Speed:          s.Speed,
		Velocity:       s.Velocity,
		Aux:            auxToJSON(s.Aux),
	}
}

// CoreToCrossing converts a core.Crossing to a GORM model.CrossingRecord.
func CoreToCrossing(c core.Crossing) model.CrossingRecord {
	return model.CrossingRecord{
		EntityObjectID:     c.EntityID,
		CheckpointObjectID: c.CheckpointID,
		Time:               c.Time,
		CaptureFrame:       uint(c.CaptureFrame),
		SegmentFrom:        position3DToPoint(c.SegmentFrom),
		SegmentTo:          position3DToPoint(c.SegmentTo),
		LapCompleted:       c.LapCompleted,
	}
}

// CoreToLap converts a core.Lap to a GORM model.LapRecord.
func CoreToLap(l core.Lap) model.LapRecord {
	return model.LapRecord{
		EntityObjectID: l.EntityID,
		TeamName:       l.Team,
		LapNumber:      l.LapNumber,
		Time:           l.Time,
		CaptureFrame:   uint(l.CaptureFrame),
		DurationMs:     float64(l.Duration) / float64(time.Millisecond),
		Credited:       l.Credited,
	}
}

// CoreToGeneralEvent converts a core.GeneralEvent to a GORM model.GeneralEventRecord.
func CoreToGeneralEvent(e core.GeneralEvent) model.GeneralEventRecord {
	var extraData datatypes.JSON
	if len(e.ExtraData) > 0 {
		extraData, _ = json.Marshal(e.ExtraData)
	} else {
		extraData = datatypes.JSON("{}")
	}

	return model.GeneralEventRecord{
		Time:         e.Time,
		CaptureFrame: uint(e.CaptureFrame),
		Name:         e.Name,
		Message:      e.Message,
		ExtraData:    extraData,
	}
}

// CoreToFeedStatus converts a core.FeedStatus to a GORM model.FeedStatusRecord.
func CoreToFeedStatus(s core.FeedStatus) model.FeedStatusRecord {
	return model.FeedStatusRecord{
		Time:           s.Time,
		CaptureFrame:   uint(s.CaptureFrame),
		SampleRate:     s.SampleRate,
		LatencyMs:      s.LatencyMs,
		DroppedSamples: s.DroppedSamples,
	}
}

// CoreToTimeState converts a core.TimeState to a GORM model.TimeStateRecord.
func CoreToTimeState(t core.TimeState) model.TimeStateRecord {
	return model.TimeStateRecord{
		Time:         t.Time,
		CaptureFrame: uint(t.CaptureFrame),
		SessionClock: t.SessionClock,
	}
}

// CoreToTrackOutline converts a core.TrackOutline to a GORM model.TrackOutlineRecord.
func CoreToTrackOutline(o core.TrackOutline) model.TrackOutlineRecord {
	return model.TrackOutlineRecord{
		Name:     o.Name,
		Polyline: polylineToLineString(o.Points),
	}
}

// CoreToSession converts a core.Session to a GORM model.Session.
func CoreToSession(s core.Session) model.Session {
	return model.Session{
		SessionName:   s.Name,
		Tag:           s.Tag,
		ServerName:    s.ServerName,
		Organizer:     s.Organizer,
		StartTime:     s.StartTime,
		VenueID:       s.VenueID,
		CaptureDelay:  s.CaptureDelay,
		FeedVersion:   s.FeedVersion,
		EngineVersion: s.EngineVersion,
		CountMode:     s.Rules.CountMode,
		LapCap:        s.Rules.LapCap,
	}
}

// CoreToVenue converts a core.Venue to a GORM model.Venue.
func CoreToVenue(v core.Venue) model.Venue {
	return model.Venue{
		VenueName:   v.Name,
		DisplayName: v.DisplayName,
		Author:      v.Author,
		TrackLength: v.TrackLength,
		Latitude:    v.Latitude,
		Longitude:   v.Longitude,
		Location:    position3DToPoint(v.Location),
	}
}
