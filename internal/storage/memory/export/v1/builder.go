package v1

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/lapline/lapline/pkg/core"
)

// SessionData contains all the data needed to build an export
type SessionData struct {
	Session     *core.Session
	Venue       *core.Venue
	Entities    map[uint16]*EntityRecord
	Teams       map[string]*TeamRecord
	Checkpoints map[uint16]*CheckpointRecord

	GeneralEvents []core.GeneralEvent
	TimeStates    []core.TimeState
	TrackOutlines []core.TrackOutline
}

// EntityRecord groups an entity with all its time-series data
type EntityRecord struct {
	Entity    core.Entity
	Samples   []core.Sample
	Crossings []core.Crossing
	Laps      []core.Lap
	LapTotal  int64
}

// TeamRecord groups a team with its credited lap total
type TeamRecord struct {
	Team     core.Team
	LapTotal int64
}

// CheckpointRecord pairs a checkpoint definition with its deletion state
type CheckpointRecord struct {
	Checkpoint core.Checkpoint
	Deleted    bool
}

// Build creates an Export from the session data
func Build(data *SessionData) Export {
	export := Export{
		FeedVersion:      data.Session.FeedVersion,
		EngineVersion:    data.Session.EngineVersion,
		SessionName:      data.Session.Name,
		Organizer:        data.Session.Organizer,
		ServerName:       data.Session.ServerName,
		VenueName:        data.Venue.Name,
		VenueDisplayName: data.Venue.DisplayName,
		TrackLength:      data.Venue.TrackLength,
		CaptureDelay:     data.Session.CaptureDelay,
		Tags:             data.Session.Tag,
		CountMode:        data.Session.Rules.CountMode,
		LapCap:           data.Session.Rules.LapCap,
		Times:            make([]Time, 0, len(data.TimeStates)),
		Checkpoints:      make([]Checkpoint, 0, len(data.Checkpoints)),
		Entities:         make([]Entity, 0),
		Events:           make([][]any, 0),
		Standings:        make([]Standing, 0),
		Outlines:         make([]Outline, 0, len(data.TrackOutlines)),
	}

	// Convert time states
	for _, ts := range data.TimeStates {
		export.Times = append(export.Times, Time{
			FrameNum:      ts.CaptureFrame,
			SystemTimeUTC: ts.Time.UTC().Format(time.RFC3339),
			Clock:         ts.SessionClock,
		})
	}

	// Convert checkpoints in evaluation order (ascending order, then ID)
	ids := make([]uint16, 0, len(data.Checkpoints))
	for id := range data.Checkpoints {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := data.Checkpoints[ids[i]].Checkpoint, data.Checkpoints[ids[j]].Checkpoint
		if a.Order != b.Order {
			return a.Order < b.Order
		}
		return a.ID < b.ID
	})
	for _, id := range ids {
		record := data.Checkpoints[id]
		cp := record.Checkpoint
		export.Checkpoints = append(export.Checkpoints, Checkpoint{
			ID:            cp.ID,
			Name:          cp.Name,
			IsStartFinish: boolToInt(cp.IsStartFinish),
			Order:         cp.Order,
			Min:           []float64{cp.Bounds.Min.X, cp.Bounds.Min.Y, cp.Bounds.Min.Z},
			Max:           []float64{cp.Bounds.Max.X, cp.Bounds.Max.Y, cp.Bounds.Max.Z},
			Active:        boolToInt(cp.Active),
			Deleted:       boolToInt(record.Deleted),
		})
	}

	var maxFrame uint = 0

	// Find max entity ID to size the entities array correctly
	// The JS frontend uses entities[id] to look up entities, so array index must equal entity ID
	var maxEntityID uint16 = 0
	for _, record := range data.Entities {
		if record.Entity.ID > maxEntityID {
			maxEntityID = record.Entity.ID
		}
	}

	// Create entities array with placeholder entries
	// Index N will contain entity with ID=N
	if len(data.Entities) > 0 {
		export.Entities = make([]Entity, maxEntityID+1)
	}

	for _, record := range data.Entities {
		entity := Entity{
			ID:            record.Entity.ID,
			Name:          record.Entity.Name,
			Team:          record.Entity.Team,
			Class:         record.Entity.Class,
			CarNumber:     record.Entity.CarNumber,
			IsPlayer:      boolToInt(record.Entity.IsPlayer),
			StartFrameNum: record.Entity.JoinFrame,
			LapTotal:      record.LapTotal,
			Positions:     make([][]any, 0, len(record.Samples)),
			Crossings:     make([][]any, 0, len(record.Crossings)),
			Laps:          make([][]any, 0, len(record.Laps)),
		}

		for _, s := range record.Samples {
			// Parse velocity JSON string into an actual JSON array
			var velocity any
			if s.Velocity != "" {
				if err := json.Unmarshal([]byte(s.Velocity), &velocity); err != nil {
					velocity = []any{} // Fallback to empty array on parse error
				}
			} else {
				velocity = []any{}
			}

			pos := []any{
				s.CaptureFrame,
				[]float64{s.Position.X, s.Position.Y, s.Position.Z},
				s.Bearing,
				s.Speed,
				velocity,
			}
			entity.Positions = append(entity.Positions, pos)
			if s.CaptureFrame > maxFrame {
				maxFrame = s.CaptureFrame
			}
		}

		// Format: [frameNum, checkpointId, lapCompleted]
		for _, c := range record.Crossings {
			entity.Crossings = append(entity.Crossings, []any{
				c.CaptureFrame,
				c.CheckpointID,
				boolToInt(c.LapCompleted),
			})
		}

		// Format: [frameNum, lapNumber, durationMs, credited]
		for _, l := range record.Laps {
			entity.Laps = append(entity.Laps, []any{
				l.CaptureFrame,
				l.LapNumber,
				float64(l.Duration) / float64(time.Millisecond),
				boolToInt(l.Credited),
			})
		}

		export.Entities[record.Entity.ID] = entity
	}

	export.EndFrame = maxFrame

	// Convert general events
	// Format: [frameNum, "name", message]
	for _, evt := range data.GeneralEvents {
		// Try to parse message as JSON - if it's a valid JSON array/object, use parsed value
		// Otherwise keep as string
		var message any = evt.Message
		if len(evt.Message) > 0 && (evt.Message[0] == '[' || evt.Message[0] == '{') {
			var parsed any
			if err := json.Unmarshal([]byte(evt.Message), &parsed); err == nil {
				message = parsed
			}
		}
		export.Events = append(export.Events, []any{
			evt.CaptureFrame,
			evt.Name,
			message,
		})
	}

	export.Standings = buildStandings(data)

	// Convert track outlines
	for _, o := range data.TrackOutlines {
		points := make([][]float64, len(o.Points))
		for i, pt := range o.Points {
			points[i] = []float64{pt.X, pt.Y}
		}
		export.Outlines = append(export.Outlines, Outline{
			Name:   o.Name,
			Points: points,
		})
	}

	return export
}

// buildStandings ranks teams or entities by credited laps depending on the
// session count mode. Ties break alphabetically on the key.
func buildStandings(data *SessionData) []Standing {
	standings := make([]Standing, 0)
	if data.Session.Rules.CountMode == "team" {
		for _, record := range data.Teams {
			standings = append(standings, Standing{
				Key:  record.Team.Name,
				Laps: record.LapTotal,
			})
		}
	} else {
		for _, record := range data.Entities {
			standings = append(standings, Standing{
				Key:  record.Entity.Name,
				Laps: record.LapTotal,
			})
		}
	}
	sort.Slice(standings, func(i, j int) bool {
		if standings[i].Laps != standings[j].Laps {
			return standings[i].Laps > standings[j].Laps
		}
		return standings[i].Key < standings[j].Key
	})
	return standings
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
