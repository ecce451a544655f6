package convert

import (
	"encoding/json"
	"testing"
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/lapline/lapline/internal/model"
	"github.com/lapline/lapline/pkg/core"
)

// Helper to create a geom.Point from coordinates
func makePoint(x, y, z float64) geom.Point {
	coords := geom.Coordinates{XY: geom.XY{X: x, Y: y}, Z: z, Type: geom.DimXYZ}
	return geom.NewPoint(coords)
}

func TestPosition3DToPoint(t *testing.T) {
	pos := core.Position3D{X: 512.25, Y: 1024.5, Z: 3.1}
	pt := position3DToPoint(pos)

	coord, ok := pt.Coordinates()
	require.True(t, ok)
	assert.Equal(t, 512.25, coord.XY.X)
	assert.Equal(t, 1024.5, coord.XY.Y)
	assert.Equal(t, 3.1, coord.Z)
}

func TestPolylineToLineString(t *testing.T) {
	poly := core.Polyline{
		{X: 100.0, Y: 200.0},
		{X: 300.0, Y: 400.0},
		{X: 500.0, Y: 600.0},
	}
	ls := polylineToLineString(poly)

	seq := ls.Coordinates()
	require.Equal(t, 3, seq.Length())
	assert.Equal(t, 100.0, seq.GetXY(0).X)
	assert.Equal(t, 200.0, seq.GetXY(0).Y)
	assert.Equal(t, 500.0, seq.GetXY(2).X)
	assert.Equal(t, 600.0, seq.GetXY(2).Y)
}

func TestPolylineToLineString_Empty(t *testing.T) {
	ls := polylineToLineString(nil)
	assert.True(t, ls.IsEmpty())
}

func TestAuxToJSON(t *testing.T) {
	assert.Equal(t, datatypes.JSON("{}"), auxToJSON(""))
	assert.Equal(t, datatypes.JSON("{}"), auxToJSON("not json"))
	assert.Equal(t, datatypes.JSON(`{"gear":4}`), auxToJSON(`{"gear":4}`))
}

// Round-trip: GORM → Core → GORM
func TestEntityRowRoundTrip(t *testing.T) {
	now := time.Now().Truncate(time.Millisecond)

	original := model.Entity{
		ObjectID:   42,
		JoinTime:   now,
		JoinFrame:  10,
		EntityName: "A. Kowalski",
		TeamName:   "Blue Racing",
		Class:      "LMP2",
		CarNumber:  31,
		IsPlayer:   true,
	}

	coreObj := EntityToCore(original)
	roundTripped := CoreToEntity(coreObj)

	assert.Equal(t, original.ObjectID, roundTripped.ObjectID)
	assert.Equal(t, original.JoinTime, roundTripped.JoinTime)
	assert.Equal(t, original.JoinFrame, roundTripped.JoinFrame)
	assert.Equal(t, original.EntityName, roundTripped.EntityName)
	assert.Equal(t, original.TeamName, roundTripped.TeamName)
	assert.Equal(t, original.Class, roundTripped.Class)
	assert.Equal(t, original.CarNumber, roundTripped.CarNumber)
	assert.Equal(t, original.IsPlayer, roundTripped.IsPlayer)
}

func TestCheckpointRowRoundTrip(t *testing.T) {
	original := model.CheckpointRecord{
		ObjectID:      10,
		Name:          "Sector 2 Gate",
		IsStartFinish: false,
		SortOrder:     2,
		BoundsMin:     makePoint(100.0, 200.0, 0.0),
		BoundsMax:     makePoint(110.0, 215.0, 8.0),
		Active:        true,
	}

	coreObj := CheckpointToCore(original)
	roundTripped := CoreToCheckpoint(coreObj)

	assert.Equal(t, original.ObjectID, roundTripped.ObjectID)
	assert.Equal(t, original.Name, roundTripped.Name)
	assert.Equal(t, original.IsStartFinish, roundTripped.IsStartFinish)
	assert.Equal(t, original.SortOrder, roundTripped.SortOrder)
	assert.Equal(t, original.Active, roundTripped.Active)

	// Verify bounds round-trip through Point
	minCoord, ok := roundTripped.BoundsMin.Coordinates()
	require.True(t, ok)
	assert.Equal(t, 100.0, minCoord.XY.X)
	assert.Equal(t, 200.0, minCoord.XY.Y)
	assert.Equal(t, 0.0, minCoord.Z)

	maxCoord, ok := roundTripped.BoundsMax.Coordinates()
	require.True(t, ok)
	assert.Equal(t, 110.0, maxCoord.XY.X)
	assert.Equal(t, 215.0, maxCoord.XY.Y)
	assert.Equal(t, 8.0, maxCoord.Z)
}

func TestPositionRowRoundTrip(t *testing.T) {
	now := time.Now().Truncate(time.Millisecond)

	original := model.PositionRecord{
		EntityObjectID: 7,
		Time:           now,
		CaptureFrame:   4810,
		Position:       makePoint(512.25, 1024.5, 3.1),
		Bearing:        182,
		Speed:          41.7,
		Velocity:       "[12.1,-39.9,0.2]",
		Aux:            datatypes.JSON(`{"throttle":0.92}`),
	}

	coreObj := PositionRecordToCore(original)
	roundTripped := CoreToPositionRecord(coreObj)

	assert.Equal(t, original.EntityObjectID, roundTripped.EntityObjectID)
	assert.Equal(t, original.Time, roundTripped.Time)
	assert.Equal(t, original.CaptureFrame, roundTripped.CaptureFrame)
	assert.Equal(t, original.Bearing, roundTripped.Bearing)
	assert.Equal(t, original.Speed, roundTripped.Speed)
	assert.Equal(t, original.Velocity, roundTripped.Velocity)

	// Aux: compare unmarshalled values (JSON serialization may differ in whitespace)
	var origAux, rtAux map[string]any
	json.Unmarshal(original.Aux, &origAux)
	json.Unmarshal(roundTripped.Aux, &rtAux)
	assert.Equal(t, origAux, rtAux)

	// Verify position round-trips through Point
	origCoord, _ := original.Position.Coordinates()
	rtCoord, _ := roundTripped.Position.Coordinates()
	assert.Equal(t, origCoord.XY.X, rtCoord.XY.X)
	assert.Equal(t, origCoord.XY.Y, rtCoord.XY.Y)
	assert.Equal(t, origCoord.Z, rtCoord.Z)
}

func TestCrossingRowRoundTrip(t *testing.T) {
	now := time.Now().Truncate(time.Millisecond)

	original := model.CrossingRecord{
		EntityObjectID:     7,
		CheckpointObjectID: 10,
		Time:               now,
		CaptureFrame:       4810,
		SegmentFrom:        makePoint(99.0, 199.0, 1.0),
		SegmentTo:          makePoint(105.0, 208.0, 2.0),
		LapCompleted:       false,
	}

	coreObj := CrossingToCore(original)
	roundTripped := CoreToCrossing(coreObj)

	assert.Equal(t, original.EntityObjectID, roundTripped.EntityObjectID)
	assert.Equal(t, original.CheckpointObjectID, roundTripped.CheckpointObjectID)
	assert.Equal(t, original.Time, roundTripped.Time)
	assert.Equal(t, original.CaptureFrame, roundTripped.CaptureFrame)
	assert.Equal(t, original.LapCompleted, roundTripped.LapCompleted)

	fromCoord, ok := roundTripped.SegmentFrom.Coordinates()
	require.True(t, ok)
	assert.Equal(t, 99.0, fromCoord.XY.X)
	toCoord, ok := roundTripped.SegmentTo.Coordinates()
	require.True(t, ok)
	assert.Equal(t, 105.0, toCoord.XY.X)
}

func TestLapRowRoundTrip(t *testing.T) {
	now := time.Now().Truncate(time.Millisecond)

	original := model.LapRecord{
		EntityObjectID: 7,
		TeamName:       "Blue Racing",
		LapNumber:      12,
		Time:           now,
		CaptureFrame:   4810,
		DurationMs:     92417.0,
		Credited:       true,
	}

	coreObj := LapToCore(original)
	roundTripped := CoreToLap(coreObj)

	assert.Equal(t, original.EntityObjectID, roundTripped.EntityObjectID)
	assert.Equal(t, original.TeamName, roundTripped.TeamName)
	assert.Equal(t, original.LapNumber, roundTripped.LapNumber)
	assert.Equal(t, original.Time, roundTripped.Time)
	assert.Equal(t, original.CaptureFrame, roundTripped.CaptureFrame)
	assert.Equal(t, original.DurationMs, roundTripped.DurationMs)
	assert.Equal(t, original.Credited, roundTripped.Credited)
}

func TestGeneralEventRowRoundTrip(t *testing.T) {
	now := time.Now().Truncate(time.Millisecond)
	extraData, _ := json.Marshal(map[string]any{"sector": 2})

	original := model.GeneralEventRecord{
		Time:         now,
		CaptureFrame: 100,
		Name:         "raceControl",
		Message:      "Yellow flag sector 2",
		ExtraData:    datatypes.JSON(extraData),
	}

	coreObj := GeneralEventToCore(original)
	roundTripped := CoreToGeneralEvent(coreObj)

	assert.Equal(t, original.Time, roundTripped.Time)
	assert.Equal(t, original.CaptureFrame, roundTripped.CaptureFrame)
	assert.Equal(t, original.Name, roundTripped.Name)
	assert.Equal(t, original.Message, roundTripped.Message)
	// Compare unmarshalled ExtraData
	var origExtra, rtExtra map[string]any
	json.Unmarshal(original.ExtraData, &origExtra)
	json.Unmarshal(roundTripped.ExtraData, &rtExtra)
	assert.Equal(t, origExtra, rtExtra)
}

func TestFeedStatusRowRoundTrip(t *testing.T) {
	now := time.Now().Truncate(time.Millisecond)

	original := model.FeedStatusRecord{
		Time:           now,
		CaptureFrame:   100,
		SampleRate:     10.0,
		LatencyMs:      38.5,
		DroppedSamples: 12,
	}

	coreObj := FeedStatusToCore(original)
	roundTripped := CoreToFeedStatus(coreObj)

	assert.Equal(t, original.Time, roundTripped.Time)
	assert.Equal(t, original.CaptureFrame, roundTripped.CaptureFrame)
	assert.Equal(t, original.SampleRate, roundTripped.SampleRate)
	assert.Equal(t, original.LatencyMs, roundTripped.LatencyMs)
	assert.Equal(t, original.DroppedSamples, roundTripped.DroppedSamples)
}

func TestTimeStateRowRoundTrip(t *testing.T) {
	now := time.Now().Truncate(time.Millisecond)

	original := model.TimeStateRecord{
		Time:         now,
		CaptureFrame: 100,
		SessionClock: 481.05,
	}

	coreObj := TimeStateToCore(original)
	roundTripped := CoreToTimeState(coreObj)

	assert.Equal(t, original.Time, roundTripped.Time)
	assert.Equal(t, original.CaptureFrame, roundTripped.CaptureFrame)
	assert.Equal(t, original.SessionClock, roundTripped.SessionClock)
}

func TestTrackOutlineRowRoundTrip(t *testing.T) {
	original := model.TrackOutlineRecord{
		Name: "pit lane",
		Polyline: polylineToLineString(core.Polyline{
			{X: 100.0, Y: 200.0},
			{X: 300.0, Y: 400.0},
		}),
	}

	coreObj := TrackOutlineToCore(original)
	roundTripped := CoreToTrackOutline(coreObj)

	assert.Equal(t, original.Name, roundTripped.Name)

	seq := roundTripped.Polyline.Coordinates()
	require.Equal(t, 2, seq.Length())
	assert.Equal(t, 100.0, seq.GetXY(0).X)
	assert.Equal(t, 400.0, seq.GetXY(1).Y)
}

// Compile-time interface checks for CoreToX functions
var (
	_ model.Entity             = CoreToEntity(core.Entity{})
	_ model.TeamRecord         = CoreToTeam(core.Team{})
	_ model.CheckpointRecord   = CoreToCheckpoint(core.Checkpoint{})
	_ model.PositionRecord     = CoreToPositionRecord(core.Sample{})
	_ model.CrossingRecord     = CoreToCrossing(core.Crossing{})
	_ model.LapRecord          = CoreToLap(core.Lap{})
	_ model.GeneralEventRecord = CoreToGeneralEvent(core.GeneralEvent{})
	_ model.FeedStatusRecord   = CoreToFeedStatus(core.FeedStatus{})
	_ model.TimeStateRecord    = CoreToTimeState(core.TimeState{})
	_ model.TrackOutlineRecord = CoreToTrackOutline(core.TrackOutline{})
	_ model.Session            = CoreToSession(core.Session{})
	_ model.Venue              = CoreToVenue(core.Venue{})
)
