package convert

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lapline/lapline/internal/model"
	"github.com/lapline/lapline/pkg/core"
	"github.com/lapline/lapline/pkg/geometry"
)

func TestPositionPointRoundTrip(t *testing.T) {
	pos := core.Position3D{X: 512.25, Y: 1024.5, Z: 3.75}

	pt := position3DToPoint(pos)
	back := pointToPosition3D(pt)

	assert.Equal(t, pos, back)
}

func TestPointToPosition3D_EmptyPoint(t *testing.T) {
	// zero value point is empty and maps to the origin
	row := model.Venue{}
	assert.Equal(t, core.Position3D{}, pointToPosition3D(row.Location))
}

func TestPolylineLineStringRoundTrip(t *testing.T) {
	polyline := core.Polyline{
		{X: 0, Y: 0},
		{X: 100, Y: 0},
		{X: 100, Y: 50},
	}

	ls := polylineToLineString(polyline)
	back := lineStringToPolyline(ls)

	assert.Equal(t, polyline, back)
}

func TestLineStringToPolyline_Empty(t *testing.T) {
	assert.Nil(t, lineStringToPolyline(polylineToLineString(nil)))
}

func TestEntityRoundTrip(t *testing.T) {
	entity := core.Entity{
		ID:        7,
		JoinTime:  time.Now().Truncate(time.Millisecond),
		JoinFrame: 120,
		Name:      "M. Verweij",
		Team:      "Red Racing",
		Class:     "GT3",
		CarNumber: 44,
		IsPlayer:  true,
	}

	row := CoreToEntity(entity)
	assert.Equal(t, uint16(7), row.ObjectID)
	assert.Equal(t, "M. Verweij", row.EntityName)
	assert.Equal(t, "Red Racing", row.TeamName)

	back := EntityToCore(row)
	assert.Equal(t, entity, back)
}

func TestTeamRoundTrip(t *testing.T) {
	team := core.Team{Name: "Red Racing", Color: "#d93025"}

	row := CoreToTeam(team)
	assert.Equal(t, "Red Racing", row.Name)

	assert.Equal(t, team, TeamToCore(row))
}

func TestCheckpointRoundTrip(t *testing.T) {
	checkpoint := core.Checkpoint{
		ID:            10,
		Name:          "Turn 1 Apex",
		IsStartFinish: false,
		Order:         1,
		Bounds: geometry.NewBox3(
			geometry.Position3D{X: 100, Y: 200, Z: 0},
			geometry.Position3D{X: 110, Y: 215, Z: 8},
		),
		Active: true,
	}

	row := CoreToCheckpoint(checkpoint)
	assert.Equal(t, uint16(10), row.ObjectID)
	assert.Equal(t, int32(1), row.SortOrder)

	back := CheckpointToCore(row)
	assert.Equal(t, checkpoint, back)
}

func TestPositionRecordRoundTrip(t *testing.T) {
	sample := core.Sample{
		EntityID:     7,
		Time:         time.Now().Truncate(time.Millisecond),
		CaptureFrame: 4810,
		Position:     core.Position3D{X: 512.25, Y: 1024.5, Z: 3.1},
		Bearing:      182,
		Speed:        41.7,
		Velocity:     "[12.1,-39.9,0.2]",
		Aux:          `{"throttle":0.92}`,
	}

	row := CoreToPositionRecord(sample)
	require.Equal(t, uint16(7), row.EntityObjectID)
	assert.JSONEq(t, `{"throttle":0.92}`, string(row.Aux))

	back := PositionRecordToCore(row)
	assert.Equal(t, sample, back)
}

func TestCoreToPositionRecord_AuxHandling(t *testing.T) {
	tests := []struct {
		name string
		aux  string
		want string
	}{
		{"empty becomes object", "", "{}"},
		{"invalid becomes object", "{broken", "{}"},
		{"valid passes through", `{"gear":4}`, `{"gear":4}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := CoreToPositionRecord(core.Sample{Aux: tt.aux})
			assert.JSONEq(t, tt.want, string(row.Aux))
		})
	}
}

func TestCrossingRoundTrip(t *testing.T) {
	crossing := core.Crossing{
		EntityID:     7,
		CheckpointID: 10,
		Time:         time.Now().Truncate(time.Millisecond),
		CaptureFrame: 4810,
		SegmentFrom:  core.Position3D{X: 99, Y: 199, Z: 1},
		SegmentTo:    core.Position3D{X: 105, Y: 208, Z: 2},
		LapCompleted: true,
	}

	row := CoreToCrossing(crossing)
	assert.Equal(t, uint16(10), row.CheckpointObjectID)
	assert.True(t, row.LapCompleted)

	back := CrossingToCore(row)
	assert.Equal(t, crossing, back)
}

func TestLapRoundTrip(t *testing.T) {
	lap := core.Lap{
		EntityID:     7,
		Team:         "Red Racing",
		LapNumber:    12,
		Time:         time.Now().Truncate(time.Millisecond),
		CaptureFrame: 4810,
		Duration:     92*time.Second + 417*time.Millisecond,
		Credited:     true,
	}

	row := CoreToLap(lap)
	assert.Equal(t, float64(92417), row.DurationMs)

	back := LapToCore(row)
	assert.Equal(t, lap, back)
}

func TestGeneralEventRoundTrip(t *testing.T) {
	event := core.GeneralEvent{
		Time:         time.Now().Truncate(time.Millisecond),
		CaptureFrame: 2450,
		Name:         "raceControl",
		Message:      "Yellow flag sector 2",
		ExtraData:    map[string]any{"sector": float64(2)},
	}

	row := CoreToGeneralEvent(event)
	back := GeneralEventToCore(row)

	assert.Equal(t, event.Name, back.Name)
	assert.Equal(t, event.Message, back.Message)
	assert.Equal(t, event.ExtraData, back.ExtraData)
}

func TestCoreToGeneralEvent_NoExtraData(t *testing.T) {
	row := CoreToGeneralEvent(core.GeneralEvent{Name: "connected"})
	assert.JSONEq(t, "{}", string(row.ExtraData))
}

func TestFeedStatusRoundTrip(t *testing.T) {
	status := core.FeedStatus{
		Time:           time.Now().Truncate(time.Millisecond),
		CaptureFrame:   4810,
		SampleRate:     10,
		LatencyMs:      38.5,
		DroppedSamples: 12,
	}

	assert.Equal(t, status, FeedStatusToCore(CoreToFeedStatus(status)))
}

func TestTimeStateRoundTrip(t *testing.T) {
	timeState := core.TimeState{
		Time:         time.Now().Truncate(time.Millisecond),
		CaptureFrame: 4810,
		SessionClock: 481.05,
	}

	assert.Equal(t, timeState, TimeStateToCore(CoreToTimeState(timeState)))
}

func TestTrackOutlineRoundTrip(t *testing.T) {
	outline := core.TrackOutline{
		Name: "racing line",
		Points: core.Polyline{
			{X: 0, Y: 0},
			{X: 100, Y: 0},
		},
	}

	assert.Equal(t, outline, TrackOutlineToCore(CoreToTrackOutline(outline)))
}

func TestSessionRoundTrip(t *testing.T) {
	session := core.Session{
		Name:          "Sprint Heat 2",
		Tag:           "Race",
		ServerName:    "lapline-eu-1",
		Organizer:     "SimLeague",
		StartTime:     time.Now().Truncate(time.Millisecond),
		VenueID:       3,
		CaptureDelay:  1.0,
		FeedVersion:   "1.0.0",
		EngineVersion: "2.0.0",
		Rules:         core.RuleSet{CountMode: "team", LapCap: 20},
	}

	row := CoreToSession(session)
	assert.Equal(t, "team", row.CountMode)
	assert.Equal(t, 20, row.LapCap)

	back := SessionToCore(&row)
	assert.Equal(t, session, back)
}

func TestVenueRoundTrip(t *testing.T) {
	venue := core.Venue{
		Name:        "monza_gp",
		DisplayName: "Autodromo Nazionale Monza",
		Author:      "circuit-data",
		TrackLength: 5793,
		Latitude:    45.62,
		Longitude:   9.28,
		Location:    core.Position3D{X: 1033042, Y: 5713820},
	}

	row := CoreToVenue(venue)
	back := VenueToCore(&row)
	assert.Equal(t, venue, back)
}
