// Package v1 contains the v1 export format for finished session recordings.
// This format is read by the lapline-web replay frontend.
package v1

// Export is the root JSON structure for v1 format
type Export struct {
	FeedVersion      string       `json:"feedVersion"`
	EngineVersion    string       `json:"engineVersion"`
	SessionName      string       `json:"sessionName"`
	Organizer        string       `json:"organizer"`
	ServerName       string       `json:"serverName"`
	VenueName        string       `json:"venueName"`
	VenueDisplayName string       `json:"venueDisplayName"`
	TrackLength      float32      `json:"trackLength"`
	CaptureDelay     float32      `json:"captureDelay"`
	Tags             string       `json:"tags"`
	CountMode        string       `json:"countMode"`
	LapCap           int          `json:"lapCap"`
	EndFrame         uint         `json:"endFrame"`
	Times            []Time       `json:"times"`
	Checkpoints      []Checkpoint `json:"checkpoints"`
	Entities         []Entity     `json:"entities"`
	Events           [][]any      `json:"events"`
	Standings        []Standing   `json:"standings"`
	Outlines         []Outline    `json:"outlines"`
}

// Time represents clock synchronization data for a frame
type Time struct {
	FrameNum      uint    `json:"frameNum"`
	SystemTimeUTC string  `json:"systemTimeUTC"`
	Clock         float64 `json:"clock"`
}

// Checkpoint describes one timing box. Checkpoints deleted mid-session are
// kept with deleted=1 so the frontend can still resolve crossings that
// reference them.
type Checkpoint struct {
	ID            uint16    `json:"id"`
	Name          string    `json:"name"`
	IsStartFinish int       `json:"isStartFinish"`
	Order         int32     `json:"order"`
	Min           []float64 `json:"min"`
	Max           []float64 `json:"max"`
	Active        int       `json:"active"`
	Deleted       int       `json:"deleted"`
}

// Entity represents one tracked competitor
type Entity struct {
	ID            uint16  `json:"id"`
	Name          string  `json:"name"`
	Team          string  `json:"team,omitempty"`
	Class         string  `json:"class,omitempty"`
	CarNumber     int     `json:"carNumber"`
	IsPlayer      int     `json:"isPlayer"`
	StartFrameNum uint    `json:"startFrameNum"`
	LapTotal      int64   `json:"lapTotal"`
	Positions     [][]any `json:"positions"`
	Crossings     [][]any `json:"crossings"`
	Laps          [][]any `json:"laps"`
}

// Standing is one leaderboard row at session end
type Standing struct {
	Key  string `json:"key"`
	Laps int64  `json:"laps"`
}

// Outline is a named track outline polyline
type Outline struct {
	Name   string      `json:"name"`
	Points [][]float64 `json:"points"`
}
