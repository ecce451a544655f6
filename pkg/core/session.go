// pkg/core/session.go
package core

import "time"

// Venue represents a track or circuit location.
type Venue struct {
	ID          uint
	Name        string
	DisplayName string
	Author      string
	TrackLength float32 // meters, 0 when unknown
	Latitude    float32
	Longitude   float32
	Location    Position3D // web mercator, derived from Latitude/Longitude
}

// RuleSet is the lap-counting configuration active for a session.
// CountMode selects whether completed laps credit the entity or its team.
type RuleSet struct {
	CountMode string // "entity" or "team"
	LapCap    int    // 0 = uncapped
}

// Session represents one recorded timing session.
type Session struct {
	ID            uint
	Name          string
	Tag           string
	ServerName    string
	Organizer     string
	StartTime     time.Time
	VenueID       uint
	CaptureDelay  float32 // nominal seconds between samples, for display
	FeedVersion   string
	EngineVersion string
	Rules         RuleSet
}
