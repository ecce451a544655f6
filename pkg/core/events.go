// pkg/core/events.go
package core

import "time"

// GeneralEvent is a generic session event (feed connect/disconnect, session
// end, custom events from the feed).
type GeneralEvent struct {
	ID           uint
	Time         time.Time
	CaptureFrame uint
	Name         string
	Message      string
	ExtraData    map[string]any
}

// FeedStatus reports telemetry-feed health at a point in time.
type FeedStatus struct {
	Time           time.Time
	CaptureFrame   uint
	SampleRate     float32 // samples/sec the feed claims to emit
	LatencyMs      float32
	DroppedSamples uint32
}

// TimeState maps a capture frame to wall time and session clock, letting
// replays align frames with real time.
type TimeState struct {
	Time         time.Time
	CaptureFrame uint
	SessionClock float64 // seconds since session start
}

// UploadMetadata describes an exported session for the results frontend.
type UploadMetadata struct {
	SessionName string
	VenueName   string
	Tag         string
	StartTime   time.Time
	EntityCount int
	TotalLaps   int64
}
