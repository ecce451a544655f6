package core

import "time"

// Entity represents a tracked competitor (car, kart, drone, runner).
// ID is the ObjectID - the feed's identifier for this entity.
type Entity struct {
	ID        uint16 // ObjectID - feed identifier
	JoinTime  time.Time
	JoinFrame uint
	Name      string
	Team      string
	Class     string
	CarNumber int
	IsPlayer  bool
}

// Team groups entities for team-level lap counting.
type Team struct {
	Name  string
	Color string
}

// Sample is one position observation for an entity. Velocity and Aux are
// opaque feed-supplied data carried through to persistence untouched.
type Sample struct {
	EntityID     uint16 // References Entity.ID (ObjectID)
	Time         time.Time
	CaptureFrame uint
	Position     Position3D
	Bearing      uint16
	Speed        float32 // m/s
	Velocity     string  // "[vx,vy,vz]" as received
	Aux          string  // raw auxiliary JSON from the feed
}

// SampleAck is the per-sample outcome reported back to the feed.
type SampleAck struct {
	EntityID     uint16
	CaptureFrame uint
	OK           bool
	LapCompleted bool
	Note         string // set on failure or qualified success
}
