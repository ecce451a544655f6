package session

import (
	"sync"
	"time"

	"github.com/lapline/lapline/internal/cache"
	"github.com/lapline/lapline/pkg/core"
)

// Context holds the current session and venue state
type Context struct {
	mu      sync.RWMutex
	Session *core.Session
	Venue   *core.Venue
	time    core.TimeState

	// Frame tracks the latest capture frame reported by the feed
	Frame cache.SafeCounter

	startedAt time.Time
}

// NewContext creates a new Context with default values
func NewContext() *Context {
	return &Context{
		Session: &core.Session{Name: "No session loaded"},
		Venue:   &core.Venue{Name: "No venue loaded"},
	}
}

// GetSession returns the current session
func (sc *Context) GetSession() *core.Session {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.Session
}

// GetVenue returns the current venue
func (sc *Context) GetVenue() *core.Venue {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.Venue
}

// SetSession sets the current session and venue and restarts the frame clock
func (sc *Context) SetSession(session *core.Session, venue *core.Venue) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.Session = session
	sc.Venue = venue
	sc.time = core.TimeState{}
	sc.startedAt = time.Now()
	sc.Frame.Set(0)
}

// StartedAt returns the wall clock time the current session was loaded
func (sc *Context) StartedAt() time.Time {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.startedAt
}

// SetTimeState records the latest clock report from the feed
func (sc *Context) SetTimeState(ts core.TimeState) {
	sc.mu.Lock()
	sc.time = ts
	sc.mu.Unlock()
	sc.Frame.Set(int(ts.CaptureFrame))
}

// GetTimeState returns the latest clock report from the feed
func (sc *Context) GetTimeState() core.TimeState {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.time
}
