// Package worker routes feed commands into the race state machine and the
// storage backend.
package worker

import (
	"fmt"
	"sync"
	"time"

	"github.com/lapline/lapline/internal/cache"
	"github.com/lapline/lapline/internal/config"
	"github.com/lapline/lapline/internal/engine"
	"github.com/lapline/lapline/internal/logging"
	"github.com/lapline/lapline/internal/parser"
	"github.com/lapline/lapline/internal/race"
	"github.com/lapline/lapline/internal/session"
	"github.com/lapline/lapline/internal/storage"
	"github.com/lapline/lapline/internal/track"
	"github.com/lapline/lapline/internal/trajectory"
	"github.com/lapline/lapline/pkg/core"
)

// ErrNoActiveSession is returned when race data arrives outside a session
var ErrNoActiveSession = fmt.Errorf("no active session")

// Dependencies holds all dependencies for the worker manager. Every field is
// required except the two callbacks.
type Dependencies struct {
	Registry   *cache.Registry
	SessionCtx *session.Context
	LogManager *logging.SlogManager
	Parser     *parser.Parser

	// OnAck, if set, receives the acknowledgment for every position sample.
	OnAck func(core.SampleAck)
	// OnCrossing, if set, receives every crossing the engine records.
	OnCrossing func(core.Crossing)
	// OnLap, if set, receives every lap the engine records.
	OnLap func(core.Lap)
	// OnFeedStatus, if set, receives every feed health report.
	OnFeedStatus func(core.FeedStatus)
	// OnSessionEnd, if set, is called after a session has been closed out.
	OnSessionEnd func()
}

// raceState is the detection state of one session. A fresh one is built on
// every :NEW:SESSION: so nothing leaks between sessions.
type raceState struct {
	engine   *engine.Engine
	catalog  *track.Catalog
	progress *race.Progress
	counter  *race.Counter
}

// Manager owns the per-session race state and the handlers that feed it
type Manager struct {
	deps    Dependencies
	backend storage.Backend

	mu    sync.RWMutex
	state *raceState
}

// NewManager creates a new worker manager
func NewManager(deps Dependencies, backend storage.Backend) *Manager {
	return &Manager{
		deps:    deps,
		backend: backend,
	}
}

// current returns the active session's race state, or nil outside a session.
func (m *Manager) current() *raceState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// buildState assembles fresh race state for a session with the given rules.
func (m *Manager) buildState(mode race.Mode, lapCap int) (*raceState, error) {
	st := &raceState{
		catalog:  track.NewCatalog(),
		progress: race.NewProgress(),
		counter:  race.NewCounter(mode, lapCap),
	}

	eng, err := engine.New(engine.Dependencies{
		Tracker:    trajectory.NewTracker(),
		Catalog:    st.catalog,
		Progress:   st.progress,
		Counter:    st.counter,
		Registry:   m.deps.Registry,
		Store:      m.backend,
		LogManager: m.deps.LogManager,
		OnCrossing: m.deps.OnCrossing,
		OnLap:      m.deps.OnLap,
	})
	if err != nil {
		return nil, err
	}
	st.engine = eng

	return st, nil
}

// resolveRules overlays the configured defaults onto the rules the feed sent
// and validates the result. The effective rules are written back to the
// session so they are persisted with it.
func (m *Manager) resolveRules(sess *core.Session) (race.Mode, error) {
	defaults := config.GetRaceConfig()
	if sess.Rules.CountMode == "" {
		sess.Rules.CountMode = defaults.CountMode
	}
	if sess.Rules.LapCap == 0 {
		sess.Rules.LapCap = defaults.LapCap
	}
	return race.ParseMode(sess.Rules.CountMode)
}

// Standings returns the current session's lap standings, nil outside a session.
func (m *Manager) Standings() []core.Standing {
	st := m.current()
	if st == nil {
		return nil
	}
	return st.engine.Standings()
}

// DBWriteDurationProvider is an optional interface that backends can implement
// to expose their last DB write duration for monitoring.
type DBWriteDurationProvider interface {
	GetLastDBWriteDuration() time.Duration
}

// GetLastDBWriteDuration returns the duration of the last DB write cycle.
// Returns 0 if the backend doesn't support this metric.
func (m *Manager) GetLastDBWriteDuration() time.Duration {
	if p, ok := m.backend.(DBWriteDurationProvider); ok {
		return p.GetLastDBWriteDuration()
	}
	return 0
}
