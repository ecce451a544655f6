package worker

import (
	"fmt"

	"github.com/lapline/lapline/internal/dispatcher"
	"github.com/lapline/lapline/pkg/core"
)

// RegisterHandlers registers all feed command handlers with the dispatcher.
func (m *Manager) RegisterHandlers(d *dispatcher.Dispatcher) {
	// Session lifecycle - sync (everything else depends on it)
	d.Register(":NEW:SESSION:", m.handleNewSession, dispatcher.Logged())
	d.Register(":END:SESSION:", m.handleEndSession, dispatcher.Logged())

	// Entity announcements - sync (must be cached before samples arrive)
	d.Register(":NEW:ENTITY:", m.handleNewEntity, dispatcher.Logged())

	// Checkpoint admin - sync (the next sample must see the edit)
	d.Register(":NEW:CHECKPOINT:", m.handleNewCheckpoint, dispatcher.Logged())
	d.Register(":CHECKPOINT:DELETE:", m.handleCheckpointDelete, dispatcher.Logged())
	d.Register(":CHECKPOINT:ACTIVE:", m.handleCheckpointActive, dispatcher.Logged())

	// High-volume position samples - buffered
	d.Register(":ENTITY:POS:", m.handleEntityPos, dispatcher.Buffered(10000), dispatcher.Logged())

	// Clock sync - buffered
	d.Register(":TIME:", m.handleTimeState, dispatcher.Buffered(100), dispatcher.Logged())

	// Ambient records - buffered
	d.Register(":EVENT:", m.handleGeneralEvent, dispatcher.Buffered(1000), dispatcher.Logged())
	d.Register(":FEED:STATUS:", m.handleFeedStatus, dispatcher.Buffered(1000), dispatcher.Logged())

	// Display geometry - sync (one shot per session)
	d.Register(":TRACK:OUTLINE:", m.handleTrackOutline, dispatcher.Logged())

	// Queries - sync return is sufficient
	d.Register(":LEADERBOARD:", m.handleLeaderboard)
}

func (m *Manager) handleNewSession(e dispatcher.Event) (any, error) {
	sess, venue, err := m.deps.Parser.ParseSession(e.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}

	mode, err := m.resolveRules(&sess)
	if err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}

	st, err := m.buildState(mode, sess.Rules.LapCap)
	if err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}

	if err := m.backend.StartSession(&sess, &venue); err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}

	// Commit only once the backend accepted the session.
	m.deps.Registry.Reset()
	m.deps.SessionCtx.SetSession(&sess, &venue)
	m.mu.Lock()
	m.state = st
	m.mu.Unlock()

	m.deps.LogManager.Logger().Info("Session started",
		"sessionName", sess.Name,
		"venueName", venue.Name,
		"countMode", sess.Rules.CountMode,
		"lapCap", sess.Rules.LapCap)

	return "ok", nil
}

func (m *Manager) handleEndSession(e dispatcher.Event) (any, error) {
	// Drop the race state first so samples still draining from the buffer
	// are rejected instead of attributed to the ended session.
	m.mu.Lock()
	m.state = nil
	m.mu.Unlock()

	if err := m.backend.EndSession(); err != nil {
		return nil, fmt.Errorf("failed to end session: %w", err)
	}

	m.deps.LogManager.Logger().Info("Session ended")

	if m.deps.OnSessionEnd != nil {
		m.deps.OnSessionEnd()
	}
	return "ok", nil
}

func (m *Manager) handleNewEntity(e dispatcher.Event) (any, error) {
	if m.current() == nil {
		return nil, ErrNoActiveSession
	}

	entity, team, err := m.deps.Parser.ParseEntity(e.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to register entity: %w", err)
	}

	// Always cache before samples can reference the entity
	m.deps.Registry.AddEntity(entity)

	if team.Name != "" {
		if _, known := m.deps.Registry.GetTeam(team.Name); !known {
			m.deps.Registry.AddTeam(team)
			if err := m.backend.AddTeam(&team); err != nil {
				return nil, fmt.Errorf("failed to register entity: %w", err)
			}
		}
	}

	if err := m.backend.AddEntity(&entity); err != nil {
		return nil, fmt.Errorf("failed to register entity: %w", err)
	}

	return nil, nil
}

func (m *Manager) handleNewCheckpoint(e dispatcher.Event) (any, error) {
	st := m.current()
	if st == nil {
		return nil, ErrNoActiveSession
	}

	cp, err := m.deps.Parser.ParseCheckpoint(e.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to put checkpoint: %w", err)
	}

	// Catalog first: the next sample must see the edit even if persistence
	// lags behind.
	st.catalog.Put(cp)

	if err := m.backend.PutCheckpoint(&cp); err != nil {
		return nil, fmt.Errorf("failed to put checkpoint: %w", err)
	}

	return nil, nil
}

func (m *Manager) handleCheckpointDelete(e dispatcher.Event) (any, error) {
	st := m.current()
	if st == nil {
		return nil, ErrNoActiveSession
	}

	id, err := m.deps.Parser.ParseCheckpointDelete(e.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to delete checkpoint: %w", err)
	}

	if !st.catalog.Delete(id) {
		m.deps.LogManager.Logger().Warn("Delete for unknown checkpoint", "checkpointID", id)
	}
	// Prune it from every entity's collected set so a stale id cannot hold
	// laps open.
	st.progress.Invalidate(id)

	if err := m.backend.DeleteCheckpoint(id); err != nil {
		return nil, fmt.Errorf("failed to delete checkpoint: %w", err)
	}

	return nil, nil
}

func (m *Manager) handleCheckpointActive(e dispatcher.Event) (any, error) {
	st := m.current()
	if st == nil {
		return nil, ErrNoActiveSession
	}

	id, active, err := m.deps.Parser.ParseCheckpointActive(e.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to toggle checkpoint: %w", err)
	}

	if !st.catalog.SetActive(id, active) {
		m.deps.LogManager.Logger().Warn("Activation toggle for unknown checkpoint", "checkpointID", id)
	}

	if err := m.backend.SetCheckpointActive(id, active); err != nil {
		return nil, fmt.Errorf("failed to toggle checkpoint: %w", err)
	}

	return nil, nil
}

func (m *Manager) handleEntityPos(e dispatcher.Event) (any, error) {
	st := m.current()
	if st == nil {
		return nil, ErrNoActiveSession
	}

	sample, err := m.deps.Parser.ParseSample(e.Args)
	if err != nil {
		// A malformed sample is rejected alone; the feed keeps streaming.
		// Echo back whatever identity did parse so the feed can match the
		// failure to its sample.
		m.ack(core.SampleAck{
			EntityID:     sample.EntityID,
			CaptureFrame: sample.CaptureFrame,
			Note:         err.Error(),
		})
		return nil, fmt.Errorf("failed to parse position sample: %w", err)
	}

	m.ack(st.engine.ProcessSample(&sample))

	return nil, nil
}

func (m *Manager) ack(a core.SampleAck) {
	if m.deps.OnAck != nil {
		m.deps.OnAck(a)
	}
}

func (m *Manager) handleTimeState(e dispatcher.Event) (any, error) {
	if m.current() == nil {
		return nil, ErrNoActiveSession
	}

	ts, err := m.deps.Parser.ParseTimeState(e.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to log time state: %w", err)
	}

	m.deps.SessionCtx.SetTimeState(ts)

	if err := m.backend.RecordTimeState(&ts); err != nil {
		return nil, fmt.Errorf("failed to log time state: %w", err)
	}

	return nil, nil
}

func (m *Manager) handleGeneralEvent(e dispatcher.Event) (any, error) {
	if m.current() == nil {
		return nil, ErrNoActiveSession
	}

	ev, err := m.deps.Parser.ParseGeneralEvent(e.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to log general event: %w", err)
	}

	if err := m.backend.RecordGeneralEvent(&ev); err != nil {
		return nil, fmt.Errorf("failed to log general event: %w", err)
	}

	return nil, nil
}

func (m *Manager) handleFeedStatus(e dispatcher.Event) (any, error) {
	if m.current() == nil {
		return nil, ErrNoActiveSession
	}

	status, err := m.deps.Parser.ParseFeedStatus(e.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to log feed status: %w", err)
	}

	if err := m.backend.RecordFeedStatus(&status); err != nil {
		return nil, fmt.Errorf("failed to log feed status: %w", err)
	}

	if m.deps.OnFeedStatus != nil {
		m.deps.OnFeedStatus(status)
	}

	return nil, nil
}

func (m *Manager) handleTrackOutline(e dispatcher.Event) (any, error) {
	if m.current() == nil {
		return nil, ErrNoActiveSession
	}

	outline, err := m.deps.Parser.ParseTrackOutline(e.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to log track outline: %w", err)
	}

	if err := m.backend.RecordTrackOutline(&outline); err != nil {
		return nil, fmt.Errorf("failed to log track outline: %w", err)
	}

	return nil, nil
}

// handleLeaderboard returns the current standings as the command result.
func (m *Manager) handleLeaderboard(e dispatcher.Event) (any, error) {
	return m.Standings(), nil
}
