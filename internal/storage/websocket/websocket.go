package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/lapline/lapline/pkg/core"
	"github.com/lapline/lapline/pkg/streaming"
)

// Config holds WebSocket backend configuration.
type Config struct {
	URL    string
	Secret string
}

// Backend streams timing data over WebSocket to the lapline web server.
// It implements storage.Backend but not storage.Uploadable.
type Backend struct {
	conn *connection
	cfg  Config
}

// New creates a new WebSocket storage backend.
func New(cfg Config) *Backend {
	return &Backend{
		conn: newConnection(slog.Default()),
		cfg:  cfg,
	}
}

// Init connects to the WebSocket server.
func (b *Backend) Init() error {
	return b.conn.dial(b.cfg.URL, b.cfg.Secret)
}

// Close disconnects from the WebSocket server.
func (b *Backend) Close() error {
	return b.conn.close()
}

// marshalEnvelope builds a JSON-encoded Envelope from a message type and payload.
func marshalEnvelope(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	env := streaming.Envelope{Type: msgType, Payload: raw}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}

// sendEnvelope marshals the payload into an Envelope and pushes it
// to the write loop (fire-and-forget).
func (b *Backend) sendEnvelope(msgType string, payload any) error {
	data, err := marshalEnvelope(msgType, payload)
	if err != nil {
		return err
	}
	b.conn.send(data)
	return nil
}

// sendEnvelopeAndWait marshals the payload and waits for a server ack.
func (b *Backend) sendEnvelopeAndWait(msgType string, payload any) error {
	data, err := marshalEnvelope(msgType, payload)
	if err != nil {
		return err
	}
	return b.conn.sendAndWait(data, msgType, ackTimeout)
}

// StartSession sends session and venue data and waits for server ack.
func (b *Backend) StartSession(session *core.Session, venue *core.Venue) error {
	data, err := marshalEnvelope(streaming.TypeStartSession, streaming.StartSessionPayload{Session: session, Venue: venue})
	if err != nil {
		return err
	}

	// Cache for reconnect replay.
	b.conn.mu.Lock()
	b.conn.cachedStartMsg = data
	b.conn.mu.Unlock()

	return b.conn.sendAndWait(data, streaming.TypeStartSession, ackTimeout)
}

// EndSession sends end_session and waits for server ack.
func (b *Backend) EndSession() error {
	err := b.sendEnvelopeAndWait(streaming.TypeEndSession, nil)

	// Clear cached state regardless of error.
	b.conn.mu.Lock()
	b.conn.cachedStartMsg = nil
	b.conn.mu.Unlock()

	return err
}

func (b *Backend) AddEntity(e *core.Entity) error {
	return b.sendEnvelope(streaming.TypeAddEntity, e)
}

func (b *Backend) AddTeam(t *core.Team) error {
	return b.sendEnvelope(streaming.TypeAddTeam, t)
}

// PutCheckpoint sends the full checkpoint definition. The server applies it
// as a replace, same as the local catalog does.
func (b *Backend) PutCheckpoint(c *core.Checkpoint) error {
	return b.sendEnvelope(streaming.TypePutCheckpoint, c)
}

func (b *Backend) DeleteCheckpoint(id uint16) error {
	return b.sendEnvelope(streaming.TypeDeleteCheckpoint, streaming.DeleteCheckpointPayload{CheckpointID: id})
}

func (b *Backend) SetCheckpointActive(id uint16, active bool) error {
	return b.sendEnvelope(streaming.TypeCheckpointActive, streaming.CheckpointActivePayload{CheckpointID: id, Active: active})
}

func (b *Backend) RecordSample(s *core.Sample) error {
	return b.sendEnvelope(streaming.TypeSample, s)
}

func (b *Backend) RecordCrossing(c *core.Crossing) error {
	return b.sendEnvelope(streaming.TypeCrossing, c)
}

func (b *Backend) RecordLap(l *core.Lap) error {
	return b.sendEnvelope(streaming.TypeLap, l)
}

// RecordCollected is a no-op. The server derives collection state from the
// crossing stream.
func (b *Backend) RecordCollected(entityID, checkpointID uint16) error {
	return nil
}

// ClearCollected is a no-op for the same reason as RecordCollected.
func (b *Backend) ClearCollected(entityID uint16) error {
	return nil
}

// IncrementEntityLaps is a no-op. Lap records carry the counter total, so
// the server keeps totals from the lap stream.
func (b *Backend) IncrementEntityLaps(entityID uint16) error {
	return nil
}

// IncrementTeamLaps is a no-op for the same reason as IncrementEntityLaps.
func (b *Backend) IncrementTeamLaps(team string) error {
	return nil
}

func (b *Backend) RecordGeneralEvent(e *core.GeneralEvent) error {
	return b.sendEnvelope(streaming.TypeGeneralEvent, e)
}

func (b *Backend) RecordFeedStatus(s *core.FeedStatus) error {
	return b.sendEnvelope(streaming.TypeFeedStatus, s)
}

func (b *Backend) RecordTimeState(t *core.TimeState) error {
	return b.sendEnvelope(streaming.TypeTimeState, t)
}

func (b *Backend) RecordTrackOutline(o *core.TrackOutline) error {
	return b.sendEnvelope(streaming.TypeTrackOutline, o)
}
