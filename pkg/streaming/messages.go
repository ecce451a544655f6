package streaming

import (
	"encoding/json"

	"github.com/lapline/lapline/pkg/core"
)

// Message type constants for the feed ingest side.
const (
	TypeCommand   = "command"    // feed -> engine: a routed command with string args
	TypeSampleAck = "sample_ack" // engine -> feed: per-sample outcome
	TypeLapEvent  = "lap_event"  // engine -> feed: lap completion notification
)

// Message type constants for the live timing stream.
const (
	TypeStartSession     = "start_session"
	TypeEndSession       = "end_session"
	TypeAddEntity        = "add_entity"
	TypeAddTeam          = "add_team"
	TypePutCheckpoint    = "put_checkpoint"
	TypeDeleteCheckpoint = "delete_checkpoint"
	TypeCheckpointActive = "checkpoint_active"
	TypeSample           = "sample"
	TypeCrossing         = "crossing"
	TypeLap              = "lap"
	TypeGeneralEvent     = "general_event"
	TypeFeedStatus       = "feed_status"
	TypeTimeState        = "time_state"
	TypeTrackOutline     = "track_outline"
	TypeStandings        = "standings"
)

// Envelope wraps all messages sent over a WebSocket in either direction.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the receiver's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
}

// CommandPayload is a dispatcher command carried over the ingest socket.
type CommandPayload struct {
	Name string   `json:"name"`
	Args []string `json:"args"`
}

// StartSessionPayload carries session and venue data.
type StartSessionPayload struct {
	Session *core.Session `json:"session"`
	Venue   *core.Venue   `json:"venue"`
}

// DeleteCheckpointPayload identifies a checkpoint removed from the catalog.
type DeleteCheckpointPayload struct {
	CheckpointID uint16 `json:"checkpointId"`
}

// CheckpointActivePayload toggles a checkpoint's active flag.
type CheckpointActivePayload struct {
	CheckpointID uint16 `json:"checkpointId"`
	Active       bool   `json:"active"`
}
