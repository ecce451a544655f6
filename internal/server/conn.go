package server

import (
	"encoding/json"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/lapline/lapline/internal/channel"
	"github.com/lapline/lapline/internal/dispatcher"
	"github.com/lapline/lapline/pkg/core"
	"github.com/lapline/lapline/pkg/streaming"
)

const (
	outChSize = 256
	writeWait = 10 * time.Second
)

// conn is one accepted feed connection. All writes go through out and the
// single writeLoop goroutine. out is never closed; done signals shutdown.
type conn struct {
	ws     *ws.Conn
	out    channel.Channel[[]byte]
	done   chan struct{} // closed on shutdown
	server *Server
	remote string

	closeOnce sync.Once
}

func newConn(wsConn *ws.Conn, s *Server) *conn {
	return &conn{
		ws:     wsConn,
		out:    channel.New[[]byte](outChSize),
		done:   make(chan struct{}),
		server: s,
		remote: wsConn.RemoteAddr().String(),
	}
}

// readLoop consumes inbound envelopes until the connection drops.
func (c *conn) readLoop() {
	defer func() {
		c.close()
		c.server.logger().Info("Feed disconnected", "remote", c.remote)
		c.server.noteConnection("feed disconnected from " + c.remote)
	}()

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if ws.IsUnexpectedCloseError(err, ws.CloseNormalClosure, ws.CloseGoingAway) {
				c.server.logger().Warn("Feed read failed", "remote", c.remote, "error", err)
			}
			return
		}
		c.handle(message)
	}
}

// writeLoop drains out and writes to the socket. It exits on shutdown or a
// failed write.
func (c *conn) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.out.Receive():
			if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.close()
				return
			}
			if err := c.ws.WriteMessage(ws.TextMessage, data); err != nil {
				c.server.logger().Warn("Feed write failed", "remote", c.remote, "error", err)
				c.close()
				return
			}
		}
	}
}

func (c *conn) handle(message []byte) {
	var env streaming.Envelope
	if err := json.Unmarshal(message, &env); err != nil {
		c.server.logger().Debug("Unparseable feed message", "remote", c.remote, "error", err)
		return
	}
	if env.Type != streaming.TypeCommand {
		c.server.logger().Debug("Unexpected feed message type", "remote", c.remote, "type", env.Type)
		return
	}

	var cmd streaming.CommandPayload
	if err := json.Unmarshal(env.Payload, &cmd); err != nil {
		c.server.logger().Debug("Malformed command payload", "remote", c.remote, "error", err)
		return
	}

	result, err := c.server.deps.Dispatcher.Dispatch(dispatcher.Event{
		Command:   cmd.Name,
		Args:      cmd.Args,
		Timestamp: time.Now(),
	})
	if err != nil {
		c.server.logger().Warn("Feed command failed",
			"remote", c.remote, "command", cmd.Name, "error", err)
		return
	}

	// Query results go back to the asking connection alone.
	if standings, ok := result.([]core.Standing); ok {
		c.send(streaming.TypeStandings, standings)
	}
}

func (c *conn) send(msgType string, payload any) {
	data, err := marshalEnvelope(msgType, payload)
	if err != nil {
		c.server.logger().Error("Failed to marshal outbound message", "type", msgType, "error", err)
		return
	}
	if !c.out.TrySend(data) {
		c.server.logger().Warn("Feed write buffer full, dropping message",
			"remote", c.remote, "type", msgType)
	}
}

// close tears the connection down once.
func (c *conn) close() {
	c.closeOnce.Do(func() {
		c.server.removeConn(c)
		close(c.done)
		_ = c.ws.Close()
	})
}
