// Package server accepts telemetry feed connections over WebSocket and
// routes their commands into the dispatcher. Sample acknowledgments and lap
// events travel the other way, to every connected feed.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/lapline/lapline/internal/dispatcher"
	"github.com/lapline/lapline/internal/logging"
	"github.com/lapline/lapline/internal/session"
	"github.com/lapline/lapline/pkg/core"
	"github.com/lapline/lapline/pkg/streaming"
)

// Config holds the ingest listener settings.
type Config struct {
	ListenAddr string
	Secret     string // shared secret feeds must present; empty disables the check
}

// Dependencies are the collaborators the server routes into.
type Dependencies struct {
	Dispatcher *dispatcher.Dispatcher
	SessionCtx *session.Context
	LogManager *logging.SlogManager
}

// Server is the telemetry ingest endpoint. It implements http.Handler; every
// request is a WebSocket upgrade.
type Server struct {
	cfg  Config
	deps Dependencies

	upgrader ws.Upgrader

	mu    sync.RWMutex
	conns map[*conn]struct{}

	srv *http.Server
}

// New creates a Server listening on cfg.ListenAddr once started.
func New(cfg Config, deps Dependencies) *Server {
	s := &Server{
		cfg:   cfg,
		deps:  deps,
		conns: make(map[*conn]struct{}),
	}
	// Feeds are game servers and timing rigs, not browsers; origin checks
	// do not apply.
	s.upgrader = ws.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     func(*http.Request) bool { return true },
	}
	s.srv = &http.Server{Addr: cfg.ListenAddr, Handler: s}
	return s
}

// Start runs the listener until ctx is cancelled, then closes every feed
// connection and shuts the listener down.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		s.logger().Info("Telemetry ingest listening", "addr", s.cfg.ListenAddr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger().Error("Ingest listener failed", "error", err)
		}
	}()

	<-ctx.Done()

	s.closeConns()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(shutdownCtx)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Secret != "" && r.URL.Query().Get("secret") != s.cfg.Secret {
		http.Error(w, "invalid secret", http.StatusUnauthorized)
		return
	}

	wsConn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		s.logger().Warn("WebSocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := newConn(wsConn, s)
	s.addConn(c)
	s.logger().Info("Feed connected", "remote", c.remote)
	s.noteConnection("feed connected from " + c.remote)

	go c.writeLoop()
	go c.readLoop()
}

// BroadcastAck sends a per-sample acknowledgment to every connected feed.
func (s *Server) BroadcastAck(a core.SampleAck) {
	s.broadcast(streaming.TypeSampleAck, a)
}

// BroadcastLap sends a lap completion to every connected feed.
func (s *Server) BroadcastLap(l core.Lap) {
	s.broadcast(streaming.TypeLapEvent, l)
}

func (s *Server) broadcast(msgType string, payload any) {
	data, err := marshalEnvelope(msgType, payload)
	if err != nil {
		s.logger().Error("Failed to marshal outbound message", "type", msgType, "error", err)
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for c := range s.conns {
		if !c.out.TrySend(data) {
			s.logger().Warn("Feed write buffer full, dropping message",
				"remote", c.remote, "type", msgType)
		}
	}
}

// ConnectionCount reports how many feed connections are currently open.
func (s *Server) ConnectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}

func (s *Server) addConn(c *conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[c] = struct{}{}
}

func (s *Server) removeConn(c *conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, c)
}

func (s *Server) closeConns() {
	s.mu.RLock()
	list := make([]*conn, 0, len(s.conns))
	for c := range s.conns {
		list = append(list, c)
	}
	s.mu.RUnlock()

	for _, c := range list {
		c.close()
	}
}

// noteConnection records a connection lifecycle event through the normal
// event pipeline, stamped with the latest feed frame. Without an active
// session the worker rejects the event and the dispatcher logs it.
func (s *Server) noteConnection(message string) {
	frame := strconv.Itoa(s.deps.SessionCtx.Frame.Value())
	_, err := s.deps.Dispatcher.Dispatch(dispatcher.Event{
		Command:   ":EVENT:",
		Args:      []string{frame, "connection", message},
		Timestamp: time.Now(),
	})
	if err != nil {
		s.logger().Debug("Connection event not recorded", "error", err)
	}
}

func (s *Server) logger() *slog.Logger {
	return s.deps.LogManager.Logger()
}

func marshalEnvelope(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(streaming.Envelope{Type: msgType, Payload: raw})
}
