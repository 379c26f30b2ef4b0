// Package server owns the WebSocket endpoint and one receive loop per
// connected station.
package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/kabsujon-blip/newOCCP/internal/config"
	"github.com/kabsujon-blip/newOCCP/internal/engine"
	"github.com/kabsujon-blip/newOCCP/internal/metrics"
	"github.com/kabsujon-blip/newOCCP/internal/ocpp"
	"github.com/kabsujon-blip/newOCCP/internal/registry"
	"github.com/kabsujon-blip/newOCCP/internal/session"
)

// Subprotocol is the WebSocket subprotocol OCPP 1.6J requires.
const Subprotocol = "ocpp1.6"

// Connection wraps one station WebSocket. Writes are serialized so
// CallResult frames go out in the arrival order of their Calls.
type Connection struct {
	stationID    string
	connectionID string
	ws           *websocket.Conn
	writeTimeout time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
}

// Write sends one text frame under the connection's write lock.
func (c *Connection) Write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.writeTimeout > 0 {
		c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// Close shuts the transport down. Safe to call more than once; the receive
// loop notices and runs disconnect cleanup.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.ws.Close()
	})
	return err
}

// Server accepts station connections and dispatches their frames.
type Server struct {
	cfg      config.ServerConfig
	registry *registry.Registry
	store    *session.Store
	engine   *engine.Engine
	activity *session.ActivityLog
	upgrader websocket.Upgrader

	mu    sync.RWMutex
	conns map[string]*Connection
}

// New creates a server around the shared state.
func New(cfg config.ServerConfig, reg *registry.Registry, store *session.Store, eng *engine.Engine, activity *session.ActivityLog) *Server {
	return &Server{
		cfg:      cfg,
		registry: reg,
		store:    store,
		engine:   eng,
		activity: activity,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			Subprotocols:    []string{Subprotocol},
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		conns: make(map[string]*Connection),
	}
}

// HandleWebSocket serves /ocpp16/{id}.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	stationID := mux.Vars(r)["id"]
	if stationID == "" || stationID == "ocpp16" {
		http.Error(w, "missing station id", http.StatusBadRequest)
		return
	}
	if !websocket.IsWebSocketUpgrade(r) {
		http.Error(w, "upgrade required", http.StatusUpgradeRequired)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("station_id", stationID).Msg("WebSocket upgrade failed")
		return
	}
	if s.cfg.MaxMessageSize > 0 {
		ws.SetReadLimit(s.cfg.MaxMessageSize)
	}

	conn := &Connection{
		stationID:    stationID,
		ws:           ws,
		writeTimeout: s.cfg.WriteTimeout,
	}
	st := s.registry.Register(stationID, conn)
	conn.connectionID = st.ConnectionID

	s.mu.Lock()
	s.conns[stationID] = conn
	s.mu.Unlock()

	metrics.ActiveConnections.Inc()
	s.activity.Logf("Station %s connected", stationID)
	log.Info().
		Str("station_id", stationID).
		Str("connection_id", conn.connectionID).
		Str("remote_addr", r.RemoteAddr).
		Msg("Station connected")

	s.readLoop(conn)
	s.cleanup(conn)
}

func (s *Server) readLoop(conn *Connection) {
	for {
		_, data, err := conn.ws.ReadMessage()
		if err != nil {
			log.Debug().Err(err).Str("station_id", conn.stationID).Msg("Connection closed")
			return
		}

		frame, err := ocpp.DecodeFrame(data)
		if err != nil {
			// OCPP tolerates isolated malformed messages; keep reading.
			metrics.MalformedFrames.Inc()
			log.Warn().Err(err).Str("station_id", conn.stationID).Msg("Malformed frame, skipping")
			continue
		}

		switch frame.MessageType {
		case ocpp.Call:
			metrics.FramesReceived.WithLabelValues(string(frame.Action)).Inc()
			payload := s.engine.Handle(conn.stationID, frame.Action, frame.Payload)
			reply, err := ocpp.EncodeCallResult(frame.MessageID, payload)
			if err != nil {
				log.Error().Err(err).Str("station_id", conn.stationID).Msg("Failed to encode call result")
				continue
			}
			if err := conn.Write(reply); err != nil {
				log.Warn().Err(err).Str("station_id", conn.stationID).Msg("Write failed, dropping connection")
				conn.Close()
				return
			}
		case ocpp.CallResult:
			// Response to a fire-and-forget command we sent earlier.
			log.Debug().
				Str("station_id", conn.stationID).
				Str("message_id", frame.MessageID).
				RawJSON("payload", frame.Payload).
				Msg("Call result from station")
		case ocpp.CallError:
			log.Warn().
				Str("station_id", conn.stationID).
				Str("message_id", frame.MessageID).
				Str("error_code", frame.ErrorCode).
				Str("error_description", frame.ErrorDescription).
				Msg("Call error from station")
		}
	}
}

// cleanup runs once per connection after its receive loop exits. A record
// already replaced by a reconnect is left alone.
func (s *Server) cleanup(conn *Connection) {
	conn.Close()

	s.mu.Lock()
	if s.conns[conn.stationID] == conn {
		delete(s.conns, conn.stationID)
	}
	s.mu.Unlock()

	metrics.ActiveConnections.Dec()
	if !s.registry.MarkOfflineIf(conn.stationID, conn.connectionID) {
		// A reconnect already replaced this connection; its sessions belong
		// to the new connection now.
		log.Debug().
			Str("station_id", conn.stationID).
			Str("connection_id", conn.connectionID).
			Msg("Stale connection closed, station still online")
		return
	}
	finalized := s.engine.FinalizeStation(conn.stationID, session.ReasonDisconnect)

	s.activity.Logf("Station %s disconnected, %d session(s) closed", conn.stationID, finalized)
	log.Info().
		Str("station_id", conn.stationID).
		Int("finalized", finalized).
		Msg("Station disconnected")
}

// SendCall serializes an outbound [2, id, action, payload] frame onto the
// station's connection. Returns the message id, or ErrStationOffline when
// the station has no writable connection.
func (s *Server) SendCall(stationID string, action string, payload json.RawMessage) (string, error) {
	s.mu.RLock()
	conn, ok := s.conns[stationID]
	s.mu.RUnlock()
	if !ok {
		return "", ErrStationOffline
	}

	messageID := ocpp.NewMessageID()
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	frame, err := ocpp.EncodeCall(messageID, ocpp.Action(action), payload)
	if err != nil {
		return "", err
	}
	if err := conn.Write(frame); err != nil {
		conn.Close()
		return "", err
	}

	log.Info().
		Str("station_id", stationID).
		Str("action", action).
		Str("message_id", messageID).
		Msg("Command sent to station")
	return messageID, nil
}
