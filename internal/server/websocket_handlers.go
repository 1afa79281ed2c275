package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/instantwaste/formscan/internal/session"
)

// WebSocket upgrader with reasonable defaults.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow connections from any origin in development
		// In production, you should check against allowed origins
		return true
	},
}

// watchRequest is the first message a client sends after connecting: the
// session it wants progress for.
type watchRequest struct {
	SessionID string `json:"sessionId"`
}

// progressMessage is pushed to the client as the scan advances. The final
// message carries the terminal status; the result itself is fetched over
// HTTP so a dropped socket never loses it.
type progressMessage struct {
	Type      string `json:"type"` // "progress" or "error"
	SessionID string `json:"sessionId,omitempty"`
	Status    string `json:"status,omitempty"`
	Stage     string `json:"stage,omitempty"`
	Percent   int    `json:"percent,omitempty"`
	Error     string `json:"error,omitempty"`
}

const (
	progressPollInterval = 250 * time.Millisecond
	websocketIdleTimeout = 60 * time.Second
)

// progressWebSocketHandler streams async scan progress over a WebSocket.
func (s *Server) progressWebSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("failed to upgrade connection to WebSocket", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	websocketConnections.Inc()
	defer websocketConnections.Dec()

	_ = conn.SetReadDeadline(time.Now().Add(websocketIdleTimeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		return
	}
	websocketMessagesTotal.WithLabelValues("received").Inc()

	var req watchRequest
	if err := json.Unmarshal(data, &req); err != nil || req.SessionID == "" {
		s.sendProgressMessage(conn, progressMessage{Type: "error", Error: "expected {\"sessionId\": ...}"})
		return
	}
	if _, ok := s.sessions.Get(req.SessionID); !ok {
		s.sendProgressMessage(conn, progressMessage{Type: "error", Error: "unknown or expired session"})
		return
	}

	slog.Info("WebSocket progress watch started", "session", req.SessionID, "remote_addr", r.RemoteAddr)
	s.streamProgress(conn, req.SessionID)
}

// streamProgress polls the session and pushes a message whenever the stage
// or percentage moves, until the session finishes or disappears.
func (s *Server) streamProgress(conn *websocket.Conn, id string) {
	ticker := time.NewTicker(progressPollInterval)
	defer ticker.Stop()

	lastStage := ""
	lastPercent := -1
	for range ticker.C {
		sess, ok := s.sessions.Get(id)
		if !ok {
			s.sendProgressMessage(conn, progressMessage{Type: "error", SessionID: id, Error: "session expired"})
			return
		}

		if sess.Stage != lastStage || sess.Percent != lastPercent {
			lastStage = sess.Stage
			lastPercent = sess.Percent
			if !s.sendProgressMessage(conn, progressMessage{
				Type:      "progress",
				SessionID: id,
				Status:    string(sess.Status),
				Stage:     sess.Stage,
				Percent:   sess.Percent,
				Error:     sess.Error,
			}) {
				return
			}
		}
		if sess.Status == session.StatusComplete || sess.Status == session.StatusFailed {
			return
		}
	}
}

func (s *Server) sendProgressMessage(conn *websocket.Conn, msg progressMessage) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("failed to marshal WebSocket message", "error", err)
		return false
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return false
	}
	websocketMessagesTotal.WithLabelValues("sent").Inc()
	return true
}
