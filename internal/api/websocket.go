package api

import (
	"net/http"
	"time"

	"homelink/pkg/host"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	sendBufferSize = 64
	pingInterval   = 30 * time.Second
	writeWait      = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// EventMessage is one event on the websocket stream.
type EventMessage struct {
	Type  string     `json:"type"`
	Event host.Event `json:"event"`
}

// handleWebSocket streams host events to the client until either side
// closes. Slow clients lose events instead of blocking the bus.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	filter := r.URL.Query().Get("event_type")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	send := make(chan host.Event, sendBufferSize)
	unsubscribe := s.hass.Subscribe(func(e host.Event) {
		if filter != "" && e.Type != filter {
			return
		}
		select {
		case send <- e:
		default:
			s.logger.Debug("Dropping event for slow websocket client", zap.String("event_type", e.Type))
		}
	})
	defer unsubscribe()

	s.logger.Debug("Websocket client connected",
		zap.String("remote_addr", r.RemoteAddr),
		zap.String("event_type", filter))

	// The client never sends anything we act on; reading only detects close.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-s.closing:
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(writeWait))
			return
		case e := <-send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(EventMessage{Type: "event", Event: e}); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
