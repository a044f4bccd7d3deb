package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// eventBuffer sizes the per-connection event queue; slower clients lose
	// their oldest queued events instead of stalling publishers.
	eventBuffer = 256

	// writeTimeout bounds a single frame write to a dead peer.
	writeTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The API is an internal tool surface, reachable clients are trusted.
	CheckOrigin: func(*http.Request) bool { return true },
}

// streamEvents upgrades the connection and relays bus events as JSON
// frames until the client disconnects or the bus shuts down.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written its error response.
		s.logger.Warn("Websocket upgrade failed.", "error", err)
		return
	}
	defer conn.Close()

	name := "ws-" + uuid.NewString()
	events, err := s.bus.Subscribe(name, eventBuffer)
	if err != nil {
		s.logger.Warn("Event stream rejected.", "error", err)
		return
	}
	defer s.bus.Unsubscribe(name)

	s.logger.Debug("Event stream connected.", "subscriber", name, "remote", r.RemoteAddr)

	// The read pump only exists to notice the peer going away and to
	// service control frames.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case e, ok := <-events:
			if !ok {
				deadline := time.Now().Add(writeTimeout)
				msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down")
				_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(e); err != nil {
				s.logger.Debug("Event stream closed.", "subscriber", name, "error", err)
				return
			}
		case <-done:
			s.logger.Debug("Event stream client disconnected.", "subscriber", name)
			return
		}
	}
}
