package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/miladsoleymani/idflow/core"
)

const (
	writeWait      = 10 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 512
)

// wsHandler streams every delivery for one id to a WebSocket client until
// the client disconnects or the stream closes.
func (s *Server) wsHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	sub := s.router.Stream().Subscribe()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("WebSocket upgrade failed", "id", id, "err", err)
		return
	}
	defer conn.Close()

	s.log.Info("WebSocket connected", "id", id, "remote_addr", conn.RemoteAddr())

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Reads only detect the client going away.
	go func() {
		defer cancel()
		conn.SetReadLimit(maxMessageSize)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					s.log.Warn("WebSocket read error", "id", id, "err", err)
				}
				return
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	err = sub.Filter(ctx,
		func(m core.Tagged[core.Delivery]) bool { return m.ID == id },
		func(m core.Tagged[core.Delivery]) error {
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			return conn.WriteJSON(newEntry(m))
		},
	)
	switch {
	case err == nil:
		// Stream closed.
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "stream closed"),
			time.Now().Add(writeWait))
	case errors.Is(err, context.Canceled):
	default:
		s.log.Warn("WebSocket write failed", "id", id, "err", err)
	}
	s.log.Info("WebSocket disconnected", "id", id)
}
