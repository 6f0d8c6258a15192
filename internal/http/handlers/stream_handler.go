// Live conversation stream over WebSocket.
//
// GET /events/{eventId}/.../stream upgrades to a WebSocket and forwards every
// committed store event (added / changed / removed) for the conversation, in
// commit order, as JSON WireEvent frames.
//
// The subscription channel closes when the store shuts down or when this
// subscriber falls too far behind; in both cases the socket is closed and the
// client is expected to reconnect and reload the newest page.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	// writeWait bounds a single frame write.
	writeWait = 10 * time.Second
	// pongWait is how long a silent peer is tolerated.
	pongWait = 60 * time.Second
	// pingPeriod must be shorter than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// upgrader performs the HTTP→WebSocket handshake. Origin checking is left to
// the CORS middleware that already ran on this request.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// StreamMessages godoc
// @ID          streamMessages
// @Summary     Stream conversation events
// @Description Upgrades to a WebSocket and pushes committed message events in
// @Description commit order. Closes when the subscriber falls behind; clients
// @Description reconnect and reload the newest page to resync.
// @Tags        Messages
//
// @Param       eventId  path  string  true  "Event ID"
//
// @Success     101  {string} string "Switching Protocols"
// @Router      /events/{eventId}/public/stream [get]
func (h *Handlers) StreamMessages(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		return
	}
	defer conn.Close()

	events, cancel := h.streamer.Subscribe(conversationPath(c))
	defer cancel()

	// Reader: consume control frames and detect disconnects.
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case ev, open := <-events:
			if !open {
				// Store shut down or this subscriber fell behind.
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "resync"))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev.Wire()); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
