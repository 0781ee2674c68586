package server

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/candelahq/trellis/errors"
)

// WebSocket timeout constants
const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = 54 * time.Second

	// Maximum message size allowed from peer
	maxMessageSize = 4 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The stream carries no credentials and serves local dashboards.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Client is one WebSocket subscriber to a participant's event stream
type Client struct {
	server        *Server
	conn          *websocket.Conn
	send          chan interface{}
	id            string
	participantID string
	closeOnce     sync.Once
}

// handleWebSocket upgrades GET /ws/participants/{id} into a subscription
// to that participant's live message events.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	participantID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/ws/participants/"), "/")
	if participantID == "" || strings.Contains(participantID, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if _, err := s.store.GetParticipant(r.Context(), participantID); err != nil {
		if errors.IsNotFoundError(err) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeDomainError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnw("WebSocket upgrade failed", "error", err)
		return
	}

	client := &Client{
		server:        s,
		conn:          conn,
		send:          make(chan interface{}, 16),
		id:            uuid.NewString(),
		participantID: participantID,
	}

	s.register <- client
	go client.writePump()
	go client.readPump()
}

// readPump drains inbound frames. The stream is one-way; clients send
// nothing but pings, so anything read is discarded.
func (c *Client) readPump() {
	defer func() {
		c.server.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNoStatusReceived,
			) {
				c.server.logger.Warnw("WebSocket read error",
					"client_id", c.id, "error", err)
			}
			return
		}
	}
}

// writePump pushes events and keepalive pings to the peer
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.server.ctx.Done():
			return
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				c.server.logger.Debugw("Event write error",
					"client_id", c.id, "error", err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// close safely closes the send channel; safe to call more than once
func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}
