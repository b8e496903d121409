package network

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MRamiBalles/StationAtmos/server/internal/domain/alarm"
	"github.com/MRamiBalles/StationAtmos/server/internal/domain/tile"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Maximum message size allowed from peer. Zone requests carry coordinate lists.
	maxMessageSize = 64 * 1024
)

// Message types on the overlay socket.
const (
	MsgEvent    = "EVENT"
	MsgZoneInfo = "ZONE_INFO"
	MsgWire     = "WIRE"
	MsgAlert    = "ALERT"
	MsgAck      = "ACK"
	MsgError    = "ERROR"
)

// Envelope wraps every server-to-client message.
type Envelope struct {
	Type      string      `json:"type"`
	RequestID string      `json:"request_id,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// OverlayRequest is an incoming command from a debug overlay.
type OverlayRequest struct {
	Type      string          `json:"type"` // ZONE_INFO, WIRE, ALERT
	RequestID string          `json:"request_id"`
	Actor     string          `json:"actor"`
	Grid      string          `json:"grid"`
	Coords    []tile.Vector2i `json:"coords"`
	Target    string          `json:"target"`
	Wire      string          `json:"wire"`
	Action    string          `json:"action"`
	Level     string          `json:"level"`
}

var errRateLimited = errors.New("rate limit exceeded")

// NewClient creates a new WebSocket client and returns it.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, hub.cfg.ClientSendBuffer),
	}
}

// Client is one overlay connection.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	windowStart time.Time
	windowCount int
}

// Register adds the client to the hub.
func (c *Client) Register() {
	select {
	case c.hub.register <- c:
	case <-c.hub.done:
		close(c.send)
	}
}

// ReadPump pumps messages from the websocket connection to the engine.
func (c *Client) ReadPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Errorf("overlay read failed: %v", err)
				if c.hub.metrics != nil {
					c.hub.metrics.RecordWSError()
				}
			}
			break
		}
		if c.hub.metrics != nil {
			c.hub.metrics.RecordWSMessage(true)
		}

		var req OverlayRequest
		if err := json.Unmarshal(message, &req); err != nil {
			c.hub.logger.Warnf("Failed to parse overlay request: %v", err)
			c.reply(Envelope{Type: MsgError, Error: "malformed request"})
			continue
		}

		c.reply(c.handle(req, time.Now()))
	}
}

// allow applies a fixed one-second window limit.
func (c *Client) allow(now time.Time) bool {
	limit := c.hub.cfg.MaxMessagesPerSecond
	if limit <= 0 {
		return true
	}
	if now.Sub(c.windowStart) >= time.Second {
		c.windowStart = now
		c.windowCount = 0
	}
	c.windowCount++
	return c.windowCount <= limit
}

// handle routes one request and builds the reply.
func (c *Client) handle(req OverlayRequest, now time.Time) Envelope {
	fail := func(err error) Envelope {
		return Envelope{Type: MsgError, RequestID: req.RequestID, Error: err.Error()}
	}
	if !c.allow(now) {
		c.hub.logger.Warnf("Rate limit exceeded for overlay actor %q", req.Actor)
		return fail(errRateLimited)
	}

	eng := c.hub.engine
	switch req.Type {
	case MsgZoneInfo:
		snap, err := eng.ZoneInfo(req.Actor, tile.GridID(req.Grid), req.Coords)
		if err != nil {
			return fail(err)
		}
		return Envelope{Type: MsgZoneInfo, RequestID: req.RequestID, Data: snap}
	case MsgWire:
		if err := eng.ApplyWire(req.Actor, req.Target, req.Wire, req.Action); err != nil {
			return fail(err)
		}
		return Envelope{Type: MsgAck, RequestID: req.RequestID}
	case MsgAlert:
		level, ok := alarm.ParseLevel(req.Level)
		if !ok {
			return fail(errors.New("unknown alarm level " + req.Level))
		}
		if err := eng.Alert(req.Target, level); err != nil {
			return fail(err)
		}
		return Envelope{Type: MsgAck, RequestID: req.RequestID}
	default:
		c.hub.logger.Warn("Unknown overlay request type: " + req.Type)
		return fail(errors.New("unknown request type " + req.Type))
	}
}

func (c *Client) reply(env Envelope) {
	payload, err := json.Marshal(env)
	if err != nil {
		c.hub.logger.Errorf("Failed to encode overlay reply: %v", err)
		return
	}
	select {
	case c.hub.direct <- outbound{client: c, payload: payload}:
	case <-c.hub.done:
	}
}

// WritePump pumps messages from the hub to the websocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				c.writeFailed(err)
				return
			}
			w.Write(message)

			// Add queued messages to the current websocket message.
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				c.writeFailed(err)
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

func (c *Client) writeFailed(err error) {
	c.hub.logger.Errorf("overlay write failed: %v", err)
	if c.hub.metrics != nil {
		c.hub.metrics.RecordWSError()
	}
}
