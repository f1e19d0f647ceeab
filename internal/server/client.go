// Package server manages individual WebSocket clients, handling read/write
// pumps, inbound event dispatch, rate limiting, and lifecycle control for each
// connection.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/Tyrowin/roomcast/internal/hub"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Client is the websocket side of one hub connection. It implements hub.Sink.
type Client struct {
	conn        *websocket.Conn
	server      *Server
	namespace   string
	addr        string
	id          string
	log         logrus.FieldLogger
	rateLimiter *rateLimiter

	mu      sync.Mutex
	send    chan []byte
	closed  bool
	closing bool
}

func newClient(conn *websocket.Conn, s *Server, namespace, addr string) *Client {
	if conn != nil {
		conn.SetReadLimit(s.cfg.MaxMessageSize)
	}

	return &Client{
		conn:        conn,
		server:      s,
		namespace:   namespace,
		addr:        addr,
		log:         s.log.WithFields(logrus.Fields{"addr": addr, "namespace": namespace}),
		rateLimiter: newRateLimiter(s.cfg.RateLimit, nil),
		send:        make(chan []byte, s.cfg.SendBufferSize),
	}
}

// ID returns the hub connection ID, empty until the client is attached.
func (c *Client) ID() string {
	return c.id
}

// Send queues ev for the write pump without blocking. A full buffer means the
// peer is not keeping up; the connection is closed once so the read pump
// detaches it, and later sends fail with ErrClientClosed.
func (c *Client) Send(ev hub.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.closing {
		return ErrClientClosed
	}

	select {
	case c.send <- payload:
		return nil
	default:
		c.closing = true
		c.server.log.WithField("addr", c.addr).Warn("Send buffer full; closing connection")
		if c.conn != nil {
			go c.closeConnection()
		}
		return ErrSendBufferFull
	}
}

// attach registers the client with the hub. It runs before the pumps start,
// so c.log and c.id are not yet shared.
func (c *Client) attach() {
	conn := c.server.hub.Attach(c.namespace, c)
	c.id = conn.ID()
	c.log = c.log.WithField("conn", c.id)
}

// close stops the write pump. It is safe to call more than once.
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.WithError(err).Warn("Error setting initial read deadline")
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.log.WithError(err).Warn("Error setting read deadline in pong handler")
		}
		return nil
	})
}

// handleReadError logs appropriate error messages based on the error type
// and returns true if the read loop should break
func (c *Client) handleReadError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, websocket.ErrReadLimit) {
		c.log.Warnf("Message exceeded maximum size of %d bytes", c.server.cfg.MaxMessageSize)
		return true
	}

	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure) {
		c.log.Infof("Client disconnected: %v", err)
		return true
	}

	if errors.Is(err, io.EOF) || isExpectedCloseError(err) {
		c.log.Infof("Client connection closed: %v", err)
		return true
	}

	if websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig) {
		c.log.WithError(err).Warn("Unexpected WebSocket error")
		return true
	}

	c.log.WithError(err).Warn("WebSocket read error")
	return true
}

// notify sends a server notice to this client only.
func (c *Client) notify(code, text string) {
	if err := c.server.hub.SendTo(c.id, hub.NoticeEvent(code, text, time.Now())); err != nil {
		c.log.WithError(err).Debug("Notice not delivered")
	}
}

func (c *Client) reject(reason, text string) {
	c.server.rejected(reason)
	c.notify(reason, text)
}

// dispatch decodes one inbound frame and applies it to the hub.
func (c *Client) dispatch(raw []byte) {
	var in InboundEvent
	if err := json.Unmarshal(raw, &in); err != nil {
		c.log.WithError(err).Debug("Invalid inbound frame")
		c.reject(hub.NoticeInvalidEvent, "Messages must be JSON objects with an event field.")
		return
	}

	switch in.Event {
	case EventJoinRoom:
		c.handleJoinRoom(in.Data)
	case EventChatMessage:
		c.handleChatMessage(in.Data)
	case EventSetUsername:
		c.handleSetUsername(in.Data)
	default:
		c.reject(hub.NoticeInvalidEvent, "Unsupported event "+in.Event+".")
	}
}

func (c *Client) handleJoinRoom(data json.RawMessage) {
	req, err := decodeJoinRequest(data)
	if err != nil {
		c.reject(hub.NoticeInvalidRoom, "joinRoom requires a room name.")
		return
	}

	if err := c.server.rooms(c.namespace, req.RoomName); err != nil {
		c.log.WithError(err).WithField("room", req.RoomName).Info("Invalid room requested")
		c.reject(hub.NoticeInvalidRoom, fmt.Sprintf("Room %q does not exist in %s.", req.RoomName, c.namespace))
		return
	}

	if req.Username != "" {
		c.server.hub.SetDisplayName(c.id, req.Username)
	}

	if err := c.server.hub.JoinRoom(c.id, req.RoomName); err != nil {
		c.reject(hub.NoticeInvalidRoom, err.Error())
	}
}

func (c *Client) handleChatMessage(data json.RawMessage) {
	text, err := decodeText(data)
	if err != nil {
		c.reject(hub.NoticeInvalidEvent, "chatMessage requires a text payload.")
		return
	}

	if !c.rateLimiter.allow() {
		c.log.Infof("Rate limit exceeded (%d messages per %s); discarding message",
			c.server.cfg.RateLimit.Burst, c.server.cfg.RateLimit.RefillInterval)
		c.reject(hub.NoticeRateLimited, "You are sending messages too quickly.")
		return
	}

	if err := c.server.hub.ChatMessage(c.id, text); errors.Is(err, hub.ErrNotInRoom) {
		c.log.Debug("Chat message before joining a room")
	}
}

func (c *Client) handleSetUsername(data json.RawMessage) {
	name, err := decodeText(data)
	if err != nil {
		c.reject(hub.NoticeInvalidEvent, "setUsername requires a text payload.")
		return
	}

	effective, changed := c.server.hub.SetDisplayName(c.id, name)
	if changed {
		c.notify("", "You are now known as "+effective+".")
		return
	}
	c.notify("", "Your name stays "+effective+".")
}

func (c *Client) readPump() {
	defer func() {
		c.server.hub.Detach(c.id)
		c.close()
		c.closeConnection()
	}()

	c.setupReadConnection()

	for {
		_, raw, err := c.conn.ReadMessage()
		if c.handleReadError(err) {
			return
		}

		c.dispatch(raw)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for c.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (c *Client) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case message, ok := <-c.send:
		return c.handleMessage(message, ok)
	case <-ticker.C:
		return c.handlePing()
	}
}

// closeConnection safely closes the WebSocket connection with proper error handling
func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
		c.log.WithError(err).Warn("Error closing connection")
	}
}

// handleMessage processes outgoing messages and returns false if the connection should be closed
func (c *Client) handleMessage(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log.WithError(err).Warn("Error setting write deadline")
		return false
	}

	if !ok {
		return c.writeCloseMessage()
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		if !isExpectedCloseError(err) {
			c.log.WithError(err).Warn("Error writing message")
		}
		return false
	}
	return true
}

// writeCloseMessage sends a close message to the client
func (c *Client) writeCloseMessage() bool {
	if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil && !isExpectedCloseError(err) {
		c.log.WithError(err).Debug("Error writing close message")
	}
	return false
}

// handlePing sends a ping message to keep the connection alive
func (c *Client) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log.WithError(err).Warn("Error setting write deadline for ping")
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.log.WithError(err).Warn("Error writing ping message")
		return false
	}
	return true
}
