// Package server manages individual WebSocket clients, handling read/write
// pumps, rate limiting, and lifecycle control for each connection.
package server

import (
	"errors"
	"io"
	"log"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Client represents one WebSocket connection to the relay. A connection
// starts unauthenticated; a successful auth event binds it to a username
// exactly once, and every later event handler can rely on that state. The
// username field is only touched from the connection's own read goroutine.
type Client struct {
	conn           *websocket.Conn
	send           chan []byte
	hub            *Hub
	router         *Router
	addr           string
	username       string
	closed         bool
	maxMessageSize int64
	limiter        *eventLimiter
	rateLimit      RateLimitConfig
}

// NewClient creates a Client for the given WebSocket connection. The client's
// send channel is buffered to absorb fan-out bursts.
func NewClient(conn *websocket.Conn, hub *Hub, router *Router, addr string, cfg *Config) *Client {
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}
	limiter := newEventLimiter(cfg.RateLimit.Burst, cfg.RateLimit.RefillInterval)

	return &Client{
		conn:           conn,
		send:           make(chan []byte, 256),
		hub:            hub,
		router:         router,
		addr:           addr,
		closed:         false,
		maxMessageSize: cfg.MaxMessageSize,
		limiter:        limiter,
		rateLimit:      cfg.RateLimit,
	}
}

// Authenticated reports whether the connection has completed the auth
// handshake.
func (c *Client) Authenticated() bool {
	return c.username != ""
}

// Username returns the bound username, or "" while unauthenticated.
func (c *Client) Username() string {
	return c.username
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection.
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
		log.Printf("Error setting initial read deadline for %s: %v", c.addr, err)
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
			log.Printf("Error setting read deadline in pong handler for %s: %v", c.addr, err)
		}
		return nil
	})
}

// handleReadError logs appropriate error messages based on the error type
// and returns true if the read loop should break.
func (c *Client) handleReadError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, websocket.ErrReadLimit) {
		log.Printf("Event from %s exceeded maximum size of %d bytes", c.addr, c.maxMessageSize)
		return true
	}

	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure) {
		log.Printf("Client %s disconnected: %v", c.addr, err)
		return true
	}

	if errors.Is(err, io.EOF) || isExpectedCloseError(err) {
		log.Printf("Client %s connection closed: %v", c.addr, err)
		return true
	}

	if websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig) {
		log.Printf("Unexpected WebSocket error from %s: %v", c.addr, err)
		return true
	}

	log.Printf("WebSocket read error from %s: %v", c.addr, err)
	return true
}

// checkRateLimit verifies if the client has exceeded rate limits
// and returns true if the event should be processed.
func (c *Client) checkRateLimit() bool {
	if c.limiter != nil && !c.limiter.allow() {
		log.Printf("Rate limit exceeded for %s (%d events per %s); discarding event", c.addr, c.rateLimit.Burst, c.rateLimit.RefillInterval)
		return false
	}
	return true
}

func (c *Client) readPump() {
	defer func() {
		c.router.HandleDisconnect(c)
		c.hub.deregister(c)
		if err := c.conn.Close(); err != nil {
			if !isExpectedCloseError(err) {
				log.Printf("Error closing connection in readPump: %v", err)
			}
		}
	}()

	c.setupReadConnection()

	for {
		_, rawEvent, err := c.conn.ReadMessage()
		if err != nil {
			if c.handleReadError(err) {
				break
			}
			continue
		}

		if !c.checkRateLimit() {
			continue
		}

		c.router.HandleEvent(c, rawEvent)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
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
	case payload, ok := <-c.send:
		return c.handleOutbound(payload, ok)
	case <-ticker.C:
		return c.handlePing()
	case <-c.hub.ctx.Done():
		return false
	}
}

// closeConnection safely closes the WebSocket connection with proper error handling.
func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil {
		if !isExpectedCloseError(err) {
			log.Printf("Error closing connection in writePump: %v", err)
		}
	}
}

// handleOutbound writes one outgoing frame and returns false if the
// connection should be closed.
func (c *Client) handleOutbound(payload []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
		log.Printf("Error setting write deadline for %s: %v", c.addr, err)
		return false
	}

	if !ok {
		return c.writeCloseMessage()
	}

	return c.writeFrame(payload)
}

// writeCloseMessage sends a close message to the client.
func (c *Client) writeCloseMessage() bool {
	if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
		if !isExpectedCloseError(err) {
			log.Printf("Error writing close message to %s: %v", c.addr, err)
		}
	}
	return false
}

// writeFrame writes a single JSON text frame. Queued frames stay in the send
// channel; each event is its own frame so clients can decode frame-per-event.
func (c *Client) writeFrame(payload []byte) bool {
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		if !isExpectedCloseError(err) {
			log.Printf("Error writing frame to %s: %v", c.addr, err)
		}
		return false
	}
	return true
}

// handlePing sends a ping message to keep the connection alive.
func (c *Client) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
		log.Printf("Error setting write deadline for ping to %s: %v", c.addr, err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		log.Printf("Error writing ping message to %s: %v", c.addr, err)
		return false
	}
	return true
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
