// Package server routes decoded events from authenticated connections to one
// or many live channels.
package server

import (
	"encoding/json"
	"fmt"
	"log"
)

// Router validates inbound events against connection and auth state, decides
// fan-out (broadcast vs direct), stamps metadata, and dispatches. Events from
// one connection are handled in arrival order on that connection's read
// goroutine; shared state is serialized inside the individual stores.
type Router struct {
	creds   *CredentialStore
	history *HistoryStore
	typing  *TypingState
	logs    *LogDir
	hub     *Hub
}

// NewRouter wires the router to its collaborating stores. The hub is attached
// afterwards because hub and router reference each other.
func NewRouter(creds *CredentialStore, history *HistoryStore, typing *TypingState, logs *LogDir) *Router {
	return &Router{
		creds:   creds,
		history: history,
		typing:  typing,
		logs:    logs,
	}
}

func (r *Router) setHub(hub *Hub) {
	r.hub = hub
}

// HandleEvent decodes and dispatches one raw frame from a connection. A
// malformed frame is logged and discarded without side effects; the
// connection stays open.
func (r *Router) HandleEvent(c *Client, raw []byte) {
	var event Event
	if err := json.Unmarshal(raw, &event); err != nil {
		log.Printf("Invalid event from %s: %v", c.addr, err)
		return
	}

	if event.Type == EventAuth {
		r.handleAuth(c, &event)
		return
	}

	// Everything below requires a bound username; unauthenticated
	// connections get no side effects and no response.
	if !c.Authenticated() {
		return
	}

	switch event.Type {
	case EventMessage:
		r.handleMessage(c, &event)
	case EventFile:
		r.handleFile(c, &event)
	case EventTyping:
		r.handleTyping(c, &event)
	case EventReadReceiptAck:
		r.handleReadReceiptAck(c, &event)
	default:
		log.Printf("Unknown event type %q from %s", event.Type, c.addr)
	}
}

// handleAuth performs the connection's one-time auth handshake. On success
// the connection is bound in the registry, presence is updated, the requester
// receives a welcome and the online snapshot, and everyone else is told about
// the join. On failure an explicit auth failure frame goes back to the
// requester.
func (r *Router) handleAuth(c *Client, event *Event) {
	if c.Authenticated() {
		log.Printf("Duplicate auth event from %s (already bound to %q); ignoring", c.addr, c.username)
		return
	}

	user, err := r.creds.Verify(event.Username, event.Password)
	if err != nil {
		r.logs.Log(logNameSecurity, "Failed WebSocket auth for user: %s", event.Username)
		r.send(c, AuthResult{Type: EventAuth, Success: false, Error: "invalid credentials"})
		return
	}

	c.username = user.Username

	// Latest session wins: a second login for the same username displaces
	// the earlier connection, which is force-closed rather than orphaned.
	if prev := r.hub.registry.Bind(user.Username, c); prev != nil {
		log.Printf("User %q authenticated again from %s; closing previous session", user.Username, c.addr)
		r.send(prev, SystemNotice{Type: EventSystem, Message: "Signed in from another location"})
		if prev.conn != nil {
			if err := prev.conn.Close(); err != nil && !isExpectedCloseError(err) {
				log.Printf("Error closing displaced session for %q: %v", user.Username, err)
			}
		}
	}

	if event.PublicKey != "" {
		r.creds.SetPublicKey(user.Username, event.PublicKey)
	}
	r.creds.SetStatus(user.Username, StatusOnline)

	online := r.hub.registry.OnlineUsernames()

	r.send(c, SystemNotice{Type: EventSystem, Message: fmt.Sprintf("Welcome %s!", user.Username)})
	r.send(c, OnlineUsers{Type: EventOnlineUsers, Users: online})

	r.broadcastExcept(c, SystemNotice{Type: EventSystem, Message: fmt.Sprintf("%s joined the chat", user.Username)})
	r.broadcastExcept(c, OnlineUsers{Type: EventOnlineUsers, Users: online})

	r.logs.Log(user.Username, "User authenticated and connected via WebSocket")
}

// handleMessage stores and dispatches a chat message, then acknowledges
// delivery to the sender. Store-then-forward: history records the attempt
// even when the recipient is offline.
func (r *Router) handleMessage(c *Client, event *Event) {
	msg := Message{
		Type:      EventMessage,
		ID:        event.MessageID,
		Username:  c.username,
		Content:   event.Content,
		Encrypted: event.Encrypted,
		Formatted: event.Formatted,
		Recipient: event.Recipient,
	}
	msg = r.history.Append(msg)

	r.logs.Log(c.username, "Message sent to %s: %s", recipientLabel(msg.Recipient), contentDigest(&msg))

	r.deliver(c, &msg)

	r.send(c, ReadReceipt{
		Type:      EventReadReceipt,
		MessageID: msg.ID,
		Status:    "delivered",
	})
}

// handleFile mirrors handleMessage for file references produced by a prior
// upload. No delivery ack is sent for files.
func (r *Router) handleFile(c *Client, event *Event) {
	if event.FileURL == "" {
		log.Printf("File event from %q without upload reference; discarding", c.username)
		return
	}

	msg := Message{
		Type:      EventFile,
		Username:  c.username,
		FileURL:   event.FileURL,
		Filename:  event.Filename,
		FileType:  event.FileType,
		Encrypted: event.Encrypted,
		Recipient: event.Recipient,
	}
	msg = r.history.Append(msg)

	r.logs.Log(c.username, "File shared with %s: %s", recipientLabel(msg.Recipient), msg.Filename)

	r.deliver(c, &msg)
}

// handleTyping toggles the sender's typing membership and relays the
// indicator. Direct-addressed indicators go point-to-point only; everything
// else fans out to all peers except the sender.
func (r *Router) handleTyping(c *Client, event *Event) {
	r.typing.Set(c.username, event.IsTyping)

	recipient := event.Recipient
	if recipient == "" {
		recipient = RecipientAll
	}

	indicator := TypingIndicator{
		Type:      EventTypingStatus,
		Username:  c.username,
		IsTyping:  event.IsTyping,
		Recipient: recipient,
	}

	if recipient != RecipientAll {
		r.sendTo(recipient, indicator)
		return
	}
	r.broadcastExcept(c, indicator)
}

// handleReadReceiptAck forwards a read confirmation to the original sender if
// still online; dropped otherwise, with no retry or queueing.
func (r *Router) handleReadReceiptAck(c *Client, event *Event) {
	r.sendTo(event.Sender, ReadReceipt{
		Type:      EventReadReceipt,
		MessageID: event.MessageID,
		Status:    "read",
		Reader:    c.username,
		Time:      eventTimestamp(),
	})
}

// HandleDisconnect runs the transport-close path: unbind, clear typing state,
// mark the user offline, and tell the remaining connections.
func (r *Router) HandleDisconnect(c *Client) {
	if !c.Authenticated() {
		return
	}

	username := c.username

	// Unbind only succeeds if this connection still owns the registry
	// entry; a session displaced by a newer login must not announce the
	// newer session's user as gone.
	if !r.hub.registry.Unbind(username, c) {
		r.logs.Log(username, "Displaced WebSocket session closed")
		return
	}

	r.typing.Remove(username)
	r.creds.SetStatus(username, StatusOffline)
	r.logs.Log(username, "User disconnected from WebSocket")

	r.broadcastExcept(c, SystemNotice{Type: EventSystem, Message: fmt.Sprintf("%s left the chat", username)})
	r.broadcastExcept(c, OnlineUsers{Type: EventOnlineUsers, Users: r.hub.registry.OnlineUsernames()})
}

// BroadcastProfileUpdate announces a changed profile to every connection.
// Used by the HTTP update-profile handler.
func (r *Router) BroadcastProfileUpdate(username string, profile Profile) {
	r.broadcast(ProfileUpdate{Type: EventProfileUpdate, Username: username, Profile: profile})
}

// deliver is the shared delivery primitive for message and file events:
// broadcast to every bound channel, or point-to-point to the recipient plus
// an echo to the sender so the sender's own view stays consistent.
func (r *Router) deliver(sender *Client, msg *Message) {
	payload, ok := r.marshal(msg)
	if !ok {
		return
	}

	if msg.Direct() {
		r.hub.SendTo(msg.Recipient, payload)
		r.hub.Send(sender, payload)
		return
	}
	r.hub.Broadcast(payload)
}

func (r *Router) marshal(v any) ([]byte, bool) {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Printf("Error encoding outbound event: %v", err)
		return nil, false
	}
	return payload, true
}

func (r *Router) send(c *Client, v any) {
	if payload, ok := r.marshal(v); ok {
		r.hub.Send(c, payload)
	}
}

func (r *Router) sendTo(username string, v any) {
	if payload, ok := r.marshal(v); ok {
		r.hub.SendTo(username, payload)
	}
}

func (r *Router) broadcast(v any) {
	if payload, ok := r.marshal(v); ok {
		r.hub.Broadcast(payload)
	}
}

func (r *Router) broadcastExcept(c *Client, v any) {
	if payload, ok := r.marshal(v); ok {
		r.hub.BroadcastExcept(c, payload)
	}
}

func recipientLabel(recipient string) string {
	if recipient == "" {
		return RecipientAll
	}
	return recipient
}

// contentDigest keeps plaintext out of the session log when the payload is
// encrypted and truncates long messages.
func contentDigest(msg *Message) string {
	if msg.Encrypted {
		return "[ENCRYPTED]"
	}
	if len(msg.Content) > 50 {
		return msg.Content[:50] + "..."
	}
	return msg.Content
}
