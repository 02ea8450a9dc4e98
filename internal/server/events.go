// Package server defines the JSON event shapes exchanged over the real-time
// channel and the stored message format shared with the history endpoint.
package server

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Event type identifiers used on the real-time channel.
const (
	EventAuth           = "auth"
	EventMessage        = "message"
	EventFile           = "file"
	EventTyping         = "typing"
	EventReadReceiptAck = "read_receipt_ack"
	EventReadReceipt    = "read_receipt"
	EventTypingStatus   = "typing_indicator"
	EventOnlineUsers    = "online_users"
	EventSystem         = "system"
	EventProfileUpdate  = "profile_update"
)

// RecipientAll addresses an event to every bound connection.
const RecipientAll = "all"

// Event is the inbound envelope decoded from a client frame. Only the fields
// relevant to the declared Type are consulted; the rest stay zero.
type Event struct {
	Type      string `json:"type"`
	Username  string `json:"username,omitempty"`
	Password  string `json:"password,omitempty"`
	PublicKey string `json:"publicKey,omitempty"`
	Content   string `json:"content,omitempty"`
	MessageID string `json:"messageId,omitempty"`
	Recipient string `json:"recipient,omitempty"`
	Encrypted bool   `json:"encrypted,omitempty"`
	Formatted bool   `json:"formatted,omitempty"`
	FileURL   string `json:"fileUrl,omitempty"`
	Filename  string `json:"filename,omitempty"`
	FileType  string `json:"fileType,omitempty"`
	IsTyping  bool   `json:"isTyping,omitempty"`
	Sender    string `json:"sender,omitempty"`
}

// Message is a routed chat or file message. It is both the frame delivered to
// clients and the record appended to the history store. Immutable once built.
type Message struct {
	Type      string `json:"type"`
	ID        string `json:"id"`
	Username  string `json:"username"`
	Content   string `json:"content,omitempty"`
	FileURL   string `json:"fileUrl,omitempty"`
	Filename  string `json:"filename,omitempty"`
	FileType  string `json:"fileType,omitempty"`
	Encrypted bool   `json:"encrypted"`
	Formatted bool   `json:"formatted,omitempty"`
	Recipient string `json:"recipient,omitempty"`
	Time      string `json:"time"`
}

// Direct reports whether the message is addressed point-to-point rather than
// to every bound connection.
func (m *Message) Direct() bool {
	return m.Recipient != "" && m.Recipient != RecipientAll
}

// SystemNotice is a server-originated announcement (welcome, join, leave).
type SystemNotice struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// AuthResult reports the outcome of an auth event back to the requester.
type AuthResult struct {
	Type    string `json:"type"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// OnlineUsers carries a snapshot of currently bound usernames.
type OnlineUsers struct {
	Type  string   `json:"type"`
	Users []string `json:"users"`
}

// TypingIndicator relays a peer's typing state.
type TypingIndicator struct {
	Type      string `json:"type"`
	Username  string `json:"username"`
	IsTyping  bool   `json:"isTyping"`
	Recipient string `json:"recipient"`
}

// ReadReceipt acknowledges delivery of a message or relays a read
// confirmation back to its sender.
type ReadReceipt struct {
	Type      string `json:"type"`
	MessageID string `json:"messageId"`
	Status    string `json:"status"`
	Reader    string `json:"reader,omitempty"`
	Time      string `json:"time,omitempty"`
}

// ProfileUpdate announces a changed user profile to all clients.
type ProfileUpdate struct {
	Type     string  `json:"type"`
	Username string  `json:"username"`
	Profile  Profile `json:"profile"`
}

// newMessageID returns a unique, roughly time-ordered message identifier:
// unix milliseconds plus a random suffix.
func newMessageID() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
	return fmt.Sprintf("%d-%s", time.Now().UnixMilli(), suffix)
}

// eventTimestamp formats the current time the way clients expect on the wire.
func eventTimestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}
