package server

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// testRelay wires a router and hub to real stores without any network
// transport; clients are plain send channels.
type testRelay struct {
	creds    *CredentialStore
	history  *HistoryStore
	typing   *TypingState
	registry *Registry
	router   *Router
	hub      *Hub
}

func newTestRelay(t *testing.T) *testRelay {
	t.Helper()

	dir := t.TempDir()
	logs, err := NewLogDir(filepath.Join(dir, "logs"))
	require.NoError(t, err)

	creds := NewCredentialStore()
	history := NewHistoryStore(filepath.Join(dir, "chat_history.json"), 100)
	typing := NewTypingState()
	registry := NewRegistry()

	router := NewRouter(creds, history, typing, logs)
	hub := NewHub(registry)
	router.setHub(hub)

	return &testRelay{
		creds:    creds,
		history:  history,
		typing:   typing,
		registry: registry,
		router:   router,
		hub:      hub,
	}
}

// addClient registers a fake connection with the hub and binds it.
func (r *testRelay) addClient(username string) *Client {
	c := &Client{
		send: make(chan []byte, 16),
		hub:  r.hub,
		addr: username,
	}

	r.hub.mutex.Lock()
	r.hub.clients[c] = true
	r.hub.mutex.Unlock()

	if username != "" {
		c.username = username
		r.registry.Bind(username, c)
	}
	return c
}

// drainFrames decodes every frame queued on the client's send channel.
func drainFrames(t *testing.T, c *Client) []map[string]any {
	t.Helper()

	var frames []map[string]any
	for {
		select {
		case payload := <-c.send:
			var frame map[string]any
			require.NoError(t, json.Unmarshal(payload, &frame))
			frames = append(frames, frame)
		default:
			return frames
		}
	}
}

func framesOfType(frames []map[string]any, eventType string) []map[string]any {
	var matched []map[string]any
	for _, frame := range frames {
		if frame["type"] == eventType {
			matched = append(matched, frame)
		}
	}
	return matched
}

func TestRouterBroadcastMessage(t *testing.T) {
	relay := newTestRelay(t)
	alice := relay.addClient("alice")
	bob := relay.addClient("bob")
	carol := relay.addClient("carol")

	relay.router.HandleEvent(alice, []byte(`{"type":"message","content":"hi","recipient":"all"}`))

	for _, c := range []*Client{bob, carol} {
		frames := drainFrames(t, c)
		messages := framesOfType(frames, EventMessage)
		require.Len(t, messages, 1)
		require.Equal(t, "alice", messages[0]["username"])
		require.Equal(t, "hi", messages[0]["content"])
	}

	// The sender gets its broadcast copy plus the delivery receipt.
	frames := drainFrames(t, alice)
	require.Len(t, framesOfType(frames, EventMessage), 1)
	receipts := framesOfType(frames, EventReadReceipt)
	require.Len(t, receipts, 1)
	require.Equal(t, "delivered", receipts[0]["status"])

	require.Equal(t, 1, relay.history.Len())
}

func TestRouterDirectMessage(t *testing.T) {
	relay := newTestRelay(t)
	alice := relay.addClient("alice")
	bob := relay.addClient("bob")
	carol := relay.addClient("carol")

	relay.router.HandleEvent(alice, []byte(`{"type":"message","content":"psst","recipient":"bob"}`))

	bobFrames := drainFrames(t, bob)
	require.Len(t, framesOfType(bobFrames, EventMessage), 1)

	// Sender echo keeps the sender's own view consistent.
	aliceFrames := drainFrames(t, alice)
	require.Len(t, framesOfType(aliceFrames, EventMessage), 1)

	// A direct-addressed event is never broadcast.
	require.Empty(t, drainFrames(t, carol))
}

func TestRouterStoresMessageForOfflineRecipient(t *testing.T) {
	relay := newTestRelay(t)
	alice := relay.addClient("alice")

	relay.router.HandleEvent(alice, []byte(`{"type":"message","content":"later","recipient":"bob"}`))

	// Store-then-forward: the attempt lands in history even though bob is
	// offline, and nothing is queued for later delivery.
	require.Equal(t, 1, relay.history.Len())
	entries := relay.history.All()
	require.Equal(t, "bob", entries[0].Recipient)

	frames := drainFrames(t, alice)
	require.Len(t, framesOfType(frames, EventMessage), 1, "sender echo still delivered")
	require.Len(t, framesOfType(frames, EventReadReceipt), 1)
}

func TestRouterIgnoresEventsFromUnauthenticatedConnections(t *testing.T) {
	relay := newTestRelay(t)
	stranger := relay.addClient("")
	listener := relay.addClient("alice")

	relay.router.HandleEvent(stranger, []byte(`{"type":"message","content":"sneaky"}`))
	relay.router.HandleEvent(stranger, []byte(`{"type":"typing","isTyping":true}`))

	require.Empty(t, drainFrames(t, listener))
	require.Empty(t, drainFrames(t, stranger))
	require.Equal(t, 0, relay.history.Len())
	require.False(t, relay.typing.IsTyping(""))
}

func TestRouterMalformedEventHasNoSideEffects(t *testing.T) {
	relay := newTestRelay(t)
	alice := relay.addClient("alice")
	bob := relay.addClient("bob")

	relay.router.HandleEvent(alice, []byte(`{broken`))

	require.Empty(t, drainFrames(t, bob))
	require.Equal(t, 0, relay.history.Len())
}

func TestRouterTypingFanOut(t *testing.T) {
	relay := newTestRelay(t)
	alice := relay.addClient("alice")
	bob := relay.addClient("bob")

	relay.router.HandleEvent(alice, []byte(`{"type":"typing","isTyping":true}`))

	require.True(t, relay.typing.IsTyping("alice"))

	frames := drainFrames(t, bob)
	indicators := framesOfType(frames, EventTypingStatus)
	require.Len(t, indicators, 1)
	require.Equal(t, "alice", indicators[0]["username"])
	require.Equal(t, "all", indicators[0]["recipient"])

	// No response goes back to the sender.
	require.Empty(t, drainFrames(t, alice))

	relay.router.HandleEvent(alice, []byte(`{"type":"typing","isTyping":false}`))
	require.False(t, relay.typing.IsTyping("alice"))
}

func TestRouterReadReceiptAck(t *testing.T) {
	relay := newTestRelay(t)
	alice := relay.addClient("alice")
	bob := relay.addClient("bob")

	relay.router.HandleEvent(bob, []byte(`{"type":"read_receipt_ack","sender":"alice","messageId":"m-1"}`))

	frames := drainFrames(t, alice)
	receipts := framesOfType(frames, EventReadReceipt)
	require.Len(t, receipts, 1)
	require.Equal(t, "read", receipts[0]["status"])
	require.Equal(t, "bob", receipts[0]["reader"])
	require.Equal(t, "m-1", receipts[0]["messageId"])

	// Acks for offline senders are dropped silently.
	relay.router.HandleEvent(bob, []byte(`{"type":"read_receipt_ack","sender":"nobody","messageId":"m-2"}`))
	require.Empty(t, drainFrames(t, bob))
}

func TestRouterFileEventRequiresReference(t *testing.T) {
	relay := newTestRelay(t)
	alice := relay.addClient("alice")
	bob := relay.addClient("bob")

	relay.router.HandleEvent(alice, []byte(`{"type":"file","filename":"x.txt"}`))
	require.Equal(t, 0, relay.history.Len())
	require.Empty(t, drainFrames(t, bob))

	relay.router.HandleEvent(alice, []byte(`{"type":"file","fileUrl":"/uploads/x.txt","filename":"x.txt","fileType":"text/plain"}`))
	require.Equal(t, 1, relay.history.Len())

	frames := drainFrames(t, bob)
	files := framesOfType(frames, EventFile)
	require.Len(t, files, 1)
	require.Equal(t, "/uploads/x.txt", files[0]["fileUrl"])
}

func TestRouterDisconnectCleansUp(t *testing.T) {
	relay := newTestRelay(t)
	require.NoError(t, relay.creds.Register("alice", "pw12345678", "", nil))
	relay.creds.SetStatus("alice", StatusOnline)

	alice := relay.addClient("alice")
	bob := relay.addClient("bob")
	relay.typing.Set("alice", true)

	relay.router.HandleDisconnect(alice)

	require.Nil(t, relay.registry.Lookup("alice"))
	require.False(t, relay.typing.IsTyping("alice"))
	require.Equal(t, StatusOffline, relay.creds.Profiles()["alice"].Status)
	require.Equal(t, []string{"bob"}, relay.registry.OnlineUsernames())

	frames := drainFrames(t, bob)
	notices := framesOfType(frames, EventSystem)
	require.Len(t, notices, 1)
	require.Equal(t, "alice left the chat", notices[0]["message"])

	online := framesOfType(frames, EventOnlineUsers)
	require.Len(t, online, 1)
	require.Equal(t, []any{"bob"}, online[0]["users"])
}
