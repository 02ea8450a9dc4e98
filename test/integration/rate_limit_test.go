package integration

import (
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"securechat/internal/server"
)

// TestOverLimitEventsAreDiscarded drives a connection past its token budget
// and verifies the excess events vanish while the connection keeps routing
// once tokens refill.
func TestOverLimitEventsAreDiscarded(t *testing.T) {
	srv, err := server.New(&server.Config{
		DataDir:        t.TempDir(),
		AllowedOrigins: []string{"*"},
		RateLimit:      server.RateLimitConfig{Burst: 2, RefillInterval: 2 * time.Second},
	})
	require.NoError(t, err)

	srv.StartHub()
	ts := httptest.NewServer(srv.SetupRoutes())
	t.Cleanup(func() {
		ts.Close()
		_ = srv.Hub().Shutdown(2 * time.Second)
	})

	registerUser(t, ts.URL, "alice")
	registerUser(t, ts.URL, "bob")

	bob := dialWS(t, ts.URL)
	authenticate(t, bob, "bob")

	alice := dialWS(t, ts.URL)
	authenticate(t, alice, "alice")

	// The auth event spent one of alice's two tokens; only the first of
	// these three fits the remaining budget.
	for i := 1; i <= 3; i++ {
		sendEvent(t, alice, map[string]any{
			"type":    "message",
			"content": fmt.Sprintf("burst-%d", i),
		})
	}

	first := waitForType(t, bob, "message")
	require.Equal(t, "burst-1", first["content"])

	// Let the bucket refill, then confirm the connection still routes and
	// the discarded events never arrive.
	time.Sleep(1500 * time.Millisecond)
	sendEvent(t, alice, map[string]any{
		"type":    "message",
		"content": "after-refill",
	})

	next := waitForType(t, bob, "message")
	require.Equal(t, "after-refill", next["content"])
}
