package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLogDirAppendsTimestampedLines(t *testing.T) {
	dir := t.TempDir()
	logs, err := NewLogDir(dir)
	require.NoError(t, err)

	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	logs.now = func() time.Time { return fixed }

	logs.Log("alice", "User logged in: %s", "alice")
	logs.Log("alice", "User disconnected from WebSocket")

	data, err := os.ReadFile(filepath.Join(dir, "alice_2025-06-01.log"))
	require.NoError(t, err)

	content := string(data)
	require.Contains(t, content, "[2025-06-01T12:00:00Z] User logged in: alice\n")
	require.Contains(t, content, "User disconnected from WebSocket\n")
}

func TestLogDirSeparatesFilesByName(t *testing.T) {
	dir := t.TempDir()
	logs, err := NewLogDir(dir)
	require.NoError(t, err)

	logs.Log("alice", "session event")
	logs.Log(logNameSecurity, "failed login")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestLogDirSanitizesNames(t *testing.T) {
	dir := t.TempDir()
	logs, err := NewLogDir(dir)
	require.NoError(t, err)

	logs.Log("../../etc/passwd", "path escape attempt")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Contains(t, entries[0].Name(), "passwd_")
}

func TestNewMessageIDIsUnique(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		id := newMessageID()
		require.NotContains(t, seen, id)
		seen[id] = struct{}{}
	}
}
