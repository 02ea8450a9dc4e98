// Package server persists the bounded message history as a single JSON
// document so chat history survives process restarts.
package server

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"sync"
)

// HistoryStore is an append-only, bounded log of routed messages backed by a
// JSON file. The retained window slides: once the limit is reached, appending
// drops the oldest entry. Storage failures degrade rather than propagate — an
// unreadable file loads as empty history and a failed write is logged and
// dropped.
type HistoryStore struct {
	mu      sync.Mutex
	path    string
	limit   int
	entries []Message
}

// NewHistoryStore opens (or creates) the history file at path and loads the
// retained window. A missing or corrupt file yields an empty store.
func NewHistoryStore(path string, limit int) *HistoryStore {
	if limit <= 0 {
		limit = 1000
	}

	store := &HistoryStore{
		path:  path,
		limit: limit,
	}
	store.load()
	return store
}

func (s *HistoryStore) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("Error reading message history from %s: %v", s.path, err)
		}
		return
	}

	var entries []Message
	if err := json.Unmarshal(data, &entries); err != nil {
		log.Printf("Corrupt message history in %s, starting empty: %v", s.path, err)
		return
	}

	if len(entries) > s.limit {
		entries = entries[len(entries)-s.limit:]
	}
	s.entries = entries
}

// Append adds a message to the history, assigning an id and timestamp if the
// message carries none, and trims the log to the retention limit before
// persisting. The (possibly completed) message is returned.
func (s *HistoryStore) Append(msg Message) Message {
	if msg.ID == "" {
		msg.ID = newMessageID()
	}
	if msg.Time == "" {
		msg.Time = eventTimestamp()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append(s.entries, msg)
	if len(s.entries) > s.limit {
		s.entries = s.entries[len(s.entries)-s.limit:]
	}
	s.persistLocked()
	return msg
}

// All returns the full retained window in insertion order.
func (s *HistoryStore) All() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]Message, len(s.entries))
	copy(entries, s.entries)
	return entries
}

// Len returns the number of retained messages.
func (s *HistoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.entries)
}

// persistLocked writes the retained window to disk. Callers hold s.mu. The
// write goes through a temp file and rename so a crash mid-write cannot leave
// a truncated history behind.
func (s *HistoryStore) persistLocked() {
	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		log.Printf("Error encoding message history: %v", err)
		return
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		log.Printf("Error writing message history to %s: %v", tmp, err)
		return
	}
	if err := os.Rename(tmp, s.path); err != nil {
		log.Printf("Error replacing message history at %s: %v", s.path, err)
	}
}

// historyFilePath returns the conventional history file location under the
// messages directory.
func historyFilePath(messagesDir string) string {
	return filepath.Join(messagesDir, "chat_history.json")
}
