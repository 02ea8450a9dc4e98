// Package server maintains the registry of authenticated connections and the
// transient typing state. The registry is the single source of truth for who
// is online.
package server

import (
	"sort"
	"sync"
)

// Registry maps each authenticated username to its live client connection.
// At most one entry exists per username; a second successful auth for the
// same username displaces the earlier one.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]*Client
}

// NewRegistry creates an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]*Client),
	}
}

// Bind associates the username with the client, returning the previously
// bound client if the username was already online. The caller decides what to
// do with the displaced connection.
func (r *Registry) Bind(username string, c *Client) (prev *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev = r.byName[username]
	if prev == c {
		prev = nil
	}
	r.byName[username] = c
	return prev
}

// Unbind removes the username's mapping, but only if it still points at the
// given client. A stale connection closing late must not evict the binding of
// a newer session for the same username.
func (r *Registry) Unbind(username string, c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, exists := r.byName[username]; exists && current == c {
		delete(r.byName, username)
		return true
	}
	return false
}

// Lookup returns the client bound to the username, or nil if offline.
func (r *Registry) Lookup(username string) *Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.byName[username]
}

// Clients returns a snapshot of every bound connection, the live channel set
// broadcasts fan out over.
func (r *Registry) Clients() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clients := make([]*Client, 0, len(r.byName))
	for _, client := range r.byName {
		clients = append(clients, client)
	}
	return clients
}

// OnlineUsernames returns a sorted snapshot of all bound usernames.
func (r *Registry) OnlineUsernames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]string, 0, len(r.byName))
	for username := range r.byName {
		users = append(users, username)
	}
	sort.Strings(users)
	return users
}

// TypingState is the set of usernames currently signalling that they are
// typing. Membership is transient and never persisted.
type TypingState struct {
	mu     sync.Mutex
	typing map[string]struct{}
}

// NewTypingState creates an empty typing set.
func NewTypingState() *TypingState {
	return &TypingState{
		typing: make(map[string]struct{}),
	}
}

// Set toggles the username's membership according to isTyping.
func (t *TypingState) Set(username string, isTyping bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if isTyping {
		t.typing[username] = struct{}{}
	} else {
		delete(t.typing, username)
	}
}

// Remove clears the username from the typing set, typically on disconnect.
func (t *TypingState) Remove(username string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.typing, username)
}

// IsTyping reports whether the username is currently in the typing set.
func (t *TypingState) IsTyping(username string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, exists := t.typing[username]
	return exists
}
