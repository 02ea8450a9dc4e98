// Package server tracks failed login attempts and enforces the temporary
// account lockout window.
package server

import (
	"sync"
	"time"
)

type loginAttempt struct {
	count       int
	lastAttempt time.Time
}

// LoginGuard records failed login attempts per username and locks an account
// once the configured threshold is reached. Lockouts expire lazily: the next
// attempt after the window has elapsed starts from a clean slate.
type LoginGuard struct {
	mu          sync.Mutex
	attempts    map[string]*loginAttempt
	maxAttempts int
	lockout     time.Duration
	now         func() time.Time
}

// NewLoginGuard creates a guard with the given failure threshold and lockout
// duration.
func NewLoginGuard(cfg LoginGuardConfig) *LoginGuard {
	return &LoginGuard{
		attempts:    make(map[string]*loginAttempt),
		maxAttempts: cfg.MaxAttempts,
		lockout:     cfg.LockoutDuration,
		now:         time.Now,
	}
}

// Check reports whether the username is currently locked out and, if so, how
// much of the lockout window remains. An expired lockout is cleared here so
// the caller can proceed with a fresh attempt.
func (g *LoginGuard) Check(username string) (locked bool, remaining time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()

	attempt, exists := g.attempts[username]
	if !exists {
		return false, 0
	}

	elapsed := g.now().Sub(attempt.lastAttempt)
	if elapsed >= g.lockout {
		delete(g.attempts, username)
		return false, 0
	}

	if attempt.count >= g.maxAttempts {
		return true, g.lockout - elapsed
	}
	return false, 0
}

// RecordFailure notes a failed login for the username and returns the running
// failure count.
func (g *LoginGuard) RecordFailure(username string) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	attempt, exists := g.attempts[username]
	if !exists {
		attempt = &loginAttempt{}
		g.attempts[username] = attempt
	}

	attempt.count++
	attempt.lastAttempt = g.now()
	return attempt.count
}

// Clear resets the failure record for the username, typically after a
// successful login.
func (g *LoginGuard) Clear(username string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.attempts, username)
}

// FailureCount returns the current failure count for the username.
func (g *LoginGuard) FailureCount(username string) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	if attempt, exists := g.attempts[username]; exists {
		return attempt.count
	}
	return 0
}
