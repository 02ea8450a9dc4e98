// Package server exposes the HTTP JSON endpoints: registration, login,
// profiles, public keys, message history, and the WebSocket upgrade.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

type errorResponse struct {
	Error string `json:"error"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error writing JSON response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return false
	}
	return true
}

// WebSocketHandler upgrades the HTTP connection and hands the socket to the
// hub. Events arriving before a successful auth are discarded by the router.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	client := NewClient(conn, s.hub, s.router, r.RemoteAddr, s.cfg)
	s.hub.Register(client)
}

// RegisterHandler handles POST /register.
func (s *Server) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req struct {
		Username  string   `json:"username"`
		Password  string   `json:"password"`
		PublicKey string   `json:"publicKey"`
		Profile   *Profile `json:"profile"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	if err := s.creds.Register(req.Username, req.Password, req.PublicKey, req.Profile); err != nil {
		if errors.Is(err, ErrUsernameTaken) {
			writeError(w, http.StatusBadRequest, "Username already taken")
			return
		}
		log.Printf("Registration error for %q: %v", req.Username, err)
		writeError(w, http.StatusInternalServerError, "Registration failed")
		return
	}

	s.logs.Log(logNameSystem, "User registered: %s", req.Username)
	writeJSON(w, http.StatusOK, messageResponse{Message: "Registered successfully"})
}

// LoginHandler handles POST /login, consulting the login guard before the
// credential store.
func (s *Server) LoginHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	if locked, remaining := s.guard.Check(req.Username); locked {
		minutes := int(math.Ceil(remaining.Minutes()))
		writeError(w, http.StatusTooManyRequests,
			fmt.Sprintf("Account is temporarily locked. Try again in %d minutes.", minutes))
		return
	}

	user, err := s.creds.Verify(req.Username, req.Password)
	if err != nil {
		count := s.guard.RecordFailure(req.Username)
		s.logs.Log(logNameSecurity, "Failed login attempt for user: %s (Attempt %d)", req.Username, count)
		if count >= s.cfg.LoginGuard.MaxAttempts {
			s.logs.Log(logNameSecurity, "Account locked: %s - Too many failed login attempts", req.Username)
		}
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	s.guard.Clear(req.Username)
	s.creds.SetStatus(req.Username, StatusOnline)
	s.logs.Log(req.Username, "User logged in: %s", req.Username)

	writeJSON(w, http.StatusOK, struct {
		Message   string `json:"message"`
		PublicKey string `json:"publicKey"`
	}{
		Message:   "Logged in successfully",
		PublicKey: user.PublicKey,
	})
}

// PublicKeysHandler handles GET /public-keys: username to public key for
// every user with a key on file.
func (s *Server) PublicKeysHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.creds.PublicKeys())
}

// UserProfilesHandler handles GET /user-profiles.
func (s *Server) UserProfilesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.creds.Profiles())
}

// UpdateProfileHandler handles POST /update-profile: merges the partial
// profile and announces the change to every connected client.
func (s *Server) UpdateProfileHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req struct {
		Username string       `json:"username"`
		Profile  ProfilePatch `json:"profile"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := s.creds.UpdateProfile(req.Username, req.Profile)
	if err != nil {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}

	s.router.BroadcastProfileUpdate(user.Username, user.Profile)
	s.logs.Log(user.Username, "Profile updated for user: %s", user.Username)

	writeJSON(w, http.StatusOK, messageResponse{Message: "Profile updated successfully"})
}

// MessageHistoryHandler handles GET /message-history, returning the retained
// window in insertion order. Always an array, possibly empty.
func (s *Server) MessageHistoryHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	history := s.history.All()
	if history == nil {
		history = []Message{}
	}
	writeJSON(w, http.StatusOK, history)
}

// HealthHandler provides a simple health check endpoint that returns server
// status.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "SecureChat server is running!")
}

// corsMiddleware mirrors the permissive CORS posture of the HTTP API so
// browser clients on other origins can call the JSON endpoints.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// newUpgrader builds the WebSocket upgrader with the configured origin
// policy.
func newUpgrader(policy *originPolicy) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin:      policy.checkOrigin,
	}
}
