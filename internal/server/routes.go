// Package server wires the stores, hub, and router together and exposes the
// application's HTTP routes.
package server

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gorilla/websocket"
)

// Server owns every store in the system and exposes the HTTP surface. All
// shared state lives in the injected stores; nothing is package-global, so
// tests can construct isolated instances.
type Server struct {
	cfg      *Config
	creds    *CredentialStore
	guard    *LoginGuard
	history  *HistoryStore
	typing   *TypingState
	logs     *LogDir
	uploads  *UploadHandler
	hub      *Hub
	router   *Router
	registry *Registry
	upgrader websocket.Upgrader
}

// New constructs the full server from a sanitized copy of the configuration,
// creating the data directories as needed.
func New(cfg *Config) (*Server, error) {
	sanitized := sanitizeConfig(*cfg)

	messagesDir := filepath.Join(sanitized.DataDir, "messages")
	if err := os.MkdirAll(messagesDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating messages directory: %w", err)
	}

	logs, err := NewLogDir(filepath.Join(sanitized.DataDir, "logs"))
	if err != nil {
		return nil, err
	}

	uploads, err := NewUploadHandler(filepath.Join(sanitized.DataDir, "uploads"), sanitized.MaxUploadSize, logs)
	if err != nil {
		return nil, err
	}

	creds := NewCredentialStore()
	guard := NewLoginGuard(sanitized.LoginGuard)
	history := NewHistoryStore(historyFilePath(messagesDir), sanitized.HistoryLimit)
	typing := NewTypingState()
	registry := NewRegistry()

	router := NewRouter(creds, history, typing, logs)
	hub := NewHub(registry)
	router.setHub(hub)

	return &Server{
		cfg:      &sanitized,
		creds:    creds,
		guard:    guard,
		history:  history,
		typing:   typing,
		logs:     logs,
		uploads:  uploads,
		hub:      hub,
		router:   router,
		registry: registry,
		upgrader: newUpgrader(newOriginPolicy(sanitized.AllowedOrigins)),
	}, nil
}

// Hub returns the hub for lifecycle coordination (start and shutdown).
func (s *Server) Hub() *Hub {
	return s.hub
}

// Registry returns the connection registry.
func (s *Server) Registry() *Registry {
	return s.registry
}

// StartHub starts the hub's event loop in a separate goroutine. This should
// be called before serving HTTP traffic.
func (s *Server) StartHub() {
	go s.hub.Run()
}

// SetupRoutes configures and returns an HTTP ServeMux with all application
// routes: the JSON API, static serving of the upload directory, and the
// WebSocket endpoint.
func (s *Server) SetupRoutes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", HealthHandler)
	mux.HandleFunc("/ws", s.WebSocketHandler)
	mux.Handle("/register", corsMiddleware(http.HandlerFunc(s.RegisterHandler)))
	mux.Handle("/login", corsMiddleware(http.HandlerFunc(s.LoginHandler)))
	mux.Handle("/upload", corsMiddleware(s.uploads))
	mux.Handle("/public-keys", corsMiddleware(http.HandlerFunc(s.PublicKeysHandler)))
	mux.Handle("/user-profiles", corsMiddleware(http.HandlerFunc(s.UserProfilesHandler)))
	mux.Handle("/update-profile", corsMiddleware(http.HandlerFunc(s.UpdateProfileHandler)))
	mux.Handle("/message-history", corsMiddleware(http.HandlerFunc(s.MessageHistoryHandler)))
	mux.Handle("/uploads/", corsMiddleware(noDirListing(http.StripPrefix("/uploads/", http.FileServer(http.Dir(s.uploads.Dir()))))))
	return mux
}

// noDirListing rejects directory requests so stored upload filenames cannot
// be enumerated; only direct file paths are served.
func noDirListing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}
