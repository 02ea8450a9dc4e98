// Package server implements the SecureChat relay: HTTP endpoints for
// registration, login, profiles, message history, and file upload, plus the
// WebSocket hub that routes chat traffic between authenticated clients.
//
// The implementation is organized into specialized files for configuration,
// credential storage, the connection hub, clients, event routing, and HTTP
// handlers to keep the codebase maintainable and testable as the project
// grows.
package server
