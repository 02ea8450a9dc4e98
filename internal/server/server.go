// Package server constructs and starts the SecureChat HTTP service with
// helpers that apply sensible production defaults.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"
)

// CreateServer creates and configures an HTTP server with the specified port
// and handler. It sets reasonable timeout values for production use. Write
// timeout stays unset because the handler set includes long-lived WebSocket
// connections.
func CreateServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              port,
		Handler:           handler,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// StartServer starts the HTTP server and begins listening for connections.
// It returns an error if the server fails to start.
func StartServer(server *http.Server) error {
	fmt.Printf("Server listening on %s\n", server.Addr)
	return server.ListenAndServe()
}

// ShutdownServer gracefully shuts down the HTTP server without interrupting
// active connections. It waits for active connections to close or until the
// timeout is reached.
func ShutdownServer(server *http.Server, timeout time.Duration) error {
	log.Println("Shutting down HTTP server...")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		return err
	}

	log.Println("HTTP server shutdown completed")
	return nil
}
