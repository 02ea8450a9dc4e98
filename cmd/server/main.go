package main

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"securechat/internal/server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	fmt.Println("Starting SecureChat server...")

	config := server.NewConfigFromEnv()

	srv, err := server.New(config)
	if err != nil {
		log.Fatalf("Failed to initialize server: %v", err)
	}

	srv.StartHub()

	mux := srv.SetupRoutes()
	httpServer := server.CreateServer(config.Port, mux)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.StartServer(httpServer)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		log.Printf("Received signal %s, shutting down", sig)
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}

	// Drain HTTP traffic first, then the hub so in-flight events finish
	// before client goroutines are reaped.
	if err := server.ShutdownServer(httpServer, shutdownTimeout); err != nil {
		log.Printf("HTTP shutdown incomplete: %v", err)
	}
	if err := srv.Hub().Shutdown(shutdownTimeout); err != nil {
		log.Printf("Hub shutdown incomplete: %v", err)
	}
}
