// Package server coordinates client registration, message fan-out, and
// connection cleanup for the SecureChat relay via the Hub type.
package server

import (
	"context"
	"log"
	"sync"
	"time"
)

// Hub manages all WebSocket client connections and delivers frames to one or
// many of them. It maintains client registration/unregistration and ensures
// thread-safe operations through mutex protection. Delivery is best effort
// per channel: a slow or closed client is dropped from the batch without
// affecting the others.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	registry   *Registry
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewHub creates a Hub that resolves direct deliveries through the given
// registry. The returned Hub is ready to manage WebSocket connections once
// Run is started.
func NewHub(registry *Registry) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		registry:   registry,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main event loop, handling client registration and
// unregistration. This method should be called in a separate goroutine as it
// runs until Shutdown.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				log.Printf("Received nil client registration; skipping")
				continue
			}

			h.mutex.Lock()
			client.closed = false
			h.clients[client] = true
			clientCount := len(h.clients)
			h.mutex.Unlock()
			log.Printf("Client connected from %s. Total connections: %d", client.addr, clientCount)

			h.wg.Add(2)
			go func() {
				defer h.wg.Done()
				client.writePump()
			}()
			go func() {
				defer h.wg.Done()
				client.readPump()
			}()

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.closed = true
				clientCount := len(h.clients)
				h.mutex.Unlock()
				// Close the channel after releasing the lock
				close(client.send)
				log.Printf("Client disconnected from %s. Total connections: %d", client.addr, clientCount)
			} else {
				h.mutex.Unlock()
			}
		}
	}
}

// Register queues a new client for registration; the hub launches its pump
// goroutines. A client arriving while the hub is shutting down is closed
// immediately.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.ctx.Done():
		if client.conn != nil {
			_ = client.conn.Close()
		}
	}
}

// deregister hands a client back to the hub loop, or drops it on the floor if
// the hub has already stopped; shutdownClients has closed its connection.
func (h *Hub) deregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

func (h *Hub) safeSend(client *Client, payload []byte) bool {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic in safeSend: %v", r)
		}
	}()

	// Hold the lock during the entire send operation to prevent race conditions
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	_, exists := h.clients[client]
	if !exists || client.closed {
		return false
	}

	// The send channel may be closed concurrently; the deferred recover
	// covers that window.
	select {
	case client.send <- payload:
		return true
	default:
		return false
	}
}

// Broadcast delivers the payload to every bound connection.
func (h *Hub) Broadcast(payload []byte) {
	h.publish(payload, nil)
}

// BroadcastExcept delivers the payload to every bound connection other than
// the excluded one.
func (h *Hub) BroadcastExcept(exclude *Client, payload []byte) {
	h.publish(payload, exclude)
}

// SendTo delivers the payload to the named user's bound connection, if any.
// It reports whether a send was attempted successfully.
func (h *Hub) SendTo(username string, payload []byte) bool {
	client := h.registry.Lookup(username)
	if client == nil {
		return false
	}

	if !h.safeSend(client, payload) {
		h.removeFailedClients([]*Client{client})
		return false
	}
	return true
}

// Send delivers the payload to one specific connection.
func (h *Hub) Send(client *Client, payload []byte) bool {
	if !h.safeSend(client, payload) {
		h.removeFailedClients([]*Client{client})
		return false
	}
	return true
}

// publish fans the payload out to every bound connection except the excluded
// one. Each send is attempted independently; clients with a full buffer are
// removed rather than stalling the batch. Connections that have not completed
// auth are not part of the fan-out set.
func (h *Hub) publish(payload []byte, exclude *Client) {
	clients := h.registry.Clients()

	var failed []*Client
	for _, client := range clients {
		if exclude != nil && client == exclude {
			continue
		}
		if !h.safeSend(client, payload) {
			failed = append(failed, client)
		}
	}

	h.removeFailedClients(failed)
}

// clientSnapshot returns a thread-safe snapshot of all current clients.
func (h *Hub) clientSnapshot() []*Client {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	return clients
}

// removeFailedClients removes clients that failed to receive messages and
// closes their channels.
func (h *Hub) removeFailedClients(clientsToRemove []*Client) {
	if len(clientsToRemove) == 0 {
		return
	}

	h.mutex.Lock()
	var channelsToClose []chan []byte
	for _, client := range clientsToRemove {
		if _, exists := h.clients[client]; exists {
			delete(h.clients, client)
			client.closed = true
			channelsToClose = append(channelsToClose, client.send)
			log.Printf("Client from %s removed due to full send buffer", client.addr)
		}
	}
	h.mutex.Unlock()

	// Close channels after releasing the lock
	for _, ch := range channelsToClose {
		close(ch)
	}
}

// shutdownClients gracefully closes all active client connections.
func (h *Hub) shutdownClients() {
	log.Println("Shutting down all client connections...")

	clients := h.clientSnapshot()
	for _, client := range clients {
		if client.conn != nil {
			if err := client.conn.Close(); err != nil {
				if !isExpectedCloseError(err) {
					log.Printf("Error closing client connection from %s: %v", client.addr, err)
				}
			}
		}
	}

	log.Printf("Closed %d client connections", len(clients))
}

// Shutdown initiates graceful shutdown of the hub and waits for all
// goroutines to complete. It returns after all client connections are closed
// and goroutines have finished, or when the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	log.Println("Initiating hub shutdown...")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("Hub shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		log.Println("Hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
