// SPDX-License-Identifier: MIT
package transport

import (
	"net/http"
	"sync"
	"time"

	applog "whisperer/internal/log"

	"github.com/gorilla/websocket"
)

const (
	writeTimeout    = 2 * time.Second
	broadcastBuffer = 256
)

// Hub fans messages out to every connected websocket client. A client
// whose write fails or times out is dropped.
type Hub struct {
	upgrader  websocket.Upgrader
	clients   map[*websocket.Conn]struct{}
	clientsMu sync.Mutex
	broadcast chan any
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewHub creates a hub and starts its broadcast loop.
func NewHub() *Hub {
	h := &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Local bridge, any origin may connect.
			},
		},
		clients:   make(map[*websocket.Conn]struct{}),
		broadcast: make(chan any, broadcastBuffer),
		done:      make(chan struct{}),
	}
	h.wg.Add(1)
	go h.run()
	return h
}

// ServeHTTP upgrades the request and registers the client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		applog.Warnf("transport: websocket upgrade: %v", err)
		return
	}

	h.clientsMu.Lock()
	h.clients[conn] = struct{}{}
	n := len(h.clients)
	h.clientsMu.Unlock()
	applog.Infof("transport: client connected, total: %d", n)

	// Clients only listen; a read error means they left.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.drop(conn)
				return
			}
		}
	}()
}

// Send queues data for broadcast. When the queue is full the message is
// dropped; frames are superseded quickly.
func (h *Hub) Send(data any) error {
	select {
	case <-h.done:
		return nil
	default:
	}
	select {
	case h.broadcast <- data:
	default:
		applog.Debugf("transport: broadcast queue full, dropping message")
	}
	return nil
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	return len(h.clients)
}

func (h *Hub) run() {
	defer h.wg.Done()
	for {
		select {
		case data := <-h.broadcast:
			h.clientsMu.Lock()
			for conn := range h.clients {
				_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := conn.WriteJSON(data); err != nil {
					applog.Debugf("transport: dropping client: %v", err)
					conn.Close()
					delete(h.clients, conn)
				}
			}
			h.clientsMu.Unlock()
		case <-h.done:
			return
		}
	}
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.clientsMu.Lock()
	_, ok := h.clients[conn]
	delete(h.clients, conn)
	n := len(h.clients)
	h.clientsMu.Unlock()
	conn.Close()
	if ok {
		applog.Infof("transport: client disconnected, total: %d", n)
	}
}

// Close disconnects every client and stops the broadcast loop.
func (h *Hub) Close() error {
	h.closeOnce.Do(func() {
		close(h.done)
		h.wg.Wait()

		h.clientsMu.Lock()
		for conn := range h.clients {
			conn.Close()
		}
		h.clients = make(map[*websocket.Conn]struct{})
		h.clientsMu.Unlock()
	})
	return nil
}

var _ Transport = (*Hub)(nil)
