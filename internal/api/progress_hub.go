// Package api carries the Server-Sent Events hub that streams analysis
// progress to the dashboard.
package api

import (
	"encoding/json"
	"io"
	"log"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"rnadash/ports"
)

// progressClient is one connected dashboard tab.
type progressClient struct {
	ch chan ports.ProgressEvent
}

// ProgressHub fans analysis progress events out to every connected
// dashboard client. It implements ports.ProgressSink, so the pipeline emits
// into it without knowing about SSE.
type ProgressHub struct {
	clients    map[chan ports.ProgressEvent]bool
	clientsMu  sync.RWMutex
	register   chan progressClient
	unregister chan progressClient
	broadcast  chan ports.ProgressEvent
}

// NewProgressHub creates the hub and starts its dispatch loop.
func NewProgressHub() *ProgressHub {
	hub := &ProgressHub{
		clients:    make(map[chan ports.ProgressEvent]bool),
		register:   make(chan progressClient, 10),
		unregister: make(chan progressClient, 10),
		broadcast:  make(chan ports.ProgressEvent, 100),
	}
	go hub.run()
	return hub
}

var _ ports.ProgressSink = (*ProgressHub)(nil)

func (h *ProgressHub) run() {
	for {
		select {
		case client := <-h.register:
			h.clientsMu.Lock()
			h.clients[client.ch] = true
			log.Printf("[SSE] Client registered (total clients: %d)", len(h.clients))
			h.clientsMu.Unlock()

		case client := <-h.unregister:
			h.clientsMu.Lock()
			if _, exists := h.clients[client.ch]; exists {
				delete(h.clients, client.ch)
				close(client.ch)
				log.Printf("[SSE] Client unregistered (remaining clients: %d)", len(h.clients))
			}
			h.clientsMu.Unlock()

		case event := <-h.broadcast:
			h.clientsMu.RLock()
			for ch := range h.clients {
				select {
				case ch <- event:
				default:
					// Client channel is full, skip
					log.Printf("[SSE] Client channel full, skipping %s event", event.Stage)
				}
			}
			h.clientsMu.RUnlock()
		}
	}
}

// Emit queues an event for broadcast. Never blocks the pipeline; when the
// hub is saturated the event is dropped.
func (h *ProgressHub) Emit(event ports.ProgressEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	select {
	case h.broadcast <- event:
	default:
		log.Printf("[SSE] Broadcast channel full, dropping %s event", event.Stage)
	}
}

// ClientCount returns the number of connected clients.
func (h *ProgressHub) ClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

// HandleSSE streams progress events to one dashboard client until it
// disconnects.
func (h *ProgressHub) HandleSSE(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	clientChan := make(chan ports.ProgressEvent, 10)

	select {
	case h.register <- progressClient{ch: clientChan}:
	default:
		c.JSON(500, gin.H{"error": "event hub registration failed"})
		return
	}
	defer func() {
		select {
		case h.unregister <- progressClient{ch: clientChan}:
		default:
		}
	}()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case event, ok := <-clientChan:
			if !ok {
				return false
			}
			eventJSON, err := json.Marshal(event)
			if err != nil {
				log.Printf("[SSE] Failed to marshal event: %v", err)
				return true
			}
			c.SSEvent("progress", string(eventJSON))
			return true

		case <-time.After(30 * time.Second):
			c.SSEvent("ping", `{"status": "alive", "timestamp": "`+time.Now().UTC().Format(time.RFC3339)+`"}`)
			return true

		case <-ctx.Done():
			return false
		}
	})
}
