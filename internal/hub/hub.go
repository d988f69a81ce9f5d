// Package hub fans decoded sensor records out to connected clients.
package hub

import (
	"fmt"
	"strings"
	"sync"

	"github.com/kstaniek/go-cave-crawler/internal/logging"
	"github.com/kstaniek/go-cave-crawler/internal/metrics"
	"github.com/kstaniek/go-cave-crawler/internal/sensor"
)

type BackpressurePolicy int

const (
	PolicyDrop BackpressurePolicy = iota
	PolicyKick
)

func (p BackpressurePolicy) String() string {
	if p == PolicyKick {
		return "kick"
	}
	return "drop"
}

// ParsePolicy accepts "drop" or "kick".
func ParsePolicy(s string) (BackpressurePolicy, error) {
	switch strings.ToLower(s) {
	case "drop", "":
		return PolicyDrop, nil
	case "kick":
		return PolicyKick, nil
	}
	return PolicyDrop, fmt.Errorf("unknown hub policy %q", s)
}

type Client struct {
	Out       chan sensor.Record
	Closed    chan struct{}
	closeOnce sync.Once
}

// NewClient returns a client with an outbound queue of size buf.
func NewClient(buf int) *Client {
	return &Client{Out: make(chan sensor.Record, buf), Closed: make(chan struct{})}
}

// Close signals the client is closed (idempotent).
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.Closed)
	})
}

type Hub struct {
	mu         sync.RWMutex
	clients    map[*Client]struct{}
	OutBufSize int
	Policy     BackpressurePolicy
}

// New creates a Hub with default settings.
func New() *Hub { return &Hub{clients: make(map[*Client]struct{})} }

// Add registers a client with the hub.
func (h *Hub) Add(c *Client) {
	h.mu.Lock()
	prev := len(h.clients)
	h.clients[c] = struct{}{}
	cur := len(h.clients)
	h.mu.Unlock()
	metrics.SetHubClients(cur)
	if prev == 0 && cur == 1 {
		logging.L().Info("clients_first_connected")
	}
}

// Remove unregisters a client and updates metrics; safe to call multiple times.
func (h *Hub) Remove(c *Client) {
	h.mu.Lock()
	_, existed := h.clients[c]
	if existed {
		delete(h.clients, c)
	}
	cur := len(h.clients)
	h.mu.Unlock()
	c.Close()
	metrics.SetHubClients(cur)
	if existed && cur == 0 {
		logging.L().Info("clients_last_disconnected")
	}
}

// Broadcast sends a record to all connected clients honoring the backpressure policy.
func (h *Hub) Broadcast(r sensor.Record) {
	clients := h.Snapshot()
	metrics.SetBroadcastFanout(len(clients))
	if len(clients) == 0 {
		return
	}
	max, sum := 0, 0
	for _, c := range clients {
		l := len(c.Out)
		if l > max {
			max = l
		}
		sum += l
	}
	metrics.SetQueueDepth(max, sum/len(clients))
	for _, c := range clients {
		select {
		case <-c.Closed:
			continue // kicked, waiting for the server to remove it
		default:
		}
		select {
		case c.Out <- r:
		default:
			if h.Policy == PolicyKick {
				metrics.IncHubKick()
				c.Close() // writer exits; server removes on disconnect
			} else {
				metrics.IncHubDrop()
			}
		}
	}
}

// Snapshot returns a slice copy of current clients (read-only use).
func (h *Hub) Snapshot() []*Client {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	return clients
}

// Count returns the number of active clients.
func (h *Hub) Count() int { h.mu.RLock(); n := len(h.clients); h.mu.RUnlock(); return n }
