// Package monitor exposes the motion gate over HTTP: a status snapshot,
// a health probe, and a server-sent-events feed of phase transitions.
package monitor

import (
	"sync"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/motion-gate/internal/logger"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/motion-gate/pkg/types"
)

// Broadcaster manages fanout of state change events to multiple SSE
// clients.
type Broadcaster struct {
	mu      sync.Mutex
	clients map[int]chan types.StateChange
	nextID  int
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{clients: make(map[int]chan types.StateChange)}
}

// Subscribe adds a new client and returns a channel for receiving state
// changes.
func (b *Broadcaster) Subscribe() (int, <-chan types.StateChange) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan types.StateChange, 2) // Buffer 2 events to avoid blocking
	b.clients[id] = ch

	logger.Debug("Broadcaster", "Client #%d subscribed (total clients: %d)", id, len(b.clients))
	return id, ch
}

// Unsubscribe removes a client.
func (b *Broadcaster) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.clients[id]; ok {
		close(ch)
		delete(b.clients, id)
		logger.Debug("Broadcaster", "Client #%d unsubscribed (remaining clients: %d)", id, len(b.clients))
	}
}

// Publish delivers a state change to every subscriber without blocking.
func (b *Broadcaster) Publish(ev types.StateChange) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.clients {
		select {
		case ch <- ev:
			// Sent successfully
		default:
			// Client too slow, skip this event for this client
			_ = id
		}
	}
}
