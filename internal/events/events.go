// Package events fans change notifications out to Server-Sent Events clients.
package events

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/i474232898/weather-station-sync/internal/metrics"
)

// Message types.
const (
	TypeConnected    = "connected"
	TypeObservations = "observations"
	TypeMarkers      = "markers"
	TypePopup        = "popup"
	TypeState        = "state"
)

// Message is one Server-Sent Event.
type Message struct {
	ID        int64       `json:"id"`
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Broadcaster manages SSE clients.
type Broadcaster interface {
	// AddClient registers a client and returns its message channel.
	AddClient(clientID string) <-chan Message

	// RemoveClient unregisters a client and closes its channel. It does
	// nothing if clientID has since been re-added with a different channel.
	RemoveClient(clientID string, ch <-chan Message)

	ClientCount() int

	// Broadcast sends msg to every client. Slow clients miss messages rather
	// than block the sender.
	Broadcast(msg Message)
}

type broadcaster struct {
	mu      sync.RWMutex
	clients map[string]chan Message
	buffer  int
	seq     atomic.Int64
	logger  *log.Logger
}

// NewBroadcaster creates a Broadcaster with a per-client buffer of `buffer` messages.
func NewBroadcaster(buffer int, logger *log.Logger) Broadcaster {
	if buffer <= 0 {
		buffer = 100
	}
	return &broadcaster{
		clients: make(map[string]chan Message),
		buffer:  buffer,
		logger:  logger,
	}
}

func (b *broadcaster) AddClient(clientID string) <-chan Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	if existing, ok := b.clients[clientID]; ok {
		close(existing)
		delete(b.clients, clientID)
		metrics.SSEClients.Dec()
	}

	ch := make(chan Message, b.buffer)
	b.clients[clientID] = ch
	metrics.SSEClients.Inc()
	b.logger.Debug("sse client connected", "client", clientID, "total", len(b.clients))
	return ch
}

func (b *broadcaster) RemoveClient(clientID string, ch <-chan Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if current, ok := b.clients[clientID]; ok && current == ch {
		close(current)
		delete(b.clients, clientID)
		metrics.SSEClients.Dec()
		b.logger.Debug("sse client disconnected", "client", clientID, "remaining", len(b.clients))
	}
}

func (b *broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

func (b *broadcaster) Broadcast(msg Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	if msg.ID == 0 {
		msg.ID = b.seq.Add(1)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, ch := range b.clients {
		select {
		case ch <- msg:
		default:
			b.logger.Warn("sse client channel full, message dropped", "client", id, "type", msg.Type)
		}
	}
}

// WriteMessage writes msg in SSE wire format.
func WriteMessage(w io.Writer, msg Message) error {
	if _, err := fmt.Fprintf(w, "id: %d\n", msg.ID); err != nil {
		return err
	}
	if msg.Type != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", msg.Type); err != nil {
			return err
		}
	}

	data := []byte("{}")
	if msg.Data != nil {
		var err error
		if data, err = json.Marshal(msg.Data); err != nil {
			return fmt.Errorf("marshal sse data: %w", err)
		}
	}
	_, err := fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}

// WriteKeepalive writes an SSE comment line.
func WriteKeepalive(w io.Writer) error {
	_, err := io.WriteString(w, ": keepalive\n\n")
	return err
}
