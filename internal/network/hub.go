// Package network is the WebSocket boundary of the server. The hub pushes
// state snapshots and game events out to render clients; client read pumps
// turn incoming messages into Commands consumed by the single game loop, so
// the engine is only ever driven from one goroutine.
package network

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/stallrush/server/internal/events"
	"github.com/stallrush/server/internal/platform/logger"
	"github.com/stallrush/server/internal/platform/metrics"
)

// Command is one player intent from a connected client.
type Command struct {
	Action     string `json:"action"` // "assign", "start", "pause", "resume", "menu"
	Kind       string `json:"kind,omitempty"`
	Index      int    `json:"index"`
	Difficulty int    `json:"difficulty,omitempty"` // starting difficulty for "start"
}

// Hub maintains the set of active clients and broadcasts messages to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	commands   chan Command
	mu         sync.Mutex
	logger     *logger.Logger
}

// NewHub initializes a new WebSocket Hub.
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		broadcast:  make(chan []byte, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		commands:   make(chan Command, 64),
		clients:    make(map[*Client]bool),
		logger:     log,
	}
}

// Commands exposes the stream of player intents for the game loop.
func (h *Hub) Commands() <-chan Command {
	return h.commands
}

// Run starts the Hub's main loop to handle client connections and broadcasts.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("WebSocket Hub shutting down.")
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			metrics.Get().RecordWSConnection(1)
			h.logger.Info("New WebSocket client connected")
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				metrics.Get().RecordWSConnection(-1)
				h.logger.Info("WebSocket client disconnected")
			}
			h.mu.Unlock()
		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
					metrics.Get().RecordWSMessage(false)
				default:
					close(client.send)
					delete(h.clients, client)
					metrics.Get().RecordWSError()
				}
			}
			h.mu.Unlock()
		}
	}
}

// envelope wraps every outbound frame so clients can tell snapshots from
// event notifications.
type envelope struct {
	Type string      `json:"type"` // "snapshot" or "event"
	Data interface{} `json:"data"`
}

// BroadcastSnapshot serializes the engine state and sends it to every
// connected client. Called once per tick by the game loop.
func (h *Hub) BroadcastSnapshot(snapshot interface{}) {
	payload, err := json.Marshal(envelope{Type: "snapshot", Data: snapshot})
	if err != nil {
		h.logger.Error("Failed to serialize snapshot for WebSocket broadcast", "err", err)
		return
	}
	select {
	case h.broadcast <- payload:
	default:
		// A stalled hub must never stall the game loop.
		metrics.Get().RecordWSError()
	}
}

// BroadcastEvent serializes a GameEvent and sends it to all connected clients.
func (h *Hub) BroadcastEvent(event events.GameEvent) {
	payload, err := json.Marshal(envelope{Type: "event", Data: event})
	if err != nil {
		h.logger.Error("Failed to serialize GameEvent for WebSocket broadcast", "err", err)
		return
	}
	select {
	case h.broadcast <- payload:
	default:
		metrics.Get().RecordWSError()
	}
}

// StartEventPoller spawns a goroutine that polls the EventLog and pushes new
// events to the Hub. The hub stays decoupled from the engine's dispatch
// while observing the same history.
func (h *Hub) StartEventPoller(ctx context.Context, eventLog *events.EventLog) {
	go func() {
		pollInterval := time.NewTicker(200 * time.Millisecond)
		defer pollInterval.Stop()

		lastProcessedEvent := 0

		for {
			select {
			case <-ctx.Done():
				return
			case <-pollInterval.C:
				allEvents := eventLog.Replay()
				if len(allEvents) > lastProcessedEvent {
					for _, event := range allEvents[lastProcessedEvent:] {
						h.BroadcastEvent(event)
					}
					lastProcessedEvent = len(allEvents)
				}
			}
		}
	}()
}
