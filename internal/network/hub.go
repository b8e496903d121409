package network

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MRamiBalles/StationAtmos/server/internal/engine"
	"github.com/MRamiBalles/StationAtmos/server/internal/events"
	"github.com/MRamiBalles/StationAtmos/server/internal/platform/config"
	"github.com/MRamiBalles/StationAtmos/server/internal/platform/logger"
	"github.com/MRamiBalles/StationAtmos/server/internal/platform/metrics"
)

// Hub maintains the set of active overlay clients and broadcasts
// simulation events to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	direct     chan outbound
	done       chan struct{}
	mu         sync.Mutex

	engine  *engine.Engine
	cfg     config.NetworkConfig
	metrics *metrics.Collector
	logger  *logger.Logger
}

// NewHub initializes a new WebSocket Hub. A nil collector disables metrics.
func NewHub(eng *engine.Engine, cfg config.NetworkConfig, m *metrics.Collector, log *logger.Logger) *Hub {
	if cfg.BroadcastChannelBuffer < 1 {
		cfg.BroadcastChannelBuffer = 1
	}
	if cfg.ClientSendBuffer < 1 {
		cfg.ClientSendBuffer = 1
	}
	return &Hub{
		broadcast:  make(chan []byte, cfg.BroadcastChannelBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		direct:     make(chan outbound, cfg.BroadcastChannelBuffer),
		done:       make(chan struct{}),
		clients:    make(map[*Client]bool),
		engine:     eng,
		cfg:        cfg,
		metrics:    m,
		logger:     log,
	}
}

// outbound is a reply addressed to one client.
type outbound struct {
	client  *Client
	payload []byte
}

// Run starts the Hub's main loop to handle client connections and broadcasts.
// All writes to client send channels happen here, so a channel is never
// written after it is closed.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("WebSocket Hub shutting down.")
			h.mu.Lock()
			for client := range h.clients {
				h.drop(client)
			}
			h.mu.Unlock()
			return
		case client := <-h.register:
			h.mu.Lock()
			if h.cfg.MaxClients > 0 && len(h.clients) >= h.cfg.MaxClients {
				h.mu.Unlock()
				h.logger.Warnf("rejecting overlay client: %d connections already open", h.cfg.MaxClients)
				close(client.send)
				continue
			}
			h.clients[client] = true
			h.mu.Unlock()
			if h.metrics != nil {
				h.metrics.RecordWSConnection(1)
			}
			h.logger.Info("New WebSocket client connected")
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				h.drop(client)
				h.logger.Info("WebSocket client disconnected")
			}
			h.mu.Unlock()
		case out := <-h.direct:
			h.mu.Lock()
			if h.clients[out.client] {
				select {
				case out.client.send <- out.payload:
					if h.metrics != nil {
						h.metrics.RecordWSMessage(false)
					}
				default:
					h.drop(out.client)
				}
			}
			h.mu.Unlock()
		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
					if h.metrics != nil {
						h.metrics.RecordWSMessage(false)
					}
				default:
					// Slow consumer.
					h.drop(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// drop must be called with h.mu held.
func (h *Hub) drop(client *Client) {
	delete(h.clients, client)
	close(client.send)
	if h.metrics != nil {
		h.metrics.RecordWSConnection(-1)
	}
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// BroadcastEvent serializes an event and queues it for every client.
func (h *Hub) BroadcastEvent(ctx context.Context, event events.Event) {
	payload, err := json.Marshal(Envelope{Type: MsgEvent, Data: event})
	if err != nil {
		h.logger.Errorf("Failed to serialize %s for WebSocket broadcast: %v", event.Type, err)
		return
	}
	select {
	case h.broadcast <- payload:
	case <-ctx.Done():
	}
}

// StartEventPoller spawns a goroutine that polls the EventLog and pushes
// new events to the Hub. The hub runs independently of the tick while
// picking up the same events.
func (h *Hub) StartEventPoller(ctx context.Context, eventLog *events.EventLog) {
	interval := h.cfg.PollInterval
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	go func() {
		pollInterval := time.NewTicker(interval)
		defer pollInterval.Stop()

		lastProcessedEvent := eventLog.Len()

		for {
			select {
			case <-ctx.Done():
				return
			case <-pollInterval.C:
				newEvents := eventLog.Since(lastProcessedEvent)
				for _, event := range newEvents {
					if broadcastable(event) {
						h.BroadcastEvent(ctx, event)
					}
				}
				lastProcessedEvent += len(newEvents)
			}
		}
	}()
}

// broadcastable filters alarm edges raised while the entity's network wire
// was cut. They stay in the log for history but never reach overlays.
func broadcastable(event events.Event) bool {
	p, ok := event.Payload.(events.AlarmChangedPayload)
	return !ok || !p.IgnoreNetwork
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Overlay tools connect from other origins
	},
}

// ServeWS upgrades the request and starts the client pumps.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Errorf("Failed to upgrade websocket connection: %v", err)
		if h.metrics != nil {
			h.metrics.RecordWSError()
		}
		return
	}

	client := NewClient(h, conn)
	client.Register()

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.WritePump()
	go client.ReadPump()
}
