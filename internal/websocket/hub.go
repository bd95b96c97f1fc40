// internal/websocket/hub.go
package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// Namespaces served by the hub.
const (
	NamespaceAlerts  = "/alerts"
	NamespaceSensors = "/sensors"
)

// Envelope is the frame written to clients.
type Envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type outbound struct {
	namespace string
	message   []byte
}

// Hub maintains the set of active clients per namespace and broadcasts
// messages to them.
type Hub struct {
	logger     *zap.Logger
	clients    map[string]map[*Client]bool
	broadcast  chan outbound
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	mu       sync.RWMutex
	onChange func(namespace string, count int)
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		logger:     logger.Named("websocket"),
		broadcast:  make(chan outbound, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[string]map[*Client]bool),
	}
}

// OnClientCountChange installs a callback invoked from the hub goroutine
// whenever a namespace gains or loses a client.
func (h *Hub) OnClientCountChange(fn func(namespace string, count int)) {
	h.onChange = fn
}

// Run serves registrations and broadcasts until ctx is cancelled, then
// closes every client's send channel.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for ns, set := range h.clients {
				for c := range set {
					close(c.Send)
				}
				delete(h.clients, ns)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			if h.clients[c.Namespace] == nil {
				h.clients[c.Namespace] = make(map[*Client]bool)
			}
			h.clients[c.Namespace][c] = true
			n := len(h.clients[c.Namespace])
			h.mu.Unlock()
			h.logger.Debug("client registered", zap.String("namespace", c.Namespace), zap.String("remote", c.remote()))
			h.notify(c.Namespace, n)

		case c := <-h.unregister:
			h.remove(c)

		case out := <-h.broadcast:
			var slow []*Client
			h.mu.RLock()
			for c := range h.clients[out.namespace] {
				select {
				case c.Send <- out.message:
				default:
					slow = append(slow, c)
				}
			}
			h.mu.RUnlock()
			for _, c := range slow {
				h.logger.Warn("client send buffer full, removing", zap.String("remote", c.remote()))
				h.remove(c)
			}
		}
	}
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	set := h.clients[c.Namespace]
	if _, ok := set[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(set, c)
	close(c.Send)
	n := len(set)
	h.mu.Unlock()
	h.logger.Debug("client unregistered", zap.String("namespace", c.Namespace), zap.String("remote", c.remote()))
	h.notify(c.Namespace, n)
}

func (h *Hub) notify(namespace string, n int) {
	if h.onChange != nil {
		h.onChange(namespace, n)
	}
}

// RegisterClient adds a client to its namespace.
func (h *Hub) RegisterClient(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		close(c.Send)
	}
}

// Clients returns the number of clients connected to a namespace.
func (h *Hub) Clients(namespace string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[namespace])
}

// Emit broadcasts an event to every client of a namespace.
func (h *Hub) Emit(namespace, event string, payload any) {
	msg, err := json.Marshal(Envelope{Type: event, Payload: payload})
	if err != nil {
		h.logger.Error("marshal event", zap.String("event", event), zap.Error(err))
		return
	}
	select {
	case h.broadcast <- outbound{namespace: namespace, message: msg}:
	case <-h.done:
	}
}
