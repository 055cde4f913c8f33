package hub

import (
	"context"
	"log/slog"
	"sync"

	"bonvoyage/internal/queue"
)

// Client is one websocket connection following a single request.
type Client struct {
	ID        string
	RequestID string
	Send      chan []byte
}

func NewClient(id, requestID string, bufferSize int) *Client {
	return &Client{
		ID:        id,
		RequestID: requestID,
		Send:      make(chan []byte, bufferSize),
	}
}

type Metrics interface {
	SetWSClients(n int)
}

type nopMetrics struct{}

func (nopMetrics) SetWSClients(int) {}

type event struct {
	requestID string
	data      []byte
}

// Hub fans request events out to the clients following that request.
type Hub struct {
	mu             sync.RWMutex
	clients        map[*Client]struct{}
	requestClients map[string]map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	broadcast  chan event
	// done is closed once Run returns
	done chan struct{}

	metrics Metrics
	logger  *slog.Logger
}

func NewHub(m Metrics, logger *slog.Logger) *Hub {
	if m == nil {
		m = nopMetrics{}
	}
	return &Hub{
		clients:        make(map[*Client]struct{}),
		requestClients: make(map[string]map[*Client]struct{}),
		register:       make(chan *Client, 16),
		unregister:     make(chan *Client, 16),
		broadcast:      make(chan event, 256),
		done:           make(chan struct{}),
		metrics:        m,
		logger:         logger.With("component", "hub"),
	}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.closeAllClients()
			h.drainPending()
			return

		case client := <-h.register:
			h.addClient(client)

		case client := <-h.unregister:
			h.removeClient(client)

		case ev := <-h.broadcast:
			h.fanout(ev)
		}
	}
}

// Attach subscribes the hub to every request event on q.
func (h *Hub) Attach(q queue.Queue) (func(), error) {
	return q.Subscribe(queue.SubjectEventsAll, h.OnEvent)
}

// OnEvent receives a raw event published on a request subject.
func (h *Hub) OnEvent(subject string, data []byte) {
	id, ok := queue.RequestIDFromSubject(subject)
	if !ok {
		return
	}
	select {
	case h.broadcast <- event{requestID: id, data: data}:
	default:
		h.logger.Warn("broadcast channel full, dropping event", "request_id", id)
	}
}

// Register adds client to the hub. Once the hub has stopped the client's
// Send channel is closed straight away.
func (h *Hub) Register(client *Client) {
	select {
	case <-h.done:
		close(client.Send)
		return
	default:
	}
	select {
	case h.register <- client:
	case <-h.done:
		close(client.Send)
	}
}

// Unregister removes client and closes its Send channel. It returns at once
// when the hub has stopped, since stopping already closed every client.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	if h.requestClients[client.RequestID] == nil {
		h.requestClients[client.RequestID] = make(map[*Client]struct{})
	}
	h.requestClients[client.RequestID][client] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()

	h.metrics.SetWSClients(total)
	h.logger.Debug("client registered", "client_id", client.ID, "request_id", client.RequestID, "total", total)
}

func (h *Hub) fanout(ev event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.requestClients[ev.requestID] {
		select {
		case client.Send <- ev.data:
		default:
			h.logger.Debug("client send buffer full", "client_id", client.ID)
		}
	}
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mu.Unlock()
		return
	}
	if subs := h.requestClients[client.RequestID]; subs != nil {
		delete(subs, client)
		if len(subs) == 0 {
			delete(h.requestClients, client.RequestID)
		}
	}
	delete(h.clients, client)
	close(client.Send)
	total := len(h.clients)
	h.mu.Unlock()

	h.metrics.SetWSClients(total)
	h.logger.Debug("client unregistered", "client_id", client.ID, "total", total)
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.Send)
	}
	h.clients = make(map[*Client]struct{})
	h.requestClients = make(map[string]map[*Client]struct{})
	h.metrics.SetWSClients(0)
}

// drainPending closes clients whose registration was queued but never handled.
func (h *Hub) drainPending() {
	for {
		select {
		case client := <-h.register:
			close(client.Send)
		default:
			return
		}
	}
}
