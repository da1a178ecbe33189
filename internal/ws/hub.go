package ws

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/friendforge/internal/logger"
	"github.com/friendforge/internal/metrics"
	"github.com/friendforge/internal/repository"
	"github.com/friendforge/internal/service"
	"github.com/friendforge/internal/stream"
)

type Hub struct {
	mu       sync.RWMutex
	clients  map[string]map[*Client]struct{}
	total    int
	maxConns int

	broker     *stream.Broker
	messages   *service.MessageService
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
}

func NewHub(broker *stream.Broker, messages *service.MessageService, maxConns int) *Hub {
	if maxConns <= 0 {
		maxConns = 10000
	}
	return &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		maxConns:   maxConns,
		broker:     broker,
		messages:   messages,
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		done:       make(chan struct{}),
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		}
	}
}

func (h *Hub) shutdown() {
	// Collect all clients under the lock, do NOT perform I/O under mutex.
	h.mu.Lock()
	allClients := make([]*Client, 0, h.total)
	for _, clients := range h.clients {
		for c := range clients {
			allClients = append(allClients, c)
		}
	}
	h.clients = make(map[string]map[*Client]struct{})
	h.total = 0
	h.mu.Unlock()

	// Close connections outside the lock (network I/O).
	for _, c := range allClients {
		c.Close()
	}
	for _, c := range allClients {
		c.Wait()
	}
	metrics.WSConnections.Set(0)
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	if h.total >= h.maxConns {
		h.mu.Unlock()
		logger.Errorf("ws connection limit reached (%d), rejecting user=%s", h.maxConns, c.userID)
		c.Close()
		return
	}
	if _, ok := h.clients[c.userID]; !ok {
		h.clients[c.userID] = make(map[*Client]struct{})
	}
	h.clients[c.userID][c] = struct{}{}
	h.total++
	h.mu.Unlock()
	metrics.WSConnections.Inc()
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	clients, ok := h.clients[c.userID]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, exists := clients[c]; !exists {
		h.mu.Unlock()
		return
	}
	delete(clients, c)
	h.total--
	if len(clients) == 0 {
		delete(h.clients, c.userID)
	}
	h.mu.Unlock()
	metrics.WSConnections.Dec()

	// Network I/O outside the lock.
	c.Close()
}

// HandleMessage dispatches incoming WebSocket messages.
func (h *Hub) HandleMessage(ctx context.Context, c *Client, msg IncomingMessage) {
	switch msg.Type {
	case EventOpenConversation:
		h.openConversation(c, msg.PeerID)
	case EventCloseConversation:
		h.closeConversation(c, msg.PeerID)
	case EventSendMessage:
		h.handleSendMessage(ctx, c, msg)
	case EventEditMessage:
		h.handleEditMessage(ctx, c, msg)
	case EventDeleteMessage:
		h.handleDeleteMessage(ctx, c, msg)
	default:
		h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "unknown event type"})
	}
}

// handleSendMessage routes the socket write through the same path as REST.
// The sender gets no echo here: the message comes back through the
// conversation subscription, or not at all.
func (h *Hub) handleSendMessage(ctx context.Context, c *Client, msg IncomingMessage) {
	defer logger.DeferLogDuration("ws.handleSendMessage", time.Now())()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := h.messages.Send(ctx, c.userID, msg.PeerID, msg.Content); err != nil {
		h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: sendErrorText(err)})
	}
}

func (h *Hub) handleEditMessage(ctx context.Context, c *Client, msg IncomingMessage) {
	defer logger.DeferLogDuration("ws.handleEditMessage", time.Now())()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := h.messages.Edit(ctx, c.userID, msg.MessageID, msg.Content); err != nil {
		h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: sendErrorText(err)})
	}
}

func (h *Hub) handleDeleteMessage(ctx context.Context, c *Client, msg IncomingMessage) {
	defer logger.DeferLogDuration("ws.handleDeleteMessage", time.Now())()
	if msg.MessageID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := h.messages.Delete(ctx, c.userID, msg.MessageID); err != nil {
		h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: sendErrorText(err)})
	}
}

func sendErrorText(err error) string {
	switch {
	case errors.Is(err, service.ErrEmptyMessage):
		return "message is empty"
	case errors.Is(err, service.ErrSelfMessage):
		return "cannot message yourself"
	case errors.Is(err, service.ErrNotOwner):
		return "can only change own messages"
	case errors.Is(err, repository.ErrNotFound):
		return "not found"
	default:
		return "internal error"
	}
}

// SendToUser delivers an event to every open connection of a user. Used by
// REST handlers for friend request notifications.
func (h *Hub) SendToUser(userID string, msg OutgoingMessage) {
	h.mu.RLock()
	clients, ok := h.clients[userID]
	if !ok {
		h.mu.RUnlock()
		return
	}
	targets := make([]*Client, 0, len(clients))
	for c := range clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.sendToClient(c, msg)
	}
}

func (h *Hub) sendToClient(c *Client, msg OutgoingMessage) {
	select {
	case c.send <- msg:
	case <-c.done:
	default:
		// Backpressure: send buffer full, close slow client.
		logger.Errorf("ws send buffer full, closing slow client user=%s", c.userID)
		c.Close()
	}
}

func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		c.Close()
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}
