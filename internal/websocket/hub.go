// burstguard - Spam Burst Detection and Mitigation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/burstguard

package websocket

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/tomtom215/burstguard/internal/audit"
	"github.com/tomtom215/burstguard/internal/logging"
)

// ShutdownReason identifies why the hub is shutting down.
type ShutdownReason string

const (
	// ShutdownReasonContextCanceled is the normal graceful shutdown path.
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"

	// ShutdownReasonContextDeadline may indicate a hung operation during shutdown.
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// Message types
const (
	MessageTypeAuditEvent = "audit_event"
	MessageTypePing       = "ping"
	MessageTypePong       = "pong"
)

// broadcastBuffer is the hub's inbound queue size.
const broadcastBuffer = 256

// ErrFeedBacklogged is returned by Forward when the broadcast queue is full.
var ErrFeedBacklogged = errors.New("websocket feed backlogged")

// Message is a frame sent to clients.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Hub tracks connected clients and fans audit events out to them.
type Hub struct {
	clients   map[*Client]bool
	broadcast chan *audit.Event
	mu        sync.RWMutex

	enabled atomic.Bool
	dropped atomic.Int64
}

var _ audit.Forwarder = (*Hub)(nil)

// NewHub creates an enabled hub. Call Serve to start it.
func NewHub() *Hub {
	h := &Hub{
		clients:   make(map[*Client]bool),
		broadcast: make(chan *audit.Event, broadcastBuffer),
	}
	h.enabled.Store(true)
	return h
}

// Serve runs the hub until ctx is canceled, then closes every client.
func (h *Hub) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		case ev := <-h.broadcast:
			h.broadcastToClients(ev)
		}
	}
}

// String implements fmt.Stringer for suture logging.
func (h *Hub) String() string {
	return "websocket-hub"
}

// Name implements audit.Forwarder.
func (h *Hub) Name() string {
	return "websocket"
}

// Enabled implements audit.Forwarder.
func (h *Hub) Enabled() bool {
	return h.enabled.Load()
}

// SetEnabled toggles forwarding without disconnecting clients.
func (h *Hub) SetEnabled(enabled bool) {
	h.enabled.Store(enabled)
}

// Forward queues an audit event for broadcast. It never blocks; when the
// queue is full the event is dropped and ErrFeedBacklogged returned.
func (h *Hub) Forward(ctx context.Context, event *audit.Event) error {
	if event == nil || !h.Enabled() {
		return nil
	}
	select {
	case h.broadcast <- event:
		return nil
	default:
		h.dropped.Add(1)
		return ErrFeedBacklogged
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many events were discarded because the queue was full.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	h.clients[c] = true
	total := len(h.clients)
	h.mu.Unlock()
	logging.Info().Uint64("client_id", c.id).Str("scope_id", c.scopeID).Int("total_clients", total).Msg("websocket client connected")
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
	}
	total := len(h.clients)
	h.mu.Unlock()
	if !ok {
		return
	}
	logging.Info().Uint64("client_id", c.id).Int("total_clients", total).Msg("websocket client disconnected")
}

// sortedClients returns clients in id order. Caller holds h.mu.
func (h *Hub) sortedClients() []*Client {
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})
	return clients
}

// broadcastToClients delivers ev to every subscribed client. Clients whose
// send buffer is full are disconnected.
func (h *Hub) broadcastToClients(ev *audit.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	msg := Message{Type: MessageTypeAuditEvent, Data: ev}
	var slow []*Client
	for _, c := range h.sortedClients() {
		if !c.wants(ev) {
			continue
		}
		select {
		case c.send <- msg:
		default:
			slow = append(slow, c)
		}
	}

	for _, c := range slow {
		close(c.send)
		delete(h.clients, c)
		logging.Warn().Uint64("client_id", c.id).Msg("websocket client too slow, disconnected")
	}
}

func (h *Hub) shutdown(ctx context.Context) {
	h.mu.Lock()
	clients := h.sortedClients()
	for _, c := range clients {
		close(c.send)
		delete(h.clients, c)
	}
	h.mu.Unlock()

	logging.Info().
		Str("component", "websocket-hub").
		Str("reason", string(shutdownReason(ctx))).
		Int("clients_closed", len(clients)).
		Msg("websocket hub stopped")
}

func shutdownReason(ctx context.Context) ShutdownReason {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ShutdownReasonContextDeadline
	}
	return ShutdownReasonContextCanceled
}
