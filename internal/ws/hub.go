package ws

import (
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Hub fans generation events out to subscribed clients. Subscriptions are
// explicit and job-scoped: a client receives events only for jobs it named in
// a subscribe message, and subscriptions do not survive a reconnect.
type Hub struct {
	mu            sync.RWMutex
	logger        *zap.Logger
	clients       map[*Client]struct{}
	subscriptions map[string]map[*Client]struct{}
}

// Client is one connected socket session.
type Client struct {
	ID        string
	UserID    string
	jobs      map[string]struct{}
	Outbound  chan Event
	done      chan struct{}
	closeOnce sync.Once
}

// NewHub constructs the hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		logger:        logger,
		clients:       make(map[*Client]struct{}),
		subscriptions: make(map[string]map[*Client]struct{}),
	}
}

// NewClient registers a fresh session for the given user.
func (h *Hub) NewClient(userID string, buffer int) *Client {
	if buffer <= 0 {
		buffer = 16
	}
	client := &Client{
		ID:       uuid.NewString(),
		UserID:   userID,
		jobs:     make(map[string]struct{}),
		Outbound: make(chan Event, buffer),
		done:     make(chan struct{}),
	}

	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()

	return client
}

// Subscribe adds the client to a job's subscriber set.
func (h *Hub) Subscribe(client *Client, jobID string) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	client.jobs[jobID] = struct{}{}
	clients, ok := h.subscriptions[jobID]
	if !ok {
		clients = make(map[*Client]struct{})
		h.subscriptions[jobID] = clients
	}
	clients[client] = struct{}{}

	h.logger.Debug("progress client subscribed", zap.String("client_id", client.ID), zap.String("job_id", jobID))
}

// Unsubscribe removes the client from a job's subscriber set.
func (h *Hub) Unsubscribe(client *Client, jobID string) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	delete(client.jobs, jobID)
	if clients, ok := h.subscriptions[jobID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.subscriptions, jobID)
		}
	}
}

// RemoveClient drops every subscription held by the client.
func (h *Hub) RemoveClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for jobID := range client.jobs {
		if clients, ok := h.subscriptions[jobID]; ok {
			delete(clients, client)
			if len(clients) == 0 {
				delete(h.subscriptions, jobID)
			}
		}
	}
	client.jobs = make(map[string]struct{})
}

// Publish forwards an event to every subscriber of its job. Slow consumers
// are skipped rather than blocking the runner.
func (h *Hub) Publish(evt Event) {
	if evt.JobID == "" {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	clients, ok := h.subscriptions[evt.JobID]
	if !ok {
		return
	}
	for client := range clients {
		select {
		case client.Outbound <- evt:
		default:
			h.logger.Warn("dropping progress event, outbound buffer full",
				zap.String("client_id", client.ID), zap.String("job_id", evt.JobID))
		}
	}
}

// SubscriberCount returns the number of clients watching a job.
func (h *Hub) SubscriberCount(jobID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscriptions[jobID])
}

// Close tears the client down. Safe to call more than once.
func (h *Hub) Close(client *Client) {
	client.closeOnce.Do(func() {
		h.RemoveClient(client)

		h.mu.Lock()
		delete(h.clients, client)
		h.mu.Unlock()

		close(client.done)
		close(client.Outbound)
	})
}

// Shutdown closes every connected client, used at process exit.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.Unlock()

	for _, client := range clients {
		h.Close(client)
	}
}
