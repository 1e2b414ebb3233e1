package ws

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Registry maps users to their live connections. A user is online exactly
// when their client set is non-empty; there is no separate flag to drift.
// Instances are explicitly constructed and passed to sessions and the
// dispatcher, never ambient state.
type Registry struct {
	mu           sync.RWMutex
	clients      map[uuid.UUID]map[*Client]struct{}
	lastActivity map[uuid.UUID]time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		clients:      make(map[uuid.UUID]map[*Client]struct{}),
		lastActivity: make(map[uuid.UUID]time.Time),
	}
}

// Register adds a client to the user's live set, creating the set if
// absent. Multiple simultaneous connections per user are supported.
func (r *Registry) Register(userID uuid.UUID, client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[userID]; !ok {
		r.clients[userID] = make(map[*Client]struct{})
	}
	r.clients[userID][client] = struct{}{}
	r.lastActivity[userID] = time.Now()
}

// Unregister removes a client; when the resulting set is empty the whole
// entry is deleted and the user becomes offline.
func (r *Registry) Unregister(userID uuid.UUID, client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if set, ok := r.clients[userID]; ok {
		delete(set, client)
		if len(set) == 0 {
			delete(r.clients, userID)
			delete(r.lastActivity, userID)
		}
	}
}

// ClientsOf returns a snapshot of the user's live connections; empty for an
// unknown user. Callers may iterate it without holding the registry lock.
func (r *Registry) ClientsOf(userID uuid.UUID) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.clients[userID]
	if len(set) == 0 {
		return nil
	}
	clients := make([]*Client, 0, len(set))
	for client := range set {
		clients = append(clients, client)
	}
	return clients
}

// IsOnline reports whether the user has at least one live connection.
func (r *Registry) IsOnline(userID uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients[userID]) > 0
}

// LastActivity returns the user's last registration timestamp.
func (r *Registry) LastActivity(userID uuid.UUID) (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ts, ok := r.lastActivity[userID]
	return ts, ok
}

// OnlineStatus resolves presence for a list of users in one pass.
func (r *Registry) OnlineStatus(userIDs []uuid.UUID) map[uuid.UUID]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	status := make(map[uuid.UUID]bool, len(userIDs))
	for _, id := range userIDs {
		status[id] = len(r.clients[id]) > 0
	}
	return status
}
