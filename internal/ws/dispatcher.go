package ws

import (
	"encoding/json"
	"log"

	"github.com/google/uuid"

	"messenger-service/internal/observability"
)

// Dispatcher fans a domain event out to every live connection of a user.
type Dispatcher struct {
	registry *Registry
}

// NewDispatcher constructs a Dispatcher over the given registry.
func NewDispatcher(registry *Registry) *Dispatcher {
	return &Dispatcher{registry: registry}
}

// Push serializes the event once and writes it to all of the user's live
// connections. A write failure marks that connection dead: it is closed,
// unregistered, and delivery continues to the rest. Returns false without
// error when the user has no live connections; there is no retry or queue.
func (d *Dispatcher) Push(userID uuid.UUID, event any) bool {
	clients := d.registry.ClientsOf(userID)
	if len(clients) == 0 {
		observability.IncPush(false)
		return false
	}

	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("event marshal error: %v", err)
		return false
	}

	for _, client := range clients {
		if err := client.Write(payload); err != nil {
			log.Printf("websocket write error: %v", err)
			_ = client.Close()
			d.registry.Unregister(userID, client)
			observability.IncWSEvent("ws_write_error")
		}
	}
	observability.IncPush(true)
	return true
}
