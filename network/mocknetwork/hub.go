// Package mocknetwork provides an in-memory message hub wiring the conduits
// of multiple nodes together, for tests and local simulation.
package mocknetwork

import (
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/arborchain/arbor-go/model/arbor"
	"github.com/arborchain/arbor-go/network"
)

// HandlerFunc consumes an inbound event on the receiving node. A nil return
// acknowledges the event to the sender.
type HandlerFunc func(originID arbor.Identifier, event interface{}) error

// Hub routes events between registered nodes. Delivery is synchronous: a
// Unicast returns once the recipient's handler has returned, which models
// the inline RPC acknowledgement of commit messages.
type Hub struct {
	mu       sync.RWMutex
	handlers map[arbor.Identifier]HandlerFunc
}

func NewHub() *Hub {
	return &Hub{handlers: make(map[arbor.Identifier]HandlerFunc)}
}

// Register attaches a node to the hub and returns its conduit. Registering
// the same node twice replaces its handler.
func (h *Hub) Register(nodeID arbor.Identifier, handler HandlerFunc) network.Conduit {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[nodeID] = handler
	return &conduit{hub: h, originID: nodeID}
}

func (h *Hub) deliver(originID, targetID arbor.Identifier, event interface{}) error {
	h.mu.RLock()
	handler, ok := h.handlers[targetID]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no node registered for target %v", targetID)
	}
	return handler(originID, event)
}

type conduit struct {
	hub      *Hub
	originID arbor.Identifier
}

var _ network.Conduit = (*conduit)(nil)

func (c *conduit) Unicast(event interface{}, targetID arbor.Identifier) error {
	return c.hub.deliver(c.originID, targetID, event)
}

func (c *conduit) Publish(event interface{}, targetIDs ...arbor.Identifier) error {
	var errs *multierror.Error
	for _, targetID := range targetIDs {
		if targetID == c.originID {
			continue
		}
		if err := c.hub.deliver(c.originID, targetID, event); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("could not deliver to %v: %w", targetID, err))
		}
	}
	return errs.ErrorOrNil()
}
