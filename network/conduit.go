package network

import (
	"github.com/arborchain/arbor-go/model/arbor"
)

// Conduit is the narrow boundary to the networking layer. Transport and
// message serialization live behind it; the commit pipeline only reasons
// about delivery and acknowledgement.
type Conduit interface {
	// Unicast sends the event to a single validator. A nil return means the
	// recipient received and acknowledged the event; the reliable broadcast
	// retry loop is built on this property.
	Unicast(event interface{}, targetID arbor.Identifier) error

	// Publish sends the event to all given validators on a best-effort
	// basis. Errors of individual sends are accumulated.
	Publish(event interface{}, targetIDs ...arbor.Identifier) error
}
