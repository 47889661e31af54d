package module

import (
	"go.dedis.ch/kyber/v3"

	"github.com/arborchain/arbor-go/model/arbor"
)

// Local encapsulates the identity and staking key of this node.
type Local interface {
	// NodeID returns the identifier of this node within the committee.
	NodeID() arbor.Identifier

	// Sign signs the given message with this node's staking key.
	Sign(msg []byte) ([]byte, error)

	// PublicKey returns the staking public key matching Sign.
	PublicKey() kyber.Point
}
