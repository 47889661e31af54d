// Package local implements the module.Local interface backed by a BLS
// staking key.
package local

import (
	"fmt"

	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/sign/bls"

	"github.com/arborchain/arbor-go/model/arbor"
	"github.com/arborchain/arbor-go/module"
)

type Local struct {
	identity *arbor.Identity
	sk       kyber.Scalar
}

var _ module.Local = (*Local)(nil)

// New returns the local node representation for the given identity and
// staking private key. It errors if the key does not match the identity's
// registered public key.
func New(identity *arbor.Identity, sk kyber.Scalar) (*Local, error) {
	suite := arbor.BLSSuite()
	pub := suite.G2().Point().Mul(sk, nil)
	if !pub.Equal(identity.StakingPubKey) {
		return nil, fmt.Errorf("staking key does not match public key of identity %v", identity.NodeID)
	}
	return &Local{identity: identity, sk: sk}, nil
}

// NodeID returns the identifier of this node.
func (l *Local) NodeID() arbor.Identifier {
	return l.identity.NodeID
}

// Sign signs the message with the node's staking key.
func (l *Local) Sign(msg []byte) ([]byte, error) {
	return bls.Sign(arbor.BLSSuite(), l.sk, msg)
}

// PublicKey returns the staking public key.
func (l *Local) PublicKey() kyber.Point {
	return l.identity.StakingPubKey
}
