package arbor

import (
	"bytes"
	"fmt"
	"sort"

	"go.dedis.ch/kyber/v3"
)

// Identity represents one validator of the committee for a given epoch.
type Identity struct {
	// NodeID uniquely identifies the validator.
	NodeID Identifier
	// Address is the network address the validator is reachable at.
	Address string
	// Weight is the voting power of this validator.
	Weight uint64
	// StakingPubKey is the BLS public key commit votes are verified against.
	StakingPubKey kyber.Point
}

// ID returns the node identifier.
func (iy *Identity) ID() Identifier {
	return iy.NodeID
}

// String returns a short human-readable representation of the identity.
func (iy *Identity) String() string {
	return fmt.Sprintf("%s@%s=%d", iy.NodeID, iy.Address, iy.Weight)
}

// encodableIdentity replaces the public key with its binary encoding, so an
// identity can be canonically encoded for hashing.
type encodableIdentity struct {
	NodeID        Identifier
	Address       string
	Weight        uint64
	StakingPubKey []byte
}

func (iy *Identity) encodable() encodableIdentity {
	enc := encodableIdentity{NodeID: iy.NodeID, Address: iy.Address, Weight: iy.Weight}
	if iy.StakingPubKey != nil {
		key, err := iy.StakingPubKey.MarshalBinary()
		if err != nil {
			panic(fmt.Sprintf("could not encode staking key: %v", err))
		}
		enc.StakingPubKey = key
	}
	return enc
}

// IdentityList is a list of validator identities.
type IdentityList []*Identity

// TotalWeight returns the sum of the voting power of all validators in the list.
func (il IdentityList) TotalWeight() uint64 {
	var total uint64
	for _, iy := range il {
		total += iy.Weight
	}
	return total
}

// NodeIDs returns the identifiers of all validators in list order.
func (il IdentityList) NodeIDs() []Identifier {
	ids := make([]Identifier, 0, len(il))
	for _, iy := range il {
		ids = append(ids, iy.NodeID)
	}
	return ids
}

// ByNodeID returns the identity with the given node ID, if any.
func (il IdentityList) ByNodeID(nodeID Identifier) (*Identity, bool) {
	for _, iy := range il {
		if iy.NodeID == nodeID {
			return iy, true
		}
	}
	return nil, false
}

// IndexOf returns the position of the given node within the list.
func (il IdentityList) IndexOf(nodeID Identifier) (int, bool) {
	for i, iy := range il {
		if iy.NodeID == nodeID {
			return i, true
		}
	}
	return 0, false
}

// Filter returns the identities satisfying the predicate, preserving order.
func (il IdentityList) Filter(pred func(*Identity) bool) IdentityList {
	var filtered IdentityList
	for _, iy := range il {
		if pred(iy) {
			filtered = append(filtered, iy)
		}
	}
	return filtered
}

// Sorted returns a copy of the list in canonical order (ascending node ID).
func (il IdentityList) Sorted() IdentityList {
	dup := make(IdentityList, len(il))
	copy(dup, il)
	sort.Slice(dup, func(i, j int) bool {
		return bytes.Compare(dup[i].NodeID[:], dup[j].NodeID[:]) < 0
	})
	return dup
}
