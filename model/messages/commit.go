package messages

import (
	"fmt"

	"github.com/arborchain/arbor-go/model/arbor"
)

// CommitMessage is the union of messages gossiped between validators while
// collectively signing committed blocks.
type CommitMessage interface {
	// Epoch returns the epoch the message belongs to.
	Epoch() uint64
}

// CommitVote carries one validator's signature over a commit ledger info.
type CommitVote struct {
	// Author is the validator that produced the signature.
	Author arbor.Identifier
	// LedgerInfo is the commitment being voted for.
	LedgerInfo arbor.LedgerInfo
	// Signature is the author's BLS signature over LedgerInfo.SigningBytes().
	Signature []byte
}

// Epoch returns the epoch of the voted ledger info.
func (v *CommitVote) Epoch() uint64 {
	return v.LedgerInfo.CommitInfo.Epoch
}

// BlockID returns the identifier of the voted block.
func (v *CommitVote) BlockID() arbor.Identifier {
	return v.LedgerInfo.BlockID()
}

// Round returns the consensus round of the voted block.
func (v *CommitVote) Round() uint64 {
	return v.LedgerInfo.Round()
}

func (v *CommitVote) String() string {
	return fmt.Sprintf("commit vote by %v for block %v (epoch %d, round %d)",
		v.Author, v.BlockID(), v.Epoch(), v.Round())
}

// CommitDecision carries a full quorum certificate, letting peers aggregate
// an item without collecting individual votes.
type CommitDecision struct {
	CommitProof arbor.QuorumCertificate
}

// Epoch returns the epoch of the certified ledger info.
func (d *CommitDecision) Epoch() uint64 {
	return d.CommitProof.LedgerInfo.CommitInfo.Epoch
}

// BlockID returns the identifier of the certified block.
func (d *CommitDecision) BlockID() arbor.Identifier {
	return d.CommitProof.BlockID()
}

func (d *CommitDecision) String() string {
	return fmt.Sprintf("commit decision for block %v (epoch %d, round %d)",
		d.BlockID(), d.Epoch(), d.CommitProof.LedgerInfo.Round())
}

// CommitAck is the inline RPC response acknowledging receipt of a vote or
// decision. No state beyond the outstanding request is kept for acks.
type CommitAck struct {
	EpochNum uint64
}

// Epoch returns the epoch the acknowledged message belonged to.
func (a *CommitAck) Epoch() uint64 {
	return a.EpochNum
}
