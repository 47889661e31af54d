package arbor

import (
	"fmt"

	"go.dedis.ch/kyber/v3"
)

// EpochState captures the validator set of one epoch. It is immutable after
// construction and shared read-only between the pipeline driver and the
// concurrent broadcast / verification tasks.
type EpochState struct {
	epoch     uint64
	committee IdentityList
	total     uint64
	id        Identifier
}

// NewEpochState constructs the state for the given epoch. The committee is
// stored in canonical order, so weight thresholds and signer indices are
// stable across all nodes.
func NewEpochState(epoch uint64, committee IdentityList) *EpochState {
	canonical := committee.Sorted()
	es := &EpochState{
		epoch:     epoch,
		committee: canonical,
		total:     canonical.TotalWeight(),
	}
	enc := make([]encodableIdentity, 0, len(canonical))
	for _, iy := range canonical {
		enc = append(enc, iy.encodable())
	}
	es.id = MakeID(struct {
		Epoch     uint64
		Committee []encodableIdentity
	}{epoch, enc})
	return es
}

// Epoch returns the epoch number.
func (es *EpochState) Epoch() uint64 {
	return es.epoch
}

// Committee returns the validator set in canonical order. Callers must not
// mutate the returned list.
func (es *EpochState) Committee() IdentityList {
	return es.committee
}

// ID returns a hash covering the epoch number and the full committee.
func (es *EpochState) ID() Identifier {
	return es.id
}

// TotalWeight returns the total voting power of the committee.
func (es *EpochState) TotalWeight() uint64 {
	return es.total
}

// WeightThreshold returns the minimal accumulated voting power required for a
// quorum: strictly more than 2/3 of the total, i.e. 2f+1 out of 3f+1.
func (es *EpochState) WeightThreshold() uint64 {
	return es.total*2/3 + 1
}

// IsMember checks whether the given node belongs to this epoch's committee.
func (es *EpochState) IsMember(nodeID Identifier) bool {
	_, ok := es.committee.ByNodeID(nodeID)
	return ok
}

// VerifySignature checks a single BLS signature by the given committee member
// over msg. It returns an error if the author is not a committee member or
// the signature does not verify.
func (es *EpochState) VerifySignature(author Identifier, msg []byte, sig []byte) error {
	identity, ok := es.committee.ByNodeID(author)
	if !ok {
		return fmt.Errorf("author %v is not a member of epoch %d committee", author, es.epoch)
	}
	err := VerifyBLS(identity.StakingPubKey, msg, sig)
	if err != nil {
		return fmt.Errorf("invalid signature from %v: %w", author, err)
	}
	return nil
}

// CheckQuorum verifies that the given (deduplicated) signers hold at least
// threshold voting power and are all committee members.
func (es *EpochState) CheckQuorum(signers []Identifier) error {
	seen := make(map[Identifier]struct{}, len(signers))
	var weight uint64
	for _, signer := range signers {
		if _, dup := seen[signer]; dup {
			return fmt.Errorf("duplicated signer %v", signer)
		}
		seen[signer] = struct{}{}
		identity, ok := es.committee.ByNodeID(signer)
		if !ok {
			return fmt.Errorf("signer %v is not a member of epoch %d committee", signer, es.epoch)
		}
		weight += identity.Weight
	}
	if threshold := es.WeightThreshold(); weight < threshold {
		return fmt.Errorf("insufficient voting power: %d accumulated, %d required", weight, threshold)
	}
	return nil
}

// VerifyQuorumCertificate checks that the certificate carries a valid
// aggregated signature over its ledger info from a quorum of this epoch's
// committee.
func (es *EpochState) VerifyQuorumCertificate(qc *QuorumCertificate) error {
	if epoch := qc.LedgerInfo.CommitInfo.Epoch; epoch != es.epoch {
		return fmt.Errorf("certificate is for epoch %d, current epoch is %d", epoch, es.epoch)
	}
	err := es.CheckQuorum(qc.SignerIDs)
	if err != nil {
		return fmt.Errorf("certificate signers do not form a quorum: %w", err)
	}
	pubs := make([]kyber.Point, 0, len(qc.SignerIDs))
	for _, signer := range qc.SignerIDs {
		identity, _ := es.committee.ByNodeID(signer)
		pubs = append(pubs, identity.StakingPubKey)
	}
	err = VerifyAggregatedBLS(pubs, qc.LedgerInfo.SigningBytes(), qc.Signature)
	if err != nil {
		return fmt.Errorf("invalid aggregated signature: %w", err)
	}
	return nil
}
