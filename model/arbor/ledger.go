package arbor

// BlockInfo summarizes the committed state as of one block.
type BlockInfo struct {
	Epoch           uint64
	Round           uint64
	Height          uint64
	BlockID         Identifier
	StateCommitment Identifier
	// Timestamp is the commit timestamp in microseconds. For blocks after a
	// reconfiguration it is pinned to the epoch-ending timestamp.
	Timestamp uint64
	// NextEpochState is set iff this block ends the epoch.
	NextEpochState *EpochState
}

// encodableBlockInfo replaces the epoch state pointer with its hash, so block
// infos have a canonical encoding.
type encodableBlockInfo struct {
	Epoch            uint64
	Round            uint64
	Height           uint64
	BlockID          Identifier
	StateCommitment  Identifier
	Timestamp        uint64
	NextEpochStateID Identifier
}

func (bi BlockInfo) encodable() encodableBlockInfo {
	enc := encodableBlockInfo{
		Epoch:           bi.Epoch,
		Round:           bi.Round,
		Height:          bi.Height,
		BlockID:         bi.BlockID,
		StateCommitment: bi.StateCommitment,
		Timestamp:       bi.Timestamp,
	}
	if bi.NextEpochState != nil {
		enc.NextEpochStateID = bi.NextEpochState.ID()
	}
	return enc
}

// LedgerInfo is a commitment to the chain state as of one block, the unit
// that commit votes are signed over.
type LedgerInfo struct {
	CommitInfo BlockInfo
	// ConsensusDataHash carries the ordering protocol's commitment for the
	// same block, tying the commit proof back to the ordered proof.
	ConsensusDataHash Identifier
}

// BlockID returns the identifier of the committed block.
func (li LedgerInfo) BlockID() Identifier {
	return li.CommitInfo.BlockID
}

// Round returns the consensus round of the committed block.
func (li LedgerInfo) Round() uint64 {
	return li.CommitInfo.Round
}

// EndsEpoch reports whether committing this ledger info ends the epoch.
func (li LedgerInfo) EndsEpoch() bool {
	return li.CommitInfo.NextEpochState != nil
}

// SigningBytes returns the canonical byte representation that commit votes
// sign. Two ledger infos are equivalent iff their signing bytes are equal.
func (li LedgerInfo) SigningBytes() []byte {
	data := struct {
		CommitInfo        encodableBlockInfo
		ConsensusDataHash Identifier
	}{li.CommitInfo.encodable(), li.ConsensusDataHash}
	id := MakeID(data)
	return id[:]
}

// ID returns a hash of the ledger info, usable for equality checks.
func (li LedgerInfo) ID() Identifier {
	return HashToID(li.SigningBytes())
}

// AggregatedSignature is a BLS aggregate over the same ledger info by a set
// of committee members.
type AggregatedSignature struct {
	// SignerIDs lists the contributing validators in canonical order.
	SignerIDs []Identifier
	// Signature is the aggregated BLS signature.
	Signature []byte
}

// QuorumCertificate is a ledger info together with signatures holding at
// least a quorum of the epoch's voting power - the commit proof.
type QuorumCertificate struct {
	LedgerInfo LedgerInfo
	AggregatedSignature
}

// BlockID returns the identifier of the certified block.
func (qc *QuorumCertificate) BlockID() Identifier {
	return qc.LedgerInfo.BlockID()
}

// EndsEpoch reports whether the certified ledger info ends the epoch.
func (qc *QuorumCertificate) EndsEpoch() bool {
	return qc.LedgerInfo.EndsEpoch()
}

// EpochChangeProof carries the quorum certificates proving an epoch
// transition to peers that have not observed the commit yet.
type EpochChangeProof struct {
	Proofs []*QuorumCertificate
}

// NewEpochChangeProof wraps the given certificates into a proof.
func NewEpochChangeProof(proofs ...*QuorumCertificate) *EpochChangeProof {
	return &EpochChangeProof{Proofs: proofs}
}
