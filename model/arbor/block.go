package arbor

// Block is the ordered consensus block as handed over by the ordering
// protocol. What the block computes is outside the commit pipeline; the
// payload is only carried as an opaque hash.
type Block struct {
	// Epoch and Round position the block within the consensus timeline.
	Epoch uint64
	Round uint64
	// Height is the position of the block in the committed chain.
	Height uint64
	// Timestamp is the proposal time in microseconds since the unix epoch.
	Timestamp uint64
	// ParentID is the identifier of the parent block.
	ParentID Identifier
	// Proposer is the validator that proposed the block.
	Proposer Identifier
	// PayloadHash commits to the block contents.
	PayloadHash Identifier
}

// ID returns the canonical identifier of the block.
func (b *Block) ID() Identifier {
	return MakeID(b)
}

// ExecutedBlock pairs a block with the result of executing it. Blocks enter
// the pipeline as candidates with a zero state commitment; the execution
// phase replaces them with fully computed results.
type ExecutedBlock struct {
	Block *Block
	// StateCommitment is the root hash of the state after executing the
	// block. Zero for unexecuted candidates.
	StateCommitment Identifier
	// NextEpochState is set iff executing this block triggered a
	// reconfiguration, ending the current epoch.
	NextEpochState *EpochState
}

// ID returns the identifier of the underlying block.
func (eb *ExecutedBlock) ID() Identifier {
	return eb.Block.ID()
}

// CausesReconfiguration reports whether executing this block ended the epoch.
func (eb *ExecutedBlock) CausesReconfiguration() bool {
	return eb.NextEpochState != nil
}

// BlockInfo derives the commit info for this executed block.
func (eb *ExecutedBlock) BlockInfo() BlockInfo {
	return BlockInfo{
		Epoch:           eb.Block.Epoch,
		Round:           eb.Block.Round,
		Height:          eb.Block.Height,
		BlockID:         eb.ID(),
		StateCommitment: eb.StateCommitment,
		Timestamp:       eb.Block.Timestamp,
		NextEpochState:  eb.NextEpochState,
	}
}
