package messages

import (
	"github.com/arborchain/arbor-go/model/arbor"
)

// CommitCallback is invoked once a prefix of ordered blocks has been handed
// to the persisting phase with its commit proof. When multiple pipeline items
// are merged into one persist request, only the callback of the last item is
// invoked; callbacks of the same epoch are assumed equivalent.
type CommitCallback func(blocks []*arbor.ExecutedBlock, proof *arbor.QuorumCertificate)

// OrderedBlocks is the unit of work the ordering protocol submits to the
// commit pipeline: a batch of block candidates with the proof of their order.
type OrderedBlocks struct {
	// Blocks are execution candidates in consensus order; their state
	// commitments are zero until the execution phase fills them in.
	Blocks []*arbor.ExecutedBlock
	// OrderedProof is the ordering protocol's certificate over the batch.
	OrderedProof *arbor.QuorumCertificate
	// Callback is invoked after the batch has been dispatched for persisting.
	Callback CommitCallback
}

// BlockID returns the identifier of the last block in the batch, which is
// the stable key the batch is tracked under in the pipeline.
func (ob *OrderedBlocks) BlockID() arbor.Identifier {
	return ob.Blocks[len(ob.Blocks)-1].ID()
}
