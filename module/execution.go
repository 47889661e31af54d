package module

import (
	"context"

	"github.com/arborchain/arbor-go/model/arbor"
)

// ExecutionBackend computes the state transition of ordered blocks. The
// commit pipeline does not interpret the computation; it only schedules it
// and waits for the results.
type ExecutionBackend interface {
	// Execute runs the given blocks against the current state and returns
	// the executed blocks with their state commitments, in input order.
	// The call blocks until execution finishes or the context is cancelled.
	Execute(ctx context.Context, blocks []*arbor.Block) ([]*arbor.ExecutedBlock, error)
}

// Persister durably stores a committed prefix of executed blocks together
// with its commit proof. The on-disk format is owned by the persister.
type Persister interface {
	Persist(blocks []*arbor.ExecutedBlock, proof *arbor.QuorumCertificate) error
}
