// Package phases implements the asynchronous workers of the commit pipeline:
// execution scheduling, execution waiting, signing and persisting. Each phase
// is an independently scheduled component that drains a request channel and
// emits responses; the driver matches responses back to buffer items by
// block id, so out-of-order completions are tolerated.
package phases

import (
	"github.com/arborchain/arbor-go/model/arbor"
	"github.com/arborchain/arbor-go/model/messages"
	"github.com/arborchain/arbor-go/module/counters"
)

// ExecutionRequest asks the execution-schedule phase to start computing a
// batch of ordered block candidates.
type ExecutionRequest struct {
	// Blocks are the candidates in consensus order.
	Blocks []*arbor.ExecutedBlock
	// Guard accounts for this request in the in-flight tracker; it is
	// released once the matching ExecutionResponse has been emitted.
	Guard *counters.Guard
}

// executionOutcome is the result of one asynchronous execution run.
type executionOutcome struct {
	blocks []*arbor.ExecutedBlock
	err    error
}

// ExecutionWaitRequest carries the handle of a scheduled execution from the
// schedule phase to the wait phase.
type ExecutionWaitRequest struct {
	BlockID arbor.Identifier
	result  <-chan executionOutcome
	Guard   *counters.Guard
}

// ExecutionResponse reports the outcome of executing one item's blocks.
type ExecutionResponse struct {
	BlockID arbor.Identifier
	Blocks  []*arbor.ExecutedBlock
	Err     error
}

// SigningRequest asks the signing phase for this node's signature over a
// commit ledger info.
type SigningRequest struct {
	// OrderedProof is the ordering certificate the commit ledger info must
	// be consistent with.
	OrderedProof *arbor.QuorumCertificate
	// CommitLedgerInfo is the commitment to sign.
	CommitLedgerInfo arbor.LedgerInfo
	Guard            *counters.Guard
}

// SigningResponse carries this node's commit signature, or the signing error.
type SigningResponse struct {
	BlockID          arbor.Identifier
	CommitLedgerInfo arbor.LedgerInfo
	Signature        []byte
	Err              error
}

// PersistingRequest hands a committed, contiguous prefix of executed blocks
// to durable storage.
type PersistingRequest struct {
	Blocks      []*arbor.ExecutedBlock
	CommitProof *arbor.QuorumCertificate
	Callback    messages.CommitCallback
	Guard       *counters.Guard
}

// PersistingResponse reports the outcome of one persist request. The driver
// treats it as informational; persisting is fire-and-forget.
type PersistingResponse struct {
	BlockID arbor.Identifier
	Round   uint64
	Err     error
}
