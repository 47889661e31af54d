package buffer

import (
	"errors"
	"fmt"
	"time"

	"github.com/arborchain/arbor-go/consensus/commitpipe/broadcaster"
	"github.com/arborchain/arbor-go/model/arbor"
	"github.com/arborchain/arbor-go/model/messages"
	"github.com/arborchain/arbor-go/module/signature"
)

// State is the pipeline stage of an item. Transitions are strictly forward;
// Aggregated is terminal and additionally reachable from any earlier state
// through an incoming commit decision.
type State uint8

const (
	StateOrdered State = iota
	StateExecuted
	StateSigned
	StateAggregated
)

func (s State) String() string {
	switch s {
	case StateOrdered:
		return "ordered"
	case StateExecuted:
		return "executed"
	case StateSigned:
		return "signed"
	case StateAggregated:
		return "aggregated"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// Item is one unit of ordered blocks moving through the commit pipeline.
// Items are not concurrency-safe; they are owned by the driver through the
// buffer's take/set discipline.
type Item struct {
	state State

	// blocks are execution candidates while Ordered and the computed
	// results from Executed onwards.
	blocks       []*arbor.ExecutedBlock
	orderedProof *arbor.QuorumCertificate
	callback     messages.CommitCallback

	// pendingVotes caches commit votes that arrived before this item was
	// executed; they are replayed once the commit ledger info is known.
	pendingVotes map[arbor.Identifier]*messages.CommitVote

	// collector accumulates commit signatures from Executed onwards.
	collector *signature.Collector

	// vote is this node's own commit vote, present while Signed.
	vote              *messages.CommitVote
	rbHandle          *broadcaster.Handle
	lastVoteBroadcast time.Time

	// commitProof is the quorum certificate, present once Aggregated.
	commitProof *arbor.QuorumCertificate
}

// NewItem wraps a batch of ordered blocks into a fresh pipeline item.
func NewItem(ordered *messages.OrderedBlocks) *Item {
	return &Item{
		state:        StateOrdered,
		blocks:       ordered.Blocks,
		orderedProof: ordered.OrderedProof,
		callback:     ordered.Callback,
		pendingVotes: make(map[arbor.Identifier]*messages.CommitVote),
	}
}

// State returns the current pipeline stage.
func (i *Item) State() State {
	return i.state
}

// ID returns the stable key of the item: the identifier of its last block.
func (i *Item) ID() arbor.Identifier {
	return i.blocks[len(i.blocks)-1].ID()
}

// Round returns the consensus round of the item's last block.
func (i *Item) Round() uint64 {
	return i.blocks[len(i.blocks)-1].Block.Round
}

// Proposer returns the proposer of the item's last block, the validator
// responsible for disseminating the commit decision.
func (i *Item) Proposer() arbor.Identifier {
	return i.blocks[len(i.blocks)-1].Block.Proposer
}

// Blocks returns the item's blocks: candidates while Ordered, computed
// results afterwards.
func (i *Item) Blocks() []*arbor.ExecutedBlock {
	return i.blocks
}

// OrderedProof returns the ordering protocol's certificate for this item.
func (i *Item) OrderedProof() *arbor.QuorumCertificate {
	return i.orderedProof
}

// Callback returns the completion callback of this item.
func (i *Item) Callback() messages.CommitCallback {
	return i.callback
}

// CommitLedgerInfo returns the ledger info this item's commit votes sign.
// Only valid from Executed onwards.
func (i *Item) CommitLedgerInfo() arbor.LedgerInfo {
	if i.collector == nil {
		panic(fmt.Sprintf("commit ledger info not yet known in state %v", i.state))
	}
	return i.collector.LedgerInfo()
}

// CommitVote returns this node's own vote, or nil before Signed.
func (i *Item) CommitVote() *messages.CommitVote {
	return i.vote
}

// CommitProof returns the quorum certificate. Panics unless Aggregated.
func (i *Item) CommitProof() *arbor.QuorumCertificate {
	if i.state != StateAggregated {
		panic(fmt.Sprintf("commit proof requested in state %v", i.state))
	}
	return i.commitProof
}

// AdvanceToExecutedOrAggregated applies the execution result to an Ordered
// item. The commit ledger info is derived from the last executed block; when
// endEpochTimestamp is set, it overrides the commit timestamp (all blocks
// after a reconfiguration commit with the epoch-ending timestamp). Cached
// early votes are replayed into the signature collector, so the item lands
// on Executed or, if the replayed votes already hold a quorum, directly on
// Aggregated.
func (i *Item) AdvanceToExecutedOrAggregated(
	executed []*arbor.ExecutedBlock,
	epochState *arbor.EpochState,
	endEpochTimestamp *uint64,
) error {
	if i.state != StateOrdered {
		return fmt.Errorf("cannot apply execution result in state %v", i.state)
	}
	if len(executed) != len(i.blocks) {
		return fmt.Errorf("execution result has %d blocks, expected %d", len(executed), len(i.blocks))
	}
	for idx, eb := range executed {
		if eb.ID() != i.blocks[idx].ID() {
			return fmt.Errorf("executed block %d is %v, expected %v", idx, eb.ID(), i.blocks[idx].ID())
		}
	}

	commitInfo := executed[len(executed)-1].BlockInfo()
	if endEpochTimestamp != nil {
		commitInfo.Timestamp = *endEpochTimestamp
	}
	ledgerInfo := arbor.LedgerInfo{
		CommitInfo:        commitInfo,
		ConsensusDataHash: i.orderedProof.LedgerInfo.ConsensusDataHash,
	}

	collector := signature.NewCollector(ledgerInfo, epochState)
	target := ledgerInfo.ID()
	for _, vote := range i.pendingVotes {
		if vote.LedgerInfo.ID() != target {
			continue
		}
		// votes were verified before reaching the driver; membership and
		// duplication cannot fail for a cached vote
		_ = collector.Add(vote.Author, vote.Signature)
	}

	i.blocks = executed
	i.collector = collector
	i.pendingVotes = nil
	i.state = StateExecuted

	if collector.ReachedQuorum() {
		proof, err := collector.Aggregate()
		if err != nil {
			return fmt.Errorf("could not aggregate replayed votes: %w", err)
		}
		i.commitProof = proof
		i.state = StateAggregated
	}
	return nil
}

// AdvanceToSigned records this node's own signature and produces the commit
// vote to disseminate.
func (i *Item) AdvanceToSigned(author arbor.Identifier, sig []byte) (*messages.CommitVote, error) {
	if i.state != StateExecuted {
		return nil, fmt.Errorf("cannot apply signing result in state %v", i.state)
	}
	err := i.collector.Add(author, sig)
	if err != nil && !errors.Is(err, signature.ErrDuplicatedSigner) {
		return nil, fmt.Errorf("could not add own signature: %w", err)
	}
	i.vote = &messages.CommitVote{
		Author:     author,
		LedgerInfo: i.collector.LedgerInfo(),
		Signature:  sig,
	}
	i.state = StateSigned
	return i.vote, nil
}

// AddVoteIfMatched integrates a verified commit vote. For an Ordered item
// the vote is cached for replay after execution; otherwise it must match the
// item's commit ledger info and is accumulated in the collector. Votes for
// an already aggregated item are dropped silently.
func (i *Item) AddVoteIfMatched(vote *messages.CommitVote) error {
	switch i.state {
	case StateOrdered:
		i.pendingVotes[vote.Author] = vote
		return nil
	case StateExecuted, StateSigned:
		if vote.LedgerInfo.ID() != i.collector.LedgerInfo().ID() {
			return fmt.Errorf("vote ledger info does not match item %v", i.ID())
		}
		return i.collector.Add(vote.Author, vote.Signature)
	case StateAggregated:
		return nil
	default:
		panic(fmt.Sprintf("invalid item state %d", i.state))
	}
}

// TryAdvanceToAggregated aggregates the collected votes into a commit proof
// if they hold a quorum. Returns true if the item is aggregated now.
func (i *Item) TryAdvanceToAggregated() (bool, error) {
	switch i.state {
	case StateExecuted, StateSigned:
		if !i.collector.ReachedQuorum() {
			return false, nil
		}
		proof, err := i.collector.Aggregate()
		if err != nil {
			return false, fmt.Errorf("could not aggregate commit proof: %w", err)
		}
		i.AbortBroadcast()
		i.commitProof = proof
		i.state = StateAggregated
		return true, nil
	case StateAggregated:
		return false, nil
	default:
		return false, nil
	}
}

// TryAdvanceToAggregatedWithProof aggregates the item with an externally
// received quorum certificate, bypassing local vote collection. Valid from
// any state; a no-op if already aggregated.
func (i *Item) TryAdvanceToAggregatedWithProof(proof *arbor.QuorumCertificate) (bool, error) {
	if i.state == StateAggregated {
		return false, nil
	}
	if proof.BlockID() != i.ID() {
		return false, fmt.Errorf("commit proof is for block %v, item is %v", proof.BlockID(), i.ID())
	}
	i.AbortBroadcast()
	i.commitProof = proof
	i.pendingVotes = nil
	i.state = StateAggregated
	return true, nil
}

// SetBroadcastHandle attaches the running vote broadcast to the item,
// aborting any previous one. Only meaningful while Signed.
func (i *Item) SetBroadcastHandle(handle *broadcaster.Handle, at time.Time) {
	i.AbortBroadcast()
	i.rbHandle = handle
	i.lastVoteBroadcast = at
}

// LastVoteBroadcast returns when the vote was last disseminated.
func (i *Item) LastVoteBroadcast() time.Time {
	return i.lastVoteBroadcast
}

// AbortBroadcast stops the item's vote broadcast, if one is running. It must
// be called whenever the item leaves Signed, whether by aggregation, by
// popping, or by epoch reset.
func (i *Item) AbortBroadcast() {
	if i.rbHandle != nil {
		i.rbHandle.Abort()
		i.rbHandle = nil
	}
}
