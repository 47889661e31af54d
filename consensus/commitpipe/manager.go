// Package commitpipe implements the commit stage of the consensus follower:
// ordered blocks are executed, collectively signed by the committee and, once
// a quorum of commit votes is aggregated, persisted in consensus order.
package commitpipe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/arborchain/arbor-go/consensus/commitpipe/broadcaster"
	"github.com/arborchain/arbor-go/consensus/commitpipe/buffer"
	"github.com/arborchain/arbor-go/consensus/commitpipe/phases"
	"github.com/arborchain/arbor-go/consensus/commitpipe/verifier"
	"github.com/arborchain/arbor-go/model/arbor"
	"github.com/arborchain/arbor-go/model/messages"
	"github.com/arborchain/arbor-go/module"
	"github.com/arborchain/arbor-go/module/component"
	"github.com/arborchain/arbor-go/module/counters"
	"github.com/arborchain/arbor-go/module/irrecoverable"
	"github.com/arborchain/arbor-go/module/signature"
)

const (
	// defaultTickInterval drives metrics refresh and vote staleness checks.
	defaultTickInterval = 1500 * time.Millisecond

	// defaultVoteRebroadcastTimeout is how long a signed item waits for a
	// quorum before its vote is re-announced to the whole committee.
	defaultVoteRebroadcastTimeout = 30 * time.Second

	// rootRetryDelay spaces out re-sends of a failed phase request.
	rootRetryDelay = 100 * time.Millisecond

	// quiescencePoll is the reset barrier's polling interval.
	quiescencePoll = 10 * time.Millisecond
)

// Manager is the pipeline driver: a single goroutine that owns the item
// buffer and both phase roots, reacting to ordered blocks, phase responses,
// verified commit messages, reset requests and the periodic tick. All state
// below the channels is confined to the driver goroutine.
type Manager struct {
	*component.ComponentManager

	log     zerolog.Logger
	metrics module.PipelineMetrics
	local   module.Local

	broadcaster *broadcaster.Broadcaster
	verifier    *verifier.MessageVerifier
	tracker     *counters.InFlightTracker

	orderedChan chan *messages.OrderedBlocks
	resetChan   chan messages.ResetRequest

	execTx        chan<- phases.ExecutionRequest
	execRespRx    <-chan phases.ExecutionResponse
	signTx        chan<- phases.SigningRequest
	signRespRx    <-chan phases.SigningResponse
	persistTx     chan<- phases.PersistingRequest
	persistRespRx <-chan phases.PersistingResponse

	// driver-confined state
	epochState        *arbor.EpochState
	endEpochTimestamp *uint64
	buf               *buffer.Buffer
	executionRoot     arbor.Identifier
	signingRoot       arbor.Identifier
	// signingRequestedFor is the cursor the outstanding (or retrying) signing
	// request was dispatched for; it keeps advanceSigningRoot from dispatching
	// the same item twice.
	signingRequestedFor arbor.Identifier
	decisionBroadcasts  []*broadcaster.Handle

	tickInterval           time.Duration
	voteRebroadcastTimeout time.Duration
}

// Option customizes a Manager during construction.
type Option func(*Manager)

// WithTickInterval overrides the driver's periodic tick interval.
func WithTickInterval(interval time.Duration) Option {
	return func(m *Manager) {
		m.tickInterval = interval
	}
}

// WithVoteRebroadcastTimeout overrides how long a signed item may wait for a
// quorum before its vote is re-announced to the whole committee.
func WithVoteRebroadcastTimeout(timeout time.Duration) Option {
	return func(m *Manager) {
		m.voteRebroadcastTimeout = timeout
	}
}

func NewManager(
	log zerolog.Logger,
	metrics module.PipelineMetrics,
	local module.Local,
	epochState *arbor.EpochState,
	bcast *broadcaster.Broadcaster,
	verif *verifier.MessageVerifier,
	tracker *counters.InFlightTracker,
	execTx chan<- phases.ExecutionRequest,
	execRespRx <-chan phases.ExecutionResponse,
	signTx chan<- phases.SigningRequest,
	signRespRx <-chan phases.SigningResponse,
	persistTx chan<- phases.PersistingRequest,
	persistRespRx <-chan phases.PersistingResponse,
	opts ...Option,
) *Manager {
	m := &Manager{
		log:           log.With().Str("component", "commit_pipeline").Logger(),
		metrics:       metrics,
		local:         local,
		broadcaster:   bcast,
		verifier:      verif,
		tracker:       tracker,
		orderedChan:   make(chan *messages.OrderedBlocks),
		resetChan:     make(chan messages.ResetRequest),
		execTx:        execTx,
		execRespRx:    execRespRx,
		signTx:        signTx,
		signRespRx:    signRespRx,
		persistTx:     persistTx,
		persistRespRx: persistRespRx,
		epochState:    epochState,
		buf:           buffer.New(),

		tickInterval:           defaultTickInterval,
		voteRebroadcastTimeout: defaultVoteRebroadcastTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.ComponentManager = component.NewComponentManagerBuilder().
		AddWorker(m.processLoop).
		Build()
	return m
}

// SubmitOrderedBlocks hands a batch of ordered blocks to the pipeline. Blocks
// until the driver accepts the batch or the context expires.
func (m *Manager) SubmitOrderedBlocks(ctx context.Context, ordered *messages.OrderedBlocks) error {
	select {
	case m.orderedChan <- ordered:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reset asks the driver to discard all in-flight work. The ack is delivered
// on the request's Done channel once the pipeline is quiescent.
func (m *Manager) Reset(ctx context.Context, req messages.ResetRequest) error {
	select {
	case m.resetChan <- req:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// EpochState returns the committee the pipeline currently commits against.
// Only safe to call from tests observing a quiescent pipeline.
func (m *Manager) EpochState() *arbor.EpochState {
	return m.epochState
}

func (m *Manager) processLoop(ctx irrecoverable.SignalerContext, ready component.ReadyFunc) {
	ticker := time.NewTicker(m.tickInterval)
	defer ticker.Stop()

	ready()
	m.log.Info().
		Uint64("epoch", m.epochState.Epoch()).
		Int("committee_size", len(m.epochState.Committee())).
		Msg("commit pipeline started")

	for {
		select {
		case <-ctx.Done():
			m.abortAllBroadcasts()
			return
		case ordered := <-m.orderedChan:
			m.processOrderedBlocks(ctx, ordered)
		case resp := <-m.execRespRx:
			m.processExecutionResponse(ctx, resp)
		case resp := <-m.signRespRx:
			m.processSigningResponse(ctx, resp)
		case resp := <-m.persistRespRx:
			m.processPersistingResponse(resp)
		case <-m.verifier.MessageNotifier():
			m.processVerifiedMessages(ctx)
		case req := <-m.resetChan:
			stop := m.processResetRequest(ctx, req)
			if stop {
				m.log.Info().Msg("commit pipeline stopped by reset request")
				return
			}
		case <-ticker.C:
			m.tick()
		}
	}
}

// processOrderedBlocks appends a fresh item and dispatches its execution. The
// execution root is only seeded here, never re-pointed: every arriving batch
// gets its request immediately, so a moved root must not send again.
func (m *Manager) processOrderedBlocks(ctx irrecoverable.SignalerContext, ordered *messages.OrderedBlocks) {
	item := buffer.NewItem(ordered)
	cursor := m.buf.PushBack(item)

	m.log.Info().
		Hex("block_id", cursor[:]).
		Uint64("round", item.Round()).
		Int("blocks", len(ordered.Blocks)).
		Msg("ordered blocks received")

	m.sendExecutionRequest(ctx, phases.ExecutionRequest{
		Blocks: ordered.Blocks,
		Guard:  m.tracker.Register(),
	})
	if m.executionRoot == arbor.ZeroID {
		m.executionRoot = cursor
	}
}

// processExecutionResponse matches the response to its item by block id,
// searching forward from the execution root: responses for items that already
// advanced past the root are stale and ignored.
func (m *Manager) processExecutionResponse(ctx irrecoverable.SignalerContext, resp phases.ExecutionResponse) {
	cursor := m.buf.FindByKey(m.executionRoot, resp.BlockID)
	if cursor == arbor.ZeroID {
		m.log.Debug().
			Hex("block_id", resp.BlockID[:]).
			Msg("dropping execution response for unknown item")
		return
	}

	item := m.buf.Take(cursor)
	if item.State() != buffer.StateOrdered {
		m.buf.Set(cursor, item)
		return
	}
	if resp.Err != nil {
		m.buf.Set(cursor, item)
		m.log.Warn().Err(resp.Err).
			Hex("block_id", cursor[:]).
			Msg("execution failed, pipeline stalls until the retry succeeds")
		m.retryExecutionRequest(ctx, item.Blocks())
		return
	}

	// pin the end-of-epoch timestamp before deriving the commit ledger info:
	// when the reconfiguration block sits in the middle of this very batch,
	// the batch's own commit info must already carry the pinned timestamp
	if m.endEpochTimestamp == nil {
		for _, eb := range resp.Blocks {
			if eb.CausesReconfiguration() {
				ts := eb.Block.Timestamp
				m.endEpochTimestamp = &ts
				m.log.Info().
					Uint64("epoch", m.epochState.Epoch()).
					Uint64("round", eb.Block.Round).
					Msg("reconfiguration executed, pinning end-of-epoch timestamp")
				break
			}
		}
	}

	err := item.AdvanceToExecutedOrAggregated(resp.Blocks, m.epochState, m.endEpochTimestamp)
	if err != nil {
		m.buf.Set(cursor, item)
		ctx.Throw(fmt.Errorf("could not apply execution result to item %v: %w", cursor, err))
		return
	}
	aggregated := item.State() == buffer.StateAggregated
	m.buf.Set(cursor, item)

	m.log.Debug().
		Hex("block_id", cursor[:]).
		Uint64("round", item.Round()).
		Bool("aggregated_from_cached_votes", aggregated).
		Msg("item executed")

	m.advanceExecutionRoot()
	m.advanceSigningRoot(ctx)
	if aggregated {
		m.onAggregated(ctx, cursor)
	}
}

// processSigningResponse advances the signed item, disseminates the vote and
// moves the signing root along.
func (m *Manager) processSigningResponse(ctx irrecoverable.SignalerContext, resp phases.SigningResponse) {
	cursor := m.buf.FindByKey(m.signingRoot, resp.BlockID)
	if cursor == arbor.ZeroID {
		m.log.Debug().
			Hex("block_id", resp.BlockID[:]).
			Msg("dropping signing response for unknown item")
		return
	}

	item := m.buf.Take(cursor)
	if item.State() != buffer.StateExecuted {
		// aggregated through a commit decision while the request was in flight
		m.buf.Set(cursor, item)
		m.advanceSigningRoot(ctx)
		return
	}
	if resp.Err != nil {
		req := phases.SigningRequest{
			OrderedProof:     item.OrderedProof(),
			CommitLedgerInfo: item.CommitLedgerInfo(),
		}
		m.buf.Set(cursor, item)
		m.log.Warn().Err(resp.Err).
			Hex("block_id", cursor[:]).
			Msg("signing failed, pipeline stalls until the retry succeeds")
		m.retrySigningRequest(ctx, req)
		return
	}

	vote, err := item.AdvanceToSigned(m.local.NodeID(), resp.Signature)
	if err != nil {
		m.buf.Set(cursor, item)
		ctx.Throw(fmt.Errorf("could not apply own signature to item %v: %w", cursor, err))
		return
	}
	m.disseminateVote(item, vote)
	m.buf.Set(cursor, item)

	m.advanceSigningRoot(ctx)
}

func (m *Manager) processPersistingResponse(resp phases.PersistingResponse) {
	if resp.Err != nil {
		m.log.Error().Err(resp.Err).
			Hex("block_id", resp.BlockID[:]).
			Uint64("round", resp.Round).
			Msg("persisting failed")
		return
	}
	m.log.Debug().
		Hex("block_id", resp.BlockID[:]).
		Uint64("round", resp.Round).
		Msg("persisting confirmed")
}

func (m *Manager) processVerifiedMessages(ctx irrecoverable.SignalerContext) {
	for {
		msg, ok := m.verifier.Pop()
		if !ok {
			return
		}
		switch msg := msg.(type) {
		case *messages.CommitVote:
			m.processCommitVote(ctx, msg)
		case *messages.CommitDecision:
			m.processCommitDecision(ctx, msg)
		default:
			ctx.Throw(fmt.Errorf("unexpected verified message type (%T)", msg))
			return
		}
	}
}

// processCommitVote integrates a verified vote into its item, wherever in the
// buffer that item sits.
func (m *Manager) processCommitVote(ctx irrecoverable.SignalerContext, vote *messages.CommitVote) {
	cursor := m.buf.FindByKey(arbor.ZeroID, vote.BlockID())
	if cursor == arbor.ZeroID {
		m.log.Debug().
			Hex("block_id", vote.LedgerInfo.CommitInfo.BlockID[:]).
			Hex("author", vote.Author[:]).
			Msg("dropping vote for unknown item")
		return
	}

	item := m.buf.Take(cursor)
	err := item.AddVoteIfMatched(vote)
	if err != nil && !errors.Is(err, signature.ErrDuplicatedSigner) {
		m.log.Warn().Err(err).
			Hex("author", vote.Author[:]).
			Uint64("round", vote.Round()).
			Msg("could not add commit vote")
	}
	aggregated, err := item.TryAdvanceToAggregated()
	m.buf.Set(cursor, item)
	if err != nil {
		ctx.Throw(fmt.Errorf("could not aggregate commit proof for item %v: %w", cursor, err))
		return
	}
	if aggregated {
		m.log.Info().
			Hex("block_id", cursor[:]).
			Uint64("round", item.Round()).
			Msg("commit proof aggregated from votes")
		m.onAggregated(ctx, cursor)
	}
}

// processCommitDecision lets a peer's quorum certificate aggregate an item
// directly, from any state.
func (m *Manager) processCommitDecision(ctx irrecoverable.SignalerContext, decision *messages.CommitDecision) {
	cursor := m.buf.FindByKey(arbor.ZeroID, decision.BlockID())
	if cursor == arbor.ZeroID {
		m.log.Debug().
			Uint64("round", decision.CommitProof.LedgerInfo.Round()).
			Msg("dropping decision for unknown item")
		return
	}

	item := m.buf.Take(cursor)
	aggregated, err := item.TryAdvanceToAggregatedWithProof(&decision.CommitProof)
	m.buf.Set(cursor, item)
	if err != nil {
		m.log.Warn().Err(err).
			Hex("block_id", cursor[:]).
			Msg("dropping mismatched commit decision")
		return
	}
	if aggregated {
		m.log.Info().
			Hex("block_id", cursor[:]).
			Uint64("round", item.Round()).
			Msg("item aggregated by commit decision")
		m.onAggregated(ctx, cursor)
	}
}

// onAggregated runs after any item reaches Aggregated: the proposer of the
// committed block announces the decision to the committee, then the
// contiguous aggregated prefix is popped.
func (m *Manager) onAggregated(ctx irrecoverable.SignalerContext, cursor arbor.Identifier) {
	item := m.buf.Get(cursor)
	if item != nil && item.Proposer() == m.local.NodeID() {
		decision := &messages.CommitDecision{CommitProof: *item.CommitProof()}
		handle := m.broadcaster.Broadcast(decision, m.remoteCommittee())
		m.decisionBroadcasts = append(m.decisionBroadcasts, handle)
	}
	m.advanceHead(ctx)
}

// advanceHead pops the longest contiguous aggregated prefix and issues one
// persisting request for it, carrying the last popped item's commit proof and
// callback. Popping past an epoch-ending commit triggers the epoch rollover:
// announce, reset, switch committee, and only then persist.
func (m *Manager) advanceHead(ctx irrecoverable.SignalerContext) {
	var popped []*buffer.Item
	for {
		head := m.buf.Head()
		if head == arbor.ZeroID {
			break
		}
		item := m.buf.Get(head)
		if item.State() != buffer.StateAggregated {
			break
		}
		m.buf.PopFront()
		item.AbortBroadcast()
		popped = append(popped, item)
		if item.CommitProof().EndsEpoch() {
			break
		}
	}
	if len(popped) == 0 {
		return
	}

	last := popped[len(popped)-1]
	proof := last.CommitProof()
	callback := last.Callback()
	var blocks []*arbor.ExecutedBlock
	for _, item := range popped {
		blocks = append(blocks, item.Blocks()...)
	}

	if proof.EndsEpoch() {
		next := proof.LedgerInfo.CommitInfo.NextEpochState
		m.publishEpochChange(proof)
		m.performReset(ctx)
		m.epochState = next
		m.verifier.SetEpochState(next)
		m.log.Info().
			Uint64("epoch", next.Epoch()).
			Int("committee_size", len(next.Committee())).
			Msg("entering new epoch")
	}

	m.log.Info().
		Hex("block_id", proof.LedgerInfo.CommitInfo.BlockID[:]).
		Uint64("round", proof.LedgerInfo.Round()).
		Int("items", len(popped)).
		Int("blocks", len(blocks)).
		Msg("dispatching committed prefix for persisting")

	m.sendPersistingRequest(ctx, phases.PersistingRequest{
		Blocks:      blocks,
		CommitProof: proof,
		Callback:    callback,
		Guard:       m.tracker.Register(),
	})

	m.advanceExecutionRoot()
	m.advanceSigningRoot(ctx)
}

// advanceExecutionRoot re-points the execution root at the first item still
// awaiting execution. No request is dispatched here: every item's request was
// sent on arrival, and failed ones are re-sent by the retry path.
func (m *Manager) advanceExecutionRoot() {
	m.executionRoot = m.buf.FindFrom(arbor.ZeroID, func(item *buffer.Item) bool {
		return item.State() == buffer.StateOrdered
	})
}

// advanceSigningRoot re-points the signing root at the first item without
// this node's signature and dispatches the signing request once that item has
// been executed. Dispatch happens at most once per item.
func (m *Manager) advanceSigningRoot(ctx irrecoverable.SignalerContext) {
	m.signingRoot = m.buf.FindFrom(arbor.ZeroID, func(item *buffer.Item) bool {
		return item.State() == buffer.StateOrdered || item.State() == buffer.StateExecuted
	})
	if m.signingRoot == arbor.ZeroID {
		return
	}
	item := m.buf.Get(m.signingRoot)
	if item.State() != buffer.StateExecuted {
		return
	}
	if m.signingRoot == m.signingRequestedFor {
		return
	}
	m.signingRequestedFor = m.signingRoot
	m.sendSigningRequest(ctx, phases.SigningRequest{
		OrderedProof:     item.OrderedProof(),
		CommitLedgerInfo: item.CommitLedgerInfo(),
		Guard:            m.tracker.Register(),
	})
}

// disseminateVote applies the dissemination rule to this node's own vote: the
// proposer aggregates its own vote locally, everyone else unicasts to the
// proposer with a broadcast fallback. The backup disseminator of the round
// broadcasts outright, covering a crashed proposer.
func (m *Manager) disseminateVote(item *buffer.Item, vote *messages.CommitVote) {
	proposer := item.Proposer()
	if proposer == m.local.NodeID() {
		m.verifier.SubmitLocal(vote)
		item.SetBroadcastHandle(nil, time.Now())
		return
	}
	backup := m.isBackupDisseminator(item.Round())
	handle := m.broadcaster.DisseminateVote(vote, proposer, m.remoteCommittee(), backup)
	item.SetBroadcastHandle(handle, time.Now())
}

// isBackupDisseminator selects one committee member per round that broadcasts
// its vote unconditionally, so a quorum can still form when the proposer of
// the round is down.
func (m *Manager) isBackupDisseminator(round uint64) bool {
	committee := m.epochState.Committee()
	idx, ok := committee.IndexOf(m.local.NodeID())
	return ok && uint64(idx) == round%uint64(len(committee))
}

func (m *Manager) remoteCommittee() arbor.IdentityList {
	self := m.local.NodeID()
	return m.epochState.Committee().Filter(func(iy *arbor.Identity) bool {
		return iy.NodeID != self
	})
}

func (m *Manager) publishEpochChange(qc *arbor.QuorumCertificate) {
	proof := arbor.NewEpochChangeProof(qc)
	for _, p := range proof.Proofs {
		decision := &messages.CommitDecision{CommitProof: *p}
		err := m.broadcaster.PublishOnce(decision, m.remoteCommittee())
		if err != nil {
			m.log.Warn().Err(err).
				Uint64("epoch", qc.LedgerInfo.CommitInfo.Epoch).
				Msg("could not publish epoch change to all peers")
		}
	}
}

// processResetRequest clears the pipeline on behalf of the ordering protocol.
// Returns true if the driver should stop.
func (m *Manager) processResetRequest(ctx irrecoverable.SignalerContext, req messages.ResetRequest) bool {
	m.log.Info().
		Int("signal", int(req.Signal)).
		Uint64("target_round", req.TargetRound).
		Msg("reset requested")

	m.performReset(ctx)

	select {
	case req.Done <- messages.ResetAck{}:
	case <-ctx.Done():
	}
	return req.Signal == messages.ResetStop
}

// performReset drops all pipeline state: pending ordered batches are drained,
// broadcasts aborted, the buffer and roots cleared, and the in-flight barrier
// awaited, so no phase response computed against the old state can outlive
// the reset.
func (m *Manager) performReset(ctx irrecoverable.SignalerContext) {
	m.metrics.PipelineReset()

	for {
		select {
		case ordered := <-m.orderedChan:
			blockID := ordered.BlockID()
			m.log.Debug().
				Hex("block_id", blockID[:]).
				Msg("discarding ordered blocks during reset")
			continue
		default:
		}
		break
	}

	m.abortAllBroadcasts()
	m.buf = buffer.New()
	m.executionRoot = arbor.ZeroID
	m.signingRoot = arbor.ZeroID
	m.signingRequestedFor = arbor.ZeroID
	m.endEpochTimestamp = nil

	m.awaitQuiescence(ctx)
	m.log.Info().Msg("pipeline reset complete")
}

// awaitQuiescence blocks until every dispatched phase request has completed.
// Stale responses arriving during the wait are drained and dropped, so the
// phases never block on a full response channel while the driver waits.
func (m *Manager) awaitQuiescence(ctx irrecoverable.SignalerContext) {
	poll := time.NewTicker(quiescencePoll)
	defer poll.Stop()
	for m.tracker.Count() > 0 {
		select {
		case <-ctx.Done():
			return
		case <-m.execRespRx:
		case <-m.signRespRx:
		case <-m.persistRespRx:
		case <-poll.C:
		}
	}
}

func (m *Manager) abortAllBroadcasts() {
	m.buf.ForEach(func(item *buffer.Item) {
		item.AbortBroadcast()
	})
	for _, handle := range m.decisionBroadcasts {
		handle.Abort()
	}
	m.decisionBroadcasts = nil
}

// tick refreshes the metrics gauges, re-announces stale votes and prunes
// finished decision broadcasts.
func (m *Manager) tick() {
	var ordered, executed, signed, aggregated uint
	var stale []arbor.Identifier
	now := time.Now()
	m.buf.ForEach(func(item *buffer.Item) {
		switch item.State() {
		case buffer.StateOrdered:
			ordered++
		case buffer.StateExecuted:
			executed++
		case buffer.StateSigned:
			signed++
			if now.Sub(item.LastVoteBroadcast()) > m.voteRebroadcastTimeout {
				stale = append(stale, item.ID())
			}
		case buffer.StateAggregated:
			aggregated++
		}
	})
	m.metrics.BufferDepth(uint(m.buf.Len()))
	m.metrics.ItemsInState(ordered, executed, signed, aggregated)

	for _, cursor := range stale {
		item := m.buf.Take(cursor)
		vote := item.CommitVote()
		m.log.Info().
			Hex("block_id", cursor[:]).
			Uint64("round", item.Round()).
			Msg("re-broadcasting stale commit vote")
		handle := m.broadcaster.Broadcast(vote, m.remoteCommittee())
		item.SetBroadcastHandle(handle, now)
		m.buf.Set(cursor, item)
		m.metrics.VoteRebroadcast()
	}

	remaining := m.decisionBroadcasts[:0]
	for _, handle := range m.decisionBroadcasts {
		select {
		case <-handle.Done():
		default:
			remaining = append(remaining, handle)
		}
	}
	m.decisionBroadcasts = remaining
}

// retryExecutionRequest re-sends the request for a failed execution after a
// fixed delay, off the driver goroutine.
func (m *Manager) retryExecutionRequest(ctx irrecoverable.SignalerContext, blocks []*arbor.ExecutedBlock) {
	guard := m.tracker.Register()
	execTx := m.execTx
	go func() {
		select {
		case <-ctx.Done():
			guard.Release()
			return
		case <-time.After(rootRetryDelay):
		}
		select {
		case <-ctx.Done():
			guard.Release()
		case execTx <- phases.ExecutionRequest{Blocks: blocks, Guard: guard}:
		}
	}()
}

// retrySigningRequest mirrors retryExecutionRequest for the signing phase.
func (m *Manager) retrySigningRequest(ctx irrecoverable.SignalerContext, req phases.SigningRequest) {
	req.Guard = m.tracker.Register()
	signTx := m.signTx
	go func() {
		select {
		case <-ctx.Done():
			req.Guard.Release()
			return
		case <-time.After(rootRetryDelay):
		}
		select {
		case <-ctx.Done():
			req.Guard.Release()
		case signTx <- req:
		}
	}()
}

func (m *Manager) sendExecutionRequest(ctx irrecoverable.SignalerContext, req phases.ExecutionRequest) {
	select {
	case <-ctx.Done():
		req.Guard.Release()
	case m.execTx <- req:
	}
}

func (m *Manager) sendSigningRequest(ctx irrecoverable.SignalerContext, req phases.SigningRequest) {
	select {
	case <-ctx.Done():
		req.Guard.Release()
	case m.signTx <- req:
	}
}

func (m *Manager) sendPersistingRequest(ctx irrecoverable.SignalerContext, req phases.PersistingRequest) {
	select {
	case <-ctx.Done():
		req.Guard.Release()
	case m.persistTx <- req:
	}
}
