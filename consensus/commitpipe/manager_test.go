package commitpipe

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.dedis.ch/kyber/v3"

	"github.com/arborchain/arbor-go/consensus/commitpipe/broadcaster"
	"github.com/arborchain/arbor-go/consensus/commitpipe/phases"
	"github.com/arborchain/arbor-go/consensus/commitpipe/verifier"
	"github.com/arborchain/arbor-go/model/arbor"
	"github.com/arborchain/arbor-go/model/messages"
	"github.com/arborchain/arbor-go/module/counters"
	"github.com/arborchain/arbor-go/module/irrecoverable"
	"github.com/arborchain/arbor-go/module/local"
	"github.com/arborchain/arbor-go/module/metrics"
	"github.com/arborchain/arbor-go/utils/unittest"
)

type conduitEvent struct {
	target arbor.Identifier
	event  interface{}
}

// recordingConduit acknowledges every send and records it for inspection.
type recordingConduit struct {
	events chan conduitEvent
}

func newRecordingConduit() *recordingConduit {
	return &recordingConduit{events: make(chan conduitEvent, 128)}
}

func (c *recordingConduit) Unicast(event interface{}, target arbor.Identifier) error {
	c.events <- conduitEvent{target: target, event: event}
	return nil
}

func (c *recordingConduit) Publish(event interface{}, targets ...arbor.Identifier) error {
	for _, target := range targets {
		c.events <- conduitEvent{target: target, event: event}
	}
	return nil
}

// managerEnv drives a Manager with the phase channels under test control, so
// each test plays the role of all four phases.
type managerEnv struct {
	epochState *arbor.EpochState
	keys       map[arbor.Identifier]kyber.Scalar
	me         *local.Local
	verifier   *verifier.MessageVerifier
	conduit    *recordingConduit
	tracker    *counters.InFlightTracker

	execReq     chan phases.ExecutionRequest
	execResp    chan phases.ExecutionResponse
	signReq     chan phases.SigningRequest
	signResp    chan phases.SigningResponse
	persistReq  chan phases.PersistingRequest
	persistResp chan phases.PersistingResponse

	manager *Manager
	cancel  context.CancelFunc
	errChan <-chan error
}

func newManagerEnv(t *testing.T, committeeSize int, opts ...Option) *managerEnv {
	t.Helper()
	epochState, keys := unittest.EpochStateFixture(1, committeeSize)
	self := epochState.Committee()[0]
	me, err := local.New(self, keys[self.NodeID])
	require.NoError(t, err)

	verif, err := verifier.New(zerolog.Nop(), metrics.NewNoopCollector(), epochState, 2)
	require.NoError(t, err)

	env := &managerEnv{
		epochState:  epochState,
		keys:        keys,
		me:          me,
		verifier:    verif,
		conduit:     newRecordingConduit(),
		tracker:     counters.NewInFlightTracker(),
		execReq:     make(chan phases.ExecutionRequest, 8),
		execResp:    make(chan phases.ExecutionResponse, 8),
		signReq:     make(chan phases.SigningRequest, 8),
		signResp:    make(chan phases.SigningResponse, 8),
		persistReq:  make(chan phases.PersistingRequest, 8),
		persistResp: make(chan phases.PersistingResponse, 8),
	}
	env.manager = NewManager(
		zerolog.Nop(),
		metrics.NewNoopCollector(),
		me,
		epochState,
		broadcaster.New(zerolog.Nop(), env.conduit),
		verif,
		env.tracker,
		env.execReq, env.execResp,
		env.signReq, env.signResp,
		env.persistReq, env.persistResp,
		opts...,
	)

	ctx, cancel := context.WithCancel(context.Background())
	signalerCtx, errChan := irrecoverable.WithSignaler(ctx)
	env.manager.Start(signalerCtx)
	unittest.RequireCloseBefore(t, env.manager.Ready(), time.Second, "manager ready")
	env.cancel = cancel
	env.errChan = errChan

	t.Cleanup(func() {
		cancel()
		unittest.RequireCloseBefore(t, env.manager.Done(), time.Second, "manager done")
		select {
		case err := <-errChan:
			require.NoError(t, err)
		default:
		}
	})
	return env
}

func (env *managerEnv) submit(t *testing.T, ordered *messages.OrderedBlocks) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, env.manager.SubmitOrderedBlocks(ctx, ordered))
}

func (env *managerEnv) expectExecutionRequest(t *testing.T) phases.ExecutionRequest {
	t.Helper()
	select {
	case req := <-env.execReq:
		return req
	case <-time.After(time.Second):
		t.Fatal("no execution request dispatched")
		return phases.ExecutionRequest{}
	}
}

func (env *managerEnv) expectSigningRequest(t *testing.T) phases.SigningRequest {
	t.Helper()
	select {
	case req := <-env.signReq:
		return req
	case <-time.After(time.Second):
		t.Fatal("no signing request dispatched")
		return phases.SigningRequest{}
	}
}

func (env *managerEnv) expectPersistingRequest(t *testing.T) phases.PersistingRequest {
	t.Helper()
	select {
	case req := <-env.persistReq:
		return req
	case <-time.After(time.Second):
		t.Fatal("no persisting request dispatched")
		return phases.PersistingRequest{}
	}
}

func (env *managerEnv) expectNoSigningRequest(t *testing.T, within time.Duration) {
	t.Helper()
	select {
	case <-env.signReq:
		t.Fatal("unexpected signing request")
	case <-time.After(within):
	}
}

// respondExecution plays the execution phases: emits the response and
// releases the request's guard.
func (env *managerEnv) respondExecution(req phases.ExecutionRequest, executed []*arbor.ExecutedBlock, err error) {
	blockID := req.Blocks[len(req.Blocks)-1].ID()
	env.execResp <- phases.ExecutionResponse{BlockID: blockID, Blocks: executed, Err: err}
	req.Guard.Release()
}

// respondSigning plays the signing phase with this node's real signature.
func (env *managerEnv) respondSigning(t *testing.T, req phases.SigningRequest) {
	t.Helper()
	sig, err := env.me.Sign(req.CommitLedgerInfo.SigningBytes())
	require.NoError(t, err)
	env.signResp <- phases.SigningResponse{
		BlockID:          req.CommitLedgerInfo.BlockID(),
		CommitLedgerInfo: req.CommitLedgerInfo,
		Signature:        sig,
	}
	req.Guard.Release()
}

// voteFrom produces the committee member's real vote over the ledger info and
// feeds it to the driver through the verified-message queue.
func (env *managerEnv) voteFrom(member arbor.Identifier, li arbor.LedgerInfo) {
	env.verifier.SubmitLocal(unittest.SignCommitVote(member, env.keys[member], li))
}

// TestManager_HappyPath commits one batch end to end: execute, sign, collect
// a 3-of-4 quorum and persist exactly once.
func TestManager_HappyPath(t *testing.T) {
	env := newManagerEnv(t, 4)
	committee := env.epochState.Committee().NodeIDs()
	proposer := committee[1]
	ordered := unittest.OrderedBlocksFixture(1, 1, 3, unittest.WithProposer(proposer))

	var calledBack bool
	ordered.Callback = func([]*arbor.ExecutedBlock, *arbor.QuorumCertificate) { calledBack = true }
	env.submit(t, ordered)

	execReq := env.expectExecutionRequest(t)
	require.Len(t, execReq.Blocks, 3)
	executed := unittest.ExecutionResultFixture(ordered.Blocks)
	env.respondExecution(execReq, executed, nil)

	signReq := env.expectSigningRequest(t)
	li := signReq.CommitLedgerInfo
	assert.Equal(t, ordered.BlockID(), li.BlockID())
	assert.Equal(t, executed[2].StateCommitment, li.CommitInfo.StateCommitment)
	env.respondSigning(t, signReq)

	// the vote goes to the proposer of the committed block
	select {
	case sent := <-env.conduit.events:
		assert.Equal(t, proposer, sent.target)
		vote, ok := sent.event.(*messages.CommitVote)
		require.True(t, ok)
		assert.Equal(t, env.me.NodeID(), vote.Author)
		assert.Equal(t, li.ID(), vote.LedgerInfo.ID())
	case <-time.After(time.Second):
		t.Fatal("own vote was not disseminated")
	}

	// two peer votes complete the 3-of-4 quorum
	env.voteFrom(committee[1], li)
	env.voteFrom(committee[2], li)

	persistReq := env.expectPersistingRequest(t)
	require.Len(t, persistReq.Blocks, 3)
	require.NoError(t, env.epochState.VerifyQuorumCertificate(persistReq.CommitProof))
	assert.Equal(t, ordered.BlockID(), persistReq.CommitProof.BlockID())

	require.NotNil(t, persistReq.Callback)
	persistReq.Callback(persistReq.Blocks, persistReq.CommitProof)
	assert.True(t, calledBack)

	persistReq.Guard.Release()
	env.persistResp <- phases.PersistingResponse{
		BlockID: persistReq.CommitProof.BlockID(),
		Round:   persistReq.CommitProof.LedgerInfo.Round(),
	}
	unittest.RequireEventually(t, func() bool {
		return env.tracker.Count() == 0
	}, time.Second, "all guards released")
}

// TestManager_DecisionBypass aggregates an item straight from Ordered when a
// peer's commit decision arrives before execution finished locally.
func TestManager_DecisionBypass(t *testing.T) {
	env := newManagerEnv(t, 4)
	ordered := unittest.OrderedBlocksFixture(1, 1, 2)
	env.submit(t, ordered)

	execReq := env.expectExecutionRequest(t)

	executed := unittest.ExecutionResultFixture(ordered.Blocks)
	li := unittest.CommitLedgerInfoFixture(executed, ordered.OrderedProof)
	proof := unittest.QuorumCertificateFixture(li, env.epochState, env.keys,
		env.epochState.Committee().NodeIDs()[:3]...)
	env.verifier.SubmitLocal(&messages.CommitDecision{CommitProof: *proof})

	persistReq := env.expectPersistingRequest(t)
	assert.Equal(t, ordered.BlockID(), persistReq.CommitProof.BlockID())
	require.Len(t, persistReq.Blocks, 2)
	persistReq.Guard.Release()

	// the stale execution response is dropped without effect
	env.respondExecution(execReq, executed, nil)
	env.expectNoSigningRequest(t, 100*time.Millisecond)
}

// TestManager_ExecutionFailureStalls verifies the fail-stall behavior: a
// failed execution never reaches signing, and the same request is re-sent
// after the retry delay.
func TestManager_ExecutionFailureStalls(t *testing.T) {
	env := newManagerEnv(t, 4)
	ordered := unittest.OrderedBlocksFixture(1, 1, 1)
	env.submit(t, ordered)

	execReq := env.expectExecutionRequest(t)
	env.respondExecution(execReq, nil, fmt.Errorf("execution backend down"))

	// the retry carries the same candidates
	retried := env.expectExecutionRequest(t)
	assert.Equal(t, execReq.Blocks, retried.Blocks)
	env.expectNoSigningRequest(t, 50*time.Millisecond)

	// recovery: the retried request succeeds and the pipeline moves on
	executed := unittest.ExecutionResultFixture(ordered.Blocks)
	env.respondExecution(retried, executed, nil)
	signReq := env.expectSigningRequest(t)
	assert.Equal(t, ordered.BlockID(), signReq.CommitLedgerInfo.BlockID())
	signReq.Guard.Release()
}

// TestManager_SigningFailureStalls mirrors the execution stall for the
// signing phase.
func TestManager_SigningFailureStalls(t *testing.T) {
	env := newManagerEnv(t, 4)
	ordered := unittest.OrderedBlocksFixture(1, 1, 1)
	env.submit(t, ordered)

	execReq := env.expectExecutionRequest(t)
	env.respondExecution(execReq, unittest.ExecutionResultFixture(ordered.Blocks), nil)

	signReq := env.expectSigningRequest(t)
	env.signResp <- phases.SigningResponse{
		BlockID:          signReq.CommitLedgerInfo.BlockID(),
		CommitLedgerInfo: signReq.CommitLedgerInfo,
		Err:              fmt.Errorf("signer locked"),
	}
	signReq.Guard.Release()

	retried := env.expectSigningRequest(t)
	assert.Equal(t, signReq.CommitLedgerInfo.ID(), retried.CommitLedgerInfo.ID())
	env.respondSigning(t, retried)

	select {
	case sent := <-env.conduit.events:
		_, ok := sent.event.(*messages.CommitVote)
		require.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("vote was not disseminated after recovery")
	}
}

// TestManager_PrefixOrderPersisting holds back the first item until the
// second is already aggregated, then verifies both are persisted in a single
// prefix-ordered request carrying the later proof and callback.
func TestManager_PrefixOrderPersisting(t *testing.T) {
	env := newManagerEnv(t, 4)
	first := unittest.OrderedBlocksFixture(1, 1, 1)
	second := unittest.OrderedBlocksFixture(1, 2, 1)
	var secondCalledBack bool
	second.Callback = func([]*arbor.ExecutedBlock, *arbor.QuorumCertificate) { secondCalledBack = true }

	env.submit(t, first)
	env.submit(t, second)
	firstExec := env.expectExecutionRequest(t)
	secondExec := env.expectExecutionRequest(t)

	signers := env.epochState.Committee().NodeIDs()[:3]

	// the second item aggregates first: nothing may be persisted yet
	secondExecuted := unittest.ExecutionResultFixture(second.Blocks)
	secondLI := unittest.CommitLedgerInfoFixture(secondExecuted, second.OrderedProof)
	secondProof := unittest.QuorumCertificateFixture(secondLI, env.epochState, env.keys, signers...)
	env.verifier.SubmitLocal(&messages.CommitDecision{CommitProof: *secondProof})

	select {
	case <-env.persistReq:
		t.Fatal("persisted out of prefix order")
	case <-time.After(100 * time.Millisecond):
	}

	// once the first item aggregates, both go out in one request
	firstExecuted := unittest.ExecutionResultFixture(first.Blocks)
	firstLI := unittest.CommitLedgerInfoFixture(firstExecuted, first.OrderedProof)
	firstProof := unittest.QuorumCertificateFixture(firstLI, env.epochState, env.keys, signers...)
	env.verifier.SubmitLocal(&messages.CommitDecision{CommitProof: *firstProof})

	persistReq := env.expectPersistingRequest(t)
	require.Len(t, persistReq.Blocks, 2)
	assert.Equal(t, first.BlockID(), persistReq.Blocks[0].ID())
	assert.Equal(t, second.BlockID(), persistReq.Blocks[1].ID())
	assert.Equal(t, second.BlockID(), persistReq.CommitProof.BlockID())
	persistReq.Callback(persistReq.Blocks, persistReq.CommitProof)
	assert.True(t, secondCalledBack)
	persistReq.Guard.Release()

	firstExec.Guard.Release()
	secondExec.Guard.Release()
}

// TestManager_Reset verifies the reset barrier: the ack only arrives once all
// in-flight phase work has drained, and pre-reset responses have no effect
// afterwards.
func TestManager_Reset(t *testing.T) {
	env := newManagerEnv(t, 4)
	ordered := unittest.OrderedBlocksFixture(1, 1, 1)
	env.submit(t, ordered)
	execReq := env.expectExecutionRequest(t)

	done := make(chan messages.ResetAck, 1)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, env.manager.Reset(ctx, messages.ResetRequest{
		Signal:      messages.ResetTargetRound,
		TargetRound: 10,
		Done:        done,
	}))

	// the execution request is still outstanding, so no ack yet
	select {
	case <-done:
		t.Fatal("reset acked before quiescence")
	case <-time.After(50 * time.Millisecond):
	}

	env.respondExecution(execReq, unittest.ExecutionResultFixture(ordered.Blocks), nil)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reset not acked after quiescence")
	}

	// the pre-reset execution result was dropped during the barrier wait
	env.expectNoSigningRequest(t, 100*time.Millisecond)

	// the pipeline accepts fresh work after the reset
	fresh := unittest.OrderedBlocksFixture(1, 20, 1)
	env.submit(t, fresh)
	freshReq := env.expectExecutionRequest(t)
	assert.Equal(t, fresh.BlockID(), freshReq.Blocks[len(freshReq.Blocks)-1].ID())
	freshReq.Guard.Release()
}

// TestManager_ResetStop stops the driver for good.
func TestManager_ResetStop(t *testing.T) {
	env := newManagerEnv(t, 4)

	done := make(chan messages.ResetAck, 1)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, env.manager.Reset(ctx, messages.ResetRequest{
		Signal: messages.ResetStop,
		Done:   done,
	}))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stop not acked")
	}
	unittest.RequireCloseBefore(t, env.manager.Done(), time.Second, "driver should stop")
}

// TestManager_EpochBoundary runs a single-validator pipeline across an epoch
// boundary: the reconfiguration block commits, the epoch change is announced,
// the pipeline resets and switches committees before persisting.
func TestManager_EpochBoundary(t *testing.T) {
	env := newManagerEnv(t, 1)
	self := env.me.NodeID()
	nextEpochState, _ := unittest.EpochStateFixture(2, 1)

	ordered := unittest.OrderedBlocksFixture(1, 1, 1, unittest.WithProposer(self))
	env.submit(t, ordered)

	execReq := env.expectExecutionRequest(t)
	executed := unittest.ExecutionResultFixture(ordered.Blocks)
	executed[0].NextEpochState = nextEpochState
	env.respondExecution(execReq, executed, nil)

	signReq := env.expectSigningRequest(t)
	require.True(t, signReq.CommitLedgerInfo.EndsEpoch())
	env.respondSigning(t, signReq)

	// own vote is a 1-of-1 quorum: epoch change, reset, then persist
	persistReq := env.expectPersistingRequest(t)
	require.True(t, persistReq.CommitProof.EndsEpoch())
	require.NoError(t, env.epochState.VerifyQuorumCertificate(persistReq.CommitProof))
	persistReq.Guard.Release()

	assert.Equal(t, uint64(2), env.manager.EpochState().Epoch())

	// blocks of the old epoch are unknown to the reset pipeline
	unittest.RequireEventually(t, func() bool {
		return env.tracker.Count() == 0
	}, time.Second, "pipeline quiescent after rollover")
}

// TestManager_MidBatchReconfigurationTimestamp executes a two-block batch
// whose first block triggers the reconfiguration: the batch's own commit
// ledger info must carry the reconfiguration block's timestamp, not the
// suffix block's.
func TestManager_MidBatchReconfigurationTimestamp(t *testing.T) {
	env := newManagerEnv(t, 4)
	nextEpochState, _ := unittest.EpochStateFixture(2, 4)

	ordered := unittest.OrderedBlocksFixture(1, 1, 2)
	ordered.Blocks[0].Block.Timestamp = 1111
	ordered.Blocks[1].Block.Timestamp = 2222
	env.submit(t, ordered)

	execReq := env.expectExecutionRequest(t)
	executed := unittest.ExecutionResultFixture(ordered.Blocks)
	executed[0].NextEpochState = nextEpochState
	env.respondExecution(execReq, executed, nil)

	signReq := env.expectSigningRequest(t)
	assert.Equal(t, uint64(1111), signReq.CommitLedgerInfo.CommitInfo.Timestamp)
	signReq.Guard.Release()
}

// TestManager_StaleVoteRebroadcast drives one item to Signed and withholds
// the peer votes: once the rebroadcast deadline passes, the own vote must be
// re-announced to the whole committee.
func TestManager_StaleVoteRebroadcast(t *testing.T) {
	env := newManagerEnv(t, 4,
		WithTickInterval(10*time.Millisecond),
		WithVoteRebroadcastTimeout(20*time.Millisecond),
	)
	committee := env.epochState.Committee().NodeIDs()
	proposer := committee[1]
	ordered := unittest.OrderedBlocksFixture(1, 1, 1, unittest.WithProposer(proposer))
	env.submit(t, ordered)

	execReq := env.expectExecutionRequest(t)
	env.respondExecution(execReq, unittest.ExecutionResultFixture(ordered.Blocks), nil)
	signReq := env.expectSigningRequest(t)
	env.respondSigning(t, signReq)

	// the initial dissemination is a unicast to the proposer
	select {
	case sent := <-env.conduit.events:
		assert.Equal(t, proposer, sent.target)
		_, ok := sent.event.(*messages.CommitVote)
		require.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("own vote was not disseminated")
	}

	// no quorum forms, so the stale vote goes out to all three peers
	reached := make(map[arbor.Identifier]bool)
	deadline := time.After(time.Second)
	for len(reached) < 3 {
		select {
		case sent := <-env.conduit.events:
			vote, ok := sent.event.(*messages.CommitVote)
			if !ok {
				continue
			}
			assert.Equal(t, env.me.NodeID(), vote.Author)
			reached[sent.target] = true
		case <-deadline:
			t.Fatalf("stale vote reached only %d peers", len(reached))
		}
	}
}

// TestManager_ProposerAnnouncesDecision verifies that the proposer of a
// committed block broadcasts the commit decision once it aggregates a quorum.
func TestManager_ProposerAnnouncesDecision(t *testing.T) {
	env := newManagerEnv(t, 4)
	committee := env.epochState.Committee().NodeIDs()
	ordered := unittest.OrderedBlocksFixture(1, 1, 1, unittest.WithProposer(env.me.NodeID()))
	env.submit(t, ordered)

	execReq := env.expectExecutionRequest(t)
	executed := unittest.ExecutionResultFixture(ordered.Blocks)
	env.respondExecution(execReq, executed, nil)

	signReq := env.expectSigningRequest(t)
	li := signReq.CommitLedgerInfo
	env.respondSigning(t, signReq)

	// as proposer, the own vote loops back internally; peers vote directly
	env.voteFrom(committee[1], li)
	env.voteFrom(committee[2], li)

	persistReq := env.expectPersistingRequest(t)
	persistReq.Guard.Release()

	// the decision reaches every other committee member
	decisions := make(map[arbor.Identifier]bool)
	deadline := time.After(time.Second)
	for len(decisions) < 3 {
		select {
		case sent := <-env.conduit.events:
			if decision, ok := sent.event.(*messages.CommitDecision); ok {
				assert.Equal(t, ordered.BlockID(), decision.BlockID())
				decisions[sent.target] = true
			}
		case <-deadline:
			t.Fatalf("decision reached only %d peers", len(decisions))
		}
	}
}
