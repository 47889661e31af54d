// Package verifier filters inbound commit messages before they reach the
// pipeline driver: signature verification runs on a bounded worker pool, so
// expensive BLS checks never block the networking layer or the driver, and
// duplicates are suppressed early.
package verifier

import (
	"fmt"
	"sync"

	"github.com/gammazero/workerpool"
	lru "github.com/hashicorp/golang-lru"
	"github.com/rs/zerolog"

	"github.com/arborchain/arbor-go/engine"
	"github.com/arborchain/arbor-go/engine/common/fifoqueue"
	"github.com/arborchain/arbor-go/model/arbor"
	"github.com/arborchain/arbor-go/model/messages"
	"github.com/arborchain/arbor-go/module"
	"github.com/arborchain/arbor-go/module/component"
	"github.com/arborchain/arbor-go/module/irrecoverable"
)

const (
	// defaultSeenCacheSize bounds the dedupe cache of recently verified votes.
	defaultSeenCacheSize = 4096

	// defaultInboundQueueCapacity bounds verified messages awaiting the driver.
	defaultInboundQueueCapacity = 1024
)

// MessageVerifier receives raw commit messages from the network, verifies
// them against the current epoch's committee and hands valid ones to the
// driver through a notifier-paired queue. A message is only acknowledged to
// the sender once it passed verification and was queued; invalid messages are
// dropped, counted and reported back as an error, so the sender keeps
// retrying instead of assuming delivery.
type MessageVerifier struct {
	*component.ComponentManager

	log     zerolog.Logger
	metrics module.PipelineMetrics

	mu         sync.RWMutex
	epochState *arbor.EpochState

	pool   *workerpool.WorkerPool
	seen   *lru.Cache
	queue  *fifoqueue.FifoQueue
	notify engine.Notifier
}

func New(
	log zerolog.Logger,
	metrics module.PipelineMetrics,
	epochState *arbor.EpochState,
	workers int,
) (*MessageVerifier, error) {
	seen, err := lru.New(defaultSeenCacheSize)
	if err != nil {
		return nil, fmt.Errorf("could not create dedupe cache: %w", err)
	}
	queue, err := fifoqueue.NewFifoQueue(fifoqueue.WithCapacity(defaultInboundQueueCapacity))
	if err != nil {
		return nil, fmt.Errorf("could not create inbound queue: %w", err)
	}
	v := &MessageVerifier{
		log:        log.With().Str("component", "commit_message_verifier").Logger(),
		metrics:    metrics,
		epochState: epochState,
		pool:       workerpool.New(workers),
		seen:       seen,
		queue:      queue,
		notify:     engine.NewNotifier(),
	}
	v.ComponentManager = component.NewComponentManagerBuilder().
		AddWorker(func(ctx irrecoverable.SignalerContext, ready component.ReadyFunc) {
			ready()
			<-ctx.Done()
			v.pool.Stop()
		}).
		Build()
	return v, nil
}

// SetEpochState switches verification over to a new committee. Called by the
// driver when an epoch boundary commits.
func (v *MessageVerifier) SetEpochState(epochState *arbor.EpochState) {
	v.mu.Lock()
	v.epochState = epochState
	v.mu.Unlock()
	v.seen.Purge()
}

func (v *MessageVerifier) currentEpochState() *arbor.EpochState {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.epochState
}

// Process is the network-facing entry point. Verification runs on the worker
// pool; the call blocks until the outcome is known and returns nil only for a
// message that was verified and queued (or already seen). A non-nil return
// withholds the acknowledgement, leaving redelivery to the sender's retry
// loop.
func (v *MessageVerifier) Process(originID arbor.Identifier, event interface{}) error {
	result := make(chan error, 1)
	switch msg := event.(type) {
	case *messages.CommitVote:
		v.pool.Submit(func() { result <- v.verifyVote(originID, msg) })
	case *messages.CommitDecision:
		v.pool.Submit(func() { result <- v.verifyDecision(originID, msg) })
	default:
		return fmt.Errorf("invalid event type (%T)", event)
	}
	select {
	case err := <-result:
		return err
	case <-v.ShutdownSignal():
		return fmt.Errorf("verifier is shutting down")
	}
}

// SubmitLocal enqueues a trusted message from this node, bypassing
// verification. Used for this node's own votes and decisions, which must flow
// through the same queue as remote ones to preserve processing order.
func (v *MessageVerifier) SubmitLocal(msg messages.CommitMessage) {
	if !v.queue.Push(msg) {
		v.metrics.CommitMessageDropped()
		v.log.Warn().Msg("inbound queue full, dropping local commit message")
		return
	}
	v.notify.Notify()
}

// MessageNotifier returns the channel signalling that verified messages await
// the driver.
func (v *MessageVerifier) MessageNotifier() <-chan struct{} {
	return v.notify.Channel()
}

// Pop removes the next verified message, or returns false if none is pending.
func (v *MessageVerifier) Pop() (messages.CommitMessage, bool) {
	event, ok := v.queue.Pop()
	if !ok {
		return nil, false
	}
	return event.(messages.CommitMessage), true
}

func (v *MessageVerifier) verifyVote(originID arbor.Identifier, vote *messages.CommitVote) error {
	lg := v.log.With().
		Hex("origin_id", originID[:]).
		Hex("author", vote.Author[:]).
		Uint64("round", vote.Round()).
		Logger()

	es := v.currentEpochState()
	if vote.Epoch() != es.Epoch() {
		lg.Debug().Uint64("vote_epoch", vote.Epoch()).Msg("dropping vote for other epoch")
		v.metrics.CommitMessageDropped()
		return fmt.Errorf("vote is for epoch %d, current epoch is %d", vote.Epoch(), es.Epoch())
	}
	// a duplicate was already verified and acknowledged on first receipt
	if seen, _ := v.seen.ContainsOrAdd(voteKey(vote), struct{}{}); seen {
		return nil
	}
	err := es.VerifySignature(vote.Author, vote.LedgerInfo.SigningBytes(), vote.Signature)
	if err != nil {
		lg.Warn().Err(err).Msg("dropping invalid commit vote")
		v.metrics.CommitMessageDropped()
		return fmt.Errorf("invalid commit vote: %w", err)
	}
	return v.enqueue(vote, lg)
}

func (v *MessageVerifier) verifyDecision(originID arbor.Identifier, decision *messages.CommitDecision) error {
	lg := v.log.With().
		Hex("origin_id", originID[:]).
		Uint64("round", decision.CommitProof.LedgerInfo.Round()).
		Logger()

	es := v.currentEpochState()
	if decision.Epoch() != es.Epoch() {
		lg.Debug().Uint64("decision_epoch", decision.Epoch()).Msg("dropping decision for other epoch")
		v.metrics.CommitMessageDropped()
		return fmt.Errorf("decision is for epoch %d, current epoch is %d", decision.Epoch(), es.Epoch())
	}
	err := es.VerifyQuorumCertificate(&decision.CommitProof)
	if err != nil {
		lg.Warn().Err(err).Msg("dropping invalid commit decision")
		v.metrics.CommitMessageDropped()
		return fmt.Errorf("invalid commit decision: %w", err)
	}
	return v.enqueue(decision, lg)
}

func (v *MessageVerifier) enqueue(msg messages.CommitMessage, lg zerolog.Logger) error {
	if !v.queue.Push(msg) {
		lg.Warn().Msg("inbound queue full, dropping verified commit message")
		v.metrics.CommitMessageDropped()
		return fmt.Errorf("inbound queue full")
	}
	v.notify.Notify()
	return nil
}

// voteKey derives the dedupe key of a vote: one author signing the same
// commitment twice is the same vote, regardless of delivery path.
func voteKey(vote *messages.CommitVote) arbor.Identifier {
	return arbor.MakeID(struct {
		Author       arbor.Identifier
		LedgerInfoID arbor.Identifier
	}{vote.Author, vote.LedgerInfo.ID()})
}
