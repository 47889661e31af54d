// Package broadcaster implements reliable broadcast of commit messages:
// per-recipient delivery with exponential backoff that keeps retrying until
// the recipient acknowledges or the broadcast is aborted.
package broadcaster

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"github.com/arborchain/arbor-go/model/arbor"
	"github.com/arborchain/arbor-go/model/messages"
	"github.com/arborchain/arbor-go/network"
)

// retryBaseDelay is the first backoff interval for an unacknowledged send.
const retryBaseDelay = 500 * time.Millisecond

// retryMaxDelay caps the per-recipient backoff.
const retryMaxDelay = 8 * time.Second

// Broadcaster gossips commit messages to the validator set. It is stateless;
// each broadcast is tracked by the returned Handle.
type Broadcaster struct {
	log     zerolog.Logger
	conduit network.Conduit
}

func New(log zerolog.Logger, conduit network.Conduit) *Broadcaster {
	return &Broadcaster{
		log:     log.With().Str("component", "reliable_broadcast").Logger(),
		conduit: conduit,
	}
}

// Handle tracks one running broadcast. Aborting the handle stops all
// outstanding retry loops; the handle must be aborted as soon as the vote it
// carries is no longer needed (item aggregated, popped, or epoch reset).
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Abort stops all retry loops of this broadcast. Safe to call repeatedly.
func (h *Handle) Abort() {
	h.cancel()
}

// Done returns a channel that closes once all retry loops have returned.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Broadcast delivers the message to every recipient, retrying each with
// exponential backoff until acknowledged or aborted.
func (b *Broadcaster) Broadcast(msg messages.CommitMessage, recipients arbor.IdentityList) *Handle {
	ctx, cancel := context.WithCancel(context.Background())
	handle := &Handle{cancel: cancel, done: make(chan struct{})}

	var wg sync.WaitGroup
	for _, recipient := range recipients {
		recipient := recipient
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.deliverWithRetry(ctx, msg, recipient.NodeID)
		}()
	}
	go func() {
		wg.Wait()
		close(handle.done)
	}()
	return handle
}

// DisseminateVote implements the vote dissemination rule: the vote is
// unicast to the proposer of the voted block; if that fails, or this node is
// the designated backup disseminator for the round, the vote is reliably
// broadcast to the whole committee instead.
func (b *Broadcaster) DisseminateVote(vote *messages.CommitVote, proposer arbor.Identifier, recipients arbor.IdentityList, backup bool) *Handle {
	ctx, cancel := context.WithCancel(context.Background())
	handle := &Handle{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(handle.done)

		if !backup {
			err := b.conduit.Unicast(vote, proposer)
			if err == nil {
				return
			}
			b.log.Info().Err(err).
				Hex("proposer", proposer[:]).
				Uint64("round", vote.Round()).
				Msg("unicast to proposer failed, falling back to broadcast")
		}

		var wg sync.WaitGroup
		for _, recipient := range recipients {
			recipient := recipient
			wg.Add(1)
			go func() {
				defer wg.Done()
				b.deliverWithRetry(ctx, vote, recipient.NodeID)
			}()
		}
		wg.Wait()
	}()
	return handle
}

// PublishOnce sends the message to all recipients in one best-effort round,
// without retries. Used for epoch-change announcements, where peers that miss
// the publish catch up through state sync instead.
func (b *Broadcaster) PublishOnce(msg messages.CommitMessage, recipients arbor.IdentityList) error {
	return b.conduit.Publish(msg, recipients.NodeIDs()...)
}

// deliverWithRetry sends the message to one recipient until acknowledged or
// the context is cancelled. Send failures are logged and retried; there is
// no error-triggered escalation beyond the backoff itself.
func (b *Broadcaster) deliverWithRetry(ctx context.Context, msg messages.CommitMessage, target arbor.Identifier) {
	backoff := retry.WithCappedDuration(retryMaxDelay, retry.NewExponential(retryBaseDelay))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := b.conduit.Unicast(msg, target)
		if err != nil {
			b.log.Debug().Err(err).
				Hex("target", target[:]).
				Msg("commit message not acknowledged, backing off")
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		b.log.Warn().Err(err).
			Hex("target", target[:]).
			Msg("giving up commit message delivery")
	}
}
