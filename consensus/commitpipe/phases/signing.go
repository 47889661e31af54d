package phases

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/arborchain/arbor-go/module"
	"github.com/arborchain/arbor-go/module/component"
	"github.com/arborchain/arbor-go/module/irrecoverable"
)

// SigningPhase produces this node's commit signature over executed items. The
// commit ledger info is checked for consistency with the ordering certificate
// before signing; a mismatch means the driver assembled the request from
// inconsistent data and is reported back as an error.
type SigningPhase struct {
	*component.ComponentManager

	log   zerolog.Logger
	local module.Local
	in    <-chan SigningRequest
	out   chan<- SigningResponse
}

func NewSigningPhase(
	log zerolog.Logger,
	local module.Local,
	in <-chan SigningRequest,
	out chan<- SigningResponse,
) *SigningPhase {
	p := &SigningPhase{
		log:   log.With().Str("component", "signing_phase").Logger(),
		local: local,
		in:    in,
		out:   out,
	}
	p.ComponentManager = component.NewComponentManagerBuilder().
		AddWorker(p.processLoop).
		Build()
	return p
}

func (p *SigningPhase) processLoop(ctx irrecoverable.SignalerContext, ready component.ReadyFunc) {
	ready()
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-p.in:
			p.process(ctx, req)
		}
	}
}

func (p *SigningPhase) process(ctx irrecoverable.SignalerContext, req SigningRequest) {
	defer req.Guard.Release()

	sig, err := p.sign(req)
	if err != nil {
		p.log.Error().Err(err).
			Uint64("round", req.CommitLedgerInfo.Round()).
			Msg("could not sign commit ledger info")
	}

	resp := SigningResponse{
		BlockID:          req.CommitLedgerInfo.BlockID(),
		CommitLedgerInfo: req.CommitLedgerInfo,
		Signature:        sig,
		Err:              err,
	}
	select {
	case <-ctx.Done():
	case p.out <- resp:
	}
}

func (p *SigningPhase) sign(req SigningRequest) ([]byte, error) {
	ordered := req.OrderedProof.LedgerInfo
	commit := req.CommitLedgerInfo
	if ordered.CommitInfo.Epoch != commit.CommitInfo.Epoch {
		return nil, fmt.Errorf("commit epoch %d does not match ordered epoch %d",
			commit.CommitInfo.Epoch, ordered.CommitInfo.Epoch)
	}
	if ordered.CommitInfo.Round != commit.CommitInfo.Round {
		return nil, fmt.Errorf("commit round %d does not match ordered round %d",
			commit.CommitInfo.Round, ordered.CommitInfo.Round)
	}
	if ordered.ConsensusDataHash != commit.ConsensusDataHash {
		return nil, fmt.Errorf("commit consensus data hash does not match ordering certificate")
	}
	return p.local.Sign(commit.SigningBytes())
}
