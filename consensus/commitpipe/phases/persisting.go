package phases

import (
	"github.com/rs/zerolog"

	"github.com/arborchain/arbor-go/module"
	"github.com/arborchain/arbor-go/module/component"
	"github.com/arborchain/arbor-go/module/irrecoverable"
)

// PersistingPhase writes committed prefixes to durable storage and invokes
// the completion callback towards the ordering protocol. Requests are
// processed strictly in arrival order, which preserves the consensus order of
// commits on disk.
type PersistingPhase struct {
	*component.ComponentManager

	log       zerolog.Logger
	persister module.Persister
	metrics   module.PipelineMetrics
	in        <-chan PersistingRequest
	out       chan<- PersistingResponse
}

func NewPersistingPhase(
	log zerolog.Logger,
	persister module.Persister,
	metrics module.PipelineMetrics,
	in <-chan PersistingRequest,
	out chan<- PersistingResponse,
) *PersistingPhase {
	p := &PersistingPhase{
		log:       log.With().Str("component", "persisting_phase").Logger(),
		persister: persister,
		metrics:   metrics,
		in:        in,
		out:       out,
	}
	p.ComponentManager = component.NewComponentManagerBuilder().
		AddWorker(p.processLoop).
		Build()
	return p
}

func (p *PersistingPhase) processLoop(ctx irrecoverable.SignalerContext, ready component.ReadyFunc) {
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

func (p *PersistingPhase) process(ctx irrecoverable.SignalerContext, req PersistingRequest) {
	defer req.Guard.Release()

	blockID := req.CommitProof.BlockID()
	round := req.CommitProof.LedgerInfo.Round()

	err := p.persister.Persist(req.Blocks, req.CommitProof)
	if err != nil {
		p.log.Error().Err(err).
			Hex("block_id", blockID[:]).
			Uint64("round", round).
			Msg("could not persist committed blocks")
	} else {
		p.metrics.BlocksPersisted(uint(len(req.Blocks)))
		p.log.Info().
			Hex("block_id", blockID[:]).
			Uint64("round", round).
			Int("blocks", len(req.Blocks)).
			Msg("committed blocks persisted")
		if req.Callback != nil {
			req.Callback(req.Blocks, req.CommitProof)
		}
	}

	select {
	case <-ctx.Done():
	case p.out <- PersistingResponse{BlockID: blockID, Round: round, Err: err}:
	}
}
