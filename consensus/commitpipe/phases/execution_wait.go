package phases

import (
	"github.com/rs/zerolog"

	"github.com/arborchain/arbor-go/module/component"
	"github.com/arborchain/arbor-go/module/irrecoverable"
)

// ExecutionWaitPhase collects the results of scheduled executions, in the
// order they were scheduled, and reports them back to the driver.
type ExecutionWaitPhase struct {
	*component.ComponentManager

	log zerolog.Logger
	in  <-chan ExecutionWaitRequest
	out chan<- ExecutionResponse
}

func NewExecutionWaitPhase(
	log zerolog.Logger,
	in <-chan ExecutionWaitRequest,
	out chan<- ExecutionResponse,
) *ExecutionWaitPhase {
	p := &ExecutionWaitPhase{
		log: log.With().Str("component", "execution_wait_phase").Logger(),
		in:  in,
		out: out,
	}
	p.ComponentManager = component.NewComponentManagerBuilder().
		AddWorker(p.processLoop).
		Build()
	return p
}

func (p *ExecutionWaitPhase) processLoop(ctx irrecoverable.SignalerContext, ready component.ReadyFunc) {
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

func (p *ExecutionWaitPhase) process(ctx irrecoverable.SignalerContext, req ExecutionWaitRequest) {
	defer req.Guard.Release()

	var outcome executionOutcome
	select {
	case <-ctx.Done():
		return
	case outcome = <-req.result:
	}

	if outcome.err != nil {
		p.log.Error().Err(outcome.err).
			Hex("block_id", req.BlockID[:]).
			Msg("execution failed")
	} else {
		p.log.Debug().
			Hex("block_id", req.BlockID[:]).
			Msg("execution finished")
	}

	select {
	case <-ctx.Done():
	case p.out <- ExecutionResponse{BlockID: req.BlockID, Blocks: outcome.blocks, Err: outcome.err}:
	}
}
