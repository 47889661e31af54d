package phases

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/arborchain/arbor-go/model/arbor"
	"github.com/arborchain/arbor-go/module"
	"github.com/arborchain/arbor-go/module/component"
	"github.com/arborchain/arbor-go/module/irrecoverable"
)

// ExecutionSchedulePhase starts execution of ordered block batches. Starting
// is decoupled from waiting so that the execution backend can pipeline
// batches internally: this phase only forks the backend call and immediately
// moves on to the next request, handing the pending result to the wait phase.
type ExecutionSchedulePhase struct {
	*component.ComponentManager

	log     zerolog.Logger
	backend module.ExecutionBackend
	in      <-chan ExecutionRequest
	out     chan<- ExecutionWaitRequest
}

func NewExecutionSchedulePhase(
	log zerolog.Logger,
	backend module.ExecutionBackend,
	in <-chan ExecutionRequest,
	out chan<- ExecutionWaitRequest,
) *ExecutionSchedulePhase {
	p := &ExecutionSchedulePhase{
		log:     log.With().Str("component", "execution_schedule_phase").Logger(),
		backend: backend,
		in:      in,
		out:     out,
	}
	p.ComponentManager = component.NewComponentManagerBuilder().
		AddWorker(p.processLoop).
		Build()
	return p
}

func (p *ExecutionSchedulePhase) processLoop(ctx irrecoverable.SignalerContext, ready component.ReadyFunc) {
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

func (p *ExecutionSchedulePhase) process(ctx context.Context, req ExecutionRequest) {
	blockID := req.Blocks[len(req.Blocks)-1].ID()
	candidates := make([]*arbor.Block, 0, len(req.Blocks))
	for _, b := range req.Blocks {
		candidates = append(candidates, b.Block)
	}
	p.log.Debug().
		Hex("block_id", blockID[:]).
		Int("blocks", len(candidates)).
		Msg("scheduling execution")

	result := make(chan executionOutcome, 1)
	go func() {
		blocks, err := p.backend.Execute(ctx, candidates)
		result <- executionOutcome{blocks: blocks, err: err}
	}()

	select {
	case <-ctx.Done():
		req.Guard.Release()
	case p.out <- ExecutionWaitRequest{BlockID: blockID, result: result, Guard: req.Guard}:
	}
}
