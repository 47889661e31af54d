package commitpipe

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/arborchain/arbor-go/consensus/commitpipe/broadcaster"
	"github.com/arborchain/arbor-go/consensus/commitpipe/phases"
	"github.com/arborchain/arbor-go/consensus/commitpipe/verifier"
	"github.com/arborchain/arbor-go/model/arbor"
	"github.com/arborchain/arbor-go/module"
	"github.com/arborchain/arbor-go/module/component"
	"github.com/arborchain/arbor-go/module/counters"
	"github.com/arborchain/arbor-go/module/irrecoverable"
	"github.com/arborchain/arbor-go/module/util"
	"github.com/arborchain/arbor-go/network"
)

const (
	// defaultChannelCapacity buffers the phase request and response channels,
	// decoupling the driver from phase scheduling hiccups.
	defaultChannelCapacity = 128

	// defaultVerifierWorkers bounds concurrent BLS verifications.
	defaultVerifierWorkers = 4
)

// Pipeline assembles the commit pipeline of one validator: the driver, the
// four phase workers and the message verifier, wired together through
// buffered channels. It implements component.Component; starting the pipeline
// starts all subcomponents under the same supervision context.
type Pipeline struct {
	Manager  *Manager
	Verifier *verifier.MessageVerifier

	components []component.Component
}

var _ component.Component = (*Pipeline)(nil)

func NewPipeline(
	log zerolog.Logger,
	metrics module.PipelineMetrics,
	local module.Local,
	epochState *arbor.EpochState,
	backend module.ExecutionBackend,
	persister module.Persister,
	conduit network.Conduit,
) (*Pipeline, error) {
	verif, err := verifier.New(log, metrics, epochState, defaultVerifierWorkers)
	if err != nil {
		return nil, fmt.Errorf("could not create message verifier: %w", err)
	}

	execReq := make(chan phases.ExecutionRequest, defaultChannelCapacity)
	waitReq := make(chan phases.ExecutionWaitRequest, defaultChannelCapacity)
	execResp := make(chan phases.ExecutionResponse, defaultChannelCapacity)
	signReq := make(chan phases.SigningRequest, defaultChannelCapacity)
	signResp := make(chan phases.SigningResponse, defaultChannelCapacity)
	persistReq := make(chan phases.PersistingRequest, defaultChannelCapacity)
	persistResp := make(chan phases.PersistingResponse, defaultChannelCapacity)

	schedule := phases.NewExecutionSchedulePhase(log, backend, execReq, waitReq)
	wait := phases.NewExecutionWaitPhase(log, waitReq, execResp)
	signing := phases.NewSigningPhase(log, local, signReq, signResp)
	persisting := phases.NewPersistingPhase(log, persister, metrics, persistReq, persistResp)

	manager := NewManager(
		log,
		metrics,
		local,
		epochState,
		broadcaster.New(log, conduit),
		verif,
		counters.NewInFlightTracker(),
		execReq, execResp,
		signReq, signResp,
		persistReq, persistResp,
	)

	return &Pipeline{
		Manager:  manager,
		Verifier: verif,
		components: []component.Component{
			verif, schedule, wait, signing, persisting, manager,
		},
	}, nil
}

// Start launches all subcomponents under the given supervision context.
func (p *Pipeline) Start(ctx irrecoverable.SignalerContext) {
	for _, c := range p.components {
		c.Start(ctx)
	}
}

// Ready closes once every subcomponent is ready.
func (p *Pipeline) Ready() <-chan struct{} {
	readyDoneAware := make([]module.ReadyDoneAware, len(p.components))
	for i, c := range p.components {
		readyDoneAware[i] = c
	}
	return util.AllReady(readyDoneAware...)
}

// Done closes once every subcomponent has shut down.
func (p *Pipeline) Done() <-chan struct{} {
	readyDoneAware := make([]module.ReadyDoneAware, len(p.components))
	for i, c := range p.components {
		readyDoneAware[i] = c
	}
	return util.AllDone(readyDoneAware...)
}
