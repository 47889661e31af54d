// Package component manages the worker goroutines of long-running pipeline
// components: workers signal readiness, shut down on context cancellation,
// and escalate irrecoverable errors to the component's parent.
package component

import (
	"context"
	"sync"

	"go.uber.org/atomic"

	"github.com/arborchain/arbor-go/module"
	"github.com/arborchain/arbor-go/module/irrecoverable"
)

// Component is a unit that can be started once and exposes channels that
// close when startup and shutdown have completed.
type Component interface {
	module.Startable
	module.ReadyDoneAware
}

// ReadyFunc is called by a worker to signal that it is ready. The manager's
// Ready channel closes once every worker has called its ReadyFunc.
type ReadyFunc func()

// ComponentWorker is one worker routine of a component. It must call ready
// once initialized and return when the context is cancelled.
type ComponentWorker func(ctx irrecoverable.SignalerContext, ready ReadyFunc)

// ComponentManagerBuilder collects the workers of a component.
type ComponentManagerBuilder interface {
	// AddWorker adds a worker routine. Not concurrency-safe.
	AddWorker(ComponentWorker) ComponentManagerBuilder

	// Build returns a new ComponentManager running the added workers.
	Build() *ComponentManager
}

type builder struct {
	workers []ComponentWorker
}

// NewComponentManagerBuilder returns a new builder.
func NewComponentManagerBuilder() ComponentManagerBuilder {
	return &builder{}
}

func (b *builder) AddWorker(worker ComponentWorker) ComponentManagerBuilder {
	b.workers = append(b.workers, worker)
	return b
}

func (b *builder) Build() *ComponentManager {
	return &ComponentManager{
		started:        atomic.NewBool(false),
		ready:          make(chan struct{}),
		done:           make(chan struct{}),
		shutdownSignal: make(chan struct{}),
		workers:        b.workers,
	}
}

var _ Component = (*ComponentManager)(nil)

// ComponentManager implements the Component interface on behalf of a set of
// worker routines. Ready closes when all workers have signalled readiness;
// Done closes after all workers have returned. An error thrown by any worker
// cancels the remaining workers and is escalated to the context passed to
// Start.
type ComponentManager struct {
	started        *atomic.Bool
	ready          chan struct{}
	done           chan struct{}
	shutdownSignal chan struct{}

	workers []ComponentWorker
}

// Start launches all worker routines. It must only be called once and panics
// otherwise.
func (c *ComponentManager) Start(parent irrecoverable.SignalerContext) {
	if !c.started.CAS(false, true) {
		panic(module.ErrMultipleStartup)
	}

	ctx, cancel := context.WithCancel(parent)
	signalerCtx, errChan := irrecoverable.WithSignaler(ctx)

	go func() {
		<-ctx.Done()
		close(c.shutdownSignal)
	}()

	var workersReady sync.WaitGroup
	var workersDone sync.WaitGroup
	workersReady.Add(len(c.workers))
	workersDone.Add(len(c.workers))

	for _, worker := range c.workers {
		worker := worker
		go func() {
			defer workersDone.Done()
			var readyOnce sync.Once
			worker(signalerCtx, func() {
				readyOnce.Do(workersReady.Done)
			})
		}()
	}

	go func() {
		workersReady.Wait()
		close(c.ready)
	}()

	workersFinished := make(chan struct{})
	go func() {
		workersDone.Wait()
		close(workersFinished)
	}()

	go func() {
		// close done only after a thrown error has been escalated, so the
		// parent never observes completion before the failure
		defer close(c.done)
		select {
		case err := <-errChan:
			cancel()
			<-workersFinished
			parent.Throw(err)
		case <-workersFinished:
			cancel()
		}
	}()
}

// Ready returns a channel that closes once all workers are ready. If a
// worker returns before signalling readiness the channel never closes.
func (c *ComponentManager) Ready() <-chan struct{} {
	return c.ready
}

// Done returns a channel that closes once all workers have shut down.
func (c *ComponentManager) Done() <-chan struct{} {
	return c.done
}

// ShutdownSignal returns a channel that closes when shutdown commences,
// either because the context was cancelled or a worker threw an error.
func (c *ComponentManager) ShutdownSignal() <-chan struct{} {
	return c.shutdownSignal
}
