package util

import (
	"context"
	"sync"

	"github.com/arborchain/arbor-go/module"
)

// AllReady calls Ready on all input components and returns a channel that is
// closed when all of them are ready.
func AllReady(components ...module.ReadyDoneAware) <-chan struct{} {
	channels := make([]<-chan struct{}, len(components))
	for i, c := range components {
		channels[i] = c.Ready()
	}
	return AllClosed(channels...)
}

// AllDone calls Done on all input components and returns a channel that is
// closed when all of them have shut down.
func AllDone(components ...module.ReadyDoneAware) <-chan struct{} {
	channels := make([]<-chan struct{}, len(components))
	for i, c := range components {
		channels[i] = c.Done()
	}
	return AllClosed(channels...)
}

// AllClosed returns a channel that is closed when all input channels are closed.
func AllClosed(channels ...<-chan struct{}) <-chan struct{} {
	done := make(chan struct{})
	var wg sync.WaitGroup
	for _, ch := range channels {
		wg.Add(1)
		go func(ch <-chan struct{}) {
			defer wg.Done()
			<-ch
		}(ch)
	}
	go func() {
		wg.Wait()
		close(done)
	}()
	return done
}

// WaitClosed waits for either the channel to close or the context to be
// cancelled, whichever happens first. Returns nil if the channel closed
// first, even when both are observable at once.
func WaitClosed(ctx context.Context, ch <-chan struct{}) error {
	select {
	case <-ctx.Done():
		select {
		case <-ch:
			return nil
		default:
		}
		return ctx.Err()
	case <-ch:
		return nil
	}
}

// WaitError waits for either an error or the context to be cancelled. A
// pending error wins over simultaneous cancellation, so an irrecoverable
// failure is never swallowed by a racing shutdown.
func WaitError(ctx context.Context, errChan <-chan error) error {
	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		select {
		case err := <-errChan:
			return err
		default:
		}
		return nil
	}
}
