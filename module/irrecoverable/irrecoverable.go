// Package irrecoverable provides the error escalation path for errors a
// component cannot recover from: instead of panicking, workers throw the
// error through their context, and whoever started the component decides
// whether to restart or shut down.
package irrecoverable

import (
	"context"
	"fmt"
	"runtime"

	"go.uber.org/atomic"
)

// Signaler transports irrecoverable errors out of a component. Only the
// first thrown error is kept; all goroutines of a component share one
// signaler, and the component is torn down after the first throw anyway.
type Signaler struct {
	errChan   chan error
	errThrown *atomic.Bool
}

// NewSignaler returns a signaler and the channel the first thrown error is
// delivered on.
func NewSignaler() (*Signaler, <-chan error) {
	errChan := make(chan error, 1)
	return &Signaler{
		errChan:   errChan,
		errThrown: atomic.NewBool(false),
	}, errChan
}

// Throw reports an irrecoverable error and terminates the calling goroutine.
// It never returns.
func (s *Signaler) Throw(err error) {
	defer runtime.Goexit()
	if s.errThrown.CAS(false, true) {
		s.errChan <- err
		close(s.errChan)
	}
}

// SignalerContext is a drop-in replacement for context.Context that
// additionally carries the throw path for irrecoverable errors.
type SignalerContext interface {
	context.Context
	Throw(err error) // delegates to the signaler, never returns
	sealed()         // constrains implementations to this package
}

type signalerCtx struct {
	context.Context
	*Signaler
}

func (sc signalerCtx) sealed() {}

// WithSignaler derives a SignalerContext from the given parent and returns
// the channel on which the first thrown error is delivered.
func WithSignaler(parent context.Context) (SignalerContext, <-chan error) {
	sig, errChan := NewSignaler()
	return signalerCtx{parent, sig}, errChan
}

// Throw escalates an irrecoverable error through ctx if it supports it.
// It is a drop-in replacement for panic in code that only holds a plain
// context.Context. If the context has no signaler attached, there is no
// sane fallback: we panic with a descriptive message.
func Throw(ctx context.Context, err error) {
	if sc, ok := ctx.(SignalerContext); ok {
		sc.Throw(err)
	}
	panic(fmt.Sprintf("irrecoverable error without signaler context: %v", err))
}
