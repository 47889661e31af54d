package counters

import (
	"go.uber.org/atomic"
)

// InFlightTracker counts the async phase requests currently outstanding.
// The driver registers a guard when dispatching a request; the phase releases
// it when the request has been processed. Reset uses the tracker as a
// barrier: the pipeline is quiescent once the count reaches zero.
type InFlightTracker struct {
	count *atomic.Int64
}

// NewInFlightTracker returns a tracker with zero outstanding work.
func NewInFlightTracker() *InFlightTracker {
	return &InFlightTracker{count: atomic.NewInt64(0)}
}

// Register accounts for one new in-flight request and returns its guard.
func (t *InFlightTracker) Register() *Guard {
	t.count.Inc()
	return &Guard{
		tracker:  t,
		released: atomic.NewBool(false),
	}
}

// Count returns the number of currently outstanding requests.
func (t *InFlightTracker) Count() int64 {
	return t.count.Load()
}

// Guard represents one outstanding request. Release is idempotent.
type Guard struct {
	tracker  *InFlightTracker
	released *atomic.Bool
}

// Release marks the request as completed. Calling Release more than once has
// no effect.
func (g *Guard) Release() {
	if g == nil {
		return
	}
	if g.released.CAS(false, true) {
		g.tracker.count.Dec()
	}
}
