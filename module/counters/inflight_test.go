package counters

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInFlightTracker_Counting(t *testing.T) {
	tracker := NewInFlightTracker()
	require.Equal(t, int64(0), tracker.Count())

	g1 := tracker.Register()
	g2 := tracker.Register()
	require.Equal(t, int64(2), tracker.Count())

	g1.Release()
	require.Equal(t, int64(1), tracker.Count())

	// release is idempotent
	g1.Release()
	require.Equal(t, int64(1), tracker.Count())

	g2.Release()
	require.Equal(t, int64(0), tracker.Count())
}

func TestInFlightTracker_NilGuardRelease(t *testing.T) {
	var g *Guard
	assert.NotPanics(t, func() { g.Release() })
}

func TestInFlightTracker_ConcurrentRelease(t *testing.T) {
	tracker := NewInFlightTracker()

	guards := make([]*Guard, 10)
	for i := range guards {
		guards[i] = tracker.Register()
	}
	require.Equal(t, int64(10), tracker.Count())

	var wg sync.WaitGroup
	for _, g := range guards {
		g := g
		wg.Add(1)
		go func() {
			defer wg.Done()
			g.Release()
		}()
	}
	wg.Wait()
	require.Equal(t, int64(0), tracker.Count())
}
