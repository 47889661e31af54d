package unittest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// RequireCloseBefore fails the test unless the channel closes within the
// given duration.
func RequireCloseBefore(t *testing.T, ch <-chan struct{}, timeout time.Duration, msg string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(timeout):
		require.Fail(t, "channel did not close in time", msg)
	}
}

// RequireNotClosed fails the test if the channel is already closed.
func RequireNotClosed(t *testing.T, ch <-chan struct{}, msg string) {
	t.Helper()
	select {
	case <-ch:
		require.Fail(t, "channel unexpectedly closed", msg)
	default:
	}
}

// RequireReturnsBefore fails the test unless the function returns within the
// given duration.
func RequireReturnsBefore(t *testing.T, f func(), timeout time.Duration, msg string) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		f()
	}()
	RequireCloseBefore(t, done, timeout, msg)
}

// RequireEventually keeps evaluating the condition until it holds or the
// timeout expires.
func RequireEventually(t *testing.T, condition func() bool, timeout time.Duration, msg string) {
	t.Helper()
	require.Eventually(t, condition, timeout, 5*time.Millisecond, msg)
}
