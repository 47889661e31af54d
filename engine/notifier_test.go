package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestNotifier_PassByValue verifies that passing Notifier by value is safe
func TestNotifier_PassByValue(t *testing.T) {
	t.Parallel()
	notifier := NewNotifier()

	var sent sync.WaitGroup
	sent.Add(1)
	go func(n Notifier) {
		n.Notify()
		sent.Done()
	}(notifier)
	sent.Wait()

	select {
	case <-notifier.Channel(): // expected
	default:
		t.Fail()
	}
}

// TestNotifier_NoNotificationsInitialization verifies that Notifier is
// initialized without notifications
func TestNotifier_NoNotificationsInitialization(t *testing.T) {
	t.Parallel()
	notifier := NewNotifier()
	select {
	case <-notifier.Channel():
		t.Fail()
	default: // expected
	}
}

// TestNotifier_ManyNotifications sends many notifications concurrently and
// verifies that they coalesce into a single pending one.
func TestNotifier_ManyNotifications(t *testing.T) {
	t.Parallel()
	notifier := NewNotifier()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			notifier.Notify()
		}()
	}
	wg.Wait()

	// exactly one notification should be stored
	select {
	case <-notifier.Channel(): // expected
	default:
		t.Fail()
	}
	select {
	case <-notifier.Channel():
		t.Fail()
	default: // expected
	}
}

// TestNotifier_ManyConsumers spawns blocked consumers and verifies a single
// notification wakes exactly one of them.
func TestNotifier_ManyConsumers(t *testing.T) {
	t.Parallel()
	notifier := NewNotifier()

	woken := make(chan struct{}, 5)
	for i := 0; i < 5; i++ {
		go func() {
			<-notifier.Channel()
			woken <- struct{}{}
		}()
	}

	notifier.Notify()
	select {
	case <-woken:
	case <-time.After(time.Second):
		t.Fatal("no consumer woken")
	}
	select {
	case <-woken:
		t.Fatal("more than one consumer woken")
	case <-time.After(50 * time.Millisecond): // expected
	}
	require.Len(t, woken, 0)
}
