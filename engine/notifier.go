package engine

// Notifier is a concurrency primitive for informing worker routines about
// the arrival of new work. It has the same semantics as a channel of
// capacity 1: notifications coalesce while nobody is listening, so a
// consumer draining an external queue after each notification never misses
// pending work.
// Notifier is safe to pass by value and safe for concurrent use.
type Notifier struct {
	notifier chan struct{}
}

// NewNotifier instantiates a Notifier with no pending notification.
func NewNotifier() Notifier {
	return Notifier{make(chan struct{}, 1)}
}

// Notify sets a flag to indicate that there is pending work. Nonblocking:
// repeated notifications coalesce into one.
func (n Notifier) Notify() {
	select {
	case n.notifier <- struct{}{}:
	default:
	}
}

// Channel returns the channel a notification is delivered on.
func (n Notifier) Channel() <-chan struct{} {
	return n.notifier
}
