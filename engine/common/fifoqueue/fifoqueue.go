package fifoqueue

import (
	"fmt"
	"math"
	"sync"

	"github.com/ef-ds/deque"
)

// FifoQueue is a FIFO queue with optional max capacity; elements pushed
// beyond the capacity are silently dropped, which gives the commit pipeline
// natural backpressure on inbound messages. The queue is safe for concurrent
// use; pair it with an engine.Notifier to wake the consumer.
type FifoQueue struct {
	mu          sync.Mutex
	queue       deque.Deque
	maxCapacity int
}

// ConstructorOption customizes a FifoQueue at construction time.
type ConstructorOption func(*FifoQueue) error

// WithCapacity bounds the number of elements the queue holds. Without this
// option the capacity is practically unbounded.
func WithCapacity(capacity int) ConstructorOption {
	return func(q *FifoQueue) error {
		if capacity < 1 {
			return fmt.Errorf("capacity must be positive, got %d", capacity)
		}
		q.maxCapacity = capacity
		return nil
	}
}

// NewFifoQueue constructs an empty queue.
func NewFifoQueue(options ...ConstructorOption) (*FifoQueue, error) {
	q := &FifoQueue{maxCapacity: math.MaxInt}
	for _, opt := range options {
		if err := opt(q); err != nil {
			return nil, fmt.Errorf("could not apply constructor option: %w", err)
		}
	}
	return q, nil
}

// Push appends the element to the tail of the queue. Returns false if the
// queue is at capacity and the element was dropped.
func (q *FifoQueue) Push(element interface{}) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.queue.Len() >= q.maxCapacity {
		return false
	}
	q.queue.PushBack(element)
	return true
}

// Front peeks at the head of the queue without removing it.
func (q *FifoQueue) Front() (interface{}, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.queue.Front()
}

// Pop removes and returns the head of the queue, or (nil, false) if empty.
func (q *FifoQueue) Pop() (interface{}, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.queue.PopFront()
}

// Len returns the current number of elements.
func (q *FifoQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.queue.Len()
}
