package fifoqueue

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFifoQueue_Order(t *testing.T) {
	queue, err := NewFifoQueue()
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		require.True(t, queue.Push(i))
	}
	require.Equal(t, 100, queue.Len())

	front, ok := queue.Front()
	require.True(t, ok)
	assert.Equal(t, 0, front)

	for i := 0; i < 100; i++ {
		element, ok := queue.Pop()
		require.True(t, ok)
		assert.Equal(t, i, element)
	}
	_, ok = queue.Pop()
	require.False(t, ok)
	require.Equal(t, 0, queue.Len())
}

func TestFifoQueue_CapacityDropsOverflow(t *testing.T) {
	queue, err := NewFifoQueue(WithCapacity(3))
	require.NoError(t, err)

	require.True(t, queue.Push("a"))
	require.True(t, queue.Push("b"))
	require.True(t, queue.Push("c"))
	require.False(t, queue.Push("overflow"))
	require.Equal(t, 3, queue.Len())

	_, ok := queue.Pop()
	require.True(t, ok)
	require.True(t, queue.Push("d"))
}

func TestFifoQueue_InvalidCapacity(t *testing.T) {
	_, err := NewFifoQueue(WithCapacity(0))
	require.Error(t, err)
	_, err = NewFifoQueue(WithCapacity(-7))
	require.Error(t, err)
}

func TestFifoQueue_ConcurrentPushPop(t *testing.T) {
	queue, err := NewFifoQueue()
	require.NoError(t, err)

	const producers = 4
	const perProducer = 250

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				queue.Push(i)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, producers*perProducer, queue.Len())
	count := 0
	for {
		_, ok := queue.Pop()
		if !ok {
			break
		}
		count++
	}
	require.Equal(t, producers*perProducer, count)
}
