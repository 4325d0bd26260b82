package containers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingQueueFIFO(t *testing.T) {
	q := NewRingQueue[int](4)
	assert.True(t, q.IsEmpty())

	_, err := q.Dequeue()
	assert.ErrorIs(t, err, ErrQueueEmpty)

	for i := 0; i < 3; i++ {
		q.Enqueue(i)
	}
	v, err := q.Peek()
	require.NoError(t, err)
	assert.Equal(t, 0, v)

	for i := 0; i < 3; i++ {
		v, err := q.Dequeue()
		require.NoError(t, err)
		assert.Equal(t, i, v)
	}
	assert.True(t, q.IsEmpty())
}

func TestRingQueueGrowsAcrossWrap(t *testing.T) {
	q := NewRingQueue[int](3)
	// move the read index off zero so the grow has to unwrap
	q.Enqueue(-1)
	q.Enqueue(-2)
	_, _ = q.Dequeue()
	_, _ = q.Dequeue()

	for i := 0; i < 10; i++ {
		q.Enqueue(i)
	}
	assert.Equal(t, 10, q.Len())
	assert.GreaterOrEqual(t, q.Cap(), 10)

	for i := 0; i < 10; i++ {
		v, err := q.Dequeue()
		require.NoError(t, err)
		assert.Equal(t, i, v)
	}
	assert.Equal(t, 0, q.Len())
}
