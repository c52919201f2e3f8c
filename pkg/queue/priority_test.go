package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriorityQueue_OrderByPriorityThenFIFO(t *testing.T) {
	q := NewPriorityQueue[string](0)
	require.NoError(t, q.Push(1, "low-1"))
	require.NoError(t, q.Push(4, "critical-1"))
	require.NoError(t, q.Push(2, "normal-1"))
	require.NoError(t, q.Push(4, "critical-2"))
	require.NoError(t, q.Push(3, "high-1"))
	require.NoError(t, q.Push(1, "low-2"))

	assert.Equal(t, []string{"critical-1", "critical-2", "high-1", "normal-1", "low-1", "low-2"}, q.Items())

	got := q.PopN(3)
	assert.Equal(t, []string{"critical-1", "critical-2", "high-1"}, got)
	assert.Equal(t, 3, q.Len())

	v, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, "normal-1", v)
}

func TestPriorityQueue_Capacity(t *testing.T) {
	q := NewPriorityQueue[int](2)
	require.NoError(t, q.Push(1, 1))
	require.NoError(t, q.Push(1, 2))
	assert.ErrorIs(t, q.Push(4, 3), ErrQueueFull)
	assert.Equal(t, 2, q.Len())

	require.NoError(t, q.SetCapacity(3))
	assert.NoError(t, q.Push(4, 3))

	assert.ErrorIs(t, q.SetCapacity(2), ErrCapacityBelowLen)
	assert.ErrorIs(t, q.Push(1, 4), ErrQueueFull)
	assert.Equal(t, 3, q.Len())

	_, ok := q.Pop()
	require.True(t, ok)
	require.NoError(t, q.SetCapacity(2))
	assert.ErrorIs(t, q.Push(1, 5), ErrQueueFull)
}

func TestPriorityQueue_ClearAndEmpty(t *testing.T) {
	q := NewPriorityQueue[int](10)
	for i := 0; i < 5; i++ {
		require.NoError(t, q.Push(i%4+1, i))
	}
	assert.Equal(t, 5, q.Clear())
	assert.Equal(t, 0, q.Len())

	_, ok := q.Pop()
	assert.False(t, ok)
	assert.Empty(t, q.PopN(4))
	assert.Nil(t, q.PopN(0))
}
