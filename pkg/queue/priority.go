package queue

import (
	"errors"
	"fmt"
	"sync"

	"github.com/tidwall/btree"
)

var (
	// ErrQueueFull is returned by Push when the queue is at capacity.
	ErrQueueFull = errors.New("queue is full")
	// ErrCapacityBelowLen is returned by SetCapacity when more items are queued than the new bound allows.
	ErrCapacityBelowLen = errors.New("capacity below queued items")
)

type entry[T any] struct {
	priority int
	seq      uint64
	value    T
}

// PriorityQueue is a bounded in-memory queue ordered by priority (highest
// first) and then by insertion order.
type PriorityQueue[T any] struct {
	mu       sync.Mutex
	tree     *btree.BTreeG[entry[T]]
	seq      uint64
	capacity int
}

func lessEntry[T any](a, b entry[T]) bool {
	if a.priority != b.priority {
		return a.priority > b.priority
	}
	return a.seq < b.seq
}

func newTree[T any]() *btree.BTreeG[entry[T]] {
	return btree.NewBTreeGOptions(lessEntry[T], btree.Options{NoLocks: true})
}

// NewPriorityQueue creates a queue holding at most capacity items.
// A capacity <= 0 means unbounded.
func NewPriorityQueue[T any](capacity int) *PriorityQueue[T] {
	return &PriorityQueue[T]{
		tree:     newTree[T](),
		capacity: capacity,
	}
}

func (q *PriorityQueue[T]) Push(priority int, value T) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.capacity > 0 && q.tree.Len() >= q.capacity {
		return ErrQueueFull
	}
	q.seq++
	q.tree.Set(entry[T]{priority: priority, seq: q.seq, value: value})
	return nil
}

func (q *PriorityQueue[T]) Pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.tree.PopMin()
	return e.value, ok
}

// PopN removes up to n items in priority order.
func (q *PriorityQueue[T]) PopN(n int) []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	if n <= 0 {
		return nil
	}
	out := make([]T, 0, min(n, q.tree.Len()))
	for len(out) < n {
		e, ok := q.tree.PopMin()
		if !ok {
			break
		}
		out = append(out, e.value)
	}
	return out
}

func (q *PriorityQueue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.tree.Len()
}

// Clear drops every queued item and returns how many were removed.
func (q *PriorityQueue[T]) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := q.tree.Len()
	q.tree = newTree[T]()
	return n
}

// SetCapacity changes the bound. It refuses a bound smaller than the current
// length so the queue never holds more than its capacity.
func (q *PriorityQueue[T]) SetCapacity(capacity int) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if capacity > 0 && q.tree.Len() > capacity {
		return fmt.Errorf("%w: %d queued, capacity %d", ErrCapacityBelowLen, q.tree.Len(), capacity)
	}
	q.capacity = capacity
	return nil
}

// Items returns queued values in dequeue order without removing them.
func (q *PriorityQueue[T]) Items() []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]T, 0, q.tree.Len())
	q.tree.Scan(func(e entry[T]) bool {
		out = append(out, e.value)
		return true
	})
	return out
}
