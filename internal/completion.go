package internal

import (
	"errors"
	"fmt"
	"sync"
)

var ErrDuplicateSequence = errors.New("completion queue: duplicate sequence number")

// OrderPreservingCompletionQueue accepts results tagged with a sequence number
// in any order and emits them on the completion channel in sequence order,
// starting at 0.
type OrderPreservingCompletionQueue[T any] struct {
	mu      sync.Mutex
	next    int
	pending map[int]T

	ready *DisposableQueue[T]
	out   chan T
}

func NewOrderPreservingCompletionQueue[T any]() *OrderPreservingCompletionQueue[T] {
	q := &OrderPreservingCompletionQueue[T]{
		pending: make(map[int]T),
		ready:   NewDisposableQueue[T](),
		out:     make(chan T),
	}
	go q.forward()
	return q
}

func (q *OrderPreservingCompletionQueue[T]) forward() {
	defer close(q.out)
	for {
		item, err := q.ready.Pop()
		if err != nil {
			return
		}
		select {
		case q.out <- item:
		case <-q.ready.Done():
			return
		}
	}
}

// Push records the result for seq. Results become visible on the completion
// channel once every lower sequence number has been pushed.
func (q *OrderPreservingCompletionQueue[T]) Push(seq int, item T) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ready.IsDisposed() {
		return ErrDisposed
	}
	if _, exists := q.pending[seq]; exists || seq < q.next {
		return fmt.Errorf("%w: %d", ErrDuplicateSequence, seq)
	}
	q.pending[seq] = item
	for {
		head, ok := q.pending[q.next]
		if !ok {
			return nil
		}
		if err := q.ready.Push(head); err != nil {
			return err
		}
		delete(q.pending, q.next)
		q.next++
	}
}

// GetCompletionChan returns the channel results are emitted on. It is closed
// after Close.
func (q *OrderPreservingCompletionQueue[T]) GetCompletionChan() <-chan T {
	return q.out
}

// Pending returns the number of results held back waiting for a lower
// sequence number.
func (q *OrderPreservingCompletionQueue[T]) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Close stops the queue. Results not yet received from the completion channel
// are dropped.
func (q *OrderPreservingCompletionQueue[T]) Close() {
	q.ready.Dispose()
}
