package internal

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/atomic"
)

var (
	// ErrDisposed is returned by every queue operation observed after Dispose.
	ErrDisposed = errors.New("queue: disposed")
	// ErrEmpty is returned by TryPop when nothing is buffered.
	ErrEmpty = errors.New("queue: empty")
)

// Queue is the capability set handed to producers and consumers. Any call may
// race with Dispose on another goroutine, so callers must handle ErrDisposed
// at every call site.
type Queue[T any] interface {
	Push(item T) error
	Pop() (T, error)
	Dispose()
}

var _ Queue[int] = (*DisposableQueue[int])(nil)

// DisposableQueue is an unbounded FIFO whose Pop blocks until an item is
// available. Dispose retires the queue permanently and wakes every blocked
// Pop, which then fails with ErrDisposed.
//
// Which of several blocked consumers receives a newly pushed item is
// unspecified.
type DisposableQueue[T any] struct {
	queue []T
	mu    *sync.Mutex

	// available holds at most one token. A token means the buffer may be
	// non-empty; it is always present while the buffer is non-empty.
	available chan struct{}
	// disposed is closed exactly once, by the Dispose call that flips isDisposed.
	disposed   chan struct{}
	isDisposed atomic.Bool
}

func NewDisposableQueue[T any]() *DisposableQueue[T] {
	return &DisposableQueue[T]{
		queue:     make([]T, 0),
		mu:        &sync.Mutex{},
		available: make(chan struct{}, 1),
		disposed:  make(chan struct{}),
	}
}

// Push appends item to the tail. It never blocks.
func (q *DisposableQueue[T]) Push(item T) error {
	if q.isDisposed.Load() {
		return ErrDisposed
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.queue = append(q.queue, item)
	q.signal()
	return nil
}

// Pop removes and returns the head item, blocking while the queue is empty.
// It fails with ErrDisposed if the queue is disposed before or while waiting.
func (q *DisposableQueue[T]) Pop() (T, error) {
	return q.pop(context.Background())
}

// PopContext is Pop with an additional way out: it returns ctx.Err() if ctx
// is done before an item arrives. Disposal is still reported as ErrDisposed.
func (q *DisposableQueue[T]) PopContext(ctx context.Context) (T, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	return q.pop(ctx)
}

func (q *DisposableQueue[T]) pop(ctx context.Context) (T, error) {
	var zero T
	if q.isDisposed.Load() {
		return zero, ErrDisposed
	}
	for {
		select {
		case <-q.available:
		case <-q.disposed:
		case <-ctx.Done():
			if q.isDisposed.Load() {
				return zero, ErrDisposed
			}
			return zero, ctx.Err()
		}

		if q.isDisposed.Load() {
			return zero, ErrDisposed
		}

		if item, ok := q.dequeue(); ok {
			return item, nil
		}
		// Lost the race for the item the token announced. The token has
		// been consumed, so the signal is clear again; wait for the next one.
	}
}

// TryPop removes and returns the head item without blocking.
func (q *DisposableQueue[T]) TryPop() (T, error) {
	var zero T
	if q.isDisposed.Load() {
		return zero, ErrDisposed
	}
	if item, ok := q.dequeue(); ok {
		return item, nil
	}
	return zero, ErrEmpty
}

func (q *DisposableQueue[T]) dequeue() (T, bool) {
	var zero T
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.queue) == 0 {
		return zero, false
	}
	item := q.queue[0]
	// the popped item now belongs to the caller
	q.queue[0] = zero
	q.queue = q.queue[1:]
	if len(q.queue) > 0 {
		q.signal()
	}
	return item, true
}

// signal sets the availability token. Must be called with mu held.
func (q *DisposableQueue[T]) signal() {
	select {
	case q.available <- struct{}{}:
	default:
	}
}

// Dispose retires the queue. Only the first call has an effect; it wakes
// every goroutine blocked in Pop. Dispose never blocks and never fails.
func (q *DisposableQueue[T]) Dispose() {
	if !q.isDisposed.CompareAndSwap(false, true) {
		return
	}
	close(q.disposed)
}

// Close disposes the queue so it can be used where an io.Closer is expected.
func (q *DisposableQueue[T]) Close() error {
	q.Dispose()
	return nil
}

// Done returns a channel that is closed once the queue is disposed.
func (q *DisposableQueue[T]) Done() <-chan struct{} {
	return q.disposed
}

func (q *DisposableQueue[T]) IsDisposed() bool {
	return q.isDisposed.Load()
}

// Len returns the number of buffered items. After disposal it reports the
// items that were never delivered.
func (q *DisposableQueue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queue)
}
