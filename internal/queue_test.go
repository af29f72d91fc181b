package internal

import (
	"context"
	"errors"
	"runtime"
	"slices"
	"sync"
	"testing"
	"time"
)

const taskGuardTimeout = 1000 * time.Millisecond

type popResult struct {
	item int
	err  error
}

// startPop runs Pop on its own goroutine. started is closed right before Pop
// is called.
func startPop(q *DisposableQueue[int]) (started <-chan struct{}, done <-chan popResult) {
	s := make(chan struct{})
	d := make(chan popResult, 1)
	go func() {
		close(s)
		item, err := q.Pop()
		d <- popResult{item, err}
	}()
	return s, d
}

func waitStarted(t *testing.T, started <-chan struct{}) {
	t.Helper()
	select {
	case <-started:
	case <-time.After(taskGuardTimeout):
		t.Fatal("pop goroutine did not start")
	}
}

func waitPop(t *testing.T, done <-chan popResult) popResult {
	t.Helper()
	select {
	case res := <-done:
		return res
	case <-time.After(taskGuardTimeout):
		t.Fatal("pop did not finish in time")
	}
	return popResult{}
}

func TestPopAfterPush(t *testing.T) {
	q := NewDisposableQueue[int]()
	if err := q.Push(10); err != nil {
		t.Fatalf("push: %v", err)
	}
	got, err := q.Pop()
	if err != nil || got != 10 {
		t.Fatalf("pop = %v,%v want 10,nil", got, err)
	}
}

func TestFIFOSingleProducer(t *testing.T) {
	q := NewDisposableQueue[string]()
	q.Push("a")
	q.Push("b")
	q.Push("c")
	if q.Len() != 3 {
		t.Fatalf("len = %d want 3", q.Len())
	}
	for _, want := range []string{"a", "b", "c"} {
		got, err := q.Pop()
		if err != nil || got != want {
			t.Fatalf("pop = %q,%v want %q,nil", got, err, want)
		}
	}
	if q.Len() != 0 {
		t.Fatalf("len = %d want 0", q.Len())
	}
}

func TestPopEmptyQueueWaitsForPush(t *testing.T) {
	q := NewDisposableQueue[int]()
	started, done := startPop(q)
	waitStarted(t, started)

	select {
	case res := <-done:
		t.Fatalf("pop returned %v,%v on an empty queue", res.item, res.err)
	case <-time.After(20 * time.Millisecond):
	}

	if err := q.Push(15); err != nil {
		t.Fatalf("push: %v", err)
	}
	res := waitPop(t, done)
	if res.err != nil || res.item != 15 {
		t.Fatalf("pop = %v,%v want 15,nil", res.item, res.err)
	}
}

func TestConcurrentPopsReturnUnordered(t *testing.T) {
	q := NewDisposableQueue[int]()
	startedA, doneA := startPop(q)
	startedB, doneB := startPop(q)
	waitStarted(t, startedA)
	waitStarted(t, startedB)

	expected := []int{10, 20}
	for _, v := range expected {
		q.Push(v)
	}

	a := waitPop(t, doneA)
	b := waitPop(t, doneB)
	if a.err != nil || b.err != nil {
		t.Fatalf("pop errors: %v, %v", a.err, b.err)
	}
	got := []int{a.item, b.item}
	slices.Sort(got)
	if !slices.Equal(got, expected) {
		t.Fatalf("popped %v want %v in any order", got, expected)
	}
}

func TestDisposeWakesHungPop(t *testing.T) {
	q := NewDisposableQueue[int]()
	started, done := startPop(q)
	waitStarted(t, started)
	// give Pop time to block
	time.Sleep(100 * time.Millisecond)

	q.Dispose()

	res := waitPop(t, done)
	if !errors.Is(res.err, ErrDisposed) {
		t.Fatalf("pop err = %v want ErrDisposed", res.err)
	}
}

func TestDisposeWakesEveryWaiter(t *testing.T) {
	q := NewDisposableQueue[int]()
	waiters := runtime.GOMAXPROCS(0) * 4
	var wg sync.WaitGroup
	errs := make(chan error, waiters)
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := q.Pop()
			errs <- err
		}()
	}
	time.Sleep(50 * time.Millisecond)
	q.Dispose()

	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(taskGuardTimeout):
		t.Fatal("not every waiter returned after dispose")
	}
	close(errs)
	for err := range errs {
		if !errors.Is(err, ErrDisposed) {
			t.Fatalf("pop err = %v want ErrDisposed", err)
		}
	}
}

func TestOperationsOnDisposedQueue(t *testing.T) {
	q := NewDisposableQueue[int]()
	q.Push(1)
	q.Dispose()

	if err := q.Push(100); !errors.Is(err, ErrDisposed) {
		t.Fatalf("push err = %v want ErrDisposed", err)
	}
	// items left behind are not handed out after disposal
	if _, err := q.Pop(); !errors.Is(err, ErrDisposed) {
		t.Fatalf("pop err = %v want ErrDisposed", err)
	}
	if _, err := q.TryPop(); !errors.Is(err, ErrDisposed) {
		t.Fatalf("trypop err = %v want ErrDisposed", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := q.PopContext(ctx); !errors.Is(err, ErrDisposed) {
		t.Fatalf("popcontext err = %v want ErrDisposed", err)
	}
	if !q.IsDisposed() {
		t.Fatal("IsDisposed = false after Dispose")
	}
	if q.Len() != 1 {
		t.Fatalf("len = %d want 1 residual item", q.Len())
	}
}

func TestDisposeIsIdempotent(t *testing.T) {
	q := NewDisposableQueue[int]()
	q.Dispose()
	q.Dispose()
	if err := q.Close(); err != nil {
		t.Fatalf("close after dispose: %v", err)
	}
	select {
	case <-q.Done():
	default:
		t.Fatal("Done not closed after Dispose")
	}

	q.Dispose()
	if !q.IsDisposed() {
		t.Fatal("queue no longer disposed after repeated Dispose")
	}
	if err := q.Push(1); !errors.Is(err, ErrDisposed) {
		t.Fatalf("push after repeated dispose: err = %v want ErrDisposed", err)
	}
	started, done := startPop(q)
	waitStarted(t, started)
	if res := waitPop(t, done); !errors.Is(res.err, ErrDisposed) {
		t.Fatalf("pop after repeated dispose: err = %v want ErrDisposed", res.err)
	}
	if _, err := q.TryPop(); !errors.Is(err, ErrDisposed) {
		t.Fatalf("trypop after repeated dispose: err = %v want ErrDisposed", err)
	}
	if q.Len() != 0 {
		t.Fatalf("len = %d want 0", q.Len())
	}
}

func TestConcurrentDispose(t *testing.T) {
	q := NewDisposableQueue[int]()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Dispose()
		}()
	}
	wg.Wait()
	if !q.IsDisposed() {
		t.Fatal("queue not disposed")
	}
}

// Push(10); Pop() == 10; Dispose(); Push(100) and Pop() fail; Dispose() again.
func TestLifecycle(t *testing.T) {
	var q Queue[int] = NewDisposableQueue[int]()
	if err := q.Push(10); err != nil {
		t.Fatalf("push: %v", err)
	}
	if v, err := q.Pop(); err != nil || v != 10 {
		t.Fatalf("pop = %v,%v want 10,nil", v, err)
	}
	q.Dispose()
	if err := q.Push(100); !errors.Is(err, ErrDisposed) {
		t.Fatalf("push err = %v want ErrDisposed", err)
	}
	if _, err := q.Pop(); !errors.Is(err, ErrDisposed) {
		t.Fatalf("pop err = %v want ErrDisposed", err)
	}
	q.Dispose()
}

func TestTryPop(t *testing.T) {
	q := NewDisposableQueue[int]()
	if _, err := q.TryPop(); !errors.Is(err, ErrEmpty) {
		t.Fatalf("trypop err = %v want ErrEmpty", err)
	}
	q.Push(1)
	q.Push(2)
	if v, err := q.TryPop(); err != nil || v != 1 {
		t.Fatalf("trypop = %v,%v want 1,nil", v, err)
	}
	if v, err := q.Pop(); err != nil || v != 2 {
		t.Fatalf("pop = %v,%v want 2,nil", v, err)
	}
}

func TestPopAfterTryPopDrainStillBlocks(t *testing.T) {
	q := NewDisposableQueue[int]()
	q.Push(1)
	// leaves the availability token set with an empty buffer
	if v, err := q.TryPop(); err != nil || v != 1 {
		t.Fatalf("trypop = %v,%v want 1,nil", v, err)
	}

	started, done := startPop(q)
	waitStarted(t, started)
	select {
	case res := <-done:
		t.Fatalf("pop returned %v,%v from a drained queue", res.item, res.err)
	case <-time.After(50 * time.Millisecond):
	}

	q.Push(2)
	res := waitPop(t, done)
	if res.err != nil || res.item != 2 {
		t.Fatalf("pop = %v,%v want 2,nil", res.item, res.err)
	}
}

func TestPopContext(t *testing.T) {
	q := NewDisposableQueue[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := q.PopContext(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("popcontext err = %v want DeadlineExceeded", err)
	}

	// the queue is still usable after a timed out pop
	q.Push(7)
	if v, err := q.PopContext(context.Background()); err != nil || v != 7 {
		t.Fatalf("popcontext = %v,%v want 7,nil", v, err)
	}
}

func TestPopContextDisposedWhileWaiting(t *testing.T) {
	q := NewDisposableQueue[int]()
	done := make(chan error, 1)
	go func() {
		_, err := q.PopContext(context.Background())
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	q.Dispose()
	select {
	case err := <-done:
		if !errors.Is(err, ErrDisposed) {
			t.Fatalf("popcontext err = %v want ErrDisposed", err)
		}
	case <-time.After(taskGuardTimeout):
		t.Fatal("popcontext not woken by dispose")
	}
}

func TestManyProducersManyConsumers(t *testing.T) {
	q := NewDisposableQueue[int]()
	producers := 8
	perProducer := 2000
	consumers := runtime.GOMAXPROCS(0) * 2
	total := producers * perProducer

	var mu sync.Mutex
	seen := make(map[int]int, total)
	var popped sync.WaitGroup
	popped.Add(total)

	var consumersDone sync.WaitGroup
	for i := 0; i < consumers; i++ {
		consumersDone.Add(1)
		go func() {
			defer consumersDone.Done()
			for {
				v, err := q.Pop()
				if err != nil {
					return
				}
				mu.Lock()
				seen[v]++
				mu.Unlock()
				popped.Done()
			}
		}()
	}
	for p := 0; p < producers; p++ {
		go func() {
			for i := 0; i < perProducer; i++ {
				if err := q.Push(p*perProducer + i); err != nil {
					t.Errorf("push: %v", err)
					return
				}
			}
		}()
	}

	popped.Wait()
	q.Dispose()
	consumersDone.Wait()

	if len(seen) != total {
		t.Fatalf("received %d distinct items want %d", len(seen), total)
	}
	for v, n := range seen {
		if n != 1 {
			t.Fatalf("item %d received %d times", v, n)
		}
	}
}

func TestPopReleasesItemReference(t *testing.T) {
	q := NewDisposableQueue[*int]()
	v := 1
	q.Push(&v)
	q.Push(nil)
	q.mu.Lock()
	backing := q.queue
	q.mu.Unlock()

	if got, err := q.Pop(); err != nil || got != &v {
		t.Fatalf("pop = %v,%v want &v,nil", got, err)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if backing[0] != nil {
		t.Fatal("popped item still referenced by the queue buffer")
	}
}
