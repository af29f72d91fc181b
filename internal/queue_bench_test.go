package internal

import (
	"testing"

	ring "github.com/randomizedcoder/go-lock-free-ring"
	"go.uber.org/atomic"
)

// Single producer, single consumer. The queue is unbounded, so the producer
// never waits on the consumer.

func BenchmarkDisposableQueue_SPSC(b *testing.B) {
	q := NewDisposableQueue[int]()
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		for {
			if _, err := q.Pop(); err != nil {
				return
			}
		}
	}()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		q.Push(i)
	}
	b.StopTimer()
	q.Dispose()
	<-consumerDone
}

func BenchmarkChannel_SPSC(b *testing.B) {
	ch := make(chan int, 1024)
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		for range ch {
		}
	}()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ch <- i
	}
	b.StopTimer()
	close(ch)
	<-consumerDone
}

// Many producers, one consumer.

func BenchmarkDisposableQueue_MPSC(b *testing.B) {
	q := NewDisposableQueue[int]()
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		for {
			if _, err := q.Pop(); err != nil {
				return
			}
		}
	}()

	b.SetParallelism(4)
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			q.Push(i)
			i++
		}
	})
	b.StopTimer()
	q.Dispose()
	<-consumerDone
}

func BenchmarkShardedRing_MPSC(b *testing.B) {
	r, _ := ring.NewShardedRing(1024, 4)
	done := make(chan struct{})
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		for {
			select {
			case <-done:
				return
			default:
				r.TryRead()
			}
		}
	}()

	producerID := atomic.NewUint64(0)
	b.SetParallelism(4)
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		pid := producerID.Inc() - 1
		i := 0
		for pb.Next() {
			for !r.Write(pid, i) {
			}
			i++
		}
	})
	b.StopTimer()
	close(done)
	<-consumerDone
}

// Many producers, many consumers.

func BenchmarkDisposableQueue_MPMC(b *testing.B) {
	q := NewDisposableQueue[int]()
	const consumers = 4
	consumerDone := make(chan struct{}, consumers)
	for c := 0; c < consumers; c++ {
		go func() {
			defer func() { consumerDone <- struct{}{} }()
			for {
				if _, err := q.Pop(); err != nil {
					return
				}
			}
		}()
	}

	b.SetParallelism(4)
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			q.Push(i)
			i++
		}
	})
	b.StopTimer()
	q.Dispose()
	for c := 0; c < consumers; c++ {
		<-consumerDone
	}
}
