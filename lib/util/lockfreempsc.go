// Package util provides a lock-free Multi-Producer Single-Consumer (MPSC) queue.
//
// The queue is used as the submission queue of the RPC engine: any number of
// caller goroutines push outbound requests, the outbound pump is the only
// consumer.
//
// Features and Guarantees:
//
//   - Lock-Free: producers only use atomic operations, a push never blocks
//   - Unbounded Size: the queue grows as needed, limited only by available memory
//   - Thread-Safe writes: any number of goroutines may Push() concurrently
//   - Single Consumer: exactly one goroutine reads from Recv()
//   - Drain on Close: items pushed before Close() are still delivered, then
//     the Recv() channel is closed
//   - No Strict FIFO Guarantee across producers: under concurrent Push()
//     operations the order is decided by which producer links its node first.
//     Items of a single producer keep their order.
package util

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// node represents a single element in the queue
type node[T any] struct {
	value T
	next  atomic.Pointer[node[T]]
}

// LockFreeMPSC is a lock-free multi-producer single-consumer queue
// Implementation uses a linked list of nodes with atomic operations
// for concurrent push operations without locks
type LockFreeMPSC[T any] struct {
	head   atomic.Pointer[node[T]]
	tail   atomic.Pointer[node[T]]
	out    chan T
	closed atomic.Bool
	length atomic.Int64

	// Condition variable for efficient waiting of the internal consumer
	mu   sync.Mutex
	cond *sync.Cond
}

// NewLockFreeMPSC creates a new lock-free multi-producer single-consumer queue
func NewLockFreeMPSC[T any]() *LockFreeMPSC[T] {
	// sentinel node (dummy node at the beginning)
	sentinel := &node[T]{}

	q := &LockFreeMPSC[T]{
		out: make(chan T),
	}
	q.cond = sync.NewCond(&q.mu)

	q.head.Store(sentinel)
	q.tail.Store(sentinel)

	go q.consume()

	return q
}

// Push adds an item to the queue.
// Returns true if the item was added, or false if the queue is closed.
// A Push racing with Close may be dropped, callers that need every accepted
// item delivered must serialize Close against Push.
func (q *LockFreeMPSC[T]) Push(value T) bool {
	if q.closed.Load() {
		return false
	}

	newNode := &node[T]{value: value}
	var backoff uint8 = 0

	for {
		tailNode := q.tail.Load()
		next := tailNode.next.Load()

		if next == nil {
			if tailNode.next.CompareAndSwap(nil, newNode) {
				// CAS on tail may fail if another producer already helped, that is fine
				q.tail.CompareAndSwap(tailNode, newNode)
				q.length.Add(1)

				// take the lock so the signal cannot slip between the consumers check and wait
				q.mu.Lock()
				q.cond.Signal()
				q.mu.Unlock()
				return true
			}
		} else {
			// help a producer that linked its node but has not moved the tail yet
			q.tail.CompareAndSwap(tailNode, next)
		}

		/*
		 Exponential backoff under contention:
		  - few retries: spin with Gosched to avoid scheduling overhead
		  - many retries: yield once per round so other producers can finish
		*/
		if backoff < 10 {
			backoff++
			for i := 0; i < 1<<backoff; i++ {
				runtime.Gosched()
			}
		}
		runtime.Gosched()
	}
}

// consume moves items from the linked list to the output channel
func (q *LockFreeMPSC[T]) consume() {
	defer close(q.out)

	var zero T
	for {
		hasItems := false

		for {
			head := q.head.Load()
			next := head.next.Load()
			if next == nil {
				break
			}
			hasItems = true

			value := next.value
			q.head.Store(next)
			q.out <- value
			q.length.Add(-1)

			// the node is now the sentinel, drop the reference for the gc
			next.value = zero
		}

		if !hasItems && q.closed.Load() {
			return
		}

		if !hasItems {
			q.mu.Lock()
			head := q.head.Load()
			if head.next.Load() == nil && !q.closed.Load() {
				q.cond.Wait()
			}
			q.mu.Unlock()
		}
	}
}

// Recv returns the receive-only channel of the single consumer.
// The channel is closed after Close() once all pending items were delivered.
func (q *LockFreeMPSC[T]) Recv() <-chan T {
	return q.out
}

// Close prevents further pushes. Items already in the queue will still be delivered.
func (q *LockFreeMPSC[T]) Close() {
	q.closed.Store(true)

	q.mu.Lock()
	q.cond.Signal()
	q.mu.Unlock()
}

// IsClosed returns true if the queue is closed.
func (q *LockFreeMPSC[T]) IsClosed() bool {
	return q.closed.Load()
}

// Len returns the number of items that were pushed but not yet received
func (q *LockFreeMPSC[T]) Len() int {
	return int(q.length.Load())
}
