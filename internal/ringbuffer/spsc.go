package ringbuffer

import (
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
)

var ErrInvalidCapacity = errors.New("ringbuffer: capacity must be greater than 0")

const cacheLine = 64

// SPSC is a bounded lock-free ring for exactly one producer goroutine and
// exactly one consumer goroutine. The producer owns head, the consumer owns
// tail. The backing slice has capacity+1 slots so that head == tail means
// empty and head+1 == tail (mod size) means full.
//
// sync/atomic operations are sequentially consistent, which is stronger than
// the acquire/release pairing the index protocol needs.
type SPSC[T any] struct {
	head atomic.Uint64
	_    [cacheLine - 8]byte
	tail atomic.Uint64
	_    [cacheLine - 8]byte

	size uint64
	data []T
}

// New allocates a ring holding at most capacity live elements.
func New[T any](capacity int) (*SPSC[T], error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidCapacity, capacity)
	}
	size := uint64(capacity) + 1
	return &SPSC[T]{
		size: size,
		data: make([]T, size),
	}, nil
}

func (r *SPSC[T]) next(i uint64) uint64 {
	i++
	if i == r.size {
		return 0
	}
	return i
}

// TryPush stores item and reports whether there was room for it.
// Producer only.
func (r *SPSC[T]) TryPush(item T) bool {
	head := r.head.Load()
	next := r.next(head)
	if next == r.tail.Load() {
		return false
	}
	r.data[head] = item
	// publishes data[head] to the consumer
	r.head.Store(next)
	return true
}

// Push spins on TryPush, yielding the processor between attempts.
// It never gives up. Producer only.
func (r *SPSC[T]) Push(item T) {
	for !r.TryPush(item) {
		runtime.Gosched()
	}
}

// TryPop removes the oldest item. ok is false when the ring is empty.
// Consumer only.
func (r *SPSC[T]) TryPop() (item T, ok bool) {
	tail := r.tail.Load()
	if tail == r.head.Load() {
		return item, false
	}
	item = r.data[tail]
	// hands the slot back to the producer
	r.tail.Store(r.next(tail))
	return item, true
}

// Pop spins on TryPop, yielding the processor between attempts.
// Consumer only.
func (r *SPSC[T]) Pop() T {
	for {
		if item, ok := r.TryPop(); ok {
			return item
		}
		runtime.Gosched()
	}
}

// Cap returns the number of usable slots.
func (r *SPSC[T]) Cap() int {
	return int(r.size - 1)
}

// Len returns the number of live elements. It is exact when called by the
// producer or the consumer between their own operations, and a snapshot
// from any other goroutine.
func (r *SPSC[T]) Len() int {
	head := r.head.Load()
	tail := r.tail.Load()
	return int((head + r.size - tail) % r.size)
}

func (r *SPSC[T]) Empty() bool {
	return r.head.Load() == r.tail.Load()
}

func (r *SPSC[T]) Full() bool {
	return r.next(r.head.Load()) == r.tail.Load()
}
