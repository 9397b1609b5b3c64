package ringbuffer

import (
	"sync"
)

// Window keeps the most recent samples, overwriting the oldest once full.
// It is guarded by a mutex and meant for sampling, not for hand-off.
type Window[T any] struct {
	size  int
	off   int
	count int
	seen  uint64
	data  []T
	mu    sync.Mutex
}

func NewWindow[T any](size int) *Window[T] {
	if size <= 0 {
		size = 1
	}
	return &Window[T]{
		size: size,
		data: make([]T, size),
	}
}

func (w *Window[T]) Add(d T) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.data[w.off] = d
	w.off = (w.off + 1) % w.size
	if w.count < w.size {
		w.count++
	}
	w.seen++
}

// Snapshot appends the retained samples to dst, oldest first.
func (w *Window[T]) Snapshot(dst []T) []T {
	w.mu.Lock()
	defer w.mu.Unlock()
	start := (w.off - w.count + w.size) % w.size
	for i := 0; i < w.count; i++ {
		dst = append(dst, w.data[(start+i)%w.size])
	}
	return dst
}

func (w *Window[T]) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Seen returns how many samples were ever added.
func (w *Window[T]) Seen() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.seen
}

func (w *Window[T]) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.off, w.count = 0, 0
	clear(w.data)
}
