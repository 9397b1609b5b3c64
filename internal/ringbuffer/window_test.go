package ringbuffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWindow(t *testing.T) {
	w := NewWindow[int](3)
	assert.Empty(t, w.Snapshot(nil))

	w.Add(1)
	w.Add(2)
	assert.Equal(t, []int{1, 2}, w.Snapshot(nil))
	assert.Equal(t, 2, w.Count())

	w.Add(3)
	w.Add(4)
	w.Add(5)
	assert.Equal(t, []int{3, 4, 5}, w.Snapshot(nil))
	assert.Equal(t, 3, w.Count())
	assert.Equal(t, uint64(5), w.Seen())

	dst := make([]int, 0, 8)
	dst = append(dst, 0)
	assert.Equal(t, []int{0, 3, 4, 5}, w.Snapshot(dst))

	w.Reset()
	assert.Empty(t, w.Snapshot(nil))
	assert.Equal(t, uint64(5), w.Seen())
}

func TestWindowNonPositiveSize(t *testing.T) {
	w := NewWindow[int](0)
	w.Add(1)
	w.Add(2)
	assert.Equal(t, []int{2}, w.Snapshot(nil))
}
