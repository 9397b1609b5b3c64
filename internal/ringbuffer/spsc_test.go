package ringbuffer

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewInvalidCapacity(t *testing.T) {
	for _, capacity := range []int{0, -1, -1024} {
		t.Run(fmt.Sprintf("capacity_%d", capacity), func(t *testing.T) {
			r, err := New[int](capacity)
			assert.ErrorIs(t, err, ErrInvalidCapacity)
			assert.Nil(t, r)
		})
	}
}

func TestNewCapacityOne(t *testing.T) {
	r, err := New[int](1)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Cap())

	assert.True(t, r.TryPush(7))
	assert.False(t, r.TryPush(8))
	assert.Equal(t, 1, r.Len())

	v, ok := r.TryPop()
	assert.True(t, ok)
	assert.Equal(t, 7, v)

	_, ok = r.TryPop()
	assert.False(t, ok)
	assert.True(t, r.TryPush(8))
}

func TestFreshRingIsEmpty(t *testing.T) {
	r, err := New[uint64](16)
	require.NoError(t, err)

	v, ok := r.TryPop()
	assert.False(t, ok)
	assert.Zero(t, v)
	assert.True(t, r.Empty())
	assert.False(t, r.Full())
	assert.Equal(t, 0, r.Len())
}

func TestFillToCapacity(t *testing.T) {
	for _, capacity := range []int{1, 2, 3, 7, 64, 1000} {
		t.Run(fmt.Sprintf("capacity_%d", capacity), func(t *testing.T) {
			r, err := New[int](capacity)
			require.NoError(t, err)

			for i := 0; i < capacity; i++ {
				require.True(t, r.TryPush(i), "push %d", i)
			}
			assert.True(t, r.Full())
			assert.Equal(t, capacity, r.Len())
			assert.False(t, r.TryPush(capacity))
			assert.False(t, r.TryPush(capacity))

			v, ok := r.TryPop()
			require.True(t, ok)
			assert.Equal(t, 0, v)
			assert.True(t, r.TryPush(capacity))
			assert.False(t, r.TryPush(capacity+1))
		})
	}
}

func TestCapacityThreeScenario(t *testing.T) {
	r, err := New[int](3)
	require.NoError(t, err)

	assert.True(t, r.TryPush(1))
	assert.True(t, r.TryPush(2))
	assert.True(t, r.TryPush(3))
	assert.False(t, r.TryPush(4))

	v, ok := r.TryPop()
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	assert.True(t, r.TryPush(4))

	for _, want := range []int{2, 3, 4} {
		v, ok := r.TryPop()
		assert.True(t, ok)
		assert.Equal(t, want, v)
	}

	_, ok = r.TryPop()
	assert.False(t, ok)
}

func TestWrapAroundKeepsOrder(t *testing.T) {
	r, err := New[int](5)
	require.NoError(t, err)

	next, want := 0, 0
	for round := 0; round < 50; round++ {
		n := 1 + round%5
		for i := 0; i < n; i++ {
			require.True(t, r.TryPush(next))
			next++
		}
		for i := 0; i < n; i++ {
			v, ok := r.TryPop()
			require.True(t, ok)
			require.Equal(t, want, v)
			want++
		}
	}
	assert.True(t, r.Empty())
}

// Random single-goroutine interleavings checked against a slice model.
func TestMatchesModel(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for _, capacity := range []int{1, 2, 3, 10, 33} {
		r, err := New[int](capacity)
		require.NoError(t, err)

		var model []int
		next := 0
		for step := 0; step < 10_000; step++ {
			if rng.IntN(2) == 0 {
				ok := r.TryPush(next)
				require.Equal(t, len(model) < capacity, ok)
				if ok {
					model = append(model, next)
				}
				next++
			} else {
				v, ok := r.TryPop()
				require.Equal(t, len(model) > 0, ok)
				if ok {
					require.Equal(t, model[0], v)
					model = model[1:]
				}
			}
			require.LessOrEqual(t, r.Len(), capacity)
			require.Equal(t, len(model), r.Len())
		}
	}
}

func TestConcurrentSequence(t *testing.T) {
	const count = 500_000

	r, err := New[int64](1024)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := int64(1); i <= count; i++ {
			r.Push(i)
		}
	}()

	var violations, received int64
	var maxLen int
	go func() {
		defer wg.Done()
		for received < count {
			if l := r.Len(); l > maxLen {
				maxLen = l
			}
			v := r.Pop()
			received++
			if v != received {
				violations++
			}
		}
	}()
	wg.Wait()

	assert.Equal(t, int64(count), received)
	assert.Zero(t, violations)
	assert.LessOrEqual(t, maxLen, 1024)
	assert.True(t, r.Empty())
}

func TestConcurrentTryOps(t *testing.T) {
	const count = 100_000

	r, err := New[uint32](3)
	require.NoError(t, err)

	done := make(chan []uint32)
	go func() {
		got := make([]uint32, 0, count)
		for len(got) < count {
			if v, ok := r.TryPop(); ok {
				got = append(got, v)
			}
		}
		done <- got
	}()

	for i := uint32(0); i < count; {
		if r.TryPush(i) {
			i++
		}
	}

	got := <-done
	for i, v := range got {
		if uint32(i) != v {
			t.Fatalf("position %d: got %d", i, v)
		}
	}
}

func BenchmarkPushPop(b *testing.B) {
	r, _ := New[int64](1024)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		r.TryPush(int64(i))
		r.TryPop()
	}
}

func BenchmarkHandOff(b *testing.B) {
	r, _ := New[int64](1024)
	done := make(chan struct{})
	go func() {
		for i := 0; i < b.N; i++ {
			r.Pop()
		}
		close(done)
	}()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		r.Push(int64(i))
	}
	<-done
}
