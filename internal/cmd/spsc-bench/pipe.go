package main

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/smallnest/ringbuffer"

	spsc "spsc-ring/internal/ringbuffer"
)

// Pipe is the hand-off under test. Send is called by the producer task only,
// Recv and TryRecv by the consumer task only. Both report how many failed
// attempts they spent before succeeding.
type Pipe interface {
	Send(ctx context.Context, v int64) (retries int, err error)
	Recv(ctx context.Context) (v int64, retries int, err error)
	TryRecv() (int64, bool)
	Len() int
	Cap() int
}

func createPipe(impl string, capacity int, waiter spsc.Waiter) (Pipe, error) {
	switch impl {
	case "spsc":
		return NewRingPipe(capacity, waiter)
	case "chan":
		return NewChanPipe(capacity, waiter)
	case "smallnest":
		return NewSmallnestPipe(capacity, waiter)
	default:
		return nil, fmt.Errorf("unsupported pipe implementation: %s", impl)
	}
}

type RingPipe struct {
	ring   *spsc.SPSC[int64]
	waiter spsc.Waiter
}

func NewRingPipe(capacity int, waiter spsc.Waiter) (*RingPipe, error) {
	ring, err := spsc.New[int64](capacity)
	if err != nil {
		return nil, fmt.Errorf("error creating ring: %w", err)
	}
	return &RingPipe{ring: ring, waiter: waiter}, nil
}

func (p *RingPipe) Send(ctx context.Context, v int64) (int, error) {
	return spsc.PushWait(ctx, p.ring, v, p.waiter)
}

func (p *RingPipe) Recv(ctx context.Context) (int64, int, error) {
	return spsc.PopWait(ctx, p.ring, p.waiter)
}

func (p *RingPipe) TryRecv() (int64, bool) { return p.ring.TryPop() }
func (p *RingPipe) Len() int               { return p.ring.Len() }
func (p *RingPipe) Cap() int               { return p.ring.Cap() }

// ChanPipe is a buffered channel driven through the same non-blocking retry
// loop so retries are counted the same way.
type ChanPipe struct {
	ch     chan int64
	waiter spsc.Waiter
}

func NewChanPipe(capacity int, waiter spsc.Waiter) (*ChanPipe, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: got %d", spsc.ErrInvalidCapacity, capacity)
	}
	return &ChanPipe{ch: make(chan int64, capacity), waiter: waiter}, nil
}

func (p *ChanPipe) Send(ctx context.Context, v int64) (int, error) {
	return p.waiter.Retry(ctx, func() bool {
		select {
		case p.ch <- v:
			return true
		default:
			return false
		}
	})
}

func (p *ChanPipe) Recv(ctx context.Context) (int64, int, error) {
	var v int64
	retries, err := p.waiter.Retry(ctx, func() bool {
		var ok bool
		v, ok = p.TryRecv()
		return ok
	})
	return v, retries, err
}

func (p *ChanPipe) TryRecv() (int64, bool) {
	select {
	case v := <-p.ch:
		return v, true
	default:
		return 0, false
	}
}

func (p *ChanPipe) Len() int { return len(p.ch) }
func (p *ChanPipe) Cap() int { return cap(p.ch) }

const frameSize = 8

// SmallnestPipe frames values as 8 little endian bytes in a mutex guarded
// byte ring.
type SmallnestPipe struct {
	rb       *ringbuffer.RingBuffer
	waiter   spsc.Waiter
	capacity int
	wbuf     [frameSize]byte
	rbuf     [frameSize]byte
}

func NewSmallnestPipe(capacity int, waiter spsc.Waiter) (*SmallnestPipe, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: got %d", spsc.ErrInvalidCapacity, capacity)
	}
	return &SmallnestPipe{
		rb:       ringbuffer.New(capacity * frameSize),
		waiter:   waiter,
		capacity: capacity,
	}, nil
}

func (p *SmallnestPipe) trySend(v int64) bool {
	if p.rb.Free() < frameSize {
		return false
	}
	binary.LittleEndian.PutUint64(p.wbuf[:], uint64(v))
	n, err := p.rb.Write(p.wbuf[:])
	// only the producer writes, so free space can only grow since the check
	return err == nil && n == frameSize
}

func (p *SmallnestPipe) Send(ctx context.Context, v int64) (int, error) {
	return p.waiter.Retry(ctx, func() bool {
		return p.trySend(v)
	})
}

func (p *SmallnestPipe) Recv(ctx context.Context) (int64, int, error) {
	var v int64
	retries, err := p.waiter.Retry(ctx, func() bool {
		var ok bool
		v, ok = p.TryRecv()
		return ok
	})
	return v, retries, err
}

func (p *SmallnestPipe) TryRecv() (int64, bool) {
	if p.rb.Length() < frameSize {
		return 0, false
	}
	n, err := p.rb.Read(p.rbuf[:])
	if err != nil || n != frameSize {
		return 0, false
	}
	return int64(binary.LittleEndian.Uint64(p.rbuf[:])), true
}

func (p *SmallnestPipe) Len() int { return p.rb.Length() / frameSize }
func (p *SmallnestPipe) Cap() int { return p.capacity }
