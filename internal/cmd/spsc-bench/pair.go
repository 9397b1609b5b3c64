package main

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"math/rand/v2"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/cespare/xxhash"
	"github.com/rs/zerolog"

	apperr "spsc-ring/internal/error"
	"spsc-ring/internal/payload"
	"spsc-ring/internal/ringbuffer"
)

const (
	verifySequence = "sequence"
	verifyChecksum = "checksum"

	maxLatencySamples = 5000 * 8
	ctxCheckEvery     = 1024
)

var (
	errProducerDone     = errors.New("producer done")
	ErrSequenceViolated = errors.New("sequence violation")
	ErrChecksumMismatch = errors.New("checksum mismatch")
	ErrItemsLost        = errors.New("items lost")
)

type PairConfig struct {
	Verify        string
	PinCPUs       bool
	ProducerCPU   int
	ConsumerCPU   int
	ThrottleEvery int64
	ThrottleFor   time.Duration
	JitterMax     time.Duration
	SampleEvery   int64
	Trace         bool
}

// PairCounters are written by the producer and consumer tasks and read by
// the reporter.
type PairCounters struct {
	Pushed       atomic.Int64
	Popped       atomic.Int64
	FullRetries  atomic.Int64
	EmptyRetries atomic.Int64
	Violations   atomic.Int64
}

type PairResult struct {
	Produced         int64
	Consumed         int64
	ProducerChecksum uint64
	ConsumerChecksum uint64
	Elapsed          time.Duration
}

// Pair runs exactly one producer and one consumer over a Pipe.
type Pair struct {
	cfg      PairConfig
	pipe     Pipe
	src      payload.Source
	logger   *zerolog.Logger
	counters PairCounters

	pushLats *ringbuffer.Window[time.Duration]
	popLats  *ringbuffer.Window[time.Duration]

	produced         atomic.Int64
	stopping         atomic.Bool
	producerChecksum uint64
	consumerChecksum uint64
	firstViolation   error
}

func NewPair(cfg PairConfig, pipe Pipe, src payload.Source, logger *zerolog.Logger) *Pair {
	return &Pair{
		cfg:      cfg,
		pipe:     pipe,
		src:      src,
		logger:   logger,
		pushLats: ringbuffer.NewWindow[time.Duration](maxLatencySamples),
		popLats:  ringbuffer.NewWindow[time.Duration](maxLatencySamples),
	}
}

func (p *Pair) Counters() *PairCounters { return &p.counters }

// Stop makes the producer end the stream after the item in flight. The
// consumer still drains everything that was sent.
func (p *Pair) Stop() { p.stopping.Store(true) }

func (p *Pair) PushLatencies() []time.Duration { return p.pushLats.Snapshot(nil) }
func (p *Pair) PopLatencies() []time.Duration  { return p.popLats.Snapshot(nil) }

// Run submits the producer and the consumer as two tasks and waits for both.
func (p *Pair) Run(ctx context.Context) (*PairResult, error) {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	// closed once every value has been sent, so the consumer can drain
	producerDone, finish := context.WithCancelCause(ctx)
	defer finish(nil)

	pool := pond.NewPool(2)
	defer pool.StopAndWait()

	start := time.Now()
	group := pool.NewGroup()
	group.SubmitErr(func() error {
		err := p.produce(ctx)
		if err != nil {
			cancel(err)
			return err
		}
		finish(errProducerDone)
		return nil
	})
	group.SubmitErr(func() error {
		err := p.consume(ctx, producerDone)
		if err != nil {
			cancel(err)
		}
		return err
	})
	err := group.Wait()

	res := &PairResult{
		Produced:         p.counters.Pushed.Load(),
		Consumed:         p.counters.Popped.Load(),
		ProducerChecksum: p.producerChecksum,
		ConsumerChecksum: p.consumerChecksum,
		Elapsed:          time.Since(start),
	}
	if err != nil {
		return res, err
	}
	return res, p.verify(res)
}

func (p *Pair) lockThread(cpu int) {
	runtime.LockOSThread()
	if p.cfg.PinCPUs {
		if err := pinCurrentThread(cpu); err != nil {
			p.logger.Warn().Err(err).Int("cpu", cpu).Msg("Failed to pin thread")
		}
	}
}

func (p *Pair) produce(ctx context.Context) error {
	p.lockThread(p.cfg.ProducerCPU)
	defer runtime.UnlockOSThread()

	hasher := xxhash.New()
	var buf [8]byte
	var n int64
	for !p.stopping.Load() {
		if n%ctxCheckEvery == 0 {
			if err := context.Cause(ctx); err != nil {
				return err
			}
		}
		v, ok, err := p.src.Next()
		if err != nil {
			return fmt.Errorf("error reading payload: %w", err)
		}
		if !ok {
			break
		}

		sample := p.cfg.SampleEvery > 0 && n%p.cfg.SampleEvery == 0
		var start time.Time
		if sample {
			start = time.Now()
		}
		retries, err := p.pipe.Send(ctx, v)
		if sample {
			p.pushLats.Add(time.Since(start))
		}
		if retries > 0 {
			p.counters.FullRetries.Add(int64(retries))
		}
		if err != nil {
			return fmt.Errorf("error sending item %d: %w", n+1, err)
		}
		n++
		p.counters.Pushed.Store(n)
		checksum(hasher, &buf, v)

		if p.cfg.Trace {
			p.logger.Debug().Int64("value", v).Msg("Produced")
		}
		if p.cfg.ThrottleEvery > 0 && n%p.cfg.ThrottleEvery == 0 {
			time.Sleep(p.cfg.ThrottleFor)
		}
		jitter(p.cfg.JitterMax)
	}
	p.producerChecksum = hasher.Sum64()
	p.produced.Store(n)
	p.logger.Info().Int64("items", n).Msg("Producer finished")
	return nil
}

func (p *Pair) consume(ctx, producerDone context.Context) error {
	p.lockThread(p.cfg.ConsumerCPU)
	defer runtime.UnlockOSThread()

	hasher := xxhash.New()
	var buf [8]byte
	var n int64
	accept := func(v int64) {
		n++
		p.counters.Popped.Store(n)
		checksum(hasher, &buf, v)
		if p.cfg.Verify == verifySequence && v != n {
			p.counters.Violations.Add(1)
			if p.firstViolation == nil {
				p.firstViolation = apperr.WrapHere(ErrSequenceViolated, "consumer", map[string]any{
					"expected": n,
					"got":      v,
				})
				p.logger.Error().Int64("expected", n).Int64("got", v).Msg("Received out of order value")
			}
		}
		if p.cfg.Trace {
			p.logger.Debug().Int64("value", v).Msg("Consumed")
		}
	}

	for {
		sample := p.cfg.SampleEvery > 0 && n%p.cfg.SampleEvery == 0
		var start time.Time
		if sample {
			start = time.Now()
		}
		v, err := p.recv(producerDone)
		if err != nil {
			if !errors.Is(err, errProducerDone) {
				return fmt.Errorf("error receiving item %d: %w", n+1, err)
			}
			break
		}
		if sample {
			p.popLats.Add(time.Since(start))
		}
		accept(v)
		jitter(p.cfg.JitterMax)
	}

	// the producer has sent everything; what is left must already be visible
	want := p.produced.Load()
	for n < want {
		v, ok := p.pipe.TryRecv()
		if !ok {
			break
		}
		accept(v)
	}
	p.consumerChecksum = hasher.Sum64()
	p.logger.Info().Int64("items", n).Msg("Consumer finished")
	return nil
}

// recv waits for the next value. An empty pipe only means the producer is
// behind, so a spent attempt budget starts a new wait instead of failing;
// the budget bounds the producer's full side.
func (p *Pair) recv(producerDone context.Context) (int64, error) {
	for {
		v, retries, err := p.pipe.Recv(producerDone)
		if retries > 0 {
			p.counters.EmptyRetries.Add(int64(retries))
		}
		if errors.Is(err, ringbuffer.ErrMaxAttempts) {
			// the stream may have ended while the budget ran out
			if cause := context.Cause(producerDone); cause != nil {
				return 0, cause
			}
			continue
		}
		return v, err
	}
}

func (p *Pair) verify(res *PairResult) error {
	if res.Produced != res.Consumed {
		return apperr.WrapHere(ErrItemsLost, "pair", map[string]any{
			"produced": res.Produced,
			"consumed": res.Consumed,
		})
	}
	if p.firstViolation != nil {
		return p.firstViolation
	}
	if res.ProducerChecksum != res.ConsumerChecksum {
		return apperr.WrapHere(ErrChecksumMismatch, "pair", map[string]any{
			"producer": res.ProducerChecksum,
			"consumer": res.ConsumerChecksum,
		})
	}
	return nil
}

// checksum folds v into an order sensitive running digest.
func checksum(h hash.Hash64, buf *[8]byte, v int64) {
	binary.LittleEndian.PutUint64(buf[:], uint64(v))
	h.Write(buf[:])
}

func jitter(bound time.Duration) {
	if bound > 0 {
		time.Sleep(rand.N(bound))
	}
}
