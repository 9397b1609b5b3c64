package ringbuffer

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"
)

var ErrMaxAttempts = errors.New("ringbuffer: max attempts exceeded")

type WaitPolicy int

const (
	// WaitYield gives up the processor between attempts, like Push and Pop.
	WaitYield WaitPolicy = iota
	// WaitSpin retries immediately.
	WaitSpin
	// WaitSleep sleeps Waiter.SleepFor between attempts.
	WaitSleep
)

func ParseWaitPolicy(s string) (WaitPolicy, error) {
	switch s {
	case "", "yield":
		return WaitYield, nil
	case "spin":
		return WaitSpin, nil
	case "sleep":
		return WaitSleep, nil
	default:
		return 0, fmt.Errorf("unsupported wait policy: %s", s)
	}
}

func (p WaitPolicy) String() string {
	switch p {
	case WaitYield:
		return "yield"
	case WaitSpin:
		return "spin"
	case WaitSleep:
		return "sleep"
	default:
		return fmt.Sprintf("WaitPolicy(%d)", int(p))
	}
}

// ctxCheckEvery bounds how often the context is polled while spinning.
const ctxCheckEvery = 64

// Waiter is a retry policy layered on top of TryPush and TryPop. The ring
// itself never blocks; a Waiter only decides how long a caller keeps trying.
// MaxAttempts <= 0 means no limit.
type Waiter struct {
	Policy      WaitPolicy
	MaxAttempts int
	SleepFor    time.Duration
}

func (w Waiter) pause() {
	switch w.Policy {
	case WaitSpin:
	case WaitSleep:
		d := w.SleepFor
		if d <= 0 {
			d = time.Microsecond
		}
		time.Sleep(d)
	default:
		runtime.Gosched()
	}
}

// Retry calls try until it reports success, ctx is done or the attempt
// budget is spent, pausing between attempts. It returns the number of failed
// attempts.
func (w Waiter) Retry(ctx context.Context, try func() bool) (int, error) {
	for attempts := 0; ; attempts++ {
		if try() {
			return attempts, nil
		}
		if err := w.check(ctx, attempts+1); err != nil {
			return attempts + 1, err
		}
		w.pause()
	}
}

// PushWait retries r.TryPush until it succeeds. Producer only.
func PushWait[T any](ctx context.Context, r *SPSC[T], item T, w Waiter) (int, error) {
	return w.Retry(ctx, func() bool {
		return r.TryPush(item)
	})
}

// PopWait retries r.TryPop until an item arrives. Consumer only.
func PopWait[T any](ctx context.Context, r *SPSC[T], w Waiter) (T, int, error) {
	var item T
	attempts, err := w.Retry(ctx, func() bool {
		var ok bool
		item, ok = r.TryPop()
		return ok
	})
	return item, attempts, err
}

// check reports why the caller must stop retrying. A done context wins over
// a spent budget, so callers can tell a cancelled wait from a stalled one.
func (w Waiter) check(ctx context.Context, failed int) error {
	exhausted := w.MaxAttempts > 0 && failed >= w.MaxAttempts
	if exhausted || failed%ctxCheckEvery == 1 || w.Policy == WaitSleep {
		if err := context.Cause(ctx); err != nil {
			return err
		}
	}
	if exhausted {
		return fmt.Errorf("%w: %d", ErrMaxAttempts, failed)
	}
	return nil
}
