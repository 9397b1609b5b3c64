package main

import (
	"context"
	"fmt"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/rs/zerolog"

	"spsc-ring/internal/metrics"
)

// Snapshot is the periodic progress view, logged and pushed to the web UI.
type Snapshot struct {
	Timestamp    time.Time `json:"timestamp"`
	Runtime      string    `json:"runtime"`
	Pushed       int64     `json:"pushed"`
	Popped       int64     `json:"popped"`
	FullRetries  int64     `json:"full_retries"`
	EmptyRetries int64     `json:"empty_retries"`
	Violations   int64     `json:"violations"`
	Occupancy    int       `json:"occupancy"`
	Capacity     int       `json:"capacity"`
	PushRate     float64   `json:"push_rate"`
	PopRate      float64   `json:"pop_rate"`
}

type Reporter struct {
	pair          *Pair
	pipe          Pipe
	interval      time.Duration
	metricsServer *MetricsServer
	logger        *zerolog.Logger

	startTime time.Time
	lastTick  time.Time
	last      Snapshot
}

func NewReporter(pair *Pair, pipe Pipe, interval time.Duration, metricsServer *MetricsServer, logger *zerolog.Logger) *Reporter {
	now := time.Now()
	metrics.BufferCapacity.Set(float64(pipe.Cap()))
	return &Reporter{
		pair:          pair,
		pipe:          pipe,
		interval:      interval,
		metricsServer: metricsServer,
		logger:        logger,
		startTime:     now,
		lastTick:      now,
	}
}

// Run reports every interval until ctx is done, then reports once more so
// the final counters reach the collectors.
func (r *Reporter) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.report(time.Now())
			return nil
		case now := <-ticker.C:
			r.report(now)
		}
	}
}

func (r *Reporter) report(now time.Time) {
	s := r.snapshot(now)
	r.publish(s)

	r.logger.Info().
		Str("runtime", s.Runtime).
		Int64("pushed", s.Pushed).
		Int64("popped", s.Popped).
		Int64("full_retries", s.FullRetries).
		Int64("empty_retries", s.EmptyRetries).
		Int("occupancy", s.Occupancy).
		Float64("push_rate", s.PushRate).
		Float64("pop_rate", s.PopRate).
		Msg("Progress")

	if r.metricsServer != nil {
		r.metricsServer.BroadcastStats(s)
	}
	r.last = *s
	r.lastTick = now
}

func (r *Reporter) snapshot(now time.Time) *Snapshot {
	c := r.pair.Counters()
	s := &Snapshot{
		Timestamp:    now,
		Runtime:      now.Sub(r.startTime).Round(time.Second).String(),
		Pushed:       c.Pushed.Load(),
		Popped:       c.Popped.Load(),
		FullRetries:  c.FullRetries.Load(),
		EmptyRetries: c.EmptyRetries.Load(),
		Violations:   c.Violations.Load(),
		Occupancy:    r.pipe.Len(),
		Capacity:     r.pipe.Cap(),
	}
	if elapsed := now.Sub(r.lastTick).Seconds(); elapsed > 0 {
		s.PushRate = float64(s.Pushed-r.last.Pushed) / elapsed
		s.PopRate = float64(s.Popped-r.last.Popped) / elapsed
	}
	return s
}

// publish feeds the collectors with what changed since the previous tick.
func (r *Reporter) publish(s *Snapshot) {
	metrics.ItemsPushedTotal.Add(float64(s.Pushed - r.last.Pushed))
	metrics.ItemsPoppedTotal.Add(float64(s.Popped - r.last.Popped))
	metrics.RetriesTotal.WithLabelValues("full").Add(float64(s.FullRetries - r.last.FullRetries))
	metrics.RetriesTotal.WithLabelValues("empty").Add(float64(s.EmptyRetries - r.last.EmptyRetries))
	metrics.SequenceViolationsTotal.Add(float64(s.Violations - r.last.Violations))
	metrics.BufferOccupancy.Set(float64(s.Occupancy))
}

// LatencyStat summarizes sampled wait latencies in microseconds.
type LatencyStat struct {
	Samples int     `json:"samples" db:"samples"`
	Min     float64 `json:"min_us" db:"min_us"`
	Mean    float64 `json:"mean_us" db:"mean_us"`
	P50     float64 `json:"p50_us" db:"p50_us"`
	P95     float64 `json:"p95_us" db:"p95_us"`
	P99     float64 `json:"p99_us" db:"p99_us"`
	Max     float64 `json:"max_us" db:"max_us"`
}

func summarizeLatencies(lats []time.Duration) (LatencyStat, error) {
	st := LatencyStat{Samples: len(lats)}
	if len(lats) == 0 {
		return st, nil
	}
	data := make(stats.Float64Data, len(lats))
	for i, l := range lats {
		data[i] = float64(l.Nanoseconds()) / 1e3
	}

	var err error
	if st.Min, err = data.Min(); err != nil {
		return st, fmt.Errorf("error computing min: %w", err)
	}
	if st.Max, err = data.Max(); err != nil {
		return st, fmt.Errorf("error computing max: %w", err)
	}
	if st.Mean, err = data.Mean(); err != nil {
		return st, fmt.Errorf("error computing mean: %w", err)
	}
	for _, p := range []struct {
		dst *float64
		pct float64
	}{
		{&st.P50, 50},
		{&st.P95, 95},
		{&st.P99, 99},
	} {
		if *p.dst, err = data.Percentile(p.pct); err != nil {
			return st, fmt.Errorf("error computing p%.0f: %w", p.pct, err)
		}
	}
	return st, nil
}

type Report struct {
	RunID            string      `json:"run_id" db:"run_id"`
	StartAt          time.Time   `json:"start_at" db:"start_at"`
	Impl             string      `json:"impl" db:"impl"`
	Payload          string      `json:"payload" db:"payload"`
	WaitPolicy       string      `json:"wait_policy" db:"wait_policy"`
	Capacity         int         `json:"capacity" db:"capacity"`
	Produced         int64       `json:"produced" db:"produced"`
	Consumed         int64       `json:"consumed" db:"consumed"`
	FullRetries      int64       `json:"full_retries" db:"full_retries"`
	EmptyRetries     int64       `json:"empty_retries" db:"empty_retries"`
	Violations       int64       `json:"violations" db:"violations"`
	ElapsedSeconds   float64     `json:"elapsed_seconds" db:"elapsed_seconds"`
	ItemsPerSecond   float64     `json:"items_per_second" db:"items_per_second"`
	ProducerChecksum string      `json:"producer_checksum" db:"producer_checksum"`
	ConsumerChecksum string      `json:"consumer_checksum" db:"consumer_checksum"`
	Push             LatencyStat `json:"push_latency" db:"push"`
	Pop              LatencyStat `json:"pop_latency" db:"pop"`
	Error            string      `json:"error,omitempty" db:"error"`
}

func newReport(runID string, startAt time.Time, cfg *Config, pair *Pair, res *PairResult, runErr error) (*Report, error) {
	r := &Report{
		RunID:      runID,
		StartAt:    startAt,
		Impl:       cfg.Impl,
		Payload:    cfg.Payload.Type,
		WaitPolicy: cfg.Wait.Policy,
		Capacity:   cfg.Capacity,
	}
	c := pair.Counters()
	r.FullRetries = c.FullRetries.Load()
	r.EmptyRetries = c.EmptyRetries.Load()
	r.Violations = c.Violations.Load()

	if res != nil {
		r.Produced = res.Produced
		r.Consumed = res.Consumed
		r.ElapsedSeconds = res.Elapsed.Seconds()
		if r.ElapsedSeconds > 0 {
			r.ItemsPerSecond = float64(res.Consumed) / r.ElapsedSeconds
		}
		r.ProducerChecksum = fmt.Sprintf("%016x", res.ProducerChecksum)
		r.ConsumerChecksum = fmt.Sprintf("%016x", res.ConsumerChecksum)
	}
	if runErr != nil {
		r.Error = runErr.Error()
	}

	pushLats, popLats := pair.PushLatencies(), pair.PopLatencies()
	observeLatencies("push", pushLats)
	observeLatencies("pop", popLats)

	var err error
	if r.Push, err = summarizeLatencies(pushLats); err != nil {
		return r, fmt.Errorf("error summarizing push latencies: %w", err)
	}
	if r.Pop, err = summarizeLatencies(popLats); err != nil {
		return r, fmt.Errorf("error summarizing pop latencies: %w", err)
	}
	return r, nil
}

func observeLatencies(op string, lats []time.Duration) {
	h := metrics.WaitLatency.WithLabelValues(op)
	for _, l := range lats {
		h.Observe(l.Seconds())
	}
}
