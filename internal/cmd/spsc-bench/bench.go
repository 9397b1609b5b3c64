package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"spsc-ring/internal/payload"
	spsc "spsc-ring/internal/ringbuffer"
)

var (
	ErrTimeout     = errors.New("run timed out")
	errInterrupted = errors.New("interrupted by user")
)

func newPairConfig(cfg *Config) PairConfig {
	return PairConfig{
		Verify:        cfg.VerifyMode(),
		PinCPUs:       cfg.Affinity.Enabled,
		ProducerCPU:   cfg.Affinity.ProducerCPU,
		ConsumerCPU:   cfg.Affinity.ConsumerCPU,
		ThrottleEvery: cfg.Pacing.ThrottleEvery,
		ThrottleFor:   cfg.Pacing.ThrottleFor,
		JitterMax:     cfg.Pacing.JitterMax,
		SampleEvery:   cfg.Pacing.SampleEvery,
		Trace:         cfg.Trace,
	}
}

func newWaiter(cfg *WaitConfig) (spsc.Waiter, error) {
	policy, err := spsc.ParseWaitPolicy(cfg.Policy)
	if err != nil {
		return spsc.Waiter{}, err
	}
	return spsc.Waiter{
		Policy:      policy,
		MaxAttempts: cfg.MaxAttempts,
		SleepFor:    cfg.SleepFor,
	}, nil
}

func performBench(ctx context.Context, cfg *Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	runID := uuid.NewString()
	startAt := time.Now()

	src, err := payload.New(payload.Config{
		Type:     cfg.Payload.Type,
		Count:    cfg.Count,
		File:     cfg.Payload.File,
		Encoding: cfg.Payload.Encoding,
		Seed:     cfg.Payload.Seed,
	})
	if err != nil {
		return fmt.Errorf("error creating payload source: %w", err)
	}
	defer src.Close()

	waiter, err := newWaiter(&cfg.Wait)
	if err != nil {
		return err
	}
	pipe, err := createPipe(cfg.Impl, cfg.Capacity, waiter)
	if err != nil {
		return fmt.Errorf("error creating pipe: %w", err)
	}

	outputs, err := createOutputs(&cfg.Report)
	if err != nil {
		return err
	}
	closed := false
	defer func() {
		if !closed {
			closeOutputs(outputs, nil)
		}
	}()

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	if cfg.Wait.Timeout > 0 {
		var cancelTimeout context.CancelFunc
		runCtx, cancelTimeout = context.WithTimeoutCause(runCtx, cfg.Wait.Timeout, ErrTimeout)
		defer cancelTimeout()
	}

	// lives past the run so the last report reaches scrapers and the dashboard
	serverCtx, stopServer := context.WithCancel(ctx)
	defer stopServer()
	var metricsServer *MetricsServer
	if cfg.Metrics.Enabled {
		metricsServer = NewMetricsServer(cfg.Metrics.Addr, &logger)
		if err := metricsServer.Start(serverCtx); err != nil {
			return fmt.Errorf("error starting metrics server: %w", err)
		}
		logger.Info().Str("addr", metricsServer.Addr()).Msg("Metrics server started - visit the dashboard at http://" + metricsServer.Addr())
	}

	pair := NewPair(newPairConfig(cfg), pipe, src, &logger)
	reporter := NewReporter(pair, pipe, cfg.Report.Interval, metricsServer, &logger)

	watchCtx, stopWatching := context.WithCancel(context.Background())
	var g errgroup.Group
	g.Go(func() error {
		return reporter.Run(watchCtx)
	})
	g.Go(func() error {
		watchSignals(watchCtx, pair, cancel)
		return nil
	})

	logger.Info().
		Str("run_id", runID).
		Int("capacity", pipe.Cap()).
		Str("verify", cfg.VerifyMode()).
		Msg("Starting producer and consumer")
	res, runErr := pair.Run(runCtx)
	stopWatching()
	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("Reporter failed")
	}

	if runErr != nil {
		logger.Error().Err(runErr).Msg("Run failed")
	} else {
		logger.Info().Int64("items", res.Consumed).Dur("elapsed", res.Elapsed).Msg("Run verified")
	}

	report, err := newReport(runID, startAt, cfg, pair, res, runErr)
	if err != nil {
		logger.Warn().Err(err).Msg("Incomplete latency summary")
	}
	for _, out := range outputs {
		if err := out.WriteReport(ctx, report); err != nil {
			logger.Error().Err(err).Msg("Error writing report")
		}
	}
	closed = true
	return closeOutputs(outputs, runErr)
}

// watchSignals ends the stream gracefully on the first SIGINT/SIGTERM and
// aborts the run on the second.
func watchSignals(ctx context.Context, pair *Pair, abort context.CancelCauseFunc) {
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(signalChan)

	stopped := false
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-signalChan:
			if !stopped {
				logger.Warn().Str("signal", sig.String()).Msg("Stopping producer, draining buffer")
				pair.Stop()
				stopped = true
				continue
			}
			logger.Warn().Str("signal", sig.String()).Msg("Aborting run")
			abort(errInterrupted)
			return
		}
	}
}
