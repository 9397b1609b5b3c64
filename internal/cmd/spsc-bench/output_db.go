package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	_ "github.com/go-sql-driver/mysql"
)

const defaultReportTable = "BenchRun"

type RetryConfig struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.InitialDelay == 0 {
		c.InitialDelay = 100 * time.Millisecond
	}
	if c.MaxDelay == 0 {
		c.MaxDelay = 5 * time.Second
	}
	if c.BackoffFactor == 0 {
		c.BackoffFactor = 2.0
	}
	return c
}

// withRetry runs operation until it succeeds, backing off between attempts.
func withRetry(ctx context.Context, cfg RetryConfig, operation func() error) error {
	cfg = cfg.withDefaults()
	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}

			delay = time.Duration(float64(delay) * cfg.BackoffFactor)
			if delay > cfg.MaxDelay {
				delay = cfg.MaxDelay
			}
		}

		err := operation()
		if err == nil {
			return nil
		}
		lastErr = err
	}

	return fmt.Errorf("operation failed after %d attempts: %w", cfg.MaxRetries+1, lastErr)
}

var reportColumns = []string{
	"run_id", "start_at", "impl", "payload", "wait_policy", "capacity",
	"produced", "consumed", "full_retries", "empty_retries", "violations",
	"elapsed_seconds", "items_per_second", "producer_checksum", "consumer_checksum",
	"push.samples", "push.p50_us", "push.p95_us", "push.p99_us",
	"pop.samples", "pop.p50_us", "pop.p95_us", "pop.p99_us",
	"error",
}

// insertReportQuery builds a named insert; nested latency fields map to
// push_p50_us style columns.
func insertReportQuery(table string) string {
	cols := make([]string, len(reportColumns))
	params := make([]string, len(reportColumns))
	for i, c := range reportColumns {
		cols[i] = strings.ReplaceAll(c, ".", "_")
		params[i] = ":" + c
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), strings.Join(params, ", "))
}

type OutputDB struct {
	cfg   ReportDBConfig
	retry RetryConfig
	db    *sqlx.DB
}

func NewOutputDB(cfg *ReportDBConfig) (*OutputDB, error) {
	o := &OutputDB{cfg: *cfg, retry: RetryConfig{}.withDefaults()}
	if o.cfg.Table == "" {
		o.cfg.Table = defaultReportTable
	}

	err := withRetry(context.Background(), o.retry, func() error {
		db, err := sqlx.Connect("mysql", o.cfg.DSN)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		o.db = db
		return nil
	})
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (o *OutputDB) WriteReport(ctx context.Context, r *Report) error {
	query := insertReportQuery(o.cfg.Table)
	return withRetry(ctx, o.retry, func() error {
		if _, err := o.db.NamedExecContext(ctx, query, r); err != nil {
			return fmt.Errorf("failed to insert report: %w", err)
		}
		return nil
	})
}

func (o *OutputDB) Destroy() error {
	if o.db != nil {
		return o.db.Close()
	}
	return nil
}
