package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sugawarayuuta/sonnet"

	"spsc-ring/internal/compress"
)

func sampleReport() *Report {
	return &Report{
		RunID:            "7d5c0f0e-run",
		StartAt:          time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Impl:             "spsc",
		Payload:          "sequence",
		WaitPolicy:       "yield",
		Capacity:         1024,
		Produced:         500000,
		Consumed:         500000,
		ElapsedSeconds:   0.25,
		ItemsPerSecond:   2000000,
		ProducerChecksum: "00000000deadbeef",
		ConsumerChecksum: "00000000deadbeef",
		Push:             LatencyStat{Samples: 10, P50: 0.2, P99: 1.5},
		Pop:              LatencyStat{Samples: 10, P50: 0.1, P99: 0.9},
	}
}

func TestOutputHuman(t *testing.T) {
	var buf bytes.Buffer
	out := NewOutputHuman(&buf)
	require.NoError(t, out.WriteReport(context.Background(), sampleReport()))
	require.NoError(t, out.Destroy())

	text := buf.String()
	assert.Contains(t, text, "SPSC BENCH REPORT  7d5c0f0e-run")
	assert.Contains(t, text, "500000")
	assert.Contains(t, text, "00000000deadbeef")
	assert.NotContains(t, text, "Error")

	buf.Reset()
	r := sampleReport()
	r.Error = "items lost"
	require.NoError(t, out.WriteReport(context.Background(), r))
	assert.Contains(t, buf.String(), "items lost")
}

func readJSONReport(t *testing.T, path, encoding string) map[string]any {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	r, err := compress.WrapReader(f, encoding)
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, sonnet.Unmarshal(bytes.TrimSpace(data), &got))
	return got
}

func TestOutputJSON(t *testing.T) {
	for _, encoding := range []string{compress.Plain, compress.Gzip, compress.Zstd} {
		t.Run(encoding, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "report.json")
			out, err := NewOutputJSON(path, encoding)
			require.NoError(t, err)
			require.NoError(t, out.WriteReport(context.Background(), sampleReport()))
			require.NoError(t, out.Destroy())

			got := readJSONReport(t, path, encoding)
			assert.Equal(t, "7d5c0f0e-run", got["run_id"])
			assert.Equal(t, float64(500000), got["consumed"])
			assert.NotContains(t, got, "error")
			push, ok := got["push_latency"].(map[string]any)
			require.True(t, ok)
			assert.Equal(t, 1.5, push["p99_us"])
		})
	}
}

func TestCreateOutputsUnsupportedFormat(t *testing.T) {
	_, err := createOutputs(&ReportConfig{Format: "xml"})
	assert.Error(t, err)
}

func TestInsertReportQuery(t *testing.T) {
	q := insertReportQuery("BenchRun")
	assert.True(t, strings.HasPrefix(q, "INSERT INTO BenchRun (run_id, start_at,"))
	assert.Contains(t, q, "push_p50_us")
	assert.Contains(t, q, ":push.p50_us")

	cols, _, ok := strings.Cut(q, " VALUES ")
	require.True(t, ok)
	assert.NotContains(t, cols, ".")
}

func TestWithRetry(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}

	calls := 0
	err := withRetry(context.Background(), cfg, func() error {
		calls++
		if calls < 3 {
			return io.ErrUnexpectedEOF
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = withRetry(context.Background(), cfg, func() error {
		calls++
		return io.ErrUnexpectedEOF
	})
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Equal(t, 3, calls)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = withRetry(ctx, cfg, func() error { return io.ErrUnexpectedEOF })
	assert.ErrorIs(t, err, context.Canceled)
}

type failingOutput struct {
	err       error
	destroyed bool
}

func (o *failingOutput) WriteReport(ctx context.Context, r *Report) error { return nil }

func (o *failingOutput) Destroy() error {
	o.destroyed = true
	return o.err
}

func TestCloseOutputs(t *testing.T) {
	var buf bytes.Buffer
	saved := logger
	logger = zerolog.New(&buf)
	defer func() { logger = saved }()

	errFlush := errors.New("zstd flush failed")
	first := &failingOutput{err: errFlush}
	second := &failingOutput{}
	outputs := []Output{first, second}

	err := closeOutputs(outputs, nil)
	assert.ErrorIs(t, err, errFlush)
	assert.True(t, first.destroyed)
	assert.True(t, second.destroyed)
	assert.Contains(t, buf.String(), "Error closing report outputs")
	assert.Contains(t, buf.String(), "zstd flush failed")

	// the run's own failure is what gets reported
	err = closeOutputs(outputs, ErrItemsLost)
	assert.ErrorIs(t, err, ErrItemsLost)

	assert.NoError(t, closeOutputs([]Output{&failingOutput{}}, nil))
}

func TestOutputJSONDestroyClosesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json.gz")
	out, err := NewOutputJSON(path, compress.Gzip)
	require.NoError(t, err)
	require.NoError(t, out.WriteReport(context.Background(), sampleReport()))
	require.NoError(t, out.Destroy())

	// every closer already ran, so closing again reports the file as closed
	assert.ErrorIs(t, out.Destroy(), os.ErrClosed)
}
