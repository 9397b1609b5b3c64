package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spsc-ring/internal/compress"
)

func TestMain(m *testing.M) {
	logger = zerolog.Nop()
	os.Exit(m.Run())
}

func TestPerformBench(t *testing.T) {
	dir := t.TempDir()
	payloadPath := filepath.Join(dir, "values.txt")
	require.NoError(t, os.WriteFile(payloadPath, []byte("# replayed\n5\n-3\n\n17\n42\n"), 0644))

	tests := []struct {
		name    string
		payload PayloadConfig
		count   int64
		want    float64
	}{
		{"sequence", PayloadConfig{Type: "sequence"}, 20000, 20000},
		{"random", PayloadConfig{Type: "random", Seed: 3}, 5000, 5000},
		{"file", PayloadConfig{Type: "file", File: payloadPath, Encoding: compress.Plain}, 0, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := filepath.Join(dir, tt.name+".json.zst")
			cfg := validConfig()
			cfg.Capacity = 32
			cfg.Count = tt.count
			cfg.Payload = tt.payload
			cfg.Pacing.SampleEvery = 8
			cfg.Report = ReportConfig{
				Interval: 5 * time.Millisecond,
				Format:   "json",
				OutFile:  out,
				Encoding: compress.Zstd,
			}
			require.NoError(t, validate.Struct(cfg))
			require.NoError(t, performBench(context.Background(), &cfg))

			got := readJSONReport(t, out, compress.Zstd)
			assert.Equal(t, tt.want, got["produced"])
			assert.Equal(t, tt.want, got["consumed"])
			assert.Equal(t, got["producer_checksum"], got["consumer_checksum"])
			assert.NotEmpty(t, got["run_id"])
		})
	}
}

func TestPerformBenchTimeout(t *testing.T) {
	cfg := validConfig()
	cfg.Count = 0
	cfg.Wait.Timeout = 30 * time.Millisecond
	cfg.Report = ReportConfig{
		Interval: 5 * time.Millisecond,
		Format:   "json",
		OutFile:  filepath.Join(t.TempDir(), "report.json"),
	}

	err := performBench(context.Background(), &cfg)
	assert.ErrorIs(t, err, ErrTimeout)

	got := readJSONReport(t, cfg.Report.OutFile, compress.Plain)
	assert.Contains(t, got["error"], ErrTimeout.Error())
}

func TestPerformBenchBadPayloadFile(t *testing.T) {
	cfg := validConfig()
	cfg.Payload = PayloadConfig{Type: "file", File: filepath.Join(t.TempDir(), "missing.txt")}
	assert.Error(t, performBench(context.Background(), &cfg))
}
