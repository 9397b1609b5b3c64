package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sugawarayuuta/sonnet"

	"spsc-ring/internal/compress"
)

type Output interface {
	WriteReport(ctx context.Context, r *Report) error
	Destroy() error
}

func createOutputs(cfg *ReportConfig) ([]Output, error) {
	var outputs []Output
	switch cfg.Format {
	case "human":
		outputs = append(outputs, NewOutputHuman(os.Stdout))
	case "json":
		out, err := NewOutputJSON(cfg.OutFile, cfg.Encoding)
		if err != nil {
			return nil, fmt.Errorf("error creating json output: %w", err)
		}
		outputs = append(outputs, out)
	default:
		return nil, fmt.Errorf("unsupported report format: %s", cfg.Format)
	}
	if cfg.DB != nil {
		out, err := NewOutputDB(cfg.DB)
		if err != nil {
			destroyOutputs(outputs)
			return nil, fmt.Errorf("error creating db output: %w", err)
		}
		outputs = append(outputs, out)
	}
	return outputs, nil
}

// closeOutputs destroys the outputs after a run. A failed close means a
// report may be cut short, so it fails an otherwise clean run.
func closeOutputs(outputs []Output, runErr error) error {
	if err := destroyOutputs(outputs); err != nil {
		logger.Error().Err(err).Msg("Error closing report outputs")
		if runErr == nil {
			return fmt.Errorf("error closing report outputs: %w", err)
		}
	}
	return runErr
}

func destroyOutputs(outputs []Output) error {
	var firstErr error
	for _, out := range outputs {
		if err := out.Destroy(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

type OutputHuman struct {
	w io.Writer
}

func NewOutputHuman(w io.Writer) *OutputHuman {
	return &OutputHuman{w: w}
}

func (o *OutputHuman) WriteReport(ctx context.Context, r *Report) error {
	var b strings.Builder
	line := strings.Repeat("=", 80)

	fmt.Fprintln(&b, "\n"+line)
	fmt.Fprintf(&b, "SPSC BENCH REPORT  %s\n", r.RunID)
	fmt.Fprintln(&b, line)
	row := func(k string, v any) {
		fmt.Fprintf(&b, "%-22s | %v\n", k, v)
	}
	row("Implementation", r.Impl)
	row("Capacity", r.Capacity)
	row("Payload", r.Payload)
	row("Wait policy", r.WaitPolicy)
	row("Produced", r.Produced)
	row("Consumed", r.Consumed)
	row("Full retries", r.FullRetries)
	row("Empty retries", r.EmptyRetries)
	row("Sequence violations", r.Violations)
	row("Elapsed", fmt.Sprintf("%.3fs", r.ElapsedSeconds))
	row("Items/s", fmt.Sprintf("%.0f", r.ItemsPerSecond))
	row("Producer checksum", r.ProducerChecksum)
	row("Consumer checksum", r.ConsumerChecksum)

	fmt.Fprintln(&b, strings.Repeat("-", 80))
	fmt.Fprintf(&b, "%-6s | %8s | %10s | %10s | %10s | %10s | %10s\n", "WAIT", "SAMPLES", "MEAN us", "P50 us", "P95 us", "P99 us", "MAX us")
	for _, l := range []struct {
		op string
		st LatencyStat
	}{{"push", r.Push}, {"pop", r.Pop}} {
		fmt.Fprintf(&b, "%-6s | %8d | %10.3f | %10.3f | %10.3f | %10.3f | %10.3f\n",
			l.op, l.st.Samples, l.st.Mean, l.st.P50, l.st.P95, l.st.P99, l.st.Max)
	}
	if r.Error != "" {
		fmt.Fprintln(&b, strings.Repeat("-", 80))
		row("Error", r.Error)
	}
	fmt.Fprintln(&b, line)

	_, err := io.WriteString(o.w, b.String())
	return err
}

func (o *OutputHuman) Destroy() error {
	return nil
}

// OutputJSON writes one JSON document per report to a file, or stdout when
// no file is configured.
type OutputJSON struct {
	writer  io.WriteCloser
	closers []io.Closer
}

func NewOutputJSON(path, encoding string) (*OutputJSON, error) {
	var dst io.Writer = os.Stdout
	var closers []io.Closer
	if path != "" {
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			return nil, fmt.Errorf("error opening file: %w", err)
		}
		dst = file
		closers = append(closers, file)
	}
	writer, err := compress.WrapWriter(dst, encoding)
	if err != nil {
		for _, c := range closers {
			c.Close()
		}
		return nil, fmt.Errorf("error wrapping writer: %w", err)
	}
	// the encoder must be flushed before the file is closed
	closers = append([]io.Closer{writer}, closers...)
	return &OutputJSON{writer: writer, closers: closers}, nil
}

func (o *OutputJSON) WriteReport(ctx context.Context, r *Report) error {
	buf, err := sonnet.Marshal(r)
	if err != nil {
		return fmt.Errorf("error encoding report: %w", err)
	}
	buf = append(buf, '\n')
	if _, err := o.writer.Write(buf); err != nil {
		return fmt.Errorf("error writing report: %w", err)
	}
	return nil
}

func (o *OutputJSON) Destroy() error {
	var firstErr error
	for _, closer := range o.closers {
		if err := closer.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("error closing json output: %w", err)
		}
	}
	return firstErr
}
