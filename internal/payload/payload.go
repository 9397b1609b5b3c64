// Package payload produces the values a producer hands to the ring.
package payload

import (
	"bufio"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"strconv"
	"strings"

	"spsc-ring/internal/compress"
)

// Source yields values until it reports done. Sources are used by a single
// producer goroutine and are not safe for concurrent use.
type Source interface {
	Next() (v int64, ok bool, err error)
	Close() error
}

type Config struct {
	Type     string
	Count    int64
	File     string
	Encoding string
	Seed     uint64
}

func New(cfg Config) (Source, error) {
	switch cfg.Type {
	case "sequence", "":
		return NewSequence(cfg.Count), nil
	case "random":
		return NewRandom(cfg.Count, cfg.Seed), nil
	case "file":
		return OpenFile(cfg.File, cfg.Encoding, cfg.Count)
	default:
		return nil, fmt.Errorf("unsupported payload type: %s", cfg.Type)
	}
}

// Sequence yields 1, 2, 3, ... up to count. A count of 0 never ends.
type Sequence struct {
	count int64
	next  int64
}

func NewSequence(count int64) *Sequence {
	return &Sequence{count: count, next: 1}
}

func (s *Sequence) Next() (int64, bool, error) {
	if s.count > 0 && s.next > s.count {
		return 0, false, nil
	}
	v := s.next
	s.next++
	return v, true, nil
}

func (s *Sequence) Close() error { return nil }

// Random yields values in [0, 100).
type Random struct {
	count int64
	n     int64
	rng   *rand.Rand
}

func NewRandom(count int64, seed uint64) *Random {
	var src rand.Source
	if seed != 0 {
		src = rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
	} else {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	return &Random{count: count, rng: rand.New(src)}
}

func (s *Random) Next() (int64, bool, error) {
	if s.count > 0 && s.n >= s.count {
		return 0, false, nil
	}
	s.n++
	return s.rng.Int64N(100), true, nil
}

func (s *Random) Close() error { return nil }

// File replays newline separated integers. Blank lines and lines starting
// with # are skipped.
type File struct {
	count   int64
	n       int64
	line    int
	scanner *bufio.Scanner
	closers []io.Closer
}

func OpenFile(path, encoding string, count int64) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening payload file: %w", err)
	}
	r, err := compress.WrapReader(f, encoding)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("error wrapping reader: %w", err)
	}
	return NewFileReader(r, count, r, f), nil
}

// NewFileReader reads values from r. closers are closed in order by Close.
func NewFileReader(r io.Reader, count int64, closers ...io.Closer) *File {
	return &File{
		count:   count,
		scanner: bufio.NewScanner(r),
		closers: closers,
	}
}

func (s *File) Next() (int64, bool, error) {
	if s.count > 0 && s.n >= s.count {
		return 0, false, nil
	}
	for s.scanner.Scan() {
		s.line++
		text := strings.TrimSpace(s.scanner.Text())
		if text == "" || text[0] == '#' {
			continue
		}
		v, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return 0, false, fmt.Errorf("line %d: %w", s.line, err)
		}
		s.n++
		return v, true, nil
	}
	if err := s.scanner.Err(); err != nil {
		return 0, false, fmt.Errorf("error reading payload: %w", err)
	}
	return 0, false, nil
}

// Close closes every closer, even after a failure, and returns the first error.
func (s *File) Close() error {
	var firstErr error
	for _, c := range s.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("error closing payload file: %w", err)
		}
	}
	return firstErr
}
