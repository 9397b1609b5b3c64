// Package compress wraps readers and writers with the encodings accepted by
// payload files and report outputs.
package compress

import (
	"compress/gzip"
	"fmt"
	"io"

	"github.com/DataDog/zstd"
)

const (
	Plain = "plain"
	Gzip  = "gzip"
	Zstd  = "zstd"
)

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// WrapReader decodes r according to encoding. Closing the result does not
// close r.
func WrapReader(r io.Reader, encoding string) (io.ReadCloser, error) {
	switch encoding {
	case Gzip:
		gzReader, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("error creating gzip reader: %w", err)
		}
		return gzReader, nil
	case Zstd:
		return zstd.NewReader(r), nil
	case "raw", Plain, "":
		return io.NopCloser(r), nil
	default:
		return nil, fmt.Errorf("unsupported encoding: %s", encoding)
	}
}

// WrapWriter encodes into w according to encoding. Close flushes the
// encoder but does not close w.
func WrapWriter(w io.Writer, encoding string) (io.WriteCloser, error) {
	switch encoding {
	case Gzip:
		return gzip.NewWriter(w), nil
	case Zstd:
		return zstd.NewWriter(w), nil
	case Plain, "":
		return nopWriteCloser{w}, nil
	default:
		return nil, fmt.Errorf("unsupported encoding: %s", encoding)
	}
}
