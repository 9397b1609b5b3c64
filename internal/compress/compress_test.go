package compress

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	payload := []byte("1\n2\n3\n")
	for _, encoding := range []string{Plain, Gzip, Zstd} {
		t.Run(encoding, func(t *testing.T) {
			var buf bytes.Buffer
			w, err := WrapWriter(&buf, encoding)
			require.NoError(t, err)
			_, err = w.Write(payload)
			require.NoError(t, err)
			require.NoError(t, w.Close())

			r, err := WrapReader(&buf, encoding)
			require.NoError(t, err)
			defer r.Close()
			got, err := io.ReadAll(r)
			require.NoError(t, err)
			assert.Equal(t, payload, got)
		})
	}
}

func TestUnsupportedEncoding(t *testing.T) {
	_, err := WrapReader(bytes.NewReader(nil), "lz4")
	assert.Error(t, err)
	_, err = WrapWriter(io.Discard, "lz4")
	assert.Error(t, err)
}
