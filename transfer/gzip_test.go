package transfer

import (
	"bytes"
	"compress/gzip"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gzipped(t *testing.T, data string) []byte {
	t.Helper()

	buf := bytes.NewBuffer(nil)
	zw := gzip.NewWriter(buf)
	_, err := zw.Write([]byte(data))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	return buf.Bytes()
}

func TestGunzipReader(t *testing.T) {
	gr := NewGunzipReader(bytes.NewReader(gzipped(t, "hello gzip")))

	got, err := io.ReadAll(gr)
	require.NoError(t, err)
	assert.Equal(t, "hello gzip", string(got))
}

func TestGunzipReaderInvalidInput(t *testing.T) {
	t.Run("garbage header", func(t *testing.T) {
		gr := NewGunzipReader(bytes.NewReader([]byte("definitely not gzip")))
		_, err := io.ReadAll(gr)
		assert.ErrorIs(t, err, ErrInvalidCompression)
	})

	t.Run("truncated stream", func(t *testing.T) {
		data := gzipped(t, "hello gzip")
		gr := NewGunzipReader(bytes.NewReader(data[:len(data)-4]))
		_, err := io.ReadAll(gr)
		assert.ErrorIs(t, err, ErrInvalidCompression)
	})
}

// failAfterReader serves its prefix then fails with the given error.
type failAfterReader struct {
	r   io.Reader
	err error
}

func (f *failAfterReader) Read(p []byte) (int, error) {
	n, err := f.r.Read(p)
	if err == io.EOF {
		return n, f.err
	}
	return n, err
}

func TestGunzipReaderDoesNotMaskShortBody(t *testing.T) {
	data := gzipped(t, "hello gzip")
	short := &BodyTooShortError{Expected: 100, Received: uint(len(data)) - 4}

	gr := NewGunzipReader(&failAfterReader{
		r:   bytes.NewReader(data[:len(data)-4]),
		err: short,
	})

	_, err := io.ReadAll(gr)

	var got *BodyTooShortError
	require.ErrorAs(t, err, &got)
	assert.Equal(t, short, got)
	assert.NotErrorIs(t, err, ErrInvalidCompression)
}
