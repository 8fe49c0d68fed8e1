package transfer

import (
	"compress/flate"
	"compress/gzip"
	"fmt"
	"io"

	"github.com/pkg/errors"
)

// ErrInvalidCompression means the compressed stream was malformed.
var ErrInvalidCompression = errors.New("invalid compressed data")

// BodyTooShortError means the stream ended before the advertised body
// length was delivered.
type BodyTooShortError struct {
	Expected uint
	Received uint
}

func (e *BodyTooShortError) Error() string {
	return fmt.Sprintf(
		"response body too short: expected %d bytes, received %d", e.Expected, e.Received,
	)
}

// GunzipReader transparently inflates a gzip-compressed stream. The
// gzip header is read lazily on the first Read so construction never
// blocks.
//
// Malformed compressed input fails with [ErrInvalidCompression]. Errors
// from the underlying reader, a short body in particular, pass through
// unmasked.
type GunzipReader struct {
	src io.Reader
	zr  *gzip.Reader
}

var _ io.Reader = (*GunzipReader)(nil)

func NewGunzipReader(src io.Reader) *GunzipReader {
	return &GunzipReader{src: src}
}

func (gr *GunzipReader) Read(p []byte) (int, error) {
	if gr.zr == nil {
		zr, err := gzip.NewReader(gr.src)
		if err != nil {
			return 0, mapGzipError(err)
		}
		gr.zr = zr
	}

	n, err := gr.zr.Read(p)
	if err != nil && err != io.EOF {
		return n, mapGzipError(err)
	}
	return n, err
}

func mapGzipError(err error) error {
	var short *BodyTooShortError
	if errors.As(err, &short) {
		return err
	}

	var corrupt flate.CorruptInputError
	switch {
	case errors.Is(err, gzip.ErrHeader),
		errors.Is(err, gzip.ErrChecksum),
		errors.As(err, &corrupt),
		errors.Is(err, io.ErrUnexpectedEOF):
		return errors.Wrap(ErrInvalidCompression, err.Error())
	}

	return err
}
