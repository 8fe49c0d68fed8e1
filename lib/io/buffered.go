// Package iolib holds the small reader primitives the engine is built
// on: a read-ahead buffer with line-aware reads, and a uint-typed limit
// reader.
package iolib

import (
	"bytes"
	"io"

	"github.com/pkg/errors"
)

const defaultChunkSize = 4096

var (
	ErrZeroLenDelim = errors.New("delim has zero length")
	ErrDelimLimit   = errors.New("delimiter not found within limit")
)

// BufferedReader wraps a reader with a read-ahead buffer. Bytes read from
// the underlying reader beyond a caller-requested boundary stay in the
// buffer and are served by the next call, which is what lets header
// parsing stop exactly at the blank line and hand the residue to body
// framing.
type BufferedReader struct {
	r io.Reader

	buf bytes.Buffer
	tmp []byte
}

func NewBufferedReader(r io.Reader, chunkSize uint) *BufferedReader {
	if chunkSize == 0 {
		chunkSize = defaultChunkSize
	}
	return &BufferedReader{r: r, tmp: make([]byte, chunkSize)}
}

// Read consumes the buffer before the underlying reader.
func (br *BufferedReader) Read(p []byte) (n int, err error) {
	if br.buf.Len() > 0 {
		n, err = br.buf.Read(p)
		if err == io.EOF {
			err = nil
		}
		return n, err
	}

	return br.r.Read(p)
}

// Buffered reports how many read-ahead bytes are pending.
func (br *BufferedReader) Buffered() int { return br.buf.Len() }

// fill reads one chunk from the underlying reader into the buffer.
func (br *BufferedReader) fill() error {
	n, err := br.r.Read(br.tmp)
	br.buf.Write(br.tmp[:n])
	if n > 0 && err == io.EOF {
		// Deliver the bytes first; EOF resurfaces on the next fill.
		return nil
	}
	return err
}

// ReadUntil reads up to and including delim and returns the consumed
// bytes, delim included. Bytes past delim stay buffered. limit, when
// non-zero, caps the returned length; overflow fails with [ErrDelimLimit].
// EOF before delim fails with io.ErrUnexpectedEOF.
func (br *BufferedReader) ReadUntil(delim []byte, limit uint) ([]byte, error) {
	if len(delim) == 0 {
		return nil, ErrZeroLenDelim
	}

	searched := 0
	for {
		b := br.buf.Bytes()

		if idx := bytes.Index(b[searched:], delim); idx >= 0 {
			end := searched + idx + len(delim)
			if limit > 0 && uint(end) > limit {
				return nil, ErrDelimLimit
			}

			line := bytes.Clone(br.buf.Next(end))
			return line, nil
		}

		// No match yet. The tail shorter than delim may still complete.
		if searched = br.buf.Len() - len(delim) + 1; searched < 0 {
			searched = 0
		}

		if limit > 0 && uint(br.buf.Len()) >= limit+uint(len(delim)) {
			return nil, ErrDelimLimit
		}

		if err := br.fill(); err != nil {
			if err == io.EOF {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}
	}
}

// ReadFull returns exactly n bytes, or io.ErrUnexpectedEOF together with
// however many bytes were available.
func (br *BufferedReader) ReadFull(n uint) ([]byte, error) {
	for uint(br.buf.Len()) < n {
		if err := br.fill(); err != nil {
			if err == io.EOF {
				return bytes.Clone(br.buf.Next(br.buf.Len())), io.ErrUnexpectedEOF
			}
			return nil, err
		}
	}

	return bytes.Clone(br.buf.Next(int(n))), nil
}
