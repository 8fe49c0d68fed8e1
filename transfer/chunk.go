// Package transfer implements response body transfer codings: chunked
// framing on both directions and the gzip content decoding wrapper.
package transfer

import (
	"bytes"
	"io"
	"strconv"

	iolib "httpcore/lib/io"
	"httpcore/wire"

	"github.com/pkg/errors"
)

// ErrInvalidChunkHeader means a chunk-size line or chunk delimiter was
// malformed.
var ErrInvalidChunkHeader = errors.New("invalid chunk header")

const maxChunkLineLength = 1024

// ChunkedReader converts a chunked message into a byte stream.
//
// It reads through the connection's BufferedReader so it never consumes
// bytes past the terminating chunk; whatever follows the trailer block
// stays buffered for the next response.
//
// Reference: https://datatracker.ietf.org/doc/html/rfc9112#section-7.1
type ChunkedReader struct {
	br *iolib.BufferedReader

	remaining uint // unread bytes of the current chunk
	inChunk   bool
	done      bool

	// onTrailer, if set, receives the trailer fields read after the
	// last chunk.
	onTrailer func(fields []wire.Field)
}

var _ io.Reader = (*ChunkedReader)(nil)

func NewChunkedReader(br *iolib.BufferedReader, onTrailer func(fields []wire.Field)) *ChunkedReader {
	return &ChunkedReader{br: br, onTrailer: onTrailer}
}

// Done reports whether the terminating chunk and its trailers have been
// consumed.
func (cr *ChunkedReader) Done() bool { return cr.done }

func (cr *ChunkedReader) Read(p []byte) (int, error) {
	if cr.done {
		return 0, io.EOF
	}

	if !cr.inChunk {
		if err := cr.decodeChunkHeader(); err != nil {
			return 0, err
		}

		if cr.done {
			return 0, io.EOF
		}
	}

	if uint(len(p)) > cr.remaining {
		p = p[:cr.remaining]
	}

	n, err := cr.br.Read(p)
	cr.remaining -= uint(n)

	if err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return n, errors.Wrap(err, "reading chunk data")
	}

	if cr.remaining == 0 {
		if err := cr.consumeCRLF(); err != nil {
			return n, err
		}
		cr.inChunk = false
	}

	return n, nil
}

func (cr *ChunkedReader) decodeChunkHeader() error {
	line, err := cr.readLine()
	if err != nil {
		return errors.Wrap(err, "reading chunk size line")
	}

	// Chunk extensions are ignored on input.
	sizeRaw, _, _ := bytes.Cut(line, []byte{';'})
	sizeRaw = bytes.Trim(sizeRaw, string(wire.OWS))

	size, err := strconv.ParseUint(string(sizeRaw), 16, 64)
	if err != nil {
		return errors.Wrapf(ErrInvalidChunkHeader, "decoding chunk size %q", string(sizeRaw))
	}

	if size == 0 {
		// Last chunk: consume the trailer section.
		if err := cr.decodeTrailers(); err != nil {
			return err
		}
		cr.done = true
		return nil
	}

	cr.remaining = uint(size)
	cr.inChunk = true

	return nil
}

func (cr *ChunkedReader) consumeCRLF() error {
	b, err := cr.br.ReadFull(2)
	if err != nil {
		return errors.Wrap(err, "reading chunk delimiter")
	}
	if !bytes.Equal(b, wire.CRLF) {
		return errors.Wrap(ErrInvalidChunkHeader, "chunk data not followed by CRLF")
	}
	return nil
}

func (cr *ChunkedReader) decodeTrailers() error {
	fields := make([]wire.Field, 0)

	for {
		line, err := cr.readLine()
		if err != nil {
			return errors.Wrap(err, "reading trailer line")
		}

		if len(line) == 0 {
			break
		}

		field, err := wire.ParseField(line)
		if err != nil {
			return errors.Wrap(ErrInvalidChunkHeader, "malformed trailer field")
		}

		fields = append(fields, field)
	}

	if cr.onTrailer != nil && len(fields) > 0 {
		cr.onTrailer(fields)
	}

	return nil
}

// readLine reads up to CRLF and strips the terminator.
func (cr *ChunkedReader) readLine() ([]byte, error) {
	line, err := cr.br.ReadUntil([]byte{wire.LF}, maxChunkLineLength)
	if err != nil {
		if errors.Is(err, iolib.ErrDelimLimit) {
			return nil, ErrInvalidChunkHeader
		}
		return nil, err
	}

	line = line[:len(line)-1]
	if len(line) == 0 || line[len(line)-1] != wire.CR {
		return nil, ErrInvalidChunkHeader
	}

	return line[:len(line)-1], nil
}

// ChunkedEncoder frames a byte stream as chunked transfer coding. Each
// producer read becomes one chunk; producer EOF emits the terminating
// zero chunk. Extensions and trailers are never emitted.
type ChunkedEncoder struct {
	src io.Reader

	pending bytes.Buffer
	data    []byte
	done    bool
}

var _ io.Reader = (*ChunkedEncoder)(nil)

func NewChunkedEncoder(src io.Reader) *ChunkedEncoder {
	return &ChunkedEncoder{src: src, data: make([]byte, 8<<10)}
}

func (ce *ChunkedEncoder) Read(p []byte) (int, error) {
	for ce.pending.Len() == 0 {
		if ce.done {
			return 0, io.EOF
		}

		n, err := ce.src.Read(ce.data)
		if n > 0 {
			// Zero-length chunks are reserved for the terminator, so
			// empty producer reads emit nothing.
			ce.pending.WriteString(strconv.FormatUint(uint64(n), 16))
			ce.pending.Write(wire.CRLF)
			ce.pending.Write(ce.data[:n])
			ce.pending.Write(wire.CRLF)
		}

		if err == io.EOF {
			ce.pending.WriteString("0")
			ce.pending.Write(wire.CRLF)
			ce.pending.Write(wire.CRLF)
			ce.done = true
			break
		}
		if err != nil {
			return 0, errors.Wrap(err, "reading request body")
		}
	}

	n, _ := ce.pending.Read(p)
	return n, nil
}
