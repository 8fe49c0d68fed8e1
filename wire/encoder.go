package wire

import (
	"bufio"
	"bytes"
	"io"

	"github.com/pkg/errors"
)

// Request is a fully prepared request message. Target must already be in
// the form the destination expects (origin-form, or absolute-form for a
// plaintext proxy); Body, when non-nil, must already be framed (bounded
// to its Content-Length or wrapped in a chunked encoder).
type Request struct {
	Method  string
	Target  string
	Version Version
	Headers Headers

	Body io.Reader
}

// RequestEncoder emits request messages onto a stream. CRLF is the only
// line terminator ever written.
type RequestEncoder struct {
	bw *bufio.Writer
}

func NewRequestEncoder(w io.Writer) *RequestEncoder {
	return &RequestEncoder{bw: bufio.NewWriter(w)}
}

func (re *RequestEncoder) Encode(request Request) error {
	if err := re.encodeRequestLine(request); err != nil {
		return errors.Wrap(err, "encoding request line")
	}

	if err := re.encodeHeaders(request.Headers); err != nil {
		return errors.Wrap(err, "encoding headers")
	}

	// Flush the head before the body so streamed bodies don't sit behind
	// a buffered head. A request with a body leaves in at least two
	// writes: the head, then the body.
	if err := re.bw.Flush(); err != nil {
		return errors.Wrap(err, "flushing request line & headers")
	}

	if request.Body != nil {
		if _, err := re.bw.ReadFrom(request.Body); err != nil {
			return errors.Wrap(err, "writing request body")
		}

		if err := re.bw.Flush(); err != nil {
			return errors.Wrap(err, "flushing request body")
		}
	}

	return nil
}

func (re *RequestEncoder) encodeRequestLine(request Request) error {
	buf := bytes.NewBuffer(nil)

	buf.WriteString(request.Method)
	buf.WriteByte(SP)
	buf.WriteString(request.Target)
	buf.WriteByte(SP)
	buf.Write(request.Version.Text())

	return re.writeLine(buf.Bytes())
}

func (re *RequestEncoder) encodeHeaders(headers Headers) error {
	for _, field := range headers.Fields() {
		if err := re.writeLine(field.Text()); err != nil {
			return errors.Wrap(err, "writing field")
		}
	}

	// An empty line ends the header block.
	return re.writeLine(nil)
}

func (re *RequestEncoder) writeLine(line []byte) error {
	if _, err := re.bw.Write(line); err != nil {
		return errors.Wrap(err, "writing line")
	}

	if _, err := re.bw.Write(CRLF); err != nil {
		return errors.Wrap(err, "writing line terminator")
	}

	return nil
}
