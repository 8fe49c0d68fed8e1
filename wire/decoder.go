package wire

import (
	"bytes"
	"io"
	"strconv"

	iolib "httpcore/lib/io"

	"github.com/pkg/errors"
)

type DecodeOptions struct {
	// MaxLineLength caps a single status or field line, terminator
	// included. Zero means no limit.
	MaxLineLength uint

	// MaxHeaderBytes caps the cumulative size of the header block.
	// Zero means no limit.
	MaxHeaderBytes uint
}

var DefaultDecodeOptions = DecodeOptions{
	MaxLineLength:  8192,
	MaxHeaderBytes: 64 << 10,
}

var (
	// ErrEmptyResponse means the peer closed the stream before sending a
	// single response byte. A pooled connection that died while idle
	// fails this way, so the driver treats it as retriable.
	ErrEmptyResponse = errors.New("connection closed before any response byte")

	// ErrIncompleteHeaders means the stream ended mid-head.
	ErrIncompleteHeaders = errors.New("connection closed before headers were complete")

	// ErrOverlongHeaders means the header block exceeded MaxHeaderBytes.
	ErrOverlongHeaders = errors.New("header block exceeds size limit")
)

type InvalidStatusLineError struct{ Line string }

func (e *InvalidStatusLineError) Error() string {
	return "invalid status line: " + strconv.Quote(e.Line)
}

type InvalidHeaderLineError struct{ Line string }

func (e *InvalidHeaderLineError) Error() string {
	return "invalid header line: " + strconv.Quote(e.Line)
}

// ResponseHead is the decoded status line and header block.
type ResponseHead struct {
	Version Version
	Status  Status
	Headers Headers
}

// ResponseDecoder reads response heads off a buffered stream. Bytes past
// the blank line stay in the BufferedReader for body framing.
type ResponseDecoder struct {
	br   *iolib.BufferedReader
	opts DecodeOptions
}

func NewResponseDecoder(br *iolib.BufferedReader, opts DecodeOptions) *ResponseDecoder {
	return &ResponseDecoder{br: br, opts: opts}
}

// ReadHead decodes one response head.
func (rd *ResponseDecoder) ReadHead() (ResponseHead, error) {
	var head ResponseHead

	line, err := rd.readLine()
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) && rd.br.Buffered() == 0 {
			return head, ErrEmptyResponse
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return head, ErrIncompleteHeaders
		}
		if errors.Is(err, iolib.ErrDelimLimit) {
			return head, &InvalidStatusLineError{Line: "(line too long)"}
		}

		var badLine *InvalidHeaderLineError
		if errors.As(err, &badLine) {
			return head, &InvalidStatusLineError{Line: badLine.Line}
		}

		return head, errors.Wrap(err, "reading status line")
	}

	head.Version, head.Status, err = parseStatusLine(line)
	if err != nil {
		return head, &InvalidStatusLineError{Line: string(line)}
	}

	head.Headers, err = rd.readHeaders(uint(len(line)))
	if err != nil {
		return head, err
	}

	return head, nil
}

// readLine reads one line and strips its CRLF terminator. CRLF is the
// only accepted terminator.
func (rd *ResponseDecoder) readLine() ([]byte, error) {
	line, err := rd.br.ReadUntil([]byte{LF}, rd.opts.MaxLineLength)
	if err != nil {
		return nil, err
	}

	line = line[:len(line)-1] // remove LF
	if len(line) == 0 || line[len(line)-1] != CR {
		return nil, &InvalidHeaderLineError{Line: string(line)}
	}

	return line[:len(line)-1], nil // remove CR
}

func (rd *ResponseDecoder) readHeaders(consumed uint) (Headers, error) {
	fields := make([]Field, 0)

	for {
		line, err := rd.readLine()
		if err != nil {
			switch {
			case errors.Is(err, io.ErrUnexpectedEOF):
				return Headers{}, ErrIncompleteHeaders
			case errors.Is(err, iolib.ErrDelimLimit):
				return Headers{}, ErrOverlongHeaders
			}
			return Headers{}, errors.Wrap(err, "reading field line")
		}

		consumed += uint(len(line)) + 2
		if rd.opts.MaxHeaderBytes > 0 && consumed > rd.opts.MaxHeaderBytes {
			return Headers{}, ErrOverlongHeaders
		}

		if len(line) == 0 {
			// Blank line: end of headers.
			break
		}

		if line[0] == SP || line[0] == HTAB {
			// Obsolete line folding: the line continues the previous
			// field's value. Accepted on input, never emitted.
			// Reference: https://datatracker.ietf.org/doc/html/rfc9112#section-5.2
			if len(fields) == 0 {
				return Headers{}, &InvalidHeaderLineError{Line: string(line)}
			}

			cont := bytes.TrimLeft(line, string(OWS))
			cont = bytes.TrimRight(cont, string(OWS))

			last := &fields[len(fields)-1]
			if len(cont) > 0 {
				if last.Value != "" {
					last.Value += " "
				}
				last.Value += string(cont)
			}
			continue
		}

		field, err := ParseField(line)
		if err != nil {
			return Headers{}, &InvalidHeaderLineError{Line: string(line)}
		}

		fields = append(fields, field)
	}

	return NewHeaders(fields), nil
}

func parseStatusLine(line []byte) (Version, Status, error) {
	parts := bytes.SplitN(line, []byte{SP}, 3)
	if len(parts) < 2 {
		return Version{}, Status{}, errors.New("status line is malformed")
	}

	ver, err := ParseVersion(parts[0])
	if err != nil {
		return Version{}, Status{}, errors.Wrap(err, "parsing version")
	}

	codeStr := string(parts[1])
	code, err := strconv.ParseUint(codeStr, 10, 64)
	if err != nil || len(codeStr) != 3 {
		return Version{}, Status{}, errors.Errorf("status code is malformed: %q", codeStr)
	}

	// The reason phrase is optional.
	reason := ""
	if len(parts) == 3 {
		reason = string(parts[2])
	}

	return ver, Status{Code: uint(code), Reason: reason}, nil
}

// ExtractContentLength reads a Content-Length header off h.
// Reference: https://datatracker.ietf.org/doc/html/rfc9110#section-8.6-10
func ExtractContentLength(h Headers) (*uint, error) {
	v, ok := h.Get("Content-Length")
	if !ok {
		return nil, nil
	}

	len64, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse Content-Length")
	}

	l := uint(len64)
	return &l, nil
}
