package client

import (
	"io"
	"time"

	"httpcore/cookie"
	iolib "httpcore/lib/io"
	"httpcore/transfer"
	"httpcore/wire"

	"github.com/pkg/errors"
)

// Response is a decoded response whose body is still on the wire. The
// body is a single-pass stream; reading it to EOF (or closing it) hands
// the connection back to the pool, or closes it when the exchange ruled
// reuse out.
type Response struct {
	Status  wire.Status
	Version wire.Version
	Headers wire.Headers

	// Trailers holds the fields received after a chunked body's last
	// chunk, once the body has been fully read.
	Trailers []wire.Field

	// Body yields the (optionally decompressed) response content.
	// Close drains whatever is left and releases the connection.
	Body io.ReadCloser

	// Jar is the cookie jar after all Set-Cookie processing, including
	// any intermediate redirect responses.
	Jar *cookie.Jar
}

// framing is a raw body framing stream. drained reports whether the
// framing reached its natural end, which is what gates connection reuse.
type framing interface {
	io.Reader
	drained() bool
}

// emptyFraming is the framing of bodyless responses (HEAD, 204, 304).
type emptyFraming struct{}

func (emptyFraming) Read([]byte) (int, error) { return 0, io.EOF }
func (emptyFraming) drained() bool            { return true }

// lengthFraming delivers exactly the advertised Content-Length.
type lengthFraming struct {
	br        *iolib.BufferedReader
	expected  uint
	remaining uint
}

func newLengthFraming(br *iolib.BufferedReader, n uint) *lengthFraming {
	return &lengthFraming{br: br, expected: n, remaining: n}
}

func (lf *lengthFraming) Read(p []byte) (int, error) {
	if lf.remaining == 0 {
		return 0, io.EOF
	}

	if uint(len(p)) > lf.remaining {
		p = p[:lf.remaining]
	}

	n, err := lf.br.Read(p)
	lf.remaining -= uint(n)

	if err == io.EOF && lf.remaining > 0 {
		return n, &transfer.BodyTooShortError{
			Expected: lf.expected,
			Received: lf.expected - lf.remaining,
		}
	}

	return n, err
}

func (lf *lengthFraming) drained() bool { return lf.remaining == 0 }

// chunkedFraming adapts transfer.ChunkedReader.
type chunkedFraming struct {
	*transfer.ChunkedReader
}

func (cf chunkedFraming) drained() bool { return cf.Done() }

// eofFraming delivers bytes until the peer closes; by construction the
// connection cannot be reused afterwards.
type eofFraming struct {
	br  *iolib.BufferedReader
	eof bool
}

func (ef *eofFraming) Read(p []byte) (int, error) {
	n, err := ef.br.Read(p)
	if err == io.EOF {
		ef.eof = true
	}
	return n, err
}

func (ef *eofFraming) drained() bool { return ef.eof }

// buildResponse frames the body per the response head and wires the
// release action to its end of stream.
func (m *Manager) buildResponse(conn *managedConn, r *Request, head wire.ResponseHead, budget *Budget) (*Response, error) {
	res := &Response{
		Status:  head.Status,
		Version: head.Version,
		Headers: head.Headers,
	}

	framed, isFramed, err := m.frameBody(conn, r, head, res)
	if err != nil {
		m.release(conn, false)
		return nil, err
	}

	reusableOnEOF := isFramed && supportsReuse(head)

	var out io.Reader = framed
	if r.NeedsGunzip(head.Headers) {
		out = transfer.NewGunzipReader(framed)
	}

	res.Body = &bodyReader{
		m:             m,
		conn:          conn,
		budget:        budget,
		framed:        framed,
		out:           out,
		reusableOnEOF: reusableOnEOF,
	}

	return res, nil
}

// frameBody picks the body framing, in priority order: no-body
// responses, chunked transfer coding, Content-Length, EOF-delimited.
func (m *Manager) frameBody(conn *managedConn, r *Request, head wire.ResponseHead, res *Response) (f framing, isFramed bool, err error) {
	if r.Method == "HEAD" || head.Status.Code == 204 || head.Status.Code == 304 {
		return emptyFraming{}, true, nil
	}

	if head.Headers.HasToken("Transfer-Encoding", "chunked") {
		cr := transfer.NewChunkedReader(conn.br, func(fields []wire.Field) {
			res.Trailers = fields
		})
		return chunkedFraming{cr}, true, nil
	}

	length, err := wire.ExtractContentLength(head.Headers)
	if err != nil {
		cl, _ := head.Headers.Get("Content-Length")
		return nil, false, &wire.InvalidHeaderLineError{Line: "Content-Length: " + cl}
	}

	if length != nil {
		return newLengthFraming(conn.br, *length), true, nil
	}

	return &eofFraming{br: conn.br}, false, nil
}

// supportsReuse checks the head-level half of the reuse rule; the body
// half (full drain under a real framing) is checked at EOF time.
func supportsReuse(head wire.ResponseHead) bool {
	if head.Headers.HasToken("Connection", "close") {
		return false
	}

	if head.Version.AtLeast(wire.Version11) {
		return true
	}

	// An HTTP/1.0 peer keeps the connection open only on request.
	return head.Headers.HasToken("Connection", "keep-alive")
}

// bodyReader is the single-pass stream handed to the caller. Every read
// runs under the request's remaining time budget. Reaching EOF releases
// the connection (to the pool when reuse is allowed); any failure closes
// it. Close drains the remainder and releases.
type bodyReader struct {
	m      *Manager
	conn   *managedConn
	budget *Budget

	framed framing
	out    io.Reader

	reusableOnEOF bool
	finished      bool
}

var _ io.ReadCloser = (*bodyReader)(nil)

func (b *bodyReader) Read(p []byte) (int, error) {
	if b.finished {
		return 0, io.EOF
	}

	var n int
	var readErr error

	err := b.budget.Run(func(remaining time.Duration, limited bool) error {
		deadline := time.Time{}
		if limited {
			deadline = b.m.clock.Now().Add(remaining)
		}
		b.conn.tc.SetReadDeadline(deadline)

		n, readErr = b.out.Read(p)
		if readErr == io.EOF {
			return nil
		}
		return readErr
	})

	if err != nil {
		// A failed body stream can never be reused.
		b.finish(false)
		return n, err
	}

	if readErr == io.EOF {
		if !b.framed.drained() {
			// The decoded stream ended before its framing did (a gzip
			// stream ends ahead of the chunk terminator); consume the
			// residue so the connection position is clean.
			if _, err := io.Copy(io.Discard, b.framed); err != nil {
				b.finish(false)
				return n, errors.Wrap(err, "draining body residue")
			}
		}

		b.finish(b.reusableOnEOF && b.framed.drained())
		return n, io.EOF
	}

	return n, nil
}

// Close drains the rest of the stream and releases the connection. It is
// safe to call repeatedly and after EOF.
func (b *bodyReader) Close() error {
	if b.finished {
		return nil
	}

	if _, err := io.Copy(io.Discard, b); err != nil {
		b.finish(false)
		return errors.Wrap(err, "draining response body")
	}

	// Reading to EOF above already finished the stream.
	return nil
}

func (b *bodyReader) finish(reusable bool) {
	if b.finished {
		return
	}
	b.finished = true

	b.m.release(b.conn, reusable)
}
