package client

import (
	"bytes"
	"io"

	"github.com/pkg/errors"
)

// Body is a request body. The four constructors cover the framing
// variants: eager bytes and builders are replayable (a stale-connection
// retry or a 307 redirect can resend them); plain readers are one-shot.
type Body struct {
	data  []byte
	build func(w io.Writer) error

	r     io.Reader
	taken bool

	length  *uint
	chunked bool
}

// BytesBody frames p with Content-Length. Replayable.
func BytesBody(p []byte) *Body {
	if p == nil {
		p = []byte{}
	}
	n := uint(len(p))
	return &Body{data: p, length: &n}
}

// BuilderBody frames the builder's output with Content-Length n. The
// builder runs once, on first use; its output is retained for replay and
// must be exactly n bytes.
func BuilderBody(n uint, build func(w io.Writer) error) *Body {
	return &Body{build: build, length: &n}
}

// ReaderBody frames r with Content-Length n. One-shot.
func ReaderBody(r io.Reader, n uint) *Body {
	return &Body{r: r, length: &n}
}

// StreamBody frames r with chunked transfer coding. One-shot.
func StreamBody(r io.Reader) *Body {
	return &Body{r: r, chunked: true}
}

// Length returns the body length when it is known up front. ok is false
// for chunked bodies.
func (b *Body) Length() (n uint, ok bool) {
	if b == nil {
		return 0, true
	}
	if b.length == nil {
		return 0, false
	}
	return *b.length, true
}

// Replayable reports whether the body can be produced again.
func (b *Body) Replayable() bool {
	return b == nil || b.data != nil || b.build != nil
}

// reader produces the body content. Replayable bodies may be asked
// repeatedly; one-shot bodies fail [ErrBodyConsumed] the second time.
func (b *Body) reader() (io.Reader, error) {
	if b == nil {
		return bytes.NewReader(nil), nil
	}

	if b.build != nil {
		buf := bytes.NewBuffer(nil)
		if err := b.build(buf); err != nil {
			return nil, errors.Wrap(err, "building request body")
		}
		b.data = append([]byte{}, buf.Bytes()...)
		b.build = nil
	}

	if b.data != nil {
		return bytes.NewReader(b.data), nil
	}

	if b.taken {
		return nil, ErrBodyConsumed
	}
	b.taken = true

	return b.r, nil
}
