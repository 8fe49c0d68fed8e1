// Package transport defines the byte-stream capability the HTTP engine
// rides on. A [Conn] is the minimal duplex contract; [Dialer] and
// [TLSWrapper] are the factories that produce one. Real sockets, TLS
// sessions and in-test fakes are all variants of the same interface.
package transport

import (
	"context"
	"errors"
	"net/netip"
	"time"
)

var (
	ErrConnClosed       = errors.New("connection is closed")
	ErrDeadlineExceeded = errors.New("deadline exceeded")
)

// Conn is an open duplex byte stream.
//
// Read returns io.EOF once the peer has cleanly closed its side; it never
// blocks after EOF has been observed. Reads and writes past an expired
// deadline fail with [ErrDeadlineExceeded]; operations on a locally
// closed conn fail with [ErrConnClosed].
type Conn interface {
	Read(p []byte) (n int, err error)
	Write(p []byte) (n int, err error)
	Close() error

	RemoteAddr() netip.AddrPort

	SetReadDeadline(t time.Time)
	SetWriteDeadline(t time.Time)
}

// Dialer opens a plain stream to addr. It is the raw connection factory;
// DNS has already happened by the time Dial is called.
type Dialer interface {
	Dial(ctx context.Context, addr netip.AddrPort) (Conn, error)
}

// TLSWrapper upgrades an established stream to TLS.
// Implementations must verify the peer certificate against serverName by
// default; opting out is an explicit configuration choice.
type TLSWrapper interface {
	Client(ctx context.Context, conn Conn, serverName string) (Conn, error)
}
