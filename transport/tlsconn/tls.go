// Package tlsconn provides the TLS side of the connection factories,
// backed by crypto/tls. Certificates are verified by default.
package tlsconn

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/netip"
	"time"

	"httpcore/transport"

	"github.com/pkg/errors"
)

// Wrapper upgrades an established stream to TLS.
type Wrapper struct {
	// Config is cloned per connection. A nil Config means the crypto/tls
	// defaults, which verify the peer against the system roots.
	Config *tls.Config
}

var _ transport.TLSWrapper = (*Wrapper)(nil)

func (w *Wrapper) Client(ctx context.Context, conn transport.Conn, serverName string) (transport.Conn, error) {
	cfg := w.Config.Clone()
	if cfg == nil {
		cfg = &tls.Config{}
	}
	if cfg.ServerName == "" {
		cfg.ServerName = serverName
	}

	tc := tls.Client(&netConnAdapter{conn: conn}, cfg)
	if err := tc.HandshakeContext(ctx); err != nil {
		_ = conn.Close()
		return nil, errors.Wrapf(err, "tls handshake with %q", serverName)
	}

	return &Conn{tc: tc, under: conn}, nil
}

// Conn is a TLS session presented as a [transport.Conn].
type Conn struct {
	tc    *tls.Conn
	under transport.Conn
}

var _ transport.Conn = (*Conn)(nil)

func (c *Conn) Read(p []byte) (int, error) {
	n, err := c.tc.Read(p)
	return n, mapTLSError(err)
}

func (c *Conn) Write(p []byte) (int, error) {
	n, err := c.tc.Write(p)
	return n, mapTLSError(err)
}

func (c *Conn) Close() error { return c.tc.Close() }

func (c *Conn) RemoteAddr() netip.AddrPort { return c.under.RemoteAddr() }

func (c *Conn) SetReadDeadline(t time.Time)  { _ = c.tc.SetReadDeadline(t) }
func (c *Conn) SetWriteDeadline(t time.Time) { _ = c.tc.SetWriteDeadline(t) }

func mapTLSError(err error) error {
	switch {
	case err == nil, err == io.EOF:
		return err
	case errors.Is(err, net.ErrClosed):
		return transport.ErrConnClosed
	}

	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return transport.ErrDeadlineExceeded
	}

	return err
}

// netConnAdapter lets crypto/tls drive a [transport.Conn].
type netConnAdapter struct {
	conn transport.Conn
}

var _ net.Conn = (*netConnAdapter)(nil)

func (a *netConnAdapter) Read(p []byte) (int, error) {
	n, err := a.conn.Read(p)
	return n, unmapTransportError(err)
}

func (a *netConnAdapter) Write(p []byte) (int, error) {
	n, err := a.conn.Write(p)
	return n, unmapTransportError(err)
}

func (a *netConnAdapter) Close() error { return a.conn.Close() }

func (a *netConnAdapter) LocalAddr() net.Addr { return emptyAddr{} }
func (a *netConnAdapter) RemoteAddr() net.Addr {
	return net.TCPAddrFromAddrPort(a.conn.RemoteAddr())
}

func (a *netConnAdapter) SetDeadline(t time.Time) error {
	a.conn.SetReadDeadline(t)
	a.conn.SetWriteDeadline(t)
	return nil
}

func (a *netConnAdapter) SetReadDeadline(t time.Time) error {
	a.conn.SetReadDeadline(t)
	return nil
}

func (a *netConnAdapter) SetWriteDeadline(t time.Time) error {
	a.conn.SetWriteDeadline(t)
	return nil
}

// crypto/tls inspects errors with net.Error; give the transport
// sentinels back their net semantics.
func unmapTransportError(err error) error {
	if errors.Is(err, transport.ErrDeadlineExceeded) {
		return timeoutError{}
	}
	return err
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "deadline exceeded" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

type emptyAddr struct{}

func (emptyAddr) Network() string { return "tcp" }
func (emptyAddr) String() string  { return "" }
