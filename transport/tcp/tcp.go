// Package tcp adapts OS sockets to the [transport.Conn] contract.
package tcp

import (
	"context"
	"io"
	"net"
	"net/netip"
	"time"

	"httpcore/transport"

	"github.com/pkg/errors"
)

// Dialer opens TCP connections through the operating system.
type Dialer struct {
	// LocalAddr optionally pins the local endpoint of dialed connections.
	LocalAddr *net.TCPAddr
}

var _ transport.Dialer = (*Dialer)(nil)

func (d *Dialer) Dial(ctx context.Context, addr netip.AddrPort) (transport.Conn, error) {
	nd := net.Dialer{}
	if d.LocalAddr != nil {
		nd.LocalAddr = d.LocalAddr
	}

	nc, err := nd.DialContext(ctx, "tcp", addr.String())
	if err != nil {
		return nil, errors.Wrapf(err, "dialing %s", addr)
	}

	return NewConn(nc), nil
}

// Conn wraps a net.Conn, mapping its error surface onto the transport
// sentinels so callers can match with errors.Is.
type Conn struct {
	nc net.Conn
}

var _ transport.Conn = (*Conn)(nil)

func NewConn(nc net.Conn) *Conn { return &Conn{nc: nc} }

func (c *Conn) Read(p []byte) (int, error) {
	n, err := c.nc.Read(p)
	return n, mapNetError(err)
}

func (c *Conn) Write(p []byte) (int, error) {
	n, err := c.nc.Write(p)
	return n, mapNetError(err)
}

func (c *Conn) Close() error { return c.nc.Close() }

func (c *Conn) RemoteAddr() netip.AddrPort {
	if ta, ok := c.nc.RemoteAddr().(*net.TCPAddr); ok {
		return ta.AddrPort()
	}
	return netip.AddrPort{}
}

func (c *Conn) SetReadDeadline(t time.Time)  { _ = c.nc.SetReadDeadline(t) }
func (c *Conn) SetWriteDeadline(t time.Time) { _ = c.nc.SetWriteDeadline(t) }

func mapNetError(err error) error {
	switch {
	case err == nil, err == io.EOF:
		return err
	case errors.Is(err, net.ErrClosed), errors.Is(err, io.ErrClosedPipe):
		return transport.ErrConnClosed
	}

	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return transport.ErrDeadlineExceeded
	}

	return err
}
