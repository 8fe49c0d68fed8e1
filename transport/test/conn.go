// Package test provides scripted in-memory transports for exercising the
// engine without sockets.
package test

import (
	"bytes"
	"context"
	"io"
	"net/netip"
	"sync"
	"time"

	"httpcore/transport"
)

// Conn is a scripted connection: reads serve queued input, writes are
// recorded, and both can be programmed to fail. Safe for concurrent use.
type Conn struct {
	mu sync.Mutex

	input  bytes.Buffer
	output bytes.Buffer

	readErr  error // returned once input is drained; nil means io.EOF
	writeErr error

	// ReadDelay is slept before every read, simulating a slow peer.
	ReadDelay time.Duration

	readDeadline time.Time
	closed       bool
}

var _ transport.Conn = (*Conn)(nil)

func NewConn(input []byte) *Conn {
	c := &Conn{}
	c.input.Write(input)
	return c
}

// Feed queues more bytes for Read.
func (c *Conn) Feed(p []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.input.Write(p)
}

// FailReads makes Read return err once the queued input is drained.
func (c *Conn) FailReads(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readErr = err
}

// FailWrites makes every Write return err.
func (c *Conn) FailWrites(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeErr = err
}

// Written returns a copy of everything written so far.
func (c *Conn) Written() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return bytes.Clone(c.output.Bytes())
}

// Closed reports whether Close has been called.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Conn) Read(p []byte) (int, error) {
	c.mu.Lock()
	delay := c.ReadDelay
	c.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, transport.ErrConnClosed
	}
	if !c.readDeadline.IsZero() && time.Now().After(c.readDeadline) {
		return 0, transport.ErrDeadlineExceeded
	}

	if c.input.Len() > 0 {
		return c.input.Read(p)
	}
	if c.readErr != nil {
		return 0, c.readErr
	}
	return 0, io.EOF
}

func (c *Conn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, transport.ErrConnClosed
	}
	if c.writeErr != nil {
		return 0, c.writeErr
	}

	return c.output.Write(p)
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *Conn) RemoteAddr() netip.AddrPort {
	return netip.AddrPortFrom(netip.AddrFrom4([4]byte{127, 0, 0, 1}), 0)
}

func (c *Conn) SetReadDeadline(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readDeadline = t
}

func (c *Conn) SetWriteDeadline(t time.Time) {}

// Dialer hands out scripted conns in order. Once the queue is empty it
// keeps returning fresh empty conns, so tests only script what they care
// about.
type Dialer struct {
	mu    sync.Mutex
	queue []*Conn
	dials int

	// Delay is slept on every dial, simulating slow connection setup.
	Delay time.Duration

	// Err, when set, fails every dial.
	Err error
}

var _ transport.Dialer = (*Dialer)(nil)

func NewDialer(conns ...*Conn) *Dialer {
	return &Dialer{queue: conns}
}

func (d *Dialer) Dial(ctx context.Context, addr netip.AddrPort) (transport.Conn, error) {
	if d.Delay > 0 {
		select {
		case <-time.After(d.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.Err != nil {
		return nil, d.Err
	}

	d.dials++
	if len(d.queue) > 0 {
		conn := d.queue[0]
		d.queue = d.queue[1:]
		return conn, nil
	}
	return NewConn(nil), nil
}

// Dials reports how many connections have been handed out.
func (d *Dialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}
