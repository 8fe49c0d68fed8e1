package client

import (
	"sync/atomic"
	"time"

	iolib "httpcore/lib/io"
	"httpcore/transport"
)

// destKey identifies a pool bucket: where the socket actually goes and
// how it is secured. Connections are only ever reused within a bucket.
type destKey struct {
	proxyHost string
	proxyPort uint16

	host   string
	port   uint16
	secure bool
}

// managedConn is a live connection plus the pool's bookkeeping. The
// BufferedReader is the single reading surface: response heads, body
// framing and any read-ahead residue all go through it, so a following
// response on a reused connection starts exactly where the previous one
// ended.
type managedConn struct {
	tc transport.Conn
	br *iolib.BufferedReader

	key       destKey
	createdAt time.Time
	idleAt    time.Time

	// pooled marks a connection handed out from the idle list; only
	// those are eligible for the stale-connection retry.
	pooled bool

	// broken is set when the driver decides the connection must not be
	// reused; release drops it regardless of drain state.
	broken bool

	released atomic.Bool
}

func (c *managedConn) close() {
	_ = c.tc.Close()
}
