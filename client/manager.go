package client

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"
	"strings"
	"sync"
	"time"

	"httpcore/dns"
	iolib "httpcore/lib/io"
	"httpcore/transport"
	"httpcore/transport/tcp"
	"httpcore/transport/tlsconn"
	"httpcore/wire"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
)

const (
	defaultIdleTimeout    = 90 * time.Second
	maxReaperInterval     = 30 * time.Second
	defaultReadBufferSize = 4096
)

// Settings configures a [Manager]. The zero value works: OS sockets,
// crypto/tls, OS resolver, no timeouts, unbounded pool.
type Settings struct {
	// MaxConnsPerHost caps the idle connections retained per
	// destination. Zero means unlimited. Releasing into a full bucket
	// evicts the oldest idle connection.
	MaxConnsPerHost uint

	// MaxIdleConns caps idle connections across all destinations.
	// Zero means unlimited.
	MaxIdleConns uint

	// IdleTimeout is how long an idle connection may sit in the pool
	// before the reaper closes it. Zero disables reaping.
	IdleTimeout time.Duration

	// ResponseTimeout is the default time budget of a request whose
	// Timeout inherits. Zero means no default budget.
	ResponseTimeout time.Duration

	// ReadBufferSize is the read-ahead chunk size per connection.
	ReadBufferSize uint

	// DecodeOptions bound response head parsing.
	DecodeOptions wire.DecodeOptions

	Dialer   transport.Dialer
	TLS      transport.TLSWrapper
	Lookuper dns.Lookuper

	Clock  clock.Clock
	Logger *slog.Logger
}

// Manager multiplexes idle persistent connections across concurrent
// requests. All pool state sits behind one short-held lock; dialing,
// TLS handshakes and every read/write happen outside it.
type Manager struct {
	settings Settings

	clock    clock.Clock
	logger   *slog.Logger
	dialer   transport.Dialer
	tls      transport.TLSWrapper
	lookuper dns.Lookuper

	mu        sync.Mutex
	idle      map[destKey][]*managedConn // oldest first, freshest at the tail
	idleTotal uint
	closed    bool

	reaperStop chan struct{}
	reaperDone chan struct{}
}

func NewManager(settings Settings) *Manager {
	m := &Manager{
		settings: settings,
		clock:    settings.Clock,
		logger:   settings.Logger,
		dialer:   settings.Dialer,
		tls:      settings.TLS,
		lookuper: settings.Lookuper,
		idle:     make(map[destKey][]*managedConn),
	}

	if m.clock == nil {
		m.clock = clock.New()
	}
	if m.logger == nil {
		m.logger = slog.New(slog.DiscardHandler)
	}
	if m.dialer == nil {
		m.dialer = &tcp.Dialer{}
	}
	if m.tls == nil {
		m.tls = &tlsconn.Wrapper{}
	}
	if m.lookuper == nil {
		m.lookuper = dns.NewNetLookuper()
	}
	if m.settings.ReadBufferSize == 0 {
		m.settings.ReadBufferSize = defaultReadBufferSize
	}
	if m.settings.DecodeOptions == (wire.DecodeOptions{}) {
		m.settings.DecodeOptions = wire.DefaultDecodeOptions
	}

	if m.settings.IdleTimeout > 0 {
		interval := m.settings.IdleTimeout
		if interval > maxReaperInterval {
			interval = maxReaperInterval
		}

		m.reaperStop = make(chan struct{})
		m.reaperDone = make(chan struct{})
		go m.reapLoop(interval)
	}

	return m
}

// Close closes every idle connection and stops the reaper. Acquisitions
// after Close fail with [ErrManagerClosed].
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true

	var idle []*managedConn
	for _, conns := range m.idle {
		idle = append(idle, conns...)
	}
	m.idle = make(map[destKey][]*managedConn)
	m.idleTotal = 0
	m.mu.Unlock()

	if m.reaperStop != nil {
		close(m.reaperStop)
		<-m.reaperDone
	}

	for _, conn := range idle {
		conn.close()
	}

	return nil
}

// IdleCount reports the idle connections held for the destination of
// req. Mainly for tests and introspection.
func (m *Manager) IdleCount(req *Request) uint {
	m.mu.Lock()
	defer m.mu.Unlock()
	return uint(len(m.idle[req.destKey()]))
}

func (m *Manager) reapLoop(interval time.Duration) {
	defer close(m.reaperDone)

	ticker := m.clock.Ticker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.reap()
		case <-m.reaperStop:
			return
		}
	}
}

func (m *Manager) reap() {
	now := m.clock.Now()

	var expired []*managedConn

	m.mu.Lock()
	for key, conns := range m.idle {
		kept := conns[:0]
		for _, conn := range conns {
			if now.Sub(conn.idleAt) >= m.settings.IdleTimeout {
				expired = append(expired, conn)
				m.idleTotal--
				continue
			}
			kept = append(kept, conn)
		}

		if len(kept) == 0 {
			delete(m.idle, key)
			continue
		}
		m.idle[key] = kept
	}
	m.mu.Unlock()

	// Closing happens outside the lock.
	for _, conn := range expired {
		conn.close()
	}

	if len(expired) > 0 {
		m.logger.Debug("reaped idle connections", "count", len(expired))
	}
}

// acquire returns a live connection for the request's destination:
// the freshest idle one when the pool has a match, a newly dialed one
// otherwise. Dialing runs under the remaining time budget.
func (m *Manager) acquire(r *Request, budget *Budget) (*managedConn, error) {
	key := r.destKey()

	var picked *managedConn
	var expired []*managedConn

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrManagerClosed
	}

	now := m.clock.Now()
	conns := m.idle[key]
	for len(conns) > 0 {
		candidate := conns[len(conns)-1]
		conns = conns[:len(conns)-1]
		m.idleTotal--

		// The freshest connection sat the shortest; if even it aged
		// out, so did everything under it.
		if m.settings.IdleTimeout > 0 && now.Sub(candidate.idleAt) >= m.settings.IdleTimeout {
			expired = append(expired, candidate)
			continue
		}

		picked = candidate
		break
	}
	if len(conns) == 0 {
		delete(m.idle, key)
	} else {
		m.idle[key] = conns
	}
	m.mu.Unlock()

	for _, conn := range expired {
		conn.close()
	}

	if picked != nil {
		picked.pooled = true
		picked.released.Store(false)
		return picked, nil
	}

	var conn *managedConn
	err := budget.Run(func(remaining time.Duration, limited bool) error {
		ctx := context.Background()
		if limited {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, remaining)
			defer cancel()
		}

		dialed, err := m.dial(ctx, r, key)
		conn = dialed
		return err
	})
	if err != nil {
		return nil, err
	}

	return conn, nil
}

func (m *Manager) dial(ctx context.Context, r *Request, key destKey) (*managedConn, error) {
	dialHost, dialPort := r.Host, r.Port
	if r.Proxy != nil {
		dialHost, dialPort = r.Proxy.Host, r.Proxy.Port
	}

	addr, err := m.resolve(ctx, r, dialHost)
	if err != nil {
		return nil, &ConnectionFailureError{Cause: err}
	}

	tc, err := m.dialer.Dial(ctx, netip.AddrPortFrom(addr, dialPort))
	if err != nil {
		return nil, &ConnectionFailureError{Cause: err}
	}

	if r.Proxy != nil && r.Secure {
		if err := m.connectTunnel(ctx, tc, r); err != nil {
			_ = tc.Close()
			return nil, err
		}
	}

	if r.Secure {
		tlsConn, err := m.tls.Client(ctx, tc, hostForTLS(r.Host))
		if err != nil {
			return nil, &ConnectionFailureError{Cause: err}
		}
		tc = tlsConn
	}

	m.logger.Debug("dialed connection", "host", r.Host, "port", r.Port, "secure", r.Secure)

	return &managedConn{
		tc:        tc,
		br:        iolib.NewBufferedReader(tc, m.settings.ReadBufferSize),
		key:       key,
		createdAt: m.clock.Now(),
	}, nil
}

// resolve picks the address to dial: the request's pre-resolved address
// when targeting the origin, a literal when the host is one, DNS
// otherwise.
func (m *Manager) resolve(ctx context.Context, r *Request, dialHost string) (netip.Addr, error) {
	if r.HostAddress != nil && r.Proxy == nil {
		return *r.HostAddress, nil
	}

	if addr, err := netip.ParseAddr(strings.Trim(dialHost, "[]")); err == nil {
		return addr, nil
	}

	addrs, err := m.lookuper.LookupIP(ctx, dialHost)
	if err != nil {
		return netip.Addr{}, errors.Wrapf(err, "resolving %q", dialHost)
	}

	return addrs[0], nil
}

// connectTunnel asks a plaintext proxy for a tunnel to the origin before
// TLS starts.
func (m *Manager) connectTunnel(ctx context.Context, tc transport.Conn, r *Request) error {
	if deadline, ok := ctx.Deadline(); ok {
		tc.SetWriteDeadline(deadline)
		tc.SetReadDeadline(deadline)
		defer func() {
			tc.SetWriteDeadline(time.Time{})
			tc.SetReadDeadline(time.Time{})
		}()
	}

	target := hostPort(r.Host, r.Port, 0)

	var headers wire.Headers
	headers.Set("Host", target)

	enc := wire.NewRequestEncoder(tc)
	err := enc.Encode(wire.Request{
		Method:  "CONNECT",
		Target:  target,
		Version: wire.Version11,
		Headers: headers,
	})
	if err != nil {
		return &ConnectionFailureError{Cause: errors.Wrap(err, "sending CONNECT")}
	}

	// The proxy must not speak past its response head before TLS
	// starts, so a throwaway buffer here cannot strand payload bytes.
	br := iolib.NewBufferedReader(tc, m.settings.ReadBufferSize)
	head, err := wire.NewResponseDecoder(br, m.settings.DecodeOptions).ReadHead()
	if err != nil {
		return &ConnectionFailureError{Cause: errors.Wrap(err, "reading CONNECT response")}
	}

	if !head.Status.IsSuccess() {
		return &ProxyConnectError{Host: r.Host, Port: r.Port, Status: head.Status}
	}

	return nil
}

// release hands a connection back. Reusable connections join the idle
// pool (evicting the oldest one when the bucket is full); everything
// else is closed. Releasing the same connection twice is a no-op.
func (m *Manager) release(conn *managedConn, reusable bool) {
	if conn == nil || conn.released.Swap(true) {
		return
	}

	if !reusable || conn.broken {
		conn.close()
		return
	}

	var evicted *managedConn

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		conn.close()
		return
	}

	conns := m.idle[conn.key]

	if per := m.settings.MaxConnsPerHost; per > 0 && uint(len(conns)) >= per {
		evicted = conns[0]
		conns = conns[1:]
		m.idleTotal--
	}

	if global := m.settings.MaxIdleConns; global > 0 && m.idleTotal >= global {
		m.mu.Unlock()
		if evicted != nil {
			evicted.close()
		}
		conn.close()
		return
	}

	conn.tc.SetReadDeadline(time.Time{})
	conn.tc.SetWriteDeadline(time.Time{})
	conn.idleAt = m.clock.Now()
	m.idle[conn.key] = append(conns, conn)
	m.idleTotal++
	m.mu.Unlock()

	if evicted != nil {
		evicted.close()
		m.logger.Debug("evicted oldest idle connection", "host", conn.key.host)
	}
}

// markBroken flags a connection so release drops it no matter what.
func (m *Manager) markBroken(conn *managedConn) {
	conn.broken = true
}

// hostPort renders host:port, omitting the port when it equals
// defaultOmit (pass 0 to always include it).
func hostPort(host string, port, defaultOmit uint16) string {
	if defaultOmit != 0 && port == defaultOmit {
		return host
	}
	return fmt.Sprintf("%s:%d", host, port)
}

// hostForTLS strips the brackets off an IPv6 literal for SNI purposes.
func hostForTLS(host string) string {
	return strings.Trim(host, "[]")
}
