package client

import (
	"net/netip"
	"testing"
	"time"

	"httpcore/dns"
	iolib "httpcore/lib/io"
	transporttest "httpcore/transport/test"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/suite"
	"go.uber.org/goleak"
)

type ManagerTestSuite struct {
	suite.Suite

	clock *clock.Mock
}

func TestManagerTestSuite(t *testing.T) {
	suite.Run(t, new(ManagerTestSuite))
}

func (s *ManagerTestSuite) SetupTest() {
	s.clock = clock.NewMock()
}

func (s *ManagerTestSuite) TearDownTest() {
	goleak.VerifyNone(s.T())
}

func (s *ManagerTestSuite) newManager(settings Settings) *Manager {
	settings.Clock = s.clock
	return NewManager(settings)
}

// newIdleConn fabricates a drained connection for the destination of req.
func (s *ManagerTestSuite) newIdleConn(m *Manager, req *Request) (*managedConn, *transporttest.Conn) {
	tc := transporttest.NewConn(nil)
	return &managedConn{
		tc:        tc,
		br:        iolib.NewBufferedReader(tc, 0),
		key:       req.destKey(),
		createdAt: m.clock.Now(),
	}, tc
}

func (s *ManagerTestSuite) parseURL(raw string) *Request {
	req, err := ParseURL(raw)
	s.Require().NoError(err)
	return req
}

func (s *ManagerTestSuite) TestReleaseAndAcquire() {
	m := s.newManager(Settings{})
	defer m.Close()

	req := s.parseURL("http://example.com/")
	conn, _ := s.newIdleConn(m, req)

	m.release(conn, true)
	s.Equal(uint(1), m.IdleCount(req))

	got, err := m.acquire(req, newUnlimitedBudget(s.clock))
	s.Require().NoError(err)
	s.Same(conn, got)
	s.True(got.pooled)
	s.Zero(m.IdleCount(req))
}

func (s *ManagerTestSuite) TestAcquirePopsFreshest() {
	m := s.newManager(Settings{})
	defer m.Close()

	req := s.parseURL("http://example.com/")

	first, _ := s.newIdleConn(m, req)
	second, _ := s.newIdleConn(m, req)

	m.release(first, true)
	s.clock.Add(time.Second)
	m.release(second, true)

	got, err := m.acquire(req, newUnlimitedBudget(s.clock))
	s.Require().NoError(err)
	s.Same(second, got)
}

func (s *ManagerTestSuite) TestReleaseIdempotent() {
	m := s.newManager(Settings{})
	defer m.Close()

	req := s.parseURL("http://example.com/")
	conn, _ := s.newIdleConn(m, req)

	m.release(conn, true)
	m.release(conn, true)

	s.Equal(uint(1), m.IdleCount(req))
}

func (s *ManagerTestSuite) TestReleaseNonReusableCloses() {
	m := s.newManager(Settings{})
	defer m.Close()

	req := s.parseURL("http://example.com/")
	conn, tc := s.newIdleConn(m, req)

	m.release(conn, false)

	s.True(tc.Closed())
	s.Zero(m.IdleCount(req))
}

func (s *ManagerTestSuite) TestReleaseBrokenCloses() {
	m := s.newManager(Settings{})
	defer m.Close()

	req := s.parseURL("http://example.com/")
	conn, tc := s.newIdleConn(m, req)

	m.markBroken(conn)
	m.release(conn, true)

	s.True(tc.Closed())
	s.Zero(m.IdleCount(req))
}

func (s *ManagerTestSuite) TestPerHostCapEvictsOldest() {
	m := s.newManager(Settings{MaxConnsPerHost: 2})
	defer m.Close()

	req := s.parseURL("http://example.com/")

	oldest, oldestTC := s.newIdleConn(m, req)
	second, secondTC := s.newIdleConn(m, req)
	third, thirdTC := s.newIdleConn(m, req)

	m.release(oldest, true)
	s.clock.Add(time.Second)
	m.release(second, true)
	s.clock.Add(time.Second)
	m.release(third, true)

	// The pool keeps two; the oldest went away.
	s.Equal(uint(2), m.IdleCount(req))
	s.True(oldestTC.Closed())
	s.False(secondTC.Closed())
	s.False(thirdTC.Closed())
}

func (s *ManagerTestSuite) TestGlobalCapClosesIncoming() {
	m := s.newManager(Settings{MaxIdleConns: 1})
	defer m.Close()

	reqA := s.parseURL("http://a.example.com/")
	reqB := s.parseURL("http://b.example.com/")

	connA, _ := s.newIdleConn(m, reqA)
	connB, tcB := s.newIdleConn(m, reqB)

	m.release(connA, true)
	m.release(connB, true)

	s.Equal(uint(1), m.IdleCount(reqA))
	s.Zero(m.IdleCount(reqB))
	s.True(tcB.Closed())
}

func (s *ManagerTestSuite) TestReaperEvictsAgedConns() {
	m := s.newManager(Settings{IdleTimeout: time.Second})
	defer m.Close()

	req := s.parseURL("http://example.com/")
	conn, tc := s.newIdleConn(m, req)
	m.release(conn, true)

	// Step the mock clock until the reaper's ticker has fired; the
	// reaper goroutine arms it asynchronously.
	s.Require().Eventually(func() bool {
		s.clock.Add(time.Second)
		return m.IdleCount(req) == 0
	}, time.Second, 5*time.Millisecond)
	s.True(tc.Closed())
}

func (s *ManagerTestSuite) TestAcquireDiscardsAgedConns() {
	m := s.newManager(Settings{
		IdleTimeout: time.Second,
		Dialer:      transporttest.NewDialer(),
		Lookuper: dns.NewMapLookuper(map[string][]netip.Addr{
			"example.com": {netip.MustParseAddr("192.0.2.1")},
		}),
	})
	defer m.Close()

	req := s.parseURL("http://example.com/")
	conn, tc := s.newIdleConn(m, req)
	m.release(conn, true)

	s.clock.Add(2 * time.Second)

	// The aged connection is dropped and a fresh one dialed.
	got, err := m.acquire(req, newUnlimitedBudget(s.clock))
	s.Require().NoError(err)
	s.NotSame(conn, got)
	s.True(tc.Closed())
	s.False(got.pooled)
}

func (s *ManagerTestSuite) TestCloseClosesIdleConns() {
	m := s.newManager(Settings{})

	req := s.parseURL("http://example.com/")
	conn, tc := s.newIdleConn(m, req)
	m.release(conn, true)

	s.Require().NoError(m.Close())

	s.True(tc.Closed())

	_, err := m.acquire(req, newUnlimitedBudget(s.clock))
	s.ErrorIs(err, ErrManagerClosed)

	// Close is idempotent.
	s.NoError(m.Close())
}

func (s *ManagerTestSuite) TestReleaseAfterCloseCloses() {
	m := s.newManager(Settings{})

	req := s.parseURL("http://example.com/")
	conn, tc := s.newIdleConn(m, req)

	s.Require().NoError(m.Close())
	m.release(conn, true)

	s.True(tc.Closed())
	s.Zero(m.IdleCount(req))
}
