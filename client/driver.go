package client

import (
	"bytes"
	"io"
	"strconv"
	"strings"
	"time"

	"httpcore/cookie"
	iolib "httpcore/lib/io"
	"httpcore/transfer"
	"httpcore/uri"
	"httpcore/wire"

	"github.com/pkg/errors"
)

const defaultUserAgent = "httpcore/1.1"

// Send submits a request: cookies applied, redirects followed, stale
// pooled connections retried. The returned release drains whatever is
// left of the body and hands the connection back; calling it (or closing
// the response body, which is the same thing) is the caller's duty.
func (m *Manager) Send(req *Request) (_ *Response, release func() error, _ error) {
	if req.Host == "" {
		return nil, nil, &InvalidURLError{URL: "", Reason: errors.New("request has no host")}
	}

	jar := req.Jar.Clone()

	budget := req.Budget
	if budget == nil {
		if d, ok := req.Timeout.resolve(m.settings.ResponseTimeout); ok {
			budget = NewBudget(m.clock, d)
		} else {
			budget = newUnlimitedBudget(m.clock)
		}
	}

	r := req.clone()
	redirects := r.RedirectCount

	for {
		res, err := m.roundtrip(r, jar, budget)
		if err != nil {
			return nil, nil, err
		}

		if r.CheckStatus != nil {
			if cerr := r.CheckStatus(res.Status, res.Headers, jar); cerr != nil {
				// The body is drained or the connection closed before
				// the error surfaces; the caller never holds a
				// dangling connection.
				_ = res.Body.Close()
				return nil, nil, &StatusError{
					Status:  res.Status,
					Headers: res.Headers,
					Jar:     jar,
					Cause:   cerr,
				}
			}
		}

		location, hasLocation := res.Headers.Get("Location")
		if res.Status.IsRedirect() && hasLocation {
			if redirects == 0 {
				_ = res.Body.Close()
				return nil, nil, ErrTooManyRedirects
			}

			// Drain so the connection can go back to the pool.
			if err := res.Body.Close(); err != nil {
				return nil, nil, errors.Wrap(err, "draining redirect body")
			}

			prevHost := r.Host
			if err := m.applyRedirect(r, res.Status.Code, location); err != nil {
				return nil, nil, err
			}
			if !strings.EqualFold(prevHost, r.Host) {
				r.HostAddress = nil
			}

			redirects--
			continue
		}

		res.Jar = jar
		return res, res.Body.Close, nil
	}
}

// Do is the blocking entry point: the whole body is read into memory and
// the connection is released before Do returns.
func (m *Manager) Do(req *Request) (*Response, error) {
	res, release, err := m.Send(req)
	if err != nil {
		return nil, err
	}

	data, readErr := io.ReadAll(res.Body)
	releaseErr := release()

	if readErr != nil {
		return nil, errors.Wrap(readErr, "reading response body")
	}
	if releaseErr != nil {
		return nil, errors.Wrap(releaseErr, "releasing connection")
	}

	res.Body = io.NopCloser(bytes.NewReader(data))
	return res, nil
}

// WithResponse streams the response to consumer and releases the
// connection when the consumer returns, whether or not it read the body.
func (m *Manager) WithResponse(req *Request, consumer func(res *Response) error) (err error) {
	res, release, err := m.Send(req)
	if err != nil {
		return err
	}

	defer func() {
		if cerr := release(); cerr != nil && err == nil {
			err = errors.Wrap(cerr, "releasing connection")
		}
	}()

	return consumer(res)
}

// roundtrip performs one request/response exchange, retrying once when a
// pooled connection turns out to be half-open: dead at the first request
// byte or before the first response byte. The retry acquires again, so it
// takes the next idle connection for the destination when there is one
// and dials only when there is none. Failures after a response byte are
// never retried.
func (m *Manager) roundtrip(r *Request, jar *cookie.Jar, budget *Budget) (*Response, error) {
	headers := m.effectiveHeaders(r, jar)

	for attempt := 0; ; attempt++ {
		if attempt > 1 {
			return nil, errors.Wrap(ErrTooManyRetries, "request could not be completed")
		}

		conn, err := m.acquire(r, budget)
		if err != nil {
			return nil, err
		}

		head, err := m.exchange(conn, r, headers, budget)
		if err != nil {
			m.release(conn, false)

			if isRetriable(err) {
				if conn.pooled && attempt == 0 && r.Body.Replayable() {
					m.logger.Debug("stale pooled connection, retrying once",
						"host", r.Host, "err", err)
					continue
				}
				return nil, &ConnectionFailureError{Cause: err}
			}
			return nil, err
		}

		// Cookies from every response, redirects included, land in
		// the jar before the next request is composed.
		if jar != nil {
			if lines := head.Headers.Values("Set-Cookie"); len(lines) > 0 {
				jar.SetCookies(r.URI(), lines, m.clock.Now())
			}
		}

		return m.buildResponse(conn, r, head, budget)
	}
}

// exchange writes the request and reads the response head, both under
// the budget.
func (m *Manager) exchange(conn *managedConn, r *Request, headers wire.Headers, budget *Budget) (wire.ResponseHead, error) {
	body, err := m.frameRequestBody(r)
	if err != nil {
		return wire.ResponseHead{}, err
	}

	wireReq := wire.Request{
		Method:  r.Method,
		Target:  m.requestTarget(r),
		Version: wire.Version11,
		Headers: headers,
		Body:    body,
	}

	err = budget.Run(func(remaining time.Duration, limited bool) error {
		deadline := time.Time{}
		if limited {
			deadline = m.clock.Now().Add(remaining)
		}
		conn.tc.SetWriteDeadline(deadline)

		if err := wire.NewRequestEncoder(conn.tc).Encode(wireReq); err != nil {
			return &sendError{cause: err}
		}
		return nil
	})
	if err != nil {
		return wire.ResponseHead{}, err
	}

	var head wire.ResponseHead
	err = budget.Run(func(remaining time.Duration, limited bool) error {
		deadline := time.Time{}
		if limited {
			deadline = m.clock.Now().Add(remaining)
		}
		conn.tc.SetReadDeadline(deadline)

		decoded, err := wire.NewResponseDecoder(conn.br, m.settings.DecodeOptions).ReadHead()
		head = decoded
		return err
	})
	if err != nil {
		return wire.ResponseHead{}, err
	}

	return head, nil
}

// frameRequestBody produces the on-wire body stream: bounded for known
// lengths, chunk-framed for streams, nil when there is nothing to send.
func (m *Manager) frameRequestBody(r *Request) (io.Reader, error) {
	if r.Body == nil {
		return nil, nil
	}

	raw, err := r.Body.reader()
	if err != nil {
		return nil, err
	}

	if n, known := r.Body.Length(); known {
		if n == 0 {
			return nil, nil
		}
		return iolib.LimitReader(raw, n), nil
	}

	return transfer.NewChunkedEncoder(raw), nil
}

// requestTarget renders the request-target: absolute-form towards a
// plaintext proxy, origin-form otherwise.
func (m *Manager) requestTarget(r *Request) string {
	path := r.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	target := uri.URI{Path: path}
	if r.Query != "" {
		query := r.Query
		target.Query = &query
	}

	if r.Proxy != nil && !r.Secure {
		target.Scheme = "http"
		authority := &uri.Authority{Host: r.Host}
		if r.Port != defaultPort(false) {
			port := r.Port
			authority.Port = &port
		}
		target.Authority = authority
	}

	return target.String()
}

// effectiveHeaders assembles the headers that actually go on the wire:
// the caller's, plus jar cookies, plus the injected Host, body-framing,
// Accept-Encoding and User-Agent fields.
func (m *Manager) effectiveHeaders(r *Request, jar *cookie.Jar) wire.Headers {
	h := r.Headers.Clone()

	if jar != nil {
		if cookies := jar.Cookies(r.URI(), m.clock.Now()); len(cookies) > 0 {
			merged := cookie.HeaderValue(cookies)
			if existing, ok := h.Get("Cookie"); ok && existing != "" {
				merged = existing + "; " + merged
			}
			h.Set("Cookie", merged)
		}
	}

	if !h.Has("Host") {
		h.Prepend("Host", hostPort(r.Host, r.Port, defaultPort(r.Secure)))
	}

	if r.Body != nil || !isSafeBodyless(r.Method) {
		if n, known := bodyLength(r.Body); known {
			if !(n == 0 && isSafeBodyless(r.Method)) {
				h.Set("Content-Length", strconv.FormatUint(uint64(n), 10))
			}
		} else {
			h.Set("Transfer-Encoding", "chunked")
		}
	}

	if v, ok := h.Get("Accept-Encoding"); !ok {
		h.Add("Accept-Encoding", "gzip")
	} else if v == "" {
		// An explicitly empty Accept-Encoding suppresses the header
		// entirely.
		h.Del("Accept-Encoding")
	}

	if v, ok := h.Get("User-Agent"); !ok {
		h.Add("User-Agent", defaultUserAgent)
	} else if v == "" {
		h.Del("User-Agent")
	}

	return h
}

func bodyLength(b *Body) (uint, bool) {
	if b == nil {
		return 0, true
	}
	return b.Length()
}

func isSafeBodyless(method string) bool {
	return method == "GET" || method == "HEAD"
}

// applyRedirect re-points r at a Location target. Methods are converted
// per RFC 7231: 301/302/303 downgrade to GET (dropping the body) unless
// the original method was GET or HEAD; 307/308 preserve the method and
// need a replayable body.
func (m *Manager) applyRedirect(r *Request, statusCode uint, location string) error {
	ref, err := uri.Parse(uri.SanitizeRef(location))
	if err != nil {
		return &InvalidURLError{URL: location, Reason: err}
	}

	if err := r.SetURIRelative(ref); err != nil {
		return &InvalidURLError{URL: location, Reason: errors.Cause(err)}
	}

	switch statusCode {
	case 301, 302, 303:
		if r.Method != "GET" && r.Method != "HEAD" {
			r.Method = "GET"
			r.Body = nil
			r.Headers.Del("Content-Type")
		}
	case 307, 308:
		if r.Body != nil && !r.Body.Replayable() {
			return errors.Wrap(ErrBodyConsumed, "cannot replay request body for redirect")
		}
	}

	m.logger.Debug("following redirect", "status", statusCode, "location", location)

	return nil
}

// sendError marks a transport failure during the request write; those
// are retriable when the connection came from the pool.
type sendError struct{ cause error }

func (e *sendError) Error() string { return "sending request: " + e.cause.Error() }
func (e *sendError) Unwrap() error { return e.cause }

// isRetriable recognizes the half-open-socket signature: the request
// write failed, or the peer vanished before a single response byte.
// Timeouts are never retried.
func isRetriable(err error) bool {
	if errors.Is(err, ErrResponseTimeout) {
		return false
	}

	var se *sendError
	return errors.As(err, &se) || errors.Is(err, wire.ErrEmptyResponse)
}
