package client

import (
	"fmt"

	"httpcore/cookie"
	"httpcore/wire"

	"github.com/pkg/errors"
)

var (
	// ErrManagerClosed fails every acquisition after Manager.Close.
	ErrManagerClosed = errors.New("connection manager is closed")

	// ErrTooManyRetries bounds the stale-connection retry loop; only a
	// single retry is ever attempted.
	ErrTooManyRetries = errors.New("connection retry limit reached")

	// ErrResponseTimeout means the request's time budget ran out.
	ErrResponseTimeout = errors.New("response timeout exceeded")

	// ErrTooManyRedirects means the server kept redirecting after the
	// request's redirect budget was spent.
	ErrTooManyRedirects = errors.New("too many redirects")

	// ErrBodyConsumed means a one-shot request body was used twice.
	ErrBodyConsumed = errors.New("request body already consumed")
)

// InvalidURLError reports a URL that could not be parsed or that names
// something this engine cannot reach.
type InvalidURLError struct {
	URL    string
	Reason error
}

func (e *InvalidURLError) Error() string {
	return fmt.Sprintf("invalid url %q: %v", e.URL, e.Reason)
}

func (e *InvalidURLError) Unwrap() error { return e.Reason }

// ConnectionFailureError covers DNS, TCP connect and TLS handshake
// failures, and transport failures before the first response byte once
// the retry budget is spent.
type ConnectionFailureError struct {
	Cause error
}

func (e *ConnectionFailureError) Error() string {
	return fmt.Sprintf("connection failure: %v", e.Cause)
}

func (e *ConnectionFailureError) Unwrap() error { return e.Cause }

// ProxyConnectError reports a proxy that refused a CONNECT tunnel.
type ProxyConnectError struct {
	Host   string
	Port   uint16
	Status wire.Status
}

func (e *ProxyConnectError) Error() string {
	return fmt.Sprintf(
		"proxy refused CONNECT to %s:%d: %d %s",
		e.Host, e.Port, e.Status.Code, e.Status.Reason,
	)
}

// StatusError carries a response rejected by the request's CheckStatus
// hook, together with everything the caller needs to inspect it.
type StatusError struct {
	Status  wire.Status
	Headers wire.Headers
	Jar     *cookie.Jar

	Cause error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d rejected: %v", e.Status.Code, e.Cause)
}

func (e *StatusError) Unwrap() error { return e.Cause }
