package client

import (
	"encoding/base64"
	"net/netip"
	"strings"

	"httpcore/cookie"
	"httpcore/uri"
	"httpcore/wire"

	"github.com/pkg/errors"
)

const DefaultRedirectCount = 10

// Proxy names a plaintext forward proxy.
type Proxy struct {
	Host string
	Port uint16
}

// Request describes one HTTP exchange. Construct with [NewRequest] or
// [ParseURL], then adjust fields directly or through the helpers.
type Request struct {
	Host   string
	Port   uint16
	Secure bool

	Method string // default GET
	Path   string // default "/"
	Query  string // raw query, without the leading '?'

	Headers wire.Headers
	Body    *Body

	Proxy *Proxy

	// HostAddress skips DNS when set. The driver clears it when a
	// redirect changes the host.
	HostAddress *netip.Addr

	// RawBody disables transparent decompression regardless of response
	// headers.
	RawBody bool

	// Decompress gates decompression by response content type. Nil
	// accepts every content type.
	Decompress func(contentType string) bool

	// RedirectCount is the number of redirects left to follow.
	RedirectCount uint

	// CheckStatus, when set, may reject a response before the body is
	// handed over; the rejection surfaces as a [StatusError] and the
	// connection is not leaked.
	CheckStatus func(status wire.Status, headers wire.Headers, jar *cookie.Jar) error

	// Timeout budgets the whole request. The zero value inherits the
	// manager default.
	Timeout Timeout

	// Jar, when set, is consulted for request cookies and updated from
	// responses. The driver works on a clone; the final jar comes back
	// on the Response.
	Jar *cookie.Jar

	// Budget overrides the driver-built time budget. Mainly for tests
	// that substitute a mocked clock.
	Budget *Budget
}

func NewRequest() *Request {
	return &Request{
		Method:        "GET",
		Path:          "/",
		RedirectCount: DefaultRedirectCount,
	}
}

// ParseURL builds a request from a URL string. Bytes that cannot appear
// in a URI are percent-encoded before parsing, so sloppy URLs survive.
func ParseURL(rawURL string) (*Request, error) {
	u, err := uri.Parse(uri.SanitizeRef(rawURL))
	if err != nil {
		return nil, &InvalidURLError{URL: rawURL, Reason: err}
	}

	req := NewRequest()
	if err := req.SetURI(u); err != nil {
		return nil, &InvalidURLError{URL: rawURL, Reason: errors.Cause(err)}
	}

	return req, nil
}

// SetURI points the request at an absolute http(s) URI.
func (r *Request) SetURI(u uri.URI) error {
	if u.IsRelativeRef() {
		return errors.New("uri is not absolute")
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return errors.Errorf("unsupported scheme %q", u.Scheme)
	}

	if u.Authority == nil || u.Authority.Host == "" {
		return errors.New("uri has no authority")
	}
	if u.Authority.UserInfo != "" {
		return errors.New("userinfo is not allowed; use BasicAuth")
	}

	r.Secure = scheme == "https"
	r.Host = u.Authority.Host

	if u.Authority.Port != nil {
		r.Port = *u.Authority.Port
	} else {
		r.Port = defaultPort(r.Secure)
	}

	r.Path = u.Path
	if r.Path == "" {
		r.Path = "/"
	}

	r.Query = ""
	if u.Query != nil {
		r.Query = *u.Query
	}

	return nil
}

// SetURIRelative resolves ref against the request's current URI and
// re-points the request. This is how Location headers are followed.
func (r *Request) SetURIRelative(ref uri.URI) error {
	resolver, err := uri.NewRefResolver(r.URI())
	if err != nil {
		return errors.Wrap(err, "building resolver from current uri")
	}

	return r.SetURI(resolver.Resolve(ref))
}

// URI reconstructs the request's effective URI in normal form (default
// ports omitted).
func (r *Request) URI() uri.URI {
	u := uri.URI{
		Scheme:    "http",
		Authority: &uri.Authority{Host: r.Host},
		Path:      r.Path,
	}
	if r.Secure {
		u.Scheme = "https"
	}

	if r.Port != defaultPort(r.Secure) {
		port := r.Port
		u.Authority.Port = &port
	}

	if r.Query != "" {
		query := r.Query
		u.Query = &query
	}

	return u
}

// BasicAuth prepends an Authorization header with the Basic scheme.
// Applying it twice yields two Authorization headers; it does not
// de-duplicate.
func (r *Request) BasicAuth(user, pass string) {
	token := base64.StdEncoding.EncodeToString([]byte(user + ":" + pass))
	r.Headers.Prepend("Authorization", "Basic "+token)
}

// SetProxy routes the request through a plaintext forward proxy.
func (r *Request) SetProxy(host string, port uint16) {
	r.Proxy = &Proxy{Host: host, Port: port}
}

// SetFormBody sets an application/x-www-form-urlencoded body built from
// pairs, forces the method to POST, and replaces any Content-Type.
func (r *Request) SetFormBody(pairs [][2]string) {
	b := new(strings.Builder)
	for idx, pair := range pairs {
		if idx > 0 {
			b.WriteByte('&')
		}
		b.WriteString(uri.EscapeComponent(pair[0]))
		b.WriteByte('=')
		b.WriteString(uri.EscapeComponent(pair[1]))
	}

	r.Method = "POST"
	r.Body = BytesBody([]byte(b.String()))

	r.Headers.Del("Content-Type")
	r.Headers.Add("Content-Type", "application/x-www-form-urlencoded")
}

// NeedsGunzip reports whether the response body should be run through
// the gzip inflater: never for RawBody requests, otherwise when the
// response is gzip-coded and the content type passes Decompress.
func (r *Request) NeedsGunzip(responseHeaders wire.Headers) bool {
	if r.RawBody {
		return false
	}

	if !responseHeaders.HasToken("Content-Encoding", "gzip") {
		return false
	}

	if r.Decompress == nil {
		return true
	}

	contentType, _ := responseHeaders.Get("Content-Type")
	return r.Decompress(contentType)
}

// destKey identifies the pool bucket this request draws from.
func (r *Request) destKey() destKey {
	key := destKey{
		host:   strings.ToLower(r.Host),
		port:   r.Port,
		secure: r.Secure,
	}
	if r.Proxy != nil {
		key.proxyHost = strings.ToLower(r.Proxy.Host)
		key.proxyPort = r.Proxy.Port
	}
	return key
}

// clone is a working copy for the driver's redirect loop; the caller's
// request is never mutated.
func (r *Request) clone() *Request {
	clone := *r
	clone.Headers = r.Headers.Clone()
	return &clone
}

func defaultPort(secure bool) uint16 {
	if secure {
		return 443
	}
	return 80
}
