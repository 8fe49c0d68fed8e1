// Package uri implements the RFC 3986 subset the engine needs: parsing,
// rendering, and reference resolution for http(s) URLs.
package uri

import (
	"net/netip"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// URI is a parsed URI. Components are stored decoded; String re-escapes
// them per component.
type URI struct {
	Scheme    string
	Authority *Authority
	Path      string
	Query     *string
	Fragment  *string
}

type Authority struct {
	UserInfo string
	Host     string

	// Port is practically bounded to a u16 even though the RFC allows
	// digits of any length.
	Port *uint16
}

// Reference: https://datatracker.ietf.org/doc/html/rfc3986#section-4.2
func (u *URI) IsRelativeRef() bool { return u.Scheme == "" }

// Reference: https://datatracker.ietf.org/doc/html/rfc3986#section-4.3
func (u *URI) IsAbsolute() bool { return u.Scheme != "" && u.Fragment == nil }

// String renders the URI per RFC 3986 §5.3, escaping each component.
func (u *URI) String() string {
	b := new(strings.Builder)
	if u.Scheme != "" {
		b.WriteString(u.Scheme)
		b.WriteByte(':')
	}

	if u.Authority != nil {
		b.WriteString("//")
		if u.Authority.UserInfo != "" {
			b.WriteString(escape(u.Authority.UserInfo, encodeUserInfo))
			b.WriteByte('@')
		}
		b.WriteString(escape(u.Authority.Host, encodeHost))
		if u.Authority.Port != nil {
			b.WriteByte(':')
			b.WriteString(strconv.FormatUint(uint64(*u.Authority.Port), 10))
		}
	}

	b.WriteString(escape(u.Path, encodePath))

	if u.Query != nil {
		b.WriteByte('?')
		b.WriteString(escape(*u.Query, encodeQuery))
	}

	if u.Fragment != nil {
		b.WriteByte('#')
		b.WriteString(escape(*u.Fragment, encodeFragment))
	}

	return b.String()
}

// Parse parses rawURL into its components, percent-decoding each one.
func Parse(rawURL string) (URI, error) {
	if containsCTL(rawURL) {
		return URI{}, errors.New("URI should not contain CTL bytes")
	}

	var u URI

	scheme, rest, err := cutScheme(rawURL)
	if err != nil {
		return URI{}, errors.Wrap(err, "getting scheme")
	}
	u.Scheme = strings.ToLower(scheme)

	if strings.HasPrefix(rest, "//") {
		var authorityRaw string
		authorityRaw, rest = rest[2:], ""
		if i := strings.IndexAny(authorityRaw, "/?#"); i >= 0 {
			authorityRaw, rest = authorityRaw[:i], authorityRaw[i:]
		}

		authority, err := parseAuthority(authorityRaw)
		if err != nil {
			return URI{}, errors.Wrap(err, "parsing authority")
		}

		u.Authority = &authority
	}

	path, query, frag := splitPathQueryFrag(rest)

	if err := assertValidPath(path, u.Authority != nil, u.IsRelativeRef()); err != nil {
		return URI{}, errors.Wrap(err, "path is not valid")
	}
	if u.Path, err = unescape(path); err != nil {
		return URI{}, errors.Wrap(err, "unescaping path")
	}

	if len(query) > 0 {
		query = query[1:] // strip '?'
		if !isQueryFragValid(query) {
			return URI{}, errors.New("query is not valid")
		}
		if query, err = unescape(query); err != nil {
			return URI{}, errors.Wrap(err, "unescaping query")
		}
		u.Query = &query
	}

	if len(frag) > 0 {
		frag = frag[1:] // strip '#'
		if !isQueryFragValid(frag) {
			return URI{}, errors.New("fragment is not valid")
		}
		if frag, err = unescape(frag); err != nil {
			return URI{}, errors.Wrap(err, "unescaping fragment")
		}
		u.Fragment = &frag
	}

	return u, nil
}

// cutScheme cuts a scheme off rawURL if one is present.
func cutScheme(rawURL string) (scheme, rest string, err error) {
	idx := strings.IndexByte(rawURL, ':')
	if idx < 0 {
		return "", rawURL, nil
	}

	// A ':' inside the first path segment does not start a scheme.
	if slash := strings.IndexByte(rawURL, '/'); slash >= 0 && slash < idx {
		return "", rawURL, nil
	}

	scheme, rest = rawURL[:idx], rawURL[idx+1:]
	if err := assertValidScheme(scheme); err != nil {
		return "", "", err
	}

	return scheme, rest, nil
}

func parseAuthority(raw string) (authority Authority, err error) {
	var userInfo, hostPort string
	if i := strings.Index(raw, "@"); i >= 0 {
		userInfo, hostPort = raw[:i], raw[i+1:]
	} else {
		hostPort = raw
	}

	if userInfo != "" {
		if !isValidUserInfo(userInfo) {
			return Authority{}, errors.New("user information is not valid")
		}
		if authority.UserInfo, err = unescape(userInfo); err != nil {
			return Authority{}, errors.Wrap(err, "unescaping user information")
		}
	}

	host, portPart, err := splitHostPort(hostPort)
	if err != nil {
		return Authority{}, errors.Wrap(err, "parsing host")
	}

	port, hasPort, err := ParsePort(portPart)
	if err != nil {
		return Authority{}, errors.Wrap(err, "parsing port")
	}
	if hasPort {
		authority.Port = &port
	}

	if authority.Host, err = unescape(host); err != nil {
		return Authority{}, errors.Wrap(err, "unescaping host")
	}
	authority.Host = strings.ToLower(authority.Host)

	return authority, nil
}

func splitHostPort(raw string) (host, portPart string, err error) {
	if strings.HasPrefix(raw, "[") {
		// IP literal.
		idx := strings.LastIndex(raw, "]")
		if idx < 0 {
			return "", "", errors.New("missing ']' in IP literal")
		}

		host = raw[:idx+1]
		portPart = raw[idx+1:]
	} else {
		host = raw
		if idx := strings.LastIndex(raw, ":"); idx >= 0 {
			host = raw[:idx]
			portPart = raw[idx:]
		}
	}

	if err := AssertValidHost(host); err != nil {
		return "", "", errors.Wrap(err, "host is not valid")
	}

	return host, portPart, nil
}

// ParsePort parses a ":"-prefixed port part. An empty string means no
// port.
func ParsePort(s string) (port uint16, hasPort bool, err error) {
	if s == "" {
		return 0, false, nil
	}

	if s[0] != ':' {
		return 0, false, errors.New("colon delimiter not found on port")
	}
	s = s[1:]

	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, false, errors.Wrap(err, "failed to parse uint")
	}

	if s[0] == '0' && !(n == 0 && len(s) == 1) {
		return 0, false, errors.New("port has leading zero")
	}

	return uint16(n), true, nil
}

// AssertValidHost checks that host is an IP literal, IPv4 address, or a
// valid reg-name.
func AssertValidHost(host string) error {
	if host == "" {
		// An empty reg-name is valid per RFC 3986 §3.2.2.
		return nil
	}
	if len(host) > 255 {
		return errors.Errorf("host length exceeds limit(255): %d", len(host))
	}

	if host[0] == '[' && host[len(host)-1] == ']' {
		inner := host[1 : len(host)-1]
		if addr, err := netip.ParseAddr(inner); err == nil && addr.Is6() {
			return nil
		}
		if isIPvFuture(inner) {
			return nil
		}
		return errors.New("host is expected to be an IP literal, but was malformed")
	}

	if isValidRegName(host) {
		// IPv4 addresses are syntactically valid reg-names.
		return nil
	}

	return errors.New("host is not a valid reg-name")
}

func splitPathQueryFrag(raw string) (path, query, frag string) {
	if idx := strings.IndexByte(raw, '#'); idx >= 0 {
		frag = raw[idx:]
		raw = raw[:idx]
	}

	if idx := strings.IndexByte(raw, '?'); idx >= 0 {
		query = raw[idx:]
		raw = raw[:idx]
	}

	path = raw
	return
}
