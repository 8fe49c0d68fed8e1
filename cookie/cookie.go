// Package cookie implements RFC 6265 cookie storage for the client:
// parsing Set-Cookie fields, the jar, and send-time matching.
package cookie

import (
	"strconv"
	"strings"
	"time"

	"httpcore/wire"

	"github.com/pkg/errors"
)

// Cookie is one stored cookie together with its RFC 6265 bookkeeping
// attributes.
type Cookie struct {
	Name  string
	Value string

	Domain string
	Path   string

	Expires    time.Time
	Created    time.Time
	LastAccess time.Time

	Persistent bool
	HostOnly   bool
	SecureOnly bool
	HTTPOnly   bool
}

// Expired reports whether the cookie's lifetime has passed.
func (c *Cookie) Expired(now time.Time) bool {
	return c.Persistent && !c.Expires.After(now)
}

// ParseSetCookie parses a single Set-Cookie field value.
//
// Reference: https://datatracker.ietf.org/doc/html/rfc6265#section-5.2
func ParseSetCookie(line string, now time.Time) (Cookie, error) {
	parts := strings.Split(line, ";")

	name, value, found := strings.Cut(parts[0], "=")
	name = strings.TrimFunc(name, isCookieOWS)
	value = strings.TrimFunc(value, isCookieOWS)
	if !found || name == "" {
		return Cookie{}, errors.Errorf("malformed cookie pair: %q", parts[0])
	}

	// A value may be wrapped in double quotes.
	if len(value) >= 2 && value[0] == '"' && value[len(value)-1] == '"' {
		value = value[1 : len(value)-1]
	}

	c := Cookie{Name: name, Value: value, Created: now, LastAccess: now}

	var maxAgeSet bool
	var expires time.Time

	for _, part := range parts[1:] {
		attrName, attrValue, _ := strings.Cut(part, "=")
		attrName = strings.TrimFunc(attrName, isCookieOWS)
		attrValue = strings.TrimFunc(attrValue, isCookieOWS)

		switch strings.ToLower(attrName) {
		case "max-age":
			// Max-Age wins over Expires.
			// Reference: https://datatracker.ietf.org/doc/html/rfc6265#section-5.2.2
			secs, err := strconv.ParseInt(attrValue, 10, 64)
			if err != nil {
				continue // ignore malformed attribute
			}
			maxAgeSet = true
			if secs <= 0 {
				c.Expires = now.Add(-time.Second)
			} else {
				c.Expires = now.Add(time.Duration(secs) * time.Second)
			}
			c.Persistent = true
		case "expires":
			t, err := wire.ParseDate(attrValue)
			if err != nil {
				continue
			}
			expires = t
		case "domain":
			v := strings.TrimPrefix(attrValue, ".")
			c.Domain = strings.ToLower(v)
		case "path":
			if strings.HasPrefix(attrValue, "/") {
				c.Path = attrValue
			}
		case "secure":
			c.SecureOnly = true
		case "httponly":
			c.HTTPOnly = true
		}
	}

	if !maxAgeSet && !expires.IsZero() {
		c.Expires = expires
		c.Persistent = true
	}

	return c, nil
}

// HeaderValue renders cookies as a single Cookie field value.
func HeaderValue(cookies []Cookie) string {
	b := new(strings.Builder)
	for idx, c := range cookies {
		if idx > 0 {
			b.WriteString("; ")
		}
		b.WriteString(c.Name)
		b.WriteByte('=')
		b.WriteString(c.Value)
	}
	return b.String()
}

func isCookieOWS(r rune) bool { return r == ' ' || r == '\t' }

// domainMatch implements RFC 6265 §5.1.3.
func domainMatch(domain, host string) bool {
	if domain == host {
		return true
	}
	return strings.HasSuffix(host, "."+domain)
}

// pathMatch implements RFC 6265 §5.1.4.
func pathMatch(cookiePath, requestPath string) bool {
	if cookiePath == requestPath {
		return true
	}

	if strings.HasPrefix(requestPath, cookiePath) {
		return strings.HasSuffix(cookiePath, "/") ||
			requestPath[len(cookiePath)] == '/'
	}

	return false
}

// defaultPath computes the default cookie path for a request path.
// Reference: https://datatracker.ietf.org/doc/html/rfc6265#section-5.1.4
func defaultPath(requestPath string) string {
	if requestPath == "" || !strings.HasPrefix(requestPath, "/") {
		return "/"
	}

	idx := strings.LastIndexByte(requestPath, '/')
	if idx == 0 {
		return "/"
	}

	return requestPath[:idx]
}
