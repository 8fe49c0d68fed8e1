package cookie

import (
	"sort"
	"strings"
	"time"

	"httpcore/cookie/publicsuffix"
	"httpcore/uri"
)

// Jar stores cookies keyed by (domain, path, name); no two cookies
// share the triple. Expired cookies are pruned lazily whenever the jar
// is read. The jar itself is not synchronized; the driver works on a
// private clone and hands it back with the response.
type Jar struct {
	entries map[jarKey]Cookie
	psl     publicsuffix.List
}

type jarKey struct {
	domain string
	path   string
	name   string
}

func NewJar(psl publicsuffix.List) *Jar {
	if psl == nil {
		psl = publicsuffix.Default
	}
	return &Jar{entries: make(map[jarKey]Cookie), psl: psl}
}

// Clone returns an independent copy sharing the public-suffix list.
func (j *Jar) Clone() *Jar {
	if j == nil {
		return nil
	}

	clone := &Jar{
		entries: make(map[jarKey]Cookie, len(j.entries)),
		psl:     j.psl,
	}
	for k, v := range j.entries {
		clone.entries[k] = v
	}
	return clone
}

// Len reports the number of live cookies at now.
func (j *Jar) Len(now time.Time) int {
	n := 0
	for _, c := range j.entries {
		if !c.Expired(now) {
			n++
		}
	}
	return n
}

// All returns every live cookie, unordered.
func (j *Jar) All(now time.Time) []Cookie {
	cookies := make([]Cookie, 0, len(j.entries))
	for _, c := range j.entries {
		if !c.Expired(now) {
			cookies = append(cookies, c)
		}
	}
	return cookies
}

// Cookies returns the cookies to send for a request to u, sorted by path
// length descending then creation time ascending, and updates their last
// access time.
//
// Reference: https://datatracker.ietf.org/doc/html/rfc6265#section-5.4
func (j *Jar) Cookies(u uri.URI, now time.Time) []Cookie {
	host := requestHost(u)
	path := requestPath(u)
	secure := u.Scheme == "https"

	matched := make([]Cookie, 0)
	for key, c := range j.entries {
		if c.Expired(now) {
			delete(j.entries, key)
			continue
		}

		if c.HostOnly {
			if c.Domain != host {
				continue
			}
		} else if !domainMatch(c.Domain, host) {
			continue
		}

		if !pathMatch(c.Path, path) {
			continue
		}

		if c.SecureOnly && !secure {
			continue
		}

		c.LastAccess = now
		j.entries[key] = c

		matched = append(matched, c)
	}

	sort.SliceStable(matched, func(a, b int) bool {
		if len(matched[a].Path) != len(matched[b].Path) {
			return len(matched[a].Path) > len(matched[b].Path)
		}
		return matched[a].Created.Before(matched[b].Created)
	})

	return matched
}

// SetCookies inserts or replaces cookies from the Set-Cookie field
// values of a response to u. Malformed lines and cookies rejected by the
// storage rules are skipped. Expired cookies remove any stored match.
//
// Reference: https://datatracker.ietf.org/doc/html/rfc6265#section-5.3
func (j *Jar) SetCookies(u uri.URI, setCookieLines []string, now time.Time) {
	host := requestHost(u)

	for _, line := range setCookieLines {
		c, err := ParseSetCookie(line, now)
		if err != nil {
			continue
		}

		if c.Domain == "" {
			c.HostOnly = true
			c.Domain = host
		} else {
			// A domain cookie must cover the request host and must not
			// be scoped to a public suffix, unless the host IS the
			// suffix, in which case it degrades to host-only.
			if j.psl.IsPublicSuffix(c.Domain) {
				if c.Domain != host {
					continue
				}
				c.HostOnly = true
			} else if !domainMatch(c.Domain, host) {
				continue
			}
		}

		if c.Path == "" {
			c.Path = defaultPath(requestPath(u))
		}

		key := jarKey{domain: c.Domain, path: c.Path, name: c.Name}

		if c.Expired(now) {
			delete(j.entries, key)
			continue
		}

		if old, ok := j.entries[key]; ok {
			// A replacement keeps the original creation time.
			c.Created = old.Created
		}

		j.entries[key] = c
	}
}

func requestHost(u uri.URI) string {
	if u.Authority == nil {
		return ""
	}
	return strings.ToLower(u.Authority.Host)
}

func requestPath(u uri.URI) string {
	if u.Path == "" {
		return "/"
	}
	return u.Path
}
