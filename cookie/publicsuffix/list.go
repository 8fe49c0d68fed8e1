// Package publicsuffix answers a single question: is a domain a public
// suffix, i.e. one under which anyone may register names? Cookies must
// never be scoped to a public suffix.
package publicsuffix

import "strings"

// List is the predicate the cookie jar consults.
type List interface {
	IsPublicSuffix(domain string) bool
}

// StaticList answers from a fixed suffix set. The zero value treats only
// single-label domains as public suffixes, which is the safe floor: it
// blocks cookies for "com" without external data.
type StaticList struct {
	suffixes map[string]struct{}
}

var _ List = (*StaticList)(nil)

func NewStaticList(suffixes []string) *StaticList {
	set := make(map[string]struct{}, len(suffixes))
	for _, s := range suffixes {
		set[strings.ToLower(s)] = struct{}{}
	}
	return &StaticList{suffixes: set}
}

func (l *StaticList) IsPublicSuffix(domain string) bool {
	domain = strings.ToLower(domain)

	if _, ok := l.suffixes[domain]; ok {
		return true
	}

	return !strings.Contains(domain, ".")
}

// Default is a minimal built-in list covering the common multi-label
// suffixes. Callers with stricter needs supply their own dataset.
var Default = NewStaticList([]string{
	"co.uk", "org.uk", "ac.uk", "gov.uk",
	"com.au", "net.au", "org.au",
	"co.jp", "ne.jp", "or.jp",
	"com.br", "com.cn", "com.tw",
	"co.kr", "co.in", "co.nz", "co.za",
	"github.io", "gitlab.io",
})
