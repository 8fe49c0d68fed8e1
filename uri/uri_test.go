package uri

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func portPtr(p uint16) *uint16 { return &p }

func TestParse(t *testing.T) {
	testcases := []struct {
		desc     string
		input    string
		expected URI
		wantErr  bool
	}{
		{
			desc:  "full http url",
			input: "http://user@example.com:8080/a/b?x=1#frag",
			expected: URI{
				Scheme: "http",
				Authority: &Authority{
					UserInfo: "user",
					Host:     "example.com",
					Port:     portPtr(8080),
				},
				Path:     "/a/b",
				Query:    strPtr("x=1"),
				Fragment: strPtr("frag"),
			},
		},
		{
			desc:  "no path",
			input: "http://example.com",
			expected: URI{
				Scheme:    "http",
				Authority: &Authority{Host: "example.com"},
			},
		},
		{
			desc:  "query without path",
			input: "http://example.com?x=1",
			expected: URI{
				Scheme:    "http",
				Authority: &Authority{Host: "example.com"},
				Query:     strPtr("x=1"),
			},
		},
		{
			desc:  "host is lowercased",
			input: "http://EXAMPLE.com/",
			expected: URI{
				Scheme:    "http",
				Authority: &Authority{Host: "example.com"},
				Path:      "/",
			},
		},
		{
			desc:  "percent-decoded path",
			input: "https://example.com/a%20b",
			expected: URI{
				Scheme:    "https",
				Authority: &Authority{Host: "example.com"},
				Path:      "/a b",
			},
		},
		{
			desc:  "relative ref",
			input: "/next?y=2",
			expected: URI{
				Path:  "/next",
				Query: strPtr("y=2"),
			},
		},
		{
			desc:  "ipv6 literal",
			input: "http://[::1]:8080/",
			expected: URI{
				Scheme: "http",
				Authority: &Authority{
					Host: "[::1]",
					Port: portPtr(8080),
				},
				Path: "/",
			},
		},
		{
			desc:    "ctl byte",
			input:   "http://exa\x01mple.com/",
			wantErr: true,
		},
		{
			desc:    "bad percent encoding",
			input:   "http://example.com/a%2",
			wantErr: true,
		},
		{
			desc:    "port overflow",
			input:   "http://example.com:70000/",
			wantErr: true,
		},
	}

	for _, tc := range testcases {
		t.Run(tc.desc, func(t *testing.T) {
			got, err := Parse(tc.input)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestStringRoundTrip(t *testing.T) {
	inputs := []string{
		"http://example.com/",
		"http://example.com:8080/a/b?x=1",
		"https://example.com/a%20b?q=1",
	}

	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			u, err := Parse(input)
			require.NoError(t, err)

			again, err := Parse(u.String())
			require.NoError(t, err)
			assert.Equal(t, u, again)
		})
	}
}

func TestResolve(t *testing.T) {
	base, err := Parse("http://example.com/a/b/c?q=1")
	require.NoError(t, err)

	rr, err := NewRefResolver(base)
	require.NoError(t, err)

	testcases := []struct {
		ref      string
		expected string
	}{
		{"/next", "http://example.com/next"},
		{"d", "http://example.com/a/b/d"},
		{"../d", "http://example.com/a/d"},
		{"./", "http://example.com/a/b/"},
		{"http://other.com/x", "http://other.com/x"},
		{"?y=2", "http://example.com/a/b/c?y=2"},
		{"//other.com/y", "http://other.com/y"},
	}

	for _, tc := range testcases {
		t.Run(tc.ref, func(t *testing.T) {
			ref, err := Parse(tc.ref)
			require.NoError(t, err)

			got := rr.Resolve(ref)
			assert.Equal(t, tc.expected, got.String())
		})
	}
}

func TestNewRefResolverRelativeBase(t *testing.T) {
	_, err := NewRefResolver(URI{Path: "/only"})
	assert.Error(t, err)
}

func TestSanitizeRef(t *testing.T) {
	assert.Equal(t, "http://example.com/a%20b", SanitizeRef("http://example.com/a b"))
	assert.Equal(t, "/x%7Cy", SanitizeRef("/x|y"))
	// Already-escaped input is left alone.
	assert.Equal(t, "/a%20b", SanitizeRef("/a%20b"))
}

func TestEscapeComponent(t *testing.T) {
	assert.Equal(t, "a%20%26%3Db", EscapeComponent("a &=b"))
	assert.Equal(t, "plain-text._~", EscapeComponent("plain-text._~"))
}
