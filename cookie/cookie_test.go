package cookie

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

func TestParseSetCookie(t *testing.T) {
	testcases := []struct {
		desc     string
		line     string
		expected Cookie
		wantErr  bool
	}{
		{
			desc:     "bare pair",
			line:     "sid=abc123",
			expected: Cookie{Name: "sid", Value: "abc123"},
		},
		{
			desc:     "quoted value",
			line:     `sid="abc 123"`,
			expected: Cookie{Name: "sid", Value: "abc 123"},
		},
		{
			desc: "domain and path",
			line: "sid=1; Domain=.Example.COM; Path=/account",
			expected: Cookie{
				Name: "sid", Value: "1",
				Domain: "example.com", Path: "/account",
			},
		},
		{
			desc:     "secure and httponly",
			line:     "sid=1; Secure; HttpOnly",
			expected: Cookie{Name: "sid", Value: "1", SecureOnly: true, HTTPOnly: true},
		},
		{
			desc: "max-age",
			line: "sid=1; Max-Age=60",
			expected: Cookie{
				Name: "sid", Value: "1",
				Expires: testNow.Add(time.Minute), Persistent: true,
			},
		},
		{
			desc: "max-age wins over expires",
			line: "sid=1; Expires=Mon, 01 Jan 2035 00:00:00 UTC; Max-Age=60",
			expected: Cookie{
				Name: "sid", Value: "1",
				Expires: testNow.Add(time.Minute), Persistent: true,
			},
		},
		{
			desc: "expires",
			line: "sid=1; Expires=Mon, 01 Jan 2035 00:00:00 UTC",
			expected: Cookie{
				Name: "sid", Value: "1",
				Expires:    time.Date(2035, time.January, 1, 0, 0, 0, 0, time.UTC),
				Persistent: true,
			},
		},
		{
			desc:     "non-root path ignored",
			line:     "sid=1; Path=nonsense",
			expected: Cookie{Name: "sid", Value: "1"},
		},
		{desc: "no pair", line: "nonsense", wantErr: true},
		{desc: "empty name", line: "=value", wantErr: true},
	}

	for _, tc := range testcases {
		t.Run(tc.desc, func(t *testing.T) {
			got, err := ParseSetCookie(tc.line, testNow)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)

			tc.expected.Created = testNow
			tc.expected.LastAccess = testNow
			if !tc.expected.Expires.IsZero() {
				assert.True(t, tc.expected.Expires.Equal(got.Expires),
					"expires: want %v, got %v", tc.expected.Expires, got.Expires)
				got.Expires = tc.expected.Expires
			}
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestCookieExpired(t *testing.T) {
	session := Cookie{Name: "s", Value: "1"}
	assert.False(t, session.Expired(testNow))

	persistent := Cookie{Name: "p", Value: "1", Persistent: true, Expires: testNow.Add(-time.Second)}
	assert.True(t, persistent.Expired(testNow))

	future := Cookie{Name: "f", Value: "1", Persistent: true, Expires: testNow.Add(time.Hour)}
	assert.False(t, future.Expired(testNow))
}

func TestHeaderValue(t *testing.T) {
	cookies := []Cookie{
		{Name: "a", Value: "1"},
		{Name: "b", Value: "2"},
	}
	assert.Equal(t, "a=1; b=2", HeaderValue(cookies))
	assert.Equal(t, "", HeaderValue(nil))
}

func TestDomainMatch(t *testing.T) {
	assert.True(t, domainMatch("example.com", "example.com"))
	assert.True(t, domainMatch("example.com", "www.example.com"))
	assert.False(t, domainMatch("example.com", "badexample.com"))
	assert.False(t, domainMatch("www.example.com", "example.com"))
}

func TestPathMatch(t *testing.T) {
	assert.True(t, pathMatch("/", "/anything"))
	assert.True(t, pathMatch("/account", "/account"))
	assert.True(t, pathMatch("/account", "/account/settings"))
	assert.False(t, pathMatch("/account", "/accounting"))
	assert.False(t, pathMatch("/account", "/"))
}

func TestDefaultPath(t *testing.T) {
	assert.Equal(t, "/", defaultPath(""))
	assert.Equal(t, "/", defaultPath("/"))
	assert.Equal(t, "/", defaultPath("/index"))
	assert.Equal(t, "/a", defaultPath("/a/b"))
	assert.Equal(t, "/a/b", defaultPath("/a/b/"))
	assert.Equal(t, "/", defaultPath("relative"))
}
