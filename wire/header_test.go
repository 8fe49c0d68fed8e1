package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeadersAccess(t *testing.T) {
	var h Headers
	h.Add("content-type", "text/plain")
	h.Add("set-cookie", "a=1")
	h.Add("Set-Cookie", "b=2")

	v, ok := h.Get("Content-Type")
	require.True(t, ok)
	assert.Equal(t, "text/plain", v)

	// Case-insensitive lookup.
	v, ok = h.Get("CONTENT-TYPE")
	require.True(t, ok)
	assert.Equal(t, "text/plain", v)

	assert.Equal(t, []string{"a=1", "b=2"}, h.Values("Set-Cookie"))

	_, ok = h.Get("Missing")
	assert.False(t, ok)
}

func TestHeadersOrderPreserved(t *testing.T) {
	var h Headers
	h.Add("B", "2")
	h.Add("A", "1")
	h.Add("C", "3")

	fields := h.Fields()
	require.Len(t, fields, 3)
	assert.Equal(t, "B", fields[0].Name)
	assert.Equal(t, "A", fields[1].Name)
	assert.Equal(t, "C", fields[2].Name)
}

func TestHeadersSet(t *testing.T) {
	var h Headers
	h.Add("X-A", "1")
	h.Add("X-B", "2")
	h.Add("x-a", "3")

	h.Set("X-A", "9")

	assert.Equal(t, []string{"9"}, h.Values("X-A"))

	// The first occurrence's position is kept.
	fields := h.Fields()
	require.Len(t, fields, 2)
	assert.Equal(t, Field{Name: "X-A", Value: "9"}, fields[0])
	assert.Equal(t, Field{Name: "X-B", Value: "2"}, fields[1])
}

func TestHeadersPrepend(t *testing.T) {
	var h Headers
	h.Add("X-A", "1")
	h.Prepend("Host", "example.com")

	fields := h.Fields()
	require.Len(t, fields, 2)
	assert.Equal(t, "Host", fields[0].Name)
}

func TestHeadersDel(t *testing.T) {
	var h Headers
	h.Add("X-A", "1")
	h.Add("x-a", "2")
	h.Add("X-B", "3")

	h.Del("X-A")

	assert.False(t, h.Has("X-A"))
	assert.True(t, h.Has("X-B"))
	assert.Equal(t, 1, h.Len())
}

func TestHeadersClone(t *testing.T) {
	var h Headers
	h.Add("X-A", "1")

	clone := h.Clone()
	clone.Set("X-A", "2")

	v, _ := h.Get("X-A")
	assert.Equal(t, "1", v)
}

func TestHeadersHasToken(t *testing.T) {
	var h Headers
	h.Add("Connection", "keep-alive, Close")
	h.Add("Transfer-Encoding", "gzip")
	h.Add("Transfer-Encoding", "chunked")

	assert.True(t, h.HasToken("Connection", "close"))
	assert.True(t, h.HasToken("Connection", "keep-alive"))
	assert.True(t, h.HasToken("Transfer-Encoding", "chunked"))
	assert.False(t, h.HasToken("Connection", "upgrade"))
	assert.False(t, h.HasToken("Missing", "x"))
}
