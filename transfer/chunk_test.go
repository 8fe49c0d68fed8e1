package transfer

import (
	"bytes"
	"io"
	"strings"
	"testing"

	iolib "httpcore/lib/io"
	"httpcore/wire"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newChunked(input string, onTrailer func([]wire.Field)) (*ChunkedReader, *iolib.BufferedReader) {
	br := iolib.NewBufferedReader(bytes.NewReader([]byte(input)), 0)
	return NewChunkedReader(br, onTrailer), br
}

func TestChunkedReader(t *testing.T) {
	testcases := []struct {
		desc     string
		input    string
		expected string
	}{
		{
			desc:     "single chunk",
			input:    "5\r\nhello\r\n0\r\n\r\n",
			expected: "hello",
		},
		{
			desc:     "multiple chunks",
			input:    "3\r\nabc\r\n4\r\ndefg\r\n0\r\n\r\n",
			expected: "abcdefg",
		},
		{
			desc:     "hex size",
			input:    "a\r\n0123456789\r\n0\r\n\r\n",
			expected: "0123456789",
		},
		{
			desc:     "extensions are ignored",
			input:    "5;name=value;flag\r\nhello\r\n0\r\n\r\n",
			expected: "hello",
		},
		{
			desc:     "empty body",
			input:    "0\r\n\r\n",
			expected: "",
		},
	}

	for _, tc := range testcases {
		t.Run(tc.desc, func(t *testing.T) {
			cr, _ := newChunked(tc.input, nil)

			got, err := io.ReadAll(cr)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, string(got))
			assert.True(t, cr.Done())
		})
	}
}

func TestChunkedReaderLeftover(t *testing.T) {
	cr, br := newChunked("3\r\nabc\r\n0\r\n\r\nHTTP/1.1 200 OK\r\n", nil)

	got, err := io.ReadAll(cr)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))

	// Bytes after the terminator belong to the next response.
	rest, err := io.ReadAll(br)
	require.NoError(t, err)
	assert.Equal(t, "HTTP/1.1 200 OK\r\n", string(rest))
}

func TestChunkedReaderTrailers(t *testing.T) {
	var trailers []wire.Field
	cr, _ := newChunked(
		"3\r\nabc\r\n0\r\nExpires: never\r\nX-Sum: 1\r\n\r\n",
		func(fields []wire.Field) { trailers = fields },
	)

	_, err := io.ReadAll(cr)
	require.NoError(t, err)

	require.Len(t, trailers, 2)
	assert.Equal(t, wire.Field{Name: "Expires", Value: "never"}, trailers[0])
	assert.Equal(t, wire.Field{Name: "X-Sum", Value: "1"}, trailers[1])
}

func TestChunkedReaderErrors(t *testing.T) {
	testcases := []struct {
		desc  string
		input string
	}{
		{desc: "bad size", input: "zz\r\nhello\r\n0\r\n\r\n"},
		{desc: "missing chunk delimiter", input: "5\r\nhelloXX0\r\n\r\n"},
		{desc: "bare lf size line", input: "5\nhello\r\n0\r\n\r\n"},
	}

	for _, tc := range testcases {
		t.Run(tc.desc, func(t *testing.T) {
			cr, _ := newChunked(tc.input, nil)
			_, err := io.ReadAll(cr)
			assert.ErrorIs(t, err, ErrInvalidChunkHeader)
		})
	}

	t.Run("truncated chunk data", func(t *testing.T) {
		cr, _ := newChunked("5\r\nhe", nil)
		_, err := io.ReadAll(cr)
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	})
}

func TestChunkedEncoder(t *testing.T) {
	t.Run("frames producer reads", func(t *testing.T) {
		ce := NewChunkedEncoder(strings.NewReader("hello"))

		got, err := io.ReadAll(ce)
		require.NoError(t, err)
		assert.Equal(t, "5\r\nhello\r\n0\r\n\r\n", string(got))
	})

	t.Run("empty producer emits only terminator", func(t *testing.T) {
		ce := NewChunkedEncoder(strings.NewReader(""))

		got, err := io.ReadAll(ce)
		require.NoError(t, err)
		assert.Equal(t, "0\r\n\r\n", string(got))
	})
}

func TestChunkedRoundTrip(t *testing.T) {
	payload := strings.Repeat("round and round ", 1000)

	encoded, err := io.ReadAll(NewChunkedEncoder(strings.NewReader(payload)))
	require.NoError(t, err)

	cr, _ := newChunked(string(encoded), nil)
	decoded, err := io.ReadAll(cr)
	require.NoError(t, err)

	assert.Equal(t, payload, string(decoded))
}
