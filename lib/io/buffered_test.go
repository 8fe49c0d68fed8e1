package iolib

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chunkReader serves its input in fixed-size pieces so read-ahead
// boundaries actually get exercised.
type chunkReader struct {
	data []byte
	size int
}

func (c *chunkReader) Read(p []byte) (int, error) {
	if len(c.data) == 0 {
		return 0, io.EOF
	}
	n := c.size
	if n > len(c.data) {
		n = len(c.data)
	}
	if n > len(p) {
		n = len(p)
	}
	copy(p, c.data[:n])
	c.data = c.data[n:]
	return n, nil
}

func TestBufferedReaderReadUntil(t *testing.T) {
	testcases := []struct {
		desc      string
		input     string
		delim     string
		chunkSize int
		expected  string
		rest      string
	}{
		{
			desc:     "delim in first chunk",
			input:    "status line\r\nrest",
			delim:    "\r\n",
			expected: "status line\r\n",
			rest:     "rest",
		},
		{
			desc:      "delim split across chunks",
			input:     "abc\r\ndef",
			delim:     "\r\n",
			chunkSize: 4, // splits between CR and LF
			expected:  "abc\r\n",
			rest:      "def",
		},
		{
			desc:     "delim at the very end",
			input:    "x\r\n",
			delim:    "\r\n",
			expected: "x\r\n",
			rest:     "",
		},
	}

	for _, tc := range testcases {
		t.Run(tc.desc, func(t *testing.T) {
			size := tc.chunkSize
			if size == 0 {
				size = 3
			}
			br := NewBufferedReader(&chunkReader{data: []byte(tc.input), size: size}, 0)

			got, err := br.ReadUntil([]byte(tc.delim), 0)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, string(got))

			rest, err := io.ReadAll(br)
			require.NoError(t, err)
			assert.Equal(t, tc.rest, string(rest))
		})
	}
}

func TestBufferedReaderReadUntilErrors(t *testing.T) {
	t.Run("zero length delim", func(t *testing.T) {
		br := NewBufferedReader(bytes.NewReader(nil), 0)
		_, err := br.ReadUntil(nil, 0)
		assert.ErrorIs(t, err, ErrZeroLenDelim)
	})

	t.Run("eof before delim", func(t *testing.T) {
		br := NewBufferedReader(bytes.NewReader([]byte("no terminator")), 0)
		_, err := br.ReadUntil([]byte("\r\n"), 0)
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	})

	t.Run("limit exceeded", func(t *testing.T) {
		br := NewBufferedReader(bytes.NewReader([]byte("aaaaaaaaaa\r\n")), 0)
		_, err := br.ReadUntil([]byte("\r\n"), 5)
		assert.ErrorIs(t, err, ErrDelimLimit)
	})

	t.Run("limit exactly met", func(t *testing.T) {
		br := NewBufferedReader(bytes.NewReader([]byte("abc\r\n")), 0)
		got, err := br.ReadUntil([]byte("\r\n"), 5)
		require.NoError(t, err)
		assert.Equal(t, "abc\r\n", string(got))
	})
}

func TestBufferedReaderReadFull(t *testing.T) {
	br := NewBufferedReader(&chunkReader{data: []byte("hello world"), size: 2}, 0)

	got, err := br.ReadFull(5)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))

	got, err = br.ReadFull(6)
	require.NoError(t, err)
	assert.Equal(t, " world", string(got))

	got, err = br.ReadFull(1)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Empty(t, got)
}

func TestBufferedReaderLeftover(t *testing.T) {
	br := NewBufferedReader(bytes.NewReader([]byte("head\r\nbody bytes")), 0)

	_, err := br.ReadUntil([]byte("\r\n"), 0)
	require.NoError(t, err)
	assert.Positive(t, br.Buffered())

	rest, err := io.ReadAll(br)
	require.NoError(t, err)
	assert.Equal(t, "body bytes", string(rest))
}

func TestLimitedReader(t *testing.T) {
	lr := LimitReader(bytes.NewReader([]byte("abcdef")), 4)

	got, err := io.ReadAll(lr)
	require.NoError(t, err)
	assert.Equal(t, "abcd", string(got))
	assert.Zero(t, lr.N)
}
