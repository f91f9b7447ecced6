package http

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseResponse(t *testing.T) {
	r, err := parseResponse([]byte("HTTP/1.1 200 OK\r\n" +
		"Server: test\r\n" +
		"content-length: 42\r\n" +
		"X-Empty:\r\n" +
		"X-Spaced:   padded value  "))
	require.NoError(t, err)
	require.Equal(t, 200, r.statusCode)
	require.Equal(t, "HTTP/1.1 200 OK", r.statusLine)
	require.Equal(t, []Header{
		{"Server", "test"},
		{"content-length", "42"},
		{"X-Empty", ""},
		{"X-Spaced", "padded value"},
	}, r.headers)
	require.Equal(t, FramingContentLength, r.framing)
	require.EqualValues(t, 42, r.contentLength)
	value, loaded := r.header("Content-Length")
	require.True(t, loaded)
	require.Equal(t, "42", value)
}

func TestParseResponseFraming(t *testing.T) {
	for _, testCase := range []struct {
		header  string
		framing Framing
	}{
		{"HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\nContent-Length: 10", FramingChunked},
		{"HTTP/1.1 200 OK\r\nTransfer-Encoding: gzip, Chunked", FramingChunked},
		{"HTTP/1.1 200 OK\r\nTransfer-Encoding: gzip", FramingUnknown},
		{"HTTP/1.1 200 OK\r\nContent-Length: 0", FramingContentLength},
		{"HTTP/1.0 200 OK", FramingUnknown},
	} {
		r, err := parseResponse([]byte(testCase.header))
		require.NoError(t, err)
		require.Equal(t, testCase.framing, r.framing, testCase.header)
	}
}

func TestParseResponseInvalid(t *testing.T) {
	for _, header := range []string{
		"",
		"ICY 200 OK",
		"HTTP/1.1 2000 OK",
		"HTTP/1.1 abc OK",
		"HTTP/1.1 200 OK\r\nno colon here",
		"HTTP/1.1 200 OK\r\nBad Name: value",
		"HTTP/1.1 200 OK\r\nContent-Length: -1",
		"HTTP/1.1 200 OK\r\nContent-Length: ten",
	} {
		_, err := parseResponse([]byte(header))
		require.ErrorIs(t, err, ErrInvalidResponse, header)
	}
}

func TestStatusError(t *testing.T) {
	err := error(&StatusError{Code: 404, Status: "HTTP/1.1 404 Not Found"})
	require.ErrorIs(t, err, ErrUnexpectedStatus)
	require.EqualError(t, err, "http: unexpected status: HTTP/1.1 404 Not Found")
}
