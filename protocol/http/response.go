package http

import (
	"bytes"
	"strconv"
	"strings"

	E "github.com/sagernet/sing-reactor/common/exceptions"

	"golang.org/x/net/http/httpguts"
)

var (
	ErrInvalidResponse  = E.New("http: invalid response")
	ErrUnexpectedStatus = E.New("http: unexpected status")
)

type Framing uint8

const (
	FramingUnknown Framing = iota
	FramingContentLength
	FramingChunked
)

func (f Framing) String() string {
	switch f {
	case FramingContentLength:
		return "content-length"
	case FramingChunked:
		return "chunked"
	default:
		return "unknown"
	}
}

type Header struct {
	Name  string
	Value string
}

// StatusError is returned when the server answers with anything but 200.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return "http: unexpected status: " + e.Status
}

func (e *StatusError) Unwrap() error {
	return ErrUnexpectedStatus
}

type response struct {
	statusCode    int
	statusLine    string
	headers       []Header
	framing       Framing
	contentLength int64
}

var crlf = []byte("\r\n")

// parseResponse parses a response header without its terminating blank line.
func parseResponse(header []byte) (response, error) {
	var r response
	line, rest, _ := bytes.Cut(header, crlf)
	r.statusLine = string(line)
	code, err := parseStatusLine(r.statusLine)
	if err != nil {
		return r, err
	}
	r.statusCode = code
	for len(rest) > 0 {
		line, rest, _ = bytes.Cut(rest, crlf)
		name, value, found := bytes.Cut(line, []byte(":"))
		if !found || !httpguts.ValidHeaderFieldName(string(name)) {
			return r, E.Extend(ErrInvalidResponse, "bad header line ", strconv.Quote(string(line)))
		}
		r.headers = append(r.headers, Header{
			Name:  string(name),
			Value: string(bytes.TrimSpace(value)),
		})
	}
	r.framing = FramingUnknown
	r.contentLength = -1
	if encoding, loaded := r.header("Transfer-Encoding"); loaded && isChunked(encoding) {
		r.framing = FramingChunked
	} else if length, loaded := r.header("Content-Length"); loaded {
		r.contentLength, err = strconv.ParseInt(length, 10, 64)
		if err != nil || r.contentLength < 0 {
			return r, E.Extend(ErrInvalidResponse, "bad content length ", strconv.Quote(length))
		}
		r.framing = FramingContentLength
	}
	return r, nil
}

func parseStatusLine(line string) (int, error) {
	version, rest, found := strings.Cut(line, " ")
	if !found || !strings.HasPrefix(version, "HTTP/") {
		return 0, E.Extend(ErrInvalidResponse, "bad status line ", strconv.Quote(line))
	}
	codeString, _, _ := strings.Cut(rest, " ")
	code, err := strconv.Atoi(codeString)
	if err != nil || len(codeString) != 3 || code < 100 {
		return 0, E.Extend(ErrInvalidResponse, "bad status code ", strconv.Quote(codeString))
	}
	return code, nil
}

func (r *response) header(name string) (string, bool) {
	for _, header := range r.headers {
		if strings.EqualFold(header.Name, name) {
			return header.Value, true
		}
	}
	return "", false
}

func isChunked(encoding string) bool {
	codings := strings.Split(encoding, ",")
	last := strings.TrimSpace(codings[len(codings)-1])
	if index := strings.IndexByte(last, ';'); index >= 0 {
		last = strings.TrimSpace(last[:index])
	}
	return strings.EqualFold(last, "chunked")
}
