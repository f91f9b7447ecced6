package http

import (
	"strings"

	"github.com/sagernet/sing-reactor/common/buf"
	E "github.com/sagernet/sing-reactor/common/exceptions"

	"golang.org/x/net/http/httpguts"
)

// HeaderBufferSize bounds both the composed request header and the
// received response header.
const HeaderBufferSize = 1024

var (
	ErrHeaderOverflow = E.New("http: request header exceeds ", HeaderBufferSize, " bytes")
	ErrInvalidRequest = E.New("http: invalid request")
)

const (
	requestHeaderBegin = " HTTP/1.1\r\nHost: "
	requestHeaderEnd   = "\r\nAccept: */*\r\nUser-Agent: Mozilla/5.0\r\nConnection: Keep-Alive\r\n\r\n"
	postHeaderEnd      = "\r\nAccept: */*\r\nUser-Agent: Mozilla/5.0\r\nContent-Type: application/x-www-form-urlencoded\r\nConnection: Keep-Alive\r\nContent-Length: "
)

func validateRequest(hostName string, path string) error {
	if path == "" {
		return E.Extend(ErrInvalidRequest, "empty path")
	}
	if strings.ContainsAny(path, " \r\n") || !httpguts.ValidHeaderFieldValue(path) {
		return E.Extend(ErrInvalidRequest, "bad path ", path)
	}
	if hostName == "" || !httpguts.ValidHostHeader(hostName) {
		return E.Extend(ErrInvalidRequest, "bad host ", hostName)
	}
	return nil
}

// writeGetRequest composes a GET request into buffer, which is left
// untouched on error.
func writeGetRequest(buffer *buf.Buffer, hostName string, path string) error {
	err := validateRequest(hostName, path)
	if err != nil {
		return err
	}
	return compose(buffer, func() error {
		return writeStrings(buffer, "GET ", path, requestHeaderBegin, hostName, requestHeaderEnd)
	})
}

// writePostRequest composes the header of a POST request carrying
// contentLength body bytes.
func writePostRequest(buffer *buf.Buffer, hostName string, path string, contentLength int) error {
	err := validateRequest(hostName, path)
	if err != nil {
		return err
	}
	if contentLength <= 0 {
		return E.Extend(ErrInvalidRequest, "empty body")
	}
	return compose(buffer, func() error {
		err := writeStrings(buffer, "POST ", path, requestHeaderBegin, hostName, postHeaderEnd)
		if err != nil {
			return err
		}
		err = buffer.WriteInt(int64(contentLength))
		if err != nil {
			return err
		}
		return writeStrings(buffer, "\r\n\r\n")
	})
}

func compose(buffer *buf.Buffer, write func() error) error {
	buffer.Reset()
	err := write()
	if err != nil {
		buffer.Reset()
		return ErrHeaderOverflow
	}
	return nil
}

func writeStrings(buffer *buf.Buffer, parts ...string) error {
	for _, part := range parts {
		_, err := buffer.WriteString(part)
		if err != nil {
			return err
		}
	}
	return nil
}
