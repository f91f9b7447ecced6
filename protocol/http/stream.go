package http

import (
	"context"
	"errors"
	"io"
	"net/netip"

	"github.com/sagernet/sing-reactor/common/buf"
	E "github.com/sagernet/sing-reactor/common/exceptions"
	"github.com/sagernet/sing-reactor/common/log"

	"github.com/sirupsen/logrus"
)

var (
	ErrClosed         = E.New("http: stream closed")
	ErrSocket         = E.New("http: socket error")
	ErrHeaderTooLarge = E.New("http: response header exceeds ", HeaderBufferSize, " bytes")
)

// SocketError reports a transport failure; the stream is closed when it is
// returned. It matches ErrSocket.
type SocketError struct {
	Op  string
	Err error
}

func (e *SocketError) Error() string {
	return "http: " + e.Op + ": " + e.Err.Error()
}

func (e *SocketError) Unwrap() error {
	return e.Err
}

func (e *SocketError) Is(target error) bool {
	return target == ErrSocket
}

var headerTerminator = []byte("\r\n\r\n")

// Conn is the transport under a Stream. Read must not block: an empty
// socket is reported through a would-block error and a closed peer
// through io.EOF. Send writes the whole buffer or fails.
type Conn interface {
	io.Reader
	Send(p []byte) error
	Close() error
}

type DialFunc func(ctx context.Context, addr netip.AddrPort) (Conn, error)

// Stream downloads one HTTP/1.1 response body over a non-blocking
// connection. A Stream is used by a single goroutine.
type Stream struct {
	logger     logrus.FieldLogger
	dial       DialFunc
	conn       Conn
	buffer     *buf.Buffer
	headerDone bool
	response   response
	chunked    chunkedDecoder
	position   int64
	eof        bool
}

func NewStream() *Stream {
	return &Stream{
		logger: log.NewLogger("http"),
		dial:   defaultDial,
		buffer: buf.NewSize(HeaderBufferSize),
	}
}

func (s *Stream) SetLogger(logger logrus.FieldLogger) {
	s.logger = logger
}

// SetDialer replaces the TCP dialer.
func (s *Stream) SetDialer(dial DialFunc) {
	s.dial = dial
}

// Open sends a GET request for path to addr. Any previous request is
// closed first.
func (s *Stream) Open(ctx context.Context, addr netip.AddrPort, hostName string, path string) error {
	s.Close()
	s.reset()
	err := writeGetRequest(s.buffer, hostName, path)
	if err != nil {
		return err
	}
	s.logger.Debug("GET ", hostName, path, " via ", addr)
	return s.send(ctx, addr, nil)
}

// Post sends a form POST request carrying body.
func (s *Stream) Post(ctx context.Context, addr netip.AddrPort, hostName string, path string, body []byte) error {
	s.Close()
	s.reset()
	err := writePostRequest(s.buffer, hostName, path, len(body))
	if err != nil {
		return err
	}
	s.logger.Debug("POST ", hostName, path, " via ", addr, ", ", len(body), " bytes")
	return s.send(ctx, addr, body)
}

func (s *Stream) send(ctx context.Context, addr netip.AddrPort, body []byte) error {
	conn, err := s.dial(ctx, addr)
	if err != nil {
		s.buffer.Reset()
		s.logger.Error("connect to ", addr, ": ", err)
		return E.Cause(err, "connect to ", addr)
	}
	err = conn.Send(s.buffer.Bytes())
	if err == nil && len(body) > 0 {
		err = conn.Send(body)
	}
	s.buffer.Reset()
	if err != nil {
		conn.Close()
		return &SocketError{"send request", err}
	}
	s.conn = conn
	return nil
}

// Read returns body bytes. It returns 0 and a nil error when the socket has
// nothing for now, and io.EOF once the body is complete. The first call
// that completes the response header returns the body bytes that arrived
// with it.
func (s *Stream) Read(p []byte) (int, error) {
	if s.conn == nil {
		return 0, ErrClosed
	}
	if s.eof {
		return 0, io.EOF
	}
	if !s.headerDone {
		done, err := s.readHeader()
		if err != nil || !done {
			return 0, err
		}
		return s.readBody(p, false)
	}
	return s.readBody(p, true)
}

func (s *Stream) readHeader() (bool, error) {
	_, err := s.buffer.ReadOnceFrom(s.conn)
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		} else if isWouldBlock(err) {
			return false, nil
		}
		s.Close()
		return false, &SocketError{"read response header", err}
	}
	index := s.buffer.Find(headerTerminator)
	if index < 0 {
		if s.buffer.IsFull() {
			s.Close()
			return false, ErrHeaderTooLarge
		}
		return false, nil
	}
	s.response, err = parseResponse(s.buffer.To(index))
	if err != nil {
		s.Close()
		return false, err
	}
	if s.response.statusCode != 200 {
		s.logger.Error("server responded ", s.response.statusLine)
		s.Close()
		return false, &StatusError{Code: s.response.statusCode, Status: s.response.statusLine}
	}
	if s.response.framing == FramingChunked {
		s.logger.Debug("using chunked encoding")
	}
	s.buffer.Advance(index + len(headerTerminator))
	s.headerDone = true
	return true, nil
}

// readBody serves p from bytes left in the buffer and, if fromSocket is
// set and nothing is left, from one socket read.
func (s *Stream) readBody(p []byte, fromSocket bool) (int, error) {
	switch s.response.framing {
	case FramingChunked:
		return s.readChunked(p, fromSocket)
	case FramingContentLength:
		remaining := s.response.contentLength - s.position
		if remaining <= 0 {
			s.eof = true
			return 0, io.EOF
		}
		if int64(len(p)) > remaining {
			p = p[:remaining]
		}
	}
	if len(p) == 0 {
		return 0, nil
	}
	var (
		n   int
		err error
	)
	if !s.buffer.IsEmpty() {
		n, _ = s.buffer.Read(p)
	} else if fromSocket {
		n, err = s.conn.Read(p)
	}
	s.position += int64(n)
	if err != nil {
		return n, s.bodyError(err)
	}
	return n, nil
}

func (s *Stream) readChunked(p []byte, fromSocket bool) (int, error) {
	var written int
	for {
		n, consumed, err := s.chunked.Decode(p[written:], s.buffer.Bytes())
		s.buffer.Advance(consumed)
		written += n
		s.position += int64(n)
		if err != nil {
			s.Close()
			return written, err
		}
		if s.chunked.Done() {
			s.eof = true
			if written == 0 {
				return 0, io.EOF
			}
			return written, nil
		}
		if written == len(p) || written > 0 || !fromSocket {
			return written, nil
		}
		s.buffer.Reset()
		_, err = s.buffer.ReadOnceFrom(s.conn)
		if err != nil {
			return written, s.bodyError(err)
		}
	}
}

func (s *Stream) bodyError(err error) error {
	if isWouldBlock(err) {
		return nil
	}
	if errors.Is(err, io.EOF) {
		if s.response.framing == FramingUnknown {
			s.eof = true
			return io.EOF
		}
		err = io.ErrUnexpectedEOF
	}
	s.Close()
	return &SocketError{"read body", err}
}

func (s *Stream) StatusCode() int {
	return s.response.statusCode
}

func (s *Stream) StatusLine() string {
	return s.response.statusLine
}

// Headers returns the response headers in the order received.
func (s *Stream) Headers() []Header {
	return s.response.headers
}

// Header returns the first value of the named header, matched
// case-insensitively.
func (s *Stream) Header(name string) string {
	value, _ := s.response.header(name)
	return value
}

func (s *Stream) Framing() Framing {
	return s.response.framing
}

// ContentLength returns the declared body length, or -1 if the response
// does not declare one.
func (s *Stream) ContentLength() int64 {
	if s.response.framing != FramingContentLength {
		return -1
	}
	return s.response.contentLength
}

// Position returns the number of body bytes delivered so far.
func (s *Stream) Position() int64 {
	return s.position
}

// Close releases the connection. The parsed response and the position stay
// available until the next request.
func (s *Stream) Close() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	s.buffer.Reset()
	return err
}

func (s *Stream) reset() {
	s.buffer.Reset()
	s.headerDone = false
	s.response = response{}
	s.chunked.Reset()
	s.position = 0
	s.eof = false
}
