//go:build unix

package socket

import (
	"io"
	"time"

	E "github.com/sagernet/sing-reactor/common/exceptions"

	"golang.org/x/sys/unix"
)

var ErrTimeout = E.New("socket: wait timeout")

func SetNonblock(fd int, nonblocking bool) error {
	return unix.SetNonblock(fd, nonblocking)
}

// Read performs one read on fd. Errors are the raw errno values.
func Read(fd int, p []byte) (int, error) {
	n, err := unix.Read(fd, p)
	if n < 0 {
		n = 0
	}
	return n, err
}

func Write(fd int, p []byte) (int, error) {
	n, err := unix.Write(fd, p)
	if n < 0 {
		n = 0
	}
	return n, err
}

// InputStream reads from a descriptor without blocking.
type InputStream struct {
	fd int
}

func NewInputStream(fd int) *InputStream {
	return &InputStream{fd: fd}
}

// Read returns 0 and a would-block error when no data is available and
// io.EOF once the peer has shut down its side.
func (s *InputStream) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for {
		n, err := Read(s.fd, p)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, err
		}
		if n == 0 {
			return 0, io.EOF
		}
		return n, nil
	}
}

// OutputStream writes to a descriptor, waiting for writability whenever the
// socket buffer is full.
type OutputStream struct {
	fd      int
	timeout time.Duration
}

func NewOutputStream(fd int) *OutputStream {
	return &OutputStream{fd: fd}
}

// SetTimeout bounds each wait for writability; 0 waits forever.
func (s *OutputStream) SetTimeout(timeout time.Duration) {
	s.timeout = timeout
}

func (s *OutputStream) Write(p []byte) (int, error) {
	return s.WriteFully(p)
}

// WriteFully returns len(p) or an error; it never reports a partial
// success.
func (s *OutputStream) WriteFully(p []byte) (int, error) {
	var written int
	for written < len(p) {
		n, err := Write(s.fd, p[written:])
		written += n
		if err == nil {
			if n == 0 {
				return written, io.ErrShortWrite
			}
			continue
		}
		if err == unix.EINTR {
			continue
		}
		if !IsWouldBlock(err) {
			return written, err
		}
		err = WaitWritable(s.fd, s.timeout)
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

// WaitWritable blocks until fd is writable or timeout elapses (0: forever).
func WaitWritable(fd int, timeout time.Duration) error {
	return wait(fd, unix.POLLOUT, timeout)
}

// WaitReadable blocks until fd is readable or timeout elapses (0: forever).
func WaitReadable(fd int, timeout time.Duration) error {
	return wait(fd, unix.POLLIN, timeout)
}

func wait(fd int, events int16, timeout time.Duration) error {
	timeoutMs := -1
	if timeout > 0 {
		timeoutMs = int((timeout + time.Millisecond - 1) / time.Millisecond)
	}
	fds := []unix.PollFd{{Fd: int32(fd), Events: events}}
	for {
		n, err := unix.Poll(fds, timeoutMs)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrTimeout
		}
		return nil
	}
}
