//go:build unix

package socket

import (
	"errors"
	"syscall"

	"golang.org/x/sys/unix"
)

func IsWouldBlock(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK)
}

// IsTemporary reports whether err means "no progress this round":
// would-block, no error at all, or an interrupted call.
func IsTemporary(err error) bool {
	return err == nil ||
		errors.Is(err, syscall.Errno(0)) ||
		IsWouldBlock(err) ||
		errors.Is(err, unix.EINTR)
}

// IsOverload reports descriptor or buffer exhaustion.
func IsOverload(err error) bool {
	return errors.Is(err, unix.EMFILE) ||
		errors.Is(err, unix.ENFILE) ||
		errors.Is(err, unix.ENOBUFS) ||
		errors.Is(err, unix.ENOMEM)
}

// IsPollFatal reports errors of the polling call that will not go away by
// retrying on the same poller.
func IsPollFatal(err error) bool {
	return errors.Is(err, unix.EBADF) ||
		errors.Is(err, unix.EFAULT) ||
		errors.Is(err, unix.EINVAL)
}

// SocketError returns the pending SO_ERROR of fd.
func SocketError(fd int) (syscall.Errno, error) {
	code, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return 0, err
	}
	return syscall.Errno(code), nil
}
