package exceptions

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
)

type Handler interface {
	HandleError(err error)
}

func New(message ...any) error {
	return errors.New(fmt.Sprint(message...))
}

// Cause wraps cause with a message prefix; errors.Is sees through it.
func Cause(cause error, message ...any) error {
	if cause == nil {
		panic("cause on an nil error")
	}
	return &causeError{fmt.Sprint(message...), cause}
}

// Extend appends a message suffix to err.
func Extend(cause error, message ...any) error {
	if cause == nil {
		panic("extend on an nil error")
	}
	return &extendedError{fmt.Sprint(message...), cause}
}

func IsClosedOrCanceled(err error) bool {
	return IsClosed(err) || errors.Is(err, os.ErrDeadlineExceeded)
}

func IsClosed(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, os.ErrClosed) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ENOTCONN)
}
