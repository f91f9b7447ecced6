//go:build unix

package tcp

import (
	"context"
	"errors"
	"net/netip"
	"time"

	"github.com/sagernet/sing-reactor/common/control"
	E "github.com/sagernet/sing-reactor/common/exceptions"
	M "github.com/sagernet/sing-reactor/common/metadata"
	"github.com/sagernet/sing-reactor/common/socket"

	"golang.org/x/sys/unix"
)

const dialWaitSlice = 100 * time.Millisecond

// Dial connects a non-blocking stream socket to addr. The connect wait
// honours the context deadline and cancellation.
func Dial(ctx context.Context, addr netip.AddrPort, controls ...control.Func) (*Conn, error) {
	if !addr.IsValid() {
		return nil, E.New("dial: invalid address ", addr)
	}
	family := unix.AF_INET6
	if addr.Addr().Is4() {
		family = unix.AF_INET
	}
	fd, err := unix.Socket(family, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return nil, E.Cause(err, "create socket")
	}
	unix.CloseOnExec(fd)
	handle := socket.NewHandle(fd)
	err = dial(ctx, fd, addr, controls)
	if err != nil {
		handle.Close()
		return nil, E.Cause(err, "dial ", addr)
	}
	return NewConn(handle.Release(), M.SocksaddrFromNetIP(addr)), nil
}

func dial(ctx context.Context, fd int, addr netip.AddrPort, controls []control.Func) error {
	err := control.Apply(fd, controls...)
	if err != nil {
		return err
	}
	err = socket.SetNonblock(fd, true)
	if err != nil {
		return err
	}
	err = unix.Connect(fd, M.AddrPortToSockaddr(addr))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, unix.EINPROGRESS), errors.Is(err, unix.EINTR), errors.Is(err, unix.EALREADY):
	default:
		return err
	}
	for {
		if err = ctx.Err(); err != nil {
			return err
		}
		wait := dialWaitSlice
		if deadline, loaded := ctx.Deadline(); loaded {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return context.DeadlineExceeded
			}
			if remaining < wait {
				wait = remaining
			}
		}
		err = socket.WaitWritable(fd, wait)
		if errors.Is(err, socket.ErrTimeout) {
			continue
		} else if err != nil {
			return err
		}
		errno, err := socket.SocketError(fd)
		if err != nil {
			return err
		}
		if errno != 0 {
			return errno
		}
		return nil
	}
}
