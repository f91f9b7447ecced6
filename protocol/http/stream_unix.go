//go:build unix

package http

import (
	"context"
	"errors"
	"net/netip"
	"time"

	"github.com/sagernet/sing-reactor/common/socket"
	"github.com/sagernet/sing-reactor/transport/tcp"

	"golang.org/x/sys/unix"
)

func defaultDial(ctx context.Context, addr netip.AddrPort) (Conn, error) {
	conn, err := tcp.Dial(ctx, addr)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func isWouldBlock(err error) bool {
	return socket.IsWouldBlock(err) || errors.Is(err, unix.EINTR)
}

// Wait blocks until the connection has data to read or timeout elapses.
// It returns nil if the transport does not expose a descriptor.
func (s *Stream) Wait(timeout time.Duration) error {
	if s.conn == nil {
		return ErrClosed
	}
	fdConn, isFD := s.conn.(interface{ FD() int })
	if !isFD {
		return nil
	}
	err := socket.WaitReadable(fdConn.FD(), timeout)
	if errors.Is(err, socket.ErrTimeout) {
		return nil
	}
	return err
}
