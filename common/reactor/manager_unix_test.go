//go:build linux || darwin || freebsd

package reactor

import (
	"io"
	"testing"
	"time"

	"github.com/sagernet/sing-reactor/common/poll"
	"github.com/sagernet/sing-reactor/common/socket"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

type bufferConn struct {
	fd       int
	received []byte
	failure  error
}

func (c *bufferConn) FD() int {
	return c.fd
}

func (c *bufferConn) OnRecv(available int) error {
	buffer := make([]byte, 512)
	for {
		n, err := socket.Read(c.fd, buffer)
		if err != nil {
			if socket.IsWouldBlock(err) {
				return nil
			}
			return err
		}
		if n == 0 {
			return io.EOF
		}
		c.received = append(c.received, buffer[:n]...)
	}
}

func (c *bufferConn) OnSend(available int) error {
	return nil
}

func (c *bufferConn) OnError(err error) {
	c.failure = err
}

func TestManagerSocketPair(t *testing.T) {
	for _, backend := range poll.Available() {
		t.Run(string(backend), func(t *testing.T) {
			fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
			require.NoError(t, err)
			defer unix.Close(fds[0])
			defer unix.Close(fds[1])
			require.NoError(t, socket.SetNonblock(fds[0], true))

			manager, err := NewManager(Options{MaxConnections: 4, Backend: backend})
			require.NoError(t, err)
			defer manager.Close()
			conn := &bufferConn{fd: fds[0]}
			require.NoError(t, manager.Join(conn))

			_, err = unix.Write(fds[1], []byte("hello reactor"))
			require.NoError(t, err)
			n, err := manager.Update(time.Second)
			require.NoError(t, err)
			require.Equal(t, 1, n)
			require.Equal(t, "hello reactor", string(conn.received))
			require.Empty(t, manager.ErrorSet())

			require.NoError(t, unix.Shutdown(fds[1], unix.SHUT_RDWR))
			for i := 0; i < 3 && len(manager.ErrorSet()) == 0; i++ {
				_, err = manager.Update(time.Second)
				require.NoError(t, err)
			}
			require.Equal(t, []Conn{conn}, manager.ErrorSet())
			require.Error(t, conn.failure)

			_, err = manager.Update(10 * time.Millisecond)
			require.NoError(t, err)
			require.Zero(t, manager.Count())
		})
	}
}
