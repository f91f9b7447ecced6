//go:build unix

package tcp

import (
	"errors"
	"net/netip"
	"time"

	"github.com/sagernet/sing-reactor/common/control"
	E "github.com/sagernet/sing-reactor/common/exceptions"
	"github.com/sagernet/sing-reactor/common/log"
	M "github.com/sagernet/sing-reactor/common/metadata"
	"github.com/sagernet/sing-reactor/common/socket"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

const DefaultOverloadWait = 5 * time.Second

var ErrClosed = E.New("tcp: socket closed")

var acceptFunc = unix.Accept

// AcceptServer owns a non-blocking listening socket. Accept never blocks
// longer than the configured timeout and folds transient failures into
// "nothing accepted".
type AcceptServer struct {
	logger       logrus.FieldLogger
	handle       *socket.Handle
	addr         M.Socksaddr
	backlog      int
	reuseAddr    bool
	ipv6Only     *bool
	control      control.Func
	timeout      time.Duration
	overloadWait time.Duration
	sleep        func(time.Duration)
	peer         M.Socksaddr
	peerBuffer   []byte
}

func Listen(addr netip.AddrPort, options ...Option) (*AcceptServer, error) {
	server := &AcceptServer{
		backlog:      unix.SOMAXCONN,
		reuseAddr:    true,
		overloadWait: DefaultOverloadWait,
		sleep:        time.Sleep,
	}
	for _, option := range options {
		option(server)
	}
	if server.logger == nil {
		server.logger = log.NewLogger("accept")
	}
	if !addr.Addr().IsValid() {
		addr = netip.AddrPortFrom(netip.IPv6Unspecified(), addr.Port())
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
	server.handle = socket.NewHandle(fd)
	err = server.setup(fd, family, addr)
	if err != nil {
		server.handle.Close()
		return nil, err
	}
	server.logger.Info("listening on ", server.addr)
	return server, nil
}

func (s *AcceptServer) setup(fd int, family int, addr netip.AddrPort) error {
	var controls []control.Func
	if s.reuseAddr {
		controls = append(controls, control.ReuseAddr())
	}
	if family == unix.AF_INET6 && s.ipv6Only != nil {
		controls = append(controls, control.IPv6Only(*s.ipv6Only))
	}
	controls = append(controls, s.control)
	err := control.Apply(fd, controls...)
	if err != nil {
		return err
	}
	err = unix.Bind(fd, M.AddrPortToSockaddr(addr))
	if err != nil {
		return E.Cause(err, "bind ", addr)
	}
	err = unix.Listen(fd, s.backlog)
	if err != nil {
		return E.Cause(err, "listen ", addr)
	}
	err = socket.SetNonblock(fd, true)
	if err != nil {
		return E.Cause(err, "set non-blocking")
	}
	local, err := unix.Getsockname(fd)
	if err != nil {
		return E.Cause(err, "get socket name")
	}
	s.addr = M.SocksaddrFromSockaddr(local)
	s.peerBuffer = make([]byte, 0, s.addr.MaxStringLen())
	return nil
}

// SetTimeout bounds how long Accept waits for a pending connection.
// Zero disables the wait and Accept only polls the backlog.
func (s *AcceptServer) SetTimeout(timeout time.Duration) {
	s.timeout = timeout
}

// SetOverloadWait sets the pause taken after the process runs out of
// descriptors.
func (s *AcceptServer) SetOverloadWait(wait time.Duration) {
	s.overloadWait = wait
}

func (s *AcceptServer) Addr() M.Socksaddr {
	return s.addr
}

func (s *AcceptServer) FD() int {
	return s.handle.FD()
}

// Accept returns the descriptor of a new connection, 0 with a nil error if
// nothing was accepted this round, or -1 with the error that broke the
// listener. The accepted descriptor is owned by the caller.
func (s *AcceptServer) Accept() (int, error) {
	fd := s.handle.FD()
	if fd < 0 {
		return -1, ErrClosed
	}
	if s.timeout > 0 {
		err := socket.WaitReadable(fd, s.timeout)
		if errors.Is(err, socket.ErrTimeout) {
			return 0, nil
		} else if err != nil && !socket.IsTemporary(err) {
			return -1, E.Cause(err, "wait listener")
		}
	}
	connFD, peer, err := acceptFunc(fd)
	switch {
	case err == nil:
	case socket.IsTemporary(err), errors.Is(err, unix.ECONNABORTED):
		return 0, nil
	case socket.IsOverload(err):
		s.logger.Warn("accept: ", err, ", pausing for ", s.overloadWait)
		s.sleep(s.overloadWait)
		return 0, nil
	default:
		return -1, E.Cause(err, "accept")
	}
	if connFD == 0 {
		// 0 means "nothing accepted" to callers.
		unix.Close(connFD)
		return 0, nil
	}
	unix.CloseOnExec(connFD)
	s.peer = M.SocksaddrFromSockaddr(peer)
	s.peerBuffer = s.peer.AppendTo(s.peerBuffer[:0])
	s.logger.Debug("accepted ", s.PeerAddr())
	return connFD, nil
}

// PeerAddr returns the host:port of the last accepted peer.
func (s *AcceptServer) PeerAddr() string {
	return string(s.peerBuffer)
}

func (s *AcceptServer) Peer() M.Socksaddr {
	return s.peer
}

func (s *AcceptServer) Close() error {
	return s.handle.Close()
}
