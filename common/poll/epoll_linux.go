//go:build linux

package poll

import (
	"time"

	E "github.com/sagernet/sing-reactor/common/exceptions"
	"github.com/sagernet/sing-reactor/common/socket"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

func init() {
	nativeBackend = BackendEpoll
	backends[BackendEpoll] = newEpollPoller
}

type epollPoller struct {
	registry
	logger   logrus.Ext1FieldLogger
	epollFD  int
	interest uint32
	events   []unix.EpollEvent
}

func newEpollPoller(options Options) (Poller, error) {
	epollFD, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, E.Cause(err, "epoll_create1")
	}
	interest := uint32(unix.EPOLLIN | unix.EPOLLRDHUP)
	if options.WatchWrite {
		interest |= unix.EPOLLOUT
	}
	if options.EdgeTriggered {
		interest |= unix.EPOLLET
	}
	return &epollPoller{
		registry: newRegistry(options.MaxEvents),
		logger:   options.Logger,
		epollFD:  epollFD,
		interest: interest,
		events:   make([]unix.EpollEvent, options.MaxEvents),
	}, nil
}

func (p *epollPoller) Backend() Backend {
	return BackendEpoll
}

func (p *epollPoller) Register(fd int) error {
	err := p.check(fd)
	if err != nil {
		return err
	}
	err = socket.SetNonblock(fd, true)
	if err != nil {
		return E.Cause(err, "set non-blocking")
	}
	err = unix.EpollCtl(p.epollFD, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{
		Events: p.interest,
		Fd:     int32(fd),
	})
	if err != nil {
		return E.Cause(err, "epoll_ctl add")
	}
	p.add(fd)
	p.logger.Trace("epoll: register socket ", fd)
	return nil
}

func (p *epollPoller) Unregister(fd int) error {
	if p.closed {
		return ErrClosed
	}
	if !p.has(fd) {
		return ErrNotRegistered
	}
	err := unix.EpollCtl(p.epollFD, unix.EPOLL_CTL_DEL, fd, nil)
	// a descriptor closed before unregistering has already left the epoll set
	if err != nil && err != unix.ENOENT && err != unix.EBADF {
		return E.Cause(err, "epoll_ctl del")
	}
	p.logger.Trace("epoll: unregister socket ", fd)
	return p.remove(fd)
}

func (p *epollPoller) Wait(timeout time.Duration, events *EventSet) (int, error) {
	events.Reset()
	if p.closed {
		return 0, ErrClosed
	}
	count := p.Count()
	if count == 0 {
		return 0, nil
	}
	n, err := unix.EpollWait(p.epollFD, p.events[:count], timeoutMillis(timeout))
	if err != nil {
		if socket.IsPollFatal(err) {
			p.logger.Error("epoll_wait: ", err)
			return 0, &FatalError{Op: "epoll_wait", Err: err}
		}
		if err != unix.EINTR {
			p.logger.Debug("epoll_wait: ", err)
		}
		return 0, nil
	}
	for i := 0; i < n; i++ {
		event := p.events[i]
		fd := int(event.Fd)
		switch {
		case event.Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0:
			errno, _ := socket.SocketError(fd)
			p.logger.Debug("epoll: socket ", fd, " error: ", errno)
			events.AddError(fd, errno)
		case event.Events&(unix.EPOLLIN|unix.EPOLLRDHUP) != 0:
			events.AddRecv(fd, availableBytes(fd))
		case event.Events&unix.EPOLLOUT != 0:
			events.AddSend(fd, 0)
		}
	}
	return events.Len(), nil
}

func (p *epollPoller) Close() error {
	if !p.close() {
		return nil
	}
	return unix.Close(p.epollFD)
}
