//go:build linux || darwin || dragonfly || freebsd || netbsd || openbsd

package poll

import (
	"time"

	E "github.com/sagernet/sing-reactor/common/exceptions"
	"github.com/sagernet/sing-reactor/common/socket"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// select(2) cannot watch descriptors at or above FD_SETSIZE.
const selectSetSize = 1024

func init() {
	backends[BackendSelect] = newSelectPoller
}

type selectPoller struct {
	registry
	logger     logrus.Ext1FieldLogger
	watchWrite bool
	readSet    unix.FdSet
	writeSet   unix.FdSet
}

func newSelectPoller(options Options) (Poller, error) {
	if options.EdgeTriggered {
		return nil, E.New("poll: select backend is level-triggered only")
	}
	return &selectPoller{
		registry:   newRegistry(options.MaxEvents),
		logger:     options.Logger,
		watchWrite: options.WatchWrite,
	}, nil
}

func (p *selectPoller) Backend() Backend {
	return BackendSelect
}

func (p *selectPoller) Register(fd int) error {
	err := p.check(fd)
	if err != nil {
		return err
	}
	if fd >= selectSetSize {
		return E.New("poll: descriptor ", fd, " exceeds FD_SETSIZE")
	}
	err = socket.SetNonblock(fd, true)
	if err != nil {
		return E.Cause(err, "set non-blocking")
	}
	p.add(fd)
	p.logger.Trace("select: register socket ", fd)
	return nil
}

func (p *selectPoller) Unregister(fd int) error {
	err := p.remove(fd)
	if err != nil {
		return err
	}
	p.logger.Trace("select: unregister socket ", fd)
	return nil
}

func (p *selectPoller) Wait(timeout time.Duration, events *EventSet) (int, error) {
	events.Reset()
	if p.closed {
		return 0, ErrClosed
	}
	if p.Count() == 0 {
		return 0, nil
	}
	p.readSet.Zero()
	p.writeSet.Zero()
	maxFD := -1
	for fd := range p.fds {
		p.readSet.Set(fd)
		if p.watchWrite {
			p.writeSet.Set(fd)
		}
		if fd > maxFD {
			maxFD = fd
		}
	}
	var timeval *unix.Timeval
	if timeout > 0 {
		tv := unix.NsecToTimeval(int64(timeout))
		timeval = &tv
	}
	var writeSet *unix.FdSet
	if p.watchWrite {
		writeSet = &p.writeSet
	}
	n, err := unix.Select(maxFD+1, &p.readSet, writeSet, nil, timeval)
	if err != nil {
		if socket.IsPollFatal(err) {
			p.logger.Error("select: ", err)
			return 0, &FatalError{Op: "select", Err: err}
		}
		if err != unix.EINTR {
			p.logger.Debug("select: ", err)
		}
		return 0, nil
	}
	if n == 0 {
		return 0, nil
	}
	for fd := range p.fds {
		readable := p.readSet.IsSet(fd)
		writable := p.watchWrite && p.writeSet.IsSet(fd)
		if !readable && !writable {
			continue
		}
		errno, _ := socket.SocketError(fd)
		switch {
		case errno != 0:
			events.AddError(fd, errno)
		case readable:
			events.AddRecv(fd, availableBytes(fd))
		default:
			events.AddSend(fd, 0)
		}
	}
	return events.Len(), nil
}

func (p *selectPoller) Close() error {
	p.close()
	return nil
}
