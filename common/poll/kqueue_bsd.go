//go:build darwin || dragonfly || freebsd || netbsd || openbsd

package poll

import (
	"syscall"
	"time"

	E "github.com/sagernet/sing-reactor/common/exceptions"
	"github.com/sagernet/sing-reactor/common/socket"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

func init() {
	nativeBackend = BackendKqueue
	backends[BackendKqueue] = newKqueuePoller
}

type kqueuePoller struct {
	registry
	logger     logrus.Ext1FieldLogger
	kqueueFD   int
	flags      int
	watchWrite bool
	changes    []unix.Kevent_t
	events     []unix.Kevent_t
}

func newKqueuePoller(options Options) (Poller, error) {
	kqueueFD, err := unix.Kqueue()
	if err != nil {
		return nil, E.Cause(err, "kqueue")
	}
	unix.CloseOnExec(kqueueFD)
	flags := unix.EV_ADD | unix.EV_ENABLE
	if options.EdgeTriggered {
		flags |= unix.EV_CLEAR
	}
	eventCount := options.MaxEvents
	if options.WatchWrite {
		eventCount *= 2
	}
	return &kqueuePoller{
		registry:   newRegistry(options.MaxEvents),
		logger:     options.Logger,
		kqueueFD:   kqueueFD,
		flags:      flags,
		watchWrite: options.WatchWrite,
		changes:    make([]unix.Kevent_t, 2),
		events:     make([]unix.Kevent_t, eventCount),
	}, nil
}

func (p *kqueuePoller) Backend() Backend {
	return BackendKqueue
}

func (p *kqueuePoller) changeList(fd int, flags int) []unix.Kevent_t {
	changes := p.changes[:1]
	unix.SetKevent(&changes[0], fd, unix.EVFILT_READ, flags)
	if p.watchWrite {
		changes = p.changes[:2]
		unix.SetKevent(&changes[1], fd, unix.EVFILT_WRITE, flags)
	}
	return changes
}

func (p *kqueuePoller) Register(fd int) error {
	err := p.check(fd)
	if err != nil {
		return err
	}
	err = socket.SetNonblock(fd, true)
	if err != nil {
		return E.Cause(err, "set non-blocking")
	}
	_, err = unix.Kevent(p.kqueueFD, p.changeList(fd, p.flags), nil, nil)
	if err != nil {
		return E.Cause(err, "kevent add")
	}
	p.add(fd)
	p.logger.Trace("kqueue: register socket ", fd)
	return nil
}

func (p *kqueuePoller) Unregister(fd int) error {
	if p.closed {
		return ErrClosed
	}
	if !p.has(fd) {
		return ErrNotRegistered
	}
	_, err := unix.Kevent(p.kqueueFD, p.changeList(fd, unix.EV_DELETE), nil, nil)
	if err != nil && err != unix.ENOENT && err != unix.EBADF {
		return E.Cause(err, "kevent delete")
	}
	p.logger.Trace("kqueue: unregister socket ", fd)
	return p.remove(fd)
}

func (p *kqueuePoller) Wait(timeout time.Duration, events *EventSet) (int, error) {
	events.Reset()
	if p.closed {
		return 0, ErrClosed
	}
	count := p.Count()
	if count == 0 {
		return 0, nil
	}
	if p.watchWrite {
		count *= 2
	}
	var timespec *unix.Timespec
	if timeout > 0 {
		ts := unix.NsecToTimespec(int64(timeout))
		timespec = &ts
	}
	n, err := unix.Kevent(p.kqueueFD, nil, p.events[:count], timespec)
	if err != nil {
		if socket.IsPollFatal(err) {
			p.logger.Error("kevent: ", err)
			return 0, &FatalError{Op: "kevent", Err: err}
		}
		if err != unix.EINTR {
			p.logger.Debug("kevent: ", err)
		}
		return 0, nil
	}
	for i := 0; i < n; i++ {
		event := p.events[i]
		fd := int(event.Ident)
		switch {
		case event.Flags&unix.EV_ERROR != 0:
			p.logger.Error("kqueue: socket ", fd, " kevent error: ", event.Data)
			events.AddError(fd, syscall.Errno(event.Data))
		case event.Flags&unix.EV_EOF != 0 && event.Fflags != 0:
			events.AddError(fd, syscall.Errno(event.Fflags))
		case event.Filter == unix.EVFILT_READ:
			events.AddRecv(fd, int(event.Data))
		case event.Filter == unix.EVFILT_WRITE:
			if event.Flags&unix.EV_EOF != 0 {
				events.AddError(fd, syscall.EPIPE)
			} else {
				events.AddSend(fd, int(event.Data))
			}
		}
	}
	return events.Len(), nil
}

func (p *kqueuePoller) Close() error {
	if !p.close() {
		return nil
	}
	return unix.Close(p.kqueueFD)
}
