// Package poll wraps the operating system's readiness notification
// facilities behind one Poller interface.
//
// Each backend lives in its own build-constrained file and registers itself
// at init time; New picks the native backend of the build target unless
// Options.Backend names another one.
package poll

import (
	"time"

	E "github.com/sagernet/sing-reactor/common/exceptions"
	"github.com/sagernet/sing-reactor/common/log"

	"github.com/sirupsen/logrus"
)

type Backend string

const (
	BackendEpoll  Backend = "epoll"
	BackendKqueue Backend = "kqueue"
	BackendSelect Backend = "select"
)

var (
	ErrFatal         = E.New("poll: fatal poller error")
	ErrClosed        = E.New("poll: poller closed")
	ErrFull          = E.New("poll: too many descriptors")
	ErrRegistered    = E.New("poll: descriptor already registered")
	ErrNotRegistered = E.New("poll: descriptor not registered")
	ErrUnsupported   = E.New("poll: backend not supported on this platform")
	ErrEdgeWrite     = E.New("poll: write interest requires level-triggered mode")
)

type Poller interface {
	// Register adds fd to the interest set and switches it to non-blocking mode.
	Register(fd int) error
	Unregister(fd int) error
	// Wait blocks until at least one registered descriptor is ready or the
	// timeout elapses; timeout <= 0 blocks indefinitely. events is reset and
	// refilled. Interrupted calls and timeouts report 0 and a nil error; an
	// error means the poller is unusable and matches ErrFatal or ErrClosed.
	Wait(timeout time.Duration, events *EventSet) (int, error)
	Count() int
	Backend() Backend
	Close() error
}

type Options struct {
	// MaxEvents bounds both the registered descriptors and the event buffer.
	MaxEvents     int
	Backend       Backend
	EdgeTriggered bool
	// WatchWrite reports writable descriptors; level-triggered only.
	WatchWrite    bool
	Logger        logrus.Ext1FieldLogger
}

var (
	nativeBackend Backend
	backends      = make(map[Backend]func(options Options) (Poller, error))
)

func Native() Backend {
	return nativeBackend
}

func Available() []Backend {
	var list []Backend
	for _, backend := range []Backend{BackendEpoll, BackendKqueue, BackendSelect} {
		if _, loaded := backends[backend]; loaded {
			list = append(list, backend)
		}
	}
	return list
}

func New(options Options) (Poller, error) {
	if options.MaxEvents <= 0 {
		return nil, E.New("poll: invalid max events: ", options.MaxEvents)
	}
	// a descriptor is reported in one list per wait, so an edge-triggered
	// write edge hidden behind a read would never be seen again
	if options.EdgeTriggered && options.WatchWrite {
		return nil, ErrEdgeWrite
	}
	if options.Backend == "" {
		options.Backend = nativeBackend
	}
	if options.Logger == nil {
		options.Logger = log.NewLogger("poll")
	}
	constructor, loaded := backends[options.Backend]
	if !loaded {
		return nil, E.Extend(ErrUnsupported, options.Backend)
	}
	return constructor(options)
}

// FatalError is returned by Wait when the OS reports a condition that makes
// the poller unusable.
type FatalError struct {
	Op  string
	Err error
}

func (e *FatalError) Error() string {
	return "poll: " + e.Op + ": " + e.Err.Error()
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

func (e *FatalError) Is(target error) bool {
	return target == ErrFatal
}

// timeoutMillis rounds up so that a sub-millisecond timeout still waits.
func timeoutMillis(timeout time.Duration) int {
	if timeout <= 0 {
		return -1
	}
	return int((timeout + time.Millisecond - 1) / time.Millisecond)
}
