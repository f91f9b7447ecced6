// Package reactor multiplexes many non-blocking connections over one
// poll.Poller and dispatches readiness to per-connection handlers.
//
// A Manager is owned by a single goroutine. To use several cores, run one
// Manager per goroutine over disjoint sets of connections.
package reactor

import (
	"errors"
	"time"

	E "github.com/sagernet/sing-reactor/common/exceptions"
	"github.com/sagernet/sing-reactor/common/log"
	"github.com/sagernet/sing-reactor/common/poll"

	"github.com/sirupsen/logrus"
)

const DefaultMaxConnections = 1024

var (
	ErrInvalidConn    = E.New("reactor: invalid connection")
	ErrJoined         = E.New("reactor: connection already joined")
	ErrNotJoined      = E.New("reactor: connection not joined")
	ErrFull           = E.New("reactor: connection table full")
	ErrUpdateRejected = E.New("reactor: connection rejected update")
)

// Conn is a connection driven by a Manager. Handlers run on the goroutine
// calling Update and must not block.
type Conn interface {
	FD() int
	// OnRecv is called when the descriptor is readable; available is the
	// number of readable bytes if the backend knows it. Returning an error
	// marks the connection as failed for this cycle.
	OnRecv(available int) error
	// OnSend is called when the descriptor is writable.
	OnSend(available int) error
	OnError(err error)
}

// Updater is implemented by connections that want a callback once per
// Update cycle, after event dispatch. Returning false fails the connection.
type Updater interface {
	OnUpdate() bool
}

type Options struct {
	MaxConnections int
	Backend        poll.Backend
	EdgeTriggered  bool
	WatchWrite     bool
	Logger         logrus.Ext1FieldLogger
	// Poller overrides the backend selection above.
	Poller poll.Poller
}

type failure struct {
	fd   int
	conn Conn
	err  error
}

type Manager struct {
	logger         logrus.Ext1FieldLogger
	poller         poll.Poller
	maxConnections int
	connections    map[int]Conn
	events         *poll.EventSet
	failures       []failure
	errorSet       []Conn
	reaping        []failure
	errorIndex     map[int]struct{}
}

func NewManager(options Options) (*Manager, error) {
	if options.MaxConnections <= 0 {
		options.MaxConnections = DefaultMaxConnections
	}
	if options.Logger == nil {
		options.Logger = log.NewLogger("reactor")
	}
	poller := options.Poller
	if poller == nil {
		var err error
		poller, err = poll.New(poll.Options{
			MaxEvents:     options.MaxConnections,
			Backend:       options.Backend,
			EdgeTriggered: options.EdgeTriggered,
			WatchWrite:    options.WatchWrite,
			Logger:        options.Logger,
		})
		if err != nil {
			return nil, E.Cause(err, "create poller")
		}
	}
	return &Manager{
		logger:         options.Logger,
		poller:         poller,
		maxConnections: options.MaxConnections,
		connections:    make(map[int]Conn, options.MaxConnections),
		events:         poll.NewEventSet(options.MaxConnections),
		errorIndex:     make(map[int]struct{}),
	}, nil
}

func (m *Manager) Backend() poll.Backend {
	return m.poller.Backend()
}

func (m *Manager) Count() int {
	return len(m.connections)
}

func (m *Manager) Lookup(fd int) (Conn, bool) {
	conn, loaded := m.connections[fd]
	return conn, loaded
}

func (m *Manager) Join(conn Conn) error {
	if conn == nil || conn.FD() < 0 {
		return ErrInvalidConn
	}
	fd := conn.FD()
	if _, loaded := m.connections[fd]; loaded {
		return ErrJoined
	}
	if len(m.connections) >= m.maxConnections {
		return ErrFull
	}
	err := m.poller.Register(fd)
	if err != nil {
		return E.Cause(err, "join socket ", fd)
	}
	m.connections[fd] = conn
	m.logger.Debug("join socket ", fd)
	return nil
}

// JoinAll joins every connection it can and returns how many were joined.
func (m *Manager) JoinAll(conns ...Conn) int {
	var joined int
	for _, conn := range conns {
		err := m.Join(conn)
		if err != nil {
			m.logger.Warn(err)
			continue
		}
		joined++
	}
	return joined
}

func (m *Manager) Unjoin(conn Conn) error {
	if conn == nil {
		return ErrInvalidConn
	}
	return m.unjoin(conn.FD())
}

func (m *Manager) UnjoinAll(conns ...Conn) int {
	var unjoined int
	for _, conn := range conns {
		if m.Unjoin(conn) == nil {
			unjoined++
		}
	}
	return unjoined
}

func (m *Manager) unjoin(fd int) error {
	if _, loaded := m.connections[fd]; !loaded {
		return ErrNotJoined
	}
	err := m.poller.Unregister(fd)
	if err != nil && !errors.Is(err, poll.ErrNotRegistered) {
		return E.Cause(err, "unjoin socket ", fd)
	}
	delete(m.connections, fd)
	m.logger.Debug("unjoin socket ", fd)
	return nil
}

// Update runs one cycle: it drops the connections reported in the previous
// cycle's error set, waits for readiness up to timeout (<= 0 waits
// indefinitely), then calls OnRecv, OnSend and OnError in that order.
// It returns the number of events reported by the poller. An error means
// the poller is no longer usable.
func (m *Manager) Update(timeout time.Duration) (int, error) {
	m.reap()
	n, err := m.poller.Wait(timeout, m.events)
	if err != nil {
		return 0, err
	}
	for _, event := range m.events.Recv {
		conn, loaded := m.connections[event.FD]
		if !loaded {
			continue
		}
		if err = conn.OnRecv(event.Size); err != nil {
			m.failures = append(m.failures, failure{event.FD, conn, err})
		}
	}
	for _, event := range m.events.Send {
		conn, loaded := m.connections[event.FD]
		if !loaded {
			continue
		}
		if err = conn.OnSend(event.Size); err != nil {
			m.failures = append(m.failures, failure{event.FD, conn, err})
		}
	}
	for _, event := range m.events.Error {
		conn, loaded := m.connections[event.FD]
		if !loaded {
			continue
		}
		m.logger.Debug("socket ", event.FD, " error: ", event.Errno)
		conn.OnError(event.Err())
		m.stage(event.FD, conn)
	}
	for _, failed := range m.failures {
		if m.staged(failed.fd) {
			continue
		}
		failed.conn.OnError(failed.err)
		m.stage(failed.fd, failed.conn)
	}
	m.failures = m.failures[:0]
	for fd, conn := range m.connections {
		updater, isUpdater := conn.(Updater)
		if !isUpdater || m.staged(fd) {
			continue
		}
		if !updater.OnUpdate() {
			conn.OnError(ErrUpdateRejected)
			m.stage(fd, conn)
		}
	}
	return n, nil
}

// ErrorSet returns the connections that failed during the last Update.
// They are unjoined at the start of the next Update, so the caller must
// consume the set before calling Update again.
func (m *Manager) ErrorSet() []Conn {
	return m.errorSet
}

func (m *Manager) staged(fd int) bool {
	_, loaded := m.errorIndex[fd]
	return loaded
}

func (m *Manager) stage(fd int, conn Conn) {
	if m.staged(fd) {
		return
	}
	m.errorIndex[fd] = struct{}{}
	m.errorSet = append(m.errorSet, conn)
	m.reaping = append(m.reaping, failure{fd: fd, conn: conn})
}

// reap unjoins the connections staged by the previous cycle. A descriptor
// the caller already unjoined may have been reused by a newly joined
// connection, which is left alone.
func (m *Manager) reap() {
	for i, failed := range m.reaping {
		delete(m.errorIndex, failed.fd)
		m.reaping[i] = failure{}
		current, loaded := m.connections[failed.fd]
		if !loaded || current != failed.conn {
			continue
		}
		err := m.unjoin(failed.fd)
		if err != nil {
			m.logger.Error(err)
		}
	}
	for i := range m.errorSet {
		m.errorSet[i] = nil
	}
	m.errorSet = m.errorSet[:0]
	m.reaping = m.reaping[:0]
}

// Clear unjoins every connection and forgets the error set.
func (m *Manager) Clear() {
	for fd := range m.connections {
		err := m.unjoin(fd)
		if err != nil {
			m.logger.Error(err)
		}
	}
	m.reap()
}

func (m *Manager) Close() error {
	m.Clear()
	return m.poller.Close()
}
